package api

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rawblock/intent-engine/internal/builder"
	"github.com/rawblock/intent-engine/internal/chain"
	"github.com/rawblock/intent-engine/internal/db"
	"github.com/rawblock/intent-engine/internal/parser"
	"github.com/rawblock/intent-engine/internal/protocols"
	"github.com/rawblock/intent-engine/internal/tokens"
	"github.com/rawblock/intent-engine/internal/venues"
	"github.com/rawblock/intent-engine/pkg/models"
)

const maxBatchIntents = 20

// FeeMarket is the poller surface the API reads. Kept as an interface so
// the handlers do not depend on the poller package.
type FeeMarket interface {
	Snapshot(network string) (models.FeeSnapshot, bool)
}

// Deps carries the engine subsystems into the router. DB, Fees, Learned and
// Hub may be nil; every handler guards for the missing collaborator.
type Deps struct {
	Parser   *parser.Parser
	Builder  *builder.Builder
	Registry *protocols.Registry
	Resolver *venues.Resolver
	Chain    *chain.Client
	Fees     FeeMarket
	Learned  *parser.LearnedStore
	DB       *db.PostgresStore
	Hub      *Hub
	LLM      bool
}

type APIHandler struct {
	parser   *parser.Parser
	builder  *builder.Builder
	registry *protocols.Registry
	resolver *venues.Resolver
	chain    *chain.Client
	fees     FeeMarket
	learned  *parser.LearnedStore
	dbStore  *db.PostgresStore
	wsHub    *Hub
	llm      bool
}

func SetupRouter(deps Deps) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://rawblock.net,https://www.rawblock.net
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			// Check if the request origin is in the allowed list
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})
	r.Use(requestIDMiddleware())

	handler := &APIHandler{
		parser:   deps.Parser,
		builder:  deps.Builder,
		registry: deps.Registry,
		resolver: deps.Resolver,
		chain:    deps.Chain,
		fees:     deps.Fees,
		learned:  deps.Learned,
		dbStore:  deps.DB,
		wsHub:    deps.Hub,
		llm:      deps.LLM,
	}

	api := r.Group("/api/v1")
	{
		// Health and the stream stay public so probes and dashboards work
		// without a token.
		api.GET("/health", handler.handleHealth)
		if deps.Hub != nil {
			api.GET("/stream", deps.Hub.Subscribe)
		}

		protected := api.Group("", AuthMiddleware(), RateLimiterFromEnv().Middleware())
		{
			protected.POST("/parse", handler.handleParse)
			protected.POST("/build/natural", handler.handleBuildNatural)
			protected.POST("/build", handler.handleBuild)
			protected.POST("/build/batch", handler.handleBuildBatch)
			protected.POST("/decode", handler.handleDecode)
			protected.POST("/estimate", handler.handleEstimate)
			protected.GET("/resolve/:query", handler.handleResolve)
			protected.GET("/fees", handler.handleFees)
			protected.GET("/history", handler.handleHistory)
		}
	}

	return r
}

// requestIDMiddleware tags every request with a uuid, echoed back in the
// X-Request-ID header. Inbound ids are kept so callers can correlate.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// handleParse runs the parser without building anything, as an inspection
// aid for clients that want to show the user what would happen.
func (h *APIHandler) handleParse(c *gin.Context) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body. Expected: {prompt}"})
		return
	}

	segments, err := h.parser.ParseMulti(c.Request.Context(), req.Prompt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	type segmentView struct {
		Segment string               `json:"segment"`
		Intent  *models.ParsedIntent `json:"intent,omitempty"`
		Error   string               `json:"error,omitempty"`
	}
	views := make([]segmentView, 0, len(segments))
	allParsed := true
	for _, seg := range segments {
		view := segmentView{Segment: seg.Segment, Intent: seg.Intent}
		if seg.Err != nil {
			view.Error = seg.Err.Error()
			allParsed = false
		} else if seg.Intent != nil {
			h.recordParse(c.Request.Context(), seg.Segment, seg.Intent)
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{"success": allParsed, "intents": views})
}

// handleBuildNatural is the headline path: prompt in, signed-ready
// transactions out. Multi-intent prompts produce one result per segment in
// prompt order; a failed segment fails its slot without stopping the rest.
func (h *APIHandler) handleBuildNatural(c *gin.Context) {
	var req models.NaturalIntent
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body. Expected: {prompt, payer}"})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "prompt is required"})
		return
	}
	if _, err := solana.PublicKeyFromBase58(strings.TrimSpace(req.Payer)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "payer is not a valid base58 address"})
		return
	}

	segments, err := h.parser.ParseMulti(c.Request.Context(), req.Prompt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	results := make([]*models.BuildResult, 0, len(segments))
	allOK := true
	for _, seg := range segments {
		if seg.Err != nil || seg.Intent == nil {
			allOK = false
			msg := "could not parse segment"
			if seg.Err != nil {
				msg = seg.Err.Error()
			}
			results = append(results, &models.BuildResult{ID: uuid.NewString(), Error: msg})
			continue
		}
		h.recordParse(ctx, seg.Segment, seg.Intent)

		intent := builder.FromParsed(seg.Intent, &req)
		result := h.builder.Build(ctx, intent)
		if !result.Success {
			allOK = false
		}
		h.recordBuild(ctx, seg.Segment, seg.Intent, intent, result)
		h.broadcastBuild(intent.Intent, result)
		results = append(results, result)
	}

	c.JSON(http.StatusOK, gin.H{"success": allOK, "results": results})
}

// handleBuild builds one structured intent, for clients that already know
// the intent key and params.
func (h *APIHandler) handleBuild(c *gin.Context) {
	var req models.BuildIntent
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body. Expected: {intent, params, payer}"})
		return
	}
	if req.Intent == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "intent is required"})
		return
	}
	if strings.TrimSpace(req.Payer) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "payer is required"})
		return
	}

	result := h.builder.Build(c.Request.Context(), &req)
	h.recordBuild(c.Request.Context(), "", nil, &req, result)
	h.broadcastBuild(req.Intent, result)
	c.JSON(http.StatusOK, result)
}

// handleBuildBatch builds a list of structured intents in order. The batch
// is lenient: one bad intent fails its slot, not the batch.
func (h *APIHandler) handleBuildBatch(c *gin.Context) {
	var req struct {
		Intents        []models.BuildIntent `json:"intents"`
		Payer          string               `json:"payer"`
		Network        string               `json:"network"`
		SkipSimulation bool                 `json:"skipSimulation"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body. Expected: {intents: [...]}"})
		return
	}
	if len(req.Intents) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "intents is required"})
		return
	}
	if len(req.Intents) > maxBatchIntents {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "too many intents in one batch, max is " + strconv.Itoa(maxBatchIntents),
		})
		return
	}

	// Top-level payer/network act as defaults for entries that omit them.
	intents := make([]*models.BuildIntent, len(req.Intents))
	for i := range req.Intents {
		if req.Intents[i].Payer == "" {
			req.Intents[i].Payer = req.Payer
		}
		if req.Intents[i].Network == "" {
			req.Intents[i].Network = req.Network
		}
		if req.SkipSimulation {
			req.Intents[i].SkipSimulation = true
		}
		intents[i] = &req.Intents[i]
	}

	ctx := c.Request.Context()
	results := h.builder.BuildBatch(ctx, intents)
	allOK := true
	for i, result := range results {
		if !result.Success {
			allOK = false
		}
		h.recordBuild(ctx, "", nil, intents[i], result)
		h.broadcastBuild(intents[i].Intent, result)
	}

	c.JSON(http.StatusOK, gin.H{"success": allOK, "results": results})
}

// handleDecode renders a serialized transaction human-readable.
func (h *APIHandler) handleDecode(c *gin.Context) {
	var req struct {
		Transaction string `json:"transaction"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Transaction) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body. Expected: {transaction} with base64 payload"})
		return
	}

	decoded, err := builder.DecodeTransaction(req.Transaction, h.registry)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "decoded": decoded})
}

// handleEstimate prices one intent or a list without building.
func (h *APIHandler) handleEstimate(c *gin.Context) {
	var req struct {
		Intent      string               `json:"intent"`
		Params      models.Params        `json:"params"`
		Intents     []models.BuildIntent `json:"intents"`
		Network     string               `json:"network"`
		PriorityFee uint64               `json:"priorityFee"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body. Expected: {intent, params} or {intents: [...]}"})
		return
	}

	list := req.Intents
	if len(list) == 0 && req.Intent != "" {
		list = []models.BuildIntent{{Intent: req.Intent, Params: req.Params, PriorityFee: req.PriorityFee}}
	}
	if len(list) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "intent or intents is required"})
		return
	}

	intents := make([]*models.BuildIntent, len(list))
	for i := range list {
		if list[i].PriorityFee == 0 {
			list[i].PriorityFee = req.PriorityFee
		}
		intents[i] = &list[i]
	}

	estimate := h.builder.Estimate(c.Request.Context(), h.network(req.Network), intents)
	c.JSON(http.StatusOK, gin.H{"success": true, "estimate": estimate})
}

// handleResolve answers "what is this" for a token symbol, mint address or
// pair address.
func (h *APIHandler) handleResolve(c *gin.Context) {
	query := strings.TrimSpace(c.Param("query"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "query is required"})
		return
	}

	response := gin.H{"success": true, "query": query}
	found := false

	if tokens.LooksLikeMint(query) {
		if sym := tokens.Symbol(query); sym != "" {
			response["symbol"] = sym
			response["mint"] = query
			found = true
		}
		if h.resolver != nil {
			if info := h.resolver.LookupToken(query); info != nil {
				response["token"] = info
				response["mint"] = query
				found = true
			} else if pair := h.resolver.LookupPair(query); pair != nil {
				response["pair"] = pair
				found = true
			}
		}
	} else {
		symbol := strings.ToUpper(strings.TrimPrefix(query, "$"))
		if mint := tokens.Resolve(symbol); mint != symbol {
			response["symbol"] = symbol
			response["mint"] = mint
			found = true
			if h.resolver != nil {
				if info := h.resolver.LookupToken(mint); info != nil {
					response["token"] = info
				}
			}
		}
	}

	if !found {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "nothing known about " + query})
		return
	}
	c.JSON(http.StatusOK, response)
}

// handleFees returns the latest fee-market snapshot for a network.
func (h *APIHandler) handleFees(c *gin.Context) {
	network := h.network(c.Query("network"))
	if h.fees == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Fee market poller not running"})
		return
	}
	snap, ok := h.fees.Snapshot(network)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "No fee samples for " + network + " yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "fees": snap})
}

// handleHistory returns the recent build audit trail. Without a database
// the history is simply empty, not an error.
func (h *APIHandler) handleHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	if h.dbStore == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "builds": []db.BuildRecord{}, "count": 0})
		return
	}
	records, err := h.dbStore.RecentBuilds(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to fetch build history", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "builds": records, "count": len(records)})
}

// handleHealth returns engine status and capabilities for service discovery
func (h *APIHandler) handleHealth(c *gin.Context) {
	network := h.network("")

	rpcStatus := "unconfigured"
	if h.chain != nil {
		if err := h.chain.Health(c.Request.Context(), network); err != nil {
			rpcStatus = "error: " + err.Error()
		} else {
			rpcStatus = "ok"
		}
	}

	var cachedTokens, cachedPairs int
	if h.resolver != nil {
		cachedTokens, cachedPairs = h.resolver.CacheSizes()
	}
	learnedCount := 0
	if h.learned != nil {
		learnedCount = h.learned.Len()
	}

	var protocolNames []string
	intentCount := 0
	if h.registry != nil {
		protocolNames = h.registry.Names()
		intentCount = len(h.registry.Intents())
	}

	health := gin.H{
		"success": true,
		"status":  "operational",
		"engine":  "RawBlock Intent Engine v1.0",
		"network": network,
		"rpc":     rpcStatus,
		"capabilities": gin.H{
			"protocols":       protocolNames,
			"intents":         intentCount,
			"llmFallback":     h.llm,
			"learnedPatterns": learnedCount,
			"feeMarket":       h.fees != nil,
			"simulation":      h.chain != nil,
		},
		"resolverCache": gin.H{"tokens": cachedTokens, "pairs": cachedPairs},
		"dbConnected":   h.dbStore != nil,
	}
	if h.dbStore != nil {
		if counts, err := h.dbStore.ParseSourceCounts(c.Request.Context()); err == nil {
			health["parseSources"] = counts
		}
	}
	c.JSON(http.StatusOK, health)
}

// ─────────────────────────────────────────────────────────────────────────────
// Persistence and stream helpers (all optional collaborators)
// ─────────────────────────────────────────────────────────────────────────────

func (h *APIHandler) network(requested string) string {
	if h.chain != nil {
		return h.chain.ResolveNetwork(requested)
	}
	if requested == "" {
		return chain.NetworkMainnet
	}
	return requested
}

// parseSource labels the recognition path from the confidence band.
func parseSource(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return "pattern"
	case confidence >= 0.75:
		return "learned"
	case confidence >= 0.7:
		return "llm"
	default:
		return "fallback"
	}
}

func (h *APIHandler) recordParse(ctx context.Context, prompt string, intent *models.ParsedIntent) {
	if h.dbStore == nil || intent == nil {
		return
	}
	source := parseSource(intent.Confidence)
	if err := h.dbStore.SaveParseEvent(ctx, prompt, source, intent.Protocol, intent.Action, intent.Confidence); err != nil {
		log.Printf("Failed to save parse event to DB: %v", err)
	}
}

func (h *APIHandler) recordBuild(ctx context.Context, prompt string, parsed *models.ParsedIntent, intent *models.BuildIntent, result *models.BuildResult) {
	if h.dbStore == nil {
		return
	}
	rec := db.BuildRecord{
		ID:      result.ID,
		Prompt:  prompt,
		Intent:  intent.Intent,
		Network: h.network(intent.Network),
		Payer:   intent.Payer,
		Success: result.Success,
		Error:   result.Error,
	}
	if parsed != nil {
		rec.Protocol = parsed.Protocol
		rec.Confidence = parsed.Confidence
	} else if result.Details != nil {
		rec.Protocol = result.Details.Protocol
	}
	if err := h.dbStore.SaveBuild(ctx, rec); err != nil {
		log.Printf("Failed to save build record to DB: %v", err)
	}
}

// broadcastBuild pushes a build event to stream subscribers.
func (h *APIHandler) broadcastBuild(intent string, result *models.BuildResult) {
	if h.wsHub == nil {
		return
	}
	payload := gin.H{
		"type":    "build",
		"id":      result.ID,
		"intent":  intent,
		"success": result.Success,
	}
	if result.Details != nil {
		payload["protocol"] = result.Details.Protocol
		payload["estimatedFee"] = result.Details.EstimatedFee
	}
	if result.Error != "" {
		payload["error"] = result.Error
	}
	h.wsHub.BroadcastJSON(payload)
}
