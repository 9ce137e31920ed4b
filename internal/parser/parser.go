package parser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/rawblock/intent-engine/internal/tokens"
	"github.com/rawblock/intent-engine/internal/venues"
	"github.com/rawblock/intent-engine/pkg/models"
)

// Confidence bands. A direct pattern hit scores 0.9; venue resolution of a
// deferred intent lifts it to 0.95 because the venue is then confirmed by
// market data rather than guessed. Resolution misses route through the
// aggregator at reduced confidence, and the bare skeleton matcher sits at
// the bottom.
const (
	confDirect          = 0.9
	confResolved        = 0.95
	confLearnedExact    = 0.8
	confLearnedTemplate = 0.75
	confModel           = 0.7
	confResolveMissTok  = 0.7
	confSkeleton        = 0.5
	confResolveMissPair = 0.5
)

const maxPromptLen = 500

var (
	ErrEmptyPrompt   = errors.New("prompt is empty")
	ErrPromptTooLong = fmt.Errorf("prompt exceeds %d characters", maxPromptLen)
)

// exampleForms is shown to callers when nothing in the pipeline could read
// the prompt.
var exampleForms = []string{
	`swap 1 SOL for USDC`,
	`send 0.5 SOL to <address>`,
	`memo "gm"`,
	`stake 2 SOL with marinade`,
	`supply 100 USDC to kamino`,
	`buy 0.1 SOL of BONK`,
}

// UnparseableError reports a prompt that survived the pattern bank, the
// learned store and the model fallback without producing an intent.
type UnparseableError struct {
	Prompt   string
	Examples []string
}

func (e *UnparseableError) Error() string {
	return fmt.Sprintf("could not parse intent from %q; supported forms include: %s",
		e.Prompt, strings.Join(e.Examples, "; "))
}

// Parser turns free-form prompts into ParsedIntents. The resolver and the
// learned store may be nil; the model may be a noop. All three only widen
// what the pattern bank alone can recognize.
type Parser struct {
	resolver *venues.Resolver
	learned  *LearnedStore
	model    IntentModel
}

func New(resolver *venues.Resolver, learned *LearnedStore, model IntentModel) *Parser {
	if model == nil {
		model = NoopModel{}
	}
	return &Parser{resolver: resolver, learned: learned, model: model}
}

// SegmentResult carries the outcome for one segment of a compound prompt.
// Callers decide whether a failed segment fails the whole request.
type SegmentResult struct {
	Segment string
	Intent  *models.ParsedIntent
	Err     error
}

// ParsePrompt parses a single-intent prompt.
func (p *Parser) ParsePrompt(ctx context.Context, prompt string) (*models.ParsedIntent, error) {
	cleaned := preprocess(prompt)
	if cleaned == "" {
		return nil, ErrEmptyPrompt
	}
	if len(cleaned) > maxPromptLen {
		return nil, ErrPromptTooLong
	}
	return p.parseSegment(ctx, cleaned)
}

// ParseMulti segments a compound prompt and parses each segment in order.
// The i-th result always corresponds to the i-th segment.
func (p *Parser) ParseMulti(ctx context.Context, prompt string) ([]SegmentResult, error) {
	cleaned := preprocess(prompt)
	if cleaned == "" {
		return nil, ErrEmptyPrompt
	}
	if len(cleaned) > maxPromptLen {
		return nil, ErrPromptTooLong
	}

	segments := SegmentPrompt(cleaned)
	results := make([]SegmentResult, 0, len(segments))
	for _, seg := range segments {
		intent, err := p.parseSegment(ctx, seg)
		if err != nil {
			log.Printf("[Parser] segment %q failed: %v", seg, err)
		}
		results = append(results, SegmentResult{Segment: seg, Intent: intent, Err: err})
	}
	return results, nil
}

// parseSegment strips any priority modifier, runs the recognition pipeline
// and folds the modifier back in as a priorityFee param.
func (p *Parser) parseSegment(ctx context.Context, segment string) (*models.ParsedIntent, error) {
	stripped, fee, hasFee := stripPriorityModifier(segment)
	if stripped == "" {
		return nil, &UnparseableError{Prompt: segment, Examples: exampleForms}
	}

	intent, err := p.recognize(ctx, stripped)
	if err != nil {
		return nil, err
	}
	if hasFee {
		intent.Params["priorityFee"] = fee
	}
	return intent, nil
}

// recognize is the pipeline core: pattern bank, skeleton matcher, learned
// store, model fallback, in that order.
func (p *Parser) recognize(ctx context.Context, prompt string) (*models.ParsedIntent, error) {
	lowered := strings.ToLower(prompt)
	for _, pat := range patternBank {
		m := matchPattern(pat, prompt, lowered)
		if m == nil {
			continue
		}
		params := pat.extract(m)
		normalizeParams(pat.action, params)
		return p.resolveRef(pat.proto, pat.action, params)
	}

	// Last resort before self-healing: a bare "X for Y" / "X to Y" skeleton
	// reads as an aggregator swap of 1 unit.
	if m := skeletonRe.FindStringSubmatch(prompt); m != nil {
		params := models.Params{"amount": float64(1), "from": m[1], "to": m[2]}
		normalizeParams("swap", params)
		return &models.ParsedIntent{Protocol: "jupiter", Action: "swap", Params: params, Confidence: confSkeleton}, nil
	}

	if p.learned != nil {
		if intent, ok := p.learned.Match(prompt); ok {
			log.Printf("[Parser] learned store matched %q -> %s/%s", prompt, intent.Protocol, intent.Action)
			return intent, nil
		}
	}

	if intent := p.askModel(ctx, prompt); intent != nil {
		if p.learned != nil {
			if err := p.learned.Save(prompt, *intent); err != nil {
				log.Printf("[Parser] failed to persist learned intent: %v", err)
			}
		}
		return intent, nil
	}

	return nil, &UnparseableError{Prompt: prompt, Examples: exampleForms}
}

// resolveRef rewrites deferred-resolution references into concrete
// protocols. Lookups that miss degrade to the aggregator so the intent still
// builds; the confidence drop records the guess.
func (p *Parser) resolveRef(ref protoRef, action string, params models.Params) (*models.ParsedIntent, error) {
	switch ref.kind {
	case protoConcrete:
		return &models.ParsedIntent{Protocol: ref.name, Action: action, Params: params, Confidence: confDirect}, nil

	case protoResolveToken:
		mint := params.Str("token")
		if p.resolver != nil {
			if info := p.resolver.LookupToken(mint); info != nil {
				params["pool"] = info.PrimaryPool
				if info.Symbol != "" {
					params["symbol"] = info.Symbol
				}
				log.Printf("[Parser] resolved token %s to venue %s", mint, info.PrimaryVenue)
				return &models.ParsedIntent{Protocol: info.PrimaryVenue, Action: action, Params: params, Confidence: confResolved}, nil
			}
		}
		return &models.ParsedIntent{Protocol: "jupiter", Action: action, Params: params, Confidence: confResolveMissTok}, nil

	case protoResolvePair:
		pairAddr := params.Str("pair")
		if p.resolver != nil {
			if info := p.resolver.LookupPair(pairAddr); info != nil {
				params["pool"] = info.Pool
				params["token"] = info.BaseMint
				if info.BaseSymbol != "" {
					params["symbol"] = info.BaseSymbol
				}
				log.Printf("[Parser] resolved pair %s to venue %s", pairAddr, info.Protocol)
				return &models.ParsedIntent{Protocol: info.Protocol, Action: action, Params: params, Confidence: confResolved}, nil
			}
		}
		// The pair never resolved. Swap-style actions degrade to the
		// aggregator with the pair address as the best available token
		// guess; liquidity ops cannot run without a known pool.
		if action == "addLiquidity" || action == "removeLiquidity" {
			return nil, fmt.Errorf("could not resolve pool %s to a venue", pairAddr)
		}
		params["token"] = pairAddr
		return &models.ParsedIntent{Protocol: "jupiter", Action: action, Params: params, Confidence: confResolveMissPair}, nil
	}
	return nil, fmt.Errorf("unhandled protocol reference kind %d", ref.kind)
}

func (p *Parser) askModel(ctx context.Context, prompt string) *models.ParsedIntent {
	mctx, cancel := context.WithTimeout(ctx, modelTimeout)
	defer cancel()

	intent, err := p.model.ExtractIntent(mctx, prompt)
	if err != nil {
		log.Printf("[Parser] model fallback failed: %v", err)
		return nil
	}
	if intent == nil {
		return nil
	}
	intent.Confidence = confModel
	if intent.Params == nil {
		intent.Params = models.Params{}
	}
	normalizeParams(intent.Action, intent.Params)
	log.Printf("[Parser] model fallback parsed %q -> %s/%s", prompt, intent.Protocol, intent.Action)
	return intent
}

// ─────────────────────────────────────────────────────────────────────────────
// Preprocessing and normalization
// ─────────────────────────────────────────────────────────────────────────────

var skeletonRe = regexp.MustCompile(`(?i)^\$?([A-Za-z0-9]{2,44})\s+(?:for|to)\s+\$?([A-Za-z0-9]{2,44})$`)

// preprocess trims, drops emoji and collapses whitespace runs.
func preprocess(prompt string) string {
	return strings.Join(strings.Fields(stripEmoji(prompt)), " ")
}

func stripEmoji(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == 0xFE0E || r == 0xFE0F || r == 0x200D:
		case r >= 0x1F000 && r <= 0x1FAFF:
		case r >= 0x2600 && r <= 0x27BF:
		case r >= 0x2B00 && r <= 0x2BFF:
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeParams resolves token references to mint addresses. The from side
// of a swap is always resolved; the to side only when it looks like a
// symbol, so recipient addresses pass through untouched. Unstake and close
// keep the raw symbol for display.
func normalizeParams(action string, params models.Params) {
	if from := params.Str("from"); from != "" {
		params["from"] = tokens.Resolve(from)
	}
	if to := params.Str("to"); to != "" && len(to) <= 10 {
		params["to"] = tokens.Resolve(to)
	}
	if tok := params.Str("token"); tok != "" {
		switch action {
		case "unstake", "close", "closePosition":
		default:
			params["token"] = tokens.Resolve(tok)
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Priority modifiers
// ─────────────────────────────────────────────────────────────────────────────

// Urgency tiers in micro-lamports per compute unit.
const (
	priorityFeeLow    uint64 = 10_000
	priorityFeeMedium uint64 = 100_000
	priorityFeeHigh   uint64 = 1_000_000
	priorityFeeMax    uint64 = 5_000_000
)

var (
	priorityTailRe = regexp.MustCompile(`(?i)\s+(?:with\s+(?:a\s+)?(?:(ultra|very)\s+)?(high|medium|low|max|maximum)\s+priority(?:\s+fee)?|(urgently|asap|quickly))\s*$`)
	priorityLeadRe = regexp.MustCompile(`(?i)^(?:urgently|quickly)\s+`)
)

// stripPriorityModifier removes a trailing or leading urgency phrase before
// the pattern bank runs, so no recognition rule has to compete with it. The
// returned fee is in micro-lamports per compute unit.
func stripPriorityModifier(prompt string) (string, uint64, bool) {
	if m := priorityTailRe.FindStringSubmatch(prompt); m != nil {
		rest := strings.TrimSpace(prompt[:len(prompt)-len(m[0])])
		if m[3] != "" {
			return rest, priorityFeeHigh, true
		}
		if m[1] != "" {
			return rest, priorityFeeMax, true
		}
		switch strings.ToLower(m[2]) {
		case "low":
			return rest, priorityFeeLow, true
		case "medium":
			return rest, priorityFeeMedium, true
		case "high":
			return rest, priorityFeeHigh, true
		default:
			return rest, priorityFeeMax, true
		}
	}
	if loc := priorityLeadRe.FindStringIndex(prompt); loc != nil {
		return strings.TrimSpace(prompt[loc[1]:]), priorityFeeHigh, true
	}
	return prompt, 0, false
}
