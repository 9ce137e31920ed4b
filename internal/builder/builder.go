package builder

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"log"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/rawblock/intent-engine/internal/chain"
	"github.com/rawblock/intent-engine/internal/protocols"
	"github.com/rawblock/intent-engine/pkg/models"
)

const microLamportsPerLamport = 1_000_000

// FeeSource supplies the current priority-fee estimate for a network. The
// fee market poller implements it; a nil source falls back to direct RPC.
type FeeSource interface {
	MedianFor(network string) uint64
}

// Builder turns validated intents into serialized, signature-ready
// transactions.
type Builder struct {
	chain    *chain.Client
	registry *protocols.Registry
	fees     FeeSource
}

func New(c *chain.Client, registry *protocols.Registry, fees FeeSource) *Builder {
	return &Builder{chain: c, registry: registry, fees: fees}
}

// swapFunnel lists the intents whose execution routes through the swap
// aggregator: it indexes every venue's pools, so one build path covers all
// of them. The value is the param-rewrite mode (buys spend SOL, sells exit
// into SOL, plain swaps pass through).
var swapFunnel = map[string]string{
	"swap":         "swap",
	"raydium-swap": "swap",
	"orca-swap":    "swap",
	"meteora-swap": "swap",
	"pumpfun-buy":  "buy",
	"pumpfun-sell": "sell",
}

// FromParsed converts a parser result into the builder's input, carrying
// over the request-level options from the originating natural request.
func FromParsed(parsed *models.ParsedIntent, req *models.NaturalIntent) *models.BuildIntent {
	params := parsed.Params.Clone()
	key := protocols.MapIntentKey(parsed.Protocol, parsed.Action)

	// Aggregator buys and sells arrive with a bare token param; rewrite
	// them into the from/to shape the swap handler expects.
	if key == "swap" && !params.Has("from") && !params.Has("to") {
		if token := params.Str("token"); token != "" {
			delete(params, "token")
			if parsed.Action == "sell" {
				params["from"] = token
				params["to"] = chain.WrappedSOLMint.String()
			} else {
				params["from"] = chain.WrappedSOLMint.String()
				params["to"] = token
			}
		}
	}

	intent := &models.BuildIntent{
		Intent:         key,
		Params:         params,
		Payer:          req.Payer,
		Network:        req.Network,
		SkipSimulation: req.SkipSimulation,
		PriorityFee:    req.PriorityFee,
		ComputeBudget:  req.ComputeBudget,
	}

	// An urgency modifier in the prompt rides along as a param; the
	// request-level fee wins when both are present.
	if fee, ok := params.Float("priorityFee"); ok {
		delete(params, "priorityFee")
		if intent.PriorityFee == 0 && fee > 0 {
			intent.PriorityFee = uint64(fee)
		}
	}
	return intent
}

// Build runs one intent through validation, instruction assembly, fee
// stamping, simulation and serialization. Failures come back inside the
// result rather than as an error so batch callers keep their ordering.
func (b *Builder) Build(ctx context.Context, intent *models.BuildIntent) *models.BuildResult {
	result := &models.BuildResult{ID: uuid.NewString()}

	payer, err := solana.PublicKeyFromBase58(strings.TrimSpace(intent.Payer))
	if err != nil {
		return b.fail(result, intent, fmt.Errorf("invalid payer address %q", intent.Payer))
	}
	network := b.network(intent.Network)

	handler, ok := b.registry.ByIntent(intent.Intent)
	if !ok {
		return b.fail(result, intent, fmt.Errorf("unsupported intent %q", intent.Intent))
	}
	if err := handler.Validate(intent.Intent, intent.Params); err != nil {
		return b.fail(result, intent, fmt.Errorf("invalid parameters: %w", err))
	}

	priorityFee := intent.PriorityFee
	if priorityFee == 0 {
		priorityFee = b.currentPriorityFee(ctx, network)
	}

	req := &protocols.BuildRequest{
		Intent:      intent.Intent,
		Params:      intent.Params,
		Payer:       payer,
		Network:     network,
		PriorityFee: priorityFee,
	}
	out, builtBy, err := b.dispatch(ctx, handler, req)
	if err != nil {
		return b.fail(result, intent, err)
	}

	// Handlers either emit instructions for us to assemble or hand back a
	// complete transaction (the aggregator path).
	tx := out.Transaction
	computeLimit := uint64(intent.ComputeBudget)
	if tx == nil {
		if computeLimit == 0 {
			computeLimit = chain.DefaultComputeUnits
		}
		ixs := make([]solana.Instruction, 0, len(out.Instructions)+2)
		ixs = append(ixs, protocols.ComputeUnitLimitInstruction(uint32(computeLimit)))
		if priorityFee > 0 {
			ixs = append(ixs, protocols.ComputeUnitPriceInstruction(priorityFee))
		}
		ixs = append(ixs, out.Instructions...)

		blockhash, err := b.latestBlockhash(ctx, network)
		if err != nil {
			return b.fail(result, intent, err)
		}
		tx, err = solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(payer))
		if err != nil {
			return b.fail(result, intent, fmt.Errorf("assemble transaction: %w", err))
		}
	} else {
		// Pre-built transactions carry their own compute budget; report
		// what will actually execute.
		stampedLimit, stampedPrice := stampedBudget(tx)
		if stampedLimit > 0 {
			computeLimit = stampedLimit
		} else if computeLimit == 0 {
			computeLimit = chain.DefaultComputeUnits
		}
		if stampedPrice > 0 {
			priorityFee = stampedPrice
		}
	}

	// Serialize unsigned, with zeroed signature slots sized to the header
	// so wallets can fill them in.
	if len(tx.Signatures) == 0 {
		tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return b.fail(result, intent, fmt.Errorf("serialize transaction: %w", err))
	}
	result.Transaction = base64.StdEncoding.EncodeToString(raw)

	sigs := uint64(tx.Message.Header.NumRequiredSignatures)
	if sigs == 0 {
		sigs = 1
	}
	feeLamports := sigs*chain.DefaultBaseFeeLamports + ceilDiv(computeLimit*priorityFee, microLamportsPerLamport)

	accounts := make([]string, 0, len(tx.Message.AccountKeys))
	for _, key := range tx.Message.AccountKeys {
		accounts = append(accounts, key.String())
	}
	result.Details = &models.BuildDetails{
		Protocol:         builtBy,
		Intent:           intent.Intent,
		InstructionCount: len(tx.Message.Instructions),
		Accounts:         accounts,
		EstimatedFee:     lamportsToSOL(feeLamports),
		ComputeUnits:     computeLimit,
		PriorityFee:      priorityFee,
	}

	if !intent.SkipSimulation && b.chain != nil {
		sim, err := b.chain.Simulate(ctx, network, tx)
		if err != nil {
			// A node that cannot simulate is not evidence the
			// transaction is bad.
			log.Printf("[Builder] simulation unavailable for %s: %v", result.ID, err)
		} else {
			result.Simulation = sim
			if !sim.Success {
				result.Error = "simulation failed: " + sim.Error
				log.Printf("[Builder] build %s (%s): simulation failed: %s", result.ID, intent.Intent, sim.Error)
				return result
			}
		}
	}

	result.Success = true
	log.Printf("[Builder] built %s (%s) via %s: %d instructions, ~%s SOL",
		result.ID, intent.Intent, builtBy, result.Details.InstructionCount, result.Details.EstimatedFee)
	return result
}

// BuildBatch builds intents in order. A failed intent does not stop the
// batch; its result carries the error in place.
func (b *Builder) BuildBatch(ctx context.Context, intents []*models.BuildIntent) []*models.BuildResult {
	results := make([]*models.BuildResult, len(intents))
	for i, intent := range intents {
		results[i] = b.Build(ctx, intent)
	}
	return results
}

// dispatch routes funnel intents through the aggregator and everything else
// to its own handler. When the aggregator cannot route a venue intent the
// native handler gets a chance before the build fails.
func (b *Builder) dispatch(ctx context.Context, handler protocols.Handler, req *protocols.BuildRequest) (*protocols.BuildOutput, string, error) {
	mode, funnelled := swapFunnel[req.Intent]
	if !funnelled || req.Intent == "swap" {
		out, err := handler.Build(ctx, req)
		return out, handler.Name(), err
	}

	agg, ok := b.registry.ByName("jupiter")
	if !ok {
		out, err := handler.Build(ctx, req)
		return out, handler.Name(), err
	}
	swapReq := &protocols.BuildRequest{
		Intent:      "swap",
		Params:      funnelParams(mode, req.Params),
		Payer:       req.Payer,
		Network:     req.Network,
		PriorityFee: req.PriorityFee,
	}
	out, err := agg.Build(ctx, swapReq)
	if err == nil {
		return out, agg.Name(), nil
	}
	log.Printf("[Builder] aggregator route for %s failed (%v); trying the native venue", req.Intent, err)
	out, nativeErr := handler.Build(ctx, req)
	return out, handler.Name(), nativeErr
}

// funnelParams rewrites venue buy/sell params into the swap shape. Plain
// swaps already carry from/to and pass through untouched.
func funnelParams(mode string, params models.Params) models.Params {
	out := params.Clone()
	if mode == "swap" {
		return out
	}
	token := out.Str("token")
	if token == "" || out.Has("from") || out.Has("to") {
		return out
	}
	delete(out, "token")
	if mode == "sell" {
		out["from"] = token
		out["to"] = chain.WrappedSOLMint.String()
	} else {
		out["from"] = chain.WrappedSOLMint.String()
		out["to"] = token
	}
	return out
}

// stampedBudget reads compute-budget instructions already present in a
// pre-built transaction. Discriminant 2 is SetComputeUnitLimit, 3 is
// SetComputeUnitPrice.
func stampedBudget(tx *solana.Transaction) (limit, price uint64) {
	msg := &tx.Message
	for _, ci := range msg.Instructions {
		if int(ci.ProgramIDIndex) >= len(msg.AccountKeys) {
			continue
		}
		if !msg.AccountKeys[ci.ProgramIDIndex].Equals(chain.ComputeBudgetProgram) || len(ci.Data) == 0 {
			continue
		}
		switch ci.Data[0] {
		case 2:
			if len(ci.Data) >= 5 {
				limit = uint64(binary.LittleEndian.Uint32(ci.Data[1:5]))
			}
		case 3:
			if len(ci.Data) >= 9 {
				price = binary.LittleEndian.Uint64(ci.Data[1:9])
			}
		}
	}
	return limit, price
}

func (b *Builder) network(requested string) string {
	if b.chain != nil {
		return b.chain.ResolveNetwork(requested)
	}
	if requested == "" {
		return chain.NetworkMainnet
	}
	return requested
}

func (b *Builder) latestBlockhash(ctx context.Context, network string) (solana.Hash, error) {
	if b.chain == nil {
		return solana.Hash{}, fmt.Errorf("no RPC connection for network %s", network)
	}
	return b.chain.LatestBlockhash(ctx, network)
}

// currentPriorityFee picks the fee-market median when the caller did not
// set one. The poller cache answers first; direct RPC covers networks the
// poller does not watch.
func (b *Builder) currentPriorityFee(ctx context.Context, network string) uint64 {
	if b.fees != nil {
		if fee := b.fees.MedianFor(network); fee > 0 {
			return fee
		}
	}
	if b.chain != nil {
		return b.chain.MedianPriorityFee(ctx, network)
	}
	return 0
}

func (b *Builder) fail(result *models.BuildResult, intent *models.BuildIntent, err error) *models.BuildResult {
	log.Printf("[Builder] build %s (%s) failed: %v", result.ID, intent.Intent, err)
	result.Error = err.Error()
	return result
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// lamportsToSOL renders an exact 9-decimal SOL string without float drift.
func lamportsToSOL(lamports uint64) string {
	return fmt.Sprintf("%d.%09d", lamports/solana.LAMPORTS_PER_SOL, lamports%solana.LAMPORTS_PER_SOL)
}
