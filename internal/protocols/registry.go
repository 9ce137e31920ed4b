package protocols

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/rawblock/intent-engine/internal/chain"
	"github.com/rawblock/intent-engine/internal/tokens"
	"github.com/rawblock/intent-engine/pkg/models"
)

// ErrNotImplemented marks intents the engine recognizes and validates but
// cannot yet turn into instructions. Callers get a clean error instead of a
// half-built transaction.
var ErrNotImplemented = errors.New("on-chain build for this intent is not implemented yet")

// BuildRequest carries everything a handler needs to emit instructions.
type BuildRequest struct {
	Intent      string
	Params      models.Params
	Payer       solana.PublicKey
	Network     string
	PriorityFee uint64 // micro-lamports per CU, 0 when unset
}

// BuildOutput is what a handler produces. Most handlers fill Instructions;
// venues that hand back a fully assembled transaction (the aggregator) set
// Transaction instead and leave Instructions empty.
type BuildOutput struct {
	Instructions []solana.Instruction
	Transaction  *solana.Transaction
}

// Handler builds transactions for one protocol.
type Handler interface {
	Name() string
	Description() string
	SupportedActions() []string
	Validate(intent string, params models.Params) error
	Build(ctx context.Context, req *BuildRequest) (*BuildOutput, error)
	RequiredAccounts(intent string, params models.Params, payer solana.PublicKey) []string
}

// Registry resolves intent keys and protocol names to handlers.
type Registry struct {
	byName   map[string]Handler
	byIntent map[string]Handler
	order    []string
}

// Deps is the shared wiring handed to handlers that need it.
type Deps struct {
	Chain      *chain.Client
	JupiterURL string
}

// NewRegistry registers the full handler set.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{
		byName:   make(map[string]Handler),
		byIntent: make(map[string]Handler),
	}
	r.Register(NewSystemHandler(deps.Chain))
	r.Register(NewSPLTokenHandler(deps.Chain))
	r.Register(NewToken2022Handler(deps.Chain))
	r.Register(NewMemoHandler())
	r.Register(NewJitoHandler())
	r.Register(NewStakeHandler(deps.Chain))
	r.Register(NewMarinadeHandler(deps.Chain))
	r.Register(NewJupiterHandler(deps.Chain, deps.JupiterURL))
	r.Register(NewRaydiumHandler())
	r.Register(NewOrcaHandler())
	r.Register(NewMeteoraHandler())
	r.Register(NewPumpFunHandler())
	r.Register(NewKaminoHandler())
	r.Register(NewMarginfiHandler())
	r.Register(NewSolendHandler())
	return r
}

// Register indexes a handler under its name and every supported action key.
func (r *Registry) Register(h Handler) {
	r.byName[h.Name()] = h
	r.order = append(r.order, h.Name())
	for _, action := range h.SupportedActions() {
		r.byIntent[action] = h
	}
}

func (r *Registry) ByName(name string) (Handler, bool) {
	h, ok := r.byName[strings.ToLower(name)]
	return h, ok
}

func (r *Registry) ByIntent(intent string) (Handler, bool) {
	h, ok := r.byIntent[intent]
	return h, ok
}

// Names lists registered protocols in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Intents lists every supported intent key, sorted.
func (r *Registry) Intents() []string {
	out := make([]string, 0, len(r.byIntent))
	for key := range r.byIntent {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// intentKeyOverrides covers the keys that do not follow the
// protocol-action naming rule, mostly for historical API compatibility.
var intentKeyOverrides = map[string]string{
	"system/transfer":         "transfer",
	"system/createAccount":    "create-account",
	"spl-token/transfer":      "spl-transfer",
	"spl-token/createAccount": "create-token-account",
	"token-2022/transfer":     "token2022-transfer",
	"memo/memo":               "memo",
	"jito/tip":                "jito-tip",
	"jupiter/swap":            "swap",
	"jupiter/buy":             "swap",
	"jupiter/sell":            "swap",
	"raydium/buy":             "swap",
	"raydium/sell":            "swap",
	"orca/buy":                "swap",
	"orca/sell":               "swap",
	"meteora/buy":             "swap",
	"meteora/sell":            "swap",
	"marinade/stake":          "marinade-stake",
	"marinade/unstake":        "marinade-unstake",
	"stake/stake":             "native-stake",
	"stake/delegate":          "native-stake",
	"stake/deactivate":        "deactivate-stake",
	"stake/withdraw":          "withdraw-stake",
}

// MapIntentKey translates a (protocol, action) pair from the parser into the
// intent key handlers are registered under.
func MapIntentKey(protocol, action string) string {
	if key, ok := intentKeyOverrides[protocol+"/"+action]; ok {
		return key
	}
	return protocol + "-" + kebab(action)
}

// kebab converts camelCase action names: addLiquidity -> add-liquidity.
func kebab(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// Shared validation and conversion helpers
// ─────────────────────────────────────────────────────────────────────────────

const lamportsPerSOL = 1_000_000_000

func solToLamports(amount float64) uint64 {
	return uint64(math.Round(amount * lamportsPerSOL))
}

func tokenUnits(amount float64, decimals uint8) uint64 {
	return uint64(math.Round(amount * math.Pow10(int(decimals))))
}

// requireAmount returns the amount param, enforcing positivity. The
// full-balance sentinel passes only where allowAll is set (swaps and sells).
func requireAmount(params models.Params, allowAll bool) (float64, error) {
	amt, ok := params.Float("amount")
	if !ok {
		return 0, fmt.Errorf("missing required param: amount")
	}
	if amt == models.AmountAll {
		if allowAll {
			return amt, nil
		}
		return 0, fmt.Errorf("full-balance amount is only supported for swaps and sells")
	}
	if amt <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %v", amt)
	}
	return amt, nil
}

// requirePubkey parses a base58 account param.
func requirePubkey(params models.Params, key string) (solana.PublicKey, error) {
	raw := params.Str(key)
	if raw == "" {
		return solana.PublicKey{}, fmt.Errorf("missing required param: %s", key)
	}
	pk, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("param %s is not a valid address: %q", key, raw)
	}
	return pk, nil
}

// requireMint parses a mint param. A leftover symbol means resolution never
// happened, which gets its own message.
func requireMint(params models.Params, key string) (solana.PublicKey, error) {
	raw := params.Str(key)
	if raw == "" {
		return solana.PublicKey{}, fmt.Errorf("missing required param: %s", key)
	}
	if !tokens.LooksLikeMint(raw) {
		return solana.PublicKey{}, fmt.Errorf("unknown token %q: not a known symbol and not a mint address", raw)
	}
	pk, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("param %s is not a valid mint: %q", key, raw)
	}
	return pk, nil
}

// mintDecimals resolves a mint's decimals from the static table first and
// the chain second.
func mintDecimals(ctx context.Context, c *chain.Client, network string, mint solana.PublicKey) (uint8, error) {
	if sym := tokens.Symbol(mint.String()); sym != "" {
		if dec, ok := tokens.Decimals(sym); ok {
			return dec, nil
		}
	}
	if c == nil {
		return 0, fmt.Errorf("decimals unknown for mint %s", mint)
	}
	return c.TokenDecimals(ctx, network, mint)
}

func notImplemented(intent string) error {
	return fmt.Errorf("%s: %w", intent, ErrNotImplemented)
}
