package protocols

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rawblock/intent-engine/pkg/models"
)

// raydiumHandler recognizes Raydium intents. Swaps against Raydium pools are
// routed through the aggregator by the builder, so Build here only fires for
// direct calls and reports the intent as not yet buildable.
type raydiumHandler struct{}

func NewRaydiumHandler() Handler { return &raydiumHandler{} }

func (h *raydiumHandler) Name() string        { return "raydium" }
func (h *raydiumHandler) Description() string { return "Raydium AMM and CLMM pools" }

func (h *raydiumHandler) SupportedActions() []string {
	return []string{"raydium-swap", "raydium-add-liquidity", "raydium-remove-liquidity"}
}

func (h *raydiumHandler) Validate(intent string, params models.Params) error {
	switch intent {
	case "raydium-swap":
		if _, err := requireAmount(params, true); err != nil {
			return err
		}
		if params.Str("token") == "" && params.Str("from") == "" {
			return fmt.Errorf("missing required param: token")
		}
		return nil
	case "raydium-add-liquidity":
		if params.Str("pool") == "" && params.Str("token") == "" {
			return fmt.Errorf("adding liquidity needs a pool or token address")
		}
		return nil
	case "raydium-remove-liquidity":
		if params.Str("pool") == "" && params.Str("position") == "" {
			return fmt.Errorf("removing liquidity needs a pool or position address")
		}
		if pct, ok := params.Float("percent"); ok && (pct <= 0 || pct > 100) {
			return fmt.Errorf("percent must be between 0 and 100, got %v", pct)
		}
		return nil
	}
	return fmt.Errorf("unsupported raydium intent %q", intent)
}

func (h *raydiumHandler) Build(ctx context.Context, req *BuildRequest) (*BuildOutput, error) {
	if err := h.Validate(req.Intent, req.Params); err != nil {
		return nil, err
	}
	return nil, notImplemented(req.Intent)
}

func (h *raydiumHandler) RequiredAccounts(intent string, params models.Params, payer solana.PublicKey) []string {
	accounts := []string{payer.String()}
	if pool := params.Str("pool"); pool != "" {
		accounts = append(accounts, pool)
	}
	return accounts
}
