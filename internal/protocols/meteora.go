package protocols

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rawblock/intent-engine/pkg/models"
)

type meteoraHandler struct{}

func NewMeteoraHandler() Handler { return &meteoraHandler{} }

func (h *meteoraHandler) Name() string        { return "meteora" }
func (h *meteoraHandler) Description() string { return "Meteora DLMM pools" }

func (h *meteoraHandler) SupportedActions() []string {
	return []string{"meteora-swap", "meteora-add-liquidity", "meteora-remove-liquidity"}
}

func (h *meteoraHandler) Validate(intent string, params models.Params) error {
	switch intent {
	case "meteora-swap":
		if _, err := requireAmount(params, true); err != nil {
			return err
		}
		if params.Str("token") == "" && params.Str("from") == "" {
			return fmt.Errorf("missing required param: token")
		}
		return nil
	case "meteora-add-liquidity":
		// Either a resolved pool or an explicit two-sided deposit.
		if params.Str("pool") != "" {
			return nil
		}
		if params.Str("tokenA") == "" || params.Str("tokenB") == "" {
			return fmt.Errorf("adding liquidity needs both pair tokens or a pool address")
		}
		if _, ok := params.Float("amountA"); !ok {
			return fmt.Errorf("missing required param: amountA")
		}
		if _, ok := params.Float("amountB"); !ok {
			return fmt.Errorf("missing required param: amountB")
		}
		return nil
	case "meteora-remove-liquidity":
		if params.Str("position") == "" && params.Str("pool") == "" {
			return fmt.Errorf("removing liquidity needs a position or pool address")
		}
		if pct, ok := params.Float("percent"); ok && (pct <= 0 || pct > 100) {
			return fmt.Errorf("percent must be between 0 and 100, got %v", pct)
		}
		return nil
	}
	return fmt.Errorf("unsupported meteora intent %q", intent)
}

func (h *meteoraHandler) Build(ctx context.Context, req *BuildRequest) (*BuildOutput, error) {
	if err := h.Validate(req.Intent, req.Params); err != nil {
		return nil, err
	}
	return nil, notImplemented(req.Intent)
}

func (h *meteoraHandler) RequiredAccounts(intent string, params models.Params, payer solana.PublicKey) []string {
	accounts := []string{payer.String()}
	for _, key := range []string{"pool", "position"} {
		if v := params.Str(key); v != "" {
			accounts = append(accounts, v)
		}
	}
	return accounts
}
