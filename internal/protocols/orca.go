package protocols

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rawblock/intent-engine/pkg/models"
)

type orcaHandler struct{}

func NewOrcaHandler() Handler { return &orcaHandler{} }

func (h *orcaHandler) Name() string        { return "orca" }
func (h *orcaHandler) Description() string { return "Orca Whirlpool concentrated liquidity" }

func (h *orcaHandler) SupportedActions() []string {
	return []string{"orca-swap", "orca-add-liquidity", "orca-remove-liquidity", "orca-open-position", "orca-close-position"}
}

func (h *orcaHandler) Validate(intent string, params models.Params) error {
	switch intent {
	case "orca-swap":
		if _, err := requireAmount(params, true); err != nil {
			return err
		}
		if params.Str("token") == "" && params.Str("from") == "" {
			return fmt.Errorf("missing required param: token")
		}
		return nil
	case "orca-add-liquidity":
		if _, err := requireAmount(params, false); err != nil {
			return err
		}
		if params.Str("token") == "" && params.Str("pool") == "" {
			return fmt.Errorf("missing required param: token")
		}
		return nil
	case "orca-remove-liquidity":
		if params.Str("position") == "" && params.Str("pool") == "" {
			return fmt.Errorf("removing liquidity needs a position or pool address")
		}
		return nil
	case "orca-open-position":
		if params.Str("tokenA") == "" || params.Str("tokenB") == "" {
			return fmt.Errorf("opening a position needs both pair tokens")
		}
		return nil
	case "orca-close-position":
		_, err := requirePubkey(params, "position")
		return err
	}
	return fmt.Errorf("unsupported orca intent %q", intent)
}

func (h *orcaHandler) Build(ctx context.Context, req *BuildRequest) (*BuildOutput, error) {
	if err := h.Validate(req.Intent, req.Params); err != nil {
		return nil, err
	}
	return nil, notImplemented(req.Intent)
}

func (h *orcaHandler) RequiredAccounts(intent string, params models.Params, payer solana.PublicKey) []string {
	accounts := []string{payer.String()}
	for _, key := range []string{"pool", "position"} {
		if v := params.Str(key); v != "" {
			accounts = append(accounts, v)
		}
	}
	return accounts
}
