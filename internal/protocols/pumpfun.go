package protocols

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rawblock/intent-engine/internal/chain"
	"github.com/rawblock/intent-engine/pkg/models"
)

// pumpFunHandler recognizes pump.fun intents. Buys and sells are routed
// through the aggregator by the builder (pump.fun pools are indexed there),
// so Build only fires on direct calls. Token launches validate their
// metadata but are not yet buildable: the bonding-curve create instruction
// needs metadata upload the engine does not carry.
type pumpFunHandler struct{}

func NewPumpFunHandler() Handler { return &pumpFunHandler{} }

func (h *pumpFunHandler) Name() string        { return "pumpfun" }
func (h *pumpFunHandler) Description() string { return "pump.fun bonding-curve tokens" }

func (h *pumpFunHandler) SupportedActions() []string {
	return []string{"pumpfun-buy", "pumpfun-sell", "pumpfun-create"}
}

func (h *pumpFunHandler) Validate(intent string, params models.Params) error {
	switch intent {
	case "pumpfun-buy":
		// Buy amounts are denominated in SOL, so the full-balance
		// sentinel makes no sense here.
		if _, err := requireAmount(params, false); err != nil {
			return err
		}
		if params.Str("token") == "" {
			return fmt.Errorf("missing required param: token")
		}
	case "pumpfun-sell":
		if _, err := requireAmount(params, true); err != nil {
			return err
		}
		if params.Str("token") == "" {
			return fmt.Errorf("missing required param: token")
		}
	case "pumpfun-create":
		if params.Str("name") == "" {
			return fmt.Errorf("missing required param: name")
		}
		symbol := params.Str("symbol")
		if symbol == "" {
			return fmt.Errorf("missing required param: symbol")
		}
		if len(symbol) > 10 {
			return fmt.Errorf("symbol %q is too long: 10 characters max", symbol)
		}
	default:
		return fmt.Errorf("unsupported pumpfun intent %q", intent)
	}
	return nil
}

func (h *pumpFunHandler) Build(ctx context.Context, req *BuildRequest) (*BuildOutput, error) {
	if err := h.Validate(req.Intent, req.Params); err != nil {
		return nil, err
	}
	return nil, notImplemented(req.Intent)
}

func (h *pumpFunHandler) RequiredAccounts(intent string, params models.Params, payer solana.PublicKey) []string {
	accounts := []string{payer.String(), chain.PumpFunProgram.String()}
	if token := params.Str("token"); token != "" {
		accounts = append(accounts, token)
	}
	return accounts
}
