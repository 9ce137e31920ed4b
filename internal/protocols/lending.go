package protocols

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rawblock/intent-engine/internal/chain"
	"github.com/rawblock/intent-engine/pkg/models"
)

// lendingHandler covers the money-market venues. All three venues share a
// param shape (amount + token) across supply, borrow, repay and withdraw,
// and none of the four is buildable on-chain yet: each venue needs
// per-market reserve and obligation account derivation the engine does not
// carry. Validation still runs so callers get a param error before the
// not-implemented one.
type lendingHandler struct {
	name    string
	desc    string
	program solana.PublicKey
}

func NewKaminoHandler() Handler {
	return &lendingHandler{name: "kamino", desc: "Kamino Lend money markets", program: chain.KaminoLendProgram}
}

func NewMarginfiHandler() Handler {
	return &lendingHandler{name: "marginfi", desc: "Marginfi v2 lending pools", program: chain.MarginfiV2Program}
}

func NewSolendHandler() Handler {
	return &lendingHandler{name: "solend", desc: "Solend lending reserves", program: chain.SolendProgram}
}

func (h *lendingHandler) Name() string        { return h.name }
func (h *lendingHandler) Description() string { return h.desc }

func (h *lendingHandler) SupportedActions() []string {
	return []string{
		h.name + "-supply",
		h.name + "-borrow",
		h.name + "-repay",
		h.name + "-withdraw",
	}
}

func (h *lendingHandler) Validate(intent string, params models.Params) error {
	supported := false
	for _, action := range h.SupportedActions() {
		if action == intent {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("unsupported %s intent %q", h.name, intent)
	}
	// Positions are sized explicitly; the full-balance sentinel is not
	// accepted for any lending action.
	if _, err := requireAmount(params, false); err != nil {
		return err
	}
	if params.Str("token") == "" {
		return fmt.Errorf("missing required param: token")
	}
	return nil
}

func (h *lendingHandler) Build(ctx context.Context, req *BuildRequest) (*BuildOutput, error) {
	if err := h.Validate(req.Intent, req.Params); err != nil {
		return nil, err
	}
	return nil, notImplemented(req.Intent)
}

func (h *lendingHandler) RequiredAccounts(intent string, params models.Params, payer solana.PublicKey) []string {
	accounts := []string{payer.String(), h.program.String()}
	if token := params.Str("token"); token != "" {
		accounts = append(accounts, token)
	}
	return accounts
}
