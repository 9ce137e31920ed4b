package protocols

import (
	"context"
	"fmt"
	"log"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/rawblock/intent-engine/internal/chain"
	"github.com/rawblock/intent-engine/pkg/models"
)

type splTokenHandler struct {
	chain *chain.Client
}

func NewSPLTokenHandler(c *chain.Client) Handler { return &splTokenHandler{chain: c} }

func (h *splTokenHandler) Name() string { return "spl-token" }

func (h *splTokenHandler) Description() string {
	return "SPL token transfers and associated token accounts"
}

func (h *splTokenHandler) SupportedActions() []string {
	return []string{"spl-transfer", "create-token-account"}
}

func (h *splTokenHandler) Validate(intent string, params models.Params) error {
	switch intent {
	case "spl-transfer":
		if _, err := requireAmount(params, false); err != nil {
			return err
		}
		if _, err := requireMint(params, "token"); err != nil {
			return err
		}
		_, err := requirePubkey(params, "to")
		return err
	case "create-token-account":
		_, err := requireMint(params, "token")
		return err
	}
	return fmt.Errorf("unsupported spl-token intent %q", intent)
}

func (h *splTokenHandler) Build(ctx context.Context, req *BuildRequest) (*BuildOutput, error) {
	switch req.Intent {
	case "spl-transfer":
		return h.buildTransfer(ctx, req)
	case "create-token-account":
		return h.buildCreateAccount(req)
	}
	return nil, fmt.Errorf("unsupported spl-token intent %q", req.Intent)
}

func (h *splTokenHandler) buildTransfer(ctx context.Context, req *BuildRequest) (*BuildOutput, error) {
	amount, err := requireAmount(req.Params, false)
	if err != nil {
		return nil, err
	}
	mint, err := requireMint(req.Params, "token")
	if err != nil {
		return nil, err
	}
	recipient, err := requirePubkey(req.Params, "to")
	if err != nil {
		return nil, err
	}

	decimals, err := mintDecimals(ctx, h.chain, req.Network, mint)
	if err != nil {
		return nil, err
	}

	source, _, err := solana.FindAssociatedTokenAddress(req.Payer, mint)
	if err != nil {
		return nil, fmt.Errorf("derive source token account: %w", err)
	}
	dest, _, err := solana.FindAssociatedTokenAddress(recipient, mint)
	if err != nil {
		return nil, fmt.Errorf("derive destination token account: %w", err)
	}

	var ixs []solana.Instruction
	if h.needsTokenAccount(ctx, req.Network, dest) {
		ixs = append(ixs, associatedtokenaccount.NewCreateInstruction(req.Payer, recipient, mint).Build())
	}
	ixs = append(ixs, token.NewTransferCheckedInstruction(
		tokenUnits(amount, decimals),
		decimals,
		source,
		mint,
		dest,
		req.Payer,
		nil,
	).Build())
	return &BuildOutput{Instructions: ixs}, nil
}

func (h *splTokenHandler) buildCreateAccount(req *BuildRequest) (*BuildOutput, error) {
	mint, err := requireMint(req.Params, "token")
	if err != nil {
		return nil, err
	}
	owner := req.Payer
	if forStr := req.Params.Str("owner"); forStr != "" {
		pk, err := requirePubkey(req.Params, "owner")
		if err != nil {
			return nil, err
		}
		owner = pk
	}
	ix := associatedtokenaccount.NewCreateInstruction(req.Payer, owner, mint).Build()
	return &BuildOutput{Instructions: []solana.Instruction{ix}}, nil
}

// needsTokenAccount errs on the side of creating: when the existence check
// cannot run (no RPC, lookup failure) the create instruction is included and
// simulation reports the conflict if there is one.
func (h *splTokenHandler) needsTokenAccount(ctx context.Context, network string, account solana.PublicKey) bool {
	if h.chain == nil {
		return true
	}
	exists, err := h.chain.AccountExists(ctx, network, account)
	if err != nil {
		log.Printf("[SPLToken] account existence check failed for %s: %v", account, err)
		return true
	}
	return !exists
}

func (h *splTokenHandler) RequiredAccounts(intent string, params models.Params, payer solana.PublicKey) []string {
	accounts := []string{payer.String()}
	if to := params.Str("to"); to != "" {
		accounts = append(accounts, to)
	}
	if tok := params.Str("token"); tok != "" {
		accounts = append(accounts, tok)
	}
	return accounts
}
