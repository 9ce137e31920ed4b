package protocols

import (
	"context"
	"fmt"
	"log"

	"github.com/gagliardetto/solana-go"

	"github.com/rawblock/intent-engine/internal/chain"
	"github.com/rawblock/intent-engine/pkg/models"
)

// tokenIxTransferChecked is the SPL token TransferChecked discriminant,
// shared by the legacy and extension programs.
const tokenIxTransferChecked = 12

// token2022Handler moves extension-program tokens. No generated builders
// exist for the extension program, so instructions are packed by hand with
// the same layouts the legacy program uses.
type token2022Handler struct {
	chain *chain.Client
}

func NewToken2022Handler(c *chain.Client) Handler { return &token2022Handler{chain: c} }

func (h *token2022Handler) Name() string        { return "token-2022" }
func (h *token2022Handler) Description() string { return "Token-2022 extension program transfers" }

func (h *token2022Handler) SupportedActions() []string {
	return []string{"token2022-transfer"}
}

func (h *token2022Handler) Validate(intent string, params models.Params) error {
	if intent != "token2022-transfer" {
		return fmt.Errorf("unsupported token-2022 intent %q", intent)
	}
	if _, err := requireAmount(params, false); err != nil {
		return err
	}
	if _, err := requireMint(params, "token"); err != nil {
		return err
	}
	_, err := requirePubkey(params, "to")
	return err
}

func (h *token2022Handler) Build(ctx context.Context, req *BuildRequest) (*BuildOutput, error) {
	if err := h.Validate(req.Intent, req.Params); err != nil {
		return nil, err
	}
	amount, _ := req.Params.Float("amount")
	mint, _ := requireMint(req.Params, "token")
	recipient, _ := requirePubkey(req.Params, "to")

	decimals, err := mintDecimals(ctx, h.chain, req.Network, mint)
	if err != nil {
		return nil, err
	}

	source, err := chain.AssociatedTokenAddress2022(req.Payer, mint)
	if err != nil {
		return nil, fmt.Errorf("derive source token account: %w", err)
	}
	dest, err := chain.AssociatedTokenAddress2022(recipient, mint)
	if err != nil {
		return nil, fmt.Errorf("derive destination token account: %w", err)
	}

	var ixs []solana.Instruction
	if h.needsTokenAccount(ctx, req.Network, dest) {
		ixs = append(ixs, newCreateATA2022(req.Payer, recipient, mint, dest))
	}

	data := []byte{tokenIxTransferChecked}
	data = appendU64(data, tokenUnits(amount, decimals))
	data = append(data, decimals)

	ixs = append(ixs, solana.NewInstruction(
		chain.Token2022Program,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(source, true, false),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(dest, true, false),
			solana.NewAccountMeta(req.Payer, false, true),
		},
		data,
	))
	return &BuildOutput{Instructions: ixs}, nil
}

func (h *token2022Handler) needsTokenAccount(ctx context.Context, network string, account solana.PublicKey) bool {
	if h.chain == nil {
		return true
	}
	exists, err := h.chain.AccountExists(ctx, network, account)
	if err != nil {
		log.Printf("[Token2022] account existence check failed for %s: %v", account, err)
		return true
	}
	return !exists
}

// newCreateATA2022 packs the associated-token-account create instruction
// with the extension program in the token program slot.
func newCreateATA2022(payer, owner, mint, ata solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(payer, true, true),
			solana.NewAccountMeta(ata, true, false),
			solana.NewAccountMeta(owner, false, false),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(chain.SystemProgram, false, false),
			solana.NewAccountMeta(chain.Token2022Program, false, false),
		},
		[]byte{},
	)
}

func (h *token2022Handler) RequiredAccounts(intent string, params models.Params, payer solana.PublicKey) []string {
	accounts := []string{payer.String()}
	if to := params.Str("to"); to != "" {
		accounts = append(accounts, to)
	}
	if tok := params.Str("token"); tok != "" {
		accounts = append(accounts, tok)
	}
	return accounts
}
