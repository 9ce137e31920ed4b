package protocols

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/rawblock/intent-engine/internal/chain"
	"github.com/rawblock/intent-engine/pkg/models"
)

// System program instruction indices used by the hand-packed builders.
const (
	sysIxCreateAccountWithSeed = 3
)

type systemHandler struct {
	chain *chain.Client
}

func NewSystemHandler(c *chain.Client) Handler { return &systemHandler{chain: c} }

func (h *systemHandler) Name() string        { return "system" }
func (h *systemHandler) Description() string { return "Native SOL transfers and account creation" }

func (h *systemHandler) SupportedActions() []string {
	return []string{"transfer", "create-account"}
}

func (h *systemHandler) Validate(intent string, params models.Params) error {
	switch intent {
	case "transfer":
		if _, err := requireAmount(params, false); err != nil {
			return err
		}
		_, err := requirePubkey(params, "to")
		return err
	case "create-account":
		if space, ok := params.Float("space"); ok && space < 0 {
			return fmt.Errorf("space must not be negative")
		}
		return nil
	}
	return fmt.Errorf("unsupported system intent %q", intent)
}

func (h *systemHandler) Build(ctx context.Context, req *BuildRequest) (*BuildOutput, error) {
	switch req.Intent {
	case "transfer":
		return h.buildTransfer(req)
	case "create-account":
		return h.buildCreateAccount(ctx, req)
	}
	return nil, fmt.Errorf("unsupported system intent %q", req.Intent)
}

func (h *systemHandler) buildTransfer(req *BuildRequest) (*BuildOutput, error) {
	amount, err := requireAmount(req.Params, false)
	if err != nil {
		return nil, err
	}
	to, err := requirePubkey(req.Params, "to")
	if err != nil {
		return nil, err
	}
	ix := system.NewTransferInstruction(solToLamports(amount), req.Payer, to).Build()
	return &BuildOutput{Instructions: []solana.Instruction{ix}}, nil
}

// buildCreateAccount derives the new account from the payer with a seed, so
// the payer stays the only signer.
func (h *systemHandler) buildCreateAccount(ctx context.Context, req *BuildRequest) (*BuildOutput, error) {
	if err := h.Validate(req.Intent, req.Params); err != nil {
		return nil, err
	}
	var space uint64
	if s, ok := req.Params.Float("space"); ok {
		space = uint64(s)
	}

	seed := accountSeed("acct")
	newAccount, err := solana.CreateWithSeed(req.Payer, seed, chain.SystemProgram)
	if err != nil {
		return nil, fmt.Errorf("derive account address: %w", err)
	}

	lamports := uint64(chain.DefaultRentLamports)
	if h.chain != nil {
		lamports = h.chain.MinimumRentExemption(ctx, req.Network, space)
	}

	ix := newCreateAccountWithSeed(req.Payer, newAccount, req.Payer, seed, lamports, space, chain.SystemProgram)
	return &BuildOutput{Instructions: []solana.Instruction{ix}}, nil
}

func (h *systemHandler) RequiredAccounts(intent string, params models.Params, payer solana.PublicKey) []string {
	accounts := []string{payer.String()}
	if to := params.Str("to"); to != "" {
		accounts = append(accounts, to)
	}
	return accounts
}

// accountSeed builds a short unique seed; seed length is capped at 32 by the
// runtime.
func accountSeed(prefix string) string {
	return fmt.Sprintf("%s:%d", prefix, time.Now().UnixNano()%1_000_000_000_000)
}

// newCreateAccountWithSeed packs SystemInstruction::CreateAccountWithSeed.
// Layout: u32 index, base pubkey, seed as length-prefixed bytes, u64
// lamports, u64 space, owner pubkey.
func newCreateAccountWithSeed(funder, newAccount, base solana.PublicKey, seed string, lamports, space uint64, owner solana.PublicKey) solana.Instruction {
	data := appendU32(nil, sysIxCreateAccountWithSeed)
	data = append(data, base[:]...)
	data = appendRustString(data, seed)
	data = appendU64(data, lamports)
	data = appendU64(data, space)
	data = append(data, owner[:]...)

	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(funder, true, true),
		solana.NewAccountMeta(newAccount, true, false),
	}
	if !base.Equals(funder) {
		metas = append(metas, solana.NewAccountMeta(base, false, true))
	}
	return solana.NewInstruction(chain.SystemProgram, metas, data)
}
