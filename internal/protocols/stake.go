package protocols

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rawblock/intent-engine/internal/chain"
	"github.com/rawblock/intent-engine/pkg/models"
)

// Stake program instruction indices (u32 discriminants).
const (
	stakeIxInitialize = 0
	stakeIxDelegate   = 2
	stakeIxWithdraw   = 4
	stakeIxDeactivate = 5
)

// stakeAccountSpace is the serialized size of a stake account's state.
const stakeAccountSpace = 200

// stakeHandler drives native staking. New stake accounts are derived from
// the payer with a seed, which keeps the payer the only signer: a fresh
// keypair would need a second signature the engine cannot provide.
type stakeHandler struct {
	chain *chain.Client
}

func NewStakeHandler(c *chain.Client) Handler { return &stakeHandler{chain: c} }

func (h *stakeHandler) Name() string        { return "stake" }
func (h *stakeHandler) Description() string { return "Native stake accounts and delegation" }

func (h *stakeHandler) SupportedActions() []string {
	return []string{"native-stake", "deactivate-stake", "withdraw-stake"}
}

func (h *stakeHandler) Validate(intent string, params models.Params) error {
	switch intent {
	case "native-stake":
		if _, err := requireAmount(params, false); err != nil {
			return err
		}
		if _, err := requirePubkey(params, "validator"); err != nil {
			return fmt.Errorf("native staking needs a validator vote account: %w", err)
		}
		return nil
	case "deactivate-stake":
		_, err := requirePubkey(params, "stakeAccount")
		return err
	case "withdraw-stake":
		if _, err := requireAmount(params, false); err != nil {
			return err
		}
		_, err := requirePubkey(params, "stakeAccount")
		return err
	}
	return fmt.Errorf("unsupported stake intent %q", intent)
}

func (h *stakeHandler) Build(ctx context.Context, req *BuildRequest) (*BuildOutput, error) {
	if err := h.Validate(req.Intent, req.Params); err != nil {
		return nil, err
	}
	switch req.Intent {
	case "native-stake":
		return h.buildDelegate(ctx, req)
	case "deactivate-stake":
		return h.buildDeactivate(req)
	case "withdraw-stake":
		return h.buildWithdraw(req)
	}
	return nil, fmt.Errorf("unsupported stake intent %q", req.Intent)
}

// buildDelegate creates, initializes and delegates a stake account in one
// transaction.
func (h *stakeHandler) buildDelegate(ctx context.Context, req *BuildRequest) (*BuildOutput, error) {
	amount, _ := req.Params.Float("amount")
	vote, _ := requirePubkey(req.Params, "validator")

	seed := accountSeed("stake")
	stakeAccount, err := solana.CreateWithSeed(req.Payer, seed, chain.StakeProgram)
	if err != nil {
		return nil, fmt.Errorf("derive stake account: %w", err)
	}

	rent := uint64(chain.DefaultRentLamports)
	if h.chain != nil {
		rent = h.chain.MinimumRentExemption(ctx, req.Network, stakeAccountSpace)
	}
	lamports := rent + solToLamports(amount)

	create := newCreateAccountWithSeed(req.Payer, stakeAccount, req.Payer, seed, lamports, stakeAccountSpace, chain.StakeProgram)

	// Initialize: authorized staker and withdrawer are both the payer, no
	// lockup.
	initData := appendU32(nil, stakeIxInitialize)
	initData = append(initData, req.Payer[:]...)
	initData = append(initData, req.Payer[:]...)
	initData = appendI64(initData, 0)
	initData = appendU64(initData, 0)
	var custodian solana.PublicKey
	initData = append(initData, custodian[:]...)

	initialize := solana.NewInstruction(
		chain.StakeProgram,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(stakeAccount, true, false),
			solana.NewAccountMeta(chain.SysvarRent, false, false),
		},
		initData,
	)

	delegate := solana.NewInstruction(
		chain.StakeProgram,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(stakeAccount, true, false),
			solana.NewAccountMeta(vote, false, false),
			solana.NewAccountMeta(chain.SysvarClock, false, false),
			solana.NewAccountMeta(chain.SysvarStakeHistory, false, false),
			solana.NewAccountMeta(chain.StakeConfigAccount, false, false),
			solana.NewAccountMeta(req.Payer, false, true),
		},
		appendU32(nil, stakeIxDelegate),
	)

	return &BuildOutput{Instructions: []solana.Instruction{create, initialize, delegate}}, nil
}

func (h *stakeHandler) buildDeactivate(req *BuildRequest) (*BuildOutput, error) {
	stakeAccount, _ := requirePubkey(req.Params, "stakeAccount")

	ix := solana.NewInstruction(
		chain.StakeProgram,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(stakeAccount, true, false),
			solana.NewAccountMeta(chain.SysvarClock, false, false),
			solana.NewAccountMeta(req.Payer, false, true),
		},
		appendU32(nil, stakeIxDeactivate),
	)
	return &BuildOutput{Instructions: []solana.Instruction{ix}}, nil
}

func (h *stakeHandler) buildWithdraw(req *BuildRequest) (*BuildOutput, error) {
	amount, _ := req.Params.Float("amount")
	stakeAccount, _ := requirePubkey(req.Params, "stakeAccount")

	data := appendU32(nil, stakeIxWithdraw)
	data = appendU64(data, solToLamports(amount))

	ix := solana.NewInstruction(
		chain.StakeProgram,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(stakeAccount, true, false),
			solana.NewAccountMeta(req.Payer, true, false),
			solana.NewAccountMeta(chain.SysvarClock, false, false),
			solana.NewAccountMeta(chain.SysvarStakeHistory, false, false),
			solana.NewAccountMeta(req.Payer, false, true),
		},
		data,
	)
	return &BuildOutput{Instructions: []solana.Instruction{ix}}, nil
}

func (h *stakeHandler) RequiredAccounts(intent string, params models.Params, payer solana.PublicKey) []string {
	accounts := []string{payer.String()}
	if v := params.Str("validator"); v != "" {
		accounts = append(accounts, v)
	}
	if s := params.Str("stakeAccount"); s != "" {
		accounts = append(accounts, s)
	}
	return accounts
}
