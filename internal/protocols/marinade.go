package protocols

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"

	"github.com/rawblock/intent-engine/internal/chain"
	"github.com/rawblock/intent-engine/internal/tokens"
	"github.com/rawblock/intent-engine/pkg/models"
)

// Marinade mainnet state accounts. The program has no devnet deployment the
// engine targets, so these are constants rather than lookups.
var (
	marinadeState            = solana.MustPublicKeyFromBase58("8szGkuLTAux9XMgZ2vtY39jVSowEcpBfFfD8hXSEqdGC")
	marinadeMSOLMint         = solana.MustPublicKeyFromBase58("mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So")
	marinadeLiqPoolSOLLeg    = solana.MustPublicKeyFromBase58("UefNb6z6yvArqe4cJHTXCqStRsKmWhGxnZzuHbikP5Q")
	marinadeLiqPoolMSOLLeg   = solana.MustPublicKeyFromBase58("7GgPYjS5Dza89wV6FpZ23kUJRG5vbQ1GM25ezspYFSoE")
	marinadeMSOLLegAuthority = solana.MustPublicKeyFromBase58("EyaSwUkTYk8vukxnJvNTBHia4UCS414mV764696kUCo")
	marinadeReserve          = solana.MustPublicKeyFromBase58("Du3Ysj1wKbxPKkuPPnvzQLQh8oMSVifs3jGZjJWXFmHN")
	marinadeMSOLAuthority    = solana.MustPublicKeyFromBase58("3JLPCS1qM2zRw3Dp6V4hZnYHd4toMNPkNesXdX9tg6KM")
	marinadeTreasuryMSOL     = solana.MustPublicKeyFromBase58("B1aLzaNMeFVAyQ6f3XbbUyKcH2YPHu2fqiEagmiF23VR")
)

// Anchor method discriminators for the marinade-finance program.
var (
	marinadeDepositDisc       = []byte{242, 35, 198, 137, 82, 225, 242, 182}
	marinadeLiquidUnstakeDisc = []byte{30, 30, 119, 240, 191, 227, 12, 16}
)

type marinadeHandler struct {
	chain *chain.Client
}

func NewMarinadeHandler(c *chain.Client) Handler { return &marinadeHandler{chain: c} }

func (h *marinadeHandler) Name() string        { return "marinade" }
func (h *marinadeHandler) Description() string { return "Marinade liquid staking" }

func (h *marinadeHandler) SupportedActions() []string {
	return []string{"marinade-stake", "marinade-unstake"}
}

func (h *marinadeHandler) Validate(intent string, params models.Params) error {
	switch intent {
	case "marinade-stake":
		_, err := requireAmount(params, false)
		return err
	case "marinade-unstake":
		if _, err := requireAmount(params, false); err != nil {
			return err
		}
		if tok := params.Str("token"); tok != "" && !strings.EqualFold(tok, "msol") {
			return fmt.Errorf("marinade unstakes mSOL, got %q", tok)
		}
		return nil
	}
	return fmt.Errorf("unsupported marinade intent %q", intent)
}

func (h *marinadeHandler) Build(ctx context.Context, req *BuildRequest) (*BuildOutput, error) {
	if err := h.Validate(req.Intent, req.Params); err != nil {
		return nil, err
	}
	switch req.Intent {
	case "marinade-stake":
		return h.buildDeposit(ctx, req)
	case "marinade-unstake":
		return h.buildLiquidUnstake(req)
	}
	return nil, fmt.Errorf("unsupported marinade intent %q", req.Intent)
}

// buildDeposit wraps SOL into mSOL. The payer's mSOL token account is
// created on the fly when missing.
func (h *marinadeHandler) buildDeposit(ctx context.Context, req *BuildRequest) (*BuildOutput, error) {
	amount, _ := req.Params.Float("amount")

	msolATA, _, err := solana.FindAssociatedTokenAddress(req.Payer, marinadeMSOLMint)
	if err != nil {
		return nil, fmt.Errorf("derive mSOL token account: %w", err)
	}

	var ixs []solana.Instruction
	if h.needsTokenAccount(ctx, req.Network, msolATA) {
		ixs = append(ixs, associatedtokenaccount.NewCreateInstruction(req.Payer, req.Payer, marinadeMSOLMint).Build())
	}

	data := append([]byte{}, marinadeDepositDisc...)
	data = appendU64(data, solToLamports(amount))

	ixs = append(ixs, solana.NewInstruction(
		chain.MarinadeProgram,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(marinadeState, true, false),
			solana.NewAccountMeta(marinadeMSOLMint, true, false),
			solana.NewAccountMeta(marinadeLiqPoolSOLLeg, true, false),
			solana.NewAccountMeta(marinadeLiqPoolMSOLLeg, true, false),
			solana.NewAccountMeta(marinadeMSOLLegAuthority, false, false),
			solana.NewAccountMeta(marinadeReserve, true, false),
			solana.NewAccountMeta(req.Payer, true, true),
			solana.NewAccountMeta(msolATA, true, false),
			solana.NewAccountMeta(marinadeMSOLAuthority, false, false),
			solana.NewAccountMeta(chain.SystemProgram, false, false),
			solana.NewAccountMeta(chain.TokenProgram, false, false),
		},
		data,
	))
	return &BuildOutput{Instructions: ixs}, nil
}

// buildLiquidUnstake swaps mSOL back to SOL through the liquidity pool,
// skipping the unstake ticket queue.
func (h *marinadeHandler) buildLiquidUnstake(req *BuildRequest) (*BuildOutput, error) {
	amount, _ := req.Params.Float("amount")

	msolATA, _, err := solana.FindAssociatedTokenAddress(req.Payer, marinadeMSOLMint)
	if err != nil {
		return nil, fmt.Errorf("derive mSOL token account: %w", err)
	}

	decimals, ok := tokens.Decimals("MSOL")
	if !ok {
		decimals = 9
	}
	data := append([]byte{}, marinadeLiquidUnstakeDisc...)
	data = appendU64(data, tokenUnits(amount, decimals))

	ix := solana.NewInstruction(
		chain.MarinadeProgram,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(marinadeState, true, false),
			solana.NewAccountMeta(marinadeMSOLMint, true, false),
			solana.NewAccountMeta(marinadeLiqPoolSOLLeg, true, false),
			solana.NewAccountMeta(marinadeLiqPoolMSOLLeg, true, false),
			solana.NewAccountMeta(marinadeTreasuryMSOL, true, false),
			solana.NewAccountMeta(msolATA, true, false),
			solana.NewAccountMeta(req.Payer, false, true),
			solana.NewAccountMeta(req.Payer, true, false),
			solana.NewAccountMeta(chain.SystemProgram, false, false),
			solana.NewAccountMeta(chain.TokenProgram, false, false),
		},
		data,
	)
	return &BuildOutput{Instructions: []solana.Instruction{ix}}, nil
}

func (h *marinadeHandler) needsTokenAccount(ctx context.Context, network string, account solana.PublicKey) bool {
	if h.chain == nil {
		return true
	}
	exists, err := h.chain.AccountExists(ctx, network, account)
	if err != nil {
		log.Printf("[Marinade] account existence check failed for %s: %v", account, err)
		return true
	}
	return !exists
}

func (h *marinadeHandler) RequiredAccounts(intent string, params models.Params, payer solana.PublicKey) []string {
	return []string{payer.String(), marinadeState.String(), marinadeMSOLMint.String()}
}
