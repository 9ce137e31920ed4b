package chain

import "github.com/gagliardetto/solana-go"

// ──────────────────────────────────────────────────────────────────
// Well-Known Program Table
//
// Program ids the engine either invokes directly (system, token, memo,
// compute budget, stake, marinade) or recognizes while decoding
// (venue programs). The table contents are part of the external
// contract: decoder output labels come from here.
// ──────────────────────────────────────────────────────────────────

var (
	SystemProgram        = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")
	TokenProgram         = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	Token2022Program     = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	AssociatedTokenProg  = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	MemoProgram          = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
	ComputeBudgetProgram = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")
	StakeProgram         = solana.MustPublicKeyFromBase58("Stake11111111111111111111111111111111111111")
	StakeConfigAccount   = solana.MustPublicKeyFromBase58("StakeConfig11111111111111111111111111111111")

	SysvarClock        = solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111")
	SysvarRent         = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
	SysvarStakeHistory = solana.MustPublicKeyFromBase58("SysvarStakeHistory1111111111111111111111111")

	JupiterV6Program   = solana.MustPublicKeyFromBase58("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4")
	RaydiumAMMV4       = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	RaydiumCLMM        = solana.MustPublicKeyFromBase58("CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK")
	OrcaWhirlpool      = solana.MustPublicKeyFromBase58("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc")
	MeteoraDLMM        = solana.MustPublicKeyFromBase58("LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo")
	PumpFunProgram     = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	MarinadeProgram    = solana.MustPublicKeyFromBase58("MarBmsSgKXdrN1egZf5sqe1TMai9K1rChYNDJgjq7aD")
	KaminoLendProgram  = solana.MustPublicKeyFromBase58("KLend2g3cP87fffoy8q1mQqGKjrxjC8boSyAYavgmjD")
	MarginfiV2Program  = solana.MustPublicKeyFromBase58("MFv2hWf31Z9kbCa1snEPYctwafyhdvnV7FZnsebVacA")
	SolendProgram      = solana.MustPublicKeyFromBase58("So1endDq2YkqhipRh3WViPa8hdiSpxWy6z3Z6tMCpAo")
)

// WrappedSOLMint is the wrapped native mint; "SOL" resolves to it.
var WrappedSOLMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

// programLabels maps base58 program ids to display names for the decoder.
var programLabels = map[string]string{
	SystemProgram.String():        "System Program",
	TokenProgram.String():         "Token Program",
	Token2022Program.String():     "Token-2022 Program",
	AssociatedTokenProg.String():  "Associated Token Account Program",
	MemoProgram.String():          "Memo Program",
	ComputeBudgetProgram.String(): "Compute Budget Program",
	StakeProgram.String():         "Stake Program",
	JupiterV6Program.String():     "Jupiter Aggregator V6",
	RaydiumAMMV4.String():         "Raydium AMM V4",
	RaydiumCLMM.String():          "Raydium CLMM",
	OrcaWhirlpool.String():        "Orca Whirlpool",
	MeteoraDLMM.String():          "Meteora DLMM",
	PumpFunProgram.String():       "Pump.fun Bonding Curve",
	MarinadeProgram.String():      "Marinade Liquid Staking",
	KaminoLendProgram.String():    "Kamino Lending",
	MarginfiV2Program.String():    "Marginfi V2",
	SolendProgram.String():        "Solend",
}

// ProgramLabel returns the display name for a program id, or "" when the
// program is not in the well-known table.
func ProgramLabel(id string) string {
	return programLabels[id]
}

// AssociatedTokenAddress2022 derives the ATA for a token-2022 mint. The
// stock helper bakes the legacy token program into its seeds, so extension
// mints need their own derivation.
func AssociatedTokenAddress2022(wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{wallet[:], Token2022Program[:], mint[:]},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	return addr, err
}
