package protocols

import (
	"github.com/gagliardetto/solana-go"

	"github.com/rawblock/intent-engine/internal/chain"
)

// Compute-budget program discriminants. The program takes no accounts; the
// whole request rides in the instruction data.
const (
	computeBudgetSetLimit byte = 2
	computeBudgetSetPrice byte = 3
)

// ComputeUnitLimitInstruction caps the compute units a transaction may burn.
func ComputeUnitLimitInstruction(units uint32) solana.Instruction {
	data := appendU32([]byte{computeBudgetSetLimit}, units)
	return solana.NewInstruction(chain.ComputeBudgetProgram, solana.AccountMetaSlice{}, data)
}

// ComputeUnitPriceInstruction sets the priority fee in micro-lamports per
// compute unit.
func ComputeUnitPriceInstruction(microLamports uint64) solana.Instruction {
	data := appendU64([]byte{computeBudgetSetPrice}, microLamports)
	return solana.NewInstruction(chain.ComputeBudgetProgram, solana.AccountMetaSlice{}, data)
}
