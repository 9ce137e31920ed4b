package builder

import (
	"context"
	"strings"

	"github.com/rawblock/intent-engine/internal/chain"
	"github.com/rawblock/intent-engine/pkg/models"
)

// Compute-unit costs per intent, from observed mainnet executions. The
// estimator prices intents without building them, so these are starting
// points, not measurements of the caller's exact route.
var intentComputeUnits = map[string]uint64{
	"transfer":             450,
	"create-account":       3_000,
	"spl-transfer":         2_500,
	"create-token-account": 25_000,
	"token2022-transfer":   3_000,
	"memo":                 450,
	"jito-tip":             1_000,
	"swap":                 400_000,
	"raydium-swap":         200_000,
	"orca-swap":            200_000,
	"meteora-swap":         200_000,
	"pumpfun-buy":          200_000,
	"pumpfun-sell":         200_000,
	"pumpfun-create":       150_000,
	"native-stake":         10_000,
	"deactivate-stake":     3_000,
	"withdraw-stake":       3_000,
	"marinade-stake":       90_000,
	"marinade-unstake":     95_000,
}

// Instruction counts per intent, used for the envelope overhead term.
var intentInstructionCounts = map[string]int{
	"transfer":             1,
	"create-account":       1,
	"spl-transfer":         1,
	"create-token-account": 1,
	"token2022-transfer":   1,
	"memo":                 1,
	"jito-tip":             1,
	"swap":                 4,
	"raydium-swap":         4,
	"orca-swap":            4,
	"meteora-swap":         4,
	"pumpfun-buy":          4,
	"pumpfun-sell":         4,
	"native-stake":         3,
	"deactivate-stake":     1,
	"withdraw-stake":       1,
	"marinade-stake":       2,
	"marinade-unstake":     2,
}

const (
	defaultIntentUnits      = 50_000
	defaultInstructionGuess = 2
	createAccountUnits      = 2_000
	largeSwapThreshold      = 1_000
	txOverheadUnits         = 1_500
	unitsPerInstruction     = 200

	// SPL token account size, the usual rent target for creation intents.
	tokenAccountBytes = 165
)

// Estimate prices a list of intents without building them. Only the rent
// lookup can touch the chain; everything else is table-driven so the
// endpoint stays cheap.
func (b *Builder) Estimate(ctx context.Context, network string, intents []*models.BuildIntent) *models.FeeEstimate {
	est := &models.FeeEstimate{PerIntent: make([]models.IntentEstimate, 0, len(intents))}

	var totalUnits uint64
	var ixCount int
	var rentLamports uint64
	var priorityFee uint64

	for _, intent := range intents {
		units := estimateUnits(intent)
		totalUnits += units
		ixCount += instructionGuess(intent.Intent)
		if strings.Contains(intent.Intent, "create") {
			rentLamports += b.rentFor(ctx, network)
		}
		if intent.PriorityFee > priorityFee {
			priorityFee = intent.PriorityFee
		}
		est.PerIntent = append(est.PerIntent, models.IntentEstimate{
			Intent:       intent.Intent,
			ComputeUnits: units,
		})
	}

	// Envelope: message overhead plus the two compute-budget instructions
	// every built transaction carries.
	totalUnits += txOverheadUnits + unitsPerInstruction*uint64(ixCount)
	ixCount += 2

	if priorityFee == 0 && b.fees != nil {
		priorityFee = b.fees.MedianFor(network)
	}

	base := uint64(chain.DefaultBaseFeeLamports)
	priorityLamports := ceilDiv(totalUnits*priorityFee, microLamportsPerLamport)

	est.ComputeUnits = totalUnits
	est.InstructionCount = ixCount
	est.BaseFee = lamportsToSOL(base)
	est.PriorityFee = lamportsToSOL(priorityLamports)
	est.Rent = lamportsToSOL(rentLamports)
	est.Total = lamportsToSOL(base + priorityLamports + rentLamports)
	return est
}

func estimateUnits(intent *models.BuildIntent) uint64 {
	units, ok := intentComputeUnits[intent.Intent]
	if !ok {
		units = defaultIntentUnits
	}
	if _, swap := swapFunnel[intent.Intent]; swap {
		// Big swaps tend to cross more pools.
		if amt, ok := intent.Params.Float("amount"); ok && amt > largeSwapThreshold {
			units = units * 12 / 10
		}
	}
	if strings.Contains(intent.Intent, "create") {
		units += createAccountUnits
	}
	return units
}

func instructionGuess(intent string) int {
	if n, ok := intentInstructionCounts[intent]; ok {
		return n
	}
	return defaultInstructionGuess
}

func (b *Builder) rentFor(ctx context.Context, network string) uint64 {
	if b.chain == nil {
		return chain.DefaultRentLamports
	}
	return b.chain.MinimumRentExemption(ctx, network, tokenAccountBytes)
}
