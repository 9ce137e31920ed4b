package models

// BuildResult is the builder's response for one intent.
type BuildResult struct {
	ID          string            `json:"id"` // uuid assigned per build
	Success     bool              `json:"success"`
	Transaction string            `json:"transaction,omitempty"` // base64, serialized without signatures
	Simulation  *SimulationReport `json:"simulation,omitempty"`
	Details     *BuildDetails     `json:"details,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// BuildDetails summarizes what went into a built transaction.
type BuildDetails struct {
	Protocol         string   `json:"protocol"`
	Intent           string   `json:"intent"`
	InstructionCount int      `json:"instructionCount"`
	Accounts         []string `json:"accounts"`     // unique accounts referenced, base58
	EstimatedFee     string   `json:"estimatedFee"` // SOL, 9 fractional digits
	ComputeUnits     uint64   `json:"computeUnits"` // limit stamped on the transaction
	PriorityFee      uint64   `json:"priorityFee"`  // micro-lamports per compute unit
}

// SimulationReport is the dry-run outcome for a built transaction.
type SimulationReport struct {
	Success       bool     `json:"success"`
	Error         string   `json:"error,omitempty"`
	Logs          []string `json:"logs,omitempty"`
	UnitsConsumed uint64   `json:"unitsConsumed"`
}

// FeeEstimate is the pre-build cost estimate for one or more intents.
type FeeEstimate struct {
	ComputeUnits     uint64           `json:"computeUnits"`
	InstructionCount int              `json:"instructionCount"`
	BaseFee          string           `json:"baseFee"`     // SOL
	PriorityFee      string           `json:"priorityFee"` // SOL
	Rent             string           `json:"rent"`        // SOL, nonzero only for account-creation intents
	Total            string           `json:"total"`       // SOL
	PerIntent        []IntentEstimate `json:"perIntent"`
}

// IntentEstimate is the per-intent slice of a FeeEstimate.
type IntentEstimate struct {
	Intent       string `json:"intent"`
	ComputeUnits uint64 `json:"computeUnits"`
}

// DecodedTransaction is the decoder's view of a serialized transaction.
type DecodedTransaction struct {
	Version         string               `json:"version"` // "legacy" or "v0"
	FeePayer        string               `json:"feePayer"`
	RecentBlockhash string               `json:"recentBlockhash"`
	Signatures      int                  `json:"signatures"`
	Instructions    []DecodedInstruction `json:"instructions"`
}

// DecodedInstruction is one instruction of a decoded transaction.
type DecodedInstruction struct {
	ProgramID       string   `json:"programId"`
	ProgramName     string   `json:"programName,omitempty"` // from the well-known-programs table
	Accounts        []string `json:"accounts"`
	DataHex         string   `json:"dataHex"`
	RecognizedVenue string   `json:"recognizedVenue,omitempty"` // registered handler this program maps to
}

// FeeSnapshot is one observation of the network fee market.
type FeeSnapshot struct {
	Network   string `json:"network"`
	Min       uint64 `json:"min"`    // micro-lamports per compute unit
	Median    uint64 `json:"median"` // micro-lamports per compute unit
	P75       uint64 `json:"p75"`    // micro-lamports per compute unit
	Max       uint64 `json:"max"`    // micro-lamports per compute unit
	Samples   int    `json:"samples"`
	UpdatedAt string `json:"updatedAt"` // RFC3339
}
