package models

import "strconv"

// NaturalIntent is a user-supplied natural-language build request.
type NaturalIntent struct {
	Prompt         string `json:"prompt"`
	Payer          string `json:"payer"`                   // base58 wallet that pays fees and signs
	Network        string `json:"network,omitempty"`       // "mainnet" or "devnet"; empty uses the default
	SkipSimulation bool   `json:"skipSimulation,omitempty"`
	PriorityFee    uint64 `json:"priorityFee,omitempty"`   // micro-lamports per compute unit
	ComputeBudget  uint32 `json:"computeBudget,omitempty"` // compute-unit limit override
}

// ParsedIntent is the parser's output for a single prompt segment.
// Protocol is always a concrete protocol tag by the time a ParsedIntent
// leaves the parser; internal resolution markers never escape.
type ParsedIntent struct {
	Protocol   string  `json:"protocol"`
	Action     string  `json:"action"`
	Params     Params  `json:"params"`
	Confidence float64 `json:"confidence"` // 0.9 direct, 0.8/0.75 learned, 0.7 llm, 0.5 fallback, 0.95 resolved
}

// BuildIntent is the builder's input: a canonical intent key plus parameters.
type BuildIntent struct {
	Intent         string `json:"intent"` // canonical action key recognized by exactly one handler
	Params         Params `json:"params"`
	Payer          string `json:"payer"`
	Network        string `json:"network,omitempty"`
	SkipSimulation bool   `json:"skipSimulation,omitempty"`
	PriorityFee    uint64 `json:"priorityFee,omitempty"`   // micro-lamports per compute unit
	ComputeBudget  uint32 `json:"computeBudget,omitempty"` // compute-unit limit override
}

// LearnedPattern is one persisted prompt → intent mapping discovered via the
// LLM fallback. Records are append-only and keyed by the normalized prompt.
type LearnedPattern struct {
	Prompt     string       `json:"prompt"`
	Normalized string       `json:"normalized"`
	Result     ParsedIntent `json:"result"`
}

// AmountAll is the sentinel meaning "the holder's full balance". Only sell
// and swap style actions accept it; validators for transfers, staking and
// lending reject it.
const AmountAll float64 = -1

// Params carries the free-form parameters extracted for an intent.
type Params map[string]any

// Str returns the string form of a parameter, or "" when absent.
func (p Params) Str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// Float returns a numeric parameter. JSON decoding yields float64; extractor
// and LLM paths may store ints or numeric strings.
func (p Params) Float(key string) (float64, bool) {
	if p == nil {
		return 0, false
	}
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Has reports whether a parameter is present.
func (p Params) Has(key string) bool {
	if p == nil {
		return false
	}
	_, ok := p[key]
	return ok
}

// Clone returns a shallow copy, safe for per-request mutation of shared
// learned-store results.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
