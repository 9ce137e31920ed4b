package models

// TokenInfo is the venue resolver's answer for a mint lookup.
type TokenInfo struct {
	Mint         string   `json:"mint"`
	Symbol       string   `json:"symbol"`
	Name         string   `json:"name"`
	PrimaryVenue string   `json:"primaryVenue"` // alias-normalized venue id, e.g. "raydium"
	PrimaryPool  string   `json:"primaryPool"`  // pool address of the deepest pair
	AllVenues    []string `json:"allVenues"`    // distinct venues hosting the token, deepest first
	PriceUSD     float64  `json:"priceUsd"`
	LiquidityUSD float64  `json:"liquidityUsd"` // of the primary pair
}

// PairInfo is the venue resolver's answer for a pool-address lookup.
type PairInfo struct {
	Protocol     string  `json:"protocol"` // alias-normalized venue id
	Pool         string  `json:"pool"`
	BaseMint     string  `json:"baseMint"`
	QuoteMint    string  `json:"quoteMint"`
	BaseSymbol   string  `json:"baseSymbol"`
	QuoteSymbol  string  `json:"quoteSymbol"`
	PriceUSD     float64 `json:"priceUsd"`
	LiquidityUSD float64 `json:"liquidityUsd"`
}
