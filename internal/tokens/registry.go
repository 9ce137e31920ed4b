// Package tokens maps human token symbols onto canonical mint addresses.
// The table is process-wide immutable state; unknown inputs pass through
// untouched so callers can hand the registry either a symbol or a mint.
package tokens

import (
	"strings"

	"github.com/mr-tron/base58"
)

// wellKnown is the shipped symbol table. Contents are part of the external
// contract: SOL plus the major stables, DeFi tokens and memes.
var wellKnown = map[string]string{
	"SOL":  "So11111111111111111111111111111111111111112",
	"USDC": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	"USDT": "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
	"RAY":  "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R",
	"SRM":  "SRMuApVNdxXokk5GT7XD5cUUgXMBCoAz2LHeuAoKWRt",
	"FTT":  "AGFEad2et2ZJif9jaGpdMixQqvW5i81aBdvKe7PHNfz3",
	"MNGO": "MangoCzJ36AjZyKwVj3VnYU4GTonjfVEnJmvvWaxLac",
	"MSOL": "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So",
	"ORCA": "orcaEKTdK7LKz57vaAYr9QeNsVEPfiu6QeMU1kektZE",
	"GMT":  "7i5KKsX2weiTkry7jA4ZwSuXGhs5eJBEjY8vVxR4pfRx",
	"BONK": "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263",
	"JUP":  "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN",
	"WIF":  "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm",
	"PYTH": "HZ1JovNiVvGrGNiiYvEozEVgZ58xaU3RKwX8eACQBCt3",
	"JTO":  "jtojtomepa8beP8AuQc6eXt5FriJwfFMwQx2v2f9mCL",
	"RNDR": "rndrizKT3MK1iimdxRdWabcF7Zg7AR5T4nud4EkHBof",
	"HNT":  "hntyVP6YFm1Hg25TN9WGLqM12b8TQmcknKrdu1oxWux",
	"MNDE": "MNDEFzGvMt87ueuHvVU9VcTqsAP5b3fTGPsHuuPA5ey",
}

// decimalsBySymbol records the decimal count of every shipped mint so the
// common paths never need an RPC round trip.
var decimalsBySymbol = map[string]uint8{
	"SOL": 9, "USDC": 6, "USDT": 6, "RAY": 6, "SRM": 6, "FTT": 6,
	"MNGO": 6, "MSOL": 9, "ORCA": 6, "GMT": 9, "BONK": 5, "JUP": 6,
	"WIF": 6, "PYTH": 6, "JTO": 9, "RNDR": 8, "HNT": 8, "MNDE": 9,
}

// mintToSymbol is the reverse index, built once at init.
var mintToSymbol = func() map[string]string {
	out := make(map[string]string, len(wellKnown))
	for sym, mint := range wellKnown {
		out[mint] = sym
	}
	return out
}()

// Resolve substitutes a symbol with its canonical mint. Lookup is
// case-insensitive; anything not in the table is returned verbatim (assumed
// to already be a mint address). Resolve is idempotent.
func Resolve(token string) string {
	if token == "" {
		return ""
	}
	if mint, ok := wellKnown[strings.ToUpper(token)]; ok {
		return mint
	}
	return token
}

// Symbol returns the shipped symbol for a mint, or "" when unknown.
func Symbol(mint string) string {
	return mintToSymbol[mint]
}

// Decimals returns the decimal count for a symbol or shipped mint.
func Decimals(token string) (uint8, bool) {
	if d, ok := decimalsBySymbol[strings.ToUpper(token)]; ok {
		return d, true
	}
	if sym, ok := mintToSymbol[token]; ok {
		return decimalsBySymbol[sym], true
	}
	return 0, false
}

// IsKnownSymbol reports whether the registry ships a mapping for the symbol.
func IsKnownSymbol(token string) bool {
	_, ok := wellKnown[strings.ToUpper(token)]
	return ok
}

// LooksLikeMint reports whether s has the shape of a mint or wallet address:
// 32 to 44 characters of base58 decoding to a 32-byte key.
func LooksLikeMint(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return false
	}
	return len(raw) == 32
}
