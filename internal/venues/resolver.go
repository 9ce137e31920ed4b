// Package venues resolves which trading venue hosts the deepest liquidity
// for a token or pool, via an external market-data service. Lookups are
// TTL-cached, including negative results, so repeated prompts for the same
// token never hammer the service.
package venues

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rawblock/intent-engine/pkg/models"
)

const (
	targetChain    = "solana"
	lookupTimeout  = 5 * time.Second
	defaultCacheTTL = 60 * time.Second
)

// venueAliases folds market-data venue identifiers onto the engine's
// canonical protocol names.
var venueAliases = map[string]string{
	"raydium-clmm": "raydium",
	"whirlpool":    "orca",
	"meteora-dlmm": "meteora",
	"pump-fun":     "pumpfun",
}

// NormalizeVenue maps a market-data dex id onto a canonical venue name.
func NormalizeVenue(dexID string) string {
	if canonical, ok := venueAliases[dexID]; ok {
		return canonical
	}
	return dexID
}

type tokenEntry struct {
	info    *models.TokenInfo // nil records a miss
	expires time.Time
}

type pairEntry struct {
	info    *models.PairInfo // nil records a miss
	expires time.Time
}

// Resolver queries the market-data service and caches both hits and misses.
type Resolver struct {
	baseURL string
	http    *http.Client
	ttl     time.Duration

	mu         sync.Mutex
	tokenCache map[string]tokenEntry
	pairCache  map[string]pairEntry
}

// NewResolver builds a resolver against the given market-data base URL
// (e.g. https://api.dexscreener.com/latest/dex).
func NewResolver(baseURL string) *Resolver {
	return &Resolver{
		baseURL:    baseURL,
		http:       &http.Client{Timeout: lookupTimeout},
		ttl:        defaultCacheTTL,
		tokenCache: make(map[string]tokenEntry),
		pairCache:  make(map[string]pairEntry),
	}
}

// market-data wire types (subset the resolver reads)
type mdToken struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Name    string `json:"name"`
}

type mdLiquidity struct {
	USD float64 `json:"usd"`
}

type mdPair struct {
	ChainID     string       `json:"chainId"`
	DexID       string       `json:"dexId"`
	PairAddress string       `json:"pairAddress"`
	BaseToken   mdToken      `json:"baseToken"`
	QuoteToken  mdToken      `json:"quoteToken"`
	PriceUSD    string       `json:"priceUsd"`
	Liquidity   *mdLiquidity `json:"liquidity"`
}

func (p mdPair) liquidityUSD() float64 {
	if p.Liquidity == nil {
		return 0
	}
	return p.Liquidity.USD
}

func (p mdPair) priceUSD() float64 {
	f, err := strconv.ParseFloat(p.PriceUSD, 64)
	if err != nil {
		return 0
	}
	return f
}

// LookupToken returns venue info for a mint, or nil when the service knows
// nothing about it (or is unreachable). Outcome is cached either way.
func (r *Resolver) LookupToken(mint string) *models.TokenInfo {
	r.mu.Lock()
	if entry, ok := r.tokenCache[mint]; ok && time.Now().Before(entry.expires) {
		r.mu.Unlock()
		return entry.info
	}
	delete(r.tokenCache, mint)
	r.mu.Unlock()

	info := r.fetchToken(mint)

	r.mu.Lock()
	r.tokenCache[mint] = tokenEntry{info: info, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()
	return info
}

func (r *Resolver) fetchToken(mint string) *models.TokenInfo {
	var payload struct {
		Pairs []mdPair `json:"pairs"`
	}
	if err := r.getJSON(fmt.Sprintf("%s/tokens/%s", r.baseURL, mint), &payload); err != nil {
		log.Printf("[VenueResolver] token lookup failed for %s: %v", mint, err)
		return nil
	}

	// Keep same-chain pairs only, deepest liquidity first.
	pairs := make([]mdPair, 0, len(payload.Pairs))
	for _, p := range payload.Pairs {
		if p.ChainID == targetChain {
			pairs = append(pairs, p)
		}
	}
	if len(pairs) == 0 {
		return nil
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].liquidityUSD() > pairs[j].liquidityUSD()
	})

	primary := pairs[0]
	seen := make(map[string]bool)
	allVenues := make([]string, 0, len(pairs))
	for _, p := range pairs {
		venue := NormalizeVenue(p.DexID)
		if !seen[venue] {
			seen[venue] = true
			allVenues = append(allVenues, venue)
		}
	}

	return &models.TokenInfo{
		Mint:         mint,
		Symbol:       primary.BaseToken.Symbol,
		Name:         primary.BaseToken.Name,
		PrimaryVenue: NormalizeVenue(primary.DexID),
		PrimaryPool:  primary.PairAddress,
		AllVenues:    allVenues,
		PriceUSD:     primary.priceUSD(),
		LiquidityUSD: primary.liquidityUSD(),
	}
}

// LookupPair returns venue info for a pool address, or nil on a miss.
// Outcome is cached either way.
func (r *Resolver) LookupPair(pairAddr string) *models.PairInfo {
	r.mu.Lock()
	if entry, ok := r.pairCache[pairAddr]; ok && time.Now().Before(entry.expires) {
		r.mu.Unlock()
		return entry.info
	}
	delete(r.pairCache, pairAddr)
	r.mu.Unlock()

	info := r.fetchPair(pairAddr)

	r.mu.Lock()
	r.pairCache[pairAddr] = pairEntry{info: info, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()
	return info
}

func (r *Resolver) fetchPair(pairAddr string) *models.PairInfo {
	var payload struct {
		Pair  *mdPair  `json:"pair"`
		Pairs []mdPair `json:"pairs"`
	}
	url := fmt.Sprintf("%s/pairs/%s/%s", r.baseURL, targetChain, pairAddr)
	if err := r.getJSON(url, &payload); err != nil {
		log.Printf("[VenueResolver] pair lookup failed for %s: %v", pairAddr, err)
		return nil
	}

	pair := payload.Pair
	if pair == nil && len(payload.Pairs) > 0 {
		pair = &payload.Pairs[0]
	}
	if pair == nil || pair.ChainID != targetChain {
		return nil
	}

	return &models.PairInfo{
		Protocol:     NormalizeVenue(pair.DexID),
		Pool:         pair.PairAddress,
		BaseMint:     pair.BaseToken.Address,
		QuoteMint:    pair.QuoteToken.Address,
		BaseSymbol:   pair.BaseToken.Symbol,
		QuoteSymbol:  pair.QuoteToken.Symbol,
		PriceUSD:     pair.priceUSD(),
		LiquidityUSD: pair.liquidityUSD(),
	}
}

func (r *Resolver) getJSON(url string, out any) error {
	resp, err := r.http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// CacheSizes reports current cache entry counts for the health endpoint.
func (r *Resolver) CacheSizes() (tokens, pairs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokenCache), len(r.pairCache)
}
