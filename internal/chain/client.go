package chain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rawblock/intent-engine/pkg/models"
)

// Network identifiers accepted by the engine.
const (
	NetworkMainnet = "mainnet"
	NetworkDevnet  = "devnet"
)

// Conservative defaults used when the RPC node cannot be reached. The
// engine degrades rather than fails on chain lookups (base fee, compute
// limit and rent fall back to these values with a warning).
const (
	DefaultBaseFeeLamports = 5_000
	DefaultComputeUnits    = 200_000
	DefaultRentLamports    = 890_880
	rpcCallTimeout         = 10 * time.Second
)

// Config selects the RPC endpoints per network. When HeliusKey is set the
// mainnet endpoint is swapped for the keyed provider URL.
type Config struct {
	MainnetRPC     string
	DevnetRPC      string
	HeliusKey      string
	DefaultNetwork string // "mainnet" or "devnet"
}

// Client wraps one JSON-RPC connection per network. Connections are built
// lazily on first use and shared afterwards.
type Client struct {
	cfg Config

	mu    sync.Mutex
	conns map[string]*rpc.Client
}

// NewClient validates the configuration and prepares the lazy connection map.
func NewClient(cfg Config) (*Client, error) {
	if cfg.MainnetRPC == "" {
		cfg.MainnetRPC = "https://api.mainnet-beta.solana.com"
	}
	if cfg.DevnetRPC == "" {
		cfg.DevnetRPC = "https://api.devnet.solana.com"
	}
	if cfg.HeliusKey != "" {
		cfg.MainnetRPC = "https://mainnet.helius-rpc.com/?api-key=" + cfg.HeliusKey
	}
	switch cfg.DefaultNetwork {
	case "":
		cfg.DefaultNetwork = NetworkMainnet
	case NetworkMainnet, NetworkDevnet:
	default:
		return nil, fmt.Errorf("unknown default network %q", cfg.DefaultNetwork)
	}
	return &Client{cfg: cfg, conns: make(map[string]*rpc.Client)}, nil
}

// ResolveNetwork maps a request-supplied network name onto a supported
// cluster, falling back to the configured default.
func (c *Client) ResolveNetwork(requested string) string {
	switch requested {
	case NetworkMainnet, NetworkDevnet:
		return requested
	case "":
		return c.cfg.DefaultNetwork
	default:
		log.Printf("[Chain] Warning: unknown network %q, using %s", requested, c.cfg.DefaultNetwork)
		return c.cfg.DefaultNetwork
	}
}

// Endpoint returns the RPC URL in use for a network.
func (c *Client) Endpoint(network string) string {
	if c.ResolveNetwork(network) == NetworkDevnet {
		return c.cfg.DevnetRPC
	}
	return c.cfg.MainnetRPC
}

func (c *Client) conn(network string) *rpc.Client {
	network = c.ResolveNetwork(network)
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[network]; ok {
		return conn
	}
	conn := rpc.New(c.Endpoint(network))
	c.conns[network] = conn
	return conn
}

// LatestBlockhash fetches the recency token every built transaction must
// carry. Finalized commitment keeps the hash valid for the full ~60s window.
func (c *Client) LatestBlockhash(ctx context.Context, network string) (solana.Hash, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	out, err := c.conn(network).GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("getLatestBlockhash: %w", err)
	}
	return out.Value.Blockhash, nil
}

// Simulate dry-runs a transaction against current chain state. The report is
// returned even when the program errors; only transport failures return err.
// ReplaceRecentBlockhash tolerates pre-built transactions (aggregator blobs)
// whose recency token is already stale.
func (c *Client) Simulate(ctx context.Context, network string, tx *solana.Transaction) (*models.SimulationReport, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	out, err := c.conn(network).SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:              false,
		ReplaceRecentBlockhash: true,
		Commitment:             rpc.CommitmentProcessed,
	})
	if err != nil {
		return nil, fmt.Errorf("simulateTransaction: %w", err)
	}

	report := &models.SimulationReport{Success: true}
	if out != nil && out.Value != nil {
		report.Logs = out.Value.Logs
		if out.Value.UnitsConsumed != nil {
			report.UnitsConsumed = *out.Value.UnitsConsumed
		}
		if out.Value.Err != nil {
			report.Success = false
			report.Error = fmt.Sprintf("%v", out.Value.Err)
		}
	}
	return report, nil
}

// RecentPriorityFees returns the raw micro-lamport samples reported by the
// node for recent slots.
func (c *Client) RecentPriorityFees(ctx context.Context, network string) ([]uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	out, err := c.conn(network).GetRecentPrioritizationFees(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("getRecentPrioritizationFees: %w", err)
	}
	fees := make([]uint64, 0, len(out))
	for _, f := range out {
		fees = append(fees, f.PrioritizationFee)
	}
	return fees, nil
}

// MedianPriorityFee estimates the current going rate in micro-lamports per
// compute unit. Returns 0 when the node gives nothing usable; callers treat
// 0 as "no priority fee".
func (c *Client) MedianPriorityFee(ctx context.Context, network string) uint64 {
	fees, err := c.RecentPriorityFees(ctx, network)
	if err != nil {
		log.Printf("[Chain] Warning: priority fee lookup failed (%v), using 0", err)
		return 0
	}
	return Median(fees)
}

// Median computes the midpoint of a sample set. Zero samples yield zero.
func Median(fees []uint64) uint64 {
	if len(fees) == 0 {
		return 0
	}
	sorted := make([]uint64, len(fees))
	copy(sorted, fees)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// MinimumRentExemption returns the lamports an account of dataLen bytes must
// hold. RPC failure falls back to the documented conservative default.
func (c *Client) MinimumRentExemption(ctx context.Context, network string, dataLen uint64) uint64 {
	ctx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	lamports, err := c.conn(network).GetMinimumBalanceForRentExemption(ctx, dataLen, rpc.CommitmentFinalized)
	if err != nil {
		log.Printf("[Chain] Warning: rent lookup failed (%v), using %d lamports", err, DefaultRentLamports)
		return DefaultRentLamports
	}
	return lamports
}

// TokenDecimals resolves a mint's decimal count from its supply record.
func (c *Client) TokenDecimals(ctx context.Context, network string, mint solana.PublicKey) (uint8, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	out, err := c.conn(network).GetTokenSupply(ctx, mint, rpc.CommitmentFinalized)
	if err != nil {
		return 0, fmt.Errorf("getTokenSupply %s: %w", mint, err)
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("getTokenSupply %s: empty result", mint)
	}
	return out.Value.Decimals, nil
}

// TokenBalance reads the holder's associated-token-account balance for a
// mint, in base units. Used to expand the "all" amount sentinel.
func (c *Client) TokenBalance(ctx context.Context, network string, owner, mint solana.PublicKey) (uint64, uint8, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, 0, fmt.Errorf("derive ata: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	out, err := c.conn(network).GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, 0, fmt.Errorf("getTokenAccountBalance %s: %w", ata, err)
	}
	if out == nil || out.Value == nil {
		return 0, 0, fmt.Errorf("getTokenAccountBalance %s: empty result", ata)
	}
	amount, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse token amount %q: %w", out.Value.Amount, err)
	}
	return amount, out.Value.Decimals, nil
}

// Balance reads a wallet's lamport balance. Used to expand "all" for SOL.
func (c *Client) Balance(ctx context.Context, network string, wallet solana.PublicKey) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	out, err := c.conn(network).GetBalance(ctx, wallet, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("getBalance %s: %w", wallet, err)
	}
	return out.Value, nil
}

// AccountExists reports whether an account has been created on chain.
// Handlers use it to decide whether a token account must be created first.
func (c *Client) AccountExists(ctx context.Context, network string, account solana.PublicKey) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	out, err := c.conn(network).GetAccountInfo(ctx, account)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("getAccountInfo %s: %w", account, err)
	}
	return out != nil && out.Value != nil, nil
}

// Health pings the node; used by the health endpoint.
func (c *Client) Health(ctx context.Context, network string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	out, err := c.conn(network).GetHealth(ctx)
	if err != nil {
		return err
	}
	if out != rpc.HealthOk {
		return fmt.Errorf("node reports %q", out)
	}
	return nil
}
