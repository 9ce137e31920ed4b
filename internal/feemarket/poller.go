package feemarket

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/rawblock/intent-engine/internal/chain"
	"github.com/rawblock/intent-engine/pkg/models"
)

const (
	defaultInterval = 10 * time.Second

	// Rolling window of per-tick medians kept for smoothing. At the
	// default interval this is about 50 minutes of samples; the hourly
	// cleanup resets it before it grows past that.
	maxWindow = 300
)

// Broadcaster pushes fee ticks to stream subscribers. The websocket hub
// implements it.
type Broadcaster interface {
	Broadcast(message []byte)
}

// Poller samples the priority-fee market on an interval and caches the
// latest snapshot per network. The builder reads the cache instead of
// hitting the RPC node on every build.
type Poller struct {
	chain    *chain.Client
	hub      Broadcaster
	networks []string
	interval time.Duration

	mu     sync.RWMutex
	latest map[string]models.FeeSnapshot
	window map[string][]uint64
}

// streamPayload is the fee tick sent to stream subscribers.
type streamPayload struct {
	Type string `json:"type"`
	models.FeeSnapshot
}

func NewPoller(c *chain.Client, hub Broadcaster, networks ...string) *Poller {
	return &Poller{
		chain:    c,
		hub:      hub,
		networks: networks,
		interval: defaultInterval,
		latest:   make(map[string]models.FeeSnapshot),
		window:   make(map[string][]uint64),
	}
}

func (p *Poller) Run(ctx context.Context) {
	log.Printf("Starting Fee Market Poller (%v interval, networks: %v)...", p.interval, p.networks)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Reset the smoothing windows every hour so a long-gone fee spike
	// cannot keep dragging estimates around.
	cleanupTicker := time.NewTicker(1 * time.Hour)
	defer cleanupTicker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("Stopping Fee Market Poller...")
			return
		case <-cleanupTicker.C:
			p.mu.Lock()
			p.window = make(map[string][]uint64)
			p.mu.Unlock()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	for _, network := range p.networks {
		samples, err := p.chain.RecentPriorityFees(ctx, network)
		if err != nil {
			log.Printf("[FeeMarket] Error sampling %s fees: %v", network, err)
			continue
		}
		if len(samples) == 0 {
			continue
		}

		snap := snapshotFrom(network, samples)

		p.mu.Lock()
		p.latest[network] = snap
		win := append(p.window[network], snap.Median)
		if len(win) > maxWindow {
			win = win[len(win)-maxWindow:]
		}
		p.window[network] = win
		p.mu.Unlock()

		if p.hub != nil {
			payload, _ := json.Marshal(streamPayload{Type: "fees", FeeSnapshot: snap})
			p.hub.Broadcast(payload)
		}
	}
}

// Snapshot returns the latest observation for a network.
func (p *Poller) Snapshot(network string) (models.FeeSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap, ok := p.latest[network]
	return snap, ok
}

// MedianFor returns a smoothed priority-fee estimate in micro-lamports per
// compute unit. Zero means the poller has no data for that network.
func (p *Poller) MedianFor(network string) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return chain.Median(p.window[network])
}

func snapshotFrom(network string, samples []uint64) models.FeeSnapshot {
	sorted := make([]uint64, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	p75 := (n * 3) / 4
	if p75 >= n {
		p75 = n - 1
	}
	return models.FeeSnapshot{
		Network:   network,
		Min:       sorted[0],
		Median:    chain.Median(sorted),
		P75:       sorted[p75],
		Max:       sorted[n-1],
		Samples:   n,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}
