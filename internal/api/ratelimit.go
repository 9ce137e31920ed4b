package api

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────────
// Per-IP Token Bucket Rate Limiter
//
// Uses stdlib only — no external dependency.
//
// Each IP gets its own bucket sized from RATE_LIMIT_MAX_REQUESTS tokens
// refilling over RATE_LIMIT_WINDOW_MS. When the bucket is empty the request
// receives HTTP 429 with a Retry-After header indicating when to try again.
//
// A background goroutine cleans up buckets that have been idle for more than
// cleanupIdleDuration to prevent unbounded memory growth from transient IPs.
// ──────────────────────────────────────────────────────────────────────

const (
	cleanupIdleDuration = 10 * time.Minute

	defaultRateWindow      = time.Minute
	defaultRateMaxRequests = 30
)

type ipBucket struct {
	tokens   float64
	lastSeen time.Time
	mu       sync.Mutex
}

// RateLimiter holds per-IP state.
type RateLimiter struct {
	rate    float64 // tokens added per second
	burst   float64 // max bucket capacity
	window  time.Duration
	max     int
	mu      sync.Mutex
	buckets map[string]*ipBucket
}

// NewRateLimiter creates a limiter allowing maxRequests per window per IP,
// with a burst capacity of the full window allotment.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = defaultRateMaxRequests
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	rl := &RateLimiter{
		rate:    float64(maxRequests) / window.Seconds(),
		burst:   float64(maxRequests),
		window:  window,
		max:     maxRequests,
		buckets: make(map[string]*ipBucket),
	}
	go rl.cleanupLoop()
	return rl
}

// RateLimiterFromEnv builds the limiter from RATE_LIMIT_WINDOW_MS and
// RATE_LIMIT_MAX_REQUESTS, falling back to 30 requests per minute.
func RateLimiterFromEnv() *RateLimiter {
	window := defaultRateWindow
	if raw := os.Getenv("RATE_LIMIT_WINDOW_MS"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			window = time.Duration(ms) * time.Millisecond
		}
	}
	max := defaultRateMaxRequests
	if raw := os.Getenv("RATE_LIMIT_MAX_REQUESTS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			max = n
		}
	}
	return NewRateLimiter(max, window)
}

func (rl *RateLimiter) allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	bucket, ok := rl.buckets[ip]
	if !ok {
		bucket = &ipBucket{tokens: rl.burst}
		rl.buckets[ip] = bucket
	}
	rl.mu.Unlock()

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	now := time.Now()
	// Refill tokens based on elapsed time since last request.
	elapsed := now.Sub(bucket.lastSeen).Seconds()
	bucket.tokens += elapsed * rl.rate
	if bucket.tokens > rl.burst {
		bucket.tokens = rl.burst
	}
	bucket.lastSeen = now

	if bucket.tokens >= 1.0 {
		bucket.tokens--
		return true, 0
	}

	// Calculate how long until a token is available.
	retryAfter := time.Duration((1.0-bucket.tokens)/rl.rate*1000) * time.Millisecond
	return false, retryAfter
}

// Middleware returns a Gin handler that enforces the rate limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		allowed, retryAfter := rl.allow(ip)
		if !allowed {
			c.Header("Retry-After", retryAfter.String())
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success":    false,
				"error":      "Rate limit exceeded",
				"retryAfter": retryAfter.String(),
				"limit":      fmt.Sprintf("%d requests/%s per IP", rl.max, rl.window),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// cleanupLoop removes stale IP buckets every cleanupIdleDuration.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupIdleDuration)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-cleanupIdleDuration)
		rl.mu.Lock()
		for ip, b := range rl.buckets {
			b.mu.Lock()
			idle := b.lastSeen.Before(cutoff)
			b.mu.Unlock()
			if idle {
				delete(rl.buckets, ip)
			}
		}
		rl.mu.Unlock()
	}
}
