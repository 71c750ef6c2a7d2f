package ratelimit

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bibekaryal86/gateway-service/internal/config"
	"github.com/bibekaryal86/gateway-service/internal/shardmap"
)

// Limiter counts requests for a single client identity over a
// window-reset interval: the counter zeroes when the gap since the
// last counted request exceeds the window, rather than sliding. Bursts
// straddling a window boundary can therefore admit up to twice the
// nominal rate; that is the documented behavior, kept as-is.
type Limiter struct {
	requestCount    atomic.Int64
	lastRequestTime atomic.Int64 // unix nanos

	maxRequests int64
	window      time.Duration
}

// New creates a limiter with the configured ceiling and window.
func New(cfg config.RateLimitConfig) *Limiter {
	maxRequests := cfg.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 10
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Second
	}

	return &Limiter{
		maxRequests: int64(maxRequests),
		window:      window,
	}
}

// Allow admits the request if the client is within its window budget.
// A rejected request undoes its own increment, so repeated over-limit
// calls leave the counter parked at the maximum instead of growing.
func (l *Limiter) Allow() bool {
	now := time.Now().UnixNano()

	if now-l.lastRequestTime.Load() > int64(l.window) {
		l.requestCount.Store(0)
	}

	if l.requestCount.Add(1) <= l.maxRequests {
		l.lastRequestTime.Store(now)
		return true
	}

	l.requestCount.Add(-1)
	return false
}

// Count returns the current request counter.
func (l *Limiter) Count() int {
	return int(l.requestCount.Load())
}

func (l *Limiter) String() string {
	return fmt.Sprintf("RateLimiter[count=%d, lastRequest=%s]",
		l.Count(), time.Unix(0, l.lastRequestTime.Load()).Format(time.RFC3339))
}

// LimiterByClient manages one limiter per client identity. Limiters
// are created lazily and kept for the process lifetime; unbounded
// client cardinality is an accepted limitation.
type LimiterByClient struct {
	cfg      config.RateLimitConfig
	limiters *shardmap.Map[*Limiter]
}

// NewLimiterByClient creates a client-keyed limiter manager.
func NewLimiterByClient(cfg config.RateLimitConfig) *LimiterByClient {
	return &LimiterByClient{
		cfg:      cfg,
		limiters: shardmap.New[*Limiter](),
	}
}

// Get returns the limiter for a client identity, creating it on first use.
func (lc *LimiterByClient) Get(clientID string) *Limiter {
	return lc.limiters.GetOrCreate(clientID, func() *Limiter {
		return New(lc.cfg)
	})
}

// Reset discards all limiter state.
func (lc *LimiterByClient) Reset() {
	lc.limiters.Clear()
}

// Len returns the number of tracked client identities.
func (lc *LimiterByClient) Len() int {
	return lc.limiters.Len()
}
