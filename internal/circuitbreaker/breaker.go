package circuitbreaker

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bibekaryal86/gateway-service/internal/config"
	"github.com/bibekaryal86/gateway-service/internal/shardmap"
)

// State represents the circuit breaker state
type State int32

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Failing, reject requests
	StateHalfOpen              // Testing recovery
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker tracks the failure state of a single backend route.
//
// All fields are atomics: admission checks run on the hot path for
// every request and must not serialize behind a lock. Transitions use
// compare-and-swap so racing requests settle on exactly one outcome.
type Breaker struct {
	state           atomic.Int32
	failureCount    atomic.Int32
	lastFailureTime atomic.Int64 // unix nanos

	failureThreshold int32
	openTimeout      time.Duration
}

// New creates a circuit breaker with the configured thresholds.
func New(cfg config.CircuitBreakerConfig) *Breaker {
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 3
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Breaker{
		failureThreshold: int32(threshold),
		openTimeout:      timeout,
	}
}

// Allow reports whether a request may proceed to the backend. It is an
// admission check, not a pure read: it performs state transitions.
//
// The first check after the open timeout elapses moves the breaker to
// half-open and resets the failure counter, but is itself still
// rejected: a deliberate one-request penalty before probing resumes.
// In half-open, every check counts against the failure threshold;
// reaching it re-opens the breaker even without a real backend failure.
// Only MarkSuccess closes a half-open breaker.
func (b *Breaker) Allow() bool {
	switch State(b.state.Load()) {
	case StateClosed:
		return true

	case StateOpen:
		elapsed := time.Duration(time.Now().UnixNano() - b.lastFailureTime.Load())
		if elapsed >= b.openTimeout {
			if b.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
				b.failureCount.Store(0)
			}
		}
		return false

	case StateHalfOpen:
		if b.failureCount.Add(1) >= b.failureThreshold {
			if b.state.CompareAndSwap(int32(StateHalfOpen), int32(StateOpen)) {
				b.lastFailureTime.Store(time.Now().UnixNano())
			}
		}
		return true
	}

	return false
}

// MarkSuccess closes a half-open breaker. No-op in closed or open.
func (b *Breaker) MarkSuccess() {
	if b.state.CompareAndSwap(int32(StateHalfOpen), int32(StateClosed)) {
		b.failureCount.Store(0)
	}
}

// MarkFailure records a backend failure and opens the breaker once the
// failure threshold is reached.
func (b *Breaker) MarkFailure() {
	count := b.failureCount.Add(1)
	b.lastFailureTime.Store(time.Now().UnixNano())

	if count >= b.failureThreshold {
		b.state.Store(int32(StateOpen))
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	return State(b.state.Load())
}

// FailureCount returns the current failure counter.
func (b *Breaker) FailureCount() int {
	return int(b.failureCount.Load())
}

func (b *Breaker) String() string {
	return fmt.Sprintf("CircuitBreaker[state=%s, failures=%d, openTimeout=%s]",
		b.State(), b.FailureCount(), b.openTimeout)
}

// BreakerByRoute manages one breaker per route name. Breakers are
// created lazily on first observation and live for the process
// lifetime; cardinality is bounded by the number of distinct backends.
type BreakerByRoute struct {
	cfg      config.CircuitBreakerConfig
	breakers *shardmap.Map[*Breaker]
}

// NewBreakerByRoute creates a route-keyed breaker manager.
func NewBreakerByRoute(cfg config.CircuitBreakerConfig) *BreakerByRoute {
	return &BreakerByRoute{
		cfg:      cfg,
		breakers: shardmap.New[*Breaker](),
	}
}

// Get returns the breaker for a route, creating it on first use.
func (br *BreakerByRoute) Get(routeName string) *Breaker {
	return br.breakers.GetOrCreate(routeName, func() *Breaker {
		return New(br.cfg)
	})
}

// Reset discards all breaker state.
func (br *BreakerByRoute) Reset() {
	br.breakers.Clear()
}

// Len returns the number of routes with breaker state.
func (br *BreakerByRoute) Len() int {
	return br.breakers.Len()
}
