package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bibekaryal86/gateway-service/internal/config"
)

func newTestLimiter(maxRequests int, window time.Duration) *Limiter {
	return New(config.RateLimitConfig{MaxRequests: maxRequests, Window: window})
}

func TestLimiterDefaults(t *testing.T) {
	l := New(config.RateLimitConfig{})
	if l.maxRequests != 10 {
		t.Errorf("expected default max 10, got %d", l.maxRequests)
	}
	if l.window != time.Second {
		t.Errorf("expected default window 1s, got %v", l.window)
	}
}

func TestAdmitsUpToMax(t *testing.T) {
	l := newTestLimiter(5, time.Minute)

	for i := 0; i < 5; i++ {
		if !l.Allow() {
			t.Fatalf("request %d within budget rejected", i)
		}
	}
	if l.Allow() {
		t.Error("request over budget admitted")
	}
}

// Over-limit rejections undo their increment: the counter stays parked
// at the maximum no matter how many rejected calls arrive.
func TestRejectionIsIdempotent(t *testing.T) {
	l := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		l.Allow()
	}
	for i := 0; i < 50; i++ {
		if l.Allow() {
			t.Fatalf("over-limit call %d admitted", i)
		}
	}
	if l.Count() != 3 {
		t.Errorf("expected counter parked at 3, got %d", l.Count())
	}
}

func TestWindowReset(t *testing.T) {
	l := newTestLimiter(2, 30*time.Millisecond)

	if !l.Allow() || !l.Allow() {
		t.Fatal("expected first two requests admitted")
	}
	if l.Allow() {
		t.Fatal("expected third request rejected")
	}

	time.Sleep(40 * time.Millisecond)

	if !l.Allow() {
		t.Error("expected admission after window elapsed")
	}
	if l.Count() != 1 {
		t.Errorf("expected counter restarted at 1, got %d", l.Count())
	}
}

// Rejected requests do not refresh the last-request time, so a stream
// of rejections does not postpone the window reset.
func TestRejectionsDoNotExtendWindow(t *testing.T) {
	l := newTestLimiter(1, 30*time.Millisecond)

	l.Allow()
	for i := 0; i < 5; i++ {
		l.Allow() // rejected
		time.Sleep(10 * time.Millisecond)
	}

	// Over 30ms since the last *counted* request
	if !l.Allow() {
		t.Error("expected admission once window elapsed despite rejections")
	}
}

func TestConcurrentAdmissionBudget(t *testing.T) {
	l := newTestLimiter(10, time.Minute)

	// Seed the window so concurrent calls below cannot race the
	// initial window reset.
	if !l.Allow() {
		t.Fatal("expected seed request admitted")
	}

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 99; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow() {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != 9 {
		t.Errorf("expected exactly 9 more admitted, got %d", admitted.Load())
	}
}

func TestLimiterByClientIsolation(t *testing.T) {
	mgr := NewLimiterByClient(config.RateLimitConfig{MaxRequests: 1, Window: time.Minute})

	if !mgr.Get("10.0.0.1").Allow() {
		t.Fatal("expected first client admitted")
	}
	if mgr.Get("10.0.0.1").Allow() {
		t.Error("expected first client over budget")
	}
	if !mgr.Get("10.0.0.2").Allow() {
		t.Error("expected second client unaffected")
	}
}

func TestLimiterByClientReset(t *testing.T) {
	mgr := NewLimiterByClient(config.RateLimitConfig{MaxRequests: 1, Window: time.Minute})

	mgr.Get("10.0.0.1").Allow()
	if mgr.Len() != 1 {
		t.Errorf("expected 1 limiter, got %d", mgr.Len())
	}

	mgr.Reset()
	if mgr.Len() != 0 {
		t.Errorf("expected 0 limiters after reset, got %d", mgr.Len())
	}
	if !mgr.Get("10.0.0.1").Allow() {
		t.Error("expected fresh budget after reset")
	}
}
