package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter paces requests
type Limiter interface {
	// Allow takes a slot if one is free
	Allow() bool
	// Wait blocks until a slot is free or ctx is done
	Wait(ctx context.Context) error
	Reset()
}

// TokenBucket allows capacity requests, then refills completely once
// refillPeriod has elapsed since the last refill.
type TokenBucket struct {
	mu           sync.Mutex
	capacity     int
	tokens       int
	refillPeriod time.Duration
	lastRefill   time.Time
	now          func() time.Time
}

// NewTokenBucket creates a full bucket
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		lastRefill:   time.Now(),
		now:          time.Now,
	}
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if now := tb.now(); now.Sub(tb.lastRefill) >= tb.refillPeriod {
		tb.tokens = tb.capacity
		tb.lastRefill = now
	}
	if tb.tokens == 0 {
		return false
	}
	tb.tokens--
	return true
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	for !tb.Allow() {
		tb.mu.Lock()
		d := tb.refillPeriod - tb.now().Sub(tb.lastRefill)
		tb.mu.Unlock()
		if err := sleep(ctx, max(d, 50*time.Millisecond)); err != nil {
			return err
		}
	}
	return nil
}

func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.tokens = tb.capacity
	tb.lastRefill = tb.now()
}

// SlidingWindow allows at most limit requests in any window of the given size
type SlidingWindow struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	requests []time.Time
	now      func() time.Time
}

// NewSlidingWindow creates an empty window
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{limit: limit, window: window, now: time.Now}
}

// PerMinute is a sliding window of n requests per minute
func PerMinute(n int) *SlidingWindow {
	return NewSlidingWindow(n, time.Minute)
}

func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	sw.expire(now)
	if len(sw.requests) >= sw.limit {
		return false
	}
	sw.requests = append(sw.requests, now)
	return true
}

func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for !sw.Allow() {
		sw.mu.Lock()
		d := 50 * time.Millisecond
		if len(sw.requests) > 0 {
			d = max(d, sw.window-sw.now().Sub(sw.requests[0]))
		}
		sw.mu.Unlock()
		if err := sleep(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.requests = sw.requests[:0]
}

func (sw *SlidingWindow) expire(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}
	sw.requests = append(sw.requests[:0], sw.requests[i:]...)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
