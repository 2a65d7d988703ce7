package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTokenBucket(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	tb := NewTokenBucket(3, time.Second)
	tb.now = clock.now
	tb.lastRefill = clock.t

	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow(), "token %d", i+1)
	}
	assert.False(t, tb.Allow())

	clock.advance(time.Second)
	assert.True(t, tb.Allow())

	tb.Reset()
	assert.True(t, tb.Allow())
}

func TestSlidingWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	sw := NewSlidingWindow(2, time.Minute)
	sw.now = clock.now

	assert.True(t, sw.Allow())
	clock.advance(10 * time.Second)
	assert.True(t, sw.Allow())
	assert.False(t, sw.Allow())

	clock.advance(50 * time.Second)
	assert.True(t, sw.Allow(), "first request left the window")
	assert.False(t, sw.Allow())

	sw.Reset()
	assert.True(t, sw.Allow())
}

func TestWaitHonoursContext(t *testing.T) {
	sw := NewSlidingWindow(1, time.Hour)
	require.True(t, sw.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sw.Wait(ctx), context.DeadlineExceeded)
}

func TestPolitenessDisabled(t *testing.T) {
	called := false
	p := &Politeness{Sleep: func(context.Context, time.Duration) error { called = true; return nil }}

	assert.Zero(t, p.Delay())
	require.NoError(t, p.Wait(context.Background()))
	assert.False(t, called)

	var nilP *Politeness
	assert.NoError(t, nilP.Wait(context.Background()))
}

func TestPolitenessDrawsWithinBound(t *testing.T) {
	var got time.Duration
	p := &Politeness{
		Max:   2 * time.Second,
		Rand:  func() float64 { return 0.25 },
		Sleep: func(_ context.Context, d time.Duration) error { got = d; return nil },
	}

	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, 500*time.Millisecond, got)

	bounded := NewPoliteness(10 * time.Millisecond)
	for i := 0; i < 100; i++ {
		d := bounded.Delay()
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 10*time.Millisecond)
	}
}
