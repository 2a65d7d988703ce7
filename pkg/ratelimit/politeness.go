package ratelimit

import (
	"context"
	"math/rand"
	"time"
)

// Politeness sleeps a uniformly random duration in [0, Max) between artifact
// downloads. A zero Max makes Wait a no-op.
type Politeness struct {
	Max time.Duration
	// Rand and Sleep are replaceable for tests
	Rand  func() float64
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewPoliteness creates a controller with the given upper bound
func NewPoliteness(max time.Duration) *Politeness {
	return &Politeness{Max: max}
}

// Delay draws the next pause without sleeping
func (p *Politeness) Delay() time.Duration {
	if p == nil || p.Max <= 0 {
		return 0
	}
	r := rand.Float64
	if p.Rand != nil {
		r = p.Rand
	}
	return time.Duration(r() * float64(p.Max))
}

// Wait pauses for a random duration, returning early if ctx is done
func (p *Politeness) Wait(ctx context.Context) error {
	d := p.Delay()
	if d <= 0 {
		return nil
	}
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return sleep(ctx, d)
}
