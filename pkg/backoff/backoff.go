// Package backoff paces retries of a failing loop (Kafka reads, reconnects)
// with exponential backoff that resets on the first success.
package backoff

import (
	"context"
	"sync"
	"time"
)

// Config configures the backoff
type Config struct {
	Min        time.Duration // first delay (default 1s)
	Max        time.Duration // delay cap (default 1m)
	Multiplier float64       // growth per failure (default 2)
}

// Backoff tracks consecutive failures of one loop. Safe for concurrent use.
type Backoff struct {
	min, max   time.Duration
	multiplier float64

	mu       sync.Mutex
	current  time.Duration
	failures int
}

// New creates a backoff with defaults applied
func New(cfg Config) *Backoff {
	if cfg.Min <= 0 {
		cfg.Min = time.Second
	}
	if cfg.Max < cfg.Min {
		cfg.Max = time.Minute
		if cfg.Max < cfg.Min {
			cfg.Max = cfg.Min
		}
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}

	return &Backoff{
		min:        cfg.Min,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		current:    cfg.Min,
	}
}

// Failure records a failure and returns how long to wait before the next attempt
func (b *Backoff) Failure() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.current
	b.failures++

	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.max || next <= 0 {
		next = b.max
	}
	b.current = next

	return delay
}

// Success resets the delay and the failure counter
func (b *Backoff) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = b.min
	b.failures = 0
}

// Failures returns the number of consecutive failures
func (b *Backoff) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Wait records a failure and sleeps for the resulting delay. Returns ctx.Err()
// if the context ends first.
func (b *Backoff) Wait(ctx context.Context) error {
	timer := time.NewTimer(b.Failure())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
