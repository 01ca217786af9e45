// Package ratelimit limits questions per user, either in-process or shared
// across instances through Redis.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyPrefix is prepended to every Redis bucket key
const KeyPrefix = "rate_limit:questions:"

// Limiter decides whether one more request for key may proceed now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)

	// Limit returns requests per minute, -1 for unlimited
	Limit() float64
}

// LocalLimiter keeps one token bucket per key in memory.
type LocalLimiter struct {
	perMinute float64
	burst     int

	mu        sync.Mutex
	buckets   map[string]*bucket
	idleTTL   time.Duration
	lastPrune time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates an in-process limiter. A non-positive burst
// defaults to 10% of the rate, at least one.
func NewLocalLimiter(reqPerMinute float64, burst int) *LocalLimiter {
	return &LocalLimiter{
		perMinute: reqPerMinute,
		burst:     defaultBurst(reqPerMinute, burst),
		buckets:   make(map[string]*bucket),
		idleTTL:   time.Hour,
		lastPrune: time.Now(),
	}
}

func defaultBurst(reqPerMinute float64, burst int) int {
	if burst > 0 {
		return burst
	}
	burst = int(reqPerMinute / 10)
	if burst < 1 {
		burst = 1
	}
	return burst
}

// Allow consumes a token for key if one is available
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.perMinute/60.0), l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	if now.Sub(l.lastPrune) > l.idleTTL {
		l.pruneLocked(now)
	}

	return b.limiter.AllowN(now, 1), nil
}

// pruneLocked drops buckets idle longer than idleTTL; they would be full again anyway
func (l *LocalLimiter) pruneLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
	l.lastPrune = now
}

func (l *LocalLimiter) Limit() float64 {
	return l.perMinute
}

// Size returns the number of tracked keys
func (l *LocalLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// NoOpLimiter never limits.
type NoOpLimiter struct{}

func NewNoOpLimiter() *NoOpLimiter {
	return &NoOpLimiter{}
}

func (NoOpLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

func (NoOpLimiter) Limit() float64 { return -1 }
