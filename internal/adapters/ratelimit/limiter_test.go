package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataanalyst/internal/testsupport"
)

func TestLocalLimiter_BurstThenDeny(t *testing.T) {
	l := NewLocalLimiter(60, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d within burst", i)
	}

	ok, err := l.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "user-2")
	assert.True(t, ok, "other keys have their own bucket")
	assert.Equal(t, 2, l.Size())
}

func TestLocalLimiter_DefaultBurst(t *testing.T) {
	assert.Equal(t, 1, defaultBurst(5, 0))
	assert.Equal(t, 6, defaultBurst(60, 0))
	assert.Equal(t, 3, defaultBurst(60, 3))
}

func TestLocalLimiter_PrunesIdleKeys(t *testing.T) {
	l := NewLocalLimiter(60, 1)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "stale")
	l.buckets["stale"].lastSeen = time.Now().Add(-2 * time.Hour)
	l.lastPrune = time.Now().Add(-2 * time.Hour)

	_, _ = l.Allow(ctx, "fresh")

	assert.Equal(t, 1, l.Size())
}

func TestNoOpLimiter(t *testing.T) {
	ok, err := NewNoOpLimiter().Allow(context.Background(), "anyone")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, -1.0, NewNoOpLimiter().Limit())
}

func TestRedisLimiter(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := testsupport.NewTestRedis(t)
	ctx := context.Background()

	// 60 req/min = 1 req/sec, burst 2
	l := NewRedisLimiter(client, 60, 2)
	assert.Equal(t, 60.0, l.Limit())

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := l.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Reset(ctx, "user-1"))
	ok, err = l.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, ok)

	exists, err := client.Exists(ctx, KeyPrefix+"user-1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}
