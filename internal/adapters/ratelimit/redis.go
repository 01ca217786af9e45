package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"dataanalyst/pkg/errors"
)

// Token bucket, atomic per key.
// KEYS[1] = bucket key
// ARGV[1] = rate (tokens per second)
// ARGV[2] = burst (max tokens)
// ARGV[3] = current timestamp in seconds
// Returns 1 if allowed, 0 if denied.
const luaTokenBucketScript = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local data = redis.call('HMGET', key, 'tokens', 'last_update')
local tokens = tonumber(data[1])
local last_update = tonumber(data[2])

if not tokens then
    tokens = burst
    last_update = now
end

local elapsed = math.max(0, now - last_update)
tokens = math.min(burst, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1.0 then
    tokens = tokens - 1.0
    allowed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'last_update', now)
redis.call('EXPIRE', key, 3600)

return allowed
`

// RedisLimiter shares buckets between instances.
type RedisLimiter struct {
	client    *redis.Client
	rate      float64 // per second
	burst     int
	keyPrefix string
	script    *redis.Script
}

// NewRedisLimiter creates a distributed limiter
func NewRedisLimiter(client *redis.Client, reqPerMinute float64, burst int) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		rate:      reqPerMinute / 60.0,
		burst:     defaultBurst(reqPerMinute, burst),
		keyPrefix: KeyPrefix,
		script:    redis.NewScript(luaTokenBucketScript),
	}
}

// Allow consumes a token for key. Redis failures are returned so the caller
// decides whether to fail open.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(time.Now().UnixNano()) / float64(time.Second)

	result, err := l.script.Run(ctx, l.client, []string{l.keyPrefix + key}, l.rate, l.burst, now).Int()
	if err != nil {
		return false, errors.Wrap(err, "failed to execute token bucket script")
	}

	return result == 1, nil
}

func (l *RedisLimiter) Limit() float64 {
	return l.rate * 60.0
}

// Reset clears the bucket of key
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.keyPrefix+key).Err()
}
