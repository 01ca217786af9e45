package testsupport

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"

	redisadapter "dataanalyst/internal/adapters/redis"
)

// NewTestRedis connects to the Redis from env, skipping the test when it is
// unreachable, and flushes the database around the test.
func NewTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client, err := redisadapter.NewClient(context.Background(), RedisConfigFromEnv(t))
	if err != nil {
		t.Skipf("redis unreachable: %v", err)
	}

	rdb := client.Client()
	if err := rdb.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush redis before test: %v", err)
	}

	t.Cleanup(func() {
		_ = rdb.FlushDB(context.Background()).Err()
		_ = client.Close()
	})

	return rdb
}
