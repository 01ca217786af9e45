package testsupport

import (
	"context"
	"testing"

	"dataanalyst/internal/adapters/clickhouse"
)

// NewTestClickHouse connects to the ClickHouse from env, skipping the test
// when it is unreachable.
func NewTestClickHouse(t *testing.T) *clickhouse.Client {
	t.Helper()

	client, err := clickhouse.NewClient(context.Background(), ClickHouseConfigFromEnv(t))
	if err != nil {
		t.Skipf("clickhouse unreachable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return client
}
