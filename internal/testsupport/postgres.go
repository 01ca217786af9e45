package testsupport

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"

	"dataanalyst/internal/adapters/postgres"
)

// PostgresTestHelper manages a transactional connection for integration tests.
type PostgresTestHelper struct {
	client     *postgres.Client
	tx         *sqlx.Tx
	rolledBack bool
}

// NewTestPostgres opens a connection from env and begins a transaction that
// is always rolled back.
func NewTestPostgres(t *testing.T) *PostgresTestHelper {
	t.Helper()

	cfg := PostgresConfigFromEnv(t)
	client, err := postgres.NewClient(context.Background(), cfg)
	if err != nil {
		t.Skipf("postgres unreachable: %v", err)
	}

	tx, err := client.DB().BeginTxx(context.Background(), nil)
	if err != nil {
		_ = client.Close()
		t.Fatalf("failed to start transaction: %v", err)
	}

	helper := &PostgresTestHelper{client: client, tx: tx}
	t.Cleanup(helper.Rollback)
	t.Cleanup(func() {
		_ = client.Close()
	})

	return helper
}

// Tx returns the active transaction for the test.
func (h *PostgresTestHelper) Tx() *sqlx.Tx {
	return h.tx
}

// Rollback rolls back the transaction once.
func (h *PostgresTestHelper) Rollback() {
	if h.rolledBack {
		return
	}
	_ = h.tx.Rollback()
	h.rolledBack = true
}
