package sqlquery

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/viant/bigquery" // registers the "bigquery" database/sql driver

	"dataanalyst/pkg/errors"
)

// DriverName is the database/sql driver registered by viant/bigquery
const DriverName = "bigquery"

// Querier runs one statement and returns its rows as column maps.
type Querier interface {
	QueryRows(ctx context.Context, query string, limit int) (rows []map[string]any, truncated bool, err error)
}

// DSN builds a BigQuery connection string for a project and default dataset
func DSN(projectID, dataset string) string {
	return fmt.Sprintf("bigquery://%s/%s", projectID, dataset)
}

// Open connects to BigQuery through database/sql. Credentials come from the
// environment (Application Default Credentials).
func Open(ctx context.Context, projectID, dataset string) (*DB, error) {
	db, err := sqlx.Open(DriverName, DSN(projectID, dataset))
	if err != nil {
		return nil, errors.Wrap(err, "open bigquery")
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.Join(errors.ErrUnavailable, err), "ping bigquery")
	}

	return &DB{db: db}, nil
}

// DB is a Querier over sqlx.
type DB struct {
	db *sqlx.DB
}

var _ Querier = (*DB)(nil)

// NewDB wraps an existing connection
func NewDB(db *sqlx.DB) *DB {
	return &DB{db: db}
}

// QueryRows scans at most limit rows; limit <= 0 means no cap.
func (d *DB) QueryRows(ctx context.Context, query string, limit int) ([]map[string]any, bool, error) {
	rows, err := d.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	out := make([]map[string]any, 0)
	for rows.Next() {
		if limit > 0 && len(out) == limit {
			return out, true, nil
		}
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, false, errors.Wrap(err, "scan row")
		}
		out = append(out, normalizeRow(row))
	}

	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return out, false, nil
}

// Close releases the connection pool
func (d *DB) Close() error {
	return d.db.Close()
}

// normalizeRow turns driver byte slices into strings so rows marshal as text.
func normalizeRow(row map[string]any) map[string]any {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
	return row
}
