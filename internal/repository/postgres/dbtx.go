package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"dataanalyst/pkg/errors"
)

// DBTX is the part of *sqlx.DB and *sqlx.Tx the audit store uses.
// Tests pass a transaction so every write is rolled back.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

// Tx is a DBTX that must be finished with Commit or Rollback.
type Tx interface {
	DBTX
	Commit() error
	Rollback() error
}

type beginFunc func(ctx context.Context) (Tx, error)

// beginner returns how to open a transaction on db, or nil when db already
// is one (or cannot start one).
func beginner(db DBTX) beginFunc {
	conn, ok := db.(*sqlx.DB)
	if !ok {
		return nil
	}
	return func(ctx context.Context) (Tx, error) {
		tx, err := conn.BeginTxx(ctx, nil)
		if err != nil {
			return nil, err
		}
		return tx, nil
	}
}

// inTx runs fn in a fresh transaction when begin is set, else directly on db.
func inTx(ctx context.Context, db DBTX, begin beginFunc, fn func(DBTX) error) error {
	if begin == nil {
		return fn(db)
	}

	tx, err := begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, errors.Wrap(rbErr, "failed to rollback"))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}
