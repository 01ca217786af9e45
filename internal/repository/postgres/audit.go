package postgres

import (
	"context"
	"time"

	"dataanalyst/internal/domain/audit"
	"dataanalyst/internal/metrics"
	"dataanalyst/pkg/errors"
)

// Compile-time check
var _ audit.Repository = (*AuditRepository)(nil)

const auditSchema = `
	CREATE TABLE IF NOT EXISTS tool_call_audit (
		id          UUID PRIMARY KEY,
		user_id     TEXT NOT NULL,
		session_id  TEXT NOT NULL,
		agent_name  TEXT NOT NULL,
		tool_name   TEXT NOT NULL,
		query       TEXT NOT NULL DEFAULT '',
		args        JSONB NOT NULL DEFAULT '{}',
		outcome     TEXT NOT NULL,
		error_text  TEXT NOT NULL DEFAULT '',
		duration_ms BIGINT NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_tool_call_audit_session ON tool_call_audit (session_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_tool_call_audit_created ON tool_call_audit (created_at);`

// AuditRepository stores tool calls in tool_call_audit
type AuditRepository struct {
	db    DBTX
	begin beginFunc
}

// NewAuditRepository creates a new audit repository. Given a *sqlx.DB each
// batch is written in its own transaction; given a *sqlx.Tx it joins it.
func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db, begin: beginner(db)}
}

// EnsureSchema creates the audit table when missing
func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, auditSchema); err != nil {
		return errors.Wrap(err, "failed to create tool_call_audit")
	}
	return nil
}

// InsertBatch stores records all-or-nothing; ids already present are skipped
// so redelivered events are harmless.
func (r *AuditRepository) InsertBatch(ctx context.Context, records []audit.ToolCallRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO tool_call_audit (
			id, user_id, session_id, agent_name, tool_name,
			query, args, outcome, error_text, duration_ms, created_at
		) VALUES (
			:id, :user_id, :session_id, :agent_name, :tool_name,
			:query, :args, :outcome, :error_text, :duration_ms, :created_at
		)
		ON CONFLICT (id) DO NOTHING`

	start := time.Now()
	var err error
	defer func() { metrics.RecordDBQuery("postgres", "insert_tool_call_audit", time.Since(start), err) }()

	err = inTx(ctx, r.db, r.begin, func(db DBTX) error {
		for i := range records {
			rec := records[i]
			if len(rec.Args) == 0 {
				rec.Args = []byte("{}")
			}
			if _, err := db.NamedExecContext(ctx, query, rec); err != nil {
				return errors.Wrapf(err, "failed to insert audit record %s", rec.ID)
			}
		}
		return nil
	})
	return err
}

// ListBySession returns the most recent records of a session, newest first
func (r *AuditRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]audit.ToolCallRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, session_id, agent_name, tool_name,
		       query, args, outcome, error_text, duration_ms, created_at
		FROM tool_call_audit
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	var records []audit.ToolCallRecord
	if err := r.db.SelectContext(ctx, &records, query, sessionID, limit); err != nil {
		return nil, errors.Wrapf(err, "failed to list audit records for session %s", sessionID)
	}

	return records, nil
}
