// Package audit holds the durable record of every query the agent ran.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ToolCallRecord is one row of tool_call_audit.
type ToolCallRecord struct {
	ID         uuid.UUID       `db:"id"`
	UserID     string          `db:"user_id"`
	SessionID  string          `db:"session_id"`
	AgentName  string          `db:"agent_name"`
	ToolName   string          `db:"tool_name"`
	Query      string          `db:"query"`
	Args       json.RawMessage `db:"args"`
	Outcome    string          `db:"outcome"`
	ErrorText  string          `db:"error_text"`
	DurationMs int64           `db:"duration_ms"`
	CreatedAt  time.Time       `db:"created_at"`
}

// Repository stores audit records.
type Repository interface {
	InsertBatch(ctx context.Context, records []ToolCallRecord) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]ToolCallRecord, error)
}
