package stats

import (
	"time"

	"github.com/google/uuid"
)

// ToolUsageEvent represents a single tool call event (for insertion)
type ToolUsageEvent struct {
	EventID   uuid.UUID `ch:"event_id"`
	UserID    string    `ch:"user_id"`
	SessionID string    `ch:"session_id"`
	AgentName string    `ch:"agent_name"`
	ToolName  string    `ch:"tool_name"`
	Timestamp time.Time `ch:"timestamp"`

	Outcome    string `ch:"outcome"`
	Success    bool   `ch:"success"`
	DurationMs uint32 `ch:"duration_ms"`
}

// ToolUsageAggregated represents aggregated tool usage (from materialized view)
type ToolUsageAggregated struct {
	ToolName string    `ch:"tool_name"`
	Outcome  string    `ch:"outcome"`
	Hour     time.Time `ch:"hour"`

	CallCount     uint64  `ch:"call_count"`
	AvgDurationMs float64 `ch:"avg_duration_ms"`
}
