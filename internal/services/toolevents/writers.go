package toolevents

import (
	"context"
	"encoding/json"

	"dataanalyst/internal/domain/audit"
	"dataanalyst/internal/domain/stats"
	"dataanalyst/internal/events"
)

// StatsWriter stores events as tool usage rows
type StatsWriter struct {
	repo stats.Repository
}

func NewStatsWriter(repo stats.Repository) *StatsWriter {
	return &StatsWriter{repo: repo}
}

func (w *StatsWriter) Name() string { return "clickhouse" }

func (w *StatsWriter) WriteBatch(ctx context.Context, batch []events.ToolCallEvent) error {
	rows := make([]stats.ToolUsageEvent, len(batch))
	for i, ev := range batch {
		rows[i] = ToUsageEvent(ev)
	}
	return w.repo.InsertToolUsageBatch(ctx, rows)
}

// ToUsageEvent maps an event to a stats row
func ToUsageEvent(ev events.ToolCallEvent) stats.ToolUsageEvent {
	duration := ev.DurationMs
	if duration < 0 {
		duration = 0
	}
	return stats.ToolUsageEvent{
		EventID:    ev.ID,
		UserID:     ev.UserID,
		SessionID:  ev.SessionID,
		AgentName:  ev.AgentName,
		ToolName:   ev.Tool,
		Timestamp:  ev.Timestamp,
		Outcome:    ev.Outcome,
		Success:    ev.Success,
		DurationMs: uint32(duration),
	}
}

// AuditWriter stores events as audit records
type AuditWriter struct {
	repo audit.Repository
}

func NewAuditWriter(repo audit.Repository) *AuditWriter {
	return &AuditWriter{repo: repo}
}

func (w *AuditWriter) Name() string { return "postgres" }

func (w *AuditWriter) WriteBatch(ctx context.Context, batch []events.ToolCallEvent) error {
	records := make([]audit.ToolCallRecord, len(batch))
	for i, ev := range batch {
		records[i] = ToAuditRecord(ev)
	}
	return w.repo.InsertBatch(ctx, records)
}

// ToAuditRecord maps an event to an audit row. Args that cannot be encoded
// are stored as an empty object.
func ToAuditRecord(ev events.ToolCallEvent) audit.ToolCallRecord {
	args, err := json.Marshal(ev.Args)
	if err != nil || ev.Args == nil {
		args = []byte("{}")
	}
	return audit.ToolCallRecord{
		ID:         ev.ID,
		UserID:     ev.UserID,
		SessionID:  ev.SessionID,
		AgentName:  ev.AgentName,
		ToolName:   ev.Tool,
		Query:      ev.Query(),
		Args:       args,
		Outcome:    ev.Outcome,
		ErrorText:  ev.ErrorText,
		DurationMs: ev.DurationMs,
		CreatedAt:  ev.Timestamp,
	}
}
