package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"dataanalyst/internal/domain/stats"
	"dataanalyst/internal/metrics"
	"dataanalyst/pkg/errors"
)

// Compile-time check
var _ stats.Repository = (*StatsRepository)(nil)

// StatsRepository implements stats.Repository using ClickHouse
type StatsRepository struct {
	conn driver.Conn
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(conn driver.Conn) *StatsRepository {
	return &StatsRepository{conn: conn}
}

// InsertToolUsageBatch inserts multiple tool usage events
func (r *StatsRepository) InsertToolUsageBatch(ctx context.Context, events []stats.ToolUsageEvent) (err error) {
	if len(events) == 0 {
		return nil
	}

	start := time.Now()
	defer func() { metrics.RecordDBQuery("clickhouse", "insert_tool_usage", time.Since(start), err) }()

	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO tool_usage_stats (
			event_id, user_id, session_id, agent_name, tool_name,
			timestamp, outcome, success, duration_ms
		)
	`)
	if err != nil {
		return errors.Wrap(err, "prepare tool usage batch")
	}

	for _, event := range events {
		err := batch.Append(
			event.EventID, event.UserID, event.SessionID, event.AgentName, event.ToolName,
			event.Timestamp, event.Outcome, event.Success, event.DurationMs,
		)
		if err != nil {
			return errors.Wrap(err, "append tool usage event")
		}
	}

	if err := batch.Send(); err != nil {
		return errors.Wrap(err, "send tool usage batch")
	}
	return nil
}

// GetByTool retrieves hourly stats for a specific tool
func (r *StatsRepository) GetByTool(ctx context.Context, toolName string, since time.Time) ([]stats.ToolUsageAggregated, error) {
	var usage []stats.ToolUsageAggregated

	query := `
		SELECT
			tool_name,
			outcome,
			hour,
			sum(call_count) AS call_count,
			sum(total_duration_ms) / sum(call_count) AS avg_duration_ms
		FROM tool_usage_hourly_mv
		WHERE tool_name = $1 AND hour >= $2
		GROUP BY tool_name, outcome, hour
		ORDER BY hour DESC`

	err := r.conn.Select(ctx, &usage, query, toolName, since)
	return usage, err
}

// GetOutcomeBreakdown sums calls per tool and outcome since a point in time
func (r *StatsRepository) GetOutcomeBreakdown(ctx context.Context, since time.Time) ([]stats.ToolUsageAggregated, error) {
	var usage []stats.ToolUsageAggregated

	query := `
		SELECT
			tool_name,
			outcome,
			max(hour) AS hour,
			sum(call_count) AS call_count,
			sum(total_duration_ms) / sum(call_count) AS avg_duration_ms
		FROM tool_usage_hourly_mv
		WHERE hour >= $1
		GROUP BY tool_name, outcome
		ORDER BY call_count DESC`

	err := r.conn.Select(ctx, &usage, query, since)
	return usage, err
}

var statsSchema = []string{
	`CREATE TABLE IF NOT EXISTS tool_usage_stats (
		event_id    UUID,
		user_id     String,
		session_id  String,
		agent_name  LowCardinality(String),
		tool_name   LowCardinality(String),
		timestamp   DateTime64(3),
		outcome     LowCardinality(String),
		success     Bool,
		duration_ms UInt32
	) ENGINE = MergeTree
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (tool_name, timestamp)
	TTL toDateTime(timestamp) + INTERVAL 180 DAY`,

	`CREATE MATERIALIZED VIEW IF NOT EXISTS tool_usage_hourly_mv
	ENGINE = SummingMergeTree
	ORDER BY (tool_name, outcome, hour)
	AS SELECT
		tool_name,
		outcome,
		toStartOfHour(timestamp) AS hour,
		count() AS call_count,
		sum(duration_ms) AS total_duration_ms
	FROM tool_usage_stats
	GROUP BY tool_name, outcome, hour`,
}

// EnsureSchema creates the stats table and its hourly view
func (r *StatsRepository) EnsureSchema(ctx context.Context) error {
	for _, ddl := range statsSchema {
		if err := r.conn.Exec(ctx, ddl); err != nil {
			return errors.Wrap(err, "create tool usage schema")
		}
	}
	return nil
}
