package stats

import (
	"context"
	"time"
)

// Repository defines the interface for tool usage statistics data access (ClickHouse)
type Repository interface {
	InsertToolUsageBatch(ctx context.Context, events []ToolUsageEvent) error

	// Hourly aggregates from the materialized view
	GetByTool(ctx context.Context, toolName string, since time.Time) ([]ToolUsageAggregated, error)
	GetOutcomeBreakdown(ctx context.Context, since time.Time) ([]ToolUsageAggregated, error)
}
