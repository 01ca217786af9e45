package metrics

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"dataanalyst/pkg/logger"
)

// AuditCollector reports figures that live in storage rather than in process
// memory, so they survive restarts and cover every replica.
type AuditCollector struct {
	log      *logger.Logger
	postgres *sqlx.DB
	redis    *redis.Client

	toolCalls24h  *prometheus.Desc
	limitedUsers  *prometheus.Desc
	rateKeyPrefix string
}

// NewAuditCollector creates a collector; nil stores are skipped.
func NewAuditCollector(log *logger.Logger, postgres *sqlx.DB, redis *redis.Client, rateKeyPrefix string) *AuditCollector {
	return &AuditCollector{
		log:           log,
		postgres:      postgres,
		redis:         redis,
		rateKeyPrefix: rateKeyPrefix,

		toolCalls24h: prometheus.NewDesc(
			namespace+"_tool_calls_24h",
			"Audited tool calls in the last 24h by outcome",
			[]string{"outcome"}, nil,
		),
		limitedUsers: prometheus.NewDesc(
			namespace+"_rate_limited_users",
			"Users with an active rate limit bucket",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *AuditCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.toolCalls24h
	ch <- c.limitedUsers
}

// Collect implements prometheus.Collector
func (c *AuditCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.collectToolCalls(ctx, ch)
	c.collectRateLimitBuckets(ctx, ch)
}

func (c *AuditCollector) collectToolCalls(ctx context.Context, ch chan<- prometheus.Metric) {
	if c.postgres == nil {
		return
	}

	type row struct {
		Outcome string `db:"outcome"`
		Count   int    `db:"count"`
	}
	var rows []row
	err := c.postgres.SelectContext(ctx, &rows, `
		SELECT outcome, COUNT(*) AS count
		FROM tool_call_audit
		WHERE created_at > NOW() - INTERVAL '24 hours'
		GROUP BY outcome
	`)
	if err != nil {
		c.log.Warnf("Failed to collect tool call audit counts: %v", err)
		return
	}

	for _, r := range rows {
		ch <- prometheus.MustNewConstMetric(c.toolCalls24h, prometheus.GaugeValue, float64(r.Count), r.Outcome)
	}
}

func (c *AuditCollector) collectRateLimitBuckets(ctx context.Context, ch chan<- prometheus.Metric) {
	if c.redis == nil {
		return
	}

	var count int
	iter := c.redis.Scan(ctx, 0, c.rateKeyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		c.log.Warnf("Failed to scan rate limit buckets: %v", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.limitedUsers, prometheus.GaugeValue, float64(count))
}

// RegisterCollector registers a custom collector
func RegisterCollector(collector prometheus.Collector) {
	prometheus.MustRegister(collector)
}
