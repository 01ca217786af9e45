package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dataanalyst/internal/agents/callbacks"
)

const namespace = "data_analyst"

var (
	// Tool metrics
	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls by outcome",
		},
		[]string{"tool", "outcome"}, // outcome: passthrough|no_results|invalid_query|timeout|tool_error|embedded_error
	)

	ToolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_latency_seconds",
			Help:      "Tool execution latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tool"},
	)

	// Agent metrics
	AgentQuestions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_questions_total",
			Help:      "Total number of questions answered",
		},
		[]string{"agent", "model", "status"}, // status: success|error|timeout|rate_limited|invalid
	)

	AgentLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_latency_seconds",
			Help:      "Time to answer a question in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"agent", "model"},
	)

	AgentTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_tokens_total",
			Help:      "Total tokens used by the agent",
		},
		[]string{"agent", "model", "type"}, // type: input|output
	)

	// Infrastructure metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_queries_total",
			Help:      "Total number of storage writes by sinks",
		},
		[]string{"database", "operation", "status"},
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Storage write duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"database", "operation"},
	)

	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_messages_total",
			Help:      "Total Kafka messages published",
		},
		[]string{"topic", "status"},
	)

	KafkaConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_messages_consumed_total",
			Help:      "Total Kafka messages consumed",
		},
		[]string{"topic", "status"},
	)

	TelegramCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_commands_total",
			Help:      "Total Telegram bot commands handled",
		},
		[]string{"command", "status"},
	)
)

var registerOnce sync.Once

// Init registers all metrics with Prometheus
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ToolCalls,
			ToolLatency,
			AgentQuestions,
			AgentLatency,
			AgentTokens,
			DBQueries,
			DBQueryDuration,
			KafkaMessages,
			KafkaConsumed,
			TelegramCommands,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordToolCall counts a finished tool call
func RecordToolCall(tool string, outcome callbacks.OutcomeKind, latency time.Duration) {
	ToolCalls.WithLabelValues(tool, string(outcome)).Inc()
	if latency > 0 {
		ToolLatency.WithLabelValues(tool).Observe(latency.Seconds())
	}
}

// ToolSink feeds tool call metrics from the callback adapter
func ToolSink() callbacks.ToolEventSink {
	return callbacks.SinkFunc(func(_ context.Context, ev callbacks.ToolEvent) {
		RecordToolCall(ev.Tool, ev.OutcomeKind(), ev.Duration)
	})
}

// RecordAgentCall records one question with its status label
func RecordAgentCall(agent, model, status string, latency time.Duration, inputTokens, outputTokens int) {
	AgentQuestions.WithLabelValues(agent, model, status).Inc()
	AgentLatency.WithLabelValues(agent, model).Observe(latency.Seconds())

	if inputTokens > 0 {
		AgentTokens.WithLabelValues(agent, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		AgentTokens.WithLabelValues(agent, model, "output").Add(float64(outputTokens))
	}
}

func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	DBQueries.WithLabelValues(database, operation, status).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

func RecordKafkaMessage(topic string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	KafkaMessages.WithLabelValues(topic, status).Inc()
}

func RecordKafkaConsumed(topic string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	KafkaConsumed.WithLabelValues(topic, status).Inc()
}

// RecordTelegramCommand matches telegram.MetricsMiddleware's callback
func RecordTelegramCommand(command string, success bool, _ time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	TelegramCommands.WithLabelValues(command, status).Inc()
}
