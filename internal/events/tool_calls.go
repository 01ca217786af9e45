// Package events carries finished tool calls over Kafka so storage writers can
// run outside the agent process.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"dataanalyst/internal/agents/callbacks"
	"dataanalyst/internal/metrics"
	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/logger"
)

// ToolCallEvent is the wire form of callbacks.ToolEvent.
type ToolCallEvent struct {
	ID         uuid.UUID      `json:"id"`
	CallID     string         `json:"call_id"`
	Tool       string         `json:"tool"`
	Args       map[string]any `json:"args,omitempty"`
	AgentName  string         `json:"agent_name"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	Outcome    string         `json:"outcome"`
	Message    string         `json:"message,omitempty"`
	Success    bool           `json:"success"`
	ErrorText  string         `json:"error_text,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Query returns the SQL text the model passed to the tool, if any
func (e ToolCallEvent) Query() string {
	q, _ := e.Args["query"].(string)
	return q
}

// NewToolCallEvent converts a hook event. Free text is sanitized to valid
// UTF-8 since driver and bigquery errors may carry raw bytes.
func NewToolCallEvent(ev callbacks.ToolEvent) ToolCallEvent {
	out := ToolCallEvent{
		ID:         ev.ID,
		CallID:     ev.CallID,
		Tool:       ev.Tool,
		Args:       ev.Args,
		AgentName:  ev.AgentName,
		UserID:     ev.UserID,
		SessionID:  ev.SessionID,
		Outcome:    string(ev.OutcomeKind()),
		Success:    ev.Success(),
		ErrorText:  sanitize(ev.ErrorText),
		DurationMs: ev.Duration.Milliseconds(),
		Timestamp:  ev.Timestamp.UTC(),
	}
	if ev.Outcome != nil {
		out.Message = ev.Outcome.Message
	}
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	return out
}

func sanitize(s string) string {
	return strings.ToValidUTF8(s, "")
}

// Encode builds the Kafka message; the session id is the key so one
// conversation stays on one partition.
func (e ToolCallEvent) Encode() (kafka.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "marshal tool call event")
	}
	return kafka.Message{Key: []byte(e.SessionID), Value: data, Time: e.Timestamp}, nil
}

// DecodeToolCallEvent parses a message produced by Encode
func DecodeToolCallEvent(msg kafka.Message) (ToolCallEvent, error) {
	var ev ToolCallEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return ToolCallEvent{}, errors.Wrap(err, "unmarshal tool call event")
	}
	if ev.ID == uuid.Nil {
		return ToolCallEvent{}, errors.NewValidationError("id", "missing event id", string(msg.Key))
	}
	return ev, nil
}

// BatchProducer is the part of the Kafka producer the publisher needs
type BatchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []kafka.Message) error
}

// ToolCallPublisher writes tool call events to one topic.
type ToolCallPublisher struct {
	producer BatchProducer
	topic    string
	log      *logger.Logger
}

// NewToolCallPublisher creates a publisher for topic
func NewToolCallPublisher(producer BatchProducer, topic string) *ToolCallPublisher {
	return &ToolCallPublisher{
		producer: producer,
		topic:    topic,
		log:      logger.Get().With("component", "tool_call_publisher", "topic", topic),
	}
}

func (p *ToolCallPublisher) Name() string { return "kafka" }

// WriteBatch publishes events in one request
func (p *ToolCallPublisher) WriteBatch(ctx context.Context, batch []ToolCallEvent) error {
	messages := make([]kafka.Message, 0, len(batch))
	for _, ev := range batch {
		msg, err := ev.Encode()
		if err != nil {
			p.log.Warnf("Skipping tool call event %s: %v", ev.ID, err)
			continue
		}
		messages = append(messages, msg)
	}

	err := p.producer.PublishBatch(ctx, p.topic, messages)
	for range messages {
		metrics.RecordKafkaMessage(p.topic, err)
	}
	return err
}
