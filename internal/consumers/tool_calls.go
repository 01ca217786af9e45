package consumers

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"dataanalyst/internal/events"
	"dataanalyst/internal/metrics"
	"dataanalyst/pkg/backoff"
	"dataanalyst/pkg/logger"
)

// MessageReader is the part of the Kafka consumer used here
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// EventSubmitter buffers decoded events for storage
type EventSubmitter interface {
	Submit(ctx context.Context, ev events.ToolCallEvent) bool
}

// ToolCallConsumer reads tool call events from Kafka and hands them to the
// batching recorder that writes ClickHouse and Postgres.
type ToolCallConsumer struct {
	reader   MessageReader
	recorder EventSubmitter
	topic    string
	log      *logger.Logger

	readBackoff *backoff.Backoff
}

// NewToolCallConsumer creates a new tool call consumer
func NewToolCallConsumer(reader MessageReader, recorder EventSubmitter, topic string) *ToolCallConsumer {
	return &ToolCallConsumer{
		reader:      reader,
		recorder:    recorder,
		topic:       topic,
		log:         logger.Get().With("component", "tool_call_consumer", "topic", topic),
		readBackoff: backoff.New(backoff.Config{Min: time.Second, Max: 30 * time.Second}),
	}
}

// Start consumes until ctx is cancelled. Undecodable messages are logged
// and skipped.
func (c *ToolCallConsumer) Start(ctx context.Context) error {
	c.log.Info("Starting tool call consumer")

	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Errorf("Failed to close tool call consumer: %v", err)
		} else {
			c.log.Info("Tool call consumer closed")
		}
	}()

	var handled, skipped int
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Infow("Tool call consumer stopping", "handled", handled, "skipped", skipped)
				return nil
			}
			c.log.Warnw("Failed to read tool call event",
				"consecutive_failures", c.readBackoff.Failures()+1,
				"error", err,
			)
			_ = c.readBackoff.Wait(ctx)
			continue
		}
		c.readBackoff.Success()

		if c.handle(ctx, msg) {
			handled++
		} else {
			skipped++
		}
	}
}

func (c *ToolCallConsumer) handle(ctx context.Context, msg kafka.Message) bool {
	ev, err := events.DecodeToolCallEvent(msg)
	if err != nil {
		c.log.Errorw("Skipping malformed tool call event",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		metrics.RecordKafkaConsumed(c.topic, err)
		return false
	}

	metrics.RecordKafkaConsumed(c.topic, nil)
	if !c.recorder.Submit(ctx, ev) {
		c.log.Warnw("Tool call event dropped, buffer full", "event_id", ev.ID)
		return false
	}
	return true
}
