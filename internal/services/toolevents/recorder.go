// Package toolevents buffers finished tool calls and writes them to the
// configured stores in batches, away from the agent's request path.
package toolevents

import (
	"context"
	"time"

	"dataanalyst/internal/agents/callbacks"
	"dataanalyst/internal/events"
	"dataanalyst/pkg/batch"
	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/logger"
)

// Writer is one destination for tool call batches.
type Writer interface {
	Name() string
	WriteBatch(ctx context.Context, batch []events.ToolCallEvent) error
}

// Config controls batching
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
}

// Recorder implements callbacks.ToolEventSink. Every writer receives every
// batch; one writer failing does not stop the others.
type Recorder struct {
	writers []Writer
	buffer  *batch.Writer[events.ToolCallEvent]
	log     *logger.Logger
}

var _ callbacks.ToolEventSink = (*Recorder)(nil)

// NewRecorder creates a recorder over writers
func NewRecorder(cfg Config, writers ...Writer) *Recorder {
	r := &Recorder{
		writers: writers,
		log:     logger.Get().With("component", "tool_events"),
	}
	r.buffer = batch.NewWriter(batch.Config[events.ToolCallEvent]{
		Name:         "tool_events",
		FlushFunc:    r.flush,
		MaxBatchSize: cfg.BatchSize,
		MaxAge:       cfg.FlushInterval,
		FlushTimeout: cfg.WriteTimeout,
	})
	return r
}

// Start begins background flushing
func (r *Recorder) Start(ctx context.Context) {
	r.buffer.Start(ctx)
}

// Stop flushes what is buffered
func (r *Recorder) Stop(ctx context.Context) error {
	return r.buffer.Stop(ctx)
}

// RecordToolCall buffers a hook event; it never blocks on I/O once started
func (r *Recorder) RecordToolCall(ctx context.Context, ev callbacks.ToolEvent) {
	r.Submit(ctx, events.NewToolCallEvent(ev))
}

// Submit buffers an event that is already in wire form
func (r *Recorder) Submit(ctx context.Context, ev events.ToolCallEvent) bool {
	return r.buffer.Add(ctx, ev)
}

// Stats exposes buffer state
func (r *Recorder) Stats() batch.Stats {
	return r.buffer.Stats()
}

func (r *Recorder) flush(ctx context.Context, items []events.ToolCallEvent) error {
	var errs []error
	for _, w := range r.writers {
		if err := w.WriteBatch(ctx, items); err != nil {
			r.log.Errorf("Failed to write %d tool events to %s: %v", len(items), w.Name(), err)
			errs = append(errs, errors.Wrap(err, w.Name()))
		}
	}
	return errors.Join(errs...)
}
