package callbacks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/tool"

	"dataanalyst/internal/agents/state"
	"dataanalyst/internal/domain/toolresponse"
	"dataanalyst/internal/tools/middleware"
	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/logger"
)

// ToolEvent describes one finished tool invocation after the hooks ran.
type ToolEvent struct {
	ID        uuid.UUID
	CallID    string
	Tool      string
	Args      map[string]any
	AgentName string
	UserID    string
	SessionID string

	// Outcome is nil when the result was passed through untouched
	Outcome   *Outcome
	ErrorText string
	Duration  time.Duration
	Timestamp time.Time
}

// Success reports whether the tool returned a usable result
func (e ToolEvent) Success() bool {
	return e.ErrorText == "" && (e.Outcome == nil || e.Outcome.Kind == OutcomeNoResults)
}

// OutcomeKind returns the kind or passthrough when nothing was substituted
func (e ToolEvent) OutcomeKind() OutcomeKind {
	if e.Outcome == nil {
		return OutcomePassThrough
	}
	return e.Outcome.Kind
}

// ToolEventSink receives tool events (metrics, audit storage, event bus).
type ToolEventSink interface {
	RecordToolCall(ctx context.Context, ev ToolEvent)
}

// SinkFunc adapts a plain function to ToolEventSink
type SinkFunc func(ctx context.Context, ev ToolEvent)

func (f SinkFunc) RecordToolCall(ctx context.Context, ev ToolEvent) { f(ctx, ev) }

// RecordToolStartTimeBeforeToolCallback records execution start time for duration tracking
func RecordToolStartTimeBeforeToolCallback() llmagent.BeforeToolCallback {
	return func(ctx tool.Context, t tool.Tool, args map[string]any) (map[string]any, error) {
		if err := state.SetToolStartTime(ctx.State(), ctx.FunctionCallID(), time.Now()); err != nil {
			logger.Get().With("tool", t.Name()).Debugf("Failed to record tool start time: %v", err)
		}
		return nil, nil
	}
}

// AfterToolCallback runs hooks on every tool result and fans the resulting
// event out to sinks. A substituted outcome replaces both the result and the
// error, so the model only ever sees the user-facing message. Tool failures
// arrive either as err or, for tools wrapped by middleware.CatchErrors,
// inside result.
func AfterToolCallback(hooks ToolHooks, sinks ...ToolEventSink) llmagent.AfterToolCallback {
	return func(ctx tool.Context, t tool.Tool, args, result map[string]any, err error) (map[string]any, error) {
		caught := false
		if err == nil {
			if err = middleware.Failure(result); err != nil {
				caught = true
			}
		}
		toolName := t.Name()
		call := ToolCall{
			Tool:      toolName,
			Args:      args,
			AgentName: ctx.AgentName(),
			UserID:    ctx.UserID(),
			SessionID: ctx.SessionID(),
			Log: logger.Get().With(
				"component", "tool_hooks",
				"tool", toolName,
				"user", ctx.UserID(),
			),
		}

		var outcome *Outcome
		if err != nil {
			outcome = hooks.OnToolError(call, err)
		} else {
			outcome = hooks.OnToolResponse(call, toolresponse.Decode(result))
		}

		if len(sinks) > 0 {
			now := time.Now()
			ev := ToolEvent{
				ID:        uuid.New(),
				CallID:    ctx.FunctionCallID(),
				Tool:      toolName,
				Args:      args,
				AgentName: call.AgentName,
				UserID:    call.UserID,
				SessionID: call.SessionID,
				Outcome:   outcome,
				Timestamp: now,
			}
			if err != nil {
				ev.ErrorText = err.Error()
			}
			if d, ok := state.ToolDuration(ctx.ReadonlyState(), ev.CallID, now); ok {
				ev.Duration = d
			}
			for _, sink := range sinks {
				sink.RecordToolCall(ctx, ev)
			}
		}

		if err := state.IncrementToolCallCount(ctx.State()); err != nil {
			call.Log.Debugf("Failed to bump tool call count: %v", err)
		}

		if outcome == nil {
			if caught {
				// Same shape the runtime reports for an unwrapped failure
				return map[string]any{"error": err.Error()}, nil
			}
			return nil, nil
		}
		return outcome.Payload(), nil
	}
}

// LogSink writes a one-line summary per tool call at debug level
func LogSink() ToolEventSink {
	return SinkFunc(func(_ context.Context, ev ToolEvent) {
		logger.Get().With(
			"component", "tool_audit",
			"tool", ev.Tool,
			"user", ev.UserID,
			"outcome", string(ev.OutcomeKind()),
		).Debugf("Tool %s finished in %s", ev.Tool, ev.Duration)
	})
}

// TrackerSink leaves a breadcrumb per tool call so a later captured error
// carries the queries that led up to it.
func TrackerSink(tracker errors.Tracker) ToolEventSink {
	return SinkFunc(func(ctx context.Context, ev ToolEvent) {
		level := errors.LevelInfo
		if !ev.Success() {
			level = errors.LevelWarning
		}
		tracker.AddBreadcrumb(ctx, ev.String(), "tool", level, map[string]interface{}{
			"args":        ev.Args,
			"duration_ms": ev.Duration.Milliseconds(),
			"error":       ev.ErrorText,
		})
	})
}

func (e ToolEvent) String() string {
	return fmt.Sprintf("%s[%s] %s", e.Tool, e.CallID, e.OutcomeKind())
}
