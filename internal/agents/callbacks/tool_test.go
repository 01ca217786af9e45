package callbacks

import (
	"context"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/genai"

	"dataanalyst/internal/agents/state"
	"dataanalyst/internal/domain/toolresponse"
	"dataanalyst/internal/tools/middleware"
	"dataanalyst/pkg/errors"
)

type fakeState struct {
	mu   sync.Mutex
	data map[string]any
}

func newFakeState() *fakeState { return &fakeState{data: map[string]any{}} }

func (s *fakeState) Get(key string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return nil, session.ErrStateKeyNotExist
}

func (s *fakeState) Set(key string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = val
	return nil
}

func (s *fakeState) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for k, v := range s.data {
			if !yield(k, v) {
				return
			}
		}
	}
}

// fakeToolContext implements the parts of tool.Context the callbacks use.
type fakeToolContext struct {
	tool.Context
	state  *fakeState
	callID string
}

func newFakeToolContext(callID string) *fakeToolContext {
	return &fakeToolContext{state: newFakeState(), callID: callID}
}

func (c *fakeToolContext) Deadline() (time.Time, bool)          { return time.Time{}, false }
func (c *fakeToolContext) Done() <-chan struct{}                { return nil }
func (c *fakeToolContext) Err() error                           { return nil }
func (c *fakeToolContext) Value(any) any                        { return nil }
func (c *fakeToolContext) UserID() string                       { return "user-1" }
func (c *fakeToolContext) SessionID() string                    { return "session-1" }
func (c *fakeToolContext) AgentName() string                    { return "data_analyst_agent" }
func (c *fakeToolContext) FunctionCallID() string               { return c.callID }
func (c *fakeToolContext) State() session.State                 { return c.state }
func (c *fakeToolContext) ReadonlyState() session.ReadonlyState { return c.state }

type fakeTool struct {
	tool.Tool
	name string
}

func (t fakeTool) Name() string { return t.name }

type recordingSink struct {
	events []ToolEvent
}

func (s *recordingSink) RecordToolCall(_ context.Context, ev ToolEvent) {
	s.events = append(s.events, ev)
}

type breadcrumb struct {
	message string
	level   errors.Level
}

type recordingTracker struct {
	crumbs []breadcrumb
}

func (r *recordingTracker) CaptureError(context.Context, error, map[string]string) error { return nil }
func (r *recordingTracker) CaptureMessage(context.Context, string, errors.Level, map[string]string) error {
	return nil
}
func (r *recordingTracker) AddBreadcrumb(_ context.Context, message, _ string, level errors.Level, _ map[string]interface{}) {
	r.crumbs = append(r.crumbs, breadcrumb{message: message, level: level})
}
func (r *recordingTracker) Flush(context.Context) error { return nil }

func TestAfterToolCallback_SubstitutesError(t *testing.T) {
	ctx := newFakeToolContext("call-1")
	sink := &recordingSink{}

	before := RecordToolStartTimeBeforeToolCallback()
	after := AfterToolCallback(NewQueryHooks(), sink)
	sqlTool := fakeTool{name: "execute_sql"}
	args := map[string]any{"query": "SELEC 1"}

	out, err := before(ctx, sqlTool, args)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = after(ctx, sqlTool, args, nil, errors.Wrap(errors.ErrBadRequest, "query rejected"))
	require.NoError(t, err, "classified failures are absorbed")
	assert.Equal(t, map[string]any{KeyErrorMessage: MsgInvalidQuery}, out)

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, "execute_sql", ev.Tool)
	assert.Equal(t, "call-1", ev.CallID)
	assert.Equal(t, "user-1", ev.UserID)
	assert.Equal(t, "session-1", ev.SessionID)
	assert.Equal(t, OutcomeInvalidQuery, ev.OutcomeKind())
	assert.Equal(t, "query rejected: bad request", ev.ErrorText)
	assert.False(t, ev.Success())
	assert.GreaterOrEqual(t, ev.Duration, time.Duration(0))

	assert.Equal(t, 1, state.GetToolCallCount(ctx.state))
}

type failingRunTool struct {
	tool.Tool
	failure error
}

func (t failingRunTool) Name() string { return "execute_sql" }
func (t failingRunTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{Name: "execute_sql"}
}
func (t failingRunTool) Run(tool.Context, any) (map[string]any, error) { return nil, t.failure }

func TestAfterToolCallback_FailureCarriedInResult(t *testing.T) {
	ctx := newFakeToolContext("call-4")
	sink := &recordingSink{}
	after := AfterToolCallback(NewQueryHooks(), sink)

	wrapped := middleware.CatchErrors(failingRunTool{failure: errors.New("Timed out after 1m0s")})
	result, err := wrapped.(interface {
		Run(tool.Context, any) (map[string]any, error)
	}).Run(ctx, map[string]any{})
	require.NoError(t, err)

	out, err := after(ctx, wrapped, nil, result, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{KeyErrorMessage: MsgTimeout}, out)

	require.Len(t, sink.events, 1)
	assert.Equal(t, OutcomeTimeout, sink.events[0].OutcomeKind())
	assert.Equal(t, "Timed out after 1m0s", sink.events[0].ErrorText)
}

type silentHooks struct{}

func (silentHooks) OnToolError(ToolCall, error) *Outcome                    { return nil }
func (silentHooks) OnToolResponse(ToolCall, toolresponse.Response) *Outcome { return nil }

func TestAfterToolCallback_UnhandledCaughtFailureIsReported(t *testing.T) {
	ctx := newFakeToolContext("call-5")
	after := AfterToolCallback(silentHooks{})

	wrapped := middleware.CatchErrors(failingRunTool{failure: errors.ErrUnavailable})
	result, err := wrapped.(interface {
		Run(tool.Context, any) (map[string]any, error)
	}).Run(ctx, map[string]any{})
	require.NoError(t, err)

	out, err := after(ctx, wrapped, nil, result, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"error": errors.ErrUnavailable.Error()}, out)
}

func TestAfterToolCallback_PassThrough(t *testing.T) {
	ctx := newFakeToolContext("call-2")
	sink := &recordingSink{}
	after := AfterToolCallback(NewQueryHooks(), sink)

	result := map[string]any{"rows": []any{map[string]any{"job_id": "1"}}}
	out, err := after(ctx, fakeTool{name: "execute_sql"}, nil, result, nil)
	require.NoError(t, err)
	assert.Nil(t, out, "nil result keeps the original response")

	require.Len(t, sink.events, 1)
	assert.Equal(t, OutcomePassThrough, sink.events[0].OutcomeKind())
	assert.True(t, sink.events[0].Success())
	assert.Zero(t, sink.events[0].Duration, "no start time was recorded")
}

func TestAfterToolCallback_NoResults(t *testing.T) {
	ctx := newFakeToolContext("call-3")
	after := AfterToolCallback(NewQueryHooks())

	out, err := after(ctx, fakeTool{name: "execute_sql"}, nil, map[string]any{"rows": []any{}}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{KeyMessage: MsgNoResults}, out)
}

func TestTrackerSink(t *testing.T) {
	tracker := &recordingTracker{}
	sink := TrackerSink(tracker)

	sink.RecordToolCall(context.Background(), ToolEvent{Tool: "execute_sql", CallID: "a"})
	sink.RecordToolCall(context.Background(), ToolEvent{
		Tool:      "execute_sql",
		CallID:    "b",
		ErrorText: "boom",
		Outcome:   &Outcome{Kind: OutcomeToolError},
	})

	require.Len(t, tracker.crumbs, 2)
	assert.Equal(t, errors.LevelInfo, tracker.crumbs[0].level)
	assert.Equal(t, "execute_sql[a] passthrough", tracker.crumbs[0].message)
	assert.Equal(t, errors.LevelWarning, tracker.crumbs[1].level)
	assert.Equal(t, "execute_sql[b] tool_error", tracker.crumbs[1].message)
}
