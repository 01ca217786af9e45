package callbacks

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/api/googleapi"

	"dataanalyst/internal/domain/toolresponse"
	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/logger"
)

func newObservedCall(t *testing.T) (ToolCall, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return ToolCall{
		Tool: "execute_sql",
		Args: map[string]any{"query": "SELECT 1"},
		Log:  logger.NewForTest(zap.New(core)),
	}, logs
}

func TestOnToolError(t *testing.T) {
	badRequest := &googleapi.Error{Code: http.StatusBadRequest, Message: "Syntax error"}

	tests := []struct {
		name string
		err  error
		kind OutcomeKind
		msg  string
	}{
		{
			name: "malformed request root cause",
			err:  fmt.Errorf("tool failed: %w", badRequest),
			kind: OutcomeInvalidQuery,
			msg:  MsgInvalidQuery,
		},
		{
			name: "malformed request wins over timeout text",
			err:  fmt.Errorf("Timed out waiting: %w", errors.ErrBadRequest),
			kind: OutcomeInvalidQuery,
			msg:  MsgInvalidQuery,
		},
		{
			name: "timeout marker on outer error",
			err:  errors.New("Request Timed out after 30s"),
			kind: OutcomeTimeout,
			msg:  MsgTimeout,
		},
		{
			name: "timeout marker is case sensitive",
			err:  errors.New("request timed out"),
			kind: OutcomeToolError,
			msg:  MsgGenericError,
		},
		{
			name: "timeout text in outer error wrapping a generic cause",
			err:  fmt.Errorf("query failed: %w", errors.New("Timed out")),
			kind: OutcomeTimeout,
			msg:  MsgTimeout,
		},
		{
			name: "timeout text only on root cause",
			err:  &opaqueError{msg: "query failed", cause: errors.New("Timed out after 30s")},
			kind: OutcomeToolError,
			msg:  MsgGenericError,
		},
		{
			name: "unavailable",
			err:  errors.Wrap(errors.ErrUnavailable, "dial bigquery"),
			kind: OutcomeToolError,
			msg:  MsgGenericError,
		},
		{
			name: "non-400 api error",
			err:  &googleapi.Error{Code: http.StatusForbidden},
			kind: OutcomeToolError,
			msg:  MsgGenericError,
		},
	}

	hooks := NewQueryHooks()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, logs := newObservedCall(t)

			out := hooks.OnToolError(call, tt.err)
			require.NotNil(t, out)
			assert.Equal(t, tt.kind, out.Kind)
			assert.Equal(t, map[string]any{KeyErrorMessage: tt.msg}, out.Payload())

			entries := logs.FilterLevelExact(zapcore.ErrorLevel).All()
			require.Len(t, entries, 1)
			assert.Contains(t, entries[0].Message, "Error executing tool 'execute_sql'")
			assert.Contains(t, entries[0].Message, tt.err.Error())
		})
	}
}

func TestOnToolResponse(t *testing.T) {
	tests := []struct {
		name   string
		result map[string]any
		want   map[string]any
		kind   OutcomeKind
	}{
		{
			name:   "error status",
			result: map[string]any{"status": "ERROR", "error_details": "quota exceeded"},
			want:   map[string]any{KeyErrorMessage: MsgGenericError},
			kind:   OutcomeEmbeddedError,
		},
		{
			name:   "error status takes precedence over empty rows",
			result: map[string]any{"status": "ERROR", "rows": []any{}},
			want:   map[string]any{KeyErrorMessage: MsgGenericError},
			kind:   OutcomeEmbeddedError,
		},
		{
			name:   "empty rows",
			result: map[string]any{"rows": []any{}},
			want:   map[string]any{KeyMessage: MsgNoResults},
			kind:   OutcomeNoResults,
		},
		{
			name:   "null rows",
			result: map[string]any{"rows": nil},
			want:   map[string]any{KeyMessage: MsgNoResults},
			kind:   OutcomeNoResults,
		},
		{
			name:   "empty object rows",
			result: map[string]any{"rows": map[string]any{}},
			want:   map[string]any{KeyMessage: MsgNoResults},
			kind:   OutcomeNoResults,
		},
		{
			name:   "zero rows",
			result: map[string]any{"rows": 0},
			want:   map[string]any{KeyMessage: MsgNoResults},
			kind:   OutcomeNoResults,
		},
		{
			name:   "empty list wrapped by runtime",
			result: map[string]any{"result": []any{}},
			want:   map[string]any{KeyMessage: MsgNoResults},
			kind:   OutcomeNoResults,
		},
		{
			name:   "empty list as json text",
			result: map[string]any{"output": "[]"},
			want:   map[string]any{KeyMessage: MsgNoResults},
			kind:   OutcomeNoResults,
		},
		{
			name:   "rows present",
			result: map[string]any{"rows": []any{map[string]any{"job_id": "1"}}},
		},
		{
			name:   "non-empty list",
			result: map[string]any{"result": []any{map[string]any{"job_id": "1"}}},
		},
		{
			name:   "unrelated mapping",
			result: map[string]any{"foo": "bar"},
		},
		{
			name:   "success status",
			result: map[string]any{"status": "SUCCESS", "rows": []any{map[string]any{"n": 3}}},
		},
	}

	hooks := NewQueryHooks()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, _ := newObservedCall(t)

			out := hooks.OnToolResponse(call, toolresponse.Decode(tt.result))
			if tt.want == nil {
				assert.Nil(t, out)
				return
			}
			require.NotNil(t, out)
			assert.Equal(t, tt.kind, out.Kind)
			assert.Equal(t, tt.want, out.Payload())
		})
	}
}

func TestOnToolResponse_LogsErrorDetails(t *testing.T) {
	hooks := NewQueryHooks()

	call, logs := newObservedCall(t)
	hooks.OnToolResponse(call, toolresponse.Decode(map[string]any{
		"status":        "ERROR",
		"error_details": "quota exceeded",
	}))
	entries := logs.FilterMessage("Query tool returned an error: quota exceeded").All()
	assert.Len(t, entries, 1)

	call, logs = newObservedCall(t)
	hooks.OnToolResponse(call, toolresponse.Decode(map[string]any{"status": "ERROR"}))
	entries = logs.FilterMessage("Query tool returned an error: Unknown error").All()
	assert.Len(t, entries, 1)
}

// opaqueError hides its cause from Error() but still unwraps to it
type opaqueError struct {
	msg   string
	cause error
}

func (e *opaqueError) Error() string { return e.msg }
func (e *opaqueError) Unwrap() error { return e.cause }
