package callbacks

import (
	"strings"

	"dataanalyst/internal/domain/toolresponse"
	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/logger"
)

// User-facing messages substituted for tool failures and empty results.
const (
	MsgInvalidQuery = "I was unable to run the query as it seems to be invalid. Please try rephrasing your request."

	MsgTimeout = "The database query took too long to execute and timed out. " +
		"This can happen with complex questions on large datasets. " +
		"Please try asking a more specific question."

	MsgGenericError = "I encountered an error while trying to query the database. " +
		"Please try rephrasing your request."

	MsgNoResults = "I couldn't find any information matching your criteria in the database. " +
		"Please try a different search or broaden your criteria."
)

// Payload keys
const (
	KeyErrorMessage = "error_message"
	KeyMessage      = "message"
)

// TimeoutMarker is matched case-sensitively against the outer error text.
const TimeoutMarker = "Timed out"

const unknownErrorDetails = "Unknown error"

// OutcomeKind classifies what a hook did with a tool call.
type OutcomeKind string

const (
	OutcomeInvalidQuery  OutcomeKind = "invalid_query"
	OutcomeTimeout       OutcomeKind = "timeout"
	OutcomeToolError     OutcomeKind = "tool_error"
	OutcomeEmbeddedError OutcomeKind = "embedded_error"
	OutcomeNoResults     OutcomeKind = "no_results"
	OutcomePassThrough   OutcomeKind = "passthrough"
)

// Outcome is a substituted, user-facing tool result.
type Outcome struct {
	Kind    OutcomeKind
	Key     string
	Message string
}

// Payload renders the single-field map handed back to the model.
func (o *Outcome) Payload() map[string]any {
	return map[string]any{o.Key: o.Message}
}

func errorOutcome(kind OutcomeKind, message string) *Outcome {
	return &Outcome{Kind: kind, Key: KeyErrorMessage, Message: message}
}

func noResultsOutcome() *Outcome {
	return &Outcome{Kind: OutcomeNoResults, Key: KeyMessage, Message: MsgNoResults}
}

// ToolCall is the per-invocation view a hook receives.
type ToolCall struct {
	Tool      string
	Args      map[string]any
	AgentName string
	UserID    string
	SessionID string
	Log       *logger.Logger
}

func (c ToolCall) logger() *logger.Logger {
	if c.Log != nil {
		return c.Log
	}
	return logger.Get().With("tool", c.Tool)
}

// ToolHooks is the pair of operations the agent runtime invokes around a tool
// call. A nil Outcome leaves the original result or error untouched.
type ToolHooks interface {
	OnToolError(call ToolCall, err error) *Outcome
	OnToolResponse(call ToolCall, resp toolresponse.Response) *Outcome
}

// QueryHooks shapes failures and results of the SQL query tool.
type QueryHooks struct{}

var _ ToolHooks = (*QueryHooks)(nil)

// NewQueryHooks creates the query tool hooks
func NewQueryHooks() *QueryHooks {
	return &QueryHooks{}
}

// OnToolError maps a failed query to a user-facing message. The malformed
// request check looks at the root cause while the timeout check reads the
// outer error text.
func (h *QueryHooks) OnToolError(call ToolCall, err error) *Outcome {
	call.logger().Errorf("Error executing tool '%s' with args %v: %v", call.Tool, call.Args, err)

	root := errors.RootCause(err)
	if IsMalformedRequest(root) {
		return errorOutcome(OutcomeInvalidQuery, MsgInvalidQuery)
	}

	if strings.Contains(err.Error(), TimeoutMarker) {
		return errorOutcome(OutcomeTimeout, MsgTimeout)
	}

	return errorOutcome(OutcomeToolError, MsgGenericError)
}

// OnToolResponse substitutes embedded errors and empty result sets.
func (h *QueryHooks) OnToolResponse(call ToolCall, resp toolresponse.Response) *Outcome {
	switch resp.Kind {
	case toolresponse.KindStructured:
		if resp.IsErrorStatus() {
			details, ok := resp.ErrorDetails()
			if !ok {
				details = unknownErrorDetails
			}
			call.logger().Errorf("Query tool returned an error: %v", details)
			return errorOutcome(OutcomeEmbeddedError, MsgGenericError)
		}
		if resp.HasEmptyRows() {
			return noResultsOutcome()
		}
	case toolresponse.KindList:
		if resp.IsEmptyList() {
			return noResultsOutcome()
		}
	}

	return nil
}
