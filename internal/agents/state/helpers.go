package state

import (
	"time"

	"google.golang.org/adk/session"
)

// State key prefixes (from ADK)
const (
	KeyPrefixApp  = "app:"  // Application-level (shared across all users)
	KeyPrefixUser = "user:" // User-level (shared across user's sessions)
	KeyPrefixTemp = "temp:" // Temporary (not persisted)
)

const (
	keyToolStart      = KeyPrefixTemp + "tool_start:"
	keyToolCallCount  = KeyPrefixTemp + "tool_call_count"
	keyQuestionsAsked = KeyPrefixUser + "questions_asked"
	keyLastQuestionAt = KeyPrefixUser + "last_question_at"
)

// ========================================
// User-Level State (shared across user's sessions)
// ========================================

// IncrementQuestionsAsked bumps the per-user question counter and returns the new value
func IncrementQuestionsAsked(state session.State) (int, error) {
	count := GetQuestionsAsked(state) + 1
	if err := state.Set(keyQuestionsAsked, count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetQuestionsAsked gets the per-user question counter
func GetQuestionsAsked(state session.ReadonlyState) int {
	return getInt(state, keyQuestionsAsked)
}

// SetLastQuestionAt records when the user last asked something
func SetLastQuestionAt(state session.State, t time.Time) error {
	return state.Set(keyLastQuestionAt, t)
}

// GetLastQuestionAt returns the zero time when nothing was recorded
func GetLastQuestionAt(state session.ReadonlyState) time.Time {
	return getTime(state, keyLastQuestionAt)
}

// ========================================
// Temporary State (not persisted to database)
// ========================================

// SetToolStartTime stores the start of a single function call. Keys are scoped
// by call ID so parallel calls in one turn do not overwrite each other.
func SetToolStartTime(state session.State, callID string, t time.Time) error {
	return state.Set(keyToolStart+callID, t)
}

// ToolDuration returns the elapsed time since SetToolStartTime for callID
func ToolDuration(state session.ReadonlyState, callID string, now time.Time) (time.Duration, bool) {
	start := getTime(state, keyToolStart+callID)
	if start.IsZero() {
		return 0, false
	}
	return now.Sub(start), true
}

// IncrementToolCallCount increments the tool call counter
func IncrementToolCallCount(state session.State) error {
	return state.Set(keyToolCallCount, GetToolCallCount(state)+1)
}

// GetToolCallCount gets the tool call counter
func GetToolCallCount(state session.ReadonlyState) int {
	return getInt(state, keyToolCallCount)
}

func getInt(state session.ReadonlyState, key string) int {
	val, err := state.Get(key)
	if err != nil {
		return 0
	}
	switch n := val.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		// values round-tripped through JSON session storage
		return int(n)
	}
	return 0
}

func getTime(state session.ReadonlyState, key string) time.Time {
	val, err := state.Get(key)
	if err != nil {
		return time.Time{}
	}
	if t, ok := val.(time.Time); ok {
		return t
	}
	return time.Time{}
}
