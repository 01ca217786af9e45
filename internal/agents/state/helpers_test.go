package state

import (
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/adk/session"
)

func TestStateHelpers_UserLevel(t *testing.T) {
	state := newTestState()

	assert.Equal(t, 0, GetQuestionsAsked(state))

	count, err := IncrementQuestionsAsked(state)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = IncrementQuestionsAsked(state)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	now := time.Now()
	require.NoError(t, SetLastQuestionAt(state, now))
	assert.WithinDuration(t, now, GetLastQuestionAt(state), time.Second)
}

func TestStateHelpers_ToolTiming(t *testing.T) {
	state := newTestState()
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	_, ok := ToolDuration(state, "call-1", start)
	assert.False(t, ok, "no start recorded")

	require.NoError(t, SetToolStartTime(state, "call-1", start))
	require.NoError(t, SetToolStartTime(state, "call-2", start.Add(time.Second)))

	d, ok := ToolDuration(state, "call-1", start.Add(1500*time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, d)

	d, ok = ToolDuration(state, "call-2", start.Add(1500*time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, d)
}

func TestStateHelpers_ToolCallCount(t *testing.T) {
	state := newTestState()

	assert.Equal(t, 0, GetToolCallCount(state))
	require.NoError(t, IncrementToolCallCount(state))
	require.NoError(t, IncrementToolCallCount(state))
	assert.Equal(t, 2, GetToolCallCount(state))

	// JSON-decoded numbers come back as float64
	require.NoError(t, state.Set(keyToolCallCount, float64(7)))
	assert.Equal(t, 7, GetToolCallCount(state))
}

func newTestState() session.State {
	return &testState{data: make(map[string]any)}
}

type testState struct {
	data map[string]any
}

func (s *testState) Get(key string) (any, error) {
	if val, ok := s.data[key]; ok {
		return val, nil
	}
	return nil, session.ErrStateKeyNotExist
}

func (s *testState) Set(key string, val any) error {
	s.data[key] = val
	return nil
}

func (s *testState) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for k, v := range s.data {
			if !yield(k, v) {
				return
			}
		}
	}
}
