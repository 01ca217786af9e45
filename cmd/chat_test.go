package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataanalyst/internal/agents"
	"dataanalyst/internal/services/analyst"
	"dataanalyst/pkg/errors"
)

type stubAnalyst struct {
	requests []analyst.Request
	resets   []string
	err      error
}

func (s *stubAnalyst) Ask(_ context.Context, req analyst.Request) (*agents.Answer, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &agents.Answer{
		Text:         "There are 12 open roles.",
		SessionID:    "sess-1",
		ToolCalls:    []agents.ToolCallTrace{{Name: "execute_sql", Query: "SELECT\n  COUNT(*)\nFROM jobs"}},
		InputTokens:  1500,
		OutputTokens: 20,
		Duration:     1234 * time.Millisecond,
	}, nil
}

func (s *stubAnalyst) Reset(_ context.Context, userID, sessionID string) error {
	s.resets = append(s.resets, userID+"/"+sessionID)
	return nil
}

func TestChatLoop_KeepsSessionUntilReset(t *testing.T) {
	svc := &stubAnalyst{}
	var out bytes.Buffer
	loop := &chatLoop{analyst: svc, userID: "cli", out: &out}

	in := strings.NewReader("how many roles?\n\nand in Atlanta?\n/reset\nagain\n/quit\nignored\n")
	require.NoError(t, loop.Run(context.Background(), in))

	require.Len(t, svc.requests, 3)
	assert.Empty(t, svc.requests[0].SessionID)
	assert.Equal(t, "sess-1", svc.requests[1].SessionID)
	assert.Empty(t, svc.requests[2].SessionID, "reset starts a new session")
	assert.Equal(t, []string{"cli/sess-1"}, svc.resets)

	assert.Contains(t, out.String(), "There are 12 open roles.")
	assert.Contains(t, out.String(), "-- 1 query, 1.23s, 1,520 tokens")
	assert.Contains(t, out.String(), "Started a new conversation.")
}

func TestChatLoop_ErrorsDoNotEndSession(t *testing.T) {
	svc := &stubAnalyst{err: errors.NewValidationError("question", "question is too long", "")}
	var out bytes.Buffer
	loop := &chatLoop{analyst: svc, userID: "cli", out: &out}

	require.NoError(t, loop.Run(context.Background(), strings.NewReader("q1\nq2\n")))

	assert.Len(t, svc.requests, 2)
	assert.Equal(t, 2, strings.Count(out.String(), "error: question is too long"))
}

func TestPrintAnswer_Verbose(t *testing.T) {
	svc := &stubAnalyst{}
	ans, err := svc.Ask(context.Background(), analyst.Request{})
	require.NoError(t, err)

	var out bytes.Buffer
	printAnswer(&out, ans, true)

	assert.Contains(t, out.String(), "  [1] execute_sql: SELECT COUNT(*) FROM jobs\n")
}
