package analyst

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataanalyst/internal/adapters/ratelimit"
	"dataanalyst/internal/agents"
	"dataanalyst/internal/metrics"
	"dataanalyst/pkg/errors"
)

type fakeAsker struct {
	answer *agents.Answer
	err    error

	questions []agents.Question
	resets    []string
}

func (f *fakeAsker) Ask(_ context.Context, q agents.Question) (*agents.Answer, error) {
	f.questions = append(f.questions, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func (f *fakeAsker) ResetSession(_ context.Context, userID, sessionID string) error {
	f.resets = append(f.resets, userID+"/"+sessionID)
	return nil
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.ErrUnavailable
}

func (failingLimiter) Limit() float64 { return 1 }

func questions(model, status string) float64 {
	return testutil.ToFloat64(metrics.AgentQuestions.WithLabelValues(agents.AgentName, model, status))
}

func TestService_Ask(t *testing.T) {
	asker := &fakeAsker{answer: &agents.Answer{Text: "There are 12 open roles.", SessionID: "s1", InputTokens: 40, OutputTokens: 8}}
	svc := NewService(asker, nil, "model-ask")

	answer, err := svc.Ask(context.Background(), Request{UserID: "u1", SessionID: "s1", Question: "  How many open roles?  "})

	require.NoError(t, err)
	assert.Equal(t, "There are 12 open roles.", answer.Text)
	require.Len(t, asker.questions, 1)
	assert.Equal(t, "How many open roles?", asker.questions[0].Text)
	assert.Equal(t, 1.0, questions("model-ask", StatusSuccess))
	assert.Equal(t, 40.0, testutil.ToFloat64(metrics.AgentTokens.WithLabelValues(agents.AgentName, "model-ask", "input")))
}

func TestService_AskValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		message string
	}{
		{name: "missing user", req: Request{Question: "hi"}, message: "user_id is required"},
		{name: "blank question", req: Request{UserID: "u1", Question: "   "}, message: "question is required"},
		{name: "question too long", req: Request{UserID: "u1", Question: strings.Repeat("a", MaxQuestionLength+1)}, message: "question is too long (max 4000 characters)"},
		{name: "session too long", req: Request{UserID: "u1", SessionID: strings.Repeat("s", 129), Question: "hi"}, message: "session_id is too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asker := &fakeAsker{}
			svc := NewService(asker, nil, "model-validation")

			_, err := svc.Ask(context.Background(), tt.req)

			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.message)
			assert.Empty(t, asker.questions)
		})
	}
}

func TestService_AskRateLimited(t *testing.T) {
	asker := &fakeAsker{answer: &agents.Answer{Text: "ok"}}
	svc := NewService(asker, ratelimit.NewLocalLimiter(60, 1), "model-limited")
	ctx := context.Background()

	_, err := svc.Ask(ctx, Request{UserID: "u1", Question: "first"})
	require.NoError(t, err)

	_, err = svc.Ask(ctx, Request{UserID: "u1", Question: "second"})
	assert.ErrorIs(t, err, errors.ErrRateLimitExceeded)
	assert.Len(t, asker.questions, 1)
	assert.Equal(t, 1.0, questions("model-limited", StatusRateLimited))

	_, err = svc.Ask(ctx, Request{UserID: "u2", Question: "other user"})
	assert.NoError(t, err)
}

func TestService_AskLimiterOutageFailsOpen(t *testing.T) {
	asker := &fakeAsker{answer: &agents.Answer{Text: "ok"}}
	svc := NewService(asker, failingLimiter{}, "model-outage")

	_, err := svc.Ask(context.Background(), Request{UserID: "u1", Question: "still works?"})

	assert.NoError(t, err)
	assert.Len(t, asker.questions, 1)
}

func TestService_AskFailureStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status string
	}{
		{name: "timeout", err: errors.Wrapf(errors.ErrTimeout, "question exceeded %s", time.Minute), status: StatusTimeout},
		{name: "validation", err: errors.NewValidationError("question", "must not be empty", ""), status: StatusInvalid},
		{name: "internal", err: errors.Wrap(errors.ErrInternal, "agent returned no final response"), status: StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := "model-fail-" + tt.name
			svc := NewService(&fakeAsker{err: tt.err}, nil, model)

			_, err := svc.Ask(context.Background(), Request{UserID: "u1", Question: "q"})

			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1.0, questions(model, tt.status))
		})
	}
}

func TestService_Reset(t *testing.T) {
	asker := &fakeAsker{}
	svc := NewService(asker, nil, "model-reset")

	require.NoError(t, svc.Reset(context.Background(), "u1", "s1"))
	assert.Equal(t, []string{"u1/s1"}, asker.resets)

	assert.ErrorIs(t, svc.Reset(context.Background(), "u1", ""), errors.ErrInvalidInput)
}
