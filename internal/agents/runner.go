package agents

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/runner"
	adksession "google.golang.org/adk/session"
	"google.golang.org/genai"

	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/logger"
)

// Runner executes the analyst agent one question at a time, keeping
// conversation history in the session service.
type Runner struct {
	agent          agent.Agent
	runner         *runner.Runner
	sessionService adksession.Service
	appName        string
	timeout        time.Duration

	log *logger.Logger
}

// NewRunner creates a runner; a nil session service falls back to in-memory.
func NewRunner(ag agent.Agent, appName string, sessionService adksession.Service, timeout time.Duration) (*Runner, error) {
	if sessionService == nil {
		sessionService = adksession.InMemoryService()
	}

	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          ag,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create ADK runner")
	}

	return &Runner{
		agent:          ag,
		runner:         r,
		sessionService: sessionService,
		appName:        appName,
		timeout:        timeout,
		log:            logger.Get().With("component", "agent_runner", "agent", ag.Name()),
	}, nil
}

// Ask sends one question and waits for the final answer.
func (r *Runner) Ask(ctx context.Context, q Question) (*Answer, error) {
	start := time.Now()

	if strings.TrimSpace(q.Text) == "" {
		return nil, errors.NewValidationError("question", "must not be empty", q.Text)
	}
	if q.UserID == "" {
		return nil, errors.NewValidationError("user_id", "must not be empty", q.UserID)
	}
	if q.SessionID == "" {
		q.SessionID = uuid.New().String()
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := r.ensureSession(ctx, q.UserID, q.SessionID); err != nil {
		return nil, err
	}

	r.log.Debugf("Asking: session=%s user=%s", q.SessionID, q.UserID)

	answer := &Answer{SessionID: q.SessionID}
	content := genai.NewContentFromText(q.Text, genai.RoleUser)

	var final strings.Builder
	for event, err := range r.runner.Run(ctx, q.UserID, q.SessionID, content, agent.RunConfig{}) {
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, errors.Wrapf(errors.ErrTimeout, "question exceeded %s", r.timeout)
			}
			return nil, errors.Wrap(err, "agent execution failed")
		}
		if event == nil || event.LLMResponse.Partial {
			continue
		}

		if usage := event.LLMResponse.UsageMetadata; usage != nil {
			answer.InputTokens += int(usage.PromptTokenCount)
			answer.OutputTokens += int(usage.CandidatesTokenCount)
		}

		if event.LLMResponse.Content == nil {
			continue
		}

		for _, part := range event.LLMResponse.Content.Parts {
			if part.FunctionCall != nil {
				answer.ToolCalls = append(answer.ToolCalls, newToolCallTrace(part.FunctionCall))
			}
		}

		if event.Author == r.agent.Name() && event.IsFinalResponse() {
			for _, part := range event.LLMResponse.Content.Parts {
				if part.Text != "" && !part.Thought {
					final.WriteString(part.Text)
				}
			}
		}
	}

	answer.Text = strings.TrimSpace(final.String())
	answer.Duration = time.Since(start)

	if answer.Text == "" {
		return nil, errors.Wrap(errors.ErrInternal, "agent returned no final response")
	}

	r.log.Infof("Answered: session=%s duration=%v tokens=%d tools=%d",
		q.SessionID, answer.Duration, answer.TotalTokens(), len(answer.ToolCalls))

	return answer, nil
}

// ResetSession drops a conversation so the next question starts fresh.
func (r *Runner) ResetSession(ctx context.Context, userID, sessionID string) error {
	err := r.sessionService.Delete(ctx, &adksession.DeleteRequest{
		AppName:   r.appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return errors.Wrapf(err, "delete session %s", sessionID)
	}
	return nil
}

func (r *Runner) ensureSession(ctx context.Context, userID, sessionID string) error {
	_, err := r.sessionService.Get(ctx, &adksession.GetRequest{
		AppName:   r.appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err == nil {
		return nil
	}

	_, err = r.sessionService.Create(ctx, &adksession.CreateRequest{
		AppName:   r.appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return errors.Wrapf(err, "create session %s", sessionID)
	}
	return nil
}

func newToolCallTrace(fc *genai.FunctionCall) ToolCallTrace {
	trace := ToolCallTrace{Name: fc.Name, Args: fc.Args}
	if q, ok := fc.Args["query"].(string); ok {
		trace.Query = q
	}
	return trace
}
