// Package analyst is the entry point front-ends use to ask the agent a
// question: it validates input, rate limits per user and records metrics.
package analyst

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"dataanalyst/internal/adapters/ratelimit"
	"dataanalyst/internal/agents"
	"dataanalyst/internal/metrics"
	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/logger"
)

// Question statuses used as metric labels
const (
	StatusSuccess     = "success"
	StatusInvalid     = "invalid"
	StatusRateLimited = "rate_limited"
	StatusTimeout     = "timeout"
	StatusError       = "error"
)

// MaxQuestionLength bounds the text forwarded to the model
const MaxQuestionLength = 4000

// Asker runs one question through the agent
type Asker interface {
	Ask(ctx context.Context, q agents.Question) (*agents.Answer, error)
	ResetSession(ctx context.Context, userID, sessionID string) error
}

// Request is a question coming from any front-end
type Request struct {
	UserID    string `json:"user_id" validate:"required,max=128"`
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=128"`
	Question  string `json:"question" validate:"required,max=4000"`
}

// Service handles questions for all front-ends
type Service struct {
	asker    Asker
	limiter  ratelimit.Limiter
	validate *validator.Validate
	agent    string
	model    string
	log      *logger.Logger
}

// NewService creates the analyst service. A nil limiter disables limiting.
func NewService(asker Asker, limiter ratelimit.Limiter, modelName string) *Service {
	if limiter == nil {
		limiter = ratelimit.NewNoOpLimiter()
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	return &Service{
		asker:    asker,
		limiter:  limiter,
		validate: v,
		agent:    agents.AgentName,
		model:    modelName,
		log:      logger.Get().With("component", "analyst_service"),
	}
}

// Ask answers one question
func (s *Service) Ask(ctx context.Context, req Request) (*agents.Answer, error) {
	start := time.Now()
	req.Question = strings.TrimSpace(req.Question)

	if err := s.validate.Struct(req); err != nil {
		s.record(StatusInvalid, start, nil)
		return nil, errors.Wrap(errors.ErrInvalidInput, validationMessage(err))
	}

	allowed, err := s.limiter.Allow(ctx, req.UserID)
	if err != nil {
		// Limiter outages must not take the agent down with them
		s.log.Warnf("Rate limiter unavailable, allowing question: %v", err)
		allowed = true
	}
	if !allowed {
		s.record(StatusRateLimited, start, nil)
		return nil, errors.Wrapf(errors.ErrRateLimitExceeded, "more than %.0f questions per minute", s.limiter.Limit())
	}

	answer, err := s.asker.Ask(ctx, agents.Question{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Text:      req.Question,
	})
	if err != nil {
		status := StatusError
		var verr *errors.ValidationError
		switch {
		case errors.Is(err, errors.ErrTimeout):
			status = StatusTimeout
		case errors.As(err, &verr):
			status = StatusInvalid
		}
		s.record(status, start, nil)
		s.log.Errorf("Question failed for user %s: %v", req.UserID, err)
		return nil, err
	}

	s.record(StatusSuccess, start, answer)
	return answer, nil
}

// Reset forgets the conversation of a session
func (s *Service) Reset(ctx context.Context, userID, sessionID string) error {
	if userID == "" || sessionID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "user and session are required")
	}
	return s.asker.ResetSession(ctx, userID, sessionID)
}

func (s *Service) record(status string, start time.Time, answer *agents.Answer) {
	var in, out int
	if answer != nil {
		in, out = answer.InputTokens, answer.OutputTokens
	}
	metrics.RecordAgentCall(s.agent, s.model, status, time.Since(start), in, out)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}

	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return field + " is too long (max " + fe.Param() + " characters)"
	default:
		return field + " is invalid"
	}
}
