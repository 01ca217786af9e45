package callbacks

import (
	"time"

	"google.golang.org/adk/agent"
	"google.golang.org/genai"

	"dataanalyst/internal/agents/state"
	"dataanalyst/pkg/logger"
)

// QuestionTrackingBeforeCallback counts questions per user across sessions.
// State failures are logged; they never block the question.
func QuestionTrackingBeforeCallback() agent.BeforeAgentCallback {
	return func(ctx agent.CallbackContext) (*genai.Content, error) {
		log := logger.Get().With(
			"agent", ctx.AgentName(),
			"user", ctx.UserID(),
			"session", ctx.SessionID(),
		)

		asked, err := state.IncrementQuestionsAsked(ctx.State())
		if err != nil {
			log.Warnf("Failed to count question: %v", err)
		}
		if err := state.SetLastQuestionAt(ctx.State(), time.Now()); err != nil {
			log.Warnf("Failed to record question time: %v", err)
		}

		log.Debugf("Question %d started", asked)
		return nil, nil
	}
}

// SummaryAfterCallback logs how many tool calls the turn needed
func SummaryAfterCallback() agent.AfterAgentCallback {
	return func(ctx agent.CallbackContext) (*genai.Content, error) {
		logger.Get().With(
			"agent", ctx.AgentName(),
			"user", ctx.UserID(),
			"session", ctx.SessionID(),
		).Debugf("Turn finished after %d tool calls", state.GetToolCallCount(ctx.ReadonlyState()))
		return nil, nil
	}
}
