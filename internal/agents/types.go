package agents

import (
	"time"
)

const (
	// AgentName is the ADK agent name; it also prefixes tool-call traces.
	AgentName = "data_analyst_agent"

	AgentDescription = "An agent that can answer questions about job openings and candidates from a database."
)

// Question is one user turn sent to the agent.
type Question struct {
	UserID    string
	SessionID string // empty starts a new session
	Text      string
}

// ToolCallTrace is one function call the model made while answering.
type ToolCallTrace struct {
	Name  string
	Args  map[string]any
	Query string
}

// Answer is the final model response for a Question.
type Answer struct {
	Text      string
	SessionID string
	ToolCalls []ToolCallTrace

	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// TotalTokens returns input plus output tokens
func (a *Answer) TotalTokens() int {
	return a.InputTokens + a.OutputTokens
}
