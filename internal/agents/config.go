package agents

import (
	"time"

	"dataanalyst/internal/adapters/config"
	"dataanalyst/internal/domain/schema"
)

// AgentConfig captures runtime settings for the analyst agent.
type AgentConfig struct {
	Name                 string
	Description          string
	SystemPromptTemplate string

	ProjectID   string
	Dataset     string
	Temperature float32

	// ToolCall is how few-shot examples spell the query tool, e.g.
	// "google-bigquery.googleapis.com-mcp:execute_sql".
	ToolCall string

	QuestionTimeout time.Duration
}

// DefaultAgentConfig derives agent settings from application config.
func DefaultAgentConfig(cfg *config.Config) AgentConfig {
	toolCall := QueryToolName
	if cfg.Query.Backend == config.BackendMCP {
		toolCall = cfg.Google.MCPServerID + ":" + QueryToolName
	}

	return AgentConfig{
		Name:                 AgentName,
		Description:          AgentDescription,
		SystemPromptTemplate: "agents/data_analyst",
		ProjectID:            cfg.Google.ProjectID,
		Dataset:              cfg.Google.Dataset,
		Temperature:          cfg.Google.Temperature,
		ToolCall:             toolCall,
		QuestionTimeout:      cfg.Query.QuestionTimeout,
	}
}

// QueryToolName is the SQL execution tool both backends expose.
const QueryToolName = "execute_sql"

// tableView is a schema table with its fully qualified name resolved.
type tableView struct {
	Name    string
	Columns []schema.Column
}
