package agents

import (
	"strings"

	"dataanalyst/internal/domain/schema"
	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/templates"
)

// InstructionData feeds the analyst instruction template.
type InstructionData struct {
	JobPostings string
	Candidates  string
	Tables      []tableView
	JoinKey     string
	ToolCall    string
}

// NewInstructionData resolves table names for a project and dataset.
func NewInstructionData(cfg AgentConfig) InstructionData {
	tables := make([]tableView, 0, len(schema.Tables()))
	for _, t := range schema.Tables() {
		tables = append(tables, tableView{
			Name:    t.QualifiedName(cfg.ProjectID, cfg.Dataset),
			Columns: t.Columns,
		})
	}

	return InstructionData{
		JobPostings: schema.JobPostings.QualifiedName(cfg.ProjectID, cfg.Dataset),
		Candidates:  schema.Candidates.QualifiedName(cfg.ProjectID, cfg.Dataset),
		Tables:      tables,
		JoinKey:     schema.JoinKey,
		ToolCall:    cfg.ToolCall,
	}
}

// RenderInstruction renders the system instruction. ADK reads {name} in an
// instruction as a session state placeholder, so braces are rejected.
func RenderInstruction(reg *templates.Registry, cfg AgentConfig) (string, error) {
	if reg == nil {
		reg = templates.Get()
	}

	text, err := reg.Render(cfg.SystemPromptTemplate, NewInstructionData(cfg))
	if err != nil {
		return "", errors.Wrap(err, "render analyst instruction")
	}

	if i := strings.IndexAny(text, "{}"); i >= 0 {
		return "", errors.NewValidationError("instruction", "contains a brace, which ADK treats as a state placeholder", text[max(0, i-20):min(len(text), i+20)])
	}

	return text, nil
}
