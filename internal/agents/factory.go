package agents

import (
	"context"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/tool"
	"google.golang.org/genai"

	"dataanalyst/internal/adapters/config"
	"dataanalyst/internal/agents/callbacks"
	"dataanalyst/internal/tools/middleware"
	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/templates"
)

// FactoryDeps gathers external dependencies needed to instantiate the agent.
// Exactly one of Tools or Toolsets is normally set, depending on the query
// backend.
type FactoryDeps struct {
	Model     model.LLM
	Tools     []tool.Tool
	Toolsets  []tool.Toolset
	Hooks     callbacks.ToolHooks
	Sinks     []callbacks.ToolEventSink
	Templates *templates.Registry
}

// Factory creates the configured analyst agent.
type Factory struct {
	deps FactoryDeps
}

// NewFactory builds an agent factory with required dependencies.
func NewFactory(deps FactoryDeps) (*Factory, error) {
	if deps.Model == nil {
		return nil, errors.New("model is required")
	}

	if len(deps.Tools) == 0 && len(deps.Toolsets) == 0 {
		return nil, errors.New("a query tool or toolset is required")
	}

	if deps.Hooks == nil {
		deps.Hooks = callbacks.NewQueryHooks()
	}

	// Tool failures must reach the after-tool hooks
	deps.Tools = middleware.CatchErrorsAll(deps.Tools)
	deps.Toolsets = middleware.CatchToolsetErrorsAll(deps.Toolsets)

	if deps.Templates == nil {
		deps.Templates = templates.Get()
	}

	return &Factory{deps: deps}, nil
}

// CreateAgent constructs the ADK agent from a config.
func (f *Factory) CreateAgent(cfg AgentConfig) (agent.Agent, error) {
	instruction, err := RenderInstruction(f.deps.Templates, cfg)
	if err != nil {
		return nil, err
	}

	ag, err := llmagent.New(llmagent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		Model:       f.deps.Model,
		Instruction: instruction,
		Tools:       f.deps.Tools,
		Toolsets:    f.deps.Toolsets,
		GenerateContentConfig: &genai.GenerateContentConfig{
			Temperature: genai.Ptr(cfg.Temperature),
		},
		BeforeAgentCallbacks: []agent.BeforeAgentCallback{
			callbacks.QuestionTrackingBeforeCallback(),
		},
		AfterAgentCallbacks: []agent.AfterAgentCallback{
			callbacks.SummaryAfterCallback(),
		},
		BeforeToolCallbacks: []llmagent.BeforeToolCallback{
			callbacks.RecordToolStartTimeBeforeToolCallback(),
		},
		AfterToolCallbacks: []llmagent.AfterToolCallback{
			callbacks.AfterToolCallback(f.deps.Hooks, f.deps.Sinks...),
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create agent %s", cfg.Name)
	}

	return ag, nil
}

// NewGeminiModel creates the Gemini model either through Vertex AI (project
// and location) or the Gemini API (API key).
func NewGeminiModel(ctx context.Context, cfg config.GoogleConfig) (model.LLM, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.UseVertexAI {
		clientCfg = &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  cfg.ProjectID,
			Location: cfg.Location,
		}
	}

	m, err := gemini.NewModel(ctx, cfg.Model, clientCfg)
	if err != nil {
		return nil, errors.Wrapf(err, "create gemini model %s", cfg.Model)
	}

	return m, nil
}
