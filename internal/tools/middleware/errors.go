// Package middleware wraps ADK tools. The agent runtime drops the after-tool
// callbacks when a tool's Run fails, so failures are carried inside the
// result instead and surfaced to the callbacks by Failure.
package middleware

import (
	"fmt"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/tool"
	"google.golang.org/genai"
)

// failureKey holds the wrapped tool's error in the result map. The after-tool
// callback always replaces such a result before it reaches the model.
const failureKey = "__tool_failure"

type failure struct{ err error }

// functionTool is the shape the agent runtime dispatches function calls to
type functionTool interface {
	tool.Tool
	Declaration() *genai.FunctionDeclaration
	Run(ctx tool.Context, args any) (map[string]any, error)
}

// Failure returns the error a wrapped tool failed with, or nil
func Failure(result map[string]any) error {
	if f, ok := result[failureKey].(failure); ok {
		return f.err
	}
	return nil
}

// CatchErrors wraps a function tool so that an error from Run reaches the
// after-tool callbacks. Tools the runtime cannot call are returned as is.
func CatchErrors(t tool.Tool) tool.Tool {
	ft, ok := t.(functionTool)
	if !ok {
		return t
	}
	if _, wrapped := t.(*errorCatcher); wrapped {
		return t
	}
	return &errorCatcher{inner: ft}
}

// CatchErrorsAll wraps every tool in the slice
func CatchErrorsAll(tools []tool.Tool) []tool.Tool {
	out := make([]tool.Tool, len(tools))
	for i, t := range tools {
		out[i] = CatchErrors(t)
	}
	return out
}

type errorCatcher struct {
	inner functionTool
}

func (c *errorCatcher) Name() string        { return c.inner.Name() }
func (c *errorCatcher) Description() string { return c.inner.Description() }
func (c *errorCatcher) IsLongRunning() bool { return c.inner.IsLongRunning() }

func (c *errorCatcher) Declaration() *genai.FunctionDeclaration {
	return c.inner.Declaration()
}

func (c *errorCatcher) Run(ctx tool.Context, args any) (map[string]any, error) {
	result, err := c.inner.Run(ctx, args)
	if err != nil {
		return map[string]any{failureKey: failure{err: err}}, nil
	}
	return result, nil
}

// ProcessRequest registers the wrapper itself, not the inner tool, so the
// runtime dispatches calls through Run above.
func (c *errorCatcher) ProcessRequest(_ tool.Context, req *model.LLMRequest) error {
	if req.Tools == nil {
		req.Tools = make(map[string]any)
	}

	name := c.Name()
	if _, ok := req.Tools[name]; ok {
		return fmt.Errorf("duplicate tool: %q", name)
	}
	req.Tools[name] = c

	decl := c.Declaration()
	if decl == nil {
		return nil
	}
	if req.Config == nil {
		req.Config = &genai.GenerateContentConfig{}
	}
	for _, gt := range req.Config.Tools {
		if gt != nil && gt.FunctionDeclarations != nil {
			gt.FunctionDeclarations = append(gt.FunctionDeclarations, decl)
			return nil
		}
	}
	req.Config.Tools = append(req.Config.Tools, &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{decl},
	})
	return nil
}

// CatchToolsetErrors wraps every tool a toolset exposes
func CatchToolsetErrors(ts tool.Toolset) tool.Toolset {
	if _, wrapped := ts.(*toolsetCatcher); wrapped {
		return ts
	}
	return &toolsetCatcher{inner: ts}
}

// CatchToolsetErrorsAll wraps every toolset in the slice
func CatchToolsetErrorsAll(sets []tool.Toolset) []tool.Toolset {
	out := make([]tool.Toolset, len(sets))
	for i, ts := range sets {
		out[i] = CatchToolsetErrors(ts)
	}
	return out
}

type toolsetCatcher struct {
	inner tool.Toolset
}

func (s *toolsetCatcher) Name() string { return s.inner.Name() }

func (s *toolsetCatcher) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	tools, err := s.inner.Tools(ctx)
	if err != nil {
		return nil, err
	}
	return CatchErrorsAll(tools), nil
}
