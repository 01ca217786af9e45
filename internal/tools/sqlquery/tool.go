// Package sqlquery provides the execute_sql tool backed directly by BigQuery,
// used when the remote MCP server is not available.
package sqlquery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/logger"
)

// ToolName matches the remote MCP tool so prompts work with either backend.
const ToolName = "execute_sql"

const toolDescription = "Run a GoogleSQL query against BigQuery and return the resulting rows."

// Result statuses
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// Input is the tool argument schema.
type Input struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"Google Cloud project that owns the tables"`
	Query     string `json:"query" jsonschema:"The SQL query to run" validate:"required,sqltext,max=20000"`
}

// Output mirrors the remote tool's result shape.
type Output struct {
	Status       string           `json:"status"`
	Rows         []map[string]any `json:"rows"`
	Truncated    bool             `json:"truncated,omitempty"`
	ErrorDetails string           `json:"error_details,omitempty"`
}

// Config controls query execution.
type Config struct {
	ProjectID string
	Timeout   time.Duration
	ReadOnly  bool
	MaxRows   int
}

// Executor runs validated queries against a Querier.
type Executor struct {
	q   Querier
	cfg Config
	log *logger.Logger
}

// NewExecutor creates an executor
func NewExecutor(q Querier, cfg Config) *Executor {
	return &Executor{
		q:   q,
		cfg: cfg,
		log: logger.Get().With("component", "sqlquery"),
	}
}

// New wraps the executor as an ADK function tool.
func New(q Querier, cfg Config) (tool.Tool, error) {
	exec := NewExecutor(q, cfg)
	t, err := functiontool.New(functiontool.Config{
		Name:        ToolName,
		Description: toolDescription,
	}, func(ctx tool.Context, in Input) (Output, error) {
		return exec.Execute(ctx, in)
	})
	if err != nil {
		return nil, errors.Wrap(err, "create execute_sql tool")
	}
	return t, nil
}

// Execute validates and runs a query. Rejected input wraps ErrBadRequest and
// a deadline hit reports "Timed out after <timeout>".
func (e *Executor) Execute(ctx context.Context, in Input) (Output, error) {
	if err := validate().Struct(in); err != nil {
		return Output{}, errors.Wrapf(errors.ErrBadRequest, "invalid input: %v", err)
	}

	if in.ProjectID != "" && e.cfg.ProjectID != "" && in.ProjectID != e.cfg.ProjectID {
		return Output{}, errors.Wrapf(errors.ErrBadRequest, "project %s is not queryable, use %s", in.ProjectID, e.cfg.ProjectID)
	}

	if e.cfg.ReadOnly {
		if err := CheckReadOnly(in.Query); err != nil {
			return Output{}, err
		}
	}

	qctx := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	rows, truncated, err := e.q.QueryRows(qctx, in.Query, e.cfg.MaxRows)
	if err != nil {
		if qctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return Output{}, fmt.Errorf("Timed out after %s: %w", e.cfg.Timeout, errors.ErrTimeout)
		}
		return Output{}, errors.Wrap(err, "execute query")
	}

	if rows == nil {
		rows = []map[string]any{}
	}

	e.log.Debugf("Query returned %d rows in %s (truncated=%v)", len(rows), time.Since(start), truncated)

	return Output{Status: StatusSuccess, Rows: rows, Truncated: truncated}, nil
}

// CheckReadOnly accepts a single SELECT or WITH statement.
func CheckReadOnly(query string) error {
	stmt := strings.TrimSpace(stripComments(query))
	stmt = strings.TrimRight(stmt, "; \t\r\n")

	if hasSeparator(stmt) {
		return errors.Wrap(errors.ErrBadRequest, "multiple statements are not allowed")
	}

	stmt = strings.TrimLeft(stmt, "( \t\r\n")
	keyword := strings.ToUpper(firstWord(stmt))
	switch keyword {
	case "SELECT", "WITH":
		return nil
	default:
		return errors.Wrapf(errors.ErrBadRequest, "only read-only queries are allowed, got %q", keyword)
	}
}

func firstWord(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if end < 0 {
		return s
	}
	return s[:end]
}

// hasSeparator reports a semicolon outside string literals.
func hasSeparator(q string) bool {
	var quote rune
	escaped := false
	for _, r := range q {
		switch {
		case escaped:
			escaped = false
		case quote != 0 && r == '\\':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == ';':
			return true
		}
	}
	return false
}

// stripComments removes -- and /* */ comments outside string literals.
func stripComments(q string) string {
	var b strings.Builder
	var quote rune
	runes := []rune(q)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			b.WriteRune(r)
			if r == '\\' && i+1 < len(runes) {
				i++
				b.WriteRune(runes[i])
			} else if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
			b.WriteRune(r)
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			b.WriteRune('\n')
		case r == '#':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			b.WriteRune('\n')
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

var (
	validateOnce  sync.Once
	validatorInst *validator.Validate
)

func validate() *validator.Validate {
	validateOnce.Do(func() {
		validatorInst = validator.New()
		_ = validatorInst.RegisterValidation("sqltext", sqlTextValidation)
	})
	return validatorInst
}

// sqlTextValidation rejects blank text
func sqlTextValidation(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}
