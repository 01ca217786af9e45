package api

import (
	"context"
	"encoding/json"
	"net/http"

	"dataanalyst/internal/agents"
	"dataanalyst/internal/services/analyst"
	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/logger"
)

const maxBodyBytes = 64 << 10

// Analyst is the service the HTTP handlers call
type Analyst interface {
	Ask(ctx context.Context, req analyst.Request) (*agents.Answer, error)
	Reset(ctx context.Context, userID, sessionID string) error
}

// AskResponse is the body of a successful POST /v1/ask
type AskResponse struct {
	SessionID    string         `json:"session_id"`
	Answer       string         `json:"answer"`
	ToolCalls    []ToolCallJSON `json:"tool_calls"`
	DurationMs   int64          `json:"duration_ms"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
}

type ToolCallJSON struct {
	Name  string `json:"name"`
	Query string `json:"query,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// AskHandler serves questions over HTTP
type AskHandler struct {
	analyst Analyst
	log     *logger.Logger
}

func NewAskHandler(a Analyst, log *logger.Logger) *AskHandler {
	return &AskHandler{analyst: a, log: log.With("component", "http_ask")}
}

// HandleAsk answers {user_id, session_id?, question}
func (h *AskHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	var req analyst.Request

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	answer, err := h.analyst.Ask(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := AskResponse{
		SessionID:    answer.SessionID,
		Answer:       answer.Text,
		ToolCalls:    make([]ToolCallJSON, 0, len(answer.ToolCalls)),
		DurationMs:   answer.Duration.Milliseconds(),
		InputTokens:  answer.InputTokens,
		OutputTokens: answer.OutputTokens,
	}
	for _, tc := range answer.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCallJSON{Name: tc.Name, Query: tc.Query})
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleReset drops a session; the owner is passed as ?user_id=
func (h *AskHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.analyst.Reset(r.Context(), r.URL.Query().Get("user_id"), r.PathValue("session_id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AskHandler) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		h.log.Errorf("Request failed: %v", err)
		msg = "internal error"
	}
	writeJSON(w, code, errorResponse{Error: msg})
}

func statusFor(err error) int {
	var verr *errors.ValidationError
	switch {
	case errors.Is(err, errors.ErrInvalidInput), errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, errors.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, errors.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
