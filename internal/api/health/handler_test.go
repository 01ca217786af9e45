package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/logger"
)

func ok(context.Context) error   { return nil }
func down(context.Context) error { return errors.ErrUnavailable }

func serve(t *testing.T, handler http.HandlerFunc) (int, HealthStatus) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHandler_HealthStates(t *testing.T) {
	log := logger.NewForTest(zap.NewNop())

	tests := []struct {
		name   string
		checks []Check
		code   int
		status string
	}{
		{name: "no dependencies", code: http.StatusOK, status: StatusHealthy},
		{name: "all healthy", checks: []Check{{"redis", ok}, {"postgres", ok}}, code: http.StatusOK, status: StatusHealthy},
		{name: "one down", checks: []Check{{"redis", ok}, {"postgres", down}}, code: http.StatusOK, status: StatusDegraded},
		{name: "all down", checks: []Check{{"redis", down}}, code: http.StatusServiceUnavailable, status: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(log, "data_analyst", "test", tt.checks...)

			code, body := serve(t, h.HandleHealth)

			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.status, body.Status)
			assert.Len(t, body.Checks, len(tt.checks))
		})
	}
}

func TestHandler_ReadinessNeedsEverything(t *testing.T) {
	h := New(logger.NewForTest(zap.NewNop()), "data_analyst", "test", Check{"redis", ok}, Check{"clickhouse", down})

	code, body := serve(t, h.HandleReadiness)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusUnhealthy, body.Status)
	assert.Equal(t, errors.ErrUnavailable.Error(), body.Checks["clickhouse"].Error)
}

func TestHandler_Liveness(t *testing.T) {
	h := New(logger.NewForTest(zap.NewNop()), "data_analyst", "test", Check{"redis", down})

	rec := httptest.NewRecorder()
	h.HandleLiveness(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}
