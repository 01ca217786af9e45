package callbacks

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dataanalyst/pkg/errors"
)

type codedError struct{ code int }

func (e codedError) Error() string { return fmt.Sprintf("http %d", e.code) }
func (e codedError) HTTPCode() int { return e.code }

func TestIsMalformedRequest(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", errors.ErrBadRequest, true},
		{"wrapped sentinel is not a root", errors.Wrap(errors.ErrBadRequest, "x"), false},
		{"googleapi 400", &googleapi.Error{Code: http.StatusBadRequest}, true},
		{"googleapi 500", &googleapi.Error{Code: http.StatusInternalServerError}, false},
		{"genai 400", genai.APIError{Code: http.StatusBadRequest}, true},
		{"genai pointer 400", &genai.APIError{Code: http.StatusBadRequest}, true},
		{"genai 429", genai.APIError{Code: http.StatusTooManyRequests}, false},
		{"http coder 400", codedError{code: http.StatusBadRequest}, true},
		{"http coder 404", codedError{code: http.StatusNotFound}, false},
		{"grpc invalid argument", status.Error(codes.InvalidArgument, "bad sql"), true},
		{"grpc deadline", status.Error(codes.DeadlineExceeded, "slow"), false},
		{"plain", errors.New("Bad Request"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMalformedRequest(tt.err))
		})
	}
}
