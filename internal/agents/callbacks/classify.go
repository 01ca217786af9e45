package callbacks

import (
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dataanalyst/pkg/errors"
)

// httpCoder matches gax apierror.APIError without importing it.
type httpCoder interface {
	HTTPCode() int
}

// IsMalformedRequest reports whether err itself (not its chain) is a
// client-request rejection: the query was invalid rather than the service
// failing.
func IsMalformedRequest(err error) bool {
	if err == nil {
		return false
	}

	// Plain equality: a root returned from a cyclic chain still has an Unwrap,
	// and errors.Is would loop on it.
	if err == errors.ErrBadRequest {
		return true
	}

	switch e := err.(type) {
	case *googleapi.Error:
		return e.Code == http.StatusBadRequest
	case genai.APIError:
		return e.Code == http.StatusBadRequest
	case *genai.APIError:
		return e.Code == http.StatusBadRequest
	}

	if coder, ok := err.(httpCoder); ok && coder.HTTPCode() == http.StatusBadRequest {
		return true
	}

	if st, ok := err.(interface{ GRPCStatus() *status.Status }); ok {
		return st.GRPCStatus().Code() == codes.InvalidArgument
	}

	return false
}
