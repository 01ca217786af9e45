package apiregistry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataanalyst/pkg/errors"
)

const bigQueryServer = "projects/acme/locations/global/mcpServers/google-bigquery.googleapis.com-mcp"

func newRegistryServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/v1beta/projects/acme/locations/global/mcpServers", r.URL.Path)
		assert.Equal(t, "acme", r.Header.Get(userProjectHeader))

		var resp listResponse
		switch r.URL.Query().Get("pageToken") {
		case "":
			resp = listResponse{
				MCPServers:    []MCPServer{{Name: "projects/acme/locations/global/mcpServers/other", URLs: []string{"other.example.com/mcp"}}},
				NextPageToken: "p2",
			}
		case "p2":
			resp = listResponse{
				MCPServers: []MCPServer{{Name: bigQueryServer, URLs: []string{"bigquery.googleapis.com/mcp"}}},
			}
		default:
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestClient_ListServersPaginates(t *testing.T) {
	var calls int32
	srv := newRegistryServer(t, &calls)
	defer srv.Close()

	c, err := New(context.Background(), "acme", WithHTTPClient(srv.Client()), WithEndpoint(srv.URL))
	require.NoError(t, err)

	servers, err := c.ListServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_ServerIsCached(t *testing.T) {
	var calls int32
	srv := newRegistryServer(t, &calls)
	defer srv.Close()

	c, err := New(context.Background(), "acme", WithHTTPClient(srv.Client()), WithEndpoint(srv.URL))
	require.NoError(t, err)

	s, err := c.Server(context.Background(), bigQueryServer)
	require.NoError(t, err)

	u, err := s.URL()
	require.NoError(t, err)
	assert.Equal(t, "https://bigquery.googleapis.com/mcp", u)

	_, err = c.Server(context.Background(), bigQueryServer)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "second lookup served from cache")
}

func TestClient_UnknownServer(t *testing.T) {
	var calls int32
	srv := newRegistryServer(t, &calls)
	defer srv.Close()

	c, err := New(context.Background(), "acme", WithHTTPClient(srv.Client()), WithEndpoint(srv.URL))
	require.NoError(t, err)

	_, err = c.Server(context.Background(), "projects/acme/locations/global/mcpServers/missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(context.Background(), "acme", WithHTTPClient(srv.Client()), WithEndpoint(srv.URL))
	require.NoError(t, err)

	_, err = c.ListServers(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
	assert.Contains(t, err.Error(), "status 503")
}

func TestMCPServer_URL(t *testing.T) {
	u, err := MCPServer{URLs: []string{"http://localhost:9000/mcp"}}.URL()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/mcp", u)

	_, err = MCPServer{Name: "x"}.URL()
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestNew_RequiresProject(t *testing.T) {
	_, err := New(context.Background(), "", WithHTTPClient(http.DefaultClient))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}
