// Package apiregistry discovers remote MCP servers published in the Cloud API
// Registry and turns them into ADK toolsets.
package apiregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/oauth2/google"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/mcptoolset"

	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/logger"
)

const (
	// DefaultEndpoint is the public Cloud API Registry endpoint
	DefaultEndpoint = "https://cloudapiregistry.googleapis.com"

	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
	userProjectHeader  = "x-goog-user-project"
)

// MCPServer is one registry entry.
type MCPServer struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName,omitempty"`
	Description string   `json:"description,omitempty"`
	URLs        []string `json:"urls"`
}

// URL returns the first server URL with a scheme.
func (s MCPServer) URL() (string, error) {
	if len(s.URLs) == 0 || s.URLs[0] == "" {
		return "", errors.Wrapf(errors.ErrNotFound, "mcp server %s has no url", s.Name)
	}
	u := s.URLs[0]
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return u, nil
}

type listResponse struct {
	MCPServers    []MCPServer `json:"mcpServers"`
	NextPageToken string      `json:"nextPageToken"`
}

// Client reads MCP servers for one project. Servers are cached after the
// first successful listing.
type Client struct {
	endpoint   string
	projectID  string
	httpClient *http.Client

	mu      sync.RWMutex
	servers map[string]MCPServer

	log *logger.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default-credentials HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithEndpoint overrides the registry endpoint
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = strings.TrimRight(endpoint, "/")
		}
	}
}

// New creates a registry client. Without WithHTTPClient it authenticates
// with Application Default Credentials and bills requests to projectID.
func New(ctx context.Context, projectID string, opts ...Option) (*Client, error) {
	if projectID == "" {
		return nil, errors.NewValidationError("project_id", "must not be empty", projectID)
	}

	c := &Client{
		endpoint:  DefaultEndpoint,
		projectID: projectID,
		servers:   map[string]MCPServer{},
		log:       logger.Get().With("component", "api_registry", "project", projectID),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		hc, err := google.DefaultClient(ctx, cloudPlatformScope)
		if err != nil {
			return nil, errors.Wrap(err, "load default google credentials")
		}
		c.httpClient = hc
	}

	c.httpClient = withUserProject(c.httpClient, projectID)

	return c, nil
}

// ListServers fetches every MCP server of the project, following page tokens.
func (c *Client) ListServers(ctx context.Context) ([]MCPServer, error) {
	var all []MCPServer
	pageToken := ""

	for {
		page, err := c.listPage(ctx, pageToken)
		if err != nil {
			return nil, err
		}
		all = append(all, page.MCPServers...)
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	c.mu.Lock()
	for _, s := range all {
		c.servers[s.Name] = s
	}
	c.mu.Unlock()

	c.log.Debugf("Loaded %d MCP servers", len(all))
	return all, nil
}

// Server returns a server by its full resource name.
func (c *Client) Server(ctx context.Context, name string) (MCPServer, error) {
	c.mu.RLock()
	s, ok := c.servers[name]
	c.mu.RUnlock()
	if ok {
		return s, nil
	}

	if _, err := c.ListServers(ctx); err != nil {
		return MCPServer{}, err
	}

	c.mu.RLock()
	s, ok = c.servers[name]
	c.mu.RUnlock()
	if !ok {
		return MCPServer{}, errors.Wrapf(errors.ErrNotFound, "mcp server %s", name)
	}
	return s, nil
}

// Toolset returns an ADK toolset talking to the named server over streamable
// HTTP. An empty filter exposes every tool the server advertises.
func (c *Client) Toolset(ctx context.Context, name string, filter []string) (tool.Toolset, error) {
	server, err := c.Server(ctx, name)
	if err != nil {
		return nil, err
	}

	endpoint, err := server.URL()
	if err != nil {
		return nil, err
	}

	cfg := mcptoolset.Config{
		Transport: &mcp.StreamableClientTransport{
			Endpoint:   endpoint,
			HTTPClient: c.httpClient,
		},
	}
	if len(filter) > 0 {
		cfg.ToolFilter = tool.StringPredicate(filter)
	}

	ts, err := mcptoolset.New(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "create toolset for %s", name)
	}

	c.log.Infof("Connected toolset %s at %s", name, endpoint)
	return ts, nil
}

func (c *Client) listPage(ctx context.Context, pageToken string) (*listResponse, error) {
	u := fmt.Sprintf("%s/v1beta/projects/%s/locations/global/mcpServers", c.endpoint, url.PathEscape(c.projectID))
	if pageToken != "" {
		u += "?pageToken=" + url.QueryEscape(pageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build registry request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.Join(errors.ErrUnavailable, err), "list mcp servers")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read registry response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewDomainError(
			"API_REGISTRY",
			fmt.Sprintf("list mcp servers: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			statusError(resp.StatusCode),
		)
	}

	var page listResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, errors.Wrap(err, "decode registry response")
	}
	return &page, nil
}

func statusError(code int) error {
	switch {
	case code == http.StatusNotFound:
		return errors.ErrNotFound
	case code == http.StatusTooManyRequests:
		return errors.ErrRateLimitExceeded
	case code >= 500:
		return errors.ErrUnavailable
	default:
		return errors.ErrInvalidInput
	}
}

type userProjectTransport struct {
	base    http.RoundTripper
	project string
}

func (t *userProjectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set(userProjectHeader, t.project)
	return t.base.RoundTrip(r)
}

func withUserProject(hc *http.Client, project string) *http.Client {
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	clone := *hc
	clone.Transport = &userProjectTransport{base: base, project: project}
	return &clone
}
