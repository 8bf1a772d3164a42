package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/models"
)

// DefaultRESTTimeout bounds a single PostgREST request.
const DefaultRESTTimeout = 30 * time.Second

// APIError is an error response from the PostgREST gateway.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// RESTSource reads requirement trees through the hosted project's REST
// gateway (PostgREST), authenticating with the project API key.
type RESTSource struct {
	baseURL string
	client  *http.Client
}

// RESTOption configures a RESTSource.
type RESTOption func(*RESTSource)

// WithHTTPClient replaces the HTTP client. Its transport must still add the
// credentials; NewRESTSource wraps the given client's transport.
func WithHTTPClient(c *http.Client) RESTOption {
	return func(s *RESTSource) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) RESTOption {
	return func(s *RESTSource) {
		if d > 0 {
			s.client.Timeout = d
		}
	}
}

// NewRESTSource creates a source for the gateway at baseURL. The key is sent
// both as the apikey header and as the bearer token.
func NewRESTSource(baseURL, key string, opts ...RESTOption) (*RESTSource, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("supabase url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid supabase url %q: %w", baseURL, err)
	}
	if key == "" {
		return nil, fmt.Errorf("supabase key is required")
	}

	s := &RESTSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultRESTTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}

	base := s.client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *s.client
	wrapped.Transport = &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: key, TokenType: "Bearer"}),
		Base:   apiKeyTransport{key: key, base: base},
	}
	s.client = &wrapped
	return s, nil
}

type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("apikey", t.key)
	return t.base.RoundTrip(r)
}

// RequirementTree calls the get_requirement_tree RPC.
func (s *RESTSource) RequirementTree(ctx context.Context, projectID string) ([]models.RequirementNode, error) {
	body, err := json.Marshal(map[string]string{"p_project_id": projectID})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/rest/v1/rpc/get_requirement_tree", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var nodes []models.RequirementNode
	if err := s.do(req, &nodes); err != nil {
		return nil, fmt.Errorf("get_requirement_tree: %w", err)
	}
	return nodes, nil
}

// ListProjects selects the projects of an organization ordered by name.
func (s *RESTSource) ListProjects(ctx context.Context, organizationID string) ([]models.Project, error) {
	q := url.Values{}
	q.Set("select", "id,name,description")
	q.Set("organization_id", "eq."+organizationID)
	q.Set("order", "name.asc")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/rest/v1/projects?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var projects []models.Project
	if err := s.do(req, &projects); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func (s *RESTSource) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
