// Package toolbox wraps the MCP Toolbox client with configuration defaults,
// header injection and logging.
package toolbox

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/googleapis/mcp-toolbox-sdk-go/core"
	"golang.org/x/oauth2"

	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/auth"
)

// ClientName identifies this server to the toolbox.
const ClientName = "traceability-mcp"

// DefaultTimeout bounds every toolbox request.
const DefaultTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	URL     string            `yaml:"url"`
	Toolset string            `yaml:"toolset"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
	Auth    auth.Config       `yaml:"auth"`
}

// Enabled reports whether a toolbox server is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// Tool describes a loaded tool.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadOptions are applied to every tool being loaded.
type LoadOptions struct {
	// BoundParams fixes parameter values so callers cannot override them.
	BoundParams map[string]string
	// AuthTokens maps an auth service name declared by the tool to its token.
	AuthTokens map[string]oauth2.TokenSource
}

// Client talks to a toolbox server.
type Client struct {
	core    *core.ToolboxClient
	url     string
	toolset string
	logger  *slog.Logger
}

// New creates a client for cfg.URL. When cfg.Auth names a provider its
// token is sent as the Authorization header unless cfg.Headers already sets
// one.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("toolbox url is required")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid toolbox url %q: %w", cfg.URL, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opts := []core.ClientOption{
		core.WithClientName(ClientName),
		core.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	for name, value := range cfg.Headers {
		opts = append(opts, core.WithClientHeaderString(name, value))
	}

	ts, err := auth.New(ctx, cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("toolbox auth: %w", err)
	}
	if staticJWTExpired(cfg.Auth) {
		logger.Warn("static toolbox token has expired", "url", cfg.URL)
	}
	if ts != nil && !hasHeader(cfg.Headers, "Authorization") {
		opts = append(opts, core.WithClientHeaderTokenSource("Authorization", auth.BearerHeader(ts)))
	}

	cc, err := core.NewToolboxClient(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create toolbox client: %w", err)
	}

	logger.Info("toolbox client ready", "url", cfg.URL, "toolset", cfg.Toolset, "auth", cfg.Auth.Type, "timeout", timeout)
	return &Client{core: cc, url: cfg.URL, toolset: cfg.Toolset, logger: logger}, nil
}

// LoadTool loads a single tool.
func (c *Client) LoadTool(ctx context.Context, name string, o LoadOptions) (*core.ToolboxTool, error) {
	tool, err := c.core.LoadTool(name, ctx, toolOptions(o)...)
	if err != nil {
		c.logger.ErrorContext(ctx, "load tool", "tool", name, "error", err)
		return nil, fmt.Errorf("load tool %s: %w", name, err)
	}
	c.logger.InfoContext(ctx, "loaded tool", "tool", name)
	return tool, nil
}

// LoadToolset loads a toolset. An empty name uses the configured default
// toolset, and the server's default toolset when none is configured.
func (c *Client) LoadToolset(ctx context.Context, name string, o LoadOptions) ([]*core.ToolboxTool, error) {
	if name == "" {
		name = c.toolset
	}
	tools, err := c.core.LoadToolset(name, ctx, toolOptions(o)...)
	if err != nil {
		c.logger.ErrorContext(ctx, "load toolset", "toolset", toolsetLabel(name), "error", err)
		return nil, fmt.Errorf("load toolset %s: %w", toolsetLabel(name), err)
	}
	c.logger.InfoContext(ctx, "loaded toolset", "toolset", toolsetLabel(name), "tools", len(tools))
	return tools, nil
}

// ListTools returns the name and description of every tool in a toolset,
// sorted by name.
func (c *Client) ListTools(ctx context.Context, toolset string) ([]Tool, error) {
	tools, err := c.LoadToolset(ctx, toolset, LoadOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, Tool{Name: t.Name(), Description: t.Description()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Invoke loads a tool and calls it with params. Bound params are fixed on
// the tool before the call.
func (c *Client) Invoke(ctx context.Context, name string, params map[string]any, bound map[string]string) (any, error) {
	tool, err := c.LoadTool(ctx, name, LoadOptions{BoundParams: bound})
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}

	start := time.Now()
	result, err := tool.Invoke(ctx, params)
	if err != nil {
		c.logger.ErrorContext(ctx, "invoke tool", "tool", name, "error", err)
		return nil, fmt.Errorf("invoke %s: %w", name, err)
	}
	c.logger.DebugContext(ctx, "invoked tool", "tool", name, "duration", time.Since(start))
	return result, nil
}

// Healthy reports whether the default toolset can be loaded.
func (c *Client) Healthy(ctx context.Context) bool {
	if _, err := c.LoadToolset(ctx, "", LoadOptions{}); err != nil {
		c.logger.WarnContext(ctx, "toolbox health check failed", "url", c.url, "error", err)
		return false
	}
	return true
}

// staticJWTExpired reports whether cfg is a static JWT past its exp claim.
// Opaque tokens are never reported.
func staticJWTExpired(cfg auth.Config) bool {
	if !strings.EqualFold(cfg.Type, auth.TypeStatic) {
		return false
	}
	if _, err := auth.Claims(cfg.Token); err != nil {
		return false
	}
	return auth.Expired(cfg.Token)
}

func toolOptions(o LoadOptions) []core.ToolOption {
	var opts []core.ToolOption
	for _, name := range sortedKeys(o.BoundParams) {
		opts = append(opts, core.WithBindParamString(name, o.BoundParams[name]))
	}
	for _, name := range sortedKeys(o.AuthTokens) {
		opts = append(opts, core.WithAuthTokenSource(name, o.AuthTokens[name]))
	}
	return opts
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if http.CanonicalHeaderKey(k) == http.CanonicalHeaderKey(name) {
			return true
		}
	}
	return false
}

func toolsetLabel(name string) string {
	if name == "" {
		return "default"
	}
	return name
}
