// Package auth provides token sources for calls to the toolbox server.
//
// Every provider is an oauth2.TokenSource. Google credentials come from the
// application default credentials; the others wrap a literal token, an
// environment variable or a callback.
package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
)

// Provider types accepted by New.
const (
	TypeStatic = "static"
	TypeEnv    = "env"
	TypeGoogle = "google"
)

// DefaultEnvVar is read by the env provider when no variable is named.
const DefaultEnvVar = "TOOLBOX_AUTH_TOKEN"

// DefaultLifetime is assumed for tokens that carry no expiry of their own.
const DefaultLifetime = 55 * time.Minute

// DefaultScopes are requested for Google access tokens.
var DefaultScopes = []string{"https://www.googleapis.com/auth/cloud-platform"}

// Config selects and configures a provider.
type Config struct {
	Type     string   `yaml:"type"`
	Token    string   `yaml:"token"`
	EnvVar   string   `yaml:"env_var"`
	Audience string   `yaml:"audience"`
	Scopes   []string `yaml:"scopes"`
}

// New builds the provider described by cfg. An empty type means no
// authentication and returns a nil source.
func New(ctx context.Context, cfg Config) (oauth2.TokenSource, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "none":
		return nil, nil
	case TypeStatic:
		if cfg.Token == "" {
			return nil, fmt.Errorf("static auth requires a token")
		}
		if !ValidFormat(cfg.Token) {
			return nil, fmt.Errorf("static auth token has an invalid format")
		}
		return Static(cfg.Token), nil
	case TypeEnv:
		return Env(cfg.EnvVar), nil
	case TypeGoogle:
		return Google(ctx, cfg.Audience, cfg.Scopes...)
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}
}

// Static returns a source that always yields token. A JWT's exp claim
// becomes the token expiry.
func Static(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(newToken(token, time.Time{}))
}

// Env returns a source that reads the token from an environment variable on
// every call, so a rotated value is picked up without a restart.
func Env(name string) oauth2.TokenSource {
	if name == "" {
		name = DefaultEnvVar
	}
	return envSource(name)
}

type envSource string

func (e envSource) Token() (*oauth2.Token, error) {
	v := os.Getenv(string(e))
	if v == "" {
		return nil, fmt.Errorf("environment variable %s not set", string(e))
	}
	return newToken(v, time.Time{}), nil
}

// TokenFunc produces a raw token.
type TokenFunc func(ctx context.Context) (string, error)

// Func returns a cached source backed by fn. A fresh token is requested once
// the previous one expires (its exp claim, or DefaultLifetime).
func Func(ctx context.Context, fn TokenFunc) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, funcSource{ctx: ctx, fn: fn})
}

type funcSource struct {
	ctx context.Context
	fn  TokenFunc
}

func (f funcSource) Token() (*oauth2.Token, error) {
	raw, err := f.fn(f.ctx)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, fmt.Errorf("token func returned an empty token")
	}
	return newToken(raw, time.Now().Add(DefaultLifetime)), nil
}

// Google returns a source backed by application default credentials. With an
// audience it mints ID tokens (Cloud Run style); otherwise OAuth access
// tokens for scopes.
func Google(ctx context.Context, audience string, scopes ...string) (oauth2.TokenSource, error) {
	if audience != "" {
		ts, err := idtoken.NewTokenSource(ctx, audience)
		if err != nil {
			return nil, fmt.Errorf("google id token source: %w", err)
		}
		return oauth2.ReuseTokenSource(nil, ts), nil
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	ts, err := google.DefaultTokenSource(ctx, scopes...)
	if err != nil {
		return nil, fmt.Errorf("google default credentials: %w", err)
	}
	return oauth2.ReuseTokenSource(nil, ts), nil
}

// BearerHeader adapts ts for use as a raw Authorization header value: the
// access token is prefixed with "Bearer " unless it already is.
func BearerHeader(ts oauth2.TokenSource) oauth2.TokenSource {
	return bearerSource{ts}
}

type bearerSource struct {
	ts oauth2.TokenSource
}

func (b bearerSource) Token() (*oauth2.Token, error) {
	tok, err := b.ts.Token()
	if err != nil {
		return nil, err
	}
	out := *tok
	out.AccessToken = WithBearer(tok.AccessToken)
	return &out, nil
}

// WithBearer prefixes token with "Bearer " unless it already carries it.
func WithBearer(token string) string {
	if strings.HasPrefix(token, bearerPrefix) {
		return token
	}
	return bearerPrefix + token
}

// newToken builds an oauth2 token from a raw value. The expiry is taken from
// the JWT exp claim when present, else fallback.
func newToken(raw string, fallback time.Time) *oauth2.Token {
	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer", Expiry: fallback}
	if exp, ok := expiry(raw); ok {
		tok.Expiry = exp
	}
	return tok
}
