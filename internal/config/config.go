// Package config loads server configuration.
//
// Values are layered: built-in defaults, then an optional YAML file (named
// by --config or TRACEABILITY_CONFIG), then environment variables, then
// command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/auth"
	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/logging"
	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/toolbox"
)

// EnvConfigFile names the YAML file when --config is not given.
const EnvConfigFile = "TRACEABILITY_CONFIG"

// Transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
)

// Config is the full server configuration.
type Config struct {
	Transport    string             `yaml:"transport"`
	HTTP         HTTPConfig         `yaml:"http"`
	Backend      string             `yaml:"backend"`
	DataDir      string             `yaml:"data_dir"`
	SeedFile     string             `yaml:"seed_file"`
	DatabaseURL  string             `yaml:"database_url"`
	Supabase     SupabaseConfig     `yaml:"supabase"`
	Traceability TraceabilityConfig `yaml:"traceability"`
	Toolbox      toolbox.Config     `yaml:"toolbox"`
	Log          LogConfig          `yaml:"log"`
	Debug        bool               `yaml:"debug"`
}

// HTTPConfig configures the streamable HTTP transport.
type HTTPConfig struct {
	Addr        string     `yaml:"addr"`
	MCPPath     string     `yaml:"mcp_path"`
	BearerToken string     `yaml:"bearer_token"`
	CORS        CORSConfig `yaml:"cors"`

	// AuthorizationServer is the OAuth server that issues BearerToken.
	AuthorizationServer string `yaml:"authorization_server"`
	ResourceURL         string `yaml:"resource_url"`
}

// CORSConfig configures cross-origin access to the HTTP endpoints.
type CORSConfig struct {
	Enable         bool     `yaml:"enable"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SupabaseConfig configures the hosted REST backend.
type SupabaseConfig struct {
	URL     string        `yaml:"url"`
	Key     string        `yaml:"key"`
	Timeout time.Duration `yaml:"timeout"`
}

// TraceabilityConfig tunes the tree operations.
type TraceabilityConfig struct {
	Concurrency int  `yaml:"concurrency"`
	FailFast    bool `yaml:"fail_fast"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Transport: TransportStdio,
		HTTP: HTTPConfig{
			Addr:    ":8081",
			MCPPath: "/mcp",
			CORS:    CORSConfig{AllowedOrigins: []string{"*"}},
		},
		Backend: BackendSQLite,
		DataDir: "./data",
		Supabase: SupabaseConfig{
			Timeout: 30 * time.Second,
		},
		Traceability: TraceabilityConfig{Concurrency: 4},
		Toolbox: toolbox.Config{
			Timeout: toolbox.DefaultTimeout,
			Auth:    auth.Config{EnvVar: auth.DefaultEnvVar},
		},
		Log: LogConfig{Level: "info", Format: logging.FormatText},
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped
// when path is empty) and then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	str(&c.Transport, "MCP_TRANSPORT")
	str(&c.HTTP.Addr, "MCP_HTTP_ADDR")
	str(&c.HTTP.BearerToken, "MCP_BEARER_TOKEN")
	str(&c.HTTP.AuthorizationServer, "OAUTH_SERVER_BASE_URL")
	str(&c.HTTP.ResourceURL, "MCP_RESOURCE_URL")
	if v, ok := lookup("MCP_CORS_ORIGINS"); ok && v != "" {
		c.HTTP.CORS.Enable = true
		c.HTTP.CORS.AllowedOrigins = splitList(v)
	}

	str(&c.Backend, "TRACEABILITY_BACKEND")
	str(&c.DataDir, "TRACEABILITY_DATA_DIR")
	str(&c.DatabaseURL, "DATABASE_URL")
	str(&c.Supabase.URL, "SUPABASE_URL")
	str(&c.Supabase.Key, "SUPABASE_SERVICE_ROLE_KEY", "SUPABASE_KEY", "SUPABASE_ANON_KEY")

	if v, ok := lookup("TRACEABILITY_CONCURRENCY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TRACEABILITY_CONCURRENCY: %w", err)
		}
		c.Traceability.Concurrency = n
	}
	if v, ok := lookup("TRACEABILITY_FAIL_FAST"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TRACEABILITY_FAIL_FAST: %w", err)
		}
		c.Traceability.FailFast = b
	}

	str(&c.Toolbox.URL, "TOOLBOX_URL")
	str(&c.Toolbox.Toolset, "TOOLBOX_DEFAULT_TOOLSET")
	if v, ok := lookup("TOOLBOX_TIMEOUT"); ok && v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("TOOLBOX_TIMEOUT: %w", err)
		}
		c.Toolbox.Timeout = d
	}
	str(&c.Toolbox.Auth.Type, "TOOLBOX_AUTH_TYPE")
	str(&c.Toolbox.Auth.Token, "TOOLBOX_AUTH_TOKEN")
	str(&c.Toolbox.Auth.Audience, "TOOLBOX_AUDIENCE")

	str(&c.Log.Level, "TOOLBOX_LOG_LEVEL", "LOG_LEVEL")
	str(&c.Log.Format, "LOG_FORMAT")
	if v, ok := lookup("DEBUG_TRACEABILITY"); ok && isTrue(v) {
		c.Debug = true
	}
	return nil
}

// LogLevel is the effective level: trace when Debug is set.
func (c *Config) LogLevel() string {
	if c.Debug {
		return "trace"
	}
	return c.Log.Level
}

// Validate checks the configuration for contradictions and missing values.
func (c *Config) Validate() error {
	var errs []error

	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q (want stdio or http)", c.Transport))
	}

	switch c.Backend {
	case BackendSQLite:
		if c.DataDir == "" {
			errs = append(errs, errors.New("data_dir is required for the sqlite backend"))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("database_url (DATABASE_URL) is required for the postgres backend"))
		}
	case BackendSupabase:
		if c.Supabase.URL == "" {
			errs = append(errs, errors.New("supabase.url (SUPABASE_URL) is required for the supabase backend"))
		}
		if c.Supabase.Key == "" {
			errs = append(errs, errors.New("supabase.key (SUPABASE_SERVICE_ROLE_KEY, SUPABASE_KEY or SUPABASE_ANON_KEY) is required for the supabase backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want sqlite, postgres or supabase)", c.Backend))
	}

	if c.SeedFile != "" && c.Backend != BackendSQLite {
		errs = append(errs, errors.New("seed_file only applies to the sqlite backend"))
	}
	if c.Traceability.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("traceability.concurrency must be at least 1, got %d", c.Traceability.Concurrency))
	}

	switch strings.ToLower(c.Toolbox.Auth.Type) {
	case "", "none", auth.TypeStatic, auth.TypeEnv, auth.TypeGoogle:
	default:
		errs = append(errs, fmt.Errorf("unknown toolbox auth type %q", c.Toolbox.Auth.Type))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	if c.Transport == TransportHTTP && !strings.HasPrefix(c.HTTP.MCPPath, "/") {
		errs = append(errs, fmt.Errorf("http.mcp_path must start with /, got %q", c.HTTP.MCPPath))
	}
	return errors.Join(errs...)
}

// parseSeconds accepts a plain number of seconds or a Go duration.
func parseSeconds(v string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isTrue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
