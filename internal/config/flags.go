package config

import (
	"os"

	"github.com/spf13/pflag"
)

// Flags holds the command-line overrides. Only flags the user actually set
// are applied, so unset flags never mask file or environment values.
type Flags struct {
	ConfigFile  string
	Transport   string
	Addr        string
	MCPPath     string
	Backend     string
	DataDir     string
	Seed        string
	DatabaseURL string
	Concurrency int
	FailFast    bool
	ToolboxURL  string
	LogLevel    string
	Debug       bool
}

// BindFlags registers the flags on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	d := Default()
	f := &Flags{}
	fs.StringVarP(&f.ConfigFile, "config", "c", "", "YAML config file (env "+EnvConfigFile+")")
	fs.StringVar(&f.Transport, "transport", d.Transport, "transport: stdio or http")
	fs.StringVar(&f.Addr, "addr", d.HTTP.Addr, "HTTP listen address")
	fs.StringVar(&f.MCPPath, "mcp-path", d.HTTP.MCPPath, "HTTP path of the MCP endpoint")
	fs.StringVar(&f.Backend, "backend", d.Backend, "data source: sqlite, postgres or supabase")
	fs.StringVar(&f.DataDir, "data-dir", d.DataDir, "directory of the local sqlite database")
	fs.StringVar(&f.Seed, "seed", "", "YAML fixture imported into the sqlite database at startup")
	fs.StringVar(&f.DatabaseURL, "database-url", "", "Postgres connection string")
	fs.IntVar(&f.Concurrency, "concurrency", d.Traceability.Concurrency, "project trees fetched at once")
	fs.BoolVar(&f.FailFast, "fail-fast", false, "abort get_all_trees on the first failing project")
	fs.StringVar(&f.ToolboxURL, "toolbox-url", "", "MCP Toolbox server URL")
	fs.StringVar(&f.LogLevel, "log-level", d.Log.Level, "log level: trace, debug, info, warn, error")
	fs.BoolVar(&f.Debug, "debug", false, "trace-level logging of raw rows and hierarchy previews")
	return f
}

// ConfigPath is --config, else TRACEABILITY_CONFIG.
func (f *Flags) ConfigPath() string {
	if f.ConfigFile != "" {
		return f.ConfigFile
	}
	return os.Getenv(EnvConfigFile)
}

// Apply copies the flags set on fs into cfg.
func (f *Flags) Apply(fs *pflag.FlagSet, cfg *Config) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("transport", func() { cfg.Transport = f.Transport })
	set("addr", func() { cfg.HTTP.Addr = f.Addr })
	set("mcp-path", func() { cfg.HTTP.MCPPath = f.MCPPath })
	set("backend", func() { cfg.Backend = f.Backend })
	set("data-dir", func() { cfg.DataDir = f.DataDir })
	set("seed", func() { cfg.SeedFile = f.Seed })
	set("database-url", func() { cfg.DatabaseURL = f.DatabaseURL })
	set("concurrency", func() { cfg.Traceability.Concurrency = f.Concurrency })
	set("fail-fast", func() { cfg.Traceability.FailFast = f.FailFast })
	set("toolbox-url", func() { cfg.Toolbox.URL = f.ToolboxURL })
	set("log-level", func() { cfg.Log.Level = f.LogLevel })
	set("debug", func() { cfg.Debug = f.Debug })
}
