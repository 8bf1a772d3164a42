package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/config"
	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/logging"
	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/server"
	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/storage"
	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/toolbox"
	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/tools"
	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/traceability"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "traceability-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("traceability-mcp", pflag.ExitOnError)
	flags := config.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(flags.ConfigPath())
	if err != nil {
		return err
	}
	flags.Apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel())
	if err != nil {
		return err
	}
	logger, err := logging.New(os.Stderr, level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	source, closeSource, err := openSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	svc := traceability.NewService(source,
		traceability.WithLogger(logger.With("component", "traceability")),
		traceability.WithConcurrency(cfg.Traceability.Concurrency),
		traceability.WithFailFast(cfg.Traceability.FailFast),
	)

	// Leave tb nil (not a typed nil) so the toolbox tools stay unregistered.
	var (
		tb            tools.Toolbox
		toolboxHealth func(context.Context) bool
	)
	if cfg.Toolbox.Enabled() {
		client, err := toolbox.New(ctx, cfg.Toolbox, logger.With("component", "toolbox"))
		if err != nil {
			return err
		}
		tb = client
		toolboxHealth = client.Healthy
	}

	srv := server.New(svc, tb)

	switch cfg.Transport {
	case config.TransportStdio:
		logger.Info("traceability MCP server starting", "transport", "stdio", "backend", cfg.Backend)
		return srv.Run(ctx, &mcp.StdioTransport{})
	case config.TransportHTTP:
		return serveHTTP(ctx, srv, cfg, logger, toolboxHealth)
	}
	return fmt.Errorf("unknown transport: %s", cfg.Transport)
}

// openSource connects the configured backend. The returned func releases it.
func openSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (traceability.Source, func(), error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		src, err := storage.NewPGSource(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using postgres backend")
		return src, src.Close, nil

	case config.BackendSupabase:
		src, err := storage.NewRESTSource(cfg.Supabase.URL, cfg.Supabase.Key, storage.WithTimeout(cfg.Supabase.Timeout))
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using supabase backend", "url", cfg.Supabase.URL)
		return src, func() {}, nil
	}

	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	if cfg.SeedFile != "" {
		fx, err := storage.LoadFixture(cfg.SeedFile)
		if err == nil {
			var stats storage.ImportStats
			stats, err = store.Import(ctx, fx)
			logger.Info("seeded local store", "file", cfg.SeedFile,
				"projects", stats.Projects, "requirements", stats.Requirements, "links", stats.Links)
		}
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("seed %s: %w", cfg.SeedFile, err)
		}
	}
	logger.Info("using sqlite backend", "data_dir", store.DataDir())
	return store, func() { store.Close() }, nil
}

func serveHTTP(ctx context.Context, srv *mcp.Server, cfg *config.Config, logger *slog.Logger, toolboxHealth func(context.Context) bool) error {
	var origins []string
	if cfg.HTTP.CORS.Enable {
		origins = cfg.HTTP.CORS.AllowedOrigins
	}
	if cfg.HTTP.BearerToken == "" {
		logger.Warn("MCP endpoint is not protected; set MCP_BEARER_TOKEN to require a token")
	}

	httpSrv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: server.Handler(srv, server.HTTPOptions{
			MCPPath:       cfg.HTTP.MCPPath,
			BearerToken:   cfg.HTTP.BearerToken,
			CORSOrigins:   origins,
			Logger:        logger,
			Backend:       cfg.Backend,
			ToolboxHealth: toolboxHealth,

			AuthorizationServer: cfg.HTTP.AuthorizationServer,
			ResourceURL:         cfg.HTTP.ResourceURL,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("traceability MCP server listening", "addr", cfg.HTTP.Addr, "path", cfg.HTTP.MCPPath, "backend", cfg.Backend)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
