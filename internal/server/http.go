package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// HTTPOptions configures the HTTP surface.
type HTTPOptions struct {
	MCPPath string
	Logger  *slog.Logger

	// BearerToken, when set, is required on every MCP request.
	BearerToken string

	// CORSOrigins enables CORS for the listed origins when not empty.
	CORSOrigins []string

	// Backend is reported by /health.
	Backend string

	// ToolboxHealth, when set, is checked by /health; a failing toolbox
	// marks the server degraded.
	ToolboxHealth func(context.Context) bool

	// AuthorizationServer, when set, is advertised through
	// /.well-known/oauth-protected-resource so clients can obtain the token.
	AuthorizationServer string

	// ResourceURL is the public URL of the MCP endpoint.
	ResourceURL string
}

// Handler mounts the MCP streamable HTTP endpoint and /health on a chi
// router.
func Handler(srv *mcp.Server, opts HTTPOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	path := opts.MCPPath
	if path == "" {
		path = "/mcp"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Mcp-Session-Id", "Mcp-Protocol-Version", "Last-Event-ID"},
			ExposedHeaders: []string{"Mcp-Session-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{
			"status":  "ok",
			"server":  Name,
			"version": Version,
			"backend": opts.Backend,
		}
		if opts.ToolboxHealth != nil {
			body["toolbox"] = "ok"
			if !opts.ToolboxHealth(r.Context()) {
				body["toolbox"] = "unavailable"
				body["status"] = "degraded"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})

	metadataURL := ""
	if opts.AuthorizationServer != "" {
		metadataURL = protectedResourcePath
		if u, err := url.Parse(opts.ResourceURL); err == nil && u.Host != "" {
			metadataURL = u.Scheme + "://" + u.Host + protectedResourcePath
		}
		r.Get(protectedResourcePath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"resource":              opts.ResourceURL,
				"authorization_servers": []string{opts.AuthorizationServer},
			})
		})
	}

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return srv
	}, nil)

	r.Group(func(r chi.Router) {
		if opts.BearerToken != "" {
			r.Use(requireBearer(opts.BearerToken, metadataURL))
		}
		r.Handle(path, mcpHandler)
	})
	return r
}

const protectedResourcePath = "/.well-known/oauth-protected-resource"

// requireBearer rejects requests whose Authorization header does not carry
// token. The challenge points at the resource metadata when there is one.
func requireBearer(token, metadataURL string) func(http.Handler) http.Handler {
	want := []byte(token)
	challenge := `Bearer realm="` + Name + `"`
	if metadataURL != "" {
		challenge += `, resource_metadata="` + metadataURL + `"`
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("WWW-Authenticate", challenge)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"latency", time.Since(start).String(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
