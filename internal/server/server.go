package server

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/archdoc/internal/auth"
	"github.com/ashita-ai/archdoc/internal/ratelimit"
	"github.com/ashita-ai/archdoc/internal/report"
	"github.com/ashita-ai/archdoc/internal/service/designs"
)

// Server is the archdoc HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Archive, JWTMgr, Keys, Limiter, Broker, Store,
// MCPServer, UIFS, OpenAPISpec. Auth is enforced only when both JWTMgr and an
// enabled Keys are set.
type ServerConfig struct {
	// Required dependencies.
	Designs *designs.Service
	Reports *report.Cache
	Logger  *slog.Logger

	// Optional dependencies (nil = disabled).
	Archive   Archiver
	JWTMgr    *auth.JWTManager
	Keys      *auth.KeyVerifier
	Limiter   ratelimit.Limiter
	Broker    *Broker
	Store     StoreInfo
	MCPServer *mcpserver.MCPServer
	AgentName string

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// Optional embedded assets.
	UIFS        fs.FS
	OpenAPISpec []byte

	// ExtraRoutes are registered after the built-in routes and share the
	// auth and tracing chain. Middlewares wrap the whole handler, first
	// registered outermost.
	ExtraRoutes []func(*http.ServeMux)
	Middlewares []func(http.Handler) http.Handler
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	jwtMgr := cfg.JWTMgr
	if !cfg.Keys.Enabled() {
		jwtMgr = nil
	}

	h := NewHandlers(HandlersDeps{
		Designs:             cfg.Designs,
		Reports:             cfg.Reports,
		Archive:             cfg.Archive,
		JWTMgr:              jwtMgr,
		Keys:                cfg.Keys,
		Broker:              cfg.Broker,
		Store:               cfg.Store,
		AgentName:           cfg.AgentName,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}
	// Agent calls are slow and billed; auth attempts are guessable.
	agentRL := ratelimit.Middleware(cfg.Limiter, "agent", ratelimit.IPKeyFunc, reqIDFunc)
	authRL := ratelimit.Middleware(cfg.Limiter, "auth", ratelimit.IPKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	mux.HandleFunc("GET /v1/intake/options", h.HandleIntakeOptions)
	mux.HandleFunc("POST /v1/prompt", h.HandlePromptPreview)

	mux.HandleFunc("GET /v1/projects", h.HandleListProjects)
	mux.HandleFunc("GET /v1/projects/{id}", h.HandleGetProject)
	mux.HandleFunc("DELETE /v1/projects/{id}", h.HandleDeleteProject)
	mux.HandleFunc("GET /v1/projects/{id}/versions", h.HandleProjectVersions)
	mux.HandleFunc("GET /v1/projects/{id}/report", h.HandleProjectReport)
	mux.HandleFunc("GET /v1/projects/{id}/export", h.HandleExport)
	mux.HandleFunc("POST /v1/projects/{id}/export/archive", h.HandleArchiveExport)

	mux.HandleFunc("POST /v1/views", h.HandleOpenView)
	mux.HandleFunc("GET /v1/views/{id}", h.HandleGetView)
	mux.HandleFunc("DELETE /v1/views/{id}", h.HandleCloseView)
	mux.HandleFunc("POST /v1/views/{id}/open", h.HandleOpenProject)
	mux.Handle("POST /v1/views/{id}/generate", agentRL(http.HandlerFunc(h.HandleGenerate)))
	mux.Handle("POST /v1/views/{id}/refine", agentRL(http.HandlerFunc(h.HandleRefine)))
	mux.HandleFunc("PUT /v1/views/{id}/components/{component_id}", h.HandleEditComponent)
	mux.HandleFunc("POST /v1/views/{id}/save", h.HandleSaveEdits)
	mux.HandleFunc("DELETE /v1/views/{id}/edits", h.HandleDiscardEdits)
	mux.HandleFunc("DELETE /v1/views/{id}/inflight", h.HandleCancel)

	// Long-lived connection, no rate limit.
	mux.HandleFunc("GET /v1/subscribe", h.HandleSubscribe)

	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	mux.HandleFunc("GET /health", h.HandleHealth)

	for _, register := range cfg.ExtraRoutes {
		register(mux)
	}

	// Registered last so API routes win by the mux's longest-match rule.
	if cfg.UIFS != nil {
		mux.Handle("/", newSPAHandler(cfg.UIFS))
		cfg.Logger.Info("ui enabled, serving SPA at /")
	}

	// Outermost first: request ID, security headers, tracing, logging,
	// auth, recovery, handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(jwtMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
