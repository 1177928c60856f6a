// Package archdoc is the public API for embedding the archdoc design report
// server.
//
// Consumers import this package to run the server in-process and extend it
// without forking:
//
//	app, err := archdoc.New(ctx,
//	    archdoc.WithVersion(version),
//	    archdoc.WithLogger(logger),
//	    archdoc.WithInvoker(myAgent),
//	    archdoc.WithEventHook(auditHook{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// archdoc (root) imports internal/*, never the reverse. Public types are
// standalone structs converted at this boundary.
package archdoc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashita-ai/archdoc/api"
	"github.com/ashita-ai/archdoc/internal/agent"
	"github.com/ashita-ai/archdoc/internal/auth"
	"github.com/ashita-ai/archdoc/internal/config"
	"github.com/ashita-ai/archdoc/internal/mcp"
	"github.com/ashita-ai/archdoc/internal/ratelimit"
	"github.com/ashita-ai/archdoc/internal/report"
	"github.com/ashita-ai/archdoc/internal/server"
	"github.com/ashita-ai/archdoc/internal/service/designs"
	"github.com/ashita-ai/archdoc/internal/storage"
	"github.com/ashita-ai/archdoc/internal/telemetry"
	"github.com/ashita-ai/archdoc/migrations"
)

// hookTimeout bounds a single EventHook call.
const hookTimeout = 10 * time.Second

// App is a fully wired archdoc server.
type App struct {
	cfg          config.Config
	srv          *server.Server
	store        projectStore
	limiter      ratelimit.Limiter
	events       *eventFanout
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// projectStore is a persistence backend for the project list.
type projectStore interface {
	designs.ProjectStore
	Name() string
	Close() error
}

// New loads configuration from the environment, opens the project store,
// and wires the agent, design service, HTTP API and MCP server. It does not
// accept connections; call Run.
func New(ctx context.Context, opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}

	logger.Info("archdoc starting", "version", version, "port", cfg.Port,
		"store", cfg.Store, "agent", cfg.AgentProvider)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Undo everything opened so far when a later step fails.
	var cleanups []func()
	fail := func(err error) (*App, error) {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		_ = otelShutdown(context.Background())
		return nil, err
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, func() { _ = store.Close() })

	var (
		invoker   agent.Invoker
		agentName string
	)
	if o.invoker != nil {
		invoker, agentName = publicInvoker{inv: o.invoker}, "custom"
	} else {
		invoker, agentName, err = newInvoker(ctx, cfg)
		if err != nil {
			return fail(fmt.Errorf("agent: %w", err))
		}
	}
	logger.Info("agent: configured", "agent", agentName)

	broker := server.NewBroker(logger)
	events := &eventFanout{broker: broker, hooks: o.eventHooks, logger: logger}

	designSvc, err := designs.New(ctx, designs.Config{
		Invoker:   invoker,
		Store:     store,
		Publisher: events,
		AgentID:   cfg.AgentID,
		Logger:    logger,
	})
	if err != nil {
		return fail(err)
	}
	logger.Info("projects loaded", "count", designSvc.ProjectCount(), "store", store.Name())

	reports, err := report.NewCache(cfg.ReportCacheSize)
	if err != nil {
		return fail(fmt.Errorf("report cache: %w", err))
	}

	var archive server.Archiver
	if cfg.ArchiveEnabled() {
		s3, err := report.NewS3Archive(report.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
			URLExpiry: cfg.S3URLExpiry,
		})
		if err != nil {
			return fail(fmt.Errorf("export archive: %w", err))
		}
		archive = s3
		logger.Info("export archive: enabled", "bucket", cfg.S3Bucket)
	} else {
		logger.Info("export archive: disabled (no ARCHDOC_S3_BUCKET)")
	}

	keys, err := auth.NewKeyVerifier(cfg.APIKey, cfg.APIKeyHash)
	if err != nil {
		return fail(fmt.Errorf("auth: %w", err))
	}
	var jwtMgr *auth.JWTManager
	if keys.Enabled() {
		jwtMgr, err = auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
		if err != nil {
			return fail(fmt.Errorf("auth: %w", err))
		}
		logger.Info("auth: enabled")
	} else {
		logger.Warn("auth: disabled (no ARCHDOC_API_KEY); the API is open to anyone who can reach it")
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	srvCfg := server.ServerConfig{
		Designs:             designSvc,
		Reports:             reports,
		Logger:              logger,
		Archive:             archive,
		JWTMgr:              jwtMgr,
		Keys:                keys,
		Limiter:             limiter,
		Broker:              broker,
		Store:               store,
		AgentName:           agentName,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
	}
	if cfg.MCPEnabled {
		srvCfg.MCPServer = mcp.New(designSvc, reports, logger, version).MCPServer()
		logger.Info("mcp: enabled at /mcp")
	}
	if cfg.UIEnabled && o.uiFS != nil {
		srvCfg.UIFS = o.uiFS
	}
	for _, fn := range o.routeRegistrars {
		srvCfg.ExtraRoutes = append(srvCfg.ExtraRoutes, fn)
	}
	for _, mw := range o.middlewares {
		srvCfg.Middlewares = append(srvCfg.Middlewares, mw)
	}

	return &App{
		cfg:          cfg,
		srv:          server.New(srvCfg),
		store:        store,
		limiter:      limiter,
		events:       events,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Handler returns the root HTTP handler, for serving the API on a listener
// managed by the caller.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run serves HTTP until ctx is canceled or the server fails. On return,
// Shutdown has already been called.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return errors.Join(runErr, a.Shutdown(shutdownCtx))
}

// Shutdown drains HTTP requests, waits for running event hooks, and closes
// the store and telemetry.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("archdoc shutting down")

	var errs []error
	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
		errs = append(errs, err)
	}
	if err := a.events.wait(ctx); err != nil {
		a.logger.Warn("event hooks still running at shutdown", "error", err)
	}
	_ = a.limiter.Close()
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	_ = a.otelShutdown(context.Background())

	a.logger.Info("archdoc stopped")
	return errors.Join(errs...)
}

// openStore opens the configured project store.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (projectStore, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		if err := ensureDir(cfg.SQLitePath); err != nil {
			return nil, err
		}
		s, err := storage.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		return s, nil

	case config.StorePostgres:
		db, err := storage.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return db, nil

	default:
		if err := ensureDir(cfg.DataFile); err != nil {
			return nil, err
		}
		return storage.NewFileStore(cfg.DataFile), nil
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return nil
}

// newInvoker builds the configured agent and a name for health output.
func newInvoker(ctx context.Context, cfg config.Config) (agent.Invoker, string, error) {
	switch cfg.AgentProvider {
	case config.AgentGemini:
		g, err := agent.NewGeminiInvoker(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, "", err
		}
		return withTimeout(g, cfg.AgentTimeout), g.Name(), nil

	default:
		h, err := agent.NewHTTPInvoker(agent.HTTPConfig{
			Endpoint:         cfg.AgentEndpoint,
			APIKey:           cfg.AgentAPIKey,
			Timeout:          cfg.AgentTimeout,
			MaxResponseBytes: cfg.AgentMaxResponseBytes,
		})
		if err != nil {
			return nil, "", err
		}
		return h, "http:" + cfg.AgentEndpoint, nil
	}
}

// withTimeout bounds each call of inv to d. Zero leaves inv unchanged.
func withTimeout(inv agent.Invoker, d time.Duration) agent.Invoker {
	if d <= 0 {
		return inv
	}
	return agent.InvokerFunc(func(ctx context.Context, prompt, agentID string) (agent.Result, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return inv.Invoke(ctx, prompt, agentID)
	})
}

// publicInvoker adapts an Invoker to the internal agent interface.
type publicInvoker struct {
	inv Invoker
}

func (p publicInvoker) Invoke(ctx context.Context, prompt, agentID string) (agent.Result, error) {
	reply, err := p.inv.Invoke(ctx, prompt, agentID)
	if err != nil {
		return agent.Result{}, err
	}
	return agent.Result{Success: reply.Success, Response: reply.Response, Error: reply.Error}, nil
}

// eventFanout publishes view events to the SSE broker and to every
// registered EventHook. It implements designs.Publisher without blocking.
type eventFanout struct {
	broker *server.Broker
	hooks  []EventHook
	logger *slog.Logger
	wg     sync.WaitGroup
}

func (f *eventFanout) Publish(ev designs.Event) {
	f.broker.Publish(ev)
	if len(f.hooks) == 0 {
		return
	}
	pub := toPublicEvent(ev)
	for _, h := range f.hooks {
		f.wg.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
			defer cancel()
			if err := h.OnEvent(ctx, pub); err != nil {
				f.logger.Warn("event hook failed", "type", pub.Type, "view_id", pub.ViewID, "error", err)
			}
		})
	}
}

// wait blocks until running hooks finish or ctx ends.
func (f *eventFanout) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func toPublicEvent(ev designs.Event) Event {
	return Event{
		Type:      ev.Type,
		ViewID:    ev.ViewID,
		State:     string(ev.State),
		Stage:     ev.Stage,
		ProjectID: ev.ProjectID,
		Error:     ev.Error,
		At:        ev.At,
	}
}
