package archdoc

import (
	"io/fs"
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

type resolvedOptions struct {
	port            int
	logger          *slog.Logger
	version         string
	invoker         Invoker
	uiFS            fs.FS
	eventHooks      []EventHook
	routeRegistrars []RouteRegistrar
	middlewares     []Middleware
}

// WithPort overrides ARCHDOC_PORT.
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version reported by /health and the MCP server.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithInvoker replaces the configured design agent.
func WithInvoker(inv Invoker) Option {
	return func(o *resolvedOptions) { o.invoker = inv }
}

// WithUI serves fsys as the single-page report viewer at /.
// Ignored when ARCHDOC_UI_ENABLED is false.
func WithUI(fsys fs.FS) Option {
	return func(o *resolvedOptions) { o.uiFS = fsys }
}

// WithEventHook registers a hook for view and project events.
// Every registered hook receives every event.
func WithEventHook(hook EventHook) Option {
	return func(o *resolvedOptions) { o.eventHooks = append(o.eventHooks, hook) }
}

// WithExtraRoutes registers additional routes, called in registration order.
func WithExtraRoutes(fn RouteRegistrar) Option {
	return func(o *resolvedOptions) { o.routeRegistrars = append(o.routeRegistrars, fn) }
}

// WithMiddleware registers an outermost HTTP middleware. The first
// registered runs first.
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}
