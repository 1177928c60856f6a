package archdoc

import (
	"context"
	"net/http"
)

// Invoker sends a prompt to a design agent. When provided via WithInvoker it
// replaces the agent selected by ARCHDOC_AGENT_PROVIDER. A returned error is
// reported to the view as a transport failure.
type Invoker interface {
	Invoke(ctx context.Context, prompt, agentID string) (AgentReply, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, prompt, agentID string) (AgentReply, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, prompt, agentID string) (AgentReply, error) {
	return f(ctx, prompt, agentID)
}

// EventHook receives view and project events. Hooks run in their own
// goroutine with a bounded context; failures are logged and never affect
// the originating operation.
type EventHook interface {
	OnEvent(ctx context.Context, ev Event) error
}

// RouteRegistrar registers additional routes on the shared HTTP mux. Routes
// under /v1 go through the same auth chain as the built-in API.
type RouteRegistrar func(mux *http.ServeMux)

// Middleware wraps the root HTTP handler, outside request IDs and auth.
type Middleware func(http.Handler) http.Handler
