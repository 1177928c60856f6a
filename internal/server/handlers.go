package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/archdoc/internal/auth"
	"github.com/ashita-ai/archdoc/internal/model"
	"github.com/ashita-ai/archdoc/internal/prompt"
	"github.com/ashita-ai/archdoc/internal/report"
	"github.com/ashita-ai/archdoc/internal/service/designs"
)

// Archiver stores an export document and returns a download link.
type Archiver interface {
	Put(ctx context.Context, projectID, fileName, contentType string, data []byte, now time.Time) (report.ArchivedExport, error)
}

// StoreInfo describes the project store for health checks. Stores that can
// be pinged also implement Ping.
type StoreInfo interface {
	Name() string
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	designs             *designs.Service
	reports             *report.Cache
	archive             Archiver
	jwtMgr              *auth.JWTManager
	keys                *auth.KeyVerifier
	broker              *Broker
	store               StoreInfo
	agentName           string
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
	now                 func() time.Time
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Archive, JWTMgr, Keys, Broker, Store, OpenAPISpec.
type HandlersDeps struct {
	Designs             *designs.Service
	Reports             *report.Cache
	Archive             Archiver
	JWTMgr              *auth.JWTManager
	Keys                *auth.KeyVerifier
	Broker              *Broker
	Store               StoreInfo
	AgentName           string
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	maxBody := d.MaxRequestBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handlers{
		designs:             d.Designs,
		reports:             d.Reports,
		archive:             d.Archive,
		jwtMgr:              d.JWTMgr,
		keys:                d.Keys,
		broker:              d.Broker,
		store:               d.Store,
		agentName:           d.AgentName,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: maxBody,
		openapiSpec:         d.OpenAPISpec,
		now:                 time.Now,
	}
}

// HandleAuthToken handles POST /auth/token.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	if h.jwtMgr == nil || !h.keys.Enabled() {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "authentication is not enabled")
		return
	}
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if !h.keys.Verify(req.APIKey) {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}
	token, expiresAt, err := h.jwtMgr.IssueToken(req.Client)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{Token: token, ExpiresAt: expiresAt})
}

// HandleIntakeOptions handles GET /v1/intake/options.
func (h *Handlers) HandleIntakeOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, prompt.Options())
}

// HandlePromptPreview handles POST /v1/prompt. It returns the prompt a
// generate call would send, without calling the agent.
func (h *Handlers) HandlePromptPreview(w http.ResponseWriter, r *http.Request) {
	var in model.Intake
	if err := decodeJSON(w, r, &in, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	msg, err := prompt.BuildGenerate(in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"prompt": msg})
}

// HandleSubscribe handles GET /v1/subscribe (SSE). ?view= limits the stream
// to one view.
func (h *Handlers) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError, "event stream not available")
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}
	// Long-lived connection: lift the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	ch := h.broker.Subscribe(r.URL.Query().Get("view"))
	defer h.broker.Unsubscribe(ch)

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
				return
			}
			_ = rc.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(event); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	httpStatus := http.StatusOK

	resp := model.HealthResponse{
		Version:  h.version,
		Agent:    h.agentName,
		Projects: h.designs.ProjectCount(),
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	}
	if h.store != nil {
		resp.Store = h.store.Name()
		if p, ok := h.store.(pinger); ok {
			if err := p.Ping(r.Context()); err != nil {
				h.logger.Warn("health: store ping failed", "store", resp.Store, "error", err)
				status = "unhealthy"
				httpStatus = http.StatusServiceUnavailable
			}
		}
	}
	if h.broker != nil {
		resp.SSEBroker = "running"
	}
	resp.Status = status
	writeJSON(w, r, httpStatus, resp)
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}
