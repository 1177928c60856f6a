package archdoc_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/archdoc"
)

// recordingHook collects events delivered to it.
type recordingHook struct {
	mu     sync.Mutex
	events []archdoc.Event
}

func (h *recordingHook) OnEvent(_ context.Context, ev archdoc.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return errors.New("hook failures are only logged")
}

func (h *recordingHook) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.events))
	for i, ev := range h.events {
		out[i] = ev.Type
	}
	return out
}

func designAgent(_ context.Context, _, _ string) (archdoc.AgentReply, error) {
	return archdoc.AgentReply{
		Success: true,
		Response: json.RawMessage(`{"result": {"system_design": {
			"project_name": "Embedded",
			"architecture": {"architecture_style": "Modular monolith",
				"components": [{"name": "Core", "type": "Service"}]}}}}`),
	}, nil
}

func isolatedEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ARCHDOC_STORE", "file")
	t.Setenv("ARCHDOC_DATA_FILE", filepath.Join(dir, "design_projects.json"))
	t.Setenv("ARCHDOC_API_KEY", "")
	t.Setenv("ARCHDOC_API_KEY_HASH", "")
	t.Setenv("ARCHDOC_S3_BUCKET", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("ARCHDOC_RATE_LIMIT_ENABLED", "false")
}

func postJSON(t *testing.T, url string, body any) map[string]any {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b)) //nolint:gosec // test server URL
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Less(t, resp.StatusCode, 300, "POST %s", url)
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Data
}

func TestApp_EmbeddedWithExtensions(t *testing.T) {
	isolatedEnv(t)
	hook := &recordingHook{}

	app, err := archdoc.New(context.Background(),
		archdoc.WithVersion("test"),
		archdoc.WithInvoker(archdoc.InvokerFunc(designAgent)),
		archdoc.WithEventHook(hook),
		archdoc.WithExtraRoutes(func(mux *http.ServeMux) {
			mux.HandleFunc("GET /v1/custom", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			})
		}),
		archdoc.WithMiddleware(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Embedded", "yes")
				next.ServeHTTP(w, r)
			})
		}),
	)
	require.NoError(t, err)

	ts := httptest.NewServer(app.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/v1/custom")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "yes", resp.Header.Get("X-Embedded"))

	view := postJSON(t, ts.URL+"/v1/views", nil)
	viewID, _ := view["id"].(string)
	require.NotEmpty(t, viewID)

	snap := postJSON(t, ts.URL+"/v1/views/"+viewID+"/generate", map[string]any{
		"project_name": "Embedded",
		"requirements": "Serve design reports from a host application",
	})
	assert.Equal(t, "loaded", snap["state"])
	assert.NotEmpty(t, snap["project_id"])

	assert.Eventually(t, func() bool {
		types := hook.types()
		return slices.Contains(types, archdoc.EventViewOpened) && slices.Contains(types, archdoc.EventViewState)
	}, 2*time.Second, 10*time.Millisecond)

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	var health struct {
		Data struct {
			Agent    string `json:"agent"`
			Version  string `json:"version"`
			Projects int    `json:"projects"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	_ = resp.Body.Close()
	assert.Equal(t, "custom", health.Data.Agent)
	assert.Equal(t, "test", health.Data.Version)
	assert.Equal(t, 1, health.Data.Projects)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Shutdown(ctx))
}

func TestApp_ProjectsSurviveRestart(t *testing.T) {
	isolatedEnv(t)
	ctx := context.Background()

	first, err := archdoc.New(ctx, archdoc.WithInvoker(archdoc.InvokerFunc(designAgent)))
	require.NoError(t, err)
	ts := httptest.NewServer(first.Handler())
	view := postJSON(t, ts.URL+"/v1/views", nil)
	postJSON(t, ts.URL+"/v1/views/"+view["id"].(string)+"/generate", map[string]any{
		"project_name": "Embedded",
		"requirements": "Persist across restarts",
	})
	ts.Close()
	require.NoError(t, first.Shutdown(ctx))

	second, err := archdoc.New(ctx, archdoc.WithInvoker(archdoc.InvokerFunc(designAgent)))
	require.NoError(t, err)
	ts = httptest.NewServer(second.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/v1/projects")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var list struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 1, list.Total)
	require.NoError(t, second.Shutdown(ctx))
}

func TestNew_InvalidConfig(t *testing.T) {
	isolatedEnv(t)
	t.Setenv("ARCHDOC_STORE", "mongo")
	_, err := archdoc.New(context.Background())
	assert.ErrorContains(t, err, "ARCHDOC_STORE")
}
