package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ashita-ai/archdoc/internal/agent"
	"github.com/ashita-ai/archdoc/internal/auth"
	"github.com/ashita-ai/archdoc/internal/mcp"
	"github.com/ashita-ai/archdoc/internal/model"
	"github.com/ashita-ai/archdoc/internal/ratelimit"
	"github.com/ashita-ai/archdoc/internal/report"
	"github.com/ashita-ai/archdoc/internal/server"
	"github.com/ashita-ai/archdoc/internal/service/designs"
	"github.com/ashita-ai/archdoc/internal/storage"
)

const testAPIKey = "test-api-key"

var (
	testSrv    *httptest.Server
	testBroker *server.Broker
	testToken  string
)

// fakeAgent answers generate prompts with a two-component design named after
// the project, and refine prompts with a three-component revision. Magic
// requirement strings select failure modes.
func fakeAgent(_ context.Context, prompt, _ string) (agent.Result, error) {
	switch {
	case strings.Contains(prompt, "AGENT-DOWN"):
		return agent.Result{}, &agent.TransportError{StatusCode: http.StatusServiceUnavailable, Message: "agent unavailable"}
	case strings.Contains(prompt, "AGENT-GARBAGE"):
		return agent.Result{Success: true, Response: json.RawMessage(`{"result":{"status":"done"}}`)}, nil
	case strings.Contains(prompt, "AGENT-NO-COMPONENTS"):
		return agent.Result{Success: true, Response: json.RawMessage(
			`{"result":{"system_design":{"project_name":"Partial","architecture":{"overview":"no parts"}}}}`)}, nil
	}

	name := "Refined"
	components := []string{"Gateway", "Ledger", "Event Log"}
	if after, ok := strings.CutPrefix(prompt, "Project: "); ok {
		name, _, _ = strings.Cut(after, "\n")
		components = components[:2]
	} else if after, ok := strings.CutPrefix(prompt, "Previous Design: "); ok {
		name, _, _ = strings.Cut(after, "\n")
	}

	comps := make([]map[string]any, len(components))
	for i, c := range components {
		comps[i] = map[string]any{"name": c, "type": "Service", "technologies": []string{"Go", "PostgreSQL"}}
	}
	b, _ := json.Marshal(map[string]any{
		"result": map[string]any{
			"system_design": map[string]any{
				"project_name": name,
				"requirements": map[string]any{"text": "from agent"},
				"architecture": map[string]any{
					"overview":           "Overview of " + name,
					"architecture_style": "Microservices",
					"components":         comps,
				},
				"validation": map[string]any{
					"critical_issues": []string{"Single region"},
				},
			},
		},
	})
	return agent.Result{Success: true, Response: b}, nil
}

type envOptions struct {
	noAuth  bool
	limiter ratelimit.Limiter
	archive server.Archiver
}

type testEnv struct {
	srv    *httptest.Server
	broker *server.Broker
	token  string
}

func startEnv(dataDir string, opts envOptions) (*testEnv, error) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	store := storage.NewFileStore(filepath.Join(dataDir, "design_projects.json"))
	broker := server.NewBroker(logger)
	svc, err := designs.New(ctx, designs.Config{
		Invoker:   agent.InvokerFunc(fakeAgent),
		Store:     store,
		Publisher: broker,
		AgentID:   "test-orchestrator",
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	cache, err := report.NewCache(32)
	if err != nil {
		return nil, err
	}

	keys, jwtMgr := (*auth.KeyVerifier)(nil), (*auth.JWTManager)(nil)
	if !opts.noAuth {
		if keys, err = auth.NewKeyVerifier(testAPIKey, ""); err != nil {
			return nil, err
		}
		if jwtMgr, err = auth.NewJWTManager("", "", time.Hour); err != nil {
			return nil, err
		}
	}

	mcpSrv := mcp.New(svc, cache, logger, "test")
	srv := server.New(server.ServerConfig{
		Designs:             svc,
		Reports:             cache,
		Logger:              logger,
		Archive:             opts.archive,
		JWTMgr:              jwtMgr,
		Keys:                keys,
		Limiter:             opts.limiter,
		Broker:              broker,
		Store:               store,
		MCPServer:           mcpSrv.MCPServer(),
		AgentName:           "test-orchestrator",
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        30 * time.Second,
		Version:             "test",
		MaxRequestBodyBytes: 64 * 1024,
	})

	env := &testEnv{srv: httptest.NewServer(srv.Handler()), broker: broker}
	if !opts.noAuth {
		if env.token, err = getToken(env.srv.URL, testAPIKey); err != nil {
			env.srv.Close()
			return nil, err
		}
	}
	return env, nil
}

func newEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	env, err := startEnv(t.TempDir(), opts)
	require.NoError(t, err)
	t.Cleanup(env.srv.Close)
	return env
}

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "archdoc-server-test")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}
	env, err := startEnv(dir, envOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		os.Exit(1)
	}
	testSrv, testBroker, testToken = env.srv, env.broker, env.token

	code := m.Run()
	testSrv.Close()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func getToken(baseURL, apiKey string) (string, error) {
	body, _ := json.Marshal(model.AuthTokenRequest{APIKey: apiKey, Client: "server-test"})
	resp, err := http.Post(baseURL+"/auth/token", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("getToken: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("getToken: status %d, body: %s", resp.StatusCode, data)
	}
	var result struct {
		Data model.AuthTokenResponse `json:"data"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("getToken: unmarshal: %w", err)
	}
	if result.Data.Token == "" {
		return "", errors.New("getToken: empty token")
	}
	return result.Data.Token, nil
}

func authedRequest(method, url, token string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return http.DefaultClient.Do(req)
}

// do issues an authenticated request against the shared server and decodes
// the data envelope into out when out is non-nil.
func do(t *testing.T, method, path string, body any, wantStatus int, out any) {
	t.Helper()
	doEnv(t, &testEnv{srv: testSrv, token: testToken}, method, path, body, wantStatus, out)
}

func doEnv(t *testing.T, env *testEnv, method, path string, body any, wantStatus int, out any) {
	t.Helper()
	resp, err := authedRequest(method, env.srv.URL+path, env.token, body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, _ := io.ReadAll(resp.Body)
	require.Equal(t, wantStatus, resp.StatusCode, "%s %s: %s", method, path, data)
	if out != nil {
		envelope := struct {
			Data any `json:"data"`
		}{Data: out}
		require.NoError(t, json.Unmarshal(data, &envelope), string(data))
	}
}

func errorCode(t *testing.T, method, path string, body any) (int, model.ErrorDetail) {
	t.Helper()
	resp, err := authedRequest(method, testSrv.URL+path, testToken, body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var apiErr model.APIError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	return resp.StatusCode, apiErr.Error
}

func openView(t *testing.T) string {
	t.Helper()
	var snap designs.ViewSnapshot
	do(t, http.MethodPost, "/v1/views", nil, http.StatusCreated, &snap)
	require.Equal(t, designs.StateInput, snap.State)
	return snap.ID
}

func generateProject(t *testing.T, viewID, name string) designs.ViewSnapshot {
	t.Helper()
	var snap designs.ViewSnapshot
	do(t, http.MethodPost, "/v1/views/"+viewID+"/generate", model.Intake{
		ProjectName:  name,
		Requirements: "Track every payment and reconcile with the bank nightly",
		Compliance:   []string{"PCI-DSS"},
	}, http.StatusCreated, &snap)
	return snap
}

func TestHealthEndpoint(t *testing.T) {
	resp, err := http.Get(testSrv.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var result struct {
		Data model.HealthResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "healthy", result.Data.Status)
	assert.Equal(t, "file", result.Data.Store)
	assert.Equal(t, "test-orchestrator", result.Data.Agent)
	assert.Equal(t, "running", result.Data.SSEBroker)
}

func TestAuthFlow(t *testing.T) {
	_, err := getToken(testSrv.URL, "wrong-key")
	assert.ErrorContains(t, err, "status 401")

	resp, err := authedRequest(http.MethodGet, testSrv.URL+"/v1/projects", "", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = authedRequest(http.MethodGet, testSrv.URL+"/v1/projects", "not-a-jwt", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	do(t, http.MethodGet, "/v1/projects", nil, http.StatusOK, nil)
}

func TestAuthDisabled(t *testing.T) {
	env := newEnv(t, envOptions{noAuth: true})

	doEnv(t, env, http.MethodGet, "/v1/intake/options", nil, http.StatusOK, nil)

	resp, err := http.Post(env.srv.URL+"/auth/token", "application/json", strings.NewReader(`{"api_key":"x"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIntakeOptionsAndPromptPreview(t *testing.T) {
	var opts model.IntakeOptions
	do(t, http.MethodGet, "/v1/intake/options", nil, http.StatusOK, &opts)
	assert.Contains(t, opts.Compliance, "GDPR")
	assert.Contains(t, opts.ReferenceCompanies, "Netflix")

	var preview map[string]string
	do(t, http.MethodPost, "/v1/prompt", model.Intake{ProjectName: "Chat", Requirements: "Realtime chat"}, http.StatusOK, &preview)
	assert.True(t, strings.HasPrefix(preview["prompt"], "Project: Chat\n"))
	assert.Contains(t, preview["prompt"], "None specified")

	status, apiErr := errorCode(t, http.MethodPost, "/v1/prompt", model.Intake{ProjectName: "Chat"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, model.ErrCodeInvalidInput, apiErr.Code)
	assert.Equal(t, map[string]any{"field": "requirements"}, apiErr.Details)
}

func TestGenerateRefineFlow(t *testing.T) {
	viewID := openView(t)

	snap := generateProject(t, viewID, "Payments Flow")
	assert.Equal(t, designs.StateLoaded, snap.State)
	require.NotNil(t, snap.Design)
	require.NotEmpty(t, snap.ProjectID)
	assert.Equal(t, "Payments Flow", snap.Design.ProjectName)
	assert.Equal(t, "1.0", snap.Design.Version)
	require.Len(t, snap.Design.Architecture.Components, 2)
	require.Len(t, snap.Design.Validation.PotentialIssues, 1)
	assert.Equal(t, "High", snap.Design.Validation.PotentialIssues[0].Severity)
	projectID := snap.ProjectID

	var got designs.ViewSnapshot
	do(t, http.MethodGet, "/v1/views/"+viewID, nil, http.StatusOK, &got)
	assert.Equal(t, projectID, got.ProjectID)
	assert.False(t, got.InFlight)

	do(t, http.MethodPost, "/v1/views/"+viewID+"/refine", model.RefineRequest{Feedback: "add an event log"}, http.StatusOK, &snap)
	assert.Equal(t, designs.StateLoaded, snap.State)
	assert.Len(t, snap.Design.Architecture.Components, 3)

	do(t, http.MethodPost, "/v1/views/"+viewID+"/refine", model.RefineRequest{Feedback: "tighten security"}, http.StatusOK, &snap)

	var versions []model.SystemDesign
	do(t, http.MethodGet, "/v1/projects/"+projectID+"/versions", nil, http.StatusOK, &versions)
	require.Len(t, versions, 3, "two refines after a generate give three versions")
	assert.Len(t, versions[0].Architecture.Components, 2)

	var project model.Project
	do(t, http.MethodGet, "/v1/projects/"+projectID, nil, http.StatusOK, &project)
	assert.Equal(t, versions[2].Architecture.Components[2].Name, project.SystemDesign.Architecture.Components[2].Name)

	var r report.Report
	do(t, http.MethodGet, "/v1/projects/"+projectID+"/report", nil, http.StatusOK, &r)
	assert.Equal(t, "Payments Flow", r.ProjectName)
	assert.Equal(t, "Microservices", r.ArchitectureStyle)
	assert.Len(t, r.Components, 3)
	assert.Equal(t, report.NotSpecified, r.Cost.MonthlyEstimate)
}

func TestGenerateErrors(t *testing.T) {
	viewID := openView(t)

	t.Run("validation", func(t *testing.T) {
		status, apiErr := errorCode(t, http.MethodPost, "/v1/views/"+viewID+"/generate",
			model.Intake{ProjectName: "X", Requirements: "r", Compliance: []string{"FedRAMP"}})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, model.ErrCodeInvalidInput, apiErr.Code)

		var snap designs.ViewSnapshot
		do(t, http.MethodGet, "/v1/views/"+viewID, nil, http.StatusOK, &snap)
		assert.Equal(t, designs.StateInput, snap.State, "no call was issued")
	})

	t.Run("malformed response", func(t *testing.T) {
		status, apiErr := errorCode(t, http.MethodPost, "/v1/views/"+viewID+"/generate",
			model.Intake{ProjectName: "X", Requirements: "AGENT-GARBAGE"})
		assert.Equal(t, http.StatusBadGateway, status)
		assert.Equal(t, model.ErrCodeMalformedResponse, apiErr.Code)

		var snap designs.ViewSnapshot
		do(t, http.MethodGet, "/v1/views/"+viewID, nil, http.StatusOK, &snap)
		assert.Equal(t, designs.StateFailed, snap.State)
		require.NotNil(t, snap.LastError)
		assert.Equal(t, designs.KindMalformed, snap.LastError.Kind)
		assert.Nil(t, snap.LastError.Candidate)

		details, ok := apiErr.Details.(map[string]any)
		require.True(t, ok, "details: %#v", apiErr.Details)
		candidate, present := details["candidate"]
		assert.True(t, present)
		assert.Nil(t, candidate, "no design root was found")
	})

	t.Run("malformed candidate is reported", func(t *testing.T) {
		status, apiErr := errorCode(t, http.MethodPost, "/v1/views/"+viewID+"/generate",
			model.Intake{ProjectName: "X", Requirements: "AGENT-NO-COMPONENTS"})
		assert.Equal(t, http.StatusBadGateway, status)
		assert.Equal(t, model.ErrCodeMalformedResponse, apiErr.Code)

		details, ok := apiErr.Details.(map[string]any)
		require.True(t, ok, "details: %#v", apiErr.Details)
		candidate, ok := details["candidate"].(map[string]any)
		require.True(t, ok, "candidate: %#v", details["candidate"])
		assert.Equal(t, "Partial", candidate["project_name"])

		var snap designs.ViewSnapshot
		do(t, http.MethodGet, "/v1/views/"+viewID, nil, http.StatusOK, &snap)
		require.NotNil(t, snap.LastError)
		assert.JSONEq(t, `{"project_name":"Partial","architecture":{"overview":"no parts"}}`,
			string(snap.LastError.Candidate))
	})

	t.Run("transport", func(t *testing.T) {
		status, apiErr := errorCode(t, http.MethodPost, "/v1/views/"+viewID+"/generate",
			model.Intake{ProjectName: "X", Requirements: "AGENT-DOWN"})
		assert.Equal(t, http.StatusBadGateway, status)
		assert.Equal(t, model.ErrCodeBadGateway, apiErr.Code)
	})

	t.Run("failed refine keeps the design", func(t *testing.T) {
		snap := generateProject(t, viewID, "Refine Failure")
		status, _ := errorCode(t, http.MethodPost, "/v1/views/"+viewID+"/refine",
			model.RefineRequest{Feedback: "AGENT-DOWN"})
		assert.Equal(t, http.StatusBadGateway, status)

		var after designs.ViewSnapshot
		do(t, http.MethodGet, "/v1/views/"+viewID, nil, http.StatusOK, &after)
		assert.Equal(t, designs.StateLoaded, after.State)
		assert.Equal(t, snap.ProjectID, after.ProjectID)
		require.NotNil(t, after.LastError)
		assert.Equal(t, designs.KindTransport, after.LastError.Kind)

		var versions []model.SystemDesign
		do(t, http.MethodGet, "/v1/projects/"+snap.ProjectID+"/versions", nil, http.StatusOK, &versions)
		assert.Len(t, versions, 1)
	})

	t.Run("refine without a project", func(t *testing.T) {
		fresh := openView(t)
		status, apiErr := errorCode(t, http.MethodPost, "/v1/views/"+fresh+"/refine", model.RefineRequest{Feedback: "x"})
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, model.ErrCodeConflict, apiErr.Code)
	})

	t.Run("unknown body field", func(t *testing.T) {
		status, apiErr := errorCode(t, http.MethodPost, "/v1/views/"+viewID+"/refine", map[string]string{"feedbak": "x"})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, model.ErrCodeInvalidInput, apiErr.Code)
	})
}

func TestViewNotFound(t *testing.T) {
	status, apiErr := errorCode(t, http.MethodGet, "/v1/views/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, model.ErrCodeNotFound, apiErr.Code)

	status, _ = errorCode(t, http.MethodDelete, "/v1/views/"+openView(t)+"/inflight", nil)
	assert.Equal(t, http.StatusConflict, status, "nothing in flight")
}

func TestEditSaveDiscard(t *testing.T) {
	viewID := openView(t)
	snap := generateProject(t, viewID, "Edit Flow")
	target := snap.Design.Architecture.Components[0]
	other := snap.Design.Architecture.Components[1]

	edited := target
	edited.Purpose = "Terminates TLS and routes requests"
	do(t, http.MethodPut, "/v1/views/"+viewID+"/components/"+target.ID, edited, http.StatusOK, &snap)
	assert.True(t, snap.Dirty)
	assert.Equal(t, edited.Purpose, snap.Design.Architecture.Components[0].Purpose)
	assert.Equal(t, other, snap.Design.Architecture.Components[1], "other components untouched")

	var versions []model.SystemDesign
	do(t, http.MethodGet, "/v1/projects/"+snap.ProjectID+"/versions", nil, http.StatusOK, &versions)
	assert.Len(t, versions, 1, "edits do not touch history until saved")

	do(t, http.MethodPost, "/v1/views/"+viewID+"/save", nil, http.StatusOK, &snap)
	assert.False(t, snap.Dirty)
	do(t, http.MethodGet, "/v1/projects/"+snap.ProjectID+"/versions", nil, http.StatusOK, &versions)
	require.Len(t, versions, 2)
	assert.Equal(t, edited.Purpose, versions[1].Architecture.Components[0].Purpose)

	edited.Purpose = "Discarded"
	do(t, http.MethodPut, "/v1/views/"+viewID+"/components/"+target.ID, edited, http.StatusOK, nil)
	do(t, http.MethodDelete, "/v1/views/"+viewID+"/edits", nil, http.StatusOK, &snap)
	assert.False(t, snap.Dirty)
	assert.NotEqual(t, "Discarded", snap.Design.Architecture.Components[0].Purpose)

	status, _ := errorCode(t, http.MethodPost, "/v1/views/"+viewID+"/save", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = errorCode(t, http.MethodPut, "/v1/views/"+viewID+"/components/missing", model.Component{Name: "nope"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestProjectsListOpenDelete(t *testing.T) {
	viewID := openView(t)
	first := generateProject(t, viewID, "Zebra Inventory")
	second := generateProject(t, viewID, "Zebra Checkout")

	resp, err := authedRequest(http.MethodGet, testSrv.URL+"/v1/projects?q=zebra", testToken, nil)
	require.NoError(t, err)
	var list struct {
		Data  []designs.ProjectSummary `json:"data"`
		Total int                      `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	_ = resp.Body.Close()
	require.Equal(t, 2, list.Total)
	assert.Equal(t, second.ProjectID, list.Data[0].ID, "newest first")

	other := openView(t)
	var snap designs.ViewSnapshot
	do(t, http.MethodPost, "/v1/views/"+other+"/open", model.OpenProjectRequest{ProjectID: first.ProjectID}, http.StatusOK, &snap)
	assert.Equal(t, designs.StateLoaded, snap.State)
	assert.Equal(t, "Zebra Inventory", snap.Design.ProjectName)

	do(t, http.MethodDelete, "/v1/projects/"+first.ProjectID, nil, http.StatusNoContent, nil)
	status, _ := errorCode(t, http.MethodGet, "/v1/projects/"+first.ProjectID, nil)
	assert.Equal(t, http.StatusNotFound, status)

	do(t, http.MethodGet, "/v1/views/"+other, nil, http.StatusOK, &snap)
	assert.Equal(t, designs.StateInput, snap.State, "views showing a deleted project reset")

	do(t, http.MethodDelete, "/v1/views/"+other, nil, http.StatusNoContent, nil)
	status, _ = errorCode(t, http.MethodGet, "/v1/views/"+other, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestExportDownload(t *testing.T) {
	snap := generateProject(t, openView(t), "Export Flow")

	resp, err := authedRequest(http.MethodGet, testSrv.URL+"/v1/projects/"+snap.ProjectID+"/export", testToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="Export Flow-design.json"`, resp.Header.Get("Content-Disposition"))

	var doc report.ExportDocument
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "Export Flow", doc.Metadata.ProjectName)
	assert.JSONEq(t, `{"text":"from agent"}`, string(doc.Requirements))
	assert.JSONEq(t, `null`, string(doc.Research))
	assert.Len(t, doc.Architecture.Components, 2)

	resp, err = authedRequest(http.MethodGet, testSrv.URL+"/v1/projects/"+snap.ProjectID+"/export?format=yaml", testToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var y map[string]any
	require.NoError(t, yaml.NewDecoder(resp.Body).Decode(&y))
	assert.Contains(t, y, "metadata")

	status, apiErr := errorCode(t, http.MethodGet, "/v1/projects/"+snap.ProjectID+"/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, model.ErrCodeInvalidInput, apiErr.Code)
}

type fakeArchive struct {
	mu   sync.Mutex
	puts []string
	err  error
}

func (a *fakeArchive) Put(_ context.Context, projectID, fileName, _ string, data []byte, now time.Time) (report.ArchivedExport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return report.ArchivedExport{}, &report.ExportError{Sink: "s3", Err: a.err}
	}
	key := projectID + "/" + fileName
	a.puts = append(a.puts, key)
	return report.ArchivedExport{Key: key, URL: "https://archive.example/" + key, ExpiresAt: now.Add(time.Hour)}, nil
}

func TestArchiveExport(t *testing.T) {
	snap := generateProject(t, openView(t), "Archive Flow")
	status, _ := errorCode(t, http.MethodPost, "/v1/projects/"+snap.ProjectID+"/export/archive", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status, "no archive configured")

	archive := &fakeArchive{}
	env := newEnv(t, envOptions{archive: archive})
	var v designs.ViewSnapshot
	doEnv(t, env, http.MethodPost, "/v1/views", nil, http.StatusCreated, &v)
	doEnv(t, env, http.MethodPost, "/v1/views/"+v.ID+"/generate",
		model.Intake{ProjectName: "Archived", Requirements: "r"}, http.StatusCreated, &v)

	var out model.ArchiveResponse
	doEnv(t, env, http.MethodPost, "/v1/projects/"+v.ProjectID+"/export/archive", nil, http.StatusCreated, &out)
	assert.Equal(t, v.ProjectID+"/Archived-design.json", out.Key)
	assert.Contains(t, out.URL, "https://archive.example/")

	archive.err = errors.New("bucket unreachable")
	doEnv(t, env, http.MethodPost, "/v1/projects/"+v.ProjectID+"/export/archive", nil, http.StatusBadGateway, nil)
}

func TestRateLimitOnAgentCalls(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(0.001, 1)
	t.Cleanup(func() { _ = limiter.Close() })
	env := newEnv(t, envOptions{noAuth: true, limiter: limiter})

	var v designs.ViewSnapshot
	doEnv(t, env, http.MethodPost, "/v1/views", nil, http.StatusCreated, &v)
	in := model.Intake{ProjectName: "Limited", Requirements: "r"}
	doEnv(t, env, http.MethodPost, "/v1/views/"+v.ID+"/generate", in, http.StatusCreated, nil)

	resp, err := authedRequest(http.MethodPost, env.srv.URL+"/v1/views/"+v.ID+"/generate", "", in)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Reads are not limited.
	doEnv(t, env, http.MethodGet, "/v1/views/"+v.ID, nil, http.StatusOK, nil)
}

func TestSSESubscribe(t *testing.T) {
	viewID := openView(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, testSrv.URL+"/v1/subscribe?view="+viewID, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return testBroker.Subscribers() >= 1 }, time.Second, 10*time.Millisecond)

	generateProject(t, viewID, "Streamed")

	var states []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev designs.Event
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		assert.Equal(t, viewID, ev.ViewID)
		if ev.Type == designs.EventViewState {
			states = append(states, string(ev.State))
		}
		if ev.Type == designs.EventProjectSave {
			break
		}
	}
	require.NotEmpty(t, states)
	assert.Equal(t, string(designs.StateLoading), states[0])
	assert.Equal(t, string(designs.StateLoaded), states[len(states)-1])
}

func newMCPClient(t *testing.T, token string) *mcpclient.Client {
	t.Helper()
	c, err := mcpclient.NewStreamableHttpClient(
		testSrv.URL+"/mcp",
		mcptransport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + token,
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Initialize(context.Background(), mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ClientInfo: mcplib.Implementation{Name: "test-client", Version: "1.0"},
		},
	})
	require.NoError(t, err)
	return c
}

func TestMCPListToolsAndResources(t *testing.T) {
	c := newMCPClient(t, testToken)
	ctx := context.Background()

	toolsResult, err := c.ListTools(ctx, mcplib.ListToolsRequest{})
	require.NoError(t, err)
	names := make([]string, 0, len(toolsResult.Tools))
	for _, tool := range toolsResult.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"archdoc_generate", "archdoc_refine", "archdoc_export", "archdoc_list_projects"}, names)

	resourcesResult, err := c.ListResources(ctx, mcplib.ListResourcesRequest{})
	require.NoError(t, err)
	uris := make([]string, 0, len(resourcesResult.Resources))
	for _, r := range resourcesResult.Resources {
		uris = append(uris, r.URI)
	}
	assert.Contains(t, uris, "archdoc://projects")

	promptsResult, err := c.ListPrompts(ctx, mcplib.ListPromptsRequest{})
	require.NoError(t, err)
	assert.Len(t, promptsResult.Prompts, 2)
}

func TestMCPGenerateRefineExport(t *testing.T) {
	c := newMCPClient(t, testToken)
	ctx := context.Background()

	genResult, err := c.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name: "archdoc_generate",
			Arguments: map[string]any{
				"project_name": "MCP Ledger",
				"requirements": "Double-entry ledger with audit trail",
				"compliance":   []string{"SOC2"},
			},
		},
	})
	require.NoError(t, err)
	require.False(t, genResult.IsError, "generate returned error: %v", genResult.Content)

	var gen struct {
		Design struct {
			ProjectID string `json:"project_id"`
		} `json:"design"`
	}
	require.NoError(t, json.Unmarshal([]byte(genResult.Content[0].(mcplib.TextContent).Text), &gen))
	require.NotEmpty(t, gen.Design.ProjectID)

	refResult, err := c.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      "archdoc_refine",
			Arguments: map[string]any{"project_id": gen.Design.ProjectID, "feedback": "add an event log"},
		},
	})
	require.NoError(t, err)
	require.False(t, refResult.IsError, "refine returned error: %v", refResult.Content)

	expResult, err := c.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      "archdoc_export",
			Arguments: map[string]any{"project_id": gen.Design.ProjectID},
		},
	})
	require.NoError(t, err)
	require.False(t, expResult.IsError)
	var doc report.ExportDocument
	require.NoError(t, json.Unmarshal([]byte(expResult.Content[0].(mcplib.TextContent).Text), &doc))
	assert.Equal(t, 2, doc.Metadata.VersionCount)

	res, err := c.ReadResource(ctx, mcplib.ReadResourceRequest{
		Params: mcplib.ReadResourceParams{URI: "archdoc://projects/" + gen.Design.ProjectID + "/report"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Contents)
}

func TestMCPUnauthenticated(t *testing.T) {
	resp, err := http.Post(testSrv.URL+"/mcp", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
