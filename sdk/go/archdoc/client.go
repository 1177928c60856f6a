package archdoc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the archdoc server (e.g. "http://localhost:8080").
	BaseURL string

	// APIKey is exchanged for a JWT. Leave empty when the server runs
	// without authentication.
	APIKey string

	// ClientName is recorded in issued tokens. Defaults to "archdoc-go".
	ClientName string

	// HTTPClient is an optional custom HTTP client. If nil, a client with
	// Timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Generate and Refine block
	// until the agent answers, so the default is five minutes.
	Timeout time.Duration
}

// Client is an HTTP client for the archdoc API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	client   *http.Client
	tokenMgr *tokenManager // nil when no API key is configured
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("archdoc: BaseURL is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 5 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{baseURL: baseURL, client: httpClient}
	if cfg.APIKey != "" {
		name := cfg.ClientName
		if name == "" {
			name = "archdoc-go"
		}
		c.tokenMgr = newTokenManager(baseURL, name, cfg.APIKey, httpClient)
	}
	return c, nil
}

// Health reports server health. It never requires authentication.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h, false); err != nil {
		return nil, err
	}
	return &h, nil
}

// IntakeOptions returns the selectable compliance regimes and reference companies.
func (c *Client) IntakeOptions(ctx context.Context) (*IntakeOptions, error) {
	var o IntakeOptions
	if err := c.do(ctx, http.MethodGet, "/v1/intake/options", nil, &o, true); err != nil {
		return nil, err
	}
	return &o, nil
}

// PreviewPrompt renders the prompt the server would send for in, without
// calling the agent.
func (c *Client) PreviewPrompt(ctx context.Context, in Intake) (string, error) {
	var resp struct {
		Prompt string `json:"prompt"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/prompt", in, &resp, true); err != nil {
		return "", err
	}
	return resp.Prompt, nil
}

// OpenView starts a view in the input state.
func (c *Client) OpenView(ctx context.Context) (*View, error) {
	return c.view(ctx, http.MethodPost, "/v1/views", nil)
}

// GetView returns the current snapshot of a view.
func (c *Client) GetView(ctx context.Context, viewID string) (*View, error) {
	return c.view(ctx, http.MethodGet, viewPath(viewID, ""), nil)
}

// CloseView closes a view, canceling any in-flight call.
func (c *Client) CloseView(ctx context.Context, viewID string) error {
	return c.do(ctx, http.MethodDelete, viewPath(viewID, ""), nil, nil, true)
}

// OpenProject shows a saved project in the view.
func (c *Client) OpenProject(ctx context.Context, viewID, projectID string) (*View, error) {
	return c.view(ctx, http.MethodPost, viewPath(viewID, "/open"), map[string]string{"project_id": projectID})
}

// Generate asks the agent for a new design and saves it as a new project.
// It blocks until the agent answers or the call is canceled.
func (c *Client) Generate(ctx context.Context, viewID string, in Intake) (*View, error) {
	return c.view(ctx, http.MethodPost, viewPath(viewID, "/generate"), in)
}

// Refine revises the loaded design with feedback, appending a version.
func (c *Client) Refine(ctx context.Context, viewID, feedback string) (*View, error) {
	return c.view(ctx, http.MethodPost, viewPath(viewID, "/refine"), map[string]string{"feedback": feedback})
}

// Cancel aborts the view's in-flight call. The blocked Generate or Refine
// returns a conflict error and the view keeps its previous state.
func (c *Client) Cancel(ctx context.Context, viewID string) error {
	return c.do(ctx, http.MethodDelete, viewPath(viewID, "/inflight"), nil, nil, true)
}

// EditComponent changes a component in the view's unsaved draft. Empty
// fields in updated keep their current values. componentID may also be the
// component's name.
func (c *Client) EditComponent(ctx context.Context, viewID, componentID string, updated Component) (*View, error) {
	return c.view(ctx, http.MethodPut, viewPath(viewID, "/components/"+url.PathEscape(componentID)), updated)
}

// SaveEdits saves the draft as a new version of the project.
func (c *Client) SaveEdits(ctx context.Context, viewID string) (*View, error) {
	return c.view(ctx, http.MethodPost, viewPath(viewID, "/save"), nil)
}

// DiscardEdits drops the draft.
func (c *Client) DiscardEdits(ctx context.Context, viewID string) (*View, error) {
	return c.view(ctx, http.MethodDelete, viewPath(viewID, "/edits"), nil)
}

// ListProjects returns saved projects whose name contains query.
// An empty query lists all.
func (c *Client) ListProjects(ctx context.Context, query string) ([]ProjectSummary, error) {
	path := "/v1/projects"
	if query != "" {
		path += "?" + url.Values{"q": {query}}.Encode()
	}
	var list []ProjectSummary
	if err := c.do(ctx, http.MethodGet, path, nil, &list, true); err != nil {
		return nil, err
	}
	return list, nil
}

// GetProject returns a project with its full history.
func (c *Client) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var p Project
	if err := c.do(ctx, http.MethodGet, projectPath(projectID, ""), nil, &p, true); err != nil {
		return nil, err
	}
	return &p, nil
}

// Versions returns a project's designs, oldest first.
func (c *Client) Versions(ctx context.Context, projectID string) ([]Design, error) {
	var versions []Design
	if err := c.do(ctx, http.MethodGet, projectPath(projectID, "/versions"), nil, &versions, true); err != nil {
		return nil, err
	}
	return versions, nil
}

// Report returns the rendered report for a project's current design.
func (c *Client) Report(ctx context.Context, projectID string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, projectPath(projectID, "/report"), nil, &raw, true); err != nil {
		return nil, err
	}
	return raw, nil
}

// DeleteProject deletes a project.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	return c.do(ctx, http.MethodDelete, projectPath(projectID, ""), nil, nil, true)
}

// Export downloads a project's design document as "json" or "yaml".
func (c *Client) Export(ctx context.Context, projectID, format string) (*Export, error) {
	path := projectPath(projectID, "/export") + formatQuery(format)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("archdoc: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("archdoc: read export: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, body)
	}
	exp := &Export{ContentType: resp.Header.Get("Content-Type"), Data: body}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		exp.FileName = params["filename"]
	}
	return exp, nil
}

// ArchiveExport stores the export in the server's archive and returns a
// presigned download URL.
func (c *Client) ArchiveExport(ctx context.Context, projectID, format string) (*Archive, error) {
	var a Archive
	path := projectPath(projectID, "/export/archive") + formatQuery(format)
	if err := c.do(ctx, http.MethodPost, path, nil, &a, true); err != nil {
		return nil, err
	}
	return &a, nil
}

func viewPath(viewID, suffix string) string {
	return "/v1/views/" + url.PathEscape(viewID) + suffix
}

func projectPath(projectID, suffix string) string {
	return "/v1/projects/" + url.PathEscape(projectID) + suffix
}

func formatQuery(format string) string {
	if format == "" {
		return ""
	}
	return "?" + url.Values{"format": {format}}.Encode()
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

func (c *Client) view(ctx context.Context, method, path string, body any) (*View, error) {
	var v View
	if err := c.do(ctx, method, path, body, &v, true); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any, authed bool) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("archdoc: marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("archdoc: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed && c.tokenMgr != nil {
		token, err := c.tokenMgr.getToken(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any, authed bool) error {
	req, err := c.newRequest(ctx, method, path, body, authed)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("archdoc: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			Field string `json:"field"`
		} `json:"details"`
	} `json:"error"`
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("archdoc: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}
	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusAccepted || dest == nil {
		return nil
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("archdoc: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return fmt.Errorf("archdoc: response has no data")
	}
	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Field = envelope.Error.Details.Field
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}
	return apiErr
}

// ---------------------------------------------------------------------------
// Token management
// ---------------------------------------------------------------------------

// tokenManager handles JWT acquisition and refresh. It is safe for
// concurrent use.
type tokenManager struct {
	baseURL string
	client  string
	apiKey  string
	http    *http.Client
	margin  time.Duration

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenManager(baseURL, client, apiKey string, httpClient *http.Client) *tokenManager {
	return &tokenManager{
		baseURL: baseURL,
		client:  client,
		apiKey:  apiKey,
		http:    httpClient,
		margin:  30 * time.Second,
	}
}

func (tm *tokenManager) getToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token != "" && time.Now().Before(tm.expiresAt.Add(-tm.margin)) {
		return tm.token, nil
	}
	if err := tm.refresh(ctx); err != nil {
		return "", err
	}
	return tm.token, nil
}

func (tm *tokenManager) refresh(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{"api_key": tm.apiKey, "client": tm.client})
	if err != nil {
		return fmt.Errorf("archdoc: marshal auth request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.baseURL+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("archdoc: create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tm.http.Do(req)
	if err != nil {
		return fmt.Errorf("archdoc: auth request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var tok struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := handleResponse(resp, &tok); err != nil {
		return err
	}
	tm.token = tok.Token
	tm.expiresAt = tok.ExpiresAt
	return nil
}
