package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPConfig holds the settings needed to construct an HTTPInvoker.
type HTTPConfig struct {
	// Endpoint is the full URL of the agent invoke route.
	Endpoint string

	// APIKey is sent in the x-api-key header when set.
	APIKey string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	// Timeout bounds a single agent call. Zero means no client-side limit.
	Timeout time.Duration

	// MaxResponseBytes caps the agent response body. Zero means
	// DefaultMaxResponseBytes.
	MaxResponseBytes int64
}

// DefaultMaxResponseBytes is the response cap used when none is configured.
const DefaultMaxResponseBytes = 8 << 20

// HTTPInvoker posts prompts to an agent endpoint as JSON.
type HTTPInvoker struct {
	endpoint string
	apiKey   string
	client   *http.Client
	maxBytes int64
}

type invokeRequest struct {
	Message string `json:"message"`
	AgentID string `json:"agent_id"`
}

// NewHTTPInvoker creates an HTTPInvoker. Returns an error if Endpoint is empty.
func NewHTTPInvoker(cfg HTTPConfig) (*HTTPInvoker, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("agent: endpoint is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}
	return &HTTPInvoker{endpoint: cfg.Endpoint, apiKey: cfg.APIKey, client: client, maxBytes: maxBytes}, nil
}

// Invoke implements Invoker.
func (h *HTTPInvoker) Invoke(ctx context.Context, prompt, agentID string) (Result, error) {
	body, err := json.Marshal(invokeRequest{Message: prompt, AgentID: agentID})
	if err != nil {
		return Result{}, fmt.Errorf("agent: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("agent: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if h.apiKey != "" {
		req.Header.Set("x-api-key", h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Result{}, &TransportError{StatusCode: resp.StatusCode, Message: errorMessage(raw, resp.StatusCode)}
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return Result{}, &TransportError{Err: fmt.Errorf("read response body: %w", err)}
	}
	if int64(len(raw)) > h.maxBytes {
		return Result{}, &TransportError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("response exceeds %d bytes", h.maxBytes),
		}
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, &TransportError{StatusCode: resp.StatusCode, Message: "response is not an agent envelope", Err: err}
	}
	if !res.Success {
		return res, &TransportError{StatusCode: resp.StatusCode, Message: errorMessage(raw, resp.StatusCode)}
	}
	return res, nil
}

func errorMessage(body []byte, status int) string {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && len(env.Error) > 0 {
		var msg string
		if json.Unmarshal(env.Error, &msg) == nil && msg != "" {
			return msg
		}
		var detail struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(env.Error, &detail) == nil && detail.Message != "" {
			return detail.Message
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" && len(s) <= 512 {
		return s
	}
	return http.StatusText(status)
}
