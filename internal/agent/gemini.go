package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ashita-ai/archdoc/internal/jsonutil"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

const systemInstruction = `You are a principal software architect. Answer with a single JSON object
describing the system design, with the fields project_name, version, timestamp,
requirements, research, architecture (overview, architecture_style, components,
trade_off_decisions), validation (potential_issues, scalability_assessment,
fault_tolerance_review, security_evaluation) and documentation (including
cost_estimation with monthly_estimate and breakdown). Do not add prose.`

// ErrEmptyCompletion is returned when the model produced no text.
var ErrEmptyCompletion = errors.New("agent: model returned no content")

// contentGenerator is the subset of genai.Models used by GeminiInvoker.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiInvoker answers prompts directly with a Gemini model instead of a
// remote orchestrator. The model output is wrapped as {"result": ...} so it
// takes the same normalization path as orchestrator responses.
type GeminiInvoker struct {
	models contentGenerator
	model  string
}

// NewGeminiInvoker creates a Gemini-backed invoker using the Gemini API backend.
func NewGeminiInvoker(ctx context.Context, apiKey, model string) (*GeminiInvoker, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("agent: gemini API key is required")
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("agent: create gemini client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiInvoker{models: cli.Models, model: model}, nil
}

// Name identifies the backing model.
func (g *GeminiInvoker) Name() string { return "gemini:" + g.model }

// Invoke implements Invoker. agentID is ignored.
func (g *GeminiInvoker) Invoke(ctx context.Context, prompt, _ string) (Result, error) {
	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseMIMEType:  "application/json",
			SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		},
	)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, &TransportError{Err: err}
	}

	text := completionText(resp)
	if text == "" {
		return Result{}, &TransportError{Err: ErrEmptyCompletion}
	}
	body, err := jsonutil.Extract([]byte(text))
	if err != nil {
		// Let the normalizer report the unusable text as a malformed response.
		quoted, _ := json.Marshal(text)
		body = quoted
	}
	wrapped, err := json.Marshal(map[string]json.RawMessage{"result": body})
	if err != nil {
		return Result{}, fmt.Errorf("agent: wrap completion: %w", err)
	}
	return Result{Success: true, Response: wrapped}, nil
}

func completionText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}
