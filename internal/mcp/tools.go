package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/archdoc/internal/agent"
	"github.com/ashita-ai/archdoc/internal/ctxutil"
	"github.com/ashita-ai/archdoc/internal/model"
	"github.com/ashita-ai/archdoc/internal/normalize"
	"github.com/ashita-ai/archdoc/internal/prompt"
	"github.com/ashita-ai/archdoc/internal/report"
	"github.com/ashita-ai/archdoc/internal/service/designs"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("archdoc_generate",
			mcplib.WithDescription(`Generate a new system design from free-form requirements.

The orchestration agent researches comparable systems, designs an architecture,
validates it and writes documentation. This can take several minutes. On success
a new project is saved and its id is returned; pass that id to archdoc_refine or
archdoc_export.

When project_name is omitted the name of the client's workspace root is used.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("requirements",
				mcplib.Description("What the system must do, in plain language"),
				mcplib.Required(),
			),
			mcplib.WithString("project_name",
				mcplib.Description("Name of the system being designed"),
			),
			mcplib.WithString("technical_constraints",
				mcplib.Description("Languages, clouds or platforms that must or must not be used"),
			),
			mcplib.WithString("concurrent_users",
				mcplib.Description("Expected concurrent users, e.g. 50k"),
			),
			mcplib.WithString("data_volume",
				mcplib.Description("Expected data volume, e.g. 2 TB/month"),
			),
			mcplib.WithArray("compliance",
				mcplib.Description("Compliance frameworks: PCI-DSS, GDPR, SOC2, ISO27001, HIPAA, CCPA"),
				mcplib.WithStringItems(),
			),
			mcplib.WithString("integration_needs",
				mcplib.Description("External systems the design must integrate with"),
			),
			mcplib.WithArray("reference_companies",
				mcplib.Description("Companies whose published architectures should be studied"),
				mcplib.WithStringItems(),
			),
		),
		s.handleGenerate,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("archdoc_refine",
			mcplib.WithDescription(`Revise a saved design using feedback. The result is appended to the
project's version history; earlier versions are never modified. If the agent call
fails the project is left unchanged.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("project_id",
				mcplib.Description("Project to refine (from archdoc_generate or archdoc_list_projects)"),
				mcplib.Required(),
			),
			mcplib.WithString("feedback",
				mcplib.Description("What to change, e.g. 'use managed Kafka instead of self-hosted'"),
				mcplib.Required(),
			),
		),
		s.handleRefine,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("archdoc_export",
			mcplib.WithDescription("Export the current design of a project as a JSON or YAML document."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("project_id",
				mcplib.Description("Project to export"),
				mcplib.Required(),
			),
			mcplib.WithString("format",
				mcplib.Description("Document format"),
				mcplib.Enum(report.FormatJSON, report.FormatYAML),
				mcplib.DefaultString(report.FormatJSON),
			),
		),
		s.handleExport,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("archdoc_list_projects",
			mcplib.WithDescription("List saved design projects, newest first, optionally filtered by name."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("query",
				mcplib.Description("Case-insensitive substring of the project name"),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum results to return"),
				mcplib.Min(1),
				mcplib.Max(100),
				mcplib.DefaultNumber(20),
			),
		),
		s.handleListProjects,
	)
}

func (s *Server) handleGenerate(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	in := model.Intake{
		ProjectName:          strings.TrimSpace(request.GetString("project_name", "")),
		Requirements:         request.GetString("requirements", ""),
		TechnicalConstraints: request.GetString("technical_constraints", ""),
		ConcurrentUsers:      request.GetString("concurrent_users", ""),
		DataVolume:           request.GetString("data_volume", ""),
		Compliance:           request.GetStringSlice("compliance", nil),
		IntegrationNeeds:     request.GetString("integration_needs", ""),
		ReferenceCompanies:   request.GetStringSlice("reference_companies", nil),
	}
	if in.ProjectName == "" {
		in.ProjectName = s.defaultProjectName(ctx)
	}
	// Validate before taking a view so bad input never touches one.
	if err := prompt.Validate(in); err != nil {
		return errorResult(toolErrorMessage(err)), nil
	}

	viewID, release := s.acquireView(ctx)
	defer release()

	snap, err := s.designs.Generate(ctx, viewID, in)
	if err != nil {
		s.logger.Info("mcp: generate failed", "view_id", viewID, "client", ctxutil.ClientFromContext(ctx), "error", err)
		return errorResult(toolErrorMessage(err)), nil
	}
	return s.snapshotResult(snap)
}

func (s *Server) handleRefine(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	projectID := request.GetString("project_id", "")
	feedback := request.GetString("feedback", "")
	if projectID == "" {
		return errorResult("project_id is required"), nil
	}
	if strings.TrimSpace(feedback) == "" {
		return errorResult("feedback is required"), nil
	}

	viewID, release := s.acquireView(ctx)
	defer release()

	if _, err := s.designs.OpenProject(viewID, projectID); err != nil {
		return errorResult(toolErrorMessage(err)), nil
	}
	snap, err := s.designs.Refine(ctx, viewID, feedback)
	if err != nil {
		s.logger.Info("mcp: refine failed", "view_id", viewID, "project_id", projectID, "client", ctxutil.ClientFromContext(ctx), "error", err)
		return errorResult(toolErrorMessage(err)), nil
	}
	return s.snapshotResult(snap)
}

func (s *Server) handleExport(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	projectID := request.GetString("project_id", "")
	if projectID == "" {
		return errorResult("project_id is required"), nil
	}
	format := request.GetString("format", report.FormatJSON)
	if !report.ValidFormat(format) {
		return errorResult(fmt.Sprintf("unknown format %q: use json or yaml", format)), nil
	}

	p, err := s.designs.GetProject(projectID)
	if err != nil {
		return errorResult(toolErrorMessage(err)), nil
	}
	data, _, err := report.Encode(report.BuildExport(p, s.now().UTC()), format)
	if err != nil {
		return errorResult(fmt.Sprintf("export failed: %v", err)), nil
	}
	return textResult(string(data)), nil
}

func (s *Server) handleListProjects(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	limit := request.GetInt("limit", 20)
	if limit < 1 {
		limit = 1
	}

	all := s.designs.ListProjects(query)
	page := all[:min(limit, len(all))]
	projects := make([]map[string]any, len(page))
	for i, p := range page {
		projects[i] = compactSummary(p)
	}

	data, _ := json.MarshalIndent(map[string]any{
		"projects": projects,
		"total":    len(all),
	}, "", "  ")
	return textResult(string(data)), nil
}

// snapshotResult renders a view snapshot as the tool result.
func (s *Server) snapshotResult(snap designs.ViewSnapshot) (*mcplib.CallToolResult, error) {
	versions := 0
	if snap.ProjectID != "" {
		if vs, err := s.designs.Versions(snap.ProjectID); err == nil {
			versions = len(vs)
		}
	}
	data, err := json.MarshalIndent(compactSnapshot(snap, versions), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: encode result: %w", err)
	}
	return textResult(string(data)), nil
}

// maxCandidateChars bounds the rejected design root echoed back to the agent.
const maxCandidateChars = 2000

// toolErrorMessage turns a service error into text an agent can act on.
func toolErrorMessage(err error) string {
	var verr *prompt.ValidationError
	switch {
	case errors.As(err, &verr):
		return "invalid input: " + verr.Error()
	case errors.Is(err, designs.ErrBusy):
		return "a generate or refine call is already running in this session; wait for it to finish"
	case errors.Is(err, designs.ErrNotFound):
		return "project not found"
	case errors.Is(err, designs.ErrCanceled):
		return "the call was canceled"
	}
	var merr *normalize.MalformedResponseError
	switch {
	case errors.As(err, &merr):
		msg := "the design agent returned a response that is not a system design: " + err.Error()
		if merr.Candidate == nil {
			return msg + "\nno design root was found in the response"
		}
		return msg + "\ncandidate: " + truncate(string(merr.Candidate), maxCandidateChars)
	case agent.IsTransport(err):
		return "the design agent call failed: " + err.Error()
	}
	return err.Error()
}

func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
