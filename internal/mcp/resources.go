package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/archdoc/internal/prompt"
)

const (
	projectsURI       = "archdoc://projects"
	projectURIPrefix  = "archdoc://projects/"
	projectURISuffix  = "/report"
	intakeOptionsURI  = "archdoc://intake/options"
	reportURITemplate = "archdoc://projects/{id}/report"
)

func (s *Server) registerResources() {
	// archdoc://projects: every saved project, newest first.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			projectsURI,
			"Design Projects",
			mcplib.WithResourceDescription("Saved design projects, newest first"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleProjects,
	)

	// archdoc://intake/options: selectable intake values.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			intakeOptionsURI,
			"Intake Options",
			mcplib.WithResourceDescription("Compliance frameworks and reference companies accepted by archdoc_generate"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleIntakeOptions,
	)

	// archdoc://projects/{id}/report: the rendered report for one project.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			reportURITemplate,
			"Design Report",
			mcplib.WithTemplateDescription("Rendered report for the current version of a project"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleProjectReport,
	)
}

func (s *Server) handleProjects(_ context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	summaries := s.designs.ListProjects("")
	projects := make([]map[string]any, len(summaries))
	for i, p := range summaries {
		projects[i] = compactSummary(p)
	}
	return jsonResource(request.Params.URI, projects)
}

func (s *Server) handleIntakeOptions(_ context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	return jsonResource(request.Params.URI, prompt.Options())
}

func (s *Server) handleProjectReport(_ context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	id, err := parseReportURI(request.Params.URI)
	if err != nil {
		return nil, err
	}
	p, err := s.designs.GetProject(id)
	if err != nil {
		return nil, fmt.Errorf("mcp: project report %s: %w", id, err)
	}
	return jsonResource(request.Params.URI, s.reports.Render(p))
}

// parseReportURI extracts the project id from archdoc://projects/{id}/report.
func parseReportURI(uri string) (string, error) {
	if !strings.HasPrefix(uri, projectURIPrefix) || !strings.HasSuffix(uri, projectURISuffix) {
		return "", fmt.Errorf("mcp: invalid report URI: %s", uri)
	}
	id := strings.TrimSuffix(strings.TrimPrefix(uri, projectURIPrefix), projectURISuffix)
	if id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("mcp: invalid report URI: %s", uri)
	}
	return id, nil
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: encode %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
