package mcp

import (
	"context"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/archdoc/internal/model"
	"github.com/ashita-ai/archdoc/internal/prompt"
)

func (s *Server) registerPrompts() {
	// design-brief: the exact message archdoc_generate would send the agent.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("design-brief",
			mcplib.WithPromptDescription("Preview the design brief sent to the orchestration agent for a set of requirements"),
			mcplib.WithArgument("project_name",
				mcplib.ArgumentDescription("Name of the system being designed"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("requirements",
				mcplib.ArgumentDescription("What the system must do"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("compliance",
				mcplib.ArgumentDescription("Comma-separated compliance frameworks, e.g. GDPR,SOC2"),
			),
		),
		s.handleDesignBriefPrompt,
	)

	// review-design: walks an agent through critiquing a saved design before refining it.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("review-design",
			mcplib.WithPromptDescription("Review a saved design and decide what feedback to send to archdoc_refine"),
			mcplib.WithArgument("project_id",
				mcplib.ArgumentDescription("Project to review"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleReviewDesignPrompt,
	)
}

func (s *Server) handleDesignBriefPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	args := request.Params.Arguments
	in := model.Intake{
		ProjectName:  args["project_name"],
		Requirements: args["requirements"],
		Compliance:   splitList(args["compliance"]),
	}
	brief, err := prompt.BuildGenerate(in)
	if err != nil {
		return nil, fmt.Errorf("mcp: design-brief: %w", err)
	}
	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Design brief for %s", in.ProjectName),
		Messages: []mcplib.PromptMessage{
			{
				Role:    mcplib.RoleUser,
				Content: mcplib.TextContent{Type: "text", Text: brief},
			},
		},
	}, nil
}

func (s *Server) handleReviewDesignPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	id := request.Params.Arguments["project_id"]
	if id == "" {
		return nil, fmt.Errorf("project_id argument is required")
	}
	p, err := s.designs.GetProject(id)
	if err != nil {
		return nil, fmt.Errorf("mcp: review-design: %w", err)
	}
	d := p.SystemDesign

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Review %s (version %s)", d.ProjectName, d.Version),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Review the %s design (project %s, %d versions so far).

1. READ the report resource archdoc://projects/%s/report.

2. CHECK it against the requirements:
   - Does every component have a clear purpose and a scaling story?
   - Are the critical and high severity issues mitigated?
   - Do the trade-off decisions name what was given up?

3. If something needs to change, CALL archdoc_refine with project_id="%s"
   and feedback that names the component or decision and the change wanted.
   One focused change per refine works better than a list.

4. When the design is acceptable, CALL archdoc_export to hand it off.`,
						d.ProjectName, p.ID, len(p.Versions), p.ID, p.ID),
				},
			},
		},
	}, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
