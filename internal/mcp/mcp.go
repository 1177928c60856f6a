// Package mcp implements the Model Context Protocol server for archdoc.
//
// The MCP server exposes design generation, refinement, export and the
// project list through MCP tools, resources and prompts, so MCP-compatible
// agents can drive the same service the HTTP API uses.
package mcp

import (
	"log/slog"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/archdoc/internal/report"
	"github.com/ashita-ai/archdoc/internal/service/designs"
)

// sessionViewTTL is how long an idle MCP session keeps its view open.
const sessionViewTTL = 30 * time.Minute

// Server wraps the MCP server with the design service.
type Server struct {
	mcpServer    *mcpserver.MCPServer
	designs      *designs.Service
	reports      *report.Cache
	logger       *slog.Logger
	projectNames *projectNames
	views        *sessionViews
	now          func() time.Time
}

// New creates and configures a new MCP server with all resources, tools and prompts.
func New(svc *designs.Service, reports *report.Cache, logger *slog.Logger, version string) *Server {
	s := &Server{
		designs:      svc,
		reports:      reports,
		logger:       logger,
		projectNames: newProjectNames(sessionViewTTL),
		views:        newSessionViews(sessionViewTTL),
		now:          time.Now,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"archdoc",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}
