package mcp

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

const (
	// rootsRequestTimeout bounds the round trip to the client for its roots.
	rootsRequestTimeout = 3 * time.Second

	// maxNamedSessions caps the sessions whose default project name is remembered.
	maxNamedSessions = 1024
)

// projectNames remembers the default project name inferred for each MCP
// session. An empty name records that the session was asked and offered none.
// Entries expire together with the session's view.
type projectNames struct {
	names *expirable.LRU[string, string]
}

func newProjectNames(ttl time.Duration) *projectNames {
	return &projectNames{names: expirable.NewLRU[string, string](maxNamedSessions, nil, ttl)}
}

// defaultProjectName returns the project name suggested by the client's
// workspace roots, or "" when the client has none or cannot be asked.
func (s *Server) defaultProjectName(ctx context.Context) string {
	session := mcpserver.ClientSessionFromContext(ctx)
	if session == nil || session.SessionID() == "" {
		return ""
	}
	sessionID := session.SessionID()
	if name, ok := s.projectNames.names.Get(sessionID); ok {
		return name
	}

	reqCtx, cancel := context.WithTimeout(ctx, rootsRequestTimeout)
	defer cancel()
	var name string
	result, err := s.mcpServer.RequestRoots(reqCtx, mcplib.ListRootsRequest{})
	if err != nil {
		s.logger.Debug("mcp: roots request failed", "error", err, "session_id", sessionID)
	} else {
		name = projectNameFromRoots(result.Roots)
	}
	s.projectNames.names.Add(sessionID, name)
	return name
}

// projectNameFromRoots picks a project name from workspace roots. A root's
// display name wins; otherwise the last segment of a file:// path is used.
//
//	{name: "Payments"}                       -> "Payments"
//	file:///home/dev/payments-api            -> "payments-api"
//	file:///home/dev/ledger.git              -> "ledger"
func projectNameFromRoots(roots []mcplib.Root) string {
	for _, root := range roots {
		if name := strings.TrimSpace(root.Name); name != "" {
			return name
		}
		if name := dirName(root.URI); name != "" {
			return name
		}
	}
	return ""
}

func dirName(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Scheme != "file" {
		return ""
	}
	base := path.Base(path.Clean("/" + parsed.Path))
	base = strings.TrimSuffix(base, ".git")
	if base == "/" || base == "." || strings.HasPrefix(base, ".") {
		return ""
	}
	return base
}
