package mcp

import (
	"context"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// sessionViews maps MCP session ids to the design view each session works
// in. A session keeps one view for its lifetime so a refine follows the
// generate that preceded it. Entries idle longer than the window are handed
// back by Stale for closing.
type sessionViews struct {
	mu     sync.Mutex
	views  map[string]sessionView
	window time.Duration
}

type sessionView struct {
	viewID   string
	lastUsed time.Time
}

func newSessionViews(window time.Duration) *sessionViews {
	return &sessionViews{
		views:  make(map[string]sessionView),
		window: window,
	}
}

// Get returns the view for sessionID and marks it used at now.
func (t *sessionViews) Get(sessionID string, now time.Time) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sv, ok := t.views[sessionID]
	if !ok {
		return "", false
	}
	sv.lastUsed = now
	t.views[sessionID] = sv
	return sv.viewID, true
}

// Set records viewID as the view for sessionID.
func (t *sessionViews) Set(sessionID, viewID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.views[sessionID] = sessionView{viewID: viewID, lastUsed: now}
}

// Stale removes and returns the view ids of sessions idle past the window.
func (t *sessionViews) Stale(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []string
	for k, sv := range t.views {
		if now.Sub(sv.lastUsed) > t.window {
			ids = append(ids, sv.viewID)
			delete(t.views, k)
		}
	}
	return ids
}

// Len returns the number of tracked sessions.
func (t *sessionViews) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.views)
}

// acquireView returns the view a tool call should run in. Calls outside an
// MCP session get a throwaway view that release closes.
func (s *Server) acquireView(ctx context.Context) (viewID string, release func()) {
	now := s.now()
	for _, id := range s.views.Stale(now) {
		_ = s.designs.CloseView(id)
	}

	session := mcpserver.ClientSessionFromContext(ctx)
	if session == nil || session.SessionID() == "" {
		id := s.designs.OpenView().ID
		return id, func() { _ = s.designs.CloseView(id) }
	}

	sessionID := session.SessionID()
	if id, ok := s.views.Get(sessionID, now); ok {
		if _, err := s.designs.View(id); err == nil {
			return id, func() {}
		}
	}
	id := s.designs.OpenView().ID
	s.views.Set(sessionID, id, now)
	return id, func() {}
}
