package mcp

import (
	"strings"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/archdoc/internal/model"
	"github.com/ashita-ai/archdoc/internal/service/designs"
)

func TestCompactDesign(t *testing.T) {
	d := model.SystemDesign{
		ProjectName:  "Ledger",
		Version:      "1.0",
		Requirements: []byte(`{"raw":"kept out"}`),
		Architecture: model.Architecture{
			Overview:          strings.Repeat("x", 500),
			ArchitectureStyle: "Event-driven",
			Components: []model.Component{
				{ID: "c1", Name: "API", Type: "Service", Technologies: model.Strings{"Go"}},
			},
			TradeOffDecisions: []model.TradeOff{{Decision: "Kafka"}},
		},
	}

	m := compactDesign("p1", d)

	assert.Equal(t, "p1", m["project_id"])
	assert.Equal(t, "Ledger", m["project_name"])
	assert.Equal(t, 1, m["trade_off_count"])
	assert.Len(t, m["overview"], maxCompactText)
	_, hasCost := m["monthly_estimate"]
	assert.False(t, hasCost)
	_, hasRequirements := m["requirements"]
	assert.False(t, hasRequirements)
}

func TestCompactSnapshot_NextStep(t *testing.T) {
	d := model.SystemDesign{ProjectName: "Ledger"}
	tests := []struct {
		name string
		snap designs.ViewSnapshot
		want string
	}{
		{"input", designs.ViewSnapshot{State: designs.StateInput}, "archdoc_generate"},
		{"loaded", designs.ViewSnapshot{State: designs.StateLoaded, ProjectID: "p1", Design: &d}, `project_id="p1"`},
		{"failed", designs.ViewSnapshot{State: designs.StateFailed}, "adjust the requirements"},
		{"persist", designs.ViewSnapshot{
			State:     designs.StateLoaded,
			Design:    &d,
			LastError: &designs.ViewError{Kind: designs.KindPersist, At: time.Now()},
		}, "could not be saved"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := compactSnapshot(tt.snap, 1)
			assert.Contains(t, m["next"], tt.want)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("  short  ", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "ééé...", truncate("éééééééé", 6))
}

func TestProjectNameFromRoots(t *testing.T) {
	tests := []struct {
		name  string
		roots []mcplib.Root
		want  string
	}{
		{"empty roots", nil, ""},
		{"single file URI", []mcplib.Root{{URI: "file:///home/dev/payments-api"}}, "payments-api"},
		{"display name wins", []mcplib.Root{{URI: "file:///home/dev/pay", Name: " Payments "}}, "Payments"},
		{"first usable root", []mcplib.Root{{URI: "file:///a/one"}, {URI: "file:///a/two"}}, "one"},
		{"non-file URI skipped", []mcplib.Root{{URI: "https://example.com/repo"}, {URI: "file:///srv/ledger"}}, "ledger"},
		{"filesystem root skipped", []mcplib.Root{{URI: "file:///"}, {URI: "file:///srv/search"}}, "search"},
		{"trailing slash stripped", []mcplib.Root{{URI: "file:///home/dev/project/"}}, "project"},
		{"git suffix stripped", []mcplib.Root{{URI: "file:///home/dev/ledger.git"}}, "ledger"},
		{"hidden dir skipped", []mcplib.Root{{URI: "file:///home/dev/.config"}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, projectNameFromRoots(tt.roots))
		})
	}
}

func TestProjectNamesExpire(t *testing.T) {
	names := newProjectNames(50 * time.Millisecond)
	names.names.Add("session-1", "payments-api")
	got, ok := names.names.Get("session-1")
	assert.True(t, ok)
	assert.Equal(t, "payments-api", got)

	// An empty name records that the session offered none.
	names.names.Add("session-2", "")
	got, ok = names.names.Get("session-2")
	assert.True(t, ok)
	assert.Empty(t, got)

	assert.Eventually(t, func() bool {
		_, ok := names.names.Get("session-1")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
