package mcp

import (
	"fmt"
	"strings"

	"github.com/ashita-ai/archdoc/internal/model"
	"github.com/ashita-ai/archdoc/internal/service/designs"
)

const maxCompactText = 240

// compactDesign returns the parts of a design an agent acts on: identity,
// style, overview and a one-line entry per component. Raw requirements,
// research and documentation are dropped; use archdoc_export for those.
func compactDesign(projectID string, d model.SystemDesign) map[string]any {
	components := make([]map[string]any, 0, len(d.Architecture.Components))
	for _, c := range d.Architecture.Components {
		components = append(components, map[string]any{
			"id":           c.ID,
			"name":         c.Name,
			"type":         c.Type,
			"technologies": []string(c.Technologies),
		})
	}
	m := map[string]any{
		"project_id":         projectID,
		"project_name":       d.ProjectName,
		"version":            d.Version,
		"architecture_style": d.Architecture.ArchitectureStyle,
		"overview":           truncate(d.Architecture.Overview, maxCompactText),
		"components":         components,
		"trade_off_count":    len(d.Architecture.TradeOffDecisions),
		"issue_count":        len(d.Validation.PotentialIssues),
	}
	if cost := d.Documentation.CostEstimation; cost != nil && cost.MonthlyEstimate != "" {
		m["monthly_estimate"] = cost.MonthlyEstimate
	}
	return m
}

// compactSnapshot summarizes a view after a tool call.
func compactSnapshot(snap designs.ViewSnapshot, versions int) map[string]any {
	m := map[string]any{
		"view_id": snap.ID,
		"state":   snap.State,
	}
	if snap.Design != nil {
		m["design"] = compactDesign(snap.ProjectID, *snap.Design)
		m["version_count"] = versions
	}
	if snap.LastError != nil {
		m["last_error"] = snap.LastError
	}
	m["next"] = nextStep(snap)
	return m
}

// nextStep is a short hint telling the calling agent what it can do next.
func nextStep(snap designs.ViewSnapshot) string {
	switch {
	case snap.LastError != nil && snap.LastError.Kind == designs.KindPersist:
		return "The design is shown but could not be saved; retry later or export it now with archdoc_export."
	case snap.State == designs.StateLoaded:
		return fmt.Sprintf("Review the design. Call archdoc_refine with project_id=%q and feedback to revise it, or archdoc_export to download it.", snap.ProjectID)
	case snap.State == designs.StateFailed:
		return "Generation failed; adjust the requirements and call archdoc_generate again."
	default:
		return "Call archdoc_generate with requirements to create a design."
	}
}

// compactSummary trims a project list entry.
func compactSummary(p designs.ProjectSummary) map[string]any {
	return map[string]any{
		"id":                 p.ID,
		"project_name":       p.ProjectName,
		"version":            p.Version,
		"architecture_style": p.ArchitectureStyle,
		"component_count":    p.ComponentCount,
		"version_count":      p.VersionCount,
		"updated_at":         p.UpdatedAt,
	}
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
