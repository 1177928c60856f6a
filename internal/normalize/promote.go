package normalize

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/ashita-ai/archdoc/internal/model"
)

// Fallback text used when promoted fields have no source value.
const (
	DefaultPurpose         = "Core system component"
	DefaultScalability     = "Horizontal scaling"
	DefaultFaultTolerance  = "High availability"
	DefaultComponentType   = "Component"
	DefaultIssueSeverity   = "High"
	DefaultIssueMitigation = "See documentation for mitigation strategies"
	DefaultOverview        = "No architecture overview provided"
)

// componentNamespace scopes the name-based UUIDs assigned to components.
var componentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://archdoc.dev/component"))

// promotion fills canonical fields of d. Each promotion owns d (already a
// private copy) and must leave an already-canonical design unchanged.
type promotion struct {
	name  string
	apply func(d *model.SystemDesign)
}

var promotions = []promotion{
	{"key_components", promoteKeyComponents},
	{"critical_issues", promoteCriticalIssues},
	{"details.tradeoff_decisions", promoteDetailTradeOffs},
	{"overview", promoteOverview},
	{"defaults", applyDefaults},
	{"component_identity", assignComponentIDs},
}

// Promote returns a canonical copy of d. It is idempotent:
// Promote(Promote(d)) equals Promote(d).
func Promote(d model.SystemDesign) model.SystemDesign {
	out := d.Clone()
	for _, p := range promotions {
		p.apply(&out)
	}
	return out
}

func promoteKeyComponents(d *model.SystemDesign) {
	arch := &d.Architecture
	if arch.Components != nil || arch.KeyComponents == nil {
		return
	}
	purpose, scalability, faultTolerance := DefaultPurpose, DefaultScalability, DefaultFaultTolerance
	if det := arch.Details; det != nil {
		purpose = firstNonEmpty(det.Purpose, det.Overview, purpose)
		scalability = firstNonEmpty(det.Scalability, scalability)
		faultTolerance = firstNonEmpty(det.FaultTolerance, faultTolerance)
	}
	arch.Components = make([]model.Component, 0, len(arch.KeyComponents))
	for _, name := range arch.KeyComponents {
		arch.Components = append(arch.Components, model.Component{
			Name:           name,
			Type:           DefaultComponentType,
			Purpose:        purpose,
			Technologies:   model.Strings{},
			Scalability:    scalability,
			FaultTolerance: faultTolerance,
		})
	}
	arch.KeyComponents = nil
}

func promoteCriticalIssues(d *model.SystemDesign) {
	v := &d.Validation
	if v.PotentialIssues != nil || v.CriticalIssues == nil {
		return
	}
	v.PotentialIssues = make([]model.Issue, 0, len(v.CriticalIssues))
	for _, issue := range v.CriticalIssues {
		v.PotentialIssues = append(v.PotentialIssues, model.Issue{
			Issue:      issue,
			Severity:   DefaultIssueSeverity,
			Mitigation: DefaultIssueMitigation,
		})
	}
	v.CriticalIssues = nil
}

func promoteDetailTradeOffs(d *model.SystemDesign) {
	arch := &d.Architecture
	if arch.TradeOffDecisions != nil || arch.Details == nil || arch.Details.TradeoffDecisions == nil {
		return
	}
	arch.TradeOffDecisions = make([]model.TradeOff, 0, len(arch.Details.TradeoffDecisions))
	for _, t := range arch.Details.TradeoffDecisions {
		arch.TradeOffDecisions = append(arch.TradeOffDecisions, model.TradeOff{
			Decision:     t.Decision,
			Alternatives: model.Strings{},
		})
	}
	arch.Details.TradeoffDecisions = nil
}

func promoteOverview(d *model.SystemDesign) {
	arch := &d.Architecture
	if arch.Overview != "" {
		return
	}
	var detail string
	if arch.Details != nil {
		detail = arch.Details.Overview
	}
	arch.Overview = firstNonEmpty(arch.Summary, detail, DefaultOverview)
}

func applyDefaults(d *model.SystemDesign) {
	if d.Version == "" {
		d.Version = model.DefaultDesignVersion
	}
	if d.Architecture.Components == nil {
		d.Architecture.Components = []model.Component{}
	}
	if d.Architecture.TradeOffDecisions == nil {
		d.Architecture.TradeOffDecisions = []model.TradeOff{}
	}
	for i := range d.Architecture.TradeOffDecisions {
		if d.Architecture.TradeOffDecisions[i].Alternatives == nil {
			d.Architecture.TradeOffDecisions[i].Alternatives = model.Strings{}
		}
	}
	if d.Validation.PotentialIssues == nil {
		d.Validation.PotentialIssues = []model.Issue{}
	}
}

// assignComponentIDs gives every component a unique id derived from its
// position and name, and removes duplicate technologies. Existing unique ids
// are kept.
func assignComponentIDs(d *model.SystemDesign) {
	seen := make(map[string]struct{}, len(d.Architecture.Components))
	for i := range d.Architecture.Components {
		c := &d.Architecture.Components[i]
		if _, dup := seen[c.ID]; c.ID == "" || dup {
			c.ID = ComponentID(i, c.Name)
		}
		seen[c.ID] = struct{}{}

		techs := c.Technologies
		c.Technologies = make(model.Strings, 0, len(techs))
		for _, tech := range techs {
			c.AddTechnology(tech)
		}
	}
}

// ComponentID returns the deterministic id for the component at index with name.
func ComponentID(index int, name string) string {
	return uuid.NewSHA1(componentNamespace, []byte(strconv.Itoa(index)+"\x00"+name)).String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
