// Package model defines the canonical system design document, projects and the
// request/response types shared by the archdoc API.
package model

import (
	"encoding/json"
	"slices"
	"time"
)

// DefaultDesignVersion is assigned to designs that arrive without a version.
const DefaultDesignVersion = "1.0"

// SystemDesign is the canonical design document produced by the agent.
// Requirements and Research are carried verbatim; the rest is decoded
// tolerantly so that older agent output shapes can be promoted in place.
type SystemDesign struct {
	ProjectName   string          `json:"project_name"`
	Version       string          `json:"version"`
	Timestamp     string          `json:"timestamp,omitempty"`
	Requirements  json.RawMessage `json:"requirements,omitempty"`
	Research      json.RawMessage `json:"research,omitempty"`
	Architecture  Architecture    `json:"architecture"`
	Validation    Validation      `json:"validation"`
	Documentation Documentation   `json:"documentation"`
}

// Architecture describes the proposed system. KeyComponents, Summary and
// Details are legacy input shapes consumed by normalization.
type Architecture struct {
	Overview          string               `json:"overview"`
	Summary           string               `json:"summary,omitempty"`
	ArchitectureStyle string               `json:"architecture_style"`
	Components        []Component          `json:"components"`
	KeyComponents     Strings              `json:"key_components,omitempty"`
	TradeOffDecisions []TradeOff           `json:"trade_off_decisions"`
	Details           *ArchitectureDetails `json:"details,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// ArchitectureDetails is the nested details block some agent versions emit.
type ArchitectureDetails struct {
	Overview          string     `json:"overview,omitempty"`
	Purpose           string     `json:"purpose,omitempty"`
	Scalability       string     `json:"scalability,omitempty"`
	FaultTolerance    string     `json:"fault_tolerance,omitempty"`
	TradeoffDecisions []TradeOff `json:"tradeoff_decisions,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Component is one building block of the architecture. ID is synthetic and
// assigned during normalization; it is the key for selection and editing.
type Component struct {
	ID             string  `json:"id,omitempty"`
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	Purpose        string  `json:"purpose"`
	Technologies   Strings `json:"technologies"`
	Scalability    string  `json:"scalability"`
	FaultTolerance string  `json:"fault_tolerance"`

	Extra map[string]json.RawMessage `json:"-"`
}

// AddTechnology appends tech unless it is already listed.
// It reports whether the list changed.
func (c *Component) AddTechnology(tech string) bool {
	if tech == "" || slices.Contains(c.Technologies, tech) {
		return false
	}
	c.Technologies = append(c.Technologies, tech)
	return true
}

// TradeOff records one architectural decision.
type TradeOff struct {
	Decision     string          `json:"decision"`
	Chosen       string          `json:"chosen,omitempty"`
	Alternatives Strings         `json:"alternatives"`
	Reasoning    string          `json:"reasoning"`
	TradeOffs    *TradeOffDetail `json:"trade_offs,omitempty"`
	Mitigation   string          `json:"mitigation,omitempty"`
	Reference    string          `json:"reference,omitempty"`
}

// TradeOffDetail is either free text or a benefits/costs breakdown.
type TradeOffDetail struct {
	Text     string
	Benefits []string
	Costs    []string
}

// Structured reports whether the detail carries a benefits/costs breakdown.
func (t TradeOffDetail) Structured() bool {
	return t.Benefits != nil || t.Costs != nil
}

// Validation holds the agent's self-review of the design.
type Validation struct {
	PotentialIssues       []Issue     `json:"potential_issues"`
	CriticalIssues        Strings     `json:"critical_issues,omitempty"`
	ScalabilityAssessment *Assessment `json:"scalability_assessment,omitempty"`
	FaultToleranceReview  *Assessment `json:"fault_tolerance_review,omitempty"`
	SecurityEvaluation    *Assessment `json:"security_evaluation,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Issue is a single identified risk.
type Issue struct {
	Issue      string `json:"issue"`
	Severity   string `json:"severity"`
	Mitigation string `json:"mitigation"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Assessment is either free text or a rated list of findings.
type Assessment struct {
	Text          string
	OverallRating string
	Score         string
	Findings      []Finding
}

// Structured reports whether the assessment was given as an object.
func (a Assessment) Structured() bool {
	return a.Text == "" || a.OverallRating != "" || a.Score != "" || a.Findings != nil
}

// Finding is one line item of a structured assessment.
type Finding struct {
	Aspect         string `json:"aspect"`
	Status         string `json:"status"`
	Details        string `json:"details"`
	Capacity       string `json:"capacity,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
	Mechanism      string `json:"mechanism,omitempty"`
	RTO            string `json:"rto,omitempty"`
	RPO            string `json:"rpo,omitempty"`
}

// Documentation is mostly pass-through; only the cost estimate is typed.
type Documentation struct {
	CostEstimation *CostEstimation `json:"cost_estimation,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// CostEstimation maps cost categories to formatted amounts.
type CostEstimation struct {
	MonthlyEstimate string            `json:"monthly_estimate"`
	Breakdown       map[string]string `json:"breakdown,omitempty"`
}

// Clone returns a deep copy of d. Raw JSON fields share their backing
// arrays, which are never mutated in place.
func (d SystemDesign) Clone() SystemDesign {
	out := d
	out.Architecture = d.Architecture.clone()
	out.Validation = d.Validation.clone()
	out.Documentation = d.Documentation.clone()
	return out
}

func (a Architecture) clone() Architecture {
	out := a
	if a.Components != nil {
		out.Components = make([]Component, len(a.Components))
		for i, c := range a.Components {
			out.Components[i] = c.Clone()
		}
	}
	out.KeyComponents = slices.Clone(a.KeyComponents)
	out.TradeOffDecisions = cloneTradeOffs(a.TradeOffDecisions)
	if a.Details != nil {
		det := *a.Details
		det.TradeoffDecisions = cloneTradeOffs(a.Details.TradeoffDecisions)
		det.Extra = cloneExtra(a.Details.Extra)
		out.Details = &det
	}
	out.Extra = cloneExtra(a.Extra)
	return out
}

// Clone returns a deep copy of c.
func (c Component) Clone() Component {
	out := c
	out.Technologies = slices.Clone(c.Technologies)
	out.Extra = cloneExtra(c.Extra)
	return out
}

func cloneTradeOffs(in []TradeOff) []TradeOff {
	if in == nil {
		return nil
	}
	out := make([]TradeOff, len(in))
	for i, t := range in {
		t.Alternatives = slices.Clone(t.Alternatives)
		if t.TradeOffs != nil {
			det := TradeOffDetail{
				Text:     t.TradeOffs.Text,
				Benefits: slices.Clone(t.TradeOffs.Benefits),
				Costs:    slices.Clone(t.TradeOffs.Costs),
			}
			t.TradeOffs = &det
		}
		out[i] = t
	}
	return out
}

func (v Validation) clone() Validation {
	out := v
	if v.PotentialIssues != nil {
		out.PotentialIssues = make([]Issue, len(v.PotentialIssues))
		for i, is := range v.PotentialIssues {
			is.Extra = cloneExtra(is.Extra)
			out.PotentialIssues[i] = is
		}
	}
	out.CriticalIssues = slices.Clone(v.CriticalIssues)
	out.ScalabilityAssessment = cloneAssessment(v.ScalabilityAssessment)
	out.FaultToleranceReview = cloneAssessment(v.FaultToleranceReview)
	out.SecurityEvaluation = cloneAssessment(v.SecurityEvaluation)
	out.Extra = cloneExtra(v.Extra)
	return out
}

func cloneAssessment(a *Assessment) *Assessment {
	if a == nil {
		return nil
	}
	out := *a
	out.Findings = slices.Clone(a.Findings)
	return &out
}

func (d Documentation) clone() Documentation {
	out := d
	if d.CostEstimation != nil {
		ce := *d.CostEstimation
		if d.CostEstimation.Breakdown != nil {
			ce.Breakdown = make(map[string]string, len(d.CostEstimation.Breakdown))
			for k, v := range d.CostEstimation.Breakdown {
				ce.Breakdown[k] = v
			}
		}
		out.CostEstimation = &ce
	}
	out.Extra = cloneExtra(d.Extra)
	return out
}

func cloneExtra(in map[string]json.RawMessage) map[string]json.RawMessage {
	if in == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Project is a saved design session with its full history.
// Versions is append-only and its last element always equals SystemDesign.
type Project struct {
	ID           string         `json:"id"`
	SystemDesign SystemDesign   `json:"system_design"`
	Versions     []SystemDesign `json:"versions"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewProject starts a project whose history holds only design.
func NewProject(id string, design SystemDesign, now time.Time) Project {
	return Project{
		ID:           id,
		SystemDesign: design,
		Versions:     []SystemDesign{design},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// AppendVersion returns a copy of p whose current design is design and whose
// history ends with it. Earlier versions are shared, not copied.
func (p Project) AppendVersion(design SystemDesign, now time.Time) Project {
	versions := make([]SystemDesign, len(p.Versions), len(p.Versions)+1)
	copy(versions, p.Versions)
	p.Versions = append(versions, design)
	p.SystemDesign = design
	p.UpdatedAt = now
	return p
}
