// Package report projects a canonical SystemDesign into renderable and
// exportable forms, applies component edits, and ships exports to sinks.
package report

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/ashita-ai/archdoc/internal/model"
)

// NotSpecified is the fallback for every optional field with no value.
const NotSpecified = "Not specified"

// Report is a fully populated view of a design: no field is ever empty.
type Report struct {
	ProjectName       string           `json:"project_name"`
	Version           string           `json:"version"`
	Timestamp         string           `json:"timestamp"`
	ExecutiveSummary  string           `json:"executive_summary"`
	KeyFeatures       []string         `json:"key_features"`
	Overview          string           `json:"overview"`
	ArchitectureStyle string           `json:"architecture_style"`
	PatternCount      int              `json:"pattern_count"`
	CaseStudyCount    int              `json:"case_study_count"`
	Components        []ComponentView  `json:"components"`
	TradeOffs         []TradeOffView   `json:"trade_offs"`
	Issues            []IssueView      `json:"issues"`
	Assessments       []AssessmentView `json:"assessments"`
	Cost              CostView         `json:"cost"`
	Documentation     []Section        `json:"documentation"`
}

// ComponentView is one rendered component.
type ComponentView struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Purpose        string   `json:"purpose"`
	Technologies   []string `json:"technologies"`
	Scalability    string   `json:"scalability"`
	FaultTolerance string   `json:"fault_tolerance"`
}

// TradeOffView is one rendered decision.
type TradeOffView struct {
	Decision     string   `json:"decision"`
	Chosen       string   `json:"chosen"`
	Alternatives []string `json:"alternatives"`
	Reasoning    string   `json:"reasoning"`
	Summary      string   `json:"summary"`
	Benefits     []string `json:"benefits"`
	Costs        []string `json:"costs"`
	Mitigation   string   `json:"mitigation"`
	Reference    string   `json:"reference"`
}

// IssueView is one rendered risk.
type IssueView struct {
	Issue      string `json:"issue"`
	Severity   string `json:"severity"`
	Mitigation string `json:"mitigation"`
}

// AssessmentView is one rendered validation section.
type AssessmentView struct {
	Title         string          `json:"title"`
	Summary       string          `json:"summary"`
	OverallRating string          `json:"overall_rating"`
	Score         string          `json:"score"`
	Findings      []model.Finding `json:"findings"`
}

// CostView is the rendered cost estimate.
type CostView struct {
	MonthlyEstimate string     `json:"monthly_estimate"`
	Breakdown       []CostLine `json:"breakdown"`
}

// CostLine is one cost category.
type CostLine struct {
	Category string `json:"category"`
	Amount   string `json:"amount"`
}

// Section is a titled block of free-form documentation.
type Section struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Render projects d into a Report. It is a pure function of d.
func Render(d model.SystemDesign) Report {
	r := Report{
		ProjectName:       orNotSpecified(d.ProjectName),
		Version:           orNotSpecified(d.Version),
		Timestamp:         orNotSpecified(d.Timestamp),
		Overview:          orNotSpecified(d.Architecture.Overview),
		ArchitectureStyle: orNotSpecified(d.Architecture.ArchitectureStyle),
		KeyFeatures:       []string{},
		Components:        make([]ComponentView, 0, len(d.Architecture.Components)),
		TradeOffs:         make([]TradeOffView, 0, len(d.Architecture.TradeOffDecisions)),
		Issues:            make([]IssueView, 0, len(d.Validation.PotentialIssues)),
	}
	r.ExecutiveSummary, r.KeyFeatures = executiveSummary(d.Documentation.Extra["executive_summary"])
	r.PatternCount = countMember(d.Research, "patterns")
	r.CaseStudyCount = countMember(d.Research, "company_case_studies")

	for _, c := range d.Architecture.Components {
		r.Components = append(r.Components, ComponentView{
			ID:             c.ID,
			Name:           orNotSpecified(c.Name),
			Type:           orNotSpecified(c.Type),
			Purpose:        orNotSpecified(c.Purpose),
			Technologies:   nonNil(c.Technologies),
			Scalability:    orNotSpecified(c.Scalability),
			FaultTolerance: orNotSpecified(c.FaultTolerance),
		})
	}
	for _, t := range d.Architecture.TradeOffDecisions {
		view := TradeOffView{
			Decision:     orNotSpecified(t.Decision),
			Chosen:       orNotSpecified(t.Chosen),
			Alternatives: nonNil(t.Alternatives),
			Reasoning:    orNotSpecified(t.Reasoning),
			Summary:      NotSpecified,
			Benefits:     []string{},
			Costs:        []string{},
			Mitigation:   orNotSpecified(t.Mitigation),
			Reference:    orNotSpecified(t.Reference),
		}
		if t.TradeOffs != nil {
			if t.TradeOffs.Structured() {
				view.Benefits = nonNil(t.TradeOffs.Benefits)
				view.Costs = nonNil(t.TradeOffs.Costs)
			} else {
				view.Summary = orNotSpecified(t.TradeOffs.Text)
			}
		}
		r.TradeOffs = append(r.TradeOffs, view)
	}
	for _, is := range d.Validation.PotentialIssues {
		r.Issues = append(r.Issues, IssueView{
			Issue:      orNotSpecified(is.Issue),
			Severity:   orNotSpecified(is.Severity),
			Mitigation: orNotSpecified(is.Mitigation),
		})
	}
	r.Assessments = []AssessmentView{
		renderAssessment("Scalability Assessment", d.Validation.ScalabilityAssessment),
		renderAssessment("Fault Tolerance Review", d.Validation.FaultToleranceReview),
		renderAssessment("Security Evaluation", d.Validation.SecurityEvaluation),
	}
	r.Cost = renderCost(d.Documentation.CostEstimation)
	r.Documentation = renderSections(d.Documentation.Extra)
	return r
}

func renderAssessment(title string, a *model.Assessment) AssessmentView {
	v := AssessmentView{
		Title:         title,
		Summary:       NotSpecified,
		OverallRating: NotSpecified,
		Score:         NotSpecified,
		Findings:      []model.Finding{},
	}
	if a == nil {
		return v
	}
	if !a.Structured() {
		v.Summary = a.Text
		return v
	}
	v.OverallRating = orNotSpecified(a.OverallRating)
	v.Score = orNotSpecified(a.Score)
	if a.Findings != nil {
		v.Findings = a.Findings
	}
	return v
}

func renderCost(c *model.CostEstimation) CostView {
	v := CostView{MonthlyEstimate: NotSpecified, Breakdown: []CostLine{}}
	if c == nil {
		return v
	}
	v.MonthlyEstimate = orNotSpecified(c.MonthlyEstimate)
	categories := make([]string, 0, len(c.Breakdown))
	for k := range c.Breakdown {
		categories = append(categories, k)
	}
	sort.Strings(categories)
	for _, k := range categories {
		v.Breakdown = append(v.Breakdown, CostLine{Category: humanize(k), Amount: orNotSpecified(c.Breakdown[k])})
	}
	return v
}

// renderSections turns pass-through documentation members into titled text.
// The executive summary is rendered separately.
func renderSections(extra map[string]json.RawMessage) []Section {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		if k != "executive_summary" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	sections := make([]Section, 0, len(keys))
	for _, k := range keys {
		sections = append(sections, Section{Key: k, Title: humanize(k), Body: text(extra[k])})
	}
	return sections
}

// executiveSummary accepts either a string or {overview, key_features}.
func executiveSummary(raw json.RawMessage) (string, []string) {
	if len(raw) == 0 {
		return NotSpecified, []string{}
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return orNotSpecified(s), []string{}
	}
	var obj struct {
		Overview    string   `json:"overview"`
		KeyFeatures []string `json:"key_features"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return orNotSpecified(obj.Overview), nonNil(obj.KeyFeatures)
	}
	return text(raw), []string{}
}

func countMember(raw json.RawMessage, key string) int {
	var obj map[string]json.RawMessage
	if json.Unmarshal(raw, &obj) != nil {
		return 0
	}
	var items []json.RawMessage
	if json.Unmarshal(obj[key], &items) != nil {
		return 0
	}
	return len(items)
}

// text renders a JSON value as display text: strings verbatim, anything
// else as indented JSON.
func text(raw json.RawMessage) string {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return NotSpecified
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return orNotSpecified(s)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func humanize(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func orNotSpecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotSpecified
	}
	return s
}

func nonNil[S ~[]string](s S) []string {
	if s == nil {
		return []string{}
	}
	return []string(s)
}
