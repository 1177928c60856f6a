package normalize

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/archdoc/internal/model"
)

const canonicalDesign = `{
	"project_name": "Checkout",
	"version": "2.0",
	"requirements": {"functional": ["pay"]},
	"research": {"patterns": []},
	"architecture": {
		"overview": "Event-driven checkout",
		"architecture_style": "Microservices",
		"components": [
			{"name": "API", "type": "Gateway", "purpose": "Ingress", "technologies": ["Go", "Envoy", "Go"], "scalability": "HPA", "fault_tolerance": "Multi-AZ"},
			{"name": "Ledger", "type": "Service", "purpose": "Money", "technologies": ["Postgres"], "scalability": "Sharding", "fault_tolerance": "Replicas"}
		],
		"trade_off_decisions": [
			{"decision": "Postgres over Mongo", "alternatives": ["MongoDB"], "reasoning": "ACID", "trade_offs": {"benefits": ["consistency"], "costs": ["scaling writes"]}}
		],
		"data_flow": "client -> api -> ledger"
	},
	"validation": {
		"potential_issues": [{"issue": "Hot partition", "severity": "Medium", "mitigation": "Salted keys"}],
		"scalability_assessment": {"overall_rating": "Good", "score": 8, "findings": []}
	},
	"documentation": {"executive_summary": "Summary", "cost_estimation": {"monthly_estimate": "$5,000", "breakdown": {"compute": 3000}}}
}`

func wrap(t *testing.T, path []string, design string) []byte {
	t.Helper()
	var v any = json.RawMessage(design)
	for i := len(path) - 1; i >= 0; i-- {
		v = map[string]any{path[i]: v}
	}
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestNormalizeRootLocations(t *testing.T) {
	tests := []struct {
		name string
		path []string
	}{
		{"result.system_design", []string{"result", "system_design"}},
		{"result", []string{"result"}},
		{"result.result.system_design", []string{"result", "result", "system_design"}},
		{"result.design", []string{"result", "design"}},
		{"result.final_design", []string{"result", "final_design"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Normalize(wrap(t, tt.path, canonicalDesign))
			require.NoError(t, err)
			assert.Equal(t, tt.name, res.Probe)
			assert.Equal(t, "Checkout", res.Design.ProjectName)
			assert.Equal(t, "2.0", res.Design.Version)
			require.Len(t, res.Design.Architecture.Components, 2)
		})
	}
}

func TestNormalizeResultWithoutNameFallsThrough(t *testing.T) {
	for _, name := range []string{`null`, `""`, `"  "`} {
		t.Run(name, func(t *testing.T) {
			resp := `{"result": {"project_name": ` + name + `, "design": ` + canonicalDesign + `}}`
			res, err := Normalize([]byte(resp))
			require.NoError(t, err)
			assert.Equal(t, "result.design", res.Probe)
			assert.Equal(t, "Checkout", res.Design.ProjectName)
		})
	}
}

func TestNormalizeAcceptsLooselyTypedOptionalFields(t *testing.T) {
	tests := []struct {
		name   string
		design string
		check  func(t *testing.T, d model.SystemDesign)
	}{
		{
			"numeric version",
			`{"project_name":"P","version":2,"architecture":{"components":[]}}`,
			func(t *testing.T, d model.SystemDesign) { assert.Equal(t, "2", d.Version) },
		},
		{
			"list architecture style",
			`{"project_name":"P","architecture":{"architecture_style":["Microservices","CQRS"],"components":[]}}`,
			func(t *testing.T, d model.SystemDesign) {
				assert.Equal(t, "Microservices, CQRS", d.Architecture.ArchitectureStyle)
			},
		},
		{
			"free text details",
			`{"project_name":"P","architecture":{"details":"free text","components":[{"name":"API"}]}}`,
			func(t *testing.T, d model.SystemDesign) {
				assert.Nil(t, d.Architecture.Details)
				require.Len(t, d.Architecture.Components, 1)
				assert.Equal(t, "API", d.Architecture.Components[0].Name)
			},
		},
		{
			"numeric finding capacity",
			`{"project_name":"P","architecture":{"components":[]},"validation":{"scalability_assessment":{"findings":[{"aspect":"writes","capacity":10000}]}}}`,
			func(t *testing.T, d model.SystemDesign) {
				require.NotNil(t, d.Validation.ScalabilityAssessment)
				assert.Equal(t, "10000", d.Validation.ScalabilityAssessment.Findings[0].Capacity)
			},
		},
		{
			"numeric severity",
			`{"project_name":"P","architecture":{"components":[]},"validation":{"potential_issues":[{"issue":"hot shard","severity":2}]}}`,
			func(t *testing.T, d model.SystemDesign) {
				assert.Equal(t, "2", d.Validation.PotentialIssues[0].Severity)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Normalize(wrap(t, []string{"result", "system_design"}, tt.design))
			require.NoError(t, err)
			tt.check(t, res.Design)
		})
	}
}

func TestNormalizeShapePrecedence(t *testing.T) {
	resp := `{"result": {
		"project_name": "Outer",
		"architecture": {"components": []},
		"system_design": {"project_name": "Inner", "architecture": {"components": []}}
	}}`
	res, err := Normalize([]byte(resp))
	require.NoError(t, err)
	assert.Equal(t, "result.system_design", res.Probe)
	assert.Equal(t, "Inner", res.Design.ProjectName)
}

func TestNormalizeNoFallbackAfterSelection(t *testing.T) {
	// result.system_design is selected and invalid; result.design is never consulted.
	resp := `{"result": {
		"system_design": {"architecture": {"components": []}},
		"design": {"project_name": "Later", "architecture": {"components": []}}
	}}`
	_, err := Normalize([]byte(resp))
	var m *MalformedResponseError
	require.ErrorAs(t, err, &m)
	assert.JSONEq(t, `{"architecture": {"components": []}}`, string(m.Candidate))
}

func TestNormalizeRejections(t *testing.T) {
	tests := []struct {
		name          string
		resp          string
		wantCandidate bool
	}{
		{"no project name", `{"result": {"foo": 1}}`, false},
		{"empty object", `{}`, false},
		{"result is an array", `{"result": [1, 2]}`, false},
		{"not json", `<html>oops</html>`, false},
		{"top level array", `[{"result": {}}]`, false},
		{"blank project name", `{"result": {"system_design": {"project_name": "  ", "architecture": {"components": []}}}}`, true},
		{"numeric project name", `{"result": {"system_design": {"project_name": 7, "architecture": {"components": []}}}}`, true},
		{"blank result project name", `{"result": {"project_name": "", "architecture": {"components": []}}}`, false},
		{"missing architecture", `{"result": {"system_design": {"project_name": "P"}}}`, true},
		{"architecture not object", `{"result": {"system_design": {"project_name": "P", "architecture": "text"}}}`, true},
		{"no components", `{"result": {"system_design": {"project_name": "P", "architecture": {"overview": "x"}}}}`, true},
		{"components wrong type", `{"result": {"system_design": {"project_name": "P", "architecture": {"components": "x"}}}}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize([]byte(tt.resp))
			require.Error(t, err)
			assert.True(t, IsMalformed(err))
			var m *MalformedResponseError
			require.ErrorAs(t, err, &m)
			assert.Equal(t, tt.wantCandidate, m.Candidate != nil, "candidate: %s", m.Candidate)
		})
	}
}

func TestNormalizeStringEncodedResponse(t *testing.T) {
	inner, err := json.Marshal("```json\n" + canonicalDesign + "\n```")
	require.NoError(t, err)
	resp := []byte(`{"result": ` + string(inner) + `}`)

	res, err := Normalize(resp)
	require.NoError(t, err)
	assert.Equal(t, "result", res.Probe)
	assert.Equal(t, "Checkout", res.Design.ProjectName)
}

func TestKeyComponentsPromotion(t *testing.T) {
	resp := `{"result": {"system_design": {
		"project_name": "P",
		"architecture": {"key_components": ["Auth", "Billing"], "details": {"overview": "X"}}
	}}}`
	res, err := Normalize([]byte(resp))
	require.NoError(t, err)

	comps := res.Design.Architecture.Components
	require.Len(t, comps, 2)
	for i, name := range []string{"Auth", "Billing"} {
		assert.Equal(t, name, comps[i].Name)
		assert.Equal(t, "X", comps[i].Purpose)
		assert.Equal(t, model.Strings{}, comps[i].Technologies)
		assert.Equal(t, DefaultComponentType, comps[i].Type)
		assert.Equal(t, DefaultScalability, comps[i].Scalability)
		assert.Equal(t, DefaultFaultTolerance, comps[i].FaultTolerance)
		assert.NotEmpty(t, comps[i].ID)
	}
	assert.NotEqual(t, comps[0].ID, comps[1].ID)
	assert.Equal(t, "X", res.Design.Architecture.Overview)
	assert.Nil(t, res.Design.Architecture.KeyComponents)
}

func TestKeyComponentsPromotionDetailFields(t *testing.T) {
	d := model.SystemDesign{Architecture: model.Architecture{
		KeyComponents: model.Strings{"Queue"},
		Details:       &model.ArchitectureDetails{Purpose: "Buffer", Scalability: "Partitions", FaultTolerance: "Replication"},
	}}
	got := Promote(d).Architecture.Components
	require.Len(t, got, 1)
	assert.Equal(t, "Buffer", got[0].Purpose)
	assert.Equal(t, "Partitions", got[0].Scalability)
	assert.Equal(t, "Replication", got[0].FaultTolerance)

	got = Promote(model.SystemDesign{Architecture: model.Architecture{KeyComponents: model.Strings{"Queue"}}}).Architecture.Components
	require.Len(t, got, 1)
	assert.Equal(t, DefaultPurpose, got[0].Purpose)
}

func TestCriticalIssuesPromotion(t *testing.T) {
	resp := `{"result": {"system_design": {
		"project_name": "P",
		"architecture": {"components": []},
		"validation": {"critical_issues": ["DB single point of failure"]}
	}}}`
	res, err := Normalize([]byte(resp))
	require.NoError(t, err)
	assert.Equal(t, []model.Issue{{
		Issue:      "DB single point of failure",
		Severity:   "High",
		Mitigation: DefaultIssueMitigation,
	}}, res.Design.Validation.PotentialIssues)
	assert.Nil(t, res.Design.Validation.CriticalIssues)
}

func TestDetailTradeOffsPromotion(t *testing.T) {
	resp := `{"result": {"system_design": {
		"project_name": "P",
		"architecture": {"components": [], "details": {"tradeoff_decisions": ["Use Kafka", {"decision": "Use Redis"}]}}
	}}}`
	res, err := Normalize([]byte(resp))
	require.NoError(t, err)
	got := res.Design.Architecture.TradeOffDecisions
	require.Len(t, got, 2)
	assert.Equal(t, "Use Kafka", got[0].Decision)
	assert.Equal(t, "Use Redis", got[1].Decision)
	assert.Empty(t, got[1].Reasoning)
	assert.Nil(t, got[1].TradeOffs)
}

func TestPromotionDoesNotOverrideCanonicalFields(t *testing.T) {
	d := model.SystemDesign{
		Architecture: model.Architecture{
			Overview:      "Real overview",
			Summary:       "Old summary",
			Components:    []model.Component{{Name: "API"}},
			KeyComponents: model.Strings{"Ignored"},
		},
		Validation: model.Validation{
			PotentialIssues: []model.Issue{{Issue: "kept"}},
			CriticalIssues:  model.Strings{"ignored"},
		},
	}
	got := Promote(d)
	require.Len(t, got.Architecture.Components, 1)
	assert.Equal(t, "API", got.Architecture.Components[0].Name)
	assert.Equal(t, "Real overview", got.Architecture.Overview)
	require.Len(t, got.Validation.PotentialIssues, 1)
	assert.Equal(t, "kept", got.Validation.PotentialIssues[0].Issue)
}

func TestOverviewFallbacks(t *testing.T) {
	assert.Equal(t, "S", Promote(model.SystemDesign{Architecture: model.Architecture{Summary: "S"}}).Architecture.Overview)
	assert.Equal(t, DefaultOverview, Promote(model.SystemDesign{}).Architecture.Overview)
}

func TestPromoteIsIdempotent(t *testing.T) {
	inputs := map[string]string{
		"canonical": canonicalDesign,
		"legacy": `{
			"project_name": "Legacy",
			"architecture": {"summary": "S", "key_components": ["A", "A", "B"], "details": {"tradeoff_decisions": ["T"]}},
			"validation": {"critical_issues": ["x", "y"]}
		}`,
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			var d model.SystemDesign
			require.NoError(t, json.Unmarshal([]byte(in), &d))
			once := Promote(d)
			twice := Promote(once)
			if diff := cmp.Diff(once, twice); diff != "" {
				t.Fatalf("second promotion changed the design (-once +twice):\n%s", diff)
			}
		})
	}
}

func TestPromoteDoesNotMutateInput(t *testing.T) {
	var d model.SystemDesign
	require.NoError(t, json.Unmarshal([]byte(canonicalDesign), &d))
	before := d.Clone()
	_ = Promote(d)
	if diff := cmp.Diff(before, d); diff != "" {
		t.Fatalf("input mutated:\n%s", diff)
	}
}

func TestComponentIdentity(t *testing.T) {
	res, err := Normalize(wrap(t, []string{"result", "system_design"}, canonicalDesign))
	require.NoError(t, err)

	comps := res.Design.Architecture.Components
	assert.Equal(t, ComponentID(0, "API"), comps[0].ID)
	assert.Equal(t, model.Strings{"Go", "Envoy"}, comps[0].Technologies)

	again, err := Normalize(wrap(t, []string{"result", "system_design"}, canonicalDesign))
	require.NoError(t, err)
	assert.Equal(t, comps[0].ID, again.Design.Architecture.Components[0].ID, "ids must be deterministic")
}

func TestDuplicateComponentIDsAreReassigned(t *testing.T) {
	d := Promote(model.SystemDesign{Architecture: model.Architecture{Components: []model.Component{
		{ID: "same", Name: "A"},
		{ID: "same", Name: "B"},
	}}})
	assert.Equal(t, "same", d.Architecture.Components[0].ID)
	assert.Equal(t, ComponentID(1, "B"), d.Architecture.Components[1].ID)
}

func TestNormalizePreservesPassThroughFields(t *testing.T) {
	res, err := Normalize(wrap(t, []string{"result", "system_design"}, canonicalDesign))
	require.NoError(t, err)
	d := res.Design
	assert.JSONEq(t, `{"functional": ["pay"]}`, string(d.Requirements))
	assert.JSONEq(t, `"client -> api -> ledger"`, string(d.Architecture.Extra["data_flow"]))
	assert.JSONEq(t, `"Summary"`, string(d.Documentation.Extra["executive_summary"]))
	assert.Equal(t, "3000", d.Documentation.CostEstimation.Breakdown["compute"])
	assert.Equal(t, "8", d.Validation.ScalabilityAssessment.Score)
}

func TestProbeNamesOrder(t *testing.T) {
	assert.Equal(t, []string{
		"result.system_design",
		"result",
		"result.result.system_design",
		"result.design",
		"result.final_design",
	}, ProbeNames())
}
