// Package normalize maps the loosely shaped JSON returned by the design agent
// onto the canonical model.SystemDesign.
//
// Normalization runs in two stages. Root selection tries an ordered list of
// probes against the response and takes the first one that finds an object;
// there is no fallback to later probes if the selected candidate is then
// rejected. Promotion applies independent, idempotent transforms that fill
// canonical fields from older field names.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ashita-ai/archdoc/internal/jsonutil"
	"github.com/ashita-ai/archdoc/internal/model"
)

// MalformedResponseError reports an agent response that could not be mapped
// to a SystemDesign. Candidate holds the selected design root, or nil when no
// probe matched.
type MalformedResponseError struct {
	Reason    string
	Candidate json.RawMessage
}

func (e *MalformedResponseError) Error() string {
	return "normalize: malformed agent response: " + e.Reason
}

// IsMalformed reports whether err is a MalformedResponseError.
func IsMalformed(err error) bool {
	var m *MalformedResponseError
	return errors.As(err, &m)
}

// Result is a successfully normalized design and the probe that located it.
type Result struct {
	Design model.SystemDesign
	Probe  string
}

// probe locates a candidate design root inside the decoded response.
type probe struct {
	name string
	path []string
	// requireKey, when set, must hold a non-empty string on the object at path.
	requireKey string
}

// probes are tried in order; the first one that finds an object wins.
var probes = []probe{
	{name: "result.system_design", path: []string{"result", "system_design"}},
	{name: "result", path: []string{"result"}, requireKey: "project_name"},
	{name: "result.result.system_design", path: []string{"result", "result", "system_design"}},
	{name: "result.design", path: []string{"result", "design"}},
	{name: "result.final_design", path: []string{"result", "final_design"}},
}

// ProbeNames returns the probe names in precedence order.
func ProbeNames() []string {
	names := make([]string, len(probes))
	for i, p := range probes {
		names[i] = p.name
	}
	return names
}

func (p probe) find(root map[string]json.RawMessage) (json.RawMessage, bool) {
	obj := root
	var raw json.RawMessage
	for i, key := range p.path {
		v, ok := obj[key]
		if !ok || isNull(v) {
			return nil, false
		}
		next, ok := asObject(v)
		if !ok {
			return nil, false
		}
		raw = v
		if i < len(p.path)-1 {
			obj = next
			continue
		}
		if p.requireKey != "" && !nonEmptyString(next[p.requireKey]) {
			return nil, false
		}
	}
	return raw, true
}

// Normalize decodes an agent response and returns the canonical design.
// Any failure is a *MalformedResponseError.
func Normalize(response []byte) (Result, error) {
	root, err := decodeRoot(response)
	if err != nil {
		return Result{}, &MalformedResponseError{Reason: err.Error()}
	}

	for _, p := range probes {
		candidate, ok := p.find(root)
		if !ok {
			continue
		}
		design, err := decodeCandidate(candidate)
		if err != nil {
			return Result{}, &MalformedResponseError{Reason: err.Error(), Candidate: candidate}
		}
		return Result{Design: Promote(design), Probe: p.name}, nil
	}
	return Result{}, &MalformedResponseError{Reason: "no recognizable design root in response"}
}

// decodeRoot parses the response object. A response delivered as a JSON
// string (possibly fenced) is decoded, as is a result member delivered that way.
func decodeRoot(response []byte) (map[string]json.RawMessage, error) {
	raw, err := jsonutil.Extract(response)
	if err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	root, ok := asObject(raw)
	if !ok {
		return nil, errors.New("response is not a JSON object")
	}
	if res, ok := root["result"]; ok && len(bytes.TrimSpace(res)) > 0 && bytes.TrimSpace(res)[0] == '"' {
		if inner, err := jsonutil.Extract(res); err == nil {
			if _, isObj := asObject(inner); isObj {
				root["result"] = inner
			}
		}
	}
	return root, nil
}

// decodeCandidate checks the structural requirements on a design root and
// decodes it into the canonical type.
func decodeCandidate(candidate json.RawMessage) (model.SystemDesign, error) {
	fields, _ := asObject(candidate)

	var name string
	rawName, ok := fields["project_name"]
	if !ok || isNull(rawName) {
		return model.SystemDesign{}, errors.New("design is missing project_name")
	}
	if err := json.Unmarshal(rawName, &name); err != nil {
		return model.SystemDesign{}, errors.New("project_name is not a string")
	}
	if strings.TrimSpace(name) == "" {
		return model.SystemDesign{}, errors.New("project_name is empty")
	}

	arch, ok := asObject(fields["architecture"])
	if !ok {
		return model.SystemDesign{}, errors.New("design is missing an architecture object")
	}
	if !present(arch, "components") && !present(arch, "key_components") {
		return model.SystemDesign{}, errors.New("architecture has neither components nor key_components")
	}

	var design model.SystemDesign
	if err := json.Unmarshal(candidate, &design); err != nil {
		return model.SystemDesign{}, fmt.Errorf("decode design: %w", err)
	}
	return design, nil
}

func asObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func present(obj map[string]json.RawMessage, key string) bool {
	v, ok := obj[key]
	return ok && !isNull(v)
}

func nonEmptyString(raw json.RawMessage) bool {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return strings.TrimSpace(s) != ""
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
