package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Strings decodes a list of names from a JSON array of strings, a single
// string, or an array of objects carrying a "name" field. Other values are
// kept as text.
type Strings []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Strings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || isNull(data) {
		*s = nil
		return nil
	}
	if data[0] != '[' {
		*s = Strings{nameOf(data)}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("expected string or array: %w", err)
	}
	out := make(Strings, 0, len(items))
	for _, item := range items {
		if v := nameOf(item); v != "" {
			out = append(out, v)
		}
	}
	*s = out
	return nil
}

// nameOf returns the name of an object item, or the item as text.
func nameOf(item json.RawMessage) string {
	if isObject(item) {
		var named struct {
			Name json.RawMessage `json:"name"`
		}
		if err := json.Unmarshal(item, &named); err == nil {
			if name := textOf(named.Name); name != "" {
				return name
			}
		}
	}
	return textOf(item)
}

func isNull(data []byte) bool {
	return string(bytes.TrimSpace(data)) == "null"
}

// textOf renders any JSON value as display text. Array items are joined with
// ", " and objects are kept as compact JSON.
func textOf(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err == nil {
			parts := make([]string, 0, len(items))
			for _, item := range items {
				if s := textOf(item); s != "" {
					parts = append(parts, s)
				}
			}
			return strings.Join(parts, ", ")
		}
	case '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err == nil {
			return buf.String()
		}
	}
	return string(raw)
}

func isObject(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == '{'
}

// textFieldCache caches the JSON names of string-kinded fields per struct type.
var textFieldCache sync.Map // reflect.Type -> []string

func textFields(t reflect.Type) []string {
	if v, ok := textFieldCache.Load(t); ok {
		return v.([]string)
	}
	var names []string
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Type.Kind() != reflect.String {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		names = append(names, name)
	}
	textFieldCache.Store(t, names)
	return names
}

// coerceText rewrites the members of the JSON object data that t declares as
// strings, so numbers, booleans, arrays and objects decode as text.
func coerceText(data []byte, t reflect.Type) ([]byte, error) {
	names := textFields(t)
	if len(names) == 0 {
		return data, nil
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	changed := false
	for _, name := range names {
		raw, ok := all[name]
		if !ok || isNull(raw) {
			continue
		}
		if raw = bytes.TrimSpace(raw); raw[0] == '"' {
			continue
		}
		enc, err := json.Marshal(textOf(raw))
		if err != nil {
			return nil, err
		}
		all[name] = enc
		changed = true
	}
	if !changed {
		return data, nil
	}
	return json.Marshal(all)
}

// decodeObject unmarshals the JSON object data into the struct pointed to by
// v, accepting any JSON value for its string fields.
func decodeObject(data []byte, v any) error {
	coerced, err := coerceText(data, reflect.TypeOf(v).Elem())
	if err != nil {
		return err
	}
	return json.Unmarshal(coerced, v)
}

// knownFields caches the JSON field names declared on each struct type.
var knownFields sync.Map // reflect.Type -> map[string]struct{}

func fieldNames(t reflect.Type) map[string]struct{} {
	if v, ok := knownFields.Load(t); ok {
		return v.(map[string]struct{})
	}
	names := make(map[string]struct{}, t.NumField())
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		names[name] = struct{}{}
	}
	knownFields.Store(t, names)
	return names
}

// splitExtra returns the members of the JSON object data that t does not declare.
func splitExtra(data []byte, t reflect.Type) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	known := fieldNames(t)
	var extra map[string]json.RawMessage
	for k, v := range all {
		if _, ok := known[k]; ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	return extra, nil
}

// mergeExtra adds extra members to the encoded object base. Declared fields win.
func mergeExtra(base []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return base, nil
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(base, &all); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := all[k]; !ok {
			all[k] = v
		}
	}
	return json.Marshal(all)
}

// UnmarshalJSON implements json.Unmarshaler, keeping undeclared members in
// Extra. A details member that is not an object is kept in Extra as well.
func (a *Architecture) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	details, hasDetails := all["details"]
	looseDetails := hasDetails && !isNull(details) && !isObject(details)
	if looseDetails {
		delete(all, "details")
		trimmed, err := json.Marshal(all)
		if err != nil {
			return err
		}
		data = trimmed
	}
	type plain Architecture
	var p plain
	if err := decodeObject(data, &p); err != nil {
		return err
	}
	extra, err := splitExtra(data, reflect.TypeOf(p))
	if err != nil {
		return err
	}
	if looseDetails {
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra["details"] = details
	}
	p.Extra = extra
	*a = Architecture(p)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (a Architecture) MarshalJSON() ([]byte, error) {
	type plain Architecture
	b, err := json.Marshal(plain(a))
	if err != nil {
		return nil, err
	}
	return mergeExtra(b, a.Extra)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *ArchitectureDetails) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	type plain ArchitectureDetails
	var p plain
	if err := decodeObject(data, &p); err != nil {
		return err
	}
	extra, err := splitExtra(data, reflect.TypeOf(p))
	if err != nil {
		return err
	}
	p.Extra = extra
	*d = ArchitectureDetails(p)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d ArchitectureDetails) MarshalJSON() ([]byte, error) {
	type plain ArchitectureDetails
	b, err := json.Marshal(plain(d))
	if err != nil {
		return nil, err
	}
	return mergeExtra(b, d.Extra)
}

// UnmarshalJSON implements json.Unmarshaler. A bare value is a component name.
func (c *Component) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	if !isObject(data) {
		*c = Component{Name: textOf(data)}
		return nil
	}
	type plain Component
	var p plain
	if err := decodeObject(data, &p); err != nil {
		return err
	}
	extra, err := splitExtra(data, reflect.TypeOf(p))
	if err != nil {
		return err
	}
	p.Extra = extra
	*c = Component(p)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c Component) MarshalJSON() ([]byte, error) {
	type plain Component
	b, err := json.Marshal(plain(c))
	if err != nil {
		return nil, err
	}
	return mergeExtra(b, c.Extra)
}

// UnmarshalJSON accepts a bare value as a decision with no other detail.
func (t *TradeOff) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	if !isObject(data) {
		*t = TradeOff{Decision: textOf(data)}
		return nil
	}
	type plain TradeOff
	var p plain
	if err := decodeObject(data, &p); err != nil {
		return err
	}
	*t = TradeOff(p)
	return nil
}

type tradeOffDetailJSON struct {
	Benefits Strings `json:"benefits"`
	Costs    Strings `json:"costs"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TradeOffDetail) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	if !isObject(data) {
		*t = TradeOffDetail{Text: textOf(data)}
		return nil
	}
	var obj tradeOffDetailJSON
	if err := decodeObject(data, &obj); err != nil {
		return err
	}
	*t = TradeOffDetail{Benefits: emptyIfNil(obj.Benefits), Costs: emptyIfNil(obj.Costs)}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t TradeOffDetail) MarshalJSON() ([]byte, error) {
	if !t.Structured() {
		return json.Marshal(t.Text)
	}
	return json.Marshal(tradeOffDetailJSON{Benefits: emptyIfNil(t.Benefits), Costs: emptyIfNil(t.Costs)})
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Validation) UnmarshalJSON(data []byte) error {
	if !isObject(data) {
		return nil
	}
	type plain Validation
	var p plain
	if err := decodeObject(data, &p); err != nil {
		return err
	}
	extra, err := splitExtra(data, reflect.TypeOf(p))
	if err != nil {
		return err
	}
	p.Extra = extra
	*v = Validation(p)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (v Validation) MarshalJSON() ([]byte, error) {
	type plain Validation
	b, err := json.Marshal(plain(v))
	if err != nil {
		return nil, err
	}
	return mergeExtra(b, v.Extra)
}

// UnmarshalJSON accepts a bare value as an issue with no severity.
func (i *Issue) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	if !isObject(data) {
		*i = Issue{Issue: textOf(data)}
		return nil
	}
	type plain Issue
	var p plain
	if err := decodeObject(data, &p); err != nil {
		return err
	}
	extra, err := splitExtra(data, reflect.TypeOf(p))
	if err != nil {
		return err
	}
	p.Extra = extra
	*i = Issue(p)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (i Issue) MarshalJSON() ([]byte, error) {
	type plain Issue
	b, err := json.Marshal(plain(i))
	if err != nil {
		return nil, err
	}
	return mergeExtra(b, i.Extra)
}

type assessmentJSON struct {
	OverallRating string          `json:"overall_rating,omitempty"`
	Score         json.RawMessage `json:"score,omitempty"`
	Findings      []Finding       `json:"findings,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler. Numeric scores are kept as text.
func (a *Assessment) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	if !isObject(data) {
		*a = Assessment{Text: textOf(data)}
		return nil
	}
	var obj assessmentJSON
	if err := decodeObject(data, &obj); err != nil {
		return err
	}
	*a = Assessment{OverallRating: obj.OverallRating, Score: textOf(obj.Score), Findings: obj.Findings}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (a Assessment) MarshalJSON() ([]byte, error) {
	if !a.Structured() {
		return json.Marshal(a.Text)
	}
	obj := assessmentJSON{OverallRating: a.OverallRating, Findings: a.Findings}
	if a.Score != "" {
		s, err := json.Marshal(a.Score)
		if err != nil {
			return nil, err
		}
		obj.Score = s
	}
	return json.Marshal(obj)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Documentation) UnmarshalJSON(data []byte) error {
	if !isObject(data) {
		return nil
	}
	type plain Documentation
	var p plain
	if err := decodeObject(data, &p); err != nil {
		return err
	}
	extra, err := splitExtra(data, reflect.TypeOf(p))
	if err != nil {
		return err
	}
	p.Extra = extra
	*d = Documentation(p)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Documentation) MarshalJSON() ([]byte, error) {
	type plain Documentation
	b, err := json.Marshal(plain(d))
	if err != nil {
		return nil, err
	}
	return mergeExtra(b, d.Extra)
}

// UnmarshalJSON implements json.Unmarshaler. Amounts of any JSON type become
// text, and a bare value is taken as the monthly estimate.
func (c *CostEstimation) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	if !isObject(data) {
		*c = CostEstimation{MonthlyEstimate: textOf(data)}
		return nil
	}
	var obj struct {
		MonthlyEstimate json.RawMessage `json:"monthly_estimate"`
		Breakdown       json.RawMessage `json:"breakdown"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	out := CostEstimation{MonthlyEstimate: textOf(obj.MonthlyEstimate)}
	if isObject(obj.Breakdown) {
		var breakdown map[string]json.RawMessage
		if err := json.Unmarshal(obj.Breakdown, &breakdown); err != nil {
			return fmt.Errorf("breakdown: %w", err)
		}
		out.Breakdown = make(map[string]string, len(breakdown))
		for k, raw := range breakdown {
			out.Breakdown[k] = textOf(raw)
		}
	}
	*c = out
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. Opaque text fields such as
// version accept any JSON value.
func (d *SystemDesign) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	type plain SystemDesign
	var p plain
	if err := decodeObject(data, &p); err != nil {
		return err
	}
	*d = SystemDesign(p)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. Numeric capacities and recovery
// objectives are kept as text.
func (f *Finding) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	if !isObject(data) {
		*f = Finding{Details: textOf(data)}
		return nil
	}
	type plain Finding
	var p plain
	if err := decodeObject(data, &p); err != nil {
		return err
	}
	*f = Finding(p)
	return nil
}
