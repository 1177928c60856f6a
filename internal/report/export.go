package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/ashita-ai/archdoc/internal/jsonutil"
	"github.com/ashita-ai/archdoc/internal/model"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ErrUnknownFormat is returned for an export format other than json or yaml.
var ErrUnknownFormat = errors.New("report: unknown export format")

// ExportError is a failure to produce or deliver an export. It never affects
// in-memory project state.
type ExportError struct {
	Sink string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("report: export to %s failed: %v", e.Sink, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// ExportDocument is the curated document offered for download.
type ExportDocument struct {
	Metadata      ExportMetadata             `json:"metadata"`
	Requirements  json.RawMessage            `json:"requirements"`
	Research      json.RawMessage            `json:"research"`
	Architecture  ExportArchitecture         `json:"architecture"`
	TradeOffs     []model.TradeOff           `json:"trade_offs"`
	Validation    model.Validation           `json:"validation"`
	Cost          *model.CostEstimation      `json:"cost"`
	Documentation map[string]json.RawMessage `json:"documentation"`
}

// ExportMetadata identifies the exported design.
type ExportMetadata struct {
	ProjectName  string    `json:"project_name"`
	Version      string    `json:"version"`
	Timestamp    string    `json:"timestamp,omitempty"`
	ProjectID    string    `json:"project_id,omitempty"`
	VersionCount int       `json:"version_count"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
	ExportedAt   time.Time `json:"exported_at"`
}

// ExportArchitecture is the architecture section without its trade-offs,
// which are exported at the top level.
type ExportArchitecture struct {
	Overview          string                     `json:"overview"`
	ArchitectureStyle string                     `json:"architecture_style"`
	Components        []model.Component          `json:"components"`
	Details           map[string]json.RawMessage `json:"details,omitempty"`
}

// BuildExport assembles the export document for the project's current design.
func BuildExport(p model.Project, now time.Time) ExportDocument {
	doc := BuildDesignExport(p.SystemDesign, now)
	doc.Metadata.ProjectID = p.ID
	doc.Metadata.VersionCount = len(p.Versions)
	doc.Metadata.CreatedAt = p.CreatedAt
	doc.Metadata.UpdatedAt = p.UpdatedAt
	return doc
}

// BuildDesignExport assembles the export document for a design that may not
// belong to a saved project. Missing optional sections export as null.
func BuildDesignExport(d model.SystemDesign, now time.Time) ExportDocument {
	components := d.Architecture.Components
	if components == nil {
		components = []model.Component{}
	}
	tradeOffs := d.Architecture.TradeOffDecisions
	if tradeOffs == nil {
		tradeOffs = []model.TradeOff{}
	}
	return ExportDocument{
		Metadata: ExportMetadata{
			ProjectName:  d.ProjectName,
			Version:      d.Version,
			Timestamp:    d.Timestamp,
			VersionCount: 1,
			ExportedAt:   now.UTC(),
		},
		Requirements: rawOrNull(d.Requirements),
		Research:     rawOrNull(d.Research),
		Architecture: ExportArchitecture{
			Overview:          d.Architecture.Overview,
			ArchitectureStyle: d.Architecture.ArchitectureStyle,
			Components:        components,
			Details:           d.Architecture.Extra,
		},
		TradeOffs:     tradeOffs,
		Validation:    d.Validation,
		Cost:          d.Documentation.CostEstimation,
		Documentation: d.Documentation.Extra,
	}
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

// Encode serializes doc in format ("" means json). It returns the bytes and
// the content type.
func Encode(doc ExportDocument, format string) ([]byte, string, error) {
	data, err := jsonutil.MarshalNoEscape(doc, "  ")
	if err != nil {
		return nil, "", &ExportError{Sink: "encoder", Err: err}
	}
	switch normalizeFormat(format) {
	case FormatJSON:
		return data, "application/json", nil
	case FormatYAML:
		out, err := jsonToYAML(data)
		if err != nil {
			return nil, "", &ExportError{Sink: "encoder", Err: err}
		}
		return out, "application/yaml", nil
	}
	return nil, "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// ValidFormat reports whether format is accepted by Encode.
func ValidFormat(format string) bool {
	f := normalizeFormat(format)
	return f == FormatJSON || f == FormatYAML
}

func normalizeFormat(format string) string {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "", FormatJSON:
		return FormatJSON
	case FormatYAML, "yml":
		return FormatYAML
	default:
		return f
	}
}

// jsonToYAML re-encodes a JSON document as block-style YAML, keeping member order.
func jsonToYAML(data []byte) ([]byte, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	clearStyle(&node)
	return yaml.Marshal(&node)
}

func clearStyle(n *yaml.Node) {
	if n.Kind != yaml.ScalarNode || n.Tag != "!!str" {
		n.Style = 0
	} else if n.Style != 0 && !needsQuoting(n.Value) {
		n.Style = 0
	}
	for _, c := range n.Content {
		clearStyle(c)
	}
}

// needsQuoting reports strings that would not read back as strings unquoted.
func needsQuoting(s string) bool {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return true
	}
	_, isString := v.(string)
	return !isString || v.(string) != s
}

// FileName returns the download name for a design export, e.g.
// "Checkout-design.json".
func FileName(projectName, format string) string {
	ext := normalizeFormat(format)
	if ext != FormatYAML {
		ext = FormatJSON
	}
	name := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == '"' || r == ':':
			return '-'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.TrimSpace(projectName))
	if name == "" {
		name = "system"
	}
	return name + "-design." + ext
}
