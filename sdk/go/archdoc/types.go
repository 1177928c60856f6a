package archdoc

import (
	"encoding/json"
	"time"
)

// View states.
const (
	StateInput   = "input"
	StateLoading = "loading"
	StateLoaded  = "loaded"
	StateFailed  = "failed"
)

// Intake is the input for generating a design.
type Intake struct {
	ProjectName          string   `json:"project_name"`
	Requirements         string   `json:"requirements"`
	TechnicalConstraints string   `json:"technical_constraints,omitempty"`
	ConcurrentUsers      string   `json:"concurrent_users,omitempty"`
	DataVolume           string   `json:"data_volume,omitempty"`
	Compliance           []string `json:"compliance,omitempty"`
	IntegrationNeeds     string   `json:"integration_needs,omitempty"`
	ReferenceCompanies   []string `json:"reference_companies,omitempty"`
}

// IntakeOptions lists the selectable intake values.
type IntakeOptions struct {
	Compliance         []string `json:"compliance"`
	ReferenceCompanies []string `json:"reference_companies"`
}

// Component is one building block of a design.
type Component struct {
	ID             string   `json:"id,omitempty"`
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Purpose        string   `json:"purpose"`
	Technologies   []string `json:"technologies"`
	Scalability    string   `json:"scalability"`
	FaultTolerance string   `json:"fault_tolerance"`
}

// Architecture is the architecture section of a design.
type Architecture struct {
	Overview          string            `json:"overview"`
	ArchitectureStyle string            `json:"architecture_style"`
	Components        []Component       `json:"components"`
	TradeOffDecisions []json.RawMessage `json:"trade_off_decisions"`
}

// Design is a system design document. Sections the client does not model
// are kept raw.
type Design struct {
	ProjectName   string          `json:"project_name"`
	Version       string          `json:"version"`
	Timestamp     string          `json:"timestamp,omitempty"`
	Requirements  json.RawMessage `json:"requirements,omitempty"`
	Research      json.RawMessage `json:"research,omitempty"`
	Architecture  Architecture    `json:"architecture"`
	Validation    json.RawMessage `json:"validation,omitempty"`
	Documentation json.RawMessage `json:"documentation,omitempty"`
}

// ViewError is the failure recorded on a view.
type ViewError struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
	// Candidate is the rejected design root of a malformed agent response.
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// View is a snapshot of a server-side view.
type View struct {
	ID        string     `json:"id"`
	State     string     `json:"state"`
	Stage     string     `json:"stage,omitempty"`
	Operation string     `json:"operation,omitempty"`
	InFlight  bool       `json:"in_flight"`
	ProjectID string     `json:"project_id,omitempty"`
	Design    *Design    `json:"design,omitempty"`
	Dirty     bool       `json:"dirty"`
	LastError *ViewError `json:"last_error,omitempty"`
}

// ProjectSummary is a project list entry.
type ProjectSummary struct {
	ID                string    `json:"id"`
	ProjectName       string    `json:"project_name"`
	Version           string    `json:"version"`
	ArchitectureStyle string    `json:"architecture_style"`
	ComponentCount    int       `json:"component_count"`
	VersionCount      int       `json:"version_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Project is a saved project with its full history, oldest first.
type Project struct {
	ID           string    `json:"id"`
	SystemDesign Design    `json:"system_design"`
	Versions     []Design  `json:"versions"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Export is a downloaded design document.
type Export struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Archive locates an export stored in the server's archive.
type Archive struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Health is the server's health report.
type Health struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Store         string `json:"store"`
	Agent         string `json:"agent"`
	SSEBroker     string `json:"sse_broker,omitempty"`
	Projects      int    `json:"projects"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
