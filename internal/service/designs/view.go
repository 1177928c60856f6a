package designs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ashita-ai/archdoc/internal/model"
	"github.com/ashita-ai/archdoc/internal/normalize"
	"github.com/ashita-ai/archdoc/internal/prompt"
)

// State is the lifecycle state of a project view.
type State string

// View states. A refine from StateLoaded passes through StateLoading and
// returns to StateLoaded whether or not it succeeds.
const (
	StateInput   State = "input"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateFailed  State = "failed"
)

// Loading stages reported while an agent call is outstanding.
const (
	StageAnalyzingRequirements = "Analyzing Requirements..."
	StageResearching           = "Researching Real-World Patterns..."
	StageDesigning             = "Designing Architecture..."
	StageValidating            = "Validating Against Industry Standards..."
	StageDocumenting           = "Generating Documentation..."
	StageAnalyzingFeedback     = "Analyzing Feedback..."
	StageRefining              = "Refining Architecture..."
)

// Operations that occupy the in-flight slot.
const (
	OpGenerate = "generate"
	OpRefine   = "refine"
)

// Error kinds reported on a view.
const (
	KindValidation = "validation"
	KindTransport  = "transport"
	KindMalformed  = "malformed_response"
	KindPersist    = "persist"
)

// ViewError is the last failure surfaced on a view. It never replaces the
// design the view is showing.
type ViewError struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
	// Candidate is the design root a malformed response was rejected on,
	// or nil when none was found.
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// ViewSnapshot is a point-in-time copy of a view.
type ViewSnapshot struct {
	ID        string              `json:"id"`
	State     State               `json:"state"`
	Stage     string              `json:"stage,omitempty"`
	Operation string              `json:"operation,omitempty"`
	InFlight  bool                `json:"in_flight"`
	ProjectID string              `json:"project_id,omitempty"`
	Design    *model.SystemDesign `json:"design,omitempty"`
	Dirty     bool                `json:"dirty"`
	LastError *ViewError          `json:"last_error,omitempty"`
}

// view is the mutable state behind one project view. Fields other than slot
// are guarded by Service.mu.
type view struct {
	id        string
	slot      *semaphore.Weighted
	state     State
	prior     State
	stage     string
	op        string
	projectID string
	draft     *model.SystemDesign
	lastErr   *ViewError
	cancel    context.CancelFunc
	canceled  bool
}

func newView(id string) *view {
	return &view{id: id, slot: semaphore.NewWeighted(1), state: StateInput}
}

func (v *view) inFlight() bool { return v.cancel != nil }

// classify maps an operation error onto a ViewError kind.
func classify(err error) string {
	var verr *prompt.ValidationError
	switch {
	case errors.As(err, &verr):
		return KindValidation
	case normalize.IsMalformed(err):
		return KindMalformed
	default:
		return KindTransport
	}
}
