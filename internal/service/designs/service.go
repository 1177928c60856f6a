// Package designs provides the project and view logic shared by the HTTP API,
// the MCP server and the CLI.
//
// A view is one user's window onto a project. It moves through an explicit
// state machine (input, loading, loaded, failed) and owns a single in-flight
// slot: while a generate or refine call is outstanding, further calls on the
// same view are rejected with ErrBusy rather than queued. An outstanding call
// can be canceled, which returns the view to its prior state.
package designs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/archdoc/internal/agent"
	"github.com/ashita-ai/archdoc/internal/model"
	"github.com/ashita-ai/archdoc/internal/normalize"
	"github.com/ashita-ai/archdoc/internal/prompt"
	"github.com/ashita-ai/archdoc/internal/report"
	"github.com/ashita-ai/archdoc/internal/telemetry"
)

// Sentinel errors returned by Service.
var (
	ErrBusy         = errors.New("designs: a generate or refine call is already in flight for this view")
	ErrViewNotFound = errors.New("designs: view not found")
	ErrNotFound     = errors.New("designs: project not found")
	ErrNoProject    = errors.New("designs: view has no loaded project")
	ErrNotInFlight  = errors.New("designs: no call in flight")
	ErrCanceled     = errors.New("designs: call canceled")
	ErrNoEdits      = errors.New("designs: no unsaved edits")
)

// ProjectStore persists the whole project list.
type ProjectStore interface {
	Load(ctx context.Context) ([]model.Project, error)
	Save(ctx context.Context, projects []model.Project) error
}

// Publisher receives view events. Publish must not block.
type Publisher interface {
	Publish(event Event)
}

// Event describes a view state change.
type Event struct {
	Type      string    `json:"type"`
	ViewID    string    `json:"view_id"`
	State     State     `json:"state"`
	Stage     string    `json:"stage,omitempty"`
	ProjectID string    `json:"project_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Event types.
const (
	EventViewOpened  = "view_opened"
	EventViewState   = "view_state"
	EventViewEdited  = "view_edited"
	EventViewClosed  = "view_closed"
	EventProjectSave = "project_saved"
	EventProjectGone = "project_deleted"
)

// Config holds the collaborators for a Service.
type Config struct {
	Invoker   agent.Invoker
	Store     ProjectStore
	Publisher Publisher
	AgentID   string
	Logger    *slog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// ProjectSummary is the list entry for a project.
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

// Service owns the project list and the open views.
type Service struct {
	invoker agent.Invoker
	store   ProjectStore
	pub     Publisher
	agentID string
	logger  *slog.Logger
	now     func() time.Time
	tracer  trace.Tracer

	mu       sync.Mutex
	projects []model.Project // newest first
	views    map[string]*view
	lastID   int64

	persistMu sync.Mutex

	callDuration metric.Float64Histogram
	outcomes     metric.Int64Counter
}

// New creates a Service and loads the stored project list once.
func New(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Invoker == nil {
		return nil, fmt.Errorf("designs: invoker is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("designs: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AgentID == "" {
		cfg.AgentID = agent.DefaultAgentID
	}

	projects, err := cfg.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("designs: load projects: %w", err)
	}

	meter := telemetry.Meter("archdoc/designs")
	callDur, _ := meter.Float64Histogram("archdoc.agent.call.duration",
		metric.WithDescription("Time spent waiting on the design agent (ms)"),
		metric.WithUnit("ms"),
	)
	outcomes, _ := meter.Int64Counter("archdoc.agent.call.outcomes",
		metric.WithDescription("Agent call outcomes by operation and result"),
	)

	return &Service{
		invoker:      cfg.Invoker,
		store:        cfg.Store,
		pub:          cfg.Publisher,
		agentID:      cfg.AgentID,
		logger:       cfg.Logger,
		now:          cfg.Now,
		tracer:       telemetry.Tracer("archdoc/designs"),
		projects:     projects,
		views:        make(map[string]*view),
		callDuration: callDur,
		outcomes:     outcomes,
	}, nil
}

// OpenView starts a new view in the input state.
func (s *Service) OpenView() ViewSnapshot {
	v := newView(uuid.NewString())
	s.mu.Lock()
	s.views[v.id] = v
	snap := s.snapshotLocked(v)
	s.mu.Unlock()
	s.publish(EventViewOpened, snap)
	return snap
}

// View returns a snapshot of the view.
func (s *Service) View(viewID string) (ViewSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[viewID]
	if !ok {
		return ViewSnapshot{}, ErrViewNotFound
	}
	return s.snapshotLocked(v), nil
}

// CloseView cancels any outstanding call and forgets the view.
func (s *Service) CloseView(viewID string) error {
	s.mu.Lock()
	v, ok := s.views[viewID]
	if !ok {
		s.mu.Unlock()
		return ErrViewNotFound
	}
	if v.cancel != nil {
		v.canceled = true
		v.cancel()
	}
	delete(s.views, viewID)
	snap := s.snapshotLocked(v)
	s.mu.Unlock()
	s.publish(EventViewClosed, snap)
	return nil
}

// OpenProject shows a saved project in the view, discarding unsaved edits.
func (s *Service) OpenProject(viewID, projectID string) (ViewSnapshot, error) {
	s.mu.Lock()
	v, ok := s.views[viewID]
	if !ok {
		s.mu.Unlock()
		return ViewSnapshot{}, ErrViewNotFound
	}
	if v.inFlight() {
		s.mu.Unlock()
		return ViewSnapshot{}, ErrBusy
	}
	if s.indexLocked(projectID) < 0 {
		s.mu.Unlock()
		return ViewSnapshot{}, ErrNotFound
	}
	v.state = StateLoaded
	v.projectID = projectID
	v.draft = nil
	v.lastErr = nil
	snap := s.snapshotLocked(v)
	s.mu.Unlock()
	s.publish(EventViewState, snap)
	return snap, nil
}

// Generate asks the agent for a new design from in. On success a new project
// is created, persisted and shown in the view. Validation failures return
// before any call is issued and leave the view unchanged.
func (s *Service) Generate(ctx context.Context, viewID string, in model.Intake) (ViewSnapshot, error) {
	msg, err := prompt.BuildGenerate(in)
	if err != nil {
		return ViewSnapshot{}, err
	}

	commit := func(v *view, design model.SystemDesign) (ViewSnapshot, error) {
		s.mu.Lock()
		now := s.now().UTC()
		project := model.NewProject(s.nextIDLocked(now), design, now)
		s.projects = slices.Insert(s.projects, 0, project)
		s.finishLocked(v, StateLoaded, nil)
		v.projectID = project.ID
		v.draft = nil
		s.mu.Unlock()
		return s.persistFor(ctx, v), nil
	}
	return s.call(ctx, viewID, OpGenerate, msg, StageAnalyzingRequirements, nil, commit)
}

// Refine asks the agent to revise the view's project using feedback and
// appends the result to the project's history. A failed refine keeps the
// current design and records the error on the view.
func (s *Service) Refine(ctx context.Context, viewID, feedback string) (ViewSnapshot, error) {
	s.mu.Lock()
	v, ok := s.views[viewID]
	if !ok {
		s.mu.Unlock()
		return ViewSnapshot{}, ErrViewNotFound
	}
	idx := s.indexLocked(v.projectID)
	if idx < 0 {
		s.mu.Unlock()
		return ViewSnapshot{}, ErrNoProject
	}
	projectID := v.projectID
	name := s.projects[idx].SystemDesign.ProjectName
	s.mu.Unlock()

	msg, err := prompt.BuildRefine(name, feedback)
	if err != nil {
		return ViewSnapshot{}, err
	}

	precheck := func(v *view) error {
		if v.projectID != projectID {
			return ErrNoProject
		}
		return nil
	}
	commit := func(v *view, design model.SystemDesign) (ViewSnapshot, error) {
		s.mu.Lock()
		idx := s.indexLocked(projectID)
		if idx < 0 {
			// Deleted while the call was outstanding.
			s.finishLocked(v, StateInput, nil)
			v.projectID = ""
			snap := s.snapshotLocked(v)
			s.mu.Unlock()
			s.publish(EventViewState, snap)
			return snap, ErrNotFound
		}
		s.projects[idx] = s.projects[idx].AppendVersion(design, s.now().UTC())
		s.finishLocked(v, StateLoaded, nil)
		v.draft = nil
		s.mu.Unlock()
		return s.persistFor(ctx, v), nil
	}
	return s.call(ctx, viewID, OpRefine, msg, StageAnalyzingFeedback, precheck, commit)
}

// call runs one agent round trip on the view's in-flight slot. On success
// commit adopts the normalized design while the slot is still held. On failure
// the view is settled (prior state restored or failed) and the error is
// returned with the resulting snapshot.
func (s *Service) call(
	ctx context.Context,
	viewID, op, msg, stage string,
	precheck func(*view) error,
	commit func(*view, model.SystemDesign) (ViewSnapshot, error),
) (ViewSnapshot, error) {
	s.mu.Lock()
	v, ok := s.views[viewID]
	if !ok {
		s.mu.Unlock()
		return ViewSnapshot{}, ErrViewNotFound
	}
	if !v.slot.TryAcquire(1) {
		s.mu.Unlock()
		return ViewSnapshot{}, ErrBusy
	}
	defer v.slot.Release(1)
	if precheck != nil {
		if err := precheck(v); err != nil {
			s.mu.Unlock()
			return ViewSnapshot{}, err
		}
	}
	// The call outlives the caller's request; only Cancel or CloseView stop it.
	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	v.prior = v.state
	v.state = StateLoading
	v.stage = stage
	v.op = op
	v.cancel = cancel
	v.canceled = false
	snap := s.snapshotLocked(v)
	s.mu.Unlock()
	s.publish(EventViewState, snap)

	callCtx, span := s.tracer.Start(callCtx, "designs."+op, trace.WithAttributes(
		attribute.String("archdoc.view_id", viewID),
		attribute.String("archdoc.agent_id", s.agentID),
		attribute.Int("archdoc.prompt_bytes", len(msg)),
	))
	defer span.End()

	if op == OpGenerate {
		s.setStage(v, StageResearching)
	} else {
		s.setStage(v, StageRefining)
	}
	start := s.now()
	raw, err := agent.Call(callCtx, s.invoker, msg, s.agentID)
	s.callDuration.Record(ctx, float64(s.now().Sub(start).Milliseconds()),
		metric.WithAttributes(attribute.String("op", op)))

	var res normalize.Result
	if err == nil {
		if op == OpGenerate {
			s.setStage(v, StageDesigning)
		}
		res, err = normalize.Normalize(raw)
		if err == nil && op == OpGenerate {
			s.setStage(v, StageValidating)
			s.setStage(v, StageDocumenting)
		}
	}

	s.mu.Lock()
	canceled := v.canceled
	s.mu.Unlock()

	switch {
	case canceled:
		s.record(ctx, op, "canceled")
		span.SetStatus(codes.Error, "canceled")
		return s.settle(v, nil), ErrCanceled
	case err != nil:
		kind := classify(err)
		s.record(ctx, op, kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		s.logger.Warn("designs: agent call failed", "op", op, "view_id", viewID, "kind", kind, "error", err)
		failure := &ViewError{Kind: kind, Message: err.Error(), At: s.now().UTC()}
		var malformed *normalize.MalformedResponseError
		if errors.As(err, &malformed) {
			failure.Candidate = malformed.Candidate
		}
		return s.settle(v, failure), err
	}

	s.record(ctx, op, "ok")
	span.SetAttributes(attribute.String("archdoc.probe", res.Probe))
	s.logger.Info("designs: agent call succeeded", "op", op, "view_id", viewID,
		"probe", res.Probe, "project_name", res.Design.ProjectName,
		"components", len(res.Design.Architecture.Components))
	return commit(v, res.Design)
}

// settle ends a failed or canceled call. A canceled call restores the prior
// state silently. A failure keeps a loaded view loaded (the error is recorded
// out of band) and otherwise moves the view to failed.
func (s *Service) settle(v *view, failure *ViewError) ViewSnapshot {
	s.mu.Lock()
	next := v.prior
	if failure != nil && v.prior != StateLoaded {
		next = StateFailed
	}
	s.finishLocked(v, next, failure)
	if failure == nil {
		v.lastErr = nil
	}
	snap := s.snapshotLocked(v)
	s.mu.Unlock()
	s.publish(EventViewState, snap)
	return snap
}

func (s *Service) finishLocked(v *view, state State, failure *ViewError) {
	v.state = state
	v.stage = ""
	v.op = ""
	v.cancel = nil
	v.canceled = false
	if failure != nil {
		v.lastErr = failure
	} else if state == StateLoaded {
		v.lastErr = nil
	}
}

func (s *Service) setStage(v *view, stage string) {
	s.mu.Lock()
	if v.state != StateLoading || v.canceled {
		s.mu.Unlock()
		return
	}
	v.stage = stage
	snap := s.snapshotLocked(v)
	s.mu.Unlock()
	s.publish(EventViewState, snap)
}

func (s *Service) record(ctx context.Context, op, outcome string) {
	s.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

// Cancel aborts the view's outstanding call. The view returns to the state it
// was in before the call, without an error.
func (s *Service) Cancel(viewID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[viewID]
	if !ok {
		return ErrViewNotFound
	}
	if v.cancel == nil || v.canceled {
		return ErrNotInFlight
	}
	v.canceled = true
	v.cancel()
	return nil
}

// EditComponent replaces one component of the view's design in an unsaved
// draft. key is a component id or, failing that, a component name.
func (s *Service) EditComponent(viewID, key string, updated model.Component) (ViewSnapshot, error) {
	s.mu.Lock()
	v, idx, err := s.loadedViewLocked(viewID)
	if err != nil {
		s.mu.Unlock()
		return ViewSnapshot{}, err
	}
	base := s.projects[idx].SystemDesign
	if v.draft != nil {
		base = *v.draft
	}
	edited, err := report.EditComponent(base, key, updated)
	if err != nil {
		s.mu.Unlock()
		return ViewSnapshot{}, err
	}
	v.draft = &edited
	snap := s.snapshotLocked(v)
	s.mu.Unlock()
	s.publish(EventViewEdited, snap)
	return snap, nil
}

// SaveEdits appends the view's draft to the project history.
func (s *Service) SaveEdits(ctx context.Context, viewID string) (ViewSnapshot, error) {
	s.mu.Lock()
	v, idx, err := s.loadedViewLocked(viewID)
	if err != nil {
		s.mu.Unlock()
		return ViewSnapshot{}, err
	}
	if v.draft == nil {
		s.mu.Unlock()
		return ViewSnapshot{}, ErrNoEdits
	}
	s.projects[idx] = s.projects[idx].AppendVersion(*v.draft, s.now().UTC())
	v.draft = nil
	s.mu.Unlock()

	snap := s.persistFor(ctx, v)
	s.publish(EventProjectSave, snap)
	return snap, nil
}

// DiscardEdits drops the view's unsaved draft.
func (s *Service) DiscardEdits(viewID string) (ViewSnapshot, error) {
	s.mu.Lock()
	v, ok := s.views[viewID]
	if !ok {
		s.mu.Unlock()
		return ViewSnapshot{}, ErrViewNotFound
	}
	v.draft = nil
	snap := s.snapshotLocked(v)
	s.mu.Unlock()
	s.publish(EventViewEdited, snap)
	return snap, nil
}

func (s *Service) loadedViewLocked(viewID string) (*view, int, error) {
	v, ok := s.views[viewID]
	if !ok {
		return nil, -1, ErrViewNotFound
	}
	if v.inFlight() {
		return nil, -1, ErrBusy
	}
	idx := s.indexLocked(v.projectID)
	if v.projectID == "" || idx < 0 {
		return nil, -1, ErrNoProject
	}
	return v, idx, nil
}

// ListProjects returns summaries of the projects whose name contains query
// (case-insensitive), newest first. An empty query matches everything.
func (s *Service) ListProjects(query string) []ProjectSummary {
	q := strings.ToLower(strings.TrimSpace(query))
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ProjectSummary, 0, len(s.projects))
	for _, p := range s.projects {
		if q != "" && !strings.Contains(strings.ToLower(p.SystemDesign.ProjectName), q) {
			continue
		}
		out = append(out, ProjectSummary{
			ID:                p.ID,
			ProjectName:       p.SystemDesign.ProjectName,
			Version:           p.SystemDesign.Version,
			ArchitectureStyle: p.SystemDesign.Architecture.ArchitectureStyle,
			ComponentCount:    len(p.SystemDesign.Architecture.Components),
			VersionCount:      len(p.Versions),
			CreatedAt:         p.CreatedAt,
			UpdatedAt:         p.UpdatedAt,
		})
	}
	return out
}

// ProjectCount returns the number of saved projects.
func (s *Service) ProjectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.projects)
}

// GetProject returns the project with id.
func (s *Service) GetProject(id string) (model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return model.Project{}, ErrNotFound
	}
	return s.projects[idx], nil
}

// Versions returns the project's history, oldest first.
func (s *Service) Versions(id string) ([]model.SystemDesign, error) {
	p, err := s.GetProject(id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(p.Versions), nil
}

// DeleteProject removes a project. Views showing it return to input.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.projects = slices.Delete(s.projects, idx, idx+1)
	var affected []ViewSnapshot
	for _, v := range s.views {
		if v.projectID != id || v.inFlight() {
			continue
		}
		v.state = StateInput
		v.projectID = ""
		v.draft = nil
		affected = append(affected, s.snapshotLocked(v))
	}
	s.mu.Unlock()

	if err := s.persist(ctx); err != nil {
		s.logger.Warn("designs: project deleted in memory only", "project_id", id)
	}
	for _, snap := range affected {
		s.publish(EventProjectGone, snap)
	}
	return nil
}

// persist writes the current project list. Writes are serialized and each
// one snapshots the list while holding the write lock, so the last write
// always carries the latest list. In-memory state is kept on failure.
func (s *Service) persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	projects := slices.Clone(s.projects)
	s.mu.Unlock()

	if err := s.store.Save(context.WithoutCancel(ctx), projects); err != nil {
		s.logger.Error("designs: persist projects", "error", err, "projects", len(projects))
		return err
	}
	return nil
}

// persistFor persists and publishes the view. A store failure is recorded on
// the view as a persist error; the operation itself still succeeds.
func (s *Service) persistFor(ctx context.Context, v *view) ViewSnapshot {
	err := s.persist(ctx)
	s.mu.Lock()
	if err != nil {
		v.lastErr = &ViewError{Kind: KindPersist, Message: err.Error(), At: s.now().UTC()}
	}
	snap := s.snapshotLocked(v)
	s.mu.Unlock()
	s.publish(EventViewState, snap)
	return snap
}

func (s *Service) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.projects, func(p model.Project) bool { return p.ID == id })
}

// nextIDLocked returns a millisecond timestamp id, bumped past the last one
// issued so ids stay unique when the clock repeats.
func (s *Service) nextIDLocked(now time.Time) string {
	ms := now.UnixMilli()
	if ms <= s.lastID {
		ms = s.lastID + 1
	}
	for s.indexLocked(strconv.FormatInt(ms, 10)) >= 0 {
		ms++
	}
	s.lastID = ms
	return strconv.FormatInt(ms, 10)
}

func (s *Service) snapshotLocked(v *view) ViewSnapshot {
	snap := ViewSnapshot{
		ID:        v.id,
		State:     v.state,
		Stage:     v.stage,
		Operation: v.op,
		InFlight:  v.inFlight(),
		ProjectID: v.projectID,
		Dirty:     v.draft != nil,
	}
	if v.lastErr != nil {
		e := *v.lastErr
		snap.LastError = &e
	}
	switch {
	case v.draft != nil:
		d := *v.draft
		snap.Design = &d
	case v.projectID != "":
		if idx := s.indexLocked(v.projectID); idx >= 0 {
			d := s.projects[idx].SystemDesign
			snap.Design = &d
		}
	}
	return snap
}

func (s *Service) publish(eventType string, snap ViewSnapshot) {
	if s.pub == nil {
		return
	}
	ev := Event{
		Type:      eventType,
		ViewID:    snap.ID,
		State:     snap.State,
		Stage:     snap.Stage,
		ProjectID: snap.ProjectID,
		At:        s.now().UTC(),
	}
	if snap.LastError != nil {
		ev.Error = snap.LastError.Message
	}
	s.pub.Publish(ev)
}
