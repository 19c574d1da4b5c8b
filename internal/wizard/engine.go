package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"backend/internal/form"

	"go.uber.org/zap"
)

var (
	// ErrSubmitInFlight is returned when Submit is called while a previous
	// submission has not finished.
	ErrSubmitInFlight = errors.New("wizard: submission already in flight")
	// ErrValidation is returned by GoNext/Submit when validation fails; the
	// step-level issues are available via FieldIssues.
	ErrValidation = errors.New("wizard: validation failed")
)

// Config wires an Engine to its step definitions, form store and submission
// callback.
type Config struct {
	Steps []StepDefinition
	Form  *form.Store

	// FreeNavigation allows GoToStep to reach any step regardless of visit
	// history.
	FreeNavigation bool

	// FinalSchema, when set, validates the whole form snapshot on Submit
	// after field-level validation passes.
	FinalSchema form.Validator
	// MapFinalIssuePath translates final-schema issue paths to field paths.
	// Nil means paths are already full-form field paths.
	MapFinalIssuePath func(path string) string

	// OnSubmit performs the actual persistence with the validated snapshot.
	// Errors propagate to the Submit caller unchanged.
	OnSubmit func(ctx context.Context, values form.Values) error

	// SaveDraft, when set, is invoked by the engine's SaveDraft method. It is
	// fire-and-forget: failures are ignored and never affect navigation.
	SaveDraft func()

	Logger *zap.Logger
}

// Engine owns a wizard's navigation state: the current step, the
// visited/completed/skipped/error sets and the in-flight submission gate.
// Steps are conditionally visible, so the visible step list is a projection
// recomputed on every form value change; the engine subscribes to the form
// store and repairs the current step synchronously inside the notification,
// so an invisible step is never observed as current.
type Engine struct {
	cfg    Config
	logger *zap.Logger

	mu          sync.Mutex
	current     string
	visited     map[string]struct{}
	completed   map[string]struct{}
	skipped     map[string]struct{}
	errored     map[string]struct{}
	issues      map[string][]form.Issue
	focusField  string
	submitting  bool
	unsubscribe func()
}

// New validates the configuration, subscribes to the form store and selects
// the initial step.
func New(cfg Config) (*Engine, error) {
	if cfg.Form == nil {
		return nil, errors.New("wizard: form store is required")
	}
	if len(cfg.Steps) == 0 {
		return nil, errors.New("wizard: at least one step is required")
	}
	seen := make(map[string]struct{}, len(cfg.Steps))
	for _, step := range cfg.Steps {
		if step.ID == "" {
			return nil, errors.New("wizard: step id must not be empty")
		}
		if _, dup := seen[step.ID]; dup {
			return nil, fmt.Errorf("wizard: duplicate step id %q", step.ID)
		}
		seen[step.ID] = struct{}{}
		if step.kind() == KindStep && len(step.FieldPaths) == 0 {
			return nil, fmt.Errorf("wizard: step %q owns no fields", step.ID)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		visited:   make(map[string]struct{}),
		completed: make(map[string]struct{}),
		skipped:   make(map[string]struct{}),
		errored:   make(map[string]struct{}),
		issues:    make(map[string][]form.Issue),
	}

	values := cfg.Form.Snapshot()
	e.current = e.initialStep(values)
	if e.current != "" {
		e.visited[e.current] = struct{}{}
	}
	e.unsubscribe = cfg.Form.Subscribe(e.onValuesChanged)
	return e, nil
}

// Close unsubscribes from the form store. The engine must not be used after
// Close.
func (e *Engine) Close() {
	e.mu.Lock()
	unsub := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// onValuesChanged runs synchronously inside every form change notification
// and repairs the current step before the change is observable anywhere else.
func (e *Engine) onValuesChanged(values form.Values) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == "" {
		e.current = e.initialStep(values)
		if e.current != "" {
			e.visited[e.current] = struct{}{}
		}
		return
	}
	for _, step := range e.visibleSteps(values) {
		if step.ID == e.current {
			return
		}
	}
	fallback := e.initialStep(values)
	e.logger.Debug("active step became invisible, falling back",
		zap.String("from", e.current), zap.String("to", fallback))
	e.current = fallback
	if e.current != "" {
		e.visited[e.current] = struct{}{}
	}
}

func (e *Engine) visibleSteps(values form.Values) []StepDefinition {
	out := make([]StepDefinition, 0, len(e.cfg.Steps))
	for _, step := range e.cfg.Steps {
		if step.visible(values) {
			out = append(out, step)
		}
	}
	return out
}

// initialStep picks the first non-summary visible step, falling back to the
// first visible step when only summaries are visible, or "" when nothing is.
func (e *Engine) initialStep(values form.Values) string {
	visible := e.visibleSteps(values)
	for _, step := range visible {
		if step.kind() != KindSummary {
			return step.ID
		}
	}
	if len(visible) > 0 {
		return visible[0].ID
	}
	return ""
}

// VisibleSteps returns the steps visible under the current form values, in
// definition order.
func (e *Engine) VisibleSteps() []StepDefinition {
	values := e.cfg.Form.Snapshot()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visibleSteps(values)
}

// Current returns the active step id, or "" when no step is visible.
func (e *Engine) Current() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Status derives a step's display status. Error wins over every other set,
// then active, completed, skipped, pending.
func (e *Engine) Status(stepID string) StepStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case hasKey(e.errored, stepID):
		return StatusError
	case stepID == e.current:
		return StatusActive
	case hasKey(e.completed, stepID):
		return StatusCompleted
	case hasKey(e.skipped, stepID):
		return StatusSkipped
	default:
		return StatusPending
	}
}

// FieldIssues returns the currently surfaced validation issues keyed by
// full-form field path.
func (e *Engine) FieldIssues() map[string][]form.Issue {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string][]form.Issue, len(e.issues))
	for k, v := range e.issues {
		out[k] = append([]form.Issue(nil), v...)
	}
	return out
}

// FocusField returns the field that should receive focus after the last
// failed validation, or "".
func (e *Engine) FocusField() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.focusField
}

// IsSubmitting reports whether a submission is in flight.
func (e *Engine) IsSubmitting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submitting
}

// GoNext validates the current step and advances to the next visible step.
// On the last visible step it is equivalent to Submit.
func (e *Engine) GoNext(ctx context.Context) error {
	values := e.cfg.Form.Snapshot()

	e.mu.Lock()
	visible := e.visibleSteps(values)
	idx := stepIndex(visible, e.current)
	if idx < 0 {
		e.mu.Unlock()
		return nil
	}
	if idx == len(visible)-1 {
		e.mu.Unlock()
		return e.Submit(ctx)
	}

	step := visible[idx]
	if !e.validateStepLocked(step, values) {
		e.mu.Unlock()
		return ErrValidation
	}
	next := visible[idx+1]
	e.current = next.ID
	e.visited[next.ID] = struct{}{}
	e.mu.Unlock()

	e.logger.Debug("wizard advanced", zap.String("step", next.ID))
	return nil
}

// GoBack moves to the previous visible step without re-validating the step
// being left. It is a no-op on the first visible step.
func (e *Engine) GoBack() {
	values := e.cfg.Form.Snapshot()
	e.mu.Lock()
	defer e.mu.Unlock()
	visible := e.visibleSteps(values)
	idx := stepIndex(visible, e.current)
	if idx <= 0 {
		return
	}
	e.current = visible[idx-1].ID
}

// GoToStep jumps to an arbitrary visible step when permitted: under free
// navigation, to any already-visited step, to any step at or before the
// current index, or to the current step itself. Every other attempt is
// silently ignored.
func (e *Engine) GoToStep(stepID string) {
	values := e.cfg.Form.Snapshot()
	e.mu.Lock()
	defer e.mu.Unlock()

	if stepID == e.current {
		return
	}
	visible := e.visibleSteps(values)
	target := stepIndex(visible, stepID)
	if target < 0 {
		return
	}
	current := stepIndex(visible, e.current)

	allowed := e.cfg.FreeNavigation ||
		hasKey(e.visited, stepID) ||
		target <= current
	if !allowed {
		return
	}

	// Unvisited optional steps jumped over become skipped.
	for i := current; i >= 0 && i < target; i++ {
		step := visible[i]
		if step.Optional && !hasKey(e.completed, step.ID) {
			e.skipped[step.ID] = struct{}{}
		}
	}

	e.current = stepID
	e.visited[stepID] = struct{}{}
}

// ValidateStep runs validation for the given step id and records the result.
// It returns true when the step is valid.
func (e *Engine) ValidateStep(stepID string) bool {
	values := e.cfg.Form.Snapshot()
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, step := range e.cfg.Steps {
		if step.ID == stepID {
			return e.validateStepLocked(step, values)
		}
	}
	return false
}

// validateStepLocked applies the step's validator when declared; the
// validator is authoritative and field-level checks are skipped. Without a
// validator the step's declared fields are checked with the form store's
// field rules.
func (e *Engine) validateStepLocked(step StepDefinition, values form.Values) bool {
	if step.kind() == KindSummary {
		return true
	}

	var issues []form.Issue
	if step.Validator != nil {
		var input any = values
		if step.Validator.StepValues != nil {
			input = step.Validator.StepValues(values)
		}
		_, raw := step.Validator.Schema.Validate(input)
		for _, issue := range raw {
			issues = append(issues, form.Issue{
				Path:    step.Validator.mapPath(issue.Path),
				Message: issue.Message,
			})
		}
	} else {
		issues = e.cfg.Form.ValidateFields(step.FieldPaths)
	}

	e.clearStepIssuesLocked(step)
	if len(issues) > 0 {
		for _, issue := range issues {
			e.issues[issue.Path] = append(e.issues[issue.Path], issue)
		}
		e.errored[step.ID] = struct{}{}
		delete(e.completed, step.ID)
		if len(step.FieldPaths) > 0 {
			e.focusField = step.FieldPaths[0]
		}
		e.logger.Debug("step validation failed",
			zap.String("step", step.ID), zap.Int("issues", len(issues)))
		return false
	}

	delete(e.errored, step.ID)
	delete(e.skipped, step.ID)
	e.completed[step.ID] = struct{}{}
	return true
}

func (e *Engine) clearStepIssuesLocked(step StepDefinition) {
	for _, field := range step.FieldPaths {
		delete(e.issues, field)
		prefix := field + "."
		for path := range e.issues {
			if strings.HasPrefix(path, prefix) {
				delete(e.issues, path)
			}
		}
	}
}

// SaveDraft triggers the configured draft save. It never blocks navigation
// and its outcome is not observed.
func (e *Engine) SaveDraft() {
	if e.cfg.SaveDraft != nil {
		e.cfg.SaveDraft()
	}
}

// Submit runs whole-form field validation, then the final schema when
// configured, and only then invokes the OnSubmit callback with the validated
// snapshot. Validation failures jump to the first visible step containing an
// offending field and return ErrValidation. OnSubmit errors propagate
// unchanged. At most one submission is in flight at a time.
func (e *Engine) Submit(ctx context.Context) error {
	e.mu.Lock()
	if e.submitting {
		e.mu.Unlock()
		return ErrSubmitInFlight
	}
	e.submitting = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.submitting = false
		e.mu.Unlock()
	}()

	values := e.cfg.Form.Snapshot()

	if issues := e.cfg.Form.ValidateAll(); len(issues) > 0 {
		e.recordAndJump(values, issues)
		return ErrValidation
	}

	snapshot := values
	if e.cfg.FinalSchema != nil {
		parsed, raw := e.cfg.FinalSchema.Validate(values)
		if len(raw) > 0 {
			issues := make([]form.Issue, 0, len(raw))
			for _, issue := range raw {
				path := issue.Path
				if e.cfg.MapFinalIssuePath != nil {
					path = e.cfg.MapFinalIssuePath(path)
				}
				issues = append(issues, form.Issue{Path: path, Message: issue.Message})
			}
			e.recordAndJump(values, issues)
			return ErrValidation
		}
		if v, ok := parsed.(form.Values); ok {
			snapshot = v
		}
	}

	e.logger.Debug("wizard submitting", zap.Int("fields", len(snapshot)))
	if e.cfg.OnSubmit != nil {
		if err := e.cfg.OnSubmit(ctx, snapshot); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.issues = make(map[string][]form.Issue)
	e.errored = make(map[string]struct{})
	e.focusField = ""
	e.mu.Unlock()
	return nil
}

// recordAndJump surfaces issues on their owning steps and moves the current
// step to the first visible step containing an affected field. Whole-form
// validation supersedes earlier results, so the issue and error sets are
// rebuilt rather than appended to.
func (e *Engine) recordAndJump(values form.Values, issues []form.Issue) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.issues = make(map[string][]form.Issue, len(issues))
	e.errored = make(map[string]struct{})

	for _, issue := range issues {
		e.issues[issue.Path] = append(e.issues[issue.Path], issue)
	}

	visible := e.visibleSteps(values)
	for _, step := range visible {
		if !stepOwnsAny(step, issues) {
			continue
		}
		e.errored[step.ID] = struct{}{}
		delete(e.completed, step.ID)
	}
	for _, step := range visible {
		if stepOwnsAny(step, issues) {
			e.current = step.ID
			e.visited[step.ID] = struct{}{}
			if len(step.FieldPaths) > 0 {
				e.focusField = step.FieldPaths[0]
			}
			return
		}
	}
}

func stepOwnsAny(step StepDefinition, issues []form.Issue) bool {
	for _, issue := range issues {
		for _, field := range step.FieldPaths {
			if issue.Path == field || strings.HasPrefix(issue.Path, field+".") {
				return true
			}
		}
	}
	return false
}

func stepIndex(steps []StepDefinition, id string) int {
	for i, step := range steps {
		if step.ID == id {
			return i
		}
	}
	return -1
}

func hasKey(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
