package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"backend/internal/draft"
	"backend/internal/form"
	"backend/internal/wizard"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("wizard session not found")
	ErrUnknownFlow     = errors.New("unknown wizard flow")
)

// --- Request/Response DTOs ---

type CreateSessionRequest struct {
	Flow string `json:"flow" binding:"required"`
	// ResumeDraft recovers the user's saved draft into the fresh form when
	// one exists.
	ResumeDraft bool `json:"resume_draft"`
	// InitialValues seeds the form before the first step is computed.
	InitialValues map[string]any `json:"initial_values"`
}

type SetValuesRequest struct {
	Values map[string]any `json:"values" binding:"required"`
}

type GoToStepRequest struct {
	StepID string `json:"step_id" binding:"required"`
}

type StepStateResponse struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Kind     string `json:"kind"`
	Status   string `json:"status"`
	Optional bool   `json:"optional"`
}

type IssueResponse struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

type DraftStateResponse struct {
	HasDraft       bool   `json:"has_draft"`
	DraftTimestamp string `json:"draft_timestamp,omitempty"`
	IsAutoSaving   bool   `json:"is_auto_saving"`
	LastSaved      string `json:"last_saved,omitempty"`
}

type SessionStateResponse struct {
	SessionID    string              `json:"session_id"`
	Flow         string              `json:"flow"`
	CurrentStep  string              `json:"current_step"`
	Steps        []StepStateResponse `json:"steps"`
	Values       map[string]any      `json:"values"`
	Issues       []IssueResponse     `json:"issues,omitempty"`
	FocusField   string              `json:"focus_field,omitempty"`
	IsSubmitting bool                `json:"is_submitting"`
	Draft        DraftStateResponse  `json:"draft"`
	// Result carries the created document after a successful submit.
	Result any `json:"result,omitempty"`
}

// --- Service interface ---

// WizardSessionService runs live wizard instances keyed by session id. Each
// session owns a form store, a navigation engine and an autosaver bound to
// the owning user's draft key. Sessions are private to their creator; every
// operation takes the caller's user id and a session belonging to someone
// else reads as not found.
type WizardSessionService interface {
	CreateSession(ctx context.Context, userID string, req CreateSessionRequest) (SessionStateResponse, error)
	GetState(ctx context.Context, userID, sessionID string) (SessionStateResponse, error)
	SetValues(ctx context.Context, userID, sessionID string, req SetValuesRequest) (SessionStateResponse, error)
	Next(ctx context.Context, userID, sessionID string) (SessionStateResponse, error)
	Back(ctx context.Context, userID, sessionID string) (SessionStateResponse, error)
	GoToStep(ctx context.Context, userID, sessionID string, req GoToStepRequest) (SessionStateResponse, error)
	// SaveDraft forces an immediate draft write, bypassing the debounce.
	SaveDraft(ctx context.Context, userID, sessionID string) (SessionStateResponse, error)
	Submit(ctx context.Context, userID, sessionID string) (SessionStateResponse, error)
	// CloseSession tears the session down. discardDraft also clears the
	// stored draft.
	CloseSession(ctx context.Context, userID, sessionID string, discardDraft bool) error
}

type wizardSession struct {
	id        string
	flow      WizardFlow
	userID    string
	form      *form.Store
	engine    *wizard.Engine
	saver     *draft.Autosaver
	createdAt time.Time

	mu     sync.Mutex
	result any
}

type wizardSessionService struct {
	flows  map[string]WizardFlow
	drafts draft.Store
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*wizardSession
}

func NewWizardSessionService(drafts draft.Store, logger *zap.Logger, flows ...WizardFlow) WizardSessionService {
	byName := make(map[string]WizardFlow, len(flows))
	for _, flow := range flows {
		byName[flow.Name()] = flow
	}
	return &wizardSessionService{
		flows:    byName,
		drafts:   drafts,
		logger:   logger,
		sessions: make(map[string]*wizardSession),
	}
}

// --- Implementation ---

func (s *wizardSessionService) CreateSession(ctx context.Context, userID string, req CreateSessionRequest) (SessionStateResponse, error) {
	flow, ok := s.flows[req.Flow]
	if !ok {
		return SessionStateResponse{}, fmt.Errorf("%w: %s", ErrUnknownFlow, req.Flow)
	}

	store := form.NewStore(nil)
	flow.RegisterRules(store)

	saver, err := draft.NewAutosaver(draft.AutosaverConfig{
		Store:  s.drafts,
		Form:   store,
		Key:    draftKey(flow.Name(), userID),
		Mode:   draft.ValidateSafe,
		Schema: flow.DraftSchema(),
		OnSaveError: func(err error) {
			s.logger.Warn("draft autosave failed",
				zap.String("flow", flow.Name()), zap.Error(err))
		},
		Logger: s.logger,
	})
	if err != nil {
		return SessionStateResponse{}, fmt.Errorf("failed to start autosaver: %w", err)
	}

	// Recover before the engine exists so the initial step is computed from
	// the recovered values.
	if req.ResumeDraft {
		recovered, loadErr := saver.LoadDraft(ctx)
		if loadErr != nil {
			s.logger.Warn("draft recovery failed, starting clean",
				zap.String("flow", flow.Name()), zap.Error(loadErr))
		} else if recovered != nil {
			store.SetAll(recovered)
			store.ResetDirty()
		}
	}
	if len(req.InitialValues) > 0 {
		store.SetAll(req.InitialValues)
	}

	session := &wizardSession{
		id:        uuid.NewString(),
		flow:      flow,
		userID:    userID,
		form:      store,
		saver:     saver,
		createdAt: time.Now(),
	}

	engine, err := wizard.New(wizard.Config{
		Steps: flow.Steps(),
		Form:  store,
		OnSubmit: func(ctx context.Context, values form.Values) error {
			result, submitErr := flow.Submit(ctx, userID, values)
			if submitErr != nil {
				return submitErr
			}
			session.mu.Lock()
			session.result = result
			session.mu.Unlock()
			return nil
		},
		SaveDraft: func() {
			if saveErr := saver.SaveNow(context.Background(), nil); saveErr != nil &&
				!errors.Is(saveErr, draft.ErrNotDirty) {
				s.logger.Warn("manual draft save failed", zap.Error(saveErr))
			}
		},
		Logger: s.logger,
	})
	if err != nil {
		saver.Close()
		return SessionStateResponse{}, fmt.Errorf("failed to start wizard: %w", err)
	}
	session.engine = engine

	s.mu.Lock()
	s.sessions[session.id] = session
	s.mu.Unlock()

	s.logger.Info("wizard session created",
		zap.String("session_id", session.id),
		zap.String("flow", flow.Name()),
		zap.String("user_id", userID))
	return s.stateOf(session), nil
}

func (s *wizardSessionService) GetState(ctx context.Context, userID, sessionID string) (SessionStateResponse, error) {
	session, err := s.find(userID, sessionID)
	if err != nil {
		return SessionStateResponse{}, err
	}
	return s.stateOf(session), nil
}

func (s *wizardSessionService) SetValues(ctx context.Context, userID, sessionID string, req SetValuesRequest) (SessionStateResponse, error) {
	session, err := s.find(userID, sessionID)
	if err != nil {
		return SessionStateResponse{}, err
	}
	session.form.SetAll(req.Values)
	return s.stateOf(session), nil
}

func (s *wizardSessionService) Next(ctx context.Context, userID, sessionID string) (SessionStateResponse, error) {
	session, err := s.find(userID, sessionID)
	if err != nil {
		return SessionStateResponse{}, err
	}
	if navErr := session.engine.GoNext(ctx); navErr != nil {
		// Validation failures still return the refreshed state so the caller
		// can render the issues; other errors propagate.
		if errors.Is(navErr, wizard.ErrValidation) {
			return s.stateOf(session), navErr
		}
		return SessionStateResponse{}, navErr
	}
	return s.stateOf(session), nil
}

func (s *wizardSessionService) Back(ctx context.Context, userID, sessionID string) (SessionStateResponse, error) {
	session, err := s.find(userID, sessionID)
	if err != nil {
		return SessionStateResponse{}, err
	}
	session.engine.GoBack()
	return s.stateOf(session), nil
}

func (s *wizardSessionService) GoToStep(ctx context.Context, userID, sessionID string, req GoToStepRequest) (SessionStateResponse, error) {
	session, err := s.find(userID, sessionID)
	if err != nil {
		return SessionStateResponse{}, err
	}
	session.engine.GoToStep(req.StepID)
	return s.stateOf(session), nil
}

func (s *wizardSessionService) SaveDraft(ctx context.Context, userID, sessionID string) (SessionStateResponse, error) {
	session, err := s.find(userID, sessionID)
	if err != nil {
		return SessionStateResponse{}, err
	}
	if saveErr := session.saver.SaveNow(ctx, session.form.Snapshot()); saveErr != nil {
		return SessionStateResponse{}, fmt.Errorf("failed to save draft: %w", saveErr)
	}
	return s.stateOf(session), nil
}

func (s *wizardSessionService) Submit(ctx context.Context, userID, sessionID string) (SessionStateResponse, error) {
	session, err := s.find(userID, sessionID)
	if err != nil {
		return SessionStateResponse{}, err
	}
	if submitErr := session.engine.Submit(ctx); submitErr != nil {
		if errors.Is(submitErr, wizard.ErrValidation) {
			return s.stateOf(session), submitErr
		}
		return SessionStateResponse{}, submitErr
	}

	// The document is persisted; the draft has served its purpose.
	if clearErr := session.saver.ClearDraft(ctx); clearErr != nil {
		s.logger.Warn("failed to clear draft after submit",
			zap.String("session_id", sessionID), zap.Error(clearErr))
	}
	return s.stateOf(session), nil
}

func (s *wizardSessionService) CloseSession(ctx context.Context, userID, sessionID string, discardDraft bool) error {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	if ok && session.userID == userID {
		delete(s.sessions, sessionID)
	} else {
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	session.engine.Close()
	session.saver.Close()
	if discardDraft {
		if err := session.saver.ClearDraft(ctx); err != nil {
			return fmt.Errorf("failed to discard draft: %w", err)
		}
	}
	return nil
}

// find resolves a session for its owner. A session belonging to another user
// reads as not found so session ids cannot be probed.
func (s *wizardSessionService) find(userID, sessionID string) (*wizardSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok || session.userID != userID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *wizardSessionService) stateOf(session *wizardSession) SessionStateResponse {
	values := session.form.Snapshot()
	engine := session.engine

	visible := engine.VisibleSteps()
	steps := make([]StepStateResponse, 0, len(visible))
	for _, step := range visible {
		kind := step.Kind
		if kind == "" {
			kind = wizard.KindStep
		}
		steps = append(steps, StepStateResponse{
			ID:       step.ID,
			Title:    step.Title,
			Kind:     string(kind),
			Status:   string(engine.Status(step.ID)),
			Optional: step.Optional,
		})
	}

	var issues []IssueResponse
	for _, fieldIssues := range engine.FieldIssues() {
		for _, issue := range fieldIssues {
			issues = append(issues, IssueResponse{Path: issue.Path, Message: issue.Message})
		}
	}

	draftState := session.saver.State()
	resp := SessionStateResponse{
		SessionID:    session.id,
		Flow:         session.flow.Name(),
		CurrentStep:  engine.Current(),
		Steps:        steps,
		Values:       values,
		Issues:       issues,
		FocusField:   engine.FocusField(),
		IsSubmitting: engine.IsSubmitting(),
		Draft: DraftStateResponse{
			HasDraft:     draftState.HasDraft,
			IsAutoSaving: draftState.IsAutoSaving,
		},
	}
	if !draftState.DraftTimestamp.IsZero() {
		resp.Draft.DraftTimestamp = draftState.DraftTimestamp.Format(time.RFC3339)
	}
	if !draftState.LastSaved.IsZero() {
		resp.Draft.LastSaved = draftState.LastSaved.Format(time.RFC3339)
	}

	session.mu.Lock()
	resp.Result = session.result
	session.mu.Unlock()
	return resp
}

func draftKey(flow, userID string) string {
	return flow + ":" + userID
}
