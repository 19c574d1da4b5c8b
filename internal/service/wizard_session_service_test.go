package service

import (
	"context"
	"testing"

	"backend/internal/draft"
	"backend/internal/wizard"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type wizardFixture struct {
	svc    WizardSessionService
	drafts *draft.MemoryStore
	notes  *salesNoteFixture
}

func newWizardFixture() *wizardFixture {
	notes := newSalesNoteFixture()
	drafts := draft.NewMemoryStore()
	flow := NewSalesNoteFlow(notes.svc, NewPartyService(notes.partyRepo))
	return &wizardFixture{
		svc:    NewWizardSessionService(drafts, zap.NewNop(), flow),
		drafts: drafts,
		notes:  notes,
	}
}

func stepIDs(steps []StepStateResponse) []string {
	ids := make([]string, 0, len(steps))
	for _, step := range steps {
		ids = append(ids, step.ID)
	}
	return ids
}

func validLines() []any {
	return []any{
		map[string]any{"description": "Cemento gris 50kg", "quantity": float64(2), "unit_price": "50.00"},
		map[string]any{"description": "Flete", "quantity": float64(1), "unit_price": "50.00"},
	}
}

func TestWizardSessionHappyPath(t *testing.T) {
	t.Parallel()

	fx := newWizardFixture()
	ctx := context.Background()

	state, err := fx.svc.CreateSession(ctx, "u1", CreateSessionRequest{Flow: "sales-note"})
	require.NoError(t, err)
	require.Equal(t, "sales-note", state.Flow)
	require.Equal(t, "customer", state.CurrentStep)
	// The payment step stays hidden until it is switched on.
	require.Equal(t, []string{"customer", "lines", "summary"}, stepIDs(state.Steps))
	require.False(t, state.IsSubmitting)

	state, err = fx.svc.SetValues(ctx, "u1", state.SessionID, SetValuesRequest{
		Values: map[string]any{"customer.mode": "walkIn"},
	})
	require.NoError(t, err)

	state, err = fx.svc.Next(ctx, "u1", state.SessionID)
	require.NoError(t, err)
	require.Equal(t, "lines", state.CurrentStep)
	require.Equal(t, string(wizard.StatusCompleted), state.Steps[0].Status)

	state, err = fx.svc.SetValues(ctx, "u1", state.SessionID, SetValuesRequest{
		Values: map[string]any{"lines": validLines()},
	})
	require.NoError(t, err)

	state, err = fx.svc.Next(ctx, "u1", state.SessionID)
	require.NoError(t, err)
	require.Equal(t, "summary", state.CurrentStep)

	state, err = fx.svc.Submit(ctx, "u1", state.SessionID)
	require.NoError(t, err)

	note, ok := state.Result.(SalesNoteResponse)
	require.True(t, ok, "result should carry the created note")
	require.Equal(t, "150.00", note.Total)
	require.NotEmpty(t, note.Folio)

	// The draft is gone once the document exists.
	require.False(t, state.Draft.HasDraft)
	keys, err := fx.drafts.ListKeys(ctx, "")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestWizardSessionValidationBlocksNext(t *testing.T) {
	t.Parallel()

	fx := newWizardFixture()
	ctx := context.Background()

	state, err := fx.svc.CreateSession(ctx, "u1", CreateSessionRequest{Flow: "sales-note"})
	require.NoError(t, err)

	state, err = fx.svc.Next(ctx, "u1", state.SessionID)
	require.ErrorIs(t, err, wizard.ErrValidation)
	// The refreshed state is still returned so the caller can render issues.
	require.Equal(t, "customer", state.CurrentStep)
	require.Equal(t, string(wizard.StatusError), state.Steps[0].Status)
	require.NotEmpty(t, state.Issues)
	require.NotEmpty(t, state.FocusField)
}

func TestWizardSessionOptionalPaymentStep(t *testing.T) {
	t.Parallel()

	fx := newWizardFixture()
	ctx := context.Background()

	state, err := fx.svc.CreateSession(ctx, "u1", CreateSessionRequest{
		Flow: "sales-note",
		InitialValues: map[string]any{
			"customer.mode":   "walkIn",
			"lines":           validLines(),
			"payment.enabled": true,
			"payment.amount":  "100.00",
			"payment.method":  "CASH",
		},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"customer", "lines", "payment", "summary"}, stepIDs(state.Steps))

	for _, expected := range []string{"lines", "payment", "summary"} {
		state, err = fx.svc.Next(ctx, "u1", state.SessionID)
		require.NoError(t, err)
		require.Equal(t, expected, state.CurrentStep)
	}

	state, err = fx.svc.Submit(ctx, "u1", state.SessionID)
	require.NoError(t, err)

	note, ok := state.Result.(SalesNoteResponse)
	require.True(t, ok)
	require.Equal(t, "100.00", note.PaidAmount)
	require.Equal(t, "50.00", note.BalanceDue)
}

func TestWizardSessionSubmitJumpsToOffendingStep(t *testing.T) {
	t.Parallel()

	fx := newWizardFixture()
	ctx := context.Background()

	state, err := fx.svc.CreateSession(ctx, "u1", CreateSessionRequest{
		Flow:          "sales-note",
		InitialValues: map[string]any{"customer.mode": "walkIn"},
	})
	require.NoError(t, err)

	// The lines step is still empty, so a submit from anywhere lands there.
	state, err = fx.svc.Submit(ctx, "u1", state.SessionID)
	require.ErrorIs(t, err, wizard.ErrValidation)
	require.Equal(t, "lines", state.CurrentStep)
	require.Nil(t, state.Result)
}

func TestWizardSessionDraftResume(t *testing.T) {
	t.Parallel()

	fx := newWizardFixture()
	ctx := context.Background()

	state, err := fx.svc.CreateSession(ctx, "u1", CreateSessionRequest{Flow: "sales-note"})
	require.NoError(t, err)
	_, err = fx.svc.SetValues(ctx, "u1", state.SessionID, SetValuesRequest{
		Values: map[string]any{"customer.mode": "walkIn", "lines": validLines()},
	})
	require.NoError(t, err)
	_, err = fx.svc.SaveDraft(ctx, "u1", state.SessionID)
	require.NoError(t, err)
	require.NoError(t, fx.svc.CloseSession(ctx, "u1", state.SessionID, false))

	resumed, err := fx.svc.CreateSession(ctx, "u1", CreateSessionRequest{
		Flow:        "sales-note",
		ResumeDraft: true,
	})
	require.NoError(t, err)
	require.Equal(t, "walkIn", resumed.Values["customer.mode"])
	require.True(t, resumed.Draft.HasDraft)

	// The recovered session submits without re-entering anything.
	resumed, err = fx.svc.Submit(ctx, "u1", resumed.SessionID)
	require.NoError(t, err)
	require.NotNil(t, resumed.Result)
}

func TestWizardSessionDraftsAreScopedPerUser(t *testing.T) {
	t.Parallel()

	fx := newWizardFixture()
	ctx := context.Background()

	state, err := fx.svc.CreateSession(ctx, "u1", CreateSessionRequest{Flow: "sales-note"})
	require.NoError(t, err)
	_, err = fx.svc.SetValues(ctx, "u1", state.SessionID, SetValuesRequest{
		Values: map[string]any{"customer.mode": "walkIn"},
	})
	require.NoError(t, err)
	_, err = fx.svc.SaveDraft(ctx, "u1", state.SessionID)
	require.NoError(t, err)

	other, err := fx.svc.CreateSession(ctx, "u2", CreateSessionRequest{
		Flow:        "sales-note",
		ResumeDraft: true,
	})
	require.NoError(t, err)
	require.False(t, other.Draft.HasDraft)
	require.Nil(t, other.Values["customer.mode"])
}

func TestWizardSessionCloseDiscardsDraft(t *testing.T) {
	t.Parallel()

	fx := newWizardFixture()
	ctx := context.Background()

	state, err := fx.svc.CreateSession(ctx, "u1", CreateSessionRequest{Flow: "sales-note"})
	require.NoError(t, err)
	_, err = fx.svc.SetValues(ctx, "u1", state.SessionID, SetValuesRequest{
		Values: map[string]any{"customer.mode": "walkIn"},
	})
	require.NoError(t, err)
	_, err = fx.svc.SaveDraft(ctx, "u1", state.SessionID)
	require.NoError(t, err)

	require.NoError(t, fx.svc.CloseSession(ctx, "u1", state.SessionID, true))

	keys, err := fx.drafts.ListKeys(ctx, "")
	require.NoError(t, err)
	require.Empty(t, keys)

	// The session itself is gone too.
	_, err = fx.svc.GetState(ctx, "u1", state.SessionID)
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.ErrorIs(t, fx.svc.CloseSession(ctx, "u1", state.SessionID, false), ErrSessionNotFound)
}

func TestWizardSessionBelongsToItsCreator(t *testing.T) {
	t.Parallel()

	fx := newWizardFixture()
	ctx := context.Background()

	state, err := fx.svc.CreateSession(ctx, "u1", CreateSessionRequest{Flow: "sales-note"})
	require.NoError(t, err)

	// Another user who learns the session id cannot read or drive it.
	_, err = fx.svc.GetState(ctx, "u2", state.SessionID)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = fx.svc.SetValues(ctx, "u2", state.SessionID, SetValuesRequest{
		Values: map[string]any{"customer.mode": "walkIn"},
	})
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = fx.svc.Next(ctx, "u2", state.SessionID)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = fx.svc.Submit(ctx, "u2", state.SessionID)
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.ErrorIs(t, fx.svc.CloseSession(ctx, "u2", state.SessionID, true), ErrSessionNotFound)

	// The owner is unaffected.
	state, err = fx.svc.GetState(ctx, "u1", state.SessionID)
	require.NoError(t, err)
	require.Equal(t, "customer", state.CurrentStep)
}

func TestWizardSessionUnknownFlow(t *testing.T) {
	t.Parallel()

	fx := newWizardFixture()
	_, err := fx.svc.CreateSession(context.Background(), "u1", CreateSessionRequest{Flow: "no-such-flow"})
	require.ErrorIs(t, err, ErrUnknownFlow)
}

func TestWizardSessionUnknownSession(t *testing.T) {
	t.Parallel()

	fx := newWizardFixture()
	ctx := context.Background()

	_, err := fx.svc.GetState(ctx, "u1", "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = fx.svc.Next(ctx, "u1", "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = fx.svc.Submit(ctx, "u1", "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
}
