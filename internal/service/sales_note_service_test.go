package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"backend/internal/audit"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type txMarkerKey struct{}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txMarkerKey{}).(bool)
	return v
}

// fakeSalesNoteRepo keeps notes and live payments in memory. Create can be
// primed to fail with duplicate-key errors to drive the folio retry loop.
type fakeSalesNoteRepo struct {
	notes    map[uuid.UUID]model.SalesNote
	payments map[uuid.UUID][]model.Payment

	duplicateCreates int // remaining Create calls that fail as duplicates
	createsInTx      int
	lastFilter       repository.SalesNoteListFilter
}

func newFakeSalesNoteRepo() *fakeSalesNoteRepo {
	return &fakeSalesNoteRepo{
		notes:    make(map[uuid.UUID]model.SalesNote),
		payments: make(map[uuid.UUID][]model.Payment),
	}
}

func (f *fakeSalesNoteRepo) Create(ctx context.Context, note *model.SalesNote) error {
	if f.duplicateCreates > 0 {
		f.duplicateCreates--
		return gorm.ErrDuplicatedKey
	}
	if inTx(ctx) {
		f.createsInTx++
	}
	note.ID = uuid.New()
	f.notes[note.ID] = *note
	return nil
}

func (f *fakeSalesNoteRepo) FindByID(_ context.Context, id uuid.UUID) (*model.SalesNote, error) {
	note, ok := f.notes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &note, nil
}

func (f *fakeSalesNoteRepo) FindByIDWithDetails(_ context.Context, id uuid.UUID) (*model.SalesNote, error) {
	note, ok := f.notes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	note.Payments = append([]model.Payment(nil), f.payments[id]...)
	return &note, nil
}

func (f *fakeSalesNoteRepo) List(_ context.Context, filter repository.SalesNoteListFilter) ([]model.SalesNote, int64, error) {
	f.lastFilter = filter
	var notes []model.SalesNote
	for _, note := range f.notes {
		notes = append(notes, note)
	}
	return notes, int64(len(notes)), nil
}

func (f *fakeSalesNoteRepo) FindActiveByParty(_ context.Context, partyID uuid.UUID) ([]model.SalesNote, error) {
	var notes []model.SalesNote
	for id, note := range f.notes {
		if note.PartyID != nil && *note.PartyID == partyID && note.Status == model.SalesNoteActive {
			note.Payments = append([]model.Payment(nil), f.payments[id]...)
			notes = append(notes, note)
		}
	}
	return notes, nil
}

func (f *fakeSalesNoteRepo) Update(_ context.Context, note *model.SalesNote) error {
	if _, ok := f.notes[note.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	f.notes[note.ID] = *note
	return nil
}

func (f *fakeSalesNoteRepo) CreatePayment(_ context.Context, payment *model.Payment) error {
	payment.ID = uuid.New()
	f.payments[payment.SalesNoteID] = append(f.payments[payment.SalesNoteID], *payment)
	return nil
}

func (f *fakeSalesNoteRepo) SoftDeletePayments(_ context.Context, noteID uuid.UUID) (int64, error) {
	removed := int64(len(f.payments[noteID]))
	delete(f.payments, noteID)
	return removed, nil
}

func (f *fakeSalesNoteRepo) CountByFolioPrefix(_ context.Context, prefix string) (int64, error) {
	var count int64
	for _, note := range f.notes {
		if strings.HasPrefix(note.Folio, prefix) {
			count++
		}
	}
	return count, nil
}

type fakePartyRepo struct {
	parties map[uuid.UUID]model.Party
	walkIn  *model.Party
}

func newFakePartyRepo() *fakePartyRepo {
	return &fakePartyRepo{parties: make(map[uuid.UUID]model.Party)}
}

func (f *fakePartyRepo) Create(_ context.Context, party *model.Party) error {
	party.ID = uuid.New()
	f.parties[party.ID] = *party
	return nil
}

func (f *fakePartyRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Party, error) {
	party, ok := f.parties[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &party, nil
}

func (f *fakePartyRepo) List(context.Context, repository.PartyListFilter) ([]model.Party, int64, error) {
	return nil, 0, nil
}

func (f *fakePartyRepo) Update(_ context.Context, party *model.Party) error {
	f.parties[party.ID] = *party
	return nil
}

func (f *fakePartyRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.parties, id)
	return nil
}

func (f *fakePartyRepo) UpsertBySystemKey(_ context.Context, party *model.Party) error {
	if f.walkIn == nil {
		party.ID = uuid.New()
		stored := *party
		f.walkIn = &stored
		f.parties[party.ID] = stored
		return nil
	}
	*party = *f.walkIn
	return nil
}

type fakeAuditRepo struct {
	entries []*model.AuditLog
	err     error
	inTx    int
}

func (f *fakeAuditRepo) Create(ctx context.Context, entry *model.AuditLog) error {
	if f.err != nil {
		return f.err
	}
	if inTx(ctx) {
		f.inTx++
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditRepo) List(context.Context, repository.AuditListFilter) ([]model.AuditLog, int64, error) {
	return nil, 0, nil
}

// fakeTxManager runs the function directly with a tx marker on the context
// and emulates rollback by restoring the fakes when the function errors.
type fakeTxManager struct {
	notes  *fakeSalesNoteRepo
	audits *fakeAuditRepo
}

func (m *fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	notesBefore := make(map[uuid.UUID]model.SalesNote, len(m.notes.notes))
	for id, note := range m.notes.notes {
		notesBefore[id] = note
	}
	paymentsBefore := make(map[uuid.UUID][]model.Payment, len(m.notes.payments))
	for id, payments := range m.notes.payments {
		paymentsBefore[id] = append([]model.Payment(nil), payments...)
	}
	auditsBefore := len(m.audits.entries)

	err := fn(context.WithValue(ctx, txMarkerKey{}, true))
	if err != nil {
		m.notes.notes = notesBefore
		m.notes.payments = paymentsBefore
		m.audits.entries = m.audits.entries[:auditsBefore]
	}
	return err
}

type salesNoteFixture struct {
	svc       SalesNoteService
	noteRepo  *fakeSalesNoteRepo
	partyRepo *fakePartyRepo
	auditRepo *fakeAuditRepo
}

func newSalesNoteFixture() *salesNoteFixture {
	noteRepo := newFakeSalesNoteRepo()
	partyRepo := newFakePartyRepo()
	auditRepo := &fakeAuditRepo{}
	tx := &fakeTxManager{notes: noteRepo, audits: auditRepo}
	svc := NewSalesNoteService(noteRepo, partyRepo, audit.NewRecorder(auditRepo, nil), tx, nil, nil)
	return &salesNoteFixture{svc: svc, noteRepo: noteRepo, partyRepo: partyRepo, auditRepo: auditRepo}
}

func twoLineRequest(partyID string) CreateSalesNoteRequest {
	return CreateSalesNoteRequest{
		PartyID: partyID,
		Lines: []SalesNoteLineRequest{
			{Description: "Cemento gris 50kg", Quantity: 2, UnitPrice: "50.00"},
			{Description: "Flete", Quantity: 1, UnitPrice: "50.00"},
		},
	}
}

func TestCreateSalesNoteComputesTotalsAndAudits(t *testing.T) {
	t.Parallel()

	fx := newSalesNoteFixture()
	userID := uuid.New()

	resp, err := fx.svc.CreateSalesNote(context.Background(), userID.String(), twoLineRequest(""))
	require.NoError(t, err)

	require.Regexp(t, regexp.MustCompile(`^NV-\d{8}-00001$`), resp.Folio)
	require.Equal(t, model.SalesNoteActive, resp.Status)
	require.Equal(t, "150.00", resp.Subtotal)
	require.Equal(t, "150.00", resp.Total)
	require.Equal(t, "0.00", resp.PaidAmount)
	require.Equal(t, "150.00", resp.BalanceDue)
	require.Len(t, resp.Lines, 2)
	require.Equal(t, "100.00", resp.Lines[0].LineTotal)

	// A walk-in sale resolves to the singleton anonymous customer.
	require.NotNil(t, fx.partyRepo.walkIn)
	require.NotNil(t, resp.PartyID)
	require.Equal(t, fx.partyRepo.walkIn.ID.String(), *resp.PartyID)

	require.Len(t, fx.auditRepo.entries, 1)
	entry := fx.auditRepo.entries[0]
	require.Equal(t, audit.EventSalesNoteCreated, entry.EventKey)
	require.Equal(t, audit.EntitySalesNote, entry.RootEntityType)
	require.Equal(t, resp.ID, entry.RootEntityID)
	require.Equal(t, &userID, entry.UserID)
	require.Len(t, entry.Changes, 3)
	require.Equal(t, "150.0000", entry.Changes[2].DecimalAfter.StringFixed(4))
	require.Nil(t, entry.Changes[2].DecimalBefore)

	// Both the note and its audit row were written inside the transaction.
	require.Equal(t, 1, fx.noteRepo.createsInTx)
	require.Equal(t, 1, fx.auditRepo.inTx)
}

func TestCreateSalesNoteMixedLineAmounts(t *testing.T) {
	t.Parallel()

	fx := newSalesNoteFixture()

	resp, err := fx.svc.CreateSalesNote(context.Background(), "", CreateSalesNoteRequest{
		Lines: []SalesNoteLineRequest{
			{Description: "Varilla 3/8", Quantity: 2, UnitPrice: "50.00"},
			{Description: "Alambre recocido", Quantity: 1, UnitPrice: "30.00"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "130.00", resp.Total)
	require.Equal(t, "130.00", resp.BalanceDue)

	require.Len(t, fx.auditRepo.entries, 1)
	total := fx.auditRepo.entries[0].Changes[1]
	require.Equal(t, audit.KeySalesNoteTotal, total.Key)
	require.Nil(t, total.DecimalBefore)
	require.Equal(t, "130.00", total.DecimalAfter.StringFixed(2))
}

func TestRecordPaymentMovesBalanceByAmount(t *testing.T) {
	t.Parallel()

	fx := newSalesNoteFixture()
	ctx := context.Background()

	created, err := fx.svc.CreateSalesNote(ctx, "", CreateSalesNoteRequest{
		Lines: []SalesNoteLineRequest{
			{Description: "Saco de mortero", Quantity: 3, UnitPrice: "40.00"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "120.00", created.Total)

	resp, err := fx.svc.RecordPayment(ctx, "", created.ID, RecordPaymentRequest{Amount: "40.00"})
	require.NoError(t, err)
	require.Equal(t, "80.00", resp.BalanceDue)

	entry := fx.auditRepo.entries[1]
	balance := entry.Changes[0]
	require.Equal(t, "120.00", balance.DecimalBefore.StringFixed(2))
	require.Equal(t, "80.00", balance.DecimalAfter.StringFixed(2))
	amount := entry.Changes[1]
	require.Nil(t, amount.DecimalBefore)
	require.Equal(t, "40.00", amount.DecimalAfter.StringFixed(2))
}

func TestCreateSalesNoteRetriesFolioCollision(t *testing.T) {
	t.Parallel()

	fx := newSalesNoteFixture()
	fx.noteRepo.duplicateCreates = 1

	resp, err := fx.svc.CreateSalesNote(context.Background(), "", twoLineRequest(""))
	require.NoError(t, err)

	// The first attempt collided, so the retry bumps the sequence by one.
	require.True(t, strings.HasSuffix(resp.Folio, "-00002"), "folio %s", resp.Folio)
	require.Len(t, fx.auditRepo.entries, 1)
}

func TestCreateSalesNoteFolioExhausted(t *testing.T) {
	t.Parallel()

	fx := newSalesNoteFixture()
	fx.noteRepo.duplicateCreates = folioMaxAttempts

	_, err := fx.svc.CreateSalesNote(context.Background(), "", twoLineRequest(""))
	require.ErrorIs(t, err, ErrFolioExhausted)
	require.Empty(t, fx.noteRepo.notes)
	require.Empty(t, fx.auditRepo.entries)
}

func TestCreateSalesNoteRejectsBadLines(t *testing.T) {
	t.Parallel()

	fx := newSalesNoteFixture()
	ctx := context.Background()

	_, err := fx.svc.CreateSalesNote(ctx, "", CreateSalesNoteRequest{
		Lines: []SalesNoteLineRequest{{Description: "x", Quantity: 1, UnitPrice: "not-a-number"}},
	})
	require.Error(t, err)

	_, err = fx.svc.CreateSalesNote(ctx, "", CreateSalesNoteRequest{
		Lines: []SalesNoteLineRequest{{Description: "x", Quantity: 0, UnitPrice: "10.00"}},
	})
	require.Error(t, err)

	_, err = fx.svc.CreateSalesNote(ctx, "", CreateSalesNoteRequest{
		Lines: []SalesNoteLineRequest{{ProductID: "not-a-uuid", Description: "x", Quantity: 1, UnitPrice: "10.00"}},
	})
	require.Error(t, err)

	require.Empty(t, fx.noteRepo.notes)
	require.Empty(t, fx.auditRepo.entries)
}

func TestCreateSalesNoteUnknownParty(t *testing.T) {
	t.Parallel()

	fx := newSalesNoteFixture()

	_, err := fx.svc.CreateSalesNote(context.Background(), "", twoLineRequest(uuid.NewString()))
	require.Error(t, err)
	require.Empty(t, fx.noteRepo.notes)
}

func TestCreateSalesNoteRollsBackOnAuditFailure(t *testing.T) {
	t.Parallel()

	fx := newSalesNoteFixture()
	fx.auditRepo.err = errors.New("audit table unavailable")

	_, err := fx.svc.CreateSalesNote(context.Background(), "", twoLineRequest(""))
	require.Error(t, err)

	// The mutation never lands without its audit trail.
	require.Empty(t, fx.noteRepo.notes)
	require.Empty(t, fx.auditRepo.entries)
}

func TestRecordPayment(t *testing.T) {
	t.Parallel()

	fx := newSalesNoteFixture()
	ctx := context.Background()
	userID := uuid.New()

	created, err := fx.svc.CreateSalesNote(ctx, userID.String(), twoLineRequest(""))
	require.NoError(t, err)

	resp, err := fx.svc.RecordPayment(ctx, userID.String(), created.ID, RecordPaymentRequest{Amount: "100.00"})
	require.NoError(t, err)
	require.Equal(t, "100.00", resp.PaidAmount)
	require.Equal(t, "50.00", resp.BalanceDue)
	require.Len(t, resp.Payments, 1)
	require.Equal(t, model.PaymentMethodCash, resp.Payments[0].Method)

	require.Len(t, fx.auditRepo.entries, 2)
	entry := fx.auditRepo.entries[1]
	require.Equal(t, audit.EventSalesNotePaymentCreated, entry.EventKey)
	require.Equal(t, created.ID, entry.RootEntityID)
	require.NotEqual(t, entry.RootEntityID, entry.EntityID) // payment id, not note id

	require.Len(t, entry.Changes, 2)
	balance := entry.Changes[0]
	require.Equal(t, audit.KeySalesNoteBalanceDue, balance.Key)
	require.Equal(t, "150.00", balance.DecimalBefore.StringFixed(2))
	require.Equal(t, "50.00", balance.DecimalAfter.StringFixed(2))
	amount := entry.Changes[1]
	require.Equal(t, audit.KeyPaymentAmount, amount.Key)
	require.Nil(t, amount.DecimalBefore)
	require.Equal(t, "100.00", amount.DecimalAfter.StringFixed(2))
}

func TestRecordPaymentSecondPaymentShiftsBalance(t *testing.T) {
	t.Parallel()

	fx := newSalesNoteFixture()
	ctx := context.Background()

	created, err := fx.svc.CreateSalesNote(ctx, "", twoLineRequest(""))
	require.NoError(t, err)

	_, err = fx.svc.RecordPayment(ctx, "", created.ID, RecordPaymentRequest{Amount: "100.00"})
	require.NoError(t, err)
	resp, err := fx.svc.RecordPayment(ctx, "", created.ID, RecordPaymentRequest{Amount: "50.00", Method: "TRANSFER"})
	require.NoError(t, err)
	require.Equal(t, "0.00", resp.BalanceDue)

	entry := fx.auditRepo.entries[2]
	require.Equal(t, "50.00", entry.Changes[0].DecimalBefore.StringFixed(2))
	require.Equal(t, "0.00", entry.Changes[0].DecimalAfter.StringFixed(2))
}

func TestRecordPaymentRejectsOverpayment(t *testing.T) {
	t.Parallel()

	fx := newSalesNoteFixture()
	ctx := context.Background()

	created, err := fx.svc.CreateSalesNote(ctx, "", twoLineRequest(""))
	require.NoError(t, err)

	_, err = fx.svc.RecordPayment(ctx, "", created.ID, RecordPaymentRequest{Amount: "150.01"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds balance due")

	// The rejected payment left no trace.
	require.Empty(t, fx.noteRepo.payments[uuid.MustParse(created.ID)])
	require.Len(t, fx.auditRepo.entries, 1)
}

func TestRecordPaymentValidatesInput(t *testing.T) {
	t.Parallel()

	fx := newSalesNoteFixture()
	ctx := context.Background()

	created, err := fx.svc.CreateSalesNote(ctx, "", twoLineRequest(""))
	require.NoError(t, err)

	for _, amount := range []string{"abc", "0", "-10"} {
		_, err = fx.svc.RecordPayment(ctx, "", created.ID, RecordPaymentRequest{Amount: amount})
		require.Error(t, err, "amount %q", amount)
	}

	_, err = fx.svc.RecordPayment(ctx, "", "not-a-uuid", RecordPaymentRequest{Amount: "10.00"})
	require.Error(t, err)
	_, err = fx.svc.RecordPayment(ctx, "", uuid.NewString(), RecordPaymentRequest{Amount: "10.00"})
	require.Error(t, err)
}

func TestRecordPaymentOnInactiveNote(t *testing.T) {
	t.Parallel()

	fx := newSalesNoteFixture()
	ctx := context.Background()

	created, err := fx.svc.CreateSalesNote(ctx, "", twoLineRequest(""))
	require.NoError(t, err)
	_, err = fx.svc.ToggleActive(ctx, "", created.ID)
	require.NoError(t, err)

	_, err = fx.svc.RecordPayment(ctx, "", created.ID, RecordPaymentRequest{Amount: "10.00"})
	require.Error(t, err)
}

func TestToggleActiveDeactivationRemovesPayments(t *testing.T) {
	t.Parallel()

	fx := newSalesNoteFixture()
	ctx := context.Background()

	created, err := fx.svc.CreateSalesNote(ctx, "", twoLineRequest(""))
	require.NoError(t, err)
	_, err = fx.svc.RecordPayment(ctx, "", created.ID, RecordPaymentRequest{Amount: "150.00"})
	require.NoError(t, err)

	resp, err := fx.svc.ToggleActive(ctx, "", created.ID)
	require.NoError(t, err)
	require.Equal(t, model.SalesNoteInactive, resp.Status)
	require.Empty(t, resp.Payments)
	require.Equal(t, "0.00", resp.PaidAmount)

	entry := fx.auditRepo.entries[len(fx.auditRepo.entries)-1]
	require.Equal(t, audit.EventSalesNoteDeactivated, entry.EventKey)
	require.Equal(t, model.SalesNoteActive, *entry.Changes[0].StringBefore)
	require.Equal(t, model.SalesNoteInactive, *entry.Changes[0].StringAfter)

	// Reactivation restores the note but never the removed payments, so the
	// full balance is due again.
	resp, err = fx.svc.ToggleActive(ctx, "", created.ID)
	require.NoError(t, err)
	require.Equal(t, model.SalesNoteActive, resp.Status)
	require.Equal(t, "150.00", resp.BalanceDue)

	entry = fx.auditRepo.entries[len(fx.auditRepo.entries)-1]
	require.Equal(t, audit.EventSalesNoteReactivated, entry.EventKey)
}

func TestGetSalesNote(t *testing.T) {
	t.Parallel()

	fx := newSalesNoteFixture()
	ctx := context.Background()

	created, err := fx.svc.CreateSalesNote(ctx, "", twoLineRequest(""))
	require.NoError(t, err)

	got, err := fx.svc.GetSalesNote(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.Folio, got.Folio)

	_, err = fx.svc.GetSalesNote(ctx, "not-a-uuid")
	require.Error(t, err)
	_, err = fx.svc.GetSalesNote(ctx, uuid.NewString())
	require.Error(t, err)
}

func TestPartyBalanceAggregatesActiveNotes(t *testing.T) {
	t.Parallel()

	fx := newSalesNoteFixture()
	ctx := context.Background()

	// Two walk-in notes of 150 each, one partially paid, one deactivated.
	first, err := fx.svc.CreateSalesNote(ctx, "", twoLineRequest(""))
	require.NoError(t, err)
	_, err = fx.svc.RecordPayment(ctx, "", first.ID, RecordPaymentRequest{Amount: "100.00"})
	require.NoError(t, err)

	_, err = fx.svc.CreateSalesNote(ctx, "", twoLineRequest(""))
	require.NoError(t, err)
	third, err := fx.svc.CreateSalesNote(ctx, "", twoLineRequest(""))
	require.NoError(t, err)
	_, err = fx.svc.ToggleActive(ctx, "", third.ID)
	require.NoError(t, err)

	balance, err := fx.svc.PartyBalance(ctx, fx.partyRepo.walkIn.ID.String())
	require.NoError(t, err)
	require.Equal(t, 2, balance.ActiveNotes)
	require.Equal(t, "200.00", balance.TotalDue) // 50 remaining + 150 untouched

	_, err = fx.svc.PartyBalance(ctx, "not-a-uuid")
	require.Error(t, err)
	_, err = fx.svc.PartyBalance(ctx, uuid.NewString())
	require.Error(t, err)
}

func TestListSalesNotesDefaultsPagination(t *testing.T) {
	t.Parallel()

	fx := newSalesNoteFixture()
	ctx := context.Background()

	_, err := fx.svc.CreateSalesNote(ctx, "", twoLineRequest(""))
	require.NoError(t, err)

	notes, total, err := fx.svc.ListSalesNotes(ctx, SalesNoteFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, notes, 1)
	require.Equal(t, 1, fx.noteRepo.lastFilter.Page)
	require.Equal(t, 20, fx.noteRepo.lastFilter.Limit)
}
