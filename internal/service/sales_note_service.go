package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend/internal/audit"
	"backend/internal/model"
	"backend/internal/repository"
	ws "backend/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// folioMaxAttempts bounds the retry loop on folio unique-constraint
// collisions under concurrent creators.
const folioMaxAttempts = 3

// ErrFolioExhausted is returned when every folio generation attempt collided.
var ErrFolioExhausted = errors.New("could not generate a unique folio")

// --- DTOs ---

type SalesNoteLineRequest struct {
	ProductID   string `json:"product_id"` // optional: free-text lines have none
	Description string `json:"description" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
	UnitPrice   string `json:"unit_price" binding:"required"`
}

type CreateSalesNoteRequest struct {
	PartyID string                 `json:"party_id"` // empty means walk-in sale
	Note    string                 `json:"note"`
	Lines   []SalesNoteLineRequest `json:"lines" binding:"required,min=1,dive"`
}

type RecordPaymentRequest struct {
	Amount string `json:"amount" binding:"required"`
	Method string `json:"method" binding:"omitempty,oneof=CASH TRANSFER CARD"`
	Note   string `json:"note"`
}

type SalesNoteFilter struct {
	Status  string
	PartyID string
	Folio   string
	Page    int
	Limit   int
}

type PaymentResponse struct {
	ID     string `json:"id"`
	Amount string `json:"amount"`
	Method string `json:"method"`
	PaidAt string `json:"paid_at"`
}

type SalesNoteResponse struct {
	ID         string                  `json:"id"`
	Folio      string                  `json:"folio"`
	PartyID    *string                 `json:"party_id"`
	PartyName  string                  `json:"party_name"`
	Status     string                  `json:"status"`
	Subtotal   string                  `json:"subtotal"`
	Total      string                  `json:"total"`
	PaidAmount string                  `json:"paid_amount"`
	BalanceDue string                  `json:"balance_due"`
	Note       string                  `json:"note"`
	Lines      []SalesNoteLineResponse `json:"lines,omitempty"`
	Payments   []PaymentResponse       `json:"payments,omitempty"`
	CreatedAt  string                  `json:"created_at"`
}

type PartyBalanceResponse struct {
	PartyID     string `json:"party_id"`
	PartyName   string `json:"party_name"`
	ActiveNotes int    `json:"active_notes"`
	TotalDue    string `json:"total_due"`
}

type SalesNoteLineResponse struct {
	ID          string `json:"id"`
	ProductID   *string `json:"product_id"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
}

// --- Interface ---

type SalesNoteService interface {
	CreateSalesNote(ctx context.Context, userID string, req CreateSalesNoteRequest) (SalesNoteResponse, error)
	RecordPayment(ctx context.Context, userID string, noteID string, req RecordPaymentRequest) (SalesNoteResponse, error)
	ToggleActive(ctx context.Context, userID string, noteID string) (SalesNoteResponse, error)
	GetSalesNote(ctx context.Context, id string) (SalesNoteResponse, error)
	ListSalesNotes(ctx context.Context, filter SalesNoteFilter) ([]SalesNoteResponse, int64, error)
	// PartyBalance aggregates the outstanding balance across a party's
	// active sales notes.
	PartyBalance(ctx context.Context, partyID string) (PartyBalanceResponse, error)
}

type salesNoteService struct {
	noteRepo  repository.SalesNoteRepository
	partyRepo repository.PartyRepository
	recorder  *audit.Recorder
	txManager repository.TransactionManager
	hub       *ws.Hub
	logger    *zap.Logger
}

func NewSalesNoteService(
	noteRepo repository.SalesNoteRepository,
	partyRepo repository.PartyRepository,
	recorder *audit.Recorder,
	txManager repository.TransactionManager,
	hub *ws.Hub,
	logger *zap.Logger,
) SalesNoteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &salesNoteService{
		noteRepo:  noteRepo,
		partyRepo: partyRepo,
		recorder:  recorder,
		txManager: txManager,
		hub:       hub,
		logger:    logger,
	}
}

// --- Implementation ---

// CreateSalesNote creates the note with its lines, the audit trail and the
// folio inside one transaction per attempt. A folio collision rolls the whole
// attempt back (no orphaned audit rows) and retries with a fresh folio.
func (s *salesNoteService) CreateSalesNote(ctx context.Context, userID string, req CreateSalesNoteRequest) (SalesNoteResponse, error) {
	lines, subtotal, err := buildSalesNoteLines(req.Lines)
	if err != nil {
		return SalesNoteResponse{}, err
	}
	total := subtotal

	partyID, err := s.resolveParty(ctx, req.PartyID)
	if err != nil {
		return SalesNoteResponse{}, err
	}

	uid := parseUserID(userID)

	var note model.SalesNote
	for attempt := 1; attempt <= folioMaxAttempts; attempt++ {
		folio, folioErr := s.nextFolio(ctx, "NV", int64(attempt-1))
		if folioErr != nil {
			return SalesNoteResponse{}, fmt.Errorf("failed to generate folio: %w", folioErr)
		}

		note = model.SalesNote{
			Folio:    folio,
			PartyID:  partyID,
			Status:   model.SalesNoteActive,
			Subtotal: subtotal,
			Total:    total,
			Note:     req.Note,
			Lines:    lines,
		}

		err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			if createErr := s.noteRepo.Create(txCtx, &note); createErr != nil {
				return createErr
			}
			return s.recorder.Record(txCtx, audit.Event{
				Key:            audit.EventSalesNoteCreated,
				RootEntityType: audit.EntitySalesNote,
				RootEntityID:   note.ID.String(),
				UserID:         uid,
				Meta:           map[string]any{"folio": note.Folio, "line_count": len(note.Lines)},
				Changes: []audit.Change{
					audit.Decimal(audit.KeySalesNoteSubtotal, nil, audit.DecimalPtr(subtotal)),
					audit.Decimal(audit.KeySalesNoteTotal, nil, audit.DecimalPtr(total)),
					audit.Decimal(audit.KeySalesNoteBalanceDue, nil, audit.DecimalPtr(total)),
				},
			})
		})
		if err == nil {
			break
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) && attempt < folioMaxAttempts {
			s.logger.Warn("folio collision, retrying",
				zap.String("folio", folio), zap.Int("attempt", attempt))
			continue
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return SalesNoteResponse{}, ErrFolioExhausted
		}
		return SalesNoteResponse{}, fmt.Errorf("failed to create sales note: %w", err)
	}

	s.broadcast(audit.EventSalesNoteCreated, note.ID.String())

	reloaded, err := s.noteRepo.FindByIDWithDetails(ctx, note.ID)
	if err != nil {
		return SalesNoteResponse{}, fmt.Errorf("failed to reload sales note: %w", err)
	}
	return toSalesNoteResponse(*reloaded), nil
}

// RecordPayment writes the payment and its balance-due delta audit trail in
// one transaction. The balance before is read inside the transaction before
// the payment row exists.
func (s *salesNoteService) RecordPayment(ctx context.Context, userID string, noteID string, req RecordPaymentRequest) (SalesNoteResponse, error) {
	id, err := uuid.Parse(noteID)
	if err != nil {
		return SalesNoteResponse{}, fmt.Errorf("invalid sales note id: %w", err)
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return SalesNoteResponse{}, fmt.Errorf("invalid amount: %w", err)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return SalesNoteResponse{}, fmt.Errorf("amount must be positive")
	}

	method := req.Method
	if method == "" {
		method = model.PaymentMethodCash
	}
	uid := parseUserID(userID)

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		note, findErr := s.noteRepo.FindByIDWithDetails(txCtx, id)
		if findErr != nil {
			return fmt.Errorf("sales note not found: %w", findErr)
		}
		if note.Status != model.SalesNoteActive {
			return fmt.Errorf("cannot record payment on %s sales note", note.Status)
		}

		balanceBefore := note.BalanceDue()
		if amount.GreaterThan(balanceBefore) {
			return fmt.Errorf("payment %s exceeds balance due %s",
				amount.StringFixed(2), balanceBefore.StringFixed(2))
		}

		payment := model.Payment{
			SalesNoteID: note.ID,
			Amount:      amount,
			Method:      method,
			Note:        req.Note,
			PaidAt:      time.Now(),
		}
		if createErr := s.noteRepo.CreatePayment(txCtx, &payment); createErr != nil {
			return fmt.Errorf("failed to create payment: %w", createErr)
		}

		balanceAfter := balanceBefore.Sub(amount)
		return s.recorder.Record(txCtx, audit.Event{
			Key:            audit.EventSalesNotePaymentCreated,
			RootEntityType: audit.EntitySalesNote,
			RootEntityID:   note.ID.String(),
			EntityID:       payment.ID.String(),
			UserID:         uid,
			Meta:           map[string]any{"folio": note.Folio, "method": method},
			Changes: []audit.Change{
				audit.Decimal(audit.KeySalesNoteBalanceDue,
					audit.DecimalPtr(balanceBefore), audit.DecimalPtr(balanceAfter)),
				audit.Decimal(audit.KeyPaymentAmount, nil, audit.DecimalPtr(amount)),
			},
		})
	})
	if err != nil {
		return SalesNoteResponse{}, err
	}

	s.broadcast(audit.EventSalesNotePaymentCreated, noteID)

	reloaded, err := s.noteRepo.FindByIDWithDetails(ctx, id)
	if err != nil {
		return SalesNoteResponse{}, fmt.Errorf("failed to reload sales note: %w", err)
	}
	return toSalesNoteResponse(*reloaded), nil
}

// ToggleActive flips the note between ACTIVE and INACTIVE. Deactivation
// cascades a soft delete to the note's payments; reactivation deliberately
// does NOT restore them, so stale financial state is never resurrected.
func (s *salesNoteService) ToggleActive(ctx context.Context, userID string, noteID string) (SalesNoteResponse, error) {
	id, err := uuid.Parse(noteID)
	if err != nil {
		return SalesNoteResponse{}, fmt.Errorf("invalid sales note id: %w", err)
	}
	uid := parseUserID(userID)

	var eventKey string
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		note, findErr := s.noteRepo.FindByID(txCtx, id)
		if findErr != nil {
			return fmt.Errorf("sales note not found: %w", findErr)
		}

		statusBefore := note.Status
		meta := map[string]any{"folio": note.Folio}
		if note.Status == model.SalesNoteActive {
			note.Status = model.SalesNoteInactive
			eventKey = audit.EventSalesNoteDeactivated
			removed, delErr := s.noteRepo.SoftDeletePayments(txCtx, note.ID)
			if delErr != nil {
				return fmt.Errorf("failed to remove payments: %w", delErr)
			}
			meta["payments_removed"] = removed
		} else {
			note.Status = model.SalesNoteActive
			eventKey = audit.EventSalesNoteReactivated
		}

		if updateErr := s.noteRepo.Update(txCtx, note); updateErr != nil {
			return fmt.Errorf("failed to update sales note: %w", updateErr)
		}

		return s.recorder.Record(txCtx, audit.Event{
			Key:            eventKey,
			RootEntityType: audit.EntitySalesNote,
			RootEntityID:   note.ID.String(),
			UserID:         uid,
			Meta:           meta,
			Changes: []audit.Change{
				audit.String(audit.KeySalesNoteStatus,
					audit.StringPtr(statusBefore), audit.StringPtr(note.Status)),
			},
		})
	})
	if err != nil {
		return SalesNoteResponse{}, err
	}

	s.broadcast(eventKey, noteID)

	reloaded, err := s.noteRepo.FindByIDWithDetails(ctx, id)
	if err != nil {
		return SalesNoteResponse{}, fmt.Errorf("failed to reload sales note: %w", err)
	}
	return toSalesNoteResponse(*reloaded), nil
}

func (s *salesNoteService) GetSalesNote(ctx context.Context, id string) (SalesNoteResponse, error) {
	noteID, err := uuid.Parse(id)
	if err != nil {
		return SalesNoteResponse{}, fmt.Errorf("invalid sales note id: %w", err)
	}
	note, err := s.noteRepo.FindByIDWithDetails(ctx, noteID)
	if err != nil {
		return SalesNoteResponse{}, fmt.Errorf("sales note not found: %w", err)
	}
	return toSalesNoteResponse(*note), nil
}

func (s *salesNoteService) ListSalesNotes(ctx context.Context, filter SalesNoteFilter) ([]SalesNoteResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	notes, total, err := s.noteRepo.List(ctx, repository.SalesNoteListFilter{
		Status:  filter.Status,
		PartyID: filter.PartyID,
		Folio:   filter.Folio,
		Page:    filter.Page,
		Limit:   filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch sales notes: %w", err)
	}

	result := make([]SalesNoteResponse, 0, len(notes))
	for _, note := range notes {
		result = append(result, toSalesNoteResponse(note))
	}
	return result, total, nil
}

func (s *salesNoteService) PartyBalance(ctx context.Context, partyID string) (PartyBalanceResponse, error) {
	id, err := uuid.Parse(partyID)
	if err != nil {
		return PartyBalanceResponse{}, fmt.Errorf("invalid party id: %w", err)
	}
	party, err := s.partyRepo.FindByID(ctx, id)
	if err != nil {
		return PartyBalanceResponse{}, fmt.Errorf("party not found: %w", err)
	}

	notes, err := s.noteRepo.FindActiveByParty(ctx, id)
	if err != nil {
		return PartyBalanceResponse{}, fmt.Errorf("failed to fetch party notes: %w", err)
	}

	totalDue := decimal.Zero
	for i := range notes {
		totalDue = totalDue.Add(notes[i].BalanceDue())
	}
	return PartyBalanceResponse{
		PartyID:     party.ID.String(),
		PartyName:   party.Name,
		ActiveNotes: len(notes),
		TotalDue:    totalDue.StringFixed(2),
	}, nil
}

// --- Helpers ---

// resolveParty maps an empty party id to the walk-in singleton via upsert.
func (s *salesNoteService) resolveParty(ctx context.Context, partyID string) (*uuid.UUID, error) {
	if partyID == "" {
		walkIn, err := EnsureWalkInParty(ctx, s.partyRepo)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve walk-in party: %w", err)
		}
		return &walkIn.ID, nil
	}

	parsed, err := uuid.Parse(partyID)
	if err != nil {
		return nil, fmt.Errorf("invalid party_id: %w", err)
	}
	if _, err := s.partyRepo.FindByID(ctx, parsed); err != nil {
		return nil, fmt.Errorf("party not found: %w", err)
	}
	return &parsed, nil
}

func (s *salesNoteService) nextFolio(ctx context.Context, prefix string, offset int64) (string, error) {
	datePrefix := prefix + "-" + time.Now().Format("20060102") + "-"
	count, err := s.noteRepo.CountByFolioPrefix(ctx, datePrefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%05d", datePrefix, count+1+offset), nil
}

func (s *salesNoteService) broadcast(eventKey, entityID string) {
	if s.hub != nil {
		s.hub.BroadcastEvent(eventKey, map[string]any{"id": entityID})
	}
}

func buildSalesNoteLines(reqs []SalesNoteLineRequest) ([]model.SalesNoteLine, decimal.Decimal, error) {
	lines := make([]model.SalesNoteLine, 0, len(reqs))
	subtotal := decimal.Zero
	for i, item := range reqs {
		unitPrice, err := decimal.NewFromString(item.UnitPrice)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("invalid unit_price on line %d: %w", i+1, err)
		}
		if item.Quantity <= 0 {
			return nil, decimal.Zero, fmt.Errorf("quantity on line %d must be positive", i+1)
		}

		var productID *uuid.UUID
		if item.ProductID != "" {
			parsed, parseErr := uuid.Parse(item.ProductID)
			if parseErr != nil {
				return nil, decimal.Zero, fmt.Errorf("invalid product_id on line %d: %w", i+1, parseErr)
			}
			productID = &parsed
		}

		lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		lines = append(lines, model.SalesNoteLine{
			ProductID:   productID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   unitPrice,
			LineTotal:   lineTotal,
		})
	}
	return lines, subtotal, nil
}

func parseUserID(userID string) *uuid.UUID {
	if parsed, err := uuid.Parse(userID); err == nil {
		return &parsed
	}
	return nil
}

// --- Mapping ---

func toSalesNoteResponse(note model.SalesNote) SalesNoteResponse {
	resp := SalesNoteResponse{
		ID:         note.ID.String(),
		Folio:      note.Folio,
		Status:     note.Status,
		Subtotal:   note.Subtotal.StringFixed(2),
		Total:      note.Total.StringFixed(2),
		PaidAmount: note.PaidAmount().StringFixed(2),
		BalanceDue: note.BalanceDue().StringFixed(2),
		Note:       note.Note,
		CreatedAt:  note.CreatedAt.Format(time.RFC3339),
	}
	if note.PartyID != nil {
		s := note.PartyID.String()
		resp.PartyID = &s
	}
	if note.Party != nil {
		resp.PartyName = note.Party.Name
	}
	for _, line := range note.Lines {
		lr := SalesNoteLineResponse{
			ID:          line.ID.String(),
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice.StringFixed(2),
			LineTotal:   line.LineTotal.StringFixed(2),
		}
		if line.ProductID != nil {
			s := line.ProductID.String()
			lr.ProductID = &s
		}
		resp.Lines = append(resp.Lines, lr)
	}
	for _, payment := range note.Payments {
		resp.Payments = append(resp.Payments, PaymentResponse{
			ID:     payment.ID.String(),
			Amount: payment.Amount.StringFixed(2),
			Method: payment.Method,
			PaidAt: payment.PaidAt.Format(time.RFC3339),
		})
	}
	return resp
}
