package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend/internal/audit"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateQuotationRequest struct {
	PartyID    string                 `json:"party_id"`
	ValidUntil string                 `json:"valid_until"` // RFC3339, optional
	Note       string                 `json:"note"`
	Lines      []SalesNoteLineRequest `json:"lines" binding:"required,min=1,dive"`
}

type QuotationFilter struct {
	Status  string
	PartyID string
	Page    int
	Limit   int
}

type QuotationResponse struct {
	ID          string                  `json:"id"`
	Folio       string                  `json:"folio"`
	PartyID     *string                 `json:"party_id"`
	PartyName   string                  `json:"party_name"`
	Status      string                  `json:"status"`
	Subtotal    string                  `json:"subtotal"`
	Total       string                  `json:"total"`
	ValidUntil  *string                 `json:"valid_until"`
	Note        string                  `json:"note"`
	SalesNoteID *string                 `json:"sales_note_id"`
	Lines       []SalesNoteLineResponse `json:"lines,omitempty"`
	CreatedAt   string                  `json:"created_at"`
}

// --- Interface ---

type QuotationService interface {
	CreateQuotation(ctx context.Context, userID string, req CreateQuotationRequest) (QuotationResponse, error)
	GetQuotation(ctx context.Context, id string) (QuotationResponse, error)
	ListQuotations(ctx context.Context, filter QuotationFilter) ([]QuotationResponse, int64, error)
	// ConvertToSalesNote creates a sales note from an open quotation and
	// marks the quotation converted.
	ConvertToSalesNote(ctx context.Context, userID string, id string) (SalesNoteResponse, error)
}

type quotationService struct {
	quotationRepo repository.QuotationRepository
	noteService   SalesNoteService
	recorder      *audit.Recorder
	txManager     repository.TransactionManager
	logger        *zap.Logger
}

func NewQuotationService(
	quotationRepo repository.QuotationRepository,
	noteService SalesNoteService,
	recorder *audit.Recorder,
	txManager repository.TransactionManager,
	logger *zap.Logger,
) QuotationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &quotationService{
		quotationRepo: quotationRepo,
		noteService:   noteService,
		recorder:      recorder,
		txManager:     txManager,
		logger:        logger,
	}
}

// --- Implementation ---

func (s *quotationService) CreateQuotation(ctx context.Context, userID string, req CreateQuotationRequest) (QuotationResponse, error) {
	noteLines, subtotal, err := buildSalesNoteLines(req.Lines)
	if err != nil {
		return QuotationResponse{}, err
	}
	total := subtotal

	var partyID *uuid.UUID
	if req.PartyID != "" {
		parsed, parseErr := uuid.Parse(req.PartyID)
		if parseErr != nil {
			return QuotationResponse{}, fmt.Errorf("invalid party_id: %w", parseErr)
		}
		partyID = &parsed
	}

	var validUntil *time.Time
	if req.ValidUntil != "" {
		parsed, parseErr := time.Parse(time.RFC3339, req.ValidUntil)
		if parseErr != nil {
			return QuotationResponse{}, fmt.Errorf("invalid valid_until: %w", parseErr)
		}
		validUntil = &parsed
	}

	lines := make([]model.QuotationLine, 0, len(noteLines))
	for _, line := range noteLines {
		lines = append(lines, model.QuotationLine{
			ProductID:   line.ProductID,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.LineTotal,
		})
	}

	uid := parseUserID(userID)

	var quotation model.Quotation
	for attempt := 1; attempt <= folioMaxAttempts; attempt++ {
		folio, folioErr := s.nextFolio(ctx, int64(attempt-1))
		if folioErr != nil {
			return QuotationResponse{}, fmt.Errorf("failed to generate folio: %w", folioErr)
		}

		quotation = model.Quotation{
			Folio:      folio,
			PartyID:    partyID,
			Status:     model.QuotationOpen,
			Subtotal:   subtotal,
			Total:      total,
			ValidUntil: validUntil,
			Note:       req.Note,
			Lines:      lines,
		}

		err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			if createErr := s.quotationRepo.Create(txCtx, &quotation); createErr != nil {
				return createErr
			}
			return s.recorder.Record(txCtx, audit.Event{
				Key:            audit.EventQuotationCreated,
				RootEntityType: audit.EntityQuotation,
				RootEntityID:   quotation.ID.String(),
				UserID:         uid,
				Meta:           map[string]any{"folio": quotation.Folio, "line_count": len(lines)},
				Changes: []audit.Change{
					audit.Decimal(audit.KeyQuotationTotal, nil, audit.DecimalPtr(total)),
				},
			})
		})
		if err == nil {
			break
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) && attempt < folioMaxAttempts {
			s.logger.Warn("quotation folio collision, retrying",
				zap.String("folio", folio), zap.Int("attempt", attempt))
			continue
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return QuotationResponse{}, ErrFolioExhausted
		}
		return QuotationResponse{}, fmt.Errorf("failed to create quotation: %w", err)
	}

	reloaded, err := s.quotationRepo.FindByIDWithLines(ctx, quotation.ID)
	if err != nil {
		return QuotationResponse{}, fmt.Errorf("failed to reload quotation: %w", err)
	}
	return toQuotationResponse(*reloaded), nil
}

func (s *quotationService) GetQuotation(ctx context.Context, id string) (QuotationResponse, error) {
	quotationID, err := uuid.Parse(id)
	if err != nil {
		return QuotationResponse{}, fmt.Errorf("invalid quotation id: %w", err)
	}
	quotation, err := s.quotationRepo.FindByIDWithLines(ctx, quotationID)
	if err != nil {
		return QuotationResponse{}, fmt.Errorf("quotation not found: %w", err)
	}
	return toQuotationResponse(*quotation), nil
}

func (s *quotationService) ListQuotations(ctx context.Context, filter QuotationFilter) ([]QuotationResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	quotations, total, err := s.quotationRepo.List(ctx, repository.QuotationListFilter{
		Status:  filter.Status,
		PartyID: filter.PartyID,
		Page:    filter.Page,
		Limit:   filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch quotations: %w", err)
	}

	result := make([]QuotationResponse, 0, len(quotations))
	for _, quotation := range quotations {
		result = append(result, toQuotationResponse(quotation))
	}
	return result, total, nil
}

func (s *quotationService) ConvertToSalesNote(ctx context.Context, userID string, id string) (SalesNoteResponse, error) {
	quotationID, err := uuid.Parse(id)
	if err != nil {
		return SalesNoteResponse{}, fmt.Errorf("invalid quotation id: %w", err)
	}
	quotation, err := s.quotationRepo.FindByIDWithLines(ctx, quotationID)
	if err != nil {
		return SalesNoteResponse{}, fmt.Errorf("quotation not found: %w", err)
	}
	if quotation.Status != model.QuotationOpen {
		return SalesNoteResponse{}, fmt.Errorf("quotation is already %s", quotation.Status)
	}

	noteReq := CreateSalesNoteRequest{Note: quotation.Note}
	if quotation.PartyID != nil {
		noteReq.PartyID = quotation.PartyID.String()
	}
	for _, line := range quotation.Lines {
		lineReq := SalesNoteLineRequest{
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice.String(),
		}
		if line.ProductID != nil {
			lineReq.ProductID = line.ProductID.String()
		}
		noteReq.Lines = append(noteReq.Lines, lineReq)
	}

	// The note creation runs its own transaction (including folio retry and
	// audit); marking the quotation converted afterwards is an independent
	// idempotent update keyed on the created note.
	noteResp, err := s.noteService.CreateSalesNote(ctx, userID, noteReq)
	if err != nil {
		return SalesNoteResponse{}, err
	}

	noteID, _ := uuid.Parse(noteResp.ID)
	quotation.Status = model.QuotationConverted
	quotation.SalesNoteID = &noteID
	if err := s.quotationRepo.Update(ctx, quotation); err != nil {
		return SalesNoteResponse{}, fmt.Errorf("note %s created but quotation not marked converted: %w", noteResp.Folio, err)
	}
	return noteResp, nil
}

// --- Helpers ---

func (s *quotationService) nextFolio(ctx context.Context, offset int64) (string, error) {
	datePrefix := "COT-" + time.Now().Format("20060102") + "-"
	count, err := s.quotationRepo.CountByFolioPrefix(ctx, datePrefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%05d", datePrefix, count+1+offset), nil
}

// --- Mapping ---

func toQuotationResponse(quotation model.Quotation) QuotationResponse {
	resp := QuotationResponse{
		ID:        quotation.ID.String(),
		Folio:     quotation.Folio,
		Status:    quotation.Status,
		Subtotal:  quotation.Subtotal.StringFixed(2),
		Total:     quotation.Total.StringFixed(2),
		Note:      quotation.Note,
		CreatedAt: quotation.CreatedAt.Format(time.RFC3339),
	}
	if quotation.PartyID != nil {
		s := quotation.PartyID.String()
		resp.PartyID = &s
	}
	if quotation.Party != nil {
		resp.PartyName = quotation.Party.Name
	}
	if quotation.ValidUntil != nil {
		s := quotation.ValidUntil.Format(time.RFC3339)
		resp.ValidUntil = &s
	}
	if quotation.SalesNoteID != nil {
		s := quotation.SalesNoteID.String()
		resp.SalesNoteID = &s
	}
	for _, line := range quotation.Lines {
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
	return resp
}
