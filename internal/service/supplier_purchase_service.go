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
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreatePurchaseRequest struct {
	SupplierID string `json:"supplier_id" binding:"required"`
	Subtotal   string `json:"subtotal" binding:"required"`
	Note       string `json:"note"`
}

type PurchaseFilter struct {
	Status     string
	SupplierID string
	Page       int
	Limit      int
}

type PurchaseResponse struct {
	ID           string `json:"id"`
	Folio        string `json:"folio"`
	SupplierID   string `json:"supplier_id"`
	SupplierName string `json:"supplier_name"`
	Status       string `json:"status"`
	Subtotal     string `json:"subtotal"`
	Total        string `json:"total"`
	PaidAmount   string `json:"paid_amount"`
	BalanceDue   string `json:"balance_due"`
	Note         string `json:"note"`
	CreatedAt    string `json:"created_at"`
}

// --- Interface ---

type SupplierPurchaseService interface {
	CreatePurchase(ctx context.Context, userID string, req CreatePurchaseRequest) (PurchaseResponse, error)
	RecordPayment(ctx context.Context, userID string, purchaseID string, req RecordPaymentRequest) (PurchaseResponse, error)
	GetPurchase(ctx context.Context, id string) (PurchaseResponse, error)
	ListPurchases(ctx context.Context, filter PurchaseFilter) ([]PurchaseResponse, int64, error)
}

type supplierPurchaseService struct {
	purchaseRepo repository.SupplierPurchaseRepository
	partyRepo    repository.PartyRepository
	recorder     *audit.Recorder
	txManager    repository.TransactionManager
	logger       *zap.Logger
}

func NewSupplierPurchaseService(
	purchaseRepo repository.SupplierPurchaseRepository,
	partyRepo repository.PartyRepository,
	recorder *audit.Recorder,
	txManager repository.TransactionManager,
	logger *zap.Logger,
) SupplierPurchaseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &supplierPurchaseService{
		purchaseRepo: purchaseRepo,
		partyRepo:    partyRepo,
		recorder:     recorder,
		txManager:    txManager,
		logger:       logger,
	}
}

// --- Implementation ---

func (s *supplierPurchaseService) CreatePurchase(ctx context.Context, userID string, req CreatePurchaseRequest) (PurchaseResponse, error) {
	supplierID, err := uuid.Parse(req.SupplierID)
	if err != nil {
		return PurchaseResponse{}, fmt.Errorf("invalid supplier_id: %w", err)
	}
	supplier, err := s.partyRepo.FindByID(ctx, supplierID)
	if err != nil {
		return PurchaseResponse{}, fmt.Errorf("supplier not found: %w", err)
	}
	if supplier.Kind == model.PartyKindCustomer {
		return PurchaseResponse{}, fmt.Errorf("party %s is not a supplier", supplier.Name)
	}

	subtotal, err := decimal.NewFromString(req.Subtotal)
	if err != nil {
		return PurchaseResponse{}, fmt.Errorf("invalid subtotal: %w", err)
	}
	total := subtotal
	uid := parseUserID(userID)

	var purchase model.SupplierPurchase
	for attempt := 1; attempt <= folioMaxAttempts; attempt++ {
		folio, folioErr := s.nextFolio(ctx, int64(attempt-1))
		if folioErr != nil {
			return PurchaseResponse{}, fmt.Errorf("failed to generate folio: %w", folioErr)
		}

		purchase = model.SupplierPurchase{
			Folio:      folio,
			SupplierID: supplierID,
			Status:     model.SalesNoteActive,
			Subtotal:   subtotal,
			Total:      total,
			Note:       req.Note,
		}

		err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			if createErr := s.purchaseRepo.Create(txCtx, &purchase); createErr != nil {
				return createErr
			}
			return s.recorder.Record(txCtx, audit.Event{
				Key:            audit.EventPurchaseCreated,
				RootEntityType: audit.EntitySupplierPurchase,
				RootEntityID:   purchase.ID.String(),
				UserID:         uid,
				Meta:           map[string]any{"folio": purchase.Folio},
				Changes: []audit.Change{
					audit.Decimal(audit.KeyPurchaseTotal, nil, audit.DecimalPtr(total)),
					audit.Decimal(audit.KeyPurchaseBalanceDue, nil, audit.DecimalPtr(total)),
				},
			})
		})
		if err == nil {
			break
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) && attempt < folioMaxAttempts {
			s.logger.Warn("purchase folio collision, retrying",
				zap.String("folio", folio), zap.Int("attempt", attempt))
			continue
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return PurchaseResponse{}, ErrFolioExhausted
		}
		return PurchaseResponse{}, fmt.Errorf("failed to create purchase: %w", err)
	}

	reloaded, err := s.purchaseRepo.FindByIDWithPayments(ctx, purchase.ID)
	if err != nil {
		return PurchaseResponse{}, fmt.Errorf("failed to reload purchase: %w", err)
	}
	return toPurchaseResponse(*reloaded), nil
}

func (s *supplierPurchaseService) RecordPayment(ctx context.Context, userID string, purchaseID string, req RecordPaymentRequest) (PurchaseResponse, error) {
	id, err := uuid.Parse(purchaseID)
	if err != nil {
		return PurchaseResponse{}, fmt.Errorf("invalid purchase id: %w", err)
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return PurchaseResponse{}, fmt.Errorf("invalid amount: %w", err)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return PurchaseResponse{}, fmt.Errorf("amount must be positive")
	}

	method := req.Method
	if method == "" {
		method = model.PaymentMethodTransfer
	}
	uid := parseUserID(userID)

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		purchase, findErr := s.purchaseRepo.FindByIDWithPayments(txCtx, id)
		if findErr != nil {
			return fmt.Errorf("purchase not found: %w", findErr)
		}
		if purchase.Status != model.SalesNoteActive {
			return fmt.Errorf("cannot record payment on %s purchase", purchase.Status)
		}

		balanceBefore := purchase.BalanceDue()
		if amount.GreaterThan(balanceBefore) {
			return fmt.Errorf("payment %s exceeds balance due %s",
				amount.StringFixed(2), balanceBefore.StringFixed(2))
		}

		payment := model.SupplierPayment{
			PurchaseID: purchase.ID,
			Amount:     amount,
			Method:     method,
			Note:       req.Note,
			PaidAt:     time.Now(),
		}
		if createErr := s.purchaseRepo.CreatePayment(txCtx, &payment); createErr != nil {
			return fmt.Errorf("failed to create payment: %w", createErr)
		}

		balanceAfter := balanceBefore.Sub(amount)
		return s.recorder.Record(txCtx, audit.Event{
			Key:            audit.EventPurchasePaymentCreated,
			RootEntityType: audit.EntitySupplierPurchase,
			RootEntityID:   purchase.ID.String(),
			EntityID:       payment.ID.String(),
			UserID:         uid,
			Meta:           map[string]any{"folio": purchase.Folio, "method": method},
			Changes: []audit.Change{
				audit.Decimal(audit.KeyPurchaseBalanceDue,
					audit.DecimalPtr(balanceBefore), audit.DecimalPtr(balanceAfter)),
				audit.Decimal(audit.KeyPaymentAmount, nil, audit.DecimalPtr(amount)),
			},
		})
	})
	if err != nil {
		return PurchaseResponse{}, err
	}

	reloaded, err := s.purchaseRepo.FindByIDWithPayments(ctx, id)
	if err != nil {
		return PurchaseResponse{}, fmt.Errorf("failed to reload purchase: %w", err)
	}
	return toPurchaseResponse(*reloaded), nil
}

func (s *supplierPurchaseService) GetPurchase(ctx context.Context, id string) (PurchaseResponse, error) {
	purchaseID, err := uuid.Parse(id)
	if err != nil {
		return PurchaseResponse{}, fmt.Errorf("invalid purchase id: %w", err)
	}
	purchase, err := s.purchaseRepo.FindByIDWithPayments(ctx, purchaseID)
	if err != nil {
		return PurchaseResponse{}, fmt.Errorf("purchase not found: %w", err)
	}
	return toPurchaseResponse(*purchase), nil
}

func (s *supplierPurchaseService) ListPurchases(ctx context.Context, filter PurchaseFilter) ([]PurchaseResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	purchases, total, err := s.purchaseRepo.List(ctx, repository.PurchaseListFilter{
		Status:     filter.Status,
		SupplierID: filter.SupplierID,
		Page:       filter.Page,
		Limit:      filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch purchases: %w", err)
	}

	result := make([]PurchaseResponse, 0, len(purchases))
	for _, purchase := range purchases {
		result = append(result, toPurchaseResponse(purchase))
	}
	return result, total, nil
}

// --- Helpers ---

func (s *supplierPurchaseService) nextFolio(ctx context.Context, offset int64) (string, error) {
	datePrefix := "CPR-" + time.Now().Format("20060102") + "-"
	count, err := s.purchaseRepo.CountByFolioPrefix(ctx, datePrefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%05d", datePrefix, count+1+offset), nil
}

// --- Mapping ---

func toPurchaseResponse(purchase model.SupplierPurchase) PurchaseResponse {
	resp := PurchaseResponse{
		ID:         purchase.ID.String(),
		Folio:      purchase.Folio,
		SupplierID: purchase.SupplierID.String(),
		Status:     purchase.Status,
		Subtotal:   purchase.Subtotal.StringFixed(2),
		Total:      purchase.Total.StringFixed(2),
		PaidAmount: purchase.PaidAmount().StringFixed(2),
		BalanceDue: purchase.BalanceDue().StringFixed(2),
		Note:       purchase.Note,
		CreatedAt:  purchase.CreatedAt.Format(time.RFC3339),
	}
	if purchase.Supplier != nil {
		resp.SupplierName = purchase.Supplier.Name
	}
	return resp
}
