package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PurchaseListFilter narrows supplier purchase queries.
type PurchaseListFilter struct {
	Status     string
	SupplierID string
	Page       int
	Limit      int
}

type SupplierPurchaseRepository interface {
	Create(ctx context.Context, purchase *model.SupplierPurchase) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.SupplierPurchase, error)
	FindByIDWithPayments(ctx context.Context, id uuid.UUID) (*model.SupplierPurchase, error)
	List(ctx context.Context, filter PurchaseListFilter) ([]model.SupplierPurchase, int64, error)
	Update(ctx context.Context, purchase *model.SupplierPurchase) error
	CreatePayment(ctx context.Context, payment *model.SupplierPayment) error
	CountByFolioPrefix(ctx context.Context, prefix string) (int64, error)
}

type supplierPurchaseRepository struct {
	db *gorm.DB
}

func NewSupplierPurchaseRepository(db *gorm.DB) SupplierPurchaseRepository {
	return &supplierPurchaseRepository{db: db}
}

func (r *supplierPurchaseRepository) Create(ctx context.Context, purchase *model.SupplierPurchase) error {
	return GetDB(ctx, r.db).Create(purchase).Error
}

func (r *supplierPurchaseRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.SupplierPurchase, error) {
	var purchase model.SupplierPurchase
	if err := GetDB(ctx, r.db).First(&purchase, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (r *supplierPurchaseRepository) FindByIDWithPayments(ctx context.Context, id uuid.UUID) (*model.SupplierPurchase, error) {
	var purchase model.SupplierPurchase
	if err := GetDB(ctx, r.db).
		Preload("Payments").
		Preload("Supplier").
		First(&purchase, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (r *supplierPurchaseRepository) List(ctx context.Context, filter PurchaseListFilter) ([]model.SupplierPurchase, int64, error) {
	var purchases []model.SupplierPurchase
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.SupplierPurchase{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.SupplierID != "" {
		query = query.Where("supplier_id = ?", filter.SupplierID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.
		Preload("Supplier").
		Preload("Payments").
		Order("created_at desc").
		Offset(offset).
		Limit(filter.Limit).
		Find(&purchases).Error; err != nil {
		return nil, 0, err
	}

	return purchases, total, nil
}

func (r *supplierPurchaseRepository) Update(ctx context.Context, purchase *model.SupplierPurchase) error {
	return GetDB(ctx, r.db).Save(purchase).Error
}

func (r *supplierPurchaseRepository) CreatePayment(ctx context.Context, payment *model.SupplierPayment) error {
	return GetDB(ctx, r.db).Create(payment).Error
}

func (r *supplierPurchaseRepository) CountByFolioPrefix(ctx context.Context, prefix string) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.SupplierPurchase{}).Where("folio LIKE ?", prefix+"%").Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
