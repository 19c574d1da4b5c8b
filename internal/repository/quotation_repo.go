package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuotationListFilter narrows quotation queries.
type QuotationListFilter struct {
	Status  string
	PartyID string
	Page    int
	Limit   int
}

type QuotationRepository interface {
	Create(ctx context.Context, quotation *model.Quotation) error
	FindByIDWithLines(ctx context.Context, id uuid.UUID) (*model.Quotation, error)
	List(ctx context.Context, filter QuotationListFilter) ([]model.Quotation, int64, error)
	Update(ctx context.Context, quotation *model.Quotation) error
	CountByFolioPrefix(ctx context.Context, prefix string) (int64, error)
}

type quotationRepository struct {
	db *gorm.DB
}

func NewQuotationRepository(db *gorm.DB) QuotationRepository {
	return &quotationRepository{db: db}
}

func (r *quotationRepository) Create(ctx context.Context, quotation *model.Quotation) error {
	return GetDB(ctx, r.db).Create(quotation).Error
}

func (r *quotationRepository) FindByIDWithLines(ctx context.Context, id uuid.UUID) (*model.Quotation, error) {
	var quotation model.Quotation
	if err := GetDB(ctx, r.db).
		Preload("Lines").
		Preload("Party").
		First(&quotation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &quotation, nil
}

func (r *quotationRepository) List(ctx context.Context, filter QuotationListFilter) ([]model.Quotation, int64, error) {
	var quotations []model.Quotation
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.Quotation{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PartyID != "" {
		query = query.Where("party_id = ?", filter.PartyID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.
		Preload("Party").
		Order("created_at desc").
		Offset(offset).
		Limit(filter.Limit).
		Find(&quotations).Error; err != nil {
		return nil, 0, err
	}

	return quotations, total, nil
}

func (r *quotationRepository) Update(ctx context.Context, quotation *model.Quotation) error {
	return GetDB(ctx, r.db).Save(quotation).Error
}

func (r *quotationRepository) CountByFolioPrefix(ctx context.Context, prefix string) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.Quotation{}).Where("folio LIKE ?", prefix+"%").Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
