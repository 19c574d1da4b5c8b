package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SalesNoteListFilter narrows sales note queries.
type SalesNoteListFilter struct {
	Status  string // ACTIVE, INACTIVE or empty for all
	PartyID string
	Folio   string // partial match
	Page    int
	Limit   int
}

type SalesNoteRepository interface {
	Create(ctx context.Context, note *model.SalesNote) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.SalesNote, error)
	// FindByIDWithDetails preloads lines, live payments and the party.
	FindByIDWithDetails(ctx context.Context, id uuid.UUID) (*model.SalesNote, error)
	List(ctx context.Context, filter SalesNoteListFilter) ([]model.SalesNote, int64, error)
	// FindActiveByParty loads every active note of a party with its live
	// payments, for balance aggregation.
	FindActiveByParty(ctx context.Context, partyID uuid.UUID) ([]model.SalesNote, error)
	Update(ctx context.Context, note *model.SalesNote) error
	CreatePayment(ctx context.Context, payment *model.Payment) error
	// SoftDeletePayments marks every live payment of a note deleted and
	// returns how many rows were affected.
	SoftDeletePayments(ctx context.Context, noteID uuid.UUID) (int64, error)
	CountByFolioPrefix(ctx context.Context, prefix string) (int64, error)
}

type salesNoteRepository struct {
	db *gorm.DB
}

func NewSalesNoteRepository(db *gorm.DB) SalesNoteRepository {
	return &salesNoteRepository{db: db}
}

func (r *salesNoteRepository) Create(ctx context.Context, note *model.SalesNote) error {
	return GetDB(ctx, r.db).Create(note).Error
}

func (r *salesNoteRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.SalesNote, error) {
	var note model.SalesNote
	if err := GetDB(ctx, r.db).First(&note, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *salesNoteRepository) FindByIDWithDetails(ctx context.Context, id uuid.UUID) (*model.SalesNote, error) {
	var note model.SalesNote
	if err := GetDB(ctx, r.db).
		Preload("Lines").
		Preload("Payments").
		Preload("Party").
		First(&note, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *salesNoteRepository) List(ctx context.Context, filter SalesNoteListFilter) ([]model.SalesNote, int64, error) {
	var notes []model.SalesNote
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.SalesNote{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PartyID != "" {
		query = query.Where("party_id = ?", filter.PartyID)
	}
	if filter.Folio != "" {
		query = query.Where("folio ILIKE ?", "%"+filter.Folio+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.
		Preload("Party").
		Preload("Payments").
		Order("created_at desc").
		Offset(offset).
		Limit(filter.Limit).
		Find(&notes).Error; err != nil {
		return nil, 0, err
	}

	return notes, total, nil
}

func (r *salesNoteRepository) FindActiveByParty(ctx context.Context, partyID uuid.UUID) ([]model.SalesNote, error) {
	var notes []model.SalesNote
	if err := GetDB(ctx, r.db).
		Preload("Payments").
		Where("party_id = ? AND status = ?", partyID, model.SalesNoteActive).
		Find(&notes).Error; err != nil {
		return nil, err
	}
	return notes, nil
}

func (r *salesNoteRepository) Update(ctx context.Context, note *model.SalesNote) error {
	return GetDB(ctx, r.db).Save(note).Error
}

func (r *salesNoteRepository) CreatePayment(ctx context.Context, payment *model.Payment) error {
	return GetDB(ctx, r.db).Create(payment).Error
}

func (r *salesNoteRepository) SoftDeletePayments(ctx context.Context, noteID uuid.UUID) (int64, error) {
	result := GetDB(ctx, r.db).Delete(&model.Payment{}, "sales_note_id = ?", noteID)
	return result.RowsAffected, result.Error
}

func (r *salesNoteRepository) CountByFolioPrefix(ctx context.Context, prefix string) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.SalesNote{}).Where("folio LIKE ?", prefix+"%").Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
