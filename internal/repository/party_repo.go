package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PartyListFilter narrows party queries.
type PartyListFilter struct {
	Kind   string // CUSTOMER, SUPPLIER, BOTH or empty for all
	Search string // partial match on name
	Page   int
	Limit  int
}

type PartyRepository interface {
	Create(ctx context.Context, party *model.Party) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Party, error)
	List(ctx context.Context, filter PartyListFilter) ([]model.Party, int64, error)
	Update(ctx context.Context, party *model.Party) error
	Delete(ctx context.Context, id uuid.UUID) error
	// UpsertBySystemKey inserts the party or, when a row with the same
	// system_key already exists, loads that row instead. ON CONFLICT keyed
	// by the stable system key makes singleton creation race-free.
	UpsertBySystemKey(ctx context.Context, party *model.Party) error
}

type partyRepository struct {
	db *gorm.DB
}

func NewPartyRepository(db *gorm.DB) PartyRepository {
	return &partyRepository{db: db}
}

func (r *partyRepository) Create(ctx context.Context, party *model.Party) error {
	return GetDB(ctx, r.db).Create(party).Error
}

func (r *partyRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Party, error) {
	var party model.Party
	if err := GetDB(ctx, r.db).First(&party, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &party, nil
}

func (r *partyRepository) List(ctx context.Context, filter PartyListFilter) ([]model.Party, int64, error) {
	var parties []model.Party
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.Party{})
	if filter.Kind != "" {
		query = query.Where("kind = ? OR kind = ?", filter.Kind, model.PartyKindBoth)
	}
	if filter.Search != "" {
		query = query.Where("name ILIKE ?", "%"+filter.Search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Order("name asc").Offset(offset).Limit(filter.Limit).Find(&parties).Error; err != nil {
		return nil, 0, err
	}

	return parties, total, nil
}

func (r *partyRepository) Update(ctx context.Context, party *model.Party) error {
	return GetDB(ctx, r.db).Save(party).Error
}

func (r *partyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Delete(&model.Party{}, "id = ?", id).Error
}

func (r *partyRepository) UpsertBySystemKey(ctx context.Context, party *model.Party) error {
	db := GetDB(ctx, r.db)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "system_key"}},
		DoNothing: true,
	}).Create(party).Error
	if err != nil {
		return err
	}
	// DoNothing leaves the struct untouched when the row already existed;
	// reload by system key either way so callers get the canonical row.
	return db.First(party, "system_key = ?", party.SystemKey).Error
}
