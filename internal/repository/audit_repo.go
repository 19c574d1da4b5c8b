package repository

import (
	"context"

	"backend/internal/model"

	"gorm.io/gorm"
)

// AuditListFilter narrows audit log queries for the history/reporting API.
type AuditListFilter struct {
	EventKey       string
	RootEntityType string
	RootEntityID   string
	Page           int
	Limit          int
}

// AuditRepository writes append-only audit rows and serves the history API.
// Create must be called with a transactional context so the audit row commits
// or aborts together with the mutation it documents.
type AuditRepository interface {
	Create(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, filter AuditListFilter) ([]model.AuditLog, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	// Changes are created through the association in the same statement batch.
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *auditRepository) List(ctx context.Context, filter AuditListFilter) ([]model.AuditLog, int64, error) {
	var logs []model.AuditLog
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.AuditLog{})
	if filter.EventKey != "" {
		query = query.Where("event_key = ?", filter.EventKey)
	}
	if filter.RootEntityType != "" {
		query = query.Where("root_entity_type = ?", filter.RootEntityType)
	}
	if filter.RootEntityID != "" {
		query = query.Where("root_entity_id = ?", filter.RootEntityID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.
		Preload("User").
		Preload("Changes").
		Order("created_at desc").
		Offset(offset).
		Limit(filter.Limit).
		Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
