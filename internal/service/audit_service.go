package service

import (
	"context"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
)

// --- DTOs ---

type AuditFilter struct {
	EventKey       string
	RootEntityType string
	RootEntityID   string
	Page           int
	Limit          int
}

type AuditChangeResponse struct {
	Key           string  `json:"key"`
	Pair          string  `json:"pair"` // decimal, string or json
	DecimalBefore *string `json:"decimal_before"`
	DecimalAfter  *string `json:"decimal_after"`
	StringBefore  *string `json:"string_before"`
	StringAfter   *string `json:"string_after"`
	JSONBefore    *string `json:"json_before"`
	JSONAfter     *string `json:"json_after"`
}

type AuditLogResponse struct {
	ID             string                `json:"id"`
	EventKey       string                `json:"event_key"`
	RootEntityType string                `json:"root_entity_type"`
	RootEntityID   string                `json:"root_entity_id"`
	EntityID       string                `json:"entity_id"`
	Username       string                `json:"username"`
	Meta           string                `json:"meta"`
	Changes        []AuditChangeResponse `json:"changes"`
	CreatedAt      string                `json:"created_at"`
}

// --- Interface ---

type AuditService interface {
	GetAuditLogs(ctx context.Context, filter AuditFilter) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	auditRepo repository.AuditRepository
}

func NewAuditService(auditRepo repository.AuditRepository) AuditService {
	return &auditService{auditRepo: auditRepo}
}

// --- Implementation ---

func (s *auditService) GetAuditLogs(ctx context.Context, filter AuditFilter) ([]AuditLogResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	logs, total, err := s.auditRepo.List(ctx, repository.AuditListFilter{
		EventKey:       filter.EventKey,
		RootEntityType: filter.RootEntityType,
		RootEntityID:   filter.RootEntityID,
		Page:           filter.Page,
		Limit:          filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}

	result := make([]AuditLogResponse, 0, len(logs))
	for _, entry := range logs {
		result = append(result, toAuditLogResponse(entry))
	}
	return result, total, nil
}

// --- Mapping ---

func toAuditLogResponse(entry model.AuditLog) AuditLogResponse {
	username := "System"
	if entry.User != nil {
		username = entry.User.Username
	}

	resp := AuditLogResponse{
		ID:             entry.ID.String(),
		EventKey:       entry.EventKey,
		RootEntityType: entry.RootEntityType,
		RootEntityID:   entry.RootEntityID,
		EntityID:       entry.EntityID,
		Username:       username,
		Meta:           entry.Meta,
		CreatedAt:      entry.CreatedAt.Format(time.RFC3339),
	}
	for _, change := range entry.Changes {
		cr := AuditChangeResponse{
			Key:          change.Key,
			StringBefore: change.StringBefore,
			StringAfter:  change.StringAfter,
			JSONBefore:   change.JSONBefore,
			JSONAfter:    change.JSONAfter,
		}
		if change.DecimalBefore != nil {
			s := change.DecimalBefore.StringFixed(2)
			cr.DecimalBefore = &s
		}
		if change.DecimalAfter != nil {
			s := change.DecimalAfter.StringFixed(2)
			cr.DecimalAfter = &s
		}
		switch {
		case change.DecimalBefore != nil || change.DecimalAfter != nil:
			cr.Pair = "decimal"
		case change.StringBefore != nil || change.StringAfter != nil:
			cr.Pair = "string"
		case change.JSONBefore != nil || change.JSONAfter != nil:
			cr.Pair = "json"
		}
		resp.Changes = append(resp.Changes, cr)
	}
	return resp
}
