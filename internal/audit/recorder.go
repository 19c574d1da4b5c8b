package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is one business mutation to be recorded together with its observed
// field deltas.
type Event struct {
	Key            string
	RootEntityType string
	RootEntityID   string
	// EntityID is the specific entity acted upon; defaults to RootEntityID.
	EntityID string
	UserID   *uuid.UUID
	Meta     any
	Changes  []Change
}

// Recorder persists audit events. Record must run with a transactional
// context (repository.TransactionManager) so the audit trail commits or
// aborts together with the mutation it documents; a failed audit write aborts
// the whole transaction.
type Recorder struct {
	repo   repository.AuditRepository
	logger *zap.Logger
}

func NewRecorder(repo repository.AuditRepository, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{repo: repo, logger: logger}
}

// Record validates and writes one AuditLog row with its change rows.
func (r *Recorder) Record(ctx context.Context, event Event) error {
	if event.Key == "" {
		return fmt.Errorf("audit: event key is required")
	}
	if event.RootEntityType == "" || event.RootEntityID == "" {
		return fmt.Errorf("audit: root entity reference is required for %s", event.Key)
	}

	entityID := event.EntityID
	if entityID == "" {
		entityID = event.RootEntityID
	}

	meta := ""
	if event.Meta != nil {
		raw, err := json.Marshal(event.Meta)
		if err != nil {
			return fmt.Errorf("audit: marshal meta for %s: %w", event.Key, err)
		}
		meta = string(raw)
	}

	changes := make([]model.AuditLogChange, 0, len(event.Changes))
	for _, change := range event.Changes {
		if err := validateChange(change); err != nil {
			return err
		}
		changes = append(changes, model.AuditLogChange{
			Key:           change.Key,
			DecimalBefore: change.DecimalBefore,
			DecimalAfter:  change.DecimalAfter,
			StringBefore:  change.StringBefore,
			StringAfter:   change.StringAfter,
			JSONBefore:    change.JSONBefore,
			JSONAfter:     change.JSONAfter,
		})
	}

	entry := &model.AuditLog{
		EventKey:       event.Key,
		RootEntityType: event.RootEntityType,
		RootEntityID:   event.RootEntityID,
		EntityID:       entityID,
		UserID:         event.UserID,
		Meta:           meta,
		Changes:        changes,
	}
	if err := r.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("audit: write %s: %w", event.Key, err)
	}

	r.logger.Debug("audit event recorded",
		zap.String("event_key", event.Key),
		zap.String("root_entity_id", event.RootEntityID),
		zap.Int("changes", len(changes)))
	return nil
}

// validateChange enforces the exactly-one-populated-pair discriminant.
func validateChange(change Change) error {
	if change.Key == "" {
		return fmt.Errorf("audit: change key is required")
	}
	pairs := 0
	if change.DecimalBefore != nil || change.DecimalAfter != nil {
		pairs++
	}
	if change.StringBefore != nil || change.StringAfter != nil {
		pairs++
	}
	if change.JSONBefore != nil || change.JSONAfter != nil {
		pairs++
	}
	if pairs != 1 {
		return fmt.Errorf("audit: change %s must populate exactly one value pair, got %d", change.Key, pairs)
	}
	return nil
}
