package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuditLog is one row per business event. Rows are append-only: they are
// never updated or deleted and form a durable history independent of soft
// deletion of the referenced entity.
type AuditLog struct {
	ID             uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	EventKey       string           `gorm:"type:varchar(100);not null;index" json:"event_key"` // e.g. "salesNote.created"
	RootEntityType string           `gorm:"type:varchar(50);not null;index" json:"root_entity_type"`
	RootEntityID   string           `gorm:"type:varchar(50);not null;index" json:"root_entity_id"`
	EntityID       string           `gorm:"type:varchar(50);index" json:"entity_id"` // the specific entity acted upon
	UserID         *uuid.UUID       `gorm:"type:uuid;index" json:"user_id"`          // nullable for system-originated events
	User           *User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Meta           string           `gorm:"type:jsonb" json:"meta"`
	Changes        []AuditLogChange `gorm:"foreignKey:AuditLogID;constraint:OnDelete:CASCADE" json:"changes"`
	CreatedAt      time.Time        `gorm:"index" json:"created_at"`
}

// AuditLogChange is one observed field delta belonging to an AuditLog. At
// most one of the decimal, string or JSON before/after pairs is populated;
// the populated pair determines how a UI renders the diff.
type AuditLogChange struct {
	ID            uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	AuditLogID    uuid.UUID        `gorm:"type:uuid;not null;index" json:"audit_log_id"`
	Key           string           `gorm:"type:varchar(100);not null;index" json:"key"` // e.g. SALES_NOTE_TOTAL
	DecimalBefore *decimal.Decimal `gorm:"type:decimal(18,4)" json:"decimal_before"`
	DecimalAfter  *decimal.Decimal `gorm:"type:decimal(18,4)" json:"decimal_after"`
	StringBefore  *string          `gorm:"type:text" json:"string_before"`
	StringAfter   *string          `gorm:"type:text" json:"string_after"`
	JSONBefore    *string          `gorm:"type:jsonb" json:"json_before"`
	JSONAfter     *string          `gorm:"type:jsonb" json:"json_after"`
	CreatedAt     time.Time        `json:"created_at"`
}
