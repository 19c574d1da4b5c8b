package model

import "time"

// FormDraft persists a partially-filled form's values server-side so a user
// can resume a wizard later. Rows are keyed per document instance
// (e.g. "sales-note:new", "quotation:edit:<id>") under a fixed namespace
// prefix and expire lazily on read.
type FormDraft struct {
	Key           string    `gorm:"type:varchar(255);primaryKey" json:"key"`
	Data          string    `gorm:"type:jsonb;not null" json:"data"`
	Timestamp     time.Time `gorm:"not null" json:"timestamp"`
	ExpiresAt     time.Time `gorm:"not null;index" json:"expires_at"`
	SchemaVersion string    `gorm:"type:varchar(50)" json:"schema_version"`
	SizeBytes     int       `gorm:"not null;default:0" json:"size_bytes"`
}
