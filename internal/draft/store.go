// Package draft provides namespaced, expiring persistence for in-progress
// form values, plus the debounced autosaver that bridges a live form store to
// it. Losing a draft is a degraded-but-functional state, so every read path
// tolerates corrupt or partial data and reports typed, recoverable errors.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// KeyPrefix is the fixed namespace prefix under which every draft is stored.
// Bulk operations only ever touch keys under this prefix.
const KeyPrefix = "draft:"

const (
	// DefaultExpirationDays is applied when SaveOptions does not set one.
	DefaultExpirationDays = 7
)

var (
	ErrNotFound           = errors.New("draft: not found")
	ErrExpired            = errors.New("draft: expired")
	ErrCorrupted          = errors.New("draft: corrupted")
	ErrQuotaExceeded      = errors.New("draft: storage quota exceeded")
	ErrValidationFailed   = errors.New("draft: validation failed")
	ErrStorageUnavailable = errors.New("draft: storage unavailable")
)

// StoredDraft is the persisted envelope around a form's draft payload.
type StoredDraft struct {
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	ExpiresAt     time.Time       `json:"expires_at"`
	SchemaVersion string          `json:"schema_version,omitempty"`
}

// IsExpired reports whether the draft has passed its expiry instant. A draft
// is loadable strictly before ExpiresAt.
func (d *StoredDraft) IsExpired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}

// Metadata describes a stored draft without exposing its payload.
type Metadata struct {
	Timestamp       time.Time `json:"timestamp"`
	ExpiresAt       time.Time `json:"expires_at"`
	IsExpired       bool      `json:"is_expired"`
	ApproxSizeBytes int       `json:"approx_size_bytes"`
}

// SaveOptions controls a single Save call.
type SaveOptions struct {
	// ExpirationDays defaults to DefaultExpirationDays when <= 0.
	ExpirationDays int
	SchemaVersion  string
}

func (o SaveOptions) expiration() time.Duration {
	days := o.ExpirationDays
	if days <= 0 {
		days = DefaultExpirationDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// LoadOptions controls a single Load call.
type LoadOptions struct {
	// KeepExpired disables the default delete-on-expired-read behavior.
	KeepExpired bool
	// Validate, when set, is run against the decoded payload; failures are
	// reported as ErrValidationFailed.
	Validate func(data json.RawMessage) error
}

// Store is durable, namespaced, expiring key-value storage for draft
// envelopes. Implementations must treat a structurally invalid entry as
// ErrCorrupted and delete it as a side effect of the read, and must perform
// one expired-entry cleanup pass and retry exactly once before reporting
// ErrQuotaExceeded from Save.
type Store interface {
	Save(ctx context.Context, key string, data any, opts SaveOptions) error
	Load(ctx context.Context, key string, opts LoadOptions) (*StoredDraft, error)
	// Clear deletes idempotently and reports whether an entry existed.
	Clear(ctx context.Context, key string) (bool, error)
	// Exists probes for a live entry without deserializing the payload body.
	Exists(ctx context.Context, key string, checkExpired bool) (bool, error)
	Metadata(ctx context.Context, key string) (*Metadata, error)
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	// CleanupExpired deletes every expired draft in the namespace and
	// returns how many were removed.
	CleanupExpired(ctx context.Context) (int, error)
	// ClearAll deletes every draft under prefix ("" means all) and returns
	// how many were removed.
	ClearAll(ctx context.Context, prefix string) (int, error)
}
