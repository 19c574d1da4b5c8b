package draft

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"backend/internal/form"

	"go.uber.org/zap"
)

// ValidationMode controls whether a snapshot is schema-checked before saving.
type ValidationMode string

const (
	// ValidateNone saves the raw snapshot.
	ValidateNone ValidationMode = "none"
	// ValidateSafe silently skips the save when the snapshot is invalid.
	// This is the right mode for continuous autosave.
	ValidateSafe ValidationMode = "safe"
	// ValidateStrict fails the save when the snapshot is invalid. Intended
	// for manual saves only.
	ValidateStrict ValidationMode = "strict"
)

// ErrNotDirty is returned by SaveNow when called without explicit data on a
// pristine form.
var ErrNotDirty = errors.New("draft: form has no dirty fields")

// ErrInvalidSnapshot is returned by SaveNow in strict mode when the snapshot
// fails schema validation.
var ErrInvalidSnapshot = errors.New("draft: snapshot failed validation")

// AutosaverConfig wires an Autosaver to its store, form and policies.
type AutosaverConfig struct {
	Store Store
	Form  *form.Store
	// Key identifies the draft, e.g. "sales-note:new".
	Key string
	// Debounce defaults to one second.
	Debounce time.Duration
	// Disabled turns off change-triggered saving; SaveNow still works.
	Disabled bool
	Mode     ValidationMode
	// Schema validates snapshots for ValidateSafe/ValidateStrict and drafts
	// recovered by LoadDraft.
	Schema         form.Validator
	ExpirationDays int
	SchemaVersion  string
	// OnSaveError observes storage-layer failures; they are never raised to
	// the caller of a debounced save.
	OnSaveError func(error)
	Logger      *zap.Logger
}

// Autosaver bridges a live form store to draft storage. It debounces change
// notifications, deduplicates identical content by fingerprint, and never
// runs two saves for the same key concurrently.
type Autosaver struct {
	cfg    AutosaverConfig
	logger *zap.Logger

	mu              sync.Mutex
	timer           *time.Timer
	lastFingerprint string
	saving          bool
	closed          bool

	hasDraft       bool
	lastSaved      time.Time
	draftTimestamp time.Time
	hasInitialized bool

	unsubscribe func()
}

// NewAutosaver subscribes to the form store once and returns a ready
// autosaver. Call Close when the owning flow goes away so no write can land
// after unmount.
func NewAutosaver(cfg AutosaverConfig) (*Autosaver, error) {
	if cfg.Store == nil || cfg.Form == nil {
		return nil, errors.New("draft: store and form are required")
	}
	if cfg.Key == "" {
		return nil, errors.New("draft: key is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = time.Second
	}
	if cfg.Mode == "" {
		cfg.Mode = ValidateNone
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Autosaver{cfg: cfg, logger: logger}
	a.unsubscribe = cfg.Form.Subscribe(a.onValuesChanged)
	return a, nil
}

// Close cancels any pending debounce timer and detaches from the form store.
func (a *Autosaver) Close() {
	a.mu.Lock()
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	unsub := a.unsubscribe
	a.unsubscribe = nil
	a.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (a *Autosaver) onValuesChanged(form.Values) {
	if a.cfg.Disabled {
		return
	}
	if !a.cfg.Form.IsDirty() {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.cfg.Debounce, a.debouncedSave)
}

func (a *Autosaver) debouncedSave() {
	a.mu.Lock()
	if a.closed || a.saving {
		// A save in flight suppresses this attempt entirely; the next form
		// change restarts the debounce.
		a.mu.Unlock()
		return
	}
	a.saving = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.saving = false
		a.mu.Unlock()
	}()

	snapshot := a.cfg.Form.Snapshot()
	if a.cfg.Mode != ValidateNone && a.cfg.Schema != nil {
		if _, issues := a.cfg.Schema.Validate(snapshot); len(issues) > 0 {
			a.logger.Debug("autosave skipped: snapshot invalid",
				zap.String("key", a.cfg.Key), zap.Int("issues", len(issues)))
			return
		}
	}
	a.save(context.Background(), snapshot, false)
}

// save serializes, deduplicates by fingerprint and writes. Serialization
// failures abort silently; storage failures go to OnSaveError.
func (a *Autosaver) save(ctx context.Context, snapshot form.Values, force bool) {
	fp, err := fingerprint(snapshot)
	if err != nil {
		a.logger.Warn("autosave aborted: snapshot not serializable",
			zap.String("key", a.cfg.Key), zap.Error(err))
		return
	}

	a.mu.Lock()
	if !force && fp == a.lastFingerprint {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	err = a.cfg.Store.Save(ctx, a.cfg.Key, snapshot, SaveOptions{
		ExpirationDays: a.cfg.ExpirationDays,
		SchemaVersion:  a.cfg.SchemaVersion,
	})
	if err != nil {
		a.logger.Warn("autosave failed", zap.String("key", a.cfg.Key), zap.Error(err))
		if a.cfg.OnSaveError != nil {
			a.cfg.OnSaveError(err)
		}
		return
	}

	now := time.Now()
	a.mu.Lock()
	a.lastFingerprint = fp
	a.hasDraft = true
	a.lastSaved = now
	a.draftTimestamp = now
	a.mu.Unlock()
}

// SaveNow bypasses the debounce. With nil data it snapshots the form and
// requires at least one dirty field, so a pristine form is never persisted.
// In strict mode an invalid snapshot returns ErrInvalidSnapshot.
func (a *Autosaver) SaveNow(ctx context.Context, data form.Values) error {
	snapshot := data
	if snapshot == nil {
		if !a.cfg.Form.IsDirty() {
			return ErrNotDirty
		}
		snapshot = a.cfg.Form.Snapshot()
	}

	if a.cfg.Mode == ValidateStrict && a.cfg.Schema != nil {
		if _, issues := a.cfg.Schema.Validate(snapshot); len(issues) > 0 {
			return ErrInvalidSnapshot
		}
	}

	fp, err := fingerprint(snapshot)
	if err != nil {
		return err
	}
	if err := a.cfg.Store.Save(ctx, a.cfg.Key, snapshot, SaveOptions{
		ExpirationDays: a.cfg.ExpirationDays,
		SchemaVersion:  a.cfg.SchemaVersion,
	}); err != nil {
		return err
	}

	now := time.Now()
	a.mu.Lock()
	a.lastFingerprint = fp
	a.hasDraft = true
	a.lastSaved = now
	a.draftTimestamp = now
	a.mu.Unlock()
	return nil
}

// LoadDraft recovers the stored draft. A schema-invalid draft is deleted and
// reported as absent. The loaded payload seeds the fingerprint cache so a
// change notification replaying the same content does not trigger a spurious
// autosave.
func (a *Autosaver) LoadDraft(ctx context.Context) (form.Values, error) {
	defer func() {
		a.mu.Lock()
		a.hasInitialized = true
		a.mu.Unlock()
	}()

	envelope, err := a.cfg.Store.Load(ctx, a.cfg.Key, LoadOptions{})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired) || errors.Is(err, ErrCorrupted) {
			return nil, nil
		}
		return nil, err
	}

	var values form.Values
	if err := json.Unmarshal(envelope.Data, &values); err != nil {
		_, _ = a.cfg.Store.Clear(ctx, a.cfg.Key)
		return nil, nil
	}
	if a.cfg.Schema != nil {
		if _, issues := a.cfg.Schema.Validate(values); len(issues) > 0 {
			_, _ = a.cfg.Store.Clear(ctx, a.cfg.Key)
			return nil, nil
		}
	}

	fp, err := fingerprint(values)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.lastFingerprint = fp
	a.hasDraft = true
	a.draftTimestamp = envelope.Timestamp
	a.mu.Unlock()
	return values, nil
}

// ClearDraft deletes the stored draft and resets the fingerprint cache.
func (a *Autosaver) ClearDraft(ctx context.Context) error {
	if _, err := a.cfg.Store.Clear(ctx, a.cfg.Key); err != nil {
		return err
	}
	a.mu.Lock()
	a.lastFingerprint = ""
	a.hasDraft = false
	a.draftTimestamp = time.Time{}
	a.mu.Unlock()
	return nil
}

// State is the observable autosaver state for UI banners and recovery
// prompts.
type State struct {
	HasDraft       bool      `json:"has_draft"`
	DraftTimestamp time.Time `json:"draft_timestamp"`
	IsAutoSaving   bool      `json:"is_auto_saving"`
	LastSaved      time.Time `json:"last_saved"`
	HasInitialized bool      `json:"has_initialized"`
}

func (a *Autosaver) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return State{
		HasDraft:       a.hasDraft,
		DraftTimestamp: a.draftTimestamp,
		IsAutoSaving:   a.saving,
		LastSaved:      a.lastSaved,
		HasInitialized: a.hasInitialized,
	}
}

// fingerprint produces a stable content hash. json.Marshal writes map keys
// in sorted order, so equal logical content always hashes identically.
func fingerprint(values form.Values) (string, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
