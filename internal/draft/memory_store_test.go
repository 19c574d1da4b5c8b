package draft

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestMemoryStoreSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	data := map[string]any{"customer.name": "Ana", "lines": []any{}}
	require.NoError(t, s.Save(ctx, "sales-note:u1", data, SaveOptions{SchemaVersion: "v2"}))

	stored, err := s.Load(ctx, "sales-note:u1", LoadOptions{})
	require.NoError(t, err)
	require.Equal(t, "v2", stored.SchemaVersion)
	require.False(t, stored.Timestamp.IsZero())
	require.Equal(t, stored.Timestamp.Add(DefaultExpirationDays*24*time.Hour), stored.ExpiresAt)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(stored.Data, &decoded))
	require.Equal(t, "Ana", decoded["customer.name"])
}

func TestMemoryStoreLoadMissing(t *testing.T) {
	t.Parallel()

	_, err := NewMemoryStore().Load(context.Background(), "nope", LoadOptions{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreExpiredDraftIsDeletedOnRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	s.now = fixedClock(base)

	require.NoError(t, s.Save(ctx, "k", map[string]any{"a": 1}, SaveOptions{ExpirationDays: 1}))

	// Exactly at the expiry instant the draft is already expired.
	s.now = fixedClock(base.Add(24 * time.Hour))
	_, err := s.Load(ctx, "k", LoadOptions{})
	require.ErrorIs(t, err, ErrExpired)

	// The expired entry was removed by the read.
	_, err = s.Load(ctx, "k", LoadOptions{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreKeepExpired(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	s.now = fixedClock(base)

	require.NoError(t, s.Save(ctx, "k", map[string]any{"a": 1}, SaveOptions{ExpirationDays: 1}))
	s.now = fixedClock(base.Add(48 * time.Hour))

	_, err := s.Load(ctx, "k", LoadOptions{KeepExpired: true})
	require.ErrorIs(t, err, ErrExpired)

	// Still present for inspection.
	meta, err := s.Metadata(ctx, "k")
	require.NoError(t, err)
	require.True(t, meta.IsExpired)
}

func TestMemoryStoreCorruptEntryIsDeletedOnRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	s.entries[KeyPrefix+"bad"] = []byte("{not json")

	_, err := s.Load(ctx, "bad", LoadOptions{})
	require.ErrorIs(t, err, ErrCorrupted)

	_, err = s.Load(ctx, "bad", LoadOptions{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreEnvelopeWithoutTimestampsIsCorrupt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	s.entries[KeyPrefix+"bad"] = []byte(`{"data":{"a":1}}`)

	_, err := s.Load(ctx, "bad", LoadOptions{})
	require.ErrorIs(t, err, ErrCorrupted)
}

func TestMemoryStoreLoadValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Save(ctx, "k", map[string]any{"a": 1}, SaveOptions{}))

	_, err := s.Load(ctx, "k", LoadOptions{
		Validate: func(data json.RawMessage) error {
			return json.Unmarshal(data, &struct{}{})
		},
	})
	require.NoError(t, err)

	_, err = s.Load(ctx, "k", LoadOptions{
		Validate: func(json.RawMessage) error {
			return context.Canceled
		},
	})
	require.ErrorIs(t, err, ErrValidationFailed)
}

func TestMemoryStoreQuotaCleanupThenRetry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	s.now = fixedClock(base)

	// Fill the namespace with a short-lived draft, then shrink the quota so
	// nothing else fits.
	require.NoError(t, s.Save(ctx, "old", map[string]any{"blob": "xxxxxxxxxxxxxxxx"}, SaveOptions{ExpirationDays: 1}))
	s.MaxBytes = len(s.entries[KeyPrefix+"old"]) + 32

	// While "old" is live the save fails even after the cleanup pass.
	err := s.Save(ctx, "new", map[string]any{"blob": "yyyyyyyyyyyyyyyy"}, SaveOptions{})
	require.ErrorIs(t, err, ErrQuotaExceeded)

	// Once "old" expires, the cleanup pass inside Save frees the space.
	s.now = fixedClock(base.Add(48 * time.Hour))
	require.NoError(t, s.Save(ctx, "new", map[string]any{"blob": "yyyyyyyyyyyyyyyy"}, SaveOptions{}))

	_, err = s.Load(ctx, "old", LoadOptions{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreClearIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Save(ctx, "k", map[string]any{"a": 1}, SaveOptions{}))

	existed, err := s.Clear(ctx, "k")
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = s.Clear(ctx, "k")
	require.NoError(t, err)
	require.False(t, existed)
}

func TestMemoryStoreExists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	s.now = fixedClock(base)

	ok, err := s.Exists(ctx, "k", true)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Save(ctx, "k", map[string]any{"a": 1}, SaveOptions{ExpirationDays: 1}))

	ok, err = s.Exists(ctx, "k", true)
	require.NoError(t, err)
	require.True(t, ok)

	// Expired entries report absent when expiry is checked, present when not.
	s.now = fixedClock(base.Add(48 * time.Hour))
	ok, err = s.Exists(ctx, "k", true)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.Exists(ctx, "k", false)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryStoreListKeysAndClearAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Save(ctx, "sales-note:u1", map[string]any{}, SaveOptions{}))
	require.NoError(t, s.Save(ctx, "sales-note:u2", map[string]any{}, SaveOptions{}))
	require.NoError(t, s.Save(ctx, "quotation:u1", map[string]any{}, SaveOptions{}))

	keys, err := s.ListKeys(ctx, "sales-note:")
	require.NoError(t, err)
	require.Equal(t, []string{"sales-note:u1", "sales-note:u2"}, keys)

	removed, err := s.ClearAll(ctx, "sales-note:")
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	keys, err = s.ListKeys(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"quotation:u1"}, keys)
}

func TestMemoryStoreCleanupExpiredCount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	s.now = fixedClock(base)

	require.NoError(t, s.Save(ctx, "a", map[string]any{}, SaveOptions{ExpirationDays: 1}))
	require.NoError(t, s.Save(ctx, "b", map[string]any{}, SaveOptions{ExpirationDays: 10}))

	s.now = fixedClock(base.Add(5 * 24 * time.Hour))
	removed, err := s.CleanupExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = s.Load(ctx, "b", LoadOptions{})
	require.NoError(t, err)
}
