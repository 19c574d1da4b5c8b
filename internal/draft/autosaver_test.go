package draft

import (
	"context"
	"sync"
	"testing"
	"time"

	"backend/internal/form"

	"github.com/stretchr/testify/require"
)

// recordingStore counts Save calls so tests can tell a skipped save from a
// deduplicated one.
type recordingStore struct {
	*MemoryStore
	mu    sync.Mutex
	saves int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: NewMemoryStore()}
}

func (s *recordingStore) Save(ctx context.Context, key string, data any, opts SaveOptions) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.MemoryStore.Save(ctx, key, data, opts)
}

func (s *recordingStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func requireSchema(path string) form.Validator {
	return form.ValidatorFunc(func(input any) (any, []form.Issue) {
		values, _ := input.(form.Values)
		if values.Get(path) == nil {
			return input, []form.Issue{{Path: path, Message: "required"}}
		}
		return input, nil
	})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func TestNewAutosaverValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := NewAutosaver(AutosaverConfig{Form: form.NewStore(nil), Key: "k"})
	require.Error(t, err)

	_, err = NewAutosaver(AutosaverConfig{Store: NewMemoryStore(), Key: "k"})
	require.Error(t, err)

	_, err = NewAutosaver(AutosaverConfig{Store: NewMemoryStore(), Form: form.NewStore(nil)})
	require.Error(t, err)
}

func TestAutosaverDebouncedSave(t *testing.T) {
	t.Parallel()

	store := newRecordingStore()
	fs := form.NewStore(nil)
	a, err := NewAutosaver(AutosaverConfig{
		Store:    store,
		Form:     fs,
		Key:      "sales-note:u1",
		Debounce: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	defer a.Close()

	fs.Set("customer.name", "Ana")
	waitFor(t, time.Second, func() bool { return store.saveCount() == 1 })

	ok, err := store.Exists(context.Background(), "sales-note:u1", true)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, a.State().HasDraft)
}

func TestAutosaverCoalescesRapidChanges(t *testing.T) {
	t.Parallel()

	store := newRecordingStore()
	fs := form.NewStore(nil)
	a, err := NewAutosaver(AutosaverConfig{
		Store:    store,
		Form:     fs,
		Key:      "k",
		Debounce: 30 * time.Millisecond,
	})
	require.NoError(t, err)
	defer a.Close()

	// Each change lands before the previous debounce window closes, so only
	// the final state is written.
	fs.Set("a", 1)
	fs.Set("a", 2)
	fs.Set("a", 3)
	waitFor(t, time.Second, func() bool { return store.saveCount() >= 1 })
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 1, store.saveCount())
}

func TestAutosaverFingerprintDedup(t *testing.T) {
	t.Parallel()

	store := newRecordingStore()
	fs := form.NewStore(nil)
	a, err := NewAutosaver(AutosaverConfig{
		Store:    store,
		Form:     fs,
		Key:      "k",
		Debounce: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	defer a.Close()

	fs.Set("a", 1)
	waitFor(t, time.Second, func() bool { return store.saveCount() == 1 })

	// Rewriting the same value re-triggers the debounce but the identical
	// snapshot is deduplicated by fingerprint.
	fs.Set("a", 1)
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, 1, store.saveCount())

	fs.Set("a", 2)
	waitFor(t, time.Second, func() bool { return store.saveCount() == 2 })
}

func TestAutosaverSafeModeSkipsInvalidSnapshot(t *testing.T) {
	t.Parallel()

	store := newRecordingStore()
	fs := form.NewStore(nil)
	a, err := NewAutosaver(AutosaverConfig{
		Store:    store,
		Form:     fs,
		Key:      "k",
		Debounce: 5 * time.Millisecond,
		Mode:     ValidateSafe,
		Schema:   requireSchema("customer.name"),
	})
	require.NoError(t, err)
	defer a.Close()

	fs.Set("lines", []any{})
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, 0, store.saveCount())

	fs.Set("customer.name", "Ana")
	waitFor(t, time.Second, func() bool { return store.saveCount() == 1 })
}

func TestAutosaverDisabledStillSavesManually(t *testing.T) {
	t.Parallel()

	store := newRecordingStore()
	fs := form.NewStore(nil)
	a, err := NewAutosaver(AutosaverConfig{
		Store:    store,
		Form:     fs,
		Key:      "k",
		Debounce: 5 * time.Millisecond,
		Disabled: true,
	})
	require.NoError(t, err)
	defer a.Close()

	fs.Set("a", 1)
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, 0, store.saveCount())

	require.NoError(t, a.SaveNow(context.Background(), nil))
	require.Equal(t, 1, store.saveCount())
}

func TestSaveNowRequiresDirtyForm(t *testing.T) {
	t.Parallel()

	fs := form.NewStore(form.Values{"a": 1})
	a, err := NewAutosaver(AutosaverConfig{Store: NewMemoryStore(), Form: fs, Key: "k"})
	require.NoError(t, err)
	defer a.Close()

	require.ErrorIs(t, a.SaveNow(context.Background(), nil), ErrNotDirty)

	// Explicit data bypasses the dirty check.
	require.NoError(t, a.SaveNow(context.Background(), form.Values{"a": 2}))
}

func TestSaveNowStrictModeRejectsInvalidSnapshot(t *testing.T) {
	t.Parallel()

	fs := form.NewStore(nil)
	a, err := NewAutosaver(AutosaverConfig{
		Store:  NewMemoryStore(),
		Form:   fs,
		Key:    "k",
		Mode:   ValidateStrict,
		Schema: requireSchema("customer.name"),
	})
	require.NoError(t, err)
	defer a.Close()

	err = a.SaveNow(context.Background(), form.Values{"lines": []any{}})
	require.ErrorIs(t, err, ErrInvalidSnapshot)

	require.NoError(t, a.SaveNow(context.Background(), form.Values{"customer.name": "Ana"}))
}

func TestSaveNowSurfacesStorageErrors(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	store.MaxBytes = 1
	a, err := NewAutosaver(AutosaverConfig{Store: store, Form: form.NewStore(nil), Key: "k"})
	require.NoError(t, err)
	defer a.Close()

	err = a.SaveNow(context.Background(), form.Values{"a": "payload"})
	require.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestAutosaverOnSaveError(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	store.MaxBytes = 1
	fs := form.NewStore(nil)

	errCh := make(chan error, 1)
	a, err := NewAutosaver(AutosaverConfig{
		Store:       store,
		Form:        fs,
		Key:         "k",
		Debounce:    5 * time.Millisecond,
		OnSaveError: func(err error) { errCh <- err },
	})
	require.NoError(t, err)
	defer a.Close()

	fs.Set("a", "payload")
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrQuotaExceeded)
	case <-time.After(time.Second):
		t.Fatal("OnSaveError was not invoked")
	}
}

func TestLoadDraftRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newRecordingStore()
	require.NoError(t, store.Save(ctx, "k", form.Values{"customer.name": "Ana"}, SaveOptions{}))

	fs := form.NewStore(nil)
	a, err := NewAutosaver(AutosaverConfig{
		Store:    store,
		Form:     fs,
		Key:      "k",
		Debounce: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	defer a.Close()

	values, err := a.LoadDraft(ctx)
	require.NoError(t, err)
	require.Equal(t, "Ana", values.Get("customer.name"))

	state := a.State()
	require.True(t, state.HasDraft)
	require.True(t, state.HasInitialized)
	require.False(t, state.DraftTimestamp.IsZero())

	// Replaying the recovered content must not trigger a new save; the load
	// seeded the fingerprint cache.
	saved := store.saveCount()
	fs.Set("customer.name", "Ana")
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, saved, store.saveCount())
}

func TestLoadDraftAbsentIsNotAnError(t *testing.T) {
	t.Parallel()

	a, err := NewAutosaver(AutosaverConfig{Store: NewMemoryStore(), Form: form.NewStore(nil), Key: "k"})
	require.NoError(t, err)
	defer a.Close()

	values, err := a.LoadDraft(context.Background())
	require.NoError(t, err)
	require.Nil(t, values)
	require.True(t, a.State().HasInitialized)
	require.False(t, a.State().HasDraft)
}

func TestLoadDraftDeletesSchemaInvalidDraft(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, "k", form.Values{"lines": []any{}}, SaveOptions{}))

	a, err := NewAutosaver(AutosaverConfig{
		Store:  store,
		Form:   form.NewStore(nil),
		Key:    "k",
		Mode:   ValidateSafe,
		Schema: requireSchema("customer.name"),
	})
	require.NoError(t, err)
	defer a.Close()

	values, err := a.LoadDraft(ctx)
	require.NoError(t, err)
	require.Nil(t, values)

	ok, err := store.Exists(ctx, "k", false)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClearDraftResetsState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	fs := form.NewStore(nil)
	a, err := NewAutosaver(AutosaverConfig{Store: store, Form: fs, Key: "k"})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.SaveNow(ctx, form.Values{"a": 1}))
	require.True(t, a.State().HasDraft)

	require.NoError(t, a.ClearDraft(ctx))
	require.False(t, a.State().HasDraft)
	require.True(t, a.State().DraftTimestamp.IsZero())

	ok, err := store.Exists(ctx, "k", false)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCloseStopsPendingSaves(t *testing.T) {
	t.Parallel()

	store := newRecordingStore()
	fs := form.NewStore(nil)
	a, err := NewAutosaver(AutosaverConfig{
		Store:    store,
		Form:     fs,
		Key:      "k",
		Debounce: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	fs.Set("a", 1)
	a.Close()
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 0, store.saveCount())

	// After Close the form no longer notifies the saver at all.
	fs.Set("a", 2)
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 0, store.saveCount())
}
