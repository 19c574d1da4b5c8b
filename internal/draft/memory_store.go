package draft

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used in tests and as a fallback when no
// database is available. Entries are kept as raw envelope bytes so corrupt
// data behaves exactly like it would in a real backing store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]byte

	// MaxBytes caps the total namespace size; zero means unlimited.
	MaxBytes int

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]byte),
		now:     time.Now,
	}
}

func (s *MemoryStore) Save(_ context.Context, key string, data any, opts SaveOptions) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	now := s.now()
	envelope, err := json.Marshal(StoredDraft{
		Data:          payload,
		Timestamp:     now,
		ExpiresAt:     now.Add(opts.expiration()),
		SchemaVersion: opts.SchemaVersion,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fitsLocked(key, len(envelope)) {
		// One cleanup pass, then exactly one retry.
		s.cleanupExpiredLocked(now)
		if !s.fitsLocked(key, len(envelope)) {
			return ErrQuotaExceeded
		}
	}
	s.entries[KeyPrefix+key] = envelope
	return nil
}

func (s *MemoryStore) fitsLocked(key string, size int) bool {
	if s.MaxBytes <= 0 {
		return true
	}
	total := size
	for k, v := range s.entries {
		if k == KeyPrefix+key {
			continue
		}
		total += len(v)
	}
	return total <= s.MaxBytes
}

func (s *MemoryStore) Load(_ context.Context, key string, opts LoadOptions) (*StoredDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.entries[KeyPrefix+key]
	if !ok {
		return nil, ErrNotFound
	}

	var envelope StoredDraft
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Timestamp.IsZero() || envelope.ExpiresAt.IsZero() {
		delete(s.entries, KeyPrefix+key)
		return nil, ErrCorrupted
	}
	if envelope.IsExpired(s.now()) {
		if !opts.KeepExpired {
			delete(s.entries, KeyPrefix+key)
		}
		return nil, ErrExpired
	}
	if opts.Validate != nil {
		if err := opts.Validate(envelope.Data); err != nil {
			return nil, ErrValidationFailed
		}
	}
	return &envelope, nil
}

func (s *MemoryStore) Clear(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.entries[KeyPrefix+key]
	delete(s.entries, KeyPrefix+key)
	return existed, nil
}

func (s *MemoryStore) Exists(_ context.Context, key string, checkExpired bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.entries[KeyPrefix+key]
	if !ok {
		return false, nil
	}
	if !checkExpired {
		return true, nil
	}
	// Only the envelope expiry field is needed here.
	var probe struct {
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.ExpiresAt.IsZero() {
		return false, nil
	}
	return s.now().Before(probe.ExpiresAt), nil
}

func (s *MemoryStore) Metadata(_ context.Context, key string) (*Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.entries[KeyPrefix+key]
	if !ok {
		return nil, ErrNotFound
	}
	var envelope StoredDraft
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.ExpiresAt.IsZero() {
		return nil, ErrCorrupted
	}
	return &Metadata{
		Timestamp:       envelope.Timestamp,
		ExpiresAt:       envelope.ExpiresAt,
		IsExpired:       envelope.IsExpired(s.now()),
		ApproxSizeBytes: len(raw),
	}, nil
}

func (s *MemoryStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for k := range s.entries {
		key := strings.TrimPrefix(k, KeyPrefix)
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) CleanupExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupExpiredLocked(s.now()), nil
}

func (s *MemoryStore) cleanupExpiredLocked(now time.Time) int {
	removed := 0
	for k, raw := range s.entries {
		var probe struct {
			ExpiresAt time.Time `json:"expires_at"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			continue
		}
		if !probe.ExpiresAt.IsZero() && !now.Before(probe.ExpiresAt) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) ClearAll(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k := range s.entries {
		key := strings.TrimPrefix(k, KeyPrefix)
		if prefix == "" || strings.HasPrefix(key, prefix) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed, nil
}
