package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend/internal/model"

	"gorm.io/gorm"
)

// GormStore persists drafts in the form_drafts table. The envelope fields
// live in dedicated columns; only the payload is opaque JSON. Database
// failures are reported as ErrStorageUnavailable so callers can degrade
// instead of surfacing a hard failure.
type GormStore struct {
	db *gorm.DB

	// MaxNamespaceBytes caps the summed payload size of the namespace; zero
	// means unlimited.
	MaxNamespaceBytes int64

	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

func (s *GormStore) Save(ctx context.Context, key string, data any, opts SaveOptions) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	now := s.now()
	row := model.FormDraft{
		Key:           KeyPrefix + key,
		Data:          string(payload),
		Timestamp:     now,
		ExpiresAt:     now.Add(opts.expiration()),
		SchemaVersion: opts.SchemaVersion,
		SizeBytes:     len(payload),
	}

	if err := s.checkQuota(ctx, row); err != nil {
		if !errors.Is(err, ErrQuotaExceeded) {
			return err
		}
		// One cleanup pass, then exactly one retry.
		if _, cleanupErr := s.CleanupExpired(ctx); cleanupErr != nil {
			return cleanupErr
		}
		if err := s.checkQuota(ctx, row); err != nil {
			return err
		}
	}

	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *GormStore) checkQuota(ctx context.Context, row model.FormDraft) error {
	if s.MaxNamespaceBytes <= 0 {
		return nil
	}
	var used int64
	err := s.db.WithContext(ctx).
		Model(&model.FormDraft{}).
		Where("key LIKE ? AND key <> ?", KeyPrefix+"%", row.Key).
		Select("COALESCE(SUM(size_bytes), 0)").
		Scan(&used).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if used+int64(row.SizeBytes) > s.MaxNamespaceBytes {
		return ErrQuotaExceeded
	}
	return nil
}

func (s *GormStore) Load(ctx context.Context, key string, opts LoadOptions) (*StoredDraft, error) {
	var row model.FormDraft
	if err := s.db.WithContext(ctx).First(&row, "key = ?", KeyPrefix+key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if row.Timestamp.IsZero() || row.ExpiresAt.IsZero() || !json.Valid([]byte(row.Data)) {
		_, _ = s.Clear(ctx, key)
		return nil, ErrCorrupted
	}

	envelope := StoredDraft{
		Data:          json.RawMessage(row.Data),
		Timestamp:     row.Timestamp,
		ExpiresAt:     row.ExpiresAt,
		SchemaVersion: row.SchemaVersion,
	}
	if envelope.IsExpired(s.now()) {
		if !opts.KeepExpired {
			_, _ = s.Clear(ctx, key)
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

func (s *GormStore) Clear(ctx context.Context, key string) (bool, error) {
	result := s.db.WithContext(ctx).Delete(&model.FormDraft{}, "key = ?", KeyPrefix+key)
	if result.Error != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *GormStore) Exists(ctx context.Context, key string, checkExpired bool) (bool, error) {
	// Only the expiry column is read; the payload body stays untouched.
	var row struct {
		ExpiresAt time.Time
	}
	err := s.db.WithContext(ctx).
		Model(&model.FormDraft{}).
		Select("expires_at").
		Where("key = ?", KeyPrefix+key).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if !checkExpired {
		return true, nil
	}
	return s.now().Before(row.ExpiresAt), nil
}

func (s *GormStore) Metadata(ctx context.Context, key string) (*Metadata, error) {
	var row model.FormDraft
	err := s.db.WithContext(ctx).
		Select("key", "timestamp", "expires_at", "size_bytes").
		First(&row, "key = ?", KeyPrefix+key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &Metadata{
		Timestamp:       row.Timestamp,
		ExpiresAt:       row.ExpiresAt,
		IsExpired:       !s.now().Before(row.ExpiresAt),
		ApproxSizeBytes: row.SizeBytes,
	}, nil
}

func (s *GormStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).
		Model(&model.FormDraft{}).
		Where("key LIKE ?", KeyPrefix+prefix+"%").
		Order("key").
		Pluck("key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	for i, k := range keys {
		keys[i] = k[len(KeyPrefix):]
	}
	return keys, nil
}

func (s *GormStore) CleanupExpired(ctx context.Context) (int, error) {
	result := s.db.WithContext(ctx).
		Delete(&model.FormDraft{}, "key LIKE ? AND expires_at <= ?", KeyPrefix+"%", s.now())
	if result.Error != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, result.Error)
	}
	return int(result.RowsAffected), nil
}

func (s *GormStore) ClearAll(ctx context.Context, prefix string) (int, error) {
	result := s.db.WithContext(ctx).
		Delete(&model.FormDraft{}, "key LIKE ?", KeyPrefix+prefix+"%")
	if result.Error != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, result.Error)
	}
	return int(result.RowsAffected), nil
}
