package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"arbcontrol/internal/models"
)

// GormStore is the durable backend, persisting entries as rows so a restart
// does not forget consumed nonces mid-window. Requires the postgres driver to
// be opened with TranslateError so unique violations map to
// gorm.ErrDuplicatedKey.
type GormStore struct {
	db  *gorm.DB
	now Clock
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB, clock Clock) *GormStore {
	if clock == nil {
		clock = time.Now
	}
	return &GormStore{db: db, now: clock}
}

func (s *GormStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry models.KvEntry
	err := s.db.WithContext(ctx).Where("key = ? AND expires_at > ?", key, s.now()).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry.Value, true, nil
}

func (s *GormStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := models.KvEntry{Key: key, Value: value, ExpiresAt: s.now().Add(ttl)}
	return s.db.WithContext(ctx).Save(&entry).Error
}

// SetNX relies on the primary key constraint for atomicity: the row insert is
// the check-and-set, mirroring how Redis SETNX behaves. A dead row for the
// same key is cleared first inside the same transaction.
func (s *GormStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("key = ? AND expires_at <= ?", key, s.now()).Delete(&models.KvEntry{}).Error; err != nil {
			return err
		}
		entry := models.KvEntry{Key: key, Value: value, ExpiresAt: s.now().Add(ttl)}
		if err := tx.Create(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil
			}
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}

func (s *GormStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&models.KvEntry{}).Error
}

func (s *GormStore) Len(ctx context.Context) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.KvEntry{}).Where("expires_at > ?", s.now()).Count(&count).Error
	return int(count), err
}

func (s *GormStore) PruneExpired(ctx context.Context) (int, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&models.KvEntry{})
	return int(result.RowsAffected), result.Error
}
