package ingestion

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("telemetry batch not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Batch{})
}

func (r *Repository) Create(ctx context.Context, batch *Batch) error {
	batch.CreatedAt = time.Now().UTC()
	batch.UpdatedAt = batch.CreatedAt
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *Repository) UpdateStatus(ctx context.Context, id, status, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Batch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       status,
			"error":        errMsg,
			"updated_at":   time.Now().UTC(),
			"last_attempt": time.Now().UTC(),
		}).Error
}

func (r *Repository) Get(ctx context.Context, id string) (*Batch, error) {
	var batch Batch
	result := r.db.WithContext(ctx).First(&batch, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &batch, result.Error
}

func (r *Repository) CleanupExpired(ctx context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-ttl)
	return r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&Batch{}).Error
}
