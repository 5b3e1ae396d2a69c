package serving

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PredictionLog records one scored request for serving analytics.
type PredictionLog struct {
	ID         uuid.UUID         `gorm:"primaryKey;column:id"`
	SessionID  string            `gorm:"column:session_id;index"`
	EndpointID string            `gorm:"column:endpoint_id"`
	Request    datatypes.JSONMap `gorm:"column:request"`
	Response   datatypes.JSONMap `gorm:"column:response"`
	Instances  int               `gorm:"column:instances"`
	LatencyMs  float64           `gorm:"column:latency_ms"`
	CreatedAt  time.Time         `gorm:"column:created_at"`
}

func (PredictionLog) TableName() string {
	return "prediction_logs"
}

// Repository persists prediction logs.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&PredictionLog{})
}

func (r *Repository) Record(ctx context.Context, sessionID, endpointID string, instances int, predictions []map[string]interface{}, latency time.Duration) error {
	log := PredictionLog{
		ID:         uuid.New(),
		SessionID:  sessionID,
		EndpointID: endpointID,
		Request:    datatypes.JSONMap{"instances": instances},
		Response:   datatypes.JSONMap{"predictions": predictions},
		Instances:  instances,
		LatencyMs:  float64(latency.Microseconds()) / 1000.0,
		CreatedAt:  time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Create(&log).Error
}

// Recent returns the newest prediction logs, optionally filtered by session.
func (r *Repository) Recent(ctx context.Context, sessionID string, limit int) ([]PredictionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if sessionID != "" {
		query = query.Where("session_id = ?", sessionID)
	}
	var logs []PredictionLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
