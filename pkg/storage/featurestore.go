package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/renalytics-ai/platform/pkg/common/logger"
	"github.com/renalytics-ai/platform/pkg/common/models"
)

type featureRowModel struct {
	ID                   uint      `gorm:"primaryKey;autoIncrement;column:id"`
	PID                  string    `gorm:"column:pid;index"`
	SessionID            string    `gorm:"column:session_id;index:idx_feature_rows_session_bin,priority:1"`
	TimeBin              time.Time `gorm:"column:time_bin;index:idx_feature_rows_session_bin,priority:2"`
	Diabetes             int       `gorm:"column:dm"`
	AgeAtSession         int       `gorm:"column:age_at_session"`
	AvgBloodFlow         *float64  `gorm:"column:avg_blood_flow"`
	AvgConductivity      *float64  `gorm:"column:avg_conductivity"`
	AvgDBP               *float64  `gorm:"column:avg_dbp"`
	AvgDialTemp          *float64  `gorm:"column:avg_dia_temp"`
	AvgSBP               *float64  `gorm:"column:avg_sbp"`
	AvgUFRate            *float64  `gorm:"column:avg_uf_rate"`
	DialysisVintageYears float64   `gorm:"column:dialysis_vintage_years"`
	FluidToRemove        *float64  `gorm:"column:fluid_to_remove"`
	Gender               string    `gorm:"column:gender"`
	Lag1AvgSBP           *float64  `gorm:"column:lag_1_avg_sbp"`
	Lag1AvgUFRate        *float64  `gorm:"column:lag_1_avg_uf_rate"`
	MinSBP               *float64  `gorm:"column:min_sbp"`
	MinutesIntoSession   float64   `gorm:"column:minutes_into_session"`
	RollingAvgSBP        *float64  `gorm:"column:rolling_avg_sbp"`
	RollingMaxSBP        *float64  `gorm:"column:rolling_max_sbp"`
	RollingStddevSBP     *float64  `gorm:"column:rolling_stddev_sbp"`
	StddevSBP            *float64  `gorm:"column:stddev_sbp"`
	Trend1Conductivity   *float64  `gorm:"column:trend_1_conductivity"`
	Trend1SBP            *float64  `gorm:"column:trend_1_sbp"`
	Label                int       `gorm:"column:label"`
	CreatedAt            time.Time `gorm:"column:created_at"`
}

func (featureRowModel) TableName() string {
	return "feature_rows"
}

// FeatureStore persists engineered feature rows offline and materializes the
// latest row per session into Redis for low-latency inference.
type FeatureStore struct {
	db       *gorm.DB
	redis    *redis.Client
	cacheTTL time.Duration
}

func NewFeatureStore(db *gorm.DB, redisClient *redis.Client, cacheTTL time.Duration) *FeatureStore {
	return &FeatureStore{db: db, redis: redisClient, cacheTTL: cacheTTL}
}

func (f *FeatureStore) AutoMigrate() error {
	return f.db.AutoMigrate(&featureRowModel{})
}

// SaveRows replaces the stored feature rows for a session.
func (f *FeatureStore) SaveRows(ctx context.Context, sessionID string, rows []models.FeatureRow) error {
	if err := f.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&featureRowModel{}).Error; err != nil {
		return fmt.Errorf("clear session rows: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	stored := make([]featureRowModel, 0, len(rows))
	now := time.Now().UTC()
	for _, row := range rows {
		stored = append(stored, toModel(row, now))
	}
	if err := f.db.WithContext(ctx).CreateInBatches(stored, 500).Error; err != nil {
		return fmt.Errorf("save feature rows: %w", err)
	}
	return nil
}

// RowsForSession returns a session's feature rows ordered by time bin.
func (f *FeatureStore) RowsForSession(ctx context.Context, sessionID string) ([]models.FeatureRow, error) {
	var stored []featureRowModel
	err := f.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("time_bin ASC").
		Find(&stored).Error
	if err != nil {
		return nil, err
	}
	rows := make([]models.FeatureRow, 0, len(stored))
	for _, s := range stored {
		rows = append(rows, fromModel(s))
	}
	return rows, nil
}

// MaterializeHot caches the most recent feature row for a session so the
// serving path avoids a database round trip.
func (f *FeatureStore) MaterializeHot(ctx context.Context, sessionID string, row models.FeatureRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	key := hotKey(sessionID)
	if err := f.redis.Set(ctx, key, data, f.cacheTTL).Err(); err != nil {
		return fmt.Errorf("cache feature row: %w", err)
	}
	logger.Log.WithFields(map[string]interface{}{
		"key":  key,
		"size": len(data),
	}).Debug("materialized hot feature row")
	return nil
}

// HotRow returns the cached latest feature row for a session, or nil when the
// cache has no entry.
func (f *FeatureStore) HotRow(ctx context.Context, sessionID string) (*models.FeatureRow, error) {
	data, err := f.redis.Get(ctx, hotKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var row models.FeatureRow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

func hotKey(sessionID string) string {
	return fmt.Sprintf("features:session:%s", sessionID)
}

func toModel(row models.FeatureRow, now time.Time) featureRowModel {
	return featureRowModel{
		PID:                  row.PID,
		SessionID:            row.SessionID,
		TimeBin:              row.TimeBin,
		Diabetes:             row.Diabetes,
		AgeAtSession:         row.AgeAtSession,
		AvgBloodFlow:         row.AvgBloodFlow,
		AvgConductivity:      row.AvgConductivity,
		AvgDBP:               row.AvgDBP,
		AvgDialTemp:          row.AvgDialTemp,
		AvgSBP:               row.AvgSBP,
		AvgUFRate:            row.AvgUFRate,
		DialysisVintageYears: row.DialysisVintageYears,
		FluidToRemove:        row.FluidToRemove,
		Gender:               row.Gender,
		Lag1AvgSBP:           row.Lag1AvgSBP,
		Lag1AvgUFRate:        row.Lag1AvgUFRate,
		MinSBP:               row.MinSBP,
		MinutesIntoSession:   row.MinutesIntoSession,
		RollingAvgSBP:        row.RollingAvgSBP,
		RollingMaxSBP:        row.RollingMaxSBP,
		RollingStddevSBP:     row.RollingStddevSBP,
		StddevSBP:            row.StddevSBP,
		Trend1Conductivity:   row.Trend1Conductivity,
		Trend1SBP:            row.Trend1SBP,
		Label:                row.Label,
		CreatedAt:            now,
	}
}

func fromModel(s featureRowModel) models.FeatureRow {
	return models.FeatureRow{
		PID:                  s.PID,
		SessionID:            s.SessionID,
		TimeBin:              s.TimeBin,
		Diabetes:             s.Diabetes,
		AgeAtSession:         s.AgeAtSession,
		AvgBloodFlow:         s.AvgBloodFlow,
		AvgConductivity:      s.AvgConductivity,
		AvgDBP:               s.AvgDBP,
		AvgDialTemp:          s.AvgDialTemp,
		AvgSBP:               s.AvgSBP,
		AvgUFRate:            s.AvgUFRate,
		DialysisVintageYears: s.DialysisVintageYears,
		FluidToRemove:        s.FluidToRemove,
		Gender:               s.Gender,
		Lag1AvgSBP:           s.Lag1AvgSBP,
		Lag1AvgUFRate:        s.Lag1AvgUFRate,
		MinSBP:               s.MinSBP,
		MinutesIntoSession:   s.MinutesIntoSession,
		RollingAvgSBP:        s.RollingAvgSBP,
		RollingMaxSBP:        s.RollingMaxSBP,
		RollingStddevSBP:     s.RollingStddevSBP,
		StddevSBP:            s.StddevSBP,
		Trend1Conductivity:   s.Trend1Conductivity,
		Trend1SBP:            s.Trend1SBP,
		Label:                s.Label,
	}
}
