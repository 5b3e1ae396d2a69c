package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/renalytics-ai/platform/pkg/common/models"
)

type measurementModel struct {
	ID           uint       `gorm:"primaryKey;autoIncrement;column:id"`
	PID          string     `gorm:"column:pid;index:idx_measurements_pid_ts,priority:1"`
	Datatime     *time.Time `gorm:"column:datatime;index:idx_measurements_pid_ts,priority:2"`
	SBP          *float64   `gorm:"column:sbp"`
	DBP          *float64   `gorm:"column:dbp"`
	DialTemp     *float64   `gorm:"column:dia_temp_value"`
	Conductivity *float64   `gorm:"column:conductivity"`
	UFRate       *float64   `gorm:"column:uf"`
	BloodFlow    *float64   `gorm:"column:blood_flow"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
}

func (measurementModel) TableName() string {
	return "machine_measurements"
}

type registrationModel struct {
	ID          uint     `gorm:"primaryKey;autoIncrement;column:id"`
	PID         string   `gorm:"column:pid;index"`
	KeyInDate   int64    `gorm:"column:keyindate"`
	WeightStart *float64 `gorm:"column:weightstart"`
	WeightEnd   *float64 `gorm:"column:weightend"`
	DryWeight   *float64 `gorm:"column:dryweight"`
}

func (registrationModel) TableName() string {
	return "registration_data"
}

type demographicModel struct {
	PID           string `gorm:"primaryKey;column:pid"`
	Gender        string `gorm:"column:gender"`
	BirthYear     int    `gorm:"column:birthday"`
	FirstDialysis int64  `gorm:"column:first_dialysis"`
	Diabetes      int    `gorm:"column:dm"`
}

func (demographicModel) TableName() string {
	return "patient_demographics"
}

// TelemetryRepository persists raw machine measurements and serves the
// reference data the enrichment joins need.
type TelemetryRepository struct {
	db *gorm.DB
}

func NewTelemetryRepository(db *gorm.DB) *TelemetryRepository {
	return &TelemetryRepository{db: db}
}

func (r *TelemetryRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&measurementModel{}, &registrationModel{}, &demographicModel{})
}

func (r *TelemetryRepository) SaveMeasurements(ctx context.Context, measurements []models.Measurement) error {
	if len(measurements) == 0 {
		return nil
	}
	rows := make([]measurementModel, 0, len(measurements))
	now := time.Now().UTC()
	for _, m := range measurements {
		rows = append(rows, measurementModel{
			PID:          m.PID,
			Datatime:     m.Timestamp,
			SBP:          m.SBP,
			DBP:          m.DBP,
			DialTemp:     m.DialTemp,
			Conductivity: m.Conductivity,
			UFRate:       m.UFRate,
			BloodFlow:    m.BloodFlow,
			CreatedAt:    now,
		})
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, 500).Error
}

// MeasurementsForPatient returns a patient's measurements ordered by
// timestamp, the order sessionization expects.
func (r *TelemetryRepository) MeasurementsForPatient(ctx context.Context, pid string) ([]models.Measurement, error) {
	var rows []measurementModel
	err := r.db.WithContext(ctx).
		Where("pid = ?", pid).
		Order("datatime ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.Measurement, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.Measurement{
			PID:          row.PID,
			Timestamp:    row.Datatime,
			SBP:          row.SBP,
			DBP:          row.DBP,
			DialTemp:     row.DialTemp,
			Conductivity: row.Conductivity,
			UFRate:       row.UFRate,
			BloodFlow:    row.BloodFlow,
		})
	}
	return out, nil
}

func (r *TelemetryRepository) SaveRegistrations(ctx context.Context, records []models.RegistrationRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]registrationModel, 0, len(records))
	for _, rec := range records {
		rows = append(rows, registrationModel{
			PID:         rec.PID,
			KeyInDate:   rec.KeyInDate,
			WeightStart: rec.WeightStart,
			WeightEnd:   rec.WeightEnd,
			DryWeight:   rec.DryWeight,
		})
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, 500).Error
}

func (r *TelemetryRepository) SaveDemographics(ctx context.Context, records []models.DemographicRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]demographicModel, 0, len(records))
	for _, rec := range records {
		rows = append(rows, demographicModel{
			PID:           rec.PID,
			Gender:        rec.Gender,
			BirthYear:     rec.BirthYear,
			FirstDialysis: rec.FirstDialysis,
			Diabetes:      rec.Diabetes,
		})
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, 500).Error
}

func (r *TelemetryRepository) Registrations(ctx context.Context, pid string) ([]models.RegistrationRecord, error) {
	var rows []registrationModel
	query := r.db.WithContext(ctx)
	if pid != "" {
		query = query.Where("pid = ?", pid)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.RegistrationRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.RegistrationRecord{
			PID:         row.PID,
			KeyInDate:   row.KeyInDate,
			WeightStart: row.WeightStart,
			WeightEnd:   row.WeightEnd,
			DryWeight:   row.DryWeight,
		})
	}
	return out, nil
}

func (r *TelemetryRepository) Demographics(ctx context.Context, pid string) ([]models.DemographicRecord, error) {
	var rows []demographicModel
	query := r.db.WithContext(ctx)
	if pid != "" {
		query = query.Where("pid = ?", pid)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.DemographicRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.DemographicRecord{
			PID:           row.PID,
			Gender:        row.Gender,
			BirthYear:     row.BirthYear,
			FirstDialysis: row.FirstDialysis,
			Diabetes:      row.Diabetes,
		})
	}
	return out, nil
}
