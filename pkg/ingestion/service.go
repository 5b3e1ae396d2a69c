package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/renalytics-ai/platform/pkg/common/kafka"
	"github.com/renalytics-ai/platform/pkg/common/logger"
	"github.com/renalytics-ai/platform/pkg/common/models"
	"github.com/renalytics-ai/platform/pkg/observability/metrics"
	"github.com/renalytics-ai/platform/pkg/storage"
)

// Service accepts telemetry uploads, persists the measurements, and announces
// each stored batch on the telemetry topic so downstream consumers can react.
type Service struct {
	validator *Validator
	repo      *Repository
	telemetry *storage.TelemetryRepository
	producer  *kafka.Producer
	statusTTL time.Duration
}

func NewService(validator *Validator, repo *Repository, telemetry *storage.TelemetryRepository, producer *kafka.Producer, ttl time.Duration) *Service {
	return &Service{
		validator: validator,
		repo:      repo,
		telemetry: telemetry,
		producer:  producer,
		statusTTL: ttl,
	}
}

func (s *Service) Process(ctx context.Context, req BatchRequest) (*Batch, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	batch := &Batch{
		ID:          uuid.New().String(),
		Source:      req.Source,
		PID:         req.PID,
		RecordCount: len(req.Records),
		Status:      StatusAccepted,
	}
	if err := s.repo.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("persisting batch record: %w", err)
	}
	metrics.BatchAccepted(len(req.Records))

	if err := s.telemetry.SaveMeasurements(ctx, req.Measurements()); err != nil {
		_ = s.repo.UpdateStatus(ctx, batch.ID, StatusFailed, err.Error())
		metrics.BatchFailed()
		return nil, fmt.Errorf("storing measurements: %w", err)
	}
	_ = s.repo.UpdateStatus(ctx, batch.ID, StatusStored, "")
	batch.Status = StatusStored
	metrics.BatchStored()

	if s.producer != nil {
		payload := map[string]interface{}{
			"batch_id":     batch.ID,
			"pid":          req.PID,
			"source":       req.Source,
			"record_count": len(req.Records),
			"received_at":  time.Now().UTC(),
		}
		if err := s.producer.PublishEvent(ctx, "telemetry.batch.stored", req.Source, payload); err != nil {
			// The measurements are already durable; publication failure only
			// delays downstream feature refresh.
			logger.Log.WithError(err).Warn("failed to publish telemetry event")
		} else {
			_ = s.repo.UpdateStatus(ctx, batch.ID, StatusPublished, "")
			batch.Status = StatusPublished
		}
	}

	return batch, nil
}

func (s *Service) Status(ctx context.Context, id string) (*Batch, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Measurements(ctx context.Context, pid string) ([]models.Measurement, error) {
	return s.telemetry.MeasurementsForPatient(ctx, pid)
}

func (s *Service) SaveRegistrations(ctx context.Context, records []models.RegistrationRecord) error {
	return s.telemetry.SaveRegistrations(ctx, records)
}

func (s *Service) SaveDemographics(ctx context.Context, records []models.DemographicRecord) error {
	return s.telemetry.SaveDemographics(ctx, records)
}

func (s *Service) Cleanup(ctx context.Context) error {
	return s.repo.CleanupExpired(ctx, s.statusTTL)
}
