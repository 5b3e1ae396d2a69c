// Package featurizer turns stored telemetry into model-ready feature rows:
// sessionize, enrich, aggregate, persist, and materialize the hot path.
package featurizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/renalytics-ai/platform/pkg/common/config"
	"github.com/renalytics-ai/platform/pkg/common/logger"
	"github.com/renalytics-ai/platform/pkg/common/models"
	"github.com/renalytics-ai/platform/pkg/features/aggregate"
	"github.com/renalytics-ai/platform/pkg/features/enrich"
	"github.com/renalytics-ai/platform/pkg/features/payload"
	"github.com/renalytics-ai/platform/pkg/features/session"
	"github.com/renalytics-ai/platform/pkg/observability/metrics"
	"github.com/renalytics-ai/platform/pkg/storage"
)

var ErrNoFeatures = errors.New("no feature rows for session")

type Service struct {
	telemetry *storage.TelemetryRepository
	store     *storage.FeatureStore
	params    config.PipelineParams
}

func NewService(telemetry *storage.TelemetryRepository, store *storage.FeatureStore, params config.PipelineParams) *Service {
	return &Service{telemetry: telemetry, store: store, params: params}
}

// BuildForPatient runs the full in-process feature pipeline for one patient's
// stored telemetry and persists the resulting rows per session. The latest
// row of each session is also pushed to the hot cache.
func (s *Service) BuildForPatient(ctx context.Context, pid string) ([]models.FeatureRow, error) {
	measurements, err := s.telemetry.MeasurementsForPatient(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("load measurements: %w", err)
	}
	if len(measurements) == 0 {
		return nil, nil
	}
	registrations, err := s.telemetry.Registrations(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("load registrations: %w", err)
	}
	demographics, err := s.telemetry.Demographics(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("load demographics: %w", err)
	}

	sessions := session.Sessionize(measurements, s.params.SessionWindowHours)
	enriched := enrich.Enrich(sessions, registrations, demographics)
	rows, err := aggregate.Aggregate(enriched, aggregate.Params{
		IntervalMinutes:     s.params.IntervalMinutes,
		RollingWindow:       s.params.RollingWindow,
		PredictionIntervals: s.params.PredictionIntervals,
		HypotensionLimit:    s.params.HypotensionLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate features: %w", err)
	}

	if err := s.persist(ctx, rows); err != nil {
		return nil, err
	}
	metrics.FeaturesBuilt(len(rows))
	logger.Log.WithFields(map[string]interface{}{
		"pid":  pid,
		"rows": len(rows),
	}).Info("feature rows built")
	return rows, nil
}

// persist groups rows by session and replaces each session's stored rows. The
// input is already ordered by (session_id, time_bin), so the last row seen per
// session is the newest bin and becomes the hot row.
func (s *Service) persist(ctx context.Context, rows []models.FeatureRow) error {
	bySession := make(map[string][]models.FeatureRow)
	var order []string
	for _, row := range rows {
		if _, ok := bySession[row.SessionID]; !ok {
			order = append(order, row.SessionID)
		}
		bySession[row.SessionID] = append(bySession[row.SessionID], row)
	}
	for _, sessionID := range order {
		sessionRows := bySession[sessionID]
		if err := s.store.SaveRows(ctx, sessionID, sessionRows); err != nil {
			return fmt.Errorf("save rows for %s: %w", sessionID, err)
		}
		latest := sessionRows[len(sessionRows)-1]
		if err := s.store.MaterializeHot(ctx, sessionID, latest); err != nil {
			logger.Log.WithError(err).WithField("session_id", sessionID).Warn("failed to materialize hot row")
		}
	}
	return nil
}

// FeaturizeRequest carries raw inputs for a one-shot featurization that does
// not touch the telemetry store.
type FeaturizeRequest struct {
	Measurements  []models.Measurement        `json:"measurements"`
	Registrations []models.RegistrationRecord `json:"registrations"`
	Demographics  []models.DemographicRecord  `json:"demographics"`
}

// Featurize runs the pipeline on caller-supplied data and returns the rows
// without persisting them.
func (s *Service) Featurize(req FeaturizeRequest) ([]models.FeatureRow, error) {
	sessions := session.Sessionize(req.Measurements, s.params.SessionWindowHours)
	enriched := enrich.Enrich(sessions, req.Registrations, req.Demographics)
	return aggregate.Aggregate(enriched, aggregate.Params{
		IntervalMinutes:     s.params.IntervalMinutes,
		RollingWindow:       s.params.RollingWindow,
		PredictionIntervals: s.params.PredictionIntervals,
		HypotensionLimit:    s.params.HypotensionLimit,
	})
}

// RowsForSession returns the stored feature rows for a session.
func (s *Service) RowsForSession(ctx context.Context, sessionID string) ([]models.FeatureRow, error) {
	return s.store.RowsForSession(ctx, sessionID)
}

// PayloadForSession serializes a session's stored feature rows into the
// prediction payload. An empty feature list defaults to the model schema.
func (s *Service) PayloadForSession(ctx context.Context, sessionID string, features []string) (*payload.Body, error) {
	rows, err := s.store.RowsForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoFeatures
	}
	return payload.Build(rows, features, nil)
}
