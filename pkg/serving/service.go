package serving

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/renalytics-ai/platform/pkg/common/config"
	"github.com/renalytics-ai/platform/pkg/common/logger"
	"github.com/renalytics-ai/platform/pkg/common/models"
	"github.com/renalytics-ai/platform/pkg/features/payload"
	"github.com/renalytics-ai/platform/pkg/observability/metrics"
	"github.com/renalytics-ai/platform/pkg/storage"
)

var ErrNoFeatures = errors.New("no feature rows for session")

// Service scores sessions against the deployed model. The endpoint id is
// resolved once and reused for the life of the process.
type Service struct {
	client *Client
	repo   *Repository
	store  *storage.FeatureStore
	cfg    *config.Config

	mu         sync.Mutex
	endpointID string
}

func NewService(client *Client, repo *Repository, store *storage.FeatureStore, cfg *config.Config) *Service {
	return &Service{client: client, repo: repo, store: store, cfg: cfg}
}

func (s *Service) endpoint(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endpointID != "" {
		return s.endpointID, nil
	}
	id, err := s.client.ResolveEndpointID(ctx, s.cfg)
	if err != nil {
		return "", err
	}
	s.endpointID = id
	return id, nil
}

// PredictSession scores the latest feature row of a session. The hot cache is
// tried first; on a miss the newest stored row is used.
func (s *Service) PredictSession(ctx context.Context, sessionID string) (*models.PredictResponse, error) {
	row, err := s.store.HotRow(ctx, sessionID)
	if err != nil {
		logger.Log.WithError(err).WithField("session_id", sessionID).Warn("hot cache lookup failed")
	}
	if row == nil {
		rows, err := s.store.RowsForSession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("load feature rows: %w", err)
		}
		if len(rows) == 0 {
			return nil, ErrNoFeatures
		}
		row = &rows[len(rows)-1]
	}

	body, err := payload.Build([]models.FeatureRow{*row}, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("build payload: %w", err)
	}
	return s.predict(ctx, sessionID, body)
}

// PredictPayload scores a caller-supplied payload, bypassing the feature
// store. Used when the client has already assembled instances.
func (s *Service) PredictPayload(ctx context.Context, sessionID string, body *payload.Body) (*models.PredictResponse, error) {
	if body == nil || len(body.Instances) == 0 {
		return nil, ErrNoFeatures
	}
	return s.predict(ctx, sessionID, body)
}

func (s *Service) predict(ctx context.Context, sessionID string, body *payload.Body) (*models.PredictResponse, error) {
	endpointID, err := s.endpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve endpoint: %w", err)
	}

	start := time.Now()
	predictions, err := s.client.Predict(ctx, endpointID, body)
	if err != nil {
		metrics.PredictionFailed()
		return nil, err
	}
	latency := time.Since(start)
	metrics.PredictionServed()

	if logErr := s.repo.Record(ctx, sessionID, endpointID, len(body.Instances), predictions, latency); logErr != nil {
		logger.Log.WithError(logErr).Warn("failed to record prediction log")
	}

	return &models.PredictResponse{
		Predictions: predictions,
		ModelID:     endpointID,
	}, nil
}

// History returns recent prediction logs, optionally filtered by session.
func (s *Service) History(ctx context.Context, sessionID string, limit int) ([]PredictionLog, error) {
	return s.repo.Recent(ctx, sessionID, limit)
}

// EnsureEndpoint creates the configured endpoint if it does not exist and
// deploys the model to it.
func (s *Service) EnsureEndpoint(ctx context.Context, modelName string) (string, error) {
	id, err := s.client.FindEndpoint(ctx, s.cfg.EndpointName)
	if err != nil {
		return "", err
	}
	if id == "" {
		id, err = s.client.CreateEndpoint(ctx, s.cfg.EndpointName)
		if err != nil {
			return "", err
		}
	}
	if err := s.client.DeployModel(ctx, id, modelName, s.cfg); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.endpointID = id
	s.mu.Unlock()
	return id, nil
}
