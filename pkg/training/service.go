package training

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/renalytics-ai/platform/pkg/common/logger"
	"github.com/renalytics-ai/platform/pkg/common/models"
	"github.com/renalytics-ai/platform/pkg/features/aggregate"
	"github.com/renalytics-ai/platform/pkg/observability/metrics"
	"github.com/renalytics-ai/platform/pkg/warehouse"
	"gorm.io/datatypes"
)

// Service queues training jobs and drives each one through the warehouse
// pipeline: sessionize, build features, train, evaluate, and optionally
// export. Jobs run in the background under a bounded worker pool.
type Service struct {
	repo        *Repository
	pipeline    *warehouse.Pipeline
	runner      warehouse.QueryRunner
	tables      warehouse.Tables
	project     string
	dataset     string
	artifactDir string
	workerSem   chan struct{}
	maxPolls    int
}

func NewService(repo *Repository, pipeline *warehouse.Pipeline, runner warehouse.QueryRunner, tables warehouse.Tables, project, dataset, artifactDir string, maxWorkers, maxPolls int) (*Service, error) {
	s := &Service{
		repo:        repo,
		pipeline:    pipeline,
		runner:      runner,
		tables:      tables,
		project:     project,
		dataset:     dataset,
		artifactDir: artifactDir,
		maxPolls:    maxPolls,
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	s.workerSem = make(chan struct{}, maxWorkers)
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) Create(ctx context.Context, input CreateJobInput) (models.TrainingJob, error) {
	if input.ModelName == "" {
		return models.TrainingJob{}, fmt.Errorf("model name is required")
	}
	if len(input.Features) == 0 {
		input.Features = aggregate.ModelFeatures
	}
	jobID := uuid.New()
	job := &JobModel{
		ID:        jobID,
		ModelName: input.ModelName,
		Params: datatypes.JSONMap{
			"features":      input.Features,
			"export_bucket": input.ExportBucket,
		},
		Status:    StatusQueued,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return models.TrainingJob{}, err
	}
	go s.run(jobID, input)
	return toDomain(job), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (models.TrainingJob, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return models.TrainingJob{}, err
	}
	return toDomain(job), nil
}

func (s *Service) List(ctx context.Context, limit int) ([]models.TrainingJob, error) {
	jobs, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	results := make([]models.TrainingJob, 0, len(jobs))
	for _, job := range jobs {
		copy := job
		results = append(results, toDomain(&copy))
	}
	return results, nil
}

func (s *Service) run(jobID uuid.UUID, input CreateJobInput) {
	s.workerSem <- struct{}{}
	defer func() { <-s.workerSem }()

	ctx := context.Background()
	start := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, jobID, StatusRunning, "", nil); err != nil {
		logger.Log.WithError(err).Error("failed to mark job running")
	}
	if err := s.repo.SetTimestamps(ctx, jobID, &start, nil); err != nil {
		logger.Log.WithError(err).Error("failed to set start timestamp")
	}

	stageDurations := map[string]interface{}{}
	runStage := func(stage string, fn func(context.Context) error) error {
		if err := s.repo.UpdateStage(ctx, jobID, stage); err != nil {
			logger.Log.WithError(err).Error("failed to record job stage")
		}
		began := time.Now()
		if err := fn(ctx); err != nil {
			return fmt.Errorf("%s stage: %w", stage, err)
		}
		stageDurations[stage+"_seconds"] = time.Since(began).Seconds()
		return nil
	}

	err := runStage(StageSessionize, func(ctx context.Context) error {
		if err := s.pipeline.SessionizeMachineData(ctx); err != nil {
			return err
		}
		return warehouse.WaitForTable(ctx, s.runner, s.tables.Sessionized, s.maxPolls)
	})
	if err == nil {
		err = runStage(StageFeatures, func(ctx context.Context) error {
			if err := s.pipeline.BuildFeatures(ctx); err != nil {
				return err
			}
			return warehouse.WaitForTable(ctx, s.runner, s.tables.Features, s.maxPolls)
		})
	}

	model := warehouse.ModelRef{Project: s.project, Dataset: s.dataset, Name: input.ModelName}
	if err == nil {
		err = runStage(StageTrain, func(ctx context.Context) error {
			return s.pipeline.TrainModel(ctx, model, input.Features)
		})
	}
	if err == nil {
		err = runStage(StageEvaluate, func(ctx context.Context) error {
			return s.pipeline.EvaluateModel(ctx, model)
		})
	}
	if err == nil && input.ExportBucket != "" {
		err = runStage(StageExport, func(ctx context.Context) error {
			return s.pipeline.ExportModel(ctx, model, input.ExportBucket)
		})
	}
	if err != nil {
		s.failJob(ctx, jobID, err)
		return
	}

	jobMetrics := map[string]interface{}{
		"model":         model.ID(),
		"feature_count": len(input.Features),
		"total_seconds": time.Since(start).Seconds(),
		"completed_at":  time.Now().UTC(),
	}
	for k, v := range stageDurations {
		jobMetrics[k] = v
	}
	if path, err := s.writeArtifact(jobID, input, model, jobMetrics); err != nil {
		logger.Log.WithError(err).Error("failed to write job artifact")
	} else {
		jobMetrics["artifact_path"] = path
	}

	if err := s.repo.UpdateStatus(ctx, jobID, StatusCompleted, "", jobMetrics); err != nil {
		logger.Log.WithError(err).Error("failed to mark job complete")
	}
	metrics.TrainingJobCompleted()
	completed := time.Now().UTC()
	if err := s.repo.SetTimestamps(ctx, jobID, nil, &completed); err != nil {
		logger.Log.WithError(err).Error("failed to set completion timestamp")
	}
}

func (s *Service) failJob(ctx context.Context, jobID uuid.UUID, err error) {
	logger.Log.WithError(err).Error("training job failed")
	metrics.TrainingJobFailed()
	_ = s.repo.UpdateStatus(ctx, jobID, StatusFailed, err.Error(), nil)
	completed := time.Now().UTC()
	_ = s.repo.SetTimestamps(ctx, jobID, nil, &completed)
}

// writeArtifact records the run's inputs and metrics as a JSON file so the
// result survives outside the jobs table.
func (s *Service) writeArtifact(jobID uuid.UUID, input CreateJobInput, model warehouse.ModelRef, metrics map[string]interface{}) (string, error) {
	artifact := map[string]interface{}{
		"job_id":        jobID.String(),
		"model":         model.ID(),
		"features":      input.Features,
		"export_bucket": input.ExportBucket,
		"metrics":       metrics,
		"created_at":    time.Now().UTC(),
	}
	payload, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.artifactDir, fmt.Sprintf("%s.json", jobID.String()))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func toDomain(job *JobModel) models.TrainingJob {
	result := models.TrainingJob{
		ID:           job.ID,
		ModelName:    job.ModelName,
		Status:       job.Status,
		Stage:        job.Stage,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
		ErrorMessage: job.ErrorMessage,
	}
	if job.Params != nil {
		result.Params = map[string]interface{}(job.Params)
	}
	if job.Metrics != nil {
		result.Metrics = map[string]interface{}(job.Metrics)
	}
	return result
}
