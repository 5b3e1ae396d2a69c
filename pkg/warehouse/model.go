package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/renalytics-ai/platform/pkg/common/logger"
)

// ModelRef identifies a model inside the warehouse's ML registry.
type ModelRef struct {
	Project string
	Dataset string
	Name    string
}

func (m ModelRef) ID() string {
	return fmt.Sprintf("%s.%s.%s", m.Project, m.Dataset, m.Name)
}

// TrainModelSQL builds the statement that trains a boosted-tree classifier on
// the TRAIN split of the features table. The feature list fixes the model's
// input schema by name.
func TrainModelSQL(model ModelRef, featuresTable string, features []string) string {
	selectColumns := strings.Join(append(append([]string{}, features...), "label"), ",\n      ")
	return fmt.Sprintf(`
    CREATE OR REPLACE MODEL `+"`%s`"+`
    OPTIONS(
      MODEL_TYPE='BOOSTED_TREE_CLASSIFIER',
      INPUT_LABEL_COLS=['label'],
      AUTO_CLASS_WEIGHTS=TRUE,
      ENABLE_GLOBAL_EXPLAIN=TRUE,
      MODEL_REGISTRY='VERTEX_AI',
      VERTEX_AI_MODEL_ID='%s',
      VERTEX_AI_MODEL_VERSION_ALIASES=['prod', 'initial']
    ) AS
    SELECT
      %s
    FROM
      `+"`%s`"+`
    WHERE
      dataset_split = 'TRAIN';`, model.ID(), model.Name, selectColumns, featuresTable)
}

// EvaluateModelSQL builds the ML.EVALUATE statement for the model.
func EvaluateModelSQL(model ModelRef) string {
	return fmt.Sprintf("SELECT * FROM ML.EVALUATE(MODEL `%s`);", model.ID())
}

// ExportModelSQL builds the statement exporting model artifacts to the
// storage bucket.
func ExportModelSQL(model ModelRef, bucket string) string {
	return fmt.Sprintf("EXPORT MODEL `%s` OPTIONS(URI='gs://%s/model-artifacts/');", model.ID(), bucket)
}

// TrainModel runs the training statement and blocks until the job completes.
func (p *Pipeline) TrainModel(ctx context.Context, model ModelRef, features []string) error {
	logger.Log.WithField("model", model.ID()).Info("starting model training")
	if err := p.runner.RunQuery(ctx, TrainModelSQL(model, p.tables.Features, features)); err != nil {
		return fmt.Errorf("train model: %w", err)
	}
	logger.Log.WithField("model", model.ID()).Info("model training complete")
	return nil
}

// EvaluateModel runs ML.EVALUATE for the model.
func (p *Pipeline) EvaluateModel(ctx context.Context, model ModelRef) error {
	logger.Log.WithField("model", model.ID()).Info("evaluating model")
	if err := p.runner.RunQuery(ctx, EvaluateModelSQL(model)); err != nil {
		return fmt.Errorf("evaluate model: %w", err)
	}
	return nil
}

// ExportModel exports the trained model artifacts to the bucket.
func (p *Pipeline) ExportModel(ctx context.Context, model ModelRef, bucket string) error {
	logger.Log.WithFields(map[string]interface{}{
		"model":  model.ID(),
		"bucket": bucket,
	}).Info("exporting model artifacts")
	if err := p.runner.RunQuery(ctx, ExportModelSQL(model, bucket)); err != nil {
		return fmt.Errorf("export model: %w", err)
	}
	return nil
}
