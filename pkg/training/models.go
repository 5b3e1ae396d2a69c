package training

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Stage names recorded as a job moves through the warehouse pipeline.
const (
	StageSessionize = "sessionize"
	StageFeatures   = "features"
	StageTrain      = "train"
	StageEvaluate   = "evaluate"
	StageExport     = "export"
)

type JobModel struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey;column:id"`
	ModelName    string            `gorm:"column:model_name"`
	Params       datatypes.JSONMap `gorm:"column:params"`
	Status       string            `gorm:"column:status"`
	Stage        string            `gorm:"column:stage"`
	Metrics      datatypes.JSONMap `gorm:"column:metrics"`
	ErrorMessage string            `gorm:"column:error_message"`
	CreatedAt    time.Time         `gorm:"column:created_at"`
	UpdatedAt    time.Time         `gorm:"column:updated_at"`
	StartedAt    *time.Time        `gorm:"column:started_at"`
	CompletedAt  *time.Time        `gorm:"column:completed_at"`
}

func (JobModel) TableName() string {
	return "training_jobs"
}

// CreateJobInput describes one requested training run. Features defaults to
// the model feature schema; ExportBucket is optional and skips the export
// stage when empty.
type CreateJobInput struct {
	ModelName    string
	Features     []string
	ExportBucket string
}
