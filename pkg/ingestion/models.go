package ingestion

import "time"

const (
	StatusAccepted  = "accepted"
	StatusStored    = "stored"
	StatusPublished = "published"
	StatusFailed    = "failed"
)

// Batch tracks one accepted telemetry upload through storage and publication.
type Batch struct {
	ID          string     `json:"id" gorm:"primaryKey;column:id"`
	Source      string     `json:"source" gorm:"column:source"`
	PID         string     `json:"pid" gorm:"column:pid;index"`
	RecordCount int        `json:"record_count" gorm:"column:record_count"`
	Status      string     `json:"status" gorm:"column:status"`
	Error       string     `json:"error,omitempty" gorm:"column:error"`
	CreatedAt   time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"column:updated_at"`
	LastAttempt *time.Time `json:"last_attempt,omitempty" gorm:"column:last_attempt"`
}

func (Batch) TableName() string {
	return "telemetry_batches"
}
