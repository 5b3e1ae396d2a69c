package routes

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/renalytics-ai/platform/pkg/common/logger"
	"gorm.io/gorm"
)

// MetricsHandler aggregates platform-wide counts from the shared database for
// the operations dashboard.
type MetricsHandler struct {
	db *gorm.DB
}

type OverviewMetrics struct {
	BatchesLastHour     int     `json:"batchesLastHour"`
	BatchBacklog        int     `json:"batchBacklog"`
	BatchesFailedToday  int     `json:"batchesFailedToday"`
	FeatureRowsLastHour int     `json:"featureRowsLastHour"`
	TrainingJobsActive  int     `json:"trainingJobsActive"`
	PredictionsLastHour int     `json:"predictionsLastHour"`
	AvgPredictLatencyMs float64 `json:"avgPredictLatencyMs"`
}

func NewMetricsHandler(db *gorm.DB) *MetricsHandler {
	return &MetricsHandler{db: db}
}

func (h *MetricsHandler) Register(r *mux.Router) {
	r.HandleFunc("/metrics/overview", h.handleOverview).Methods(http.MethodGet)
}

func (h *MetricsHandler) handleOverview(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.collectMetrics(r)
	if err != nil {
		logger.Log.WithError(err).Error("failed to collect metrics")
		http.Error(w, "failed to collect metrics", http.StatusInternalServerError)
		return
	}

	writeJSON(w, metrics)
}

func (h *MetricsHandler) collectMetrics(r *http.Request) (OverviewMetrics, error) {
	metrics := OverviewMetrics{}
	db := h.db.WithContext(r.Context())

	var batches sql.NullInt64
	if err := db.Raw(`
		SELECT COUNT(*)
		FROM telemetry_batches
		WHERE created_at > NOW() - INTERVAL '1 hour'
	`).Scan(&batches).Error; err != nil {
		return metrics, err
	}
	if batches.Valid {
		metrics.BatchesLastHour = int(batches.Int64)
	}

	var backlog sql.NullInt64
	if err := db.Raw(`
		SELECT COUNT(*)
		FROM telemetry_batches
		WHERE status NOT IN ('published', 'failed')
	`).Scan(&backlog).Error; err != nil {
		return metrics, err
	}
	if backlog.Valid {
		metrics.BatchBacklog = int(backlog.Int64)
	}

	var failed sql.NullInt64
	if err := db.Raw(`
		SELECT COUNT(*)
		FROM telemetry_batches
		WHERE status = 'failed' AND DATE(updated_at) = CURRENT_DATE
	`).Scan(&failed).Error; err != nil {
		return metrics, err
	}
	if failed.Valid {
		metrics.BatchesFailedToday = int(failed.Int64)
	}

	var featureRows sql.NullInt64
	if err := db.Raw(`
		SELECT COUNT(*)
		FROM feature_rows
		WHERE created_at > NOW() - INTERVAL '1 hour'
	`).Scan(&featureRows).Error; err != nil {
		return metrics, err
	}
	if featureRows.Valid {
		metrics.FeatureRowsLastHour = int(featureRows.Int64)
	}

	var training sql.NullInt64
	if err := db.Raw(`
		SELECT COUNT(*)
		FROM training_jobs
		WHERE status IN ('queued', 'running')
	`).Scan(&training).Error; err != nil {
		return metrics, err
	}
	if training.Valid {
		metrics.TrainingJobsActive = int(training.Int64)
	}

	var predictions sql.NullInt64
	if err := db.Raw(`
		SELECT COUNT(*)
		FROM prediction_logs
		WHERE created_at > NOW() - INTERVAL '1 hour'
	`).Scan(&predictions).Error; err != nil {
		return metrics, err
	}
	if predictions.Valid {
		metrics.PredictionsLastHour = int(predictions.Int64)
	}

	var latency sql.NullFloat64
	if err := db.Raw(`
		SELECT AVG(latency_ms)
		FROM prediction_logs
		WHERE created_at > NOW() - INTERVAL '1 hour'
	`).Scan(&latency).Error; err != nil {
		return metrics, err
	}
	if latency.Valid {
		metrics.AvgPredictLatencyMs = latency.Float64
	}

	return metrics, nil
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.WithError(err).Error("failed to write json response")
	}
}
