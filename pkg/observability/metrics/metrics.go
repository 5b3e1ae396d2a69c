// Package metrics exposes process-local counters in Prometheus text format.
// Each service updates its own counters; a scrape hits /metrics on that
// service directly.
package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	batchesAccepted   atomic.Int64
	batchesStored     atomic.Int64
	batchesFailed     atomic.Int64
	measurementsTotal atomic.Int64
	featureRowsBuilt  atomic.Int64
	featureBuilds     atomic.Int64
	predictionsServed atomic.Int64
	predictionErrors  atomic.Int64
	trainingJobsDone  atomic.Int64
	trainingJobsFail  atomic.Int64
)

func BatchAccepted(records int) {
	batchesAccepted.Add(1)
	measurementsTotal.Add(int64(records))
}

func BatchStored() { batchesStored.Add(1) }
func BatchFailed() { batchesFailed.Add(1) }

func FeaturesBuilt(rows int) {
	featureBuilds.Add(1)
	featureRowsBuilt.Add(int64(rows))
}

func PredictionServed() { predictionsServed.Add(1) }
func PredictionFailed() { predictionErrors.Add(1) }

func TrainingJobCompleted() { trainingJobsDone.Add(1) }
func TrainingJobFailed()    { trainingJobsFail.Add(1) }

// Handler serves the counters in Prometheus exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WritePrometheus(w)
	})
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	writeCounter(w, "renalytics_telemetry_batches_accepted_total", "Telemetry batches accepted by the ingestion service.", batchesAccepted.Load())
	writeCounter(w, "renalytics_telemetry_batches_stored_total", "Telemetry batches persisted to the machine-data table.", batchesStored.Load())
	writeCounter(w, "renalytics_telemetry_batches_failed_total", "Telemetry batches that failed validation or storage.", batchesFailed.Load())
	writeCounter(w, "renalytics_telemetry_measurements_total", "Individual measurements accepted.", measurementsTotal.Load())
	writeCounter(w, "renalytics_feature_builds_total", "Feature pipeline runs completed.", featureBuilds.Load())
	writeCounter(w, "renalytics_feature_rows_built_total", "Feature rows produced by the pipeline.", featureRowsBuilt.Load())
	writeCounter(w, "renalytics_predictions_served_total", "Predictions returned by the serving service.", predictionsServed.Load())
	writeCounter(w, "renalytics_prediction_errors_total", "Prediction requests that failed.", predictionErrors.Load())
	writeCounter(w, "renalytics_training_jobs_completed_total", "Training jobs that completed successfully.", trainingJobsDone.Load())
	writeCounter(w, "renalytics_training_jobs_failed_total", "Training jobs that failed.", trainingJobsFail.Load())
}

func writeCounter(w http.ResponseWriter, name, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	fmt.Fprintf(w, "%s %d\n", name, value)
}
