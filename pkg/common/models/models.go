package models

import (
	"time"

	"github.com/google/uuid"
)

// Measurement is one raw telemetry sample from a dialysis machine.
// Vital-sign fields are pointers because the upstream export degrades
// unparseable values to null instead of dropping the row.
type Measurement struct {
	PID          string     `json:"pid"`
	Timestamp    *time.Time `json:"datatime"`
	SBP          *float64   `json:"sbp"`
	DBP          *float64   `json:"dbp"`
	DialTemp     *float64   `json:"dia_temp_value"`
	Conductivity *float64   `json:"conductivity"`
	UFRate       *float64   `json:"uf"`
	BloodFlow    *float64   `json:"blood_flow"`
}

// SessionRecord is a measurement with its session assignment attached.
// Sessionization never drops or duplicates rows.
type SessionRecord struct {
	Measurement
	SessionID    string    `json:"session_id"`
	NewSession   bool      `json:"is_new_session"`
	SessionStart time.Time `json:"session_start_ts"`
}

// RegistrationRecord is per-visit metadata keyed by patient and check-in date.
// KeyInDate is the raw warehouse epoch integer (nanoseconds).
type RegistrationRecord struct {
	PID         string   `json:"pid"`
	KeyInDate   int64    `json:"keyindate"`
	WeightStart *float64 `json:"weightstart"`
	WeightEnd   *float64 `json:"weightend"`
	DryWeight   *float64 `json:"dryweight"`
}

// DemographicRecord holds per-patient static attributes. FirstDialysis is the
// raw warehouse epoch integer (nanoseconds).
type DemographicRecord struct {
	PID           string `json:"pid"`
	Gender        string `json:"gender"`
	BirthYear     int    `json:"birthday"`
	FirstDialysis int64  `json:"first_dialysis"`
	Diabetes      int    `json:"DM"`
}

// EnrichedRecord is a session row joined with registration and demographics.
type EnrichedRecord struct {
	SessionRecord
	WeightStart     *float64  `json:"weightstart"`
	WeightEnd       *float64  `json:"weightend"`
	DryWeight       *float64  `json:"dryweight"`
	Temperature     *float64  `json:"temperature"`
	Gender          string    `json:"gender"`
	BirthYear       int       `json:"birthday"`
	Diabetes        int       `json:"DM"`
	FirstDialysisTS time.Time `json:"first_dialysis_ts"`
}

// FeatureRow is one aggregated time bin: the unit the model consumes.
// Pointer fields are null for the first bins of a session (lag/trend) or for
// bins with too few observations (stddevs).
type FeatureRow struct {
	PID                  string    `json:"pid"`
	SessionID            string    `json:"session_id"`
	TimeBin              time.Time `json:"time_bin"`
	Diabetes             int       `json:"DM"`
	AgeAtSession         int       `json:"age_at_session"`
	AvgBloodFlow         *float64  `json:"avg_blood_flow"`
	AvgConductivity      *float64  `json:"avg_conductivity"`
	AvgDBP               *float64  `json:"avg_dbp"`
	AvgDialTemp          *float64  `json:"avg_dia_temp"`
	AvgSBP               *float64  `json:"avg_sbp"`
	AvgUFRate            *float64  `json:"avg_uf_rate"`
	DialysisVintageYears float64   `json:"dialysis_vintage_years"`
	FluidToRemove        *float64  `json:"fluid_to_remove"`
	Gender               string    `json:"gender"`
	Lag1AvgSBP           *float64  `json:"lag_1_avg_sbp"`
	Lag1AvgUFRate        *float64  `json:"lag_1_avg_uf_rate"`
	MinSBP               *float64  `json:"min_sbp"`
	MinutesIntoSession   float64   `json:"minutes_into_session"`
	RollingAvgSBP        *float64  `json:"rolling_avg_sbp"`
	RollingMaxSBP        *float64  `json:"rolling_max_sbp"`
	RollingStddevSBP     *float64  `json:"rolling_stddev_sbp"`
	StddevSBP            *float64  `json:"stddev_sbp"`
	Trend1Conductivity   *float64  `json:"trend_1_conductivity"`
	Trend1SBP            *float64  `json:"trend_1_sbp"`
	Label                int       `json:"label"`
}

// PredictRequest carries feature rows to score against the deployed model.
type PredictRequest struct {
	SessionID string                   `json:"session_id,omitempty"`
	Instances []map[string]interface{} `json:"instances"`
}

// PredictResponse mirrors the ML platform response body.
type PredictResponse struct {
	Predictions []map[string]interface{} `json:"predictions"`
	ModelID     string                   `json:"model_id,omitempty"`
}

// TrainingJob tracks one warehouse training run end to end.
type TrainingJob struct {
	ID           uuid.UUID              `json:"id"`
	ModelName    string                 `json:"model_name"`
	Status       string                 `json:"status"`
	Stage        string                 `json:"stage,omitempty"`
	Params       map[string]interface{} `json:"params,omitempty"`
	Metrics      map[string]interface{} `json:"metrics,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}

// Event is the message envelope on the telemetry bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Float returns a pointer to v; convenience for building nullable columns.
func Float(v float64) *float64 {
	return &v
}

// Time returns a pointer to t.
func Time(t time.Time) *time.Time {
	return &t
}
