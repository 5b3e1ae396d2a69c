// Package enrich joins sessionized telemetry with registration and
// demographic reference data. Both joins are inner joins: rows without a
// match are dropped silently, so callers must expect reduced row counts
// rather than errors.
package enrich

import (
	"github.com/renalytics-ai/platform/pkg/common/logger"
	"github.com/renalytics-ai/platform/pkg/common/models"
	"github.com/renalytics-ai/platform/pkg/timeparse"
)

type regKey struct {
	pid  string
	date string // calendar date, YYYY-MM-DD
}

// WithRegistration joins session rows to registration records on patient id
// and the calendar date of the session start matching the calendar date of
// check-in. Check-in dates are raw warehouse epoch integers. When a patient
// has several registrations on the same date the row fans out, matching the
// merge semantics of the reference pipeline.
func WithRegistration(records []models.SessionRecord, registrations []models.RegistrationRecord) []models.EnrichedRecord {
	byKey := make(map[regKey][]models.RegistrationRecord)
	for _, reg := range registrations {
		key := regKey{pid: reg.PID, date: timeparse.FromEpochRaw(reg.KeyInDate).Format("2006-01-02")}
		byKey[key] = append(byKey[key], reg)
	}

	out := make([]models.EnrichedRecord, 0, len(records))
	for _, rec := range records {
		key := regKey{pid: rec.PID, date: rec.SessionStart.UTC().Format("2006-01-02")}
		matches, ok := byKey[key]
		if !ok {
			continue
		}
		for _, reg := range matches {
			out = append(out, models.EnrichedRecord{
				SessionRecord: rec,
				WeightStart:   reg.WeightStart,
				WeightEnd:     reg.WeightEnd,
				DryWeight:     reg.DryWeight,
			})
		}
	}

	if dropped := len(records) - len(out); dropped > 0 {
		logger.Log.WithField("dropped_rows", dropped).Debug("registration join dropped unmatched session rows")
	}
	return out
}

// WithDemographics joins enriched rows to demographics on patient id alone.
// The join is not deduplicated: duplicate demographic rows per patient fan
// out. First-dialysis timestamps are converted from the raw epoch integers.
func WithDemographics(records []models.EnrichedRecord, demographics []models.DemographicRecord) []models.EnrichedRecord {
	byPID := make(map[string][]models.DemographicRecord)
	for _, demo := range demographics {
		byPID[demo.PID] = append(byPID[demo.PID], demo)
	}

	out := make([]models.EnrichedRecord, 0, len(records))
	for _, rec := range records {
		matches, ok := byPID[rec.PID]
		if !ok {
			continue
		}
		for _, demo := range matches {
			joined := rec
			joined.Gender = demo.Gender
			joined.BirthYear = demo.BirthYear
			joined.Diabetes = demo.Diabetes
			joined.FirstDialysisTS = timeparse.FromEpochRaw(demo.FirstDialysis)
			out = append(out, joined)
		}
	}

	if dropped := len(records) - len(out); dropped > 0 {
		logger.Log.WithField("dropped_rows", dropped).Debug("demographics join dropped unmatched rows")
	}
	return out
}

// Enrich runs both joins in order.
func Enrich(records []models.SessionRecord, registrations []models.RegistrationRecord, demographics []models.DemographicRecord) []models.EnrichedRecord {
	return WithDemographics(WithRegistration(records, registrations), demographics)
}
