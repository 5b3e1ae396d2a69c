// Package session partitions per-patient measurement streams into clinical
// sessions using a gap-threshold rule.
package session

import (
	"fmt"
	"sort"
	"time"

	"github.com/renalytics-ai/platform/pkg/common/models"
)

// DefaultWindowHours is the gap threshold above which a new session starts.
const DefaultWindowHours = 12

// Sessionize assigns session ids and session start timestamps to a
// measurement stream. The output has exactly one row per input row, ordered
// by (pid, timestamp) with the original relative order kept for ties.
//
// A record starts a new session when it is the first for its patient or when
// the gap to the previous record exceeds windowHours. Session ids are
// "{pid}_{ordinal}" with ordinals counted from 0 per patient. Records with a
// nil timestamp sort first for their patient and each opens a new session,
// mirroring the null-delta rule.
func Sessionize(measurements []models.Measurement, windowHours int) []models.SessionRecord {
	if windowHours <= 0 {
		windowHours = DefaultWindowHours
	}
	window := time.Duration(windowHours) * time.Hour

	records := make([]models.SessionRecord, len(measurements))
	for i, m := range measurements {
		records[i] = models.SessionRecord{Measurement: m}
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].PID != records[j].PID {
			return records[i].PID < records[j].PID
		}
		return tsBefore(records[i].Timestamp, records[j].Timestamp)
	})

	ordinals := make(map[string]int)
	var prev *models.SessionRecord
	for i := range records {
		rec := &records[i]
		newSession := true
		if prev != nil && prev.PID == rec.PID && prev.Timestamp != nil && rec.Timestamp != nil {
			newSession = rec.Timestamp.Sub(*prev.Timestamp) > window
		}
		if _, seen := ordinals[rec.PID]; !seen {
			newSession = true
		}

		if newSession {
			if _, seen := ordinals[rec.PID]; seen {
				ordinals[rec.PID]++
			} else {
				ordinals[rec.PID] = 0
			}
		}
		rec.NewSession = newSession
		rec.SessionID = fmt.Sprintf("%s_%d", rec.PID, ordinals[rec.PID])
		prev = rec
	}

	applySessionStart(records)
	return records
}

// applySessionStart stamps each record with the earliest timestamp observed
// in its session.
func applySessionStart(records []models.SessionRecord) {
	starts := make(map[string]time.Time)
	for _, rec := range records {
		if rec.Timestamp == nil {
			continue
		}
		if cur, ok := starts[rec.SessionID]; !ok || rec.Timestamp.Before(cur) {
			starts[rec.SessionID] = *rec.Timestamp
		}
	}
	for i := range records {
		records[i].SessionStart = starts[records[i].SessionID]
	}
}

// StartTimes returns the session start timestamp for every session id present
// in records.
func StartTimes(records []models.SessionRecord) map[string]time.Time {
	starts := make(map[string]time.Time, len(records))
	for _, rec := range records {
		if rec.Timestamp == nil {
			continue
		}
		if cur, ok := starts[rec.SessionID]; !ok || rec.Timestamp.Before(cur) {
			starts[rec.SessionID] = *rec.Timestamp
		}
	}
	return starts
}

func tsBefore(a, b *time.Time) bool {
	switch {
	case a == nil && b == nil:
		return false
	case a == nil:
		return true
	case b == nil:
		return false
	default:
		return a.Before(*b)
	}
}
