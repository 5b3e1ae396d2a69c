// Package timeparse canonicalizes the heterogeneous timestamp representations
// found in dialysis telemetry exports. Values that cannot be parsed degrade to
// nil rather than failing the batch; callers own null handling downstream.
package timeparse

import (
	"strconv"
	"strings"
	"time"
)

// TimeColumns are the field names recognized as time-bearing across the raw,
// sessionized, and enriched schemas. Columns outside this set are never
// touched.
var TimeColumns = []string{
	"datatime",
	"session_start_ts",
	"session_date",
	"keyindate",
	"dialysisstart",
	"dialysisend",
	"first_dialysis",
	"first_dialysis_ts",
	"keyindate_ts",
	"time_bin",
}

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
}

// Parse converts a single value into a canonical UTC time. Strings are tried
// against the known layouts; integers are treated as epoch values with the
// unit inferred from magnitude (seconds through nanoseconds). Returns nil when
// the value has no usable time representation.
func Parse(value interface{}) *time.Time {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		if v.IsZero() {
			return nil
		}
		u := v.UTC()
		return &u
	case *time.Time:
		if v == nil || v.IsZero() {
			return nil
		}
		u := v.UTC()
		return &u
	case string:
		return parseString(v)
	case int:
		return FromEpoch(int64(v))
	case int64:
		return FromEpoch(v)
	case float64:
		return FromEpoch(int64(v))
	default:
		return nil
	}
}

func parseString(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return FromEpoch(n)
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

// FromEpoch interprets an integer as an epoch offset, inferring the unit from
// the magnitude. The warehouse exports store calendar fields as nanoseconds.
func FromEpoch(v int64) *time.Time {
	if v <= 0 {
		return nil
	}
	var t time.Time
	switch {
	case v >= 1e17: // nanoseconds
		t = time.Unix(0, v).UTC()
	case v >= 1e14: // microseconds
		t = time.UnixMicro(v).UTC()
	case v >= 1e11: // milliseconds
		t = time.UnixMilli(v).UTC()
	default: // seconds
		t = time.Unix(v, 0).UTC()
	}
	return &t
}

// FromEpochRaw converts a raw warehouse epoch integer (nanoseconds) the same
// way the bulk pipeline does: divide to microseconds, then to a timestamp.
func FromEpochRaw(v int64) time.Time {
	return time.UnixMicro(v / 1000).UTC()
}

// Normalize returns a copy of rows with every recognized time-bearing column
// replaced by a *time.Time (or nil when unparseable). The input slice and its
// maps are not mutated.
func Normalize(rows []map[string]interface{}) []map[string]interface{} {
	known := make(map[string]struct{}, len(TimeColumns))
	for _, c := range TimeColumns {
		known[c] = struct{}{}
	}

	out := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		copied := make(map[string]interface{}, len(row))
		for key, value := range row {
			if _, ok := known[key]; ok {
				copied[key] = Parse(value)
			} else {
				copied[key] = value
			}
		}
		out[i] = copied
	}
	return out
}
