package aggregate

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/renalytics-ai/platform/pkg/common/models"
)

func enriched(pid, sessionID string, start time.Time, offset time.Duration, sbp float64) models.EnrichedRecord {
	at := start.Add(offset)
	return models.EnrichedRecord{
		SessionRecord: models.SessionRecord{
			Measurement: models.Measurement{
				PID:       pid,
				Timestamp: &at,
				SBP:       models.Float(sbp),
			},
			SessionID:    sessionID,
			SessionStart: start,
		},
		WeightStart:     models.Float(72.5),
		DryWeight:       models.Float(70.0),
		Gender:          "F",
		BirthYear:       1958,
		Diabetes:        1,
		FirstDialysisTS: start.AddDate(-2, 0, 0),
	}
}

func TestAggregateLabelsForwardHorizon(t *testing.T) {
	start := time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC)
	// One measurement per 15-minute bin; the third bin dips below 90.
	records := []models.EnrichedRecord{
		enriched("p1", "p1_0", start, 0, 120),
		enriched("p1", "p1_0", start, 15*time.Minute, 110),
		enriched("p1", "p1_0", start, 30*time.Minute, 85),
		enriched("p1", "p1_0", start, 45*time.Minute, 100),
	}

	rows, err := Aggregate(records, Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 bins, got %d", len(rows))
	}

	// The label looks at the NEXT prediction-interval bins, never the
	// current one: the hypotensive bin itself is not labeled positive.
	wantLabels := []int{1, 1, 0, 0}
	for i, want := range wantLabels {
		if rows[i].Label != want {
			t.Fatalf("bin %d: expected label %d, got %d", i, want, rows[i].Label)
		}
	}
}

func TestAggregateWindowedFeatures(t *testing.T) {
	start := time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC)
	records := []models.EnrichedRecord{
		enriched("p1", "p1_0", start, 0, 120),
		enriched("p1", "p1_0", start, 15*time.Minute, 110),
		enriched("p1", "p1_0", start, 30*time.Minute, 85),
		enriched("p1", "p1_0", start, 45*time.Minute, 100),
	}

	rows, err := Aggregate(records, Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := rows[0]
	if first.Lag1AvgSBP != nil || first.Trend1SBP != nil {
		t.Fatal("first bin must have nil lag and trend")
	}
	if first.MinutesIntoSession != 0 {
		t.Fatalf("expected first bin at minute 0, got %g", first.MinutesIntoSession)
	}

	second := rows[1]
	if second.Lag1AvgSBP == nil || *second.Lag1AvgSBP != 120 {
		t.Fatalf("expected lag_1_avg_sbp 120, got %v", second.Lag1AvgSBP)
	}
	if second.Trend1SBP == nil || *second.Trend1SBP != -10 {
		t.Fatalf("expected trend_1_sbp -10, got %v", second.Trend1SBP)
	}
	if second.MinutesIntoSession != 15 {
		t.Fatalf("expected second bin at minute 15, got %g", second.MinutesIntoSession)
	}

	// Rolling window is the current bin plus the three preceding.
	last := rows[3]
	if last.RollingAvgSBP == nil || math.Abs(*last.RollingAvgSBP-103.75) > 1e-9 {
		t.Fatalf("expected rolling_avg_sbp 103.75, got %v", last.RollingAvgSBP)
	}
	if last.RollingMaxSBP == nil || *last.RollingMaxSBP != 120 {
		t.Fatalf("expected rolling_max_sbp 120, got %v", last.RollingMaxSBP)
	}
}

func TestAggregateStaticFeatures(t *testing.T) {
	start := time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC)
	records := []models.EnrichedRecord{
		enriched("p1", "p1_0", start, 0, 120),
	}

	rows, err := Aggregate(records, Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := rows[0]

	if row.AgeAtSession != 2023-1958 {
		t.Fatalf("expected age %d, got %d", 2023-1958, row.AgeAtSession)
	}
	if row.FluidToRemove == nil || math.Abs(*row.FluidToRemove-2.5) > 1e-9 {
		t.Fatalf("expected fluid_to_remove 2.5, got %v", row.FluidToRemove)
	}
	if math.Abs(row.DialysisVintageYears-2.0) > 0.01 {
		t.Fatalf("expected roughly 2 vintage years, got %g", row.DialysisVintageYears)
	}
	// A single observation cannot have a sample stddev.
	if row.StddevSBP != nil {
		t.Fatalf("expected nil stddev for one observation, got %v", row.StddevSBP)
	}
	// One bin means an empty look-ahead window, which coerces to 0.
	if row.Label != 0 {
		t.Fatalf("expected label 0 for a single-bin session, got %d", row.Label)
	}
	if row.Lag1AvgSBP != nil || row.Trend1SBP != nil {
		t.Fatal("single-bin session must have nil lag and trend")
	}
}

func TestAggregateBinsFloorOnUnixEpoch(t *testing.T) {
	// With a 7-minute interval the epoch-aligned bin for 08:03 starts at
	// 08:01, not 08:00: flooring must share the warehouse plan's origin
	// (DIV(UNIX_SECONDS(ts), w) * w), and UTC midnight is not a multiple of
	// 7 minutes past the epoch.
	start := time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC)
	records := []models.EnrichedRecord{
		enriched("p1", "p1_0", start, 3*time.Minute, 120),
	}

	rows, err := Aggregate(records, Params{IntervalMinutes: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 bin, got %d", len(rows))
	}

	wantBin := time.Date(2023, 5, 10, 8, 1, 0, 0, time.UTC)
	if !rows[0].TimeBin.Equal(wantBin) {
		t.Fatalf("expected bin %v, got %v", wantBin, rows[0].TimeBin)
	}
	if rows[0].MinutesIntoSession != 1 {
		t.Fatalf("expected 1 minute into session, got %g", rows[0].MinutesIntoSession)
	}

	// The default 15-minute width divides the day, so bins stay on the
	// familiar quarter-hour boundaries.
	rows, err = Aggregate(records, Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rows[0].TimeBin.Equal(start) {
		t.Fatalf("expected bin %v, got %v", start, rows[0].TimeBin)
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	start := time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC)
	records := []models.EnrichedRecord{
		enriched("p1", "p1_0", start, 0, 120),
		enriched("p1", "p1_0", start, 15*time.Minute, 110),
		enriched("p1", "p1_0", start, 16*time.Minute, 85),
		enriched("p2", "p2_0", start, 0, 95),
	}

	first, err := Aggregate(records, Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Aggregate(records, Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("row counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !reflect.DeepEqual(first[i], second[i]) {
			t.Fatalf("row %d differs between runs:\n%+v\n%+v", i, first[i], second[i])
		}
	}
}

func TestAggregateSkipsNilTimestamps(t *testing.T) {
	start := time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC)
	records := []models.EnrichedRecord{
		enriched("p1", "p1_0", start, 0, 120),
		{
			SessionRecord: models.SessionRecord{
				Measurement:  models.Measurement{PID: "p1", SBP: models.Float(80)},
				SessionID:    "p1_0",
				SessionStart: start,
			},
		},
	}

	rows, err := Aggregate(records, Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("nil-timestamp records must not produce bins: got %d", len(rows))
	}
	if rows[0].MinSBP == nil || *rows[0].MinSBP != 120 {
		t.Fatalf("nil-timestamp record leaked into a bin: min_sbp %v", rows[0].MinSBP)
	}
}

func TestAggregateRejectsSharedSession(t *testing.T) {
	start := time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC)
	records := []models.EnrichedRecord{
		enriched("p1", "shared_0", start, 0, 120),
		enriched("p2", "shared_0", start, 0, 110),
	}

	if _, err := Aggregate(records, Params{}); err == nil {
		t.Fatal("expected error for a session id spanning two patients")
	}
}
