package dataset

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/renalytics-ai/platform/pkg/common/models"
)

func TestSaveAndLoadSessions(t *testing.T) {
	first := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	t0 := time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC)
	t1 := t0.Add(30 * time.Minute)

	records := []models.EnrichedRecord{
		{
			SessionRecord: models.SessionRecord{
				Measurement: models.Measurement{
					PID:       "p1",
					Timestamp: &t1,
					SBP:       models.Float(118.5),
					DBP:       models.Float(72),
				},
				SessionID: "p1_0",
			},
			WeightStart:     models.Float(72.5),
			DryWeight:       models.Float(70),
			Gender:          "F",
			BirthYear:       1958,
			Diabetes:        1,
			FirstDialysisTS: first,
		},
		{
			SessionRecord: models.SessionRecord{
				Measurement: models.Measurement{
					PID:       "p1",
					Timestamp: &t0,
				},
				SessionID: "p1_0",
			},
			FirstDialysisTS: first,
		},
	}

	path := filepath.Join(t.TempDir(), "sessions.csv")
	if err := SaveSessions(records, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadSessions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 records, got %d", len(loaded))
	}

	got := loaded[0]
	if got.PID != "p1" || got.SessionID != "p1_0" {
		t.Fatalf("identifiers lost: %+v", got)
	}
	if got.Timestamp == nil || !got.Timestamp.Equal(t1) {
		t.Fatalf("timestamp mismatch: %v", got.Timestamp)
	}
	if got.SBP == nil || *got.SBP != 118.5 {
		t.Fatalf("sbp mismatch: %v", got.SBP)
	}
	// Empty cells load back as nil, not zero.
	if got.Conductivity != nil {
		t.Fatalf("expected nil conductivity, got %v", got.Conductivity)
	}
	if loaded[1].SBP != nil {
		t.Fatalf("expected nil sbp on second record, got %v", loaded[1].SBP)
	}
	if got.Gender != "F" || got.BirthYear != 1958 || got.Diabetes != 1 {
		t.Fatalf("demographics lost: %+v", got)
	}
	if !got.FirstDialysisTS.Equal(first) {
		t.Fatalf("first dialysis mismatch: %v", got.FirstDialysisTS)
	}

	// Session starts are recomputed from the earliest timestamp per session.
	for i, rec := range loaded {
		if !rec.SessionStart.Equal(t0) {
			t.Fatalf("record %d: expected session start %v, got %v", i, t0, rec.SessionStart)
		}
	}
}

func TestLoadSessionsToleratesColumnOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.csv")
	content := "session_id,pid,sbp,datatime\np1_0,p1,120,2023-05-10 08:00:00\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	loaded, err := LoadSessions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 record, got %d", len(loaded))
	}
	if loaded[0].PID != "p1" || loaded[0].SBP == nil || *loaded[0].SBP != 120 {
		t.Fatalf("column-order independence broken: %+v", loaded[0])
	}
}
