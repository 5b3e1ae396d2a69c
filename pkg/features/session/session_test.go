package session

import (
	"testing"
	"time"

	"github.com/renalytics-ai/platform/pkg/common/models"
)

func ts(s string) *time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	u := t.UTC()
	return &u
}

func TestSessionizeSplitsOnGap(t *testing.T) {
	measurements := []models.Measurement{
		{PID: "p1", Timestamp: ts("2023-05-10 08:00:00")},
		{PID: "p1", Timestamp: ts("2023-05-10 08:30:00")},
		{PID: "p1", Timestamp: ts("2023-05-10 21:30:00")}, // 13h gap
	}

	records := Sessionize(measurements, 12)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].SessionID != "p1_0" || records[1].SessionID != "p1_0" {
		t.Fatalf("expected first two records in p1_0, got %s, %s", records[0].SessionID, records[1].SessionID)
	}
	if records[2].SessionID != "p1_1" {
		t.Fatalf("expected gap to open p1_1, got %s", records[2].SessionID)
	}
	if !records[2].NewSession {
		t.Fatal("expected record after the gap to be flagged as a new session")
	}
	if !records[0].SessionStart.Equal(*ts("2023-05-10 08:00:00")) {
		t.Fatalf("wrong session start for p1_0: %v", records[0].SessionStart)
	}
	if !records[2].SessionStart.Equal(*ts("2023-05-10 21:30:00")) {
		t.Fatalf("wrong session start for p1_1: %v", records[2].SessionStart)
	}
}

func TestSessionizeGapAtThresholdStaysInSession(t *testing.T) {
	measurements := []models.Measurement{
		{PID: "p1", Timestamp: ts("2023-05-10 08:00:00")},
		{PID: "p1", Timestamp: ts("2023-05-10 20:00:00")}, // exactly 12h
	}

	records := Sessionize(measurements, 12)
	if records[1].SessionID != "p1_0" {
		t.Fatalf("a gap equal to the window must not split, got %s", records[1].SessionID)
	}
}

func TestSessionizePreservesRows(t *testing.T) {
	measurements := []models.Measurement{
		{PID: "p2", Timestamp: ts("2023-05-11 09:00:00"), SBP: models.Float(120)},
		{PID: "p1", Timestamp: ts("2023-05-10 08:00:00")},
		{PID: "p2", Timestamp: ts("2023-05-11 08:00:00")},
	}

	records := Sessionize(measurements, 0)
	if len(records) != 3 {
		t.Fatalf("sessionization must not drop or duplicate rows: got %d", len(records))
	}
	// Sorted by (pid, timestamp).
	if records[0].PID != "p1" || records[1].PID != "p2" || records[2].PID != "p2" {
		t.Fatalf("unexpected order: %s, %s, %s", records[0].PID, records[1].PID, records[2].PID)
	}
	if records[2].SBP == nil || *records[2].SBP != 120 {
		t.Fatal("measurement fields must survive sessionization")
	}
}

func TestSessionizeNilTimestampsOpenSessions(t *testing.T) {
	measurements := []models.Measurement{
		{PID: "p1", Timestamp: ts("2023-05-10 08:00:00")},
		{PID: "p1", Timestamp: nil},
	}

	records := Sessionize(measurements, 12)
	// Nil timestamps sort first for the patient and each opens a session.
	if records[0].Timestamp != nil {
		t.Fatal("nil timestamp should sort first")
	}
	if records[0].SessionID != "p1_0" {
		t.Fatalf("expected nil-timestamp record in p1_0, got %s", records[0].SessionID)
	}
	if records[1].SessionID != "p1_1" {
		t.Fatalf("expected following record to open p1_1, got %s", records[1].SessionID)
	}
}

func TestStartTimes(t *testing.T) {
	measurements := []models.Measurement{
		{PID: "p1", Timestamp: ts("2023-05-10 08:30:00")},
		{PID: "p1", Timestamp: ts("2023-05-10 08:00:00")},
	}

	records := Sessionize(measurements, 12)
	starts := StartTimes(records)
	if len(starts) != 1 {
		t.Fatalf("expected 1 session, got %d", len(starts))
	}
	if !starts["p1_0"].Equal(*ts("2023-05-10 08:00:00")) {
		t.Fatalf("wrong start time: %v", starts["p1_0"])
	}
}
