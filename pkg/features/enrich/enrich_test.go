package enrich

import (
	"os"
	"testing"
	"time"

	"github.com/renalytics-ai/platform/pkg/common/logger"
	"github.com/renalytics-ai/platform/pkg/common/models"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func sessionRecord(pid string, start time.Time) models.SessionRecord {
	return models.SessionRecord{
		Measurement:  models.Measurement{PID: pid, Timestamp: &start},
		SessionID:    pid + "_0",
		SessionStart: start,
	}
}

func TestWithRegistrationJoinsOnCalendarDate(t *testing.T) {
	start := time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC)
	records := []models.SessionRecord{sessionRecord("p1", start)}

	// Check-in at a different time of the same day still matches: the join
	// key is the calendar date, not the timestamp.
	checkIn := time.Date(2023, 5, 10, 6, 30, 0, 0, time.UTC)
	registrations := []models.RegistrationRecord{
		{PID: "p1", KeyInDate: checkIn.UnixNano(), WeightStart: models.Float(72.5), DryWeight: models.Float(70)},
	}

	out := WithRegistration(records, registrations)
	if len(out) != 1 {
		t.Fatalf("expected 1 joined row, got %d", len(out))
	}
	if out[0].WeightStart == nil || *out[0].WeightStart != 72.5 {
		t.Fatalf("registration fields missing: %v", out[0].WeightStart)
	}
}

func TestWithRegistrationDropsUnmatchedRows(t *testing.T) {
	start := time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC)
	records := []models.SessionRecord{sessionRecord("p1", start)}
	registrations := []models.RegistrationRecord{
		{PID: "p1", KeyInDate: start.AddDate(0, 0, 1).UnixNano()},
	}

	out := WithRegistration(records, registrations)
	if len(out) != 0 {
		t.Fatalf("inner join must drop unmatched rows, got %d", len(out))
	}
}

func TestWithRegistrationFansOutDuplicates(t *testing.T) {
	start := time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC)
	records := []models.SessionRecord{sessionRecord("p1", start)}
	registrations := []models.RegistrationRecord{
		{PID: "p1", KeyInDate: start.UnixNano(), WeightStart: models.Float(72)},
		{PID: "p1", KeyInDate: start.Add(time.Hour).UnixNano(), WeightStart: models.Float(73)},
	}

	out := WithRegistration(records, registrations)
	if len(out) != 2 {
		t.Fatalf("duplicate same-date registrations must fan out, got %d rows", len(out))
	}
}

func TestWithDemographics(t *testing.T) {
	start := time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC)
	firstDialysis := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	records := []models.EnrichedRecord{
		{SessionRecord: sessionRecord("p1", start)},
		{SessionRecord: sessionRecord("p2", start)},
	}
	demographics := []models.DemographicRecord{
		{PID: "p1", Gender: "F", BirthYear: 1958, FirstDialysis: firstDialysis.UnixNano(), Diabetes: 1},
	}

	out := WithDemographics(records, demographics)
	if len(out) != 1 {
		t.Fatalf("expected only the matched patient, got %d rows", len(out))
	}
	joined := out[0]
	if joined.Gender != "F" || joined.BirthYear != 1958 || joined.Diabetes != 1 {
		t.Fatalf("demographic fields missing: %+v", joined)
	}
	if !joined.FirstDialysisTS.Equal(firstDialysis) {
		t.Fatalf("expected first dialysis %v, got %v", firstDialysis, joined.FirstDialysisTS)
	}
}

func TestEnrichRunsBothJoins(t *testing.T) {
	start := time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC)
	records := []models.SessionRecord{sessionRecord("p1", start)}
	registrations := []models.RegistrationRecord{
		{PID: "p1", KeyInDate: start.UnixNano(), WeightStart: models.Float(72.5)},
	}
	demographics := []models.DemographicRecord{
		{PID: "p1", Gender: "M", BirthYear: 1970, FirstDialysis: start.AddDate(-1, 0, 0).UnixNano()},
	}

	out := Enrich(records, registrations, demographics)
	if len(out) != 1 {
		t.Fatalf("expected 1 enriched row, got %d", len(out))
	}
	if out[0].WeightStart == nil || out[0].Gender != "M" {
		t.Fatalf("enrichment incomplete: %+v", out[0])
	}
}
