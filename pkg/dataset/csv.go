package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/renalytics-ai/platform/pkg/common/models"
	"github.com/renalytics-ai/platform/pkg/timeparse"
)

// SessionCSVColumns is the stable column order for session CSV files. Loads
// accept any column order; saves always emit this one.
var SessionCSVColumns = []string{
	"pid",
	"datatime",
	"session_id",
	"first_dialysis_ts",
	"sbp",
	"dbp",
	"dia_temp_value",
	"conductivity",
	"uf",
	"blood_flow",
	"weightstart",
	"weightend",
	"dryweight",
	"temperature",
	"gender",
	"birthday",
	"DM",
}

// LoadSessions reads enriched session records from a CSV file and recomputes
// each row's session start from the earliest timestamp in its session.
func LoadSessions(path string) ([]models.EnrichedRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session csv: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv rows: %w", err)
	}

	field := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	records := make([]models.EnrichedRecord, 0, len(rows))
	for _, row := range rows {
		rec := models.EnrichedRecord{
			SessionRecord: models.SessionRecord{
				Measurement: models.Measurement{
					PID:          field(row, "pid"),
					Timestamp:    timeparse.Parse(field(row, "datatime")),
					SBP:          parseFloat(field(row, "sbp")),
					DBP:          parseFloat(field(row, "dbp")),
					DialTemp:     parseFloat(field(row, "dia_temp_value")),
					Conductivity: parseFloat(field(row, "conductivity")),
					UFRate:       parseFloat(field(row, "uf")),
					BloodFlow:    parseFloat(field(row, "blood_flow")),
				},
				SessionID: field(row, "session_id"),
			},
			WeightStart: parseFloat(field(row, "weightstart")),
			WeightEnd:   parseFloat(field(row, "weightend")),
			DryWeight:   parseFloat(field(row, "dryweight")),
			Temperature: parseFloat(field(row, "temperature")),
			Gender:      field(row, "gender"),
			BirthYear:   parseInt(field(row, "birthday")),
			Diabetes:    parseInt(field(row, "DM")),
		}
		if fd := timeparse.Parse(field(row, "first_dialysis_ts")); fd != nil {
			rec.FirstDialysisTS = *fd
		}
		records = append(records, rec)
	}

	applySessionStarts(records)
	return records, nil
}

// SaveSessions writes enriched session records to a CSV file using the stable
// column order.
func SaveSessions(records []models.EnrichedRecord, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create session csv: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(SessionCSVColumns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.PID,
			formatTime(rec.Timestamp),
			rec.SessionID,
			formatTime(&rec.FirstDialysisTS),
			formatFloat(rec.SBP),
			formatFloat(rec.DBP),
			formatFloat(rec.DialTemp),
			formatFloat(rec.Conductivity),
			formatFloat(rec.UFRate),
			formatFloat(rec.BloodFlow),
			formatFloat(rec.WeightStart),
			formatFloat(rec.WeightEnd),
			formatFloat(rec.DryWeight),
			formatFloat(rec.Temperature),
			rec.Gender,
			strconv.Itoa(rec.BirthYear),
			strconv.Itoa(rec.Diabetes),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func applySessionStarts(records []models.EnrichedRecord) {
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

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseInt(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
