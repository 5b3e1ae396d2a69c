package featurizer

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/renalytics-ai/platform/pkg/common/config"
	"github.com/renalytics-ai/platform/pkg/common/logger"
	"github.com/renalytics-ai/platform/pkg/common/models"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func TestFeaturizeEndToEnd(t *testing.T) {
	svc := NewService(nil, nil, config.PipelineParams{
		SessionWindowHours:  12,
		IntervalMinutes:     15,
		RollingWindow:       4,
		PredictionIntervals: 5,
		HypotensionLimit:    90,
	})

	start := time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC)
	req := FeaturizeRequest{
		Registrations: []models.RegistrationRecord{
			{PID: "p1", KeyInDate: start.UnixNano(), WeightStart: models.Float(72.5), DryWeight: models.Float(70)},
		},
		Demographics: []models.DemographicRecord{
			{PID: "p1", Gender: "F", BirthYear: 1958, FirstDialysis: start.AddDate(-2, 0, 0).UnixNano(), Diabetes: 1},
		},
	}
	for i, sbp := range []float64{120, 110, 85, 100} {
		at := start.Add(time.Duration(i) * 15 * time.Minute)
		req.Measurements = append(req.Measurements, models.Measurement{
			PID:       "p1",
			Timestamp: &at,
			SBP:       models.Float(sbp),
		})
	}

	rows, err := svc.Featurize(req)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	for _, row := range rows {
		require.Equal(t, "p1", row.PID)
		require.Equal(t, "p1_0", row.SessionID)
		require.Equal(t, "F", row.Gender)
		require.Equal(t, 1, row.Diabetes)
	}

	// The hypotensive third bin labels the two bins before it.
	require.Equal(t, 1, rows[0].Label)
	require.Equal(t, 1, rows[1].Label)
	require.Equal(t, 0, rows[2].Label)
	require.Equal(t, 0, rows[3].Label)
}

func TestFeaturizeDropsPatientsWithoutReferenceData(t *testing.T) {
	svc := NewService(nil, nil, config.PipelineParams{SessionWindowHours: 12})

	at := time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC)
	req := FeaturizeRequest{
		Measurements: []models.Measurement{
			{PID: "p1", Timestamp: &at, SBP: models.Float(120)},
		},
	}

	rows, err := svc.Featurize(req)
	require.NoError(t, err)
	require.Empty(t, rows)
}
