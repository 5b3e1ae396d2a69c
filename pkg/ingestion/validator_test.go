package ingestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/renalytics-ai/platform/pkg/common/models"
)

func validRequest() BatchRequest {
	return BatchRequest{
		Source: "dialysis-machine",
		PID:    "p1",
		Records: []RawRecord{
			{Datatime: "2023-05-10 08:00:00", SBP: models.Float(120)},
		},
	}
}

func TestValidateAcceptsValidBatch(t *testing.T) {
	v := NewValidator(nil, 100)
	require.NoError(t, v.Validate(validRequest()))
}

func TestValidateSourceAllowList(t *testing.T) {
	v := NewValidator([]string{"Dialysis-Machine"}, 0)

	// Source matching is case-insensitive.
	require.NoError(t, v.Validate(validRequest()))

	req := validRequest()
	req.Source = "unknown-device"
	err := v.Validate(req)
	require.Error(t, err)
	require.True(t, IsValidationError(err))
}

func TestValidateRejectsMissingFields(t *testing.T) {
	v := NewValidator(nil, 0)

	req := validRequest()
	req.Source = ""
	require.True(t, IsValidationError(v.Validate(req)))

	req = validRequest()
	req.PID = "  "
	require.True(t, IsValidationError(v.Validate(req)))

	req = validRequest()
	req.Records = nil
	require.True(t, IsValidationError(v.Validate(req)))
}

func TestValidateBatchLimit(t *testing.T) {
	v := NewValidator(nil, 2)

	req := validRequest()
	req.Records = make([]RawRecord, 3)
	err := v.Validate(req)
	require.Error(t, err)
	require.True(t, IsValidationError(err))

	// maxBatch <= 0 disables the limit.
	unlimited := NewValidator(nil, 0)
	require.NoError(t, unlimited.Validate(req))
}

func TestMeasurementsConversion(t *testing.T) {
	req := BatchRequest{
		Source: "dialysis-machine",
		PID:    "p1",
		Records: []RawRecord{
			{Datatime: "2023-05-10 08:00:00", SBP: models.Float(120)},
			{Datatime: int64(1700000000), DBP: models.Float(70)},
			{Datatime: "garbage"},
		},
	}

	measurements := req.Measurements()
	require.Len(t, measurements, 3)

	require.Equal(t, "p1", measurements[0].PID)
	require.NotNil(t, measurements[0].Timestamp)
	require.Equal(t, time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC), measurements[0].Timestamp.UTC())

	require.NotNil(t, measurements[1].Timestamp)

	// Unparseable timestamps degrade to null instead of dropping the row.
	require.Nil(t, measurements[2].Timestamp)
}

func TestValidateRejectsEmptyRecordsButKeepsRows(t *testing.T) {
	v := NewValidator([]string{"edge-gateway"}, 10)
	req := BatchRequest{Source: "edge-gateway", PID: "p1", Records: []RawRecord{{}}}
	require.NoError(t, v.Validate(req))
}
