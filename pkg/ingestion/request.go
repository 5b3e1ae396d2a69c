package ingestion

import (
	"github.com/renalytics-ai/platform/pkg/common/models"
	"github.com/renalytics-ai/platform/pkg/timeparse"
)

// BatchRequest is one telemetry upload: a run of machine samples for a single
// patient. Datatime accepts anything timeparse recognizes (epoch integers or
// timestamp strings); unparseable values degrade to null on the stored row.
type BatchRequest struct {
	Source  string      `json:"source"`
	PID     string      `json:"pid"`
	Records []RawRecord `json:"records"`
}

type RawRecord struct {
	Datatime     interface{} `json:"datatime"`
	SBP          *float64    `json:"sbp"`
	DBP          *float64    `json:"dbp"`
	DialTemp     *float64    `json:"dia_temp_value"`
	Conductivity *float64    `json:"conductivity"`
	UFRate       *float64    `json:"uf"`
	BloodFlow    *float64    `json:"blood_flow"`
}

// Measurements converts the raw upload into canonical measurement rows.
func (r BatchRequest) Measurements() []models.Measurement {
	out := make([]models.Measurement, 0, len(r.Records))
	for _, rec := range r.Records {
		out = append(out, models.Measurement{
			PID:          r.PID,
			Timestamp:    timeparse.Parse(rec.Datatime),
			SBP:          rec.SBP,
			DBP:          rec.DBP,
			DialTemp:     rec.DialTemp,
			Conductivity: rec.Conductivity,
			UFRate:       rec.UFRate,
			BloodFlow:    rec.BloodFlow,
		})
	}
	return out
}
