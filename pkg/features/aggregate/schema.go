package aggregate

import "github.com/renalytics-ai/platform/pkg/common/models"

// ModelFeatures is the fixed ordered feature set the classifier is trained
// on and served with. Order matters: it is the contract with the deployed
// model.
var ModelFeatures = []string{
	"DM",
	"age_at_session",
	"avg_blood_flow",
	"avg_conductivity",
	"avg_dbp",
	"avg_dia_temp",
	"avg_sbp",
	"avg_uf_rate",
	"dialysis_vintage_years",
	"fluid_to_remove",
	"gender",
	"lag_1_avg_sbp",
	"lag_1_avg_uf_rate",
	"min_sbp",
	"minutes_into_session",
	"rolling_avg_sbp",
	"rolling_max_sbp",
	"rolling_stddev_sbp",
	"stddev_sbp",
	"trend_1_conductivity",
	"trend_1_sbp",
}

// TrainingColumns is the persisted training projection: identifiers, the
// model features, and the label, in fixed order.
var TrainingColumns = append(append([]string{"pid", "session_id"}, ModelFeatures...), "label")

// RowValues projects a feature row into its named columns. Null features map
// to nil values.
func RowValues(row models.FeatureRow) map[string]interface{} {
	return map[string]interface{}{
		"pid":                    row.PID,
		"session_id":             row.SessionID,
		"DM":                     row.Diabetes,
		"age_at_session":         row.AgeAtSession,
		"avg_blood_flow":         unwrap(row.AvgBloodFlow),
		"avg_conductivity":       unwrap(row.AvgConductivity),
		"avg_dbp":                unwrap(row.AvgDBP),
		"avg_dia_temp":           unwrap(row.AvgDialTemp),
		"avg_sbp":                unwrap(row.AvgSBP),
		"avg_uf_rate":            unwrap(row.AvgUFRate),
		"dialysis_vintage_years": row.DialysisVintageYears,
		"fluid_to_remove":        unwrap(row.FluidToRemove),
		"gender":                 row.Gender,
		"lag_1_avg_sbp":          unwrap(row.Lag1AvgSBP),
		"lag_1_avg_uf_rate":      unwrap(row.Lag1AvgUFRate),
		"min_sbp":                unwrap(row.MinSBP),
		"minutes_into_session":   row.MinutesIntoSession,
		"rolling_avg_sbp":        unwrap(row.RollingAvgSBP),
		"rolling_max_sbp":        unwrap(row.RollingMaxSBP),
		"rolling_stddev_sbp":     unwrap(row.RollingStddevSBP),
		"stddev_sbp":             unwrap(row.StddevSBP),
		"trend_1_conductivity":   unwrap(row.Trend1Conductivity),
		"trend_1_sbp":            unwrap(row.Trend1SBP),
		"label":                  row.Label,
	}
}

func unwrap(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
