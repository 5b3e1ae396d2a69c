// Package aggregate bins enriched session telemetry into fixed time
// intervals and computes the aggregate, lag, trend, rolling-window, and label
// features consumed by the hypotension classifier.
//
// The warehouse pipeline in pkg/warehouse expresses the same computation as a
// declarative plan; for identical inputs and parameters the two must agree to
// floating-point tolerance.
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/renalytics-ai/platform/pkg/common/models"
)

// Params controls the aggregation. Zero values fall back to the reference
// defaults.
type Params struct {
	IntervalMinutes     int     // bin width, default 15
	RollingWindow       int     // current row + N-1 preceding, default 4
	PredictionIntervals int     // forward look-ahead bins for the label, default 5
	HypotensionLimit    float64 // systolic BP threshold in mmHg, default 90
}

func (p Params) withDefaults() Params {
	if p.IntervalMinutes <= 0 {
		p.IntervalMinutes = 15
	}
	if p.RollingWindow <= 0 {
		p.RollingWindow = 4
	}
	if p.PredictionIntervals <= 0 {
		p.PredictionIntervals = 5
	}
	if p.HypotensionLimit <= 0 {
		p.HypotensionLimit = 90
	}
	return p
}

type binKey struct {
	pid       string
	sessionID string
	bin       time.Time
}

// bin accumulates raw measurements for one (pid, session, time_bin) group in
// input order.
type bin struct {
	key binKey

	sbp          []float64
	dbp          []float64
	dialTemp     []float64
	conductivity []float64
	ufRate       []float64
	bloodFlow    []float64

	weightStart   *float64
	dryWeight     *float64
	gender        string
	genderSet     bool
	birthYear     int
	diabetes      int
	sessionStart  time.Time
	firstDialysis time.Time
}

// Aggregate turns enriched records into feature rows. Records must carry the
// sort order established at sessionization time; "first"-style aggregates are
// taken in that order. Records with a nil timestamp cannot be binned and are
// skipped, matching the null-filtering of the bulk plan. A session id
// appearing under more than one patient is a hard error.
func Aggregate(records []models.EnrichedRecord, params Params) ([]models.FeatureRow, error) {
	params = params.withDefaults()
	width := int64(params.IntervalMinutes) * 60

	if err := checkSessionOwnership(records); err != nil {
		return nil, err
	}

	bins := make(map[binKey]*bin)
	order := make([]binKey, 0)

	for _, rec := range records {
		if rec.Timestamp == nil {
			continue
		}
		key := binKey{pid: rec.PID, sessionID: rec.SessionID, bin: binStart(*rec.Timestamp, width)}
		b, ok := bins[key]
		if !ok {
			b = &bin{
				key:           key,
				birthYear:     rec.BirthYear,
				diabetes:      rec.Diabetes,
				sessionStart:  rec.SessionStart,
				firstDialysis: rec.FirstDialysisTS,
			}
			bins[key] = b
			order = append(order, key)
		}
		appendValue(&b.sbp, rec.SBP)
		appendValue(&b.dbp, rec.DBP)
		appendValue(&b.dialTemp, rec.DialTemp)
		appendValue(&b.conductivity, rec.Conductivity)
		appendValue(&b.ufRate, rec.UFRate)
		appendValue(&b.bloodFlow, rec.BloodFlow)
		if b.weightStart == nil {
			b.weightStart = rec.WeightStart
		}
		if b.dryWeight == nil {
			b.dryWeight = rec.DryWeight
		}
		if !b.genderSet && rec.Gender != "" {
			b.gender = rec.Gender
			b.genderSet = true
		}
	}

	rows := make([]models.FeatureRow, 0, len(order))
	for _, key := range order {
		rows = append(rows, buildRow(bins[key]))
	}

	// Lag, rolling, and label features all assume this ordering.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SessionID != rows[j].SessionID {
			return rows[i].SessionID < rows[j].SessionID
		}
		return rows[i].TimeBin.Before(rows[j].TimeBin)
	})

	for start, end := 0, 0; start < len(rows); start = end {
		for end = start; end < len(rows) && rows[end].SessionID == rows[start].SessionID; end++ {
		}
		windowFeatures(rows[start:end], params)
	}

	return rows, nil
}

// binStart floors a timestamp to the interval width in seconds, anchored on
// the Unix epoch. The warehouse plan bins with
// DIV(UNIX_SECONDS(ts), w) * w, so the origin must be the epoch here too;
// flooring against any other origin shifts bins for widths that do not
// divide the offset between the origins.
func binStart(ts time.Time, width int64) time.Time {
	return time.Unix(ts.Unix()/width*width, 0).UTC()
}

func checkSessionOwnership(records []models.EnrichedRecord) error {
	owners := make(map[string]string)
	for _, rec := range records {
		if owner, ok := owners[rec.SessionID]; ok {
			if owner != rec.PID {
				return fmt.Errorf("session %s spans patients %s and %s", rec.SessionID, owner, rec.PID)
			}
			continue
		}
		owners[rec.SessionID] = rec.PID
	}
	return nil
}

func buildRow(b *bin) models.FeatureRow {
	row := models.FeatureRow{
		PID:             b.key.pid,
		SessionID:       b.key.sessionID,
		TimeBin:         b.key.bin,
		Diabetes:        b.diabetes,
		Gender:          b.gender,
		AvgSBP:          mean(b.sbp),
		MinSBP:          min(b.sbp),
		StddevSBP:       stddev(b.sbp),
		AvgDBP:          mean(b.dbp),
		AvgDialTemp:     mean(b.dialTemp),
		AvgConductivity: mean(b.conductivity),
		AvgUFRate:       mean(b.ufRate),
		AvgBloodFlow:    mean(b.bloodFlow),
	}

	row.AgeAtSession = b.sessionStart.Year() - b.birthYear
	days := math.Floor(b.sessionStart.Sub(b.firstDialysis).Hours() / 24)
	row.DialysisVintageYears = days / 365.25
	if b.weightStart != nil && b.dryWeight != nil {
		row.FluidToRemove = models.Float(*b.weightStart - *b.dryWeight)
	}
	row.MinutesIntoSession = b.key.bin.Sub(b.sessionStart).Minutes()
	return row
}

// windowFeatures fills lag, trend, rolling, and label fields for the bins of
// one session, already ordered by time bin.
func windowFeatures(rows []models.FeatureRow, params Params) {
	for i := range rows {
		if i > 0 {
			prev := rows[i-1]
			rows[i].Lag1AvgSBP = clone(prev.AvgSBP)
			rows[i].Lag1AvgUFRate = clone(prev.AvgUFRate)
			rows[i].Trend1SBP = diff(rows[i].AvgSBP, prev.AvgSBP)
			rows[i].Trend1Conductivity = diff(rows[i].AvgConductivity, prev.AvgConductivity)
		}

		lo := i - params.RollingWindow + 1
		if lo < 0 {
			lo = 0
		}
		var window []float64
		for j := lo; j <= i; j++ {
			if rows[j].AvgSBP != nil {
				window = append(window, *rows[j].AvgSBP)
			}
		}
		rows[i].RollingAvgSBP = mean(window)
		rows[i].RollingMaxSBP = max(window)
		rows[i].RollingStddevSBP = stddev(window)
	}

	hypotensive := make([]bool, len(rows))
	for i, row := range rows {
		hypotensive[i] = row.MinSBP != nil && *row.MinSBP < params.HypotensionLimit
	}
	for i := range rows {
		rows[i].Label = 0
		hi := i + params.PredictionIntervals
		if hi > len(rows)-1 {
			hi = len(rows) - 1
		}
		for j := i + 1; j <= hi; j++ {
			if hypotensive[j] {
				rows[i].Label = 1
				break
			}
		}
	}
}

func appendValue(dst *[]float64, v *float64) {
	if v != nil {
		*dst = append(*dst, *v)
	}
}

func mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return models.Float(sum / float64(len(values)))
}

func min(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return models.Float(m)
}

func max(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return models.Float(m)
}

// stddev is the sample standard deviation (n-1), nil below two observations,
// matching both the dataframe and warehouse STDDEV semantics.
func stddev(values []float64) *float64 {
	if len(values) < 2 {
		return nil
	}
	m := *mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return models.Float(math.Sqrt(sum / float64(len(values)-1)))
}

func clone(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return models.Float(*v)
}

func diff(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	return models.Float(*a - *b)
}
