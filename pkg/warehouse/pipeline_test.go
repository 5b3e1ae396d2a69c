package warehouse

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/renalytics-ai/platform/pkg/common/config"
	"github.com/renalytics-ai/platform/pkg/common/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func testTables() Tables {
	return Tables{
		MachineData:  "proj.ds.machine_data",
		Sessionized:  "proj.ds.sessionized",
		Registration: "proj.ds.registration",
		Demographics: "proj.ds.demographics",
		Features:     "proj.ds.features",
	}
}

func testParams() config.PipelineParams {
	return config.PipelineParams{
		SessionWindowHours:  12,
		IntervalMinutes:     15,
		RollingWindow:       4,
		PredictionIntervals: 5,
		HypotensionLimit:    90,
	}
}

func TestSessionizeSQL(t *testing.T) {
	sql := SessionizeSQL("proj.ds.machine_data", "proj.ds.sessionized", 12)

	for _, want := range []string{
		"CREATE OR REPLACE TABLE `proj.ds.sessionized`",
		"`proj.ds.machine_data`",
		") > 12",
		// Zero-based ordinals: the running new-session count minus one.
		"SUM(is_new_session) OVER (PARTITION BY pid ORDER BY datatime) - 1",
		"MIN(datatime) OVER (PARTITION BY session_id) AS session_start_ts",
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("sessionize SQL missing %q", want)
		}
	}
}

func TestFeaturesSQL(t *testing.T) {
	sql := FeaturesSQL(testTables(), testParams())

	for _, want := range []string{
		"CREATE OR REPLACE TABLE `proj.ds.features`",
		"DATE(m.session_start_ts) = DATE(SAFE.TIMESTAMP_MICROS(CAST(r.keyindate / 1000 AS INT64)))",
		"DIV(UNIX_SECONDS(measurement_timestamp), 15 * 60) * (15 * 60)",
		// Rolling window of 4 is the current row plus 3 preceding.
		"ROWS BETWEEN 3 PRECEDING AND CURRENT ROW",
		"MAX(IF(min_sbp < 90, 1, 0)) OVER (PARTITION BY session_id ORDER BY time_bin ROWS BETWEEN 1 FOLLOWING AND 5 FOLLOWING)",
		"CASE WHEN ABS(MOD(FARM_FINGERPRINT(session_id), 10)) < 8 THEN 'TRAIN' ELSE 'TEST' END",
		"COALESCE(hypotension_ahead, 0) AS label",
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("features SQL missing %q", want)
		}
	}
}

func TestTrainModelSQL(t *testing.T) {
	model := ModelRef{Project: "proj", Dataset: "ds", Name: "idh_classifier"}
	sql := TrainModelSQL(model, "proj.ds.features", []string{"avg_sbp", "min_sbp"})

	for _, want := range []string{
		"CREATE OR REPLACE MODEL `proj.ds.idh_classifier`",
		"MODEL_TYPE='BOOSTED_TREE_CLASSIFIER'",
		"avg_sbp,\n      min_sbp,\n      label",
		"dataset_split = 'TRAIN'",
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("train SQL missing %q", want)
		}
	}
}

func TestSplitForIsDeterministic(t *testing.T) {
	for _, id := range []string{"p1_0", "p1_1", "p2_0"} {
		first := SplitFor(id)
		for i := 0; i < 10; i++ {
			if got := SplitFor(id); got != first {
				t.Fatalf("SplitFor(%q) flapped: %s then %s", id, first, got)
			}
		}
		if first != SplitTrain && first != SplitTest {
			t.Fatalf("SplitFor(%q) = %q", id, first)
		}
	}
}

func TestSplitBucketHandlesExtremeFingerprints(t *testing.T) {
	// The remainder is taken before the sign is stripped, so even MinInt64,
	// whose negation overflows, lands in a valid bucket: 2^63 mod 10 = 8.
	if got := splitBucket(math.MinInt64); got != 8 {
		t.Fatalf("splitBucket(MinInt64) = %d, want 8", got)
	}
	cases := map[int64]int64{
		math.MaxInt64: 7, // 2^63-1 mod 10
		-3:            3,
		-20:           0,
		17:            7,
		0:             0,
	}
	for v, want := range cases {
		if got := splitBucket(v); got != want {
			t.Fatalf("splitBucket(%d) = %d, want %d", v, got, want)
		}
	}
}

func TestSplitForRatio(t *testing.T) {
	train := 0
	const n = 5000
	for i := 0; i < n; i++ {
		if SplitFor(fmt.Sprintf("patient%d_%d", i%700, i%9)) == SplitTrain {
			train++
		}
	}
	ratio := float64(train) / n
	if ratio < 0.75 || ratio > 0.85 {
		t.Fatalf("train ratio %f outside 80%% band", ratio)
	}
}

// fakeRunner records statements and reports table readiness after a set
// number of polls.
type fakeRunner struct {
	queries     []string
	pollsNeeded int
	polls       int
}

func (f *fakeRunner) RunQuery(ctx context.Context, sql string) error {
	f.queries = append(f.queries, sql)
	return nil
}

func (f *fakeRunner) TableExists(ctx context.Context, tableID string) (bool, error) {
	f.polls++
	return f.polls >= f.pollsNeeded, nil
}

func TestPipelineStages(t *testing.T) {
	runner := &fakeRunner{}
	p := NewPipeline(runner, testTables(), testParams())

	if err := p.SessionizeMachineData(context.Background()); err != nil {
		t.Fatalf("sessionize: %v", err)
	}
	if err := p.BuildFeatures(context.Background()); err != nil {
		t.Fatalf("build features: %v", err)
	}
	if err := p.TrainModel(context.Background(), ModelRef{Project: "proj", Dataset: "ds", Name: "m"}, []string{"avg_sbp"}); err != nil {
		t.Fatalf("train: %v", err)
	}

	if len(runner.queries) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(runner.queries))
	}
	if !strings.Contains(runner.queries[0], "proj.ds.sessionized") {
		t.Fatal("first statement should create the sessionized table")
	}
	if !strings.Contains(runner.queries[1], "proj.ds.features") {
		t.Fatal("second statement should create the features table")
	}
}

func TestWaitForTable(t *testing.T) {
	runner := &fakeRunner{pollsNeeded: 1}
	if err := WaitForTable(context.Background(), runner, "proj.ds.features", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.polls != 1 {
		t.Fatalf("expected 1 poll, got %d", runner.polls)
	}
}

func TestWaitForTableHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &fakeRunner{pollsNeeded: 100}
	err := WaitForTable(ctx, runner, "proj.ds.features", 3)
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
}
