package payload

import (
	"testing"
	"time"

	"github.com/renalytics-ai/platform/pkg/common/models"
	"github.com/renalytics-ai/platform/pkg/features/aggregate"
)

func sampleRow() models.FeatureRow {
	return models.FeatureRow{
		PID:       "p1",
		SessionID: "p1_0",
		TimeBin:   time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC),
		Gender:    "F",
		AvgSBP:    models.Float(118),
		MinSBP:    models.Float(110),
	}
}

func TestBuildDefaultsToModelFeatures(t *testing.T) {
	body, err := Build([]models.FeatureRow{sampleRow()}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(body.Instances) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(body.Instances))
	}
	instance := body.Instances[0]
	if len(instance) != len(aggregate.ModelFeatures) {
		t.Fatalf("expected %d features, got %d", len(aggregate.ModelFeatures), len(instance))
	}
	if instance["avg_sbp"] != 118.0 {
		t.Fatalf("expected avg_sbp 118, got %v", instance["avg_sbp"])
	}
	// Null features serialize as explicit nulls, never defaults.
	if v, ok := instance["stddev_sbp"]; !ok || v != nil {
		t.Fatalf("expected nil stddev_sbp, got %v", v)
	}
}

func TestBuildSelectsNamedFeatures(t *testing.T) {
	body, err := Build([]models.FeatureRow{sampleRow()}, []string{"avg_sbp", "min_sbp"}, map[string]interface{}{"threshold": 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	instance := body.Instances[0]
	if len(instance) != 2 {
		t.Fatalf("expected 2 features, got %d", len(instance))
	}
	if instance["min_sbp"] != 110.0 {
		t.Fatalf("expected min_sbp 110, got %v", instance["min_sbp"])
	}
	if body.Parameters["threshold"] != 0.5 {
		t.Fatal("parameters must pass through")
	}
}

func TestBuildRejectsUnknownFeature(t *testing.T) {
	if _, err := Build([]models.FeatureRow{sampleRow()}, []string{"avg_sbp", "no_such_column"}, nil); err == nil {
		t.Fatal("expected schema mismatch error for unknown feature")
	}
}

func TestBuildEmptyRows(t *testing.T) {
	body, err := Build(nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(body.Instances) != 0 {
		t.Fatalf("expected no instances, got %d", len(body.Instances))
	}
}
