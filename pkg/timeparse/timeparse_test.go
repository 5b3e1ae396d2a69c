package timeparse

import (
	"testing"
	"time"
)

func TestParseStringLayouts(t *testing.T) {
	want := time.Date(2023, 5, 10, 8, 30, 0, 0, time.UTC)
	cases := []string{
		"2023-05-10T08:30:00Z",
		"2023-05-10 08:30:00",
		"2023-05-10 08:30",
		"2023/05/10 08:30:00",
	}
	for _, in := range cases {
		got := Parse(in)
		if got == nil || !got.Equal(want) {
			t.Fatalf("Parse(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseDegradesToNil(t *testing.T) {
	for _, in := range []interface{}{nil, "", "   ", "not a time", time.Time{}, []byte("x")} {
		if got := Parse(in); got != nil {
			t.Fatalf("Parse(%v) = %v, want nil", in, got)
		}
	}
}

func TestFromEpochInfersUnit(t *testing.T) {
	want := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC) // 1700000000 seconds
	cases := map[string]int64{
		"seconds":      1700000000,
		"milliseconds": 1700000000000,
		"microseconds": 1700000000000000,
		"nanoseconds":  1700000000000000000,
	}
	for unit, v := range cases {
		got := FromEpoch(v)
		if got == nil || !got.Equal(want) {
			t.Fatalf("FromEpoch(%s %d) = %v, want %v", unit, v, got, want)
		}
	}

	if got := FromEpoch(0); got != nil {
		t.Fatalf("FromEpoch(0) = %v, want nil", got)
	}
}

func TestParseNumericString(t *testing.T) {
	got := Parse("1700000000")
	want := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	if got == nil || !got.Equal(want) {
		t.Fatalf("Parse epoch string = %v, want %v", got, want)
	}
}

func TestFromEpochRaw(t *testing.T) {
	want := time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC)
	got := FromEpochRaw(want.UnixNano())
	if !got.Equal(want) {
		t.Fatalf("FromEpochRaw = %v, want %v", got, want)
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	rows := []map[string]interface{}{
		{"datatime": "2023-05-10 08:00:00", "sbp": 120.0},
	}

	out := Normalize(rows)

	if _, ok := rows[0]["datatime"].(string); !ok {
		t.Fatal("input row mutated")
	}
	parsed, ok := out[0]["datatime"].(*time.Time)
	if !ok || parsed == nil {
		t.Fatalf("datatime not normalized: %v", out[0]["datatime"])
	}
	if out[0]["sbp"] != 120.0 {
		t.Fatal("non-time column must pass through untouched")
	}
}
