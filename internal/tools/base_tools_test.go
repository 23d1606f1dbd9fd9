package tools

import (
	"math"
	"testing"

	"github.com/dvloznov/finance-agent/internal/apperr"
)

func TestPercentChange(t *testing.T) {
	tests := []struct {
		name       string
		from, to   float64
		want       float64
	}{
		{"normal increase", 100, 150, 50},
		{"normal decrease", 200, 100, -50},
		{"from zero to positive", 0, 50, 100},
		{"from zero to zero", 0, 0, 0},
		{"negative base", -100, -50, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := percentChange(tt.from, tt.to); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("percentChange(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestMeanStdev(t *testing.T) {
	mean, stdev := meanStdev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if math.Abs(mean-5) > 1e-9 {
		t.Errorf("mean = %v, want 5", mean)
	}
	if math.Abs(stdev-2) > 1e-9 {
		t.Errorf("stdev = %v, want 2", stdev)
	}

	if m, s := meanStdev(nil); m != 0 || s != 0 {
		t.Errorf("meanStdev(nil) = (%v, %v), want (0, 0)", m, s)
	}
}

func TestSign(t *testing.T) {
	if sign(5) != 1 {
		t.Errorf("sign(5) != 1")
	}
	if sign(-3) != -1 {
		t.Errorf("sign(-3) != -1")
	}
	if sign(0) != 0 {
		t.Errorf("sign(0) != 0")
	}
}

func TestAvgPeakTrough(t *testing.T) {
	avg, peak, trough := avgPeakTrough([]float64{3, 1, 4, 1, 5})
	if math.Abs(avg-2.8) > 1e-9 {
		t.Errorf("avg = %v, want 2.8", avg)
	}
	if peak != 5 {
		t.Errorf("peak = %v, want 5", peak)
	}
	if trough != 1 {
		t.Errorf("trough = %v, want 1", trough)
	}
}

func TestParseWindow(t *testing.T) {
	start, end, err := parseWindow(map[string]any{"start_date": "2024-01-01", "end_date": "2024-01-31"}, "t")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.String() != "2024-01-01" || end.String() != "2024-01-31" {
		t.Errorf("got start=%v end=%v", start, end)
	}

	if _, _, err := parseWindow(map[string]any{"start_date": "2024-02-01", "end_date": "2024-01-01"}, "t"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected ValidationError for inverted range, got %v", err)
	}

	if _, _, err := parseWindow(map[string]any{"start_date": "not-a-date", "end_date": "2024-01-01"}, "t"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected ValidationError for unparseable date, got %v", err)
	}
}

func TestStringArray(t *testing.T) {
	got, err := stringArray(map[string]any{"tags": []any{"a", "b"}}, "tags")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("got %v", got)
	}

	if _, err := stringArray(map[string]any{"tags": "not-an-array"}, "tags"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected ValidationError for non-array, got %v", err)
	}
	if _, err := stringArray(map[string]any{"tags": []any{1, 2}}, "tags"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected ValidationError for non-string items, got %v", err)
	}
}

func TestMetricEnumAndSourceEnum(t *testing.T) {
	if len(metricEnum()) != 3 {
		t.Errorf("expected 3 metric options, got %d", len(metricEnum()))
	}
	if len(sourceEnum()) != 2 {
		t.Errorf("expected 2 source options, got %d", len(sourceEnum()))
	}
}
