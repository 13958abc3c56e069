// Copyright 2025 James Ross
package metricsengine

import (
	"testing"

	"github.com/driftguard/driftguard/internal/events"
)

func floatp(v float64) *float64 { return &v }
func intp(v int) *int           { return &v }

func TestComputeEmptyWindow(t *testing.T) {
	dm := Compute(events.Key{}, "2024-01-01", nil)
	if dm.NEvents != 0 {
		t.Fatalf("expected 0 events, got %d", dm.NEvents)
	}
}

func TestComputeLatencyPercentiles(t *testing.T) {
	var evs []events.Event
	for i := 1; i <= 100; i++ {
		evs = append(evs, events.Event{LatencyMs: floatp(float64(i)), Features: map[string]interface{}{"x": 1.0}})
	}
	dm := Compute(events.Key{}, "2024-01-01", evs)
	if dm.LatencyP50Ms < 49 || dm.LatencyP50Ms > 51 {
		t.Fatalf("expected p50 near 50, got %v", dm.LatencyP50Ms)
	}
	if dm.LatencyP95Ms < 94 || dm.LatencyP95Ms > 96 {
		t.Fatalf("expected p95 near 95, got %v", dm.LatencyP95Ms)
	}
}

func TestComputeYPredRateAndFeatureStats(t *testing.T) {
	evs := []events.Event{
		{YPred: intp(1), Features: map[string]interface{}{"x": 1.0}},
		{YPred: intp(0), Features: map[string]interface{}{"x": 3.0}},
	}
	dm := Compute(events.Key{}, "2024-01-01", evs)
	if dm.YPredRate != 0.5 {
		t.Fatalf("expected y_pred_rate 0.5, got %v", dm.YPredRate)
	}
	stat := dm.FeatureStats["x"]
	if stat.Mean != 2.0 {
		t.Fatalf("expected mean 2.0, got %v", stat.Mean)
	}
}
