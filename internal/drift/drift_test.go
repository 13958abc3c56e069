// Copyright 2025 James Ross
package drift

import (
	"context"
	"testing"
	"time"

	"github.com/driftguard/driftguard/internal/apperr"
	"github.com/driftguard/driftguard/internal/baseline"
	"github.com/driftguard/driftguard/internal/events"
)

type fakeStore struct {
	baselines map[string]baseline.FeatureBaseline
	evs       []events.Event
	drift     map[string]DailyDrift
}

func newFakeStore() *fakeStore {
	return &fakeStore{baselines: map[string]baseline.FeatureBaseline{}, drift: map[string]DailyDrift{}}
}

func (f *fakeStore) GetBaseline(ctx context.Context, key events.Key, feature string) (*baseline.FeatureBaseline, error) {
	b, ok := f.baselines[feature]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f *fakeStore) GetBaselines(ctx context.Context, key events.Key) ([]baseline.FeatureBaseline, error) {
	out := make([]baseline.FeatureBaseline, 0, len(f.baselines))
	for _, b := range f.baselines {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeStore) EventsInWindow(ctx context.Context, key events.Key, start, end time.Time) ([]events.Event, error) {
	return f.evs, nil
}

func (f *fakeStore) GetDailyDrift(ctx context.Context, key events.Key, day string) (*DailyDrift, error) {
	dd, ok := f.drift[day]
	if !ok {
		return nil, nil
	}
	return &dd, nil
}

func (f *fakeStore) UpsertDailyDrift(ctx context.Context, dd DailyDrift, overwrite bool) error {
	f.drift[dd.Day] = dd
	return nil
}

func uniformEvents(feature string, n int, lo, hi float64) []events.Event {
	out := make([]events.Event, n)
	span := hi - lo
	for i := 0; i < n; i++ {
		v := lo + span*float64(i)/float64(n)
		out[i] = events.Event{Features: map[string]interface{}{feature: v}}
	}
	return out
}

func TestDayWindowHalfOpen(t *testing.T) {
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	start, end, err := DayWindow(day, "America/Vancouver")
	if err != nil {
		t.Fatal(err)
	}
	// Midnight on 2024-03-10 is still PST (UTC-8); the spring-forward to PDT
	// happens later that morning at 2am local time.
	wantStart := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) {
		t.Fatalf("expected start %v, got %v", wantStart, start)
	}
	if end.Sub(start) != 24*time.Hour {
		t.Fatalf("expected a 24h window, got %v", end.Sub(start))
	}
}

func TestComputeAllIdentityDistributionIsOK(t *testing.T) {
	store := newFakeStore()
	store.baselines["x"] = baseline.FeatureBaseline{
		Feature:     "x",
		FeatureType: baseline.Numeric,
		Definition:  baseline.Definition{Type: baseline.Numeric, BinEdges: baseline.NumericEdges(linspace(0, 1, 500), 10)},
	}
	store.baselines["x"] = withProbs(store.baselines["x"], uniformEvents("x", 500, 0, 1))
	store.evs = uniformEvents("x", 500, 0, 1)

	key := events.Key{ProjectID: "p", ModelID: "m", Endpoint: "e"}
	res, err := ComputeAll(context.Background(), store, key, "2024-01-01", "UTC", 10, true, time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	fd := res.PSI["x"]
	if fd.Severity != "OK" {
		t.Fatalf("expected OK severity for identical distribution, got %v (psi=%v)", fd.Severity, fd.PSI)
	}
}

func TestComputeAllObviousShiftIsAlert(t *testing.T) {
	store := newFakeStore()
	baseSamples := uniformEvents("x", 500, 0, 1)
	edges := baseline.NumericEdges(toValues(baseSamples, "x"), 10)
	fb := baseline.FeatureBaseline{Feature: "x", FeatureType: baseline.Numeric, Definition: baseline.Definition{Type: baseline.Numeric, BinEdges: edges}}
	fb.BaselineProb = baseline.NumericHistogram(edges, toValues(baseSamples, "x"))
	store.baselines["x"] = fb
	store.evs = uniformEvents("x", 500, 2, 3)

	key := events.Key{ProjectID: "p", ModelID: "m", Endpoint: "e"}
	res, err := ComputeAll(context.Background(), store, key, "2024-01-01", "UTC", 10, true, time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	fd := res.PSI["x"]
	if fd.Severity != "ALERT" {
		t.Fatalf("expected ALERT severity for a complete shift, got %v (psi=%v)", fd.Severity, fd.PSI)
	}
}

func TestComputeAllNoBaselinesFails(t *testing.T) {
	store := newFakeStore()
	key := events.Key{ProjectID: "p", ModelID: "m", Endpoint: "e"}
	_, err := ComputeAll(context.Background(), store, key, "2024-01-01", "UTC", 10, true, time.Time{}, time.Time{})
	if !apperr.Is(err, apperr.NoBaselines) {
		t.Fatalf("expected NoBaselines, got %v", err)
	}
}

func TestComputeFeatureNotEnoughData(t *testing.T) {
	store := newFakeStore()
	edges := baseline.NumericEdges([]float64{0, 1}, 5)
	store.baselines["x"] = baseline.FeatureBaseline{Feature: "x", FeatureType: baseline.Numeric, Definition: baseline.Definition{Type: baseline.Numeric, BinEdges: edges}, BaselineProb: []float64{0.2, 0.2, 0.2, 0.2, 0.2}}
	store.evs = uniformEvents("x", 3, 0, 1)

	key := events.Key{ProjectID: "p", ModelID: "m", Endpoint: "e"}
	_, err := ComputeFeature(context.Background(), store, key, "2024-01-01", "x", "UTC", 10, time.Time{}, time.Time{})
	if !apperr.Is(err, apperr.NotEnoughData) {
		t.Fatalf("expected NotEnoughData, got %v", err)
	}
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = lo + (hi-lo)*float64(i)/float64(n)
	}
	return out
}

func toValues(evs []events.Event, feature string) []float64 {
	out := make([]float64, len(evs))
	for i, ev := range evs {
		out[i] = ev.Features[feature].(float64)
	}
	return out
}

func withProbs(fb baseline.FeatureBaseline, evs []events.Event) baseline.FeatureBaseline {
	values := toValues(evs, fb.Feature)
	fb.BaselineProb = baseline.NumericHistogram(fb.Definition.BinEdges, values)
	return fb
}
