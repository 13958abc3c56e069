// Copyright 2025 James Ross
package worker

import (
	"context"
	"testing"
	"time"

	"github.com/driftguard/driftguard/internal/alerts"
	"github.com/driftguard/driftguard/internal/baseline"
	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/internal/drift"
	"github.com/driftguard/driftguard/internal/events"
	"github.com/driftguard/driftguard/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeStore is an in-memory double satisfying worker.Store.
type fakeStore struct {
	keys       []events.Key
	projects   []string
	events     map[string][]events.Event
	baselines  map[string][]baseline.FeatureBaseline
	dailyDrift map[string]drift.DailyDrift
	dailyCosts map[string]float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:     map[string][]events.Event{},
		baselines:  map[string][]baseline.FeatureBaseline{},
		dailyDrift: map[string]drift.DailyDrift{},
		dailyCosts: map[string]float64{},
	}
}

func keyStr(k events.Key) string { return k.ProjectID + "|" + k.ModelID + "|" + k.Endpoint }

func (f *fakeStore) DiscoverKeys(ctx context.Context) ([]events.Key, error)       { return f.keys, nil }
func (f *fakeStore) DiscoverProjects(ctx context.Context) ([]string, error)      { return f.projects, nil }
func (f *fakeStore) UpsertDailyMetric(ctx context.Context, key events.Key, day string, dm store.DailyMetricRow) error {
	return nil
}
func (f *fakeStore) UpsertDailyCost(ctx context.Context, projectID, day string, amount float64, currency string) error {
	f.dailyCosts[projectID+"|"+day] = amount
	return nil
}
func (f *fakeStore) GetBaseline(ctx context.Context, key events.Key, feature string) (*baseline.FeatureBaseline, error) {
	for _, b := range f.baselines[keyStr(key)] {
		if b.Feature == feature {
			return &b, nil
		}
	}
	return nil, nil
}
func (f *fakeStore) GetBaselines(ctx context.Context, key events.Key) ([]baseline.FeatureBaseline, error) {
	return f.baselines[keyStr(key)], nil
}
func (f *fakeStore) EventsInWindow(ctx context.Context, key events.Key, start, end time.Time) ([]events.Event, error) {
	return f.events[keyStr(key)], nil
}
func (f *fakeStore) GetDailyDrift(ctx context.Context, key events.Key, day string) (*drift.DailyDrift, error) {
	dd, ok := f.dailyDrift[keyStr(key)+"|"+day]
	if !ok {
		return nil, nil
	}
	return &dd, nil
}
func (f *fakeStore) UpsertDailyDrift(ctx context.Context, dd drift.DailyDrift, overwrite bool) error {
	f.dailyDrift[keyStr(dd.Key)+"|"+dd.Day] = dd
	return nil
}

// fakeAlertStore emulates the unique-constraint dedup boundary in memory.
type fakeAlertStore struct {
	rows map[string]alerts.Alert
}

func newFakeAlertStore() *fakeAlertStore { return &fakeAlertStore{rows: map[string]alerts.Alert{}} }

func (f *fakeAlertStore) InsertAlertOnce(ctx context.Context, a alerts.Alert) (bool, *alerts.Alert, error) {
	k := a.Key.ProjectID + "|" + a.Key.ModelID + "|" + a.Key.Endpoint + "|" + a.Day + "|" + a.Rule
	if _, exists := f.rows[k]; exists {
		return false, nil, nil
	}
	f.rows[k] = a
	return true, &a, nil
}

func (f *fakeAlertStore) ListAlerts(ctx context.Context, filter alerts.ListFilter) ([]alerts.Alert, error) {
	var out []alerts.Alert
	for _, a := range f.rows {
		out = append(out, a)
	}
	return out, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Worker.Timezone = "UTC"
	cfg.Worker.DayOffset = 1
	cfg.Worker.DriftMinSamples = 10
	cfg.Worker.AlertThreshold = 0.25
	return cfg
}

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return zap.New(core), logs
}

func numericEvents(key events.Key, feature string, n int, lo, hi float64) []events.Event {
	out := make([]events.Event, n)
	span := hi - lo
	for i := 0; i < n; i++ {
		v := lo
		if n > 1 {
			v = lo + span*float64(i)/float64(n-1)
		}
		out[i] = events.Event{
			ProjectID: key.ProjectID, ModelID: key.ModelID, Endpoint: key.Endpoint,
			Features: map[string]interface{}{feature: v},
		}
	}
	return out
}

// TestRunIterationSkipsKeysWithoutBaselines exercises §8 scenario 6: with no
// baselines captured anywhere, a full iteration logs an informational skip
// for every key and emits no error-level lines.
func TestRunIterationSkipsKeysWithoutBaselines(t *testing.T) {
	key := events.Key{ProjectID: "p1", ModelID: "m1", Endpoint: "e1"}
	st := newFakeStore()
	st.keys = []events.Key{key}

	log, logs := newObservedLogger()
	w := New(testConfig(), st, alerts.NewService(newFakeAlertStore()), nil, nil, log)
	w.runIteration(context.Background())

	for _, entry := range logs.All() {
		require.NotEqual(t, zapcore.ErrorLevel, entry.Level, "unexpected error log: %s", entry.Message)
	}
	found := false
	for _, entry := range logs.All() {
		if entry.Message == "worker: skipped (no baselines)" {
			found = true
		}
	}
	require.True(t, found, "expected a skip log for the baseline-less key")
}

// TestRunIterationSkipsLowSample exercises the NotEnoughData classification:
// a baseline exists but the day's sample is below min_samples, which must
// log informationally rather than as an error.
func TestRunIterationSkipsLowSample(t *testing.T) {
	key := events.Key{ProjectID: "p1", ModelID: "m1", Endpoint: "e1"}
	st := newFakeStore()
	st.keys = []events.Key{key}
	st.baselines[keyStr(key)] = []baseline.FeatureBaseline{{
		ProjectID: key.ProjectID, ModelID: key.ModelID, Endpoint: key.Endpoint,
		Feature: "x", FeatureType: baseline.Numeric,
		Definition:   baseline.Definition{Type: baseline.Numeric, BinEdges: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		BaselineProb: []float64{.1, .1, .1, .1, .1, .1, .1, .1, .1, .1},
		NBaseline:    100,
	}}
	st.events[keyStr(key)] = numericEvents(key, "x", 3, 0, 10)

	log, logs := newObservedLogger()
	w := New(testConfig(), st, alerts.NewService(newFakeAlertStore()), nil, nil, log)
	w.runIteration(context.Background())

	for _, entry := range logs.All() {
		require.NotEqual(t, zapcore.ErrorLevel, entry.Level, "unexpected error log: %s", entry.Message)
	}
}

// TestRunIterationCreatesAlertOnBreach exercises the §2 data-flow contract:
// a threshold-breaching drift compute writes exactly one deduplicated alert.
func TestRunIterationCreatesAlertOnBreach(t *testing.T) {
	key := events.Key{ProjectID: "p1", ModelID: "m1", Endpoint: "e1"}
	st := newFakeStore()
	st.keys = []events.Key{key}
	st.baselines[keyStr(key)] = []baseline.FeatureBaseline{{
		ProjectID: key.ProjectID, ModelID: key.ModelID, Endpoint: key.Endpoint,
		Feature: "x", FeatureType: baseline.Numeric,
		Definition:   baseline.Definition{Type: baseline.Numeric, BinEdges: []float64{0, .1, .2, .3, .4, .5, .6, .7, .8, .9, 1}},
		BaselineProb: []float64{.1, .1, .1, .1, .1, .1, .1, .1, .1, .1},
		NBaseline:    500,
	}}
	// Entirely out-of-range values clamp to the last bin -> maximal PSI.
	st.events[keyStr(key)] = numericEvents(key, "x", 50, 2, 3)

	alertStore := newFakeAlertStore()
	log, _ := newObservedLogger()
	w := New(testConfig(), st, alerts.NewService(alertStore), nil, nil, log)
	w.runIteration(context.Background())

	require.Len(t, alertStore.rows, 1)
	for _, a := range alertStore.rows {
		require.Equal(t, "drift", a.Rule)
		require.Equal(t, "ALERT", a.Severity)
	}

	// A second iteration must not create a duplicate row for the same day.
	w.runIteration(context.Background())
	require.Len(t, alertStore.rows, 1)
}
