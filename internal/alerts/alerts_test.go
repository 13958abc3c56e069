// Copyright 2025 James Ross
package alerts

import (
	"context"
	"testing"

	"github.com/driftguard/driftguard/internal/events"
)

// fakeStore emulates a unique-constraint-backed table in memory: the
// second insert for the same (key, day, rule) loses the race.
type fakeStore struct {
	rows map[string]Alert
}

func newFakeStore() *fakeStore { return &fakeStore{rows: map[string]Alert{}} }

func (f *fakeStore) InsertAlertOnce(ctx context.Context, a Alert) (bool, *Alert, error) {
	k := a.Key.ProjectID + "|" + a.Key.ModelID + "|" + a.Key.Endpoint + "|" + a.Day + "|" + a.Rule
	if _, exists := f.rows[k]; exists {
		return false, nil, nil
	}
	f.rows[k] = a
	return true, &a, nil
}

func (f *fakeStore) ListAlerts(ctx context.Context, filter ListFilter) ([]Alert, error) {
	var out []Alert
	for _, a := range f.rows {
		out = append(out, a)
	}
	return out, nil
}

func TestCreateOnceDedups(t *testing.T) {
	svc := NewService(newFakeStore())
	key := events.Key{ProjectID: "p", ModelID: "m", Endpoint: "e"}

	created1, row1, err := svc.CreateOnce(context.Background(), key, "2024-01-01", "drift", "ALERT", 0.4, 0.25, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !created1 || row1 == nil {
		t.Fatalf("expected first call to create the alert")
	}

	created2, row2, err := svc.CreateOnce(context.Background(), key, "2024-01-01", "drift", "ALERT", 0.4, 0.25, nil)
	if err != nil {
		t.Fatal(err)
	}
	if created2 || row2 != nil {
		t.Fatalf("expected second call to lose the race, got created=%v row=%v", created2, row2)
	}
}

func TestCreateOnceDistinctRulesIndependent(t *testing.T) {
	svc := NewService(newFakeStore())
	key := events.Key{ProjectID: "p", ModelID: "m", Endpoint: "e"}

	c1, _, _ := svc.CreateOnce(context.Background(), key, "2024-01-01", "drift", "ALERT", 0.4, 0.25, nil)
	c2, _, _ := svc.CreateOnce(context.Background(), key, "2024-01-01", "cost_spike", "WARN", 10, 5, nil)
	if !c1 || !c2 {
		t.Fatalf("expected distinct rule names to partition the namespace independently")
	}
}
