// Copyright 2025 James Ross
// Package events defines the Event data model and ingestion-time validation.
package events

import (
	"time"

	"github.com/driftguard/driftguard/internal/apperr"
	"github.com/google/uuid"
)

// Key identifies the (project, model, endpoint) triple that partitions
// events and their derived views.
type Key struct {
	ProjectID string
	ModelID   string
	Endpoint  string
}

// Event is an immutable prediction record.
type Event struct {
	ID        string
	ProjectID string
	ModelID   string
	Endpoint  string
	Timestamp time.Time
	LatencyMs *float64
	YPred     *int
	YProba    *float64
	Features  map[string]interface{}
	RequestID string
	CreatedAt time.Time
}

func (e Event) Key() Key {
	return Key{ProjectID: e.ProjectID, ModelID: e.ModelID, Endpoint: e.Endpoint}
}

// Normalize fills in defaults (ID, UTC timestamp) and validates the event,
// returning an *apperr.Error with kind InvalidInput on a malformed event.
func Normalize(e Event) (Event, error) {
	if e.ProjectID == "" || e.ModelID == "" || e.Endpoint == "" {
		return e, apperr.New(apperr.InvalidInput, "project_id, model_id and endpoint are required")
	}
	if len(e.Features) == 0 {
		return e, apperr.New(apperr.InvalidInput, "features must be non-empty")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	} else {
		e.Timestamp = e.Timestamp.UTC()
	}
	if e.YProba != nil && (*e.YProba < 0 || *e.YProba > 1) {
		return e, apperr.New(apperr.InvalidInput, "y_proba must be in [0, 1]")
	}
	e.CreatedAt = time.Now().UTC()
	return e, nil
}

// NumericValue returns (value, true) if v should be classified numeric:
// a real or integer JSON scalar, excluding booleans. JSON decoding yields
// float64 for all JSON numbers and bool for JSON booleans, so the bool
// exclusion must be checked before the float64 type assertion.
func NumericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case bool:
		return 0, false
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// CategoricalValue returns (value, true) if v should be classified categorical.
func CategoricalValue(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
