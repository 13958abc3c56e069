// Copyright 2025 James Ross
// Package alerts implements idempotent alert creation under unique-key
// contention: the (project, model, endpoint, day, rule) uniqueness
// constraint at the storage level is the sole dedup boundary.
package alerts

import (
	"context"
	"time"

	"github.com/driftguard/driftguard/internal/events"
)

// Alert is the persisted record of one raised alert.
type Alert struct {
	Key       events.Key
	Day       string
	Rule      string
	Severity  string
	Value     float64
	Threshold float64
	Payload   map[string]interface{}
	CreatedAt time.Time
}

// Store is the persistence surface the alert service needs.
type Store interface {
	// InsertAlertOnce attempts to insert one row, relying on a storage-level
	// unique constraint over (project, model, endpoint, day, rule) for
	// deduplication. On a unique-violation it must return (false, nil, nil)
	// rather than surfacing a conflict as an error - no SELECT-then-INSERT.
	InsertAlertOnce(ctx context.Context, a Alert) (created bool, row *Alert, err error)
	ListAlerts(ctx context.Context, filter ListFilter) ([]Alert, error)
}

type ListFilter struct {
	ProjectID string
	ModelID   string
	Endpoint  string
	Rule      string
	Limit     int
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// CreateOnce implements §4.7's create_alert_once: attempt the insert and
// report whether this call won the race. No ordering is guaranteed among
// concurrent callers beyond exactly one winning.
func (s *Service) CreateOnce(ctx context.Context, key events.Key, day, rule, severity string, value, threshold float64, payload map[string]interface{}) (created bool, row *Alert, err error) {
	a := Alert{
		Key:       key,
		Day:       day,
		Rule:      rule,
		Severity:  severity,
		Value:     value,
		Threshold: threshold,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	return s.store.InsertAlertOnce(ctx, a)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Alert, error) {
	return s.store.ListAlerts(ctx, filter)
}
