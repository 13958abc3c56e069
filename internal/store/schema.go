// Copyright 2025 James Ross
// Package store is the Postgres-backed persistence layer for events,
// feature baselines, daily metrics, daily drift and alerts: plain
// parameterized database/sql + lib/pq, no ORM.
package store

import "database/sql"

// CreateSchema creates all tables and unique constraints the service needs,
// idempotently, if they do not already exist. Migrations beyond this are a
// collaborator concern (see cmd/driftguard's migrate role).
func CreateSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			model_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			latency_ms DOUBLE PRECISION,
			y_pred INTEGER,
			y_proba DOUBLE PRECISION,
			features JSONB NOT NULL,
			request_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_key_ts ON events (project_id, model_id, endpoint, ts)`,

		`CREATE TABLE IF NOT EXISTS feature_baselines (
			project_id TEXT NOT NULL,
			model_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			feature TEXT NOT NULL,
			feature_type TEXT NOT NULL,
			n_baseline INTEGER NOT NULL,
			definition JSONB NOT NULL,
			baseline_probs JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (project_id, model_id, endpoint, feature)
		)`,

		`CREATE TABLE IF NOT EXISTS daily_metrics (
			project_id TEXT NOT NULL,
			model_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			day DATE NOT NULL,
			n_events INTEGER NOT NULL,
			latency_p50_ms DOUBLE PRECISION NOT NULL,
			latency_p95_ms DOUBLE PRECISION NOT NULL,
			y_pred_rate DOUBLE PRECISION NOT NULL,
			y_proba_mean DOUBLE PRECISION NOT NULL,
			feature_stats JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (project_id, model_id, endpoint, day)
		)`,

		`CREATE TABLE IF NOT EXISTS daily_drift (
			project_id TEXT NOT NULL,
			model_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			day DATE NOT NULL,
			psi JSONB NOT NULL,
			max_psi_feature TEXT,
			max_psi DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (project_id, model_id, endpoint, day)
		)`,

		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			project_id TEXT NOT NULL,
			model_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			day DATE NOT NULL,
			rule TEXT NOT NULL,
			severity TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			threshold DOUBLE PRECISION NOT NULL,
			payload JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (project_id, model_id, endpoint, day, rule)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_key ON alerts (project_id, model_id, endpoint, created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS daily_costs (
			project_id TEXT NOT NULL,
			day DATE NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			currency TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (project_id, day)
		)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// CreateSchemaIfNeeded runs CreateSchema against the Store's own
// connection, for the migrate role.
func (s *Store) CreateSchemaIfNeeded() error {
	return CreateSchema(s.db)
}
