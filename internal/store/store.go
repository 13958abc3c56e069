// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/driftguard/driftguard/internal/alerts"
	"github.com/driftguard/driftguard/internal/baseline"
	"github.com/driftguard/driftguard/internal/drift"
	"github.com/driftguard/driftguard/internal/events"
	"github.com/driftguard/driftguard/internal/psi"

	_ "github.com/lib/pq"
)

// Store wraps *sql.DB with the query set the service needs. It implements
// drift.Store and alerts.Store so the engine packages depend on narrow
// interfaces rather than this concrete type.
type Store struct {
	db *sql.DB
}

func Open(dsn string, maxOpen, maxIdle int, connMaxLifetime time.Duration) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connMaxLifetime)
	return &Store{db: db}, nil
}

func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// --- events ---------------------------------------------------------------

func (s *Store) InsertEvents(ctx context.Context, evs []events.Event) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events
		(id, project_id, model_id, endpoint, ts, latency_ms, y_pred, y_proba, features, request_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range evs {
		featuresJSON, err := json.Marshal(e.Features)
		if err != nil {
			return inserted, err
		}
		res, err := stmt.ExecContext(ctx, e.ID, e.ProjectID, e.ModelID, e.Endpoint, e.Timestamp,
			e.LatencyMs, e.YPred, e.YProba, featuresJSON, nullableString(e.RequestID), e.CreatedAt)
		if err != nil {
			return inserted, err
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return inserted, err
	}
	return inserted, nil
}

func (s *Store) DiscoverProjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT project_id FROM events ORDER BY project_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) DiscoverKeys(ctx context.Context) ([]events.Key, error) {
	return s.discoverKeys(ctx, "")
}

func (s *Store) DiscoverModels(ctx context.Context, projectID string) ([]events.Key, error) {
	return s.discoverKeys(ctx, projectID)
}

func (s *Store) discoverKeys(ctx context.Context, projectID string) ([]events.Key, error) {
	query := `SELECT DISTINCT project_id, model_id, endpoint FROM events`
	args := []interface{}{}
	if projectID != "" {
		query += ` WHERE project_id = $1`
		args = append(args, projectID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []events.Key
	for rows.Next() {
		var k events.Key
		if err := rows.Scan(&k.ProjectID, &k.ModelID, &k.Endpoint); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) DiscoverDays(ctx context.Context, key events.Key) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT date_trunc('day', ts) FROM events
		WHERE project_id=$1 AND model_id=$2 AND endpoint=$3 ORDER BY 1`, key.ProjectID, key.ModelID, key.Endpoint)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) EventsInWindow(ctx context.Context, key events.Key, start, end time.Time) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, project_id, model_id, endpoint, ts, latency_ms, y_pred, y_proba, features, request_id, created_at
		FROM events WHERE project_id=$1 AND model_id=$2 AND endpoint=$3 AND ts >= $4 AND ts < $5
		ORDER BY ts ASC`, key.ProjectID, key.ModelID, key.Endpoint, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsMostRecentN loads the most recent n events for key, ascending by
// timestamp, for the "most recent n events" baseline-capture fallback.
func (s *Store) EventsMostRecentN(ctx context.Context, key events.Key, n int) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, project_id, model_id, endpoint, ts, latency_ms, y_pred, y_proba, features, request_id, created_at
		FROM (
			SELECT * FROM events WHERE project_id=$1 AND model_id=$2 AND endpoint=$3
			ORDER BY ts DESC LIMIT $4
		) recent ORDER BY ts ASC`, key.ProjectID, key.ModelID, key.Endpoint, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]events.Event, error) {
	var out []events.Event
	for rows.Next() {
		var e events.Event
		var featuresJSON []byte
		var requestID sql.NullString
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.ModelID, &e.Endpoint, &e.Timestamp,
			&e.LatencyMs, &e.YPred, &e.YProba, &featuresJSON, &requestID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if requestID.Valid {
			e.RequestID = requestID.String
		}
		if err := json.Unmarshal(featuresJSON, &e.Features); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- feature baselines ------------------------------------------------------

func (s *Store) UpsertBaseline(ctx context.Context, fb baseline.FeatureBaseline, overwrite bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if overwrite {
		if _, err := tx.ExecContext(ctx, `DELETE FROM feature_baselines
			WHERE project_id=$1 AND model_id=$2 AND endpoint=$3 AND feature=$4`,
			fb.ProjectID, fb.ModelID, fb.Endpoint, fb.Feature); err != nil {
			return err
		}
	}
	defJSON, err := json.Marshal(fb.Definition)
	if err != nil {
		return err
	}
	probsJSON, err := json.Marshal(fb.BaselineProb)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO feature_baselines
		(project_id, model_id, endpoint, feature, feature_type, n_baseline, definition, baseline_probs, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (project_id, model_id, endpoint, feature) DO UPDATE SET
			feature_type = EXCLUDED.feature_type,
			n_baseline = EXCLUDED.n_baseline,
			definition = EXCLUDED.definition,
			baseline_probs = EXCLUDED.baseline_probs,
			created_at = EXCLUDED.created_at`,
		fb.ProjectID, fb.ModelID, fb.Endpoint, fb.Feature, string(fb.FeatureType), fb.NBaseline, defJSON, probsJSON, fb.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetBaseline(ctx context.Context, key events.Key, feature string) (*baseline.FeatureBaseline, error) {
	row := s.db.QueryRowContext(ctx, `SELECT project_id, model_id, endpoint, feature, feature_type, n_baseline, definition, baseline_probs, created_at
		FROM feature_baselines WHERE project_id=$1 AND model_id=$2 AND endpoint=$3 AND feature=$4`,
		key.ProjectID, key.ModelID, key.Endpoint, feature)
	fb, err := scanBaselineRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return fb, err
}

func (s *Store) GetBaselines(ctx context.Context, key events.Key) ([]baseline.FeatureBaseline, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT project_id, model_id, endpoint, feature, feature_type, n_baseline, definition, baseline_probs, created_at
		FROM feature_baselines WHERE project_id=$1 AND model_id=$2 AND endpoint=$3`,
		key.ProjectID, key.ModelID, key.Endpoint)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []baseline.FeatureBaseline
	for rows.Next() {
		fb, err := scanBaselineRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBaselineRow(row rowScanner) (*baseline.FeatureBaseline, error) {
	fb, err := scanBaselineRows(row)
	if err != nil {
		return nil, err
	}
	return &fb, nil
}

func scanBaselineRows(row rowScanner) (baseline.FeatureBaseline, error) {
	var fb baseline.FeatureBaseline
	var featureType string
	var defJSON, probsJSON []byte
	if err := row.Scan(&fb.ProjectID, &fb.ModelID, &fb.Endpoint, &fb.Feature, &featureType, &fb.NBaseline, &defJSON, &probsJSON, &fb.CreatedAt); err != nil {
		return fb, err
	}
	fb.FeatureType = baseline.FeatureType(featureType)
	if err := json.Unmarshal(defJSON, &fb.Definition); err != nil {
		return fb, err
	}
	if err := json.Unmarshal(probsJSON, &fb.BaselineProb); err != nil {
		return fb, err
	}
	return fb, nil
}

// --- daily metrics -----------------------------------------------------------

func (s *Store) UpsertDailyMetric(ctx context.Context, key events.Key, day string, dm DailyMetricRow) error {
	statsJSON, err := json.Marshal(dm.FeatureStats)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO daily_metrics
		(project_id, model_id, endpoint, day, n_events, latency_p50_ms, latency_p95_ms, y_pred_rate, y_proba_mean, feature_stats, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (project_id, model_id, endpoint, day) DO UPDATE SET
			n_events = EXCLUDED.n_events,
			latency_p50_ms = EXCLUDED.latency_p50_ms,
			latency_p95_ms = EXCLUDED.latency_p95_ms,
			y_pred_rate = EXCLUDED.y_pred_rate,
			y_proba_mean = EXCLUDED.y_proba_mean,
			feature_stats = EXCLUDED.feature_stats`,
		key.ProjectID, key.ModelID, key.Endpoint, day, dm.NEvents, dm.LatencyP50Ms, dm.LatencyP95Ms,
		dm.YPredRate, dm.YProbaMean, statsJSON, time.Now().UTC())
	return err
}

type DailyMetricRow struct {
	NEvents      int
	LatencyP50Ms float64
	LatencyP95Ms float64
	YPredRate    float64
	YProbaMean   float64
	FeatureStats map[string]interface{}
}

func (s *Store) GetDailyMetric(ctx context.Context, key events.Key, day string) (*DailyMetricRow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT n_events, latency_p50_ms, latency_p95_ms, y_pred_rate, y_proba_mean, feature_stats
		FROM daily_metrics WHERE project_id=$1 AND model_id=$2 AND endpoint=$3 AND day=$4`,
		key.ProjectID, key.ModelID, key.Endpoint, day)
	var dm DailyMetricRow
	var statsJSON []byte
	if err := row.Scan(&dm.NEvents, &dm.LatencyP50Ms, &dm.LatencyP95Ms, &dm.YPredRate, &dm.YProbaMean, &statsJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(statsJSON, &dm.FeatureStats); err != nil {
		return nil, err
	}
	return &dm, nil
}

// --- daily drift -------------------------------------------------------------

func (s *Store) GetDailyDrift(ctx context.Context, key events.Key, day string) (*drift.DailyDrift, error) {
	row := s.db.QueryRowContext(ctx, `SELECT psi, max_psi_feature, max_psi FROM daily_drift
		WHERE project_id=$1 AND model_id=$2 AND endpoint=$3 AND day=$4`,
		key.ProjectID, key.ModelID, key.Endpoint, day)
	var psiJSON []byte
	var maxFeature sql.NullString
	var maxPSI float64
	if err := row.Scan(&psiJSON, &maxFeature, &maxPSI); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	var wire map[string]wireFeatureDrift
	if err := json.Unmarshal(psiJSON, &wire); err != nil {
		return nil, err
	}
	dd := drift.DailyDrift{Key: key, Day: day, PSI: map[string]drift.FeatureDrift{}, MaxPSI: maxPSI}
	if maxFeature.Valid {
		dd.MaxPSIFeature = maxFeature.String
	}
	for f, w := range wire {
		dd.PSI[f] = w.toFeatureDrift()
	}
	return &dd, nil
}

// UpsertDailyDrift persists a DailyDrift row with a full-row
// ON CONFLICT DO UPDATE, per the spec's guidance to recompute-and-replace
// the whole payload rather than relying on in-process read-modify-write
// across retries.
func (s *Store) UpsertDailyDrift(ctx context.Context, dd drift.DailyDrift, overwrite bool) error {
	wire := make(map[string]wireFeatureDrift, len(dd.PSI))
	for f, fd := range dd.PSI {
		wire[f] = fromFeatureDrift(fd)
	}
	psiJSON, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO daily_drift
		(project_id, model_id, endpoint, day, psi, max_psi_feature, max_psi, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (project_id, model_id, endpoint, day) DO UPDATE SET
			psi = EXCLUDED.psi,
			max_psi_feature = EXCLUDED.max_psi_feature,
			max_psi = EXCLUDED.max_psi`,
		dd.Key.ProjectID, dd.Key.ModelID, dd.Key.Endpoint, dd.Day, psiJSON, nullableString(dd.MaxPSIFeature), dd.MaxPSI, time.Now().UTC())
	return err
}

type wireFeatureDrift struct {
	PSI        float64  `json:"psi"`
	N          int      `json:"n"`
	Type       string   `json:"type"`
	Severity   string   `json:"severity"`
	Categories []string `json:"categories,omitempty"`
}

func fromFeatureDrift(fd drift.FeatureDrift) wireFeatureDrift {
	return wireFeatureDrift{PSI: fd.PSI, N: fd.N, Type: string(fd.Type), Severity: string(fd.Severity), Categories: fd.Categories}
}

func (w wireFeatureDrift) toFeatureDrift() drift.FeatureDrift {
	return drift.FeatureDrift{
		PSI:        w.PSI,
		N:          w.N,
		Type:       baseline.FeatureType(w.Type),
		Severity:   psi.Severity(w.Severity),
		Categories: w.Categories,
	}
}

// --- alerts -------------------------------------------------------------------

// InsertAlertOnce attempts the insert and translates a unique-violation into
// (false, nil, nil); it never SELECTs first to check existence.
func (s *Store) InsertAlertOnce(ctx context.Context, a alerts.Alert) (bool, *alerts.Alert, error) {
	payloadJSON, err := json.Marshal(a.Payload)
	if err != nil {
		return false, nil, err
	}
	row := s.db.QueryRowContext(ctx, `INSERT INTO alerts
		(project_id, model_id, endpoint, day, rule, severity, value, threshold, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (project_id, model_id, endpoint, day, rule) DO NOTHING
		RETURNING created_at`,
		a.Key.ProjectID, a.Key.ModelID, a.Key.Endpoint, a.Day, a.Rule, a.Severity, a.Value, a.Threshold, payloadJSON, a.CreatedAt)
	var createdAt time.Time
	if err := row.Scan(&createdAt); err != nil {
		if err == sql.ErrNoRows {
			return false, nil, nil
		}
		return false, nil, err
	}
	a.CreatedAt = createdAt
	return true, &a, nil
}

func (s *Store) ListAlerts(ctx context.Context, filter alerts.ListFilter) ([]alerts.Alert, error) {
	query := `SELECT project_id, model_id, endpoint, day, rule, severity, value, threshold, payload, created_at FROM alerts WHERE 1=1`
	var args []interface{}
	add := func(cond string, val interface{}) {
		args = append(args, val)
		query += fmt.Sprintf(" AND %s = $%d", cond, len(args))
	}
	if filter.ProjectID != "" {
		add("project_id", filter.ProjectID)
	}
	if filter.ModelID != "" {
		add("model_id", filter.ModelID)
	}
	if filter.Endpoint != "" {
		add("endpoint", filter.Endpoint)
	}
	if filter.Rule != "" {
		add("rule", filter.Rule)
	}
	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []alerts.Alert
	for rows.Next() {
		var a alerts.Alert
		var payloadJSON []byte
		if err := rows.Scan(&a.Key.ProjectID, &a.Key.ModelID, &a.Key.Endpoint, &a.Day, &a.Rule, &a.Severity, &a.Value, &a.Threshold, &payloadJSON, &a.CreatedAt); err != nil {
			return nil, err
		}
		if len(payloadJSON) > 0 {
			_ = json.Unmarshal(payloadJSON, &a.Payload)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- costs ----------------------------------------------------------------

func (s *Store) UpsertDailyCost(ctx context.Context, projectID, day string, amount float64, currency string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO daily_costs (project_id, day, amount, currency, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (project_id, day) DO UPDATE SET amount = EXCLUDED.amount, currency = EXCLUDED.currency`,
		projectID, day, amount, currency, time.Now().UTC())
	return err
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
