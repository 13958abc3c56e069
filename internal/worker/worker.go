// Copyright 2025 James Ross
// Package worker implements the background loop that drives daily
// metrics+drift computation across every discovered (project, model,
// endpoint) key, per §4.8: failures on one key are logged and never
// terminate the loop.
package worker

import (
	"context"
	"time"

	"github.com/driftguard/driftguard/internal/alerts"
	"github.com/driftguard/driftguard/internal/apperr"
	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/internal/costs"
	"github.com/driftguard/driftguard/internal/drift"
	"github.com/driftguard/driftguard/internal/events"
	"github.com/driftguard/driftguard/internal/metricsengine"
	"github.com/driftguard/driftguard/internal/notifier"
	"github.com/driftguard/driftguard/internal/obs"
	"github.com/driftguard/driftguard/internal/store"
	"go.uber.org/zap"
)

// Store is the persistence surface the worker loop needs: key/project
// discovery plus everything the drift engine and cost puller require to
// compute and upsert a day's metrics, drift and spend.
type Store interface {
	drift.Store
	costs.Store
	DiscoverKeys(ctx context.Context) ([]events.Key, error)
	DiscoverProjects(ctx context.Context) ([]string, error)
	UpsertDailyMetric(ctx context.Context, key events.Key, day string, dm store.DailyMetricRow) error
}

// Worker drives the §4.8 loop: compute metrics and drift for every
// discovered key over yesterday's (by default) window, then pull daily
// costs per project, then sleep.
type Worker struct {
	cfg      *config.Config
	store    Store
	alertSvc *alerts.Service
	notify   *notifier.Notifier
	costs    *costs.Client
	log      *zap.Logger
}

func New(cfg *config.Config, st Store, alertSvc *alerts.Service, notify *notifier.Notifier, costsClient *costs.Client, log *zap.Logger) *Worker {
	return &Worker{cfg: cfg, store: st, alertSvc: alertSvc, notify: notify, costs: costsClient, log: log}
}

// Run blocks, executing one iteration immediately and then every
// sleepInterval (floored at config.MinSleepInterval), until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	sleep := w.cfg.Worker.SleepInterval
	if sleep < config.MinSleepInterval {
		sleep = config.MinSleepInterval
	}

	for {
		obs.WorkerActive.Set(1)
		w.runIteration(ctx)
		obs.WorkerActive.Set(0)
		obs.WorkerIterations.Inc()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}
	}
}

// runIteration implements §4.8 steps 1-7 for one pass over all discovered
// keys. It never returns an error: every per-key or per-project failure is
// logged and the loop continues.
func (w *Worker) runIteration(ctx context.Context) {
	loc, err := time.LoadLocation(w.cfg.Worker.Timezone)
	if err != nil {
		w.log.Error("worker: invalid timezone", obs.String("tz", w.cfg.Worker.Timezone), obs.Err(err))
		return
	}
	day := time.Now().In(loc).AddDate(0, 0, -w.cfg.Worker.DayOffset)
	dayStr := day.Format("2006-01-02")

	start, end, err := drift.DayWindow(day, w.cfg.Worker.Timezone)
	if err != nil {
		w.log.Error("worker: failed to compute day window", obs.Err(err))
		return
	}

	keys, err := w.store.DiscoverKeys(ctx)
	if err != nil {
		w.log.Error("worker: failed to discover keys", obs.Err(err))
		return
	}

	for _, key := range keys {
		w.computeMetricsForKey(ctx, key, dayStr, start, end)
	}
	for _, key := range keys {
		w.computeDriftForKey(ctx, key, dayStr, start, end)
	}

	projects, err := w.store.DiscoverProjects(ctx)
	if err != nil {
		w.log.Warn("worker: failed to discover projects for cost pull", obs.Err(err))
		return
	}
	for _, projectID := range projects {
		w.pullCostsForProject(ctx, projectID, dayStr)
	}
}

// computeMetricsForKey implements §4.8 step 4: a thrown error is logged at
// error severity but must not terminate the loop.
func (w *Worker) computeMetricsForKey(ctx context.Context, key events.Key, dayStr string, start, end time.Time) {
	evs, err := w.store.EventsInWindow(ctx, key, start, end)
	if err != nil {
		obs.WorkerKeyErrors.Inc()
		w.log.Error("worker: failed to load events for metrics", keyFields(key, dayStr, err)...)
		return
	}
	dm := metricsengine.Compute(key, dayStr, evs)
	row := store.DailyMetricRow{
		NEvents:      dm.NEvents,
		LatencyP50Ms: dm.LatencyP50Ms,
		LatencyP95Ms: dm.LatencyP95Ms,
		YPredRate:    dm.YPredRate,
		YProbaMean:   dm.YProbaMean,
		FeatureStats: statsToMap(dm.FeatureStats),
	}
	if err := w.store.UpsertDailyMetric(ctx, key, dayStr, row); err != nil {
		obs.WorkerKeyErrors.Inc()
		w.log.Error("worker: failed to upsert daily metric", keyFields(key, dayStr, err)...)
	}
}

func statsToMap(stats map[string]metricsengine.FeatureStat) map[string]interface{} {
	out := make(map[string]interface{}, len(stats))
	for k, v := range stats {
		out[k] = v
	}
	return out
}

// computeDriftForKey implements §4.8 step 5: pre-check baseline existence,
// then compute drift for every baselined feature, classifying errors by
// apperr.Kind (replacing the message-substring matching the spec calls out
// as a workaround, not a requirement, in §9).
func (w *Worker) computeDriftForKey(ctx context.Context, key events.Key, dayStr string, start, end time.Time) {
	baselines, err := w.store.GetBaselines(ctx, key)
	if err != nil {
		obs.WorkerKeyErrors.Inc()
		w.log.Error("worker: failed to load baselines", keyFields(key, dayStr, err)...)
		return
	}
	if len(baselines) == 0 {
		w.log.Info("worker: skipped (no baselines)", keyInfoFields(key, dayStr)...)
		return
	}

	computeStart := time.Now()
	res, err := drift.ComputeAll(ctx, w.store, key, dayStr, w.cfg.Worker.Timezone, w.cfg.Worker.DriftMinSamples, w.cfg.Worker.Overwrite, start, end)
	obs.DriftComputeDuration.Observe(time.Since(computeStart).Seconds())
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.NoBaselines, apperr.NoEvents, apperr.NotEnoughData:
			w.log.Info("worker: skipped drift compute", append(keyInfoFields(key, dayStr), obs.Err(err))...)
		default:
			obs.WorkerKeyErrors.Inc()
			w.log.Error("worker: drift compute failed", keyFields(key, dayStr, err)...)
		}
		return
	}
	obs.DriftComputations.Inc()

	w.maybeAlert(ctx, key, dayStr, res)
}

// maybeAlert implements the §2 data-flow contract ("on threshold breach
// writes an Alert and notifies") for the worker's own daily pass, using
// the configured alert threshold. §6's drift/compute_all endpoint performs
// the equivalent decision for operator-triggered computation.
func (w *Worker) maybeAlert(ctx context.Context, key events.Key, dayStr string, res drift.AllFeaturesResult) {
	threshold := w.cfg.Worker.AlertThreshold
	if res.MaxPSIFeature == "" || res.MaxPSI < threshold {
		return
	}
	created, _, err := w.alertSvc.CreateOnce(ctx, key, dayStr, "drift", string(res.MaxSeverity), res.MaxPSI, threshold, map[string]interface{}{
		"max_psi_feature":  res.MaxPSIFeature,
		"missing_baseline": res.MissingBaseline,
	})
	if err != nil {
		obs.WorkerKeyErrors.Inc()
		w.log.Error("worker: alert creation failed", keyFields(key, dayStr, err)...)
		return
	}
	if !created {
		return
	}
	obs.AlertsCreated.Inc()
	w.log.Warn("worker: drift alert created",
		obs.String("project_id", key.ProjectID), obs.String("model_id", key.ModelID),
		obs.String("endpoint", key.Endpoint), obs.String("day", dayStr),
		obs.String("feature", res.MaxPSIFeature))

	if w.notify == nil {
		return
	}
	msg := notifier.Message{Text: driftAlertText(key, dayStr, res.MaxPSIFeature, res.MaxPSI)}
	if err := w.notify.Send(ctx, msg); err != nil {
		w.log.Warn("worker: webhook notification failed", obs.Err(err))
	}
}

func driftAlertText(key events.Key, day, feature string, value float64) string {
	return "drift alert: " + key.ProjectID + "/" + key.ModelID + "/" + key.Endpoint + " on " + day + " feature=" + feature
}

// pullCostsForProject implements §4.8 step 6: best-effort, any error is a
// warning, never fatal to the loop.
func (w *Worker) pullCostsForProject(ctx context.Context, projectID, dayStr string) {
	if w.costs == nil {
		return
	}
	if err := w.costs.FetchAndStoreDailyCosts(ctx, w.store, projectID, dayStr); err != nil {
		w.log.Warn("worker: cost pull failed", obs.String("project_id", projectID), obs.Err(err))
	}
}

func keyFields(key events.Key, day string, err error) []zap.Field {
	return []zap.Field{
		obs.String("project_id", key.ProjectID), obs.String("model_id", key.ModelID),
		obs.String("endpoint", key.Endpoint), obs.String("day", day), obs.Err(err),
	}
}

func keyInfoFields(key events.Key, day string) []zap.Field {
	return []zap.Field{
		obs.String("project_id", key.ProjectID), obs.String("model_id", key.ModelID),
		obs.String("endpoint", key.Endpoint), obs.String("day", day),
	}
}
