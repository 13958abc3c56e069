// Copyright 2025 James Ross
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/driftguard/driftguard/internal/apperr"
	"github.com/driftguard/driftguard/internal/baseline"
	"github.com/driftguard/driftguard/internal/drift"
	"github.com/driftguard/driftguard/internal/events"
	"github.com/driftguard/driftguard/internal/metricsengine"
	"github.com/driftguard/driftguard/internal/notifier"
	"github.com/driftguard/driftguard/internal/psi"
	"github.com/driftguard/driftguard/internal/store"
)

// eventPayload mirrors the wire shape of one event in POST /events.
type eventPayload struct {
	ProjectID string                 `json:"project_id"`
	ModelID   string                 `json:"model_id"`
	Endpoint  string                 `json:"endpoint"`
	Timestamp *time.Time             `json:"timestamp"`
	LatencyMs *float64               `json:"latency_ms"`
	YPred     *int                   `json:"y_pred"`
	YProba    *float64               `json:"y_proba"`
	Features  map[string]interface{} `json:"features"`
}

func (s *Server) handlePostEvents(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeOneOrMany(r)
	if err != nil {
		writeError(w, apperr.Newf(apperr.InvalidInput, "malformed body: %v", err))
		return
	}
	var toInsert []events.Event
	for _, p := range raw {
		e := events.Event{
			ProjectID: p.ProjectID,
			ModelID:   p.ModelID,
			Endpoint:  p.Endpoint,
			LatencyMs: p.LatencyMs,
			YPred:     p.YPred,
			YProba:    p.YProba,
			Features:  p.Features,
			RequestID: r.Header.Get("X-Request-ID"),
		}
		if p.Timestamp != nil {
			e.Timestamp = *p.Timestamp
		}
		norm, err := events.Normalize(e)
		if err != nil {
			writeError(w, err)
			return
		}
		toInsert = append(toInsert, norm)
	}
	n, err := s.store.InsertEvents(s.ctx(r), toInsert)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"inserted": n})
}

func decodeOneOrMany(r *http.Request) ([]eventPayload, error) {
	var arr []eventPayload
	dec := json.NewDecoder(r.Body)
	raw := json.RawMessage{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, err
		}
		return arr, nil
	}
	var one eventPayload
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []eventPayload{one}, nil
}

func (s *Server) handleDiscoverProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.DiscoverProjects(s.ctx(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleDiscoverModels(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	keys, err := s.store.DiscoverModels(s.ctx(r), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleDiscoverDays(w http.ResponseWriter, r *http.Request) {
	key := keyFromQuery(r)
	days, err := s.store.DiscoverDays(s.ctx(r), key)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = d.Format("2006-01-02")
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleComputeMetrics(w http.ResponseWriter, r *http.Request) {
	key := keyFromQuery(r)
	start, end, dayStr, err := s.dayWindow(r)
	if err != nil {
		writeError(w, apperr.Newf(apperr.InvalidInput, "invalid day/tz: %v", err))
		return
	}
	evs, err := s.store.EventsInWindow(s.ctx(r), key, start, end)
	if err != nil {
		writeError(w, err)
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
	if err := s.store.UpsertDailyMetric(s.ctx(r), key, dayStr, row); err != nil {
		writeError(w, err)
		return
	}
	s.cache.Invalidate(s.ctx(r), dailyMetricCacheKey(key, dayStr))
	writeJSON(w, http.StatusOK, dm)
}

func statsToMap(stats map[string]metricsengine.FeatureStat) map[string]interface{} {
	out := make(map[string]interface{}, len(stats))
	for k, v := range stats {
		out[k] = v
	}
	return out
}

func (s *Server) handleGetDailyMetric(w http.ResponseWriter, r *http.Request) {
	key := keyFromQuery(r)
	day := r.URL.Query().Get("day")
	cacheKey := dailyMetricCacheKey(key, day)

	var row store.DailyMetricRow
	if s.cache.Get(s.ctx(r), cacheKey, &row) {
		writeJSON(w, http.StatusOK, row)
		return
	}
	got, err := s.store.GetDailyMetric(s.ctx(r), key, day)
	if err != nil {
		writeError(w, err)
		return
	}
	if got != nil {
		s.cache.Set(s.ctx(r), cacheKey, got)
	}
	writeJSON(w, http.StatusOK, got)
}

func (s *Server) handleCaptureBaseline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := keyFromQuery(r)
	feature := q.Get("feature")
	nBins := atoiDefault(q.Get("n_bins"), 10)
	topK := atoiDefault(q.Get("top_k_categories"), 10)
	overwrite := q.Get("overwrite") == "true"

	samples, err := s.resolveBaselineWindow(r, key)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(samples) == 0 {
		writeError(w, apperr.New(apperr.NoEvents, "no events in the selected window"))
		return
	}

	fb, err := baseline.Capture(baseline.CaptureInput{Key: key, Feature: feature, Samples: samples, NBins: nBins, TopKCategories: topK})
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.UpsertBaseline(s.ctx(r), fb, overwrite); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fb)
}

func (s *Server) resolveBaselineWindow(r *http.Request, key events.Key) ([]events.Event, error) {
	q := r.URL.Query()
	if startTS := q.Get("start_ts"); startTS != "" {
		start, err := time.Parse(time.RFC3339, startTS)
		if err != nil {
			return nil, apperr.Newf(apperr.InvalidInput, "invalid start_ts: %v", err)
		}
		end, err := time.Parse(time.RFC3339, q.Get("end_ts"))
		if err != nil {
			return nil, apperr.Newf(apperr.InvalidInput, "invalid end_ts: %v", err)
		}
		return s.store.EventsInWindow(s.ctx(r), key, start, end)
	}
	if startDay := q.Get("start_day"); startDay != "" {
		tz := tzOrUTC(r)
		sd, err := time.Parse("2006-01-02", startDay)
		if err != nil {
			return nil, apperr.Newf(apperr.InvalidInput, "invalid start_day: %v", err)
		}
		ed, err := time.Parse("2006-01-02", q.Get("end_day"))
		if err != nil {
			return nil, apperr.Newf(apperr.InvalidInput, "invalid end_day: %v", err)
		}
		start, _, err := drift.DayWindow(sd, tz)
		if err != nil {
			return nil, err
		}
		end, _, err := drift.DayWindow(ed, tz)
		if err != nil {
			return nil, err
		}
		return s.store.EventsInWindow(s.ctx(r), key, start, end)
	}
	n := atoiDefault(q.Get("n"), 500)
	return s.store.EventsMostRecentN(s.ctx(r), key, n)
}

func (s *Server) handleComputeDrift(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := keyFromQuery(r)
	start, end, dayStr, err := s.dayWindow(r)
	if err != nil {
		writeError(w, apperr.Newf(apperr.InvalidInput, "invalid day/tz: %v", err))
		return
	}
	minSamples := atoiDefault(q.Get("min_samples"), 10)
	fd, err := drift.ComputeFeature(s.ctx(r), s.store, key, dayStr, q.Get("feature"), tzOrUTC(r), minSamples, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	s.cache.Invalidate(s.ctx(r), dailyDriftCacheKey(key, dayStr))
	writeJSON(w, http.StatusOK, fd)
}

func (s *Server) handleComputeDriftAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := keyFromQuery(r)
	start, end, dayStr, err := s.dayWindow(r)
	if err != nil {
		writeError(w, apperr.Newf(apperr.InvalidInput, "invalid day/tz: %v", err))
		return
	}
	minSamples := atoiDefault(q.Get("min_samples"), 10)
	overwrite := q.Get("overwrite") == "true"
	res, err := drift.ComputeAll(s.ctx(r), s.store, key, dayStr, tzOrUTC(r), minSamples, overwrite, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	s.cache.Invalidate(s.ctx(r), dailyDriftCacheKey(key, dayStr))

	alertCreated := false
	slackSent := false
	slackNote := ""
	if q.Get("alert") == "true" {
		threshold := atofDefault(q.Get("threshold"), 0.25)
		if res.MaxPSI >= threshold {
			created, _, err := s.alertSvc.CreateOnce(s.ctx(r), key, dayStr, "drift", string(res.MaxSeverity), res.MaxPSI, threshold, map[string]interface{}{
				"max_psi_feature": res.MaxPSIFeature,
				"missing_baseline": res.MissingBaseline,
			})
			if err != nil {
				writeError(w, err)
				return
			}
			alertCreated = created
			if created && s.notify != nil {
				if err := s.notify.Send(s.ctx(r), notifier.Message{Text: driftAlertText(key, dayStr, res.MaxPSIFeature, res.MaxPSI)}); err != nil {
					slackNote = err.Error()
				} else {
					slackSent = true
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"psi":                res.PSI,
		"max_psi_feature":    res.MaxPSIFeature,
		"max_psi":            res.MaxPSI,
		"max_severity":       res.MaxSeverity,
		"missing_baseline":   res.MissingBaseline,
		"skipped_low_sample": res.SkippedLowSample,
		"alert_created":      alertCreated,
		"slack_alert_sent":   slackSent,
		"slack_note":         slackNote,
	})
}

func driftAlertText(key events.Key, day, feature string, value float64) string {
	return "drift alert: " + key.ProjectID + "/" + key.ModelID + "/" + key.Endpoint + " on " + day + " feature=" + feature
}

func (s *Server) handleGetDailyDrift(w http.ResponseWriter, r *http.Request) {
	key := keyFromQuery(r)
	day := r.URL.Query().Get("day")
	cacheKey := dailyDriftCacheKey(key, day)

	var dd drift.DailyDrift
	if s.cache.Get(s.ctx(r), cacheKey, &dd) {
		writeJSON(w, http.StatusOK, dd)
		return
	}
	got, err := s.store.GetDailyDrift(s.ctx(r), key, day)
	if err != nil {
		writeError(w, err)
		return
	}
	if got != nil {
		s.cache.Set(s.ctx(r), cacheKey, got)
	}
	writeJSON(w, http.StatusOK, got)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := alertsFilterFromQuery(q)
	rows, err := s.alertSvc.List(s.ctx(r), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	if s.notify == nil {
		writeError(w, apperr.New(apperr.ExternalFailure, "no webhook configured"))
		return
	}
	if err := s.notify.Send(s.ctx(r), notifier.TestMessage()); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func atofDefault(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

var _ = psi.OK // referenced transitively via drift results
