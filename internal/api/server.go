// Copyright 2025 James Ross
// Package api is a thin mapping of HTTP handlers to the core drift-engine
// operations: parameter parsing, auth, and error-kind-to-status translation.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/driftguard/driftguard/internal/alerts"
	"github.com/driftguard/driftguard/internal/auth"
	"github.com/driftguard/driftguard/internal/cache"
	"github.com/driftguard/driftguard/internal/drift"
	"github.com/driftguard/driftguard/internal/events"
	"github.com/driftguard/driftguard/internal/notifier"
	"github.com/driftguard/driftguard/internal/store"
	"go.uber.org/zap"
)

// Server holds the collaborators the HTTP surface dispatches to.
type Server struct {
	store    *store.Store
	cache    *cache.Cache
	alertSvc *alerts.Service
	notify   *notifier.Notifier
	authCfg  auth.Config
	log      *zap.Logger
}

// NewServer wires the HTTP surface to its collaborators. cache may be nil,
// in which case reads always go straight to the store.
func NewServer(st *store.Store, ch *cache.Cache, alertSvc *alerts.Service, notify *notifier.Notifier, authCfg auth.Config, log *zap.Logger) *Server {
	return &Server{store: st, cache: ch, alertSvc: alertSvc, notify: notify, authCfg: authCfg, log: log}
}

// Routes builds the /api/v1 mux using Go 1.22 method-pattern routing.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/events", s.handlePostEvents)
	mux.HandleFunc("GET /api/v1/discover/projects", s.handleDiscoverProjects)
	mux.HandleFunc("GET /api/v1/discover/models", s.handleDiscoverModels)
	mux.HandleFunc("GET /api/v1/discover/days", s.handleDiscoverDays)
	mux.HandleFunc("POST /api/v1/metrics/compute", s.handleComputeMetrics)
	mux.HandleFunc("GET /api/v1/metrics/daily", s.handleGetDailyMetric)
	mux.HandleFunc("POST /api/v1/drift/baseline/capture", s.handleCaptureBaseline)
	mux.HandleFunc("POST /api/v1/drift/compute", s.handleComputeDrift)
	mux.HandleFunc("POST /api/v1/drift/compute_all", s.handleComputeDriftAll)
	mux.HandleFunc("GET /api/v1/drift/daily", s.handleGetDailyDrift)
	mux.HandleFunc("GET /api/v1/alerts", s.handleListAlerts)
	mux.HandleFunc("POST /api/v1/alerts/slack/test", s.handleTestWebhook)

	return auth.Middleware(s.authCfg)(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func keyFromQuery(r *http.Request) events.Key {
	q := r.URL.Query()
	return events.Key{ProjectID: q.Get("project_id"), ModelID: q.Get("model_id"), Endpoint: q.Get("endpoint")}
}

func tzOrUTC(r *http.Request) string {
	if tz := r.URL.Query().Get("tz"); tz != "" {
		return tz
	}
	return "UTC"
}

func parseDay(r *http.Request) (time.Time, error) {
	return time.Parse("2006-01-02", r.URL.Query().Get("day"))
}

func (s *Server) dayWindow(r *http.Request) (time.Time, time.Time, string, error) {
	day, err := parseDay(r)
	if err != nil {
		return time.Time{}, time.Time{}, "", err
	}
	tz := tzOrUTC(r)
	start, end, err := drift.DayWindow(day, tz)
	return start, end, r.URL.Query().Get("day"), err
}

func (s *Server) ctx(r *http.Request) context.Context { return r.Context() }

func dailyMetricCacheKey(key events.Key, day string) string {
	return "daily_metric:" + key.ProjectID + "|" + key.ModelID + "|" + key.Endpoint + "|" + day
}

func dailyDriftCacheKey(key events.Key, day string) string {
	return "daily_drift:" + key.ProjectID + "|" + key.ModelID + "|" + key.Endpoint + "|" + day
}
