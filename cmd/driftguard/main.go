// Copyright 2025 James Ross
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/driftguard/driftguard/internal/alerts"
	"github.com/driftguard/driftguard/internal/api"
	"github.com/driftguard/driftguard/internal/auth"
	"github.com/driftguard/driftguard/internal/cache"
	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/internal/costs"
	"github.com/driftguard/driftguard/internal/notifier"
	"github.com/driftguard/driftguard/internal/obs"
	"github.com/driftguard/driftguard/internal/resilience"
	"github.com/driftguard/driftguard/internal/store"
	"github.com/driftguard/driftguard/internal/worker"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	var role string
	var configPath string
	var seedProject, seedModel, seedEndpoint string
	var seedEvents int
	var showVersion bool

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&role, "role", "api", "Role to run: api|worker|migrate|seed")
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.StringVar(&seedProject, "seed-project", "demo", "seed role: project_id to generate events for")
	fs.StringVar(&seedModel, "seed-model", "churn-classifier", "seed role: model_id to generate events for")
	fs.StringVar(&seedEndpoint, "seed-endpoint", "v1", "seed role: endpoint to generate events for")
	fs.IntVar(&seedEvents, "seed-events", 2000, "seed role: number of synthetic events to generate")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
		select {
		case sig2 := <-sigCh:
			logger.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()

	if role == "migrate" {
		runMigrate(cfg, logger)
		return
	}

	st, err := store.Open(cfg.Database.DSN(), cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		logger.Fatal("failed to open database", obs.Err(err))
	}
	defer st.Close()

	rdb := cache.New(cfg)
	defer rdb.Close()
	ch := cache.NewCache(rdb, cfg.Redis.CacheTTL)

	httpSrv := obs.StartHTTPServer(cfg, func(c context.Context) error { return st.Ping(c) })
	defer func() { _ = httpSrv.Shutdown(context.Background()) }()

	switch role {
	case "api":
		runAPI(ctx, cfg, st, ch, logger)
	case "worker":
		runWorker(ctx, cfg, st, logger)
	case "seed":
		runSeed(ctx, st, logger, seedProject, seedModel, seedEndpoint, seedEvents)
	default:
		logger.Fatal("unknown role", obs.String("role", role))
	}
}

func runMigrate(cfg *config.Config, logger *zap.Logger) {
	st, err := store.Open(cfg.Database.DSN(), cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		logger.Fatal("failed to open database", obs.Err(err))
	}
	defer st.Close()
	if err := st.CreateSchemaIfNeeded(); err != nil {
		logger.Fatal("migration failed", obs.Err(err))
	}
	logger.Info("schema migration complete")
}

func runAPI(ctx context.Context, cfg *config.Config, st *store.Store, ch *cache.Cache, logger *zap.Logger) {
	alertSvc := alerts.NewService(st)

	var notify *notifier.Notifier
	if cfg.Webhook.URL != "" {
		cb := resilience.New(cfg.CircuitBreaker.Window, cfg.CircuitBreaker.CooldownPeriod, cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.MinSamples)
		notify = notifier.New(cfg.Webhook.URL, cfg.Webhook.Timeout, cb, logger)
	}

	authCfg := auth.Config{Enabled: cfg.Auth.Enabled, HeaderName: cfg.Auth.HeaderName, Secret: cfg.Auth.Secret}
	srv := api.NewServer(st, ch, alertSvc, notify, authCfg, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("driftguard api listening", obs.String("addr", cfg.Server.Addr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("api server error", obs.Err(err))
	}
}

func runWorker(ctx context.Context, cfg *config.Config, st *store.Store, logger *zap.Logger) {
	alertSvc := alerts.NewService(st)

	var notify *notifier.Notifier
	if cfg.Webhook.URL != "" {
		cb := resilience.New(cfg.CircuitBreaker.Window, cfg.CircuitBreaker.CooldownPeriod, cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.MinSamples)
		notify = notifier.New(cfg.Webhook.URL, cfg.Webhook.Timeout, cb, logger)
	}

	var costsClient *costs.Client
	if billingURL := os.Getenv("DRIFTGUARD_BILLING_URL"); billingURL != "" {
		cb := resilience.New(cfg.CircuitBreaker.Window, cfg.CircuitBreaker.CooldownPeriod, cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.MinSamples)
		costsClient = costs.NewClient(billingURL, cfg.Webhook.Timeout, cb, logger)
	}

	w := worker.New(cfg, st, alertSvc, notify, costsClient, logger)
	logger.Info("driftguard worker starting", obs.String("tz", cfg.Worker.Timezone), obs.Int("day_offset", cfg.Worker.DayOffset))
	if err := w.Run(ctx); err != nil {
		logger.Fatal("worker error", obs.Err(err))
	}
}

// runSeed generates synthetic prediction events for one (project, model,
// endpoint) key so the end-to-end drift scenarios in spec §8 can be
// exercised without a real producer, mirroring the original FastAPI
// implementation's demo/quickstart.py helper.
func runSeed(ctx context.Context, st *store.Store, logger *zap.Logger, project, model, endpoint string, n int) {
	rng := rand.New(rand.NewSource(1))
	now := time.Now().UTC()

	batch := make([]eventSeed, 0, n)
	for i := 0; i < n; i++ {
		ts := now.Add(-time.Duration(i) * time.Minute)
		batch = append(batch, eventSeed{
			ts:      ts,
			x:       rng.Float64(),
			country: []string{"US", "CA", "US", "US", "FR"}[rng.Intn(5)],
		})
	}

	evs := toEvents(project, model, endpoint, batch)
	inserted, err := st.InsertEvents(ctx, evs)
	if err != nil {
		logger.Fatal("seed: insert failed", obs.Err(err))
	}
	logger.Info("seed: generated synthetic events", obs.Int("inserted", inserted), obs.String("project_id", project), obs.String("model_id", model), obs.String("endpoint", endpoint))
}
