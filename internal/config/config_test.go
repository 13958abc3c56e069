// Copyright 2025 James Ross
package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("DRIFTGUARD_WORKER_SLEEP_INTERVAL")
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Worker.DriftMinSamples != 30 {
		t.Fatalf("expected default drift_min_samples 30, got %d", cfg.Worker.DriftMinSamples)
	}
	if cfg.Database.Host == "" {
		t.Fatalf("expected default database host")
	}
}

func TestValidateFails(t *testing.T) {
	cfg := defaultConfig()
	cfg.Database.Port = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for database.port out of range")
	}
	cfg = defaultConfig()
	cfg.Worker.SleepInterval = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for sleep_interval <= 0")
	}
	cfg = defaultConfig()
	cfg.Worker.Timezone = "Not/A_Zone"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for invalid timezone")
	}
}
