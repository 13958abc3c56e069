// Copyright 2025 James Ross
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Database struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type Redis struct {
	Addr               string        `mapstructure:"addr"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	DB                 int           `mapstructure:"db"`
	PoolSizeMultiplier int           `mapstructure:"pool_size_multiplier"`
	MinIdleConns       int           `mapstructure:"min_idle_conns"`
	DialTimeout        time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
}

type Server struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type Auth struct {
	Enabled    bool   `mapstructure:"enabled"`
	HeaderName string `mapstructure:"header_name"`
	Secret     string `mapstructure:"secret"`
}

type Worker struct {
	Timezone        string        `mapstructure:"timezone"`
	Overwrite       bool          `mapstructure:"overwrite"`
	SleepInterval   time.Duration `mapstructure:"sleep_interval"`
	DriftMinSamples int           `mapstructure:"drift_min_samples"`
	DayOffset       int           `mapstructure:"day_offset"`
	AlertThreshold  float64       `mapstructure:"alert_threshold"`
}

// MinSleepInterval is the floor §4.8 imposes on the worker loop regardless
// of configuration.
const MinSleepInterval = 5 * time.Second

type Webhook struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CircuitBreaker struct {
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
	MinSamples       int           `mapstructure:"min_samples"`
}

type Observability struct {
	MetricsPort int    `mapstructure:"metrics_port"`
	LogLevel    string `mapstructure:"log_level"`
}

type Config struct {
	Server         Server         `mapstructure:"server"`
	Database       Database       `mapstructure:"database"`
	Redis          Redis          `mapstructure:"redis"`
	Auth           Auth           `mapstructure:"auth"`
	Worker         Worker         `mapstructure:"worker"`
	Webhook        Webhook        `mapstructure:"webhook"`
	CircuitBreaker CircuitBreaker `mapstructure:"circuit_breaker"`
	Observability  Observability  `mapstructure:"observability"`
}

func defaultConfig() *Config {
	return &Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: Database{
			Host:            "localhost",
			Port:            5432,
			User:            "driftguard",
			Name:            "driftguard",
			SSLMode:         "disable",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: Redis{
			Addr:               "localhost:6379",
			PoolSizeMultiplier: 10,
			MinIdleConns:       5,
			DialTimeout:        5 * time.Second,
			ReadTimeout:        3 * time.Second,
			WriteTimeout:       3 * time.Second,
			CacheTTL:           5 * time.Minute,
		},
		Auth: Auth{
			Enabled:    true,
			HeaderName: "X-API-Key",
		},
		Worker: Worker{
			Timezone:        "UTC",
			Overwrite:       false,
			SleepInterval:   5 * time.Minute,
			DriftMinSamples: 30,
			DayOffset:       1,
			AlertThreshold:  0.25,
		},
		Webhook: Webhook{
			Timeout: 10 * time.Second,
		},
		CircuitBreaker: CircuitBreaker{
			FailureThreshold: 0.5,
			Window:           1 * time.Minute,
			CooldownPeriod:   30 * time.Second,
			MinSamples:       5,
		},
		Observability: Observability{
			MetricsPort: 9090,
			LogLevel:    "info",
		},
	}
}

// Load reads configuration from a YAML file (if present) layered under env
// overrides, validating the result before returning it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DRIFTGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("server.read_timeout", def.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", def.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", def.Server.ShutdownTimeout)

	v.SetDefault("database.host", def.Database.Host)
	v.SetDefault("database.port", def.Database.Port)
	v.SetDefault("database.user", def.Database.User)
	v.SetDefault("database.password", def.Database.Password)
	v.SetDefault("database.name", def.Database.Name)
	v.SetDefault("database.ssl_mode", def.Database.SSLMode)
	v.SetDefault("database.max_open_conns", def.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", def.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", def.Database.ConnMaxLifetime)

	v.SetDefault("redis.addr", def.Redis.Addr)
	v.SetDefault("redis.username", def.Redis.Username)
	v.SetDefault("redis.password", def.Redis.Password)
	v.SetDefault("redis.db", def.Redis.DB)
	v.SetDefault("redis.pool_size_multiplier", def.Redis.PoolSizeMultiplier)
	v.SetDefault("redis.min_idle_conns", def.Redis.MinIdleConns)
	v.SetDefault("redis.dial_timeout", def.Redis.DialTimeout)
	v.SetDefault("redis.read_timeout", def.Redis.ReadTimeout)
	v.SetDefault("redis.write_timeout", def.Redis.WriteTimeout)
	v.SetDefault("redis.cache_ttl", def.Redis.CacheTTL)

	v.SetDefault("auth.enabled", def.Auth.Enabled)
	v.SetDefault("auth.header_name", def.Auth.HeaderName)
	v.SetDefault("auth.secret", def.Auth.Secret)

	v.SetDefault("worker.timezone", def.Worker.Timezone)
	v.SetDefault("worker.overwrite", def.Worker.Overwrite)
	v.SetDefault("worker.sleep_interval", def.Worker.SleepInterval)
	v.SetDefault("worker.drift_min_samples", def.Worker.DriftMinSamples)
	v.SetDefault("worker.day_offset", def.Worker.DayOffset)
	v.SetDefault("worker.alert_threshold", def.Worker.AlertThreshold)

	v.SetDefault("webhook.url", def.Webhook.URL)
	v.SetDefault("webhook.timeout", def.Webhook.Timeout)

	v.SetDefault("circuit_breaker.failure_threshold", def.CircuitBreaker.FailureThreshold)
	v.SetDefault("circuit_breaker.window", def.CircuitBreaker.Window)
	v.SetDefault("circuit_breaker.cooldown_period", def.CircuitBreaker.CooldownPeriod)
	v.SetDefault("circuit_breaker.min_samples", def.CircuitBreaker.MinSamples)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	if cfg.Database.Host == "" {
		return fmt.Errorf("database.host must be set")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		return fmt.Errorf("database.port must be 1..65535")
	}
	if cfg.Worker.SleepInterval <= 0 {
		return fmt.Errorf("worker.sleep_interval must be > 0")
	}
	if cfg.Worker.DriftMinSamples < 1 {
		return fmt.Errorf("worker.drift_min_samples must be >= 1")
	}
	if cfg.Worker.AlertThreshold < 0 {
		return fmt.Errorf("worker.alert_threshold must be >= 0")
	}
	if _, err := time.LoadLocation(cfg.Worker.Timezone); err != nil {
		return fmt.Errorf("worker.timezone invalid: %w", err)
	}
	if cfg.Auth.Enabled && cfg.Auth.HeaderName == "" {
		return fmt.Errorf("auth.header_name must be set when auth.enabled")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	return nil
}

// DSN builds a lib/pq-compatible Postgres connection string.
func (d Database) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}
