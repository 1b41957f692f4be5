// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

// Config holds application configuration
type Config struct {
	HomeTimezone string
	Location     *time.Location

	DatabaseDriver   string // sqlite, postgres, or empty for no run store
	DatabaseDSN      string
	// DatabaseMaxConns overrides the driver's pool cap when positive.
	DatabaseMaxConns int

	HTTPAddr  string
	LogLevel  string
	LogPretty bool

	EnableScheduler   bool
	WorkerConcurrency int
	RunDeadline       time.Duration
	// RequireTracking lists job types whose runs fail without a run store.
	RequireTracking []core.JobType

	CollaboratorTimeout time.Duration
	ModelTimeout        time.Duration
	FetchConcurrency    int
	HistoryDays         int
	Watchlist           []string
	MarketDataURL       string
	NewsURL             string
	PrimaryModelURL     string
	SecondaryModelURL   string
	SideChannelURLs     string // name=url,name=url
	CollaboratorAPIKey  string

	AlertWebhookURL    string
	AlertTimeout       time.Duration
	CacheSignalTimeout time.Duration

	S3Bucket           string
	S3Prefix           string
	S3Endpoint         string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	AllowedOrigins []string
}

// Load reads configuration from environment variables, after loading a
// .env file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads configuration from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		HomeTimezone:        getEnv("HOME_TIMEZONE", "UTC"),
		DatabaseDriver:      getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:         getEnv("DATABASE_DSN", "file:reports.db?_journal_mode=WAL&_busy_timeout=5000"),
		DatabaseMaxConns:    getEnvAsInt("DATABASE_MAX_CONNS", 0),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogPretty:           getEnvAsBool("LOG_PRETTY", false),
		EnableScheduler:     getEnvAsBool("ENABLE_SCHEDULER", true),
		WorkerConcurrency:   getEnvAsInt("WORKER_CONCURRENCY", 4),
		RunDeadline:         getEnvAsDuration("RUN_DEADLINE", 20*time.Minute),
		CollaboratorTimeout: getEnvAsDuration("COLLABORATOR_TIMEOUT", 10*time.Second),
		ModelTimeout:        getEnvAsDuration("MODEL_TIMEOUT", 2*time.Minute),
		FetchConcurrency:    getEnvAsInt("FETCH_CONCURRENCY", 4),
		HistoryDays:         getEnvAsInt("HISTORY_DAYS", 60),
		Watchlist:           getEnvAsList("WATCHLIST"),
		MarketDataURL:       getEnv("MARKET_DATA_URL", ""),
		NewsURL:             getEnv("NEWS_URL", ""),
		PrimaryModelURL:     getEnv("PRIMARY_MODEL_URL", ""),
		SecondaryModelURL:   getEnv("SECONDARY_MODEL_URL", ""),
		SideChannelURLs:     getEnv("SIDE_CHANNEL_URLS", ""),
		CollaboratorAPIKey:  getEnv("COLLABORATOR_API_KEY", ""),
		AlertWebhookURL:     getEnv("ALERT_WEBHOOK_URL", ""),
		AlertTimeout:        getEnvAsDuration("ALERT_TIMEOUT", 10*time.Second),
		CacheSignalTimeout:  getEnvAsDuration("CACHE_SIGNAL_TIMEOUT", 10*time.Second),
		S3Bucket:            getEnv("S3_BUCKET", ""),
		S3Prefix:            getEnv("S3_PREFIX", "dashboards"),
		S3Endpoint:          getEnv("S3_ENDPOINT", ""),
		AWSRegion:           getEnv("AWS_REGION", ""),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AllowedOrigins:      getEnvAsList("ALLOWED_ORIGINS"),
	}
	if cfg.DatabaseDriver == "none" {
		cfg.DatabaseDriver = ""
	}
	for i, s := range cfg.Watchlist {
		cfg.Watchlist[i] = strings.ToUpper(s)
	}

	var errs []error
	for _, name := range getEnvAsList("REQUIRE_TRACKING") {
		jt, err := core.ParseJobType(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("REQUIRE_TRACKING: %w", err))
			continue
		}
		cfg.RequireTracking = append(cfg.RequireTracking, jt)
	}
	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks the configuration and resolves the home timezone.
func (c *Config) Validate() error {
	loc, err := time.LoadLocation(c.HomeTimezone)
	if err != nil {
		return fmt.Errorf("HOME_TIMEZONE: %w", err)
	}
	c.Location = loc

	switch c.DatabaseDriver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("DATABASE_DRIVER: unsupported driver %q", c.DatabaseDriver)
	}
	if c.DatabaseDriver == "postgres" && c.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN is required for postgres")
	}
	if c.RunDeadline <= 0 {
		return errors.New("RUN_DEADLINE must be positive")
	}
	return nil
}

// TrackingEnabled reports whether a run store is configured.
func (c *Config) TrackingEnabled() bool {
	return c.DatabaseDriver != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
