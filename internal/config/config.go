package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultDBPath = "./dev.db"
	defaultPort   = "8080"
	defaultEnv    = "development"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	DBPath        string
	Port          string
	Env           string
	LogLevel      string
	LogPretty     bool
	SessionSecret string

	// Workers bounds concurrent recipe recalculations in a batch.
	Workers int
	// ExternalTimeout is the budget for each store lookup or sink dispatch.
	ExternalTimeout time.Duration
	// RetryBackoff is the wait before the single snapshot write retry.
	RetryBackoff time.Duration
	// BatchSchedule is a cron expression for scheduled recalculation; empty disables it.
	BatchSchedule string

	OverheadFallbackPercent float64
	OverheadFallbackMinimum float64

	FailureSampleSize  int
	MaxReportedResults int

	CORSAllowedOrigins []string
}

// IsDev reports whether the service runs in development mode.
func (c Config) IsDev() bool {
	return c.Env == "" || c.Env == defaultEnv || c.Env == "dev"
}

// Load reads environment variables and returns a populated Config.
func Load() (Config, error) {
	// Missing .env is fine; production injects real environment variables.
	_ = godotenv.Load()

	cfg := Config{
		DBPath:        getEnv("DB_PATH", defaultDBPath),
		Port:          getEnv("PORT", defaultPort),
		Env:           getEnv("APP_ENV", defaultEnv),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		BatchSchedule: os.Getenv("HPP_BATCH_SCHEDULE"),
	}

	var err error
	if cfg.LogPretty, err = getEnvBool("LOG_PRETTY", false); err != nil {
		return Config{}, err
	}
	if cfg.Workers, err = getEnvInt("HPP_WORKERS", 4); err != nil {
		return Config{}, err
	}
	if cfg.ExternalTimeout, err = getEnvDuration("HPP_EXTERNAL_TIMEOUT", 3*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RetryBackoff, err = getEnvDuration("HPP_RETRY_BACKOFF", 200*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.OverheadFallbackPercent, err = getEnvFloat("HPP_OVERHEAD_FALLBACK_PERCENT", 15); err != nil {
		return Config{}, err
	}
	if cfg.OverheadFallbackMinimum, err = getEnvFloat("HPP_OVERHEAD_FALLBACK_MINIMUM", 2500); err != nil {
		return Config{}, err
	}
	if cfg.FailureSampleSize, err = getEnvInt("HPP_FAILURE_SAMPLE", 10); err != nil {
		return Config{}, err
	}
	if cfg.MaxReportedResults, err = getEnvInt("HPP_MAX_REPORTED_RESULTS", 50); err != nil {
		return Config{}, err
	}
	cfg.CORSAllowedOrigins = splitList(getEnv("CORS_ALLOWED_ORIGINS", "*"))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise break the engine at runtime.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("HPP_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.ExternalTimeout <= 0 {
		return fmt.Errorf("HPP_EXTERNAL_TIMEOUT must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("HPP_RETRY_BACKOFF must not be negative")
	}
	if c.OverheadFallbackPercent < 0 || c.OverheadFallbackMinimum < 0 {
		return fmt.Errorf("overhead fallback values must not be negative")
	}
	if c.FailureSampleSize < 0 || c.MaxReportedResults < 0 {
		return fmt.Errorf("report sizes must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be numeric: %w", key, err)
	}
	return v, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
