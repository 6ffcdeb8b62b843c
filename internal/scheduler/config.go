// Package scheduler drives the recurring expense pipeline from outside the API:
// it lists users owning templates and asks the API to materialize each of them.
package scheduler

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// Config holds all scheduler configuration values.
type Config struct {
	APIURL         string
	PipelineAPIKey string
	LogLevel       zapcore.Level
	RequestTimeout time.Duration
	// Interval between cycles. Zero runs a single cycle.
	Interval    time.Duration
	Concurrency int
}

// LoadConfig reads configuration from the environment (and .env when present)
// and validates required fields.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIURL:         os.Getenv("POCKETLEDGER_API_URL"),
		PipelineAPIKey: os.Getenv("PIPELINE_API_KEY"),
	}
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("POCKETLEDGER_API_URL is required")
	}
	if cfg.PipelineAPIKey == "" {
		return nil, fmt.Errorf("PIPELINE_API_KEY is required")
	}

	level, err := parseLogLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if cfg.RequestTimeout, err = parseDuration("REQUEST_TIMEOUT", 30*time.Second, false); err != nil {
		return nil, err
	}
	if cfg.Interval, err = parseDuration("SCHEDULER_INTERVAL", 0, true); err != nil {
		return nil, err
	}

	cfg.Concurrency = 4
	if raw := os.Getenv("SCHEDULER_CONCURRENCY"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid SCHEDULER_CONCURRENCY %q: must be a positive integer", raw)
		}
		cfg.Concurrency = n
	}

	return cfg, nil
}

func parseLogLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	level, err := zapcore.ParseLevel(s)
	if err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: must be debug, info, warn, or error", s)
	}
	return level, nil
}

func parseDuration(key string, def time.Duration, allowZero bool) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}
