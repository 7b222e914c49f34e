// Package config assembles simulator settings from defaults, an optional
// .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/signalsfoundry/constellation-telemetry/internal/logging"
	"github.com/signalsfoundry/constellation-telemetry/internal/observability"
)

// Default values for Config.
const (
	DefaultTickInterval   = 3 * time.Second
	DefaultHTTPAddr       = ":8080"
	DefaultRateLimitRPS   = 20.0
	DefaultRateLimitBurst = 40
)

// Config is the full runtime configuration of the simulator.
type Config struct {
	TickInterval time.Duration
	SeedPath     string // empty means the embedded default fleet
	HTTPAddr     string // empty disables the HTTP surface
	CORSOrigins  []string

	RateLimit RateLimitConfig
	Log       logging.Config
	Tracing   observability.TracingConfig
}

// RateLimitConfig controls the per-client limiter on the HTTP surface.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		TickInterval: DefaultTickInterval,
		HTTPAddr:     DefaultHTTPAddr,
		CORSOrigins:  []string{"*"},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: DefaultRateLimitRPS,
			Burst:             DefaultRateLimitBurst,
		},
		Log: logging.Config{Level: "info", Format: "text"},
		Tracing: observability.TracingConfig{
			ServiceName:     "constellation-telemetry",
			Exporter:        "stdout",
			SampleRatio:     1,
			TickSampleEvery: 1,
		},
	}
}

// Load reads envFiles (or .env when none are given) if present, then
// overlays environment variables on the defaults. Only malformed values are
// rejected here; callers apply their own overrides and then call Validate.
func Load(envFiles ...string) (Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SIM_TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return ValidationError{Field: "SIM_TICK_INTERVAL", Message: err.Error()}
		}
		c.TickInterval = d
	}
	if v, ok := os.LookupEnv("SIM_SEED_PATH"); ok {
		c.SeedPath = v
	}
	if v, ok := os.LookupEnv("SIM_HTTP_ADDR"); ok {
		c.HTTPAddr = v
	}
	if v := os.Getenv("SIM_CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}

	if v := os.Getenv("SIM_RATE_LIMIT_ENABLED"); v != "" {
		c.RateLimit.Enabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("SIM_RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return ValidationError{Field: "SIM_RATE_LIMIT_RPS", Message: err.Error()}
		}
		c.RateLimit.RequestsPerSecond = rps
	}
	if v := os.Getenv("SIM_RATE_LIMIT_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return ValidationError{Field: "SIM_RATE_LIMIT_BURST", Message: err.Error()}
		}
		c.RateLimit.Burst = burst
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	c.Log.AddSource = strings.EqualFold(os.Getenv("LOG_ADD_SOURCE"), "true")

	c.Tracing = observability.TracingConfigFromEnv()
	return nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.TickInterval <= 0 {
		errs = append(errs, ValidationError{Field: "TickInterval", Message: "must be positive"})
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, ValidationError{Field: "RateLimit.RequestsPerSecond", Message: "must be positive"})
		}
		if c.RateLimit.Burst <= 0 {
			errs = append(errs, ValidationError{Field: "RateLimit.Burst", Message: "must be positive"})
		}
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
