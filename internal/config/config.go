// Package config loads runtime settings from a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bredsky212/Logiq212/internal/audit"
	"github.com/bredsky212/Logiq212/internal/suspension"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Config holds every runtime setting.
type Config struct {
	HTTPAddr         string
	GRPCAddr         string
	Store            string
	PostgresDSN      string
	MongoURI         string
	MongoDB          string
	RedisURL         string
	RestrictorURL    string
	APISecret        string
	DenialCooldown   time.Duration
	SuspendDurations []time.Duration
	SweepSchedule    string
	RateBurst        int
	RatePerSec       float64
}

// Load reads .env files (if present) and then the environment. Variables
// already set in the environment win over .env values.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, applying defaults.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	cfg := &Config{
		HTTPAddr:      get("LOGIQ_HTTP_ADDR", ":8080"),
		GRPCAddr:      get("LOGIQ_GRPC_ADDR", ":9090"),
		Store:         strings.ToLower(get("LOGIQ_STORE", StoreMemory)),
		PostgresDSN:   get("LOGIQ_PG_DSN", ""),
		MongoURI:      get("LOGIQ_MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:       get("LOGIQ_MONGO_DB", "logiq"),
		RedisURL:      get("LOGIQ_REDIS_URL", ""),
		RestrictorURL: get("LOGIQ_RESTRICTOR_URL", ""),
		APISecret:     get("LOGIQ_API_SECRET", ""),
		SweepSchedule: get("LOGIQ_SWEEP_SCHEDULE", "@every 1m"),
	}

	var err error
	if cfg.DenialCooldown, err = time.ParseDuration(get("LOGIQ_DENIAL_COOLDOWN", audit.DefaultDenialCooldown.String())); err != nil {
		return nil, fmt.Errorf("LOGIQ_DENIAL_COOLDOWN: %w", err)
	}
	if raw := get("LOGIQ_SUSPEND_DURATIONS", ""); raw != "" {
		if cfg.SuspendDurations, err = ParseDurations(raw); err != nil {
			return nil, fmt.Errorf("LOGIQ_SUSPEND_DURATIONS: %w", err)
		}
	} else {
		cfg.SuspendDurations = append([]time.Duration(nil), suspension.DefaultDurations...)
	}
	if cfg.RateBurst, err = strconv.Atoi(get("LOGIQ_RATE_BURST", "50")); err != nil {
		return nil, fmt.Errorf("LOGIQ_RATE_BURST: %w", err)
	}
	if cfg.RatePerSec, err = strconv.ParseFloat(get("LOGIQ_RATE_PER_SEC", "25"), 64); err != nil {
		return nil, fmt.Errorf("LOGIQ_RATE_PER_SEC: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreMongo:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return errors.New("LOGIQ_PG_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.DenialCooldown <= 0 {
		return errors.New("denial cooldown must be positive")
	}
	if c.RateBurst < 0 || c.RatePerSec < 0 {
		return errors.New("rate limits must not be negative")
	}
	return nil
}

// ParseDurations parses a comma-separated list such as "5m,1h,24h".
func ParseDurations(raw string) ([]time.Duration, error) {
	var out []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, err
		}
		if d <= 0 {
			return nil, fmt.Errorf("duration %s must be positive", part)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, errors.New("no durations given")
	}
	return out, nil
}
