package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bredsky212/Logiq212/internal/suspension"
)

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv(mapLookup(nil))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Store != StoreMemory || cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.DenialCooldown != 5*time.Minute {
		t.Fatalf("cooldown = %s", cfg.DenialCooldown)
	}
	if len(cfg.SuspendDurations) != len(suspension.DefaultDurations) {
		t.Fatalf("durations = %v", cfg.SuspendDurations)
	}
}

func TestOverrides(t *testing.T) {
	cfg, err := FromEnv(mapLookup(map[string]string{
		"LOGIQ_STORE":             "Postgres",
		"LOGIQ_PG_DSN":            "postgres://localhost/logiq",
		"LOGIQ_DENIAL_COOLDOWN":   "30s",
		"LOGIQ_SUSPEND_DURATIONS": "10m, 2h",
		"LOGIQ_RATE_BURST":        "5",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Store != StorePostgres || cfg.DenialCooldown != 30*time.Second || cfg.RateBurst != 5 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.SuspendDurations) != 2 || cfg.SuspendDurations[1] != 2*time.Hour {
		t.Fatalf("durations = %v", cfg.SuspendDurations)
	}
}

func TestValidation(t *testing.T) {
	cases := []map[string]string{
		{"LOGIQ_STORE": "postgres"},
		{"LOGIQ_STORE": "sqlite"},
		{"LOGIQ_DENIAL_COOLDOWN": "soon"},
		{"LOGIQ_SUSPEND_DURATIONS": "5m,-1h"},
		{"LOGIQ_RATE_PER_SEC": "fast"},
	}
	for _, env := range cases {
		if _, err := FromEnv(mapLookup(env)); err == nil {
			t.Fatalf("expected error for %v", env)
		}
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("LOGIQ_MONGO_DB=fromfile\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("LOGIQ_MONGO_DB", "")
	os.Unsetenv("LOGIQ_MONGO_DB")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MongoDB != "fromfile" {
		t.Fatalf("mongo db = %q", cfg.MongoDB)
	}
}
