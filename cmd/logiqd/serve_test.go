package main

import (
	"testing"

	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/bredsky212/Logiq212/internal/config"
	"github.com/bredsky212/Logiq212/internal/platform"
)

func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	cfg, err := config.FromEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestServeGraphValidates(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"LOGIQ_API_SECRET":     "0123456789abcdef0123456789abcdef",
		"LOGIQ_RESTRICTOR_URL": "http://127.0.0.1:1/restrict",
	})
	opts := append(serveOptions(cfg),
		fx.Supply(autoMigrate(false)),
		fx.Invoke(runMigrations),
	)
	if err := fx.ValidateApp(opts...); err != nil {
		t.Fatalf("fx graph: %v", err)
	}
}

func TestRestrictorSelection(t *testing.T) {
	r, err := newRestrictor(testConfig(t, nil), nil)
	if err != nil {
		t.Fatalf("newRestrictor: %v", err)
	}
	if _, ok := r.(platform.LogOnly); !ok {
		t.Fatalf("expected log-only restrictor, got %T", r)
	}

	r, err = newRestrictor(testConfig(t, map[string]string{"LOGIQ_RESTRICTOR_URL": "http://bot.local/restrict"}), nil)
	if err != nil {
		t.Fatalf("newRestrictor: %v", err)
	}
	if _, ok := r.(*platform.Webhook); !ok {
		t.Fatalf("expected webhook restrictor, got %T", r)
	}
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t, map[string]string{"LOGIQ_SWEEP_SCHEDULE": "every tuesday"})
	if err := startSweeper(fxtest.NewLifecycle(t), cfg, nil); err == nil {
		t.Fatal("expected schedule parse error")
	}
}
