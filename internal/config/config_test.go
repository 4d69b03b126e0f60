package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sandeepkv93/medremind/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.DBPath != "medremind.db" || cfg.PrescriptionsPath != "prescriptions.json" || !cfg.WatchPrescriptions {
		t.Fatalf("unexpected path defaults: %+v", cfg)
	}
	s := cfg.Scheduler
	if s.FastTick != 15*time.Second || s.MediumTick != 30*time.Minute || s.SlowTick != 24*time.Hour {
		t.Fatalf("unexpected tick defaults: %+v", s)
	}
	if s.DeferThreshold != 3 || s.DisplayTimeout != 2*time.Hour || s.StaleAfter != 3*time.Hour || s.LedgerTTL != 24*time.Hour {
		t.Fatalf("unexpected lifecycle defaults: %+v", s)
	}
	if s.EventBuffer != 64 || s.PastDuePolicy != "include" {
		t.Fatalf("unexpected runner defaults: %+v", s)
	}
	if cfg.Log.Path != "medremind.log" || cfg.MetricsAddr != "" {
		t.Fatalf("unexpected log/metrics defaults: %+v", cfg)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medremind.yaml")
	body := `
db_path: /data/device.db
scheduler:
  defer_threshold: 5
  display_timeout: 90m
  past_due_policy: discard
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MEDREMIND_SCHEDULER__DEFER_THRESHOLD", "4")
	t.Setenv("MEDREMIND_WATCH_PRESCRIPTIONS", "false")
	t.Setenv("MEDREMIND_METRICS_ADDR", ":9102")
	t.Setenv("MEDREMIND_UI__CLOCK_24H", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.DBPath != "/data/device.db" || cfg.Log.Level != "debug" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Scheduler.DeferThreshold != 4 {
		t.Fatalf("env should override file, got threshold %d", cfg.Scheduler.DeferThreshold)
	}
	if cfg.WatchPrescriptions || cfg.MetricsAddr != ":9102" || !cfg.UI.Clock24h {
		t.Fatalf("env values not applied: %+v", cfg)
	}

	opts := cfg.SchedulerOptions()
	if opts.DisplayTimeout != 90*time.Minute || opts.PastDue != model.PastDueDiscard || opts.StaleAfter != 3*time.Hour {
		t.Fatalf("unexpected scheduler options: %+v", opts)
	}
	if err := opts.Validate(); err != nil {
		t.Fatalf("scheduler options invalid: %v", err)
	}
	if rc := cfg.RunnerConfig(); rc.EventBuffer != 64 || rc.FastTick != 15*time.Second {
		t.Fatalf("unexpected runner config: %+v", rc)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scheduler.DeferThreshold != 3 {
		t.Fatalf("expected defaults, got %+v", cfg.Scheduler)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"db path":    func(c *Config) { c.DBPath = "" },
		"fast tick":  func(c *Config) { c.Scheduler.FastTick = 0 },
		"stale":      func(c *Config) { c.Scheduler.StaleAfter = -time.Minute },
		"threshold":  func(c *Config) { c.Scheduler.DeferThreshold = 0 },
		"buffer":     func(c *Config) { c.Scheduler.EventBuffer = 0 },
		"policy":     func(c *Config) { c.Scheduler.PastDuePolicy = "skip" },
		"log level":  func(c *Config) { c.Log.Level = "verbose" },
		"log format": func(c *Config) { c.Log.Format = "xml" },
	}
	for name, mutate := range cases {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		mutate(cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestEnvKey(t *testing.T) {
	if got := envKey("MEDREMIND_SCHEDULER__LEDGER_TTL"); got != "scheduler.ledger_ttl" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := envKey("MEDREMIND_DB_PATH"); got != "db_path" {
		t.Fatalf("unexpected key %q", got)
	}
}
