// Package config layers built-in defaults, an optional YAML file, and
// MEDREMIND_ environment variables into one Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/sandeepkv93/medremind/internal/logging"
	"github.com/sandeepkv93/medremind/internal/model"
	"github.com/sandeepkv93/medremind/internal/scheduler"
)

var ErrInvalidConfig = errors.New("config: invalid config")

type Config struct {
	DBPath             string          `koanf:"db_path"`
	PrescriptionsPath  string          `koanf:"prescriptions_path"`
	WatchPrescriptions bool            `koanf:"watch_prescriptions"`
	MetricsAddr        string          `koanf:"metrics_addr"`
	Scheduler          SchedulerConfig `koanf:"scheduler"`
	UI                 UIConfig        `koanf:"ui"`
	Log                LogConfig       `koanf:"log"`
}

type UIConfig struct {
	Clock24h             bool `koanf:"clock_24h"`
	DesktopNotifications bool `koanf:"desktop_notifications"`
}

type SchedulerConfig struct {
	FastTick       time.Duration `koanf:"fast_tick"`
	MediumTick     time.Duration `koanf:"medium_tick"`
	SlowTick       time.Duration `koanf:"slow_tick"`
	DeferThreshold int           `koanf:"defer_threshold"`
	DisplayTimeout time.Duration `koanf:"display_timeout"`
	StaleAfter     time.Duration `koanf:"stale_after"`
	LedgerTTL      time.Duration `koanf:"ledger_ttl"`
	PokeInterval   time.Duration `koanf:"poke_interval"`
	PastDuePolicy  string        `koanf:"past_due_policy"`
	EventBuffer    int           `koanf:"event_buffer"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Path   string `koanf:"path"`
}

// Load reads configuration. A configPath that does not exist is skipped so
// a device can run on defaults alone.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		configPath = expandPath(configPath)
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.DBPath = expandPath(cfg.DBPath)
	cfg.PrescriptionsPath = expandPath(cfg.PrescriptionsPath)
	cfg.Log.Path = expandPath(cfg.Log.Path)
	return &cfg, nil
}

// envKey maps MEDREMIND_SCHEDULER__DEFER_THRESHOLD to scheduler.defer_threshold.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("%w: db_path is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.PrescriptionsPath) == "" {
		return fmt.Errorf("%w: prescriptions_path is required", ErrInvalidConfig)
	}
	s := c.Scheduler
	for name, d := range map[string]time.Duration{
		"fast_tick":       s.FastTick,
		"medium_tick":     s.MediumTick,
		"slow_tick":       s.SlowTick,
		"display_timeout": s.DisplayTimeout,
		"stale_after":     s.StaleAfter,
		"ledger_ttl":      s.LedgerTTL,
		"poke_interval":   s.PokeInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: scheduler.%s must be positive", ErrInvalidConfig, name)
		}
	}
	if s.DeferThreshold <= 0 {
		return fmt.Errorf("%w: scheduler.defer_threshold must be positive", ErrInvalidConfig)
	}
	if s.EventBuffer <= 0 {
		return fmt.Errorf("%w: scheduler.event_buffer must be positive", ErrInvalidConfig)
	}
	if _, err := model.ParsePastDuePolicy(s.PastDuePolicy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if !logging.ValidLevel(c.Log.Level) {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// SchedulerOptions assumes Validate has passed.
func (c *Config) SchedulerOptions() scheduler.Options {
	policy, _ := model.ParsePastDuePolicy(c.Scheduler.PastDuePolicy)
	return scheduler.Options{
		DeferThreshold: c.Scheduler.DeferThreshold,
		DisplayTimeout: c.Scheduler.DisplayTimeout,
		StaleAfter:     c.Scheduler.StaleAfter,
		LedgerTTL:      c.Scheduler.LedgerTTL,
		PokeInterval:   c.Scheduler.PokeInterval,
		PastDue:        policy,
	}
}

func (c *Config) RunnerConfig() scheduler.RunnerConfig {
	return scheduler.RunnerConfig{
		FastTick:    c.Scheduler.FastTick,
		MediumTick:  c.Scheduler.MediumTick,
		SlowTick:    c.Scheduler.SlowTick,
		EventBuffer: c.Scheduler.EventBuffer,
	}
}

func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format, Path: c.Log.Path}
}

func expandPath(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
