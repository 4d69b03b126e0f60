package config

import (
	"github.com/knadh/koanf/providers/confmap"
)

const (
	EnvPrefix         = "MEDREMIND_"
	DefaultConfigPath = "medremind.yaml"
)

func DefaultConfig() map[string]any {
	return map[string]any{
		"db_path":             "medremind.db",
		"prescriptions_path":  "prescriptions.json",
		"watch_prescriptions": true,
		"metrics_addr":        "",
		"scheduler": map[string]any{
			"fast_tick":       "15s",
			"medium_tick":     "30m",
			"slow_tick":       "24h",
			"defer_threshold": 3,
			"display_timeout": "2h",
			"stale_after":     "3h",
			"ledger_ttl":      "24h",
			"poke_interval":   "15m",
			"past_due_policy": "include",
			"event_buffer":    64,
		},
		"ui": map[string]any{
			"clock_24h":             false,
			"desktop_notifications": false,
		},
		"log": map[string]any{
			"level":  "info",
			"format": "json",
			"path":   "medremind.log",
		},
	}
}

func NewDefaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}
