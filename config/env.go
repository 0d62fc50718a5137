package config

import (
	"time"

	"github.com/mstoykov/envconfig"

	"github.com/wippyai/wasm-bridge/errors"
)

// env lists the supported overrides. A nil field was not set.
type env struct {
	EngineMode       *string        `envconfig:"BRIDGE_ENGINE_MODE"`
	CacheDir         *string        `envconfig:"BRIDGE_CACHE_DIR"`
	MemoryLimitPages *uint32        `envconfig:"BRIDGE_MEMORY_LIMIT_PAGES"`
	Platform         *string        `envconfig:"BRIDGE_PLATFORM"`
	App              *string        `envconfig:"BRIDGE_APP"`
	Entry            *string        `envconfig:"BRIDGE_ENTRY"`
	Budget           *uint64        `envconfig:"BRIDGE_BUDGET"`
	Iterations       *int           `envconfig:"BRIDGE_ITERATIONS"`
	Tick             *time.Duration `envconfig:"BRIDGE_TICK"`
	TUI              *bool          `envconfig:"BRIDGE_TUI"`
	Namespace        *string        `envconfig:"BRIDGE_NAMESPACE"`
	LogLevel         *string        `envconfig:"BRIDGE_LOG_LEVEL"`
	LogFormat        *string        `envconfig:"BRIDGE_LOG_FORMAT"`
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	var e env
	if err := envconfig.Process("", &e, lookup); err != nil {
		return errors.Config("environment overrides", err)
	}
	set(&cfg.Engine.Mode, e.EngineMode)
	set(&cfg.Engine.CacheDir, e.CacheDir)
	set(&cfg.Engine.MemoryLimitPages, e.MemoryLimitPages)
	set(&cfg.Run.Platform, e.Platform)
	set(&cfg.Run.App, e.App)
	set(&cfg.Run.Entry, e.Entry)
	set(&cfg.Run.Budget, e.Budget)
	set(&cfg.Run.Iterations, e.Iterations)
	set(&cfg.Run.Tick, e.Tick)
	set(&cfg.Run.TUI, e.TUI)
	set(&cfg.Host.Namespace, e.Namespace)
	set(&cfg.Log.Level, e.LogLevel)
	set(&cfg.Log.Format, e.LogFormat)
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
