// Package config loads bridge configuration from YAML with environment
// overrides.
//
// Values are layered: built-in defaults, then the YAML document, then
// BRIDGE_* environment variables. The result is validated as a whole and
// every problem is reported at once.
package config

import (
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/epoch"
	"github.com/wippyai/wasm-bridge/errors"
)

// Config is the complete bridge configuration.
type Config struct {
	Engine EngineConfig `koanf:"engine" yaml:"engine"`
	Run    RunConfig    `koanf:"run" yaml:"run"`
	Host   HostConfig   `koanf:"host" yaml:"host"`
	Log    LogConfig    `koanf:"log" yaml:"log"`
}

// EngineConfig selects how guest code is executed.
type EngineConfig struct {
	Mode             string `koanf:"mode" yaml:"mode"`
	CacheDir         string `koanf:"cache_dir" yaml:"cache_dir"`
	MemoryLimitPages uint32 `koanf:"memory_limit_pages" yaml:"memory_limit_pages"`
}

// RunConfig describes what to run and how often.
type RunConfig struct {
	Platform   string        `koanf:"platform" yaml:"platform"`
	App        string        `koanf:"app" yaml:"app"`
	Entry      string        `koanf:"entry" yaml:"entry"`
	Budget     uint64        `koanf:"budget" yaml:"budget"`
	Iterations int           `koanf:"iterations" yaml:"iterations"`
	Tick       time.Duration `koanf:"tick" yaml:"tick"`
	TUI        bool          `koanf:"tui" yaml:"tui"`
}

// HostConfig selects the host functions registered for guests.
type HostConfig struct {
	Namespace string         `koanf:"namespace" yaml:"namespace"`
	Reserved  []ReservedSlot `koanf:"reserved" yaml:"reserved"`
	Math      bool           `koanf:"math" yaml:"math"`
	Console   bool           `koanf:"console" yaml:"console"`
}

// ReservedSlot declares a range of placeholder imports. Kind "func"
// registers no-op functions of the given signature, kind "global" constant
// globals of Type holding Value. Names are Pattern formatted with each index
// in [From, To).
type ReservedSlot struct {
	Kind    string   `koanf:"kind" yaml:"kind"`
	Pattern string   `koanf:"pattern" yaml:"pattern"`
	Type    string   `koanf:"type" yaml:"type,omitempty"`
	Params  []string `koanf:"params" yaml:"params,omitempty"`
	Results []string `koanf:"results" yaml:"results,omitempty"`
	From    int      `koanf:"from" yaml:"from"`
	To      int      `koanf:"to" yaml:"to"`
	Value   uint64   `koanf:"value" yaml:"value,omitempty"`
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Engine: EngineConfig{Mode: string(engine.ModeCompiler)},
		Run: RunConfig{
			Entry:      "run",
			Budget:     1000,
			Iterations: 1,
			Tick:       time.Millisecond,
		},
		Host: HostConfig{
			Namespace: "env",
			Math:      true,
			Console:   true,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// LookupFunc resolves an environment variable. os.LookupEnv is the usual
// choice.
type LookupFunc func(key string) (string, bool)

// Load reads the YAML file at path, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string, lookup LookupFunc) (Config, error) {
	if path == "" {
		return build(nil, lookup)
	}
	return build(file.Provider(path), lookup)
}

// Parse is Load for an in-memory YAML document.
func Parse(data []byte, lookup LookupFunc) (Config, error) {
	return build(rawbytes.Provider(data), lookup)
}

func build(p koanf.Provider, lookup LookupFunc) (Config, error) {
	cfg := Default()
	if p != nil {
		k := koanf.New(".")
		if err := k.Load(p, yaml.Parser()); err != nil {
			return Config{}, errors.Config("load configuration", err)
		}
		if err := k.Unmarshal("", &cfg); err != nil {
			return Config{}, errors.Config("decode configuration", err)
		}
	}
	if lookup != nil {
		if err := applyEnv(&cfg, lookup); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// EngineConfig returns the engine configuration for a runtime driven by
// clock.
func (c Config) EngineConfig(clock *epoch.Clock) engine.Config {
	mode := engine.Mode(c.Engine.Mode)
	if mode == "auto" {
		mode = engine.ModeAuto
	}
	return engine.Config{
		Mode:             mode,
		CacheDir:         c.Engine.CacheDir,
		MemoryLimitPages: c.Engine.MemoryLimitPages,
		Clock:            clock,
	}
}
