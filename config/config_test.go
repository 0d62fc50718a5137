package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/epoch"
	"github.com/wippyai/wasm-bridge/wasm"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

const sample = `
engine:
  mode: interpreter
  memory_limit_pages: 256
run:
  platform: platform.wasm
  app: app.wasm
  entry: frame
  budget: 500
  iterations: 20
  tick: 5ms
host:
  namespace: env
  console: false
  reserved:
    - kind: func
      pattern: "reserved_%d"
      from: 0
      to: 40
      results: [i32]
    - kind: global
      pattern: "const_%d"
      type: f64
      from: 0
      to: 10
log:
  level: debug
  format: json
`

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	if cfg.Run.Entry != "run" || cfg.Run.Budget != 1000 || cfg.Run.Tick != time.Millisecond {
		t.Errorf("unexpected run defaults %+v", cfg.Run)
	}
	if cfg.Engine.Mode != "compiler" || !cfg.Host.Math || !cfg.Host.Console {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample), nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := Config{
		Engine: EngineConfig{Mode: "interpreter", MemoryLimitPages: 256},
		Run: RunConfig{
			Platform:   "platform.wasm",
			App:        "app.wasm",
			Entry:      "frame",
			Budget:     500,
			Iterations: 20,
			Tick:       5 * time.Millisecond,
		},
		Host: HostConfig{
			Namespace: "env",
			Math:      true,
			Reserved: []ReservedSlot{
				{Kind: "func", Pattern: "reserved_%d", From: 0, To: 40, Results: []string{"i32"}},
				{Kind: "global", Pattern: "const_%d", Type: "f64", From: 0, To: 10},
			},
		},
		Log: LogConfig{Level: "debug", Format: "json"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	ft := cfg.Host.Reserved[0].FuncType()
	if !ft.Equal(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}) {
		t.Errorf("reserved func type = %s", ft)
	}
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := Parse([]byte(sample), envMap(map[string]string{
		"BRIDGE_BUDGET":      "42",
		"BRIDGE_TICK":        "2ms",
		"BRIDGE_TUI":         "true",
		"BRIDGE_ENGINE_MODE": "compiler",
		"BRIDGE_LOG_LEVEL":   "warn",
		"UNRELATED":          "x",
	}))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Run.Budget != 42 || cfg.Run.Tick != 2*time.Millisecond || !cfg.Run.TUI {
		t.Errorf("env overrides not applied: %+v", cfg.Run)
	}
	if cfg.Engine.Mode != "compiler" || cfg.Log.Level != "warn" {
		t.Errorf("env overrides not applied: %+v %+v", cfg.Engine, cfg.Log)
	}
	if cfg.Run.Entry != "frame" || cfg.Run.Iterations != 20 {
		t.Errorf("unset variables must not override: %+v", cfg.Run)
	}
}

func TestEnvOverrides_Invalid(t *testing.T) {
	_, err := Load("", envMap(map[string]string{"BRIDGE_BUDGET": "lots"}))
	if err == nil {
		t.Fatal("non-numeric budget should fail")
	}
}

func TestValidate_ReportsEverything(t *testing.T) {
	doc := `
engine:
  mode: jit
run:
  entry: ""
  budget: 0
  iterations: -1
host:
  reserved:
    - kind: table
      pattern: ""
      from: 5
      to: 1
    - kind: func
      pattern: "f_%d"
      to: 2
      params: [v128]
log:
  level: loud
  format: xml
`
	_, err := Parse([]byte(doc), nil)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"engine.mode",
		"run.entry",
		"run.budget",
		"run.iterations",
		"host.reserved[0].pattern",
		"host.reserved[0]: invalid range",
		"host.reserved[0].kind",
		`host.reserved[1]: unknown value type "v128"`,
		"log.level",
		"log.format",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %q:\n%v", want, err)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Run.App != "app.wasm" {
		t.Errorf("app = %q", cfg.Run.App)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("missing file should fail")
	}
	if _, err := Parse([]byte("run: [unterminated"), nil); err == nil {
		t.Error("malformed YAML should fail")
	}

	cfg, err = Load("", nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("empty path should give defaults (-want +got):\n%s", diff)
	}
}

func TestEngineConfig(t *testing.T) {
	clock := epoch.NewClock()
	tests := []struct {
		mode string
		want engine.Mode
	}{
		{"compiler", engine.ModeCompiler},
		{"interpreter", engine.ModeInterpreter},
		{"auto", engine.ModeAuto},
		{"", engine.ModeAuto},
	}
	for _, tc := range tests {
		cfg := Default()
		cfg.Engine.Mode = tc.mode
		cfg.Engine.CacheDir = "/tmp/cache"
		ec := cfg.EngineConfig(clock)
		if ec.Mode != tc.want || ec.Clock != clock || ec.CacheDir != "/tmp/cache" {
			t.Errorf("mode %q: got %+v", tc.mode, ec)
		}
	}
}

func TestLogConfig_Logger(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		l, err := LogConfig{Level: "debug", Format: format}.Logger()
		if err != nil {
			t.Fatalf("%s logger: %v", format, err)
		}
		if !l.Core().Enabled(-1) {
			t.Errorf("%s logger should enable debug", format)
		}
	}
	if _, err := (LogConfig{Level: "nope", Format: "json"}).Logger(); err == nil {
		t.Error("bad level should fail")
	}
}
