package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-bridge/config"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostlib"
	"github.com/wippyai/wasm-bridge/internal/wasmtest"
)

func noEnv(string) (string, bool) { return "", false }

func isKind(err error, kind errors.Kind) bool {
	var be *errors.Error
	return stderrors.As(err, &be) && be.Kind == kind
}

func writeModule(t *testing.T, name string, bin []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, bin, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out, noEnv)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// printer exports run, which writes "hi\n" through putchar.
func printer() []byte {
	b := wasmtest.New()
	putchar := b.ImportFunc("env", "putchar", wasmtest.I32, wasmtest.I32)
	b.ExportFunc("run", b.Func(nil, nil, nil,
		wasmtest.I32Const('h'), wasmtest.Call(putchar), wasmtest.Drop(),
		wasmtest.I32Const('i'), wasmtest.Call(putchar), wasmtest.Drop(),
		wasmtest.I32Const('\n'), wasmtest.Call(putchar), wasmtest.Drop(),
	))
	return b.Bytes()
}

func TestBuildTable(t *testing.T) {
	cfg := config.Default().Host
	cfg.Reserved = []config.ReservedSlot{
		{Kind: "func", Pattern: "reserved_%d", From: 0, To: 4, Results: []string{"i32"}},
		{Kind: "global", Pattern: "const_%d", Type: "f64", From: 2, To: 5},
	}
	table, err := buildTable(cfg, hostlib.NewConsole(nil))
	if err != nil {
		t.Fatalf("buildTable failed: %v", err)
	}
	for _, name := range []string{"sin", "putchar", "reserved_0", "reserved_3", "const_2", "const_4"} {
		if _, ok := table.Lookup("env", name); !ok {
			t.Errorf("env.%s not registered", name)
		}
	}
	for _, name := range []string{"reserved_4", "const_1"} {
		if _, ok := table.Lookup("env", name); ok {
			t.Errorf("env.%s outside the reserved range", name)
		}
	}

	cfg.Math = false
	cfg.Reserved = nil
	table, err = buildTable(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if table.Len() != 0 {
		t.Errorf("expected empty table, got %d entries", table.Len())
	}
}

func TestInspect(t *testing.T) {
	b := wasmtest.New()
	sin := b.ImportFunc("env", "sin", wasmtest.F64, wasmtest.F64)
	mem := b.Memory(1)
	b.ExportFunc("compute", b.Func(wasmtest.F64, wasmtest.F64, nil, wasmtest.LocalGet(0), wasmtest.Call(sin)))
	b.ExportMemory("memory", mem)
	path := writeModule(t, "calc.wasm", b.Bytes())

	out, err := execRoot(t, "inspect", path, "--output", "yaml")
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	var got moduleReport
	if err := yaml.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, out)
	}
	want := moduleReport{
		Name:       "calc.wasm",
		SafePoints: 1,
		Imports: []importEntry{
			{Namespace: "env", Name: "sin", Kind: "func", Type: "func (f64) -> f64"},
		},
		Exports: []exportEntry{
			{Name: "compute", Kind: "func", Type: "func (f64) -> f64"},
			{Name: "memory", Kind: "memory", Type: "memory 1.."},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	out, err = execRoot(t, "inspect", path)
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{"Module: calc.wasm", "env.sin: func (f64) -> f64", "Exports (2):"} {
		if !strings.Contains(out, line) {
			t.Errorf("text output missing %q:\n%s", line, out)
		}
	}

	if _, err := execRoot(t, "inspect", path, "-o", "xml"); err == nil {
		t.Error("unknown output format should fail")
	}
	bad := writeModule(t, "bad.wasm", []byte("not wasm"))
	if _, err := execRoot(t, "inspect", bad); !stderrors.Is(err, errors.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestRun_Plain(t *testing.T) {
	app := writeModule(t, "printer.wasm", printer())
	out, err := execRoot(t, "run", app, "--iterations", "2", "--mode", "interpreter", "--tick", "1ms")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if n := strings.Count(out, "hi\n"); n != 2 {
		t.Errorf("guest printed %d lines, want 2:\n%s", n, out)
	}
	if !strings.Contains(out, "run: 2 calls") {
		t.Errorf("missing summary:\n%s", out)
	}
}

func TestRun_Composed(t *testing.T) {
	// The platform provides greet; the application only knows env.greet.
	pb := wasmtest.New()
	putchar := pb.ImportFunc("env", "putchar", wasmtest.I32, wasmtest.I32)
	pb.ExportFunc("greet", pb.Func(nil, nil, nil,
		wasmtest.I32Const('o'), wasmtest.Call(putchar), wasmtest.Drop(),
		wasmtest.I32Const('k'), wasmtest.Call(putchar), wasmtest.Drop(),
		wasmtest.I32Const('\n'), wasmtest.Call(putchar), wasmtest.Drop(),
	))
	ab := wasmtest.New()
	greet := ab.ImportFunc("env", "greet", nil, nil)
	ab.ExportFunc("frame", ab.Func(nil, nil, nil, wasmtest.Call(greet)))

	platform := writeModule(t, "platform.wasm", pb.Bytes())
	app := writeModule(t, "app.wasm", ab.Bytes())
	out, err := execRoot(t, "run", app, "--platform", platform, "--entry", "frame", "-n", "3", "--mode", "interpreter")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if n := strings.Count(out, "ok\n"); n != 3 {
		t.Errorf("guest printed %d lines, want 3:\n%s", n, out)
	}
}

func TestRun_BudgetExceeded(t *testing.T) {
	b := wasmtest.New()
	b.ExportFunc("run", b.Func(nil, nil, nil, wasmtest.Loop(wasmtest.Br(0))))
	app := writeModule(t, "spin.wasm", b.Bytes())

	out, err := execRoot(t, "run", app, "--budget", "1", "--tick", "1ms", "--mode", "interpreter")
	if !stderrors.Is(err, errors.ErrBudgetExceeded) {
		t.Fatalf("expected budget exceeded, got %v", err)
	}
	if !strings.Contains(out, "run: 0 calls") {
		t.Errorf("summary should report no completed calls:\n%s", out)
	}
}

func TestRun_Errors(t *testing.T) {
	if _, err := execRoot(t, "run"); err == nil {
		t.Error("missing application should fail")
	}
	if _, err := execRoot(t, "run", filepath.Join(t.TempDir(), "missing.wasm")); !isKind(err, errors.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	app := writeModule(t, "printer.wasm", printer())
	if _, err := execRoot(t, "run", app, "--budget", "0"); !isKind(err, errors.KindInvalidInput) {
		t.Errorf("expected config error, got %v", err)
	}
	_, err := execRoot(t, "run", app, "--entry", "missing", "--mode", "interpreter")
	if !isKind(err, errors.KindNotFound) {
		t.Errorf("expected missing entry, got %v", err)
	}
}

func TestRunFlags_OnlyChangedOverride(t *testing.T) {
	cmd := newRunCmd(&rootOptions{lookup: noEnv})
	if err := cmd.Flags().Parse([]string{"--budget", "7"}); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	f := &runFlags{budget: 7}
	f.apply(cmd.Flags(), &cfg)
	if cfg.Run.Budget != 7 || cfg.Run.Entry != "run" || cfg.Run.Iterations != 1 {
		t.Errorf("unexpected run config %+v", cfg.Run)
	}
}
