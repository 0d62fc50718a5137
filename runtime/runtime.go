package runtime

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/epoch"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/safepoint"
	"github.com/wippyai/wasm-bridge/wasm"
)

// Runtime loads modules and creates stores on one engine.
type Runtime struct {
	engine *engine.Engine
	closed atomic.Bool
}

// New creates a runtime with the given engine configuration.
func New(ctx context.Context, cfg engine.Config) (*Runtime, error) {
	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Runtime{engine: eng}, nil
}

// Engine returns the underlying engine.
func (r *Runtime) Engine() *engine.Engine {
	return r.engine
}

// Clock returns the epoch clock budgets of this runtime's stores follow.
func (r *Runtime) Clock() *epoch.Clock {
	return r.engine.Clock()
}

// Load validates, instruments and compiles a module. No guest code runs.
// Every failure is a validation error naming the offending construct.
func (r *Runtime) Load(ctx context.Context, bin []byte) (*Module, error) {
	return r.load(ctx, "module", bin)
}

// LoadFile reads path and loads it. The module is named after the file.
func (r *Runtime) LoadFile(ctx context.Context, path string) (*Module, error) {
	bin, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindNotFound, err, "read "+path)
	}
	return r.load(ctx, filepath.Base(path), bin)
}

func (r *Runtime) load(ctx context.Context, name string, bin []byte) (*Module, error) {
	if r.closed.Load() {
		return nil, errors.Closed("runtime")
	}
	parsed, err := wasm.Parse(bin)
	if err != nil {
		return nil, err
	}
	inst, err := safepoint.Inject(parsed)
	if err != nil {
		return nil, err
	}
	compiled, err := r.engine.Compile(ctx, inst.Binary())
	if err != nil {
		return nil, errors.Validation([]string{name}, "compile failed", err)
	}

	m := &Module{
		runtime:  r,
		name:     name,
		imports:  parsed.ImportDecls(),
		exports:  parsed.ExportDecls(),
		compiled: compiled,
		sites:    inst.Sites,
	}
	Logger().Debug("module loaded",
		zap.String("module", name),
		zap.Int("imports", len(m.imports)),
		zap.Int("exports", len(m.exports)),
		zap.Int("safe_points", m.sites))
	return m, nil
}

// NewStore creates a store with a fresh, unarmed budget.
func (r *Runtime) NewStore() *Store {
	return &Store{
		runtime: r,
		budget:  epoch.NewBudget(r.engine.Clock()),
	}
}

// Close releases the engine and everything instantiated in it.
func (r *Runtime) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.engine.Close(ctx)
}
