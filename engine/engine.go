package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/epoch"
	"github.com/wippyai/wasm-bridge/errors"
)

// Mode selects how wazero executes guest code.
type Mode string

const (
	ModeAuto        Mode = ""
	ModeCompiler    Mode = "compiler"
	ModeInterpreter Mode = "interpreter"
)

// Config holds configuration for engine creation
type Config struct {
	// Clock drives the budgets of stores on this engine. Nil uses
	// epoch.Process().
	Clock *epoch.Clock

	// Mode selects the compiler or the interpreter. ModeAuto uses the
	// compiler where wazero supports it.
	Mode Mode

	// CacheDir enables wazero's on-disk compilation cache.
	CacheDir string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

// Engine wraps a wazero runtime. Compiled modules, host modules and shared
// memories and globals all live in it. Engine is safe for concurrent use.
type Engine struct {
	rt     wazero.Runtime
	cache  wazero.CompilationCache
	clock  *epoch.Clock
	shared []releaser
	seq    atomic.Uint64
	mu     sync.Mutex
	closed atomic.Bool
}

type releaser interface {
	Release(owner any)
}

// New creates an engine with the given configuration.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	var rc wazero.RuntimeConfig
	switch cfg.Mode {
	case ModeAuto:
		rc = wazero.NewRuntimeConfig()
	case ModeCompiler:
		rc = wazero.NewRuntimeConfigCompiler()
	case ModeInterpreter:
		rc = wazero.NewRuntimeConfigInterpreter()
	default:
		return nil, errors.Config(fmt.Sprintf("unknown engine mode %q", cfg.Mode), nil)
	}
	if cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	e := &Engine{clock: cfg.Clock}
	if e.clock == nil {
		e.clock = epoch.Process()
	}
	if cfg.CacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, errors.Config("compilation cache "+cfg.CacheDir, err)
		}
		e.cache = cache
		rc = rc.WithCompilationCache(cache)
	}
	e.rt = wazero.NewRuntimeWithConfig(ctx, rc)

	Logger().Debug("engine created",
		zap.String("mode", string(cfg.Mode)),
		zap.Uint32("memory_limit_pages", cfg.MemoryLimitPages),
		zap.Bool("cache", e.cache != nil))
	return e, nil
}

// Runtime returns the underlying wazero runtime.
func (e *Engine) Runtime() wazero.Runtime {
	return e.rt
}

// Clock returns the epoch clock stores on this engine use.
func (e *Engine) Clock() *epoch.Clock {
	return e.clock
}

// NextName returns a module name unique within the engine.
func (e *Engine) NextName(prefix string) string {
	return fmt.Sprintf("%s:%d", prefix, e.seq.Add(1))
}

// Compile compiles an encoded module.
func (e *Engine) Compile(ctx context.Context, bin []byte) (wazero.CompiledModule, error) {
	if e.closed.Load() {
		return nil, errors.Closed("engine")
	}
	return e.rt.CompileModule(ctx, bin)
}

// Instantiate instantiates compiled under name. Imports of a namespace are
// taken from resolve when it returns a module, otherwise from the module of
// that name in the runtime. Start functions other than the start section
// are not run.
func (e *Engine) Instantiate(ctx context.Context, compiled wazero.CompiledModule, name string, resolve func(string) api.Module) (api.Module, error) {
	if e.closed.Load() {
		return nil, errors.Closed("engine")
	}
	if resolve != nil {
		ctx = experimental.WithImportResolver(ctx, resolve)
	}
	cfg := wazero.NewModuleConfig().WithName(name).WithStartFunctions()
	return e.rt.InstantiateModule(ctx, compiled, cfg)
}

// instantiateBytes compiles and instantiates a synthetic module.
func (e *Engine) instantiateBytes(ctx context.Context, name string, bin []byte) (api.Module, error) {
	compiled, err := e.Compile(ctx, bin)
	if err != nil {
		return nil, err
	}
	defer compiled.Close(ctx)
	return e.Instantiate(ctx, compiled, name, nil)
}

func (e *Engine) track(r releaser) {
	e.mu.Lock()
	e.shared = append(e.shared, r)
	e.mu.Unlock()
}

// Close releases every module and shared handle backed by this engine.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.mu.Lock()
	for _, r := range e.shared {
		r.Release(e)
	}
	e.shared = nil
	e.mu.Unlock()

	err := e.rt.Close(ctx)
	if e.cache != nil {
		err = multierr.Append(err, e.cache.Close(ctx))
	}
	return err
}
