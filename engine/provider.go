package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/epoch"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/linker"
	"github.com/wippyai/wasm-bridge/safepoint"
	"github.com/wippyai/wasm-bridge/wasm"
)

var _ linker.Provider = (*Engine)(nil)

// HostModule instantiates a host module named "$host:<ns>:<n>" exporting
// funcs. Callback errors and panics surface as host callback errors.
func (e *Engine) HostModule(ctx context.Context, ns string, funcs []linker.HostExport) (api.Module, error) {
	name := e.NextName("$host:" + ns)
	b := e.rt.NewHostModuleBuilder(name)
	for _, f := range funcs {
		b.NewFunctionBuilder().
			WithGoModuleFunction(hostFunc(ns, f.Name, f.Func.Callback),
				imports.ValueTypes(f.Func.Type.Params),
				imports.ValueTypes(f.Func.Type.Results)).
			WithName(f.Name).
			Export(f.Name)
	}
	mod, err := b.Instantiate(ctx)
	if err != nil {
		return nil, err
	}
	Logger().Debug("host module instantiated",
		zap.String("module", name),
		zap.Int("funcs", len(funcs)))
	return mod, nil
}

// SharedMemory materialises m in this engine on first use.
func (e *Engine) SharedMemory(ctx context.Context, m *imports.Memory) (imports.Source, error) {
	limits := m.Limits()
	return m.Bind(e, func() (imports.Source, error) {
		b := linker.NewSynthModuleBuilder()
		b.AddLocalMemory("memory", limits)
		name := e.NextName("$memory")
		mod, err := e.instantiateBytes(ctx, name, b.Build())
		if err != nil {
			return imports.Source{}, err
		}
		e.track(m)
		Logger().Debug("shared memory materialised",
			zap.String("module", name),
			zap.Stringer("limits", limits))
		return imports.Source{Module: mod, Name: "memory"}, nil
	})
}

// SharedGlobal materialises g in this engine on first use.
func (e *Engine) SharedGlobal(ctx context.Context, g *imports.Global) (imports.Source, error) {
	initial := g.Initial()
	return g.Bind(e, func() (imports.Source, error) {
		b := linker.NewSynthModuleBuilder()
		b.AddLocalGlobal("global", g.Type(), initial)
		name := e.NextName("$global")
		mod, err := e.instantiateBytes(ctx, name, b.Build())
		if err != nil {
			return imports.Source{}, err
		}
		e.track(g)
		return imports.Source{Module: mod, Name: "global"}, nil
	})
}

// Synthetic instantiates a facade for ns.
func (e *Engine) Synthetic(ctx context.Context, ns string, bin []byte) (api.Module, error) {
	return e.instantiateBytes(ctx, e.NextName("$facade:"+ns), bin)
}

// Checker is the safe-point module of one store: a host module holding the
// check function and the facade guests import it through.
type Checker struct {
	host   api.Module
	facade api.Module
}

// Module returns the module to resolve safepoint.Namespace to.
func (c *Checker) Module() api.Module { return c.facade }

// Close closes the facade, then the host module.
func (c *Checker) Close(ctx context.Context) error {
	return multierr.Append(c.facade.Close(ctx), c.host.Close(ctx))
}

// CheckModule instantiates the safe-point module for one store. Its check
// function unwinds the calling guest with a budget error once budget is
// exhausted.
func (e *Engine) CheckModule(ctx context.Context, budget *epoch.Budget) (*Checker, error) {
	name := e.NextName("$host:" + safepoint.Namespace)
	check := func(ctx context.Context, mod api.Module, stack []uint64) {
		if err := budget.Check(); err != nil {
			Logger().Debug("budget exceeded", zap.String("module", name), zap.Error(err))
			panic(err)
		}
	}
	host, err := e.rt.NewHostModuleBuilder(name).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(check), nil, nil).
		WithName(safepoint.CheckName).
		Export(safepoint.CheckName).
		Instantiate(ctx)
	if err != nil {
		return nil, err
	}
	b := linker.NewSynthModuleBuilder()
	b.AddFuncImport(name, safepoint.CheckName, safepoint.CheckName, wasm.FuncType{})
	facade, err := e.instantiateBytes(ctx, e.NextName(safepoint.Namespace), b.Build())
	if err != nil {
		return nil, multierr.Append(err, host.Close(ctx))
	}
	return &Checker{host: host, facade: facade}, nil
}

// hostFunc adapts a callback to wazero. A returned error or a panic becomes
// a host callback error that keeps the original as its cause.
func hostFunc(ns, name string, cb imports.Callback) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if e, ok := r.(*errors.Error); ok && e.Kind == errors.KindHostCallback {
				panic(e)
			}
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", r)
			}
			panic(errors.HostCallback(ns, name, err))
		}()
		if err := cb(ctx, mod, stack); err != nil {
			panic(errors.HostCallback(ns, name, err))
		}
	}
}
