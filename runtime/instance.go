package runtime

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/linker"
	"github.com/wippyai/wasm-bridge/wasm"
)

// Export is an exported item of an instance: a *Func, an *imports.Global
// or an *imports.Memory.
type Export interface {
	Extern() wasm.Extern
}

// Instance is a module linked and instantiated in a store.
type Instance struct {
	store   *Store
	module  *Module
	mod     api.Module
	linked  *linker.Linked
	exports map[string]Export
	closed  bool
}

func (i *Instance) bind(e wasm.ExportDecl) {
	switch e.Type.Kind {
	case wasm.ExternFunc:
		if fn := i.mod.ExportedFunction(e.Name); fn != nil {
			i.exports[e.Name] = &Func{inst: i, fn: fn, name: e.Name, typ: funcType(e)}
		}
	case wasm.ExternGlobal:
		if g := imports.ExportedGlobal(i.mod, e.Name); g != nil {
			i.exports[e.Name] = g
		}
	case wasm.ExternMemory:
		if m := imports.ExportedMemory(i.mod, e.Name); m != nil {
			i.exports[e.Name] = m
		}
	}
}

// Name returns the instance's module name in the engine.
func (i *Instance) Name() string {
	return i.mod.Name()
}

// Module returns the module the instance was created from.
func (i *Instance) Module() *Module {
	return i.module
}

// Store returns the store the instance runs in.
func (i *Instance) Store() *Store {
	return i.store
}

// Export returns the export named name. Tables are not exposed.
func (i *Instance) Export(name string) (Export, error) {
	if e, ok := i.exports[name]; ok {
		return e, nil
	}
	if d, ok := i.module.export(name); ok && d.Type.Kind == wasm.ExternTable {
		return nil, errors.Unsupported(errors.PhaseRuntime, "table export "+name)
	}
	return nil, errors.NotFound(errors.PhaseRuntime, "export", name)
}

// Func returns the exported function named name.
func (i *Instance) Func(name string) (*Func, error) {
	e, err := i.Export(name)
	if err != nil {
		return nil, err
	}
	fn, ok := e.(*Func)
	if !ok {
		return nil, kindMismatch(name, "func", e)
	}
	return fn, nil
}

// Global returns the exported global named name.
func (i *Instance) Global(name string) (*imports.Global, error) {
	e, err := i.Export(name)
	if err != nil {
		return nil, err
	}
	g, ok := e.(*imports.Global)
	if !ok {
		return nil, kindMismatch(name, "global", e)
	}
	return g, nil
}

// Memory returns the exported memory named name.
func (i *Instance) Memory(name string) (*imports.Memory, error) {
	e, err := i.Export(name)
	if err != nil {
		return nil, err
	}
	m, ok := e.(*imports.Memory)
	if !ok {
		return nil, kindMismatch(name, "memory", e)
	}
	return m, nil
}

func kindMismatch(name, want string, e Export) error {
	return errors.New(errors.PhaseRuntime, errors.KindTypeMismatch).
		Path(name).
		WasmType(e.Extern().String()).
		Detail("export is not a %s", want).
		Build()
}

// RegisterExports registers every exported function of the instance in t
// under ns with its export name, replacing existing bindings.
func (i *Instance) RegisterExports(t *imports.Table, ns string) error {
	for _, d := range i.module.exports {
		fn, ok := i.exports[d.Name].(*Func)
		if !ok {
			continue
		}
		b := &imports.GuestFunc{Module: i.mod, Export: d.Name, Type: fn.typ}
		if err := t.Register(ns, d.Name, b); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the instance and the modules created to link it.
func (i *Instance) Close(ctx context.Context) error {
	if i.closed {
		return nil
	}
	i.closed = true
	err := i.mod.Close(ctx)
	return multierr.Append(err, i.linked.Close(ctx))
}

// Func is an exported guest function.
type Func struct {
	inst *Instance
	fn   api.Function
	name string
	typ  wasm.FuncType
}

// Name returns the export name.
func (f *Func) Name() string {
	return f.name
}

// Type returns the function signature.
func (f *Func) Type() wasm.FuncType {
	return f.typ
}

// Extern reports the function as an extern type.
func (f *Func) Extern() wasm.Extern {
	return wasm.FuncExtern(f.typ)
}

// Invoke calls the function with raw wasm values, encoded as by wazero's
// api.Encode helpers. The outermost invocation in a store is bracketed by
// the store's budget. Failures are budget exceeded, host callback or guest
// trap errors; the instance stays usable after any of them.
func (f *Func) Invoke(ctx context.Context, args ...uint64) ([]uint64, error) {
	if f.inst.closed || f.inst.store.closed {
		return nil, errors.Closed("instance")
	}
	if len(args) != len(f.typ.Params) {
		return nil, errors.InvalidInput(errors.PhaseRuntime,
			fmt.Sprintf("%s: expected %d arguments, got %d", f.name, len(f.typ.Params), len(args)))
	}

	budget := f.inst.store.budget
	budget.Enter()
	res, err := f.fn.Call(ctx, args...)
	err = engine.Classify(f.name, err)
	budget.Exit(err)
	if err != nil {
		return nil, err
	}
	return res, nil
}
