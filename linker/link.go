package linker

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/imports"
)

// Provider creates the engine-side modules a plan needs.
type Provider interface {
	// HostModule instantiates a host module exporting funcs under their names.
	HostModule(ctx context.Context, ns string, funcs []HostExport) (api.Module, error)
	// SharedMemory returns the engine-wide backing of a memory handle.
	SharedMemory(ctx context.Context, m *imports.Memory) (imports.Source, error)
	// SharedGlobal returns the engine-wide backing of a global handle.
	SharedGlobal(ctx context.Context, g *imports.Global) (imports.Source, error)
	// Synthetic instantiates a module built by SynthModuleBuilder.
	Synthetic(ctx context.Context, ns string, bin []byte) (api.Module, error)
}

// HostExport is a host function exported by name from a host module.
type HostExport struct {
	Func *imports.HostFunc
	Name string
}

// Linked holds the modules serving each namespace of one instantiation.
type Linked struct {
	modules map[string]api.Module
	owned   []api.Module
}

// Module returns the module serving ns, or nil.
func (l *Linked) Module(ns string) api.Module {
	return l.modules[ns]
}

// Owned returns the number of modules created for this link.
func (l *Linked) Owned() int {
	return len(l.owned)
}

// Close closes the modules created for this link, newest first. Shared
// memories and globals belong to the engine and stay open.
func (l *Linked) Close(ctx context.Context) error {
	var err error
	for i := len(l.owned) - 1; i >= 0; i-- {
		err = multierr.Append(err, l.owned[i].Close(ctx))
	}
	l.owned = nil
	return err
}

// Link materialises the providers of plan. A namespace served entirely by
// one guest or carrier module under matching names is linked to that module
// directly; otherwise, and always when host functions are involved, a facade
// re-exports each binding under its declared name.
// On failure every module created so far is closed.
func Link(ctx context.Context, plan *Plan, p Provider) (*Linked, error) {
	linked := &Linked{modules: make(map[string]api.Module, len(plan.Namespaces))}
	for _, ns := range plan.Namespaces {
		mod, err := linked.namespace(ctx, ns, p)
		if err != nil {
			return nil, multierr.Append(err, linked.Close(ctx))
		}
		linked.modules[ns.Name] = mod
	}
	return linked, nil
}

func (l *Linked) namespace(ctx context.Context, ns Namespace, p Provider) (api.Module, error) {
	var host api.Module
	var funcs []HostExport
	seen := make(map[string]bool)
	for _, r := range ns.Imports {
		if hf, ok := r.Binding.(*imports.HostFunc); ok && !seen[r.Decl.Name] {
			seen[r.Decl.Name] = true
			funcs = append(funcs, HostExport{Name: r.Decl.Name, Func: hf})
		}
	}
	if len(funcs) > 0 {
		mod, err := p.HostModule(ctx, ns.Name, funcs)
		if err != nil {
			return nil, errors.Instantiation("host module for "+ns.Name, err)
		}
		l.owned = append(l.owned, mod)
		host = mod
	}

	// Host modules cannot be handed to the import resolver, so a namespace
	// with host functions always goes through a facade.
	sources := make([]imports.Source, len(ns.Imports))
	direct := host == nil
	for i, r := range ns.Imports {
		src, err := source(ctx, r, host, p)
		if err != nil {
			return nil, errors.Instantiation(ns.Name+"."+r.Decl.Name, err)
		}
		sources[i] = src
		if src.Module != sources[0].Module || src.Name != r.Decl.Name {
			direct = false
		}
	}
	if direct {
		return sources[0].Module, nil
	}

	b := NewSynthModuleBuilder()
	for i, r := range ns.Imports {
		src := sources[i]
		switch t := r.Decl.Type; {
		case t.Func != nil:
			b.AddFuncImport(src.Module.Name(), src.Name, r.Decl.Name, *t.Func)
		case t.Global != nil:
			b.AddGlobalImport(src.Module.Name(), src.Name, r.Decl.Name, *t.Global)
		case t.Memory != nil:
			b.AddMemoryImport(src.Module.Name(), src.Name, r.Decl.Name, *t.Memory)
		}
	}
	facade, err := p.Synthetic(ctx, ns.Name, b.Build())
	if err != nil {
		return nil, errors.Instantiation("facade for "+ns.Name, err)
	}
	l.owned = append(l.owned, facade)
	Logger().Debug("facade built",
		zap.String("namespace", ns.Name),
		zap.String("module", facade.Name()),
		zap.Int("exports", len(ns.Imports)))
	return facade, nil
}

func source(ctx context.Context, r Resolved, host api.Module, p Provider) (imports.Source, error) {
	switch v := r.Binding.(type) {
	case *imports.HostFunc:
		return imports.Source{Module: host, Name: r.Decl.Name}, nil
	case *imports.GuestFunc:
		return imports.Source{Module: v.Module, Name: v.Export}, nil
	case *imports.Memory:
		return p.SharedMemory(ctx, v)
	case *imports.Global:
		return p.SharedGlobal(ctx, v)
	}
	return imports.Source{}, errors.Unsupported(errors.PhaseLinking, "binding type")
}
