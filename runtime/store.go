package runtime

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/epoch"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/linker"
	"github.com/wippyai/wasm-bridge/safepoint"
	"github.com/wippyai/wasm-bridge/wasm"
)

// ComposeNamespace is the namespace platform exports are registered under
// by Compose.
const ComposeNamespace = "env"

// Store is the execution context instances run in. All instances of a store
// share its budget. A Store is not safe for concurrent use.
type Store struct {
	runtime   *Runtime
	budget    *epoch.Budget
	check     *engine.Checker
	instances []*Instance
	closed    bool
}

// Budget returns the store's budget.
func (s *Store) Budget() *epoch.Budget {
	return s.budget
}

// Arm sets the deadline ticks epochs from now. It stays in effect for every
// later invocation until the store is armed again.
func (s *Store) Arm(ticks uint64) {
	s.budget.Arm(ticks)
}

// Disarm removes the deadline.
func (s *Store) Disarm() {
	s.budget.Disarm()
}

func (s *Store) checkModule(ctx context.Context) (api.Module, error) {
	if s.check != nil {
		return s.check.Module(), nil
	}
	chk, err := s.runtime.engine.CheckModule(ctx, s.budget)
	if err != nil {
		return nil, errors.Instantiation("safe-point module", err)
	}
	s.check = chk
	return chk.Module(), nil
}

// releaseCheck closes the safe-point module when no instance uses it.
func (s *Store) releaseCheck(ctx context.Context) error {
	if s.check == nil || len(s.instances) > 0 {
		return nil
	}
	err := s.check.Close(ctx)
	s.check = nil
	return err
}

// Instantiate links m against table and instantiates it. Every declared
// import is resolved first; a single *errors.LinkError reports all missing
// and mistyped imports. A start function runs under the store's budget.
// On failure nothing created for the instance survives, including the
// store's safe-point module when no other instance holds it.
func (s *Store) Instantiate(ctx context.Context, m *Module, table *imports.Table) (*Instance, error) {
	if s.closed {
		return nil, errors.Closed("store")
	}
	if m.runtime != s.runtime {
		return nil, errors.InvalidInput(errors.PhaseInstance, "module belongs to another runtime")
	}

	plan, err := linker.Resolve(m.name, m.imports, table)
	if err != nil {
		return nil, err
	}
	check, err := s.checkModule(ctx)
	if err != nil {
		return nil, err
	}
	linked, err := linker.Link(ctx, plan, s.runtime.engine)
	if err != nil {
		return nil, multierr.Append(err, s.releaseCheck(ctx))
	}

	name := s.runtime.engine.NextName(m.name)
	resolve := func(ns string) api.Module {
		if ns == safepoint.Namespace {
			return check
		}
		return linked.Module(ns)
	}

	s.budget.Enter()
	mod, err := s.runtime.engine.Instantiate(ctx, m.compiled, name, resolve)
	if err != nil {
		err = engine.Classify("start", err)
	}
	s.budget.Exit(err)
	if err != nil {
		err = errors.Instantiation("instantiate "+name, err)
		err = multierr.Append(err, linked.Close(ctx))
		return nil, multierr.Append(err, s.releaseCheck(ctx))
	}

	inst := &Instance{
		store:   s,
		module:  m,
		mod:     mod,
		linked:  linked,
		exports: make(map[string]Export, len(m.exports)),
	}
	for _, e := range m.exports {
		inst.bind(e)
	}
	s.instances = append(s.instances, inst)

	Logger().Debug("instance created",
		zap.String("instance", name),
		zap.Int("imports", plan.Len()),
		zap.Int("link_modules", linked.Owned()),
		zap.String("plan", plan.Describe()))
	return inst, nil
}

// Composition is the result of Compose.
type Composition struct {
	Platform *Instance
	App      *Instance
	// Imports is the table app was linked against: a copy of the base table
	// with the platform's exported functions registered under "env".
	Imports *imports.Table
}

// Compose instantiates platform against base, then app against a copy of
// base in which every exported function of the platform is registered under
// ComposeNamespace with its export name, replacing native bindings of the
// same name. base is not modified. If app fails to instantiate the platform
// instance is closed.
func (s *Store) Compose(ctx context.Context, platform, app *Module, base *imports.Table) (*Composition, error) {
	p, err := s.Instantiate(ctx, platform, base)
	if err != nil {
		return nil, err
	}

	augmented := base.Clone()
	if err := p.RegisterExports(augmented, ComposeNamespace); err != nil {
		return nil, multierr.Append(err, p.Close(ctx))
	}

	a, err := s.Instantiate(ctx, app, augmented)
	if err != nil {
		return nil, multierr.Append(err, p.Close(ctx))
	}
	return &Composition{Platform: p, App: a, Imports: augmented}, nil
}

// Close closes every instance of the store, newest first, and then the
// store's safe-point module.
func (s *Store) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	for i := len(s.instances) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.instances[i].Close(ctx))
	}
	s.instances = nil
	if s.check != nil {
		err = multierr.Append(err, s.check.Close(ctx))
		s.check = nil
	}
	return err
}

// funcType returns the declared type of an exported function.
func funcType(e wasm.ExportDecl) wasm.FuncType {
	if e.Type.Func != nil {
		return *e.Type.Func
	}
	return wasm.FuncType{}
}
