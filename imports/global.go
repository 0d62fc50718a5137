package imports

import (
	"math"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/wasm"
)

// Global is a handle to a global variable shared through an import table.
// Values are raw bits in the stack encoding: i32 zero-extended, floats as
// their IEEE 754 bits.
//
// Like Memory, a host global is materialised once per engine. Before that,
// Get and Set operate on the initial value.
type Global struct {
	mu      sync.Mutex
	typ     wasm.GlobalType
	init    uint64
	sources map[any]Source
	fixed   *Source
	g       api.Global
	owner   any
}

// NewGlobal returns an unmaterialised global.
func NewGlobal(t wasm.GlobalType, initial uint64) (*Global, error) {
	switch t.ValType {
	case wasm.ValI32, wasm.ValI64, wasm.ValF32, wasm.ValF64:
	default:
		return nil, errors.Unsupported(errors.PhaseHost, "global of type "+t.ValType.String())
	}
	if t.ValType == wasm.ValI32 || t.ValType == wasm.ValF32 {
		initial = uint64(uint32(initial))
	}
	return &Global{typ: t, init: initial, sources: make(map[any]Source)}, nil
}

// ExportedGlobal wraps a global exported by mod under name.
func ExportedGlobal(mod api.Module, name string) *Global {
	g := mod.ExportedGlobal(name)
	if g == nil {
		return nil
	}
	_, mutable := g.(api.MutableGlobal)
	return &Global{
		typ:   wasm.GlobalType{ValType: wasm.ValType(g.Type()), Mutable: mutable},
		fixed: &Source{Module: mod, Name: name},
		g:     g,
	}
}

func (g *Global) Extern() wasm.Extern {
	return wasm.GlobalExtern(g.typ.ValType, g.typ.Mutable)
}

// Type returns the global's value type and mutability.
func (g *Global) Type() wasm.GlobalType {
	return g.typ
}

// Initial returns the value a new backing global starts with.
func (g *Global) Initial() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.init
}

// Bind returns the source of the global for owner, calling create the first
// time owner asks.
func (g *Global) Bind(owner any, create func() (Source, error)) (Source, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fixed != nil {
		return *g.fixed, nil
	}
	if src, ok := g.sources[owner]; ok {
		return src, nil
	}
	src, err := create()
	if err != nil {
		return Source{}, err
	}
	live := src.Module.ExportedGlobal(src.Name)
	if live == nil {
		return Source{}, errors.NotFound(errors.PhaseInstance, "global export", src.Name)
	}
	g.sources[owner] = src
	g.g, g.owner = live, owner
	return src, nil
}

// Release forgets the backing created for owner.
func (g *Global) Release(owner any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fixed != nil {
		return
	}
	delete(g.sources, owner)
	if g.owner == owner {
		g.g, g.owner = nil, nil
	}
}

// Get returns the current value.
func (g *Global) Get() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.g != nil {
		return g.g.Get()
	}
	return g.init
}

// Set stores v. Constant globals reject the write.
func (g *Global) Set(v uint64) error {
	if !g.typ.Mutable {
		return errors.New(errors.PhaseHost, errors.KindImmutable).
			WasmType(g.typ.String()).
			Detail("global is immutable").Build()
	}
	if g.typ.ValType == wasm.ValI32 || g.typ.ValType == wasm.ValF32 {
		v = uint64(uint32(v))
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.g != nil {
		g.g.(api.MutableGlobal).Set(v)
		return nil
	}
	g.init = v
	return nil
}

// GetF64 returns the value of an f64 global.
func (g *Global) GetF64() float64 {
	return math.Float64frombits(g.Get())
}

// GetI32 returns the value of an i32 global.
func (g *Global) GetI32() int32 {
	return int32(uint32(g.Get()))
}
