package imports

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/wasm"
)

// Binding is a value that can satisfy a declared import.
// Implementations are HostFunc, GuestFunc, Global and Memory.
type Binding interface {
	// Extern returns the type the binding provides.
	Extern() wasm.Extern
	binding()
}

// Callback is the stack-ABI form of a host function. Parameters are read from
// stack and results are written back to it starting at index 0. A non-nil
// error aborts the calling guest invocation.
type Callback func(ctx context.Context, mod api.Module, stack []uint64) error

// HostFunc is a function implemented in Go.
type HostFunc struct {
	Type     wasm.FuncType
	Callback Callback
}

func (f *HostFunc) Extern() wasm.Extern { return wasm.FuncExtern(f.Type) }
func (*HostFunc) binding()              {}

// GuestFunc is a function exported by an instantiated module, used to satisfy
// imports of another module.
type GuestFunc struct {
	Module api.Module
	Export string
	Type   wasm.FuncType
}

func (f *GuestFunc) Extern() wasm.Extern { return wasm.FuncExtern(f.Type) }
func (*GuestFunc) binding()              {}

func (*Global) binding() {}
func (*Memory) binding() {}

// Source locates a materialised memory or global inside the engine: the
// module exporting it and the export name.
type Source struct {
	Module api.Module
	Name   string
}

// ValueTypes converts bridge value types to wazero value types.
func ValueTypes(vts []wasm.ValType) []api.ValueType {
	if len(vts) == 0 {
		return nil
	}
	out := make([]api.ValueType, len(vts))
	for i, vt := range vts {
		out[i] = api.ValueType(vt)
	}
	return out
}

// FromValueTypes converts wazero value types to bridge value types.
func FromValueTypes(vts []api.ValueType) []wasm.ValType {
	if len(vts) == 0 {
		return nil
	}
	out := make([]wasm.ValType, len(vts))
	for i, vt := range vts {
		out[i] = wasm.ValType(vt)
	}
	return out
}
