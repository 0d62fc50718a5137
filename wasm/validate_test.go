package wasm_test

import (
	"strings"
	"testing"

	"github.com/wippyai/wasm-bridge/wasm"
)

func TestValidate_Valid(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
			{Params: nil, Results: nil},
		},
		Funcs:    []uint32{0, 1},
		Code:     []wasm.FuncBody{{Code: []byte{wasm.OpLocalGet, 0x00, wasm.OpEnd}}, {Code: []byte{wasm.OpEnd}}},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Exports: []wasm.Export{
			{Name: "add", Kind: wasm.KindFunc, Idx: 0},
			{Name: "memory", Kind: wasm.KindMemory, Idx: 0},
		},
	}

	if err := m.Validate(); err != nil {
		t.Errorf("valid module failed validation: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	nop := []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}}
	one := uint32(1)

	tests := []struct {
		name     string
		module   *wasm.Module
		contains string
	}{
		{
			name: "invalid type index",
			module: &wasm.Module{
				Types: []wasm.FuncType{{}},
				Funcs: []uint32{5},
				Code:  nop,
			},
			contains: "function[0]: invalid type index 5",
		},
		{
			name: "invalid function export",
			module: &wasm.Module{
				Types:   []wasm.FuncType{{}},
				Funcs:   []uint32{0},
				Code:    nop,
				Exports: []wasm.Export{{Name: "foo", Kind: wasm.KindFunc, Idx: 10}},
			},
			contains: "invalid function index 10",
		},
		{
			name: "duplicate export name",
			module: &wasm.Module{
				Types:    []wasm.FuncType{{}},
				Funcs:    []uint32{0},
				Code:     nop,
				Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
				Exports: []wasm.Export{
					{Name: "foo", Kind: wasm.KindFunc, Idx: 0},
					{Name: "foo", Kind: wasm.KindMemory, Idx: 0},
				},
			},
			contains: "duplicate export name",
		},
		{
			name: "function without body",
			module: &wasm.Module{
				Types: []wasm.FuncType{{}},
				Funcs: []uint32{0},
			},
			contains: "does not match code count",
		},
		{
			name: "start with params",
			module: &wasm.Module{
				Types: []wasm.FuncType{{Params: []wasm.ValType{wasm.ValI32}}},
				Funcs: []uint32{0},
				Code:  nop,
				Start: &[]uint32{0}[0],
			},
			contains: "start function must have type",
		},
		{
			name: "memory max below min",
			module: &wasm.Module{
				Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 4, Max: 2, HasMax: true}}},
			},
			contains: "max 2 below min 4",
		},
		{
			name: "memory too large",
			module: &wasm.Module{
				Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 70000}}},
			},
			contains: "exceeds",
		},
		{
			name: "shared without max",
			module: &wasm.Module{
				Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1, Shared: true}}},
			},
			contains: "requires a max",
		},
		{
			name: "call out of range",
			module: &wasm.Module{
				Types: []wasm.FuncType{{}},
				Funcs: []uint32{0},
				Code:  []wasm.FuncBody{{Code: []byte{wasm.OpCall, 0x07, wasm.OpEnd}}},
			},
			contains: "code[0]: at offset 0: invalid function index 7",
		},
		{
			name: "unbalanced body",
			module: &wasm.Module{
				Types: []wasm.FuncType{{}},
				Funcs: []uint32{0},
				Code:  []wasm.FuncBody{{Code: []byte{wasm.OpBlock, 0x40, wasm.OpEnd}}},
			},
			contains: "missing end",
		},
		{
			name: "data count mismatch",
			module: &wasm.Module{
				DataCount: &one,
			},
			contains: "data count 1 does not match 0",
		},
		{
			name: "global reads later global",
			module: &wasm.Module{
				Globals: []wasm.Global{
					{Type: wasm.GlobalType{ValType: wasm.ValI32}, Init: []byte{wasm.OpGlobalGet, 0x00, wasm.OpEnd}},
				},
			},
			contains: "invalid global index 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.module.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not contain %q", err, tt.contains)
			}
		})
	}
}
