package wasm_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/wasm-bridge/internal/wasmtest"
	"github.com/wippyai/wasm-bridge/wasm"
)

func TestScanInstructions(t *testing.T) {
	code := wasmtest.Expr(wasmtest.Seq(
		wasmtest.Loop(wasmtest.Call(3), wasmtest.BrIf(0)),
		wasmtest.I32Const(-1),
		wasmtest.I32Store(16),
	))

	var ops []byte
	var depths []int
	var calls []uint32
	err := wasm.ScanInstructions(code, func(in wasm.Instr) error {
		ops = append(ops, in.Opcode)
		depths = append(depths, in.Depth)
		if in.HasFuncIdx() {
			calls = append(calls, in.FuncIdx)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ScanInstructions: %v", err)
	}

	wantOps := []byte{wasm.OpLoop, wasm.OpCall, wasm.OpBrIf, wasm.OpEnd, wasm.OpI32Const, wasm.OpI32Store, wasm.OpEnd}
	if diff := cmp.Diff(wantOps, ops); diff != "" {
		t.Errorf("opcodes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2, 2, 2, 1, 1, 1}, depths); diff != "" {
		t.Errorf("depths (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint32{3}, calls); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
}

func TestScanInstructions_Prefixed(t *testing.T) {
	v128 := append([]byte{wasm.OpPrefixSIMD, 12}, make([]byte, 16)...)
	code := wasmtest.Expr(wasmtest.Seq(
		wasmtest.Op(wasm.OpPrefixMisc, 0x00),         // i32.trunc_sat_f32_s
		wasmtest.Op(wasm.OpPrefixMisc, 10, 0, 0),     // memory.copy
		v128,                                         // v128.const
		wasmtest.Op(wasm.OpPrefixSIMD, 21, 3),        // i8x16.extract_lane_s 3
		wasmtest.Op(wasm.OpPrefixSIMD, 84, 0, 0, 1),  // v128.load8_lane
		wasmtest.Op(wasm.OpPrefixAtomic, 0x03, 0x00), // atomic.fence
		wasmtest.Op(wasm.OpPrefixAtomic, 0x10, 2, 0), // i32.atomic.load
	))

	var subs []uint32
	err := wasm.ScanInstructions(code, func(in wasm.Instr) error {
		if in.Opcode >= wasm.OpPrefixMisc {
			subs = append(subs, in.SubOp)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ScanInstructions: %v", err)
	}
	if diff := cmp.Diff([]uint32{0, 10, 12, 21, 84, 3, 0x10}, subs); diff != "" {
		t.Errorf("sub-opcodes (-want +got):\n%s", diff)
	}
}

func TestScanInstructions_Errors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want error
	}{
		{"missing end", []byte{wasm.OpNop}, wasm.ErrUnbalancedBlocks},
		{"trailing bytes", []byte{wasm.OpEnd, wasm.OpNop}, wasm.ErrUnbalancedBlocks},
		{"exception handling", []byte{0x08, 0x00, wasm.OpEnd}, wasm.ErrUnsupportedOpcode},
		{"gc prefix", []byte{0xFB, 0x00, wasm.OpEnd}, wasm.ErrUnsupportedOpcode},
		{"unknown misc", []byte{wasm.OpPrefixMisc, 0x20, wasm.OpEnd}, wasm.ErrUnsupportedOpcode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wasm.ScanInstructions(tt.code, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRemapFuncIndices(t *testing.T) {
	code := wasmtest.Expr(wasmtest.Seq(
		wasmtest.Call(0),
		wasmtest.Call(200),
		wasmtest.RefFunc(1),
		wasmtest.Drop(),
		wasmtest.LocalGet(0),
	))

	got, err := wasm.RemapFuncIndices(code, func(idx uint32) uint32 { return idx + 1 })
	if err != nil {
		t.Fatalf("RemapFuncIndices: %v", err)
	}
	want := wasmtest.Expr(wasmtest.Seq(
		wasmtest.Call(1),
		wasmtest.Call(201),
		wasmtest.RefFunc(2),
		wasmtest.Drop(),
		wasmtest.LocalGet(0),
	))
	if !bytes.Equal(got, want) {
		t.Errorf("got %x, want %x", got, want)
	}
}

func TestFuncTypeString(t *testing.T) {
	tests := []struct {
		ft   wasm.FuncType
		want string
	}{
		{wasm.FuncType{}, "func () -> ()"},
		{wasm.FuncType{Params: []wasm.ValType{wasm.ValF64}, Results: []wasm.ValType{wasm.ValF64}}, "func (f64) -> f64"},
		{wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI64}, Results: []wasm.ValType{wasm.ValI32, wasm.ValF32}}, "func (i32 i64) -> (i32 f32)"},
	}
	for _, tt := range tests {
		if got := tt.ft.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}

	a := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}}
	b := wasm.FuncType{Params: []wasm.ValType{wasm.ValI64}}
	if a.Equal(b) || !a.Equal(a) {
		t.Error("Equal mismatch")
	}
}
