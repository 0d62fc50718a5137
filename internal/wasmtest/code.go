package wasmtest

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/wasm-bridge/wasm"
)

// Seq concatenates instruction sequences.
func Seq(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Expr terminates an instruction sequence with end.
func Expr(code []byte) []byte {
	return append(append([]byte(nil), code...), wasm.OpEnd)
}

// Op emits raw opcode bytes.
func Op(b ...byte) []byte { return b }

func withU32(op byte, v uint32) []byte {
	return wasm.AppendU32([]byte{op}, v)
}

func I32Const(v int32) []byte { return wasm.AppendS64([]byte{wasm.OpI32Const}, int64(v)) }
func I64Const(v int64) []byte { return wasm.AppendS64([]byte{wasm.OpI64Const}, v) }

func F32Const(v float32) []byte {
	out := []byte{wasm.OpF32Const}
	return binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
}

func F64Const(v float64) []byte {
	out := []byte{wasm.OpF64Const}
	return binary.LittleEndian.AppendUint64(out, math.Float64bits(v))
}

func LocalGet(i uint32) []byte  { return withU32(wasm.OpLocalGet, i) }
func LocalSet(i uint32) []byte  { return withU32(wasm.OpLocalSet, i) }
func LocalTee(i uint32) []byte  { return withU32(wasm.OpLocalTee, i) }
func GlobalGet(i uint32) []byte { return withU32(wasm.OpGlobalGet, i) }
func GlobalSet(i uint32) []byte { return withU32(wasm.OpGlobalSet, i) }
func Call(f uint32) []byte      { return withU32(wasm.OpCall, f) }
func RefFunc(f uint32) []byte   { return withU32(wasm.OpRefFunc, f) }
func Br(depth uint32) []byte    { return withU32(wasm.OpBr, depth) }
func BrIf(depth uint32) []byte  { return withU32(wasm.OpBrIf, depth) }

// CallIndirect calls through table 0 with the given type index.
func CallIndirect(typeIdx uint32) []byte {
	return append(withU32(wasm.OpCallIndirect, typeIdx), 0x00)
}

func Drop() []byte        { return Op(wasm.OpDrop) }
func Return() []byte      { return Op(wasm.OpReturn) }
func Unreachable() []byte { return Op(wasm.OpUnreachable) }
func Nop() []byte         { return Op(wasm.OpNop) }
func I32Add() []byte      { return Op(wasm.OpI32Add) }
func I32Sub() []byte      { return Op(wasm.OpI32Sub) }
func I32Mul() []byte      { return Op(wasm.OpI32Mul) }
func I32LtS() []byte      { return Op(wasm.OpI32LtS) }
func I32LtU() []byte      { return Op(wasm.OpI32LtU) }
func I32Ne() []byte       { return Op(wasm.OpI32Ne) }
func I32Eqz() []byte      { return Op(wasm.OpI32Eqz) }
func I64Add() []byte      { return Op(wasm.OpI64Add) }
func F32Add() []byte      { return Op(wasm.OpF32Add) }
func F64Add() []byte      { return Op(wasm.OpF64Add) }
func F64Mul() []byte      { return Op(wasm.OpF64Mul) }

func F32ConvertI32S() []byte { return Op(wasm.OpF32ConvertI32S) }

// I32Load loads from memory 0 at a static offset, 4-byte aligned.
func I32Load(offset uint32) []byte {
	return wasm.AppendU32([]byte{wasm.OpI32Load, 0x02}, offset)
}

// I32Store stores to memory 0 at a static offset, 4-byte aligned.
func I32Store(offset uint32) []byte {
	return wasm.AppendU32([]byte{wasm.OpI32Store, 0x02}, offset)
}

func MemorySize() []byte { return Op(wasm.OpMemorySize, 0x00) }
func MemoryGrow() []byte { return Op(wasm.OpMemoryGrow, 0x00) }

// Block wraps body in a void block.
func Block(body ...[]byte) []byte {
	return Seq([]byte{wasm.OpBlock, 0x40}, Seq(body...), []byte{wasm.OpEnd})
}

// Loop wraps body in a void loop.
func Loop(body ...[]byte) []byte {
	return Seq([]byte{wasm.OpLoop, 0x40}, Seq(body...), []byte{wasm.OpEnd})
}

// If wraps body in a void if without else.
func If(body ...[]byte) []byte {
	return Seq([]byte{wasm.OpIf, 0x40}, Seq(body...), []byte{wasm.OpEnd})
}

// CountedLoop runs body n times using local counter as the induction
// variable. The local must be an i32 initialised to zero.
func CountedLoop(counter uint32, n int32, body ...[]byte) []byte {
	return Block(Loop(
		LocalGet(counter), I32Const(n), Op(wasm.OpI32GeS), BrIf(1),
		Seq(body...),
		LocalGet(counter), I32Const(1), I32Add(), LocalSet(counter),
		Br(0),
	))
}
