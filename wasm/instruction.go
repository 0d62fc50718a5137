package wasm

import (
	"errors"
	"fmt"

	"github.com/wippyai/wasm-bridge/wasm/internal/binary"
)

// Scanner errors.
var (
	ErrUnsupportedOpcode = errors.New("unsupported opcode")
	ErrUnbalancedBlocks  = errors.New("unbalanced block structure")
)

// Instr locates one instruction inside a code body or constant expression.
// It carries only what rewriting passes need; other immediates are skipped.
type Instr struct {
	Start   int    // offset of the opcode byte
	End     int    // offset just past the immediates
	SubOp   uint32 // sub-opcode for 0xFC/0xFD/0xFE prefixed instructions
	FuncIdx uint32 // valid when HasFuncIdx
	Index   uint32 // local, global or table index for variable access opcodes
	Depth   int    // control nesting depth before this instruction, 1 for the function body
	Opcode  byte
}

// HasFuncIdx reports whether the instruction's immediate is a function index.
func (i Instr) HasFuncIdx() bool {
	switch i.Opcode {
	case OpCall, OpReturnCall, OpRefFunc:
		return true
	}
	return false
}

// ScanInstructions walks code and calls visit for every instruction in order.
// code must end with the end opcode closing the outermost block, with no
// trailing bytes. Opcodes outside MVP, sign-extension, saturating conversion,
// bulk memory, reference types, SIMD, threads and tail calls are rejected.
func ScanInstructions(code []byte, visit func(Instr) error) error {
	r := binary.NewReader(code)
	depth := 1

	for depth > 0 {
		if r.Len() == 0 {
			return fmt.Errorf("%w: missing end", ErrUnbalancedBlocks)
		}
		in := Instr{Start: r.Position(), Depth: depth}
		op, _ := r.ReadByte()
		in.Opcode = op

		if err := skipImmediates(r, &in); err != nil {
			return fmt.Errorf("at offset %d: %w", in.Start, err)
		}
		in.End = r.Position()

		switch op {
		case OpBlock, OpLoop, OpIf:
			depth++
		case OpEnd:
			depth--
		}

		if visit != nil {
			if err := visit(in); err != nil {
				return err
			}
		}
	}

	if r.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes after final end", ErrUnbalancedBlocks, r.Len())
	}
	return nil
}

func skipImmediates(r *binary.Reader, in *Instr) error {
	op := in.Opcode
	switch {
	case op == OpUnreachable, op == OpNop, op == OpElse, op == OpEnd,
		op == OpReturn, op == OpDrop, op == OpSelect, op == OpRefIsNull:
		return nil

	case op == OpBlock, op == OpLoop, op == OpIf:
		_, err := r.ReadS64()
		return err

	case op == OpBr, op == OpBrIf:
		_, err := r.ReadU32()
		return err

	case op >= OpLocalGet && op <= OpTableSet:
		idx, err := r.ReadU32()
		in.Index = idx
		return err

	case op == OpBrTable:
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i <= n; i++ {
			if _, err := r.ReadU32(); err != nil {
				return err
			}
		}
		return nil

	case op == OpCall, op == OpReturnCall, op == OpRefFunc:
		idx, err := r.ReadU32()
		in.FuncIdx = idx
		return err

	case op == OpCallIndirect, op == OpReturnCallIndirect:
		return readU32s(r, 2)

	case op == OpSelectType:
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		return r.Skip(int(n))

	case op >= OpI32Load && op <= OpI64Store32:
		return skipMemArg(r)

	case op == OpMemorySize, op == OpMemoryGrow:
		_, err := r.ReadU32()
		return err

	case op == OpI32Const:
		_, err := r.ReadS32()
		return err
	case op == OpI64Const:
		_, err := r.ReadS64()
		return err
	case op == OpF32Const:
		return r.Skip(4)
	case op == OpF64Const:
		return r.Skip(8)

	case op >= OpI32Eqz && op <= OpI64Extend32S:
		return nil

	case op == OpRefNull:
		_, err := r.ReadS64()
		return err

	case op == OpPrefixMisc:
		return skipMisc(r, in)
	case op == OpPrefixSIMD:
		return skipSIMD(r, in)
	case op == OpPrefixAtomic:
		return skipAtomic(r, in)
	}
	return fmt.Errorf("%w 0x%02x", ErrUnsupportedOpcode, op)
}

func skipMisc(r *binary.Reader, in *Instr) error {
	sub, err := r.ReadU32()
	if err != nil {
		return err
	}
	in.SubOp = sub
	switch {
	case sub <= 7: // trunc_sat
		return nil
	case sub == 8: // memory.init dataidx memidx
		return readU32s(r, 2)
	case sub == 9: // data.drop
		return readU32s(r, 1)
	case sub == 10: // memory.copy
		return readU32s(r, 2)
	case sub == 11: // memory.fill
		return readU32s(r, 1)
	case sub == 12: // table.init elemidx tableidx
		return readU32s(r, 2)
	case sub == 13: // elem.drop
		return readU32s(r, 1)
	case sub == 14: // table.copy
		return readU32s(r, 2)
	case sub >= 15 && sub <= 17: // table.grow/size/fill
		return readU32s(r, 1)
	}
	return fmt.Errorf("%w 0xfc %d", ErrUnsupportedOpcode, sub)
}

func skipSIMD(r *binary.Reader, in *Instr) error {
	sub, err := r.ReadU32()
	if err != nil {
		return err
	}
	in.SubOp = sub
	switch {
	case sub <= 11: // v128.load*, v128.store
		return skipMemArg(r)
	case sub == 12, sub == 13: // v128.const, i8x16.shuffle
		return r.Skip(16)
	case sub >= 21 && sub <= 34: // extract_lane / replace_lane
		return r.Skip(1)
	case sub >= 84 && sub <= 91: // load/store lane
		if err := skipMemArg(r); err != nil {
			return err
		}
		return r.Skip(1)
	case sub == 92, sub == 93: // load32_zero, load64_zero
		return skipMemArg(r)
	case sub <= 0xFF:
		return nil
	}
	return fmt.Errorf("%w 0xfd %d", ErrUnsupportedOpcode, sub)
}

func skipAtomic(r *binary.Reader, in *Instr) error {
	sub, err := r.ReadU32()
	if err != nil {
		return err
	}
	in.SubOp = sub
	switch {
	case sub == 0x03: // atomic.fence
		return r.Skip(1)
	case sub <= 0x4E:
		return skipMemArg(r)
	}
	return fmt.Errorf("%w 0xfe %d", ErrUnsupportedOpcode, sub)
}

func skipMemArg(r *binary.Reader) error {
	align, err := r.ReadU32()
	if err != nil {
		return err
	}
	if align&0x40 != 0 { // multi-memory index follows
		if _, err := r.ReadU32(); err != nil {
			return err
		}
	}
	_, err = r.ReadU64()
	return err
}

func readU32s(r *binary.Reader, n int) error {
	for i := 0; i < n; i++ {
		if _, err := r.ReadU32(); err != nil {
			return err
		}
	}
	return nil
}

// RemapFuncIndices returns a copy of code with every call, return_call and
// ref.func immediate replaced by remap(idx). Works on code bodies and
// constant expressions alike.
func RemapFuncIndices(code []byte, remap func(uint32) uint32) ([]byte, error) {
	out := make([]byte, 0, len(code)+8)
	err := ScanInstructions(code, func(in Instr) error {
		if !in.HasFuncIdx() {
			out = append(out, code[in.Start:in.End]...)
			return nil
		}
		out = append(out, in.Opcode)
		out = binary.AppendU64(out, uint64(remap(in.FuncIdx)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AppendCall appends a call instruction to code.
func AppendCall(code []byte, funcIdx uint32) []byte {
	return binary.AppendU64(append(code, OpCall), uint64(funcIdx))
}

// AppendU32 appends an unsigned LEB128 value.
func AppendU32(dst []byte, v uint32) []byte {
	return binary.AppendU64(dst, uint64(v))
}

// AppendS64 appends a signed LEB128 value.
func AppendS64(dst []byte, v int64) []byte {
	return binary.AppendS64(dst, v)
}
