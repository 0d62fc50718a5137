// Package safepoint instruments guest modules with cooperative preemption checks.
//
// Inject appends a function import "$epoch"."check" of type func () -> ()
// and inserts a call to it at every function entry and directly after every
// loop header, so the check runs on loop entry and on every back-edge. The
// host side of the check decides whether the budget is exhausted and unwinds
// the call when it is.
//
// Checks sit between whole instructions, so a guest can never observe a torn
// multi-step memory or global update caused by an interruption.
package safepoint

import (
	"fmt"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/wasm"
)

const (
	// Namespace is the reserved import namespace for injected checks.
	Namespace = "$epoch"
	// CheckName is the name of the injected check import.
	CheckName = "check"
)

// Result describes an instrumented module.
type Result struct {
	Module     *wasm.Module
	CheckIndex uint32 // function index of the check import
	Sites      int    // number of calls inserted
}

// Binary encodes the instrumented module.
func (r *Result) Binary() []byte {
	return r.Module.Encode()
}

// Inject returns an instrumented copy of m. The input module is not modified.
// Modules that import from the reserved namespace are rejected.
func Inject(m *wasm.Module) (*Result, error) {
	for i, imp := range m.Imports {
		if imp.Module == Namespace {
			return nil, errors.Validation(
				[]string{fmt.Sprintf("import[%d]", i)},
				fmt.Sprintf("%s.%s: namespace %q is reserved", imp.Module, imp.Name, Namespace),
				nil,
			)
		}
	}

	out := *m
	check := uint32(m.NumImportedFuncs())
	remap := func(idx uint32) uint32 {
		if idx >= check {
			return idx + 1
		}
		return idx
	}

	out.Types = append([]wasm.FuncType(nil), m.Types...)
	typeIdx := out.AddType(wasm.FuncType{})

	out.Imports = append(append([]wasm.Import(nil), m.Imports...), wasm.Import{
		Module: Namespace,
		Name:   CheckName,
		Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: typeIdx},
	})

	out.Exports = make([]wasm.Export, len(m.Exports))
	for i, exp := range m.Exports {
		if exp.Kind == wasm.KindFunc {
			exp.Idx = remap(exp.Idx)
		}
		out.Exports[i] = exp
	}

	if m.Start != nil {
		start := remap(*m.Start)
		out.Start = &start
	}

	var err error
	out.Globals = make([]wasm.Global, len(m.Globals))
	for i, g := range m.Globals {
		if g.Init, err = wasm.RemapFuncIndices(g.Init, remap); err != nil {
			return nil, errors.Validation([]string{fmt.Sprintf("global[%d]", i)}, err.Error(), err)
		}
		out.Globals[i] = g
	}

	out.Elements = make([]wasm.Element, len(m.Elements))
	for i, elem := range m.Elements {
		if elem.FuncIdxs != nil {
			idxs := make([]uint32, len(elem.FuncIdxs))
			for j, idx := range elem.FuncIdxs {
				idxs[j] = remap(idx)
			}
			elem.FuncIdxs = idxs
		}
		if elem.Exprs != nil {
			exprs := make([][]byte, len(elem.Exprs))
			for j, expr := range elem.Exprs {
				if exprs[j], err = wasm.RemapFuncIndices(expr, remap); err != nil {
					return nil, errors.Validation([]string{fmt.Sprintf("element[%d]", i)}, err.Error(), err)
				}
			}
			elem.Exprs = exprs
		}
		out.Elements[i] = elem
	}

	sites := 0
	out.Code = make([]wasm.FuncBody, len(m.Code))
	for i, body := range m.Code {
		code, n, err := instrumentBody(body.Code, check, remap)
		if err != nil {
			return nil, errors.Validation([]string{fmt.Sprintf("code[%d]", i)}, err.Error(), err)
		}
		out.Code[i] = wasm.FuncBody{Locals: body.Locals, Code: code}
		sites += n
	}

	// Function indices in the name section are stale after renumbering.
	out.RemoveCustomSections(wasm.CustomSectionName)

	return &Result{Module: &out, CheckIndex: check, Sites: sites}, nil
}

func instrumentBody(code []byte, check uint32, remap func(uint32) uint32) ([]byte, int, error) {
	out := make([]byte, 0, len(code)+16)
	out = wasm.AppendCall(out, check)
	sites := 1

	err := wasm.ScanInstructions(code, func(in wasm.Instr) error {
		switch {
		case in.HasFuncIdx():
			out = wasm.AppendU32(append(out, in.Opcode), remap(in.FuncIdx))
		case in.Opcode == wasm.OpLoop:
			out = append(out, code[in.Start:in.End]...)
			out = wasm.AppendCall(out, check)
			sites++
		default:
			out = append(out, code[in.Start:in.End]...)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, sites, nil
}
