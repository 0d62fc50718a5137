// Package wasmtest assembles small WebAssembly modules in-process for tests.
package wasmtest

import (
	"github.com/wippyai/wasm-bridge/wasm"
)

// Common value type lists.
var (
	None = []wasm.ValType(nil)
	I32  = []wasm.ValType{wasm.ValI32}
	I64  = []wasm.ValType{wasm.ValI64}
	F32  = []wasm.ValType{wasm.ValF32}
	F64  = []wasm.ValType{wasm.ValF64}
)

// Builder accumulates module sections. Imports must be declared before the
// first defined function so function indices stay stable.
type Builder struct {
	m       wasm.Module
	defined bool
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

func (b *Builder) importing() {
	if b.defined {
		panic("wasmtest: imports must be declared before defined functions")
	}
}

// ImportFunc declares a function import and returns its function index.
func (b *Builder) ImportFunc(ns, name string, params, results []wasm.ValType) uint32 {
	b.importing()
	idx := uint32(b.m.NumImportedFuncs())
	t := b.m.AddType(wasm.FuncType{Params: params, Results: results})
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: ns,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: t},
	})
	return idx
}

// ImportGlobal declares a global import and returns its global index.
func (b *Builder) ImportGlobal(ns, name string, vt wasm.ValType, mutable bool) uint32 {
	b.importing()
	idx := uint32(b.m.NumImportedGlobals())
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: ns,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &wasm.GlobalType{ValType: vt, Mutable: mutable}},
	})
	return idx
}

// ImportMemory declares a memory import. An optional max bounds it.
func (b *Builder) ImportMemory(ns, name string, minPages uint32, maxPages ...uint32) {
	b.importing()
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: ns,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindMemory, Memory: &wasm.MemoryType{Limits: limits(minPages, maxPages)}},
	})
}

// ImportTable declares a funcref table import.
func (b *Builder) ImportTable(ns, name string, minSize uint32) {
	b.importing()
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: ns,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindTable, Table: &wasm.TableType{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: minSize}}},
	})
}

// Memory defines a memory and returns its index.
func (b *Builder) Memory(minPages uint32, maxPages ...uint32) uint32 {
	idx := uint32(b.m.NumImportedMemories() + len(b.m.Memories))
	b.m.Memories = append(b.m.Memories, wasm.MemoryType{Limits: limits(minPages, maxPages)})
	return idx
}

// Table defines a funcref table and returns its index.
func (b *Builder) Table(minSize uint32) uint32 {
	idx := uint32(b.m.NumImportedTables() + len(b.m.Tables))
	b.m.Tables = append(b.m.Tables, wasm.TableType{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: minSize}})
	return idx
}

// Global defines a global initialised by init, a constant instruction
// without the trailing end, and returns its global index.
func (b *Builder) Global(vt wasm.ValType, mutable bool, init []byte) uint32 {
	idx := uint32(b.m.NumGlobals())
	b.m.Globals = append(b.m.Globals, wasm.Global{
		Type: wasm.GlobalType{ValType: vt, Mutable: mutable},
		Init: Expr(init),
	})
	return idx
}

// Func defines a function and returns its function index. The body parts
// are concatenated and terminated with end.
func (b *Builder) Func(params, results, locals []wasm.ValType, body ...[]byte) uint32 {
	b.defined = true
	idx := uint32(b.m.NumFuncs())
	b.m.Funcs = append(b.m.Funcs, b.m.AddType(wasm.FuncType{Params: params, Results: results}))

	fb := wasm.FuncBody{Code: Expr(Seq(body...))}
	for _, l := range locals {
		if n := len(fb.Locals); n > 0 && fb.Locals[n-1].ValType == l {
			fb.Locals[n-1].Count++
			continue
		}
		fb.Locals = append(fb.Locals, wasm.LocalEntry{Count: 1, ValType: l})
	}
	b.m.Code = append(b.m.Code, fb)
	return idx
}

// Elem adds an active element segment at a constant offset in table 0.
func (b *Builder) Elem(offset int32, funcs ...uint32) {
	b.m.Elements = append(b.m.Elements, wasm.Element{
		Flags:    0,
		Offset:   Expr(I32Const(offset)),
		FuncIdxs: funcs,
		Type:     wasm.ValFuncRef,
	})
}

// Data adds an active data segment at a constant offset in memory 0.
func (b *Builder) Data(offset int32, data []byte) {
	b.m.Data = append(b.m.Data, wasm.DataSegment{Offset: Expr(I32Const(offset)), Init: data})
}

// ExportFunc exports a function.
func (b *Builder) ExportFunc(name string, idx uint32) {
	b.export(name, wasm.KindFunc, idx)
}

// ExportGlobal exports a global.
func (b *Builder) ExportGlobal(name string, idx uint32) {
	b.export(name, wasm.KindGlobal, idx)
}

// ExportMemory exports a memory.
func (b *Builder) ExportMemory(name string, idx uint32) {
	b.export(name, wasm.KindMemory, idx)
}

// ExportTable exports a table.
func (b *Builder) ExportTable(name string, idx uint32) {
	b.export(name, wasm.KindTable, idx)
}

func (b *Builder) export(name string, kind byte, idx uint32) {
	b.m.Exports = append(b.m.Exports, wasm.Export{Name: name, Kind: kind, Idx: idx})
}

// Start sets the start function.
func (b *Builder) Start(idx uint32) {
	b.m.Start = &idx
}

// Custom appends a custom section.
func (b *Builder) Custom(name string, data []byte) {
	b.m.CustomSections = append(b.m.CustomSections, wasm.CustomSection{Name: name, Data: data})
}

// Module returns the assembled module. The Builder must not be used afterwards.
func (b *Builder) Module() *wasm.Module {
	return &b.m
}

// Bytes encodes the assembled module.
func (b *Builder) Bytes() []byte {
	return b.m.Encode()
}

func limits(minPages uint32, maxPages []uint32) wasm.Limits {
	l := wasm.Limits{Min: minPages}
	if len(maxPages) > 0 {
		l.Max, l.HasMax = maxPages[0], true
	}
	return l
}
