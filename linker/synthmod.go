package linker

import (
	"encoding/binary"

	"github.com/wippyai/wasm-bridge/wasm"
)

// SynthModuleBuilder builds synthetic modules that contain no code: facades
// that import items from their providers and re-export them under new
// names, and carriers that define one memory or global for sharing.
type SynthModuleBuilder struct {
	mod     wasm.Module
	funcs   []synthExport
	globals []synthExport
	mems    []synthExport
	names   map[string]struct{}
}

type synthExport struct {
	name     string
	kind     byte
	imported bool
}

// NewSynthModuleBuilder creates an empty builder.
func NewSynthModuleBuilder() *SynthModuleBuilder {
	return &SynthModuleBuilder{names: make(map[string]struct{})}
}

// claim reserves an export name. Later items with a taken name are skipped,
// which happens when a module declares the same import twice.
func (b *SynthModuleBuilder) claim(name string) bool {
	if _, ok := b.names[name]; ok {
		return false
	}
	b.names[name] = struct{}{}
	return true
}

// AddFuncImport imports module.name with type ft and exports it as export.
func (b *SynthModuleBuilder) AddFuncImport(module, name, export string, ft wasm.FuncType) {
	if !b.claim(export) {
		return
	}
	b.mod.Imports = append(b.mod.Imports, wasm.Import{
		Module: module,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: b.mod.AddType(ft)},
	})
	b.funcs = append(b.funcs, synthExport{name: export, kind: wasm.KindFunc, imported: true})
}

// AddGlobalImport imports module.name as a global and exports it as export.
func (b *SynthModuleBuilder) AddGlobalImport(module, name, export string, gt wasm.GlobalType) {
	if !b.claim(export) {
		return
	}
	b.mod.Imports = append(b.mod.Imports, wasm.Import{
		Module: module,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &gt},
	})
	b.globals = append(b.globals, synthExport{name: export, kind: wasm.KindGlobal, imported: true})
}

// AddMemoryImport imports module.name as a memory and exports it as export.
func (b *SynthModuleBuilder) AddMemoryImport(module, name, export string, limits wasm.Limits) {
	if !b.claim(export) {
		return
	}
	b.mod.Imports = append(b.mod.Imports, wasm.Import{
		Module: module,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindMemory, Memory: &wasm.MemoryType{Limits: limits}},
	})
	b.mems = append(b.mems, synthExport{name: export, kind: wasm.KindMemory, imported: true})
}

// AddLocalGlobal defines a global holding initial and exports it.
func (b *SynthModuleBuilder) AddLocalGlobal(export string, gt wasm.GlobalType, initial uint64) {
	if !b.claim(export) {
		return
	}
	b.mod.Globals = append(b.mod.Globals, wasm.Global{Type: gt, Init: constExpr(gt.ValType, initial)})
	b.globals = append(b.globals, synthExport{name: export, kind: wasm.KindGlobal})
}

// AddLocalMemory defines a memory with the given limits and exports it.
func (b *SynthModuleBuilder) AddLocalMemory(export string, limits wasm.Limits) {
	if !b.claim(export) {
		return
	}
	b.mod.Memories = append(b.mod.Memories, wasm.MemoryType{Limits: limits})
	b.mems = append(b.mems, synthExport{name: export, kind: wasm.KindMemory})
}

// Empty reports whether nothing has been added.
func (b *SynthModuleBuilder) Empty() bool {
	return len(b.names) == 0
}

// Build encodes the module. Imported items occupy the front of each index
// space and local items follow them.
func (b *SynthModuleBuilder) Build() []byte {
	if b.Empty() {
		return nil
	}
	m := b.mod
	m.Exports = nil
	for _, list := range [][]synthExport{b.funcs, b.globals, b.mems} {
		imported := uint32(0)
		for _, e := range list {
			if e.imported {
				imported++
			}
		}
		var nextImport, nextLocal uint32
		for _, e := range list {
			idx := imported + nextLocal
			if e.imported {
				idx = nextImport
				nextImport++
			} else {
				nextLocal++
			}
			m.Exports = append(m.Exports, wasm.Export{Name: e.name, Kind: e.kind, Idx: idx})
		}
	}
	return m.Encode()
}

func constExpr(vt wasm.ValType, v uint64) []byte {
	var out []byte
	switch vt {
	case wasm.ValI32:
		out = wasm.AppendS64([]byte{wasm.OpI32Const}, int64(int32(uint32(v))))
	case wasm.ValI64:
		out = wasm.AppendS64([]byte{wasm.OpI64Const}, int64(v))
	case wasm.ValF32:
		out = binary.LittleEndian.AppendUint32([]byte{wasm.OpF32Const}, uint32(v))
	case wasm.ValF64:
		out = binary.LittleEndian.AppendUint64([]byte{wasm.OpF64Const}, v)
	default:
		out = []byte{wasm.OpRefNull, byte(vt)}
	}
	return append(out, wasm.OpEnd)
}
