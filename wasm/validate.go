package wasm

import (
	"fmt"
)

// Validate checks the module for structural validity: index spaces, start
// signature, limits, export uniqueness and supported opcodes. Type checking
// of function bodies is left to the compiler.
func (m *Module) Validate() error {
	checks := []func() error{
		m.validateTypeIndices,
		m.validateCodeCount,
		m.validateImports,
		m.validateMemoryLimits,
		m.validateExports,
		m.validateStart,
		m.validateGlobals,
		m.validateElements,
		m.validateData,
		m.validateCode,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) validateTypeIndices() error {
	numTypes := uint32(len(m.Types))
	for i, typeIdx := range m.Funcs {
		if typeIdx >= numTypes {
			return invalid(fmt.Sprintf("function[%d]", i), nil, "invalid type index %d (have %d types)", typeIdx, numTypes)
		}
	}
	for i, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc && imp.Desc.TypeIdx >= numTypes {
			return invalid(fmt.Sprintf("import[%d]", i), nil, "%s.%s: invalid type index %d", imp.Module, imp.Name, imp.Desc.TypeIdx)
		}
	}
	return nil
}

func (m *Module) validateCodeCount() error {
	if len(m.Funcs) != len(m.Code) {
		return invalid("code", nil, "function count %d does not match code count %d", len(m.Funcs), len(m.Code))
	}
	return nil
}

func (m *Module) validateImports() error {
	for i, imp := range m.Imports {
		switch imp.Desc.Kind {
		case KindTable:
			if imp.Desc.Table == nil {
				return invalid(fmt.Sprintf("import[%d]", i), nil, "%s.%s: missing table type", imp.Module, imp.Name)
			}
		case KindMemory:
			if imp.Desc.Memory == nil {
				return invalid(fmt.Sprintf("import[%d]", i), nil, "%s.%s: missing memory type", imp.Module, imp.Name)
			}
		case KindGlobal:
			if imp.Desc.Global == nil {
				return invalid(fmt.Sprintf("import[%d]", i), nil, "%s.%s: missing global type", imp.Module, imp.Name)
			}
		}
	}
	return nil
}

func (m *Module) validateMemoryLimits() error {
	for i, imp := range m.Imports {
		if imp.Desc.Kind != KindMemory {
			continue
		}
		if err := validateMemoryType(imp.Desc.Memory); err != nil {
			return invalid(fmt.Sprintf("import[%d]", i), nil, "%s.%s: %v", imp.Module, imp.Name, err)
		}
	}
	for i := range m.Memories {
		if err := validateMemoryType(&m.Memories[i]); err != nil {
			return invalid(fmt.Sprintf("memory[%d]", i), nil, "%v", err)
		}
	}
	for i, t := range m.Tables {
		if t.Limits.HasMax && t.Limits.Max < t.Limits.Min {
			return invalid(fmt.Sprintf("table[%d]", i), nil, "max %d below min %d", t.Limits.Max, t.Limits.Min)
		}
	}
	return nil
}

func validateMemoryType(mem *MemoryType) error {
	l := mem.Limits
	if l.Min > MaxPages {
		return fmt.Errorf("min %d pages exceeds %d", l.Min, MaxPages)
	}
	if l.HasMax {
		if l.Max > MaxPages {
			return fmt.Errorf("max %d pages exceeds %d", l.Max, MaxPages)
		}
		if l.Max < l.Min {
			return fmt.Errorf("max %d below min %d", l.Max, l.Min)
		}
	}
	if l.Shared && !l.HasMax {
		return fmt.Errorf("shared memory requires a max")
	}
	return nil
}

func (m *Module) validateExports() error {
	numFuncs := uint32(m.NumFuncs())
	numTables := uint32(m.NumImportedTables() + len(m.Tables))
	numMems := uint32(m.NumImportedMemories() + len(m.Memories))
	numGlobals := uint32(m.NumGlobals())

	seen := make(map[string]struct{}, len(m.Exports))
	for i, exp := range m.Exports {
		path := fmt.Sprintf("export[%d]", i)
		if _, dup := seen[exp.Name]; dup {
			return invalid(path, nil, "duplicate export name %q", exp.Name)
		}
		seen[exp.Name] = struct{}{}

		var limit uint32
		var what string
		switch exp.Kind {
		case KindFunc:
			limit, what = numFuncs, "function"
		case KindTable:
			limit, what = numTables, "table"
		case KindMemory:
			limit, what = numMems, "memory"
		case KindGlobal:
			limit, what = numGlobals, "global"
		default:
			return invalid(path, nil, "%q: unsupported export kind 0x%02x", exp.Name, exp.Kind)
		}
		if exp.Idx >= limit {
			return invalid(path, nil, "%q references invalid %s index %d", exp.Name, what, exp.Idx)
		}
	}
	return nil
}

func (m *Module) validateStart() error {
	if m.Start == nil {
		return nil
	}
	ft := m.GetFuncType(*m.Start)
	if ft == nil {
		return invalid("start", nil, "invalid function index %d", *m.Start)
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return invalid("start", nil, "start function must have type func () -> (), has %s", ft)
	}
	return nil
}

func (m *Module) validateGlobals() error {
	imported := uint32(m.NumImportedGlobals())
	for i, g := range m.Globals {
		path := fmt.Sprintf("global[%d]", i)
		if err := m.validateConstExpr(g.Init, imported+uint32(i)); err != nil {
			return invalid(path, err, "%v", err)
		}
	}
	return nil
}

func (m *Module) validateElements() error {
	numFuncs := uint32(m.NumFuncs())
	numTables := uint32(m.NumImportedTables() + len(m.Tables))
	numGlobals := uint32(m.NumGlobals())
	for i := range m.Elements {
		elem := &m.Elements[i]
		path := fmt.Sprintf("element[%d]", i)
		if elem.Active() {
			if elem.TableIdx >= numTables {
				return invalid(path, nil, "invalid table index %d", elem.TableIdx)
			}
			if err := m.validateConstExpr(elem.Offset, numGlobals); err != nil {
				return invalid(path, err, "offset: %v", err)
			}
		}
		for j, idx := range elem.FuncIdxs {
			if idx >= numFuncs {
				return invalid(path, nil, "entry %d references invalid function index %d", j, idx)
			}
		}
		for j, expr := range elem.Exprs {
			if err := m.validateConstExpr(expr, numGlobals); err != nil {
				return invalid(path, err, "entry %d: %v", j, err)
			}
		}
	}
	return nil
}

func (m *Module) validateData() error {
	if m.DataCount != nil && int(*m.DataCount) != len(m.Data) {
		return invalid("datacount", nil, "data count %d does not match %d data segments", *m.DataCount, len(m.Data))
	}
	numGlobals := uint32(m.NumGlobals())
	numMems := uint32(m.NumImportedMemories() + len(m.Memories))
	for i, seg := range m.Data {
		if seg.Flags == 1 {
			continue
		}
		path := fmt.Sprintf("data[%d]", i)
		if seg.MemIdx >= numMems {
			return invalid(path, nil, "invalid memory index %d", seg.MemIdx)
		}
		if err := m.validateConstExpr(seg.Offset, numGlobals); err != nil {
			return invalid(path, err, "offset: %v", err)
		}
	}
	return nil
}

// validateConstExpr checks function and global references in a constant
// expression. globalLimit bounds the global indices it may read.
func (m *Module) validateConstExpr(expr []byte, globalLimit uint32) error {
	numFuncs := uint32(m.NumFuncs())
	return ScanInstructions(expr, func(in Instr) error {
		if in.Opcode == OpRefFunc && in.FuncIdx >= numFuncs {
			return fmt.Errorf("ref.func references invalid function index %d", in.FuncIdx)
		}
		if in.Opcode == OpGlobalGet && in.Index >= globalLimit {
			return fmt.Errorf("global.get references invalid global index %d", in.Index)
		}
		return nil
	})
}

func (m *Module) validateCode() error {
	numFuncs := uint32(m.NumFuncs())
	for i, body := range m.Code {
		err := ScanInstructions(body.Code, func(in Instr) error {
			if in.HasFuncIdx() && in.FuncIdx >= numFuncs {
				return fmt.Errorf("at offset %d: invalid function index %d", in.Start, in.FuncIdx)
			}
			return nil
		})
		if err != nil {
			return invalid(fmt.Sprintf("code[%d]", i), err, "%v", err)
		}
	}
	return nil
}
