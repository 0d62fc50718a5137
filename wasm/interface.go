package wasm

import "fmt"

// ExternKind identifies what an import or export refers to.
type ExternKind byte

const (
	ExternFunc   ExternKind = ExternKind(KindFunc)
	ExternTable  ExternKind = ExternKind(KindTable)
	ExternMemory ExternKind = ExternKind(KindMemory)
	ExternGlobal ExternKind = ExternKind(KindGlobal)
)

func (k ExternKind) String() string {
	switch k {
	case ExternFunc:
		return "func"
	case ExternTable:
		return "table"
	case ExternMemory:
		return "memory"
	case ExternGlobal:
		return "global"
	}
	return fmt.Sprintf("extern(%d)", byte(k))
}

// Extern is the type of an importable or exportable item. Exactly one of
// the pointer fields matching Kind is set.
type Extern struct {
	Func   *FuncType
	Global *GlobalType
	Memory *Limits
	Table  *TableType
	Kind   ExternKind
}

// FuncExtern returns the extern type of a function.
func FuncExtern(ft FuncType) Extern {
	return Extern{Kind: ExternFunc, Func: &ft}
}

// GlobalExtern returns the extern type of a global.
func GlobalExtern(vt ValType, mutable bool) Extern {
	return Extern{Kind: ExternGlobal, Global: &GlobalType{ValType: vt, Mutable: mutable}}
}

// MemoryExtern returns the extern type of a memory.
func MemoryExtern(l Limits) Extern {
	return Extern{Kind: ExternMemory, Memory: &l}
}

func (e Extern) String() string {
	switch e.Kind {
	case ExternFunc:
		if e.Func != nil {
			return e.Func.String()
		}
	case ExternGlobal:
		if e.Global != nil {
			return e.Global.String()
		}
	case ExternMemory:
		if e.Memory != nil {
			return "memory " + e.Memory.String()
		}
	case ExternTable:
		if e.Table != nil {
			return "table " + e.Table.ElemType.String() + " " + e.Table.Limits.String()
		}
	}
	return e.Kind.String()
}

// ImportDecl is a declared import with its resolved type.
type ImportDecl struct {
	Namespace string
	Name      string
	Type      Extern
}

// ExportDecl is a declared export with its resolved type.
type ExportDecl struct {
	Name string
	Type Extern
}

// ImportDecls returns the declared imports in declaration order.
func (m *Module) ImportDecls() []ImportDecl {
	out := make([]ImportDecl, 0, len(m.Imports))
	for _, imp := range m.Imports {
		d := ImportDecl{Namespace: imp.Module, Name: imp.Name}
		switch imp.Desc.Kind {
		case KindFunc:
			if ft := m.typeAt(imp.Desc.TypeIdx); ft != nil {
				d.Type = FuncExtern(*ft)
			}
		case KindGlobal:
			g := *imp.Desc.Global
			d.Type = Extern{Kind: ExternGlobal, Global: &g}
		case KindMemory:
			l := imp.Desc.Memory.Limits
			d.Type = Extern{Kind: ExternMemory, Memory: &l}
		case KindTable:
			t := *imp.Desc.Table
			d.Type = Extern{Kind: ExternTable, Table: &t}
		}
		out = append(out, d)
	}
	return out
}

// ExportDecls returns the declared exports in declaration order.
func (m *Module) ExportDecls() []ExportDecl {
	out := make([]ExportDecl, 0, len(m.Exports))
	for _, exp := range m.Exports {
		d := ExportDecl{Name: exp.Name, Type: Extern{Kind: ExternKind(exp.Kind)}}
		switch exp.Kind {
		case KindFunc:
			if ft := m.GetFuncType(exp.Idx); ft != nil {
				d.Type = FuncExtern(*ft)
			}
		case KindGlobal:
			if gt := m.GetGlobalType(exp.Idx); gt != nil {
				g := *gt
				d.Type.Global = &g
			}
		case KindMemory:
			if l, ok := m.memoryLimits(exp.Idx); ok {
				d.Type.Memory = &l
			}
		case KindTable:
			if t, ok := m.tableType(exp.Idx); ok {
				d.Type.Table = &t
			}
		}
		out = append(out, d)
	}
	return out
}

func (m *Module) memoryLimits(idx uint32) (Limits, bool) {
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindMemory {
			continue
		}
		if idx == 0 {
			return imp.Desc.Memory.Limits, true
		}
		idx--
	}
	if int(idx) < len(m.Memories) {
		return m.Memories[idx].Limits, true
	}
	return Limits{}, false
}

func (m *Module) tableType(idx uint32) (TableType, bool) {
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindTable {
			continue
		}
		if idx == 0 {
			return *imp.Desc.Table, true
		}
		idx--
	}
	if int(idx) < len(m.Tables) {
		return m.Tables[idx], true
	}
	return TableType{}, false
}
