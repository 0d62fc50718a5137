package wasm

import (
	"fmt"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/wasm/internal/binary"
)

// Parse decodes and validates a WebAssembly core module. Every failure is
// an *errors.Error of kind validation whose Path names the offending
// construct, e.g. "code[3]".
func Parse(data []byte) (*Module, error) {
	m, err := ParseModule(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseModule decodes module structure without cross-section validation.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, invalid("header", err, "truncated header")
	}
	if magic != Magic {
		return nil, invalid("header", nil, "invalid magic number 0x%08x", magic)
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, invalid("header", err, "truncated header")
	}
	if version != Version {
		return nil, invalid("header", nil, "unsupported version %d", version)
	}

	m := &Module{}
	var lastSection byte

	for r.Len() > 0 {
		start := r.Position()
		id, _ := r.ReadByte()
		size, err := r.ReadU32()
		if err != nil {
			return nil, invalid(sectionName(id), err, "bad section size at offset %d", start)
		}
		body, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, invalid(sectionName(id), err, "section overruns module (size %d at offset %d)", size, start)
		}

		if id != SectionCustom {
			order := sectionOrder(id)
			if order == 0 {
				return nil, invalid("section", nil, "unknown section id 0x%02x at offset %d", id, start)
			}
			if order <= sectionOrder(lastSection) {
				return nil, invalid(sectionName(id), nil, "section out of order")
			}
			lastSection = id
		}

		sr := binary.NewReader(body)
		switch id {
		case SectionCustom:
			err = parseCustomSection(sr, m)
		case SectionType:
			err = parseTypeSection(sr, m)
		case SectionImport:
			err = parseImportSection(sr, m)
		case SectionFunction:
			err = parseFunctionSection(sr, m)
		case SectionTable:
			err = parseTableSection(sr, m)
		case SectionMemory:
			err = parseMemorySection(sr, m)
		case SectionGlobal:
			err = parseGlobalSection(sr, m)
		case SectionExport:
			err = parseExportSection(sr, m)
		case SectionStart:
			err = parseStartSection(sr, m)
		case SectionElement:
			err = parseElementSection(sr, m)
		case SectionDataCount:
			err = parseDataCountSection(sr, m)
		case SectionCode:
			err = parseCodeSection(sr, m)
		case SectionData:
			err = parseDataSection(sr, m)
		}
		if err != nil {
			return nil, asValidation(sectionName(id), err)
		}
		if sr.Len() != 0 {
			return nil, invalid(sectionName(id), nil, "%d unread bytes at end of section", sr.Len())
		}
	}

	if len(m.Funcs) != len(m.Code) {
		return nil, invalid("code", nil, "function count %d does not match code count %d", len(m.Funcs), len(m.Code))
	}
	return m, nil
}

// sectionOrder returns the canonical ordering for a section ID, 0 when unknown.
// DataCount sits between Element and Code even though its id is 12.
func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionGlobal:
		return 6
	case SectionExport:
		return 7
	case SectionStart:
		return 8
	case SectionElement:
		return 9
	case SectionDataCount:
		return 10
	case SectionCode:
		return 11
	case SectionData:
		return 12
	}
	return 0
}

func sectionName(id byte) string {
	switch id {
	case SectionCustom:
		return "custom"
	case SectionType:
		return "type"
	case SectionImport:
		return "import"
	case SectionFunction:
		return "function"
	case SectionTable:
		return "table"
	case SectionMemory:
		return "memory"
	case SectionGlobal:
		return "global"
	case SectionExport:
		return "export"
	case SectionStart:
		return "start"
	case SectionElement:
		return "element"
	case SectionDataCount:
		return "datacount"
	case SectionCode:
		return "code"
	case SectionData:
		return "data"
	}
	return fmt.Sprintf("section(0x%02x)", id)
}

func parseCustomSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	data := append([]byte(nil), r.ReadRemaining()...)
	m.CustomSections = append(m.CustomSections, CustomSection{Name: name, Data: data})
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Types = make([]FuncType, 0, min(count, 1024))
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			return element("type", i, fmt.Errorf("unsupported type form 0x%02x", form))
		}
		params, err := readValTypes(r)
		if err != nil {
			return element("type", i, err)
		}
		results, err := readValTypes(r)
		if err != nil {
			return element("type", i, err)
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if int(n) > r.Len() {
		return nil, fmt.Errorf("value type count %d exceeds section", n)
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]ValType, n)
	for i := range out {
		if out[i], err = readValType(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	vt := ValType(b)
	if !vt.valid() {
		return 0, fmt.Errorf("invalid value type 0x%02x", b)
	}
	return vt, nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		mod, err := r.ReadName()
		if err != nil {
			return element("import", i, err)
		}
		name, err := r.ReadName()
		if err != nil {
			return element("import", i, err)
		}
		kind, err := r.ReadByte()
		if err != nil {
			return element("import", i, err)
		}
		imp := Import{Module: mod, Name: name, Desc: ImportDesc{Kind: kind}}
		switch kind {
		case KindFunc:
			imp.Desc.TypeIdx, err = r.ReadU32()
		case KindTable:
			var t TableType
			t, err = readTableType(r)
			imp.Desc.Table = &t
		case KindMemory:
			var mt MemoryType
			mt, err = readMemoryType(r)
			imp.Desc.Memory = &mt
		case KindGlobal:
			var gt GlobalType
			gt, err = readGlobalType(r)
			imp.Desc.Global = &gt
		default:
			err = fmt.Errorf("unsupported import kind 0x%02x", kind)
		}
		if err != nil {
			return element("import", i, fmt.Errorf("%s.%s: %w", mod, name, err))
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if int(count) > r.Len() {
		return fmt.Errorf("function count %d exceeds section", count)
	}
	m.Funcs = make([]uint32, count)
	for i := range m.Funcs {
		if m.Funcs[i], err = r.ReadU32(); err != nil {
			return element("function", uint32(i), err)
		}
	}
	return nil
}

func parseTableSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		t, err := readTableType(r)
		if err != nil {
			return element("table", i, err)
		}
		m.Tables = append(m.Tables, t)
	}
	return nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	et, err := readValType(r)
	if err != nil {
		return TableType{}, err
	}
	if !et.IsRef() {
		return TableType{}, fmt.Errorf("table element type %s is not a reference type", et)
	}
	lim, err := readLimits(r, false)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: et, Limits: lim}, nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		mt, err := readMemoryType(r)
		if err != nil {
			return element("memory", i, err)
		}
		m.Memories = append(m.Memories, mt)
	}
	return nil
}

func readMemoryType(r *binary.Reader) (MemoryType, error) {
	lim, err := readLimits(r, true)
	if err != nil {
		return MemoryType{}, err
	}
	return MemoryType{Limits: lim}, nil
}

func readLimits(r *binary.Reader, memory bool) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	var lim Limits
	switch {
	case flags == 0x00, flags == 0x01:
	case memory && (flags == 0x02 || flags == 0x03):
		lim.Shared = true
	case memory && flags >= 0x04 && flags <= 0x07:
		return Limits{}, fmt.Errorf("memory64 is not supported")
	default:
		return Limits{}, fmt.Errorf("invalid limits flags 0x%02x", flags)
	}
	lim.HasMax = flags&0x01 != 0
	if lim.Min, err = r.ReadU32(); err != nil {
		return Limits{}, err
	}
	if lim.HasMax {
		if lim.Max, err = r.ReadU32(); err != nil {
			return Limits{}, err
		}
	}
	return lim, nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	vt, err := readValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, fmt.Errorf("invalid mutability 0x%02x", mut)
	}
	return GlobalType{ValType: vt, Mutable: mut == 1}, nil
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		gt, err := readGlobalType(r)
		if err != nil {
			return element("global", i, err)
		}
		init, err := readConstExpr(r)
		if err != nil {
			return element("global", i, err)
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: init})
	}
	return nil
}

// readConstExpr returns a copy of the raw expression bytes including end.
func readConstExpr(r *binary.Reader) ([]byte, error) {
	start := r.Position()
	for {
		op, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("unterminated constant expression: %w", err)
		}
		switch op {
		case OpEnd:
			return append([]byte(nil), r.Slice(start, r.Position())...), nil
		case OpI32Const:
			_, err = r.ReadS32()
		case OpI64Const:
			_, err = r.ReadS64()
		case OpF32Const:
			err = r.Skip(4)
		case OpF64Const:
			err = r.Skip(8)
		case OpGlobalGet, OpRefFunc:
			_, err = r.ReadU32()
		case OpRefNull:
			_, err = r.ReadS64()
		case OpI32Add, OpI32Sub, OpI32Mul, OpI64Add, OpI64Sub, OpI64Mul:
		case OpPrefixSIMD:
			var sub uint32
			if sub, err = r.ReadU32(); err == nil {
				if sub != 12 {
					return nil, fmt.Errorf("%w 0xfd %d in constant expression", ErrUnsupportedOpcode, sub)
				}
				err = r.Skip(16)
			}
		default:
			return nil, fmt.Errorf("%w 0x%02x in constant expression", ErrUnsupportedOpcode, op)
		}
		if err != nil {
			return nil, err
		}
	}
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return element("export", i, err)
		}
		kind, err := r.ReadByte()
		if err != nil {
			return element("export", i, err)
		}
		if kind > KindGlobal {
			return element("export", i, fmt.Errorf("%q: unsupported export kind 0x%02x", name, kind))
		}
		idx, err := r.ReadU32()
		if err != nil {
			return element("export", i, err)
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Idx: idx})
	}
	return nil
}

func parseStartSection(r *binary.Reader, m *Module) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Start = &idx
	return nil
}

func parseElementSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		elem, err := readElement(r)
		if err != nil {
			return element("element", i, err)
		}
		m.Elements = append(m.Elements, elem)
	}
	return nil
}

func readElement(r *binary.Reader) (Element, error) {
	flags, err := r.ReadU32()
	if err != nil {
		return Element{}, err
	}
	if flags > 7 {
		return Element{}, fmt.Errorf("invalid element flags %d", flags)
	}
	elem := Element{Flags: flags, Type: ValFuncRef}

	if flags&0x03 == 0x02 {
		if elem.TableIdx, err = r.ReadU32(); err != nil {
			return Element{}, err
		}
	}
	if elem.Active() {
		if elem.Offset, err = readConstExpr(r); err != nil {
			return Element{}, err
		}
	}
	if flags&0x03 != 0 {
		if elem.UsesExprs() {
			if elem.Type, err = readValType(r); err != nil {
				return Element{}, err
			}
			if !elem.Type.IsRef() {
				return Element{}, fmt.Errorf("element type %s is not a reference type", elem.Type)
			}
		} else {
			if elem.ElemKind, err = r.ReadByte(); err != nil {
				return Element{}, err
			}
			if elem.ElemKind != 0x00 {
				return Element{}, fmt.Errorf("invalid element kind 0x%02x", elem.ElemKind)
			}
		}
	}

	n, err := r.ReadU32()
	if err != nil {
		return Element{}, err
	}
	if int(n) > r.Len() {
		return Element{}, fmt.Errorf("element count %d exceeds section", n)
	}
	if elem.UsesExprs() {
		elem.Exprs = make([][]byte, n)
		for j := range elem.Exprs {
			if elem.Exprs[j], err = readConstExpr(r); err != nil {
				return Element{}, err
			}
		}
	} else {
		elem.FuncIdxs = make([]uint32, n)
		for j := range elem.FuncIdxs {
			if elem.FuncIdxs[j], err = r.ReadU32(); err != nil {
				return Element{}, err
			}
		}
	}
	return elem, nil
}

func parseDataCountSection(r *binary.Reader, m *Module) error {
	n, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.DataCount = &n
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if int(count) > r.Len() {
		return fmt.Errorf("code count %d exceeds section", count)
	}
	m.Code = make([]FuncBody, 0, count)
	for i := uint32(0); i < count; i++ {
		size, err := r.ReadU32()
		if err != nil {
			return element("code", i, err)
		}
		raw, err := r.ReadBytes(int(size))
		if err != nil {
			return element("code", i, err)
		}
		body, err := readFuncBody(raw)
		if err != nil {
			return element("code", i, err)
		}
		m.Code = append(m.Code, body)
	}
	return nil
}

func readFuncBody(raw []byte) (FuncBody, error) {
	r := binary.NewReader(raw)
	groups, err := r.ReadU32()
	if err != nil {
		return FuncBody{}, err
	}
	if int(groups) > r.Len() {
		return FuncBody{}, fmt.Errorf("local group count %d exceeds body", groups)
	}
	var body FuncBody
	var total uint64
	for j := uint32(0); j < groups; j++ {
		n, err := r.ReadU32()
		if err != nil {
			return FuncBody{}, err
		}
		total += uint64(n)
		if total > 50000 {
			return FuncBody{}, fmt.Errorf("too many locals")
		}
		vt, err := readValType(r)
		if err != nil {
			return FuncBody{}, err
		}
		body.Locals = append(body.Locals, LocalEntry{Count: n, ValType: vt})
	}
	body.Code = append([]byte(nil), r.ReadRemaining()...)
	if err := ScanInstructions(body.Code, nil); err != nil {
		return FuncBody{}, err
	}
	return body, nil
}

func parseDataSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		seg, err := readDataSegment(r)
		if err != nil {
			return element("data", i, err)
		}
		m.Data = append(m.Data, seg)
	}
	return nil
}

func readDataSegment(r *binary.Reader) (DataSegment, error) {
	flags, err := r.ReadU32()
	if err != nil {
		return DataSegment{}, err
	}
	seg := DataSegment{Flags: flags}
	switch flags {
	case 0:
	case 1:
	case 2:
		if seg.MemIdx, err = r.ReadU32(); err != nil {
			return DataSegment{}, err
		}
	default:
		return DataSegment{}, fmt.Errorf("invalid data segment flags %d", flags)
	}
	if flags != 1 {
		if seg.Offset, err = readConstExpr(r); err != nil {
			return DataSegment{}, err
		}
	}
	n, err := r.ReadU32()
	if err != nil {
		return DataSegment{}, err
	}
	init, err := r.ReadBytes(int(n))
	if err != nil {
		return DataSegment{}, err
	}
	seg.Init = append([]byte(nil), init...)
	return seg, nil
}

// constructError carries the innermost construct path while parse
// errors bubble up to the section loop.
type constructError struct {
	err  error
	path string
}

func (e *constructError) Error() string { return e.path + ": " + e.err.Error() }
func (e *constructError) Unwrap() error { return e.err }

func element(section string, idx uint32, err error) error {
	return &constructError{path: fmt.Sprintf("%s[%d]", section, idx), err: err}
}

func asValidation(section string, err error) error {
	if ce, ok := err.(*constructError); ok {
		return errors.Validation([]string{ce.path}, ce.err.Error(), ce.err)
	}
	return errors.Validation([]string{section}, err.Error(), err)
}

func invalid(path string, cause error, format string, args ...any) error {
	return errors.Validation([]string{path}, fmt.Sprintf(format, args...), cause)
}
