package imports

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/wasm"
)

// Key identifies an import by namespace and name.
type Key struct {
	Namespace string
	Name      string
}

func (k Key) String() string {
	return k.Namespace + "." + k.Name
}

// Entry is a registered binding with its key.
type Entry struct {
	Binding Binding
	Key     Key
}

// Table maps (namespace, name) pairs to bindings. The last registration for
// a key wins; iteration follows first-insertion order, so overwriting a key
// keeps its position. Table is safe for concurrent use.
type Table struct {
	index   map[Key]int
	entries []Entry
	mu      sync.RWMutex
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{index: make(map[Key]int)}
}

// Register binds ns.name to b, replacing any previous binding for that key.
func (t *Table) Register(ns, name string, b Binding) error {
	if ns == "" || name == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace and name must not be empty")
	}
	if b == nil || isNilBinding(b) {
		return errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("nil binding for %s.%s", ns, name))
	}

	key := Key{Namespace: ns, Name: name}
	t.mu.Lock()
	defer t.mu.Unlock()
	if i, ok := t.index[key]; ok {
		Logger().Debug("import overridden",
			zap.String("namespace", ns),
			zap.String("name", name),
			zap.Stringer("was", t.entries[i].Binding.Extern()),
			zap.Stringer("now", b.Extern()))
		t.entries[i].Binding = b
		return nil
	}
	t.index[key] = len(t.entries)
	t.entries = append(t.entries, Entry{Key: key, Binding: b})
	Logger().Debug("import registered",
		zap.String("namespace", ns),
		zap.String("name", name),
		zap.Stringer("type", b.Extern()))
	return nil
}

func isNilBinding(b Binding) bool {
	switch v := b.(type) {
	case *HostFunc:
		return v == nil || v.Callback == nil
	case *GuestFunc:
		return v == nil || v.Module == nil
	case *Global:
		return v == nil
	case *Memory:
		return v == nil
	}
	return false
}

// RegisterFunc binds a stack-ABI host function.
func (t *Table) RegisterFunc(ns, name string, ft wasm.FuncType, cb Callback) error {
	return t.Register(ns, name, &HostFunc{Type: ft, Callback: cb})
}

// RegisterGoFunc binds a plain Go function, deriving its signature with GoFunc.
func (t *Table) RegisterGoFunc(ns, name string, fn any) error {
	hf, err := GoFunc(fn)
	if err != nil {
		return errors.Registration(ns, name, err)
	}
	return t.Register(ns, name, hf)
}

// RegisterGlobal creates and binds a host global.
func (t *Table) RegisterGlobal(ns, name string, vt wasm.ValType, mutable bool, initial uint64) (*Global, error) {
	g, err := NewGlobal(wasm.GlobalType{ValType: vt, Mutable: mutable}, initial)
	if err != nil {
		return nil, errors.Registration(ns, name, err)
	}
	if err := t.Register(ns, name, g); err != nil {
		return nil, err
	}
	return g, nil
}

// RegisterMemory binds a memory handle.
func (t *Table) RegisterMemory(ns, name string, m *Memory) error {
	return t.Register(ns, name, m)
}

// Lookup returns the binding for ns.name.
func (t *Table) Lookup(ns, name string) (Binding, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.index[Key{Namespace: ns, Name: name}]
	if !ok {
		return nil, false
	}
	return t.entries[i].Binding, true
}

// Resolve returns the binding for ns.name if it satisfies expected. It
// returns an unresolved_import error when nothing is registered and a
// signature_mismatch error when the binding has an incompatible type.
func (t *Table) Resolve(ns, name string, expected wasm.Extern) (Binding, error) {
	b, ok := t.Lookup(ns, name)
	if !ok || expected.Kind == wasm.ExternTable {
		return nil, errors.New(errors.PhaseLinking, errors.KindUnresolvedImport).
			Path(ns, name).
			WasmType(expected.String()).
			Detail("no binding registered").Build()
	}
	have := b.Extern()
	if !Matches(expected, have) {
		return nil, errors.New(errors.PhaseLinking, errors.KindSignatureMismatch).
			Path(ns, name).
			WasmType(expected.String()).
			Detail("provided %s", have).Build()
	}
	return b, nil
}

// Entries returns a snapshot of all bindings in insertion order.
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Entry(nil), t.entries...)
}

// Len returns the number of registered keys.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Clone returns an independent table with the same bindings. Memory and
// global handles are shared, so both tables link to the same state.
func (t *Table) Clone() *Table {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c := &Table{
		index:   make(map[Key]int, len(t.index)),
		entries: append([]Entry(nil), t.entries...),
	}
	for k, i := range t.index {
		c.index[k] = i
	}
	return c
}

// Matches reports whether a binding of type have satisfies an import
// declared as want.
func Matches(want, have wasm.Extern) bool {
	if want.Kind != have.Kind {
		return false
	}
	switch want.Kind {
	case wasm.ExternFunc:
		return want.Func != nil && have.Func != nil && want.Func.Equal(*have.Func)
	case wasm.ExternGlobal:
		return want.Global != nil && have.Global != nil && *want.Global == *have.Global
	case wasm.ExternMemory:
		if want.Memory == nil || have.Memory == nil {
			return false
		}
		w, h := *want.Memory, *have.Memory
		if h.Min < w.Min || w.Shared != h.Shared {
			return false
		}
		if w.HasMax && (!h.HasMax || h.Max > w.Max) {
			return false
		}
		return true
	}
	return false
}
