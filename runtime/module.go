package runtime

import (
	"context"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/wasm-bridge/wasm"
)

// Module is a validated, compiled and instrumented module. It is immutable
// and may be instantiated any number of times, in any store of its runtime.
type Module struct {
	runtime  *Runtime
	compiled wazero.CompiledModule
	name     string
	imports  []wasm.ImportDecl
	exports  []wasm.ExportDecl
	sites    int
}

// Name returns the module name: the file name for LoadFile, "module"
// otherwise.
func (m *Module) Name() string {
	return m.name
}

// Imports returns the declared imports in declaration order. The injected
// safe-point import is not listed.
func (m *Module) Imports() []wasm.ImportDecl {
	return append([]wasm.ImportDecl(nil), m.imports...)
}

// Exports returns the declared exports in declaration order.
func (m *Module) Exports() []wasm.ExportDecl {
	return append([]wasm.ExportDecl(nil), m.exports...)
}

// SafePoints returns the number of budget checks inserted at load.
func (m *Module) SafePoints() int {
	return m.sites
}

func (m *Module) export(name string) (wasm.ExportDecl, bool) {
	for _, e := range m.exports {
		if e.Name == name {
			return e, true
		}
	}
	return wasm.ExportDecl{}, false
}

// Close releases the compiled code. Instances already created keep running.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}
