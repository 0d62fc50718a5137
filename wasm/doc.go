// Package wasm provides WebAssembly core module parsing, validation and encoding.
//
// The codec covers what the bridge needs to inspect and instrument guest
// modules: the section structure of WebAssembly 2.0 plus the sign-extension,
// saturating conversion, bulk memory, reference types, SIMD, threads and
// tail-call instruction sets. GC, exception handling and memory64 modules are
// rejected at parse time.
//
// # Parsing
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasm.Parse(data)
//	if err != nil {
//	    log.Fatal(err) // *errors.Error naming the construct, e.g. code[3]
//	}
//
// ParseModule decodes without the cross-section checks performed by Validate.
//
// # Encoding
//
//	encoded := module.Encode()
//
// Function bodies are kept as raw bytes. ScanInstructions walks a body one
// instruction at a time, and RemapFuncIndices rewrites call targets, which is
// enough for passes that insert calls or imports.
//
// # Declared interface
//
// ImportDecls and ExportDecls return the module's imports and exports with
// their resolved types, in declaration order.
package wasm
