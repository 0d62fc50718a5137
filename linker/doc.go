// Package linker turns a module's declared imports into the modules that
// satisfy them.
//
// Linking runs in two steps. Resolve checks every declared import against
// an imports.Table and either returns a Plan or a single *errors.LinkError
// listing all missing and mistyped imports. Link then asks a Provider, in
// practice the engine, for the modules backing each namespace:
//
//	host funcs only          -> one host module, linked directly
//	mixed bindings or names  -> a synthetic facade re-exporting each binding
//
// Facades contain no code. They import from their providers by module name
// and export under the names the guest declared, so a namespace may mix
// host functions, shared memories, globals and exports of other instances.
package linker
