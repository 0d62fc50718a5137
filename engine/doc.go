// Package engine owns the wazero runtime that executes guest modules.
//
// An Engine compiles and instantiates modules, and implements
// linker.Provider: it builds host modules around registered callbacks,
// materialises shared memories and globals once per engine, and
// instantiates the facades the linker synthesises. Guests never import from
// a host module directly: the import resolver only accepts compiled modules,
// so host functions are always reached through a facade. Every store gets
// its own safe-point module from CheckModule, a host check function behind
// such a facade, which unwinds the guest once the store's budget is
// exhausted.
//
// Errors returned by guest calls are mapped to the bridge taxonomy with
// Classify:
//
//	budget exhausted        -> budget_exceeded
//	host callback failed    -> host_callback
//	guest exited            -> host_callback
//	anything else           -> guest_trap
package engine
