// Package imports holds the bindings a guest module can import.
//
// A Table maps (namespace, name) keys to one of four binding kinds:
//
//	HostFunc   Go callback with an explicit wasm signature
//	GuestFunc  function exported by another instance
//	Global     host global, materialised once per engine
//	Memory     linear memory, materialised once per engine
//
// Resolution checks the declared import type against the binding: functions
// need identical signatures, globals identical type and mutability, and
// memories must fit the declared limits. Tables are never provided.
//
// Reserve fills ranges of placeholder names for guests that declare imports
// they never call.
package imports
