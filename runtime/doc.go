// Package runtime is the high-level API for loading, linking and invoking
// guest modules.
//
// # Quick Start
//
//	rt, err := runtime.New(ctx, engine.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	table := imports.NewTable()
//	table.RegisterGoFunc("env", "sin", math.Sin)
//
//	mod, err := rt.Load(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := rt.NewStore()
//	defer store.Close(ctx)
//
//	inst, err := store.Instantiate(ctx, mod, table)
//	if err != nil {
//	    log.Fatal(err) // *errors.LinkError lists every missing import
//	}
//
//	fn, _ := inst.Func("compute")
//	store.Arm(1000)
//	res, err := fn.Invoke(ctx, api.EncodeF64(0.5))
//
// # Loading
//
// Load parses and validates the binary, rejects imports from the reserved
// "$epoch" namespace, inserts safe points and compiles the result. Module
// descriptors list the declared imports and exports in declaration order,
// so loading the same bytes twice describes the same module.
//
// # Stores and Budgets
//
// A Store owns an epoch.Budget. Arm sets a deadline relative to the current
// epoch; a safe point reached at or past the deadline unwinds the call with
// errors.ErrBudgetExceeded. Memory and globals keep whatever the guest wrote
// before the interruption, and the next invocation continues from there.
//
// # Composition
//
// Compose instantiates a platform module, registers its exported functions
// under "env" in a copy of the import table, and instantiates the
// application against that copy. The application cannot tell guest-provided
// imports from native ones. The platform sees only the base table.
package runtime
