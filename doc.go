// Package wasmbridge runs sandboxed WebAssembly modules against host-provided
// functions and state, with a cooperative execution budget per invocation.
//
// # Architecture Overview
//
//	wasmbridge/          Root package with the Memory interfaces
//	├── runtime/         Load modules, instantiate them in stores, compose tiers
//	├── imports/         Import table: host functions, globals, memories
//	├── hostlib/         Ready-made host functions (math, console)
//	├── epoch/           Epoch clock, ticker and per-store budgets
//	├── safepoint/       Inserts budget checks into guest code
//	├── driver/          Repeated invocation of an entry point
//	├── linker/          Import planning and facade modules
//	├── engine/          wazero integration
//	├── wasm/            Core WASM binary decode, encode and validation
//	├── config/          File and environment configuration
//	└── errors/          Structured error types
//
// # Quick Start
//
// Compose a platform module with an application and run its entry point:
//
//	rt, err := runtime.New(ctx, engine.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	table := imports.NewTable()
//	hostlib.RegisterMath(table, "env")
//
//	platform, _ := rt.Load(ctx, platformBytes)
//	app, _ := rt.Load(ctx, appBytes)
//
//	store := rt.NewStore()
//	defer store.Close(ctx)
//
//	comp, err := store.Compose(ctx, platform, app, table)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ticker := epoch.NewTicker(rt.Clock(), time.Millisecond)
//	defer ticker.Stop()
//
//	d, _ := driver.New(comp.App, "run", driver.WithTicks(1000))
//	report, err := d.Run(ctx, 10)
//
// # Preemption
//
// Every loaded module is instrumented with safe points at function entry and
// loop headers. A safe point compares the epoch clock against the store's
// deadline and unwinds the call with errors.ErrBudgetExceeded once the
// deadline is reached. The instance remains usable afterwards and keeps its
// memory and globals.
//
// # Thread Safety
//
// Runtime, Module and imports.Table are safe for concurrent use. A Store and
// its instances must be used by one goroutine at a time. The epoch clock may
// be advanced from any goroutine.
package wasmbridge
