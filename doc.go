// Package wasmbind provides the binding and marshalling layer between
// sandboxed WebAssembly guest modules and trusted native host functions.
//
// Guest application logic is compiled to a core WASM module and may only
// reach the host through functions declared in an API spec: a JSON file
// listing every host-exposed function, its WASM-representable signature and
// the length-derivation rules for its buffer arguments. The spec is the
// sandboxing contract — a host symbol that is not declared is unreachable
// from guest code by construction.
//
// # Architecture Overview
//
// The library is organized into focused packages:
//
//	wasmbind/        Root package with the guest memory view interfaces
//	├── apispec/     API spec data model and strict JSON codec
//	├── bindgen/     Deterministic generator: host trampolines + guest stubs
//	├── dispatch/    Per-call safety boundary: bounds checks and marshalling
//	├── engine/      wazero execution backend adapter
//	├── capability/  Built-in host capabilities (clock, log, surfaces)
//	├── errors/      Structured error types
//	└── cmd/         bindgen and run command-line tools
//
// # Data Flow
//
// An API spec flows through the system in two ways. At build time, bindgen
// turns it into a host-side registration unit (a typed Go interface plus
// per-binding trampoline adapters) and optional guest-side C stubs. At run
// time, dispatch compiles each declaration into a trampoline that unpacks
// the guest's raw value stack, recomputes and validates every buffer range
// against the live linear memory size, and forwards to the host
// implementation registered under the declaration's cname.
//
// # Quick Start
//
// Bind a spec dynamically and run a guest module:
//
//	spec, err := apispec.ParseFile("surface_api.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	host := capability.NewHost(logger)
//	table, err := host.Table()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reg := dispatch.NewRegistry()
//	if err := reg.Bind(spec, table); err != nil {
//	    log.Fatal(err)
//	}
//
//	eng, err := engine.New(ctx, nil)
//	defer eng.Close(ctx)
//
//	err = eng.InstallAPI(ctx, "env", reg)
//	mod, err := eng.LoadModule(ctx, wasmBytes)
//	inst, err := mod.Instantiate(ctx, "app")
//	defer inst.Close(ctx)
//
//	results, err := inst.Call(ctx, "oc_on_init")
//
// # Safety Model
//
// Host calls run synchronously on the guest's call stack; the guest is
// suspended for the duration, so memory views taken during a call cannot be
// invalidated by guest-side growth. Views are never retained across calls.
// A bounds violation fails the offending call (surfaced as a trap on the
// guest's export call) without crashing the host process or poisoning the
// instance.
//
// # Thread Safety
//
// Registries and host tables are immutable after binding and safe to share.
// An Instance is NOT thread-safe; multiple instances, each owning its own
// linear memory, may run on separate goroutines.
package wasmbind
