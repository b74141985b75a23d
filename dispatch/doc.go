// Package dispatch implements the runtime safety boundary between guest
// WASM calls and native host functions.
//
// A Binding from an API spec is compiled once, at bind time, into a
// trampoline closure callable with the guest's raw value stack and a view of
// its linear memory. Per call, the trampoline:
//
//   - reads scalar arguments directly from the incoming value slots,
//   - recomputes the byte length of every buffer argument per its declared
//     strategy (proc, count or components) and validates that the whole
//     [pointer, pointer+length) range lies inside the current linear memory
//     allocation, failing the call rather than dereferencing out of bounds,
//   - invokes the host implementation registered under the binding's cname,
//   - marshals the result back into the return slot, or writes aggregate
//     returns through the prepended return pointer.
//
// The package is independent of the execution backend: any engine that can
// present a value stack and a wasmbind.Memory view can drive a Registry.
// Compiled trampolines hold no mutable state; one Registry may serve many
// concurrently running instances as long as each owns its memory.
//
// Memory views are taken fresh on every call and never cached. Guest linear
// memory can grow, which invalidates previously resolved native pointers, so
// offsets are only turned into pointers inside the call that uses them.
package dispatch
