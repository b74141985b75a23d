// Package bindgen turns an API spec into source code: a host-side Go
// registration unit and, optionally, guest-side C stubs.
//
// The host unit declares a typed interface with one method per binding (and
// per length proc), the spec literal it was generated from, and a Register
// function that adapts the interface onto dispatch trampolines. The guest
// stubs declare the raw WASM imports with import_module/import_name
// attributes and wrap aggregate-passing bindings behind native-signature C
// functions, hiding the pointer indirection from application code.
//
// Generation is a pure, deterministic transform: identical input produces
// byte-identical output, with no timestamps or environment leakage. Output
// is all-or-nothing — on any validation or emission failure no output file
// is touched, so a build pipeline gating on the exit code never sees a
// half-written unit.
package bindgen
