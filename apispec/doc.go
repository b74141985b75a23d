// Package apispec defines the data model for host API specifications and a
// strict JSON codec for them.
//
// A spec file is a JSON array of binding declarations. Each declaration names
// a guest-visible import, the host symbol it dispatches to, a return type and
// an argument list. Types carry a closed tag vocabulary mapping onto the
// WASM value kinds: "i" (32-bit int), "I" (64-bit int), "f" (32-bit float),
// "F" (64-bit float) and "S" (aggregate passed by guest-memory pointer).
//
// Parsing is two-stage: JSON is first decoded into an untyped mirror of the
// wire shape, then explicitly converted into the typed representation.
// Unrecognized tags, ambiguous length declarations and missing required
// fields fail the conversion loudly; JSON strings are never trusted as
// already-valid enum values.
//
// Specs are read-only after parsing. MarshalJSON on the typed representation
// round-trips: encoding a Binding and re-parsing yields an equal Binding.
package apispec
