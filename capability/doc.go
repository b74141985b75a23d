// Package capability implements the built-in host capability set exposed to
// guests: a wall/monotonic clock, a structured log sink, and a surface
// registry addressed by generation-tagged handles.
//
// Everything a guest can reach goes through the dispatch boundary; the
// package exports a populated dispatch.HostTable plus the API spec document
// describing its bindings, so hosts can install it with one Bind call.
package capability
