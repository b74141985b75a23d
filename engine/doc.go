// Package engine adapts the dispatch layer onto the wazero execution
// backend.
//
// An Engine owns a wazero runtime. InstallAPI publishes a bound
// dispatch.Registry as a wazero host module, so guest modules can import the
// declared bindings by name. Guest memory is adapted per call onto the
// wasmbind.Memory view; host-call failures (bounds violations, host errors)
// become traps on the offending guest call and leave the instance usable.
//
// The dispatch layer itself is backend-agnostic; this package is the only
// place wazero types appear.
package engine
