package apispec

import (
	"strings"

	"github.com/wasmbind/wasmbind/errors"
)

// Tag classifies a native type by its WASM value representation.
type Tag uint8

const (
	// TagInt32 is a 32-bit integer occupying one i32 value slot.
	TagInt32 Tag = iota
	// TagInt64 is a 64-bit integer occupying one i64 value slot.
	TagInt64
	// TagFloat32 is a 32-bit float occupying one f32 value slot.
	TagFloat32
	// TagFloat64 is a 64-bit float occupying one f64 value slot.
	TagFloat64
	// TagStruct is an aggregate passed by pointer into guest linear memory.
	// Guests cannot pass aggregates by value across the boundary.
	TagStruct
)

// tagNames is the closed wire vocabulary. WASM exposes exactly four scalar
// value kinds plus pointer-into-memory for aggregates; anything else is a
// spec authoring error.
var tagNames = map[string]Tag{
	"i": TagInt32,
	"I": TagInt64,
	"f": TagFloat32,
	"F": TagFloat64,
	"S": TagStruct,
}

// TagFromString resolves a wire tag string, failing on unrecognized values.
func TagFromString(s string, path []string) (Tag, error) {
	t, ok := tagNames[s]
	if !ok {
		return 0, errors.UnknownTag(path, s)
	}
	return t, nil
}

// String returns the wire form of the tag.
func (t Tag) String() string {
	switch t {
	case TagInt32:
		return "i"
	case TagInt64:
		return "I"
	case TagFloat32:
		return "f"
	case TagFloat64:
		return "F"
	case TagStruct:
		return "S"
	}
	return "?"
}

// IsScalar reports whether the tag maps 1:1 to a WASM value slot.
func (t Tag) IsScalar() bool {
	return t != TagStruct
}

// CType describes a native type as it crosses the guest/host boundary.
type CType struct {
	// Name is the human-readable native type, e.g. "u32" or "oc_rect*".
	Name string `json:"name"`
	Tag  Tag    `json:"tag"`
}

// LengthKind selects the byte-length derivation strategy for a buffer arg.
type LengthKind uint8

const (
	// LengthProc calls a named host length-computation function.
	LengthProc LengthKind = iota
	// LengthCount takes the byte length from another integer argument.
	LengthCount
	// LengthComponents is a fixed element count with an element size implied
	// by the buffer's pointee type.
	LengthComponents
)

// Length declares how the dispatcher derives the byte length of a buffer
// argument. Exactly one strategy is set.
type Length struct {
	Kind LengthKind

	// Proc fields, valid when Kind == LengthProc.
	Proc     string
	ProcArgs []string

	// CountArg names the argument holding the byte length, valid when
	// Kind == LengthCount.
	CountArg string

	// Components is the fixed element count, valid when
	// Kind == LengthComponents.
	Components uint32
}

// Arg is a single declared argument of a binding.
type Arg struct {
	Name string `json:"name"`
	Type CType  `json:"type"`
	// Len is present iff the argument is a pointer+size buffer that the
	// dispatcher must bounds-check before the host dereferences it.
	Len *Length `json:"len,omitempty"`
}

// Binding declares one host function exposed to guests.
type Binding struct {
	// Name is the guest-visible import name.
	Name string `json:"name"`
	// CName is the host-side symbol invoked by the trampoline.
	CName string `json:"cname"`
	Ret   CType  `json:"ret"`
	Args  []Arg  `json:"args"`
}

// Spec is an ordered list of binding declarations with unique names.
type Spec struct {
	Bindings []Binding
}

// NeedsArgPtrStub reports whether the binding requires pointer indirection:
// true when the return type or any argument type is an aggregate. Struct
// returns are written through an i32 return pointer prepended to the
// parameter list; struct arguments travel as i32 offsets in place.
func (b *Binding) NeedsArgPtrStub() bool {
	if b.Ret.Tag == TagStruct {
		return true
	}
	for i := range b.Args {
		if b.Args[i].Type.Tag == TagStruct {
			return true
		}
	}
	return false
}

// Lookup returns the binding with the given guest-visible name.
func (s *Spec) Lookup(name string) *Binding {
	for i := range s.Bindings {
		if s.Bindings[i].Name == name {
			return &s.Bindings[i]
		}
	}
	return nil
}

// pointeeSizes maps native pointee type names to their byte size, used to
// resolve the implicit element size of a components-length buffer.
var pointeeSizes = map[string]uint32{
	"char": 1, "u8": 1, "i8": 1, "uint8_t": 1, "int8_t": 1, "void": 1,
	"u16": 2, "i16": 2, "uint16_t": 2, "int16_t": 2,
	"u32": 4, "i32": 4, "uint32_t": 4, "int32_t": 4, "int": 4, "f32": 4, "float": 4,
	"u64": 8, "i64": 8, "uint64_t": 8, "int64_t": 8, "f64": 8, "double": 8,
}

// ElementSize resolves the byte size of the pointee of a buffer type name
// such as "f32*" or "const char *". It returns false when the pointee is not
// a known fixed-size scalar.
func ElementSize(typeName string) (uint32, bool) {
	name := strings.TrimSpace(typeName)
	if !strings.HasSuffix(name, "*") {
		return 0, false
	}
	name = strings.TrimSpace(strings.TrimSuffix(name, "*"))
	name = strings.TrimSpace(strings.TrimPrefix(name, "const "))
	size, ok := pointeeSizes[name]
	return size, ok
}
