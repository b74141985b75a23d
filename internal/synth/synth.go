// Package synth builds minimal synthetic WASM guest modules for tests.
//
// A synthesized guest imports host functions from a single module, re-exports
// each one behind a forwarding wrapper of the same signature, and optionally
// defines and exports a linear memory. That is exactly the shape a compiled C
// guest has at the boundary, so engine tests can exercise the full
// host-call path without checking in binary fixtures.
package synth

import (
	"github.com/tetratelabs/wazero/api"
)

// ModuleBuilder assembles a guest that forwards exported calls to imports.
type ModuleBuilder struct {
	importModule string
	funcs        []forwardFunc
	memoryPages  uint32
	hasMemory    bool
}

type forwardFunc struct {
	name        string
	paramTypes  []api.ValueType
	resultTypes []api.ValueType
}

// NewModuleBuilder creates a builder whose function imports all come from
// importModule.
func NewModuleBuilder(importModule string) *ModuleBuilder {
	return &ModuleBuilder{importModule: importModule}
}

// AddForward declares a host function to import and a same-named, same-typed
// export that forwards its arguments to it.
func (b *ModuleBuilder) AddForward(name string, params, results []api.ValueType) *ModuleBuilder {
	b.funcs = append(b.funcs, forwardFunc{
		name:        name,
		paramTypes:  params,
		resultTypes: results,
	})
	return b
}

// WithMemory defines a linear memory of minPages 64KB pages, exported as
// "memory".
func (b *ModuleBuilder) WithMemory(minPages uint32) *ModuleBuilder {
	b.memoryPages = minPages
	b.hasMemory = true
	return b
}

// Build generates the WASM binary.
func (b *ModuleBuilder) Build() []byte {
	hasFuncs := len(b.funcs) > 0
	var out []byte

	// Magic and version
	out = append(out, 0x00, 0x61, 0x73, 0x6d)
	out = append(out, 0x01, 0x00, 0x00, 0x00)

	if hasFuncs {
		out = appendSection(out, 0x01, b.buildTypeSection())
		out = appendSection(out, 0x02, b.buildImportSection())
		out = appendSection(out, 0x03, b.buildFuncSection())
	}
	if b.hasMemory {
		out = appendSection(out, 0x05, b.buildMemorySection())
	}
	out = appendSection(out, 0x07, b.buildExportSection())
	if hasFuncs {
		out = appendSection(out, 0x0a, b.buildCodeSection())
	}

	return out
}

func appendSection(out []byte, id byte, section []byte) []byte {
	out = append(out, id)
	out = append(out, EncodeULEB128(uint32(len(section)))...)
	return append(out, section...)
}

// One type per function, shared by the import and its forwarder.
func (b *ModuleBuilder) buildTypeSection() []byte {
	var section []byte
	section = append(section, EncodeULEB128(uint32(len(b.funcs)))...)

	for _, f := range b.funcs {
		section = append(section, 0x60)
		section = append(section, EncodeULEB128(uint32(len(f.paramTypes)))...)
		for _, t := range f.paramTypes {
			section = append(section, ValTypeToWasm(t))
		}
		section = append(section, EncodeULEB128(uint32(len(f.resultTypes)))...)
		for _, t := range f.resultTypes {
			section = append(section, ValTypeToWasm(t))
		}
	}

	return section
}

func (b *ModuleBuilder) buildImportSection() []byte {
	var section []byte
	section = append(section, EncodeULEB128(uint32(len(b.funcs)))...)

	for i, f := range b.funcs {
		section = append(section, EncodeULEB128(uint32(len(b.importModule)))...)
		section = append(section, []byte(b.importModule)...)
		section = append(section, EncodeULEB128(uint32(len(f.name)))...)
		section = append(section, []byte(f.name)...)
		section = append(section, 0x00)
		section = append(section, EncodeULEB128(uint32(i))...)
	}

	return section
}

func (b *ModuleBuilder) buildFuncSection() []byte {
	var section []byte
	section = append(section, EncodeULEB128(uint32(len(b.funcs)))...)
	for i := range b.funcs {
		section = append(section, EncodeULEB128(uint32(i))...)
	}
	return section
}

func (b *ModuleBuilder) buildMemorySection() []byte {
	var section []byte
	section = append(section, 0x01)
	section = append(section, 0x00)
	section = append(section, EncodeULEB128(b.memoryPages)...)
	return section
}

func (b *ModuleBuilder) buildExportSection() []byte {
	var section []byte

	numExports := len(b.funcs)
	if b.hasMemory {
		numExports++
	}
	section = append(section, EncodeULEB128(uint32(numExports))...)

	if b.hasMemory {
		section = append(section, EncodeULEB128(uint32(len("memory")))...)
		section = append(section, []byte("memory")...)
		section = append(section, 0x02)
		section = append(section, 0x00)
	}

	// Forwarder indices follow the imports in the function index space.
	numImports := len(b.funcs)
	for i, f := range b.funcs {
		section = append(section, EncodeULEB128(uint32(len(f.name)))...)
		section = append(section, []byte(f.name)...)
		section = append(section, 0x00)
		section = append(section, EncodeULEB128(uint32(numImports+i))...)
	}

	return section
}

func (b *ModuleBuilder) buildCodeSection() []byte {
	var section []byte
	section = append(section, EncodeULEB128(uint32(len(b.funcs)))...)

	for i, f := range b.funcs {
		body := buildForwardBody(i, f)
		section = append(section, EncodeULEB128(uint32(len(body)))...)
		section = append(section, body...)
	}

	return section
}

// local.get each param, call the import, end.
func buildForwardBody(importIdx int, f forwardFunc) []byte {
	var body []byte
	body = append(body, 0x00)

	for i := range f.paramTypes {
		body = append(body, 0x20)
		body = append(body, EncodeULEB128(uint32(i))...)
	}

	body = append(body, 0x10)
	body = append(body, EncodeULEB128(uint32(importIdx))...)
	body = append(body, 0x0b)

	return body
}
