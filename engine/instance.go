package engine

import (
	"context"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	wasmbind "github.com/wasmbind/wasmbind"
	"github.com/wasmbind/wasmbind/errors"
)

// Module is a compiled guest module, instantiable many times.
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
}

// LoadModule compiles a core WASM guest module. Host APIs it imports must be
// installed before instantiation.
func (e *Engine) LoadModule(ctx context.Context, wasmBytes []byte) (*Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "compile module")
	}
	return &Module{engine: e, compiled: compiled}, nil
}

// Instantiate creates a running instance of the module.
func (m *Module) Instantiate(ctx context.Context, name string) (*Instance, error) {
	cfg := wazero.NewModuleConfig().WithName(name)
	mod, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, cfg)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	return &Instance{mod: mod}, nil
}

// Instance is one live guest. It is not safe for concurrent use; run
// independent instances on independent goroutines instead.
type Instance struct {
	mod api.Module
}

// Call invokes an exported guest function with raw value slots.
func (i *Instance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn := i.mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseDispatch, "exported function", name)
	}
	return fn.Call(ctx, args...)
}

// Memory returns a bounds-checked view of the instance's linear memory, or
// nil when the module defines none.
func (i *Instance) Memory() wasmbind.Memory {
	mem := i.mod.Memory()
	if mem == nil {
		return nil
	}
	return &guestMemory{mem: mem}
}

// FunctionSignature returns the raw value types of an exported function's
// parameters and results.
func (i *Instance) FunctionSignature(name string) (params, results []api.ValueType, ok bool) {
	fn := i.mod.ExportedFunction(name)
	if fn == nil {
		return nil, nil, false
	}
	def := fn.Definition()
	return def.ParamTypes(), def.ResultTypes(), true
}

// ExportedFunctions lists the instance's exported function names, sorted.
func (i *Instance) ExportedFunctions() []string {
	defs := i.mod.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases the instance.
func (i *Instance) Close(ctx context.Context) error {
	return i.mod.Close(ctx)
}
