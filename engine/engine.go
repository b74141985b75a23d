package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wasmbind/wasmbind/dispatch"
	"github.com/wasmbind/wasmbind/errors"
)

// Engine wraps a wazero runtime hosting guest modules and their API host
// modules.
type Engine struct {
	runtime wazero.Runtime
	logger  *zap.Logger
}

// Config holds configuration for engine creation.
type Config struct {
	// MemoryLimitPages caps guest memory per instance in 64KB pages.
	// 0 means the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// Logger overrides the package logger for this engine.
	Logger *zap.Logger
}

// New creates a wazero-backed engine.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	logger := Logger()

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.Logger != nil {
			logger = cfg.Logger
		}
	}

	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		logger:  logger,
	}, nil
}

// Close releases the runtime and every instance created from it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// InstallAPI publishes the registry's trampolines as a host module. Guests
// importing moduleName can then call exactly the bindings the registry
// holds; nothing else in the host process is reachable.
func (e *Engine) InstallAPI(ctx context.Context, moduleName string, reg *dispatch.Registry) error {
	if moduleName == "" {
		return errors.InvalidInput(errors.PhaseBind, "host module name cannot be empty")
	}
	if reg.Len() == 0 {
		return errors.InvalidInput(errors.PhaseBind, "registry holds no bindings")
	}

	builder := e.runtime.NewHostModuleBuilder(moduleName)
	for _, name := range reg.Names() {
		c := reg.Lookup(name)
		builder.NewFunctionBuilder().
			WithGoModuleFunction(e.goFunc(c), valueTypes(c.ParamKinds()), valueTypes(c.ResultKinds())).
			Export(name)
	}

	if _, err := builder.Instantiate(ctx); err != nil {
		return errors.Wrap(errors.PhaseBind, errors.KindInstantiation, err,
			"instantiate host module "+moduleName)
	}

	e.logger.Debug("installed host API",
		zap.String("module", moduleName),
		zap.Int("bindings", reg.Len()))
	return nil
}

// goFunc wraps a compiled trampoline in the wazero host calling convention.
// A failed dispatch panics; wazero recovers host panics into an error on the
// guest's export call, which is exactly the trap semantics the boundary
// wants: the call fails, the instance survives.
func (e *Engine) goFunc(c *dispatch.Compiled) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		mem := &guestMemory{mem: mod.Memory()}
		if err := c.Invoke(ctx, mem, stack); err != nil {
			e.logger.Debug("guest call trapped",
				zap.String("binding", c.Name()),
				zap.Error(err))
			panic(err)
		}
	}
}

func valueTypes(kinds []dispatch.ValueKind) []api.ValueType {
	if len(kinds) == 0 {
		return nil
	}
	out := make([]api.ValueType, len(kinds))
	for i, k := range kinds {
		switch k {
		case dispatch.I64:
			out[i] = api.ValueTypeI64
		case dispatch.F32:
			out[i] = api.ValueTypeF32
		case dispatch.F64:
			out[i] = api.ValueTypeF64
		default:
			out[i] = api.ValueTypeI32
		}
	}
	return out
}
