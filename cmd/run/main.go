// Command run loads an API spec and a guest wasm module, installs the
// built-in capability set as the guest's host API, and calls guest exports
// with scalar arguments. With -i it starts an interactive TUI instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wasmbind/wasmbind/apispec"
	"github.com/wasmbind/wasmbind/capability"
	"github.com/wasmbind/wasmbind/dispatch"
	"github.com/wasmbind/wasmbind/engine"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to guest wasm module")
		specFile    = flag.String("spec", "", "API spec JSON file (default: built-in capability spec)")
		apiName     = flag.String("api-name", "api", "Host module name the guest imports from")
		funcName    = flag.String("func", "", "Exported function to call")
		argsStr     = flag.String("args", "", "Comma-separated scalar arguments")
		list        = flag.Bool("list", false, "List bindings and exports, then exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		configFile  = flag.String("config", "", "Config file (memory_pages, log_level)")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm> [-spec api.json] [-func name -args 1,2.5]")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.GetString("log_level"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	opts := sessionOptions{
		wasmFile:    *wasmFile,
		specFile:    *specFile,
		apiName:     *apiName,
		memoryPages: cfg.GetUint32("memory_pages"),
		logger:      logger,
	}

	if *interactive {
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(opts, *funcName, *argsStr, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*viper.Viper, error) {
	cfg := viper.New()
	cfg.SetDefault("memory_pages", 0)
	cfg.SetDefault("log_level", "info")
	if path != "" {
		cfg.SetConfigFile(path)
		if err := cfg.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

type sessionOptions struct {
	wasmFile    string
	specFile    string
	apiName     string
	memoryPages uint32
	logger      *zap.Logger
}

// session ties together one engine, one bound registry, and one guest
// instance.
type session struct {
	engine   *engine.Engine
	instance *engine.Instance
	registry *dispatch.Registry
	spec     *apispec.Spec
	host     *capability.Host
}

func newSession(ctx context.Context, opts sessionOptions) (*session, error) {
	spec, err := loadSpec(opts.specFile)
	if err != nil {
		return nil, err
	}

	host := capability.NewHost(opts.logger)
	table, err := host.Table()
	if err != nil {
		return nil, err
	}
	reg := dispatch.NewRegistry()
	if err := reg.Bind(spec, table); err != nil {
		return nil, err
	}

	eng, err := engine.New(ctx, &engine.Config{
		MemoryLimitPages: opts.memoryPages,
		Logger:           opts.logger,
	})
	if err != nil {
		return nil, err
	}

	if err := eng.InstallAPI(ctx, opts.apiName, reg); err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}

	data, err := os.ReadFile(opts.wasmFile)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, fmt.Errorf("read module: %w", err)
	}
	mod, err := eng.LoadModule(ctx, data)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}
	inst, err := mod.Instantiate(ctx, "guest")
	if err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}

	return &session{
		engine:   eng,
		instance: inst,
		registry: reg,
		spec:     spec,
		host:     host,
	}, nil
}

func (s *session) Close(ctx context.Context) error {
	var err error
	if s.instance != nil {
		err = multierr.Append(err, s.instance.Close(ctx))
	}
	if s.engine != nil {
		err = multierr.Append(err, s.engine.Close(ctx))
	}
	return err
}

func loadSpec(path string) (*apispec.Spec, error) {
	if path == "" {
		return capability.Spec()
	}
	return apispec.ParseFile(path)
}

func run(opts sessionOptions, funcName, argsStr string, listOnly bool) error {
	ctx := context.Background()

	sess, err := newSession(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close(ctx) }()

	fmt.Printf("Module: %s\n", opts.wasmFile)

	fmt.Printf("\nHost bindings (%s):\n", opts.apiName)
	for _, name := range sess.registry.Names() {
		fmt.Printf("  %s\n", formatBinding(sess.spec.Lookup(name)))
	}

	fmt.Printf("\nExported functions:\n")
	for _, name := range sess.instance.ExportedFunctions() {
		params, results, _ := sess.instance.FunctionSignature(name)
		fmt.Printf("  %s\n", formatSignature(name, params, results))
	}

	if listOnly || funcName == "" {
		return nil
	}

	params, _, ok := sess.instance.FunctionSignature(funcName)
	if !ok {
		return fmt.Errorf("function %q is not exported by the module", funcName)
	}

	var rawArgs []string
	if argsStr != "" {
		rawArgs = strings.Split(argsStr, ",")
	}
	stack, err := parseArgs(rawArgs, params)
	if err != nil {
		return err
	}

	fmt.Printf("\nCalling %s(%s)...\n", funcName, argsStr)
	results, err := sess.instance.Call(ctx, funcName, stack...)
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}

	_, resultTypes, _ := sess.instance.FunctionSignature(funcName)
	fmt.Printf("Result: %s\n", formatResults(results, resultTypes))
	return nil
}

func formatBinding(b *apispec.Binding) string {
	if b == nil {
		return "?"
	}
	args := make([]string, len(b.Args))
	for i, a := range b.Args {
		args[i] = a.Name + ": " + a.Type.Name
	}
	return fmt.Sprintf("%s(%s) -> %s", b.Name, strings.Join(args, ", "), b.Ret.Name)
}

func formatSignature(name string, params, results []api.ValueType) string {
	ps := make([]string, len(params))
	for i, p := range params {
		ps[i] = api.ValueTypeName(p)
	}
	sig := fmt.Sprintf("%s(%s)", name, strings.Join(ps, ", "))
	if len(results) > 0 {
		rs := make([]string, len(results))
		for i, r := range results {
			rs[i] = api.ValueTypeName(r)
		}
		sig += " -> " + strings.Join(rs, ", ")
	}
	return sig
}

// parseArgs converts textual arguments to raw value slots according to the
// function's parameter types.
func parseArgs(values []string, types []api.ValueType) ([]uint64, error) {
	if len(values) != len(types) {
		return nil, fmt.Errorf("function takes %d arguments, got %d", len(types), len(values))
	}
	stack := make([]uint64, len(values))
	for i, raw := range values {
		raw = strings.TrimSpace(raw)
		v, err := parseArg(raw, types[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d (%q): %w", i, raw, err)
		}
		stack[i] = v
	}
	return stack, nil
}

func parseArg(raw string, t api.ValueType) (uint64, error) {
	switch t {
	case api.ValueTypeI32:
		v, err := strconv.ParseInt(raw, 0, 64)
		if err != nil {
			return 0, err
		}
		return uint64(uint32(v)), nil
	case api.ValueTypeI64:
		v, err := strconv.ParseInt(raw, 0, 64)
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	case api.ValueTypeF32:
		v, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return 0, err
		}
		return uint64(api.EncodeF32(float32(v))), nil
	case api.ValueTypeF64:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, err
		}
		return api.EncodeF64(v), nil
	default:
		return 0, fmt.Errorf("unsupported parameter type %s", api.ValueTypeName(t))
	}
}

func formatResults(results []uint64, types []api.ValueType) string {
	if len(results) == 0 {
		return "(none)"
	}
	out := make([]string, len(results))
	for i, r := range results {
		switch {
		case i < len(types) && types[i] == api.ValueTypeF32:
			out[i] = strconv.FormatFloat(float64(api.DecodeF32(r)), 'g', -1, 32)
		case i < len(types) && types[i] == api.ValueTypeF64:
			out[i] = strconv.FormatFloat(api.DecodeF64(r), 'g', -1, 64)
		case i < len(types) && types[i] == api.ValueTypeI64:
			out[i] = strconv.FormatInt(int64(r), 10)
		default:
			out[i] = strconv.FormatInt(int64(int32(r)), 10)
		}
	}
	return strings.Join(out, ", ")
}
