package dispatch

import (
	"github.com/wasmbind/wasmbind/apispec"
	"github.com/wasmbind/wasmbind/errors"
)

// HostTable maps host symbols (cnames) to their implementations and named
// length-computation procs. A table is populated before binding and treated
// as read-only afterwards.
type HostTable struct {
	funcs map[string]HostFunc
	procs map[string]LengthProc
}

// NewHostTable creates an empty host table.
func NewHostTable() *HostTable {
	return &HostTable{
		funcs: make(map[string]HostFunc),
		procs: make(map[string]LengthProc),
	}
}

// RegisterFunc registers the implementation for a host symbol.
func (t *HostTable) RegisterFunc(cname string, fn HostFunc) error {
	if cname == "" {
		return errors.InvalidInput(errors.PhaseBind, "host symbol name cannot be empty")
	}
	if fn == nil {
		return errors.InvalidInput(errors.PhaseBind, "host function cannot be nil")
	}
	if _, exists := t.funcs[cname]; exists {
		return errors.New(errors.PhaseBind, errors.KindDuplicateBinding).
			Path(cname).
			Detail("host symbol registered twice").
			Build()
	}
	t.funcs[cname] = fn
	return nil
}

// RegisterLengthProc registers a named length-computation function.
func (t *HostTable) RegisterLengthProc(name string, proc LengthProc) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseBind, "length proc name cannot be empty")
	}
	if proc == nil {
		return errors.InvalidInput(errors.PhaseBind, "length proc cannot be nil")
	}
	if _, exists := t.procs[name]; exists {
		return errors.New(errors.PhaseBind, errors.KindDuplicateBinding).
			Path(name).
			Detail("length proc registered twice").
			Build()
	}
	t.procs[name] = proc
	return nil
}

func (t *HostTable) lookupFunc(cname string) HostFunc {
	return t.funcs[cname]
}

func (t *HostTable) lookupProc(name string) LengthProc {
	return t.procs[name]
}

// Registry holds compiled trampolines keyed by guest-visible import name.
// Binding is all-or-nothing; after a successful Bind the registry is
// read-only and safe for concurrent use.
type Registry struct {
	entries map[string]*Compiled
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Compiled)}
}

// Bind compiles every declaration in the spec against the host table and
// installs the trampolines. On any error nothing is installed: a spec that
// references a missing host symbol must not leave a partially bound API
// behind.
func (r *Registry) Bind(spec *apispec.Spec, table *HostTable) error {
	staged := make([]*Compiled, 0, len(spec.Bindings))
	for i := range spec.Bindings {
		b := &spec.Bindings[i]
		if _, exists := r.entries[b.Name]; exists {
			return errors.DuplicateBinding(b.Name)
		}
		c, err := Compile(b, table)
		if err != nil {
			return err
		}
		staged = append(staged, c)
	}

	for _, c := range staged {
		r.entries[c.Name()] = c
		r.order = append(r.order, c.Name())
	}
	return nil
}

// Lookup returns the compiled trampoline for a guest-visible import name.
func (r *Registry) Lookup(name string) *Compiled {
	return r.entries[name]
}

// Names returns the registered import names in binding order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered trampolines.
func (r *Registry) Len() int {
	return len(r.entries)
}
