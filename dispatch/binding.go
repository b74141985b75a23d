package dispatch

import (
	"context"
	"math"
	"math/bits"

	wasmbind "github.com/wasmbind/wasmbind"
	"github.com/wasmbind/wasmbind/apispec"
	"github.com/wasmbind/wasmbind/errors"
)

// ValueKind is the WASM value slot type of a parameter or result.
type ValueKind uint8

const (
	I32 ValueKind = iota
	I64
	F32
	F64
)

// slotKind maps a spec tag onto the value slot that carries it. Aggregates
// travel as i32 offsets into guest memory.
func slotKind(t apispec.Tag) ValueKind {
	switch t {
	case apispec.TagInt64:
		return I64
	case apispec.TagFloat32:
		return F32
	case apispec.TagFloat64:
		return F64
	default:
		return I32
	}
}

// Compiled is a binding declaration resolved against a host table: the
// callable trampoline plus the slot signature the execution backend needs to
// register it. Compiled trampolines are immutable and safe for concurrent
// use across instances.
type Compiled struct {
	binding apispec.Binding
	host    HostFunc
	lengths []*lengthResolver // indexed by arg, nil when no bounds check
	params  []ValueKind
	results []ValueKind
	hasRet  bool // struct return through prepended pointer slot
}

type lengthResolver struct {
	kind      apispec.LengthKind
	proc      LengthProc
	procSlots []int
	countSlot int
	fixed     uint32 // precomputed components * element size
}

// Compile resolves a binding against a host table. Every host symbol and
// length proc the binding references must be registered; an unresolved
// reference fails here, at bind time, so undeclared host functions stay
// unreachable from guest code.
func Compile(b *apispec.Binding, table *HostTable) (*Compiled, error) {
	host := table.lookupFunc(b.CName)
	if host == nil {
		return nil, errors.UnknownSymbol(errors.PhaseBind, b.Name, b.CName)
	}

	c := &Compiled{
		binding: *b,
		host:    host,
		lengths: make([]*lengthResolver, len(b.Args)),
		hasRet:  b.Ret.Tag == apispec.TagStruct,
	}

	if c.hasRet {
		c.params = append(c.params, I32) // return pointer
	} else {
		c.results = []ValueKind{slotKind(b.Ret.Tag)}
	}
	for i := range b.Args {
		c.params = append(c.params, slotKind(b.Args[i].Type.Tag))
	}

	argBase := 0
	if c.hasRet {
		argBase = 1
	}

	for i := range b.Args {
		arg := &b.Args[i]
		if arg.Len == nil {
			continue
		}
		r := &lengthResolver{kind: arg.Len.Kind}

		switch arg.Len.Kind {
		case apispec.LengthProc:
			r.proc = table.lookupProc(arg.Len.Proc)
			if r.proc == nil {
				return nil, errors.UnknownSymbol(errors.PhaseBind, b.Name, arg.Len.Proc)
			}
			for _, name := range arg.Len.ProcArgs {
				idx := argIndex(b, name)
				if idx < 0 {
					return nil, errors.InvalidArgLength([]string{b.Name, arg.Name},
						"proc references unknown argument %q", name)
				}
				r.procSlots = append(r.procSlots, argBase+idx)
			}

		case apispec.LengthCount:
			idx := argIndex(b, arg.Len.CountArg)
			if idx < 0 {
				return nil, errors.InvalidArgLength([]string{b.Name, arg.Name},
					"count references unknown argument %q", arg.Len.CountArg)
			}
			r.countSlot = argBase + idx

		case apispec.LengthComponents:
			size, ok := apispec.ElementSize(arg.Type.Name)
			if !ok {
				return nil, errors.InvalidArgLength([]string{b.Name, arg.Name},
					"components element size unknown for %q", arg.Type.Name)
			}
			total := uint64(arg.Len.Components) * uint64(size)
			if total > math.MaxUint32 {
				return nil, errors.InvalidArgLength([]string{b.Name, arg.Name},
					"components length %d exceeds the 32-bit address space", total)
			}
			r.fixed = uint32(total)
		}

		c.lengths[i] = r
	}

	return c, nil
}

func argIndex(b *apispec.Binding, name string) int {
	for i := range b.Args {
		if b.Args[i].Name == name {
			return i
		}
	}
	return -1
}

// Name returns the guest-visible import name.
func (c *Compiled) Name() string {
	return c.binding.Name
}

// CName returns the host symbol the trampoline dispatches to.
func (c *Compiled) CName() string {
	return c.binding.CName
}

// ParamKinds returns the value slot kinds in call order, including the
// prepended return pointer slot for aggregate returns.
func (c *Compiled) ParamKinds() []ValueKind {
	return c.params
}

// ResultKinds returns the result slot kinds: one scalar slot, or none when
// the return travels through the return pointer.
func (c *Compiled) ResultKinds() []ValueKind {
	return c.results
}

// Invoke runs one guest call through the trampoline. stack holds the raw
// parameter slots on entry; on success the scalar result, if any, is written
// back to stack[0] following the backend calling convention.
//
// Errors abort only this call. The guest instance, and its linear memory,
// remain valid for subsequent calls.
func (c *Compiled) Invoke(ctx context.Context, mem wasmbind.Memory, stack []uint64) error {
	if len(stack) < len(c.params) {
		return errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
			Path(c.binding.Name).
			Detail("got %d value slots, want %d", len(stack), len(c.params)).
			Build()
	}

	call := &Call{
		mem:     mem,
		stack:   stack,
		binding: c.binding.Name,
		hasRet:  c.hasRet,
	}
	if c.hasRet {
		call.argBase = 1
		call.retPtr = uint32(stack[0])
	}

	// Validate every buffer range against the live memory size before the
	// host sees any of them. The guest-supplied length is never trusted
	// beyond what the declared strategy derives from it.
	if err := c.resolveBuffers(ctx, call); err != nil {
		return err
	}

	if err := c.host(ctx, call); err != nil {
		return err
	}

	if !c.hasRet {
		if !call.setRet {
			return errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
				Path(c.binding.Name).
				Detail("host function returned without setting a result").
				Build()
		}
		stack[0] = call.results[0]
	}
	return nil
}

func (c *Compiled) resolveBuffers(ctx context.Context, call *Call) error {
	hasBufs := false
	for _, r := range c.lengths {
		if r != nil {
			hasBufs = true
			break
		}
	}
	if !hasBufs {
		return nil
	}

	call.bufs = make([][]byte, len(c.binding.Args))
	memSize := call.mem.Size()

	for i, r := range c.lengths {
		if r == nil {
			continue
		}

		var length uint64
		switch r.kind {
		case apispec.LengthProc:
			args := make([]uint64, len(r.procSlots))
			for j, slot := range r.procSlots {
				args[j] = call.stack[slot]
			}
			n, err := r.proc(ctx, call.mem, args)
			if err != nil {
				return errors.Wrap(errors.PhaseDispatch, errors.KindInvalidArgLength, err,
					"length proc for "+c.binding.Name+"."+c.binding.Args[i].Name)
			}
			length = uint64(n)
		case apispec.LengthCount:
			length = call.stack[r.countSlot]
			if c.paramIs32(r.countSlot) {
				length = uint64(uint32(length))
			}
		case apispec.LengthComponents:
			length = uint64(r.fixed)
		}

		offset := uint64(uint32(call.slot(i)))
		if !rangeOK(offset, length, memSize) {
			return errors.OutOfBounds(c.binding.Name, c.binding.Args[i].Name, offset, length, memSize)
		}

		if length == 0 {
			call.bufs[i] = []byte{}
			continue
		}
		view, ok := call.mem.Read(uint32(offset), uint32(length))
		if !ok {
			// Size shrank between the check and the read cannot happen on a
			// suspended guest, but a backend refusal is still a trap.
			return errors.OutOfBounds(c.binding.Name, c.binding.Args[i].Name, offset, length, memSize)
		}
		call.bufs[i] = view
	}

	return nil
}

func (c *Compiled) paramIs32(slot int) bool {
	return c.params[slot] == I32 || c.params[slot] == F32
}

// rangeOK reports whether [offset, offset+length) lies inside a memory of
// memSize bytes. The sum is carried explicitly, so an offset+length that
// would wrap the address width is rejected rather than wrapped.
func rangeOK(offset, length uint64, memSize uint32) bool {
	end, carry := bits.Add64(offset, length, 0)
	return carry == 0 && end <= uint64(memSize)
}
