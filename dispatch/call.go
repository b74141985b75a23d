package dispatch

import (
	"context"
	"encoding/binary"
	"math"

	wasmbind "github.com/wasmbind/wasmbind"
	"github.com/wasmbind/wasmbind/errors"
)

// HostFunc is a host capability implementation invoked by a compiled
// trampoline. Arguments and results are exchanged through the Call.
type HostFunc func(ctx context.Context, call *Call) error

// LengthProc computes the byte length of a buffer argument from the raw
// values of the arguments named in the spec's proc declaration.
type LengthProc func(ctx context.Context, mem wasmbind.Memory, args []uint64) (uint32, error)

// Call carries one guest call across the boundary. It is valid only for the
// duration of the host function invocation; implementations must not retain
// it, its memory view, or any buffer slice obtained from it.
type Call struct {
	mem     wasmbind.Memory
	stack   []uint64
	bufs    [][]byte
	results [1]uint64
	binding string
	argBase int // 1 when a return pointer is prepended
	retPtr  uint32
	hasRet  bool
	setRet  bool
}

// Binding returns the guest-visible name of the called binding.
func (c *Call) Binding() string {
	return c.binding
}

// Memory returns the bounds-checked view of the guest's linear memory.
func (c *Call) Memory() wasmbind.Memory {
	return c.mem
}

func (c *Call) slot(i int) uint64 {
	return c.stack[c.argBase+i]
}

// I32 reads argument i as a 32-bit integer.
func (c *Call) I32(i int) int32 {
	return int32(uint32(c.slot(i)))
}

// U32 reads argument i as an unsigned 32-bit integer.
func (c *Call) U32(i int) uint32 {
	return uint32(c.slot(i))
}

// I64 reads argument i as a 64-bit integer.
func (c *Call) I64(i int) int64 {
	return int64(c.slot(i))
}

// U64 reads argument i as an unsigned 64-bit integer.
func (c *Call) U64(i int) uint64 {
	return c.slot(i)
}

// F32 reads argument i as a 32-bit float.
func (c *Call) F32(i int) float32 {
	return math.Float32frombits(uint32(c.slot(i)))
}

// F64 reads argument i as a 64-bit float.
func (c *Call) F64(i int) float64 {
	return math.Float64frombits(c.slot(i))
}

// Bytes returns the validated buffer for argument i. The range was checked
// against the live memory size before the host function ran; the slice
// aliases guest memory and is only valid during this call. It returns nil
// for arguments that carry no length declaration.
func (c *Call) Bytes(i int) []byte {
	if i < 0 || i >= len(c.bufs) {
		return nil
	}
	return c.bufs[i]
}

// StructArg returns a reference to the aggregate passed by pointer in
// argument i.
func (c *Call) StructArg(i int) StructRef {
	return StructRef{Mem: c.mem, Off: uint32(c.slot(i)), binding: c.binding}
}

// StructReturn returns a reference to the guest-allocated return slot.
// Only valid for bindings whose return type is an aggregate.
func (c *Call) StructReturn() StructRef {
	return StructRef{Mem: c.mem, Off: c.retPtr, binding: c.binding}
}

// ReturnI32 sets a 32-bit integer result.
func (c *Call) ReturnI32(v int32) {
	c.results[0] = uint64(uint32(v))
	c.setRet = true
}

// ReturnU32 sets an unsigned 32-bit integer result.
func (c *Call) ReturnU32(v uint32) {
	c.results[0] = uint64(v)
	c.setRet = true
}

// ReturnI64 sets a 64-bit integer result.
func (c *Call) ReturnI64(v int64) {
	c.results[0] = uint64(v)
	c.setRet = true
}

// ReturnF32 sets a 32-bit float result.
func (c *Call) ReturnF32(v float32) {
	c.results[0] = uint64(math.Float32bits(v))
	c.setRet = true
}

// ReturnF64 sets a 64-bit float result.
func (c *Call) ReturnF64(v float64) {
	c.results[0] = math.Float64bits(v)
	c.setRet = true
}

// StructRef addresses an aggregate in guest memory by offset. Every access
// goes through the bounds-checked memory view; the offset is only resolved
// to native memory at the moment of the access.
type StructRef struct {
	Mem     wasmbind.Memory
	Off     uint32
	binding string
}

// ReadBytes copies size bytes of the aggregate out of guest memory.
func (r StructRef) ReadBytes(size uint32) ([]byte, error) {
	view, ok := r.Mem.Read(r.Off, size)
	if !ok {
		return nil, errors.OutOfBounds(r.binding, "struct", uint64(r.Off), uint64(size), r.Mem.Size())
	}
	out := make([]byte, size)
	copy(out, view)
	return out, nil
}

// WriteBytes writes the aggregate into guest memory.
func (r StructRef) WriteBytes(data []byte) error {
	if !r.Mem.Write(r.Off, data) {
		return errors.OutOfBounds(r.binding, "struct", uint64(r.Off), uint64(len(data)), r.Mem.Size())
	}
	return nil
}

// ReadU32 reads a little-endian u32 field at the given byte offset within
// the aggregate. Backends exposing the wasmbind.MemoryReader fast path are
// read without materializing a view.
func (r StructRef) ReadU32(field uint32) (uint32, error) {
	off, err := r.fieldOffset(field)
	if err != nil {
		return 0, err
	}
	if mr, ok := r.Mem.(wasmbind.MemoryReader); ok {
		v, ok := mr.ReadU32(off)
		if !ok {
			return 0, errors.OutOfBounds(r.binding, "struct", uint64(off), 4, r.Mem.Size())
		}
		return v, nil
	}
	view, ok := r.Mem.Read(off, 4)
	if !ok {
		return 0, errors.OutOfBounds(r.binding, "struct", uint64(off), 4, r.Mem.Size())
	}
	return binary.LittleEndian.Uint32(view), nil
}

// fieldOffset rejects field offsets whose sum with the aggregate's base
// would wrap the 32-bit address space.
func (r StructRef) fieldOffset(field uint32) (uint32, error) {
	off := uint64(r.Off) + uint64(field)
	if off > math.MaxUint32 {
		return 0, errors.OutOfBounds(r.binding, "struct", off, 4, r.Mem.Size())
	}
	return uint32(off), nil
}

// WriteU32 writes a little-endian u32 field at the given byte offset.
func (r StructRef) WriteU32(field uint32, v uint32) error {
	off, err := r.fieldOffset(field)
	if err != nil {
		return err
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	if !r.Mem.Write(off, buf[:]) {
		return errors.OutOfBounds(r.binding, "struct", uint64(off), 4, r.Mem.Size())
	}
	return nil
}

// ReadF32 reads a little-endian f32 field at the given byte offset.
func (r StructRef) ReadF32(field uint32) (float32, error) {
	bits, err := r.ReadU32(field)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

// WriteF32 writes a little-endian f32 field at the given byte offset.
func (r StructRef) WriteF32(field uint32, v float32) error {
	return r.WriteU32(field, math.Float32bits(v))
}
