package dispatch

import (
	"context"
	stderrors "errors"
	"math"
	"testing"

	wasmbind "github.com/wasmbind/wasmbind"
	"github.com/wasmbind/wasmbind/apispec"
	berrors "github.com/wasmbind/wasmbind/errors"
)

// fakeMemory is an in-process linear memory for trampoline tests.
type fakeMemory struct {
	data []byte
}

func newFakeMemory(size uint32) *fakeMemory {
	return &fakeMemory{data: make([]byte, size)}
}

func (m *fakeMemory) Size() uint32 {
	return uint32(len(m.data))
}

func (m *fakeMemory) Read(offset, length uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(m.data)) {
		return nil, false
	}
	return m.data[offset:end], true
}

func (m *fakeMemory) Write(offset uint32, data []byte) bool {
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(m.data)) {
		return false
	}
	copy(m.data[offset:], data)
	return true
}

func mustParse(t *testing.T, doc string) *apispec.Spec {
	t.Helper()
	spec, err := apispec.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse spec: %v", err)
	}
	return spec
}

func bindOne(t *testing.T, doc string, table *HostTable) *Compiled {
	t.Helper()
	spec := mustParse(t, doc)
	reg := NewRegistry()
	if err := reg.Bind(spec, table); err != nil {
		t.Fatalf("bind: %v", err)
	}
	return reg.Lookup(spec.Bindings[0].Name)
}

func isOutOfBounds(err error) bool {
	return stderrors.Is(err, &berrors.Error{Phase: berrors.PhaseDispatch, Kind: berrors.KindOutOfBounds})
}

func TestRangeOK(t *testing.T) {
	const m = uint32(1024)
	tests := []struct {
		offset, length uint64
		want           bool
	}{
		{0, 0, true},
		{0, 1024, true},
		{1024, 0, true},
		{1023, 1, true},
		{1023, 2, false}, // offset = M-1, length = 2
		{1024, 1, false},
		{1000, 24, true},
		{1000, 25, false},
		{0, 1025, false},
		{math.MaxUint32, 1, false},
		{1000, math.MaxUint64, false},          // sum wraps
		{math.MaxUint64, math.MaxUint64, false}, // sum wraps
	}
	for _, tt := range tests {
		if got := rangeOK(tt.offset, tt.length, m); got != tt.want {
			t.Errorf("rangeOK(%d, %d, %d) = %v, want %v", tt.offset, tt.length, m, got, tt.want)
		}
	}
}

const writeRegionSpec = `[{
  "name": "write_region",
  "cname": "oc_write_region",
  "ret": {"name": "int", "tag": "i"},
  "args": [
    {"name": "ptr", "type": {"name": "char*", "tag": "i"}, "len": {"count": "len"}},
    {"name": "len", "type": {"name": "int", "tag": "i"}}
  ]
}]`

func TestWriteRegionScenario(t *testing.T) {
	var gotLen int
	table := NewHostTable()
	_ = table.RegisterFunc("oc_write_region", func(ctx context.Context, call *Call) error {
		gotLen = len(call.Bytes(0))
		call.ReturnI32(int32(gotLen))
		return nil
	})
	c := bindOne(t, writeRegionSpec, table)
	mem := newFakeMemory(1024)

	// 1000 + 50 > 1024: rejected, host never runs.
	stack := []uint64{1000, 50}
	err := c.Invoke(context.Background(), mem, stack)
	if !isOutOfBounds(err) {
		t.Fatalf("want out_of_bounds, got %v", err)
	}

	// 1000 + 24 <= 1024: accepted.
	stack = []uint64{1000, 24}
	if err := c.Invoke(context.Background(), mem, stack); err != nil {
		t.Fatalf("in-bounds call failed: %v", err)
	}
	if gotLen != 24 {
		t.Errorf("host saw %d bytes, want 24", gotLen)
	}
	if int32(uint32(stack[0])) != 24 {
		t.Errorf("result slot = %d, want 24", int32(uint32(stack[0])))
	}
}

func TestZeroLengthAtMemoryEnd(t *testing.T) {
	table := NewHostTable()
	called := false
	_ = table.RegisterFunc("oc_write_region", func(ctx context.Context, call *Call) error {
		called = true
		if got := len(call.Bytes(0)); got != 0 {
			t.Errorf("buffer length = %d, want 0", got)
		}
		call.ReturnI32(0)
		return nil
	})
	c := bindOne(t, writeRegionSpec, table)
	mem := newFakeMemory(1024)

	// offset == size with zero length is the empty range at the end.
	if err := c.Invoke(context.Background(), mem, []uint64{1024, 0}); err != nil {
		t.Fatalf("zero-length call failed: %v", err)
	}
	if !called {
		t.Error("host was not invoked")
	}
}

func TestComponentsLength(t *testing.T) {
	doc := `[{
	  "name": "set_matrix",
	  "cname": "oc_set_matrix",
	  "ret": {"name": "int", "tag": "i"},
	  "args": [{"name": "m", "type": {"name": "f32*", "tag": "i"}, "len": {"components": 6}}]
	}]`

	var got int
	table := NewHostTable()
	_ = table.RegisterFunc("oc_set_matrix", func(ctx context.Context, call *Call) error {
		got = len(call.Bytes(0))
		call.ReturnI32(0)
		return nil
	})
	c := bindOne(t, doc, table)
	mem := newFakeMemory(256)

	// 6 components x 4 bytes = 24 bytes exactly.
	if err := c.Invoke(context.Background(), mem, []uint64{256 - 24}); err != nil {
		t.Fatalf("call at last fitting offset failed: %v", err)
	}
	if got != 24 {
		t.Errorf("buffer length = %d, want 24", got)
	}

	err := c.Invoke(context.Background(), mem, []uint64{256 - 23})
	if !isOutOfBounds(err) {
		t.Fatalf("want out_of_bounds one byte past the end, got %v", err)
	}
}

func TestComponentsOverflowRejectedAtBind(t *testing.T) {
	// 1<<30 f32 elements is 2^32 bytes, which no 32-bit linear memory can
	// hold; the product must not wrap to 0 and slip past the bounds check.
	doc := `[{
	  "name": "set_big",
	  "cname": "oc_set_big",
	  "ret": {"name": "int", "tag": "i"},
	  "args": [{"name": "m", "type": {"name": "f32*", "tag": "i"}, "len": {"components": 1073741824}}]
	}]`
	table := NewHostTable()
	_ = table.RegisterFunc("oc_set_big", func(ctx context.Context, call *Call) error {
		call.ReturnI32(0)
		return nil
	})

	reg := NewRegistry()
	err := reg.Bind(mustParse(t, doc), table)
	if !stderrors.Is(err, &berrors.Error{Phase: berrors.PhaseParse, Kind: berrors.KindInvalidArgLength}) {
		t.Fatalf("want invalid_arg_length at bind time, got %v", err)
	}
}

func TestCount64BitOverflowRejected(t *testing.T) {
	doc := `[{
	  "name": "blob_write",
	  "cname": "oc_blob_write",
	  "ret": {"name": "int", "tag": "i"},
	  "args": [
	    {"name": "ptr", "type": {"name": "char*", "tag": "i"}, "len": {"count": "n"}},
	    {"name": "n", "type": {"name": "u64", "tag": "I"}}
	  ]
	}]`
	table := NewHostTable()
	_ = table.RegisterFunc("oc_blob_write", func(ctx context.Context, call *Call) error {
		call.ReturnI32(0)
		return nil
	})
	c := bindOne(t, doc, table)
	mem := newFakeMemory(4096)

	// A 64-bit length whose sum with the offset wraps must be rejected, not
	// wrapped into an in-bounds range.
	err := c.Invoke(context.Background(), mem, []uint64{8, math.MaxUint64})
	if !isOutOfBounds(err) {
		t.Fatalf("want out_of_bounds on wrapping length, got %v", err)
	}
}

func TestProcLength(t *testing.T) {
	doc := `[{
	  "name": "image_upload",
	  "cname": "oc_image_upload",
	  "ret": {"name": "int", "tag": "i"},
	  "args": [
	    {"name": "rect", "type": {"name": "oc_rect", "tag": "S"}},
	    {"name": "pixels", "type": {"name": "u8*", "tag": "i"},
	     "len": {"proc": "oc_image_upload_length", "args": ["rect"]}}
	  ]
	}]`

	table := NewHostTable()
	_ = table.RegisterLengthProc("oc_image_upload_length", func(ctx context.Context, mem wasmbind.Memory, args []uint64) (uint32, error) {
		// rect = {x, y, w, h} as f32 fields; pixel format is rgba8.
		r := StructRef{Mem: mem, Off: uint32(args[0])}
		w, err := r.ReadF32(8)
		if err != nil {
			return 0, err
		}
		h, err := r.ReadF32(12)
		if err != nil {
			return 0, err
		}
		return uint32(w) * uint32(h) * 4, nil
	})
	var got int
	_ = table.RegisterFunc("oc_image_upload", func(ctx context.Context, call *Call) error {
		got = len(call.Bytes(1))
		call.ReturnI32(0)
		return nil
	})

	c := bindOne(t, doc, table)
	mem := newFakeMemory(4096)

	// rect at offset 16: w=8, h=8 -> 256 bytes.
	rect := StructRef{Mem: mem, Off: 16}
	_ = rect.WriteF32(0, 0)
	_ = rect.WriteF32(4, 0)
	_ = rect.WriteF32(8, 8)
	_ = rect.WriteF32(12, 8)

	if err := c.Invoke(context.Background(), mem, []uint64{16, 128}); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if got != 256 {
		t.Errorf("buffer length = %d, want 256", got)
	}

	// Same rect, buffer too close to the end.
	err := c.Invoke(context.Background(), mem, []uint64{16, 4096 - 255})
	if !isOutOfBounds(err) {
		t.Fatalf("want out_of_bounds, got %v", err)
	}
}

func TestStructReturn(t *testing.T) {
	doc := `[{
	  "name": "surface_get_size",
	  "cname": "oc_surface_get_size",
	  "ret": {"name": "oc_vec2", "tag": "S"},
	  "args": [{"name": "surface", "type": {"name": "oc_surface", "tag": "I"}}]
	}]`

	table := NewHostTable()
	_ = table.RegisterFunc("oc_surface_get_size", func(ctx context.Context, call *Call) error {
		out := call.StructReturn()
		if err := out.WriteF32(0, 800); err != nil {
			return err
		}
		return out.WriteF32(4, 600)
	})
	c := bindOne(t, doc, table)

	if len(c.ResultKinds()) != 0 {
		t.Fatalf("struct return must use no result slot, got %d", len(c.ResultKinds()))
	}
	if kinds := c.ParamKinds(); len(kinds) != 2 || kinds[0] != I32 || kinds[1] != I64 {
		t.Fatalf("wrong param kinds: %v", kinds)
	}

	mem := newFakeMemory(1024)
	// Slot 0 is the prepended return pointer, slot 1 the surface handle.
	if err := c.Invoke(context.Background(), mem, []uint64{64, 7}); err != nil {
		t.Fatalf("call failed: %v", err)
	}

	out := StructRef{Mem: mem, Off: 64}
	w, _ := out.ReadF32(0)
	h, _ := out.ReadF32(4)
	if w != 800 || h != 600 {
		t.Errorf("struct return = (%v, %v), want (800, 600)", w, h)
	}

	// Return pointer past the end of memory: the write traps the call.
	err := c.Invoke(context.Background(), mem, []uint64{1022, 7})
	if !isOutOfBounds(err) {
		t.Fatalf("want out_of_bounds on return write, got %v", err)
	}
}

func TestScalarMarshalling(t *testing.T) {
	doc := `[{
	  "name": "mix",
	  "cname": "oc_mix",
	  "ret": {"name": "double", "tag": "F"},
	  "args": [
	    {"name": "a", "type": {"name": "int", "tag": "i"}},
	    {"name": "b", "type": {"name": "i64", "tag": "I"}},
	    {"name": "c", "type": {"name": "float", "tag": "f"}},
	    {"name": "d", "type": {"name": "double", "tag": "F"}}
	  ]
	}]`

	table := NewHostTable()
	_ = table.RegisterFunc("oc_mix", func(ctx context.Context, call *Call) error {
		v := float64(call.I32(0)) + float64(call.I64(1)) + float64(call.F32(2)) + call.F64(3)
		call.ReturnF64(v)
		return nil
	})
	c := bindOne(t, doc, table)

	if kinds := c.ParamKinds(); len(kinds) != 4 || kinds[0] != I32 || kinds[1] != I64 || kinds[2] != F32 || kinds[3] != F64 {
		t.Fatalf("wrong param kinds: %v", kinds)
	}
	if kinds := c.ResultKinds(); len(kinds) != 1 || kinds[0] != F64 {
		t.Fatalf("wrong result kinds: %v", kinds)
	}

	a := int32(-3)
	stack := []uint64{
		uint64(uint32(a)),
		uint64(int64(10)),
		uint64(math.Float32bits(1.5)),
		math.Float64bits(0.25),
	}
	if err := c.Invoke(context.Background(), newFakeMemory(64), stack); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if got := math.Float64frombits(stack[0]); got != 8.75 {
		t.Errorf("result = %v, want 8.75", got)
	}
}

func TestHostErrorPropagates(t *testing.T) {
	table := NewHostTable()
	hostErr := berrors.InvalidInput(berrors.PhaseHost, "no such surface")
	_ = table.RegisterFunc("oc_write_region", func(ctx context.Context, call *Call) error {
		return hostErr
	})
	c := bindOne(t, writeRegionSpec, table)

	err := c.Invoke(context.Background(), newFakeMemory(1024), []uint64{0, 8})
	if !stderrors.Is(err, hostErr) {
		t.Fatalf("want host error, got %v", err)
	}
}

func TestBindMissingSymbol(t *testing.T) {
	spec := mustParse(t, writeRegionSpec)
	reg := NewRegistry()
	err := reg.Bind(spec, NewHostTable())
	if !stderrors.Is(err, &berrors.Error{Phase: berrors.PhaseBind, Kind: berrors.KindUnknownSymbol}) {
		t.Fatalf("want unknown_symbol, got %v", err)
	}
	if reg.Len() != 0 {
		t.Error("failed bind must not install trampolines")
	}
}

func TestBindMissingLengthProc(t *testing.T) {
	doc := `[{
	  "name": "image_upload",
	  "cname": "oc_image_upload",
	  "ret": {"name": "int", "tag": "i"},
	  "args": [
	    {"name": "rect", "type": {"name": "oc_rect", "tag": "S"}},
	    {"name": "pixels", "type": {"name": "u8*", "tag": "i"},
	     "len": {"proc": "oc_image_upload_length", "args": ["rect"]}}
	  ]
	}]`
	table := NewHostTable()
	_ = table.RegisterFunc("oc_image_upload", func(ctx context.Context, call *Call) error { return nil })

	reg := NewRegistry()
	err := reg.Bind(mustParse(t, doc), table)
	if !stderrors.Is(err, &berrors.Error{Phase: berrors.PhaseBind, Kind: berrors.KindUnknownSymbol}) {
		t.Fatalf("want unknown_symbol for length proc, got %v", err)
	}
}

func TestRegistryOrderAndDuplicates(t *testing.T) {
	doc := `[
	  {"name": "b_fn", "cname": "c_b", "ret": {"tag": "i"}},
	  {"name": "a_fn", "cname": "c_a", "ret": {"tag": "i"}}
	]`
	table := NewHostTable()
	nop := func(ctx context.Context, call *Call) error { call.ReturnI32(0); return nil }
	_ = table.RegisterFunc("c_a", nop)
	_ = table.RegisterFunc("c_b", nop)

	reg := NewRegistry()
	if err := reg.Bind(mustParse(t, doc), table); err != nil {
		t.Fatalf("bind: %v", err)
	}
	names := reg.Names()
	if len(names) != 2 || names[0] != "b_fn" || names[1] != "a_fn" {
		t.Errorf("names not in declaration order: %v", names)
	}

	// Rebinding a spec with an already-registered name fails.
	err := reg.Bind(mustParse(t, `[{"name": "a_fn", "cname": "c_a", "ret": {"tag": "i"}}]`), table)
	if !stderrors.Is(err, &berrors.Error{Phase: berrors.PhaseParse, Kind: berrors.KindDuplicateBinding}) {
		t.Fatalf("want duplicate_binding, got %v", err)
	}
}

func TestInvokeShortStack(t *testing.T) {
	table := NewHostTable()
	_ = table.RegisterFunc("oc_write_region", func(ctx context.Context, call *Call) error { return nil })
	c := bindOne(t, writeRegionSpec, table)

	err := c.Invoke(context.Background(), newFakeMemory(64), []uint64{1})
	if !stderrors.Is(err, &berrors.Error{Phase: berrors.PhaseDispatch, Kind: berrors.KindInvalidInput}) {
		t.Fatalf("want invalid_input, got %v", err)
	}
}

func TestInvokeMissingReturnValue(t *testing.T) {
	table := NewHostTable()
	_ = table.RegisterFunc("oc_write_region", func(ctx context.Context, call *Call) error {
		// Forgets to call ReturnI32.
		return nil
	})
	c := bindOne(t, writeRegionSpec, table)

	err := c.Invoke(context.Background(), newFakeMemory(64), []uint64{0, 0})
	if !stderrors.Is(err, &berrors.Error{Phase: berrors.PhaseDispatch, Kind: berrors.KindInvalidInput}) {
		t.Fatalf("want invalid_input, got %v", err)
	}
}

func TestStructRefFieldOffsetWrap(t *testing.T) {
	mem := newFakeMemory(64)
	ref := StructRef{Mem: mem, Off: math.MaxUint32 - 1}

	if _, err := ref.ReadU32(8); !isOutOfBounds(err) {
		t.Fatalf("read past the address space must fail, got %v", err)
	}
	if err := ref.WriteU32(8, 1); !isOutOfBounds(err) {
		t.Fatalf("write past the address space must fail, got %v", err)
	}
}
