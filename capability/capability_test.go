package capability

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wasmbind/wasmbind/dispatch"
)

type fakeMemory struct {
	data []byte
}

func (m *fakeMemory) Size() uint32 {
	return uint32(len(m.data))
}

func (m *fakeMemory) Read(offset, length uint32) ([]byte, bool) {
	if uint64(offset)+uint64(length) > uint64(len(m.data)) {
		return nil, false
	}
	return m.data[offset : offset+length], true
}

func (m *fakeMemory) Write(offset uint32, data []byte) bool {
	if uint64(offset)+uint64(len(data)) > uint64(len(m.data)) {
		return false
	}
	copy(m.data[offset:], data)
	return true
}

func putF32(m *fakeMemory, offset uint32, v float32) {
	binary.LittleEndian.PutUint32(m.data[offset:], math.Float32bits(v))
}

func getF32(m *fakeMemory, offset uint32) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(m.data[offset:]))
}

func mustCreate(t *testing.T, table *SurfaceTable, w, h uint32) Handle {
	t.Helper()
	handle, err := table.Create(w, h)
	if err != nil {
		t.Fatalf("Create(%d, %d): %v", w, h, err)
	}
	return handle
}

func TestHandleGenerationInvalidation(t *testing.T) {
	table := NewSurfaceTable()

	h1 := mustCreate(t, table, 8, 8)
	if _, ok := table.Lookup(h1); !ok {
		t.Fatal("fresh handle did not resolve")
	}
	if table.Len() != 1 {
		t.Errorf("Len = %d, want 1", table.Len())
	}

	if !table.Destroy(h1) {
		t.Fatal("destroy of live handle failed")
	}
	if _, ok := table.Lookup(h1); ok {
		t.Error("stale handle resolved after destroy")
	}
	if table.Destroy(h1) {
		t.Error("second destroy of same handle succeeded")
	}

	// The slot is recycled under a new generation; the old handle must keep
	// failing even though the index now points at a live surface.
	h2 := mustCreate(t, table, 4, 4)
	if h2.index() != h1.index() {
		t.Fatalf("expected slot reuse, got index %d then %d", h1.index(), h2.index())
	}
	if h2.generation() == h1.generation() {
		t.Error("recycled slot kept its generation")
	}
	if _, ok := table.Lookup(h1); ok {
		t.Error("stale handle aliases the recycled slot")
	}
	if s, ok := table.Lookup(h2); !ok || s.Width != 4 {
		t.Errorf("new handle lookup = (%v, %v)", s, ok)
	}
}

func TestLookupMalformedHandles(t *testing.T) {
	table := NewSurfaceTable()
	mustCreate(t, table, 1, 1)

	if _, ok := table.Lookup(NilHandle); ok {
		t.Error("nil handle resolved")
	}
	if _, ok := table.Lookup(packHandle(99, 1)); ok {
		t.Error("out-of-range index resolved")
	}
}

func TestClockMonotonic(t *testing.T) {
	c := NewClock()
	t1 := c.Time(ClockMonotonic)
	time.Sleep(time.Millisecond)
	t2 := c.Time(ClockMonotonic)
	if t2 <= t1 {
		t.Errorf("monotonic clock went backwards: %v then %v", t1, t2)
	}
	if t2-t1 < 0.001 {
		t.Errorf("expected at least 1ms elapsed, got %vs", t2-t1)
	}
}

func TestClockDate(t *testing.T) {
	c := NewClock()
	frozen := time.Date(2024, 6, 1, 12, 0, 0, 500_000_000, time.UTC)
	c.now = func() time.Time { return frozen }

	got := c.Time(ClockDate)
	want := float64(frozen.UnixNano()) / 1e9
	if got != want {
		t.Errorf("date clock = %v, want %v", got, want)
	}
}

func TestLogSinkCapture(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))

	sink.Log(LogError, []byte("guest panic imminent"))
	sink.Log(LogWarning, []byte("slow frame"))
	sink.Log(LogInfo, []byte("hello"))
	sink.Log(LogLevel(42), []byte("unknown level"))

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("captured %d entries, want 4", len(entries))
	}
	if entries[0].Level != zap.ErrorLevel || entries[0].Message != "guest panic imminent" {
		t.Errorf("entry 0 = %v %q", entries[0].Level, entries[0].Message)
	}
	if entries[1].Level != zap.WarnLevel {
		t.Errorf("entry 1 level = %v", entries[1].Level)
	}
	// Unknown levels degrade to info rather than dropping the record.
	if entries[3].Level != zap.InfoLevel {
		t.Errorf("entry 3 level = %v", entries[3].Level)
	}
}

func TestUploadRegionRGBA8(t *testing.T) {
	table := NewSurfaceTable()
	s, _ := table.Lookup(mustCreate(t, table, 4, 4))

	region := bytes.Repeat([]byte{0xAA, 0xBB, 0xCC, 0xFF}, 4)
	if err := s.UploadRegionRGBA8(1, 1, 2, 2, region); err != nil {
		t.Fatalf("upload: %v", err)
	}

	// Row 1, pixel at x=1 starts at (1*4+1)*4 = 20.
	px := s.Pixels()[20:24]
	if !bytes.Equal(px, []byte{0xAA, 0xBB, 0xCC, 0xFF}) {
		t.Errorf("pixel (1,1) = % x", px)
	}
	// Pixel (0,0) untouched.
	if !bytes.Equal(s.Pixels()[0:4], []byte{0, 0, 0, 0}) {
		t.Errorf("pixel (0,0) = % x", s.Pixels()[0:4])
	}

	if err := s.UploadRegionRGBA8(3, 3, 2, 2, region); err == nil {
		t.Error("expected error for region outside surface")
	}
	if err := s.UploadRegionRGBA8(0, 0, 2, 2, region[:8]); err == nil {
		t.Error("expected error for short data")
	}
}

func TestCreateOversizedRejected(t *testing.T) {
	table := NewSurfaceTable()

	// 65536 x 65536 RGBA8 is 2^34 bytes; the allocation size must not wrap
	// into a zero-length buffer behind a live handle.
	handle, err := table.Create(65536, 65536)
	if err == nil {
		t.Fatal("oversized surface allocation succeeded")
	}
	if handle != NilHandle {
		t.Errorf("handle = %#x, want NilHandle", uint64(handle))
	}
	if table.Len() != 0 {
		t.Errorf("Len = %d, want 0", table.Len())
	}
}

func TestImageUploadLengthOverflow(t *testing.T) {
	mem := &fakeMemory{data: make([]byte, 64)}
	putF32(mem, 8, 65536)
	putF32(mem, 12, 65536)

	if _, err := imageUploadRegionRGBA8Length(context.Background(), mem, []uint64{0}); err == nil {
		t.Fatal("overflowing rect produced a byte length")
	}
}

func bindCapabilities(t *testing.T, host *Host) *dispatch.Registry {
	t.Helper()
	table, err := host.Table()
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	spec, err := Spec()
	if err != nil {
		t.Fatalf("Spec: %v", err)
	}
	reg := dispatch.NewRegistry()
	if err := reg.Bind(spec, table); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	return reg
}

func TestSpecBindsCompletely(t *testing.T) {
	reg := bindCapabilities(t, NewHost(nil))
	if reg.Len() != 6 {
		t.Errorf("bound %d bindings, want 6", reg.Len())
	}
}

func TestImageUploadViaDispatch(t *testing.T) {
	host := NewHost(nil)
	reg := bindCapabilities(t, host)
	c := reg.Lookup("image_upload_region_rgba8")
	if c == nil {
		t.Fatal("binding not found")
	}

	handle := mustCreate(t, host.Surfaces, 2, 2)
	mem := &fakeMemory{data: make([]byte, 4096)}

	// rect {x:0, y:0, w:2, h:2} at 32, 16 pixel bytes at 64.
	putF32(mem, 32+8, 2)
	putF32(mem, 32+12, 2)
	for i := 0; i < 16; i++ {
		mem.data[64+i] = byte(i + 1)
	}

	stack := []uint64{uint64(handle), 32, 64}
	if err := c.Invoke(context.Background(), mem, stack); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	s, _ := host.Surfaces.Lookup(handle)
	if !bytes.Equal(s.Pixels(), mem.data[64:80]) {
		t.Errorf("surface pixels = % x", s.Pixels())
	}
	if int32(stack[0]) != 0 {
		t.Errorf("result = %d, want 0", int32(stack[0]))
	}
}

func TestSurfaceGetSizeViaDispatch(t *testing.T) {
	host := NewHost(nil)
	reg := bindCapabilities(t, host)
	c := reg.Lookup("surface_get_size")

	handle := mustCreate(t, host.Surfaces, 800, 600)
	mem := &fakeMemory{data: make([]byte, 256)}

	// Struct return: prepended return pointer slot, then the handle.
	if err := c.Invoke(context.Background(), mem, []uint64{16, uint64(handle)}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if w := getF32(mem, 16); w != 800 {
		t.Errorf("width = %v", w)
	}
	if h := getF32(mem, 20); h != 600 {
		t.Errorf("height = %v", h)
	}

	// A stale handle fails the call without touching the return slot.
	host.Surfaces.Destroy(handle)
	if err := c.Invoke(context.Background(), mem, []uint64{16, uint64(handle)}); err == nil {
		t.Error("expected error for stale handle")
	}
}

func TestBridgeLogViaDispatch(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	host := NewHost(zap.New(core))
	reg := bindCapabilities(t, host)
	c := reg.Lookup("bridge_log")

	mem := &fakeMemory{data: make([]byte, 128)}
	copy(mem.data[10:], "frame ready")

	stack := []uint64{uint64(int32(LogInfo)), 10, 11}
	if err := c.Invoke(context.Background(), mem, stack); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	entries := logs.All()
	if len(entries) != 1 || entries[0].Message != "frame ready" {
		t.Fatalf("captured = %+v", entries)
	}
}

func TestClockTimeViaDispatch(t *testing.T) {
	host := NewHost(nil)
	frozen := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	host.Clock.now = func() time.Time { return frozen }
	reg := bindCapabilities(t, host)
	c := reg.Lookup("clock_time")

	mem := &fakeMemory{data: make([]byte, 16)}
	stack := []uint64{uint64(uint32(ClockDate))}
	if err := c.Invoke(context.Background(), mem, stack); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	got := math.Float64frombits(stack[0])
	if want := float64(frozen.Unix()); got != want {
		t.Errorf("date = %v, want %v", got, want)
	}
}
