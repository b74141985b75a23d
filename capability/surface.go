package capability

import (
	"math"
	"sync"

	"github.com/wasmbind/wasmbind/errors"
)

// Handle identifies a surface across the guest boundary. The high 32 bits
// are the slot index, the low 32 bits the slot's generation at creation
// time; a recycled slot bumps its generation, so stale handles stop
// resolving instead of aliasing the new occupant.
type Handle uint64

// NilHandle never resolves.
const NilHandle Handle = 0

func packHandle(index, generation uint32) Handle {
	return Handle(uint64(index)<<32 | uint64(generation))
}

func (h Handle) index() uint32      { return uint32(uint64(h) >> 32) }
func (h Handle) generation() uint32 { return uint32(uint64(h) & 0xffffffff) }

// Surface is a host-owned RGBA8 pixel target.
type Surface struct {
	Width  uint32
	Height uint32
	pixels []byte
}

// Pixels returns the backing RGBA8 buffer, row-major, 4 bytes per pixel.
func (s *Surface) Pixels() []byte {
	return s.pixels
}

// UploadRegionRGBA8 copies data into the rectangle (x, y, w, h). The data
// length must be exactly w*h*4 and the rectangle must lie inside the
// surface.
func (s *Surface) UploadRegionRGBA8(x, y, w, h uint32, data []byte) error {
	if uint64(x)+uint64(w) > uint64(s.Width) || uint64(y)+uint64(h) > uint64(s.Height) {
		return errors.InvalidInput(errors.PhaseHost, "upload region exceeds surface bounds")
	}
	if uint64(len(data)) != uint64(w)*uint64(h)*4 {
		return errors.InvalidInput(errors.PhaseHost, "upload data does not match region size")
	}
	for row := uint32(0); row < h; row++ {
		dst := ((y+row)*s.Width + x) * 4
		src := row * w * 4
		copy(s.pixels[dst:dst+w*4], data[src:src+w*4])
	}
	return nil
}

type surfaceSlot struct {
	generation uint32
	surface    *Surface
}

// SurfaceTable allocates surfaces behind generation-tagged handles. Slots
// are recycled through a free list; destroying a surface bumps its slot's
// generation so outstanding handles go stale.
type SurfaceTable struct {
	mu       sync.Mutex
	slots    []surfaceSlot
	freeList []uint32
}

// NewSurfaceTable creates an empty table.
func NewSurfaceTable() *SurfaceTable {
	return &SurfaceTable{}
}

// Create allocates a surface of the given pixel dimensions. Dimensions
// whose RGBA8 buffer would exceed the 32-bit address space are rejected.
func (t *SurfaceTable) Create(width, height uint32) (Handle, error) {
	size := uint64(width) * uint64(height) * 4
	if size > math.MaxUint32 {
		return NilHandle, errors.InvalidInput(errors.PhaseHost,
			"surface dimensions overflow the pixel buffer size")
	}
	s := &Surface{
		Width:  width,
		Height: height,
		pixels: make([]byte, size),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.freeList); n > 0 {
		idx := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.slots[idx].surface = s
		return packHandle(idx, t.slots[idx].generation), nil
	}

	t.slots = append(t.slots, surfaceSlot{generation: 1, surface: s})
	return packHandle(uint32(len(t.slots)-1), 1), nil
}

// Lookup resolves a handle. Stale and malformed handles return false.
func (t *SurfaceTable) Lookup(h Handle) (*Surface, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := h.index()
	if int(idx) >= len(t.slots) {
		return nil, false
	}
	slot := &t.slots[idx]
	if slot.generation != h.generation() || slot.surface == nil {
		return nil, false
	}
	return slot.surface, true
}

// Destroy releases the surface behind h. It reports whether the handle was
// live; destroying twice is not an error, the second call is a no-op.
func (t *SurfaceTable) Destroy(h Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := h.index()
	if int(idx) >= len(t.slots) {
		return false
	}
	slot := &t.slots[idx]
	if slot.generation != h.generation() || slot.surface == nil {
		return false
	}

	slot.surface = nil
	slot.generation++
	t.freeList = append(t.freeList, idx)
	return true
}

// Len returns the number of live surfaces.
func (t *SurfaceTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots) - len(t.freeList)
}
