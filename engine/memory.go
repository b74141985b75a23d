package engine

import (
	"github.com/tetratelabs/wazero/api"
)

// guestMemory adapts wazero's api.Memory to the bounds-checked view host
// functions see. A nil underlying memory reports size zero and fails every
// access, so a guest without a memory section cannot pass pointers.
type guestMemory struct {
	mem api.Memory
}

func (g *guestMemory) Size() uint32 {
	if g.mem == nil {
		return 0
	}
	return g.mem.Size()
}

func (g *guestMemory) Read(offset, length uint32) ([]byte, bool) {
	if g.mem == nil {
		return nil, false
	}
	return g.mem.Read(offset, length)
}

func (g *guestMemory) Write(offset uint32, data []byte) bool {
	if g.mem == nil {
		return false
	}
	return g.mem.Write(offset, data)
}

func (g *guestMemory) ReadU32(offset uint32) (uint32, bool) {
	if g.mem == nil {
		return 0, false
	}
	return g.mem.ReadUint32Le(offset)
}

func (g *guestMemory) ReadU64(offset uint32) (uint64, bool) {
	if g.mem == nil {
		return 0, false
	}
	return g.mem.ReadUint64Le(offset)
}
