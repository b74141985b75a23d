package wasmbind

// Memory is a per-call view over guest linear memory. Implementations must
// bound-check every access against the current memory size; the view is only
// valid for the duration of the host call that received it.
type Memory interface {
	// Size returns the current size of the linear memory in bytes.
	Size() uint32
	// Read returns a slice over [offset, offset+length). The slice aliases
	// guest memory and must not be retained past the current call.
	Read(offset, length uint32) ([]byte, bool)
	// Write copies data into memory at offset.
	Write(offset uint32, data []byte) bool
}

// MemoryReader reads fixed-width little-endian scalars from guest memory.
// Optional: implemented by views that can decode without slicing.
type MemoryReader interface {
	ReadU32(offset uint32) (uint32, bool)
	ReadU64(offset uint32) (uint64, bool)
}
