package wasmbridge

// Memory represents WASM linear memory
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of WASM linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// GrowableMemory is linear memory that can be resized in whole pages.
// Memory only grows; existing contents are preserved.
type GrowableMemory interface {
	Memory
	MemorySizer
	// Pages returns the current size in 64 KiB pages.
	Pages() uint32
	// Grow adds delta pages and returns the previous page count.
	Grow(delta uint32) (uint32, error)
}
