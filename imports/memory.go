package imports

import (
	"encoding/binary"
	"sync"

	"github.com/tetratelabs/wazero/api"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/wasm"
)

// Memory is a handle to a linear memory shared through an import table.
//
// A memory created with NewMemory is materialised lazily: the first engine
// that links it defines the backing memory and every later importer on that
// engine shares it. A memory obtained from an instance export is already
// backed and always resolves to that export.
type Memory struct {
	mu      sync.Mutex
	limits  wasm.Limits
	sources map[any]Source
	fixed   *Source
	mem     api.Memory
	owner   any
}

// NewMemory returns an unmaterialised memory with the given limits in pages.
func NewMemory(limits wasm.Limits) (*Memory, error) {
	if limits.Min > wasm.MaxPages || (limits.HasMax && limits.Max > wasm.MaxPages) {
		return nil, errors.InvalidInput(errors.PhaseHost, "memory limits exceed 65536 pages")
	}
	if limits.HasMax && limits.Max < limits.Min {
		return nil, errors.InvalidInput(errors.PhaseHost, "memory max is below min")
	}
	return &Memory{limits: limits, sources: make(map[any]Source)}, nil
}

// ExportedMemory wraps a memory exported by mod under name.
func ExportedMemory(mod api.Module, name string) *Memory {
	mem := mod.ExportedMemory(name)
	if mem == nil {
		return nil
	}
	def := mem.Definition()
	limits := wasm.Limits{Min: def.Min()}
	limits.Max, limits.HasMax = def.Max()
	return &Memory{
		limits: limits,
		fixed:  &Source{Module: mod, Name: name},
		mem:    mem,
	}
}

// Extern reports the memory type. Once backed, the minimum is the current
// page count.
func (m *Memory) Extern() wasm.Extern {
	return wasm.MemoryExtern(m.Limits())
}

// Limits returns the declared limits, with Min raised to the current size of
// the backing memory when there is one.
func (m *Memory) Limits() wasm.Limits {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.limits
	if m.mem != nil {
		l.Min = m.mem.Size() / wasm.PageSize
	}
	return l
}

// Bind returns the source of the memory for owner, calling create the first
// time owner asks. Engines pass themselves as owner.
func (m *Memory) Bind(owner any, create func() (Source, error)) (Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fixed != nil {
		return *m.fixed, nil
	}
	if src, ok := m.sources[owner]; ok {
		return src, nil
	}
	src, err := create()
	if err != nil {
		return Source{}, err
	}
	mem := src.Module.ExportedMemory(src.Name)
	if mem == nil {
		return Source{}, errors.NotFound(errors.PhaseInstance, "memory export", src.Name)
	}
	m.sources[owner] = src
	m.mem, m.owner = mem, owner
	return src, nil
}

// Release forgets the backing created for owner.
func (m *Memory) Release(owner any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fixed != nil {
		return
	}
	delete(m.sources, owner)
	if m.owner == owner {
		m.mem, m.owner = nil, nil
	}
}

// Materialised reports whether host-side access is available.
func (m *Memory) Materialised() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mem != nil
}

func (m *Memory) view() (api.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mem == nil {
		return nil, errors.New(errors.PhaseHost, errors.KindNotFound).
			Detail("memory is not materialised").Build()
	}
	return m.mem, nil
}

// Read returns a view of length bytes at offset. The slice aliases guest
// memory and is invalid after Grow; copy it to keep it.
func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	mem, err := m.view()
	if err != nil {
		return nil, err
	}
	data, ok := mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseHost, []string{"memory"}, uint64(offset), uint64(length))
	}
	return data, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	mem, err := m.view()
	if err != nil {
		return err
	}
	if !mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseHost, []string{"memory"}, uint64(offset), uint64(len(data)))
	}
	return nil
}

func (m *Memory) ReadU8(offset uint32) (uint8, error) {
	data, err := m.Read(offset, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

func (m *Memory) ReadU16(offset uint32) (uint16, error) {
	data, err := m.Read(offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(data), nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	data, err := m.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	data, err := m.Read(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

func (m *Memory) WriteU8(offset uint32, value uint8) error {
	return m.Write(offset, []byte{value})
}

func (m *Memory) WriteU16(offset uint32, value uint16) error {
	return m.Write(offset, binary.LittleEndian.AppendUint16(nil, value))
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	return m.Write(offset, binary.LittleEndian.AppendUint32(nil, value))
}

func (m *Memory) WriteU64(offset uint32, value uint64) error {
	return m.Write(offset, binary.LittleEndian.AppendUint64(nil, value))
}

// Size returns the size in bytes, zero when not materialised.
func (m *Memory) Size() uint32 {
	mem, err := m.view()
	if err != nil {
		return 0
	}
	return mem.Size()
}

// Pages returns the size in 64 KiB pages.
func (m *Memory) Pages() uint32 {
	return m.Size() / wasm.PageSize
}

// Grow adds delta pages and returns the previous page count. Growing past
// the maximum fails and leaves the memory unchanged.
func (m *Memory) Grow(delta uint32) (uint32, error) {
	mem, err := m.view()
	if err != nil {
		return 0, err
	}
	prev, ok := mem.Grow(delta)
	if !ok {
		return 0, errors.New(errors.PhaseHost, errors.KindOutOfBounds).
			Detail("cannot grow memory by %d pages", delta).Build()
	}
	return prev, nil
}

var _ wasmbridge.GrowableMemory = (*Memory)(nil)
