// Package emu provides functional RISC-V emulation: physical memory, the
// architectural register and CSR files, the execute function shared by the
// timing backends, and a reference emulator.
package emu

const (
	pageShift = 12
	pageSize  = 1 << pageShift
	pageMask  = pageSize - 1
)

// Memory is a sparse, little-endian physical memory. Pages are allocated on
// first write; reads of untouched memory return zero.
type Memory struct {
	pages map[uint64]*[pageSize]byte
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{pages: make(map[uint64]*[pageSize]byte)}
}

func (m *Memory) page(addr uint64, alloc bool) *[pageSize]byte {
	p := m.pages[addr>>pageShift]
	if p == nil && alloc {
		p = new([pageSize]byte)
		m.pages[addr>>pageShift] = p
	}

	return p
}

// Read8 reads one byte.
func (m *Memory) Read8(addr uint64) uint8 {
	p := m.page(addr, false)
	if p == nil {
		return 0
	}

	return p[addr&pageMask]
}

// Write8 writes one byte.
func (m *Memory) Write8(addr uint64, value uint8) {
	m.page(addr, true)[addr&pageMask] = value
}

// Read returns size bytes starting at addr as a little-endian value.
// size must be 1, 2, 4 or 8.
func (m *Memory) Read(addr uint64, size int) uint64 {
	var value uint64
	for i := 0; i < size; i++ {
		value |= uint64(m.Read8(addr+uint64(i))) << (8 * i)
	}

	return value
}

// Write stores the low size bytes of value at addr.
func (m *Memory) Write(addr uint64, size int, value uint64) {
	for i := 0; i < size; i++ {
		m.Write8(addr+uint64(i), uint8(value>>(8*i)))
	}
}

// Read16 reads a halfword.
func (m *Memory) Read16(addr uint64) uint16 { return uint16(m.Read(addr, 2)) }

// Read32 reads a word.
func (m *Memory) Read32(addr uint64) uint32 { return uint32(m.Read(addr, 4)) }

// Read64 reads a doubleword.
func (m *Memory) Read64(addr uint64) uint64 { return m.Read(addr, 8) }

// Write16 writes a halfword.
func (m *Memory) Write16(addr uint64, value uint16) { m.Write(addr, 2, uint64(value)) }

// Write32 writes a word.
func (m *Memory) Write32(addr uint64, value uint32) { m.Write(addr, 4, uint64(value)) }

// Write64 writes a doubleword.
func (m *Memory) Write64(addr uint64, value uint64) { m.Write(addr, 8, value) }

// ReadBytes copies n bytes starting at addr.
func (m *Memory) ReadBytes(addr uint64, n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = m.Read8(addr + uint64(i))
	}

	return buf
}

// WriteBytes copies data into memory starting at addr.
func (m *Memory) WriteBytes(addr uint64, data []byte) {
	for i, b := range data {
		m.Write8(addr+uint64(i), b)
	}
}

// LoadProgram copies a program image to addr.
func (m *Memory) LoadProgram(addr uint64, program []byte) {
	m.WriteBytes(addr, program)
}

// LoadWords writes a sequence of instruction words starting at addr.
func (m *Memory) LoadWords(addr uint64, words []uint32) {
	for i, w := range words {
		m.Write32(addr+uint64(4*i), w)
	}
}
