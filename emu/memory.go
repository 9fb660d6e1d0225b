package emu

import "encoding/binary"

// pageSize is the granularity of sparse memory allocation.
const pageSize = 4096

// Memory is a sparse, page-granular byte-addressable memory.
// Unwritten locations read as zero.
type Memory struct {
	pages map[uint64][]byte
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{pages: make(map[uint64][]byte)}
}

func (m *Memory) page(addr uint64, alloc bool) []byte {
	base := addr &^ uint64(pageSize-1)
	p, ok := m.pages[base]
	if !ok && alloc {
		p = make([]byte, pageSize)
		m.pages[base] = p
	}
	return p
}

// Read8 reads one byte.
func (m *Memory) Read8(addr uint64) uint8 {
	p := m.page(addr, false)
	if p == nil {
		return 0
	}
	return p[addr%pageSize]
}

// Write8 writes one byte.
func (m *Memory) Write8(addr uint64, value uint8) {
	m.page(addr, true)[addr%pageSize] = value
}

// Read32 reads a little-endian 32-bit word.
func (m *Memory) Read32(addr uint64) uint32 {
	var buf [4]byte
	m.readBytes(addr, buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

// Write32 writes a little-endian 32-bit word.
func (m *Memory) Write32(addr uint64, value uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	m.writeBytes(addr, buf[:])
}

// Read64 reads a little-endian 64-bit word.
func (m *Memory) Read64(addr uint64) uint64 {
	var buf [8]byte
	m.readBytes(addr, buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}

// Write64 writes a little-endian 64-bit word.
func (m *Memory) Write64(addr uint64, value uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	m.writeBytes(addr, buf[:])
}

// ReadBytes reads size bytes starting at addr.
func (m *Memory) ReadBytes(addr uint64, size int) []byte {
	buf := make([]byte, size)
	m.readBytes(addr, buf)
	return buf
}

// WriteBytes writes data starting at addr.
func (m *Memory) WriteBytes(addr uint64, data []byte) {
	m.writeBytes(addr, data)
}

func (m *Memory) readBytes(addr uint64, buf []byte) {
	for i := range buf {
		buf[i] = m.Read8(addr + uint64(i))
	}
}

func (m *Memory) writeBytes(addr uint64, data []byte) {
	for i, b := range data {
		m.Write8(addr+uint64(i), b)
	}
}
