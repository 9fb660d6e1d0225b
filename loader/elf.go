// Package loader loads ARM64 ELF binaries into simulator memory.
package loader

import (
	"debug/elf"
	"fmt"
	"io"

	"github.com/sarchlab/minorsim/emu"
)

// DefaultStackTop is the initial stack pointer handed to loaded programs.
const DefaultStackTop = 0x7ffffffff000

// Segment is one loadable region of a program image.
type Segment struct {
	// VirtAddr is the virtual load address.
	VirtAddr uint64
	// Data is the file-backed content.
	Data []byte
	// MemSize is the in-memory size; the tail beyond len(Data) is BSS.
	MemSize uint64
}

// Program is a parsed binary ready to be installed into memory.
type Program struct {
	// EntryPoint is where fetch should start.
	EntryPoint uint64
	// Segments are the PT_LOAD regions.
	Segments []Segment
	// InitialSP is the initial stack pointer.
	InitialSP uint64
}

// Load parses an ARM64 ELF executable.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("not a 64-bit ELF file")
	}
	if f.Machine != elf.EM_AARCH64 {
		return nil, fmt.Errorf("not an ARM64 ELF file (machine type: %v)", f.Machine)
	}

	prog := &Program{
		EntryPoint: f.Entry,
		InitialSP:  DefaultStackTop,
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, want %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: phdr.Vaddr,
			Data:     data,
			MemSize:  phdr.Memsz,
		})
	}

	return prog, nil
}

// Install copies all segments into memory, zero-filling BSS tails.
func (p *Program) Install(memory *emu.Memory) {
	for _, seg := range p.Segments {
		memory.WriteBytes(seg.VirtAddr, seg.Data)
		for i := uint64(len(seg.Data)); i < seg.MemSize; i++ {
			memory.Write8(seg.VirtAddr+i, 0)
		}
	}
}
