// Package emu provides the architectural state (registers and memory) that
// the timing model executes against.
package emu

// RegFile holds the ARM64 general-purpose register state.
// Register 31 reads as zero (XZR) through ReadReg/WriteReg.
type RegFile struct {
	// X holds X0-X30.
	X [31]uint64
	// SP is the stack pointer.
	SP uint64
	// PC is the architectural program counter.
	PC uint64
	// PSTATE holds the condition flags.
	PSTATE PSTATE
}

// PSTATE holds the NZCV condition flags.
type PSTATE struct {
	N bool // negative
	Z bool // zero
	C bool // carry
	V bool // overflow
}

// ReadReg reads a general-purpose register. Register 31 is XZR and reads 0.
func (r *RegFile) ReadReg(reg uint8) uint64 {
	if reg == 31 {
		return 0
	}
	return r.X[reg]
}

// WriteReg writes a general-purpose register. Writes to register 31 are
// discarded (XZR).
func (r *RegFile) WriteReg(reg uint8, value uint64) {
	if reg == 31 {
		return
	}
	r.X[reg] = value
}

// ReadRegOrSP reads a register, treating 31 as SP.
func (r *RegFile) ReadRegOrSP(reg uint8) uint64 {
	if reg == 31 {
		return r.SP
	}
	return r.X[reg]
}

// WriteRegOrSP writes a register, treating 31 as SP.
func (r *RegFile) WriteRegOrSP(reg uint8, value uint64) {
	if reg == 31 {
		r.SP = value
		return
	}
	r.X[reg] = value
}
