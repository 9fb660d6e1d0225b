// Package insts provides instruction definitions and decoding for the
// ARM64 subset understood by the in-order pipeline model.
//
// Supported encodings:
//   - Data Processing (Immediate): ADD, SUB, ADDS, SUBS (CMP)
//   - Data Processing (Register): ADD, SUB, AND, ORR, EOR
//   - Branches: B, BL, B.cond, RET
//   - Load/Store: LDR, STR (64-bit, unsigned offset)
//   - System: NOP, SVC (treated as halt by the execute stage)
package insts

// Op identifies a decoded operation.
type Op uint16

// Opcodes.
const (
	OpUnknown Op = iota
	OpADD
	OpSUB
	OpAND
	OpORR
	OpEOR
	OpB
	OpBL
	OpBCond
	OpRET
	OpLDR
	OpSTR
	OpNOP
	OpSVC
)

var opNames = map[Op]string{
	OpUnknown: "UNKNOWN",
	OpADD:     "ADD",
	OpSUB:     "SUB",
	OpAND:     "AND",
	OpORR:     "ORR",
	OpEOR:     "EOR",
	OpB:       "B",
	OpBL:      "BL",
	OpBCond:   "B.cond",
	OpRET:     "RET",
	OpLDR:     "LDR",
	OpSTR:     "STR",
	OpNOP:     "NOP",
	OpSVC:     "SVC",
}

// String returns the mnemonic for the opcode.
func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// Format identifies an encoding format.
type Format uint8

// Encoding formats.
const (
	FormatUnknown Format = iota
	FormatDPImm
	FormatDPReg
	FormatBranch
	FormatBranchCond
	FormatBranchReg
	FormatLoadStore
	FormatSystem
)

// Cond is an ARM64 condition code.
type Cond uint8

// Condition codes (NZCV predicates).
const (
	CondEQ Cond = 0b0000 // Z == 1
	CondNE Cond = 0b0001 // Z == 0
	CondCS Cond = 0b0010 // C == 1
	CondCC Cond = 0b0011 // C == 0
	CondMI Cond = 0b0100 // N == 1
	CondPL Cond = 0b0101 // N == 0
	CondVS Cond = 0b0110 // V == 1
	CondVC Cond = 0b0111 // V == 0
	CondHI Cond = 0b1000 // C == 1 && Z == 0
	CondLS Cond = 0b1001 // C == 0 || Z == 1
	CondGE Cond = 0b1010 // N == V
	CondLT Cond = 0b1011 // N != V
	CondGT Cond = 0b1100 // Z == 0 && N == V
	CondLE Cond = 0b1101 // Z == 1 || N != V
	CondAL Cond = 0b1110 // always
	CondNV Cond = 0b1111 // always (reserved encoding)
)

// Instruction is a decoded instruction.
type Instruction struct {
	Op     Op
	Format Format

	// Is64Bit selects X registers when true, W registers otherwise.
	Is64Bit bool
	// SetFlags is true for flag-setting variants (S suffix).
	SetFlags bool

	// Register operands.
	Rd uint8
	Rn uint8
	Rm uint8

	// Imm holds the immediate operand (zero-extended).
	Imm uint64
	// Shift is the left-shift applied to Imm (0 or 12).
	Shift uint8

	// BranchOffset is the signed PC-relative offset in bytes.
	BranchOffset int64
	// Cond applies to OpBCond only.
	Cond Cond
}

// IsBranch reports whether the instruction can redirect the PC.
func (i *Instruction) IsBranch() bool {
	switch i.Op {
	case OpB, OpBL, OpBCond, OpRET:
		return true
	}
	return false
}

// IsMemory reports whether the instruction accesses data memory.
func (i *Instruction) IsMemory() bool {
	return i.Op == OpLDR || i.Op == OpSTR
}
