package insts

// Decoder decodes ARM64 machine code words into Instruction values.
type Decoder struct{}

// NewDecoder creates a new decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes one 32-bit instruction word. Unrecognized encodings yield
// an Instruction with Op == OpUnknown.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{Op: OpUnknown, Format: FormatUnknown}

	switch {
	case word == 0xD503201F:
		inst.Op = OpNOP
		inst.Format = FormatSystem
	case (word >> 21) == 0b11010100000 && word&0x1F == 0b00001:
		// SVC: 11010100 000 imm16 000 01
		inst.Op = OpSVC
		inst.Format = FormatSystem
		inst.Imm = uint64((word >> 5) & 0xFFFF)
	case isDataProcessingImm(word):
		decodeDataProcessingImm(word, inst)
	case isDataProcessingReg(word):
		decodeDataProcessingReg(word, inst)
	case isBranchImm(word):
		decodeBranchImm(word, inst)
	case isBranchCond(word):
		decodeBranchCond(word, inst)
	case isRet(word):
		inst.Op = OpRET
		inst.Format = FormatBranchReg
		inst.Rn = uint8((word >> 5) & 0x1F)
	case isLoadStore(word):
		decodeLoadStore(word, inst)
	}

	return inst
}

// Add/Sub immediate: bits [28:23] == 100010.
func isDataProcessingImm(word uint32) bool {
	return (word>>23)&0x3F == 0b100010
}

// sf | op | S | 100010 | sh | imm12 | Rn | Rd
func decodeDataProcessingImm(word uint32, inst *Instruction) {
	inst.Format = FormatDPImm
	inst.Is64Bit = (word>>31)&0x1 == 1
	inst.SetFlags = (word>>29)&0x1 == 1
	inst.Imm = uint64((word >> 10) & 0xFFF)
	inst.Rn = uint8((word >> 5) & 0x1F)
	inst.Rd = uint8(word & 0x1F)

	if (word>>22)&0x1 == 1 {
		inst.Shift = 12
	}

	if (word>>30)&0x1 == 0 {
		inst.Op = OpADD
	} else {
		inst.Op = OpSUB
	}
}

// Add/Sub register: bits [28:24] == 01011; logical register: 01010.
func isDataProcessingReg(word uint32) bool {
	op := (word >> 24) & 0x1F
	return op == 0b01011 || op == 0b01010
}

// sf | op | S | 0101x | shift | Rm | imm6 | Rn | Rd
func decodeDataProcessingReg(word uint32, inst *Instruction) {
	inst.Format = FormatDPReg
	inst.Is64Bit = (word>>31)&0x1 == 1
	inst.Rm = uint8((word >> 16) & 0x1F)
	inst.Rn = uint8((word >> 5) & 0x1F)
	inst.Rd = uint8(word & 0x1F)

	if (word>>24)&0x1F == 0b01011 {
		inst.SetFlags = (word>>29)&0x1 == 1
		if (word>>30)&0x1 == 0 {
			inst.Op = OpADD
		} else {
			inst.Op = OpSUB
		}
		return
	}

	switch (word >> 29) & 0x3 {
	case 0b00:
		inst.Op = OpAND
	case 0b01:
		inst.Op = OpORR
	case 0b10:
		inst.Op = OpEOR
	case 0b11:
		inst.Op = OpAND
		inst.SetFlags = true // ANDS
	}
}

// B: bits [31:26] == 000101; BL: 100101.
func isBranchImm(word uint32) bool {
	op := (word >> 26) & 0x3F
	return op == 0b000101 || op == 0b100101
}

// op | imm26 (word offset, sign extended)
func decodeBranchImm(word uint32, inst *Instruction) {
	inst.Format = FormatBranch

	imm26 := word & 0x3FFFFFF
	offset := int64(imm26)
	if (imm26 >> 25) == 1 {
		offset |= ^int64(0x3FFFFFF)
	}
	inst.BranchOffset = offset * 4

	if (word>>31)&0x1 == 0 {
		inst.Op = OpB
	} else {
		inst.Op = OpBL
	}
}

// B.cond: bits [31:25] == 0101010, bit 4 == 0.
func isBranchCond(word uint32) bool {
	return (word>>25)&0x7F == 0b0101010 && (word>>4)&0x1 == 0
}

// 0101010 0 | imm19 | 0 | cond
func decodeBranchCond(word uint32, inst *Instruction) {
	inst.Format = FormatBranchCond
	inst.Op = OpBCond
	inst.Cond = Cond(word & 0xF)

	imm19 := (word >> 5) & 0x7FFFF
	offset := int64(imm19)
	if (imm19 >> 18) == 1 {
		offset |= ^int64(0x7FFFF)
	}
	inst.BranchOffset = offset * 4
}

// RET: 1101011 0 0 10 11111 0000 0 0 Rn 00000
func isRet(word uint32) bool {
	return (word>>25)&0x7F == 0b1101011 &&
		(word>>21)&0x3 == 0b10 &&
		(word>>10)&0x3F == 0 &&
		word&0x1F == 0
}

// LDR/STR Xt, [Xn, #imm]: bits [31:22] == 11 111 0 01 0x
func isLoadStore(word uint32) bool {
	return (word>>23)&0x1FF == 0b111110010
}

// size=11 | 111 0 01 | opc | imm12 | Rn | Rt
func decodeLoadStore(word uint32, inst *Instruction) {
	inst.Format = FormatLoadStore
	inst.Is64Bit = true
	inst.Rn = uint8((word >> 5) & 0x1F)
	inst.Rd = uint8(word & 0x1F)
	// Unsigned offset is scaled by the 8-byte access size.
	inst.Imm = uint64((word>>10)&0xFFF) * 8

	if (word>>22)&0x1 == 1 {
		inst.Op = OpLDR
	} else {
		inst.Op = OpSTR
	}
}
