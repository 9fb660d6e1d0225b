package insts_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/minorsim/insts"
)

func TestInsts(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Insts Suite")
}

var _ = Describe("Decoder", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	Describe("system instructions", func() {
		It("should decode NOP", func() {
			inst := decoder.Decode(0xD503201F)
			Expect(inst.Op).To(Equal(insts.OpNOP))
			Expect(inst.Format).To(Equal(insts.FormatSystem))
		})

		It("should decode SVC with its immediate", func() {
			inst := decoder.Decode(0xD4000001) // SVC #0
			Expect(inst.Op).To(Equal(insts.OpSVC))
			Expect(inst.Imm).To(BeZero())

			inst = decoder.Decode(0xD4000021) // SVC #1
			Expect(inst.Op).To(Equal(insts.OpSVC))
			Expect(inst.Imm).To(Equal(uint64(1)))
		})
	})

	Describe("data processing immediate", func() {
		It("should decode ADD Xd, Xn, #imm", func() {
			inst := decoder.Decode(0x91001420) // ADD X0, X1, #5
			Expect(inst.Op).To(Equal(insts.OpADD))
			Expect(inst.Format).To(Equal(insts.FormatDPImm))
			Expect(inst.Is64Bit).To(BeTrue())
			Expect(inst.SetFlags).To(BeFalse())
			Expect(inst.Rd).To(Equal(uint8(0)))
			Expect(inst.Rn).To(Equal(uint8(1)))
			Expect(inst.Imm).To(Equal(uint64(5)))
			Expect(inst.Shift).To(BeZero())
		})

		It("should decode the LSL #12 form", func() {
			inst := decoder.Decode(0x91401420) // ADD X0, X1, #5, LSL #12
			Expect(inst.Op).To(Equal(insts.OpADD))
			Expect(inst.Shift).To(Equal(uint8(12)))
		})

		It("should decode SUBS with Rd=31 (CMP alias)", func() {
			inst := decoder.Decode(0xF100041F) // CMP X0, #1
			Expect(inst.Op).To(Equal(insts.OpSUB))
			Expect(inst.SetFlags).To(BeTrue())
			Expect(inst.Rd).To(Equal(uint8(31)))
			Expect(inst.Imm).To(Equal(uint64(1)))
		})
	})

	Describe("data processing register", func() {
		It("should decode ADD Xd, Xn, Xm", func() {
			inst := decoder.Decode(0x8B010002) // ADD X2, X0, X1
			Expect(inst.Op).To(Equal(insts.OpADD))
			Expect(inst.Format).To(Equal(insts.FormatDPReg))
			Expect(inst.Rd).To(Equal(uint8(2)))
			Expect(inst.Rn).To(Equal(uint8(0)))
			Expect(inst.Rm).To(Equal(uint8(1)))
		})

		It("should decode SUBS Xd, Xn, Xm", func() {
			inst := decoder.Decode(0xEB01001F) // CMP X0, X1
			Expect(inst.Op).To(Equal(insts.OpSUB))
			Expect(inst.SetFlags).To(BeTrue())
		})

		It("should decode the logical operations", func() {
			Expect(decoder.Decode(0x8A010002).Op).To(Equal(insts.OpAND))
			Expect(decoder.Decode(0xAA010002).Op).To(Equal(insts.OpORR))
			Expect(decoder.Decode(0xCA010002).Op).To(Equal(insts.OpEOR))

			ands := decoder.Decode(0xEA010002)
			Expect(ands.Op).To(Equal(insts.OpAND))
			Expect(ands.SetFlags).To(BeTrue())
		})
	})

	Describe("branches", func() {
		It("should decode B with a positive offset", func() {
			inst := decoder.Decode(0x14000002) // B +8
			Expect(inst.Op).To(Equal(insts.OpB))
			Expect(inst.BranchOffset).To(Equal(int64(8)))
			Expect(inst.IsBranch()).To(BeTrue())
		})

		It("should sign-extend a negative B offset", func() {
			inst := decoder.Decode(0x17FFFFFF) // B -4
			Expect(inst.Op).To(Equal(insts.OpB))
			Expect(inst.BranchOffset).To(Equal(int64(-4)))
		})

		It("should decode BL", func() {
			inst := decoder.Decode(0x94000004) // BL +16
			Expect(inst.Op).To(Equal(insts.OpBL))
			Expect(inst.BranchOffset).To(Equal(int64(16)))
		})

		It("should decode B.cond with its condition", func() {
			inst := decoder.Decode(0x54000040) // B.EQ +8
			Expect(inst.Op).To(Equal(insts.OpBCond))
			Expect(inst.Cond).To(Equal(insts.CondEQ))
			Expect(inst.BranchOffset).To(Equal(int64(8)))

			inst = decoder.Decode(0x54FFFFE1) // B.NE -4
			Expect(inst.Cond).To(Equal(insts.CondNE))
			Expect(inst.BranchOffset).To(Equal(int64(-4)))
		})

		It("should decode RET with its register", func() {
			inst := decoder.Decode(0xD65F03C0) // RET (X30)
			Expect(inst.Op).To(Equal(insts.OpRET))
			Expect(inst.Rn).To(Equal(uint8(30)))
		})
	})

	Describe("loads and stores", func() {
		It("should decode LDR with a scaled offset", func() {
			inst := decoder.Decode(0xF9400420) // LDR X0, [X1, #8]
			Expect(inst.Op).To(Equal(insts.OpLDR))
			Expect(inst.Format).To(Equal(insts.FormatLoadStore))
			Expect(inst.Rd).To(Equal(uint8(0)))
			Expect(inst.Rn).To(Equal(uint8(1)))
			Expect(inst.Imm).To(Equal(uint64(8)))
			Expect(inst.IsMemory()).To(BeTrue())
		})

		It("should decode STR", func() {
			inst := decoder.Decode(0xF9000020) // STR X0, [X1]
			Expect(inst.Op).To(Equal(insts.OpSTR))
			Expect(inst.Imm).To(BeZero())
		})
	})

	Describe("unknown encodings", func() {
		It("should decode unrecognized words as unknown", func() {
			Expect(decoder.Decode(0x00000000).Op).To(Equal(insts.OpUnknown))
			Expect(decoder.Decode(0xFFFFFFFF).Op).To(Equal(insts.OpUnknown))
		})
	})
})

var _ = Describe("Op", func() {
	It("should print mnemonics", func() {
		Expect(insts.OpADD.String()).To(Equal("ADD"))
		Expect(insts.OpBCond.String()).To(Equal("B.cond"))
		Expect(insts.Op(9999).String()).To(Equal("UNKNOWN"))
	})
})
