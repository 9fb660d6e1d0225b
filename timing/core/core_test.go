package core_test

import (
	"encoding/binary"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/minorsim/loader"
	"github.com/sarchlab/minorsim/timing/core"
	"github.com/sarchlab/minorsim/timing/pipeline"
)

func TestCore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Core Suite")
}

const (
	nop = 0xD503201F
	svc = 0xD4000001
)

// addImm encodes ADD Xd, Xn, #imm.
func addImm(rd, rn uint8, imm uint64) uint32 {
	return 0x91000000 | uint32(imm)<<10 | uint32(rn)<<5 | uint32(rd)
}

// program packs instruction words into a single-segment load image.
func program(entry uint64, words ...uint32) *loader.Program {
	data := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(data[i*4:], w)
	}
	return &loader.Program{
		EntryPoint: entry,
		InitialSP:  loader.DefaultStackTop,
		Segments: []loader.Segment{
			{VirtAddr: entry, Data: data, MemSize: uint64(len(data))},
		},
	}
}

var _ = Describe("Core", func() {
	var c *core.Core

	BeforeEach(func() {
		var err error
		c, err = core.NewCore(pipeline.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())
	})

	It("should surface pipeline construction errors", func() {
		config := pipeline.DefaultConfig()
		config.ExecuteBranchDelay = 0
		_, err := core.NewCore(config)
		Expect(err).To(HaveOccurred())
	})

	It("should install a program and point fetch at its entry", func() {
		c.LoadProgram(program(0x4000, addImm(0, 1, 5), svc))

		Expect(c.Memory().Read32(0x4000)).To(Equal(addImm(0, 1, 5)))
		Expect(c.RegFile().PC).To(Equal(uint64(0x4000)))
		Expect(c.RegFile().SP).To(Equal(uint64(loader.DefaultStackTop)))
	})

	It("should run a program to its halt", func() {
		c.LoadProgram(program(0x4000, addImm(0, 1, 5), svc))
		c.Start()

		exitCode := c.Run(1000)

		Expect(c.Halted()).To(BeTrue())
		Expect(exitCode).To(Equal(int64(5)))
		Expect(c.Cycle()).To(BeNumerically(">", uint64(0)))
		Expect(c.Stats().Retired).To(BeNumerically(">=", uint64(2)))
	})

	It("should stop at the cycle limit without halting", func() {
		c.LoadProgram(program(0x4000, nop, nop, nop, nop))
		c.Start()

		c.Run(20)

		Expect(c.Halted()).To(BeFalse())
		Expect(c.Cycle()).To(Equal(uint64(20)))
	})

	It("should keep issuing ticks while the pipeline sleeps", func() {
		config := pipeline.DefaultConfig()
		config.EnableIdling = true
		var err error
		c, err = core.NewCore(config)
		Expect(err).NotTo(HaveOccurred())

		c.Tick()
		Expect(c.Pipeline().Running()).To(BeFalse())

		// The core clock advances; the pipeline does not.
		c.Tick()
		c.Tick()
		Expect(c.Cycle()).To(Equal(uint64(3)))
		Expect(c.Pipeline().Cycle()).To(Equal(uint64(1)))
	})

	It("should forward the drain protocol", func() {
		Expect(c.Drain()).To(BeTrue())
		Expect(c.IsDrained()).To(BeTrue())

		c.DrainResume()
		Expect(c.Pipeline().State()).NotTo(Equal(pipeline.StateDrained))
	})
})
