package latch_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/minorsim/timing/latch"
)

func TestLatch(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Latch Suite")
}

var _ = Describe("Buffer", func() {
	Describe("New", func() {
		It("should reject a zero delay", func() {
			_, err := latch.New[int]("bad", 0)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("delay"))
		})

		It("should reject a negative delay", func() {
			_, err := latch.New[int]("bad", -3)
			Expect(err).To(HaveOccurred())
		})

		It("should create a buffer with delay 1", func() {
			b, err := latch.New[int]("ok", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Name()).To(Equal("ok"))
			Expect(b.Delay()).To(Equal(1))
			Expect(b.Reversed()).To(BeFalse())
		})
	})

	Describe("NewReverse", func() {
		It("should mark the buffer as reversed", func() {
			b, err := latch.NewReverse[int]("back", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Reversed()).To(BeTrue())
		})
	})

	Describe("delay semantics", func() {
		It("should surface a payload exactly one cycle later with delay 1", func() {
			b, _ := latch.New[int]("d1", 1)

			b.Write(42)
			_, ok := b.Output()
			Expect(ok).To(BeFalse())

			b.Advance()
			v, ok := b.Output()
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(42))

			b.Advance()
			_, ok = b.Output()
			Expect(ok).To(BeFalse())
		})

		It("should surface a payload exactly two cycles later with delay 2", func() {
			b, _ := latch.New[int]("d2", 2)

			b.Write(7)
			b.Advance()
			_, ok := b.Output()
			Expect(ok).To(BeFalse())

			b.Advance()
			v, ok := b.Output()
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(7))
		})

		It("should keep back-to-back payloads in order", func() {
			b, _ := latch.New[int]("stream", 1)

			b.Write(1)
			b.Advance()
			b.Write(2)

			v, ok := b.Output()
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(1))

			b.Advance()
			v, ok = b.Output()
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(2))
		})

		It("should leave a bubble for a cycle with no write", func() {
			b, _ := latch.New[int]("gap", 1)

			b.Write(1)
			b.Advance()
			b.Advance()

			_, ok := b.Output()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Incoming", func() {
		It("should expose a same-cycle write before it advances", func() {
			b, _ := latch.NewReverse[int]("redir", 1)

			b.Write(99)
			v, ok := b.Incoming()
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(99))

			b.Advance()
			_, ok = b.Incoming()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Write", func() {
		It("should panic on a second write in the same cycle", func() {
			b, _ := latch.New[int]("dup", 1)

			b.Write(1)
			Expect(func() { b.Write(2) }).To(Panic())
		})

		It("should allow one write per cycle across cycles", func() {
			b, _ := latch.New[int]("ok", 1)

			b.Write(1)
			b.Advance()
			Expect(func() { b.Write(2) }).NotTo(Panic())
		})
	})

	Describe("Empty", func() {
		It("should report empty only when every slot is a bubble", func() {
			b, _ := latch.New[int]("e", 2)
			Expect(b.Empty()).To(BeTrue())

			b.Write(5)
			Expect(b.Empty()).To(BeFalse())

			b.Advance()
			Expect(b.Empty()).To(BeFalse())

			b.Advance()
			Expect(b.Empty()).To(BeFalse())

			b.Advance()
			Expect(b.Empty()).To(BeTrue())
		})
	})

	Describe("fault hooks", func() {
		It("should reject a slot beyond the delay", func() {
			b, _ := latch.New[int]("f", 1)
			err := b.Arm(0, 2, func(*int) {})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("slot"))
		})

		It("should reject a second hook", func() {
			b, _ := latch.New[int]("f", 1)
			Expect(b.Arm(0, 0, func(*int) {})).To(Succeed())
			Expect(b.Arm(1, 0, func(*int) {})).To(HaveOccurred())
		})

		It("should mutate the occupied slot on the armed cycle", func() {
			b, _ := latch.New[int]("f", 1)
			Expect(b.Arm(3, 0, func(v *int) { *v += 100 })).To(Succeed())

			b.Write(1)
			b.Advance()

			b.ApplyFault(2)
			v, _ := b.Output()
			Expect(v).To(Equal(1))

			b.ApplyFault(3)
			v, _ = b.Output()
			Expect(v).To(Equal(101))
			Expect(b.Armed()).To(BeFalse())
		})

		It("should fire at most once", func() {
			b, _ := latch.New[int]("f", 1)
			fired := 0
			Expect(b.Arm(0, 0, func(*int) { fired++ })).To(Succeed())

			b.Write(1)
			b.Advance()
			b.ApplyFault(0)
			b.ApplyFault(0)
			Expect(fired).To(Equal(1))
		})

		It("should be a no-op on a bubble", func() {
			b, _ := latch.New[int]("f", 1)
			fired := false
			Expect(b.Arm(0, 0, func(*int) { fired = true })).To(Succeed())

			b.ApplyFault(0)
			Expect(fired).To(BeFalse())
			Expect(b.Armed()).To(BeFalse())
		})
	})
})
