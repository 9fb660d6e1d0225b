package cache_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/minorsim/emu"
	"github.com/sarchlab/minorsim/timing/cache"
)

func TestCache(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Cache Suite")
}

// patternBacking returns addr&0xFF for every byte.
type patternBacking struct{}

func (patternBacking) Read(addr uint64, size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(addr + uint64(i))
	}
	return data
}

var _ = Describe("Cache", func() {
	var c *cache.Cache

	// 256B, 2-way, 16B blocks: 8 sets; addresses 128 apart share a set.
	config := cache.Config{
		Size:          256,
		Associativity: 2,
		BlockSize:     16,
		HitLatency:    1,
		MissLatency:   10,
	}

	BeforeEach(func() {
		c = cache.New(config, patternBacking{})
	})

	It("should miss cold and fill from the backing store", func() {
		result := c.Read(0x20, 4)
		Expect(result.Hit).To(BeFalse())
		Expect(result.Latency).To(Equal(uint64(10)))
		Expect(result.Data).To(Equal(uint64(0x23222120)))

		stats := c.Stats()
		Expect(stats.Reads).To(Equal(uint64(1)))
		Expect(stats.Misses).To(Equal(uint64(1)))
		Expect(stats.Fills).To(Equal(uint64(1)))
	})

	It("should hit on a refetch of the same block", func() {
		c.Read(0x20, 4)

		result := c.Read(0x24, 4)
		Expect(result.Hit).To(BeTrue())
		Expect(result.Latency).To(Equal(uint64(1)))
		Expect(result.Data).To(Equal(uint64(0x27262524)))
		Expect(c.Stats().Hits).To(Equal(uint64(1)))
	})

	It("should evict the least recently used way", func() {
		c.Read(0, 4)   // set 0, fill
		c.Read(128, 4) // set 0, fill
		c.Read(256, 4) // set 0, evicts the block at 0

		result := c.Read(0, 4)
		Expect(result.Hit).To(BeFalse())
		Expect(c.Stats().Misses).To(Equal(uint64(4)))
	})

	It("should miss again after an invalidate", func() {
		c.Read(0x40, 4)
		c.Invalidate(0x40)

		result := c.Read(0x40, 4)
		Expect(result.Hit).To(BeFalse())
	})

	It("should clear lines and counters on reset", func() {
		c.Read(0x40, 4)
		c.Reset()

		Expect(c.Stats().Reads).To(BeZero())
		Expect(c.Read(0x40, 4).Hit).To(BeFalse())
	})

	It("should read different sizes at offsets within a block", func() {
		Expect(c.Read(0x10, 1).Data).To(Equal(uint64(0x10)))
		Expect(c.Read(0x12, 2).Data).To(Equal(uint64(0x1312)))
		Expect(c.Read(0x10, 8).Data).To(Equal(uint64(0x1716151413121110)))
	})
})

var _ = Describe("MemoryBacking", func() {
	It("should serve cache fills from simulator memory", func() {
		memory := emu.NewMemory()
		memory.Write64(0x100, 0x1122334455667788)

		c := cache.New(cache.Config{
			Size:          256,
			Associativity: 2,
			BlockSize:     16,
			HitLatency:    1,
			MissLatency:   10,
		}, cache.NewMemoryBacking(memory))

		Expect(c.Read(0x100, 8).Data).To(Equal(uint64(0x1122334455667788)))
	})
})

var _ = Describe("DefaultL1IConfig", func() {
	It("should describe a 32KB 4-way cache", func() {
		config := cache.DefaultL1IConfig()
		Expect(config.Size).To(Equal(32 * 1024))
		Expect(config.Associativity).To(Equal(4))
		Expect(config.BlockSize).To(Equal(64))
	})
})
