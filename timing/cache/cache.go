// Package cache models a read-only L1 instruction cache on top of Akita
// cache components. The fetch stage reads through it to attach hit/miss
// latency to line fetches.
package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds instruction cache parameters.
type Config struct {
	// Size in bytes.
	Size int
	// Associativity is the number of ways.
	Associativity int
	// BlockSize is the cache line size in bytes.
	BlockSize int
	// HitLatency in cycles.
	HitLatency uint64
	// MissLatency in cycles, including the fill from backing memory.
	MissLatency uint64
}

// DefaultL1IConfig returns a configuration sized for a small in-order core:
// 32KB, 4-way, 64B lines.
func DefaultL1IConfig() Config {
	return Config{
		Size:          32 * 1024,
		Associativity: 4,
		BlockSize:     64,
		HitLatency:    1,
		MissLatency:   10,
	}
}

// AccessResult describes one cache access.
type AccessResult struct {
	// Hit is true when the line was present.
	Hit bool
	// Latency is the access cost in cycles.
	Latency uint64
	// Data is the value read.
	Data uint64
}

// Statistics holds cache counters.
type Statistics struct {
	Reads  uint64
	Hits   uint64
	Misses uint64
	Fills  uint64
}

// BackingStore is the next level of the memory hierarchy.
type BackingStore interface {
	// Read fetches size bytes at addr.
	Read(addr uint64, size int) []byte
}

// Cache is a read-only instruction cache. Tag and replacement state live in
// an Akita cache directory with LRU victim selection; line data is stored
// alongside, indexed by set and way.
type Cache struct {
	config    Config
	directory *akitacache.DirectoryImpl
	dataStore [][]byte
	backing   BackingStore
	stats     Statistics
}

// New creates a cache over the given backing store.
func New(config Config, backing BackingStore) *Cache {
	numSets := config.Size / (config.Associativity * config.BlockSize)
	totalBlocks := numSets * config.Associativity

	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.BlockSize)
	}

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
		backing:   backing,
	}
}

// Config returns the cache configuration.
func (c *Cache) Config() Config { return c.config }

// Stats returns the access counters.
func (c *Cache) Stats() Statistics { return c.stats }

func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

// Read reads size bytes at addr, little-endian, filling the line from the
// backing store on a miss.
func (c *Cache) Read(addr uint64, size int) AccessResult {
	c.stats.Reads++

	blockAddr := addr &^ uint64(c.config.BlockSize-1)
	offset := addr % uint64(c.config.BlockSize)

	block := c.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		return AccessResult{
			Hit:     true,
			Latency: c.config.HitLatency,
			Data:    extractData(c.dataStore[c.blockIndex(block)], offset, size),
		}
	}

	c.stats.Misses++
	return c.fill(blockAddr, offset, size)
}

// fill fetches a line from the backing store into a victim way.
func (c *Cache) fill(blockAddr, offset uint64, size int) AccessResult {
	result := AccessResult{Latency: c.config.MissLatency}

	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		return result
	}

	victimData := c.dataStore[c.blockIndex(victim)]
	if c.backing != nil {
		copy(victimData, c.backing.Read(blockAddr, c.config.BlockSize))
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false
	c.directory.Visit(victim)
	c.stats.Fills++

	result.Data = extractData(victimData, offset, size)
	return result
}

// Invalidate drops the line containing addr.
func (c *Cache) Invalidate(addr uint64) {
	blockAddr := addr &^ uint64(c.config.BlockSize-1)
	if block := c.directory.Lookup(0, blockAddr); block != nil {
		block.IsValid = false
	}
}

// Reset invalidates all lines and clears statistics.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
}

func extractData(data []byte, offset uint64, size int) uint64 {
	if data == nil || int(offset)+size > len(data) {
		return 0
	}
	var result uint64
	for i := 0; i < size; i++ {
		result |= uint64(data[int(offset)+i]) << (i * 8)
	}
	return result
}
