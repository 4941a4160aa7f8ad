// Package cache provides the blocking cache unit that sits on each memory
// path, its line storage built on Akita cache components, and the bypass
// used when a cache is disabled.
package cache

import (
	"log"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/coresim/timing/config"
)

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads        uint64
	Writes       uint64
	Hits         uint64
	Misses       uint64
	Evictions    uint64
	Writebacks   uint64
	MMIOForwards uint64
}

// Eviction describes the line displaced to make room for a refill.
type Eviction struct {
	// Valid is false if the victim way was empty.
	Valid bool
	// Dirty lines must be written back before the refill.
	Dirty bool
	Addr  uint64
	Data  []byte
}

// Storage is a write-back, write-allocate line store.
type Storage struct {
	config config.CacheConfig

	// Akita cache directory for tag/state management
	directory *akitacache.DirectoryImpl

	// Data storage - indexed by (setID * associativity + wayID)
	dataStore [][]byte

	stats Statistics
}

// NewStorage creates an empty line store.
func NewStorage(cfg config.CacheConfig) *Storage {
	numSets := cfg.Size / (cfg.Associativity * cfg.BlockSize)
	totalBlocks := numSets * cfg.Associativity

	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, cfg.BlockSize)
	}

	return &Storage{
		config: cfg,
		directory: akitacache.NewDirectory(
			numSets,
			cfg.Associativity,
			cfg.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
	}
}

// Config returns the geometry of the store.
func (s *Storage) Config() config.CacheConfig {
	return s.config
}

// Stats returns cache statistics.
func (s *Storage) Stats() Statistics {
	return s.stats
}

// LineAddr returns the block-aligned address of addr.
func (s *Storage) LineAddr(addr uint64) uint64 {
	return addr &^ uint64(s.config.BlockSize-1)
}

// Contains returns true if the access fits in a single line.
func (s *Storage) Contains(addr uint64, size int) bool {
	return s.LineAddr(addr) == s.LineAddr(addr+uint64(size)-1)
}

func (s *Storage) blockIndex(block *akitacache.Block) int {
	return block.SetID*s.config.Associativity + block.WayID
}

func (s *Storage) lookup(addr uint64) *akitacache.Block {
	block := s.directory.Lookup(0, s.LineAddr(addr))
	if block == nil || !block.IsValid {
		return nil
	}

	return block
}

// Access performs a read or a write on a resident line. On a miss nothing
// changes and hit is false. Reads return a copy of the bytes.
func (s *Storage) Access(
	addr uint64,
	size int,
	write bool,
	data []byte,
) (out []byte, hit bool) {
	if write {
		s.stats.Writes++
	} else {
		s.stats.Reads++
	}

	block := s.lookup(addr)
	if block == nil {
		s.stats.Misses++
		return nil, false
	}

	s.stats.Hits++

	return s.apply(block, addr, size, write, data), true
}

func (s *Storage) apply(
	block *akitacache.Block,
	addr uint64,
	size int,
	write bool,
	data []byte,
) []byte {
	if !s.Contains(addr, size) {
		log.Panicf("cache: access 0x%x+%d crosses a line", addr, size)
	}

	s.directory.Visit(block)

	line := s.dataStore[s.blockIndex(block)]
	offset := addr - s.LineAddr(addr)

	if write {
		copy(line[offset:offset+uint64(size)], data)
		block.IsDirty = true

		return nil
	}

	out := make([]byte, size)
	copy(out, line[offset:])

	return out
}

// Evict frees the way that a refill of addr will use.
func (s *Storage) Evict(addr uint64) Eviction {
	victim := s.directory.FindVictim(s.LineAddr(addr))
	if victim == nil || !victim.IsValid {
		return Eviction{}
	}

	s.stats.Evictions++

	ev := Eviction{Valid: true, Dirty: victim.IsDirty, Addr: victim.Tag}
	if victim.IsDirty {
		s.stats.Writebacks++
		ev.Data = append([]byte(nil), s.dataStore[s.blockIndex(victim)]...)
	}

	victim.IsValid = false
	victim.IsDirty = false

	return ev
}

// Fill installs a clean line and then performs the access that missed.
func (s *Storage) Fill(
	addr uint64,
	line []byte,
	size int,
	write bool,
	data []byte,
) []byte {
	lineAddr := s.LineAddr(addr)

	victim := s.directory.FindVictim(lineAddr)
	if victim == nil {
		log.Panicf("cache: no way available for 0x%x", lineAddr)
	}

	copy(s.dataStore[s.blockIndex(victim)], line)
	victim.Tag = lineAddr
	victim.IsValid = true
	victim.IsDirty = false

	return s.apply(victim, addr, size, write, data)
}

// Invalidate marks a cache line as invalid without writing it back.
func (s *Storage) Invalidate(addr uint64) {
	if block := s.lookup(addr); block != nil {
		block.IsValid = false
		block.IsDirty = false
	}
}

// DirtyLines returns the number of lines that differ from memory.
func (s *Storage) DirtyLines() int {
	n := 0

	for _, set := range s.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty {
				n++
			}
		}
	}

	return n
}

// Reset invalidates all cache lines without writeback.
func (s *Storage) Reset() {
	s.directory.Reset()
	s.stats = Statistics{}
}
