package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/coresim/timing/bus"
	"github.com/sarchlab/coresim/timing/cache"
	"github.com/sarchlab/coresim/timing/config"
)

var _ = Describe("Storage", func() {
	var s *cache.Storage

	line := func(fill byte) []byte {
		data := make([]byte, 64)
		for i := range data {
			data[i] = fill
		}

		return data
	}

	BeforeEach(func() {
		// 4KB, 4-way, 64B lines: 16 sets, set stride 1024
		s = cache.NewStorage(config.CacheConfig{
			Size:          4 * 1024,
			Associativity: 4,
			BlockSize:     64,
			HitLatency:    1,
		})
	})

	It("should miss on cold cache", func() {
		_, hit := s.Access(0x1000, 8, false, nil)
		Expect(hit).To(BeFalse())

		stats := s.Stats()
		Expect(stats.Reads).To(Equal(uint64(1)))
		Expect(stats.Misses).To(Equal(uint64(1)))
	})

	It("should hit on different addresses in same cache line", func() {
		Expect(s.Evict(0x1000).Valid).To(BeFalse())
		s.Fill(0x1000, line(0x11), 4, false, nil)

		data, hit := s.Access(0x1004, 4, false, nil)
		Expect(hit).To(BeTrue())
		Expect(bus.DecodeValue(data)).To(Equal(uint64(0x11111111)))
	})

	It("should write-allocate on fill", func() {
		s.Fill(0x2008, line(0), 8, true, bus.EncodeValue(0x12345678, 8))

		data, hit := s.Access(0x2008, 8, false, nil)
		Expect(hit).To(BeTrue())
		Expect(bus.DecodeValue(data)).To(Equal(uint64(0x12345678)))
		Expect(s.DirtyLines()).To(Equal(1))
	})

	It("should evict the least recently used dirty line with its data", func() {
		for i, addr := range []uint64{0x0000, 0x0400, 0x0800, 0x0C00} {
			s.Evict(addr)
			s.Fill(addr, line(byte(i+1)), 8, true, bus.EncodeValue(uint64(i+1), 8))
		}

		// Touch the last three so 0x0000 becomes the LRU
		s.Access(0x0400, 8, false, nil)
		s.Access(0x0800, 8, false, nil)
		s.Access(0x0C00, 8, false, nil)

		ev := s.Evict(0x1000)
		Expect(ev.Valid).To(BeTrue())
		Expect(ev.Dirty).To(BeTrue())
		Expect(ev.Addr).To(Equal(uint64(0x0000)))
		Expect(bus.DecodeValue(ev.Data[:8])).To(Equal(uint64(1)))

		stats := s.Stats()
		Expect(stats.Evictions).To(Equal(uint64(1)))
		Expect(stats.Writebacks).To(Equal(uint64(1)))

		_, hit := s.Access(0x0000, 8, false, nil)
		Expect(hit).To(BeFalse())
	})

	It("should not write back a clean victim", func() {
		for _, addr := range []uint64{0x0000, 0x0400, 0x0800, 0x0C00} {
			s.Evict(addr)
			s.Fill(addr, line(0), 8, false, nil)
		}

		ev := s.Evict(0x1000)
		Expect(ev.Valid).To(BeTrue())
		Expect(ev.Dirty).To(BeFalse())
		Expect(ev.Data).To(BeNil())
	})

	It("should report line containment", func() {
		Expect(s.Contains(0x1038, 8)).To(BeTrue())
		Expect(s.Contains(0x103c, 8)).To(BeFalse())
		Expect(s.LineAddr(0x107f)).To(Equal(uint64(0x1040)))
	})

	It("should invalidate and reset", func() {
		s.Fill(0x1000, line(0), 8, true, bus.EncodeValue(1, 8))
		s.Invalidate(0x1000)

		_, hit := s.Access(0x1000, 8, false, nil)
		Expect(hit).To(BeFalse())

		s.Reset()
		Expect(s.Stats()).To(Equal(cache.Statistics{}))
	})
})
