package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/coresim/timing/addrspace"
	"github.com/sarchlab/coresim/timing/config"
)

var _ = Describe("Config", func() {
	var c *config.Config

	BeforeEach(func() {
		c = config.Default()
	})

	It("should validate the defaults", func() {
		Expect(c.Validate()).To(Succeed())
		Expect(c.VMEnabled()).To(BeFalse())
	})

	It("should list the internal range first", func() {
		ranges := c.MMIORanges()
		Expect(ranges).To(HaveLen(2))
		Expect(ranges[0]).To(Equal(addrspace.InternalDevices))
		Expect(ranges[1]).To(Equal(addrspace.Range{Base: 0x4000_0000, Size: 0x4000_0000}))
	})

	DescribeTable("rejections",
		func(mutate func(*config.Config)) {
			mutate(c)
			Expect(c.Validate()).To(MatchError(config.ErrInvalid))
		},
		Entry("xlen", func(c *config.Config) { c.XLEN = 16 }),
		Entry("issue width", func(c *config.Config) { c.IssueWidth = 3 }),
		Entry("only one TLB", func(c *config.Config) { c.HasITLB = true }),
		Entry("translation at RV32", func(c *config.Config) {
			c.XLEN = 32
			c.HasITLB, c.HasDTLB = true, true
		}),
		Entry("out-of-order single issue", func(c *config.Config) { c.EnableOutOfOrder = true }),
		Entry("misaligned external range", func(c *config.Config) { c.MMIOBase = 0x4000_1000 }),
		Entry("external range overlapping internal", func(c *config.Config) {
			c.MMIOBase, c.MMIOSize = 0, 0x8000_0000
		}),
		Entry("non power of two block", func(c *config.Config) { c.DCache.BlockSize = 48 }),
		Entry("cache size", func(c *config.Config) { c.ICache.Size = 1000 }),
		Entry("tlb ways", func(c *config.Config) {
			c.HasITLB, c.HasDTLB = true, true
			c.DTLB.Entries = 30
		}),
		Entry("zero link depth", func(c *config.Config) { c.LinkDepth = 0 }),
		Entry("bad timing", func(c *config.Config) { c.Timing.DivideLatencyMin = 100 }),
	)

	It("should ignore the geometry of an absent cache", func() {
		c.HasDCache = false
		c.DCache.BlockSize = 3
		Expect(c.Validate()).To(Succeed())
	})

	It("should accept an out-of-order dual issue configuration", func() {
		c.IssueWidth = 2
		c.EnableOutOfOrder = true
		c.HasITLB, c.HasDTLB = true, true
		Expect(c.Validate()).To(Succeed())
		Expect(c.VMEnabled()).To(BeTrue())
	})

	It("should clone deeply", func() {
		clone := c.Clone()
		clone.Timing.ALULatency = 9
		clone.IssueWidth = 2
		Expect(c.Timing.ALULatency).To(Equal(uint64(1)))
		Expect(c.IssueWidth).To(Equal(1))
	})

	It("should round trip through a file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "core.json")
		c.IssueWidth = 2
		c.DCache.HitLatency = 3
		Expect(c.Save(path)).To(Succeed())

		loaded, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(Equal(c))
	})

	It("should keep defaults for missing fields", func() {
		path := filepath.Join(GinkgoT().TempDir(), "partial.json")
		Expect(os.WriteFile(path, []byte(`{"issue_width": 2}`), 0644)).To(Succeed())

		loaded, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.IssueWidth).To(Equal(2))
		Expect(loaded.XLEN).To(Equal(64))
		Expect(loaded.Timing.MemoryLatency).To(Equal(uint64(20)))
	})

	It("should fail on a missing file", func() {
		_, err := config.Load("/nonexistent/core.json")
		Expect(err).To(HaveOccurred())
	})
})
