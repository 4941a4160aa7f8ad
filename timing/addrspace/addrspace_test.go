package addrspace_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/coresim/timing/addrspace"
)

var _ = Describe("Classifier", func() {
	It("should classify the internal device range", func() {
		c, err := addrspace.NewClassifier(addrspace.Range{
			Base: 0x3000_0000, Size: 0x1000_0000,
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(c.IsMMIO(0x3000_0004)).To(BeTrue())
		Expect(c.IsMMIO(0x8000_0000)).To(BeFalse())
	})

	It("should include the first and exclude the one-past-last address", func() {
		c, _ := addrspace.NewClassifier(addrspace.Range{Base: 0x4000, Size: 0x1000})

		Expect(c.IsMMIO(0x3fff)).To(BeFalse())
		Expect(c.IsMMIO(0x4000)).To(BeTrue())
		Expect(c.IsMMIO(0x4fff)).To(BeTrue())
		Expect(c.IsMMIO(0x5000)).To(BeFalse())
	})

	It("should match any of several ranges", func() {
		c, err := addrspace.NewClassifier(
			addrspace.InternalDevices,
			addrspace.Range{Base: 0x4000_0000, Size: 0x4000_0000},
		)
		Expect(err).NotTo(HaveOccurred())

		Expect(c.IsMMIO(0x3fff_fff8)).To(BeTrue())
		Expect(c.IsMMIO(0x7fff_fff8)).To(BeTrue())
		Expect(c.IsMMIO(0x8000_0000)).To(BeFalse())
		Expect(c.Ranges()).To(HaveLen(2))
	})

	It("should classify nothing with no ranges", func() {
		c, err := addrspace.NewClassifier()
		Expect(err).NotTo(HaveOccurred())
		Expect(c.IsMMIO(0x3000_0000)).To(BeFalse())
	})

	DescribeTable("should reject invalid ranges",
		func(ranges []addrspace.Range, want error) {
			_, err := addrspace.NewClassifier(ranges...)
			Expect(err).To(MatchError(want))
		},
		Entry("zero size",
			[]addrspace.Range{{Base: 0, Size: 0}}, addrspace.ErrNotPowerOfTwo),
		Entry("size not a power of two",
			[]addrspace.Range{{Base: 0, Size: 0x3000}}, addrspace.ErrNotPowerOfTwo),
		Entry("unaligned base",
			[]addrspace.Range{{Base: 0x800, Size: 0x1000}}, addrspace.ErrNotPowerOfTwo),
		Entry("overlap",
			[]addrspace.Range{
				{Base: 0x3000_0000, Size: 0x1000_0000},
				{Base: 0x3800_0000, Size: 0x0800_0000},
			}, addrspace.ErrOverlap),
	)

	It("should never place an address in two ranges", func() {
		ranges := []addrspace.Range{
			{Base: 0x1000, Size: 0x1000},
			{Base: 0x2000, Size: 0x2000},
			{Base: 0x4000, Size: 0x100},
		}
		_, err := addrspace.NewClassifier(ranges...)
		Expect(err).NotTo(HaveOccurred())

		for addr := uint64(0); addr < 0x5000; addr += 0x40 {
			matches := 0
			for _, r := range ranges {
				if r.Contains(addr) {
					matches++
				}
			}
			Expect(matches).To(BeNumerically("<=", 1), "address 0x%x", addr)
		}
	})
})
