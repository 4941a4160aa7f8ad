package tlb_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/coresim/timing/tlb"
)

var _ = Describe("Sv39", func() {
	It("should pack and unpack entries", func() {
		pte := tlb.MakePTE(0x80123, tlb.PTEValid|tlb.PTERead)
		Expect(tlb.PTEPPN(pte)).To(Equal(uint64(0x80123)))
		Expect(pte & 0x3ff).To(Equal(tlb.PTEValid | tlb.PTERead))
		Expect(tlb.IsLeaf(pte)).To(BeTrue())
		Expect(tlb.IsLeaf(tlb.MakePTE(1, tlb.PTEValid))).To(BeFalse())
	})

	It("should split the virtual page number", func() {
		va := uint64(0x5)<<30 | uint64(0x1a)<<21 | uint64(0x1ff)<<12 | 0x123
		Expect(tlb.VPN(va, 2)).To(Equal(uint64(0x5)))
		Expect(tlb.VPN(va, 1)).To(Equal(uint64(0x1a)))
		Expect(tlb.VPN(va, 0)).To(Equal(uint64(0x1ff)))
	})

	DescribeTable("canonical addresses",
		func(va uint64, canonical bool) {
			Expect(tlb.Canonical(va)).To(Equal(canonical))
		},
		Entry("low", uint64(0x3f_ffff_ffff), true),
		Entry("high", uint64(0xffff_ffc0_0000_0000), true),
		Entry("bit 38 without sign extension", uint64(0x40_0000_0000), false),
		Entry("stray high bit", uint64(0x0100_0000_0000_0000), false),
	)
})
