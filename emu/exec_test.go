package emu_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/coresim/emu"
	"github.com/sarchlab/coresim/insts"
)

var _ = Describe("Execute", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder(64)
	})

	exec := func(word uint32, pc, rs1, rs2 uint64) emu.Outcome {
		return emu.Execute(decoder.Decode(word), pc, rs1, rs2, 64)
	}

	It("should add", func() {
		o := exec(insts.ADD(insts.A0, insts.A1, insts.A2), 0, 40, 2)
		Expect(o.Value).To(Equal(uint64(42)))
		Expect(o.NextPC).To(Equal(uint64(4)))
	})

	It("should sign-extend word results", func() {
		o := exec(insts.ADDIW(insts.A0, insts.A1, 1), 0, math.MaxInt32, 0)
		Expect(o.Value).To(Equal(uint64(0xffffffff80000000)))
	})

	It("should follow the division-by-zero rules", func() {
		Expect(exec(insts.DIV(insts.A0, insts.A1, insts.A2), 0, 7, 0).Value).
			To(Equal(uint64(math.MaxUint64)))
		Expect(exec(insts.REMU(insts.A0, insts.A1, insts.A2), 0, 7, 0).Value).
			To(Equal(uint64(7)))
	})

	It("should handle signed division overflow", func() {
		minInt := uint64(1) << 63
		o := exec(insts.DIV(insts.A0, insts.A1, insts.A2), 0, minInt, math.MaxUint64)
		Expect(o.Value).To(Equal(minInt))
	})

	It("should compute the high half of signed products", func() {
		mulh := insts.EncodeR(0x33, 1, 1, insts.A0, insts.A1, insts.A2)
		o := exec(mulh, 0, uint64(math.MaxUint64), 2) // -1 * 2
		Expect(o.Value).To(Equal(uint64(math.MaxUint64)))
	})

	It("should resolve taken and not-taken branches", func() {
		taken := exec(insts.BNE(insts.A0, insts.A1, -8), 0x100, 1, 2)
		Expect(taken.Taken).To(BeTrue())
		Expect(taken.NextPC).To(Equal(uint64(0xf8)))

		notTaken := exec(insts.BNE(insts.A0, insts.A1, -8), 0x100, 2, 2)
		Expect(notTaken.Taken).To(BeFalse())
		Expect(notTaken.NextPC).To(Equal(uint64(0x104)))
	})

	It("should link and clear bit 0 on jalr", func() {
		o := exec(insts.JALR(insts.RA, insts.A0, 1), 0x200, 0x400, 0)
		Expect(o.Value).To(Equal(uint64(0x204)))
		Expect(o.NextPC).To(Equal(uint64(0x400)))
	})

	It("should flag misaligned jump targets", func() {
		o := exec(insts.JALR(insts.Zero, insts.A0, 2), 0, 0x400, 0)
		Expect(o.Exception.Valid).To(BeTrue())
		Expect(o.Exception.Cause).To(Equal(emu.CauseFetchMisaligned))
	})

	It("should compute store addresses and data", func() {
		o := exec(insts.SW(insts.A1, insts.A0, 8), 0, 0x1000, 0x1_2345_6789)
		Expect(o.Addr).To(Equal(uint64(0x1008)))
		Expect(o.StoreData).To(Equal(uint64(0x2345_6789)))
		Expect(o.Exception.Valid).To(BeFalse())
	})

	It("should flag misaligned loads", func() {
		o := exec(insts.LD(insts.A0, insts.A1, 4), 0, 0x1000, 0)
		Expect(o.Exception.Cause).To(Equal(emu.CauseLoadMisaligned))
		Expect(o.Exception.Tval).To(Equal(uint64(0x1004)))
	})

	It("should raise illegal instruction for unknown encodings", func() {
		o := exec(0, 0, 0, 0)
		Expect(o.Exception.Cause).To(Equal(emu.CauseIllegal))
	})

	It("should wrap at XLEN 32", func() {
		rv32 := insts.NewDecoder(32)
		o := emu.Execute(rv32.Decode(insts.ADDI(insts.A0, insts.A1, 1)),
			0, 0xffffffff, 0, 32)
		Expect(o.Value).To(Equal(uint64(0)))
	})

	It("should extend loaded values", func() {
		Expect(emu.LoadExtend(0x80, 1, false, 64)).To(Equal(uint64(0xffffffffffffff80)))
		Expect(emu.LoadExtend(0x80, 1, true, 64)).To(Equal(uint64(0x80)))
		Expect(emu.LoadExtend(0x8000_0000, 4, false, 32)).To(Equal(uint64(0x8000_0000)))
	})
})
