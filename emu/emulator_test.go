package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/coresim/emu"
	"github.com/sarchlab/coresim/insts"
)

func program(parts ...any) []uint32 {
	var words []uint32
	for _, p := range parts {
		switch v := p.(type) {
		case uint32:
			words = append(words, v)
		case []uint32:
			words = append(words, v...)
		}
	}

	return words
}

var _ = Describe("Emulator", func() {
	const base = 0x8000_0000

	var e *emu.Emulator

	load := func(words []uint32) {
		e.Memory().LoadWords(base, words)
		e.SetPC(base)
	}

	BeforeEach(func() {
		e = emu.NewEmulator(emu.WithMaxInstructions(10000))
	})

	It("should sum 1 to 10 and halt with the result", func() {
		load(program(
			insts.ADDI(insts.A0, insts.Zero, 0),
			insts.ADDI(insts.T0, insts.Zero, 10),
			insts.ADD(insts.A0, insts.A0, insts.T0), // loop:
			insts.ADDI(insts.T0, insts.T0, -1),
			insts.BNE(insts.T0, insts.Zero, -8),
			insts.TRAP(),
		))

		code, err := e.Run()

		Expect(err).ToNot(HaveOccurred())
		Expect(code).To(Equal(int64(55)))
		Expect(e.InstructionCount()).To(Equal(uint64(2 + 3*10 + 1)))
	})

	It("should store and reload with sign extension", func() {
		load(program(
			insts.Li(insts.A1, 0x1000),
			insts.ADDI(insts.T0, insts.Zero, -2),
			insts.Store(insts.T0, insts.A1, 0, 1),
			insts.Load(insts.A0, insts.A1, 0, 1, false),
			insts.Load(insts.A2, insts.A1, 0, 1, true),
			insts.TRAP(),
		))

		code, err := e.Run()

		Expect(err).ToNot(HaveOccurred())
		Expect(code).To(Equal(int64(-2)))
		Expect(e.RegFile().ReadReg(insts.A2)).To(Equal(uint64(0xfe)))
		Expect(e.Memory().Read8(0x1000)).To(Equal(uint8(0xfe)))
	})

	It("should trap to mtvec on ecall and return with mret", func() {
		// 0x00: la handler into t0; csrw mtvec, t0; ecall; addi a0, a0, 1; trap
		// 0x18: handler: csrr t1, mepc; addi t1, t1, 4; csrw mepc, t1;
		//       addi a0, zero, 41; mret
		load(program(
			insts.AUIPC(insts.T0, 0),
			insts.ADDI(insts.T0, insts.T0, 0x18),
			insts.CSRRW(insts.Zero, emu.CSRMTVec, insts.T0),
			insts.ECALL(),
			insts.ADDI(insts.A0, insts.A0, 1),
			insts.TRAP(),
			insts.CSRRS(insts.T1, emu.CSRMEPC, insts.Zero),
			insts.ADDI(insts.T1, insts.T1, 4),
			insts.CSRRW(insts.Zero, emu.CSRMEPC, insts.T1),
			insts.ADDI(insts.A0, insts.Zero, 41),
			insts.MRET(),
		))

		code, err := e.Run()

		Expect(err).ToNot(HaveOccurred())
		Expect(code).To(Equal(int64(42)))

		cause, _ := e.CSRs().Read(emu.CSRMCause)
		Expect(cause).To(Equal(uint64(emu.CauseECall)))
	})

	It("should keep mepc 4-byte aligned so mret cannot leave the stream", func() {
		// 0x00: t0 = base+0x22; csrw mepc, t0; mret; 3 x trap
		// 0x20: addi a0, zero, 7; trap
		load(program(
			insts.AUIPC(insts.T0, 0),
			insts.ADDI(insts.T0, insts.T0, 0x22),
			insts.CSRRW(insts.Zero, emu.CSRMEPC, insts.T0),
			insts.MRET(),
			insts.TRAP(), insts.TRAP(), insts.TRAP(), insts.TRAP(),
			insts.ADDI(insts.A0, insts.Zero, 7),
			insts.TRAP(),
		))

		code, err := e.Run()

		Expect(err).ToNot(HaveOccurred())
		Expect(code).To(Equal(int64(7)))

		mepc, _ := e.CSRs().Read(emu.CSRMEPC)
		Expect(mepc).To(Equal(uint64(base + 0x20)))
	})

	It("should trap on a misaligned PC", func() {
		e.Memory().LoadWords(base, program(insts.TRAP()))
		e.SetPC(base + 2)

		result := e.Step()

		Expect(result.Trapped).To(BeTrue())
		Expect(result.Cause).To(Equal(emu.CauseFetchMisaligned))

		mtval, _ := e.CSRs().Read(emu.CSRMTVal)
		Expect(mtval).To(Equal(uint64(base + 2)))
	})

	It("should report the cause of a trap", func() {
		load(program(uint32(0)))

		result := e.Step()

		Expect(result.Trapped).To(BeTrue())
		Expect(result.Cause).To(Equal(emu.CauseIllegal))
		Expect(e.RegFile().PC).To(Equal(uint64(0)))
	})

	It("should stop at the instruction limit", func() {
		e = emu.NewEmulator(emu.WithMaxInstructions(3))
		load(program(insts.JAL(insts.Zero, 0)))

		_, err := e.Run()

		Expect(err).To(MatchError(emu.ErrMaxInstructions))
	})

	It("should keep x0 at zero", func() {
		load(program(insts.ADDI(insts.Zero, insts.Zero, 5), insts.TRAP()))

		result := e.Step()

		Expect(result.WroteReg).To(BeFalse())
		Expect(e.RegFile().ReadReg(0)).To(Equal(uint64(0)))
	})

	Context("with XLEN 32", func() {
		BeforeEach(func() {
			e = emu.NewEmulator(emu.WithXLEN(32))
		})

		It("should wrap arithmetic at 32 bits", func() {
			load(program(
				insts.LUI(insts.A0, 0x80000),
				insts.ADDI(insts.A0, insts.A0, -1),
				insts.ADDI(insts.A1, insts.A0, 1),
				insts.TRAP(),
			))

			_, err := e.Run()

			Expect(err).ToNot(HaveOccurred())
			Expect(e.RegFile().ReadReg(insts.A0)).To(Equal(uint64(0x7fffffff)))
			Expect(e.RegFile().ReadReg(insts.A1)).To(Equal(uint64(0x80000000)))
		})
	})
})
