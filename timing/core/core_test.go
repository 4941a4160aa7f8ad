package core_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/mem/vm"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/coresim/emu"
	"github.com/sarchlab/coresim/insts"
	"github.com/sarchlab/coresim/timing/backend"
	"github.com/sarchlab/coresim/timing/config"
	"github.com/sarchlab/coresim/timing/core"
	"github.com/sarchlab/coresim/timing/memctrl"
	"github.com/sarchlab/coresim/timing/tlb"
)

const base = uint64(0x8000_0000)

type recorder struct {
	commits   []backend.Commit
	redirects []backend.Redirect
}

func (r *recorder) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case backend.HookPosCommit:
		r.commits = append(r.commits, ctx.Item.(backend.Commit))
	case core.HookPosRedirect:
		r.redirects = append(r.redirects, ctx.Item.(backend.Redirect))
	}
}

type retired struct {
	PC       uint64
	Rd       uint8
	Value    uint64
	WroteReg bool
}

func reference(program []uint32) ([]retired, int64) {
	mem := emu.NewMemory()
	mem.LoadWords(base, program)

	e := emu.NewEmulator(emu.WithMemory(mem), emu.WithMaxInstructions(10000))
	e.SetPC(base)

	var out []retired

	for {
		r := e.Step()
		Expect(r.Err).NotTo(HaveOccurred())

		out = append(out, retired{r.PC, r.Rd, r.Value, r.WroteReg})
		if r.Exited {
			return out, r.ExitCode
		}
	}
}

func fromCommits(commits []backend.Commit) []retired {
	out := make([]retired, 0, len(commits))
	for _, c := range commits {
		out = append(out, retired{c.PC, c.Rd, c.Value, c.WroteReg})
	}

	return out
}

func inOrder() *config.Config {
	return config.Default()
}

func outOfOrder() *config.Config {
	cfg := config.Default()
	cfg.EnableOutOfOrder = true
	cfg.IssueWidth = 2

	return cfg
}

func uncached(cfg *config.Config) *config.Config {
	cfg.HasICache = false
	cfg.HasDCache = false

	return cfg
}

func withVM(cfg *config.Config) *config.Config {
	cfg.HasITLB = true
	cfg.HasDTLB = true

	return cfg
}

var sumLoop = []uint32{
	insts.ADDI(insts.A0, insts.Zero, 0),
	insts.ADDI(insts.T0, insts.Zero, 10),
	insts.ADD(insts.A0, insts.A0, insts.T0),
	insts.ADDI(insts.T0, insts.T0, -1),
	insts.BNE(insts.T0, insts.Zero, -8),
	insts.TRAP(),
}

var loadStoreLoad = []uint32{
	insts.AUIPC(insts.T0, 1),
	insts.ADDI(insts.T1, insts.Zero, 5),
	insts.SD(insts.T1, insts.T0, 0),
	insts.LD(insts.A0, insts.T0, 0),
	insts.ADDI(insts.T1, insts.T1, 7),
	insts.SW(insts.T1, insts.T0, 0),
	insts.LD(insts.A1, insts.T0, 0),
	insts.LW(insts.A2, insts.T0, 4),
	insts.ADD(insts.A0, insts.A0, insts.A1),
	insts.ADD(insts.A0, insts.A0, insts.A2),
	insts.TRAP(),
}

var callAndReturn = []uint32{
	insts.ADDI(insts.A0, insts.Zero, 3),
	insts.JAL(insts.RA, 12),
	insts.ADDI(insts.A0, insts.A0, 100),
	insts.TRAP(),
	insts.ADD(insts.A0, insts.A0, insts.A0),
	insts.JALR(insts.Zero, insts.RA, 0),
}

// mret to an mepc written with bit 1 set resumes at the aligned address.
var misalignedReturn = []uint32{
	insts.AUIPC(insts.T0, 0),
	insts.ADDI(insts.T0, insts.T0, 0x22),
	insts.CSRRW(insts.Zero, emu.CSRMEPC, insts.T0),
	insts.MRET(),
	insts.TRAP(), insts.TRAP(), insts.TRAP(), insts.TRAP(),
	insts.ADDI(insts.A0, insts.Zero, 7),
	insts.TRAP(),
}

func newSystem(cfg *config.Config) (*core.System, *recorder) {
	sys, err := core.NewSystem(cfg)
	Expect(err).NotTo(HaveOccurred())

	rec := &recorder{}
	sys.Core.AcceptHook(rec)

	return sys, rec
}

var _ = Describe("System", func() {
	DescribeTable("should retire in program order like the functional emulator",
		func(cfg *config.Config, program []uint32) {
			sys, rec := newSystem(cfg)
			sys.LoadWords(base, program)

			code, err := sys.Run(50000)
			Expect(err).NotTo(HaveOccurred())

			steps, want := reference(program)
			Expect(code).To(Equal(want))
			Expect(fromCommits(rec.commits)).To(Equal(steps))

			for i := 1; i < len(rec.commits); i++ {
				Expect(rec.commits[i].Seq).To(BeNumerically(">", rec.commits[i-1].Seq))
			}

			Expect(sys.Stats().Core.Instructions).To(Equal(uint64(len(steps))))
		},
		Entry("in-order loop", inOrder(), sumLoop),
		Entry("out-of-order loop", outOfOrder(), sumLoop),
		Entry("in-order load/store/load", inOrder(), loadStoreLoad),
		Entry("out-of-order load/store/load", outOfOrder(), loadStoreLoad),
		Entry("in-order call", inOrder(), callAndReturn),
		Entry("out-of-order call", outOfOrder(), callAndReturn),
		Entry("in-order mret to a misaligned mepc", inOrder(), misalignedReturn),
		Entry("out-of-order mret to a misaligned mepc", outOfOrder(), misalignedReturn),
		Entry("uncached in-order loop", uncached(inOrder()), sumLoop),
		Entry("uncached out-of-order load/store/load",
			uncached(outOfOrder()), loadStoreLoad),
	)

	DescribeTable("should resume at the aligned mepc after mret",
		func(cfg *config.Config) {
			sys, _ := newSystem(cfg)
			sys.LoadWords(base, misalignedReturn)

			code, err := sys.Run(50000)
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(Equal(int64(7)))
			Expect(sys.Stats().Core.Frontend.Fetch.Faults).To(BeZero())
		},
		Entry("in-order", inOrder()),
		Entry("out-of-order", outOfOrder()),
	)

	It("should forward the load/store/load pattern out of order", func() {
		sys, _ := newSystem(outOfOrder())
		sys.LoadWords(base, loadStoreLoad)

		code, err := sys.Run(50000)
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(int64(17)))
		Expect(sys.Stats().Core.Backend.ForwardedLoads).To(BeNumerically(">=", 2))
	})

	It("should report every redirect through the hook", func() {
		sys, rec := newSystem(inOrder())
		sys.LoadWords(base, sumLoop)

		_, err := sys.Run(50000)
		Expect(err).NotTo(HaveOccurred())

		stats := sys.Stats().Core
		Expect(rec.redirects).NotTo(BeEmpty())
		Expect(stats.Redirects).To(Equal(uint64(len(rec.redirects))))
		Expect(stats.Frontend.Fetch.Redirects).To(Equal(stats.Redirects))
		Expect(stats.CPI()).To(BeNumerically(">", 1))
	})

	It("should keep stores in the data cache", func() {
		sys, _ := newSystem(inOrder())
		sys.LoadWords(base, loadStoreLoad)

		_, err := sys.Run(50000)
		Expect(err).NotTo(HaveOccurred())

		Expect(sys.Memory.Read64(base + 0x1000)).To(BeZero())
		Expect(sys.Stats().Core.DCache.Hits).To(BeNumerically(">", 0))
	})

	It("should pass accesses straight through without caches", func() {
		sys, _ := newSystem(uncached(inOrder()))
		sys.LoadWords(base, loadStoreLoad)

		code, err := sys.Run(50000)
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(int64(17)))

		Expect(sys.Memory.Read64(base + 0x1000)).To(Equal(uint64(12)))

		stats := sys.Stats()
		Expect(stats.Core.DCache).To(BeZero())
		Expect(stats.Core.ICache).To(BeZero())
		Expect(stats.DMem.Writes).To(Equal(uint64(2)))
	})

	It("should charge the memory latency from the timing config", func() {
		cycles := func(memLatency uint64) uint64 {
			cfg := uncached(inOrder())
			cfg.Timing.MemoryLatency = memLatency

			sys, _ := newSystem(cfg)
			Expect(sys.Core.Latency().MemoryLatency()).To(Equal(memLatency))
			sys.LoadWords(base, sumLoop)

			_, err := sys.Run(50000)
			Expect(err).NotTo(HaveOccurred())

			return sys.Cycles()
		}

		Expect(cycles(60)).To(BeNumerically(">", cycles(20)))
	})

	DescribeTable("should write to the UART",
		func(cfg *config.Config) {
			out := &bytes.Buffer{}
			sys, err := core.NewSystem(cfg, core.WithConsole(out))
			Expect(err).NotTo(HaveOccurred())

			program := []uint32{insts.LUI(insts.T0, uint32(core.UARTBase>>12))}
			for _, c := range []byte("hi\n") {
				program = append(program,
					insts.ADDI(insts.T1, insts.Zero, int32(c)),
					insts.Store(insts.T1, insts.T0, 0, 1))
			}
			program = append(program, insts.ADDI(insts.A0, insts.Zero, 0), insts.TRAP())
			sys.LoadWords(base, program)

			code, err := sys.Run(50000)
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(BeZero())
			Expect(out.String()).To(Equal("hi\n"))
			Expect(sys.Stats().Devices.Writes).To(Equal(uint64(3)))
			Expect(sys.Stats().Core.DCache.MMIOForwards).To(Equal(uint64(3)))
		},
		Entry("in-order", inOrder()),
		Entry("out-of-order", outOfOrder()),
	)

	It("should read the timer", func() {
		sys, _ := newSystem(inOrder())
		sys.LoadWords(base, []uint32{
			insts.LUI(insts.T0, uint32(core.TimerBase>>12)),
			insts.LD(insts.A0, insts.T0, 0),
			insts.TRAP(),
		})

		code, err := sys.Run(50000)
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(BeNumerically(">", 0))
		Expect(uint64(code)).To(BeNumerically("<=", sys.Cycles()))
	})

	It("should serve DMA coherently with the data cache", func() {
		sys, _ := newSystem(inOrder())
		sys.LoadWords(base, []uint32{
			insts.AUIPC(insts.T0, 1),
			insts.ADDI(insts.T1, insts.Zero, 0x55),
			insts.SD(insts.T1, insts.T0, 8),
			insts.TRAP(),
		})

		_, err := sys.Run(50000)
		Expect(err).NotTo(HaveOccurred())
		Expect(sys.Memory.Read64(base + 0x1008)).To(BeZero())

		read := memctrl.NewReadTransfer(base+0x1008, 8)
		sys.DMA.Enqueue(read)
		Expect(sys.Drain(1000)).To(BeTrue())
		Expect(read.Done).To(BeTrue())
		Expect(read.Data).To(Equal([]byte{0x55, 0, 0, 0, 0, 0, 0, 0}))
		Expect(sys.Memory.Read64(base + 0x1008)).To(BeZero())

		write := memctrl.NewWriteTransfer(base+0x1008, []byte{1, 2, 3, 4})
		again := memctrl.NewReadTransfer(base+0x1008, 8)
		sys.DMA.Enqueue(write)
		sys.DMA.Enqueue(again)
		Expect(sys.Drain(1000)).To(BeTrue())
		Expect(again.Data).To(Equal([]byte{1, 2, 3, 4, 0, 0, 0, 0}))
	})

	It("should stop at the cycle limit", func() {
		sys, _ := newSystem(inOrder())
		sys.LoadWords(base, []uint32{insts.BEQ(insts.Zero, insts.Zero, 0)})

		Expect(sys.RunCycles(100)).To(BeTrue())
		Expect(sys.Cycles()).To(Equal(uint64(100)))

		_, err := sys.Run(500)
		Expect(err).To(MatchError(core.ErrMaxCycles))
	})

	DescribeTable("should translate through the page tables",
		func(cfg *config.Config) {
			sys, _ := newSystem(cfg)

			pt := memctrl.NewPageTableBuilder(sys.Memory, 0x8010_0000, 0)
			Expect(pt.RootPPN()).To(Equal(uint64(0x80100)))
			Expect(pt.Map(vm.Page{VAddr: base, PAddr: base, PageSize: memctrl.Page2M},
				tlb.PTERead|tlb.PTEWrite|tlb.PTEExec)).To(Succeed())
			Expect(pt.Map(vm.Page{VAddr: 0x40_0000, PAddr: 0x8030_0000, PageSize: memctrl.Page4K},
				tlb.PTERead|tlb.PTEWrite)).To(Succeed())
			sys.Memory.Write64(0x8030_0008, 42)

			sys.LoadWords(base, []uint32{
				insts.AUIPC(insts.T0, 0),
				insts.ADDI(insts.T0, insts.T0, 4*14),
				insts.CSRRW(insts.Zero, emu.CSRMTVec, insts.T0),
				insts.ADDI(insts.T1, insts.Zero, 8),
				insts.SLLI(insts.T1, insts.T1, 60),
				insts.LUI(insts.T2, 0x80),
				insts.ADDI(insts.T2, insts.T2, 0x100),
				insts.ADD(insts.T1, insts.T1, insts.T2),
				insts.CSRRW(insts.Zero, emu.CSRSATP, insts.T1),
				insts.SFENCEVMA(),
				insts.LUI(insts.T0, 0x400),
				insts.LD(insts.A0, insts.T0, 8),
				insts.LUI(insts.T0, 0x500),
				insts.LD(insts.A1, insts.T0, 0),
				insts.CSRRS(insts.A1, emu.CSRMCause, insts.Zero),
				insts.ADD(insts.A0, insts.A0, insts.A1),
				insts.TRAP(),
			})

			code, err := sys.Run(100000)
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(Equal(int64(42 + emu.CauseLoadPageFault)))

			stats := sys.Stats().Core
			Expect(stats.ITLB.Walks).To(BeNumerically(">", 0))
			Expect(stats.DTLB.Walks).To(BeNumerically(">=", 2))
			Expect(stats.DTLB.Faults).To(Equal(uint64(1)))
			Expect(stats.Backend.Traps).To(Equal(uint64(1)))
		},
		Entry("in-order", withVM(inOrder())),
		Entry("out-of-order", withVM(outOfOrder())),
	)
})

var _ = Describe("Builder", func() {
	It("should build with the default configuration", func() {
		c, err := core.MakeBuilder().Build("Core")
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Name()).To(Equal("Core"))
		Expect(c.IMem()).NotTo(BeNil())
		Expect(c.DMem()).NotTo(BeNil())
		Expect(c.MMIO()).NotTo(BeNil())
		Expect(c.DMA()).NotTo(BeNil())
		Expect(c.Halted()).To(BeFalse())
	})

	It("should build its latency table from the timing config", func() {
		cfg := config.Default()
		cfg.Timing.BranchMispredictPenalty = 7
		cfg.Timing.MMIOLatency = 9

		c, err := core.MakeBuilder().WithConfig(cfg).Build("Core")
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Latency().MispredictPenalty()).To(Equal(uint64(7)))
		Expect(c.Latency().MMIOLatency()).To(Equal(uint64(9)))
	})

	It("should keep its own copy of the configuration", func() {
		cfg := config.Default()
		c, err := core.MakeBuilder().WithConfig(cfg).Build("Core")
		Expect(err).NotTo(HaveOccurred())

		cfg.IssueWidth = 2
		Expect(c.Config().IssueWidth).To(Equal(1))
	})

	DescribeTable("should refuse invalid configurations",
		func(mutate func(cfg *config.Config)) {
			cfg := config.Default()
			mutate(cfg)

			_, err := core.MakeBuilder().WithConfig(cfg).Build("Core")
			Expect(err).To(MatchError(config.ErrInvalid))

			_, err = core.NewSystem(cfg)
			Expect(err).To(MatchError(config.ErrInvalid))
		},
		Entry("out of order at width one", func(cfg *config.Config) {
			cfg.EnableOutOfOrder = true
		}),
		Entry("one translation unit", func(cfg *config.Config) {
			cfg.HasITLB = true
		}),
		Entry("translation at 32 bits", func(cfg *config.Config) {
			cfg.XLEN = 32
			cfg.HasITLB = true
			cfg.HasDTLB = true
		}),
		Entry("a cache with a bad geometry", func(cfg *config.Config) {
			cfg.DCache.BlockSize = 48
		}),
		Entry("an MMIO range over the device range", func(cfg *config.Config) {
			cfg.MMIOBase = 0x3000_0000
		}),
	)
})
