package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/coresim/insts"
	"github.com/sarchlab/coresim/loader"
	"github.com/sarchlab/coresim/timing/config"
	"github.com/sarchlab/coresim/timing/core"
)

func writeRaw(dir string, words []uint32) string {
	data := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(data[4*i:], w)
	}

	path := filepath.Join(dir, "prog.bin")
	Expect(os.WriteFile(path, data, 0644)).To(Succeed())

	return path
}

var sumLoop = []uint32{
	insts.ADDI(insts.A0, insts.Zero, 0),
	insts.ADDI(insts.T0, insts.Zero, 10),
	insts.ADD(insts.A0, insts.A0, insts.T0),
	insts.ADDI(insts.T0, insts.T0, -1),
	insts.BNE(insts.T0, insts.Zero, -8),
	insts.TRAP(),
}

var _ = Describe("run", func() {
	var (
		dir  string
		out  *bytes.Buffer
		opts *runOptions
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
		opts = &runOptions{raw: true, loadAddr: loader.DefaultLoadAddr, xlen: 64}
	})

	DescribeTable("should return the exit code of the program",
		func(setup func(o *runOptions)) {
			setup(opts)

			code, err := runProgram(writeRaw(dir, sumLoop), opts, out)
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(Equal(int64(55)))
		},
		Entry("in-order", func(o *runOptions) {}),
		Entry("out-of-order", func(o *runOptions) { o.outOfOrder = true }),
		Entry("without caches", func(o *runOptions) {
			o.noICache = true
			o.noDCache = true
		}),
		Entry("functional", func(o *runOptions) { o.functional = true }),
	)

	It("should send UART output to the console", func() {
		program := []uint32{insts.LUI(insts.T0, uint32(core.UARTBase>>12))}
		for _, c := range []byte("ok") {
			program = append(program,
				insts.ADDI(insts.T1, insts.Zero, int32(c)),
				insts.Store(insts.T1, insts.T0, 0, 1))
		}
		program = append(program, insts.ADDI(insts.A0, insts.Zero, 0), insts.TRAP())

		code, err := runProgram(writeRaw(dir, program), opts, out)
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(BeZero())
		Expect(out.String()).To(Equal("ok"))
	})

	It("should print statistics", func() {
		opts.stats = true

		_, err := runProgram(writeRaw(dir, sumLoop), opts, out)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(ContainSubstring("Instructions:"))
		Expect(out.String()).To(ContainSubstring("CPI:"))
	})

	It("should write a CSV trace", func() {
		opts.tracePath = filepath.Join(dir, "trace.csv")

		_, err := runProgram(writeRaw(dir, sumLoop), opts, out)
		Expect(err).NotTo(HaveOccurred())

		data, err := os.ReadFile(opts.tracePath)
		Expect(err).NotTo(HaveOccurred())

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		Expect(lines[0]).To(Equal("ID,Cycle,Kind,Where,PC,Instr,Detail"))
		Expect(len(lines)).To(BeNumerically(">", 32))
	})

	It("should stop at the cycle limit", func() {
		opts.maxCycles = 200

		_, err := runProgram(writeRaw(dir, []uint32{insts.BEQ(insts.Zero, insts.Zero, 0)}),
			opts, out)
		Expect(err).To(MatchError(core.ErrMaxCycles))
	})

	It("should refuse an invalid configuration", func() {
		cfg := config.Default()
		cfg.IssueWidth = 3
		opts.configPath = filepath.Join(dir, "bad.json")
		Expect(cfg.Save(opts.configPath)).To(Succeed())

		_, err := runProgram(writeRaw(dir, sumLoop), opts, out)
		Expect(err).To(MatchError(config.ErrInvalid))
	})
})

func execute(args ...string) (string, error) {
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()

	return out.String(), err
}

var _ = Describe("bench", func() {
	It("should run the core subset as CSV", func() {
		got, err := execute("bench", "--quick", "--csv")
		Expect(err).NotTo(HaveOccurred())

		lines := strings.Split(strings.TrimSpace(got), "\n")
		Expect(lines).To(HaveLen(4))
		Expect(lines[0]).To(HavePrefix("name,cycles,instructions,cpi"))
		for _, l := range lines[1:] {
			Expect(l).To(HaveSuffix(",true"))
		}
	})
})

var _ = Describe("config", func() {
	run := execute

	It("should dump a configuration that checks out", func() {
		path := filepath.Join(GinkgoT().TempDir(), "core.json")

		_, err := run("config", "dump", path)
		Expect(err).NotTo(HaveOccurred())

		got, err := run("config", "check", path)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(ContainSubstring("ok"))
	})

	It("should dump to stdout", func() {
		got, err := run("config", "dump")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(ContainSubstring(`"issue_width": 1`))
	})

	It("should report an invalid configuration", func() {
		path := filepath.Join(GinkgoT().TempDir(), "core.json")
		Expect(os.WriteFile(path, []byte(`{"xlen": 16}`), 0644)).To(Succeed())

		_, err := run("config", "check", path)
		Expect(err).To(MatchError(config.ErrInvalid))
	})
})
