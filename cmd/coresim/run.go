package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime/pprof"

	"github.com/spf13/cobra"

	"github.com/sarchlab/coresim/emu"
	"github.com/sarchlab/coresim/loader"
	"github.com/sarchlab/coresim/timing/config"
	"github.com/sarchlab/coresim/timing/core"
	"github.com/sarchlab/coresim/timing/trace"
)

type runOptions struct {
	configPath string
	raw        bool
	loadAddr   uint64
	xlen       int
	maxCycles  uint64
	functional bool

	outOfOrder bool
	noICache   bool
	noDCache   bool

	tracePath  string
	stats      bool
	verbose    bool
	cpuProfile string
	memProfile string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [flags] <program>",
		Short: "Run a program.",
		Long: `Run loads an ELF executable, or a flat binary with --raw, and ` +
			`runs it until it executes the halt instruction. The exit code ` +
			`of the program becomes the exit code of coresim.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := runProgram(args[0], opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			exitCode = int(code)

			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "core configuration JSON file")
	f.BoolVar(&opts.raw, "raw", false, "load a flat binary instead of an ELF file")
	f.Uint64Var(&opts.loadAddr, "load-addr", loader.DefaultLoadAddr,
		"load and entry address of a flat binary")
	f.IntVar(&opts.xlen, "xlen", 64, "register width of a flat binary")
	f.Uint64Var(&opts.maxCycles, "max-cycles", 0, "stop after this many cycles (0 = no limit)")
	f.BoolVar(&opts.functional, "functional", false, "run on the functional emulator")
	f.BoolVar(&opts.outOfOrder, "ooo", false, "use the out-of-order backend at issue width 2")
	f.BoolVar(&opts.noICache, "no-icache", false, "disable the instruction cache")
	f.BoolVar(&opts.noDCache, "no-dcache", false, "disable the data cache")
	f.StringVar(&opts.tracePath, "trace", "",
		"write a commit trace; .csv for CSV, anything else for SQLite")
	f.BoolVar(&opts.stats, "stats", false, "print statistics at the end")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	f.StringVar(&opts.cpuProfile, "cpuprofile", "", "write a CPU profile to file")
	f.StringVar(&opts.memProfile, "memprofile", "", "write a memory profile to file")

	return cmd
}

func (o *runOptions) load(path string) (*loader.Program, error) {
	if o.raw {
		return loader.LoadRaw(path, o.loadAddr, o.xlen)
	}

	return loader.Load(path)
}

func (o *runOptions) coreConfig(prog *loader.Program) (*config.Config, error) {
	cfg := config.Default()

	if o.configPath != "" {
		var err error

		cfg, err = config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
	}

	cfg.XLEN = prog.XLEN
	cfg.ResetVector = prog.EntryPoint

	if o.outOfOrder {
		cfg.EnableOutOfOrder = true
		cfg.IssueWidth = 2
	}

	if o.noICache {
		cfg.HasICache = false
	}

	if o.noDCache {
		cfg.HasDCache = false
	}

	return cfg, nil
}

func runProgram(path string, o *runOptions, out io.Writer) (int64, error) {
	if o.cpuProfile != "" {
		f, err := os.Create(o.cpuProfile)
		if err != nil {
			return 0, fmt.Errorf("failed to create CPU profile: %w", err)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			return 0, fmt.Errorf("failed to start CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	prog, err := o.load(path)
	if err != nil {
		return 0, err
	}

	if o.verbose {
		log.Printf("loaded %s: entry 0x%x, %d segments, RV%d",
			path, prog.EntryPoint, len(prog.Segments), prog.XLEN)
	}

	var code int64
	if o.functional {
		code, err = runFunctional(prog, o, out)
	} else {
		code, err = runTiming(prog, o, out)
	}

	if err != nil {
		return 0, err
	}

	if o.memProfile != "" {
		if err := writeHeapProfile(o.memProfile); err != nil {
			return 0, err
		}
	}

	return code, nil
}

func writeHeapProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create memory profile: %w", err)
	}
	defer func() { _ = f.Close() }()

	return pprof.WriteHeapProfile(f)
}

func runFunctional(prog *loader.Program, o *runOptions, out io.Writer) (int64, error) {
	memory := emu.NewMemory()
	prog.LoadInto(memory)

	opts := []emu.EmulatorOption{emu.WithMemory(memory), emu.WithXLEN(prog.XLEN)}
	if o.maxCycles > 0 {
		opts = append(opts, emu.WithMaxInstructions(o.maxCycles))
	}

	e := emu.NewEmulator(opts...)
	e.SetPC(prog.EntryPoint)

	code, err := e.Run()
	if err != nil {
		return 0, err
	}

	if o.stats {
		fmt.Fprintf(out, "Instructions: %d\n", e.InstructionCount())
	}

	return code, nil
}

func runTiming(prog *loader.Program, o *runOptions, out io.Writer) (int64, error) {
	cfg, err := o.coreConfig(prog)
	if err != nil {
		return 0, err
	}

	sys, err := core.NewSystem(cfg, core.WithConsole(out))
	if err != nil {
		return 0, err
	}

	prog.LoadInto(sys.Memory)

	flush, err := attachTracer(sys, o.tracePath)
	if err != nil {
		return 0, err
	}

	code, runErr := sys.Run(o.maxCycles)

	if err := flush(); err != nil {
		return 0, err
	}

	if runErr != nil {
		return 0, runErr
	}

	if o.stats {
		printStats(out, sys.Stats())
	}

	return code, nil
}

// attachTracer hooks a tracer to the core and returns the function that
// finishes the trace.
func attachTracer(sys *core.System, path string) (func() error, error) {
	if path == "" {
		return func() error { return nil }, nil
	}

	if filepath.Ext(path) != ".csv" {
		w := trace.NewSQLiteWriter(path)
		if err := w.Init(); err != nil {
			return nil, err
		}

		tracer := trace.NewTracer(sys.Core.Clock(), w)
		sys.Core.AcceptHook(tracer)

		return func() error {
			if err := tracer.Err(); err != nil {
				return err
			}

			return w.Close()
		}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}

	w := trace.NewCSVWriter(f)
	if err := w.Init(); err != nil {
		_ = f.Close()
		return nil, err
	}

	tracer := trace.NewTracer(sys.Core.Clock(), w)
	sys.Core.AcceptHook(tracer)

	return func() error {
		defer func() { _ = f.Close() }()

		if err := tracer.Err(); err != nil {
			return err
		}

		return w.Flush()
	}, nil
}

func printStats(out io.Writer, s core.SystemStats) {
	c := s.Core

	fmt.Fprintf(out, "Cycles:        %d\n", c.Cycles)
	fmt.Fprintf(out, "Instructions:  %d\n", c.Instructions)
	fmt.Fprintf(out, "CPI:           %.3f\n", c.CPI())
	fmt.Fprintf(out, "Redirects:     %d\n", c.Redirects)
	fmt.Fprintf(out, "Mispredicts:   %d\n", c.Backend.Mispredicts)
	fmt.Fprintf(out, "Traps:         %d\n", c.Backend.Traps)
	fmt.Fprintf(out, "Loads/Stores:  %d/%d\n", c.Backend.Loads, c.Backend.Stores)
	fmt.Fprintf(out, "ICache:        %d hits, %d misses\n", c.ICache.Hits, c.ICache.Misses)
	fmt.Fprintf(out, "DCache:        %d hits, %d misses, %d writebacks\n",
		c.DCache.Hits, c.DCache.Misses, c.DCache.Writebacks)
	fmt.Fprintf(out, "ITLB/DTLB:     %d/%d walks\n", c.ITLB.Walks, c.DTLB.Walks)
	fmt.Fprintf(out, "Memory:        %d reads, %d writes\n",
		s.IMem.Reads+s.DMem.Reads, s.IMem.Writes+s.DMem.Writes)
	fmt.Fprintf(out, "Devices:       %d reads, %d writes, %d faults\n",
		s.Devices.Reads, s.Devices.Writes, s.Devices.Faults)
}
