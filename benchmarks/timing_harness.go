// Package benchmarks runs small kernels on the timing core and reports their
// cycle counts.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sarchlab/coresim/emu"
	"github.com/sarchlab/coresim/timing/config"
	"github.com/sarchlab/coresim/timing/core"
)

const (
	// ProgramAddr is where every benchmark is loaded and started.
	ProgramAddr = uint64(0x8000_0000)

	dataOffset = 0x10000

	// DataAddr is where Benchmark.Data is placed. Programs reach it with
	// AUIPC from their first instruction.
	DataAddr = ProgramAddr + dataOffset
)

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	SimulatedCycles     uint64  `json:"simulated_cycles"`
	InstructionsRetired uint64  `json:"instructions_retired"`
	CPI                 float64 `json:"cpi"`

	// StallCycles counts cycles in which nothing was committed.
	StallCycles uint64 `json:"stall_cycles"`
	Redirects   uint64 `json:"redirects"`

	ICacheHits   uint64 `json:"icache_hits,omitempty"`
	ICacheMisses uint64 `json:"icache_misses,omitempty"`
	DCacheHits   uint64 `json:"dcache_hits,omitempty"`
	DCacheMisses uint64 `json:"dcache_misses,omitempty"`

	BranchPredictions    uint64 `json:"branch_predictions,omitempty"`
	BranchMispredictions uint64 `json:"branch_mispredictions,omitempty"`

	ExitCode int64  `json:"exit_code"`
	Passed   bool   `json:"passed"`
	Error    string `json:"error,omitempty"`

	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	Name        string
	Description string

	// Program is the machine code loaded at ProgramAddr.
	Program []uint32

	// Data is written as doublewords at DataAddr before the run.
	Data []uint64

	ExpectedExit int64
}

// Reference runs the benchmark on the functional emulator and returns its
// exit code and instruction count.
func (b Benchmark) Reference() (int64, uint64, error) {
	memory := emu.NewMemory()
	b.load(memory)

	e := emu.NewEmulator(emu.WithMemory(memory), emu.WithMaxInstructions(1_000_000))
	e.SetPC(ProgramAddr)

	code, err := e.Run()

	return code, e.InstructionCount(), err
}

func (b Benchmark) load(memory *emu.Memory) {
	memory.LoadWords(ProgramAddr, b.Program)

	for i, v := range b.Data {
		memory.Write64(DataAddr+uint64(8*i), v)
	}
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Core is the core configuration. Its reset vector is replaced by
	// ProgramAddr.
	Core *config.Config

	// MaxCycles bounds each run. Zero means no bound.
	MaxCycles uint64

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Core:      config.Default(),
		MaxCycles: 1_000_000,
		Output:    os.Stdout,
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	return &Harness{config: config}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results. A benchmark that fails
// to run is reported in its result rather than stopping the others.
func (h *Harness) RunAll() []BenchmarkResult {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		result := h.runBenchmark(bench)
		if h.config.Verbose {
			_, _ = fmt.Fprintf(h.config.Output, "%s: %d cycles, exit %d\n",
				result.Name, result.SimulatedCycles, result.ExitCode)
		}

		results = append(results, result)
	}

	return results
}

func (h *Harness) runBenchmark(bench Benchmark) BenchmarkResult {
	result := BenchmarkResult{Name: bench.Name, Description: bench.Description}

	cfg := h.config.Core.Clone()
	cfg.ResetVector = ProgramAddr

	sys, err := core.NewSystem(cfg, core.WithConsole(io.Discard))
	if err != nil {
		result.Error = err.Error()
		return result
	}

	bench.load(sys.Memory)

	start := time.Now()
	exitCode, err := sys.Run(h.config.MaxCycles)
	result.WallTime = time.Since(start)

	if err != nil {
		result.Error = err.Error()
	}

	stats := sys.Stats().Core
	result.SimulatedCycles = stats.Cycles
	result.InstructionsRetired = stats.Instructions
	result.CPI = stats.CPI()
	result.StallCycles = stats.Backend.StallCycles
	result.Redirects = stats.Redirects
	result.ICacheHits = stats.ICache.Hits
	result.ICacheMisses = stats.ICache.Misses
	result.DCacheHits = stats.DCache.Hits
	result.DCacheMisses = stats.DCache.Misses
	result.BranchPredictions = stats.Frontend.Predictor.Updates
	result.BranchMispredictions = stats.Backend.Mispredicts
	result.ExitCode = exitCode
	result.Passed = err == nil && exitCode == bench.ExpectedExit

	return result
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	out := h.config.Output

	_, _ = fmt.Fprintln(out, "=== Timing Benchmark Results ===")
	_, _ = fmt.Fprintln(out, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(out, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(out, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(out, "  Exit Code: %d (passed: %v)\n", r.ExitCode, r.Passed)

		if r.Error != "" {
			_, _ = fmt.Fprintf(out, "  Error: %s\n", r.Error)
		}

		_, _ = fmt.Fprintln(out, "  --- Timing ---")
		_, _ = fmt.Fprintf(out, "  Simulated Cycles:     %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(out, "  Instructions Retired: %d\n", r.InstructionsRetired)
		_, _ = fmt.Fprintf(out, "  CPI:                  %.3f\n", r.CPI)
		_, _ = fmt.Fprintf(out, "  Stall Cycles:         %d\n", r.StallCycles)
		_, _ = fmt.Fprintf(out, "  Redirects:            %d\n", r.Redirects)

		if r.ICacheHits > 0 || r.ICacheMisses > 0 {
			_, _ = fmt.Fprintln(out, "  --- I-Cache ---")
			_, _ = fmt.Fprintf(out, "  Hits:   %d\n", r.ICacheHits)
			_, _ = fmt.Fprintf(out, "  Misses: %d\n", r.ICacheMisses)
		}

		if r.DCacheHits > 0 || r.DCacheMisses > 0 {
			_, _ = fmt.Fprintln(out, "  --- D-Cache ---")
			_, _ = fmt.Fprintf(out, "  Hits:   %d\n", r.DCacheHits)
			_, _ = fmt.Fprintf(out, "  Misses: %d\n", r.DCacheMisses)
		}

		if r.BranchPredictions > 0 {
			_, _ = fmt.Fprintln(out, "  --- Branch Predictor ---")
			_, _ = fmt.Fprintf(out, "  Predictions:     %d\n", r.BranchPredictions)
			_, _ = fmt.Fprintf(out, "  Mispredictions:  %d\n", r.BranchMispredictions)
		}

		_, _ = fmt.Fprintf(out, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(out, "")
	}
}

// PrintCSV outputs benchmark results in CSV format.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,instructions,cpi,stalls,redirects,icache_hits,icache_misses,dcache_hits,dcache_misses,exit_code,passed")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%.3f,%d,%d,%d,%d,%d,%d,%d,%v\n",
			r.Name,
			r.SimulatedCycles,
			r.InstructionsRetired,
			r.CPI,
			r.StallCycles,
			r.Redirects,
			r.ICacheHits,
			r.ICacheMisses,
			r.DCacheHits,
			r.DCacheMisses,
			r.ExitCode,
			r.Passed,
		)
	}
}

// BenchmarkReport is the JSON form of a harness run.
type BenchmarkReport struct {
	Metadata ReportMetadata    `json:"metadata"`
	Results  []BenchmarkResult `json:"results"`
	Summary  ReportSummary     `json:"summary"`
}

// ReportMetadata describes the run.
type ReportMetadata struct {
	Timestamp string         `json:"timestamp"`
	Config    *config.Config `json:"config"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	TotalBenchmarks   int           `json:"total_benchmarks"`
	Passed            int           `json:"passed"`
	TotalCycles       uint64        `json:"total_cycles"`
	TotalInstructions uint64        `json:"total_instructions"`
	AverageCPI        float64       `json:"average_cpi"`
	TotalWallTime     time.Duration `json:"total_wall_time_ns"`
}

// Summarize aggregates results.
func Summarize(results []BenchmarkResult) ReportSummary {
	s := ReportSummary{TotalBenchmarks: len(results)}

	for _, r := range results {
		s.TotalCycles += r.SimulatedCycles
		s.TotalInstructions += r.InstructionsRetired
		s.TotalWallTime += r.WallTime

		if r.Passed {
			s.Passed++
		}
	}

	if s.TotalInstructions > 0 {
		s.AverageCPI = float64(s.TotalCycles) / float64(s.TotalInstructions)
	}

	return s
}

// PrintJSON outputs benchmark results in JSON format.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Config:    h.config.Core,
		},
		Results: results,
		Summary: Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")

	return encoder.Encode(report)
}
