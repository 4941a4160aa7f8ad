package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/coresim/benchmarks"
	"github.com/sarchlab/coresim/timing/config"
)

type benchOptions struct {
	configPath string
	quick      bool
	csv        bool
	json       bool
	outOfOrder bool
	noICache   bool
	noDCache   bool
	verbose    bool
}

func newBenchCmd() *cobra.Command {
	opts := &benchOptions{}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run the built-in microbenchmarks on the timing core.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "core configuration JSON file")
	f.BoolVar(&opts.quick, "quick", false, "run only the core subset")
	f.BoolVar(&opts.csv, "csv", false, "output results in CSV format")
	f.BoolVar(&opts.json, "json", false, "output results in JSON format")
	f.BoolVar(&opts.outOfOrder, "ooo", false, "use the out-of-order backend at issue width 2")
	f.BoolVar(&opts.noICache, "no-icache", false, "disable the instruction cache")
	f.BoolVar(&opts.noDCache, "no-dcache", false, "disable the data cache")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "print progress")

	return cmd
}

func runBench(opts *benchOptions, cmd *cobra.Command) error {
	cfg := benchmarks.DefaultConfig()
	cfg.Output = cmd.OutOrStdout()
	cfg.Verbose = opts.verbose

	if opts.configPath != "" {
		core, err := config.Load(opts.configPath)
		if err != nil {
			return err
		}

		cfg.Core = core
	}

	if opts.outOfOrder {
		cfg.Core.EnableOutOfOrder = true
		cfg.Core.IssueWidth = 2
	}

	cfg.Core.HasICache = cfg.Core.HasICache && !opts.noICache
	cfg.Core.HasDCache = cfg.Core.HasDCache && !opts.noDCache

	if err := cfg.Core.Validate(); err != nil {
		return err
	}

	harness := benchmarks.NewHarness(cfg)
	if opts.quick {
		harness.AddBenchmarks(benchmarks.GetCoreBenchmarks())
	} else {
		harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	}

	results := harness.RunAll()

	switch {
	case opts.json:
		if err := harness.PrintJSON(results); err != nil {
			return err
		}
	case opts.csv:
		harness.PrintCSV(results)
	default:
		harness.PrintResults(results)
	}

	summary := benchmarks.Summarize(results)
	if summary.Passed != summary.TotalBenchmarks {
		return fmt.Errorf("%d of %d benchmarks failed",
			summary.TotalBenchmarks-summary.Passed, summary.TotalBenchmarks)
	}

	return nil
}
