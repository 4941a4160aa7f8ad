package main

import (
	"github.com/spf13/cobra"
)

// exitCode is the exit code of the simulated program.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "coresim",
	Short: "Coresim is a cycle-level RISC-V core simulator.",
	Long: `Coresim runs RISC-V programs on a cycle-level model of a single ` +
		`core with its caches, translation units and devices, or on the ` +
		`functional emulator.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newBenchCmd())
}
