// Package main provides the coresim command, which runs RISC-V programs on
// the cycle-level core model or on the functional emulator.
package main

import (
	"github.com/tebeka/atexit"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(exitCode)
}
