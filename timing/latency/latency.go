// Package latency provides functional-unit and memory latencies for
// cycle-level simulation.
//
// The latency values can be configured via TimingConfig.
package latency

import (
	"math/bits"

	"github.com/sarchlab/coresim/insts"
)

// Table provides instruction latency lookups.
type Table struct {
	config *TimingConfig
}

// NewTableWithConfig creates a new latency table with custom timing configuration.
func NewTableWithConfig(config *TimingConfig) *Table {
	return &Table{
		config: config,
	}
}

// GetLatency returns the execution latency in cycles for the given instruction.
// For divides, returns the typical (midpoint) latency.
func (t *Table) GetLatency(inst *insts.Instruction) uint64 {
	if inst == nil {
		return 1
	}

	switch inst.Class {
	case insts.ClassALU:
		return t.config.ALULatency
	case insts.ClassBranch:
		return t.config.BranchLatency
	case insts.ClassMul:
		return t.config.MultiplyLatency
	case insts.ClassDiv:
		return (t.config.DivideLatencyMin + t.config.DivideLatencyMax) / 2
	case insts.ClassLoad, insts.ClassStore:
		return t.config.AddressLatency
	case insts.ClassCSR, insts.ClassSystem:
		return t.config.SystemLatency
	default:
		return 1
	}
}

// GetOperandLatency returns the latency of inst for a given dividend. Divides
// scale between the minimum and maximum latency with the significant bits of
// the dividend; every other class has a fixed latency.
func (t *Table) GetOperandLatency(inst *insts.Instruction, dividend uint64) uint64 {
	if inst == nil || inst.Class != insts.ClassDiv {
		return t.GetLatency(inst)
	}

	width := 64
	if inst.Word {
		width = 32
		dividend = uint64(uint32(dividend))
	}

	span := t.config.DivideLatencyMax - t.config.DivideLatencyMin
	used := uint64(bits.Len64(dividend))

	return t.config.DivideLatencyMin + span*used/uint64(width)
}

// MispredictPenalty returns the fetch bubble after a mispredict redirect.
func (t *Table) MispredictPenalty() uint64 {
	return t.config.BranchMispredictPenalty
}

// MemoryLatency returns the main memory latency.
func (t *Table) MemoryLatency() uint64 {
	return t.config.MemoryLatency
}

// MMIOLatency returns the device access latency.
func (t *Table) MMIOLatency() uint64 {
	return t.config.MMIOLatency
}

// Config returns the current timing configuration.
func (t *Table) Config() *TimingConfig {
	return t.config
}
