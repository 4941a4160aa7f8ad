package emu

import "github.com/sarchlab/coresim/insts"

// EffectiveAddr computes the address of a load or store.
func EffectiveAddr(inst *insts.Instruction, rs1 uint64, xlen int) uint64 {
	return Canon(xlen, rs1+uint64(inst.Imm))
}

// Misaligned reports whether an access of size bytes at addr is not
// naturally aligned.
func Misaligned(addr uint64, size int) bool {
	return addr&uint64(size-1) != 0
}

// LoadExtend sign- or zero-extends size bytes of raw loaded data to a
// canonical register value.
func LoadExtend(raw uint64, size int, unsigned bool, xlen int) uint64 {
	if size >= 8 {
		return Canon(xlen, raw)
	}

	shift := uint(64 - 8*size)
	if unsigned {
		return Canon(xlen, raw<<shift>>shift)
	}

	return Canon(xlen, uint64(int64(raw<<shift)>>shift))
}

// StoreMask returns the value truncated to the store size.
func StoreMask(value uint64, size int) uint64 {
	if size >= 8 {
		return value
	}

	return value & (1<<(8*uint(size)) - 1)
}
