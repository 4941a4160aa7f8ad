package emu

import "github.com/sarchlab/coresim/insts"

// BranchTaken evaluates a conditional branch on canonical register values.
func BranchTaken(op insts.Op, a, b uint64, xlen int) bool {
	switch op {
	case insts.OpBEQ:
		return a == b
	case insts.OpBNE:
		return a != b
	case insts.OpBLT:
		return Signed(xlen, a) < Signed(xlen, b)
	case insts.OpBGE:
		return Signed(xlen, a) >= Signed(xlen, b)
	case insts.OpBLTU:
		return a < b
	case insts.OpBGEU:
		return a >= b
	}

	return false
}

// JumpTarget computes the target of a control-flow instruction. For JALR the
// low bit is cleared.
func JumpTarget(inst *insts.Instruction, pc, rs1 uint64, xlen int) uint64 {
	if inst.Op == insts.OpJALR {
		return Canon(xlen, rs1+uint64(inst.Imm)) &^ 1
	}

	return Canon(xlen, pc+uint64(inst.Imm))
}
