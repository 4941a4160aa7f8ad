package emu

import "github.com/sarchlab/coresim/insts"

// Cause is a RISC-V synchronous exception code.
type Cause uint64

// Exception causes.
const (
	CauseFetchMisaligned Cause = 0
	CauseFetchAccess     Cause = 1
	CauseIllegal         Cause = 2
	CauseBreakpoint      Cause = 3
	CauseLoadMisaligned  Cause = 4
	CauseLoadAccess      Cause = 5
	CauseStoreMisaligned Cause = 6
	CauseStoreAccess     Cause = 7
	CauseECall           Cause = 11
	CauseFetchPageFault  Cause = 12
	CauseLoadPageFault   Cause = 13
	CauseStorePageFault  Cause = 15
)

// Exception describes a pending synchronous exception.
type Exception struct {
	Valid bool
	Cause Cause
	Tval  uint64
}

// Outcome is the result of executing one instruction on its operands.
// Memory and system instructions only produce their address or operand
// fields here; the caller performs the access or the CSR side effects.
type Outcome struct {
	// Value is the register result.
	Value uint64

	// NextPC is the architecturally correct next PC.
	NextPC uint64

	// Taken is set for taken branches and all jumps.
	Taken bool

	// Addr is the effective address of a load or store.
	Addr uint64

	// StoreData is the value a store writes, truncated to its size.
	StoreData uint64

	Exception Exception
}

// Execute computes the outcome of inst at pc given its source operands.
// It has no side effects.
func Execute(inst *insts.Instruction, pc, rs1, rs2 uint64, xlen int) Outcome {
	o := Outcome{NextPC: Canon(xlen, pc+4)}

	switch inst.Format {
	case insts.FormatReg:
		o.Value = ALU(inst.Op, rs1, rs2, inst.Word, xlen)
	case insts.FormatImm:
		o.Value = ALU(inst.Op, rs1, uint64(inst.Imm), inst.Word, xlen)
	case insts.FormatUpper:
		o.Value = uint64(inst.Imm)
		if inst.Op == insts.OpAUIPC {
			o.Value += pc
		}
	case insts.FormatJump, insts.FormatJumpReg:
		o.Value = pc + 4
		o.Taken = true
		o.NextPC = JumpTarget(inst, pc, rs1, xlen)
	case insts.FormatBranch:
		if BranchTaken(inst.Op, rs1, rs2, xlen) {
			o.Taken = true
			o.NextPC = JumpTarget(inst, pc, rs1, xlen)
		}
	case insts.FormatLoad, insts.FormatStore:
		executeMem(inst, rs1, rs2, xlen, &o)
	case insts.FormatCSR, insts.FormatSystem:
		executeSystem(inst, pc, &o)
	default:
		o.Exception = Exception{Valid: true, Cause: CauseIllegal, Tval: uint64(inst.Raw)}
	}

	if o.Taken && o.NextPC&3 != 0 {
		o.Exception = Exception{Valid: true, Cause: CauseFetchMisaligned, Tval: o.NextPC}
	}

	o.Value = Canon(xlen, o.Value)

	return o
}

func executeMem(inst *insts.Instruction, rs1, rs2 uint64, xlen int, o *Outcome) {
	o.Addr = EffectiveAddr(inst, rs1, xlen)

	if inst.IsStore() {
		o.StoreData = StoreMask(rs2, inst.Size)
	}

	if !Misaligned(o.Addr, inst.Size) {
		return
	}

	cause := CauseLoadMisaligned
	if inst.IsStore() {
		cause = CauseStoreMisaligned
	}

	o.Exception = Exception{Valid: true, Cause: cause, Tval: o.Addr}
}

func executeSystem(inst *insts.Instruction, pc uint64, o *Outcome) {
	switch inst.Op {
	case insts.OpECALL:
		o.Exception = Exception{Valid: true, Cause: CauseECall}
	case insts.OpEBREAK:
		o.Exception = Exception{Valid: true, Cause: CauseBreakpoint, Tval: pc}
	}
}
