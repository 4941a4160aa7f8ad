package emu

import (
	"errors"

	"github.com/sarchlab/coresim/insts"
)

// ErrMaxInstructions is returned when the instruction limit is reached.
var ErrMaxInstructions = errors.New("max instructions reached")

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// PC is the address of the executed instruction.
	PC uint64

	// Rd and Value describe the register write, if WroteReg is set.
	Rd       uint8
	Value    uint64
	WroteReg bool

	// Trapped is set if the instruction raised an exception.
	Trapped bool
	Cause   Cause

	// Exited is true if the program executed the halt instruction.
	Exited bool

	// ExitCode is the value of a0 at the halt instruction.
	ExitCode int64

	// Err is set if an error occurred during execution.
	Err error
}

// Emulator executes RISC-V instructions functionally against physical
// memory. It does not model address translation or devices.
type Emulator struct {
	regFile *RegFile
	csrs    *CSRFile
	memory  *Memory
	decoder *insts.Decoder
	xlen    int

	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit

	exited   bool
	exitCode int64
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithXLEN selects RV32 or RV64.
func WithXLEN(xlen int) EmulatorOption {
	return func(e *Emulator) {
		e.xlen = xlen
	}
}

// WithMemory makes the emulator operate on an existing memory.
func WithMemory(m *Memory) EmulatorOption {
	return func(e *Emulator) {
		e.memory = m
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// NewEmulator creates a new RISC-V emulator.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{xlen: 64}

	for _, opt := range opts {
		opt(e)
	}

	if e.xlen != 32 {
		e.xlen = 64
	}

	if e.memory == nil {
		e.memory = NewMemory()
	}

	e.regFile = NewRegFile(e.xlen)
	e.csrs = NewCSRFile(e.xlen)
	e.decoder = insts.NewDecoder(e.xlen)

	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// CSRs returns the emulator's CSR file.
func (e *Emulator) CSRs() *CSRFile {
	return e.csrs
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// LoadProgram loads a program image into memory and sets the entry point.
func (e *Emulator) LoadProgram(entry uint64, program []byte) {
	e.memory.LoadProgram(entry, program)
	e.regFile.PC = entry
}

// SetPC sets the program counter.
func (e *Emulator) SetPC(pc uint64) {
	e.regFile.PC = pc
}

// Step executes a single instruction.
func (e *Emulator) Step() StepResult {
	if e.exited {
		return StepResult{Exited: true, ExitCode: e.exitCode}
	}

	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{Err: ErrMaxInstructions}
	}

	pc := e.regFile.PC
	if pc&3 != 0 {
		e.instructionCount++
		e.csrs.Tick()
		e.regFile.PC = e.csrs.Trap(CauseFetchMisaligned, pc, pc)

		return StepResult{PC: pc, Trapped: true, Cause: CauseFetchMisaligned}
	}

	inst := e.decoder.Decode(e.memory.Read32(pc))
	rs1 := e.regFile.ReadReg(inst.Rs1)
	rs2 := e.regFile.ReadReg(inst.Rs2)

	o := Execute(inst, pc, rs1, rs2, e.xlen)
	result := StepResult{PC: pc}

	e.instructionCount++
	e.csrs.Tick()

	if !o.Exception.Valid {
		o = e.complete(inst, rs1, o, &result)
	}

	if o.Exception.Valid {
		result.Trapped = true
		result.Cause = o.Exception.Cause
		e.regFile.PC = e.csrs.Trap(o.Exception.Cause, pc, o.Exception.Tval)

		return result
	}

	e.csrs.Retire()

	if inst.WritesRd() {
		e.regFile.WriteReg(inst.Rd, o.Value)
		result.Rd = inst.Rd
		result.Value = e.regFile.ReadReg(inst.Rd)
		result.WroteReg = true
	}

	e.regFile.PC = o.NextPC

	if result.Exited {
		e.exited = true
		e.exitCode = result.ExitCode
	}

	return result
}

// complete performs the memory and system side effects of an instruction.
func (e *Emulator) complete(
	inst *insts.Instruction,
	rs1 uint64,
	o Outcome,
	result *StepResult,
) Outcome {
	switch {
	case inst.IsLoad():
		raw := e.memory.Read(o.Addr, inst.Size)
		o.Value = LoadExtend(raw, inst.Size, inst.Unsigned, e.xlen)
	case inst.IsStore():
		e.memory.Write(o.Addr, inst.Size, o.StoreData)
	case inst.Format == insts.FormatCSR:
		old, ok := e.csrs.Exec(inst, rs1)
		if !ok {
			o.Exception = Exception{Valid: true, Cause: CauseIllegal, Tval: uint64(inst.Raw)}
		}
		o.Value = old
	case inst.Op == insts.OpMRET:
		o.NextPC = e.csrs.MRet()
	case inst.Op == insts.OpTRAP:
		result.Exited = true
		result.ExitCode = Signed(e.xlen, rs1)
	}

	return o
}

// Run executes until the halt instruction, an error, or the instruction
// limit.
func (e *Emulator) Run() (exitCode int64, err error) {
	for {
		result := e.Step()
		if result.Err != nil {
			return 0, result.Err
		}

		if result.Exited {
			return result.ExitCode, nil
		}
	}
}
