package insts

// Op represents a RISC-V operation.
type Op uint16

// RISC-V operations. Register and immediate forms share an Op and are told
// apart by Format.
const (
	OpUnknown Op = iota
	OpADD
	OpSUB
	OpSLL
	OpSLT
	OpSLTU
	OpXOR
	OpSRL
	OpSRA
	OpOR
	OpAND
	OpMUL
	OpMULH
	OpMULHSU
	OpMULHU
	OpDIV
	OpDIVU
	OpREM
	OpREMU
	OpLUI
	OpAUIPC
	OpJAL
	OpJALR
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU
	OpLOAD
	OpSTORE
	OpCSRRW
	OpCSRRS
	OpCSRRC
	OpECALL
	OpEBREAK
	OpMRET
	OpFENCE
	OpSFENCE
	OpTRAP
)

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown  Format = iota
	FormatReg             // R-type ALU
	FormatImm             // I-type ALU
	FormatUpper           // U-type (LUI, AUIPC)
	FormatJump            // J-type (JAL)
	FormatJumpReg         // I-type jump (JALR)
	FormatBranch          // B-type
	FormatLoad            // I-type load
	FormatStore           // S-type
	FormatCSR             // CSR access
	FormatSystem          // ECALL, EBREAK, MRET, fences, halt
)

// Class identifies the functional unit an instruction executes on.
type Class uint8

// Functional unit classes.
const (
	ClassALU Class = iota
	ClassMul
	ClassDiv
	ClassBranch
	ClassLoad
	ClassStore
	ClassCSR
	ClassSystem
)

// Major opcodes, bits [6:0].
const (
	opcodeLoad     = 0x03
	opcodeMiscMem  = 0x0f
	opcodeOpImm    = 0x13
	opcodeAUIPC    = 0x17
	opcodeOpImm32  = 0x1b
	opcodeStore    = 0x23
	opcodeOp       = 0x33
	opcodeLUI      = 0x37
	opcodeOp32     = 0x3b
	opcodeBranch   = 0x63
	opcodeJALR     = 0x67
	opcodeTrap     = 0x6b
	opcodeJAL      = 0x6f
	opcodeSystem   = 0x73
	funct7Alt      = 0x20
	funct7MulDiv   = 0x01
	funct7SFence   = 0x09
	immMRET        = 0x302
	immWFI         = 0x105
	immEBREAK      = 0x001
	immECALL       = 0x000
	regZero        = 0
)

// Instruction represents a decoded RISC-V instruction.
type Instruction struct {
	Op     Op     // Operation
	Format Format // Encoding format
	Class  Class  // Functional unit

	Rd  uint8 // Destination register
	Rs1 uint8 // First source register (uimm for immediate CSR forms)
	Rs2 uint8 // Second source register

	Imm int64 // Sign-extended immediate

	// Word is set for the RV64 *W operations that work on the low 32 bits
	// and sign-extend the result.
	Word bool

	// Memory access fields.
	Size     int  // Access size in bytes
	Unsigned bool // Zero-extend loaded value

	// CSR fields.
	CSR    uint16 // CSR number
	CSRImm bool   // Rs1 holds a 5-bit immediate

	Raw uint32 // Undecoded instruction word
}

// IsBranch returns true for conditional branches.
func (i *Instruction) IsBranch() bool { return i.Format == FormatBranch }

// IsJump returns true for JAL and JALR.
func (i *Instruction) IsJump() bool {
	return i.Format == FormatJump || i.Format == FormatJumpReg
}

// IsControlFlow returns true if the instruction may change the next PC.
func (i *Instruction) IsControlFlow() bool { return i.IsBranch() || i.IsJump() }

// IsLoad returns true for loads.
func (i *Instruction) IsLoad() bool { return i.Format == FormatLoad }

// IsStore returns true for stores.
func (i *Instruction) IsStore() bool { return i.Format == FormatStore }

// IsMem returns true for loads and stores.
func (i *Instruction) IsMem() bool { return i.IsLoad() || i.IsStore() }

// IsSerializing returns true for instructions that must execute alone at the
// commit point and restart fetch afterwards.
func (i *Instruction) IsSerializing() bool {
	return i.Format == FormatCSR || i.Format == FormatSystem
}

// WritesRd returns true if the instruction produces a register result.
func (i *Instruction) WritesRd() bool {
	if i.Rd == regZero {
		return false
	}

	switch i.Format {
	case FormatReg, FormatImm, FormatUpper, FormatJump, FormatJumpReg,
		FormatLoad, FormatCSR:
		return true
	default:
		return false
	}
}

// ReadsRs1 returns true if Rs1 names a source register.
func (i *Instruction) ReadsRs1() bool {
	switch i.Format {
	case FormatReg, FormatImm, FormatJumpReg, FormatBranch, FormatLoad,
		FormatStore:
		return true
	case FormatCSR:
		return !i.CSRImm
	case FormatSystem:
		return i.Op == OpTRAP
	default:
		return false
	}
}

// ReadsRs2 returns true if Rs2 names a source register.
func (i *Instruction) ReadsRs2() bool {
	switch i.Format {
	case FormatReg, FormatBranch, FormatStore:
		return true
	default:
		return false
	}
}

// Decoder decodes RISC-V machine code into instructions.
type Decoder struct {
	xlen int
}

// NewDecoder creates a decoder for the given XLEN (32 or 64). Encodings that
// only exist in RV64 decode as OpUnknown when xlen is 32.
func NewDecoder(xlen int) *Decoder {
	if xlen != 32 {
		xlen = 64
	}

	return &Decoder{xlen: xlen}
}

// XLEN returns the register width the decoder targets.
func (d *Decoder) XLEN() int {
	return d.xlen
}

// Decode decodes a 32-bit instruction word.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{Op: OpUnknown, Format: FormatUnknown, Raw: word}

	inst.Rd = uint8((word >> 7) & 0x1f)
	inst.Rs1 = uint8((word >> 15) & 0x1f)
	inst.Rs2 = uint8((word >> 20) & 0x1f)

	switch word & 0x7f {
	case opcodeLUI, opcodeAUIPC:
		d.decodeUpper(word, inst)
	case opcodeJAL:
		d.decodeJAL(word, inst)
	case opcodeJALR:
		d.decodeJALR(word, inst)
	case opcodeBranch:
		d.decodeBranch(word, inst)
	case opcodeLoad:
		d.decodeLoad(word, inst)
	case opcodeStore:
		d.decodeStore(word, inst)
	case opcodeOpImm:
		d.decodeOpImm(word, inst, false)
	case opcodeOpImm32:
		if d.xlen == 64 {
			d.decodeOpImm(word, inst, true)
		}
	case opcodeOp:
		d.decodeOp(word, inst, false)
	case opcodeOp32:
		if d.xlen == 64 {
			d.decodeOp(word, inst, true)
		}
	case opcodeMiscMem:
		inst.Format = FormatSystem
		inst.Class = ClassSystem
		inst.Op = OpFENCE
	case opcodeSystem:
		d.decodeSystem(word, inst)
	case opcodeTrap:
		inst.Format = FormatSystem
		inst.Class = ClassSystem
		inst.Op = OpTRAP
		inst.Rs1 = 10 // a0 holds the exit code
	}

	if inst.Op == OpUnknown {
		inst.Format = FormatUnknown
		inst.Class = ClassSystem
	}

	return inst
}

func immI(word uint32) int64 {
	return int64(int32(word) >> 20)
}

func immS(word uint32) int64 {
	return int64((int32(word)>>25)<<5 | int32((word>>7)&0x1f))
}

func immB(word uint32) int64 {
	imm := (word>>31)&0x1<<12 |
		(word>>7)&0x1<<11 |
		(word>>25)&0x3f<<5 |
		(word>>8)&0xf<<1

	return int64(int32(imm<<19) >> 19)
}

func immU(word uint32) int64 {
	return int64(int32(word & 0xfffff000))
}

func immJ(word uint32) int64 {
	imm := (word>>31)&0x1<<20 |
		(word>>12)&0xff<<12 |
		(word>>20)&0x1<<11 |
		(word>>21)&0x3ff<<1

	return int64(int32(imm<<11) >> 11)
}

func (d *Decoder) decodeUpper(word uint32, inst *Instruction) {
	inst.Format = FormatUpper
	inst.Class = ClassALU
	inst.Imm = immU(word)

	if word&0x7f == opcodeLUI {
		inst.Op = OpLUI
	} else {
		inst.Op = OpAUIPC
	}
}

func (d *Decoder) decodeJAL(word uint32, inst *Instruction) {
	inst.Format = FormatJump
	inst.Class = ClassBranch
	inst.Op = OpJAL
	inst.Imm = immJ(word)
}

func (d *Decoder) decodeJALR(word uint32, inst *Instruction) {
	if (word>>12)&0x7 != 0 {
		return
	}

	inst.Format = FormatJumpReg
	inst.Class = ClassBranch
	inst.Op = OpJALR
	inst.Imm = immI(word)
}

func (d *Decoder) decodeBranch(word uint32, inst *Instruction) {
	ops := [8]Op{OpBEQ, OpBNE, OpUnknown, OpUnknown, OpBLT, OpBGE, OpBLTU, OpBGEU}

	inst.Op = ops[(word>>12)&0x7]
	inst.Format = FormatBranch
	inst.Class = ClassBranch
	inst.Imm = immB(word)
}

// decodeLoad decodes LB, LH, LW, LD, LBU, LHU and LWU.
func (d *Decoder) decodeLoad(word uint32, inst *Instruction) {
	funct3 := (word >> 12) & 0x7

	sizes := [8]int{1, 2, 4, 8, 1, 2, 4, 0}
	inst.Size = sizes[funct3]
	inst.Unsigned = funct3 >= 4

	if inst.Size == 0 || (d.xlen == 32 && (funct3 == 3 || funct3 == 6)) {
		return
	}

	inst.Op = OpLOAD
	inst.Format = FormatLoad
	inst.Class = ClassLoad
	inst.Imm = immI(word)
}

// decodeStore decodes SB, SH, SW and SD.
func (d *Decoder) decodeStore(word uint32, inst *Instruction) {
	funct3 := (word >> 12) & 0x7
	if funct3 > 3 || (d.xlen == 32 && funct3 == 3) {
		return
	}

	inst.Op = OpSTORE
	inst.Format = FormatStore
	inst.Class = ClassStore
	inst.Size = 1 << funct3
	inst.Imm = immS(word)
}

// decodeOpImm decodes OP-IMM and, for word, OP-IMM-32.
// Format: imm[11:0] | rs1 | funct3 | rd | opcode
func (d *Decoder) decodeOpImm(word uint32, inst *Instruction, w bool) {
	funct3 := (word >> 12) & 0x7
	inst.Format = FormatImm
	inst.Class = ClassALU
	inst.Word = w
	inst.Imm = immI(word)

	shamtBits := uint32(5)
	if d.xlen == 64 && !w {
		shamtBits = 6
	}
	shamt := int64((word >> 20) & (1<<shamtBits - 1))
	upper := word >> (20 + shamtBits)

	switch funct3 {
	case 0:
		inst.Op = OpADD
	case 1:
		if upper == 0 {
			inst.Op = OpSLL
			inst.Imm = shamt
		}
	case 5:
		switch upper << (shamtBits - 5) {
		case 0:
			inst.Op = OpSRL
			inst.Imm = shamt
		case funct7Alt:
			inst.Op = OpSRA
			inst.Imm = shamt
		}
	case 2:
		inst.Op = OpSLT
	case 3:
		inst.Op = OpSLTU
	case 4:
		inst.Op = OpXOR
	case 6:
		inst.Op = OpOR
	case 7:
		inst.Op = OpAND
	}

	if w && funct3 != 0 && funct3 != 1 && funct3 != 5 {
		inst.Op = OpUnknown
	}
}

// decodeOp decodes OP and, for word, OP-32.
// Format: funct7 | rs2 | rs1 | funct3 | rd | opcode
func (d *Decoder) decodeOp(word uint32, inst *Instruction, w bool) {
	funct3 := (word >> 12) & 0x7
	funct7 := word >> 25
	inst.Format = FormatReg
	inst.Class = ClassALU
	inst.Word = w

	switch funct7 {
	case 0:
		ops := [8]Op{OpADD, OpSLL, OpSLT, OpSLTU, OpXOR, OpSRL, OpOR, OpAND}
		inst.Op = ops[funct3]
	case funct7Alt:
		switch funct3 {
		case 0:
			inst.Op = OpSUB
		case 5:
			inst.Op = OpSRA
		}
	case funct7MulDiv:
		ops := [8]Op{OpMUL, OpMULH, OpMULHSU, OpMULHU, OpDIV, OpDIVU, OpREM, OpREMU}
		inst.Op = ops[funct3]
		inst.Class = ClassMul
		if funct3 >= 4 {
			inst.Class = ClassDiv
		}
	}

	if w {
		switch inst.Op {
		case OpADD, OpSUB, OpSLL, OpSRL, OpSRA, OpMUL, OpDIV, OpDIVU, OpREM, OpREMU:
		default:
			inst.Op = OpUnknown
		}
	}
}

func (d *Decoder) decodeSystem(word uint32, inst *Instruction) {
	funct3 := (word >> 12) & 0x7
	inst.Format = FormatSystem
	inst.Class = ClassSystem

	if funct3 == 0 {
		switch {
		case word>>25 == funct7SFence && inst.Rd == regZero:
			inst.Op = OpSFENCE
		case inst.Rd != regZero || inst.Rs1 != regZero:
		case word>>20 == immECALL:
			inst.Op = OpECALL
		case word>>20 == immEBREAK:
			inst.Op = OpEBREAK
		case word>>20 == immMRET:
			inst.Op = OpMRET
		case word>>20 == immWFI:
			inst.Op = OpFENCE
		}

		return
	}

	ops := [4]Op{OpUnknown, OpCSRRW, OpCSRRS, OpCSRRC}
	inst.Op = ops[funct3&0x3]
	inst.Format = FormatCSR
	inst.Class = ClassCSR
	inst.CSR = uint16(word >> 20)
	inst.CSRImm = funct3 >= 4
	inst.Imm = int64(inst.Rs1)
}
