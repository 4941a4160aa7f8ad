package insts

// Encoders for building programs in tests and microbenchmarks. They cover the
// subset the decoder understands and perform no range checking.

// Common ABI register numbers.
const (
	Zero uint8 = 0
	RA   uint8 = 1
	SP   uint8 = 2
	T0   uint8 = 5
	T1   uint8 = 6
	T2   uint8 = 7
	S0   uint8 = 8
	S1   uint8 = 9
	A0   uint8 = 10
	A1   uint8 = 11
	A2   uint8 = 12
	A3   uint8 = 13
	A4   uint8 = 14
	A5   uint8 = 15
)

// EncodeR encodes an R-type instruction.
func EncodeR(opcode, funct3, funct7 uint32, rd, rs1, rs2 uint8) uint32 {
	return funct7<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 |
		funct3<<12 | uint32(rd)<<7 | opcode
}

// EncodeI encodes an I-type instruction.
func EncodeI(opcode, funct3 uint32, rd, rs1 uint8, imm int32) uint32 {
	return uint32(imm&0xfff)<<20 | uint32(rs1)<<15 |
		funct3<<12 | uint32(rd)<<7 | opcode
}

// EncodeS encodes an S-type instruction.
func EncodeS(opcode, funct3 uint32, rs1, rs2 uint8, imm int32) uint32 {
	u := uint32(imm)
	return (u>>5&0x7f)<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 |
		funct3<<12 | (u&0x1f)<<7 | opcode
}

// EncodeB encodes a B-type instruction with a byte offset.
func EncodeB(funct3 uint32, rs1, rs2 uint8, offset int32) uint32 {
	u := uint32(offset)
	return (u>>12&0x1)<<31 | (u>>5&0x3f)<<25 | uint32(rs2)<<20 |
		uint32(rs1)<<15 | funct3<<12 | (u>>1&0xf)<<8 | (u>>11&0x1)<<7 |
		opcodeBranch
}

// EncodeU encodes a U-type instruction. imm holds the upper 20 bits.
func EncodeU(opcode uint32, rd uint8, imm20 uint32) uint32 {
	return (imm20&0xfffff)<<12 | uint32(rd)<<7 | opcode
}

// EncodeJ encodes a JAL with a byte offset.
func EncodeJ(rd uint8, offset int32) uint32 {
	u := uint32(offset)
	return (u>>20&0x1)<<31 | (u>>1&0x3ff)<<21 | (u>>11&0x1)<<20 |
		(u>>12&0xff)<<12 | uint32(rd)<<7 | opcodeJAL
}

// ADDI encodes addi rd, rs1, imm.
func ADDI(rd, rs1 uint8, imm int32) uint32 {
	return EncodeI(opcodeOpImm, 0, rd, rs1, imm)
}

// ADDIW encodes addiw rd, rs1, imm.
func ADDIW(rd, rs1 uint8, imm int32) uint32 {
	return EncodeI(opcodeOpImm32, 0, rd, rs1, imm)
}

// SLLI encodes slli rd, rs1, shamt.
func SLLI(rd, rs1 uint8, shamt int32) uint32 {
	return EncodeI(opcodeOpImm, 1, rd, rs1, shamt&0x3f)
}

// SRAI encodes srai rd, rs1, shamt.
func SRAI(rd, rs1 uint8, shamt int32) uint32 {
	return EncodeI(opcodeOpImm, 5, rd, rs1, 0x400|shamt&0x3f)
}

// ADD encodes add rd, rs1, rs2.
func ADD(rd, rs1, rs2 uint8) uint32 {
	return EncodeR(opcodeOp, 0, 0, rd, rs1, rs2)
}

// SUB encodes sub rd, rs1, rs2.
func SUB(rd, rs1, rs2 uint8) uint32 {
	return EncodeR(opcodeOp, 0, funct7Alt, rd, rs1, rs2)
}

// MUL encodes mul rd, rs1, rs2.
func MUL(rd, rs1, rs2 uint8) uint32 {
	return EncodeR(opcodeOp, 0, funct7MulDiv, rd, rs1, rs2)
}

// DIV encodes div rd, rs1, rs2.
func DIV(rd, rs1, rs2 uint8) uint32 {
	return EncodeR(opcodeOp, 4, funct7MulDiv, rd, rs1, rs2)
}

// REMU encodes remu rd, rs1, rs2.
func REMU(rd, rs1, rs2 uint8) uint32 {
	return EncodeR(opcodeOp, 7, funct7MulDiv, rd, rs1, rs2)
}

// LUI encodes lui rd, imm20.
func LUI(rd uint8, imm20 uint32) uint32 {
	return EncodeU(opcodeLUI, rd, imm20)
}

// AUIPC encodes auipc rd, imm20.
func AUIPC(rd uint8, imm20 uint32) uint32 {
	return EncodeU(opcodeAUIPC, rd, imm20)
}

// JAL encodes jal rd, offset.
func JAL(rd uint8, offset int32) uint32 {
	return EncodeJ(rd, offset)
}

// JALR encodes jalr rd, imm(rs1).
func JALR(rd, rs1 uint8, imm int32) uint32 {
	return EncodeI(opcodeJALR, 0, rd, rs1, imm)
}

// BEQ encodes beq rs1, rs2, offset.
func BEQ(rs1, rs2 uint8, offset int32) uint32 { return EncodeB(0, rs1, rs2, offset) }

// BNE encodes bne rs1, rs2, offset.
func BNE(rs1, rs2 uint8, offset int32) uint32 { return EncodeB(1, rs1, rs2, offset) }

// BLT encodes blt rs1, rs2, offset.
func BLT(rs1, rs2 uint8, offset int32) uint32 { return EncodeB(4, rs1, rs2, offset) }

// BGE encodes bge rs1, rs2, offset.
func BGE(rs1, rs2 uint8, offset int32) uint32 { return EncodeB(5, rs1, rs2, offset) }

// Load encodes a load of size bytes: lb/lh/lw/ld, or the unsigned forms.
func Load(rd, rs1 uint8, imm int32, size int, unsigned bool) uint32 {
	funct3 := map[int]uint32{1: 0, 2: 1, 4: 2, 8: 3}[size]
	if unsigned {
		funct3 |= 4
	}

	return EncodeI(opcodeLoad, funct3, rd, rs1, imm)
}

// Store encodes a store of size bytes: sb/sh/sw/sd.
func Store(rs2, rs1 uint8, imm int32, size int) uint32 {
	funct3 := map[int]uint32{1: 0, 2: 1, 4: 2, 8: 3}[size]
	return EncodeS(opcodeStore, funct3, rs1, rs2, imm)
}

// LD encodes ld rd, imm(rs1).
func LD(rd, rs1 uint8, imm int32) uint32 { return Load(rd, rs1, imm, 8, false) }

// LW encodes lw rd, imm(rs1).
func LW(rd, rs1 uint8, imm int32) uint32 { return Load(rd, rs1, imm, 4, false) }

// SD encodes sd rs2, imm(rs1).
func SD(rs2, rs1 uint8, imm int32) uint32 { return Store(rs2, rs1, imm, 8) }

// SW encodes sw rs2, imm(rs1).
func SW(rs2, rs1 uint8, imm int32) uint32 { return Store(rs2, rs1, imm, 4) }

// CSRRW encodes csrrw rd, csr, rs1.
func CSRRW(rd uint8, csr uint16, rs1 uint8) uint32 {
	return EncodeI(opcodeSystem, 1, rd, rs1, int32(csr))
}

// CSRRS encodes csrrs rd, csr, rs1.
func CSRRS(rd uint8, csr uint16, rs1 uint8) uint32 {
	return EncodeI(opcodeSystem, 2, rd, rs1, int32(csr))
}

// CSRRWI encodes csrrwi rd, csr, uimm.
func CSRRWI(rd uint8, csr uint16, uimm uint8) uint32 {
	return EncodeI(opcodeSystem, 5, rd, uimm, int32(csr))
}

// ECALL encodes ecall.
func ECALL() uint32 { return opcodeSystem }

// EBREAK encodes ebreak.
func EBREAK() uint32 { return immEBREAK<<20 | opcodeSystem }

// MRET encodes mret.
func MRET() uint32 { return immMRET<<20 | opcodeSystem }

// FENCE encodes fence.
func FENCE() uint32 { return 0x0ff0000f }

// SFENCEVMA encodes sfence.vma zero, zero.
func SFENCEVMA() uint32 { return funct7SFence<<25 | opcodeSystem }

// NOP encodes addi zero, zero, 0.
func NOP() uint32 { return ADDI(Zero, Zero, 0) }

// TRAP encodes the simulator halt instruction. The exit code is taken
// from a0.
func TRAP() uint32 { return opcodeTrap }

// Li returns the instructions that load a signed constant into rd. Values
// within 2 KiB of the int32 maximum are not supported.
func Li(rd uint8, value int32) []uint32 {
	lo := value << 20 >> 20
	hi := uint32(value-lo) >> 12
	if hi == 0 {
		return []uint32{ADDI(rd, Zero, lo)}
	}

	return []uint32{LUI(rd, hi), ADDI(rd, rd, lo)}
}
