package emu

// RegFile represents the RISC-V integer register file.
// x0 always reads as zero. With XLEN 32 every value is kept zero-extended
// to 64 bits.
type RegFile struct {
	// X holds general-purpose registers x0-x31.
	X [32]uint64

	// PC is the program counter.
	PC uint64

	xlen int
}

// NewRegFile creates a register file for the given XLEN.
func NewRegFile(xlen int) *RegFile {
	return &RegFile{xlen: xlen}
}

// XLEN returns the register width.
func (r *RegFile) XLEN() int {
	if r.xlen == 32 {
		return 32
	}

	return 64
}

// ReadReg reads a register value. Register 0 returns 0.
func (r *RegFile) ReadReg(reg uint8) uint64 {
	if reg == 0 || reg >= 32 {
		return 0
	}

	return r.X[reg]
}

// WriteReg writes a value to a register. Writes to x0 are ignored.
func (r *RegFile) WriteReg(reg uint8, value uint64) {
	if reg == 0 || reg >= 32 {
		return
	}

	r.X[reg] = Canon(r.XLEN(), value)
}

// Canon truncates a value to the XLEN register width.
func Canon(xlen int, value uint64) uint64 {
	if xlen == 32 {
		return uint64(uint32(value))
	}

	return value
}

// Signed interprets a canonical register value as a signed integer.
func Signed(xlen int, value uint64) int64 {
	if xlen == 32 {
		return int64(int32(value))
	}

	return int64(value)
}
