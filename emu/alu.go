package emu

import (
	"math"
	"math/bits"

	"github.com/sarchlab/coresim/insts"
)

// ALU computes the result of a register or immediate integer operation.
// Word operations (and every operation at XLEN 32) work on the low 32 bits;
// at XLEN 64 the word result is sign-extended.
func ALU(op insts.Op, a, b uint64, word bool, xlen int) uint64 {
	if xlen == 32 {
		return uint64(alu32(op, uint32(a), uint32(b)))
	}

	if word {
		return uint64(int64(int32(alu32(op, uint32(a), uint32(b)))))
	}

	return alu64(op, a, b)
}

func alu32(op insts.Op, a, b uint32) uint32 {
	switch op {
	case insts.OpADD:
		return a + b
	case insts.OpSUB:
		return a - b
	case insts.OpSLL:
		return a << (b & 31)
	case insts.OpSLT:
		return boolBit32(int32(a) < int32(b))
	case insts.OpSLTU:
		return boolBit32(a < b)
	case insts.OpXOR:
		return a ^ b
	case insts.OpSRL:
		return a >> (b & 31)
	case insts.OpSRA:
		return uint32(int32(a) >> (b & 31))
	case insts.OpOR:
		return a | b
	case insts.OpAND:
		return a & b
	case insts.OpMUL:
		return a * b
	case insts.OpMULH:
		return uint32(uint64(int64(int32(a))*int64(int32(b))) >> 32)
	case insts.OpMULHSU:
		return uint32(uint64(int64(int32(a))*int64(b)) >> 32)
	case insts.OpMULHU:
		return uint32(uint64(a) * uint64(b) >> 32)
	case insts.OpDIV:
		switch {
		case b == 0:
			return math.MaxUint32
		case int32(a) == math.MinInt32 && int32(b) == -1:
			return a
		}
		return uint32(int32(a) / int32(b))
	case insts.OpDIVU:
		if b == 0 {
			return math.MaxUint32
		}
		return a / b
	case insts.OpREM:
		switch {
		case b == 0:
			return a
		case int32(a) == math.MinInt32 && int32(b) == -1:
			return 0
		}
		return uint32(int32(a) % int32(b))
	case insts.OpREMU:
		if b == 0 {
			return a
		}
		return a % b
	}

	return 0
}

func alu64(op insts.Op, a, b uint64) uint64 {
	switch op {
	case insts.OpADD:
		return a + b
	case insts.OpSUB:
		return a - b
	case insts.OpSLL:
		return a << (b & 63)
	case insts.OpSLT:
		return boolBit64(int64(a) < int64(b))
	case insts.OpSLTU:
		return boolBit64(a < b)
	case insts.OpXOR:
		return a ^ b
	case insts.OpSRL:
		return a >> (b & 63)
	case insts.OpSRA:
		return uint64(int64(a) >> (b & 63))
	case insts.OpOR:
		return a | b
	case insts.OpAND:
		return a & b
	case insts.OpMUL:
		return a * b
	case insts.OpMULH:
		hi, _ := bits.Mul64(a, b)
		if int64(a) < 0 {
			hi -= b
		}
		if int64(b) < 0 {
			hi -= a
		}
		return hi
	case insts.OpMULHSU:
		hi, _ := bits.Mul64(a, b)
		if int64(a) < 0 {
			hi -= b
		}
		return hi
	case insts.OpMULHU:
		hi, _ := bits.Mul64(a, b)
		return hi
	case insts.OpDIV:
		switch {
		case b == 0:
			return math.MaxUint64
		case int64(a) == math.MinInt64 && int64(b) == -1:
			return a
		}
		return uint64(int64(a) / int64(b))
	case insts.OpDIVU:
		if b == 0 {
			return math.MaxUint64
		}
		return a / b
	case insts.OpREM:
		switch {
		case b == 0:
			return a
		case int64(a) == math.MinInt64 && int64(b) == -1:
			return 0
		}
		return uint64(int64(a) % int64(b))
	case insts.OpREMU:
		if b == 0 {
			return a
		}
		return a % b
	}

	return 0
}

func boolBit32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

func boolBit64(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}
