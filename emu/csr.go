package emu

import "github.com/sarchlab/coresim/insts"

// CSR numbers implemented by the model.
const (
	CSRSATP     uint16 = 0x180
	CSRMStatus  uint16 = 0x300
	CSRMISA     uint16 = 0x301
	CSRMTVec    uint16 = 0x305
	CSRMScratch uint16 = 0x340
	CSRMEPC     uint16 = 0x341
	CSRMCause   uint16 = 0x342
	CSRMTVal    uint16 = 0x343
	CSRMCycle   uint16 = 0xb00
	CSRMInstret uint16 = 0xb02
	CSRMHartID  uint16 = 0xf14
)

// Sv39 satp fields.
const (
	SATPModeSv39  = 8
	satpModeShift = 60
	satpASIDShift = 44
	satpASIDMask  = 0xffff
	satpPPNMask   = 1<<44 - 1
)

// CSRFile holds the machine-mode control and status registers.
type CSRFile struct {
	xlen int
	regs map[uint16]uint64
}

// NewCSRFile creates a CSR file with reset values.
func NewCSRFile(xlen int) *CSRFile {
	c := &CSRFile{xlen: xlen, regs: make(map[uint16]uint64)}
	for _, csr := range []uint16{
		CSRSATP, CSRMStatus, CSRMTVec, CSRMScratch, CSRMEPC, CSRMCause,
		CSRMTVal, CSRMCycle, CSRMInstret,
	} {
		c.regs[csr] = 0
	}

	return c
}

// Read returns the value of a CSR. ok is false for unimplemented CSRs.
func (c *CSRFile) Read(csr uint16) (value uint64, ok bool) {
	switch csr {
	case CSRMISA:
		if c.xlen == 32 {
			return 1<<30 | 1<<8 | 1<<12, true // RV32IM
		}
		return 2<<62 | 1<<8 | 1<<12, true // RV64IM
	case CSRMHartID:
		return 0, true
	}

	value, ok = c.regs[csr]

	return value, ok
}

// Write sets a CSR. ok is false for unimplemented or read-only CSRs.
func (c *CSRFile) Write(csr uint16, value uint64) (ok bool) {
	if _, exists := c.regs[csr]; !exists {
		return false
	}

	switch {
	case csr == CSRSATP && c.xlen == 32:
		value = 0
	case csr == CSRMEPC:
		// IALIGN is 32.
		value &^= 3
	}

	c.regs[csr] = Canon(c.xlen, value)

	return true
}

// Exec performs a CSR instruction and returns the old value, which the
// caller writes to rd. ok is false if the access is illegal.
func (c *CSRFile) Exec(inst *insts.Instruction, rs1 uint64) (old uint64, ok bool) {
	old, ok = c.Read(inst.CSR)
	if !ok {
		return 0, false
	}

	src := rs1
	if inst.CSRImm {
		src = uint64(inst.Imm)
	}

	switch inst.Op {
	case insts.OpCSRRW:
		ok = c.Write(inst.CSR, src)
	case insts.OpCSRRS:
		if inst.Rs1 != 0 {
			ok = c.Write(inst.CSR, old|src)
		}
	case insts.OpCSRRC:
		if inst.Rs1 != 0 {
			ok = c.Write(inst.CSR, old&^src)
		}
	}

	return old, ok
}

// Trap records a trap and returns the handler address.
func (c *CSRFile) Trap(cause Cause, epc, tval uint64) uint64 {
	c.regs[CSRMEPC] = epc &^ 3
	c.regs[CSRMCause] = uint64(cause)
	c.regs[CSRMTVal] = Canon(c.xlen, tval)

	return c.regs[CSRMTVec] &^ 3
}

// MRet returns the address to resume at after a trap handler.
func (c *CSRFile) MRet() uint64 {
	return c.regs[CSRMEPC]
}

// Retire bumps the retired-instruction counter.
func (c *CSRFile) Retire() {
	c.regs[CSRMInstret]++
}

// Tick bumps the cycle counter.
func (c *CSRFile) Tick() {
	c.regs[CSRMCycle]++
}

// SATP returns the decoded address-translation register: whether Sv39 is
// enabled, the root page-table PPN and the ASID.
func (c *CSRFile) SATP() (enable bool, rootPPN uint64, asid uint16) {
	satp := c.regs[CSRSATP]

	return satp>>satpModeShift == SATPModeSv39,
		satp & satpPPNMask,
		uint16(satp >> satpASIDShift & satpASIDMask)
}

// MakeSATP builds an Sv39 satp value.
func MakeSATP(rootPPN uint64, asid uint16) uint64 {
	return SATPModeSv39<<satpModeShift |
		uint64(asid)<<satpASIDShift |
		rootPPN&satpPPNMask
}
