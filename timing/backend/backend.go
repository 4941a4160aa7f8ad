// Package backend provides the execution backends of the core. Both take
// decoded instructions from the frontend fan-in, access data memory over a
// bus link, and retire in program order. A backend reports control-flow
// changes as a Redirect, which the core turns into a flush and a fetch
// restart.
package backend

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/coresim/emu"
	"github.com/sarchlab/coresim/insts"
	"github.com/sarchlab/coresim/timing/addrspace"
	"github.com/sarchlab/coresim/timing/bus"
	"github.com/sarchlab/coresim/timing/config"
	"github.com/sarchlab/coresim/timing/frontend"
	"github.com/sarchlab/coresim/timing/latency"
	"github.com/sarchlab/coresim/timing/stage"
	"github.com/sarchlab/coresim/timing/tlb"
)

// HookPosCommit marks the retirement of an instruction. The hook item is a
// Commit.
var HookPosCommit = &sim.HookPos{Name: "Commit"}

// Reason tells why the backend redirected fetch.
type Reason uint8

// Redirect reasons.
const (
	ReasonMispredict Reason = iota
	ReasonException
	ReasonSerialize
	ReasonReturn
	numReasons
)

var reasonNames = [numReasons]string{
	"Mispredict", "Exception", "Serialize", "Return",
}

func (r Reason) String() string {
	if r >= numReasons {
		return "Unknown"
	}

	return reasonNames[r]
}

// Redirect asks the frontend to restart at Target. PC is the address of the
// instruction that caused it.
type Redirect struct {
	PC     uint64
	Target uint64
	Reason Reason
}

// Commit describes one retired instruction.
type Commit struct {
	Seq   uint64
	PC    uint64
	Instr uint32

	Rd       uint8
	Value    uint64
	WroteReg bool

	Store     bool
	StoreAddr uint64
	StoreData uint64
	StoreSize int

	// Trapped is set if the instruction raised an exception instead of
	// retiring. No register was written.
	Trapped bool
	Cause   emu.Cause
}

// Stats holds the backend counters.
type Stats struct {
	Cycles    uint64
	Committed uint64
	Traps     uint64

	Branches    uint64
	Mispredicts uint64
	Loads       uint64
	Stores      uint64

	// Redirects counts redirects per Reason.
	Redirects [numReasons]uint64

	// StallCycles counts cycles in which nothing was committed.
	StallCycles uint64

	// Out-of-order only.
	Dispatched     uint64
	Issued         uint64
	Squashed       uint64
	ForwardedLoads uint64
	PeakOccupancy  int
}

// CPI returns the cycles per committed instruction.
func (s Stats) CPI() float64 {
	if s.Committed == 0 {
		return 0
	}

	return float64(s.Cycles) / float64(s.Committed)
}

// IPC returns the committed instructions per cycle.
func (s Stats) IPC() float64 {
	if s.Cycles == 0 {
		return 0
	}

	return float64(s.Committed) / float64(s.Cycles)
}

// Backend is the execution half of a core.
type Backend interface {
	sim.Hookable

	Name() string
	Tick() (madeProgress bool)

	// Redirect returns the redirect raised in the current cycle.
	Redirect() (Redirect, bool)

	// TakeUpdates returns the branch outcomes resolved since the last call.
	TakeUpdates() []frontend.BranchUpdate

	// TranslationControl returns the translation setting of satp.
	TranslationControl() tlb.Control

	// TakeSFence reports, once, that an sfence.vma retired.
	TakeSFence() bool

	Halted() bool
	ExitCode() int64
	RegFile() *emu.RegFile
	CSRs() *emu.CSRFile
	Stats() Stats
}

// New builds the backend variant cfg selects.
func New(
	name string,
	cfg *config.Config,
	classifier *addrspace.Classifier,
	in *stage.FanIn[frontend.DecodedInst],
	dmem *bus.Link,
) Backend {
	if cfg.EnableOutOfOrder {
		return NewOutOfOrder(name, cfg, classifier, in, dmem)
	}

	return NewInOrder(name, cfg, in, dmem)
}

// arch is the architectural state and the retirement logic both variants
// share.
type arch struct {
	sim.HookableBase

	name  string
	xlen  int
	regs  *emu.RegFile
	csrs  *emu.CSRFile
	table *latency.Table
	in    *stage.FanIn[frontend.DecodedInst]
	dmem  *bus.Link

	redirect   Redirect
	redirected bool
	updates    []frontend.BranchUpdate
	sfence     bool

	halted   bool
	exitCode int64

	seq       uint64
	committed bool
	stats     Stats
}

func newArch(
	name string,
	cfg *config.Config,
	in *stage.FanIn[frontend.DecodedInst],
	dmem *bus.Link,
) arch {
	sim.NameMustBeValid(name)

	regs := emu.NewRegFile(cfg.XLEN)
	regs.PC = cfg.ResetVector

	return arch{
		name:  name,
		xlen:  cfg.XLEN,
		regs:  regs,
		csrs:  emu.NewCSRFile(cfg.XLEN),
		table: latency.NewTableWithConfig(cfg.Timing),
		in:    in,
		dmem:  dmem,
	}
}

// Name returns the name of the backend.
func (a *arch) Name() string {
	return a.name
}

// RegFile returns the architectural registers.
func (a *arch) RegFile() *emu.RegFile {
	return a.regs
}

// CSRs returns the control and status registers.
func (a *arch) CSRs() *emu.CSRFile {
	return a.csrs
}

// Halted returns true once the halt instruction retired.
func (a *arch) Halted() bool {
	return a.halted
}

// ExitCode returns a0 at the halt instruction.
func (a *arch) ExitCode() int64 {
	return a.exitCode
}

// Redirect returns the redirect raised in the current cycle.
func (a *arch) Redirect() (Redirect, bool) {
	return a.redirect, a.redirected
}

// TakeUpdates returns and clears the resolved branch outcomes.
func (a *arch) TakeUpdates() []frontend.BranchUpdate {
	u := a.updates
	a.updates = nil

	return u
}

// TakeSFence reports and clears a retired sfence.vma.
func (a *arch) TakeSFence() bool {
	s := a.sfence
	a.sfence = false

	return s
}

// TranslationControl decodes satp.
func (a *arch) TranslationControl() tlb.Control {
	enable, root, asid := a.csrs.SATP()

	return tlb.Control{Enable: enable, RootPPN: root, ASID: asid}
}

func (a *arch) beginCycle() {
	a.csrs.Tick()
	a.stats.Cycles++
	a.redirected = false
	a.committed = false
}

func (a *arch) endCycle() {
	if !a.committed && !a.halted {
		a.stats.StallCycles++
	}
}

// raise records a redirect for this cycle. A later call in the same cycle
// comes from an older instruction and wins.
func (a *arch) raise(r Redirect) {
	a.redirect = r
	a.redirected = true
	a.stats.Redirects[r.Reason]++
}

// resolve checks a control-flow outcome against the prediction and raises a
// mispredict redirect on a mismatch.
func (a *arch) resolve(d frontend.DecodedInst, nextPC uint64) bool {
	if nextPC == d.PNPC {
		return false
	}

	a.stats.Mispredicts++
	a.raise(Redirect{PC: d.PC, Target: nextPC, Reason: ReasonMispredict})

	return true
}

// trap takes an exception for the instruction at pc.
func (a *arch) trap(d frontend.DecodedInst, e emu.Exception) {
	target := a.csrs.Trap(e.Cause, d.PC, e.Tval)
	a.regs.PC = target

	a.stats.Traps++
	a.raise(Redirect{PC: d.PC, Target: target, Reason: ReasonException})
	a.publish(Commit{
		PC:      d.PC,
		Instr:   d.Instr,
		Trapped: true,
		Cause:   e.Cause,
	})
}

// retire commits a completed instruction. Serializing instructions perform
// their side effects here, which may still trap. rs1 must be the
// architectural value of the first source.
func (a *arch) retire(d frontend.DecodedInst, o emu.Outcome, rs1 uint64) {
	inst := d.Inst

	switch {
	case inst.Format == insts.FormatCSR:
		old, ok := a.csrs.Exec(inst, rs1)
		if !ok {
			a.trap(d, emu.Exception{
				Valid: true, Cause: emu.CauseIllegal, Tval: uint64(inst.Raw),
			})
			return
		}
		o.Value = old
	case inst.Op == insts.OpMRET:
		o.NextPC = a.csrs.MRet()
	case inst.Op == insts.OpSFENCE:
		a.sfence = true
	case inst.Op == insts.OpTRAP:
		a.halted = true
		a.exitCode = emu.Signed(a.xlen, rs1)
	}

	c := Commit{PC: d.PC, Instr: d.Instr}

	if inst.WritesRd() {
		a.regs.WriteReg(inst.Rd, o.Value)
		c.Rd = inst.Rd
		c.Value = a.regs.ReadReg(inst.Rd)
		c.WroteReg = true
	}

	switch {
	case inst.IsLoad():
		a.stats.Loads++
	case inst.IsStore():
		a.stats.Stores++
		c.Store = true
		c.StoreAddr = o.Addr
		c.StoreData = o.StoreData
		c.StoreSize = inst.Size
	case inst.IsControlFlow():
		a.stats.Branches++
		a.updates = append(a.updates, frontend.BranchUpdate{
			PC: d.PC, Taken: o.Taken, Target: o.NextPC,
		})
	}

	a.csrs.Retire()
	a.regs.PC = o.NextPC
	a.publish(c)

	if inst.IsSerializing() && !a.halted {
		reason := ReasonSerialize
		if inst.Op == insts.OpMRET {
			reason = ReasonReturn
		}

		a.raise(Redirect{PC: d.PC, Target: o.NextPC, Reason: reason})
	}
}

func (a *arch) publish(c Commit) {
	c.Seq = a.seq
	a.seq++
	a.committed = true

	if !c.Trapped {
		a.stats.Committed++
	}

	a.InvokeHook(sim.HookCtx{
		Domain: a,
		Pos:    HookPosCommit,
		Item:   c,
	})
}

// fetchException maps a faulted fetch slot to its exception.
func fetchException(d frontend.DecodedInst) emu.Exception {
	cause := emu.CauseFetchAccess

	switch d.Fault {
	case bus.FaultPage:
		cause = emu.CauseFetchPageFault
	case bus.FaultMisaligned:
		cause = emu.CauseFetchMisaligned
	}

	return emu.Exception{Valid: true, Cause: cause, Tval: d.PC}
}

// memException maps a faulted data access to its exception.
func memException(inst *insts.Instruction, f bus.Fault, addr uint64) emu.Exception {
	var cause emu.Cause

	switch {
	case inst.IsStore() && f == bus.FaultPage:
		cause = emu.CauseStorePageFault
	case inst.IsStore():
		cause = emu.CauseStoreAccess
	case f == bus.FaultPage:
		cause = emu.CauseLoadPageFault
	default:
		cause = emu.CauseLoadAccess
	}

	return emu.Exception{Valid: true, Cause: cause, Tval: addr}
}

// memRequest builds the data access of a load or store.
func memRequest(inst *insts.Instruction, o emu.Outcome, tag uint64) *bus.Request {
	var req *bus.Request
	if inst.IsStore() {
		req = bus.NewWrite(o.Addr, inst.Size, o.StoreData)
	} else {
		req = bus.NewRead(o.Addr, inst.Size)
	}

	req.Tag = tag

	return req
}
