package backend

import (
	"log"

	"github.com/sarchlab/coresim/emu"
	"github.com/sarchlab/coresim/timing/bus"
	"github.com/sarchlab/coresim/timing/config"
	"github.com/sarchlab/coresim/timing/frontend"
	"github.com/sarchlab/coresim/timing/stage"
)

type inOrderState int

const (
	inOrderIdle inOrderState = iota
	inOrderExecute
	inOrderSend
	inOrderWait
)

// InOrder executes one instruction at a time: issue, execute for the
// latency of its functional unit, access memory if needed, commit. Loads and
// stores therefore reach the data link one at a time in program order.
type InOrder struct {
	arch

	state     inOrderState
	cur       frontend.DecodedInst
	rs1       uint64
	outcome   emu.Outcome
	countdown uint64
}

// NewInOrder creates an in-order backend.
func NewInOrder(
	name string,
	cfg *config.Config,
	in *stage.FanIn[frontend.DecodedInst],
	dmem *bus.Link,
) *InOrder {
	return &InOrder{arch: newArch(name, cfg, in, dmem)}
}

// Stats returns the backend counters.
func (b *InOrder) Stats() Stats {
	return b.stats
}

// Busy returns true while an instruction is in flight.
func (b *InOrder) Busy() bool {
	return b.state != inOrderIdle
}

// Tick advances the backend by one cycle.
func (b *InOrder) Tick() (madeProgress bool) {
	b.beginCycle()
	defer b.endCycle()

	if b.halted {
		return false
	}

	switch b.state {
	case inOrderIdle:
		madeProgress = b.issue()
	case inOrderExecute:
		madeProgress = b.execute()
	case inOrderSend:
		madeProgress = b.send()
	case inOrderWait:
		madeProgress = b.wait()
	}

	return madeProgress
}

func (b *InOrder) issue() bool {
	if _, ok := b.in.PeekOldest(); !ok {
		return false
	}

	d := b.in.DeliverOldest()
	b.cur = d

	if d.Fault != bus.FaultNone {
		b.trap(d, fetchException(d))
		return true
	}

	b.rs1 = b.regs.ReadReg(d.Inst.Rs1)
	rs2 := b.regs.ReadReg(d.Inst.Rs2)
	b.outcome = emu.Execute(d.Inst, d.PC, b.rs1, rs2, b.xlen)
	b.countdown = b.table.GetOperandLatency(d.Inst, b.rs1)
	b.state = inOrderExecute
	b.execute()

	return true
}

func (b *InOrder) execute() bool {
	if b.countdown > 1 {
		b.countdown--
		return true
	}

	b.countdown = 0

	switch {
	case b.outcome.Exception.Valid:
		b.finishTrap(b.outcome.Exception)
	case b.cur.Inst.IsMem():
		b.state = inOrderSend
		b.send()
	default:
		b.commit()
	}

	return true
}

func (b *InOrder) send() bool {
	if !b.dmem.CanSend() {
		return false
	}

	b.dmem.Send(memRequest(b.cur.Inst, b.outcome, b.seq))
	b.state = inOrderWait

	return true
}

func (b *InOrder) wait() bool {
	resp := b.dmem.RecvResp()
	if resp == nil {
		return false
	}

	if resp.Tag != b.seq {
		log.Panicf("backend %s: response tag %d, expected %d",
			b.name, resp.Tag, b.seq)
	}

	if resp.Fault != bus.FaultNone {
		b.finishTrap(memException(b.cur.Inst, resp.Fault, b.outcome.Addr))
		return true
	}

	if b.cur.Inst.IsLoad() {
		b.outcome.Value = emu.LoadExtend(resp.Value(), b.cur.Inst.Size,
			b.cur.Inst.Unsigned, b.xlen)
	}

	b.commit()

	return true
}

func (b *InOrder) finishTrap(e emu.Exception) {
	b.trap(b.cur, e)
	b.state = inOrderIdle
}

func (b *InOrder) commit() {
	b.state = inOrderIdle

	if !b.cur.Inst.IsSerializing() {
		b.resolve(b.cur, b.outcome.NextPC)
	}

	b.retire(b.cur, b.outcome, b.rs1)
}
