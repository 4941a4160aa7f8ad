package backend

import (
	"log"

	"github.com/sarchlab/coresim/emu"
	"github.com/sarchlab/coresim/insts"
	"github.com/sarchlab/coresim/timing/addrspace"
	"github.com/sarchlab/coresim/timing/bus"
	"github.com/sarchlab/coresim/timing/config"
	"github.com/sarchlab/coresim/timing/frontend"
	"github.com/sarchlab/coresim/timing/stage"
)

const numRegs = 32

type entryState uint8

const (
	entryWaiting entryState = iota
	entryExecuting
	entryMemory
	entryDone
)

// operand is a renamed source: either a value or the sequence number of the
// in-flight producer.
type operand struct {
	ready bool
	value uint64
	tag   uint64
}

type robEntry struct {
	seq uint64
	d   frontend.DecodedInst

	src1, src2 operand

	state   entryState
	doneAt  uint64
	outcome emu.Outcome

	serializing bool
	squashed    bool

	// Stores are written at commit.
	sent    bool
	written bool
}

func (e *robEntry) isStore() bool {
	return e.d.Fault == bus.FaultNone && e.d.Inst.IsStore()
}

// OutOfOrder is the superscalar backend. Up to IssueWidth instructions per
// cycle are dispatched into a reorder buffer, renamed by ROB sequence
// number, issued oldest-ready-first and committed in program order.
//
// Loads issue once every older store knows its address. A load fully covered
// by the youngest overlapping older store takes its data from it; a partial
// overlap waits until the store commits. Loads from MMIO wait until they are
// the oldest instruction. Stores are written at commit. Serializing
// instructions stop dispatch and execute at commit.
type OutOfOrder struct {
	arch

	classifier *addrspace.Classifier
	width      int
	robSize    int
	maxLoads   int

	now     uint64
	nextSeq uint64

	rob         []*robEntry
	producer    [numRegs]*robEntry
	loads       map[uint64]*robEntry
	divFreeAt   uint64
	serializing bool
}

// NewOutOfOrder creates an out-of-order backend.
func NewOutOfOrder(
	name string,
	cfg *config.Config,
	classifier *addrspace.Classifier,
	in *stage.FanIn[frontend.DecodedInst],
	dmem *bus.Link,
) *OutOfOrder {
	return &OutOfOrder{
		arch:       newArch(name, cfg, in, dmem),
		classifier: classifier,
		width:      cfg.IssueWidth,
		robSize:    cfg.ROBSize,
		maxLoads:   cfg.MaxInflightLoads,
		loads:      make(map[uint64]*robEntry),
	}
}

// Stats returns the backend counters.
func (b *OutOfOrder) Stats() Stats {
	return b.stats
}

// Occupancy returns the number of instructions in the reorder buffer.
func (b *OutOfOrder) Occupancy() int {
	return len(b.rob)
}

// InflightLoads returns the number of loads waiting for memory, including
// squashed ones whose responses have not come back.
func (b *OutOfOrder) InflightLoads() int {
	return len(b.loads)
}

// Tick advances the backend by one cycle.
func (b *OutOfOrder) Tick() (madeProgress bool) {
	b.beginCycle()
	defer b.endCycle()

	if b.halted {
		return false
	}

	b.now++

	madeProgress = b.receive() || madeProgress
	madeProgress = b.writeback() || madeProgress
	madeProgress = b.commit() || madeProgress

	if b.halted {
		return true
	}

	madeProgress = b.issue() || madeProgress

	// A redirect this cycle flushes the input fan-in.
	if !b.redirected {
		madeProgress = b.dispatch() || madeProgress
	}

	return madeProgress
}

func (b *OutOfOrder) receive() bool {
	madeProgress := false

	for {
		resp := b.dmem.RecvResp()
		if resp == nil {
			return madeProgress
		}

		madeProgress = true

		if e, ok := b.loads[resp.Tag]; ok {
			delete(b.loads, resp.Tag)
			b.loadReturned(e, resp)

			continue
		}

		if len(b.rob) > 0 && b.rob[0].sent && !b.rob[0].written &&
			b.rob[0].seq == resp.Tag {
			b.storeReturned(b.rob[0], resp)
			continue
		}

		log.Panicf("backend %s: response with unknown tag %d",
			b.name, resp.Tag)
	}
}

func (b *OutOfOrder) loadReturned(e *robEntry, resp *bus.Response) {
	if e.squashed {
		return
	}

	if resp.Fault != bus.FaultNone {
		e.outcome.Exception = memException(e.d.Inst, resp.Fault, e.outcome.Addr)
	} else {
		e.outcome.Value = emu.LoadExtend(resp.Value(), e.d.Inst.Size,
			e.d.Inst.Unsigned, b.xlen)
	}

	b.complete(e)
}

func (b *OutOfOrder) storeReturned(e *robEntry, resp *bus.Response) {
	e.written = true

	if resp.Fault != bus.FaultNone {
		e.outcome.Exception = memException(e.d.Inst, resp.Fault, e.outcome.Addr)
	}
}

func (b *OutOfOrder) writeback() bool {
	madeProgress := false

	for _, e := range b.rob {
		if e.squashed || e.state != entryExecuting || e.doneAt > b.now {
			continue
		}

		b.complete(e)
		madeProgress = true
	}

	return madeProgress
}

// complete marks an entry done, wakes up its consumers and checks the
// predicted next PC.
func (b *OutOfOrder) complete(e *robEntry) {
	e.state = entryDone

	if e.d.Inst.WritesRd() {
		for _, c := range b.rob {
			c.src1.wake(e)
			c.src2.wake(e)
		}
	}

	if e.outcome.Exception.Valid {
		return
	}

	if e.outcome.NextPC != e.d.PNPC {
		b.squashAfter(e.seq)
		b.resolve(e.d, e.outcome.NextPC)
	}
}

func (o *operand) wake(p *robEntry) {
	if !o.ready && o.tag == p.seq {
		o.ready = true
		o.value = p.outcome.Value
	}
}

func (b *OutOfOrder) commit() bool {
	madeProgress := false

	for i := 0; i < b.width && len(b.rob) > 0; i++ {
		e := b.rob[0]
		if e.state != entryDone {
			break
		}

		if e.isStore() && !e.written && !e.outcome.Exception.Valid {
			madeProgress = b.writeStore(e) || madeProgress
			break
		}

		b.pop()
		madeProgress = true

		if b.commitEntry(e) {
			break
		}
	}

	return madeProgress
}

// commitEntry retires the head. It returns true if commit must stop for
// this cycle.
func (b *OutOfOrder) commitEntry(e *robEntry) bool {
	if e.d.Fault != bus.FaultNone {
		b.trap(e.d, fetchException(e.d))
		b.squashAll()

		return true
	}

	if e.outcome.Exception.Valid {
		b.trap(e.d, e.outcome.Exception)
		b.squashAll()

		return true
	}

	if !e.serializing {
		b.retire(e.d, e.outcome, e.src1.value)
		return false
	}

	b.serializing = false

	rs1 := b.regs.ReadReg(e.d.Inst.Rs1)
	rs2 := b.regs.ReadReg(e.d.Inst.Rs2)

	o := emu.Execute(e.d.Inst, e.d.PC, rs1, rs2, b.xlen)
	if o.Exception.Valid {
		b.trap(e.d, o.Exception)
	} else {
		b.retire(e.d, o, rs1)
	}

	b.squashAll()

	return true
}

func (b *OutOfOrder) writeStore(e *robEntry) bool {
	if e.sent || !b.dmem.CanSend() {
		return false
	}

	b.dmem.Send(memRequest(e.d.Inst, e.outcome, e.seq))
	e.sent = true

	return true
}

func (b *OutOfOrder) pop() {
	e := b.rob[0]
	b.rob = b.rob[1:]

	if e.d.Fault == bus.FaultNone && e.d.Inst.WritesRd() &&
		b.producer[e.d.Inst.Rd] == e {
		b.producer[e.d.Inst.Rd] = nil
	}
}

func (b *OutOfOrder) squashAll() {
	for _, e := range b.rob {
		e.squashed = true
		b.stats.Squashed++
	}

	b.rob = nil
	b.producer = [numRegs]*robEntry{}
	b.serializing = false
}

// squashAfter discards every entry younger than seq and rebuilds the rename
// table from the survivors.
func (b *OutOfOrder) squashAfter(seq uint64) {
	keep := len(b.rob)
	for i, e := range b.rob {
		if e.seq > seq {
			keep = i
			break
		}
	}

	for _, e := range b.rob[keep:] {
		e.squashed = true
		b.stats.Squashed++
	}

	b.rob = b.rob[:keep]
	b.producer = [numRegs]*robEntry{}
	b.serializing = false

	for _, e := range b.rob {
		if e.serializing {
			b.serializing = true
		}

		if e.d.Fault == bus.FaultNone && e.d.Inst.WritesRd() {
			b.producer[e.d.Inst.Rd] = e
		}
	}
}

func (b *OutOfOrder) issue() bool {
	issued := 0

	for idx := 0; idx < len(b.rob) && issued < b.width; idx++ {
		e := b.rob[idx]
		if e.state != entryWaiting || !e.src1.ready || !e.src2.ready {
			continue
		}

		if !b.issueEntry(e, idx) {
			continue
		}

		issued++
		b.stats.Issued++
	}

	return issued > 0
}

func (b *OutOfOrder) issueEntry(e *robEntry, idx int) bool {
	inst := e.d.Inst

	if inst.IsLoad() {
		return b.issueLoad(e, idx)
	}

	if inst.Class == insts.ClassDiv {
		if b.divFreeAt > b.now {
			return false
		}
	}

	e.outcome = emu.Execute(inst, e.d.PC, e.src1.value, e.src2.value, b.xlen)

	if inst.IsStore() || e.outcome.Exception.Valid {
		b.complete(e)
		return true
	}

	lat := b.table.GetOperandLatency(inst, e.src1.value)
	if lat == 0 {
		lat = 1
	}

	if inst.Class == insts.ClassDiv {
		b.divFreeAt = b.now + lat
	}

	e.state = entryExecuting
	e.doneAt = b.now + lat

	return true
}

func (b *OutOfOrder) issueLoad(e *robEntry, idx int) bool {
	inst := e.d.Inst
	o := emu.Execute(inst, e.d.PC, e.src1.value, e.src2.value, b.xlen)

	if o.Exception.Valid {
		e.outcome = o
		b.complete(e)

		return true
	}

	mmio := b.classifier.IsMMIO(o.Addr)
	if mmio && idx != 0 {
		return false
	}

	switch b.olderStores(idx, o.Addr, inst.Size) {
	case storesPending:
		return false
	case storeCovers:
		if mmio {
			return false
		}

		b.forward(e, idx, o)

		return true
	}

	if len(b.loads) >= b.maxLoads || !b.dmem.CanSend() {
		return false
	}

	b.dmem.Send(memRequest(inst, o, e.seq))
	b.loads[e.seq] = e
	e.outcome = o
	e.state = entryMemory

	return true
}

type storeCheck int

const (
	storesClear storeCheck = iota
	storesPending
	storeCovers
)

// olderStores checks the stores older than the entry at idx against a load
// of size bytes at addr. The youngest overlapping store decides.
func (b *OutOfOrder) olderStores(idx int, addr uint64, size int) storeCheck {
	for j := idx - 1; j >= 0; j-- {
		s := b.rob[j]
		if !s.isStore() {
			continue
		}

		if s.state != entryDone {
			return storesPending
		}

		if s.outcome.Exception.Valid {
			continue
		}

		sAddr, sSize := s.outcome.Addr, uint64(s.d.Inst.Size)
		if addr+uint64(size) <= sAddr || sAddr+sSize <= addr {
			continue
		}

		if addr >= sAddr && addr+uint64(size) <= sAddr+sSize {
			return storeCovers
		}

		return storesPending
	}

	return storesClear
}

// forward completes a load from the youngest older store that covers it.
func (b *OutOfOrder) forward(e *robEntry, idx int, o emu.Outcome) {
	inst := e.d.Inst

	for j := idx - 1; j >= 0; j-- {
		s := b.rob[j]
		if !s.isStore() || s.outcome.Exception.Valid {
			continue
		}

		shift := (o.Addr - s.outcome.Addr) * 8
		if o.Addr < s.outcome.Addr ||
			o.Addr+uint64(inst.Size) > s.outcome.Addr+uint64(s.d.Inst.Size) {
			continue
		}

		raw := emu.StoreMask(s.outcome.StoreData>>shift, inst.Size)
		o.Value = emu.LoadExtend(raw, inst.Size, inst.Unsigned, b.xlen)

		break
	}

	e.outcome = o
	e.state = entryExecuting
	e.doneAt = b.now + 1
	b.stats.ForwardedLoads++
}

func (b *OutOfOrder) dispatch() bool {
	madeProgress := false

	for i := 0; i < b.width; i++ {
		if b.serializing || len(b.rob) >= b.robSize {
			break
		}

		if _, ok := b.in.PeekOldest(); !ok {
			break
		}

		b.rob = append(b.rob, b.rename(b.in.DeliverOldest()))
		b.stats.Dispatched++
		madeProgress = true
	}

	if len(b.rob) > b.stats.PeakOccupancy {
		b.stats.PeakOccupancy = len(b.rob)
	}

	return madeProgress
}

func (b *OutOfOrder) rename(d frontend.DecodedInst) *robEntry {
	e := &robEntry{seq: b.nextSeq, d: d}
	b.nextSeq++

	switch {
	case d.Fault != bus.FaultNone:
		e.state = entryDone
	case d.Inst.IsSerializing():
		e.state = entryDone
		e.serializing = true
		b.serializing = true
	default:
		e.src1 = b.source(d.Inst.Rs1, d.Inst.ReadsRs1())
		e.src2 = b.source(d.Inst.Rs2, d.Inst.ReadsRs2())

		if d.Inst.WritesRd() {
			b.producer[d.Inst.Rd] = e
		}
	}

	return e
}

func (b *OutOfOrder) source(reg uint8, reads bool) operand {
	if !reads {
		return operand{ready: true}
	}

	p := b.producer[reg]

	switch {
	case reg == 0 || p == nil:
		return operand{ready: true, value: b.regs.ReadReg(reg)}
	case p.state == entryDone:
		return operand{ready: true, value: p.outcome.Value}
	default:
		return operand{tag: p.seq}
	}
}
