package frontend

import (
	"log"

	"github.com/sarchlab/coresim/timing/bus"
	"github.com/sarchlab/coresim/timing/stage"
)

// MaxInflightFetches bounds the fetch blocks requested but not returned.
const MaxInflightFetches = 2

const fetchBlock = 8

// FetchStats counts Fetch activity.
type FetchStats struct {
	Requests     uint64
	Packets      uint64
	Slots        uint64
	Redirects    uint64
	Faults       uint64
	BubbleCycles uint64
}

type inflightFetch struct {
	tag   uint64
	flows []CtrlFlow
}

// Fetch walks the predicted instruction stream. Each cycle it may return
// one block to the instruction buffer and request one more block on the
// instruction link.
type Fetch struct {
	name      string
	imem      *bus.Link
	out       *stage.Connector[FetchPacket]
	predictor *BranchPredictor
	penalty   uint64

	pc       uint64
	epoch    uint64
	nextTag  uint64
	inflight []inflightFetch
	bubble   uint64

	// faulted stops fetching until the next redirect.
	faulted bool

	stats FetchStats
}

// NewFetch creates a Fetch that starts at resetPC. penalty is the number of
// cycles it waits after a mispredict redirect.
func NewFetch(
	name string,
	imem *bus.Link,
	out *stage.Connector[FetchPacket],
	predictor *BranchPredictor,
	resetPC uint64,
	penalty uint64,
) *Fetch {
	return &Fetch{
		name:      name,
		imem:      imem,
		out:       out,
		predictor: predictor,
		penalty:   penalty,
		pc:        resetPC,
	}
}

// Name returns the name of the stage.
func (f *Fetch) Name() string {
	return f.name
}

// PC returns the address of the next block to request.
func (f *Fetch) PC() uint64 {
	return f.pc
}

// Epoch returns the number of redirects so far.
func (f *Fetch) Epoch() uint64 {
	return f.epoch
}

// Stats returns the fetch counters.
func (f *Fetch) Stats() FetchStats {
	return f.stats
}

// Predictor returns the branch predictor.
func (f *Fetch) Predictor() *BranchPredictor {
	return f.predictor
}

// Redirect restarts fetching at target. Outstanding fetches are abandoned;
// the caller flushes the instruction path in the same cycle. A mispredict
// also idles fetch for the penalty.
func (f *Fetch) Redirect(target uint64, mispredicted bool) {
	f.pc = target
	f.epoch++
	f.inflight = nil
	f.faulted = false
	f.bubble = 0
	f.stats.Redirects++

	if mispredicted {
		f.bubble = f.penalty
	}
}

// Train updates the predictor with a resolved control-flow instruction.
func (f *Fetch) Train(u BranchUpdate) {
	f.predictor.Update(u)
}

// Tick advances Fetch by one cycle.
func (f *Fetch) Tick() (madeProgress bool) {
	madeProgress = f.receive() || madeProgress
	madeProgress = f.request() || madeProgress

	return madeProgress
}

func (f *Fetch) receive() bool {
	resp := f.imem.PeekResp()
	if resp == nil {
		return false
	}

	if len(f.inflight) == 0 || resp.Tag != f.inflight[0].tag {
		log.Panicf("fetch %s: response with tag %d does not match the oldest request",
			f.name, resp.Tag)
	}

	if f.faulted {
		f.imem.RecvResp()
		f.inflight = f.inflight[1:]

		return true
	}

	if !f.out.CanAccept() {
		return false
	}

	f.imem.RecvResp()
	block := f.inflight[0]
	f.inflight = f.inflight[1:]

	flows := block.flows
	if resp.Fault != bus.FaultNone {
		flows[0].Fault = resp.Fault
		flows = flows[:1]
		f.faulted = true
		f.stats.Faults++
	} else {
		base := flows[0].PC &^ (fetchBlock - 1)
		for i := range flows {
			off := flows[i].PC - base
			flows[i].Instr = uint32(bus.DecodeValue(resp.Data[off : off+4]))
		}
	}

	f.out.Accept(FetchPacket{Flows: flows})
	f.stats.Packets++
	f.stats.Slots += uint64(len(flows))

	return true
}

func (f *Fetch) request() bool {
	if f.faulted || len(f.inflight) >= MaxInflightFetches {
		return false
	}

	if f.bubble > 0 {
		f.bubble--
		f.stats.BubbleCycles++

		return true
	}

	if f.pc&3 != 0 {
		return f.rejectMisaligned()
	}

	if !f.imem.CanSend() {
		return false
	}

	base := f.pc &^ (fetchBlock - 1)
	flows := f.predictBlock()

	req := bus.NewRead(base, fetchBlock)
	req.Tag = f.nextTag
	req.Exec = true
	f.imem.Send(req)

	f.inflight = append(f.inflight, inflightFetch{tag: f.nextTag, flows: flows})
	f.nextTag++
	f.pc = flows[len(flows)-1].PNPC
	f.stats.Requests++

	return true
}

// rejectMisaligned hands a faulting slot for the current PC to the
// instruction buffer once the older blocks are delivered, and stops
// fetching until the next redirect.
func (f *Fetch) rejectMisaligned() bool {
	if len(f.inflight) > 0 || !f.out.CanAccept() {
		return false
	}

	f.out.Accept(FetchPacket{Flows: []CtrlFlow{{
		PC:    f.pc,
		PNPC:  f.pc,
		Fault: bus.FaultMisaligned,
		Epoch: f.epoch,
	}}})

	f.faulted = true
	f.stats.Faults++
	f.stats.Packets++
	f.stats.Slots++

	return true
}

// predictBlock lays out the slots of the current block starting from the
// current PC. A slot predicted to redirect ends the block.
func (f *Fetch) predictBlock() []CtrlFlow {
	var flows []CtrlFlow

	for i, pred := range f.predictor.PredictBlock(f.pc) {
		pc := f.pc + uint64(4*i)

		cf := CtrlFlow{PC: pc, PNPC: pc + 4, Pred: pred, Epoch: f.epoch}
		if pred.Redirects() {
			cf.PNPC = pred.Target
			flows = append(flows, cf)

			break
		}

		flows = append(flows, cf)
	}

	return flows
}
