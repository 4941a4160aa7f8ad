package frontend

import (
	"github.com/sarchlab/coresim/insts"
	"github.com/sarchlab/coresim/timing/bus"
	"github.com/sarchlab/coresim/timing/config"
	"github.com/sarchlab/coresim/timing/latency"
	"github.com/sarchlab/coresim/timing/stage"
)

// Stats aggregates the frontend counters.
type Stats struct {
	Fetch     FetchStats
	Predictor BranchPredictorStats
	Decoded   uint64
}

// Frontend chains Fetch, the instruction buffer and Decode. Fetch feeds the
// buffer through a connector cut by LineFetch, the buffer feeds Decode
// through a fan-in cut by LineDecode, and Decode feeds the backend through
// a fan-in cut by LineBackend.
type Frontend struct {
	name string

	fetch  *Fetch
	ibuf   *IBuffer
	decode *Decode

	packets *stage.Connector[FetchPacket]
	slots   *stage.FanIn[CtrlFlow]
	output  *stage.FanIn[DecodedInst]
}

// New builds the frontend of a core. imem is the instruction link.
func New(
	name string,
	cfg *config.Config,
	table *latency.Table,
	flush *stage.FlushVector,
	imem *bus.Link,
) *Frontend {
	fe := &Frontend{name: name}

	fe.packets = stage.NewConnector[FetchPacket](name+".FetchQueue",
		cfg.FetchQueueDepth, flush.Line(stage.LineFetch))
	fe.slots = stage.NewFanIn[CtrlFlow](name+".DecodeQueue",
		cfg.DecodeQueueDepth, flush.Line(stage.LineDecode))
	fe.output = stage.NewFanIn[DecodedInst](name+".BackendQueue",
		cfg.BackendQueueDepth, flush.Line(stage.LineBackend))

	fe.fetch = NewFetch(name+".Fetch", imem, fe.packets,
		NewBranchPredictor(DefaultBranchPredictorConfig()),
		cfg.ResetVector, table.MispredictPenalty())
	fe.ibuf = NewIBuffer(name+".IBuffer", cfg.IBufferDepth, cfg.IssueWidth,
		flush.Line(stage.LineFetch), fe.packets, fe.slots)
	fe.decode = NewDecode(name+".Decode", insts.NewDecoder(cfg.XLEN),
		cfg.IssueWidth, fe.slots, fe.output)

	return fe
}

// Name returns the name of the frontend.
func (fe *Frontend) Name() string {
	return fe.name
}

// Fetch returns the fetch stage.
func (fe *Frontend) Fetch() *Fetch {
	return fe.fetch
}

// Output returns the fan-in the backend consumes.
func (fe *Frontend) Output() *stage.FanIn[DecodedInst] {
	return fe.output
}

// Redirect restarts fetching at target. Only a mispredict costs the
// redirect penalty.
func (fe *Frontend) Redirect(target uint64, mispredicted bool) {
	fe.fetch.Redirect(target, mispredicted)
}

// Train forwards a resolved branch to the predictor.
func (fe *Frontend) Train(u BranchUpdate) {
	fe.fetch.Train(u)
}

// Stats returns the frontend counters.
func (fe *Frontend) Stats() Stats {
	return Stats{
		Fetch:     fe.fetch.Stats(),
		Predictor: fe.fetch.Predictor().Stats(),
		Decoded:   fe.decode.Decoded(),
	}
}

// Tick advances the stages downstream first, so a slot moves at most one
// stage per cycle.
func (fe *Frontend) Tick() (madeProgress bool) {
	madeProgress = fe.decode.Tick() || madeProgress
	madeProgress = fe.ibuf.Tick() || madeProgress
	madeProgress = fe.fetch.Tick() || madeProgress

	return madeProgress
}
