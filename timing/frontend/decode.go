package frontend

import (
	"github.com/sarchlab/coresim/insts"
	"github.com/sarchlab/coresim/timing/stage"
)

// Decode turns up to width slots per cycle into decoded instructions. A
// slot keeps its lane, and slots are taken oldest first, so the backend
// fan-in sees them in program order.
type Decode struct {
	name    string
	decoder *insts.Decoder
	in      *stage.FanIn[CtrlFlow]
	out     *stage.FanIn[DecodedInst]
	width   int

	decoded uint64
}

// NewDecode creates a decode stage.
func NewDecode(
	name string,
	decoder *insts.Decoder,
	width int,
	in *stage.FanIn[CtrlFlow],
	out *stage.FanIn[DecodedInst],
) *Decode {
	return &Decode{
		name:    name,
		decoder: decoder,
		in:      in,
		out:     out,
		width:   width,
	}
}

// Name returns the name of the stage.
func (d *Decode) Name() string {
	return d.name
}

// Decoded returns the number of slots decoded.
func (d *Decode) Decoded() uint64 {
	return d.decoded
}

// Tick advances Decode by one cycle.
func (d *Decode) Tick() (madeProgress bool) {
	for i := 0; i < d.width; i++ {
		lane, ok := d.in.OldestLane()
		if !ok || !d.out.CanAccept() {
			break
		}

		cf := d.in.DeliverLane(lane)
		d.out.Accept(lane, DecodedInst{CtrlFlow: cf, Inst: d.decoder.Decode(cf.Instr)})
		d.decoded++
		madeProgress = true
	}

	return madeProgress
}
