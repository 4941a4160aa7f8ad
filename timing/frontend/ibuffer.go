package frontend

import (
	"github.com/sarchlab/coresim/timing/stage"
)

// IBuffer unpacks fetch packets into single slots and hands up to width
// slots per cycle to Decode, alternating lanes when width is two.
type IBuffer struct {
	name  string
	in    *stage.Connector[FetchPacket]
	fifo  *stage.Connector[CtrlFlow]
	out   *stage.FanIn[CtrlFlow]
	width int
	lane  stage.Lane
}

// NewIBuffer creates an instruction buffer holding depth slots. It is
// cleared by flush together with the packets feeding it.
func NewIBuffer(
	name string,
	depth, width int,
	flush *stage.Line,
	in *stage.Connector[FetchPacket],
	out *stage.FanIn[CtrlFlow],
) *IBuffer {
	return &IBuffer{
		name:  name,
		in:    in,
		fifo:  stage.NewConnector[CtrlFlow](name+".Slots", depth, flush),
		out:   out,
		width: width,
	}
}

// Name returns the name of the buffer.
func (b *IBuffer) Name() string {
	return b.name
}

// Size returns the number of buffered slots.
func (b *IBuffer) Size() int {
	return b.fifo.Size()
}

// Tick emits slots and then unpacks at most one packet.
func (b *IBuffer) Tick() (madeProgress bool) {
	madeProgress = b.emit() || madeProgress
	madeProgress = b.unpack() || madeProgress

	return madeProgress
}

func (b *IBuffer) emit() bool {
	emitted := false

	for i := 0; i < b.width; i++ {
		if !b.fifo.Valid() || !b.out.CanAccept() {
			break
		}

		b.out.Accept(b.lane, b.fifo.Deliver())
		emitted = true

		if b.width > 1 {
			b.lane = 1 - b.lane
		}
	}

	return emitted
}

func (b *IBuffer) unpack() bool {
	pkt, ok := b.in.Peek()
	if !ok || b.fifo.Capacity()-b.fifo.Size() < len(pkt.Flows) {
		return false
	}

	if !b.fifo.CanAccept() {
		return false
	}

	b.in.Deliver()
	for _, cf := range pkt.Flows {
		b.fifo.Accept(cf)
	}

	return true
}
