package memctrl

import (
	"log"

	"github.com/sarchlab/coresim/timing/bus"
)

// Transfer is a DMA read or write of a byte range.
type Transfer struct {
	Addr  uint64
	Write bool

	// Data holds the bytes to write, or the bytes read once Done.
	Data []byte

	// Size is the number of bytes to read.
	Size int

	Done  bool
	Fault bus.Fault

	remaining int
}

// NewReadTransfer creates a DMA read.
func NewReadTransfer(addr uint64, size int) *Transfer {
	return &Transfer{Addr: addr, Size: size, Data: make([]byte, size)}
}

// NewWriteTransfer creates a DMA write.
func NewWriteTransfer(addr uint64, data []byte) *Transfer {
	return &Transfer{Addr: addr, Write: true, Data: data, Size: len(data)}
}

type chunk struct {
	transfer *Transfer
	offset   int
	req      *bus.Request
}

// DMAAgent drives the core's DMA port. Each transfer is split into
// naturally aligned pieces of at most eight bytes, one issued per cycle.
type DMAAgent struct {
	name string
	link *bus.Link

	queue    []chunk
	inflight map[uint64]chunk
	nextTag  uint64

	completed []*Transfer
}

// NewDMAAgent creates an agent that masters link.
func NewDMAAgent(name string, link *bus.Link) *DMAAgent {
	return &DMAAgent{
		name:     name,
		link:     link,
		inflight: make(map[uint64]chunk),
	}
}

// Name returns the name of the agent.
func (a *DMAAgent) Name() string {
	return a.name
}

// Enqueue schedules a transfer.
func (a *DMAAgent) Enqueue(t *Transfer) {
	addr := t.Addr
	offset := 0

	for offset < t.Size {
		size := pieceSize(addr, t.Size-offset)

		var req *bus.Request
		if t.Write {
			req = bus.NewBlockWrite(addr, t.Data[offset:offset+size])
		} else {
			req = bus.NewRead(addr, size)
		}

		req.Physical = true
		a.queue = append(a.queue, chunk{transfer: t, offset: offset, req: req})
		t.remaining++

		addr += uint64(size)
		offset += size
	}

	if t.remaining == 0 {
		t.Done = true
		a.completed = append(a.completed, t)
	}
}

func pieceSize(addr uint64, remaining int) int {
	size := 8
	for size > 1 && (addr%uint64(size) != 0 || size > remaining) {
		size /= 2
	}

	return size
}

// Idle returns true if every transfer has completed.
func (a *DMAAgent) Idle() bool {
	return len(a.queue) == 0 && len(a.inflight) == 0
}

// Completed returns the transfers completed so far, in completion order.
func (a *DMAAgent) Completed() []*Transfer {
	return a.completed
}

// Tick collects at most one response and issues at most one request.
func (a *DMAAgent) Tick() (madeProgress bool) {
	if resp := a.link.RecvResp(); resp != nil {
		a.complete(resp)
		madeProgress = true
	}

	if len(a.queue) > 0 && a.link.CanSend() {
		c := a.queue[0]
		a.queue = a.queue[1:]

		c.req.Tag = a.nextTag
		a.nextTag++
		a.inflight[c.req.Tag] = c
		a.link.Send(c.req)
		madeProgress = true
	}

	return madeProgress
}

func (a *DMAAgent) complete(resp *bus.Response) {
	c, ok := a.inflight[resp.Tag]
	if !ok {
		log.Panicf("dma %s: response with unknown tag %d", a.name, resp.Tag)
	}

	delete(a.inflight, resp.Tag)

	t := c.transfer
	if resp.Fault != bus.FaultNone && t.Fault == bus.FaultNone {
		t.Fault = resp.Fault
	}

	if !t.Write {
		copy(t.Data[c.offset:], resp.Data)
	}

	t.remaining--
	if t.remaining == 0 {
		t.Done = true
		a.completed = append(a.completed, t)
	}
}
