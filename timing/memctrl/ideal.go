// Package memctrl provides the responders that sit on the core's memory
// ports in a simulated system: an ideal memory controller, a DMA agent,
// and a builder for page tables stored in simulated memory.
package memctrl

import (
	"github.com/sarchlab/coresim/emu"
	"github.com/sarchlab/coresim/timing/bus"
)

type inflight struct {
	resp  *bus.Response
	ready uint64
}

// Statistics counts the requests served by an ideal memory.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	BytesRead  uint64
	BytesWrote uint64
}

// IdealMemory answers every request after a fixed number of cycles. It
// accepts one request per cycle and responds in order. The access itself
// happens when the request is accepted.
type IdealMemory struct {
	name    string
	storage *emu.Memory
	link    *bus.Link
	latency uint64

	now   uint64
	queue []inflight

	stats Statistics
}

// NewIdealMemory creates an ideal memory serving link from storage.
func NewIdealMemory(
	name string,
	storage *emu.Memory,
	link *bus.Link,
	latency uint64,
) *IdealMemory {
	return &IdealMemory{
		name:    name,
		storage: storage,
		link:    link,
		latency: latency,
	}
}

// Name returns the name of the controller.
func (m *IdealMemory) Name() string {
	return m.name
}

// Stats returns the request counts.
func (m *IdealMemory) Stats() Statistics {
	return m.stats
}

// Idle returns true if no response is pending.
func (m *IdealMemory) Idle() bool {
	return len(m.queue) == 0
}

// Tick returns at most one response and accepts at most one request.
func (m *IdealMemory) Tick() (madeProgress bool) {
	m.now++

	if len(m.queue) > 0 && m.queue[0].ready <= m.now && m.link.CanRespond() {
		m.link.Respond(m.queue[0].resp)
		m.queue = m.queue[1:]
		madeProgress = true
	}

	req := m.link.RecvReq()
	if req == nil {
		return madeProgress
	}

	m.queue = append(m.queue, inflight{
		resp:  m.serve(req),
		ready: m.now + m.latency,
	})

	return true
}

func (m *IdealMemory) serve(req *bus.Request) *bus.Response {
	if req.IsWrite() {
		m.stats.Writes++
		m.stats.BytesWrote += uint64(len(req.Data))
		m.storage.WriteBytes(req.Addr, req.Data)

		return req.Reply(nil)
	}

	m.stats.Reads++
	m.stats.BytesRead += uint64(req.Size)

	return req.Reply(m.storage.ReadBytes(req.Addr, req.Size))
}
