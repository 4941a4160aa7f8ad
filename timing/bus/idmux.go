package bus

import (
	"log"
)

type idEntry struct {
	port int
	tag  uint64
}

// IDMux is a multiplexer that stamps every request with a transaction ID
// from a pool of 2^idBits, keeps the original tag in a table keyed by that
// ID, and restores it on the response. Up to 2^idBits transactions from any
// mix of ports may be in flight at once.
type IDMux struct {
	name   string
	inputs []muxInput
	out    *Link

	free  []uint64
	table map[uint64]idEntry
	next  int

	transactions uint64
}

// NewIDMux creates an auto-ID multiplexer that drives out.
func NewIDMux(name string, out *Link, idBits int) *IDMux {
	if idBits <= 0 || idBits > 16 {
		log.Panicf("idmux %s: id width %d out of range", name, idBits)
	}

	m := &IDMux{
		name:  name,
		out:   out,
		table: make(map[uint64]idEntry),
	}

	for id := uint64(0); id < 1<<idBits; id++ {
		m.free = append(m.free, id)
	}

	return m
}

// Name returns the name of the multiplexer.
func (m *IDMux) Name() string {
	return m.name
}

// AddInput attaches an upstream link and returns its port index.
func (m *IDMux) AddInput(in *Link, physical bool) int {
	m.inputs = append(m.inputs, muxInput{link: in, physical: physical})
	return len(m.inputs) - 1
}

// NumInputs returns the number of attached ports.
func (m *IDMux) NumInputs() int {
	return len(m.inputs)
}

// InFlight returns the number of allocated IDs.
func (m *IDMux) InFlight() int {
	return len(m.table)
}

// Transactions returns the number of completed transactions.
func (m *IDMux) Transactions() uint64 {
	return m.transactions
}

// Idle returns true if no transaction is in flight.
func (m *IDMux) Idle() bool {
	return len(m.table) == 0
}

// Tick relays at most one response and then starts at most one request.
func (m *IDMux) Tick() (madeProgress bool) {
	madeProgress = m.relayResponse() || madeProgress
	madeProgress = m.forwardRequest() || madeProgress

	return madeProgress
}

func (m *IDMux) relayResponse() bool {
	resp := m.out.PeekResp()
	if resp == nil {
		return false
	}

	entry, ok := m.table[resp.Tag]
	if !ok {
		log.Panicf("idmux %s: response with unknown id %d", m.name, resp.Tag)
	}

	in := m.inputs[entry.port].link
	if !in.CanRespond() {
		return false
	}

	m.out.RecvResp()

	restored := *resp
	restored.Tag = entry.tag
	in.Respond(&restored)

	delete(m.table, resp.Tag)
	m.free = append(m.free, resp.Tag)
	m.transactions++

	return true
}

func (m *IDMux) forwardRequest() bool {
	if len(m.free) == 0 || !m.out.CanSend() {
		return false
	}

	for i := range m.inputs {
		port := (m.next + i) % len(m.inputs)
		in := m.inputs[port]

		req := in.link.RecvReq()
		if req == nil {
			continue
		}

		id := m.free[0]
		m.free = m.free[1:]
		m.table[id] = idEntry{port: port, tag: req.Tag}

		stamped := req.Clone()
		stamped.Tag = id
		if in.physical {
			stamped.Physical = true
		}

		m.out.Send(stamped)
		m.next = (port + 1) % len(m.inputs)

		return true
	}

	return false
}
