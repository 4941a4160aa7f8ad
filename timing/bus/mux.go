package bus

import (
	"log"
)

type muxInput struct {
	link     *Link
	physical bool
}

// Mux arbitrates several request streams onto one downstream link. It keeps
// a single transaction in flight, so tags pass through unchanged and a
// response always belongs to the port that owns the transaction. Ports are
// served round-robin.
type Mux struct {
	name   string
	inputs []muxInput
	out    *Link

	next  int
	busy  bool
	owner int

	transactions uint64
}

// NewMux creates a multiplexer that drives out.
func NewMux(name string, out *Link) *Mux {
	return &Mux{name: name, out: out}
}

// Name returns the name of the multiplexer.
func (m *Mux) Name() string {
	return m.name
}

// AddInput attaches an upstream link and returns its port index. Requests
// from a physical port are marked Physical on the way through.
func (m *Mux) AddInput(in *Link, physical bool) int {
	m.inputs = append(m.inputs, muxInput{link: in, physical: physical})
	return len(m.inputs) - 1
}

// NumInputs returns the number of attached ports.
func (m *Mux) NumInputs() int {
	return len(m.inputs)
}

// Transactions returns the number of completed transactions.
func (m *Mux) Transactions() uint64 {
	return m.transactions
}

// Idle returns true if no transaction is in flight.
func (m *Mux) Idle() bool {
	return !m.busy
}

// Tick relays at most one response and then starts at most one request.
func (m *Mux) Tick() (madeProgress bool) {
	madeProgress = m.relayResponse() || madeProgress
	madeProgress = m.forwardRequest() || madeProgress

	return madeProgress
}

func (m *Mux) relayResponse() bool {
	resp := m.out.PeekResp()
	if resp == nil {
		return false
	}

	if !m.busy {
		log.Panicf("mux %s: response with tag %d but nothing in flight",
			m.name, resp.Tag)
	}

	in := m.inputs[m.owner].link
	if !in.CanRespond() {
		return false
	}

	m.out.RecvResp()
	in.Respond(resp)
	m.busy = false
	m.transactions++

	return true
}

func (m *Mux) forwardRequest() bool {
	if m.busy || !m.out.CanSend() {
		return false
	}

	for i := range m.inputs {
		port := (m.next + i) % len(m.inputs)
		in := m.inputs[port]

		req := in.link.RecvReq()
		if req == nil {
			continue
		}

		if in.physical {
			req = req.Clone()
			req.Physical = true
		}

		m.out.Send(req)
		m.busy = true
		m.owner = port
		m.next = (port + 1) % len(m.inputs)

		return true
	}

	return false
}
