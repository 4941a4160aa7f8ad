package cache

import (
	"log"

	"github.com/sarchlab/coresim/timing/addrspace"
	"github.com/sarchlab/coresim/timing/bus"
	"github.com/sarchlab/coresim/timing/config"
)

// Component is a cache unit or a bypass as seen by the core.
type Component interface {
	Name() string
	Tick() bool
	Empty() bool
}

type state int

const (
	stateIdle state = iota
	stateLookup
	stateMiss
	stateWriteback
	stateSendRefill
	stateRefill
	stateMMIO
	stateRespond
)

// Unit is a blocking cache. It serves one request at a time: requests in a
// device range go out on the MMIO egress unchanged, the rest are served
// from the line store, refilling from the memory egress on a miss.
type Unit struct {
	name       string
	storage    *Storage
	classifier *addrspace.Classifier
	readOnly   bool

	top  *bus.Link
	mem  *bus.Link
	mmio *bus.Link

	seenGen uint64

	state     state
	cur       *bus.Request
	countdown uint64
	pending   *bus.Response
	drop      bool
	victim    Eviction

	mmioForwards uint64
}

// Option configures a Unit.
type Option func(*Unit)

// WithReadOnly makes every write a protocol violation.
func WithReadOnly() Option {
	return func(u *Unit) {
		u.readOnly = true
	}
}

// NewUnit creates a cache unit. top carries physical requests from the
// master; mem and mmio are the two egress links.
func NewUnit(
	name string,
	cfg config.CacheConfig,
	classifier *addrspace.Classifier,
	top, mem, mmio *bus.Link,
	opts ...Option,
) *Unit {
	u := &Unit{
		name:       name,
		storage:    NewStorage(cfg),
		classifier: classifier,
		top:        top,
		mem:        mem,
		mmio:       mmio,
		seenGen:    top.Flush().Generation(),
	}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

// Name returns the name of the unit.
func (u *Unit) Name() string {
	return u.name
}

// Storage returns the line store.
func (u *Unit) Storage() *Storage {
	return u.storage
}

// Stats returns cache statistics.
func (u *Unit) Stats() Statistics {
	s := u.storage.Stats()
	s.MMIOForwards = u.mmioForwards

	return s
}

// Empty returns true if no request is being served.
func (u *Unit) Empty() bool {
	return u.state == stateIdle
}

// Tick advances the unit by one cycle.
func (u *Unit) Tick() (madeProgress bool) {
	u.checkFlush()

	switch u.state {
	case stateIdle:
		return u.accept()
	case stateLookup:
		return u.lookup()
	case stateMiss:
		return u.miss()
	case stateWriteback:
		return u.finishWriteback()
	case stateSendRefill:
		return u.sendRefill()
	case stateRefill:
		return u.finishRefill()
	case stateMMIO:
		return u.finishMMIO()
	case stateRespond:
		return u.respond()
	}

	return false
}

func (u *Unit) checkFlush() {
	gen := u.top.Flush().Generation()
	if gen == u.seenGen {
		return
	}

	u.seenGen = gen
	if u.state != stateIdle {
		u.drop = true
	}
}

func (u *Unit) accept() bool {
	req := u.top.PeekReq()
	if req == nil {
		return false
	}

	if req.IsWrite() && u.readOnly {
		log.Panicf("cache %s: write to 0x%x on a read-only cache", u.name, req.Addr)
	}

	if u.classifier.IsMMIO(req.Addr) {
		if !u.mmio.CanSend() {
			return false
		}

		u.top.RecvReq()
		u.mmio.Send(req)
		u.mmioForwards++
		u.begin(req, stateMMIO)

		return true
	}

	if !u.storage.Contains(req.Addr, req.Size) {
		log.Panicf("cache %s: access 0x%x+%d crosses a line", u.name, req.Addr, req.Size)
	}

	u.top.RecvReq()
	u.begin(req, stateLookup)
	u.countdown = u.storage.Config().HitLatency

	return true
}

func (u *Unit) begin(req *bus.Request, next state) {
	u.cur = req
	u.drop = false
	u.state = next
}

func (u *Unit) lookup() bool {
	if u.countdown > 1 {
		u.countdown--
		return true
	}

	req := u.cur

	data, hit := u.storage.Access(req.Addr, req.Size, req.IsWrite(), req.Data)
	if hit {
		u.pending = req.Reply(data)
		u.state = stateRespond

		return true
	}

	u.state = stateMiss
	u.miss()

	return true
}

// miss picks the victim and sends its writeback, or the refill when the
// victim is clean. It waits for room on the memory egress.
func (u *Unit) miss() bool {
	if !u.mem.CanSend() {
		return false
	}

	u.victim = u.storage.Evict(u.cur.Addr)
	if u.victim.Dirty {
		u.mem.Send(bus.NewBlockWrite(u.victim.Addr, u.victim.Data))
		u.state = stateWriteback

		return true
	}

	u.sendLineRead()

	return true
}

func (u *Unit) finishWriteback() bool {
	if u.mem.RecvResp() == nil {
		return false
	}

	u.victim = Eviction{}
	u.state = stateSendRefill

	return true
}

func (u *Unit) sendRefill() bool {
	if !u.mem.CanSend() {
		return false
	}

	u.sendLineRead()

	return true
}

func (u *Unit) sendLineRead() {
	lineAddr := u.storage.LineAddr(u.cur.Addr)
	u.mem.Send(bus.NewRead(lineAddr, u.storage.Config().BlockSize))
	u.state = stateRefill
}

func (u *Unit) finishRefill() bool {
	resp := u.mem.RecvResp()
	if resp == nil {
		return false
	}

	req := u.cur
	data := u.storage.Fill(req.Addr, resp.Data, req.Size, req.IsWrite(), req.Data)
	u.pending = req.Reply(data)
	u.state = stateRespond

	return true
}

func (u *Unit) finishMMIO() bool {
	resp := u.mmio.RecvResp()
	if resp == nil {
		return false
	}

	u.pending = resp
	u.state = stateRespond

	return true
}

func (u *Unit) respond() bool {
	if !u.drop {
		if !u.top.CanRespond() {
			return false
		}

		u.top.Respond(u.pending)
	}

	u.cur = nil
	u.pending = nil
	u.drop = false
	u.state = stateIdle

	return true
}

// Bypass stands in for a disabled cache. Each request is steered to the
// memory or MMIO egress by address and leaves on the Tick that sees it, so
// the output stream equals the input stream delayed by one cycle.
type Bypass struct {
	*bus.Router
}

// NewBypass creates a bypass between top and the two egress links.
func NewBypass(
	name string,
	classifier *addrspace.Classifier,
	top, mem, mmio *bus.Link,
) *Bypass {
	route := func(req *bus.Request) int {
		if classifier.IsMMIO(req.Addr) {
			return 1
		}

		return 0
	}

	return &Bypass{Router: bus.NewRouter(name, top, route, mem, mmio)}
}
