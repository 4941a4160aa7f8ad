package tlb

import (
	"log"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
	"github.com/sarchlab/akita/v4/mem/vm"

	"github.com/sarchlab/coresim/timing/bus"
	"github.com/sarchlab/coresim/timing/config"
)

// maxOutstanding bounds the responses a unit owes its master.
const maxOutstanding = 8

// Drainable reports whether a component holds in-flight requests.
type Drainable interface {
	Empty() bool
}

// Translator is a translation unit as seen by the core.
type Translator interface {
	Name() string
	Tick() bool
	Empty() bool
	SetControl(c Control)
	InvalidateAll()
	Stats() Statistics
}

// Statistics holds translation statistics.
type Statistics struct {
	Hits   uint64
	Misses uint64
	Walks  uint64
	Faults uint64
	Clears uint64
}

type entry struct {
	ppn uint64
	pte uint64
}

type owed struct {
	local *bus.Response
}

type walk struct {
	req     *bus.Request
	level   int
	table   uint64
	issued  bool
	dropped bool
}

// Unit translates a stream of virtual requests. Hits are forwarded on the
// cycle they are seen. A miss leaves the request at the head of the stream
// and walks the page table over the refill link; once the walk inserts the
// translation the request hits. Faults are answered locally, in order with
// the forwarded requests.
type Unit struct {
	name   string
	config config.TLBConfig

	top    *bus.Link
	out    *bus.Link
	refill *bus.Link

	downstream Drainable

	directory *akitacache.DirectoryImpl
	entries   []entry

	ctrl       Control
	nextCtrl   Control
	clearTable bool

	seenGen uint64
	order   []owed
	walk    *walk

	stats Statistics
}

// NewUnit creates a translation unit. top carries virtual requests from
// the master, out physical requests to the cache, and refill the page
// table reads.
func NewUnit(
	name string,
	cfg config.TLBConfig,
	top, out, refill *bus.Link,
) *Unit {
	numSets := cfg.Entries / cfg.Ways

	return &Unit{
		name:   name,
		config: cfg,
		top:    top,
		out:    out,
		refill: refill,
		directory: akitacache.NewDirectory(
			numSets,
			cfg.Ways,
			PageSize,
			akitacache.NewLRUVictimFinder(),
		),
		entries: make([]entry, cfg.Entries),
		seenGen: top.Flush().Generation(),
	}
}

// Name returns the name of the unit.
func (u *Unit) Name() string {
	return u.name
}

// SetDownstream sets the component that must be empty before the table is
// cleared.
func (u *Unit) SetDownstream(d Drainable) {
	u.downstream = d
}

// Control returns the control state in effect.
func (u *Unit) Control() Control {
	return u.ctrl
}

// SetControl supplies the control state for the coming cycles. A change
// takes effect, with an empty table, once the unit and its downstream have
// drained.
func (u *Unit) SetControl(c Control) {
	if u.clearTable {
		u.nextCtrl = c
		return
	}

	if c != u.ctrl {
		u.nextCtrl = c
		u.clearTable = true
	}
}

// InvalidateAll drops every translation once the unit has drained.
func (u *Unit) InvalidateAll() {
	if !u.clearTable {
		u.nextCtrl = u.ctrl
	}

	u.clearTable = true
}

// Stats returns translation statistics.
func (u *Unit) Stats() Statistics {
	return u.stats
}

// Empty returns true if the unit holds no in-flight state.
func (u *Unit) Empty() bool {
	return u.walk == nil && len(u.order) == 0
}

// Tick advances the unit by one cycle.
func (u *Unit) Tick() (madeProgress bool) {
	u.checkFlush()

	madeProgress = u.returnResponse() || madeProgress
	madeProgress = u.applyControl() || madeProgress
	madeProgress = u.stepWalk() || madeProgress
	madeProgress = u.translate() || madeProgress

	return madeProgress
}

func (u *Unit) checkFlush() {
	gen := u.top.Flush().Generation()
	if gen == u.seenGen {
		return
	}

	u.seenGen = gen
	u.order = nil

	if u.walk != nil {
		u.walk.dropped = true
	}
}

func (u *Unit) returnResponse() bool {
	if len(u.order) == 0 || !u.top.CanRespond() {
		return false
	}

	head := u.order[0]
	if head.local != nil {
		u.top.Respond(head.local)
	} else {
		resp := u.out.RecvResp()
		if resp == nil {
			return false
		}

		u.top.Respond(resp)
	}

	u.order = u.order[1:]

	return true
}

func (u *Unit) applyControl() bool {
	if !u.clearTable || !u.Empty() {
		return false
	}

	if u.downstream != nil && !u.downstream.Empty() {
		return false
	}

	u.ctrl = u.nextCtrl
	u.clearTable = false
	u.directory.Reset()
	u.stats.Clears++

	return true
}

func (u *Unit) translate() bool {
	if u.walk != nil || u.clearTable || len(u.order) >= maxOutstanding {
		return false
	}

	req := u.top.PeekReq()
	if req == nil {
		return false
	}

	if req.Physical || !u.ctrl.Enable {
		return u.forward(req)
	}

	if !Canonical(req.Addr) {
		return u.fault(req)
	}

	block := u.directory.Lookup(vm.PID(u.ctrl.ASID), pageOf(req.Addr))
	if block == nil || !block.IsValid {
		u.stats.Misses++
		u.stats.Walks++
		u.walk = &walk{
			req:   req,
			level: Levels - 1,
			table: u.ctrl.RootPPN << PageShift,
		}

		return true
	}

	u.stats.Hits++
	u.directory.Visit(block)

	e := u.entries[u.index(block)]
	if !permits(e.pte, req.IsWrite(), req.Exec) {
		return u.fault(req)
	}

	return u.forward(translated(req, e.ppn))
}

func translated(req *bus.Request, ppn uint64) *bus.Request {
	phys := req.Clone()
	phys.Addr = ppn<<PageShift | req.Addr&(PageSize-1)
	phys.Physical = true

	return phys
}

func (u *Unit) forward(req *bus.Request) bool {
	if !u.out.CanSend() {
		return false
	}

	u.top.RecvReq()
	u.out.Send(req)
	u.order = append(u.order, owed{})

	return true
}

func (u *Unit) fault(req *bus.Request) bool {
	u.top.RecvReq()
	u.stats.Faults++
	u.order = append(u.order, owed{local: req.ReplyFault(bus.FaultPage)})

	return true
}

func (u *Unit) stepWalk() bool {
	w := u.walk
	if w == nil {
		return false
	}

	if !w.issued {
		if w.dropped {
			u.walk = nil
			return true
		}

		if !u.refill.CanSend() {
			return false
		}

		pteAddr := w.table + VPN(w.req.Addr, w.level)*PTESize
		read := bus.NewRead(pteAddr, PTESize)
		read.Physical = true
		u.refill.Send(read)
		w.issued = true

		return true
	}

	resp := u.refill.RecvResp()
	if resp == nil {
		return false
	}

	w.issued = false

	if w.dropped {
		u.walk = nil
		return true
	}

	u.resolve(w, resp)

	return true
}

func (u *Unit) resolve(w *walk, resp *bus.Response) {
	if resp.Fault != bus.FaultNone {
		u.failWalk(w, resp.Fault)
		return
	}

	pte := resp.Value()

	step, ppn := evalPTE(pte, w.req.Addr, w.level)
	switch step {
	case walkNext:
		w.level--
		w.table = ppn << PageShift
	case walkFault:
		u.failWalk(w, bus.FaultPage)
	case walkLeaf:
		u.insert(w.req.Addr, ppn, pte)
		u.walk = nil
	}
}

// failWalk answers the request that started the walk, which is still at
// the head of the stream.
func (u *Unit) failWalk(w *walk, f bus.Fault) {
	if u.top.RecvReq() != w.req {
		log.Panicf("tlb %s: walked request left the stream", u.name)
	}

	u.stats.Faults++
	u.walk = nil
	u.order = append(u.order, owed{local: w.req.ReplyFault(f)})
}

func (u *Unit) insert(va, ppn, pte uint64) {
	page := pageOf(va)

	victim := u.directory.FindVictim(page)
	if victim == nil {
		log.Panicf("tlb %s: no way available for 0x%x", u.name, page)
	}

	victim.PID = vm.PID(u.ctrl.ASID)
	victim.Tag = page
	victim.IsValid = true
	u.directory.Visit(victim)
	u.entries[u.index(victim)] = entry{ppn: ppn, pte: pte}
}

func (u *Unit) index(block *akitacache.Block) int {
	return block.SetID*u.config.Ways + block.WayID
}

func pageOf(addr uint64) uint64 {
	return addr &^ (PageSize - 1)
}
