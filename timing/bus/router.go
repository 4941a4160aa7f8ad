package bus

import (
	"log"

	"github.com/sarchlab/coresim/timing/stage"
)

type pending struct {
	egress int
	drop   bool
}

// Router steers each request from one upstream link to one of several
// downstream links and returns the responses upstream in request order.
//
// A router guarded by a flush line forgets the outstanding requests of a
// flushed upstream: their responses are consumed and discarded.
type Router struct {
	name    string
	in      *Link
	outs    []*Link
	route   func(*Request) int
	order   []pending
	flush   *stage.Line
	seenGen uint64

	routed []uint64
}

// NewRouter creates a router. route returns the index into outs.
func NewRouter(
	name string,
	in *Link,
	route func(*Request) int,
	outs ...*Link,
) *Router {
	return &Router{
		name:    name,
		in:      in,
		outs:    outs,
		route:   route,
		flush:   in.Flush(),
		seenGen: in.Flush().Generation(),
		routed:  make([]uint64, len(outs)),
	}
}

// Name returns the name of the router.
func (r *Router) Name() string {
	return r.name
}

// Routed returns how many requests went to each egress.
func (r *Router) Routed() []uint64 {
	return append([]uint64(nil), r.routed...)
}

// Empty returns true if no request is outstanding.
func (r *Router) Empty() bool {
	return len(r.order) == 0
}

// Tick returns at most one response and routes at most one request.
func (r *Router) Tick() (madeProgress bool) {
	if gen := r.flush.Generation(); gen != r.seenGen {
		r.seenGen = gen
		for i := range r.order {
			r.order[i].drop = true
		}
	}

	madeProgress = r.returnResponse() || madeProgress
	madeProgress = r.routeRequest() || madeProgress

	return madeProgress
}

func (r *Router) returnResponse() bool {
	if len(r.order) == 0 {
		return false
	}

	head := r.order[0]
	out := r.outs[head.egress]

	resp := out.PeekResp()
	if resp == nil {
		return false
	}

	if !head.drop {
		if !r.in.CanRespond() {
			return false
		}
		r.in.Respond(resp)
	}

	out.RecvResp()
	r.order = r.order[1:]

	return true
}

func (r *Router) routeRequest() bool {
	req := r.in.PeekReq()
	if req == nil {
		return false
	}

	egress := r.route(req)
	if egress < 0 || egress >= len(r.outs) {
		log.Panicf("router %s: no egress %d for address 0x%x", r.name, egress, req.Addr)
	}

	out := r.outs[egress]
	if !out.CanSend() {
		return false
	}

	r.in.RecvReq()
	out.Send(req)
	r.order = append(r.order, pending{egress: egress})
	r.routed[egress]++

	return true
}
