package bus

import (
	"log"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/coresim/timing/stage"
)

// Link connects one master to one slave with a request buffer and a
// response buffer.
//
// A link may be guarded by a flush line. While the line is asserted both
// buffers read as empty and refuse pushes, and they are cleared once per
// pulse. Requests lost this way never receive a response; the units on a
// flushed path drop the matching responses themselves.
type Link struct {
	name    string
	req     sim.Buffer
	resp    sim.Buffer
	flush   *stage.Line
	seenGen uint64
}

// NewLink creates a link whose buffers hold depth entries each.
func NewLink(name string, depth int, flush *stage.Line) *Link {
	return &Link{
		name:    name,
		req:     sim.NewBuffer(name+".Req", depth),
		resp:    sim.NewBuffer(name+".Resp", depth),
		flush:   flush,
		seenGen: flush.Generation(),
	}
}

// Name returns the name of the link.
func (l *Link) Name() string {
	return l.name
}

// Flush returns the flush line guarding the link, or nil.
func (l *Link) Flush() *stage.Line {
	return l.flush
}

func (l *Link) sync() bool {
	if gen := l.flush.Generation(); gen != l.seenGen {
		l.req.Clear()
		l.resp.Clear()
		l.seenGen = gen
	}

	return !l.flush.Asserted()
}

// CanSend returns true if the master may send a request.
func (l *Link) CanSend() bool {
	return l.sync() && l.req.CanPush()
}

// Send pushes a request. The master must check CanSend first.
func (l *Link) Send(req *Request) {
	if !l.CanSend() {
		log.Panicf("link %s: send while not ready", l.name)
	}

	l.req.Push(req)
}

// PeekResp returns the oldest response, or nil.
func (l *Link) PeekResp() *Response {
	if !l.sync() || l.resp.Size() == 0 {
		return nil
	}

	return l.resp.Peek().(*Response)
}

// RecvResp removes and returns the oldest response, or nil.
func (l *Link) RecvResp() *Response {
	resp := l.PeekResp()
	if resp != nil {
		l.resp.Pop()
	}

	return resp
}

// PeekReq returns the oldest request, or nil.
func (l *Link) PeekReq() *Request {
	if !l.sync() || l.req.Size() == 0 {
		return nil
	}

	return l.req.Peek().(*Request)
}

// RecvReq removes and returns the oldest request, or nil.
func (l *Link) RecvReq() *Request {
	req := l.PeekReq()
	if req != nil {
		l.req.Pop()
	}

	return req
}

// CanRespond returns true if the slave may push a response.
func (l *Link) CanRespond() bool {
	return l.sync() && l.resp.CanPush()
}

// Respond pushes a response. The slave must check CanRespond first.
func (l *Link) Respond(resp *Response) {
	if !l.CanRespond() {
		log.Panicf("link %s: respond while not ready", l.name)
	}

	l.resp.Push(resp)
}

// Empty returns true if neither buffer holds anything.
func (l *Link) Empty() bool {
	l.sync()

	return l.req.Size() == 0 && l.resp.Size() == 0
}
