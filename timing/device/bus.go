// Package device provides the memory-mapped devices behind the core's MMIO
// port and the bus that decodes their addresses.
package device

import (
	"errors"
	"fmt"

	"github.com/sarchlab/coresim/timing/bus"
)

// ErrOverlap is returned when a device window overlaps another one.
var ErrOverlap = errors.New("device window overlaps")

// Device is a register window. Offsets are relative to the window base.
type Device interface {
	Name() string

	// Size returns the size of the register window in bytes.
	Size() uint64

	// Read returns the value of size bytes at offset. ok is false if no
	// register answers there.
	Read(offset uint64, size int) (value uint64, ok bool)

	// Write stores value at offset. ok is false if no register answers.
	Write(offset uint64, size int, value uint64) (ok bool)

	// Tick advances the device by one cycle.
	Tick()
}

type window struct {
	base uint64
	dev  Device
}

func (w window) contains(addr uint64, size int) bool {
	return addr >= w.base && addr+uint64(size) <= w.base+w.dev.Size()
}

// Statistics counts the accesses served by the bus.
type Statistics struct {
	Reads  uint64
	Writes uint64
	Faults uint64
}

type pendingResponse struct {
	resp  *bus.Response
	ready uint64
}

// Bus serves the MMIO link. It decodes each request to the device whose
// window contains it; accesses no device claims answer with FaultAccess.
// Requests are served in order after a fixed latency.
type Bus struct {
	name    string
	link    *bus.Link
	latency uint64
	windows []window

	now   uint64
	queue []pendingResponse
	stats Statistics
}

// NewBus creates a device bus serving link.
func NewBus(name string, link *bus.Link, latency uint64) *Bus {
	return &Bus{name: name, link: link, latency: latency}
}

// Name returns the name of the bus.
func (b *Bus) Name() string {
	return b.name
}

// Map places dev at base.
func (b *Bus) Map(base uint64, dev Device) error {
	for _, w := range b.windows {
		if base < w.base+w.dev.Size() && w.base < base+dev.Size() {
			return fmt.Errorf("%w: %s at %#x and %s at %#x",
				ErrOverlap, dev.Name(), base, w.dev.Name(), w.base)
		}
	}

	b.windows = append(b.windows, window{base: base, dev: dev})

	return nil
}

// Stats returns the access counts.
func (b *Bus) Stats() Statistics {
	return b.stats
}

// Idle returns true if no response is pending.
func (b *Bus) Idle() bool {
	return len(b.queue) == 0
}

// Tick advances every device, returns at most one response and accepts at
// most one request.
func (b *Bus) Tick() (madeProgress bool) {
	b.now++

	for _, w := range b.windows {
		w.dev.Tick()
	}

	if len(b.queue) > 0 && b.queue[0].ready <= b.now && b.link.CanRespond() {
		b.link.Respond(b.queue[0].resp)
		b.queue = b.queue[1:]
		madeProgress = true
	}

	req := b.link.RecvReq()
	if req == nil {
		return madeProgress
	}

	b.queue = append(b.queue, pendingResponse{
		resp:  b.serve(req),
		ready: b.now + b.latency,
	})

	return true
}

func (b *Bus) serve(req *bus.Request) *bus.Response {
	w, ok := b.decode(req.Addr, req.Size)
	if !ok {
		b.stats.Faults++
		return req.ReplyFault(bus.FaultAccess)
	}

	offset := req.Addr - w.base

	if req.IsWrite() {
		if !w.dev.Write(offset, req.Size, req.Value()) {
			b.stats.Faults++
			return req.ReplyFault(bus.FaultAccess)
		}

		b.stats.Writes++

		return req.Reply(nil)
	}

	value, ok := w.dev.Read(offset, req.Size)
	if !ok {
		b.stats.Faults++
		return req.ReplyFault(bus.FaultAccess)
	}

	b.stats.Reads++

	return req.Reply(bus.EncodeValue(value, req.Size))
}

func (b *Bus) decode(addr uint64, size int) (window, bool) {
	for _, w := range b.windows {
		if w.contains(addr, size) {
			return w, true
		}
	}

	return window{}, false
}
