package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/coresim/emu"
	"github.com/sarchlab/coresim/timing/addrspace"
	"github.com/sarchlab/coresim/timing/bus"
	"github.com/sarchlab/coresim/timing/cache"
	"github.com/sarchlab/coresim/timing/config"
	"github.com/sarchlab/coresim/timing/memctrl"
	"github.com/sarchlab/coresim/timing/stage"
)

type ticker interface {
	Tick() bool
}

const dram = 0x8000_0000

func newClassifier() *addrspace.Classifier {
	c, err := addrspace.NewClassifier(
		addrspace.InternalDevices,
		addrspace.Range{Base: 0x4000_0000, Size: 0x4000_0000},
	)
	Expect(err).NotTo(HaveOccurred())

	return c
}

// roundTrip sends req on top and ticks until the response comes back.
func roundTrip(
	top *bus.Link,
	req *bus.Request,
	tickers ...ticker,
) (*bus.Response, int) {
	top.Send(req)

	for cycle := 1; cycle <= 500; cycle++ {
		for _, t := range tickers {
			t.Tick()
		}

		if resp := top.RecvResp(); resp != nil {
			return resp, cycle
		}
	}

	Fail("no response")

	return nil, 0
}

var _ = Describe("Unit", func() {
	var (
		clock   *stage.Clock
		flush   *stage.Line
		storage *emu.Memory
		top     *bus.Link
		mem     *bus.Link
		mmio    *bus.Link
		ideal   *memctrl.IdealMemory
		unit    *cache.Unit
		cfg     config.CacheConfig
		ticks   []ticker
	)

	build := func(opts ...cache.Option) {
		unit = cache.NewUnit("Cache", cfg, newClassifier(), top, mem, mmio, opts...)
		ticks = []ticker{unit, ideal}
	}

	BeforeEach(func() {
		clock = &stage.Clock{}
		flush = stage.NewLine("Flush", clock)
		storage = emu.NewMemory()
		top = bus.NewLink("Top", 2, flush)
		mem = bus.NewLink("Mem", 2, nil)
		mmio = bus.NewLink("MMIO", 2, nil)
		ideal = memctrl.NewIdealMemory("Mem", storage, mem, 10)
		cfg = config.CacheConfig{
			Size:          4 * 1024,
			Associativity: 4,
			BlockSize:     64,
			HitLatency:    2,
		}
		build()
	})

	It("should refill on a miss and hit afterwards", func() {
		storage.Write64(dram+0x1000, 0xDEADBEEF)

		resp, missCycles := roundTrip(top, bus.NewRead(dram+0x1000, 8), ticks...)
		Expect(resp.Value()).To(Equal(uint64(0xDEADBEEF)))

		resp, hitCycles := roundTrip(top, bus.NewRead(dram+0x1000, 8), ticks...)
		Expect(resp.Value()).To(Equal(uint64(0xDEADBEEF)))
		Expect(hitCycles).To(BeNumerically("<", missCycles))

		stats := unit.Stats()
		Expect(stats.Reads).To(Equal(uint64(2)))
		Expect(stats.Hits).To(Equal(uint64(1)))
		Expect(stats.Misses).To(Equal(uint64(1)))
		Expect(ideal.Stats().Reads).To(Equal(uint64(1)))
		Expect(unit.Empty()).To(BeTrue())
	})

	It("should serve a hit while the memory egress is full", func() {
		storage.Write64(dram+0x40, 0x1234)
		roundTrip(top, bus.NewRead(dram+0x40, 8), ticks...)

		mem.Send(bus.NewRead(dram+0x2000, 64))
		mem.Send(bus.NewRead(dram+0x3000, 64))
		Expect(mem.CanSend()).To(BeFalse())

		resp, _ := roundTrip(top, bus.NewRead(dram+0x40, 8), unit)
		Expect(resp.Value()).To(Equal(uint64(0x1234)))
		Expect(unit.Stats().Hits).To(Equal(uint64(1)))
	})

	It("should hold a miss until the memory egress has room", func() {
		mem.Send(bus.NewRead(dram+0x2000, 64))
		mem.Send(bus.NewRead(dram+0x3000, 64))

		top.Send(bus.NewRead(dram+0x40, 8))
		for i := 0; i < 10; i++ {
			unit.Tick()
		}

		Expect(unit.Empty()).To(BeFalse())
		Expect(unit.Stats().Misses).To(Equal(uint64(1)))

		mem.RecvReq()
		unit.Tick()
		Expect(mem.RecvReq().Addr).To(Equal(uint64(dram + 0x3000)))
		Expect(mem.RecvReq().Addr).To(Equal(uint64(dram + 0x40)))
	})

	It("should keep the tag of the request", func() {
		req := bus.NewRead(dram, 4)
		req.Tag = 42

		resp, _ := roundTrip(top, req, ticks...)
		Expect(resp.Tag).To(Equal(uint64(42)))
		Expect(resp.RespondTo).To(Equal(req.ID))
	})

	It("should hold writes until the line is evicted", func() {
		resp, _ := roundTrip(top, bus.NewWrite(dram+0x0000, 8, 0x11111111), ticks...)
		Expect(resp.Cmd).To(Equal(bus.CmdWrite))
		Expect(storage.Read64(dram)).To(Equal(uint64(0)))

		for _, off := range []uint64{0x400, 0x800, 0xC00, 0x1000} {
			roundTrip(top, bus.NewRead(dram+off, 8), ticks...)
		}

		Expect(storage.Read64(dram)).To(Equal(uint64(0x11111111)))
		Expect(unit.Stats().Writebacks).To(Equal(uint64(1)))
		Expect(ideal.Stats().Writes).To(Equal(uint64(1)))

		resp, _ = roundTrip(top, bus.NewRead(dram, 8), ticks...)
		Expect(resp.Value()).To(Equal(uint64(0x11111111)))
	})

	It("should forward device requests unchanged", func() {
		req := bus.NewWrite(0x3000_0004, 4, 0x55)
		top.Send(req)

		var forwarded *bus.Request
		for i := 0; i < 5 && forwarded == nil; i++ {
			unit.Tick()
			forwarded = mmio.RecvReq()
		}

		Expect(forwarded).To(BeIdenticalTo(req))
		Expect(mem.PeekReq()).To(BeNil())

		mmio.Respond(forwarded.Reply(nil))

		var resp *bus.Response
		for i := 0; i < 5 && resp == nil; i++ {
			unit.Tick()
			resp = top.RecvResp()
		}

		Expect(resp).NotTo(BeNil())
		Expect(resp.RespondTo).To(Equal(req.ID))
		Expect(unit.Stats().MMIOForwards).To(Equal(uint64(1)))
		Expect(unit.Stats().Writes).To(Equal(uint64(0)))
	})

	It("should relay device faults", func() {
		top.Send(bus.NewRead(0x4000_0100, 4))

		var forwarded *bus.Request
		for i := 0; i < 5 && forwarded == nil; i++ {
			unit.Tick()
			forwarded = mmio.RecvReq()
		}

		mmio.Respond(forwarded.ReplyFault(bus.FaultAccess))

		var resp *bus.Response
		for i := 0; i < 5 && resp == nil; i++ {
			unit.Tick()
			resp = top.RecvResp()
		}

		Expect(resp.Fault).To(Equal(bus.FaultAccess))
	})

	It("should panic on a write to a read-only cache", func() {
		build(cache.WithReadOnly())
		top.Send(bus.NewWrite(dram, 4, 1))

		Expect(func() { unit.Tick() }).To(Panic())
	})

	It("should panic on an access that crosses a line", func() {
		top.Send(bus.NewRead(dram+0x3c, 8))

		Expect(func() { unit.Tick() }).To(Panic())
	})

	It("should drop the response of a flushed request but keep the line", func() {
		storage.Write64(dram+0x2000, 77)
		top.Send(bus.NewRead(dram+0x2000, 8))

		for i := 0; i < 3; i++ {
			clock.Step()
			unit.Tick()
			ideal.Tick()
		}
		Expect(unit.Empty()).To(BeFalse())

		clock.Step()
		flush.Pulse()

		for i := 0; i < 40; i++ {
			unit.Tick()
			ideal.Tick()
			clock.Step()
			Expect(top.RecvResp()).To(BeNil())
		}

		Expect(unit.Empty()).To(BeTrue())

		resp, _ := roundTrip(top, bus.NewRead(dram+0x2000, 8), ticks...)
		Expect(resp.Value()).To(Equal(uint64(77)))
		Expect(unit.Stats().Hits).To(Equal(uint64(1)))
	})
})

var _ = Describe("Bypass", func() {
	It("should pass every request through after one tick, in order", func() {
		top := bus.NewLink("Top", 4, nil)
		mem := bus.NewLink("Mem", 4, nil)
		mmio := bus.NewLink("MMIO", 4, nil)
		b := cache.NewBypass("Bypass", newClassifier(), top, mem, mmio)

		addrs := []uint64{dram, 0x3000_0000, dram + 8, 0x4000_0010}
		var out []uint64

		for cycle, addr := range addrs {
			top.Send(bus.NewRead(addr, 4))
			b.Tick()

			var req *bus.Request
			if addr >= dram {
				req = mem.RecvReq()
			} else {
				req = mmio.RecvReq()
			}

			Expect(req).NotTo(BeNil(), "cycle %d", cycle)
			out = append(out, req.Addr)
		}

		Expect(out).To(Equal(addrs))
		Expect(b.Empty()).To(BeFalse())
		Expect(b.Routed()).To(Equal([]uint64{2, 2}))
	})
})
