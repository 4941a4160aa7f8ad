package bus_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/coresim/timing/bus"
	"github.com/sarchlab/coresim/timing/stage"
)

var _ = Describe("Protocol", func() {
	It("should give every request a unique id", func() {
		a := bus.NewRead(0x100, 4)
		b := bus.NewRead(0x100, 4)

		Expect(a.ID).NotTo(BeEmpty())
		Expect(a.ID).NotTo(Equal(b.ID))
	})

	It("should encode write data little-endian", func() {
		req := bus.NewWrite(0x100, 2, 0x12345678)

		Expect(req.Data).To(Equal([]byte{0x78, 0x56}))
		Expect(req.Value()).To(Equal(uint64(0x5678)))
		Expect(req.IsWrite()).To(BeTrue())
	})

	It("should echo the tag in replies", func() {
		req := read(0x100, 7)

		resp := req.Reply([]byte{1})
		fault := req.ReplyFault(bus.FaultAccess)

		Expect(resp.Tag).To(Equal(uint64(7)))
		Expect(resp.RespondTo).To(Equal(req.ID))
		Expect(fault.Tag).To(Equal(uint64(7)))
		Expect(fault.Fault).To(Equal(bus.FaultAccess))
	})
})

var _ = Describe("Link", func() {
	var (
		clock *stage.Clock
		line  *stage.Line
		link  *bus.Link
	)

	BeforeEach(func() {
		clock = &stage.Clock{}
		line = stage.NewLine("Flush", clock)
		link = bus.NewLink("Link", 2, line)
	})

	It("should carry requests and responses in order", func() {
		link.Send(read(1, 1))
		link.Send(read(2, 2))
		Expect(link.CanSend()).To(BeFalse())

		Expect(link.RecvReq().Addr).To(Equal(uint64(1)))
		Expect(link.RecvReq().Addr).To(Equal(uint64(2)))
		Expect(link.RecvReq()).To(BeNil())
	})

	It("should drop everything on flush", func() {
		link.Send(read(1, 1))
		link.Respond(&bus.Response{Tag: 9})

		line.Pulse()
		Expect(link.PeekReq()).To(BeNil())
		Expect(link.CanSend()).To(BeFalse())
		Expect(link.CanRespond()).To(BeFalse())

		clock.Step()
		Expect(link.Empty()).To(BeTrue())
		Expect(link.CanSend()).To(BeTrue())
	})
})
