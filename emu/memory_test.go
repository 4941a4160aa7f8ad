package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/coresim/emu"
)

var _ = Describe("Memory", func() {
	var memory *emu.Memory

	BeforeEach(func() {
		memory = emu.NewMemory()
	})

	It("should read zero from untouched memory", func() {
		Expect(memory.Read64(0x8000_0000)).To(Equal(uint64(0)))
	})

	It("should store little-endian values", func() {
		memory.Write32(0x1000, 0x11223344)

		Expect(memory.Read8(0x1000)).To(Equal(uint8(0x44)))
		Expect(memory.Read16(0x1002)).To(Equal(uint16(0x1122)))
	})

	It("should handle accesses that cross a page boundary", func() {
		memory.Write64(0x1ffc, 0x0102030405060708)

		Expect(memory.Read64(0x1ffc)).To(Equal(uint64(0x0102030405060708)))
		Expect(memory.Read32(0x2000)).To(Equal(uint32(0x01020304)))
	})

	It("should load instruction words", func() {
		memory.LoadWords(0x100, []uint32{0xdeadbeef, 0x12345678})

		Expect(memory.ReadBytes(0x104, 4)).To(Equal([]byte{0x78, 0x56, 0x34, 0x12}))
	})
})
