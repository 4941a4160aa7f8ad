package memctrl

import (
	"errors"
	"fmt"

	"github.com/sarchlab/akita/v4/mem/vm"

	"github.com/sarchlab/coresim/emu"
	"github.com/sarchlab/coresim/timing/tlb"
)

// Page table errors.
var (
	ErrPageSize   = errors.New("unsupported page size")
	ErrMisaligned = errors.New("page is not aligned to its size")
	ErrMapped     = errors.New("page already mapped")
)

// Supported page sizes.
const (
	Page4K = uint64(tlb.PageSize)
	Page2M = Page4K << 9
	Page1G = Page2M << 9
)

// PageTableBuilder lays out Sv39 page tables in simulated memory. Table
// pages are allocated upwards from a pool base. The builder also keeps the
// mappings in a page table registry so they can be looked up without a
// walk.
type PageTableBuilder struct {
	storage  *emu.Memory
	asid     uint16
	rootPPN  uint64
	nextFree uint64
	registry vm.PageTable
}

// NewPageTableBuilder creates a builder with an empty root table at
// poolBase.
func NewPageTableBuilder(
	storage *emu.Memory,
	poolBase uint64,
	asid uint16,
) *PageTableBuilder {
	b := &PageTableBuilder{
		storage:  storage,
		asid:     asid,
		nextFree: poolBase &^ (Page4K - 1),
		registry: vm.NewPageTable(tlb.PageShift),
	}
	b.rootPPN = b.allocTable()

	return b
}

// RootPPN returns the physical page number of the root table.
func (b *PageTableBuilder) RootPPN() uint64 {
	return b.rootPPN
}

// ASID returns the address space the tables belong to.
func (b *PageTableBuilder) ASID() uint16 {
	return b.asid
}

// SATP returns the satp value that enables the tables.
func (b *PageTableBuilder) SATP() uint64 {
	return emu.MakeSATP(b.rootPPN, b.asid)
}

// PoolEnd returns the first address above the allocated tables.
func (b *PageTableBuilder) PoolEnd() uint64 {
	return b.nextFree
}

func (b *PageTableBuilder) allocTable() uint64 {
	ppn := b.nextFree >> tlb.PageShift
	b.storage.WriteBytes(b.nextFree, make([]byte, Page4K))
	b.nextFree += Page4K

	return ppn
}

func leafLevel(pageSize uint64) (int, error) {
	switch pageSize {
	case Page4K:
		return 0, nil
	case Page2M:
		return 1, nil
	case Page1G:
		return 2, nil
	}

	return 0, fmt.Errorf("%w: %d", ErrPageSize, pageSize)
}

// Map installs page with the given PTE permission flags. The valid,
// accessed and dirty bits are set automatically.
func (b *PageTableBuilder) Map(page vm.Page, flags uint64) error {
	level, err := leafLevel(page.PageSize)
	if err != nil {
		return err
	}

	if page.VAddr%page.PageSize != 0 || page.PAddr%page.PageSize != 0 {
		return fmt.Errorf("%w: 0x%x -> 0x%x", ErrMisaligned, page.VAddr, page.PAddr)
	}

	if _, found := b.Lookup(page.VAddr); found {
		return fmt.Errorf("%w: 0x%x", ErrMapped, page.VAddr)
	}

	table := b.rootPPN << tlb.PageShift
	for l := tlb.Levels - 1; l > level; l-- {
		pteAddr := table + tlb.VPN(page.VAddr, l)*tlb.PTESize

		pte := b.storage.Read64(pteAddr)
		if pte&tlb.PTEValid == 0 {
			pte = tlb.MakePTE(b.allocTable(), tlb.PTEValid)
			b.storage.Write64(pteAddr, pte)
		} else if tlb.IsLeaf(pte) {
			return fmt.Errorf("%w: 0x%x", ErrMapped, page.VAddr)
		}

		table = tlb.PTEPPN(pte) << tlb.PageShift
	}

	leafAddr := table + tlb.VPN(page.VAddr, level)*tlb.PTESize
	if b.storage.Read64(leafAddr)&tlb.PTEValid != 0 {
		return fmt.Errorf("%w: 0x%x", ErrMapped, page.VAddr)
	}

	leaf := tlb.MakePTE(page.PAddr>>tlb.PageShift,
		flags|tlb.PTEValid|tlb.PTEAccessed|tlb.PTEDirty)
	b.storage.Write64(leafAddr, leaf)

	page.PID = vm.PID(b.asid)
	page.Valid = true
	b.registry.Insert(page)

	return nil
}

// MapRange maps size bytes at va to pa with 4 KiB pages.
func (b *PageTableBuilder) MapRange(va, pa, size, flags uint64) error {
	for off := uint64(0); off < size; off += Page4K {
		page := vm.Page{VAddr: va + off, PAddr: pa + off, PageSize: Page4K}
		if err := b.Map(page, flags); err != nil {
			return err
		}
	}

	return nil
}

// Lookup returns the mapping that covers va.
func (b *PageTableBuilder) Lookup(va uint64) (vm.Page, bool) {
	for _, size := range []uint64{Page4K, Page2M, Page1G} {
		page, found := b.registry.Find(vm.PID(b.asid), va&^(size-1))
		if found && page.PageSize == size {
			return page, true
		}
	}

	return vm.Page{}, false
}

// Translate returns the physical address of va.
func (b *PageTableBuilder) Translate(va uint64) (uint64, bool) {
	page, found := b.Lookup(va)
	if !found {
		return 0, false
	}

	return page.PAddr + va - page.VAddr, true
}
