// Package tlb provides the translation units that sit in front of each
// cache. Translations follow the Sv39 scheme: three levels of 512-entry
// tables, 4 KiB pages, and 2 MiB and 1 GiB superpages.
package tlb

// Page geometry.
const (
	PageShift = 12
	PageSize  = 1 << PageShift
	Levels    = 3
	PTESize   = 8

	vpnBits = 9
	vaBits  = 39
)

// PTE flag bits.
const (
	PTEValid uint64 = 1 << iota
	PTERead
	PTEWrite
	PTEExec
	PTEUser
	PTEGlobal
	PTEAccessed
	PTEDirty
)

const ppnMask = 1<<44 - 1

// MakePTE builds a page table entry.
func MakePTE(ppn, flags uint64) uint64 {
	return (ppn&ppnMask)<<10 | flags&0x3ff
}

// PTEPPN extracts the physical page number of an entry.
func PTEPPN(pte uint64) uint64 {
	return pte >> 10 & ppnMask
}

// IsLeaf returns true if the entry maps a page rather than pointing to the
// next table.
func IsLeaf(pte uint64) bool {
	return pte&(PTERead|PTEExec) != 0
}

// VPN returns the index into the table of the given level, 2 being the root.
func VPN(va uint64, level int) uint64 {
	return va >> (PageShift + vpnBits*uint(level)) & (1<<vpnBits - 1)
}

// Canonical returns true if bits 63..39 of va copy bit 38.
func Canonical(va uint64) bool {
	top := int64(va) >> (vaBits - 1)
	return top == 0 || top == -1
}

// Control is the translation state the backend drives into both units.
type Control struct {
	Enable  bool
	RootPPN uint64
	ASID    uint16
}

type walkStep int

const (
	walkNext walkStep = iota
	walkLeaf
	walkFault
)

// evalPTE decides what a walk does with the entry read at level. For a leaf
// it returns the 4 KiB physical page number that covers va.
func evalPTE(pte, va uint64, level int) (walkStep, uint64) {
	if pte&PTEValid == 0 || pte&(PTERead|PTEWrite) == PTEWrite {
		return walkFault, 0
	}

	ppn := PTEPPN(pte)

	if !IsLeaf(pte) {
		if level == 0 {
			return walkFault, 0
		}

		return walkNext, ppn
	}

	mask := uint64(1)<<(vpnBits*uint(level)) - 1
	if ppn&mask != 0 {
		return walkFault, 0
	}

	return walkLeaf, ppn | va>>PageShift&mask
}

func permits(pte uint64, write, exec bool) bool {
	switch {
	case exec:
		return pte&PTEExec != 0
	case write:
		return pte&PTEWrite != 0
	default:
		return pte&PTERead != 0
	}
}
