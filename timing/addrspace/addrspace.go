// Package addrspace classifies physical addresses as memory-mapped I/O or
// main memory.
package addrspace

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	// ErrNotPowerOfTwo is returned for a range whose size is zero or not a
	// power of two, or whose base is not aligned to its size.
	ErrNotPowerOfTwo = errors.New("range size must be a power of two")

	// ErrOverlap is returned when two ranges share an address.
	ErrOverlap = errors.New("ranges overlap")
)

// Range is a naturally aligned, power-of-two sized address range.
type Range struct {
	Base uint64 `json:"base"`
	Size uint64 `json:"size"`
}

// InternalDevices is the fixed range of the core-local devices.
var InternalDevices = Range{Base: 0x3000_0000, Size: 0x1000_0000}

// Contains reports whether addr falls in the range.
func (r Range) Contains(addr uint64) bool {
	return (addr^r.Base)>>r.log2() == 0
}

// End returns the first address past the range.
func (r Range) End() uint64 {
	return r.Base + r.Size
}

func (r Range) log2() uint {
	return uint(bits.TrailingZeros64(r.Size))
}

func (r Range) overlaps(o Range) bool {
	return r.Base < o.End() && o.Base < r.End()
}

func (r Range) String() string {
	return fmt.Sprintf("[0x%x, 0x%x)", r.Base, r.End())
}

// Classifier maps an address to MMIO or DRAM. It is immutable once built.
type Classifier struct {
	ranges []Range
}

// NewClassifier validates the ranges and builds a classifier.
func NewClassifier(ranges ...Range) (*Classifier, error) {
	for i, r := range ranges {
		if r.Size == 0 || r.Size&(r.Size-1) != 0 {
			return nil, fmt.Errorf("%w: size 0x%x", ErrNotPowerOfTwo, r.Size)
		}

		if r.Base&(r.Size-1) != 0 {
			return nil, fmt.Errorf("%w: base 0x%x not aligned to size 0x%x",
				ErrNotPowerOfTwo, r.Base, r.Size)
		}

		for _, o := range ranges[:i] {
			if r.overlaps(o) {
				return nil, fmt.Errorf("%w: %s and %s", ErrOverlap, o, r)
			}
		}
	}

	return &Classifier{ranges: append([]Range(nil), ranges...)}, nil
}

// IsMMIO returns true if addr is inside any configured range.
func (c *Classifier) IsMMIO(addr uint64) bool {
	for _, r := range c.ranges {
		if r.Contains(addr) {
			return true
		}
	}

	return false
}

// Ranges returns a copy of the configured ranges.
func (c *Classifier) Ranges() []Range {
	return append([]Range(nil), c.ranges...)
}
