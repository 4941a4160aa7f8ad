package tlb

// PassThrough stands in for a disabled translation unit. The core wires the
// master straight to the cache, so it adds no latency and maps addresses
// to themselves.
type PassThrough struct {
	name string
}

// NewPassThrough creates a pass-through.
func NewPassThrough(name string) *PassThrough {
	return &PassThrough{name: name}
}

// Name returns the name of the pass-through.
func (p *PassThrough) Name() string { return p.name }

// Tick does nothing.
func (p *PassThrough) Tick() bool { return false }

// Empty is always true.
func (p *PassThrough) Empty() bool { return true }

// SetControl ignores the control state.
func (p *PassThrough) SetControl(Control) {}

// InvalidateAll does nothing.
func (p *PassThrough) InvalidateAll() {}

// Stats returns zero statistics.
func (p *PassThrough) Stats() Statistics { return Statistics{} }
