// Package core assembles a frontend, a backend and the memory path between
// them into a core with four external ports.
package core

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/coresim/timing/addrspace"
	"github.com/sarchlab/coresim/timing/backend"
	"github.com/sarchlab/coresim/timing/bus"
	"github.com/sarchlab/coresim/timing/cache"
	"github.com/sarchlab/coresim/timing/config"
	"github.com/sarchlab/coresim/timing/frontend"
	"github.com/sarchlab/coresim/timing/latency"
	"github.com/sarchlab/coresim/timing/stage"
	"github.com/sarchlab/coresim/timing/tlb"
)

// HookPosRedirect marks a backend redirect. The item is a backend.Redirect.
var HookPosRedirect = &sim.HookPos{Name: "Redirect"}

// Stats holds performance statistics for the core.
type Stats struct {
	// Cycles is the number of cycles the core ran before halting.
	Cycles uint64
	// Instructions is the number of instructions retired.
	Instructions uint64
	// Redirects is the number of pipeline flushes.
	Redirects uint64

	Backend  backend.Stats
	Frontend frontend.Stats
	ICache   cache.Statistics
	DCache   cache.Statistics
	ITLB     tlb.Statistics
	DTLB     tlb.Statistics
}

// CPI returns cycles per retired instruction.
func (s Stats) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}

	return float64(s.Cycles) / float64(s.Instructions)
}

type ticker interface {
	Tick() bool
}

type multiplexer interface {
	ticker
	AddInput(in *bus.Link, physical bool) int
}

// Core is a single RISC-V core. Its four ports are links: the core masters
// IMem, DMem and MMIO and serves DMA.
type Core struct {
	sim.HookableBase

	name    string
	cfg     *config.Config
	latency *latency.Table

	clock *stage.Clock
	flush *stage.FlushVector

	frontend *frontend.Frontend
	backend  backend.Backend

	itlb   tlb.Translator
	dtlb   tlb.Translator
	icache cache.Component
	dcache cache.Component

	imem *bus.Link
	dmem *bus.Link
	mmio *bus.Link
	dma  *bus.Link

	// memory lists the components between the stages and the ports in
	// the order they tick.
	memory []ticker

	redirects uint64
}

// Name returns the name of the core.
func (c *Core) Name() string {
	return c.name
}

// Config returns the configuration the core was built with.
func (c *Core) Config() *config.Config {
	return c.cfg
}

// IMem returns the instruction memory port.
func (c *Core) IMem() *bus.Link {
	return c.imem
}

// DMem returns the data memory port.
func (c *Core) DMem() *bus.Link {
	return c.dmem
}

// MMIO returns the device port.
func (c *Core) MMIO() *bus.Link {
	return c.mmio
}

// DMA returns the coherent DMA port. An external master sends on it.
func (c *Core) DMA() *bus.Link {
	return c.dma
}

// Clock returns the clock of the core.
func (c *Core) Clock() *stage.Clock {
	return c.clock
}

// Latency returns the latency table the core was built with.
func (c *Core) Latency() *latency.Table {
	return c.latency
}

// Flush returns the flush lines of the core.
func (c *Core) Flush() *stage.FlushVector {
	return c.flush
}

// Frontend returns the frontend.
func (c *Core) Frontend() *frontend.Frontend {
	return c.frontend
}

// Backend returns the backend.
func (c *Core) Backend() backend.Backend {
	return c.backend
}

// AcceptHook registers a hook with the core, its backend and its flush
// lines, so one hook sees redirects, commits and flushes.
func (c *Core) AcceptHook(hook sim.Hook) {
	c.HookableBase.AcceptHook(hook)
	c.backend.AcceptHook(hook)
	c.flush.AcceptHook(hook)
}

// Halted returns true once the backend retired the halt instruction.
func (c *Core) Halted() bool {
	return c.backend.Halted()
}

// ExitCode returns the exit code if the core has halted.
func (c *Core) ExitCode() int64 {
	return c.backend.ExitCode()
}

// Tick advances the core by one cycle. The backend resolves first, so a
// redirect flushes the frontend before it moves. The memory path keeps
// running after a halt so that DMA is still served.
func (c *Core) Tick() (madeProgress bool) {
	c.clock.Step()

	if !c.backend.Halted() {
		madeProgress = c.backend.Tick() || madeProgress
		c.handleRedirect()
		c.updateTranslation()
		madeProgress = c.frontend.Tick() || madeProgress
	}

	for _, m := range c.memory {
		madeProgress = m.Tick() || madeProgress
	}

	return madeProgress
}

func (c *Core) handleRedirect() {
	for _, u := range c.backend.TakeUpdates() {
		c.frontend.Train(u)
	}

	r, ok := c.backend.Redirect()
	if !ok {
		return
	}

	c.flush.Redirect()
	c.frontend.Redirect(r.Target, r.Reason == backend.ReasonMispredict)
	c.redirects++

	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    HookPosRedirect,
		Item:   r,
	})
}

func (c *Core) updateTranslation() {
	ctrl := c.backend.TranslationControl()
	c.itlb.SetControl(ctrl)
	c.dtlb.SetControl(ctrl)

	if c.backend.TakeSFence() {
		c.itlb.InvalidateAll()
		c.dtlb.InvalidateAll()
	}
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	b := c.backend.Stats()

	s := Stats{
		Cycles:       b.Cycles,
		Instructions: b.Committed,
		Redirects:    c.redirects,
		Backend:      b,
		Frontend:     c.frontend.Stats(),
		ITLB:         c.itlb.Stats(),
		DTLB:         c.dtlb.Stats(),
	}

	if u, ok := c.icache.(*cache.Unit); ok {
		s.ICache = u.Stats()
	}

	if u, ok := c.dcache.(*cache.Unit); ok {
		s.DCache = u.Stats()
	}

	return s
}

// Builder builds cores.
type Builder struct {
	cfg *config.Config
}

// MakeBuilder returns a builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{cfg: config.Default()}
}

// WithConfig sets the configuration. The builder keeps its own copy.
func (b Builder) WithConfig(cfg *config.Config) Builder {
	b.cfg = cfg.Clone()
	return b
}

// Build validates the configuration and builds a core. Every configuration
// error wraps config.ErrInvalid.
func (b Builder) Build(name string) (*Core, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}

	classifier, err := addrspace.NewClassifier(b.cfg.MMIORanges()...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}

	sim.NameMustBeValid(name)

	c := &Core{
		name:  name,
		cfg:   b.cfg.Clone(),
		clock: &stage.Clock{},
	}
	c.latency = latency.NewTableWithConfig(c.cfg.Timing)
	c.flush = stage.NewFlushVector(name+".Flush", c.clock)

	depth := c.cfg.LinkDepth
	c.imem = bus.NewLink(name+".IMem", depth, nil)
	c.dmem = bus.NewLink(name+".DMem", depth, nil)
	c.mmio = bus.NewLink(name+".MMIO", depth, nil)
	c.dma = bus.NewLink(name+".DMA", depth, nil)

	mmioMux := bus.NewMux(name+".MMIOMux", c.mmio)
	itlbRefill := c.buildInstructionPath(classifier, mmioMux)
	c.buildDataPath(classifier, mmioMux, itlbRefill)
	c.memory = append(c.memory, mmioMux)

	return c, nil
}

// buildInstructionPath wires Fetch, the instruction translation unit and
// the instruction cache. It returns the refill link of the translation
// unit, or nil without translation.
func (c *Core) buildInstructionPath(
	classifier *addrspace.Classifier,
	mmioMux *bus.Mux,
) *bus.Link {
	name := c.name
	depth := c.cfg.LinkDepth
	itrans := c.flush.Line(stage.LineITrans)

	fetchOut := bus.NewLink(name+".Fetch.Out", depth, itrans)
	c.frontend = frontend.New(name+".Frontend", c.cfg, c.latency, c.flush, fetchOut)

	var refill *bus.Link

	icacheIn := fetchOut
	if c.cfg.VMEnabled() {
		icacheIn = bus.NewLink(name+".ITLB.Out", depth, itrans)
		refill = bus.NewLink(name+".ITLB.Refill", depth, nil)
		c.itlb = tlb.NewUnit(name+".ITLB", c.cfg.ITLB, fetchOut, icacheIn, refill)
	} else {
		c.itlb = tlb.NewPassThrough(name + ".ITLB")
	}

	icacheMMIO := bus.NewLink(name+".ICache.MMIO", depth, nil)
	mmioMux.AddInput(icacheMMIO, false)

	if c.cfg.HasICache {
		c.icache = cache.NewUnit(name+".ICache", c.cfg.ICache, classifier,
			icacheIn, c.imem, icacheMMIO, cache.WithReadOnly())
	} else {
		c.icache = cache.NewBypass(name+".ICache", classifier,
			icacheIn, c.imem, icacheMMIO)
	}

	if u, ok := c.itlb.(*tlb.Unit); ok {
		u.SetDownstream(c.icache)
	}

	c.memory = append(c.memory, c.itlb, c.icache)

	return refill
}

// buildDataPath wires the backend, the DMA port and the instruction-side
// refill traffic onto the data multiplexer, then the data translation unit
// and the data cache.
func (c *Core) buildDataPath(
	classifier *addrspace.Classifier,
	mmioMux *bus.Mux,
	itlbRefill *bus.Link,
) {
	name := c.name
	depth := c.cfg.LinkDepth

	backendOut := bus.NewLink(name+".Backend.Out", depth, nil)
	c.backend = backend.New(name+".Backend", c.cfg, classifier,
		c.frontend.Output(), backendOut)

	muxOut := bus.NewLink(name+".DataMux.Out", depth, nil)
	dataMux := c.newMux(name+".DataMux", muxOut)
	dataMux.AddInput(backendOut, false)
	dataMux.AddInput(c.dma, true)

	if itlbRefill != nil {
		dataMux.AddInput(itlbRefill, true)
	}

	c.memory = append(c.memory, dataMux)

	dcacheIn := muxOut
	if c.cfg.VMEnabled() {
		dtlbOut := bus.NewLink(name+".DTLB.Out", depth, nil)
		dtlbRefill := bus.NewLink(name+".DTLB.Refill", depth, nil)
		c.dtlb = tlb.NewUnit(name+".DTLB", c.cfg.DTLB, muxOut, dtlbOut, dtlbRefill)

		dcacheIn = bus.NewLink(name+".DTLBMux.Out", depth, nil)
		dtlbMux := c.newMux(name+".DTLBMux", dcacheIn)
		dtlbMux.AddInput(dtlbOut, false)
		dtlbMux.AddInput(dtlbRefill, true)

		c.memory = append(c.memory, c.dtlb, dtlbMux)
	} else {
		c.dtlb = tlb.NewPassThrough(name + ".DTLB")
	}

	dcacheMMIO := bus.NewLink(name+".DCache.MMIO", depth, nil)
	mmioMux.AddInput(dcacheMMIO, false)

	if c.cfg.HasDCache {
		c.dcache = cache.NewUnit(name+".DCache", c.cfg.DCache, classifier,
			dcacheIn, c.dmem, dcacheMMIO)
	} else {
		c.dcache = cache.NewBypass(name+".DCache", classifier,
			dcacheIn, c.dmem, dcacheMMIO)
	}

	if u, ok := c.dtlb.(*tlb.Unit); ok {
		u.SetDownstream(c.dcache)
	}

	c.memory = append(c.memory, c.dcache)
}

// newMux returns an auto-ID multiplexer for the out-of-order backend, which
// keeps several data accesses in flight, and a single-transaction one
// otherwise.
func (c *Core) newMux(name string, out *bus.Link) multiplexer {
	if c.cfg.EnableOutOfOrder {
		return bus.NewIDMux(name, out, c.cfg.DataBusIDBits)
	}

	return bus.NewMux(name, out)
}
