package core

import (
	"errors"
	"io"

	"github.com/sarchlab/coresim/emu"
	"github.com/sarchlab/coresim/timing/addrspace"
	"github.com/sarchlab/coresim/timing/config"
	"github.com/sarchlab/coresim/timing/device"
	"github.com/sarchlab/coresim/timing/memctrl"
)

// ErrMaxCycles is returned by Run when the cycle limit is reached before the
// core halts.
var ErrMaxCycles = errors.New("cycle limit reached")

// Device addresses inside the internal device range.
var (
	UARTBase  = addrspace.InternalDevices.Base
	TimerBase = addrspace.InternalDevices.Base + 0x1000
)

// SystemStats holds the statistics of a system.
type SystemStats struct {
	Core    Stats
	IMem    memctrl.Statistics
	DMem    memctrl.Statistics
	Devices device.Statistics
}

// System is a core together with what sits on its ports: ideal memories
// sharing one backing store, a device bus with a UART and a timer, and a
// DMA agent.
type System struct {
	Core    *Core
	Memory  *emu.Memory
	IMem    *memctrl.IdealMemory
	DMem    *memctrl.IdealMemory
	Devices *device.Bus
	UART    *device.UART
	Timer   *device.Timer
	DMA     *memctrl.DMAAgent

	cycles uint64
}

// SystemOption configures a System.
type SystemOption func(*systemOptions)

type systemOptions struct {
	console io.Writer
	memory  *emu.Memory
}

// WithConsole sets where UART output goes.
func WithConsole(w io.Writer) SystemOption {
	return func(o *systemOptions) {
		o.console = w
	}
}

// WithMemory sets the backing store.
func WithMemory(m *emu.Memory) SystemOption {
	return func(o *systemOptions) {
		o.memory = m
	}
}

// NewSystem builds a core from cfg and attaches its responders.
func NewSystem(cfg *config.Config, opts ...SystemOption) (*System, error) {
	o := systemOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.memory == nil {
		o.memory = emu.NewMemory()
	}

	c, err := MakeBuilder().WithConfig(cfg).Build("Core")
	if err != nil {
		return nil, err
	}

	table := c.Latency()

	s := &System{
		Core:    c,
		Memory:  o.memory,
		IMem:    memctrl.NewIdealMemory("IMem", o.memory, c.IMem(), table.MemoryLatency()),
		DMem:    memctrl.NewIdealMemory("DMem", o.memory, c.DMem(), table.MemoryLatency()),
		Devices: device.NewBus("Devices", c.MMIO(), table.MMIOLatency()),
		UART:    device.NewUART("UART", o.console),
		Timer:   device.NewTimer("Timer"),
		DMA:     memctrl.NewDMAAgent("DMA", c.DMA()),
	}

	if err := s.Devices.Map(UARTBase, s.UART); err != nil {
		return nil, err
	}

	if err := s.Devices.Map(TimerBase, s.Timer); err != nil {
		return nil, err
	}

	return s, nil
}

// LoadProgram copies program into memory at addr.
func (s *System) LoadProgram(addr uint64, program []byte) {
	s.Memory.WriteBytes(addr, program)
}

// LoadWords copies instruction words into memory at addr.
func (s *System) LoadWords(addr uint64, words []uint32) {
	s.Memory.LoadWords(addr, words)
}

// Tick advances the core and every responder by one cycle.
func (s *System) Tick() (madeProgress bool) {
	s.cycles++

	madeProgress = s.Core.Tick() || madeProgress
	madeProgress = s.IMem.Tick() || madeProgress
	madeProgress = s.DMem.Tick() || madeProgress
	madeProgress = s.Devices.Tick() || madeProgress
	madeProgress = s.DMA.Tick() || madeProgress

	return madeProgress
}

// Cycles returns the number of cycles ticked.
func (s *System) Cycles() uint64 {
	return s.cycles
}

// Halted returns true once the core halted.
func (s *System) Halted() bool {
	return s.Core.Halted()
}

// ExitCode returns the exit code of the core.
func (s *System) ExitCode() int64 {
	return s.Core.ExitCode()
}

// RunCycles ticks up to n cycles. It returns true if the core is still
// running.
func (s *System) RunCycles(n uint64) bool {
	for i := uint64(0); i < n && !s.Halted(); i++ {
		s.Tick()
	}

	return !s.Halted()
}

// Run ticks until the core halts and returns its exit code. A maxCycles of
// zero means no limit.
func (s *System) Run(maxCycles uint64) (int64, error) {
	for !s.Halted() {
		if maxCycles > 0 && s.cycles >= maxCycles {
			return 0, ErrMaxCycles
		}

		s.Tick()
	}

	return s.ExitCode(), nil
}

// Drain ticks until the DMA agent is idle, at most n cycles. It returns
// true if the agent drained.
func (s *System) Drain(n uint64) bool {
	for i := uint64(0); i < n && !s.DMA.Idle(); i++ {
		s.Tick()
	}

	return s.DMA.Idle()
}

// Stats returns the statistics of the core and its responders.
func (s *System) Stats() SystemStats {
	return SystemStats{
		Core:    s.Core.Stats(),
		IMem:    s.IMem.Stats(),
		DMem:    s.DMem.Stats(),
		Devices: s.Devices.Stats(),
	}
}
