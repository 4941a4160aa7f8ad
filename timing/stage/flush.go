// Package stage provides the cycle clock, the flush vector, and the elastic
// connectors that link pipeline stages.
package stage

import (
	"github.com/sarchlab/akita/v4/sim"
)

// HookPosFlush marks a flush vector pulse. The hook item is the []LineID of
// the lines asserted by the pulse.
var HookPosFlush = &sim.HookPos{Name: "Flush"}

// Clock counts cycles. Every component that observes flush lines shares one
// clock.
type Clock struct {
	now uint64
}

// Step advances to the next cycle.
func (c *Clock) Step() {
	c.now++
}

// Now returns the current cycle.
func (c *Clock) Now() uint64 {
	return c.now
}

// Line is a single-cycle flush signal. A nil Line never asserts.
//
// Each pulse bumps the line generation once. Records that capture the
// generation when they enter the flushed region are stale once it changes.
type Line struct {
	name       string
	clock      *Clock
	pulsed     bool
	assertedAt uint64
	generation uint64
}

// NewLine creates a flush line driven by clock.
func NewLine(name string, clock *Clock) *Line {
	return &Line{name: name, clock: clock}
}

// Name returns the name of the line.
func (l *Line) Name() string {
	return l.name
}

// Pulse asserts the line for the current cycle. Pulsing an asserted line
// has no further effect.
func (l *Line) Pulse() {
	if l.Asserted() {
		return
	}

	l.pulsed = true
	l.assertedAt = l.clock.Now()
	l.generation++
}

// Asserted returns true during the cycle the line was pulsed.
func (l *Line) Asserted() bool {
	return l != nil && l.pulsed && l.assertedAt == l.clock.Now()
}

// Generation returns the number of pulses so far.
func (l *Line) Generation() uint64 {
	if l == nil {
		return 0
	}

	return l.generation
}

// Stamp captures the current generation as a cancellation token.
func (l *Line) Stamp() uint64 {
	return l.Generation()
}

// Stale returns true if the line pulsed since stamp was taken.
func (l *Line) Stale(stamp uint64) bool {
	return l.Generation() != stamp
}

// LineID names a cut point of the pipeline.
type LineID int

// Cut points. LineFetch, LineDecode and LineBackend form the frontend chain,
// ordered upstream to downstream. LineITrans guards the instruction
// translation path.
const (
	LineFetch LineID = iota
	LineDecode
	LineBackend
	LineITrans
	NumLines
)

var lineNames = [NumLines]string{"Fetch", "Decode", "Backend", "ITrans"}

func (id LineID) String() string {
	if id < 0 || id >= NumLines {
		return "Unknown"
	}

	return lineNames[id]
}

// FlushVector holds one Line per cut point.
type FlushVector struct {
	sim.HookableBase

	name  string
	lines [NumLines]*Line
}

// NewFlushVector creates the flush lines of a core.
func NewFlushVector(name string, clock *Clock) *FlushVector {
	sim.NameMustBeValid(name)

	v := &FlushVector{name: name}
	for id := LineID(0); id < NumLines; id++ {
		v.lines[id] = NewLine(name+"."+id.String(), clock)
	}

	return v
}

// Name returns the name of the flush vector.
func (v *FlushVector) Name() string {
	return v.name
}

// Line returns the line of a cut point.
func (v *FlushVector) Line(id LineID) *Line {
	return v.lines[id]
}

// Pulse asserts a cut point. A frontend chain line also asserts every chain
// line downstream of it. LineITrans asserts alone.
func (v *FlushVector) Pulse(id LineID) {
	ids := []LineID{id}
	if id < LineITrans {
		ids = ids[:0]
		for chain := id; chain < LineITrans; chain++ {
			ids = append(ids, chain)
		}
	}

	v.pulse(ids)
}

// Redirect asserts every line. It is what a backend redirect implies.
func (v *FlushVector) Redirect() {
	v.pulse([]LineID{LineFetch, LineDecode, LineBackend, LineITrans})
}

func (v *FlushVector) pulse(ids []LineID) {
	for _, id := range ids {
		v.lines[id].Pulse()
	}

	v.InvokeHook(sim.HookCtx{
		Domain: v,
		Pos:    HookPosFlush,
		Item:   ids,
	})
}

// Asserted returns the lines asserted in the current cycle.
func (v *FlushVector) Asserted() []LineID {
	var ids []LineID
	for id, l := range v.lines {
		if l.Asserted() {
			ids = append(ids, LineID(id))
		}
	}

	return ids
}
