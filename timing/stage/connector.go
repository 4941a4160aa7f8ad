package stage

import (
	"log"

	"github.com/sarchlab/akita/v4/sim"
)

// Connector is a sequential connection: a FIFO elastic buffer between a
// producing stage (left) and a consuming stage (right), gated by a flush
// line.
//
// While the line is asserted the buffer is empty, the left side cannot
// push and the right side sees nothing valid. A producer that cannot push
// keeps its item, so back-pressure never drops data.
type Connector[T any] struct {
	buf     sim.Buffer
	flush   *Line
	seenGen uint64
}

// NewConnector creates a connector of the given depth. flush may be nil.
func NewConnector[T any](name string, depth int, flush *Line) *Connector[T] {
	if depth <= 0 {
		log.Panicf("connector %s: depth must be positive, got %d", name, depth)
	}

	return &Connector[T]{
		buf:     sim.NewBuffer(name, depth),
		flush:   flush,
		seenGen: flush.Generation(),
	}
}

// Name returns the name of the connector.
func (c *Connector[T]) Name() string {
	return c.buf.Name()
}

// sync clears the buffer once per flush generation.
func (c *Connector[T]) sync() {
	if gen := c.flush.Generation(); gen != c.seenGen {
		c.buf.Clear()
		c.seenGen = gen
	}
}

// CanAccept returns true if the left side may push an item this cycle.
func (c *Connector[T]) CanAccept() bool {
	c.sync()

	return !c.flush.Asserted() && c.buf.CanPush()
}

// Accept pushes an item. The caller must check CanAccept first.
func (c *Connector[T]) Accept(item T) {
	if !c.CanAccept() {
		log.Panicf("connector %s: accept while not ready", c.Name())
	}

	c.buf.Push(item)
}

// Valid returns true if an item is available to the right side.
func (c *Connector[T]) Valid() bool {
	c.sync()

	return !c.flush.Asserted() && c.buf.Size() > 0
}

// Peek returns the head item without removing it.
func (c *Connector[T]) Peek() (item T, ok bool) {
	if !c.Valid() {
		return item, false
	}

	return c.buf.Peek().(T), true
}

// Deliver removes and returns the head item. The caller must check Valid
// first.
func (c *Connector[T]) Deliver() T {
	if !c.Valid() {
		log.Panicf("connector %s: deliver while not valid", c.Name())
	}

	return c.buf.Pop().(T)
}

// Size returns the number of buffered items.
func (c *Connector[T]) Size() int {
	c.sync()

	return c.buf.Size()
}

// Empty returns true if nothing is buffered.
func (c *Connector[T]) Empty() bool {
	return c.Size() == 0
}

// Capacity returns the depth of the connector.
func (c *Connector[T]) Capacity() int {
	return c.buf.Capacity()
}
