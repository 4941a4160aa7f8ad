package stage

import (
	"log"

	"github.com/sarchlab/akita/v4/sim"
)

// Lane selects one side of a FanIn.
type Lane int

// Fan-in lanes.
const (
	LaneA Lane = iota
	LaneB
	numLanes
)

type laneItem[T any] struct {
	seq  uint64
	item T
}

// FanIn merges two producer lanes into two buffered consumer lanes that
// share one capacity budget and one flush line. Order is kept per lane.
// Every item also carries a global arrival sequence so a consumer can drain
// the two lanes as one ordered stream.
type FanIn[T any] struct {
	name    string
	lanes   [numLanes]sim.Buffer
	depth   int
	flush   *Line
	seenGen uint64
	nextSeq uint64
}

// NewFanIn creates a fan-in connector with a shared depth. flush may be nil.
func NewFanIn[T any](name string, depth int, flush *Line) *FanIn[T] {
	if depth <= 0 {
		log.Panicf("fan-in %s: depth must be positive, got %d", name, depth)
	}

	f := &FanIn[T]{
		name:    name,
		depth:   depth,
		flush:   flush,
		seenGen: flush.Generation(),
	}
	f.lanes[LaneA] = sim.NewBuffer(name+".LaneA", depth)
	f.lanes[LaneB] = sim.NewBuffer(name+".LaneB", depth)

	return f
}

// Name returns the name of the fan-in.
func (f *FanIn[T]) Name() string {
	return f.name
}

func (f *FanIn[T]) sync() {
	if gen := f.flush.Generation(); gen != f.seenGen {
		f.lanes[LaneA].Clear()
		f.lanes[LaneB].Clear()
		f.seenGen = gen
	}
}

// Size returns the number of items buffered in both lanes.
func (f *FanIn[T]) Size() int {
	f.sync()

	return f.lanes[LaneA].Size() + f.lanes[LaneB].Size()
}

// Empty returns true if both lanes are empty.
func (f *FanIn[T]) Empty() bool {
	return f.Size() == 0
}

// Free returns how many more items may be accepted this cycle.
func (f *FanIn[T]) Free() int {
	if f.flush.Asserted() {
		return 0
	}

	return f.depth - f.Size()
}

// CanAccept returns true if the shared budget has room for one more item.
func (f *FanIn[T]) CanAccept() bool {
	return f.Free() > 0
}

// Accept pushes an item into a lane.
func (f *FanIn[T]) Accept(lane Lane, item T) {
	if !f.CanAccept() {
		log.Panicf("fan-in %s: accept while not ready", f.name)
	}

	f.lanes[lane].Push(laneItem[T]{seq: f.nextSeq, item: item})
	f.nextSeq++
}

// Valid returns true if a lane has an item for the consumer.
func (f *FanIn[T]) Valid(lane Lane) bool {
	f.sync()

	return !f.flush.Asserted() && f.lanes[lane].Size() > 0
}

// PeekLane returns the head of a lane.
func (f *FanIn[T]) PeekLane(lane Lane) (item T, ok bool) {
	if !f.Valid(lane) {
		return item, false
	}

	return f.lanes[lane].Peek().(laneItem[T]).item, true
}

// DeliverLane removes and returns the head of a lane.
func (f *FanIn[T]) DeliverLane(lane Lane) T {
	if !f.Valid(lane) {
		log.Panicf("fan-in %s: deliver from empty lane %d", f.name, lane)
	}

	return f.lanes[lane].Pop().(laneItem[T]).item
}

// OldestLane returns the lane whose head arrived first.
func (f *FanIn[T]) OldestLane() (Lane, bool) {
	a, b := f.Valid(LaneA), f.Valid(LaneB)

	switch {
	case a && b:
		seqA := f.lanes[LaneA].Peek().(laneItem[T]).seq
		seqB := f.lanes[LaneB].Peek().(laneItem[T]).seq
		if seqB < seqA {
			return LaneB, true
		}
		return LaneA, true
	case a:
		return LaneA, true
	case b:
		return LaneB, true
	}

	return LaneA, false
}

// PeekOldest returns the oldest head across both lanes.
func (f *FanIn[T]) PeekOldest() (item T, ok bool) {
	lane, ok := f.OldestLane()
	if !ok {
		return item, false
	}

	return f.PeekLane(lane)
}

// DeliverOldest removes and returns the oldest head across both lanes.
func (f *FanIn[T]) DeliverOldest() T {
	lane, ok := f.OldestLane()
	if !ok {
		log.Panicf("fan-in %s: deliver while empty", f.name)
	}

	return f.DeliverLane(lane)
}
