// Package trace records what a core does, one record per commit, redirect
// or flush, and stores the records in a CSV file or a SQLite database.
package trace

import (
	"fmt"
	"strings"

	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/coresim/timing/backend"
	"github.com/sarchlab/coresim/timing/core"
	"github.com/sarchlab/coresim/timing/stage"
)

// Kind classifies a record.
type Kind string

// Record kinds.
const (
	KindCommit   Kind = "commit"
	KindTrap     Kind = "trap"
	KindRedirect Kind = "redirect"
	KindFlush    Kind = "flush"
)

// Record is one traced event.
type Record struct {
	ID     string
	Cycle  uint64
	Kind   Kind
	Where  string
	PC     uint64
	Instr  uint32
	Detail string
}

// A Writer stores records.
type Writer interface {
	Init() error
	Write(r Record) error
	Flush() error
}

// TimeTeller tells the current cycle.
type TimeTeller interface {
	Now() uint64
}

type named interface {
	Name() string
}

// Tracer is a hook that turns the commits, redirects and flushes of a core
// into records.
type Tracer struct {
	clock  TimeTeller
	writer Writer

	records uint64
	err     error
}

// NewTracer creates a tracer that stamps records with the time of clock.
func NewTracer(clock TimeTeller, writer Writer) *Tracer {
	return &Tracer{clock: clock, writer: writer}
}

// Records returns the number of records written.
func (t *Tracer) Records() uint64 {
	return t.records
}

// Err returns the first write error. Records after it are dropped.
func (t *Tracer) Err() error {
	return t.err
}

// Func implements sim.Hook.
func (t *Tracer) Func(ctx sim.HookCtx) {
	if t.err != nil {
		return
	}

	r, ok := t.record(ctx)
	if !ok {
		return
	}

	r.ID = xid.New().String()
	r.Cycle = t.clock.Now()

	if d, ok := ctx.Domain.(named); ok {
		r.Where = d.Name()
	}

	if err := t.writer.Write(r); err != nil {
		t.err = err
		return
	}

	t.records++
}

func (t *Tracer) record(ctx sim.HookCtx) (Record, bool) {
	switch ctx.Pos {
	case backend.HookPosCommit:
		return commitRecord(ctx.Item.(backend.Commit)), true
	case core.HookPosRedirect:
		r := ctx.Item.(backend.Redirect)

		return Record{
			Kind:   KindRedirect,
			PC:     r.PC,
			Detail: fmt.Sprintf("%s -> 0x%x", r.Reason, r.Target),
		}, true
	case stage.HookPosFlush:
		ids := ctx.Item.([]stage.LineID)
		names := make([]string, 0, len(ids))

		for _, id := range ids {
			names = append(names, id.String())
		}

		return Record{Kind: KindFlush, Detail: strings.Join(names, " ")}, true
	}

	return Record{}, false
}

func commitRecord(c backend.Commit) Record {
	r := Record{Kind: KindCommit, PC: c.PC, Instr: c.Instr}

	switch {
	case c.Trapped:
		r.Kind = KindTrap
		r.Detail = fmt.Sprintf("cause %d", c.Cause)
	case c.Store:
		r.Detail = fmt.Sprintf("mem[0x%x]/%d = 0x%x", c.StoreAddr, c.StoreSize, c.StoreData)
	case c.WroteReg:
		r.Detail = fmt.Sprintf("x%d = 0x%x", c.Rd, c.Value)
	}

	return r
}
