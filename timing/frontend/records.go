// Package frontend provides the instruction supply of the core: Fetch, the
// instruction buffer and Decode, chained by stage connectors.
package frontend

import (
	"github.com/sarchlab/coresim/insts"
	"github.com/sarchlab/coresim/timing/bus"
)

// CtrlFlow is one fetched instruction slot.
type CtrlFlow struct {
	PC    uint64
	Instr uint32

	// PNPC is the predicted address of the next instruction.
	PNPC uint64
	Pred Prediction

	// Fault is set if the fetch failed. Instr is then meaningless.
	Fault bus.Fault

	// Epoch counts the redirects Fetch had seen when it fetched the slot.
	Epoch uint64
}

// DecodedInst is a decoded instruction together with the slot it came from.
type DecodedInst struct {
	CtrlFlow
	Inst *insts.Instruction
}

// FetchPacket holds the slots of one 8-byte fetch block.
type FetchPacket struct {
	Flows []CtrlFlow
}

// BranchUpdate is the resolved outcome of a control-flow instruction.
type BranchUpdate struct {
	PC     uint64
	Taken  bool
	Target uint64
}
