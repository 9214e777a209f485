package pipeline

import "github.com/sarchlab/m2sim/insts"

// Stage identifies one of the five pipeline stages, and doubles as the
// index into a Latches array.
type Stage int

// The five pipeline stages, in forward data-flow order. Scheduler.Step
// processes them in the reverse of this order.
const (
	StageIF Stage = iota
	StageDEC
	StageEX
	StageMEM
	StageWB

	numStages
)

func (s Stage) String() string {
	switch s {
	case StageIF:
		return "IF"
	case StageDEC:
		return "DEC"
	case StageEX:
		return "EX"
	case StageMEM:
		return "MEM"
	case StageWB:
		return "WB"
	default:
		return "?"
	}
}

// InstructionRecord is a single in-flight instruction's state. It is
// produced at IF, carried through the pipeline by ownership transfer
// between latch slots, and destroyed at WB. This is the spec's chosen
// replacement for the source's four distinct per-boundary register
// structs: one record type, moved rather than copied, through a
// fixed-size array of slots.
type InstructionRecord struct {
	Word uint32
	Inst *insts.Instruction

	PC    uint32
	Stage Stage

	// Stalled marks a slot that must re-attempt its current stage's work
	// next cycle rather than advancing.
	Stalled bool

	IsBranch bool
	IsJump   bool

	// Datapath registers carried with the record as it crosses EX/MEM/WB.
	RA uint32 // rs1 value (possibly forwarded)
	RB uint32 // rs2 value or immediate (possibly forwarded)
	RM uint32 // store source value (possibly forwarded)
	RY uint32 // EX result (ALU result / effective address / branch target)
	RZ uint32 // MEM result (loaded value, or RY for non-memory ops)

	// PredictedTaken/PredictedTarget capture the prediction made at IF, so
	// EX can compare against the actual outcome without re-consulting a
	// predictor state that may have moved on.
	PredictedTaken  bool
	PredictedTarget uint32

	// Taken is the actual branch outcome, computed at EX.
	Taken bool
}

// Rd returns the record's destination register, or 0 if the instruction
// never writes one (register 0 is otherwise indistinguishable from "no
// destination", but WritesRegister disambiguates at the call site).
func (r *InstructionRecord) Rd() uint8 {
	if r.Inst == nil || !insts.WritesRegister(r.Inst.Op) {
		return 0
	}
	return r.Inst.Rd
}

// Latches holds exactly one InstructionRecord per stage; a nil entry is a
// bubble.
type Latches [numStages]*InstructionRecord
