package pipeline

import (
	"fmt"

	"github.com/sarchlab/m2sim/emu"
	"github.com/sarchlab/m2sim/insts"
)

// Log severity codes, following the convention used across the codebase's
// stdlib-based logging: informational progress, per-cycle trace detail,
// recoverable warnings, and fatal errors.
const (
	logInfo    = 200
	logTrace   = 300
	logWarning = 400
	logError   = 404
)

// Statistics accumulates the counters a run reports at the end.
type Statistics struct {
	TotalCycles          uint64
	InstructionsExecuted uint64
	StallBubbles         uint64
	DataHazards          uint64
	ControlHazards       uint64
	DataHazardStalls     uint64
	ControlHazardStalls  uint64
	PipelineFlushes      uint64

	DataTransferInstructions uint64
	ALUInstructions          uint64
	ControlInstructions      uint64
}

// CPI returns cycles per instruction, or 0 if nothing has retired yet.
func (s Statistics) CPI() float64 {
	if s.InstructionsExecuted == 0 {
		return 0
	}
	return float64(s.TotalCycles) / float64(s.InstructionsExecuted)
}

// SchedulerOption configures a Scheduler at construction time.
type SchedulerOption func(*Scheduler)

// WithPipelining toggles overlap between in-flight instructions. Disabling
// it forces every instruction to fully drain to WB before the next is
// fetched. Must be set before Run/Step is first called; toggling mid-run
// is not supported.
func WithPipelining(enabled bool) SchedulerOption {
	return func(s *Scheduler) { s.pipelined = enabled }
}

// WithForwarding toggles the EX/MEM and MEM/WB forwarding paths. When
// disabled, any register dependency still in flight forces a stall until
// the producer reaches WB.
func WithForwarding(enabled bool) SchedulerOption {
	return func(s *Scheduler) { s.forwarding = enabled }
}

// WithBranchPredictorConfig overrides the default PHT/BTB sizing.
func WithBranchPredictorConfig(config BranchPredictorConfig) SchedulerOption {
	return func(s *Scheduler) { s.predictor = NewBranchPredictor(config) }
}

// WithTrace enables a per-cycle trace log line.
func WithTrace(enabled bool) SchedulerOption {
	return func(s *Scheduler) { s.trace = enabled }
}

// Scheduler drives the five pipeline stages one cycle at a time, in
// reverse data-flow order (WB, MEM, EX, DEC, IF), so that a stage never
// reads a downstream slot before it has advanced this cycle.
type Scheduler struct {
	latches Latches

	fetch     *FetchStage
	decode    *DecodeStage
	execute   *ExecuteStage
	memory    *MemoryStage
	writeback *WritebackStage

	hazard    *HazardUnit
	predictor *BranchPredictor
	deps      *DependencyTracker

	regFile *emu.RegFile
	mem     *emu.Memory

	pc         uint32
	pipelined  bool
	forwarding bool
	trace      bool

	halted   bool
	haltedBy string

	stats Statistics
	logs  []string
}

// NewScheduler creates a Scheduler over regFile and memory. Pipelining and
// forwarding both default to enabled.
func NewScheduler(regFile *emu.RegFile, memory *emu.Memory, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		fetch:      NewFetchStage(memory),
		decode:     NewDecodeStage(regFile),
		execute:    NewExecuteStage(),
		memory:     NewMemoryStage(memory),
		writeback:  NewWritebackStage(regFile),
		hazard:     NewHazardUnit(),
		predictor:  NewBranchPredictor(DefaultBranchPredictorConfig()),
		deps:       NewDependencyTracker(),
		regFile:    regFile,
		mem:        memory,
		pc:         emu.TextSegmentBase,
		pipelined:  true,
		forwarding: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PC returns the current program counter.
func (s *Scheduler) PC() uint32 { return s.pc }

// SetPC sets the program counter, for use before the first Step.
func (s *Scheduler) SetPC(pc uint32) { s.pc = pc }

// Halted reports whether the run has ended (fetch past the end of the text
// image, a memory access error, or a decode failure).
func (s *Scheduler) Halted() bool { return s.halted }

// HaltReason describes why the run stopped, once Halted is true.
func (s *Scheduler) HaltReason() string { return s.haltedBy }

// Stats returns a copy of the run's statistics so far.
func (s *Scheduler) Stats() Statistics { return s.stats }

// Registers returns a snapshot of the register file.
func (s *Scheduler) Registers() [32]uint32 { return s.regFile.Snapshot() }

// DataImage returns a snapshot of the data segment's written bytes.
func (s *Scheduler) DataImage() map[uint32]uint8 { return s.mem.DataImage() }

// TextImage returns the loaded program's text image.
func (s *Scheduler) TextImage() map[uint32]emu.TextEntry { return s.mem.TextImage() }

// Logs returns and clears the accumulated log lines.
func (s *Scheduler) Logs() []string {
	out := s.logs
	s.logs = nil
	return out
}

func (s *Scheduler) logf(code int, format string, args ...any) {
	s.logs = append(s.logs, fmt.Sprintf("[%d] "+format, append([]any{code}, args...)...))
}

// Run steps the scheduler until it halts or maxCycles is reached (0 means
// unbounded).
func (s *Scheduler) Run(maxCycles uint64) {
	for !s.halted {
		if maxCycles > 0 && s.stats.TotalCycles >= maxCycles {
			s.logf(logWarning, "run stopped after reaching max cycles %d", maxCycles)
			return
		}
		s.Step()
	}
}

func (s *Scheduler) countCategory(op insts.Op) {
	switch {
	case insts.IsLoad(op) || insts.IsStore(op):
		s.stats.DataTransferInstructions++
	case insts.IsBranch(op) || insts.IsJump(op):
		s.stats.ControlInstructions++
	default:
		s.stats.ALUInstructions++
	}
}

// Step advances the pipeline by one cycle. It returns false once the
// simulation has halted.
//
// A cycle that would do no work at all — every latch empty and nothing
// left to fetch — isn't counted: Run would otherwise need one extra,
// wholly wasted Step call just to notice the program is over.
func (s *Scheduler) Step() bool {
	if s.halted {
		return false
	}
	if s.latches == (Latches{}) {
		if s.haltedBy != "" {
			s.halted = true
			return false
		}
		if _, _, ok := s.fetch.Fetch(s.pc); !ok {
			s.halted = true
			s.haltedBy = "end of program"
			return false
		}
	}
	s.stats.TotalCycles++

	// Snapshot dependencies as they stood at the end of the previous
	// cycle, so this cycle's forwarding reads never see a write this same
	// cycle produces.
	snapshot := s.deps.Snapshot()

	if s.trace {
		s.logf(logTrace, "cycle %d pc=%#x", s.stats.TotalCycles, s.pc)
	}

	// wbWasOccupied records whether an instruction is retiring this very
	// cycle, before the WB block below empties the latch. Non-pipelined
	// mode uses it to keep a retiring instruction and the next fetch in
	// separate cycles, even though nothing would technically conflict if
	// they shared one.
	wbWasOccupied := s.latches[StageWB] != nil

	// --- WB: retire the instruction in the WB latch. ---
	if wb := s.latches[StageWB]; wb != nil {
		s.writeback.Writeback(wb)
		s.deps.Remove(wb.PC)
		s.stats.InstructionsExecuted++
	}

	// --- MEM: perform the actual load/store for the record in MEM. ---
	var nextWB *InstructionRecord
	if mem := s.latches[StageMEM]; mem != nil {
		if err := s.memory.Access(mem); err != nil {
			s.logf(logError, "%s at pc=%#x", err, mem.PC)
			s.halted = true
			s.haltedBy = "memory error"
			return false
		}
		s.deps.UpdateStage(mem.PC, StageMEM, mem.RZ)
		mem.Stage = StageWB
		nextWB = mem
	}

	// --- EX: resolve operands (with forwarding), execute, resolve
	// branches/jumps against their IF-time prediction. ---
	var nextMEM *InstructionRecord
	stallFront := false
	flush := false
	var redirectPC uint32

	if ex := s.latches[StageEX]; ex != nil {
		rs1, rs2ForRB, rs2ForRM := sourceOperands(ex.Inst)

		if s.forwarding {
			if s.hazard.DetectLoadUseHazard(rs1, rs2ForRB, rs2ForRM, snapshot) {
				stallFront = true
				ex.Stalled = true
				s.stats.DataHazardStalls++
				s.stats.StallBubbles++
			}
		} else if s.hazard.HasForwardingOffHazard(rs1, rs2ForRB, rs2ForRM, s.deps.entries) {
			// The live table, not the snapshot: a producer retiring in WB
			// this cycle has already been removed and written back, so the
			// consumer waits only until its producer reaches WB.
			stallFront = true
			ex.Stalled = true
			s.stats.DataHazards++
			s.stats.DataHazardStalls++
			s.stats.StallBubbles++
		}

		if !stallFront {
			// A record that spent one or more cycles stalled in this latch
			// was snapshotted at DEC time, before its producer wrote back.
			// Re-read its operands now that the stall has cleared, rather
			// than executing on the stale values it decoded with.
			if ex.Stalled {
				if rs1 != 0 {
					ex.RA = s.regFile.ReadReg(rs1)
				}
				if rs2ForRB != 0 {
					ex.RB = s.regFile.ReadReg(rs2ForRB)
				}
				if rs2ForRM != 0 {
					ex.RM = s.regFile.ReadReg(rs2ForRM)
				}
				ex.Stalled = false
			}

			ra, rb, rm := ex.RA, ex.RB, ex.RM
			if s.forwarding {
				fwd := s.hazard.DetectForwarding(rs1, rs2ForRB, rs2ForRM, snapshot)
				if fwd.ForwardRA != ForwardNone || fwd.ForwardRB != ForwardNone || fwd.ForwardRM != ForwardNone {
					s.stats.DataHazards++
				}
				ra = s.hazard.GetForwardedValue(fwd.ForwardRA, rs1, ra, snapshot)
				rb = s.hazard.GetForwardedValue(fwd.ForwardRB, rs2ForRB, rb, snapshot)
				rm = s.hazard.GetForwardedValue(fwd.ForwardRM, rs2ForRM, rm, snapshot)
			}

			target, redirected := s.execute.Execute(ex, ra, rb, rm)
			s.deps.UpdateStage(ex.PC, StageEX, ex.RY)

			if ex.IsBranch || ex.IsJump {
				actualTaken := redirected
				actualTarget := target
				if !actualTaken {
					actualTarget = ex.PC + emu.InstructionWidth
				}

				mispredicted := actualTaken != ex.PredictedTaken ||
					(actualTaken && actualTarget != ex.PredictedTarget)

				if ex.IsBranch || ex.IsJump {
					s.predictor.Update(ex.PC, actualTaken, actualTarget)
					s.predictor.RecordOutcome(!mispredicted)
				}

				if mispredicted {
					flush = true
					redirectPC = actualTarget
					s.stats.ControlHazards++
					s.stats.ControlHazardStalls += 2
					s.stats.StallBubbles += 2
					s.stats.PipelineFlushes++
				}
			}

			ex.Stage = StageMEM
			nextMEM = ex
		}
	}

	// --- DEC: decode the word fetched last cycle, read its operands, and
	// register the destination dependency. ---
	var nextEX *InstructionRecord
	if stallFront {
		nextEX = s.latches[StageEX]
	} else if dec := s.latches[StageDEC]; dec != nil && !flush {
		s.decode.Decode(dec)
		if dec.Inst.Op == insts.OpUnknown {
			// The bad word goes no further and nothing after it is fetched;
			// the older records already past DEC drain and retire, and the
			// next Step that finds every latch empty reports the halt.
			s.logf(logWarning, "unknown opcode %#08x at pc=%#x", dec.Word, dec.PC)
			s.haltedBy = "decode failure"
		} else {
			if insts.WritesRegister(dec.Inst.Op) && dec.Inst.Rd != 0 {
				s.deps.Insert(dec.Inst.Rd, dec.PC, dec.Inst.Op)
			}
			s.countCategory(dec.Inst.Op)
			dec.Stage = StageEX
			nextEX = dec
		}
	}

	// postDrained reports whether, after this cycle's shifts, every stage
	// from DEC on is empty. Combined with wbWasOccupied, this is how
	// non-pipelined mode learns "the previous instruction is fully gone"
	// without costing an extra cycle to notice.
	postDrained := nextWB == nil && nextMEM == nil && nextEX == nil

	// --- IF: fetch the word at the current PC and predict its branch
	// outcome. The fetched record becomes next cycle's DEC input
	// directly — there's no separate cycle spent merely holding it in IF.
	var nextDEC *InstructionRecord
	if flush {
		s.pc = redirectPC
	} else if stallFront {
		nextDEC = s.latches[StageDEC]
	} else if s.haltedBy == "" && (s.pipelined || (postDrained && !wbWasOccupied)) {
		word, disasm, ok := s.fetch.Fetch(s.pc)
		if ok {
			if s.trace {
				s.logf(logTrace, "fetch pc=%#x %s", s.pc, disasm)
			}
			var pred Prediction
			if insts.IsBranchOrJumpWord(word) {
				pred = s.predictor.Predict(s.pc)
			}
			nextDEC = &InstructionRecord{
				Word:  word,
				PC:    s.pc,
				Stage: StageDEC,
				// PredictedTaken records IF's actual fetch decision, not
				// the raw PHT bit: a taken prediction with no BTB target
				// still falls through to PC+4, so EX must compare against
				// that, not against the counter alone.
				PredictedTaken:  pred.Taken && pred.TargetKnown,
				PredictedTarget: pred.Target,
			}
			if pred.Taken && pred.TargetKnown {
				s.pc = pred.Target
			} else {
				s.pc += emu.InstructionWidth
			}
		}
	}

	s.latches[StageWB] = nextWB
	s.latches[StageMEM] = nextMEM
	s.latches[StageEX] = nextEX
	s.latches[StageDEC] = nextDEC
	s.latches[StageIF] = nil

	return true
}
