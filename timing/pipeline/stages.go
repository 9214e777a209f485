package pipeline

import (
	"fmt"

	"github.com/sarchlab/m2sim/emu"
	"github.com/sarchlab/m2sim/insts"
)

// sourceOperands returns the registers a consumer reads for forwarding
// purposes: rs1 (RA's producer, if any), rs2ForRB (RB's producer, for
// register-register ALU ops and branch compares), and rs2ForRM (RM's
// producer, for S-type store values). A zero means "no register operand
// there".
func sourceOperands(inst *insts.Instruction) (rs1, rs2ForRB, rs2ForRM uint8) {
	if inst == nil {
		return 0, 0, 0
	}
	switch inst.Format {
	case insts.FormatR, insts.FormatSB:
		return inst.Rs1, inst.Rs2, 0
	case insts.FormatI:
		return inst.Rs1, 0, 0
	case insts.FormatS:
		return inst.Rs1, 0, inst.Rs2
	default:
		return 0, 0, 0
	}
}

// FetchStage reads the instruction at the current PC from the text image.
type FetchStage struct {
	memory *emu.Memory
}

// NewFetchStage creates a new fetch stage.
func NewFetchStage(memory *emu.Memory) *FetchStage {
	return &FetchStage{memory: memory}
}

// Fetch returns the word and disassembly at pc, and false if pc is not
// mapped in the text image (the fetch-termination signal).
func (s *FetchStage) Fetch(pc uint32) (uint32, string, bool) {
	entry, ok := s.memory.FetchText(pc)
	if !ok {
		return 0, "", false
	}
	return entry.Word, entry.Disassembly, true
}

// DecodeStage classifies the fetched word and reads its register operands.
type DecodeStage struct {
	regFile *emu.RegFile
	decoder *insts.Decoder
}

// NewDecodeStage creates a new decode stage.
func NewDecodeStage(regFile *emu.RegFile) *DecodeStage {
	return &DecodeStage{regFile: regFile, decoder: insts.NewDecoder()}
}

// Decode decodes rec.Word and populates rec.Inst, rec.IsBranch, rec.IsJump,
// and the RA/RB/RM register-read results.
func (s *DecodeStage) Decode(rec *InstructionRecord) {
	inst := s.decoder.Decode(rec.Word)
	rec.Inst = inst
	rec.IsBranch = insts.IsBranch(inst.Op)
	rec.IsJump = insts.IsJump(inst.Op)

	rs1, rs2ForRB, rs2ForRM := sourceOperands(inst)
	if rs1 != 0 {
		rec.RA = s.regFile.ReadReg(rs1)
	}
	if rs2ForRB != 0 {
		rec.RB = s.regFile.ReadReg(rs2ForRB)
	}
	if rs2ForRM != 0 {
		rec.RM = s.regFile.ReadReg(rs2ForRM)
	}
}

// ExecuteStage performs the per-opcode ALU, address computation, and
// branch resolution.
type ExecuteStage struct {
	alu    *emu.ALU
	branch *emu.BranchUnit
}

// NewExecuteStage creates a new execute stage.
func NewExecuteStage() *ExecuteStage {
	return &ExecuteStage{alu: emu.NewALU(), branch: emu.NewBranchUnit()}
}

// Execute computes rec.RY (and rec.Taken) using ra/rb/rm as the (possibly
// forwarded) operand values, and reports the redirected PC when the
// instruction changes control flow.
func (s *ExecuteStage) Execute(rec *InstructionRecord, ra, rb, rm uint32) (newPC uint32, redirected bool) {
	inst := rec.Inst
	imm := uint32(inst.Imm)

	switch inst.Op {
	case insts.OpADD:
		rec.RY = s.alu.ADD(ra, rb)
	case insts.OpSUB:
		rec.RY = s.alu.SUB(ra, rb)
	case insts.OpMUL:
		rec.RY = s.alu.MUL(ra, rb)
	case insts.OpDIV:
		rec.RY = s.alu.DIV(ra, rb)
	case insts.OpREM:
		rec.RY = s.alu.REM(ra, rb)
	case insts.OpAND:
		rec.RY = s.alu.AND(ra, rb)
	case insts.OpOR:
		rec.RY = s.alu.OR(ra, rb)
	case insts.OpXOR:
		rec.RY = s.alu.XOR(ra, rb)
	case insts.OpSLL:
		rec.RY = s.alu.SLL(ra, rb)
	case insts.OpSRL:
		rec.RY = s.alu.SRL(ra, rb)
	case insts.OpSRA:
		rec.RY = s.alu.SRA(ra, rb)
	case insts.OpSLT:
		rec.RY = s.alu.SLT(ra, rb)

	case insts.OpADDI:
		rec.RY = s.alu.ADD(ra, imm)
	case insts.OpANDI:
		rec.RY = s.alu.AND(ra, imm)
	case insts.OpORI:
		rec.RY = s.alu.OR(ra, imm)
	case insts.OpXORI:
		rec.RY = s.alu.XOR(ra, imm)
	case insts.OpSLTI:
		rec.RY = s.alu.SLT(ra, imm)
	case insts.OpSLTIU:
		rec.RY = s.alu.SLTU(ra, imm)
	case insts.OpSLLI:
		rec.RY = s.alu.SLL(ra, imm)
	case insts.OpSRLI:
		rec.RY = s.alu.SRL(ra, imm)
	case insts.OpSRAI:
		rec.RY = s.alu.SRA(ra, imm)

	case insts.OpLB, insts.OpLH, insts.OpLW:
		rec.RY = s.alu.ADD(ra, imm)

	case insts.OpJALR:
		rec.RY = rec.PC + emu.InstructionWidth
		target := s.alu.ADD(ra, imm) &^ 1
		return target, true

	case insts.OpSB, insts.OpSH, insts.OpSW:
		rec.RY = s.alu.ADD(ra, imm)
		rec.RM = rm

	case insts.OpBEQ, insts.OpBNE, insts.OpBLT, insts.OpBGE, insts.OpBLTU, insts.OpBGEU:
		rec.Taken = s.branch.Taken(inst.Op, ra, rb)
		if rec.Taken {
			return uint32(int32(rec.PC) + inst.Imm), true
		}

	case insts.OpLUI:
		rec.RY = imm

	case insts.OpAUIPC:
		rec.RY = rec.PC + imm

	case insts.OpJAL:
		rec.RY = rec.PC + emu.InstructionWidth
		return uint32(int32(rec.PC) + inst.Imm), true
	}

	return 0, false
}

// MemoryStage performs the actual load/store against the data image.
type MemoryStage struct {
	lsu *emu.LoadStoreUnit
}

// NewMemoryStage creates a new memory stage.
func NewMemoryStage(memory *emu.Memory) *MemoryStage {
	return &MemoryStage{lsu: emu.NewLoadStoreUnit(memory)}
}

// Access performs rec's memory operation, if any, setting rec.RZ. For
// non-memory instructions RZ mirrors RY. Returns an error on an
// out-of-range access.
func (s *MemoryStage) Access(rec *InstructionRecord) error {
	inst := rec.Inst
	switch {
	case insts.IsLoad(inst.Op):
		v, err := s.lsu.Load(inst.Op, rec.RY)
		if err != nil {
			return fmt.Errorf("memory stage: %w", err)
		}
		rec.RZ = v
	case insts.IsStore(inst.Op):
		if err := s.lsu.Store(inst.Op, rec.RY, rec.RM); err != nil {
			return fmt.Errorf("memory stage: %w", err)
		}
		rec.RZ = rec.RY
	default:
		rec.RZ = rec.RY
	}
	return nil
}

// WritebackStage commits RZ to the register file.
type WritebackStage struct {
	regFile *emu.RegFile
}

// NewWritebackStage creates a new writeback stage.
func NewWritebackStage(regFile *emu.RegFile) *WritebackStage {
	return &WritebackStage{regFile: regFile}
}

// Writeback commits rec's result to the register file, for formats that
// define a destination register. S-type and SB-type never write; neither
// does a destination of x0.
func (s *WritebackStage) Writeback(rec *InstructionRecord) {
	if !insts.WritesRegister(rec.Inst.Op) {
		return
	}
	if rec.Inst.Rd == 0 {
		return
	}
	s.regFile.WriteReg(rec.Inst.Rd, rec.RZ)
}
