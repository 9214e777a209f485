package asm

import (
	"fmt"
	"strings"

	"github.com/sarchlab/m2sim/insts"
)

const (
	opcodeOp     = 0b0110011
	opcodeOpImm  = 0b0010011
	opcodeLoad   = 0b0000011
	opcodeJALR   = 0b1100111
	opcodeStore  = 0b0100011
	opcodeBranch = 0b1100011
	opcodeLUI    = 0b0110111
	opcodeAUIPC  = 0b0010111
	opcodeJAL    = 0b1101111
)

// mnemonicToOp inverts insts.Mnemonic, giving the assembler a name-to-Op
// lookup instead of walking the whole enum on every line.
var mnemonicToOp = func() map[string]insts.Op {
	m := make(map[string]insts.Op)
	for _, op := range []insts.Op{
		insts.OpADD, insts.OpSUB, insts.OpMUL, insts.OpDIV, insts.OpREM,
		insts.OpAND, insts.OpOR, insts.OpXOR, insts.OpSLL, insts.OpSRL, insts.OpSRA, insts.OpSLT,
		insts.OpADDI, insts.OpANDI, insts.OpORI, insts.OpXORI,
		insts.OpSLTI, insts.OpSLTIU, insts.OpSLLI, insts.OpSRLI, insts.OpSRAI,
		insts.OpLB, insts.OpLH, insts.OpLW, insts.OpJALR,
		insts.OpSB, insts.OpSH, insts.OpSW,
		insts.OpBEQ, insts.OpBNE, insts.OpBLT, insts.OpBGE, insts.OpBLTU, insts.OpBGEU,
		insts.OpLUI, insts.OpAUIPC, insts.OpJAL,
	} {
		m[insts.Mnemonic(op)] = op
	}
	return m
}()

// rFields gives the funct3/funct7 pair that, together with opcodeOp,
// identifies an R-type mnemonic — the exact inverse of decoder.go's decodeR
// switch.
var rFields = map[insts.Op][2]uint32{
	insts.OpADD: {0x0, 0x00}, insts.OpSUB: {0x0, 0x20}, insts.OpMUL: {0x0, 0x01},
	insts.OpSLL: {0x1, 0x00},
	insts.OpSLT: {0x2, 0x00},
	insts.OpDIV: {0x4, 0x01}, insts.OpXOR: {0x4, 0x00},
	insts.OpSRL: {0x5, 0x00}, insts.OpSRA: {0x5, 0x20},
	insts.OpREM: {0x6, 0x01}, insts.OpOR: {0x6, 0x00},
	insts.OpAND: {0x7, 0x00},
}

// iAluFunct3 gives the funct3 for each I-type ALU mnemonic (opcodeOpImm).
var iAluFunct3 = map[insts.Op]uint32{
	insts.OpADDI: 0x0, insts.OpSLLI: 0x1, insts.OpSLTI: 0x2, insts.OpSLTIU: 0x3,
	insts.OpXORI: 0x4, insts.OpSRLI: 0x5, insts.OpSRAI: 0x5,
	insts.OpORI: 0x6, insts.OpANDI: 0x7,
}

var loadFunct3 = map[insts.Op]uint32{insts.OpLB: 0x0, insts.OpLH: 0x1, insts.OpLW: 0x2}
var storeFunct3 = map[insts.Op]uint32{insts.OpSB: 0x0, insts.OpSH: 0x1, insts.OpSW: 0x2}
var branchFunct3 = map[insts.Op]uint32{
	insts.OpBEQ: 0x0, insts.OpBNE: 0x1, insts.OpBLT: 0x4,
	insts.OpBGE: 0x5, insts.OpBLTU: 0x6, insts.OpBGEU: 0x7,
}

// encodeInstruction encodes one already-tokenized line at addr into a 32-bit
// word, resolving any symbol operand against symbols. It also returns a
// disassembly string for Memory.SetText's trace slot.
func encodeInstruction(sl sourceLine, addr uint32, symbols map[string]uint32) (uint32, string, error) {
	op, ok := mnemonicToOp[sl.op]
	if !ok {
		return 0, "", fmt.Errorf("unknown mnemonic %q", sl.op)
	}
	disasm := disassemble(sl)

	if fields, isR := rFields[op]; isR {
		rd, rs1, rs2, err := decodeRRR(sl)
		if err != nil {
			return 0, "", err
		}
		word := fields[1]<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | fields[0]<<12 | uint32(rd)<<7 | opcodeOp
		return word, disasm, nil
	}

	if op == insts.OpSLLI || op == insts.OpSRLI || op == insts.OpSRAI {
		rd, rs1, shamt, err := decodeShift(sl, symbols)
		if err != nil {
			return 0, "", err
		}
		funct7 := uint32(0x00)
		if op == insts.OpSRAI {
			funct7 = 0x20
		}
		imm12 := funct7<<5 | (shamt & 0x1F)
		word := imm12<<20 | uint32(rs1)<<15 | iAluFunct3[op]<<12 | uint32(rd)<<7 | opcodeOpImm
		return word, disasm, nil
	}

	if funct3, isIAlu := iAluFunct3[op]; isIAlu {
		rd, rs1, imm, err := decodeRRI(sl, symbols)
		if err != nil {
			return 0, "", err
		}
		imm12 := uint32(imm) & 0xFFF
		word := imm12<<20 | uint32(rs1)<<15 | funct3<<12 | uint32(rd)<<7 | opcodeOpImm
		return word, disasm, nil
	}

	if funct3, isLoad := loadFunct3[op]; isLoad {
		rd, rs1, imm, err := decodeMemOperand(sl, symbols)
		if err != nil {
			return 0, "", err
		}
		imm12 := uint32(imm) & 0xFFF
		word := imm12<<20 | uint32(rs1)<<15 | funct3<<12 | uint32(rd)<<7 | opcodeLoad
		return word, disasm, nil
	}

	if op == insts.OpJALR {
		rd, rs1, imm, err := decodeMemOperand(sl, symbols)
		if err != nil {
			return 0, "", err
		}
		imm12 := uint32(imm) & 0xFFF
		word := imm12<<20 | uint32(rs1)<<15 | 0<<12 | uint32(rd)<<7 | opcodeJALR
		return word, disasm, nil
	}

	if funct3, isStore := storeFunct3[op]; isStore {
		rs2, rs1, imm, err := decodeStoreOperand(sl, symbols)
		if err != nil {
			return 0, "", err
		}
		imm12 := uint32(imm) & 0xFFF
		hi := (imm12 >> 5) & 0x7F
		lo := imm12 & 0x1F
		word := hi<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | funct3<<12 | lo<<7 | opcodeStore
		return word, disasm, nil
	}

	if funct3, isBranch := branchFunct3[op]; isBranch {
		rs1, rs2, target, err := decodeBranchOperand(sl, symbols)
		if err != nil {
			return 0, "", err
		}
		imm := int32(target) - int32(addr)
		u := uint32(imm)
		bit12 := (u >> 12) & 0x1
		bit11 := (u >> 11) & 0x1
		bits10to5 := (u >> 5) & 0x3F
		bits4to1 := (u >> 1) & 0xF
		word := bit12<<31 | bits10to5<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 |
			funct3<<12 | bits4to1<<8 | bit11<<7 | opcodeBranch
		return word, disasm, nil
	}

	if op == insts.OpLUI || op == insts.OpAUIPC {
		rd, imm, err := decodeRI(sl)
		if err != nil {
			return 0, "", err
		}
		opcode := uint32(opcodeLUI)
		if op == insts.OpAUIPC {
			opcode = opcodeAUIPC
		}
		word := (uint32(imm)<<12)&0xFFFFF000 | uint32(rd)<<7 | opcode
		return word, disasm, nil
	}

	if op == insts.OpJAL {
		rd, target, err := decodeJumpOperand(sl, symbols)
		if err != nil {
			return 0, "", err
		}
		imm := int32(target) - int32(addr)
		u := uint32(imm)
		bit20 := (u >> 20) & 0x1
		bits19to12 := (u >> 12) & 0xFF
		bit11 := (u >> 11) & 0x1
		bits10to1 := (u >> 1) & 0x3FF
		word := bit20<<31 | bits10to1<<21 | bit11<<20 | bits19to12<<12 | uint32(rd)<<7 | opcodeJAL
		return word, disasm, nil
	}

	return 0, "", fmt.Errorf("unhandled mnemonic %q", sl.op)
}

func disassemble(sl sourceLine) string {
	parts := make([]string, len(sl.args))
	for i, a := range sl.args {
		parts[i] = a.text
	}
	return sl.op + " " + strings.Join(parts, ", ")
}

func decodeRRR(sl sourceLine) (rd, rs1, rs2 uint8, err error) {
	if len(sl.args) != 3 {
		return 0, 0, 0, fmt.Errorf("%s: expected 3 registers", sl.op)
	}
	if rd, err = parseRegister(sl.args[0]); err != nil {
		return
	}
	if rs1, err = parseRegister(sl.args[1]); err != nil {
		return
	}
	rs2, err = parseRegister(sl.args[2])
	return
}

func decodeRRI(sl sourceLine, symbols map[string]uint32) (rd, rs1 uint8, imm int32, err error) {
	if len(sl.args) != 3 {
		return 0, 0, 0, fmt.Errorf("%s: expected rd, rs1, imm", sl.op)
	}
	if rd, err = parseRegister(sl.args[0]); err != nil {
		return
	}
	if rs1, err = parseRegister(sl.args[1]); err != nil {
		return
	}
	imm, err = resolveImmediate(sl.args[2], symbols)
	return
}

func decodeShift(sl sourceLine, symbols map[string]uint32) (rd, rs1 uint8, shamt uint32, err error) {
	rd, rs1, imm, err := decodeRRI(sl, symbols)
	shamt = uint32(imm) & 0x1F
	return
}

func decodeRI(sl sourceLine) (rd uint8, imm int32, err error) {
	if len(sl.args) != 2 {
		return 0, 0, fmt.Errorf("%s: expected rd, imm", sl.op)
	}
	if rd, err = parseRegister(sl.args[0]); err != nil {
		return
	}
	if sl.args[1].kind != tokImmediate {
		return 0, 0, fmt.Errorf("%s: expected an immediate, got %q", sl.op, sl.args[1].text)
	}
	imm, err = parseImmediate(sl.args[1].text)
	return
}

// decodeMemOperand parses "rd, imm(rs1)" — lexed as rd, IMMEDIATE, REGISTER —
// the load and JALR operand shape.
func decodeMemOperand(sl sourceLine, symbols map[string]uint32) (rd, rs1 uint8, imm int32, err error) {
	if len(sl.args) != 3 {
		return 0, 0, 0, fmt.Errorf("%s: expected rd, offset(rs1)", sl.op)
	}
	if rd, err = parseRegister(sl.args[0]); err != nil {
		return
	}
	if imm, err = resolveImmediate(sl.args[1], symbols); err != nil {
		return
	}
	rs1, err = parseRegister(sl.args[2])
	return
}

// decodeStoreOperand parses "rs2, imm(rs1)" — the store operand shape.
func decodeStoreOperand(sl sourceLine, symbols map[string]uint32) (rs2, rs1 uint8, imm int32, err error) {
	return decodeMemOperand(sl, symbols)
}

func decodeBranchOperand(sl sourceLine, symbols map[string]uint32) (rs1, rs2 uint8, target uint32, err error) {
	if len(sl.args) != 3 {
		return 0, 0, 0, fmt.Errorf("%s: expected rs1, rs2, target", sl.op)
	}
	if rs1, err = parseRegister(sl.args[0]); err != nil {
		return
	}
	if rs2, err = parseRegister(sl.args[1]); err != nil {
		return
	}
	target, err = resolveTarget(sl.args[2], symbols)
	return
}

func decodeJumpOperand(sl sourceLine, symbols map[string]uint32) (rd uint8, target uint32, err error) {
	if len(sl.args) != 2 {
		return 0, 0, fmt.Errorf("%s: expected rd, target", sl.op)
	}
	if rd, err = parseRegister(sl.args[0]); err != nil {
		return
	}
	target, err = resolveTarget(sl.args[1], symbols)
	return
}

// resolveImmediate accepts either a literal immediate or a symbol, so an
// I-type instruction can carry a data-segment label instead of a raw offset.
func resolveImmediate(tok token, symbols map[string]uint32) (int32, error) {
	switch tok.kind {
	case tokImmediate:
		return parseImmediate(tok.text)
	case tokSymbol:
		addr, ok := symbols[tok.text]
		if !ok {
			return 0, fmt.Errorf("undefined symbol %q", tok.text)
		}
		return int32(addr), nil
	default:
		return 0, fmt.Errorf("expected an immediate or symbol, got %q", tok.text)
	}
}

// resolveTarget resolves a branch/jump operand to an absolute target
// address. The operand is usually a symbol; a raw immediate is also
// accepted and is taken as the absolute target address, not as an offset
// from the branch.
func resolveTarget(tok token, symbols map[string]uint32) (uint32, error) {
	switch tok.kind {
	case tokSymbol:
		addr, ok := symbols[tok.text]
		if !ok {
			return 0, fmt.Errorf("undefined symbol %q", tok.text)
		}
		return addr, nil
	case tokImmediate:
		v, err := parseImmediate(tok.text)
		if err != nil {
			return 0, err
		}
		return uint32(v), nil
	default:
		return 0, fmt.Errorf("expected a label or immediate, got %q", tok.text)
	}
}
