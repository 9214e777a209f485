// Package insts provides RV32I/M instruction definitions and decoding.
//
// This package implements decoding of the RV32I/M subset into a structured
// instruction representation shared by the emulator and the timing
// pipeline. It supports:
//   - R-type: ADD, SUB, MUL, DIV, REM, AND, OR, XOR, SLL, SRL, SRA, SLT
//   - I-type: ADDI, ANDI, ORI, XORI, SLTI, SLTIU, SLLI, SRLI, SRAI, LB, LH, LW, JALR
//   - S-type: SB, SH, SW
//   - SB-type: BEQ, BNE, BLT, BGE, BLTU, BGEU
//   - U-type: LUI, AUIPC
//   - UJ-type: JAL
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0x00A00293) // addi x5, x0, 10
//	fmt.Printf("Op: %s, Rd: %d, Imm: %d\n", insts.Mnemonic(inst.Op), inst.Rd, inst.Imm)
package insts

// Format represents an instruction encoding format.
type Format uint8

// RV32 instruction formats.
const (
	FormatUnknown Format = iota
	FormatR              // Register-register
	FormatI              // Immediate arithmetic / loads / JALR
	FormatS              // Stores
	FormatSB             // Conditional branches
	FormatU              // LUI / AUIPC
	FormatUJ             // JAL
)

// Op identifies a decoded mnemonic.
type Op uint16

// Opcodes covering the RV32I/M subset this simulator implements.
const (
	OpUnknown Op = iota

	// R-type.
	OpADD
	OpSUB
	OpMUL
	OpDIV
	OpREM
	OpAND
	OpOR
	OpXOR
	OpSLL
	OpSRL
	OpSRA
	OpSLT

	// I-type ALU.
	OpADDI
	OpANDI
	OpORI
	OpXORI
	OpSLTI
	OpSLTIU
	OpSLLI
	OpSRLI
	OpSRAI

	// I-type loads.
	OpLB
	OpLH
	OpLW

	// I-type jump.
	OpJALR

	// S-type.
	OpSB
	OpSH
	OpSW

	// SB-type.
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU

	// U-type.
	OpLUI
	OpAUIPC

	// UJ-type.
	OpJAL
)

// mnemonics gives each Op a display name, used only for disassembly and
// trace logging.
var mnemonics = map[Op]string{
	OpADD: "add", OpSUB: "sub", OpMUL: "mul", OpDIV: "div", OpREM: "rem",
	OpAND: "and", OpOR: "or", OpXOR: "xor", OpSLL: "sll", OpSRL: "srl",
	OpSRA: "sra", OpSLT: "slt",
	OpADDI: "addi", OpANDI: "andi", OpORI: "ori", OpXORI: "xori",
	OpSLTI: "slti", OpSLTIU: "sltiu", OpSLLI: "slli", OpSRLI: "srli", OpSRAI: "srai",
	OpLB: "lb", OpLH: "lh", OpLW: "lw", OpJALR: "jalr",
	OpSB: "sb", OpSH: "sh", OpSW: "sw",
	OpBEQ: "beq", OpBNE: "bne", OpBLT: "blt", OpBGE: "bge", OpBLTU: "bltu", OpBGEU: "bgeu",
	OpLUI: "lui", OpAUIPC: "auipc", OpJAL: "jal",
}

// Mnemonic returns the display name for op, or "unknown".
func Mnemonic(op Op) string {
	if name, ok := mnemonics[op]; ok {
		return name
	}
	return "unknown"
}

// IsLoad reports whether op reads memory.
func IsLoad(op Op) bool {
	switch op {
	case OpLB, OpLH, OpLW:
		return true
	default:
		return false
	}
}

// IsStore reports whether op writes memory.
func IsStore(op Op) bool {
	switch op {
	case OpSB, OpSH, OpSW:
		return true
	default:
		return false
	}
}

// IsBranch reports whether op is a conditional branch (SB-type).
func IsBranch(op Op) bool {
	switch op {
	case OpBEQ, OpBNE, OpBLT, OpBGE, OpBLTU, OpBGEU:
		return true
	default:
		return false
	}
}

// IsJump reports whether op unconditionally redirects control flow (JAL/JALR).
func IsJump(op Op) bool {
	return op == OpJAL || op == OpJALR
}

// WritesRegister reports whether op ever commits a value to rd at writeback.
func WritesRegister(op Op) bool {
	switch {
	case IsStore(op), IsBranch(op):
		return false
	case op == OpUnknown:
		return false
	default:
		return true
	}
}
