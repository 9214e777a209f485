package emu

import "github.com/sarchlab/m2sim/insts"

// BranchUnit evaluates RV32 branch conditions. Unlike ARM64, RV32 branches
// compare two register operands directly; there is no persistent flags
// register to consult.
type BranchUnit struct{}

// NewBranchUnit creates a new BranchUnit.
func NewBranchUnit() *BranchUnit {
	return &BranchUnit{}
}

// Taken evaluates whether an SB-type branch of the given op is taken,
// comparing rs1Val against rs2Val per the op's condition.
func (b *BranchUnit) Taken(op insts.Op, rs1Val, rs2Val uint32) bool {
	switch op {
	case insts.OpBEQ:
		return rs1Val == rs2Val
	case insts.OpBNE:
		return rs1Val != rs2Val
	case insts.OpBLT:
		return int32(rs1Val) < int32(rs2Val)
	case insts.OpBGE:
		return int32(rs1Val) >= int32(rs2Val)
	case insts.OpBLTU:
		return rs1Val < rs2Val
	case insts.OpBGEU:
		return rs1Val >= rs2Val
	default:
		return false
	}
}
