package emu

import "github.com/sarchlab/m2sim/insts"

// LoadStoreUnit implements RV32I memory access with the sign-extension
// rules for LB/LH/LW and the truncation rules for SB/SH/SW.
type LoadStoreUnit struct {
	memory *Memory
}

// NewLoadStoreUnit creates a LoadStoreUnit connected to the given memory.
func NewLoadStoreUnit(memory *Memory) *LoadStoreUnit {
	return &LoadStoreUnit{memory: memory}
}

// Load reads the width implied by op from addr and returns the
// sign-extended 32-bit result.
func (l *LoadStoreUnit) Load(op insts.Op, addr uint32) (uint32, error) {
	switch op {
	case insts.OpLB:
		v, err := l.memory.Read8(addr)
		return uint32(int32(int8(v))), err
	case insts.OpLH:
		v, err := l.memory.Read16(addr)
		return uint32(int32(int16(v))), err
	case insts.OpLW:
		return l.memory.Read32(addr)
	default:
		return 0, nil
	}
}

// Store writes the width implied by op to addr from value's low bits.
func (l *LoadStoreUnit) Store(op insts.Op, addr uint32, value uint32) error {
	switch op {
	case insts.OpSB:
		return l.memory.Write8(addr, uint8(value))
	case insts.OpSH:
		return l.memory.Write16(addr, uint16(value))
	case insts.OpSW:
		return l.memory.Write32(addr, value)
	default:
		return nil
	}
}
