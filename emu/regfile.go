// Package emu provides functional RV32I/M emulation: the register file,
// the ALU, and byte-addressable memory. It is used both by the pipeline's
// per-stage units and directly by tests that want to check an operation in
// isolation from timing.
package emu

// RegFile represents the RV32 integer register file: 32 general-purpose
// registers, x0 through x31. x0 is hardwired to zero.
type RegFile struct {
	X [32]uint32
}

// NewRegFile creates a register file with the simulator's fixed initial
// state: x0=0, x2 (sp)=0x7FFFFFDC, x3 (gp)=0x10000000, x10=1,
// x11=0x7FFFFFDC, all others 0.
func NewRegFile() *RegFile {
	r := &RegFile{}
	r.X[2] = 0x7FFFFFDC
	r.X[3] = 0x10000000
	r.X[10] = 1
	r.X[11] = 0x7FFFFFDC
	return r
}

// ReadReg reads a register value. x0 always reads as 0.
func (r *RegFile) ReadReg(reg uint8) uint32 {
	if reg == 0 {
		return 0
	}
	return r.X[reg]
}

// WriteReg writes a value to a register. Writes to x0 are silently
// discarded; x0 is re-pinned to 0 unconditionally after every write, per
// the writeback unit's invariant.
func (r *RegFile) WriteReg(reg uint8, value uint32) {
	if reg == 0 {
		r.X[0] = 0
		return
	}
	r.X[reg] = value
	r.X[0] = 0
}

// Snapshot returns a copy of the current register contents.
func (r *RegFile) Snapshot() [32]uint32 {
	return r.X
}
