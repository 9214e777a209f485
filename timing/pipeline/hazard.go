package pipeline

import "github.com/sarchlab/m2sim/insts"

// ForwardSource indicates where a forwarded value should come from.
type ForwardSource int

// Forwarding sources, in priority order (EX beats MEM for the same reg).
const (
	ForwardNone ForwardSource = iota
	ForwardFromEX
	ForwardFromMEM
)

// ForwardingResult carries the forwarding decision for each of a
// consumer's three possible operand slots (rs1 into RA, rs2 into RB, and
// the store-value register into RM).
type ForwardingResult struct {
	ForwardRA ForwardSource
	ForwardRB ForwardSource
	ForwardRM ForwardSource
}

// HazardUnit implements the forwarding-priority table and the load-use and
// forwarding-off stall policies from the hazard and forwarding controller.
type HazardUnit struct{}

// NewHazardUnit creates a new HazardUnit.
func NewHazardUnit() *HazardUnit {
	return &HazardUnit{}
}

// DetectForwarding decides, for a consumer about to enter EX with the given
// source registers, which of its operands should be forwarded from the
// dependency snapshot. EX→EX (the record currently in EX) takes priority
// over MEM→EX (the record currently in MEM) for the same register. x0 is
// never forwarded.
func (h *HazardUnit) DetectForwarding(rs1, rs2, storeReg uint8, snapshot []RegisterDependency) ForwardingResult {
	return ForwardingResult{
		ForwardRA: h.detectForwardForReg(rs1, snapshot),
		ForwardRB: h.detectForwardForReg(rs2, snapshot),
		ForwardRM: h.detectForwardForReg(storeReg, snapshot),
	}
}

func (h *HazardUnit) detectForwardForReg(reg uint8, snapshot []RegisterDependency) ForwardSource {
	if reg == 0 {
		return ForwardNone
	}
	if _, ok := findInStage(snapshot, reg, StageEX); ok {
		return ForwardFromEX
	}
	if _, ok := findInStage(snapshot, reg, StageMEM); ok {
		return ForwardFromMEM
	}
	return ForwardNone
}

// GetForwardedValue resolves a ForwardSource against the snapshot, falling
// back to originalValue (the value read from the register file at DEC) if
// nothing is being forwarded.
func (h *HazardUnit) GetForwardedValue(source ForwardSource, reg uint8, originalValue uint32, snapshot []RegisterDependency) uint32 {
	switch source {
	case ForwardFromEX:
		if e, ok := findInStage(snapshot, reg, StageEX); ok {
			return e.Value
		}
	case ForwardFromMEM:
		if e, ok := findInStage(snapshot, reg, StageMEM); ok {
			return e.Value
		}
	}
	return originalValue
}

// DetectLoadUseHazard reports whether the record about to enter EX needs a
// value that a load currently in EX will only produce after MEM. Forwarding
// cannot bridge this gap; the pipeline must stall one cycle.
func (h *HazardUnit) DetectLoadUseHazard(rs1, rs2, storeReg uint8, snapshot []RegisterDependency) bool {
	dep, ok := findInStage(snapshot, loadHazardReg(rs1, rs2, storeReg, snapshot), StageEX)
	if !ok {
		return false
	}
	return insts.IsLoad(dep.Op)
}

// loadHazardReg returns whichever of rs1/rs2/storeReg currently has an
// EX-stage load dependency, or 0 if none does.
func loadHazardReg(rs1, rs2, storeReg uint8, snapshot []RegisterDependency) uint8 {
	for _, reg := range [3]uint8{rs1, rs2, storeReg} {
		if reg == 0 {
			continue
		}
		if dep, ok := findInStage(snapshot, reg, StageEX); ok && insts.IsLoad(dep.Op) {
			return reg
		}
	}
	return 0
}

// HasForwardingOffHazard reports whether, with forwarding disabled, any
// in-flight producer in EX or MEM will write a register this consumer
// reads. Used only when isDataForwarding is false: the consumer must then
// stall until the producer reaches WB.
func (h *HazardUnit) HasForwardingOffHazard(rs1, rs2, storeReg uint8, snapshot []RegisterDependency) bool {
	for _, reg := range [3]uint8{rs1, rs2, storeReg} {
		if reg == 0 {
			continue
		}
		if _, ok := findInStage(snapshot, reg, StageEX); ok {
			return true
		}
		if _, ok := findInStage(snapshot, reg, StageMEM); ok {
			return true
		}
	}
	return false
}
