package pipeline

import "github.com/sarchlab/m2sim/insts"

// RegisterDependency is one entry of the dependency tracker's rolling
// table: an in-flight write not yet committed to the register file.
type RegisterDependency struct {
	Reg   uint8
	PC    uint32
	Stage Stage
	Op    insts.Op
	Value uint32
}

// DependencyTracker maintains the rolling table of in-flight destination
// registers, keyed by the PC of their producing instruction. Expected
// occupancy is small (at most one entry per in-flight instruction with a
// destination, so at most four in a five-stage pipeline), so a linearly
// scanned slice meets the spec's invariants without needing a map.
type DependencyTracker struct {
	entries []RegisterDependency
}

// NewDependencyTracker creates an empty tracker.
func NewDependencyTracker() *DependencyTracker {
	return &DependencyTracker{}
}

// Insert records a new dependency at DECODE. Register 0 is never tracked,
// per the invariant that x0 never appears as a dependency destination.
func (t *DependencyTracker) Insert(reg uint8, pc uint32, op insts.Op) {
	if reg == 0 {
		return
	}
	t.entries = append(t.entries, RegisterDependency{Reg: reg, PC: pc, Stage: StageDEC, Op: op})
}

// UpdateStage advances the dependency for pc to a later stage and records
// its currently-available value (RY once EX completes, RZ once MEM
// completes).
func (t *DependencyTracker) UpdateStage(pc uint32, stage Stage, value uint32) {
	for i := range t.entries {
		if t.entries[i].PC == pc {
			t.entries[i].Stage = stage
			t.entries[i].Value = value
			return
		}
	}
}

// Remove deletes the dependency for pc, called at WB before any later
// instruction can observe the register file this cycle.
func (t *DependencyTracker) Remove(pc uint32) {
	for i := range t.entries {
		if t.entries[i].PC == pc {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// Snapshot returns a copy of the current entries, decoupling later reads
// (used for forwarding) from writes made later in the same cycle.
func (t *DependencyTracker) Snapshot() []RegisterDependency {
	out := make([]RegisterDependency, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len reports the number of in-flight dependencies.
func (t *DependencyTracker) Len() int {
	return len(t.entries)
}

// findInStage returns the dependency for reg with the given stage from a
// snapshot, if any.
func findInStage(snapshot []RegisterDependency, reg uint8, stage Stage) (RegisterDependency, bool) {
	if reg == 0 {
		return RegisterDependency{}, false
	}
	for _, e := range snapshot {
		if e.Reg == reg && e.Stage == stage {
			return e, true
		}
	}
	return RegisterDependency{}, false
}
