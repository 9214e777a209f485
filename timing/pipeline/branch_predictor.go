// Package pipeline implements the five-stage in-order execution engine:
// pipeline latches, the dependency tracker, the hazard and forwarding
// controller, the branch predictor, and the per-cycle scheduler that ties
// them together.
package pipeline

// BranchPredictorConfig configures the PHT and BTB sizes. Both must be
// powers of two.
type BranchPredictorConfig struct {
	PHTSize uint32
	BTBSize uint32
}

// DefaultBranchPredictorConfig returns sensible defaults for a small
// educational program.
func DefaultBranchPredictorConfig() BranchPredictorConfig {
	return BranchPredictorConfig{PHTSize: 1024, BTBSize: 256}
}

// BranchPredictorStats tracks prediction outcomes.
type BranchPredictorStats struct {
	Predictions    uint64
	Correct        uint64
	Mispredictions uint64
	BTBHits        uint64
	BTBMisses      uint64
}

// Accuracy returns the percentage of predictions that were correct, or 0
// if no predictions have been made yet.
func (s BranchPredictorStats) Accuracy() float64 {
	if s.Predictions == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Predictions) * 100
}

// Prediction is the predictor's guess for one fetch.
type Prediction struct {
	Taken       bool
	Target      uint32
	TargetKnown bool
}

const (
	counterStronglyNotTaken = 0
	counterWeaklyNotTaken   = 1
	counterWeaklyTaken      = 2
	counterStronglyTaken    = 3
)

type btbEntry struct {
	pc     uint32
	target uint32
}

// BranchPredictor is a direct-mapped 2-bit saturating-counter PHT plus a
// direct-mapped BTB, per the spec's "1-bit or 2-bit PHT plus a BTB" design.
type BranchPredictor struct {
	config BranchPredictorConfig

	pht []uint8

	btb      []btbEntry
	btbValid []bool

	stats BranchPredictorStats
}

// NewBranchPredictor creates a predictor with the given configuration. Every
// PHT entry starts weakly-taken, matching the source's initial bias.
func NewBranchPredictor(config BranchPredictorConfig) *BranchPredictor {
	if config.PHTSize == 0 {
		config.PHTSize = DefaultBranchPredictorConfig().PHTSize
	}
	if config.BTBSize == 0 {
		config.BTBSize = DefaultBranchPredictorConfig().BTBSize
	}

	pht := make([]uint8, config.PHTSize)
	for i := range pht {
		pht[i] = counterWeaklyTaken
	}

	return &BranchPredictor{
		config:   config,
		pht:      pht,
		btb:      make([]btbEntry, config.BTBSize),
		btbValid: make([]bool, config.BTBSize),
	}
}

func (b *BranchPredictor) phtIndex(pc uint32) uint32 {
	return (pc >> 2) & (b.config.PHTSize - 1)
}

func (b *BranchPredictor) btbIndex(pc uint32) uint32 {
	return (pc >> 2) & (b.config.BTBSize - 1)
}

// Predict returns the prediction for a fetch at pc.
func (b *BranchPredictor) Predict(pc uint32) Prediction {
	b.stats.Predictions++

	counter := b.pht[b.phtIndex(pc)]
	pred := Prediction{Taken: counter >= counterWeaklyTaken}

	idx := b.btbIndex(pc)
	if b.btbValid[idx] && b.btb[idx].pc == pc {
		pred.Target = b.btb[idx].target
		pred.TargetKnown = true
		b.stats.BTBHits++
	} else {
		b.stats.BTBMisses++
	}

	return pred
}

// Update trains the predictor with the actual outcome of a branch resolved
// at EX. The BTB is only written for taken branches.
func (b *BranchPredictor) Update(pc uint32, taken bool, target uint32) {
	idx := b.phtIndex(pc)
	if taken {
		if b.pht[idx] < counterStronglyTaken {
			b.pht[idx]++
		}
	} else {
		if b.pht[idx] > counterStronglyNotTaken {
			b.pht[idx]--
		}
	}

	if taken {
		btbIdx := b.btbIndex(pc)
		b.btb[btbIdx] = btbEntry{pc: pc, target: target}
		b.btbValid[btbIdx] = true
	}
}

// RecordOutcome updates the correctness statistics for a resolved
// prediction; callers determine correctness by comparing the prediction
// made at fetch against the actual EX-stage outcome.
func (b *BranchPredictor) RecordOutcome(correct bool) {
	if correct {
		b.stats.Correct++
	} else {
		b.stats.Mispredictions++
	}
}

// Stats returns a copy of the current prediction statistics.
func (b *BranchPredictor) Stats() BranchPredictorStats {
	return b.stats
}

// Reset clears all predictor state and statistics.
func (b *BranchPredictor) Reset() {
	*b = *NewBranchPredictor(b.config)
}
