package frontend

// BranchPredictorConfig holds configuration for the branch predictor.
type BranchPredictorConfig struct {
	// BHTSize is the number of entries in the Branch History Table.
	// Must be a power of 2. Default is 1024.
	BHTSize uint32
	// BTBSize is the number of entries in the Branch Target Buffer.
	// Must be a power of 2. Default is 256.
	BTBSize uint32
}

// DefaultBranchPredictorConfig returns a default configuration.
func DefaultBranchPredictorConfig() BranchPredictorConfig {
	return BranchPredictorConfig{
		BHTSize: 1024,
		BTBSize: 256,
	}
}

// BranchPredictorStats holds statistics for the branch predictor.
type BranchPredictorStats struct {
	// Updates is the number of resolved control-flow instructions.
	Updates uint64
	// Correct is the number of updates whose direction was predicted.
	Correct uint64
	// Mispredictions is the number of direction mispredictions.
	Mispredictions uint64
	// BTBHits and BTBMisses count block lookups.
	BTBHits   uint64
	BTBMisses uint64
}

// Accuracy returns the direction accuracy as a percentage.
func (s BranchPredictorStats) Accuracy() float64 {
	if s.Updates == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Updates) * 100
}

// BTBHitRate returns the BTB hit rate as a percentage.
func (s BranchPredictorStats) BTBHitRate() float64 {
	total := s.BTBHits + s.BTBMisses
	if total == 0 {
		return 0
	}
	return float64(s.BTBHits) / float64(total) * 100
}

// Prediction represents a branch prediction result.
type Prediction struct {
	// Taken indicates whether the branch is predicted to be taken.
	Taken bool
	// Target is the predicted target address (if known from BTB).
	Target uint64
	// TargetKnown indicates whether the target address is known.
	TargetKnown bool
}

// Redirects returns true if fetch follows the prediction away from the
// sequential path.
func (p Prediction) Redirects() bool {
	return p.Taken && p.TargetKnown
}

// BranchPredictor implements a 2-bit saturating counter (bimodal) predictor
// with a Branch Target Buffer (BTB). Fetch consults it once per fetch block,
// before the instructions are decoded, so only slots with a BTB entry can
// redirect. The counters are kept per slot; the BTB keeps one entry per
// block with a target for each slot.
type BranchPredictor struct {
	// States: 0=Strongly Not Taken, 1=Weakly Not Taken,
	//         2=Weakly Taken, 3=Strongly Taken
	bht []uint8
	btb []btbEntry

	bhtSize uint32
	btbSize uint32

	stats BranchPredictorStats
}

const slotsPerBlock = fetchBlock / 4

type btbEntry struct {
	valid  bool
	block  uint64
	known  [slotsPerBlock]bool
	target [slotsPerBlock]uint64
}

// NewBranchPredictor creates a new branch predictor with the given configuration.
func NewBranchPredictor(config BranchPredictorConfig) *BranchPredictor {
	bhtSize := config.BHTSize
	btbSize := config.BTBSize

	if bhtSize == 0 {
		bhtSize = 1024
	}
	if btbSize == 0 {
		btbSize = 256
	}

	bp := &BranchPredictor{
		bht:     make([]uint8, bhtSize),
		btb:     make([]btbEntry, btbSize),
		bhtSize: bhtSize,
		btbSize: btbSize,
	}

	// Weakly taken: a BTB hit means the slot was taken before.
	for i := range bp.bht {
		bp.bht[i] = 2
	}

	return bp
}

func (bp *BranchPredictor) bhtIndex(pc uint64) uint32 {
	return uint32((pc >> 2) & uint64(bp.bhtSize-1))
}

func (bp *BranchPredictor) entry(pc uint64) (*btbEntry, uint64) {
	block := pc &^ (fetchBlock - 1)
	return &bp.btb[(block/fetchBlock)&uint64(bp.btbSize-1)], block
}

func slotOf(pc uint64) int {
	return int(pc&(fetchBlock-1)) / 4
}

// PredictBlock predicts every slot from pc to the end of its fetch block
// with a single BTB lookup.
func (bp *BranchPredictor) PredictBlock(pc uint64) []Prediction {
	e, block := bp.entry(pc)

	hit := e.valid && e.block == block
	if hit {
		bp.stats.BTBHits++
	} else {
		bp.stats.BTBMisses++
	}

	var preds []Prediction

	for slot := slotOf(pc); slot < slotsPerBlock; slot++ {
		slotPC := block + uint64(4*slot)
		pred := Prediction{Taken: bp.bht[bp.bhtIndex(slotPC)] >= 2}

		if hit && e.known[slot] {
			pred.Target = e.target[slot]
			pred.TargetKnown = true
		}

		preds = append(preds, pred)
	}

	return preds
}

// Predict makes a prediction for the slot at pc.
func (bp *BranchPredictor) Predict(pc uint64) Prediction {
	return bp.PredictBlock(pc)[0]
}

// Update trains the predictor with the resolved outcome. A taken slot
// claims the BTB entry of its block, dropping the targets of another block
// that shared it.
func (bp *BranchPredictor) Update(u BranchUpdate) {
	bhtIdx := bp.bhtIndex(u.PC)
	counter := bp.bht[bhtIdx]

	bp.stats.Updates++
	if (counter >= 2) == u.Taken {
		bp.stats.Correct++
	} else {
		bp.stats.Mispredictions++
	}

	if u.Taken {
		if counter < 3 {
			bp.bht[bhtIdx] = counter + 1
		}
	} else if counter > 0 {
		bp.bht[bhtIdx] = counter - 1
	}

	if !u.Taken {
		return
	}

	e, block := bp.entry(u.PC)
	if !e.valid || e.block != block {
		*e = btbEntry{valid: true, block: block}
	}

	slot := slotOf(u.PC)
	e.known[slot] = true
	e.target[slot] = u.Target
}

// Stats returns the branch predictor statistics.
func (bp *BranchPredictor) Stats() BranchPredictorStats {
	return bp.stats
}

// Reset clears all predictor state and statistics.
func (bp *BranchPredictor) Reset() {
	for i := range bp.bht {
		bp.bht[i] = 2
	}

	for i := range bp.btb {
		bp.btb[i] = btbEntry{}
	}

	bp.stats = BranchPredictorStats{}
}
