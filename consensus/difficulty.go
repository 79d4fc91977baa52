package consensus

import (
	"github.com/gluwa/creditcoin-pow-consensus/interfaces"
)

// Default regulator tunables, overridden by the four host settings keys
// a deployment can set on the chain.
const (
	DefaultExpectedBlockInterval          = 60
	DefaultDifficultyAdjustmentBlockCount = 10
	DefaultDifficultyTuningBlockCount     = 100
	InitialDifficulty                     = 22
)

// DifficultyEnforcingInterval is 30x the expected block interval: the
// lenient-time safety valve window.
func DifficultyEnforcingInterval(expectedBlockInterval int) int {
	return 30 * expectedBlockInterval
}

// RegulatorConfig is a snapshot of the four tunables, read once per
// candidate block when a new block is initialized.
type RegulatorConfig struct {
	ExpectedBlockInterval          int
	DifficultyAdjustmentBlockCount int
	DifficultyTuningBlockCount     int
	ValidBlockPublishers           [][]byte
}

// LoadRegulatorConfig reads the four regulator settings keys from the
// settings view rooted at blockID, falling back to the package defaults.
func LoadRegulatorConfig(view interfaces.SettingsView, blockID string) (RegulatorConfig, error) {
	cfg := RegulatorConfig{
		ExpectedBlockInterval:          DefaultExpectedBlockInterval,
		DifficultyAdjustmentBlockCount: DefaultDifficultyAdjustmentBlockCount,
		DifficultyTuningBlockCount:     DefaultDifficultyTuningBlockCount,
	}
	if view == nil {
		return cfg, nil
	}
	if v, err := view.Setting(blockID, "sawtooth.consensus.pow.seconds_between_blocks", cfg.ExpectedBlockInterval); err == nil {
		if i, ok := v.(int); ok {
			cfg.ExpectedBlockInterval = i
		}
	}
	if v, err := view.Setting(blockID, "sawtooth.consensus.pow.difficulty_adjustment_block_count", cfg.DifficultyAdjustmentBlockCount); err == nil {
		if i, ok := v.(int); ok {
			cfg.DifficultyAdjustmentBlockCount = i
		}
	}
	if v, err := view.Setting(blockID, "sawtooth.consensus.pow.difficulty_tuning_block_count", cfg.DifficultyTuningBlockCount); err == nil {
		if i, ok := v.(int); ok {
			cfg.DifficultyTuningBlockCount = i
		}
	}
	if v, err := view.Setting(blockID, "sawtooth.consensus.valid_block_publisher", nil); err == nil && v != nil {
		if keys, ok := v.([][]byte); ok {
			cfg.ValidBlockPublishers = keys
		}
	}
	return cfg, nil
}

// Regulator computes expected difficulty and validates difficulty-floor
// compliance, deterministically from the chain alone.
type Regulator struct {
	cache  interfaces.BlockCache
	config RegulatorConfig
}

// NewRegulator builds a regulator over the given block cache and tunables.
func NewRegulator(cache interfaces.BlockCache, config RegulatorConfig) *Regulator {
	return &Regulator{cache: cache, config: config}
}

// elapsed walks back up to count PoW predecessors (inclusive of prev),
// returning the number of blocks actually visited and the time recorded
// on the oldest one. The walk stops early at a non-PoW predecessor.
func (r *Regulator) elapsed(prev interfaces.Block, prevFields Fields, count int) (visited int, oldestTime float64) {
	visited = 1
	oldestTime = prevFields.Time
	cur := prev
	for visited < count {
		parent, err := r.cache.Block(cur.PreviousBlockID())
		if err != nil {
			break
		}
		if !IsPoWBlock(parent.Consensus()) {
			break
		}
		fields, err := ParseFields(parent.Consensus())
		if err != nil {
			break
		}
		visited++
		oldestTime = fields.Time
		cur = parent
	}
	return visited, oldestTime
}

// ExpectedDifficulty computes the expected difficulty for a block whose
// predecessor is prev, at the given candidate time.
// prev must be a PoW block; callers are responsible for the
// INITIAL_DIFFICULTY special case when prev is not.
func (r *Regulator) ExpectedDifficulty(prev interfaces.Block, now float64) (int, error) {
	prevFields, err := ParseFields(prev.Consensus())
	if err != nil {
		return 0, err
	}
	difficulty := int(prevFields.Difficulty)

	switch {
	case prev.BlockNum()%uint64(r.config.DifficultyTuningBlockCount) == 0:
		visited, oldest := r.elapsed(prev, prevFields, r.config.DifficultyTuningBlockCount)
		taken := now - oldest
		expected := float64(visited) * float64(r.config.ExpectedBlockInterval)
		switch {
		case taken < expected:
			if difficulty < 255 {
				difficulty++
			}
		case taken > expected:
			if difficulty > 0 {
				difficulty--
			}
		}
	case prev.BlockNum()%uint64(r.config.DifficultyAdjustmentBlockCount) == 0:
		visited, oldest := r.elapsed(prev, prevFields, r.config.DifficultyAdjustmentBlockCount)
		taken := now - oldest
		expected := float64(visited) * float64(r.config.ExpectedBlockInterval)
		switch {
		case taken < expected/2:
			if difficulty < 255 {
				difficulty++
			}
		case taken > expected*2:
			if difficulty > 0 {
				difficulty--
			}
		}
	}
	return difficulty, nil
}

// ValidateDifficulty enforces the difficulty floor, with the lenient-time
// safety valve. prev must be a PoW block.
func (r *Regulator) ValidateDifficulty(prev interfaces.Block, block interfaces.Block, now float64) (bool, error) {
	blockFields, err := ParseFields(block.Consensus())
	if err != nil {
		return false, err
	}
	expected, err := r.ExpectedDifficulty(prev, blockFields.Time)
	if err != nil {
		return false, err
	}
	if int(blockFields.Difficulty) >= expected {
		return true, nil
	}

	prevFields, err := ParseFields(prev.Consensus())
	if err != nil {
		return false, err
	}
	interval := float64(DifficultyEnforcingInterval(r.config.ExpectedBlockInterval))
	if blockFields.Time < now &&
		blockFields.Time > prevFields.Time &&
		blockFields.Time-prevFields.Time >= interval {
		return true, nil
	}
	return false, nil
}
