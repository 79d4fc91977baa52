package consensus

import (
	"testing"

	"github.com/gluwa/creditcoin-pow-consensus/core"
	"github.com/gluwa/creditcoin-pow-consensus/interfaces"
)

// memCache is a minimal in-memory interfaces.BlockCache for chain-walk tests.
type memCache struct {
	blocks map[string]interfaces.Block
}

func newMemCache() *memCache { return &memCache{blocks: make(map[string]interfaces.Block)} }

func (c *memCache) Block(id string) (interfaces.Block, error) {
	b, ok := c.blocks[id]
	if !ok {
		return nil, interfaces.ErrUnknownBlock
	}
	return b, nil
}

func (c *memCache) put(b *core.Block) {
	c.blocks[b.Freeze()] = b
}

// buildChain links n PoW blocks of the given per-block difficulty and time
// spacing, starting from the zero block id, and returns the cache plus the
// chain in order (chain[0] is genesis's direct child).
func buildChain(n int, difficulty uint8, startTime, interval float64) (*memCache, []*core.Block) {
	cache := newMemCache()
	chain := make([]*core.Block, n)
	prevID := "genesis"
	for i := 0; i < n; i++ {
		b := core.NewBlock(prevID, uint64(i+1), []byte("pub"))
		t := startTime + float64(i)*interval
		b.SetConsensus(SerializeFields(difficulty, EncodeNonce(uint64(i)), t))
		cache.put(b)
		chain[i] = b
		prevID = b.HeaderSignature()
	}
	return cache, chain
}

func TestExpectedDifficulty_NonBoundary_CarriesForward(t *testing.T) {
	cache, chain := buildChain(5, 20, 1000, 60)
	cfg := RegulatorConfig{
		ExpectedBlockInterval:          60,
		DifficultyAdjustmentBlockCount: 10,
		DifficultyTuningBlockCount:     100,
	}
	regulator := NewRegulator(cache, cfg)

	prev := chain[len(chain)-1] // block number 5, not a multiple of 10 or 100
	got, err := regulator.ExpectedDifficulty(prev, 1000+5*60)
	if err != nil {
		t.Fatalf("ExpectedDifficulty: %v", err)
	}
	if got != 20 {
		t.Fatalf("ExpectedDifficulty at non-boundary = %d, want unchanged 20", got)
	}
}

func TestExpectedDifficulty_FineWindow_TooFast(t *testing.T) {
	// 10 blocks spaced 1s apart (expected 60s apart) at the fine-window
	// boundary: actual << expected/2, so difficulty should step up.
	cache, chain := buildChain(10, 20, 1000, 1)
	cfg := RegulatorConfig{
		ExpectedBlockInterval:          60,
		DifficultyAdjustmentBlockCount: 10,
		DifficultyTuningBlockCount:     100,
	}
	regulator := NewRegulator(cache, cfg)

	prev := chain[len(chain)-1] // block number 10
	now := 1000 + 9*1.0
	got, err := regulator.ExpectedDifficulty(prev, now)
	if err != nil {
		t.Fatalf("ExpectedDifficulty: %v", err)
	}
	if got != 21 {
		t.Fatalf("ExpectedDifficulty(too fast) = %d, want 21", got)
	}
}

func TestExpectedDifficulty_FineWindow_TooSlow(t *testing.T) {
	cache, chain := buildChain(10, 20, 1000, 600)
	cfg := RegulatorConfig{
		ExpectedBlockInterval:          60,
		DifficultyAdjustmentBlockCount: 10,
		DifficultyTuningBlockCount:     100,
	}
	regulator := NewRegulator(cache, cfg)

	prev := chain[len(chain)-1]
	now := 1000 + 9*600.0
	got, err := regulator.ExpectedDifficulty(prev, now)
	if err != nil {
		t.Fatalf("ExpectedDifficulty: %v", err)
	}
	if got != 19 {
		t.Fatalf("ExpectedDifficulty(too slow) = %d, want 19", got)
	}
}

func TestExpectedDifficulty_NeverBelowZero(t *testing.T) {
	cache, chain := buildChain(10, 0, 1000, 6000)
	cfg := RegulatorConfig{
		ExpectedBlockInterval:          60,
		DifficultyAdjustmentBlockCount: 10,
		DifficultyTuningBlockCount:     100,
	}
	regulator := NewRegulator(cache, cfg)

	prev := chain[len(chain)-1]
	now := 1000 + 9*6000.0
	got, err := regulator.ExpectedDifficulty(prev, now)
	if err != nil {
		t.Fatalf("ExpectedDifficulty: %v", err)
	}
	if got < 0 {
		t.Fatalf("ExpectedDifficulty = %d, want >= 0", got)
	}
}

func TestExpectedDifficulty_NeverAbove255(t *testing.T) {
	cache, chain := buildChain(10, 255, 1000, 1)
	cfg := RegulatorConfig{
		ExpectedBlockInterval:          60,
		DifficultyAdjustmentBlockCount: 10,
		DifficultyTuningBlockCount:     100,
	}
	regulator := NewRegulator(cache, cfg)

	prev := chain[len(chain)-1]
	now := 1000 + 9*1.0
	got, err := regulator.ExpectedDifficulty(prev, now)
	if err != nil {
		t.Fatalf("ExpectedDifficulty: %v", err)
	}
	if got > 255 {
		t.Fatalf("ExpectedDifficulty = %d, want <= 255", got)
	}
}

func TestValidateDifficulty_MeetsFloor(t *testing.T) {
	cache, chain := buildChain(1, 20, 1000, 60)
	cfg := RegulatorConfig{ExpectedBlockInterval: 60, DifficultyAdjustmentBlockCount: 10, DifficultyTuningBlockCount: 100}
	regulator := NewRegulator(cache, cfg)

	prev := chain[0]
	next := core.NewBlock(prev.HeaderSignature(), 2, []byte("pub"))
	next.SetConsensus(SerializeFields(20, EncodeNonce(1), 1060))

	ok, err := regulator.ValidateDifficulty(prev, next, 1060)
	if err != nil {
		t.Fatalf("ValidateDifficulty: %v", err)
	}
	if !ok {
		t.Fatal("ValidateDifficulty(meets floor) = false, want true")
	}
}

func TestValidateDifficulty_BelowFloor_Rejected(t *testing.T) {
	cache, chain := buildChain(1, 20, 1000, 60)
	cfg := RegulatorConfig{ExpectedBlockInterval: 60, DifficultyAdjustmentBlockCount: 10, DifficultyTuningBlockCount: 100}
	regulator := NewRegulator(cache, cfg)

	prev := chain[0]
	next := core.NewBlock(prev.HeaderSignature(), 2, []byte("pub"))
	next.SetConsensus(SerializeFields(5, EncodeNonce(1), 1060)) // well below the floor

	ok, err := regulator.ValidateDifficulty(prev, next, 1060)
	if err != nil {
		t.Fatalf("ValidateDifficulty: %v", err)
	}
	if ok {
		t.Fatal("ValidateDifficulty(below floor, within lenient window) = true, want false")
	}
}

func TestValidateDifficulty_LenientTimeSafetyValve(t *testing.T) {
	cache, chain := buildChain(1, 20, 1000, 60)
	cfg := RegulatorConfig{ExpectedBlockInterval: 60, DifficultyAdjustmentBlockCount: 10, DifficultyTuningBlockCount: 100}
	regulator := NewRegulator(cache, cfg)

	prev := chain[0]
	prevFields, err := ParseFields(prev.Consensus())
	if err != nil {
		t.Fatalf("ParseFields(prev): %v", err)
	}
	// DifficultyEnforcingInterval(60) = 1800s past prev's time: the safety
	// valve should accept a low-difficulty block once enough wall time has
	// passed without a successor.
	blockTime := prevFields.Time + 1900
	next := core.NewBlock(prev.HeaderSignature(), 2, []byte("pub"))
	next.SetConsensus(SerializeFields(0, EncodeNonce(1), blockTime))

	ok, err := regulator.ValidateDifficulty(prev, next, blockTime+1)
	if err != nil {
		t.Fatalf("ValidateDifficulty: %v", err)
	}
	if !ok {
		t.Fatal("ValidateDifficulty(past lenient-time window) = false, want true")
	}
}

func TestDifficultyEnforcingInterval(t *testing.T) {
	if got := DifficultyEnforcingInterval(60); got != 1800 {
		t.Fatalf("DifficultyEnforcingInterval(60) = %d, want 1800", got)
	}
}

func TestLoadRegulatorConfig_Defaults(t *testing.T) {
	cfg, err := LoadRegulatorConfig(nil, "any-block")
	if err != nil {
		t.Fatalf("LoadRegulatorConfig: %v", err)
	}
	if cfg.ExpectedBlockInterval != DefaultExpectedBlockInterval {
		t.Errorf("ExpectedBlockInterval = %d, want default %d", cfg.ExpectedBlockInterval, DefaultExpectedBlockInterval)
	}
	if cfg.DifficultyAdjustmentBlockCount != DefaultDifficultyAdjustmentBlockCount {
		t.Errorf("DifficultyAdjustmentBlockCount = %d, want default %d", cfg.DifficultyAdjustmentBlockCount, DefaultDifficultyAdjustmentBlockCount)
	}
	if cfg.DifficultyTuningBlockCount != DefaultDifficultyTuningBlockCount {
		t.Errorf("DifficultyTuningBlockCount = %d, want default %d", cfg.DifficultyTuningBlockCount, DefaultDifficultyTuningBlockCount)
	}
}
