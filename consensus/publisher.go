package consensus

import (
	"context"
	"sync"
	"time"

	"github.com/gluwa/creditcoin-pow-consensus/interfaces"
	"github.com/gluwa/creditcoin-pow-consensus/logger"
	"github.com/gluwa/creditcoin-pow-consensus/metrics"
	"github.com/sirupsen/logrus"
)

// nowSeconds is overridden in tests.
var nowSeconds = func() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// BlockPublisher orchestrates mining for one candidate block at a time.
// It owns the PRIMARY/PERFORMANCE solver pair and a difficulty regulator,
// encapsulated per instance rather than as process-wide globals.
type BlockPublisher struct {
	cache        interfaces.BlockCache
	settings     interfaces.SettingsView
	solverPath   string
	log          *logrus.Entry

	mu sync.Mutex // guards everything below; callers must not re-enter while holding it

	primary     *SolverHandle
	performance *SolverHandle

	startTime            float64
	validBlockPublishers [][]byte
	regulator            *Regulator
	ctx                  context.Context
}

// NewBlockPublisher constructs a publisher. No solver subprocess is
// started here; each one is started the first time initialize_block
// starts a job on its handle while that handle holds the PRIMARY role.
func NewBlockPublisher(ctx context.Context, cache interfaces.BlockCache, settings interfaces.SettingsView, solverPath string, log *logrus.Entry) *BlockPublisher {
	return &BlockPublisher{
		cache:       cache,
		settings:    settings,
		solverPath:  solverPath,
		log:         log,
		primary:     NewSolverHandle(Primary, solverPath, log),
		performance: NewSolverHandle(Performance, solverPath, log),
		ctx:         ctx,
	}
}

// InitializeBlock prepares the publisher to mine header.
func (p *BlockPublisher) InitializeBlock(header interfaces.Block) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = nowSeconds()

	cfg, err := LoadRegulatorConfig(p.settings, header.PreviousBlockID())
	if err != nil {
		p.log.WithError(err).Error("initialize_block: failed to read settings")
		return false
	}
	p.validBlockPublishers = cfg.ValidBlockPublishers
	p.regulator = NewRegulator(p.cache, cfg)

	prev, err := p.cache.Block(header.PreviousBlockID())
	if err != nil {
		p.log.WithError(err).Debug("initialize_block: missing predecessor")
		return false
	}

	difficulty := InitialDifficulty
	if IsPoWBlock(prev.Consensus()) {
		prevFields, ferr := ParseFields(prev.Consensus())
		difficulty, err = p.regulator.ExpectedDifficulty(prev, p.startTime)
		if err != nil {
			p.log.WithError(err).Error("initialize_block: failed to compute difficulty")
			return false
		}
		if ferr == nil && difficulty != int(prevFields.Difficulty) {
			window := "tuning"
			if prev.BlockNum()%uint64(p.regulator.config.DifficultyTuningBlockCount) != 0 {
				window = "adjustment"
			}
			logger.LogDifficultyRetarget(prev.BlockNum()+1, int(prevFields.Difficulty), difficulty, window)
		}
	}
	metrics.GetMetrics().SetDifficultyGauge(difficulty)

	id := int64(p.startTime * 1e9)
	if err := p.primary.Start(p.ctx, id, difficulty, []byte(header.PreviousBlockID()), header.SignerPublicKey()); err != nil {
		p.log.WithError(err).Debug("initialize_block: primary solver not ready")
		return false
	}
	p.log.Info("new block using PoW consensus")
	return true
}

// CheckPublishBlock reports whether header is ready to be claimed.
func (p *BlockPublisher) CheckPublishBlock(header interfaces.BlockBuilder) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.validBlockPublishers) > 0 && !keyAllowed(header.SignerPublicKey(), p.validBlockPublishers) {
		return false, nil
	}

	id := int64(p.startTime * 1e9)
	state := p.primary.State()
	switch state {
	case StateHash:
		if err := p.writeConsensus(p.primary, id, header); err != nil {
			return false, err
		}
		if err := p.performance.Stop(); err != nil {
			p.log.WithError(err).Debug("check_publish_block: failed to stop performance solver")
		}
		return true, nil

	case StateWorking:
		interval := float64(DifficultyEnforcingInterval(p.regulatorInterval()))
		if nowSeconds()-p.startTime < interval {
			return false, nil
		}
		if err := p.primary.Stop(); err != nil {
			return false, err
		}
		for p.primary.State() != StateStopped {
			time.Sleep(time.Millisecond)
		}
		payload := p.primary.Payload()
		if payload.ID != id {
			return false, &ProtocolError{Solver: string(Primary), Detail: "stale STOPPED result"}
		}
		header.SetConsensus(SerializeFields(uint8(payload.Difficulty), payload.NonceASCII, p.startTime))
		return true, nil

	case StateStopped:
		return false, nil

	default: // StateError
		metrics.GetMetrics().IncrementProtocolErrors()
		return false, &ProtocolError{Solver: string(Primary), Detail: p.primary.Payload().Description}
	}
}

func (p *BlockPublisher) regulatorInterval() int {
	if p.regulator == nil {
		return DefaultExpectedBlockInterval
	}
	return p.regulator.config.ExpectedBlockInterval
}

// writeConsensus builds and writes the consensus field from solver's most
// recent HASH event, rejecting stale results: when the event's id doesn't
// match the current start_time, nothing is written and a ProtocolError is
// returned.
func (p *BlockPublisher) writeConsensus(solver *SolverHandle, id int64, header interfaces.BlockBuilder) error {
	payload := solver.Payload()
	if payload.ID != id {
		return &ProtocolError{Solver: string(solver.tag), Detail: "stale HASH result"}
	}
	header.SetConsensus(SerializeFields(uint8(payload.Difficulty), payload.NonceASCII, p.startTime))
	return nil
}

// UpdateBlock is invoked periodically by the host from an auxiliary
// thread; it reads the PERFORMANCE solver and, if it has improved on the
// committed consensus, writes the new field and asks it to keep going.
func (p *BlockPublisher) UpdateBlock(header interfaces.BlockBuilder) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := int64(p.startTime * 1e9)
	if p.performance.State() != StateHash {
		return false
	}
	if err := p.writeConsensus(p.performance, id, header); err != nil {
		p.log.WithError(err).Debug("update_block: stale performance result")
		return false
	}
	if err := p.performance.Swap(); err != nil {
		p.log.WithError(err).Debug("update_block: failed to swap performance solver")
		return false
	}
	return true
}

// OnAccepted swaps the PRIMARY and PERFORMANCE roles: the worker that held
// the winning hash becomes the continuation for the next candidate.
func (p *BlockPublisher) OnAccepted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	metrics.GetMetrics().IncrementBlockCount()
	p.primary, p.performance = p.performance, p.primary
	if err := p.primary.Swap(); err != nil {
		p.log.WithError(err).Debug("on_accepted: failed to swap primary")
	}
	if err := p.performance.Swap(); err != nil {
		p.log.WithError(err).Debug("on_accepted: failed to swap performance")
	}
}

// OnCancelPublishBlock stops both workers and waits for their
// acknowledgements — the one bounded-wait operation on the publisher's
// hot path.
func (p *BlockPublisher) OnCancelPublishBlock() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.primary.Stop(); err != nil {
		p.log.WithError(err).Debug("on_cancel_publish_block: failed to stop primary")
	}
	if err := p.performance.Stop(); err != nil {
		p.log.WithError(err).Debug("on_cancel_publish_block: failed to stop performance")
	}
	for p.primary.State() != StateStopped {
		time.Sleep(time.Millisecond)
	}
	for p.performance.State() != StateStopped {
		time.Sleep(time.Millisecond)
	}
}

// FinalizeBlock performs no post-processing; the host applies the
// signature.
func (p *BlockPublisher) FinalizeBlock(header interfaces.Block) bool {
	return true
}

// GetRemainingTime returns max(0, expected_block_interval - elapsed).
func (p *BlockPublisher) GetRemainingTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	remaining := float64(p.regulatorInterval()) - (nowSeconds() - p.startTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Shutdown terminates both solver subprocesses. Call on host exit.
func (p *BlockPublisher) Shutdown() {
	p.primary.Terminate()
	p.performance.Terminate()
}

func keyAllowed(key []byte, allowed [][]byte) bool {
	for _, k := range allowed {
		if string(k) == string(key) {
			return true
		}
	}
	return false
}
