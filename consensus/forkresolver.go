package consensus

import (
	"math"

	"github.com/gluwa/creditcoin-pow-consensus/interfaces"
	"github.com/gluwa/creditcoin-pow-consensus/logger"
	"github.com/gluwa/creditcoin-pow-consensus/metrics"
	"github.com/gluwa/creditcoin-pow-consensus/utils"
	"github.com/sirupsen/logrus"
)

// ForkResolver chooses between two PoW fork heads by cumulative work, with
// a difficulty-floor check on the new fork and a time-deviation
// tie-break.
type ForkResolver struct {
	cache    interfaces.BlockCache
	settings interfaces.SettingsView
	log      *logrus.Entry
}

// NewForkResolver constructs a fork resolver over the given block cache
// and settings view.
func NewForkResolver(cache interfaces.BlockCache, settings interfaces.SettingsView, log *logrus.Entry) *ForkResolver {
	return &ForkResolver{cache: cache, settings: settings, log: log}
}

// forkAborted marks a recoverable fork-walk failure (missing ancestor,
// non-PoW ancestor encountered mid-walk): caught internally and turned
// into a false comparison result.
type forkAborted struct{ reason string }

func (e forkAborted) Error() string { return e.reason }

// CompareForks returns true iff newHead is preferred over curHead.
func (r *ForkResolver) CompareForks(curHead, newHead interfaces.Block, now float64) (chosen bool) {
	metrics.GetMetrics().IncrementForkComparisons()
	defer func() {
		if chosen {
			metrics.GetMetrics().IncrementForkSwitches()
		}
	}()
	if !IsPoWBlock(newHead.Consensus()) {
		panic(&typeViolation{"new fork head is not a PoW block"})
	}
	newFields, err := ParseFields(newHead.Consensus())
	if err != nil {
		r.log.WithError(err).Warn("new fork head has malformed consensus field")
		return false
	}
	if newFields.Time > now+30 {
		r.log.Warn("new fork head is ahead of time")
		return false
	}

	if !IsPoWBlock(curHead.Consensus()) {
		if newHead.PreviousBlockID() == curHead.HeaderSignature() {
			r.log.Info("choosing new fork: switches consensus to PoW")
			return true
		}
		panic(&typeViolation{"comparing a PoW block to a non-PoW block that is not its direct predecessor"})
	}
	curFields, err := ParseFields(curHead.Consensus())
	if err != nil {
		r.log.WithError(err).Warn("current fork head has malformed consensus field")
		return false
	}

	newBlock, curBlock, err := r.alignTips(curHead, newHead)
	if err != nil {
		r.log.WithError(err).Warn("new fork rejected: tip alignment failed")
		return false
	}

	ancestor, ancestorHeight, err := r.walkToCommonAncestor(newBlock, curBlock)
	if err != nil {
		r.log.WithError(err).Warn("new fork rejected: common ancestor walk failed")
		return false
	}

	newLen := newHead.BlockNum() - ancestorHeight
	curLen := curHead.BlockNum() - ancestorHeight

	cfg, err := LoadRegulatorConfig(r.settings, curHead.PreviousBlockID())
	if err != nil {
		r.log.WithError(err).Warn("new fork rejected: failed to read difficulty settings")
		return false
	}
	regulator := NewRegulator(r.cache, cfg)

	if ok, err := r.verifyDifficulties(regulator, newHead, ancestor); err != nil {
		r.log.WithError(err).Warn("new fork rejected: difficulty verification failed")
		return false
	} else if !ok {
		r.log.Warn("new fork rejected: blocks in new fork failed to meet the minimal difficulty")
		return false
	}

	newWork, err := r.cumulativeWork(newHead, ancestor)
	if err != nil {
		r.log.WithError(err).Warn("new fork rejected: cumulative work walk failed")
		return false
	}
	curWork, err := r.cumulativeWork(curHead, ancestor)
	if err != nil {
		r.log.WithError(err).Warn("new fork rejected: cumulative work walk failed")
		return false
	}

	switch {
	case newWork > curWork:
		logger.LogForkChoice(newHead.HeaderSignature(), newWork, curWork)
		return true
	case newWork < curWork:
		logger.LogForkChoice(curHead.HeaderSignature(), newWork, curWork)
		return false
	}

	ancestorFields, err := r.ancestorFields(ancestor)
	if err != nil {
		return false
	}
	newAvg := avgDeviation(newFields.Time, ancestorFields.Time, newLen)
	curAvg := avgDeviation(curFields.Time, ancestorFields.Time, curLen)
	tieWinner := curHead.HeaderSignature()
	result := newAvg < curAvg
	if result {
		tieWinner = newHead.HeaderSignature()
	}
	logger.LogForkChoice(tieWinner, newWork, curWork)
	return result
}

// typeViolation marks a host invariant violation that should never
// occur given well-formed inputs. Raised as a typed panic rather than
// returned so the host's supervisory code (recover + type-assert) can
// distinguish it from an ordinary runtime panic.
type typeViolation struct{ reason string }

func (e *typeViolation) Error() string { return e.reason }

// alignTips walks the longer fork's tail back until both cursors sit at
// equal height. Any non-PoW block encountered
// during tail-alignment is fatal for the new fork.
func (r *ForkResolver) alignTips(curHead, newHead interfaces.Block) (newBlock, curBlock interfaces.Block, err error) {
	newBlock, err = r.walkDown(newHead, diffOrZero(newHead.BlockNum(), curHead.BlockNum()))
	if err != nil {
		return nil, nil, err
	}
	curBlock, err = r.walkDown(curHead, diffOrZero(curHead.BlockNum(), newHead.BlockNum()))
	if err != nil {
		return nil, nil, err
	}
	return newBlock, curBlock, nil
}

func diffOrZero(a, b uint64) uint64 {
	return a - utils.MinUint64(a, b)
}

func (r *ForkResolver) walkDown(block interfaces.Block, steps uint64) (interfaces.Block, error) {
	for steps > 0 {
		prev, err := r.cache.Block(block.PreviousBlockID())
		if err != nil {
			return nil, forkAborted{"tip lookup failed: missing predecessor " + block.PreviousBlockID()}
		}
		if !IsPoWBlock(prev.Consensus()) {
			return nil, forkAborted{"fork contains non-PoW blocks"}
		}
		block = prev
		steps--
	}
	return block, nil
}

// walkToCommonAncestor steps both cursors back in lock-step until their
// ids match.
func (r *ForkResolver) walkToCommonAncestor(newBlock, curBlock interfaces.Block) (ancestor interfaces.Block, height uint64, err error) {
	for newBlock.HeaderSignature() != curBlock.HeaderSignature() {
		nextNew, err := r.cache.Block(newBlock.PreviousBlockID())
		if err != nil {
			return nil, 0, forkAborted{"missing predecessor in new chain: " + newBlock.PreviousBlockID()}
		}
		nextCur, err := r.cache.Block(curBlock.PreviousBlockID())
		if err != nil {
			return nil, 0, forkAborted{"missing predecessor in current chain: " + curBlock.PreviousBlockID()}
		}
		if !IsPoWBlock(nextNew.Consensus()) || !IsPoWBlock(nextCur.Consensus()) {
			return nil, 0, forkAborted{"ancestors are no longer PoW"}
		}
		newBlock, curBlock = nextNew, nextCur
	}
	return newBlock, newBlock.BlockNum(), nil
}

// verifyDifficulties checks the difficulty-floor invariant for every PoW
// block from head down to (but not including) ancestor.
func (r *ForkResolver) verifyDifficulties(regulator *Regulator, head, ancestor interfaces.Block) (bool, error) {
	block := head
	for block.HeaderSignature() != ancestor.HeaderSignature() {
		prev, err := r.cache.Block(block.PreviousBlockID())
		if err != nil {
			return false, forkAborted{"difficulty verification failed: missing predecessor " + block.PreviousBlockID()}
		}
		ok, err := regulator.ValidateDifficulty(prev, block, nowSeconds())
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		block = prev
	}
	return true, nil
}

// cumulativeWork sums 2^difficulty over the suffix from head down to (but
// not including) ancestor.
func (r *ForkResolver) cumulativeWork(head, ancestor interfaces.Block) (float64, error) {
	work := 0.0
	block := head
	for block.HeaderSignature() != ancestor.HeaderSignature() {
		fields, err := ParseFields(block.Consensus())
		if err != nil {
			return 0, err
		}
		work += math.Pow(2, float64(fields.Difficulty))
		prev, err := r.cache.Block(block.PreviousBlockID())
		if err != nil {
			return 0, forkAborted{"process fork failed: missing predecessor " + block.PreviousBlockID()}
		}
		block = prev
	}
	return work, nil
}

func (r *ForkResolver) ancestorFields(ancestor interfaces.Block) (Fields, error) {
	return ParseFields(ancestor.Consensus())
}

// avgDeviation computes (headTime - ancestorTime) / len, 0 if len == 0.
func avgDeviation(headTime, ancestorTime float64, length uint64) float64 {
	if length == 0 {
		return 0
	}
	return (headTime - ancestorTime) / float64(length)
}
