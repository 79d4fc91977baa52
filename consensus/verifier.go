package consensus

import (
	"github.com/gluwa/creditcoin-pow-consensus/interfaces"
)

// BlockVerifier validates a received block's consensus field.
type BlockVerifier struct {
	cache    interfaces.BlockCache
	settings interfaces.SettingsView
}

// NewBlockVerifier constructs a verifier over the given block cache and
// settings view.
func NewBlockVerifier(cache interfaces.BlockCache, settings interfaces.SettingsView) *BlockVerifier {
	return &BlockVerifier{cache: cache, settings: settings}
}

// VerifyBlock returns whether block's consensus field is well-formed,
// honors the difficulty floor (when its predecessor is PoW), and meets
// its own claimed difficulty.
func (v *BlockVerifier) VerifyBlock(block interfaces.Block) bool {
	if !IsPoWBlock(block.Consensus()) {
		return false
	}
	fields, err := ParseFields(block.Consensus())
	if err != nil {
		return false
	}

	prev, err := v.cache.Block(block.PreviousBlockID())
	if err != nil {
		return false
	}

	if IsPoWBlock(prev.Consensus()) {
		cfg, err := LoadRegulatorConfig(v.settings, block.PreviousBlockID())
		if err != nil {
			return false
		}
		regulator := NewRegulator(v.cache, cfg)
		ok, err := regulator.ValidateDifficulty(prev, block, nowSeconds())
		if err != nil || !ok {
			return false
		}
	}

	digest := BuildDigest([]byte(block.PreviousBlockID()), block.SignerPublicKey(), fields.NonceASCII)
	return Valid(digest[:], int(fields.Difficulty))
}
