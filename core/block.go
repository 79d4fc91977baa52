package core

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gluwa/creditcoin-pow-consensus/interfaces"
)

// BlockHeader is the minimal header a PoW-consensus candidate carries:
// enough to identify it, link it to its predecessor, attribute it to a
// signer, and hold the consensus engine's own wire field.
type BlockHeader struct {
	Number         uint64 `json:"number"`
	PreviousID     string `json:"previous_block_id"`
	SignerPubKey   []byte `json:"signer_public_key"`
	ConsensusField []byte `json:"consensus"`

	signature string // computed lazily, cached once set
}

// Block wraps a header and satisfies interfaces.Block / interfaces.BlockBuilder.
type Block struct {
	Header *BlockHeader `json:"header"`
}

// NewBlock constructs an unsigned candidate extending previousID.
func NewBlock(previousID string, number uint64, signerPubKey []byte) *Block {
	return &Block{
		Header: &BlockHeader{
			Number:       number,
			PreviousID:   previousID,
			SignerPubKey: signerPubKey,
		},
	}
}

func (b *Block) BlockNum() uint64            { return b.Header.Number }
func (b *Block) PreviousBlockID() string     { return b.Header.PreviousID }
func (b *Block) SignerPublicKey() []byte     { return b.Header.SignerPubKey }
func (b *Block) Consensus() []byte           { return b.Header.ConsensusField }
func (b *Block) SetConsensus(field []byte)   { b.Header.ConsensusField = field }

// HeaderSignature identifies the block by the hex-encoded SHA-256 digest
// of its header fields. It is computed on first access and cached,
// since a candidate's identity is only settled once its consensus field
// is written.
func (b *Block) HeaderSignature() string {
	if b.Header.signature != "" {
		return b.Header.signature
	}
	h := sha256.New()
	numberBytes := make([]byte, 8)
	for i := 0; i < 8; i++ {
		numberBytes[7-i] = byte(b.Header.Number >> (i * 8))
	}
	h.Write(numberBytes)
	h.Write([]byte(b.Header.PreviousID))
	h.Write(b.Header.SignerPubKey)
	h.Write(b.Header.ConsensusField)
	b.Header.signature = hexutil.Encode(h.Sum(nil))
	return b.Header.signature
}

// Freeze fixes the block's signature, called once its consensus field
// is final and it is about to be committed to the store.
func (b *Block) Freeze() string {
	b.Header.signature = ""
	return b.HeaderSignature()
}

func (b *Block) ToJSON() ([]byte, error) {
	return json.Marshal(b.Header)
}

func BlockFromJSON(data []byte) (*Block, error) {
	var hdr BlockHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		return nil, fmt.Errorf("decode block header: %w", err)
	}
	return &Block{Header: &hdr}, nil
}

var (
	_ interfaces.Block        = (*Block)(nil)
	_ interfaces.BlockBuilder = (*Block)(nil)
)
