package database

import (
	"encoding/json"
	"fmt"

	"github.com/gluwa/creditcoin-pow-consensus/cache"
	"github.com/gluwa/creditcoin-pow-consensus/core"
	"github.com/gluwa/creditcoin-pow-consensus/interfaces"
)

const (
	blockKeyPrefix   = "b:"
	settingKeyPrefix = "s:"
)

// BlockStore persists blocks and chain settings in a LevelDB instance
// and serves both interfaces.BlockCache and interfaces.SettingsView,
// with a short-lived in-memory cache in front of block lookups.
type BlockStore struct {
	db  Database
	hot *cache.Cache
}

func NewBlockStore(db Database) *BlockStore {
	return &BlockStore{db: db, hot: cache.NewCache()}
}

// Block implements interfaces.BlockCache.
func (s *BlockStore) Block(id string) (interfaces.Block, error) {
	if v, ok := s.hot.Get(id); ok {
		return v.(interfaces.Block), nil
	}
	raw, err := s.db.Get([]byte(blockKeyPrefix + id))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, interfaces.ErrUnknownBlock
	}
	block, err := core.BlockFromJSON(raw)
	if err != nil {
		return nil, err
	}
	s.hot.Set(id, interfaces.Block(block), cache.DefaultBlockTTL)
	return block, nil
}

// PutBlock commits a block to the store, keyed by its header signature.
func (s *BlockStore) PutBlock(block *core.Block) error {
	id := block.Freeze()
	data, err := block.ToJSON()
	if err != nil {
		return fmt.Errorf("encode block %s: %w", id, err)
	}
	if err := s.db.Put([]byte(blockKeyPrefix+id), data); err != nil {
		return err
	}
	s.hot.Set(id, interfaces.Block(block), cache.DefaultBlockTTL)
	return nil
}

// Setting implements interfaces.SettingsView. blockID is accepted for
// interface compatibility; settings in this store are global rather
// than rooted at a particular block.
func (s *BlockStore) Setting(blockID string, key string, def interface{}) (interface{}, error) {
	raw, err := s.db.Get([]byte(settingKeyPrefix + key))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return def, nil
	}
	if key == "sawtooth.consensus.valid_block_publisher" {
		var keys [][]byte
		if err := json.Unmarshal(raw, &keys); err != nil {
			return nil, fmt.Errorf("decode setting %s: %w", key, err)
		}
		return keys, nil
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("decode setting %s: %w", key, err)
	}
	switch def.(type) {
	case int:
		if f, ok := value.(float64); ok {
			return int(f), nil
		}
	}
	return value, nil
}

// PutSetting writes a chain setting, used by the host harness to seed
// regulator tunables and the valid-publisher allowlist.
func (s *BlockStore) PutSetting(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", key, err)
	}
	return s.db.Put([]byte(settingKeyPrefix+key), data)
}

var (
	_ interfaces.BlockCache   = (*BlockStore)(nil)
	_ interfaces.SettingsView = (*BlockStore)(nil)
)
