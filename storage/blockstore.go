package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/meridianchain/meridian/core"
	"github.com/meridianchain/meridian/crypto"
)

// Key prefixes for the chain's logical keyspaces.
const (
	prefixBlock          = "block/"
	prefixHeaderByHeight = "header_by_height/"
	prefixAccount        = "account/"
	keyMetaTip           = "meta/tip"
	keyMetaGenesisHash   = "meta/genesis_hash"
)

func blockKey(hash crypto.Hash) []byte {
	return append([]byte(prefixBlock), hash[:]...)
}

func heightKey(height uint64) []byte {
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], height)
	return append([]byte(prefixHeaderByHeight), h[:]...)
}

func accountKey(addr crypto.Address) []byte {
	return append([]byte(prefixAccount), addr[:]...)
}

// ChainStore persists blocks, the height index, account balances, and chain
// tip metadata on top of a DB, with CommitBlock applying a whole block's
// effects as a single atomic batch.
type ChainStore struct {
	db DB
}

// NewChainStore wraps db as a ChainStore.
func NewChainStore(db DB) *ChainStore {
	return &ChainStore{db: db}
}

// GetBlock returns the block stored under hash.
func (cs *ChainStore) GetBlock(hash crypto.Hash) (*core.Block, error) {
	data, err := cs.db.Get(blockKey(hash))
	if err != nil {
		return nil, err
	}
	var b core.Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	return &b, nil
}

// PutBlock stores block under its hash without touching the height index,
// account state, or chain tip. Used to persist a block on a non-canonical
// branch (an orphan whose parent hasn't arrived, or a side branch that
// hasn't yet won fork choice) so it survives a restart and remains
// available if its branch later becomes canonical.
func (cs *ChainStore) PutBlock(block *core.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodec, err)
	}
	if err := cs.db.Set(blockKey(block.Hash()), data); err != nil {
		return fmt.Errorf("put block %s: %w", block.Hash().Hex(), err)
	}
	return nil
}

// GetHeaderByHeight returns the hash of the block committed at height.
func (cs *ChainStore) GetHeaderByHeight(height uint64) (crypto.Hash, error) {
	data, err := cs.db.Get(heightKey(height))
	if err != nil {
		return crypto.ZeroHash, err
	}
	hash, err := crypto.HashFromHex(string(data))
	if err != nil {
		return crypto.ZeroHash, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	return hash, nil
}

// GetBlockByHeight performs the two-step height -> hash -> block lookup.
func (cs *ChainStore) GetBlockByHeight(height uint64) (*core.Block, error) {
	hash, err := cs.GetHeaderByHeight(height)
	if err != nil {
		return nil, err
	}
	return cs.GetBlock(hash)
}

// GetAccount returns the account stored at addr, or a zero-value account
// if none has ever been written.
func (cs *ChainStore) GetAccount(addr crypto.Address) (core.Account, error) {
	data, err := cs.db.Get(accountKey(addr))
	if err == ErrNotFound {
		return core.Account{}, nil
	}
	if err != nil {
		return core.Account{}, err
	}
	var acc core.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return core.Account{}, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	return acc, nil
}

// GetTip returns the current chain tip, or (ChainTip{}, ErrNotFound) for a
// fresh store.
func (cs *ChainStore) GetTip() (core.ChainTip, error) {
	data, err := cs.db.Get([]byte(keyMetaTip))
	if err != nil {
		return core.ChainTip{}, err
	}
	var tip core.ChainTip
	if err := json.Unmarshal(data, &tip); err != nil {
		return core.ChainTip{}, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	return tip, nil
}

// GetGenesisHash returns the hash of the genesis block, once recorded.
func (cs *ChainStore) GetGenesisHash() (crypto.Hash, error) {
	data, err := cs.db.Get([]byte(keyMetaGenesisHash))
	if err != nil {
		return crypto.ZeroHash, err
	}
	return crypto.HashFromHex(string(data))
}

// CommitBlock atomically writes the block, its height index entry, every
// changed account, and the new tip in a single batch. Either all writes
// persist or none do. If genesis is true, meta/genesis_hash is also set to
// the block's hash.
func (cs *ChainStore) CommitBlock(block *core.Block, accountChanges map[crypto.Address]core.Account, tip core.ChainTip, genesis bool) error {
	blockData, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodec, err)
	}
	tipData, err := json.Marshal(tip)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodec, err)
	}

	batch := cs.db.NewBatch()
	hash := block.Hash()
	batch.Set(blockKey(hash), blockData)
	batch.Set(heightKey(block.Header.BlockNumber), []byte(hash.Hex()))
	for addr, acc := range accountChanges {
		accData, err := json.Marshal(acc)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCodec, err)
		}
		batch.Set(accountKey(addr), accData)
	}
	batch.Set([]byte(keyMetaTip), tipData)
	if genesis {
		batch.Set([]byte(keyMetaGenesisHash), []byte(hash.Hex()))
	}

	if err := batch.Write(); err != nil {
		return fmt.Errorf("commit block %s: %w", hash.Hex(), err)
	}
	return nil
}
