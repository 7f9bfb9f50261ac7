package network

import (
	"encoding/json"

	"github.com/meridianchain/meridian/core"
	"github.com/meridianchain/meridian/crypto"
)

// SyncRequest asks a peer for blocks starting at FromHeight on its
// canonical chain. ToHash is an optional field carried on the wire; the
// node's sync handler does not consult it, so a set ToHash does not bound
// the reply to a specific branch.
type SyncRequest struct {
	FromHeight uint64       `json:"from_height"`
	ToHash     *crypto.Hash `json:"to_hash,omitempty"`
}

// SyncResponseBlocks carries an ordered batch of blocks satisfying a
// SyncRequest.
type SyncResponseBlocks struct {
	Blocks []core.Block `json:"blocks"`
}

// SyncResponseNone is sent instead of an empty SyncResponseBlocks so the
// requester can distinguish "nothing left to send" from "zero-length
// batch, try again".
type SyncResponseNone struct{}

// NewSyncRequestMessage builds the wire envelope for req.
func NewSyncRequestMessage(req SyncRequest) (Message, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: MsgSyncRequest, Payload: data}, nil
}

// NewSyncResponseBlocksMessage builds the wire envelope for a batch of
// blocks.
func NewSyncResponseBlocksMessage(blocks []core.Block) (Message, error) {
	data, err := json.Marshal(SyncResponseBlocks{Blocks: blocks})
	if err != nil {
		return Message{}, err
	}
	return Message{Type: MsgSyncResponseBlocks, Payload: data}, nil
}

// NewSyncResponseNoneMessage builds the wire envelope signaling that the
// peer has no further blocks to offer.
func NewSyncResponseNoneMessage() (Message, error) {
	data, err := json.Marshal(SyncResponseNone{})
	if err != nil {
		return Message{}, err
	}
	return Message{Type: MsgSyncResponseNone, Payload: data}, nil
}

// NewTxMessage builds the wire envelope for a single gossiped transaction.
func NewTxMessage(tx *core.Transaction) (Message, error) {
	data, err := json.Marshal(tx)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: MsgTx, Payload: data}, nil
}

// NewBlockMessage builds the wire envelope for a single gossiped block.
func NewBlockMessage(block *core.Block) (Message, error) {
	data, err := json.Marshal(block)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: MsgBlock, Payload: data}, nil
}
