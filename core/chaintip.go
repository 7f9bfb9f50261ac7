package core

import "github.com/meridianchain/meridian/crypto"

// ChainTip identifies the head of the locally adopted chain.
type ChainTip struct {
	Hash   crypto.Hash `json:"hash"`
	Height uint64      `json:"height"`
}
