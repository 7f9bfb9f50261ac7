package core

import (
	"errors"

	"github.com/meridianchain/meridian/crypto"
)

// ErrInvalidSignature is returned when a signature fails verification.
var ErrInvalidSignature = errors.New("core: invalid signature")

// ErrBadTxRoot is returned when a block's declared tx root does not match
// the Merkle root of its transactions.
var ErrBadTxRoot = errors.New("core: tx_root mismatch")

// BlockHeader contains the block metadata that is hashed and signed.
// ParentHash is the all-zero hash for genesis. Signature covers every
// other field.
type BlockHeader struct {
	ParentHash  crypto.Hash      `json:"parent_hash"`
	BlockNumber uint64           `json:"block_number"`
	Timestamp   uint64           `json:"timestamp"`
	TxRoot      crypto.Hash      `json:"tx_root"`
	Validator   crypto.Address   `json:"validator"`
	Signature   crypto.Signature `json:"signature"`
}

// signingBytes returns the canonical encoding of the header fields covered
// by the signature, in declaration order, excluding Signature itself.
func (h *BlockHeader) signingBytes() []byte {
	return crypto.NewEncoder().
		Hash(h.ParentHash).
		Uint64(h.BlockNumber).
		Uint64(h.Timestamp).
		Hash(h.TxRoot).
		Address(h.Validator).
		Encoded()
}

// Hash returns the header's canonical hash, which is also the block hash.
func (h *BlockHeader) Hash() crypto.Hash {
	return crypto.HashBytes(h.signingBytes())
}

// Block is a signed header plus its ordered list of transactions.
type Block struct {
	Header       BlockHeader   `json:"header"`
	Transactions []Transaction `json:"transactions"`
}

// Hash returns the block hash: its header hash.
func (b *Block) Hash() crypto.Hash {
	return b.Header.Hash()
}

// ComputeTxRoot returns the Merkle root of the transactions' identifiers.
func ComputeTxRoot(txs []Transaction) crypto.Hash {
	ids := make([]crypto.Hash, len(txs))
	for i := range txs {
		ids[i] = txs[i].Hash()
	}
	return crypto.MerkleRoot(ids)
}

// Sign sets the header's tx root from the current transaction list and
// signs the header hash with the proposer's private key. The caller is
// expected to have set Header.Validator to priv's public key beforehand.
func (b *Block) Sign(priv crypto.PrivateKey) {
	b.Header.TxRoot = ComputeTxRoot(b.Transactions)
	b.Header.Signature = crypto.Sign(priv, b.Header.Hash().Bytes())
}

// VerifySignature checks the header signature against pub.
func (b *Block) VerifySignature(pub crypto.PublicKey) bool {
	return crypto.Verify(pub, b.Header.Hash().Bytes(), b.Header.Signature)
}

// VerifyIntegrity checks that the declared tx root matches the Merkle root
// of the actual transaction list, independent of proposer authenticity.
func (b *Block) VerifyIntegrity() error {
	if got, want := b.Header.TxRoot, ComputeTxRoot(b.Transactions); got != want {
		return ErrBadTxRoot
	}
	return nil
}

// NewBlock creates an unsigned block with TxRoot computed from txs. Sign
// recomputes TxRoot from the block's current transactions.
func NewBlock(parentHash crypto.Hash, number uint64, timestamp uint64, validator crypto.Address, txs []Transaction) *Block {
	return &Block{
		Header: BlockHeader{
			ParentHash:  parentHash,
			BlockNumber: number,
			Timestamp:   timestamp,
			TxRoot:      ComputeTxRoot(txs),
			Validator:   validator,
		},
		Transactions: txs,
	}
}
