// Package core holds the chain's data model: transactions, blocks, and
// accounts, plus the pure helpers (hashing, signing, tx-root) that operate
// on them without touching storage or state.
package core

import (
	"errors"

	"github.com/meridianchain/meridian/crypto"
)

// ErrMissingSignature is returned when Verify is called on a transaction
// that was never signed.
var ErrMissingSignature = errors.New("core: transaction has no signature")

// Transaction is the atomic unit of work on the chain: a value transfer
// from Sender to Recipient. Signature covers every other field.
type Transaction struct {
	Sender    crypto.Address   `json:"sender"`
	Recipient crypto.Address   `json:"recipient"`
	Amount    uint64           `json:"amount"`
	Nonce     uint64           `json:"nonce"`
	Signature crypto.Signature `json:"signature"`
}

// signingBytes returns the canonical encoding of the fields covered by the
// signature, in declaration order, excluding Signature itself.
func (tx *Transaction) signingBytes() []byte {
	return crypto.NewEncoder().
		Address(tx.Sender).
		Address(tx.Recipient).
		Uint64(tx.Amount).
		Uint64(tx.Nonce).
		Encoded()
}

// Hash returns the transaction's canonical hash (sans Signature). This is
// also the transaction identifier.
func (tx *Transaction) Hash() crypto.Hash {
	return crypto.HashBytes(tx.signingBytes())
}

// ID returns the transaction identifier: its canonical hash.
func (tx *Transaction) ID() crypto.Hash {
	return tx.Hash()
}

// EncodedSize approximates the transaction's wire size, used by the
// mempool to respect a byte budget when draining for block building.
func (tx *Transaction) EncodedSize() int {
	return len(tx.signingBytes()) + crypto.SignatureSize
}

// Sign computes the transaction hash and signs it with priv, setting
// Signature. The caller is expected to have set Sender to priv's public
// key beforehand.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	tx.Signature = crypto.Sign(priv, tx.Hash().Bytes())
}

// Verify checks the signature against Sender, treated as an ed25519
// public key.
func (tx *Transaction) Verify() error {
	if tx.Signature == (crypto.Signature{}) {
		return ErrMissingSignature
	}
	if !crypto.Verify(tx.Sender.PublicKey(), tx.Hash().Bytes(), tx.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// NewTransaction builds an unsigned transfer transaction.
func NewTransaction(sender, recipient crypto.Address, amount, nonce uint64) *Transaction {
	return &Transaction{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Nonce:     nonce,
	}
}
