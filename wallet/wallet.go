// Package wallet provides key management and transaction-signing helpers
// shared by the validator key loader and any external wallet tooling that
// talks to this node over RPC.
package wallet

import (
	"github.com/meridianchain/meridian/core"
	"github.com/meridianchain/meridian/crypto"
)

// Wallet holds a key pair and builds signed transactions from it. The same
// shape is used for a validator's signing key and a peer's transport
// identity key — they are deliberately distinct key pairs (spec §4.7).
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the wallet's ed25519 public key.
func (w *Wallet) PubKey() crypto.PublicKey {
	return w.pub
}

// Address returns the account address: the raw public key bytes.
func (w *Wallet) Address() crypto.Address {
	return w.pub.Address()
}

// Transfer builds and signs a value-transfer transaction from this wallet
// to recipient. nonce must match the sender's current on-state nonce.
func (w *Wallet) Transfer(recipient crypto.Address, amount, nonce uint64) *core.Transaction {
	tx := core.NewTransaction(w.Address(), recipient, amount, nonce)
	tx.Sign(w.priv)
	return tx
}
