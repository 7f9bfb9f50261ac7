package state

import (
	"fmt"

	"github.com/meridianchain/meridian/core"
	"github.com/meridianchain/meridian/crypto"
)

// ValidateTx checks stateful validity of tx against s: signature, nonce
// contiguity, and sufficient balance. Self-transfers are permitted and
// still consume a nonce.
func ValidateTx(s Reader, tx *core.Transaction) error {
	if err := tx.Verify(); err != nil {
		return err
	}
	acc, err := s.GetAccount(tx.Sender)
	if err != nil {
		return err
	}
	if tx.Nonce != acc.Nonce {
		return &NonceMismatchError{Expected: acc.Nonce, Actual: tx.Nonce}
	}
	if acc.Balance < tx.Amount {
		return &InsufficientBalanceError{Required: tx.Amount, Available: acc.Balance}
	}
	return nil
}

// ApplyTx validates tx against s and, if valid, applies its effects: debit
// sender, increment sender nonce, credit recipient. Self-transfers
// (sender == recipient) are a no-op of value but still bump the nonce.
func ApplyTx(s Writer, tx *core.Transaction) error {
	if err := ValidateTx(s, tx); err != nil {
		return err
	}
	if err := s.Debit(tx.Sender, tx.Amount); err != nil {
		return err
	}
	if err := s.IncrementNonce(tx.Sender); err != nil {
		return err
	}
	if err := s.Credit(tx.Recipient, tx.Amount); err != nil {
		return err
	}
	return nil
}

// ApplyBlock applies every transaction in block sequentially against view,
// with a single snapshot taken before the first transaction so that any
// failure aborts the whole block and leaves view unchanged. On success it
// returns the full set of accounts touched, ready for ChainStore.CommitBlock.
func ApplyBlock(view *View, block *core.Block) (map[crypto.Address]core.Account, error) {
	snap := view.Snapshot()
	for i := range block.Transactions {
		if err := ApplyTx(view, &block.Transactions[i]); err != nil {
			if rerr := view.RevertToSnapshot(snap); rerr != nil {
				return nil, fmt.Errorf("apply block: revert after tx %d failed: %w (original error: %v)", i, rerr, err)
			}
			return nil, fmt.Errorf("apply block: tx %d: %w", i, err)
		}
	}
	view.DiscardSnapshot(snap)
	return view.Dirty(), nil
}
