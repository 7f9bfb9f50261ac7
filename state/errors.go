package state

import "fmt"

// NonceMismatchError is returned when a transaction's nonce does not equal
// the sender's current on-state nonce.
type NonceMismatchError struct {
	Expected uint64
	Actual   uint64
}

func (e *NonceMismatchError) Error() string {
	return fmt.Sprintf("state: nonce mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// InsufficientBalanceError is returned when a debit would overdraw the
// sender's balance.
type InsufficientBalanceError struct {
	Required  uint64
	Available uint64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("state: insufficient balance: required %d, available %d", e.Required, e.Available)
}
