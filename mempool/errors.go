package mempool

import "errors"

// ErrAlreadyPresent is returned by Add when the transaction id is already
// pending.
var ErrAlreadyPresent = errors.New("mempool: transaction already present")

// ErrPoolFull is returned by Add when the pool is at its configured
// capacity.
var ErrPoolFull = errors.New("mempool: pool full")

// ErrInvalidTransaction wraps a stateful or signature validation failure
// encountered during Add.
var ErrInvalidTransaction = errors.New("mempool: invalid transaction")
