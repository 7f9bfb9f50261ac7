package consensus

import "errors"

// ErrInvalidProposer is returned when a block's validator does not match
// the expected round-robin proposer for that height.
var ErrInvalidProposer = errors.New("consensus: invalid proposer")

// ErrInvalidSignature is returned when a block's header signature fails
// verification against its declared proposer.
var ErrInvalidSignature = errors.New("consensus: invalid signature")

// ErrBadParent is returned when a block's height or parent hash does not
// follow the expected parent.
var ErrBadParent = errors.New("consensus: bad parent linkage")

// ErrBadTimestamp is returned when a block's timestamp precedes its
// parent's or exceeds the allowed clock-skew window into the future.
var ErrBadTimestamp = errors.New("consensus: bad timestamp")

// ErrBadTxRoot is returned when a block's declared tx root does not match
// the Merkle root of its transactions.
var ErrBadTxRoot = errors.New("consensus: bad tx root")

// ErrReorgTooDeep is returned when accepting a competing branch would
// require unwinding more committed blocks than the node's reorg depth
// bound allows.
var ErrReorgTooDeep = errors.New("consensus: reorg too deep")
