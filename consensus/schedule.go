package consensus

import "github.com/meridianchain/meridian/crypto"

// Schedule is the fixed, genesis-ordered validator set used to derive the
// round-robin proposer for every height.
type Schedule struct {
	validators []crypto.Address
}

// NewSchedule builds a Schedule from the genesis validator list. The order
// is significant: it is fixed for the lifetime of the chain.
func NewSchedule(validators []crypto.Address) *Schedule {
	cp := make([]crypto.Address, len(validators))
	copy(cp, validators)
	return &Schedule{validators: cp}
}

// Len returns the number of validators in the set.
func (s *Schedule) Len() int {
	return len(s.validators)
}

// ExpectedProposer returns the validator responsible for proposing the
// block at height. Height 0 (genesis) has no proposer in this scheme; call
// only for height >= 1.
func (s *Schedule) ExpectedProposer(height uint64) crypto.Address {
	return s.validators[height%uint64(len(s.validators))]
}

// IsValidator reports whether addr appears in the validator set.
func (s *Schedule) IsValidator(addr crypto.Address) bool {
	for _, v := range s.validators {
		if v == addr {
			return true
		}
	}
	return false
}
