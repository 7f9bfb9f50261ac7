// Package consensus implements round-robin proposer selection and block
// acceptance/fork-choice rules for the proof-of-authority chain,
// generalizing the teacher's consensus/poa.go engine: the same
// sign-validate-commit shape, now split into a pure Engine (acceptance
// rules + proposer schedule) with orchestration and storage left to the
// node package so a single writer owns every mutation.
package consensus

import (
	"fmt"
	"time"

	"github.com/meridianchain/meridian/core"
	"github.com/meridianchain/meridian/crypto"
)

// MaxClockSkew bounds how far into the future a block's timestamp may sit
// relative to the local clock before it is rejected.
const MaxClockSkew = 30 * time.Second

// BlockInterval is the default tick interval for the production loop.
const BlockInterval = 3 * time.Second

// ProductionInfo describes the next block this node is expected to
// propose.
type ProductionInfo struct {
	ParentHash crypto.Hash
	Height     uint64
	Timestamp  uint64
}

// Engine holds the fixed validator schedule and the acceptance rules
// applied to every incoming or self-produced block.
type Engine struct {
	schedule *Schedule
}

// New creates an Engine over the given validator schedule.
func New(schedule *Schedule) *Engine {
	return &Engine{schedule: schedule}
}

// Schedule returns the engine's validator schedule.
func (e *Engine) Schedule() *Schedule {
	return e.schedule
}

// AcceptBlock runs every block-acceptance check from the spec against
// block, given its parent header. It does not perform stateful
// transaction validation; callers run that separately via the state
// package during apply. now is the local wall clock used for the
// clock-skew check.
func (e *Engine) AcceptBlock(parent *core.BlockHeader, block *core.Block, now time.Time) error {
	h := &block.Header

	if h.BlockNumber != parent.BlockNumber+1 {
		return fmt.Errorf("%w: height %d does not follow parent %d", ErrBadParent, h.BlockNumber, parent.BlockNumber)
	}
	if h.ParentHash != parent.Hash() {
		return fmt.Errorf("%w: parent hash mismatch", ErrBadParent)
	}
	if h.Timestamp < parent.Timestamp {
		return fmt.Errorf("%w: timestamp %d precedes parent %d", ErrBadTimestamp, h.Timestamp, parent.Timestamp)
	}
	nowUnix := uint64(now.Unix())
	if h.Timestamp > nowUnix+uint64(MaxClockSkew.Seconds()) {
		return fmt.Errorf("%w: timestamp %d exceeds clock skew allowance", ErrBadTimestamp, h.Timestamp)
	}

	expected := e.schedule.ExpectedProposer(h.BlockNumber)
	if h.Validator != expected {
		return fmt.Errorf("%w: got %s want %s", ErrInvalidProposer, h.Validator.Hex(), expected.Hex())
	}

	if !block.VerifySignature(h.Validator.PublicKey()) {
		return ErrInvalidSignature
	}

	if err := block.VerifyIntegrity(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadTxRoot, err)
	}

	return nil
}

// ShouldPropose reports whether this node, identified by self, is the
// expected proposer for the block that follows tip, and enough time has
// elapsed since tip's timestamp to satisfy interval. now is the current
// wall clock.
func (e *Engine) ShouldPropose(self crypto.Address, tip *core.BlockHeader, interval time.Duration, now time.Time) (ProductionInfo, bool) {
	nextHeight := tip.BlockNumber + 1
	if e.schedule.ExpectedProposer(nextHeight) != self {
		return ProductionInfo{}, false
	}
	elapsed := now.Unix() - int64(tip.Timestamp)
	if elapsed < int64(interval.Seconds()) {
		return ProductionInfo{}, false
	}
	return ProductionInfo{
		ParentHash: tip.Hash(),
		Height:     nextHeight,
		Timestamp:  uint64(now.Unix()),
	}, true
}
