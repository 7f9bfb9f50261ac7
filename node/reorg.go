package node

import (
	"fmt"

	"github.com/meridianchain/meridian/consensus"
	"github.com/meridianchain/meridian/core"
	"github.com/meridianchain/meridian/crypto"
	"github.com/meridianchain/meridian/events"
	"github.com/meridianchain/meridian/state"
)

// reorgToLocked replaces the canonical chain with the branch ending at
// newTipHash. It walks newTipHash's ancestry back to the common ancestor
// with the current canonical chain, rejects the reorg if that requires
// unwinding more than n.reorgDepth committed blocks (spec §4.6), and
// otherwise replays state from the genesis allocation through the new
// branch, committing each block in order. Must be called with n.mu held.
func (n *Node) reorgToLocked(newTipHash crypto.Hash) error {
	branch, ancestorHeight, err := n.collectBranchLocked(newTipHash)
	if err != nil {
		return err
	}

	depth := int64(n.tip.Height) - int64(ancestorHeight)
	if depth > int64(n.reorgDepth) {
		return fmt.Errorf("%w: unwinding %d blocks exceeds bound %d", consensus.ErrReorgTooDeep, depth, n.reorgDepth)
	}

	view, err := n.replayLocked(ancestorHeight)
	if err != nil {
		return fmt.Errorf("replay common ancestor: %w", err)
	}

	var lastTip core.ChainTip
	for _, block := range branch {
		changes, err := state.ApplyBlock(view, block)
		if err != nil {
			return fmt.Errorf("reorg: replay block %d (%s): %w", block.Header.BlockNumber, block.Hash().Hex(), err)
		}
		lastTip = core.ChainTip{Hash: block.Hash(), Height: block.Header.BlockNumber}
		if err := n.store.CommitBlock(block, changes, lastTip, false); err != nil {
			panic(fmt.Sprintf("node: reorg commit block %s: %v", block.Hash().Hex(), err))
		}
		view.Reset()
		n.removeMempoolTxsLocked(block)
		n.emitTxExecutedLocked(block)
	}

	oldTip := n.tip
	n.tip = lastTip
	n.view = view
	n.branchHeads[lastTip.Hash] = lastTip.Height
	n.emitter.Emit(events.Event{
		Type:        events.EventReorg,
		BlockHeight: lastTip.Height,
		Data: map[string]any{
			"from": oldTip.Hash.Hex(),
			"to":   lastTip.Hash.Hex(),
			"depth": depth,
		},
	})
	return nil
}

// collectBranchLocked walks newTipHash's parent chain back to the first
// block that is already canonical (its hash matches the height index),
// returning the branch's blocks in forward (ancestor-first) order and the
// common ancestor's height.
func (n *Node) collectBranchLocked(newTipHash crypto.Hash) ([]*core.Block, uint64, error) {
	var branch []*core.Block
	cursor := newTipHash
	for {
		block, err := n.store.GetBlock(cursor)
		if err != nil {
			return nil, 0, fmt.Errorf("load branch block %s: %w", cursor.Hex(), err)
		}
		if canonicalHash, err := n.store.GetHeaderByHeight(block.Header.BlockNumber); err == nil && canonicalHash == cursor {
			return branch, block.Header.BlockNumber, nil
		}
		branch = append([]*core.Block{block}, branch...)
		if block.Header.BlockNumber == 0 {
			return branch[1:], 0, nil // genesis is always canonical; never replay it as a branch block
		}
		cursor = block.Header.ParentHash
	}
}

// replayLocked rebuilds a state.View by applying every canonical block
// from genesis through ancestorHeight, starting from the genesis
// allocation. Used to recompute the pre-branch state before replaying a
// winning fork on top of it.
func (n *Node) replayLocked(ancestorHeight uint64) (*state.View, error) {
	view := state.NewView(n.store)
	view.SeedAccounts(n.genesisAccounts)
	for h := uint64(1); h <= ancestorHeight; h++ {
		block, err := n.store.GetBlockByHeight(h)
		if err != nil {
			return nil, fmt.Errorf("load canonical block %d: %w", h, err)
		}
		if _, err := state.ApplyBlock(view, block); err != nil {
			return nil, fmt.Errorf("replay canonical block %d: %w", h, err)
		}
	}
	return view, nil
}
