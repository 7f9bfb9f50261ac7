package node

import (
	"fmt"
	"log"
	"time"

	"github.com/meridianchain/meridian/consensus"
	"github.com/meridianchain/meridian/core"
	"github.com/meridianchain/meridian/crypto"
	"github.com/meridianchain/meridian/events"
	"github.com/meridianchain/meridian/state"
	"github.com/meridianchain/meridian/storage"
)

// processReceivedBlock runs a block through the full pipeline described in
// spec §4.8: Unknown -> Queued -> Validating -> Applied -> Committed, or
// Orphan (parent missing, buffered for later) or Rejected (consensus
// check failed). accepted reports whether the block should be re-gossiped
// to other peers: true once it is durably stored on some known branch,
// even if that branch isn't (yet) canonical; false for orphans and
// already-known duplicates, which are deliberately not re-propagated.
func (n *Node) processReceivedBlock(block *core.Block) (accepted bool, err error) {
	hash := block.Hash()

	if _, err := n.store.GetBlock(hash); err == nil {
		return false, nil // already known; quietly deduplicated
	}

	parent, err := n.store.GetBlock(block.Header.ParentHash)
	if err == storage.ErrNotFound {
		n.bufferOrphan(block)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load parent: %w", err)
	}

	if err := n.engine.AcceptBlock(&parent.Header, block, time.Now()); err != nil {
		return false, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	return n.admitValidatedBlockLocked(block)
}

// admitValidatedBlockLocked applies a structurally-accepted block to the
// chain. Blocks extending the current tip are applied and committed
// immediately; blocks extending a different known branch are stored and
// trigger a fork-choice re-evaluation, which may unwind and replay a
// reorg. Must be called with n.mu held.
func (n *Node) admitValidatedBlockLocked(block *core.Block) (bool, error) {
	hash := block.Hash()

	if block.Header.ParentHash == n.tip.Hash {
		accountChanges, err := state.ApplyBlock(n.view, block)
		if err != nil {
			return false, fmt.Errorf("apply block: %w", err)
		}
		newTip := core.ChainTip{Hash: hash, Height: block.Header.BlockNumber}
		if err := n.store.CommitBlock(block, accountChanges, newTip, false); err != nil {
			// A storage I/O failure here is the exact invariant violation
			// spec §7 calls fatal: the batch either writes or doesn't, so
			// any error here means state and tip have diverged from what
			// the rest of the pipeline assumed.
			panic(fmt.Sprintf("node: commit block %s at height %d: %v", hash.Hex(), newTip.Height, err))
		}
		// The batch above is now durable, so the view's buffered writes for
		// it are redundant with storage: drop them so n.view, reused across
		// every block this node ever commits, stays bounded to one block's
		// worth of staged writes instead of accumulating forever.
		n.view.Reset()
		n.tip = newTip
		n.branchHeads[hash] = newTip.Height
		delete(n.branchHeads, block.Header.ParentHash)
		n.removeMempoolTxsLocked(block)
		n.emitTxExecutedLocked(block)
		n.requeueOrphansLocked(hash)
		n.emitter.Emit(events.Event{
			Type:        events.EventBlockCommit,
			BlockHeight: newTip.Height,
			Data:        map[string]any{"hash": hash.Hex()},
		})
		return true, nil
	}

	// Extends a branch other than the current tip: store it without
	// applying, then let fork choice decide whether it changes the
	// canonical head.
	if err := n.store.PutBlock(block); err != nil {
		return false, fmt.Errorf("store side-branch block: %w", err)
	}
	n.branchHeads[hash] = block.Header.BlockNumber
	delete(n.branchHeads, block.Header.ParentHash)

	best := n.chooseBestHeadLocked()
	if best.Hash == n.tip.Hash {
		return true, nil // stored; canonical chain unchanged
	}
	if err := n.reorgToLocked(best.Hash); err != nil {
		log.Printf("[node] reorg to %s rejected: %v", best.Hash.Hex(), err)
	}
	return true, nil
}

func (n *Node) chooseBestHeadLocked() core.ChainTip {
	candidates := make([]core.ChainTip, 0, len(n.branchHeads))
	for h, height := range n.branchHeads {
		candidates = append(candidates, core.ChainTip{Hash: h, Height: height})
	}
	return consensus.ChooseBestHead(candidates)
}

// emitTxExecutedLocked notifies subscribers of each transaction applied as
// part of block, after its effects are already part of the committed
// batch. Must be called with n.mu held.
func (n *Node) emitTxExecutedLocked(block *core.Block) {
	for i := range block.Transactions {
		n.emitter.Emit(events.Event{
			Type:        events.EventTxExecuted,
			TxID:        block.Transactions[i].ID().Hex(),
			BlockHeight: block.Header.BlockNumber,
		})
	}
}

func (n *Node) removeMempoolTxsLocked(block *core.Block) {
	ids := make([]crypto.Hash, len(block.Transactions))
	for i := range block.Transactions {
		ids[i] = block.Transactions[i].ID()
	}
	n.mempool.Remove(ids)
}

// bufferOrphan stores a block whose parent hasn't arrived yet, keyed by
// the missing parent hash, so it can be re-evaluated once that parent
// commits.
func (n *Node) bufferOrphan(block *core.Block) {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := block.Header.ParentHash
	existing, _ := n.orphans.Get(key)
	existing = append(existing, block)
	n.orphans.Add(key, existing)
	n.emitter.Emit(events.Event{
		Type:        events.EventOrphan,
		BlockHeight: block.Header.BlockNumber,
		Data:        map[string]any{"hash": block.Hash().Hex(), "missing_parent": key.Hex()},
	})
}

// requeueOrphansLocked re-processes every orphan waiting on parentHash,
// now that it has committed. Must be called with n.mu held; reentrant
// through admitValidatedBlockLocked rather than the public
// processReceivedBlock, since the lock is already held.
func (n *Node) requeueOrphansLocked(parentHash crypto.Hash) {
	waiting, ok := n.orphans.Get(parentHash)
	if !ok {
		return
	}
	n.orphans.Remove(parentHash)
	for _, orphan := range waiting {
		if err := n.engine.AcceptBlock(&mustParentHeader(n, parentHash).Header, orphan, time.Now()); err != nil {
			log.Printf("[node] orphan block %s rejected after parent arrived: %v", orphan.Hash().Hex(), err)
			continue
		}
		if _, err := n.admitValidatedBlockLocked(orphan); err != nil {
			log.Printf("[node] orphan block %s failed to apply: %v", orphan.Hash().Hex(), err)
		}
	}
}

func mustParentHeader(n *Node, hash crypto.Hash) *core.Block {
	b, err := n.store.GetBlock(hash)
	if err != nil {
		panic(fmt.Sprintf("node: orphan parent %s vanished from storage: %v", hash.Hex(), err))
	}
	return b
}
