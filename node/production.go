package node

import (
	"log"
	"time"

	"github.com/meridianchain/meridian/core"
	"github.com/meridianchain/meridian/network"
)

// productionLoop ticks every configured block interval and, if this node
// is the expected proposer for the next height, drains the mempool and
// produces a block (spec §4.6's "Production trigger" / §4.8 step 4).
func (n *Node) productionLoop() {
	defer n.wg.Done()
	interval := time.Duration(n.cfg.Consensus.BlockIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.maybeProduceBlock(interval)
		}
	}
}

func (n *Node) maybeProduceBlock(interval time.Duration) {
	n.mu.Lock()

	tipBlock, err := n.store.GetBlock(n.tip.Hash)
	if err != nil {
		n.mu.Unlock()
		log.Printf("[node] production: load tip block: %v", err)
		return
	}
	info, should := n.engine.ShouldPropose(n.validatorAddr, &tipBlock.Header, interval, time.Now())
	if !should {
		n.mu.Unlock()
		return
	}

	maxTxs := n.cfg.Consensus.MaxTxsPerBlock
	txPtrs, err := n.mempool.DrainForBlock(n.view, maxTxs, maxBlockBytes(maxTxs))
	if err != nil {
		n.mu.Unlock()
		log.Printf("[node] production: drain mempool: %v", err)
		return
	}
	txs := make([]core.Transaction, len(txPtrs))
	for i, tx := range txPtrs {
		txs[i] = *tx
	}

	block := core.NewBlock(info.ParentHash, info.Height, info.Timestamp, n.validatorAddr, txs)
	block.Sign(n.validatorKey)

	if err := n.engine.AcceptBlock(&tipBlock.Header, block, time.Now()); err != nil {
		n.mu.Unlock()
		log.Printf("[node] production: self-produced block failed acceptance: %v", err)
		return
	}
	_, err = n.admitValidatedBlockLocked(block)
	n.mu.Unlock()
	if err != nil {
		log.Printf("[node] production: apply self-produced block: %v", err)
		return
	}

	msg, err := network.NewBlockMessage(block)
	if err != nil {
		log.Printf("[node] production: encode block for broadcast: %v", err)
		return
	}
	n.net.Broadcast(msg)
	log.Printf("[node] produced block %d (%s) with %d tx", info.Height, block.Hash().Hex(), len(txs))
}

// maxBlockBytes returns a generous per-block byte budget derived from the
// configured transaction count, used by Mempool.DrainForBlock's byte cap.
func maxBlockBytes(maxTxs int) int {
	const avgTxBytes = 256
	if maxTxs <= 0 {
		maxTxs = 1
	}
	return maxTxs * avgTxBytes
}
