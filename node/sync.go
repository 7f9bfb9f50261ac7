package node

import (
	"encoding/json"
	"log"
	"time"

	"github.com/meridianchain/meridian/core"
	"github.com/meridianchain/meridian/network"
	"github.com/meridianchain/meridian/storage"
)

// syncBatchSize bounds how many blocks a single SyncResponseBlocks reply
// carries, so a long catch-up doesn't buffer an unbounded batch in memory.
const syncBatchSize = 256

// syncRecheckInterval is how often syncLoop re-probes a connected peer for
// blocks past the local tip, beyond the initial catch-up on startup.
const syncRecheckInterval = 30 * time.Second

// syncLoop performs the startup catch-up sync (spec §4.8 step 2: a node
// that rejoins the network pulls any blocks it missed) and then
// periodically re-checks peers in case gossip delivery was lost. It runs
// alongside the ingress and production loops; neither waits for the
// catch-up to finish.
func (n *Node) syncLoop() {
	defer n.wg.Done()

	n.catchUp()

	ticker := time.NewTicker(syncRecheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.catchUp()
		}
	}
}

// catchUp requests blocks past the local tip from each connected peer in
// turn, applying every block it receives through the normal validation
// pipeline, until a peer reports it has nothing further or every peer has
// been tried without progress.
func (n *Node) catchUp() {
	for _, peerID := range n.net.PeerIDs() {
		for {
			advanced, err := n.syncOnceWithPeer(peerID)
			if err != nil {
				log.Printf("[node] sync with %s: %v", peerID, err)
				break
			}
			if !advanced {
				break
			}
		}
	}
}

// syncOnceWithPeer sends one SyncRequest to peerID starting from the
// node's current tip height + 1, waits for a response, and applies any
// returned blocks. It reports whether the chain advanced, so the caller
// can decide whether to ask the same peer again.
func (n *Node) syncOnceWithPeer(peerID string) (bool, error) {
	from := n.Tip().Height + 1

	respCh := make(chan network.Message, 1)
	n.pendingMu.Lock()
	n.pendingSync[peerID] = respCh
	n.pendingMu.Unlock()
	defer func() {
		n.pendingMu.Lock()
		delete(n.pendingSync, peerID)
		n.pendingMu.Unlock()
	}()

	req, err := network.NewSyncRequestMessage(network.SyncRequest{FromHeight: from})
	if err != nil {
		return false, err
	}
	if err := n.net.SendDirect(peerID, req); err != nil {
		return false, err
	}

	select {
	case msg := <-respCh:
		return n.handleSyncResponseMessage(msg)
	case <-time.After(syncTimeout):
		return false, nil
	case <-n.stopCh:
		return false, nil
	}
}

func (n *Node) handleSyncResponseMessage(msg network.Message) (bool, error) {
	switch msg.Type {
	case network.MsgSyncResponseNone:
		return false, nil
	case network.MsgSyncResponseBlocks:
		var resp network.SyncResponseBlocks
		if err := json.Unmarshal(msg.Payload, &resp); err != nil {
			return false, err
		}
		if len(resp.Blocks) == 0 {
			return false, nil
		}
		advanced := false
		for i := range resp.Blocks {
			block := resp.Blocks[i]
			accepted, err := n.processReceivedBlock(&block)
			if err != nil {
				return advanced, err
			}
			if accepted {
				advanced = true
			}
		}
		return advanced, nil
	default:
		return false, nil
	}
}

// handleSyncRequest serves a peer's request for blocks past req.FromHeight
// from local storage, replying with as many as fit in one batch or with
// SyncResponseNone once the local chain has nothing further.
func (n *Node) handleSyncRequest(env network.Envelope) {
	var req network.SyncRequest
	if err := json.Unmarshal(env.Msg.Payload, &req); err != nil {
		log.Printf("[node] sync request from %s: decode: %v", env.PeerID, err)
		return
	}

	tip := n.Tip()
	if req.FromHeight > tip.Height {
		n.replyNone(env.PeerID)
		return
	}

	batch := make([]core.Block, 0, syncBatchSize)
	for h := req.FromHeight; h <= tip.Height && len(batch) < syncBatchSize; h++ {
		block, err := n.store.GetBlockByHeight(h)
		if err != nil {
			if err == storage.ErrNotFound {
				break
			}
			log.Printf("[node] sync request from %s: load height %d: %v", env.PeerID, h, err)
			break
		}
		batch = append(batch, *block)
	}

	if len(batch) == 0 {
		n.replyNone(env.PeerID)
		return
	}
	msg, err := network.NewSyncResponseBlocksMessage(batch)
	if err != nil {
		log.Printf("[node] sync request from %s: encode response: %v", env.PeerID, err)
		return
	}
	if err := n.net.SendDirect(env.PeerID, msg); err != nil {
		log.Printf("[node] sync request from %s: send response: %v", env.PeerID, err)
	}
}

func (n *Node) replyNone(peerID string) {
	msg, err := network.NewSyncResponseNoneMessage()
	if err != nil {
		log.Printf("[node] sync request from %s: encode none response: %v", peerID, err)
		return
	}
	if err := n.net.SendDirect(peerID, msg); err != nil {
		log.Printf("[node] sync request from %s: send none response: %v", peerID, err)
	}
}

// routeSyncResponse delivers a sync response to whichever in-flight request
// on this peer is waiting for it. A response with no matching pending
// request (arrived after the requester already timed out) is dropped.
func (n *Node) routeSyncResponse(env network.Envelope) {
	n.pendingMu.Lock()
	ch, ok := n.pendingSync[env.PeerID]
	n.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- env.Msg:
	default:
	}
}
