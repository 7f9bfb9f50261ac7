package node

import (
	"encoding/json"
	"log"

	"github.com/meridianchain/meridian/core"
	"github.com/meridianchain/meridian/network"
)

// ingressLoop dispatches every message the network layer delivers: tx and
// block gossip go through validation before admission/application; sync
// responses are routed to whichever in-flight request is waiting for them.
func (n *Node) ingressLoop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.stopCh:
			return
		case env, ok := <-n.net.Incoming():
			if !ok {
				return
			}
			n.handleEnvelope(env)
		}
	}
}

func (n *Node) handleEnvelope(env network.Envelope) {
	switch env.Msg.Type {
	case network.MsgTx:
		n.handleIncomingTx(env)
	case network.MsgBlock:
		n.handleIncomingBlock(env)
	case network.MsgSyncRequest:
		n.handleSyncRequest(env)
	case network.MsgSyncResponseBlocks, network.MsgSyncResponseNone:
		n.routeSyncResponse(env)
	default:
		log.Printf("[node] ingress: unhandled message type %q from %s", env.Msg.Type, env.PeerID)
	}
}

func (n *Node) handleIncomingTx(env network.Envelope) {
	var tx core.Transaction
	if err := json.Unmarshal(env.Msg.Payload, &tx); err != nil {
		log.Printf("[node] ingress: decode tx from %s: %v", env.PeerID, err)
		return
	}
	if n.mempool.Contains(tx.ID()) {
		return
	}
	view := n.View()
	if err := n.mempool.Add(view, &tx); err != nil {
		log.Printf("[node] ingress: reject tx %s from %s: %v", tx.ID().Hex(), env.PeerID, err)
		return
	}
	n.net.Rebroadcast(env.Msg, env.PeerID)
}

func (n *Node) handleIncomingBlock(env network.Envelope) {
	var block core.Block
	if err := json.Unmarshal(env.Msg.Payload, &block); err != nil {
		log.Printf("[node] ingress: decode block from %s: %v", env.PeerID, err)
		return
	}
	accepted, err := n.processReceivedBlock(&block)
	if err != nil {
		log.Printf("[node] ingress: reject block %s from %s: %v", block.Hash().Hex(), env.PeerID, err)
		return
	}
	if accepted {
		n.net.Rebroadcast(env.Msg, env.PeerID)
	}
}
