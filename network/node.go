package network

import (
	"crypto/sha256"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/multiformats/go-multiaddr"

	"github.com/meridianchain/meridian/crypto"
)

// DefaultMaxPeers is the default limit on simultaneous peer connections.
const DefaultMaxPeers = 50

// seenCacheSize bounds the LRU of recently observed gossip message hashes
// used to suppress re-propagation and duplicate upward delivery.
const seenCacheSize = 4096

// incomingBacklog bounds the channel C8 drains incoming messages from.
// Gossip messages are dropped when it is full; direct sync responses are
// never dropped (delivery waits for room until the node stops instead).
const incomingBacklog = 256

// Envelope pairs a received message with the peer it arrived from, the
// pull-interface shape the orchestrator (C8) drains.
type Envelope struct {
	PeerID string
	Msg    Message
}

// Node listens for incoming peers, manages outgoing connections, gossips
// tx/block messages with duplicate suppression, and exposes received
// messages to the orchestrator through a bounded channel.
type Node struct {
	peerID     crypto.Address
	listenAddr string
	tlsConfig  *tls.Config // nil → plain TCP
	maxPeers   int

	mu    sync.RWMutex
	peers map[string]*Peer

	seen *lru.Cache[crypto.Hash, struct{}]

	incoming chan Envelope

	listener net.Listener
	stopCh   chan struct{}
}

// NewNode creates a Node identified by peerID that will listen on
// listenAddr. If tlsCfg is non-nil the listener and outgoing connections
// require mutual TLS.
func NewNode(peerID crypto.Address, listenAddr string, tlsCfg *tls.Config) *Node {
	seen, err := lru.New[crypto.Hash, struct{}](seenCacheSize)
	if err != nil {
		panic(fmt.Sprintf("network: allocate seen-message cache: %v", err))
	}
	return &Node{
		peerID:     peerID,
		listenAddr: listenAddr,
		tlsConfig:  tlsCfg,
		maxPeers:   DefaultMaxPeers,
		peers:      make(map[string]*Peer),
		seen:       seen,
		incoming:   make(chan Envelope, incomingBacklog),
		stopCh:     make(chan struct{}),
	}
}

// Incoming returns the channel of received messages. The orchestrator's
// ingress loop reads from it; back-pressure on gossip messages is
// implemented by dropping the oldest enqueued message, never the channel
// itself.
func (n *Node) Incoming() <-chan Envelope {
	return n.incoming
}

// Start begins accepting connections.
func (n *Node) Start() error {
	var ln net.Listener
	var err error
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.listenAddr, err)
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

// Stop shuts down the node and closes every peer connection.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

// AddPeer dials addr, registers the peer under id, and sends it a hello
// carrying this node's peer identity.
func (n *Node) AddPeer(id, addr string) error {
	n.mu.RLock()
	count := len(n.peers)
	n.mu.RUnlock()
	if count >= n.maxPeers {
		return fmt.Errorf("network: max peers (%d) reached", n.maxPeers)
	}

	peer, err := Connect(id, addr, n.tlsConfig)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.peers[id] = peer
	n.mu.Unlock()
	go n.readLoop(peer)

	hello, err := json.Marshal(HelloPayload{PeerID: n.peerID})
	if err != nil {
		return fmt.Errorf("marshal hello: %w", err)
	}
	if err := peer.Send(Message{Type: MsgHello, Payload: hello}); err != nil {
		log.Printf("[network] send hello to %s: %v", id, err)
	}
	return nil
}

// AddBootstrapPeers dials every multiaddr in addrs, logging (not failing)
// on individual connection errors so a single unreachable seed does not
// block startup.
func (n *Node) AddBootstrapPeers(addrs []string) {
	for _, raw := range addrs {
		hostport, err := multiaddrToHostPort(raw)
		if err != nil {
			log.Printf("[network] bootstrap peer %q: %v", raw, err)
			continue
		}
		if err := n.AddPeer(hostport, hostport); err != nil {
			log.Printf("[network] bootstrap peer %s: %v", hostport, err)
		}
	}
}

// hostProtocols are tried in order to find the address component of a
// multiaddr; the first one present wins.
var hostProtocols = []int{
	multiaddr.P_IP4,
	multiaddr.P_IP6,
	multiaddr.P_DNS4,
	multiaddr.P_DNS6,
	multiaddr.P_DNS,
}

// multiaddrToHostPort resolves a /ip4|dns4|.../tcp/<port> multiaddr into a
// dialable "host:port" string.
func multiaddrToHostPort(raw string) (string, error) {
	ma, err := multiaddr.NewMultiaddr(raw)
	if err != nil {
		return "", fmt.Errorf("parse multiaddr: %w", err)
	}
	var host string
	for _, proto := range hostProtocols {
		if v, err := ma.ValueForProtocol(proto); err == nil {
			host = v
			break
		}
	}
	port, err := ma.ValueForProtocol(multiaddr.P_TCP)
	if err != nil {
		return "", fmt.Errorf("multiaddr %q missing tcp component", raw)
	}
	if host == "" {
		return "", fmt.Errorf("multiaddr %q missing ip/dns component", raw)
	}
	return net.JoinHostPort(host, port), nil
}

// Peer returns the connected peer with the given id, or nil if not found.
func (n *Node) Peer(id string) *Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[id]
}

// PeerIDs returns the identifiers of every currently connected peer.
func (n *Node) PeerIDs() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]string, 0, len(n.peers))
	for id := range n.peers {
		ids = append(ids, id)
	}
	return ids
}

// Broadcast gossips msg to every connected peer, best-effort: a send
// failure to one peer does not stop delivery to the rest.
func (n *Node) Broadcast(msg Message) {
	n.mu.RLock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()
	n.broadcastExcept(msg, peers, "")
}

func (n *Node) broadcastExcept(msg Message, peers []*Peer, exceptID string) {
	for _, p := range peers {
		if p.ID == exceptID {
			continue
		}
		if err := p.Send(msg); err != nil {
			log.Printf("[network] broadcast to %s: %v", p.ID, err)
		}
	}
}

// Rebroadcast floods msg to every peer except fromPeerID, the peer it was
// originally received from. Call only after the orchestrator has validated
// the message: the spec requires that a rejected tx/block is dropped and
// never re-gossiped.
func (n *Node) Rebroadcast(msg Message, fromPeerID string) {
	n.mu.RLock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()
	n.broadcastExcept(msg, peers, fromPeerID)
}

// SendDirect sends msg to exactly one peer. Used for sync request/response,
// which must not be dropped the way gossip may be.
func (n *Node) SendDirect(peerID string, msg Message) error {
	peer := n.Peer(peerID)
	if peer == nil {
		return fmt.Errorf("network: peer %s not connected", peerID)
	}
	return peer.Send(msg)
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				log.Printf("[network] accept error: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		n.mu.RLock()
		peerCount := len(n.peers)
		n.mu.RUnlock()
		if peerCount >= n.maxPeers {
			log.Printf("[network] max peers (%d) reached, rejecting %s", n.maxPeers, conn.RemoteAddr())
			conn.Close()
			continue
		}
		peer := NewPeer(conn.RemoteAddr().String(), conn.RemoteAddr().String(), conn)
		n.mu.Lock()
		n.peers[peer.ID] = peer
		n.mu.Unlock()
		go n.readLoop(peer)
	}
}

func (n *Node) readLoop(peer *Peer) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[network] readLoop panic from %s: %v", peer.ID, r)
		}
		peer.Close()
		n.mu.Lock()
		delete(n.peers, peer.ID)
		n.mu.Unlock()
	}()
	for {
		msg, err := peer.Receive()
		if err != nil {
			return
		}
		n.dispatch(peer, msg)
	}
}

// dispatch applies gossip dedup to Tx/Block messages (drop silently if
// already seen; otherwise mark seen and deliver upward for the
// orchestrator to validate) and delivers sync messages directly without
// dedup, since each sync exchange is peer-specific. Re-propagation of a
// gossip message to other peers is deliberately NOT done here: the spec
// requires that a rejected tx/block is dropped and never re-gossiped, so
// only the orchestrator, once it has validated the message, calls
// Rebroadcast to flood it onward.
func (n *Node) dispatch(peer *Peer, msg Message) {
	switch msg.Type {
	case MsgTx, MsgBlock:
		h := crypto.Hash(sha256.Sum256(msg.Payload))
		if _, hit := n.seen.Get(h); hit {
			return
		}
		n.seen.Add(h, struct{}{})
		n.deliver(Envelope{PeerID: peer.ID, Msg: msg}, false)

	case MsgSyncRequest, MsgSyncResponseBlocks, MsgSyncResponseNone:
		n.deliver(Envelope{PeerID: peer.ID, Msg: msg}, true)

	case MsgHello:
		// The sender's peer identity is not recorded; the peer stays keyed
		// by the id it was registered under. Nothing to deliver upward.

	default:
		log.Printf("[network] unknown message type %q from %s", msg.Type, peer.ID)
	}
}

// deliver enqueues env on the incoming channel. Gossip (mustDeliver=false)
// drops the oldest queued entry rather than blocking; direct sync messages
// (mustDeliver=true) block until there is room or the node is stopped.
func (n *Node) deliver(env Envelope, mustDeliver bool) {
	if !mustDeliver {
		select {
		case n.incoming <- env:
		default:
			select {
			case <-n.incoming:
			default:
			}
			select {
			case n.incoming <- env:
			default:
				log.Printf("[network] incoming channel full, dropped gossip message from %s", env.PeerID)
			}
		}
		return
	}
	select {
	case n.incoming <- env:
	case <-n.stopCh:
	}
}
