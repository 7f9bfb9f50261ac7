// Package node wires every other package into a runnable chain node: it
// owns the single writer onto storage, state, and mempool (spec §5's
// writer discipline), drives bootstrap/sync/ingress/production/reorg, and
// implements the received-block state machine from spec §4.8. The teacher
// has no equivalent type — cmd/node/main.go there inlines the wiring
// inline in main() — so this package promotes that wiring into a
// reusable, testable type, following the *order* of the teacher's main()
// (open storage, load or recover genesis, events, mempool, consensus,
// TLS, network, seed peers/sync, rpc, production loop, signal shutdown).
package node

import (
	"fmt"
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/meridianchain/meridian/config"
	"github.com/meridianchain/meridian/consensus"
	"github.com/meridianchain/meridian/core"
	"github.com/meridianchain/meridian/crypto"
	"github.com/meridianchain/meridian/events"
	"github.com/meridianchain/meridian/mempool"
	"github.com/meridianchain/meridian/network"
	"github.com/meridianchain/meridian/state"
	"github.com/meridianchain/meridian/storage"
)

// DefaultReorgDepth bounds how many committed blocks a reorg may unwind
// before it is rejected as ErrReorgTooDeep (spec §4.6's "minimal-but-
// correct" bounded-reorg strategy).
const DefaultReorgDepth = 64

// orphanCacheSize bounds the number of distinct missing-parent hashes the
// orphan buffer tracks at once.
const orphanCacheSize = 256

// syncTimeout is how long a SyncRequest waits for a response before the
// driver moves on to another peer (spec §5, default 10s).
const syncTimeout = 10 * time.Second

// Node owns Storage, State, Mempool, Consensus, and Network, and runs the
// orchestration responsibilities of spec §4.8. All mutations to storage,
// state, and the chain tip are serialized through its single writer.
type Node struct {
	cfg     *config.Config
	store   *storage.ChainStore
	mempool *mempool.Mempool
	engine  *consensus.Engine
	net     *network.Node
	emitter *events.Emitter

	validatorKey  crypto.PrivateKey // nil when this node does not propose
	validatorAddr crypto.Address
	isValidator   bool

	genesisAccounts map[crypto.Address]core.Account
	reorgDepth      uint64

	// mu is the single-writer lock: every mutation of tip, view, or
	// branchHeads happens while holding it.
	mu          sync.Mutex
	tip         core.ChainTip
	view        *state.View
	branchHeads map[crypto.Hash]uint64

	orphans *lru.Cache[crypto.Hash, []*core.Block]

	pendingMu   sync.Mutex
	pendingSync map[string]chan network.Message

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Deps bundles the already-constructed collaborators Bootstrap wires
// together. Keeping this a plain struct (rather than a long parameter
// list) mirrors how the teacher's main() assembles each component before
// handing it to the next.
type Deps struct {
	Config       *config.Config
	Genesis      *config.Genesis
	Store        *storage.ChainStore
	Mempool      *mempool.Mempool
	Engine       *consensus.Engine
	Net          *network.Node
	Emitter      *events.Emitter
	ValidatorKey crypto.PrivateKey // nil if this node does not propose blocks
}

// Bootstrap opens (or initializes) the chain: if the store has no
// recorded tip, it builds and commits the genesis block from deps.Genesis;
// otherwise it recovers the tip from storage. The validator schedule is
// the one carried by deps.Engine.
func Bootstrap(deps Deps) (*Node, error) {
	orphans, err := lru.New[crypto.Hash, []*core.Block](orphanCacheSize)
	if err != nil {
		return nil, fmt.Errorf("node: allocate orphan cache: %w", err)
	}

	n := &Node{
		cfg:         deps.Config,
		store:       deps.Store,
		mempool:     deps.Mempool,
		engine:      deps.Engine,
		net:         deps.Net,
		emitter:     deps.Emitter,
		reorgDepth:  DefaultReorgDepth,
		branchHeads: make(map[crypto.Hash]uint64),
		orphans:     orphans,
		pendingSync: make(map[string]chan network.Message),
		stopCh:      make(chan struct{}),
	}
	if deps.ValidatorKey != nil {
		n.validatorKey = deps.ValidatorKey
		n.validatorAddr = deps.ValidatorKey.Public().Address()
		n.isValidator = true
	}

	genesisAccounts, err := deps.Genesis.InitialAccounts()
	if err != nil {
		return nil, fmt.Errorf("node: genesis accounts: %w", err)
	}
	n.genesisAccounts = genesisAccounts

	tip, err := n.store.GetTip()
	if err == storage.ErrNotFound {
		if err := n.commitGenesis(deps.Genesis, genesisAccounts); err != nil {
			return nil, fmt.Errorf("node: commit genesis: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("node: recover tip: %w", err)
	} else {
		n.tip = tip
		n.view = state.NewView(n.store)
		log.Printf("[node] recovered tip at height %d (%s)", tip.Height, tip.Hash.Hex())
	}

	n.branchHeads[n.tip.Hash] = n.tip.Height
	n.emitter.Subscribe(events.EventBlockCommit, n.onBlockCommit)
	return n, nil
}

// onBlockCommit is a logging-only subscriber. The orphan-requeue side
// effect of a commit is handled synchronously inside admitValidatedBlockLocked
// (via requeueOrphansLocked) rather than through this subscription, since
// Emit runs handlers while n.mu is still held and re-entering the lock here
// would deadlock.
func (n *Node) onBlockCommit(ev events.Event) {
	log.Printf("[node] event: block_commit height=%d data=%v", ev.BlockHeight, ev.Data)
}

func (n *Node) commitGenesis(g *config.Genesis, accounts map[crypto.Address]core.Account) error {
	block, err := config.GenesisBlock(g)
	if err != nil {
		return err
	}
	tip := core.ChainTip{Hash: block.Hash(), Height: 0}
	if err := n.store.CommitBlock(block, accounts, tip, true); err != nil {
		return err
	}
	n.tip = tip
	n.view = state.NewView(n.store)
	log.Printf("[node] genesis block committed: %s", block.Hash().Hex())
	return nil
}

// Tip returns the current chain tip.
func (n *Node) Tip() core.ChainTip {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tip
}

// View returns a reader over the current committed state, safe to share
// with read-only callers (RPC) since its writes are only ever applied
// under n.mu.
func (n *Node) View() *state.View {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.view
}

// Mempool exposes the node's mempool, e.g. for RPC transaction submission.
func (n *Node) Mempool() *mempool.Mempool {
	return n.mempool
}

// SubmitTransaction admits tx locally (the same state-aware check a
// peer-gossiped transaction goes through) and, on success, floods it to
// every connected peer. Used by the RPC surface's submit_transaction.
func (n *Node) SubmitTransaction(tx *core.Transaction) error {
	if n.mempool.Contains(tx.ID()) {
		return nil
	}
	if err := n.mempool.Add(n.View(), tx); err != nil {
		return err
	}
	msg, err := network.NewTxMessage(tx)
	if err != nil {
		return fmt.Errorf("node: encode tx for broadcast: %w", err)
	}
	n.net.Broadcast(msg)
	return nil
}

// Run starts the ingress, production, and sync loops and blocks until
// Shutdown is called.
func (n *Node) Run() {
	n.wg.Add(1)
	go n.ingressLoop()

	if n.isValidator {
		n.wg.Add(1)
		go n.productionLoop()
	}

	n.wg.Add(1)
	go n.syncLoop()

	<-n.stopCh
	n.wg.Wait()
}

// Shutdown stops accepting new work, waits for any in-flight commit to
// finish, and returns once every loop has exited. It does not close
// storage or the network listener; callers own those and close them after
// Shutdown returns.
func (n *Node) Shutdown() {
	close(n.stopCh)
	n.wg.Wait()
}
