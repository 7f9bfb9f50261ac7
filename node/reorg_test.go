package node

import (
	"testing"

	"github.com/meridianchain/meridian/config"
	"github.com/meridianchain/meridian/consensus"
	"github.com/meridianchain/meridian/core"
	"github.com/meridianchain/meridian/crypto"
	"github.com/meridianchain/meridian/events"
	"github.com/meridianchain/meridian/internal/testutil"
	"github.com/meridianchain/meridian/mempool"
	"github.com/meridianchain/meridian/network"
	"github.com/meridianchain/meridian/storage"
	"github.com/meridianchain/meridian/wallet"
)

// newTestNode boots a node over in-memory storage without starting its
// network listener or background loops, so a test can drive
// processReceivedBlock directly and deterministically.
func newTestNode(t *testing.T, validator *wallet.Wallet, alloc map[crypto.Address]uint64) *Node {
	t.Helper()

	accounts := make([]config.GenesisAccount, 0, len(alloc))
	for addr, bal := range alloc {
		accounts = append(accounts, config.GenesisAccount{Address: addr.Hex(), Balance: bal})
	}
	genesis := &config.Genesis{
		Timestamp:  1,
		Validators: []string{validator.Address().Hex()},
		Accounts:   accounts,
	}

	store := storage.NewChainStore(testutil.NewMemDB())
	n, err := Bootstrap(Deps{
		Config:       config.DefaultConfig(),
		Genesis:      genesis,
		Store:        store,
		Mempool:      mempool.New(1000),
		Engine:       consensus.New(consensus.NewSchedule([]crypto.Address{validator.Address()})),
		Net:          network.NewNode(validator.Address(), "127.0.0.1:0", nil),
		Emitter:      events.NewEmitter(),
		ValidatorKey: validator.PrivKey(),
	})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return n
}

func signedBlock(validator *wallet.Wallet, parent crypto.Hash, height, timestamp uint64, txs []core.Transaction) *core.Block {
	block := core.NewBlock(parent, height, timestamp, validator.Address(), txs)
	block.Sign(validator.PrivKey())
	return block
}

// TestReorgSwitchesToLongerCompetingBranch drives a three-block fork past
// admitValidatedBlockLocked directly: two blocks compete at height 2 off
// the same parent, then a third block extends the loser, making its branch
// longer. The node must reorg onto it and re-canonicalize height 2 (spec
// §4.6/§8 S6), regardless of which of the two height-2 blocks happened to
// win the interim same-height hash tie-break.
func TestReorgSwitchesToLongerCompetingBranch(t *testing.T) {
	validator, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}
	alice, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}

	n := newTestNode(t, validator, map[crypto.Address]uint64{alice.Address(): 1_000_000})

	var reorgs []events.Event
	n.emitter.Subscribe(events.EventReorg, func(ev events.Event) { reorgs = append(reorgs, ev) })

	genesisHash := n.Tip().Hash

	block1 := signedBlock(validator, genesisHash, 1, 10, nil)
	if accepted, err := n.processReceivedBlock(block1); err != nil || !accepted {
		t.Fatalf("block1: accepted=%v err=%v", accepted, err)
	}

	block2a := signedBlock(validator, block1.Hash(), 2, 20, nil)
	if accepted, err := n.processReceivedBlock(block2a); err != nil || !accepted {
		t.Fatalf("block2a: accepted=%v err=%v", accepted, err)
	}
	if n.Tip().Hash != block2a.Hash() {
		t.Fatalf("tip should be block2a right after it extends the canonical chain")
	}

	// block2b competes with block2a at the same height off the same
	// parent; depending on hash tie-break it may or may not immediately
	// become canonical.
	block2b := signedBlock(validator, block1.Hash(), 2, 21, nil)
	if accepted, err := n.processReceivedBlock(block2b); err != nil || !accepted {
		t.Fatalf("block2b: accepted=%v err=%v", accepted, err)
	}

	// block3b extends the 2b branch, making it strictly longer than
	// whichever height-2 block is currently canonical.
	block3b := signedBlock(validator, block2b.Hash(), 3, 30, nil)
	if accepted, err := n.processReceivedBlock(block3b); err != nil || !accepted {
		t.Fatalf("block3b: accepted=%v err=%v", accepted, err)
	}

	tip := n.Tip()
	if tip.Height != 3 || tip.Hash != block3b.Hash() {
		t.Fatalf("expected tip at height 3 (%s), got height %d (%s)", block3b.Hash().Hex(), tip.Height, tip.Hash.Hex())
	}
	canonicalAt2, err := n.store.GetHeaderByHeight(2)
	if err != nil {
		t.Fatalf("get header at height 2: %v", err)
	}
	if canonicalAt2 != block2b.Hash() {
		t.Fatalf("height 2 should be canonicalized to block2b, got %s", canonicalAt2.Hex())
	}
	if _, err := n.store.GetBlock(block2a.Hash()); err != nil {
		t.Fatalf("orphaned block2a should still be retrievable by hash: %v", err)
	}

	// Exactly one net canonical-branch switch happens across the whole
	// sequence, whether it fires when block2b wins the height-2 tie or
	// when block3b overtakes by height.
	if len(reorgs) != 1 {
		t.Fatalf("expected exactly one reorg event, got %d", len(reorgs))
	}

	view := n.View()
	balance, err := view.GetBalance(alice.Address())
	if err != nil {
		t.Fatalf("get alice balance: %v", err)
	}
	if balance != 1_000_000 {
		t.Fatalf("alice balance after reorg: got %d want 1000000", balance)
	}
}

// TestReorgRejectsBeyondDepthBound exercises the other side of §4.6's
// bound: a competing branch whose common ancestor is more than
// DefaultReorgDepth blocks back from the current tip must be rejected
// rather than replayed, leaving the existing tip in place.
func TestReorgRejectsBeyondDepthBound(t *testing.T) {
	validator, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}

	n := newTestNode(t, validator, nil)
	n.reorgDepth = 2 // shrink the bound so the test doesn't need 64+ blocks

	genesisHash := n.Tip().Hash

	parent := genesisHash
	var chain []*core.Block
	for h := uint64(1); h <= 4; h++ {
		b := signedBlock(validator, parent, h, h*10, nil)
		if accepted, err := n.processReceivedBlock(b); err != nil || !accepted {
			t.Fatalf("block %d: accepted=%v err=%v", h, accepted, err)
		}
		chain = append(chain, b)
		parent = b.Hash()
	}
	tipBeforeAttempt := n.Tip()
	if tipBeforeAttempt.Hash != chain[len(chain)-1].Hash() {
		t.Fatalf("tip should be the last canonical block before the rival branch arrives")
	}

	// A rival branch forking off genesis can only win fork choice once it
	// reaches the canonical chain's height (4), by a lower hash at height
	// 4 or by overtaking at height 5; either way its common ancestor
	// (genesis, height 0) is 4 blocks back from the current tip — deeper
	// than reorgDepth=2, so every reorg attempt is rejected.
	rivalParent := genesisHash
	var rival *core.Block
	for h := uint64(1); h <= 5; h++ {
		rival = signedBlock(validator, rivalParent, h, h*10+1, nil)
		accepted, err := n.processReceivedBlock(rival)
		if err != nil || !accepted {
			t.Fatalf("rival block %d: accepted=%v err=%v", h, accepted, err)
		}
		rivalParent = rival.Hash()
	}

	if n.Tip() != tipBeforeAttempt {
		t.Fatalf("tip should be unchanged after a too-deep rival branch: got %+v want %+v", n.Tip(), tipBeforeAttempt)
	}
}
