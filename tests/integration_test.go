package tests

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/meridianchain/meridian/config"
	"github.com/meridianchain/meridian/consensus"
	"github.com/meridianchain/meridian/crypto"
	"github.com/meridianchain/meridian/events"
	"github.com/meridianchain/meridian/internal/testutil"
	"github.com/meridianchain/meridian/mempool"
	"github.com/meridianchain/meridian/network"
	"github.com/meridianchain/meridian/node"
	"github.com/meridianchain/meridian/storage"
	"github.com/meridianchain/meridian/wallet"
)

// startTestNode boots a single validating node over in-memory storage, with
// block production ticking fast enough for a test to observe a few blocks.
func startTestNode(t *testing.T, validator *wallet.Wallet, alloc map[crypto.Address]uint64) (n *node.Node, cleanup func()) {
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

	cfg := config.DefaultConfig()
	cfg.Consensus.BlockIntervalSeconds = 1
	cfg.Validator.Enabled = true

	db := testutil.NewMemDB()
	store := storage.NewChainStore(db)
	pool := mempool.New(1000)
	engine := consensus.New(consensus.NewSchedule([]crypto.Address{validator.Address()}))
	emitter := events.NewEmitter()

	netNode := network.NewNode(validator.Address(), "127.0.0.1:0", nil)
	if err := netNode.Start(); err != nil {
		t.Fatalf("network start: %v", err)
	}

	n, err := node.Bootstrap(node.Deps{
		Config:       cfg,
		Genesis:      genesis,
		Store:        store,
		Mempool:      pool,
		Engine:       engine,
		Net:          netNode,
		Emitter:      emitter,
		ValidatorKey: validator.PrivKey(),
	})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	go n.Run()
	return n, func() {
		n.Shutdown()
		netNode.Stop()
	}
}

func waitForHeight(t *testing.T, n *node.Node, target uint64) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if n.Tip().Height >= target {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for height %d, at %d", target, n.Tip().Height)
}

// TestSingleNodeProducesAndAppliesTransfers exercises the full pipeline a
// single validating node runs end to end: genesis, self-production, mempool
// admission, and state application of a value transfer.
func TestSingleNodeProducesAndAppliesTransfers(t *testing.T) {
	if os.Getenv("SKIP_INTEGRATION") != "" {
		t.Skip("SKIP_INTEGRATION set")
	}

	validator, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}
	alice, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}
	bob, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}

	n, cleanup := startTestNode(t, validator, map[crypto.Address]uint64{
		alice.Address(): 1_000_000,
	})
	defer cleanup()

	waitForHeight(t, n, 1)

	tx := alice.Transfer(bob.Address(), 250_000, 0)
	if err := n.SubmitTransaction(tx); err != nil {
		t.Fatalf("submit transaction: %v", err)
	}

	waitForHeight(t, n, 2)

	view := n.View()
	aliceBalance, err := view.GetBalance(alice.Address())
	if err != nil {
		t.Fatalf("get alice balance: %v", err)
	}
	bobBalance, err := view.GetBalance(bob.Address())
	if err != nil {
		t.Fatalf("get bob balance: %v", err)
	}
	if aliceBalance != 750_000 {
		t.Errorf("alice balance: got %d want 750000", aliceBalance)
	}
	if bobBalance != 250_000 {
		t.Errorf("bob balance: got %d want 250000", bobBalance)
	}

	if n.Mempool().Contains(tx.ID()) {
		t.Error("applied transaction should have been removed from the mempool")
	}

	t.Logf("final balances: alice=%d bob=%d tip=%s", aliceBalance, bobBalance, fmt.Sprintf("height %d", n.Tip().Height))
}

// TestSingleNodeRejectsInsufficientBalance ensures a transaction spending
// more than the sender holds is rejected at admission, never reaching a
// block.
func TestSingleNodeRejectsInsufficientBalance(t *testing.T) {
	if os.Getenv("SKIP_INTEGRATION") != "" {
		t.Skip("SKIP_INTEGRATION set")
	}

	validator, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}
	poor, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}
	rich, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}

	n, cleanup := startTestNode(t, validator, map[crypto.Address]uint64{
		poor.Address(): 10,
	})
	defer cleanup()

	waitForHeight(t, n, 1)

	tx := poor.Transfer(rich.Address(), 999_999, 0)
	if err := n.SubmitTransaction(tx); err == nil {
		t.Fatal("expected submission to fail for insufficient balance")
	}
}
