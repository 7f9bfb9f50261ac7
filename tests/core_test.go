package tests

import (
	"testing"

	"github.com/meridianchain/meridian/core"
	"github.com/meridianchain/meridian/crypto"
	"github.com/meridianchain/meridian/mempool"
	"github.com/meridianchain/meridian/state"
	"github.com/meridianchain/meridian/storage"
	"github.com/meridianchain/meridian/wallet"

	"github.com/meridianchain/meridian/internal/testutil"
)

func TestKeyGenAndAddress(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if len(pub.Hex()) != 64 {
		t.Errorf("pubkey hex length: got %d want 64", len(pub.Hex()))
	}
	addr := pub.Address()
	if len(addr.Hex()) != 64 {
		t.Errorf("address hex length: got %d want 64", len(addr.Hex()))
	}
	if derived := priv.Public(); derived.Hex() != pub.Hex() {
		t.Error("derived public key does not match")
	}
}

func TestSignVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("hello meridian")
	sig := crypto.Sign(priv, data)
	if !crypto.Verify(pub, data, sig) {
		t.Error("valid signature failed")
	}
	if crypto.Verify(pub, []byte("tampered"), sig) {
		t.Error("tampered data should fail verification")
	}
}

func TestTransactionSignVerify(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}
	var recipient crypto.Address
	recipient[0] = 0xAB

	tx := w.Transfer(recipient, 100, 0)
	if tx.ID().IsZero() {
		t.Error("tx ID should be set after signing")
	}
	if err := tx.Verify(); err != nil {
		t.Errorf("Verify failed: %v", err)
	}

	tx.Amount = 999
	if err := tx.Verify(); err == nil {
		t.Error("tampered tx should fail verification")
	}
}

func TestBlockHash(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	block := core.NewBlock(crypto.ZeroHash, 1, 1000, pub.Address(), nil)
	block.Sign(priv)

	if block.Hash().IsZero() {
		t.Error("hash should be set after signing")
	}
	if !block.VerifySignature(pub) {
		t.Error("block signature should verify")
	}
	if err := block.VerifyIntegrity(); err != nil {
		t.Errorf("VerifyIntegrity: %v", err)
	}
}

func TestMempoolAddRemove(t *testing.T) {
	db := testutil.NewMemDB()
	store := storage.NewChainStore(db)
	view := state.NewView(store)

	w, _ := wallet.Generate()
	view.SeedAccounts(map[crypto.Address]core.Account{
		w.Address(): {Balance: 1000, Nonce: 0},
	})

	var recipient crypto.Address
	recipient[0] = 0xAA
	tx := w.Transfer(recipient, 1, 0)

	mp := mempool.New(10)
	if err := mp.Add(view, tx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if mp.Size() != 1 {
		t.Errorf("size: got %d want 1", mp.Size())
	}
	if err := mp.Add(view, tx); err == nil {
		t.Error("adding duplicate tx should fail")
	}

	drained, err := mp.DrainForBlock(view, 10, 10_000)
	if err != nil {
		t.Fatalf("DrainForBlock: %v", err)
	}
	if len(drained) != 1 {
		t.Errorf("drained: got %d want 1", len(drained))
	}

	mp.Remove([]crypto.Hash{tx.ID()})
	if mp.Size() != 0 {
		t.Error("pool should be empty after remove")
	}
}
