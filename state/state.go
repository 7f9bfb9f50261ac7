// Package state implements the buffered reader/writer view over account
// state that transaction and block application run against, generalizing
// the teacher's dirty/deleted write-buffer and snapshot/rollback mechanism
// from storage.StateDB to a narrower account-only world state.
package state

import (
	"fmt"

	"github.com/meridianchain/meridian/core"
	"github.com/meridianchain/meridian/crypto"
	"github.com/meridianchain/meridian/storage"
)

// Reader exposes read-only access to account state.
type Reader interface {
	GetAccount(addr crypto.Address) (core.Account, error)
	GetBalance(addr crypto.Address) (uint64, error)
	GetNonce(addr crypto.Address) (uint64, error)
}

// Writer exposes buffered mutation of account state. Writes are staged in
// memory; callers flush the buffer by reading Dirty() and handing the
// result to storage.ChainStore.CommitBlock.
type Writer interface {
	Reader
	Credit(addr crypto.Address, amount uint64) error
	Debit(addr crypto.Address, amount uint64) error
	IncrementNonce(addr crypto.Address) error
}

type snapshot struct {
	dirty map[crypto.Address]core.Account
}

// View is a buffered state.Writer backed by a storage.ChainStore, with
// snapshot/rollback for aborting a failed transaction or block mid-apply.
type View struct {
	store     *storage.ChainStore
	dirty     map[crypto.Address]core.Account
	snapshots []snapshot
}

// NewView returns a View reading through to store for accounts not yet
// staged in this view's write buffer.
func NewView(store *storage.ChainStore) *View {
	return &View{
		store: store,
		dirty: make(map[crypto.Address]core.Account),
	}
}

func (v *View) GetAccount(addr crypto.Address) (core.Account, error) {
	if acc, ok := v.dirty[addr]; ok {
		return acc, nil
	}
	return v.store.GetAccount(addr)
}

func (v *View) GetBalance(addr crypto.Address) (uint64, error) {
	acc, err := v.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

func (v *View) GetNonce(addr crypto.Address) (uint64, error) {
	acc, err := v.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return acc.Nonce, nil
}

func (v *View) Credit(addr crypto.Address, amount uint64) error {
	acc, err := v.GetAccount(addr)
	if err != nil {
		return err
	}
	acc.Balance += amount
	v.dirty[addr] = acc
	return nil
}

func (v *View) Debit(addr crypto.Address, amount uint64) error {
	acc, err := v.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc.Balance < amount {
		return &InsufficientBalanceError{Required: amount, Available: acc.Balance}
	}
	acc.Balance -= amount
	v.dirty[addr] = acc
	return nil
}

func (v *View) IncrementNonce(addr crypto.Address) error {
	acc, err := v.GetAccount(addr)
	if err != nil {
		return err
	}
	acc.Nonce++
	v.dirty[addr] = acc
	return nil
}

// Snapshot saves the current write buffer and returns a snapshot ID to
// revert to later.
func (v *View) Snapshot() int {
	snap := snapshot{dirty: make(map[crypto.Address]core.Account, len(v.dirty))}
	for k, val := range v.dirty {
		snap.dirty[k] = val
	}
	v.snapshots = append(v.snapshots, snap)
	return len(v.snapshots) - 1
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot,
// discarding every write made since.
func (v *View) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(v.snapshots) {
		return fmt.Errorf("state: invalid snapshot id %d", id)
	}
	snap := v.snapshots[id]
	dirty := make(map[crypto.Address]core.Account, len(snap.dirty))
	for k, val := range snap.dirty {
		dirty[k] = val
	}
	v.dirty = dirty
	v.snapshots = v.snapshots[:id]
	return nil
}

// DiscardSnapshot forgets snapshot id and every snapshot taken after it,
// without touching the write buffer. Call once the writes guarded by id
// are known to be final (its block applied cleanly), so a long sequence of
// successful Snapshot calls doesn't retain a deep copy of the buffer per
// block forever.
func (v *View) DiscardSnapshot(id int) {
	if id >= 0 && id <= len(v.snapshots) {
		v.snapshots = v.snapshots[:id]
	}
}

// Dirty returns every account this view has staged a change for, ready to
// pass to storage.ChainStore.CommitBlock.
func (v *View) Dirty() map[crypto.Address]core.Account {
	out := make(map[crypto.Address]core.Account, len(v.dirty))
	for k, val := range v.dirty {
		out[k] = val
	}
	return out
}

// Reset discards every staged write and snapshot. Call immediately after
// the buffer's writes have been durably committed to storage: reads for
// those addresses then fall through to storage, which now holds exactly
// the values Reset discarded, so observable behavior is unchanged. This
// keeps a View that is reused across many committed blocks (as
// node.Node's does) bounded to one block's worth of staged writes at a
// time instead of accumulating every account ever touched since genesis.
func (v *View) Reset() {
	v.dirty = make(map[crypto.Address]core.Account)
	v.snapshots = nil
}

// SeedAccounts stages accounts directly into the write buffer without
// going through Credit/Debit, bypassing the read-through-storage path.
// Used to prime a fresh View with the genesis allocation, and to rebuild
// state from scratch when replaying a branch during a reorg.
func (v *View) SeedAccounts(accounts map[crypto.Address]core.Account) {
	for addr, acc := range accounts {
		v.dirty[addr] = acc
	}
}
