// Package mempool implements the pending-transaction pool: admission
// checks, FIFO-ish draining in sender-nonce order, and removal after block
// commit, generalizing the teacher's core/mempool.go structure to the
// spec's stateful admission and nonce-contiguous draining rules.
package mempool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/meridianchain/meridian/core"
	"github.com/meridianchain/meridian/crypto"
	"github.com/meridianchain/meridian/state"
)

// Mempool is a thread-safe bounded pool of pending transactions.
type Mempool struct {
	mu      sync.RWMutex
	max     int
	txs     map[crypto.Hash]*core.Transaction
	order   []crypto.Hash                     // insertion order, for FIFO-ish iteration
	perAddr map[crypto.Address][]crypto.Hash // insertion order per sender
}

// New creates an empty mempool bounded by max pending transactions.
func New(max int) *Mempool {
	return &Mempool{
		max:     max,
		txs:     make(map[crypto.Hash]*core.Transaction),
		perAddr: make(map[crypto.Address][]crypto.Hash),
	}
}

// Add validates tx's signature and current-state validity via reader, then
// admits it. Returns ErrAlreadyPresent, ErrPoolFull, or a wrapped
// InvalidTransaction reason.
func (m *Mempool) Add(reader state.Reader, tx *core.Transaction) error {
	id := tx.ID()

	m.mu.RLock()
	_, exists := m.txs[id]
	size := len(m.txs)
	m.mu.RUnlock()
	if exists {
		return ErrAlreadyPresent
	}
	if size >= m.max {
		return ErrPoolFull
	}

	if err := state.ValidateTx(reader, tx); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.txs[id]; exists {
		return ErrAlreadyPresent
	}
	if len(m.txs) >= m.max {
		return ErrPoolFull
	}
	m.txs[id] = tx
	m.order = append(m.order, id)
	m.perAddr[tx.Sender] = append(m.perAddr[tx.Sender], id)
	return nil
}

// Contains reports whether id is currently pending.
func (m *Mempool) Contains(id crypto.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.txs[id]
	return ok
}

// Size returns the number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}

// Remove deletes the given transaction ids. Missing ids are not an error.
func (m *Mempool) Remove(ids []crypto.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := make(map[crypto.Hash]bool, len(ids))
	for _, id := range ids {
		if tx, ok := m.txs[id]; ok {
			removed[id] = true
			delete(m.txs, id)
			m.removeFromAddrIndex(tx.Sender, id)
		}
	}
	if len(removed) == 0 {
		return
	}
	filtered := m.order[:0]
	for _, id := range m.order {
		if !removed[id] {
			filtered = append(filtered, id)
		}
	}
	m.order = filtered
}

func (m *Mempool) removeFromAddrIndex(addr crypto.Address, id crypto.Hash) {
	ids := m.perAddr[addr]
	filtered := ids[:0]
	for _, existing := range ids {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	if len(filtered) == 0 {
		delete(m.perAddr, addr)
	} else {
		m.perAddr[addr] = filtered
	}
}

// DrainForBlock selects transactions for the next block, respecting
// sender-nonce ordering: for each sender, only the contiguous run of
// nonces starting at the current on-state nonce (per reader) is eligible,
// in ascending order. Selection stops at maxCount transactions or maxBytes
// of total encoded size, whichever comes first. Senders are visited in
// first-appearance order so that selection is deterministic across runs
// with the same pool contents.
func (m *Mempool) DrainForBlock(reader state.Reader, maxCount, maxBytes int) ([]*core.Transaction, error) {
	m.mu.RLock()
	senderOrder := make([]crypto.Address, 0, len(m.perAddr))
	seenSender := make(map[crypto.Address]bool, len(m.perAddr))
	perAddr := make(map[crypto.Address][]*core.Transaction, len(m.perAddr))
	for _, id := range m.order {
		tx := m.txs[id]
		if !seenSender[tx.Sender] {
			seenSender[tx.Sender] = true
			senderOrder = append(senderOrder, tx.Sender)
		}
		perAddr[tx.Sender] = append(perAddr[tx.Sender], tx)
	}
	m.mu.RUnlock()

	var selected []*core.Transaction
	totalBytes := 0

	for _, addr := range senderOrder {
		if len(selected) >= maxCount {
			break
		}
		txs := perAddr[addr]
		sort.Slice(txs, func(i, j int) bool { return txs[i].Nonce < txs[j].Nonce })

		nonce, err := reader.GetNonce(addr)
		if err != nil {
			return nil, fmt.Errorf("drain: get nonce for %s: %w", addr.Hex(), err)
		}
		for _, tx := range txs {
			if tx.Nonce != nonce {
				break // gap: remaining txs from this sender are not yet eligible
			}
			size := tx.EncodedSize()
			if len(selected) >= maxCount || totalBytes+size > maxBytes {
				break
			}
			selected = append(selected, tx)
			totalBytes += size
			nonce++
		}
	}
	return selected, nil
}
