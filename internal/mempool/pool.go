// Package mempool holds signed transactions waiting for block inclusion.
package mempool

import (
	"sync"

	"github.com/klingnet-labs/nodecore/pkg/tx"
	"github.com/klingnet-labs/nodecore/pkg/types"
)

// Pool is the shared pending-transaction set, keyed by signed transaction
// hash. Iteration order is unspecified and there is no capacity bound or
// eviction policy beyond explicit removal. Most callers should use the
// self-locking methods; the *Locked variants assume the caller already
// holds the lock via Lock/Unlock, for callers (the miner, the network
// worker) that must span a mempool mutation and a blockchain mutation as
// one critical section under the blockchain-then-mempool lock ordering.
type Pool struct {
	mu  sync.RWMutex
	txs map[types.Hash]*tx.SignedTransaction
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{txs: make(map[types.Hash]*tx.SignedTransaction)}
}

// Lock acquires the mempool's mutex. Callers holding both locks must
// acquire the blockchain's lock first.
func (p *Pool) Lock() { p.mu.Lock() }

// Unlock releases the mempool's mutex.
func (p *Pool) Unlock() { p.mu.Unlock() }

// Insert adds a signed transaction, keyed by its own hash. Inserting a
// hash already present overwrites the prior entry.
func (p *Pool) Insert(signed *tx.SignedTransaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.insertLocked(signed)
}

// InsertLocked is Insert for a caller that already holds the lock.
func (p *Pool) InsertLocked(signed *tx.SignedTransaction) {
	p.insertLocked(signed)
}

func (p *Pool) insertLocked(signed *tx.SignedTransaction) {
	p.txs[signed.Hash()] = signed
}

// Get returns the transaction with hash h, or nil if absent.
func (p *Pool) Get(h types.Hash) *tx.SignedTransaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.getLocked(h)
}

// GetLocked is Get for a caller that already holds the lock.
func (p *Pool) GetLocked(h types.Hash) *tx.SignedTransaction {
	return p.getLocked(h)
}

func (p *Pool) getLocked(h types.Hash) *tx.SignedTransaction {
	return p.txs[h]
}

// Contains reports whether h is present.
func (p *Pool) Contains(h types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.containsLocked(h)
}

// ContainsLocked is Contains for a caller that already holds the lock.
func (p *Pool) ContainsLocked(h types.Hash) bool {
	return p.containsLocked(h)
}

func (p *Pool) containsLocked(h types.Hash) bool {
	_, ok := p.txs[h]
	return ok
}

// RemoveMany deletes every hash in list, ignoring hashes not present.
// The miner and the worker, which already hold the lock, drop the
// transactions of blocks they commit through RemoveManyLocked.
func (p *Pool) RemoveMany(list []types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeManyLocked(list)
}

// RemoveManyLocked is RemoveMany for a caller that already holds the lock.
func (p *Pool) RemoveManyLocked(list []types.Hash) {
	p.removeManyLocked(list)
}

func (p *Pool) removeManyLocked(list []types.Hash) {
	for _, h := range list {
		delete(p.txs, h)
	}
}

// Pop removes and returns some transaction in unspecified order, or nil
// if the pool is empty.
func (p *Pool) Pop() *tx.SignedTransaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.popLocked()
}

// PopLocked is Pop for a caller that already holds the lock.
func (p *Pool) PopLocked() *tx.SignedTransaction {
	return p.popLocked()
}

func (p *Pool) popLocked() *tx.SignedTransaction {
	for h, signed := range p.txs {
		delete(p.txs, h)
		return signed
	}
	return nil
}

// Size returns the number of pending transactions.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

// SizeLocked is Size for a caller that already holds the lock.
func (p *Pool) SizeLocked() int {
	return len(p.txs)
}

// IsEmpty reports whether the pool has no pending transactions.
func (p *Pool) IsEmpty() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs) == 0
}

// IsEmptyLocked is IsEmpty for a caller that already holds the lock.
func (p *Pool) IsEmptyLocked() bool {
	return len(p.txs) == 0
}

// AllLocked returns every pending transaction. Caller must hold the
// lock; used by the miner's candidate scan.
func (p *Pool) AllLocked() []*tx.SignedTransaction {
	all := make([]*tx.SignedTransaction, 0, len(p.txs))
	for _, signed := range p.txs {
		all = append(all, signed)
	}
	return all
}
