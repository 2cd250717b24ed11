package p2p

import (
	"container/list"
	"sync"

	"github.com/zeebo/blake3"
)

// dedupCapacity bounds how many recent gossip fingerprints are retained.
// Past this, the oldest entries are evicted to make room — this is a
// liveness optimization, not a correctness mechanism, so losing an old
// entry just costs a redundant re-dispatch rather than a missed one.
const dedupCapacity = 4096

// Dedup recognizes gossip announcements this node has already dispatched,
// so a block or transaction hash flooding in from several peers at once
// is only handed to the worker's dispatch logic once. It is keyed on
// BLAKE3 rather than the chain's SHA-256 — this fingerprint never touches
// consensus state, so there is no reason to spend the slower, security-
// pinned hash on it.
type Dedup struct {
	mu    sync.Mutex
	order *list.List
	seen  map[[32]byte]*list.Element
}

// NewDedup returns an empty dedup cache.
func NewDedup() *Dedup {
	return &Dedup{
		order: list.New(),
		seen:  make(map[[32]byte]*list.Element),
	}
}

// SeenOrRemember reports whether raw has already been fingerprinted, and
// if not, remembers it.
func (d *Dedup) SeenOrRemember(raw []byte) bool {
	key := blake3.Sum256(raw)

	d.mu.Lock()
	defer d.mu.Unlock()

	if elem, ok := d.seen[key]; ok {
		d.order.MoveToFront(elem)
		return true
	}

	elem := d.order.PushFront(key)
	d.seen[key] = elem
	if d.order.Len() > dedupCapacity {
		oldest := d.order.Back()
		d.order.Remove(oldest)
		delete(d.seen, oldest.Value.([32]byte))
	}
	return false
}
