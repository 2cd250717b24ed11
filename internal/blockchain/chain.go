// Package blockchain implements the fork-choice engine: the block store,
// height index, orphan buffer, tip pointer, per-block state snapshots,
// and origin log that together realize longest-chain consensus.
package blockchain

import (
	"fmt"
	"sync"
	"time"

	"github.com/klingnet-labs/nodecore/internal/consensus"
	"github.com/klingnet-labs/nodecore/internal/ledger"
	"github.com/klingnet-labs/nodecore/pkg/block"
	"github.com/klingnet-labs/nodecore/pkg/types"
)

// orphanEntry pairs a buffered orphan with the receipt delay observed
// when it was filed, so a later drain can record its true origin
// instead of the delay at resolution time.
type orphanEntry struct {
	block   *block.Block
	delayMS int64
}

// Blockchain is the shared mutable aggregate guarded by a single coarse
// mutex. Most callers should use the self-locking methods (Tip,
// GetBlock, InsertAll, ...); the *Locked variants assume the caller
// already holds the lock via Lock/Unlock and exist so the miner and
// network worker can atomically span a blockchain mutation and a
// mempool mutation under the blockchain-then-mempool ordering mandated
// by the concurrency model.
type Blockchain struct {
	mu sync.Mutex

	blocks     map[types.Hash]*block.Block
	heights    map[types.Hash]uint64
	orphans    map[types.Hash][]orphanEntry // keyed by the orphan's MISSING parent hash
	tip        types.Hash
	difficulty types.Hash
	state      map[types.Hash]ledger.State
	origin     map[types.Hash]Origin
}

// New builds a Blockchain from a genesis block, difficulty target, and
// the genesis allocation's initial state.
func New(genesis *block.Block, difficulty types.Hash, genesisState ledger.State) *Blockchain {
	hash := genesis.Hash()
	bc := &Blockchain{
		blocks:     map[types.Hash]*block.Block{hash: genesis},
		heights:    map[types.Hash]uint64{hash: 0},
		orphans:    make(map[types.Hash][]orphanEntry),
		tip:        hash,
		difficulty: difficulty,
		state:      map[types.Hash]ledger.State{hash: genesisState},
		origin:     map[types.Hash]Origin{hash: MinedOrigin()},
	}
	return bc
}

// Lock acquires the blockchain's mutex. Callers that also need the
// mempool lock must acquire this one first (see internal/mempool).
func (bc *Blockchain) Lock() { bc.mu.Lock() }

// Unlock releases the blockchain's mutex.
func (bc *Blockchain) Unlock() { bc.mu.Unlock() }

// Tip returns the current best chain head.
func (bc *Blockchain) Tip() types.Hash {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.tip
}

// TipLocked is Tip for a caller that already holds the lock.
func (bc *Blockchain) TipLocked() types.Hash {
	return bc.tip
}

// Difficulty returns the chain's constant difficulty target.
func (bc *Blockchain) Difficulty() types.Hash {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.difficulty
}

// GetBlock returns the block with the given hash. It panics if the hash
// is absent — callers must check ContainBlock first.
func (bc *Blockchain) GetBlock(h types.Hash) *block.Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.getBlockLocked(h)
}

// GetBlockLocked is GetBlock for a caller that already holds the lock.
func (bc *Blockchain) GetBlockLocked(h types.Hash) *block.Block {
	return bc.getBlockLocked(h)
}

func (bc *Blockchain) getBlockLocked(h types.Hash) *block.Block {
	b, ok := bc.blocks[h]
	if !ok {
		panic(fmt.Sprintf("blockchain: get_block on absent hash %s", h))
	}
	return b
}

// GetTipState returns the state snapshot recorded for the current tip.
// It panics if the tip has no recorded state — a consequence of a
// committed block whose transaction list failed to apply (see
// internal/ledger.ApplyBlock); callers that mine or validate against
// the tip are expected to treat that as the fatal invariant violation it
// is, matching the lock-poisoning policy for other invariant breaks.
func (bc *Blockchain) GetTipState() ledger.State {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.getTipStateLocked()
}

// GetTipStateLocked is GetTipState for a caller that already holds the lock.
func (bc *Blockchain) GetTipStateLocked() ledger.State {
	return bc.getTipStateLocked()
}

func (bc *Blockchain) getTipStateLocked() ledger.State {
	s, ok := bc.state[bc.tip]
	if !ok {
		panic(fmt.Sprintf("blockchain: no recorded state at tip %s", bc.tip))
	}
	return s
}

// ContainBlock reports whether h is a committed block.
func (bc *Blockchain) ContainBlock(h types.Hash) bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.containBlockLocked(h)
}

// ContainBlockLocked is ContainBlock for a caller that already holds the lock.
func (bc *Blockchain) ContainBlockLocked(h types.Hash) bool {
	return bc.containBlockLocked(h)
}

func (bc *Blockchain) containBlockLocked(h types.Hash) bool {
	_, ok := bc.blocks[h]
	return ok
}

// PowValidityCheck reports whether b's header hash is within the chain's
// difficulty target AND the header declares that same difficulty.
func (bc *Blockchain) PowValidityCheck(b *block.Block) bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.powValidityCheckLocked(b)
}

// PowValidityCheckLocked is PowValidityCheck for a caller that already holds the lock.
func (bc *Blockchain) PowValidityCheckLocked(b *block.Block) bool {
	return bc.powValidityCheckLocked(b)
}

func (bc *Blockchain) powValidityCheckLocked(b *block.Block) bool {
	return consensus.VerifyHeader(b.Header, bc.difficulty) == nil
}

// ParentCheck reports whether b's declared parent is a committed block.
func (bc *Blockchain) ParentCheck(b *block.Block) bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.containBlockLocked(b.Header.Parent)
}

// ParentCheckLocked is ParentCheck for a caller that already holds the lock.
func (bc *Blockchain) ParentCheckLocked(b *block.Block) bool {
	return bc.containBlockLocked(b.Header.Parent)
}

// AddToOrphans files b under its missing parent hash.
func (bc *Blockchain) AddToOrphans(b *block.Block) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.addToOrphansLocked(b)
}

// AddToOrphansLocked is AddToOrphans for a caller that already holds the lock.
func (bc *Blockchain) AddToOrphansLocked(b *block.Block) {
	bc.addToOrphansLocked(b)
}

func (bc *Blockchain) addToOrphansLocked(b *block.Block) {
	parent := b.Header.Parent
	bc.orphans[parent] = append(bc.orphans[parent], orphanEntry{block: b, delayMS: receiveDelayMS(b)})
}

// receiveDelayMS is now minus b's declared header timestamp, floored at
// zero for clocks that put the header timestamp at or after now.
func receiveDelayMS(b *block.Block) int64 {
	now := uint64(time.Now().UnixMilli())
	if now <= b.Header.Timestamp {
		return 0
	}
	return int64(now - b.Header.Timestamp)
}

// InsertAll commits b, tagging its origin, then transitively drains the
// orphan index for any descendants newly unblocked by the commit.
// Every newly committed hash — b's own and any resolved descendants' —
// is appended to out in commit order.
func (bc *Blockchain) InsertAll(b *block.Block, origin Origin, out *[]types.Hash) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.insertAllLocked(b, origin, out)
}

// InsertAllLocked is InsertAll for a caller that already holds the lock.
func (bc *Blockchain) InsertAllLocked(b *block.Block, origin Origin, out *[]types.Hash) {
	bc.insertAllLocked(b, origin, out)
}

func (bc *Blockchain) insertAllLocked(b *block.Block, origin Origin, out *[]types.Hash) {
	hash := bc.commitOneLocked(b, origin)
	*out = append(*out, hash)

	queue := []types.Hash{hash}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		children := bc.orphans[parent]
		if len(children) == 0 {
			continue
		}
		delete(bc.orphans, parent)

		for _, child := range children {
			childHash := bc.commitOneLocked(child.block, ReceivedOrigin(child.delayMS))
			*out = append(*out, childHash)
			queue = append(queue, childHash)
		}
	}
}

// commitOneLocked records a single block's height, origin, and state
// transition, and advances the tip if the new block is strictly taller.
// Caller must hold bc.mu.
func (bc *Blockchain) commitOneLocked(b *block.Block, origin Origin) types.Hash {
	hash := b.Hash()
	bc.blocks[hash] = b

	height := bc.heights[b.Header.Parent] + 1
	bc.heights[hash] = height
	bc.origin[hash] = origin

	parentState, hasParentState := bc.state[b.Header.Parent]
	if hasParentState {
		if next, ok := ledger.ApplyBlock(parentState, b); ok {
			bc.state[hash] = next
		}
		// ok == false: no state[hash] recorded, matching the documented
		// commit-despite-invalid-state behavior (see design notes).
	}

	if height > bc.heights[bc.tip] {
		bc.tip = hash
	}

	return hash
}

// AllBlocksInLongestChain walks parent pointers from the tip back to
// genesis and returns the hashes in genesis-first order.
func (bc *Blockchain) AllBlocksInLongestChain() []types.Hash {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	var reversed []types.Hash
	cur := bc.tip
	for {
		reversed = append(reversed, cur)
		b := bc.blocks[cur]
		if b.Header.Parent.IsZero() {
			break
		}
		cur = b.Header.Parent
	}

	chain := make([]types.Hash, len(reversed))
	for i, h := range reversed {
		chain[len(reversed)-1-i] = h
	}
	return chain
}

// BlockSize returns the number of committed blocks.
func (bc *Blockchain) BlockSize() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.blocks)
}

// AverageSize returns the mean number of transactions per committed
// block.
func (bc *Blockchain) AverageSize() float64 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if len(bc.blocks) == 0 {
		return 0
	}
	var total int
	for _, b := range bc.blocks {
		total += len(b.Content.Transactions)
	}
	return float64(total) / float64(len(bc.blocks))
}

// AllBlockDelay returns the recorded receipt delay, in milliseconds, for
// every block whose origin is Received.
func (bc *Blockchain) AllBlockDelay() []int64 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	var delays []int64
	for _, o := range bc.origin {
		if o.Kind == Received {
			delays = append(delays, o.DelayMS)
		}
	}
	return delays
}

// Origin returns the recorded origin tag for a committed block.
func (bc *Blockchain) Origin(h types.Hash) (Origin, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	o, ok := bc.origin[h]
	return o, ok
}

// Height returns the recorded height for a committed block.
func (bc *Blockchain) Height(h types.Hash) (uint64, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	height, ok := bc.heights[h]
	return height, ok
}
