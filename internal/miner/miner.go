// Package miner implements the block-production actor: a single
// goroutine driven by a control channel that alternates between mining
// attempts and waiting for operator commands.
package miner

import (
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/klingnet-labs/nodecore/internal/blockchain"
	"github.com/klingnet-labs/nodecore/internal/ledger"
	"github.com/klingnet-labs/nodecore/internal/log"
	"github.com/klingnet-labs/nodecore/internal/mempool"
	"github.com/klingnet-labs/nodecore/pkg/block"
	"github.com/klingnet-labs/nodecore/pkg/tx"
	"github.com/klingnet-labs/nodecore/pkg/types"
)

// MaxTxsPerBlock caps the number of transactions a mined block includes.
const MaxTxsPerBlock = 3

// stateKind is the miner's operating mode.
type stateKind int

const (
	paused stateKind = iota
	running
	shutdown
)

// command is a single control-channel message: OperatingState ∈
// {Paused, Run(lambdaMicros), ShutDown}.
type command struct {
	kind         stateKind
	lambdaMicros uint64
}

// Announcer broadcasts a newly mined block's hash to peers. Implemented
// by the network worker; injected so this package has no transport
// dependency.
type Announcer interface {
	AnnounceBlock(h types.Hash)
}

// Stats summarizes a miner's run, logged once on Exit.
type Stats struct {
	BlocksMined int
	Elapsed     time.Duration
	ChainLength int
	Delays      []time.Duration // wall-clock time between consecutive mined blocks
}

// Stopped is a process-wide flag a miner sets when it shuts down, so
// that a co-located transaction generator can stop submitting load
// without a direct reference back into the miner.
var Stopped atomic.Bool

// Miner owns no storage of its own: it mutates a shared Blockchain and
// Mempool under their documented lock ordering.
type Miner struct {
	chain     *blockchain.Blockchain
	pool      *mempool.Pool
	announcer Announcer

	ctrl chan command
	done chan struct{}

	stats    Stats
	started  time.Time
	lastMine time.Time
}

// New creates a miner bound to chain and pool, broadcasting mined
// blocks through announcer. The mining goroutine starts immediately in
// the Paused state and blocks until Start or Exit is called.
func New(chain *blockchain.Blockchain, pool *mempool.Pool, announcer Announcer) *Miner {
	m := &Miner{
		chain:     chain,
		pool:      pool,
		announcer: announcer,
		ctrl:      make(chan command, 4),
		done:      make(chan struct{}),
	}
	go m.run()
	return m
}

// Start transitions the miner to Run(lambdaMicros): mine continuously,
// sleeping lambdaMicros microseconds between attempts (0 means no
// sleep — mine as fast as possible).
func (m *Miner) Start(lambdaMicros uint64) {
	if m.started.IsZero() {
		m.started = time.Now()
	}
	m.ctrl <- command{kind: running, lambdaMicros: lambdaMicros}
}

// Pause transitions the miner to Paused: the goroutine blocks on the
// control channel until Start or Exit is called.
func (m *Miner) Pause() {
	m.ctrl <- command{kind: paused}
}

// Exit transitions the miner to ShutDown and blocks until its goroutine
// has logged its run summary and returned.
func (m *Miner) Exit() {
	m.ctrl <- command{kind: shutdown}
	<-m.done
}

func (m *Miner) run() {
	state := command{kind: paused}
	for {
		switch state.kind {
		case paused:
			state = <-m.ctrl
		case shutdown:
			m.logSummary()
			Stopped.Store(true)
			close(m.done)
			return
		case running:
			select {
			case next := <-m.ctrl:
				state = next
				continue
			default:
			}
			if state.lambdaMicros > 0 {
				time.Sleep(time.Duration(state.lambdaMicros) * time.Microsecond)
			}
			m.attempt()
		}
	}
}

// attempt performs one pass of the mining loop: acquire both locks in
// the mandated blockchain-then-mempool order, snapshot the tip, prune
// stale mempool transactions, and try exactly one candidate nonce.
func (m *Miner) attempt() {
	m.chain.Lock()
	defer m.chain.Unlock()
	m.pool.Lock()
	defer m.pool.Unlock()

	parent := m.chain.TipLocked()
	parentBlock := m.chain.GetBlockLocked(parent)
	difficulty := parentBlock.Header.Difficulty
	state := m.chain.GetTipStateLocked()

	selected, selectedHashes := m.selectAndPruneLocked(state)
	if len(selected) < MaxTxsPerBlock {
		return
	}

	merkleRoot := block.ComputeMerkleRoot(selected)
	header := &block.Header{
		Parent:     parent,
		Difficulty: difficulty,
		Timestamp:  uint64(time.Now().UnixMilli()),
		MerkleRoot: merkleRoot,
		Nonce:      rand.Uint32(),
	}
	candidate := block.NewBlock(header, selected)

	if !candidate.Hash().LessOrEqual(difficulty) {
		return
	}

	var committed []types.Hash
	m.chain.InsertAllLocked(candidate, blockchain.MinedOrigin(), &committed)
	m.pool.RemoveManyLocked(selectedHashes)

	m.recordMineLocked()

	if m.announcer != nil {
		m.announcer.AnnounceBlock(candidate.Hash())
	}
	log.Miner.Info().
		Str("hash", candidate.Hash().String()).
		Int("tx_count", len(selected)).
		Msg("mined block")
}

// selectAndPruneLocked scans every pending transaction, evicting those
// no longer valid against state and collecting up to MaxTxsPerBlock
// still-valid ones. Caller must hold both locks.
func (m *Miner) selectAndPruneLocked(state ledger.State) ([]*tx.SignedTransaction, []types.Hash) {
	var stale []types.Hash
	var selected []*tx.SignedTransaction
	var selectedHashes []types.Hash

	for _, signed := range m.pool.AllLocked() {
		if err := ledger.ValidateTx(state, signed); err != nil {
			stale = append(stale, signed.Hash())
			continue
		}
		if len(selected) < MaxTxsPerBlock {
			selected = append(selected, signed)
			selectedHashes = append(selectedHashes, signed.Hash())
		}
	}

	if len(stale) > 0 {
		m.pool.RemoveManyLocked(stale)
	}
	return selected, selectedHashes
}

func (m *Miner) recordMineLocked() {
	now := time.Now()
	if !m.lastMine.IsZero() {
		m.stats.Delays = append(m.stats.Delays, now.Sub(m.lastMine))
	}
	m.lastMine = now
	m.stats.BlocksMined++
}

func (m *Miner) logSummary() {
	m.stats.Elapsed = time.Since(m.started)
	m.stats.ChainLength = len(m.chain.AllBlocksInLongestChain())

	event := log.Miner.Info().
		Int("blocks_mined", m.stats.BlocksMined).
		Dur("elapsed", m.stats.Elapsed).
		Int("chain_length", m.stats.ChainLength)
	if len(m.stats.Delays) > 0 {
		var total time.Duration
		for _, d := range m.stats.Delays {
			total += d
		}
		event = event.Dur("avg_block_interval", total/time.Duration(len(m.stats.Delays)))
	}
	event = event.Ints64("block_delays_ms", m.chain.AllBlockDelay())
	event.Msg("miner shutting down")
}

// StatsSnapshot returns a copy of the miner's run statistics. Intended
// to be read after Exit has returned; the fields are owned by the
// mining goroutine while it is running.
func (m *Miner) StatsSnapshot() Stats {
	return m.stats
}
