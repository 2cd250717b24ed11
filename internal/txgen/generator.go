// Package txgen implements the synthetic transaction generator: a
// single goroutine that waits for a start signal and then periodically
// submits load into the mempool, standing in for real wallet traffic
// during development and testing.
package txgen

import (
	"math/rand"
	"sync"
	"time"

	"github.com/klingnet-labs/nodecore/internal/blockchain"
	"github.com/klingnet-labs/nodecore/internal/ledger"
	"github.com/klingnet-labs/nodecore/internal/log"
	"github.com/klingnet-labs/nodecore/internal/mempool"
	"github.com/klingnet-labs/nodecore/internal/miner"
	"github.com/klingnet-labs/nodecore/internal/p2p"
	"github.com/klingnet-labs/nodecore/internal/wallet"
	"github.com/klingnet-labs/nodecore/pkg/crypto"
	"github.com/klingnet-labs/nodecore/pkg/tx"
	"github.com/klingnet-labs/nodecore/pkg/types"
)

// cohortSize is the number of addresses the generator picks senders and
// receivers from. It matches blockchain.GenesisAccountCount: the
// generator only ever moves value between accounts the genesis state
// actually funded.
const cohortSize = blockchain.GenesisAccountCount

// transferValue is the fixed amount every non-garbage transaction
// moves.
const transferValue = 100

// Generator periodically builds and submits a signed transaction
// between two addresses drawn from a fixed cohort. It holds no
// exported mutable state; its sent/garbage/stale counters are logged
// when its goroutine stops. New starts its
// goroutine immediately, parked on a start signal until Start is
// called.
type Generator struct {
	chain  *blockchain.Blockchain
	pool   *mempool.Pool
	server p2p.Server

	addresses [cohortSize]types.Address
	signers   [cohortSize]*crypto.PrivateKey

	interval    time.Duration
	garbageRate float64
	rng         *rand.Rand

	startOnce sync.Once
	ctrl      chan struct{}
	done      chan struct{}

	sent    int
	garbage int
	stale   int
}

// New derives the generator's cohort from seed (a wallet master seed,
// typically persisted in internal/wallet's keystore) and builds a
// Generator bound to chain, pool and server. The returned Generator's
// goroutine is running but blocked until Start is called.
//
// The cohort's addresses are the chain's fixed genesis accounts
// (types.FillAddress(1)..FillAddress(cohortSize)), not the addresses
// the derived keys would themselves produce: sender-address to
// public-key binding is not checked anywhere in this core (see
// internal/ledger), so any Ed25519 key can sign on behalf of a funded
// address. The HD derivation exists to give each cohort slot a stable,
// reproducible "configured key pair" across restarts rather than a
// fresh key every run.
func New(chain *blockchain.Blockchain, pool *mempool.Pool, server p2p.Server, seed []byte, intervalMS int, garbageRate float64) (*Generator, error) {
	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		chain:       chain,
		pool:        pool,
		server:      server,
		interval:    time.Duration(intervalMS) * time.Millisecond,
		garbageRate: garbageRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		ctrl:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	for i := 0; i < cohortSize; i++ {
		child, err := master.DeriveAddress(0, wallet.ChangeExternal, uint32(i))
		if err != nil {
			return nil, err
		}
		signer, err := child.Signer()
		if err != nil {
			return nil, err
		}
		g.addresses[i] = types.FillAddress(byte(i + 1))
		g.signers[i] = signer
	}

	go g.run()
	return g, nil
}

// Start releases the generator's goroutine to begin submitting load.
// Calling it more than once has no additional effect.
func (g *Generator) Start() {
	g.startOnce.Do(func() { close(g.ctrl) })
}

// Wait blocks until the generator has observed miner.Stopped and its
// goroutine has returned.
func (g *Generator) Wait() {
	<-g.done
}

func (g *Generator) run() {
	<-g.ctrl

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for !miner.Stopped.Load() {
		<-ticker.C
		if miner.Stopped.Load() {
			break
		}
		g.tick()
	}

	log.TxGen.Info().
		Int("sent", g.sent).
		Int("garbage", g.garbage).
		Int("stale", g.stale).
		Msg("transaction generator stopping")
	close(g.done)
}

// tick builds one transaction against the current tip state and
// submits it, taking the blockchain lock before the mempool lock to
// match the ordering every other multi-lock caller uses.
func (g *Generator) tick() {
	senderIdx := g.rng.Intn(cohortSize)
	receiverIdx := g.rng.Intn(cohortSize)
	for receiverIdx == senderIdx {
		receiverIdx = g.rng.Intn(cohortSize)
	}

	g.chain.Lock()
	defer g.chain.Unlock()
	state := g.chain.GetTipStateLocked()

	g.pool.Lock()
	defer g.pool.Unlock()

	raw := tx.Transaction{
		Sender:   g.addresses[senderIdx],
		Nonce:    state[g.addresses[senderIdx]].Nonce + 1,
		Receiver: g.addresses[receiverIdx],
		Value:    transferValue,
	}

	signed, isGarbage := g.sign(raw, senderIdx)
	if err := ledger.ValidateTx(state, signed); err != nil {
		log.TxGen.Debug().Err(err).Bool("garbage", isGarbage).Msg("generated transaction rejected")
		g.stale++
		return
	}

	g.pool.InsertLocked(signed)
	g.sent++
	if isGarbage {
		g.garbage++
	}

	if g.server != nil {
		g.server.Broadcast(p2p.NewTransactionHashes([]types.Hash{signed.Hash()}))
	}
}

// sign signs raw with the cohort's configured key for senderIdx, except
// with probability garbageRate, where it signs the same transaction
// with a freshly generated, unrelated key instead — load meant to
// exercise whatever rejection the chain's signature checking actually
// performs.
func (g *Generator) sign(raw tx.Transaction, senderIdx int) (signed *tx.SignedTransaction, isGarbage bool) {
	if g.garbageRate > 0 && g.rng.Float64() < g.garbageRate {
		fresh, err := crypto.GenerateKey()
		if err == nil {
			return tx.Sign(raw, fresh), true
		}
		log.TxGen.Warn().Err(err).Msg("failed to generate garbage key, falling back to cohort key")
	}
	return tx.Sign(raw, g.signers[senderIdx]), false
}
