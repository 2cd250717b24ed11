package txgen

import (
	"sync"
	"testing"
	"time"

	"github.com/klingnet-labs/nodecore/internal/blockchain"
	"github.com/klingnet-labs/nodecore/internal/ledger"
	"github.com/klingnet-labs/nodecore/internal/mempool"
	"github.com/klingnet-labs/nodecore/internal/miner"
	"github.com/klingnet-labs/nodecore/internal/p2p"
	"github.com/klingnet-labs/nodecore/pkg/block"
	"github.com/klingnet-labs/nodecore/pkg/tx"
	"github.com/klingnet-labs/nodecore/pkg/types"
)

var easyDifficulty = types.Hash{0xFF}

func newTestChain(t *testing.T) *blockchain.Blockchain {
	t.Helper()
	genesis := block.NewBlock(&block.Header{Difficulty: easyDifficulty}, nil)
	state := make(ledger.State)
	for i := byte(1); i <= cohortSize; i++ {
		state[types.FillAddress(i)] = ledger.Account{Nonce: 0, Balance: 10_000}
	}
	return blockchain.New(genesis, easyDifficulty, state)
}

func testSeed(t *testing.T) []byte {
	t.Helper()
	seed := make([]byte, 64)
	for i := range seed {
		seed[i] = byte(i)
	}
	return seed
}

// captureServer records every broadcast Message's tag so tests can
// assert on what the generator announced, without a real transport.
type captureServer struct {
	mu        sync.Mutex
	broadcast []p2p.Message
}

func (s *captureServer) Peers() []p2p.Peer { return nil }

func (s *captureServer) Broadcast(msg p2p.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcast = append(s.broadcast, msg)
}

func (s *captureServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.broadcast)
}

func resetStopped() { miner.Stopped.Store(false) }

func TestNewUsesDistinctGenesisCohortAddresses(t *testing.T) {
	defer resetStopped()
	chain := newTestChain(t)
	pool := mempool.New()
	g, err := New(chain, pool, nil, testSeed(t), 10, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	seen := make(map[types.Address]bool)
	for i, addr := range g.addresses {
		if addr != types.FillAddress(byte(i+1)) {
			t.Errorf("addresses[%d] = %s, want genesis account %d", i, addr, i+1)
		}
		seen[addr] = true
	}
	if len(seen) != cohortSize {
		t.Errorf("expected %d distinct cohort addresses, got %d", cohortSize, len(seen))
	}
}

func TestGeneratorWaitsForStart(t *testing.T) {
	defer resetStopped()
	chain := newTestChain(t)
	pool := mempool.New()
	server := &captureServer{}
	g, err := New(chain, pool, server, testSeed(t), 5, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if pool.Size() != 0 {
		t.Errorf("pool should stay empty before Start, got size %d", pool.Size())
	}

	g.Start()
	miner.Stopped.Store(true)
	g.Wait()
}

func TestGeneratorSubmitsAndBroadcastsTransactions(t *testing.T) {
	defer resetStopped()
	chain := newTestChain(t)
	pool := mempool.New()
	server := &captureServer{}
	g, err := New(chain, pool, server, testSeed(t), 5, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g.Start()

	deadline := time.After(2 * time.Second)
	for pool.Size() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a generated transaction")
		case <-time.After(10 * time.Millisecond):
		}
	}

	miner.Stopped.Store(true)
	g.Wait()

	if server.count() == 0 {
		t.Error("expected at least one broadcast announcing a generated transaction")
	}
	pool.Lock()
	pending := pool.AllLocked()
	pool.Unlock()
	for _, signed := range pending {
		if err := ledger.ValidateTx(chain.GetTipState(), signed); err != nil {
			t.Errorf("generated transaction failed validation against tip state: %v", err)
		}
	}
}

func TestGeneratorStopsWhenMinerStopped(t *testing.T) {
	defer resetStopped()
	chain := newTestChain(t)
	pool := mempool.New()
	miner.Stopped.Store(true)

	g, err := New(chain, pool, nil, testSeed(t), 5, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g.Start()

	select {
	case <-doneSignal(g):
	case <-time.After(1 * time.Second):
		t.Fatal("generator did not stop when miner.Stopped was already true at Start")
	}
}

func doneSignal(g *Generator) <-chan struct{} {
	return g.done
}

func TestGarbageTransactionsAreSignedByAnUnrelatedKey(t *testing.T) {
	defer resetStopped()
	chain := newTestChain(t)
	pool := mempool.New()
	g, err := New(chain, pool, nil, testSeed(t), 5, 1.0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	state := chain.GetTipState()
	raw := tx.Transaction{
		Sender:   g.addresses[0],
		Nonce:    state[g.addresses[0]].Nonce + 1,
		Receiver: g.addresses[1],
		Value:    transferValue,
	}

	signed, isGarbage := g.sign(raw, 0)
	if !isGarbage {
		t.Fatal("expected garbage path with garbageRate=1.0")
	}
	if string(signed.PublicKey) == string(g.signers[0].PublicKey()) {
		t.Error("garbage transaction should not be signed by the cohort's configured key")
	}
	// The chain does not bind sender address to public key, so this
	// still verifies and validates — demonstrating the known gap rather
	// than being rejected by it.
	if !signed.VerifySignature() {
		t.Error("garbage transaction should still carry a self-consistent signature")
	}
}
