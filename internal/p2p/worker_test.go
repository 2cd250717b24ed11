package p2p

import (
	"testing"

	"github.com/klingnet-labs/nodecore/internal/blockchain"
	"github.com/klingnet-labs/nodecore/internal/ledger"
	"github.com/klingnet-labs/nodecore/internal/mempool"
	"github.com/klingnet-labs/nodecore/pkg/block"
	"github.com/klingnet-labs/nodecore/pkg/crypto"
	"github.com/klingnet-labs/nodecore/pkg/tx"
	"github.com/klingnet-labs/nodecore/pkg/types"
)

var easyDifficulty = types.Hash{0xFF}

func newTestChain(t *testing.T) *blockchain.Blockchain {
	t.Helper()
	genesis := block.NewBlock(&block.Header{Difficulty: easyDifficulty}, nil)
	state := make(ledger.State)
	for i := byte(1); i <= 5; i++ {
		state[types.FillAddress(i)] = ledger.Account{Nonce: 0, Balance: 10_000}
	}
	return blockchain.New(genesis, easyDifficulty, state)
}

func mineOn(t *testing.T, parent types.Hash, txs []*tx.SignedTransaction) *block.Block {
	t.Helper()
	h := &block.Header{Parent: parent, Difficulty: easyDifficulty}
	for nonce := uint32(0); ; nonce++ {
		h.Nonce = nonce
		b := block.NewBlock(h, txs)
		if b.Hash().LessOrEqual(easyDifficulty) {
			return b
		}
	}
}

func signedFrom(t *testing.T, sender byte, nonce uint64) *tx.SignedTransaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	raw := tx.Transaction{
		Sender:   types.FillAddress(sender),
		Nonce:    nonce,
		Receiver: types.FillAddress(4),
		Value:    100,
	}
	return tx.Sign(raw, key)
}

// fakePeer records every message sent to it.
type fakePeer struct {
	id   string
	sent []Message
}

func (p *fakePeer) ID() string { return p.id }
func (p *fakePeer) Send(m Message) error {
	p.sent = append(p.sent, m)
	return nil
}

// fakeServer records every broadcast message.
type fakeServer struct {
	broadcasts []Message
}

func (s *fakeServer) Peers() []Peer { return nil }
func (s *fakeServer) Broadcast(m Message) {
	s.broadcasts = append(s.broadcasts, m)
}

func TestHandlePingRepliesPong(t *testing.T) {
	chain := newTestChain(t)
	w := NewWorker(chain, mempool.New(), nil)
	peer := &fakePeer{id: "a"}

	w.Handle(peer, Ping("hello"))

	if len(peer.sent) != 1 || peer.sent[0].Tag != TagPong || peer.sent[0].Text != "hello" {
		t.Fatalf("expected a single pong echoing the ping text, got %+v", peer.sent)
	}
}

func TestHandleNewBlockHashesRequestsOnlyUnknown(t *testing.T) {
	chain := newTestChain(t)
	w := NewWorker(chain, mempool.New(), nil)
	peer := &fakePeer{id: "a"}

	known := chain.Tip()
	unknown := types.Hash{0x42}

	w.Handle(peer, NewBlockHashes([]types.Hash{known, unknown}))

	if len(peer.sent) != 1 || peer.sent[0].Tag != TagGetBlocks {
		t.Fatalf("expected a GetBlocks request, got %+v", peer.sent)
	}
	if len(peer.sent[0].Hashes) != 1 || peer.sent[0].Hashes[0] != unknown {
		t.Fatalf("expected GetBlocks to name only the unknown hash, got %v", peer.sent[0].Hashes)
	}
}

func TestHandleGetBlocksRepliesWithKnownBlocksOnly(t *testing.T) {
	chain := newTestChain(t)
	w := NewWorker(chain, mempool.New(), nil)
	peer := &fakePeer{id: "a"}

	known := chain.Tip()
	unknown := types.Hash{0x42}

	w.Handle(peer, GetBlocks([]types.Hash{known, unknown}))

	if len(peer.sent) != 1 || peer.sent[0].Tag != TagBlocks {
		t.Fatalf("expected a Blocks reply, got %+v", peer.sent)
	}
	if len(peer.sent[0].Blocks) != 1 || peer.sent[0].Blocks[0].Hash() != known {
		t.Fatalf("expected the reply to contain only the known block")
	}
}

func TestHandleBlocksCommitsValidBlockAndBroadcastsHash(t *testing.T) {
	chain := newTestChain(t)
	pool := mempool.New()
	stx := signedFrom(t, 1, 1)
	pool.Insert(stx)

	b := mineOn(t, chain.Tip(), []*tx.SignedTransaction{stx})
	server := &fakeServer{}
	w := NewWorker(chain, pool, server)
	peer := &fakePeer{id: "a"}

	w.Handle(peer, Blocks([]*block.Block{b}))

	if !chain.ContainBlock(b.Hash()) {
		t.Fatalf("expected block to be committed")
	}
	if chain.Tip() != b.Hash() {
		t.Fatalf("expected the committed block to become the tip")
	}
	if pool.Contains(stx.Hash()) {
		t.Fatalf("expected the committed block's transaction to be evicted from the mempool")
	}
	if len(server.broadcasts) != 1 || server.broadcasts[0].Tag != TagNewBlockHashes {
		t.Fatalf("expected a NewBlockHashes broadcast, got %+v", server.broadcasts)
	}
}

func TestHandleBlocksBuffersOrphanAndRequestsParent(t *testing.T) {
	chain := newTestChain(t)
	pool := mempool.New()
	server := &fakeServer{}
	w := NewWorker(chain, pool, server)
	peer := &fakePeer{id: "a"}

	missingParent := types.Hash{0x77}
	orphan := mineOn(t, missingParent, nil)

	w.Handle(peer, Blocks([]*block.Block{orphan}))

	if chain.ContainBlock(orphan.Hash()) {
		t.Fatalf("orphan with unknown parent should not be committed")
	}
	if len(peer.sent) != 1 || peer.sent[0].Tag != TagGetBlocks {
		t.Fatalf("expected a GetBlocks request for the missing parent, got %+v", peer.sent)
	}
	if len(peer.sent[0].Hashes) != 1 || peer.sent[0].Hashes[0] != missingParent {
		t.Fatalf("expected the request to name the missing parent, got %v", peer.sent[0].Hashes)
	}
	if len(server.broadcasts) != 0 {
		t.Fatalf("an orphan should not be broadcast as newly committed")
	}
}

func TestHandleTransactionsInsertsOnlyValid(t *testing.T) {
	chain := newTestChain(t)
	pool := mempool.New()
	w := NewWorker(chain, pool, nil)

	valid := signedFrom(t, 1, 1)
	stale := signedFrom(t, 2, 7) // wrong nonce against a fresh genesis state

	w.Handle(&fakePeer{id: "a"}, Transactions([]*tx.SignedTransaction{valid, stale}))

	if !pool.Contains(valid.Hash()) {
		t.Fatalf("expected the valid transaction to be inserted")
	}
	if pool.Contains(stale.Hash()) {
		t.Fatalf("expected the stale-nonce transaction to be rejected")
	}
}

func TestHandleNewTransactionHashesRequestsOnlyMissing(t *testing.T) {
	chain := newTestChain(t)
	pool := mempool.New()
	present := signedFrom(t, 1, 1)
	pool.Insert(present)
	w := NewWorker(chain, pool, nil)
	peer := &fakePeer{id: "a"}

	missing := types.Hash{0x99}
	w.Handle(peer, NewTransactionHashes([]types.Hash{present.Hash(), missing}))

	if len(peer.sent) != 1 || peer.sent[0].Tag != TagGetTransactions {
		t.Fatalf("expected a GetTransactions request, got %+v", peer.sent)
	}
	if len(peer.sent[0].Hashes) != 1 || peer.sent[0].Hashes[0] != missing {
		t.Fatalf("expected the request to name only the missing hash, got %v", peer.sent[0].Hashes)
	}
}

func TestHandleGetTransactionsRepliesWithPendingOnly(t *testing.T) {
	chain := newTestChain(t)
	pool := mempool.New()
	present := signedFrom(t, 1, 1)
	pool.Insert(present)
	w := NewWorker(chain, pool, nil)
	peer := &fakePeer{id: "a"}

	w.Handle(peer, GetTransactions([]types.Hash{present.Hash(), {0x99}}))

	if len(peer.sent) != 1 || peer.sent[0].Tag != TagTransactions {
		t.Fatalf("expected a Transactions reply, got %+v", peer.sent)
	}
	if len(peer.sent[0].Transactions) != 1 || peer.sent[0].Transactions[0].Hash() != present.Hash() {
		t.Fatalf("expected the reply to contain only the pending transaction")
	}
}
