package p2p

import (
	"time"

	"github.com/klingnet-labs/nodecore/internal/blockchain"
	"github.com/klingnet-labs/nodecore/internal/ledger"
	"github.com/klingnet-labs/nodecore/internal/log"
	"github.com/klingnet-labs/nodecore/internal/mempool"
	"github.com/klingnet-labs/nodecore/pkg/block"
	"github.com/klingnet-labs/nodecore/pkg/tx"
	"github.com/klingnet-labs/nodecore/pkg/types"
)

// Worker is the gossip/sync dispatch loop. It owns no transport of its
// own — Server and Peer are the only points of contact with the network
// — and every mutation it makes to the chain or mempool goes through
// their already-locking public methods, except the Blocks and
// Transactions paths, which span both and must take the blockchain lock
// before the mempool lock, matching the order the miner uses.
type Worker struct {
	chain  *blockchain.Blockchain
	pool   *mempool.Pool
	server Server
	dedup  *Dedup
}

// NewWorker builds a dispatch worker bound to a chain, mempool, and
// server. server may be set after construction if the transport needs
// the worker to exist first; Broadcast calls on a nil server are no-ops.
func NewWorker(chain *blockchain.Blockchain, pool *mempool.Pool, server Server) *Worker {
	return &Worker{chain: chain, pool: pool, server: server, dedup: NewDedup()}
}

// SetServer attaches the transport once it is available.
func (w *Worker) SetServer(server Server) { w.server = server }

// AnnounceBlock broadcasts a single mined block's hash as a
// NewBlockHashes message. It implements the miner package's Announcer
// interface, so a Worker can be handed to miner.New directly.
func (w *Worker) AnnounceBlock(h types.Hash) {
	w.broadcast(NewBlockHashes([]types.Hash{h}))
}

func (w *Worker) broadcast(msg Message) {
	if w.server != nil {
		w.server.Broadcast(msg)
	}
}

// Handle dispatches a single message received from peer. It is safe to
// call concurrently from multiple peer-reader goroutines; every
// chain/mempool access below is already synchronized by those packages.
func (w *Worker) Handle(peer Peer, msg Message) {
	switch msg.Tag {
	case TagPing:
		w.handlePing(peer, msg)
	case TagPong:
		log.P2P.Debug().Str("peer", peer.ID()).Str("text", msg.Text).Msg("pong received")
	case TagNewBlockHashes:
		w.handleNewBlockHashes(peer, msg)
	case TagGetBlocks:
		w.handleGetBlocks(peer, msg)
	case TagBlocks:
		w.handleBlocks(peer, msg)
	case TagNewTransactionHashes:
		w.handleNewTransactionHashes(peer, msg)
	case TagGetTransactions:
		w.handleGetTransactions(peer, msg)
	case TagTransactions:
		w.handleTransactions(msg)
	default:
		log.P2P.Warn().Str("peer", peer.ID()).Int("tag", int(msg.Tag)).Msg("unknown message tag")
	}
}

func (w *Worker) handlePing(peer Peer, msg Message) {
	if err := peer.Send(Pong(msg.Text)); err != nil {
		log.P2P.Warn().Err(err).Str("peer", peer.ID()).Msg("failed to reply to ping")
	}
}

// handleNewBlockHashes requests every hash the chain does not already
// hold. Announcements this node has already processed are filtered by
// the dedup cache before the chain is even consulted.
func (w *Worker) handleNewBlockHashes(peer Peer, msg Message) {
	if w.dedup.SeenOrRemember(msg.Marshal()) {
		return
	}
	var missing []types.Hash
	for _, h := range msg.Hashes {
		if !w.chain.ContainBlock(h) {
			missing = append(missing, h)
		}
	}
	if len(missing) == 0 {
		return
	}
	if err := peer.Send(GetBlocks(missing)); err != nil {
		log.P2P.Warn().Err(err).Str("peer", peer.ID()).Msg("failed to request blocks")
	}
}

// handleGetBlocks replies with every requested block this node holds,
// silently dropping hashes it does not recognize.
func (w *Worker) handleGetBlocks(peer Peer, msg Message) {
	var reply []*block.Block
	for _, h := range msg.Hashes {
		if w.chain.ContainBlock(h) {
			reply = append(reply, w.chain.GetBlock(h))
		}
	}
	if len(reply) == 0 {
		return
	}
	if err := peer.Send(Blocks(reply)); err != nil {
		log.P2P.Warn().Err(err).Str("peer", peer.ID()).Msg("failed to send blocks")
	}
}

// handleBlocks runs every delivered block through the insertion gate:
// already-known and invalid-PoW blocks are dropped, blocks whose parent
// is unknown are buffered as orphans and their missing parents batched
// into one GetBlocks request back to the sender, and everything else is
// committed — along with any orphans the commit transitively unblocks.
// Newly committed blocks' transactions are evicted from the mempool
// under the same blockchain-then-mempool critical section, and their
// hashes are announced to every other peer.
//
// A Blocks payload this node did not ask for (no matching GetBlocks was
// sent) is processed exactly the same as one it did ask for — the
// insertion gate does not track request/response correlation.
func (w *Worker) handleBlocks(peer Peer, msg Message) {
	var missingParents []types.Hash
	var newlyCommitted []types.Hash

	for _, b := range msg.Blocks {
		hash := b.Hash()
		if w.chain.ContainBlock(hash) {
			continue
		}
		if !w.chain.PowValidityCheck(b) {
			log.P2P.Debug().Str("peer", peer.ID()).Str("block", hash.String()).Msg("rejected block failing proof of work")
			continue
		}
		if !w.chain.ParentCheck(b) {
			w.chain.AddToOrphans(b)
			missingParents = append(missingParents, b.Header.Parent)
			continue
		}

		w.chain.Lock()
		var committed []types.Hash
		w.chain.InsertAllLocked(b, blockchain.ReceivedOrigin(receiveDelayMS(b)), &committed)

		w.pool.Lock()
		for _, ch := range committed {
			for _, signed := range w.chain.GetBlockLocked(ch).Content.Transactions {
				w.pool.RemoveManyLocked([]types.Hash{signed.Hash()})
			}
		}
		w.pool.Unlock()
		w.chain.Unlock()

		newlyCommitted = append(newlyCommitted, committed...)
	}

	if len(missingParents) > 0 {
		if err := peer.Send(GetBlocks(missingParents)); err != nil {
			log.P2P.Warn().Err(err).Str("peer", peer.ID()).Msg("failed to request missing parents")
		}
	}
	if len(newlyCommitted) > 0 {
		w.broadcast(NewBlockHashes(newlyCommitted))
	}
}

// handleNewTransactionHashes requests every hash not already pending.
func (w *Worker) handleNewTransactionHashes(peer Peer, msg Message) {
	if w.dedup.SeenOrRemember(msg.Marshal()) {
		return
	}
	var missing []types.Hash
	for _, h := range msg.Hashes {
		if !w.pool.Contains(h) {
			missing = append(missing, h)
		}
	}
	if len(missing) == 0 {
		return
	}
	if err := peer.Send(GetTransactions(missing)); err != nil {
		log.P2P.Warn().Err(err).Str("peer", peer.ID()).Msg("failed to request transactions")
	}
}

// handleGetTransactions replies with every requested transaction this
// node has pending, silently dropping hashes it does not recognize.
func (w *Worker) handleGetTransactions(peer Peer, msg Message) {
	var reply []*tx.SignedTransaction
	for _, h := range msg.Hashes {
		if signed := w.pool.Get(h); signed != nil {
			reply = append(reply, signed)
		}
	}
	if len(reply) == 0 {
		return
	}
	if err := peer.Send(Transactions(reply)); err != nil {
		log.P2P.Warn().Err(err).Str("peer", peer.ID()).Msg("failed to send transactions")
	}
}

// handleTransactions validates each delivered transaction against the
// current tip state and inserts the ones that still pass. It does not
// re-announce or request relay of anything it accepts — unlike a newly
// mined or received block, a transaction arriving this way is a direct
// reply to this node's own GetTransactions, not something the rest of
// the network needs to hear about from this node too.
func (w *Worker) handleTransactions(msg Message) {
	w.chain.Lock()
	defer w.chain.Unlock()
	state := w.chain.GetTipStateLocked()

	w.pool.Lock()
	defer w.pool.Unlock()

	for _, signed := range msg.Transactions {
		if err := ledger.ValidateTx(state, signed); err != nil {
			log.P2P.Debug().Err(err).Str("tx", signed.Hash().String()).Msg("rejected transaction")
			continue
		}
		w.pool.InsertLocked(signed)
	}
}

func receiveDelayMS(b *block.Block) int64 {
	now := uint64(time.Now().UnixMilli())
	if now <= b.Header.Timestamp {
		return 0
	}
	return int64(now - b.Header.Timestamp)
}
