// Package transport wires internal/p2p's transport-agnostic Worker to a
// concrete libp2p host: GossipSub topics carry broadcast announcements,
// and direct streams carry the request/response exchanges (GetBlocks,
// GetTransactions, Ping) a single Peer.Send needs to address one peer.
//
// Peer discovery (DHT/mDNS) and authenticated handshakes are explicitly
// out of scope — seeds are dialed once at startup from static multiaddrs,
// and any stream speaking this protocol ID is accepted.
package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/klingnet-labs/nodecore/internal/log"
	"github.com/klingnet-labs/nodecore/internal/p2p"
	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// ProtocolID is the libp2p stream protocol this transport speaks for
// direct, peer-addressed request/response exchanges.
const ProtocolID = "/nodecore/msg/1.0.0"

// maxFrameSize bounds a single direct-stream frame, guarding against a
// peer claiming an enormous length prefix to force a huge allocation.
const maxFrameSize = 16 * 1024 * 1024

// Config holds the transport's startup settings.
type Config struct {
	ListenAddr string
	Port       int
	Seeds      []string
}

// Transport is a libp2p-backed implementation of p2p.Server. It owns
// the GossipSub topics and peer streams; all consensus-relevant logic
// stays in the Worker it feeds.
type Transport struct {
	cfg    Config
	worker *p2p.Worker

	host   host.Host
	pubsub *pubsub.PubSub
	ctx    context.Context
	cancel context.CancelFunc

	topicBlocks *pubsub.Topic
	topicTxs    *pubsub.Topic
	subBlocks   *pubsub.Subscription
	subTxs      *pubsub.Subscription

	mu    sync.RWMutex
	peers map[peer.ID]*streamPeer
}

// New builds a Transport bound to worker. Call Start to bring up the
// libp2p host.
func New(cfg Config, worker *p2p.Worker) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		cfg:    cfg,
		worker: worker,
		ctx:    ctx,
		cancel: cancel,
		peers:  make(map[peer.ID]*streamPeer),
	}
}

// Start creates the libp2p host, joins the gossip topics, registers the
// direct-stream handler, and dials any configured seeds.
func (t *Transport) Start() error {
	addr := fmt.Sprintf("/ip4/%s/tcp/%d", t.cfg.ListenAddr, t.cfg.Port)

	h, err := libp2p.New(libp2p.ListenAddrStrings(addr))
	if err != nil {
		return fmt.Errorf("create libp2p host: %w", err)
	}
	t.host = h
	h.SetStreamHandler(ProtocolID, t.handleStream)

	ps, err := pubsub.NewGossipSub(t.ctx, h)
	if err != nil {
		h.Close()
		return fmt.Errorf("create pubsub: %w", err)
	}
	t.pubsub = ps

	if err := t.joinTopics(); err != nil {
		h.Close()
		return err
	}

	go t.readLoop(t.subBlocks)
	go t.readLoop(t.subTxs)

	for _, seed := range t.cfg.Seeds {
		if err := t.dial(seed); err != nil {
			log.P2P.Warn().Err(err).Str("seed", seed).Msg("failed to dial seed")
		}
	}

	t.worker.SetServer(t)
	return nil
}

// Stop tears down subscriptions and closes the host.
func (t *Transport) Stop() error {
	t.cancel()
	if t.subBlocks != nil {
		t.subBlocks.Cancel()
	}
	if t.subTxs != nil {
		t.subTxs.Cancel()
	}
	if t.host != nil {
		return t.host.Close()
	}
	return nil
}

func (t *Transport) joinTopics() error {
	var err error
	t.topicBlocks, err = t.pubsub.Join(p2p.TopicBlocks)
	if err != nil {
		return fmt.Errorf("join block topic: %w", err)
	}
	t.topicTxs, err = t.pubsub.Join(p2p.TopicTransactions)
	if err != nil {
		return fmt.Errorf("join tx topic: %w", err)
	}
	t.subBlocks, err = t.topicBlocks.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribe block topic: %w", err)
	}
	t.subTxs, err = t.topicTxs.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribe tx topic: %w", err)
	}
	return nil
}

func (t *Transport) dial(addrStr string) error {
	maddr, err := multiaddr.NewMultiaddr(addrStr)
	if err != nil {
		return fmt.Errorf("parse seed multiaddr: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("parse seed peer info: %w", err)
	}
	ctx, cancel := context.WithTimeout(t.ctx, 5*time.Second)
	defer cancel()
	return t.host.Connect(ctx, *info)
}

// readLoop dispatches every GossipSub message on sub to the worker,
// wrapped in a streamPeer so the worker's direct replies (GetBlocks,
// GetTransactions) go back over a stream to the originating peer.
func (t *Transport) readLoop(sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(t.ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == t.host.ID() {
			continue
		}
		decoded, _, err := p2p.Unmarshal(msg.Data)
		if err != nil {
			log.P2P.Debug().Err(err).Str("peer", msg.ReceivedFrom.String()).Msg("dropped malformed gossip message")
			continue
		}
		t.worker.Handle(t.peerFor(msg.ReceivedFrom), decoded)
	}
}

// handleStream reads one framed Message from a direct peer stream and
// dispatches it to the worker. A new stream is opened per message, so
// the loop here reads exactly one frame — the 4-byte length prefix,
// then that many more bytes — before closing.
func (t *Transport) handleStream(s network.Stream) {
	defer s.Close()
	remote := s.Conn().RemotePeer()

	reader := bufio.NewReader(s)
	var lengthPrefix [4]byte
	if _, err := io.ReadFull(reader, lengthPrefix[:]); err != nil {
		return
	}
	length := binary.LittleEndian.Uint32(lengthPrefix[:])
	if length > maxFrameSize {
		log.P2P.Warn().Str("peer", remote.String()).Uint32("length", length).Msg("rejected oversized direct message")
		return
	}
	frame := make([]byte, 4+length)
	copy(frame, lengthPrefix[:])
	if _, err := io.ReadFull(reader, frame[4:]); err != nil {
		log.P2P.Debug().Err(err).Str("peer", remote.String()).Msg("truncated direct message")
		return
	}
	decoded, _, err := p2p.Unmarshal(frame)
	if err != nil {
		log.P2P.Debug().Err(err).Str("peer", remote.String()).Msg("dropped malformed direct message")
		return
	}
	t.worker.Handle(t.peerFor(remote), decoded)
}

func (t *Transport) peerFor(id peer.ID) *streamPeer {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[id]; ok {
		return p
	}
	p := &streamPeer{host: t.host, id: id}
	t.peers[id] = p
	return p
}

// Peers implements p2p.Server.
func (t *Transport) Peers() []p2p.Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]p2p.Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	return out
}

// Broadcast implements p2p.Server, publishing to the topic matching the
// message's kind.
func (t *Transport) Broadcast(msg p2p.Message) {
	topic := t.topicBlocks
	if msg.Tag == p2p.TagNewTransactionHashes || msg.Tag == p2p.TagTransactions {
		topic = t.topicTxs
	}
	if topic == nil {
		return
	}
	if err := topic.Publish(t.ctx, msg.Marshal()); err != nil {
		log.P2P.Warn().Err(err).Msg("broadcast publish failed")
	}
}

// streamPeer implements p2p.Peer by opening a fresh stream per Send.
type streamPeer struct {
	host host.Host
	id   peer.ID
}

func (p *streamPeer) ID() string { return p.id.String() }

func (p *streamPeer) Send(msg p2p.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := p.host.NewStream(ctx, p.id, ProtocolID)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer s.Close()
	_, err = s.Write(msg.Marshal())
	return err
}
