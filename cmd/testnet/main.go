// Command testnet boots a 2-node local testnet from scratch.
//
// Usage: go run ./cmd/testnet/
//
// It boots two in-process nodes sharing the fixed genesis state (one
// miner, one follower), lets the miner produce blocks for a fixed
// window, gossips them over a loopback libp2p transport, and verifies
// both nodes' chains converge on the same tip. Ctrl+C for early
// shutdown.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klingnet-labs/nodecore/internal/blockchain"
	klog "github.com/klingnet-labs/nodecore/internal/log"
	"github.com/klingnet-labs/nodecore/internal/mempool"
	"github.com/klingnet-labs/nodecore/internal/miner"
	"github.com/klingnet-labs/nodecore/internal/p2p"
	"github.com/klingnet-labs/nodecore/internal/transport"
	"github.com/klingnet-labs/nodecore/internal/txgen"
)

const runDuration = 30 * time.Second

// nodeBundle groups the components for one logical node.
type nodeBundle struct {
	name      string
	chain     *blockchain.Blockchain
	pool      *mempool.Pool
	worker    *p2p.Worker
	transport *transport.Transport
	miner     *miner.Miner // nil for the follower
	gen       *txgen.Generator
}

func main() {
	if err := klog.Init("info", false, ""); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := klog.WithComponent("testnet")
	logger.Info().Msg("=== nodecore 2-node local testnet ===")

	genesis := blockchain.Genesis()
	logger.Info().
		Str("genesis_hash", genesis.Hash().String()).
		Uint64("accounts", blockchain.GenesisAccountCount).
		Msg("Genesis loaded (fixed, identical on both nodes)")

	node1, err := buildNode("node-1", 30403, true, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("build node-1")
	}
	node2, err := buildNode("node-2", 30404, false, []string{"/ip4/127.0.0.1/tcp/30403"})
	if err != nil {
		logger.Fatal().Err(err).Msg("build node-2")
	}
	defer node1.transport.Stop()
	defer node2.transport.Stop()

	time.Sleep(500 * time.Millisecond) // let the GossipSub mesh settle

	logger.Info().Msg("Nodes connected, starting block production and synthetic load")
	node1.miner.Start(20_000) // 20ms between attempts
	node1.gen.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("Shutdown signal received")
	case <-time.After(runDuration):
		logger.Info().Dur("duration", runDuration).Msg("Run window elapsed")
	}

	node1.miner.Exit()
	time.Sleep(1 * time.Second) // let the last block propagate

	tip1 := node1.chain.Tip()
	tip2 := node2.chain.Tip()
	logger.Info().
		Str("node1_tip", tip1.String()).
		Str("node2_tip", tip2.String()).
		Int("node1_chain_len", len(node1.chain.AllBlocksInLongestChain())).
		Int("node2_chain_len", len(node2.chain.AllBlocksInLongestChain())).
		Msg("Final chain state")

	if tip1 == tip2 {
		logger.Info().Msg("SUCCESS: both nodes converged on the same tip")
		return
	}
	logger.Error().Msg("FAILURE: chain tips diverged")
	os.Exit(1)
}

// buildNode wires one in-process node: chain, mempool, worker, and
// libp2p transport on loopback. mine controls whether this node also
// runs a miner and the synthetic transaction generator; seeds are
// dialed at transport startup so the follower finds the miner.
func buildNode(name string, port int, mine bool, seeds []string) (*nodeBundle, error) {
	chain := blockchain.NewWithGenesis()
	pool := mempool.New()
	worker := p2p.NewWorker(chain, pool, nil)

	tr := transport.New(transport.Config{ListenAddr: "127.0.0.1", Port: port, Seeds: seeds}, worker)
	if err := tr.Start(); err != nil {
		return nil, fmt.Errorf("start transport: %w", err)
	}

	nb := &nodeBundle{name: name, chain: chain, pool: pool, worker: worker, transport: tr}

	if mine {
		nb.miner = miner.New(chain, pool, worker)

		seed := make([]byte, 64)
		copy(seed, []byte(name+"-testnet-seed"))
		gen, err := txgen.New(chain, pool, worker, seed, 100, 0.05)
		if err != nil {
			return nil, fmt.Errorf("create transaction generator: %w", err)
		}
		nb.gen = gen
	}

	return nb, nil
}
