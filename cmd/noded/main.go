// Command noded runs a single peer-to-peer proof-of-work blockchain
// node: the fork-choice engine, mempool, miner, and gossip worker wired
// together over a libp2p transport, with an optional synthetic
// transaction generator for exercising load without a real wallet.
//
// Usage:
//
//	noded [options]
//	noded --help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/klingnet-labs/nodecore/config"
	"github.com/klingnet-labs/nodecore/internal/blockchain"
	klog "github.com/klingnet-labs/nodecore/internal/log"
	"github.com/klingnet-labs/nodecore/internal/mempool"
	"github.com/klingnet-labs/nodecore/internal/miner"
	"github.com/klingnet-labs/nodecore/internal/p2p"
	"github.com/klingnet-labs/nodecore/internal/transport"
	"github.com/klingnet-labs/nodecore/internal/txgen"
)

func main() {
	// ── 1. Load config (defaults → file → flags) ────────────────────────
	cfg, flags, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Init logger ────────────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating logs dir: %v\n", err)
			os.Exit(1)
		}
		logFile = filepath.Join(logsDir, "nodecore.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := klog.WithComponent("node")

	// ── 3. Genesis (fixed constants, not loaded from file) ───────────────
	genesis := blockchain.Genesis()
	logger.Info().
		Str("network", string(cfg.Network)).
		Str("genesis_hash", genesis.Hash().String()).
		Uint64("genesis_accounts", blockchain.GenesisAccountCount).
		Uint64("genesis_balance", blockchain.GenesisAccountBalance).
		Msg("Starting nodecore node")

	// ── 4. Build the chain, mempool, and network worker ──────────────────
	chain := blockchain.NewWithGenesis()
	pool := mempool.New()
	worker := p2p.NewWorker(chain, pool, nil)

	// ── 5. Miner (always constructed, only driven if mining is enabled) ──
	m := miner.New(chain, pool, worker)
	if cfg.Mining.Enabled {
		m.Start(0)
		logger.Info().Msg("Block production enabled")
	}

	// ── 6. Transport ──────────────────────────────────────────────────────
	if cfg.P2P.Enabled {
		tr := transport.New(transport.Config{
			ListenAddr: cfg.P2P.ListenAddr,
			Port:       cfg.P2P.Port,
			Seeds:      cfg.P2P.Seeds,
		}, worker)
		if err := tr.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start transport")
		}
		defer tr.Stop()
		logger.Info().
			Str("listen", cfg.P2P.ListenAddr).
			Int("port", cfg.P2P.Port).
			Int("seeds", len(cfg.P2P.Seeds)).
			Msg("Transport started")
	} else {
		logger.Warn().Msg("P2P disabled — node is isolated")
	}

	// ── 7. Synthetic transaction generator ───────────────────────────────
	if cfg.TxGen.Enabled {
		walletName := cfg.TxGen.WalletFile
		if walletName == "" {
			walletName = "txgen"
		}
		seed, err := txgen.LoadOrCreateSeed(cfg.KeystoreDir(), walletName, cfg.TxGen.WalletPassphrase)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to load transaction generator wallet")
		}
		gen, err := txgen.New(chain, pool, worker, seed, cfg.TxGen.IntervalMS, cfg.TxGen.GarbageRate)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create transaction generator")
		}
		gen.Start()
		logger.Info().
			Int("interval_ms", cfg.TxGen.IntervalMS).
			Float64("garbage_rate", cfg.TxGen.GarbageRate).
			Msg("Synthetic transaction generator started")
	}

	// ── 8. Startup banner ─────────────────────────────────────────────────
	logger.Info().
		Str("tip", chain.Tip().String()).
		Bool("mining", cfg.Mining.Enabled).
		Bool("txgen", cfg.TxGen.Enabled).
		Msg("Node started successfully")
	if len(flags.Args) > 0 {
		logger.Warn().Strs("ignored_args", flags.Args).Msg("Ignoring unrecognized positional arguments")
	}

	// ── 9. Wait for shutdown ──────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	m.Exit()
	stats := m.StatsSnapshot()
	logger.Info().
		Int("blocks_mined", stats.BlocksMined).
		Dur("elapsed", stats.Elapsed).
		Msg("Goodbye!")
}
