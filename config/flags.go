package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// Flags holds parsed command-line flags.
type Flags struct {
	Help    bool
	Version bool

	Network string
	DataDir string
	Config  string

	P2P      bool
	P2PPort  int
	Seeds    string
	MaxPeers int

	Mine    bool
	Threads int

	TxGen            bool
	TxGenIntervalMS  int
	TxGenGarbageRate float64
	WalletFile       string

	LogLevel string
	LogFile  string
	LogJSON  bool

	Args []string

	SetP2P     bool
	SetMine    bool
	SetTxGen   bool
	SetLogJSON bool
}

// ParseFlags parses command-line flags.
func ParseFlags() *Flags {
	f := &Flags{}
	fs := flag.NewFlagSet("nodecore", flag.ContinueOnError)

	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	testnet := fs.Bool("testnet", false, "Use testnet (shorthand for --network=testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	fs.BoolVar(&f.P2P, "p2p", true, "Enable P2P networking")
	fs.IntVar(&f.P2PPort, "p2p-port", 0, "P2P listen port")
	fs.StringVar(&f.Seeds, "seeds", "", "Seed nodes as comma-separated libp2p multiaddrs")
	fs.IntVar(&f.MaxPeers, "maxpeers", 0, "Maximum number of peers")

	fs.BoolVar(&f.Mine, "mine", false, "Enable block production")
	fs.IntVar(&f.Threads, "threads", 0, "Mining threads")

	fs.BoolVar(&f.TxGen, "txgen", false, "Enable the synthetic transaction generator")
	fs.IntVar(&f.TxGenIntervalMS, "txgen-interval-ms", 0, "Milliseconds between generated transactions")
	fs.Float64Var(&f.TxGenGarbageRate, "txgen-garbage-rate", -1, "Fraction of generated transactions that are deliberately invalid")
	fs.StringVar(&f.WalletFile, "txgen-wallet", "", "Transaction generator keystore file")

	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() {
		printUsage()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if *testnet {
		f.Network = "testnet"
	}
	f.SetP2P = isFlagSet(fs, "p2p")
	f.SetMine = isFlagSet(fs, "mine")
	f.SetTxGen = isFlagSet(fs, "txgen")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()

	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			fmt.Fprintf(os.Stderr, "Error: flag %q was not parsed (positional argument stopped parsing)\n", arg)
			os.Exit(1)
		}
	}

	return f
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	if f.SetP2P {
		cfg.P2P.Enabled = f.P2P
	}
	if f.P2PPort != 0 {
		cfg.P2P.Port = f.P2PPort
	}
	if f.Seeds != "" {
		cfg.P2P.Seeds = parseStringList(f.Seeds)
	}
	if f.MaxPeers != 0 {
		cfg.P2P.MaxPeers = f.MaxPeers
	}

	if f.SetMine {
		cfg.Mining.Enabled = f.Mine
	}
	if f.Threads != 0 {
		cfg.Mining.Threads = f.Threads
	}

	if f.SetTxGen {
		cfg.TxGen.Enabled = f.TxGen
	}
	if f.TxGenIntervalMS != 0 {
		cfg.TxGen.IntervalMS = f.TxGenIntervalMS
	}
	if f.TxGenGarbageRate >= 0 {
		cfg.TxGen.GarbageRate = f.TxGenGarbageRate
	}
	if f.WalletFile != "" {
		cfg.TxGen.WalletFile = f.WalletFile
	}

	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `Nodecore - peer-to-peer proof-of-work blockchain node

Usage:
  noded [options]
  noded --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --network       Network type: mainnet (default) or testnet
  --testnet       Shorthand for --network=testnet
  --datadir       Data directory (default: ~/.nodecore)
  --config, -c    Config file path (default: <datadir>/nodecore.conf)

P2P Options:
  --p2p           Enable P2P networking (default: true)
  --p2p-port      P2P listen port (mainnet: 30303, testnet: 30304)
  --seeds         Seed nodes as comma-separated libp2p multiaddrs
  --maxpeers      Maximum number of peers (default: 50; stored in the
                  config but not enforced by the transport)

Mining Options:
  --mine          Enable block production
  --threads       Mining threads (default: 1; stored in the config but
                  not read: the miner always runs one goroutine)

Transaction Generator Options:
  --txgen                  Enable the synthetic transaction generator
  --txgen-interval-ms      Milliseconds between generated transactions
  --txgen-garbage-rate     Fraction of generated transactions that are deliberately invalid
  --txgen-wallet           Keystore file backing the generator's cohort addresses

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: <datadir>/logs/nodecore.log;
                  logs also go to stdout)
  --log-json      Output logs as JSON

Examples:
  # Start a mainnet node
  noded

  # Start a mining testnet node with the transaction generator running
  noded --network=testnet --mine --txgen

Note:
  Consensus rules (genesis allocation, proof-of-work difficulty, block
  reward) are fixed constants and cannot be changed at runtime. Data
  directories are created automatically on first start.
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("noded version 0.1.0")
		os.Exit(0)
	}

	network := Mainnet
	if strings.ToLower(flags.Network) == "testnet" {
		network = Testnet
	}

	cfg := Default(network)

	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}

	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default
// config file if they don't already exist. Idempotent — safe to call on
// every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.ChainDataDir(),
		cfg.KeystoreDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
