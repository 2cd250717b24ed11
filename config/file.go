package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadFile loads node configuration from a .conf file.
// Format: key = value (one per line, # for comments).
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a node config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	case "p2p.enabled", "p2p":
		cfg.P2P.Enabled = parseBool(value)
	case "p2p.listen":
		cfg.P2P.ListenAddr = value
	case "p2p.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.P2P.Port = port
	case "p2p.seeds":
		cfg.P2P.Seeds = parseStringList(value)
	case "p2p.maxpeers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.P2P.MaxPeers = n

	case "mining.enabled", "mine":
		cfg.Mining.Enabled = parseBool(value)
	case "mining.threads":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Mining.Threads = n

	case "txgen.enabled":
		cfg.TxGen.Enabled = parseBool(value)
	case "txgen.interval_ms":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.TxGen.IntervalMS = n
	case "txgen.garbage_rate":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		cfg.TxGen.GarbageRate = f
	case "txgen.wallet_file":
		cfg.TxGen.WalletFile = value
	case "txgen.wallet_passphrase":
		cfg.TxGen.WalletPassphrase = value

	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored.
	}
	return nil
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default node configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	content := `# Nodecore Configuration
#
# This file contains node settings only. Consensus rules (genesis
# allocation, proof-of-work difficulty, block reward) are fixed
# constants in internal/blockchain and cannot be changed here.

# Network: mainnet or testnet
network = ` + string(network) + `

# Data directory (default: ~/.nodecore)
# datadir = ~/.nodecore

# ============================================================================
# P2P Network
# ============================================================================

p2p.enabled = true
p2p.listen = 0.0.0.0
p2p.port = ` + defaultPort(network) + `
p2p.maxpeers = 50

# Seed nodes (comma-separated libp2p multiaddrs)
# p2p.seeds = /ip4/203.0.113.1/tcp/30303/p2p/12D3KooW...

# ============================================================================
# Mining / Block Production
# ============================================================================

mining.enabled = false
# mining.threads = 1

# ============================================================================
# Synthetic Transaction Generator
# ============================================================================

txgen.enabled = false
txgen.interval_ms = 1000
txgen.garbage_rate = 0.05
# txgen.wallet_file = txgen-wallet
# txgen.wallet_passphrase =

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}

func defaultPort(network NetworkType) string {
	if network == Testnet {
		return "30304"
	}
	return "30303"
}
