// Package config loads and validates node configuration: the genesis
// file, network/storage/consensus/validator options, and TLS material,
// generalizing the teacher's flat Config struct to the spec's
// dotted-section key-value document.
package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// TLSConfig holds paths to the PEM files needed for mTLS.
// When nil or all paths empty, the node falls back to plain TCP.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`   // CA certificate PEM path
	NodeCert string `json:"node_cert"` // node certificate PEM path
	NodeKey  string `json:"node_key"`  // node private key PEM path
}

// NetworkConfig configures the p2p transport.
type NetworkConfig struct {
	ListenPort     int        `json:"listen_port"`
	ListenAddr     string     `json:"listen_addr"`
	BootstrapPeers []string   `json:"bootstrap_peers,omitempty"` // multiaddrs
	MaxPeers       int        `json:"max_peers"`
	TLS            *TLSConfig `json:"tls,omitempty"`
}

// StorageConfig configures the on-disk database.
type StorageConfig struct {
	DBPath           string `json:"db_path"`
	CreateIfMissing  bool   `json:"create_if_missing"`
}

// ConsensusConfig configures block production timing and limits.
type ConsensusConfig struct {
	BlockIntervalSeconds int `json:"block_interval"`
	MaxTxsPerBlock       int `json:"max_txs_per_block"`
}

// ValidatorConfig configures whether this node proposes blocks and where
// its signing key lives.
type ValidatorConfig struct {
	Enabled        bool   `json:"enabled"`
	PrivateKeyPath string `json:"private_key_path"`
}

// RPCConfig configures the optional JSON-RPC surface.
type RPCConfig struct {
	Enabled   bool   `json:"enabled"`
	Addr      string `json:"addr"`
	AuthToken string `json:"auth_token,omitempty"` // empty -> no auth
}

// Config holds all node configuration.
type Config struct {
	NodeID      string          `json:"node_id"`
	GenesisFile string          `json:"genesis_file"`
	Network     NetworkConfig   `json:"network"`
	Storage     StorageConfig   `json:"storage"`
	Consensus   ConsensusConfig `json:"consensus"`
	Validator   ValidatorConfig `json:"validator"`
	RPC         RPCConfig       `json:"rpc"`
	PeerKeyPath string          `json:"peer_key_path"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:      "node0",
		GenesisFile: "./genesis.json",
		Network: NetworkConfig{
			ListenPort: 30303,
			ListenAddr: "0.0.0.0",
			MaxPeers:   25,
		},
		Storage: StorageConfig{
			DBPath:          "./data",
			CreateIfMissing: true,
		},
		Consensus: ConsensusConfig{
			BlockIntervalSeconds: 3,
			MaxTxsPerBlock:       500,
		},
		RPC: RPCConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8545",
		},
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.GenesisFile == "" {
		return fmt.Errorf("genesis_file must not be empty")
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path must not be empty")
	}
	if c.Network.ListenPort <= 0 || c.Network.ListenPort > 65535 {
		return fmt.Errorf("network.listen_port must be 1-65535, got %d", c.Network.ListenPort)
	}
	if c.RPC.Enabled {
		if c.RPC.Addr == "" {
			return fmt.Errorf("rpc.addr must not be empty when rpc.enabled")
		}
	}
	if c.Consensus.BlockIntervalSeconds <= 0 {
		return fmt.Errorf("consensus.block_interval must be positive")
	}
	if c.Consensus.MaxTxsPerBlock <= 0 {
		return fmt.Errorf("consensus.max_txs_per_block must be positive")
	}
	if c.Validator.Enabled && c.Validator.PrivateKeyPath == "" {
		return fmt.Errorf("validator.private_key_path must be set when validator.enabled")
	}
	if tls := c.Network.TLS; tls != nil {
		allSet := tls.CACert != "" && tls.NodeCert != "" && tls.NodeKey != ""
		allEmpty := tls.CACert == "" && tls.NodeCert == "" && tls.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("network.tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// validateHexAddress checks that s decodes to exactly 32 bytes of hex.
func validateHexAddress(s string) error {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return fmt.Errorf("must be 64-char hex (32 bytes), got %q", s)
	}
	return nil
}
