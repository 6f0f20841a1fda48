package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// TLSConfig holds paths to the PEM files needed for mTLS between peers.
// When nil or all paths empty, the node falls back to plain TCP.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`
	NodeCert string `json:"node_cert"`
	NodeKey  string `json:"node_key"`
}

// SeedPeer identifies a remote node to connect to on startup.
type SeedPeer struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// ValidatorConfig seeds one entry of the genesis validator list.
type ValidatorConfig struct {
	Address        string `json:"address"`         // hex address
	PubKey         string `json:"pubkey"`           // hex ed25519 pubkey
	Balance        uint64 `json:"balance"`
	EffectiveBalance uint64 `json:"effective_balance"`
	ActivateHeight uint64 `json:"activate_height"`
}

// GenesisConfig describes the chain's initial state: the compiled-in
// allocation list and validator seed list setup_genesis applies.
type GenesisConfig struct {
	ChainID        uint64            `json:"chain_id"`
	Time           int64             `json:"time"`
	Alloc          map[string]uint64 `json:"alloc"`          // hex address -> initial balance
	Validators     []ValidatorConfig `json:"validators"`
	AuthorityPubKey string           `json:"authority_pubkey"` // hex, genesis consensus authority
}

// Config holds all node configuration, loaded from the JSON file named by
// --config and overridden by CLI flags / the MAP_LOG env var.
type Config struct {
	DataDir     string        `json:"data_dir"`
	LogLevel    string        `json:"log_level"`
	RPCAddr     string        `json:"rpc_addr"`
	RPCPort     int           `json:"rpc_port"`
	P2PPort     int           `json:"p2p_port"`
	Single      bool          `json:"single"`        // run standalone, no peer sync
	NodeKey     string        `json:"node_key"`       // hex ed25519 private key, this node's signing key
	MaxBlockTxs int           `json:"max_block_txs"`  // DefaultConfig sets 500; no component reads it, proposals take every pending tx
	Genesis     GenesisConfig `json:"genesis"`
	SeedPeers   []SeedPeer    `json:"seed_peers,omitempty"`
	TLS         *TLSConfig    `json:"tls,omitempty"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:     "./data",
		LogLevel:    "info",
		RPCAddr:     "127.0.0.1",
		RPCPort:     8545,
		P2PPort:     30303,
		Single:      true,
		MaxBlockTxs: 500,
		Genesis: GenesisConfig{
			ChainID: 1,
			Alloc:   map[string]uint64{},
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
	if level := os.Getenv("MAP_LOG"); level != "" {
		cfg.LogLevel = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port must be 1-65535, got %d", c.RPCPort)
	}
	if !c.Single {
		if c.P2PPort <= 0 || c.P2PPort > 65535 {
			return fmt.Errorf("p2p_port must be 1-65535, got %d", c.P2PPort)
		}
		if c.RPCPort == c.P2PPort {
			return fmt.Errorf("rpc_port and p2p_port must not be the same (%d)", c.RPCPort)
		}
	}
	if c.Genesis.ChainID == 0 {
		return fmt.Errorf("genesis.chain_id must not be zero")
	}
	if c.Genesis.AuthorityPubKey == "" {
		return fmt.Errorf("genesis.authority_pubkey must not be empty")
	}
	if _, err := decodeHexPubKey(c.Genesis.AuthorityPubKey); err != nil {
		return fmt.Errorf("genesis.authority_pubkey: %w", err)
	}
	for i, v := range c.Genesis.Validators {
		if _, err := decodeHexPubKey(v.PubKey); err != nil {
			return fmt.Errorf("genesis.validators[%d].pubkey: %w", i, err)
		}
	}
	if c.NodeKey != "" {
		if b, err := hex.DecodeString(c.NodeKey); err != nil || len(b) != 64 {
			return fmt.Errorf("node_key must be 128-char hex (64 bytes ed25519 private key)")
		}
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

func decodeHexPubKey(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return nil, fmt.Errorf("must be 64-char hex (32 bytes ed25519 pubkey), got %q", s)
	}
	return b, nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
