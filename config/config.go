// Package config loads node configuration from TOML, with command-line
// flags taking precedence over file values, the same layering
// cmd/geth's config.go uses (naoina/toml decode into defaults, flags
// override after).
package config

import (
	"os"
	"reflect"
	"time"

	"github.com/naoina/toml"
)

// Config is the full set of settings one bftnode process needs: the
// core consensus knobs from spec §6 plus the ambient stack's own
// settings (§10).
type Config struct {
	Consensus Consensus
	Network   Network
	Logging   Logging
}

// Consensus holds the core tunables spec §6 names, plus proposer type
// selection and leader-reputation weights for §4.5's third variant.
type Consensus struct {
	Author               string
	RoundInitialTimeoutMs int64
	ContiguousRounds      uint64
	MaxBlockSize          uint64
	MaxPrunedBlocksInMem  uint64
	ProposerType          string // "rotating", "fixed", "leader_reputation"
	ActiveWeight          uint64
	InactiveWeight        uint64
	ReputationWindow      int
}

// Network carries the gossip-discovery and transport settings §6/§10 add.
type Network struct {
	DiscoveryTickMs int64
	DNSName         string
	ListenAddrs     []string
}

// Logging carries the rotating-file logger settings §10.4 adds.
type Logging struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	JSON       bool
}

// Default returns the configuration a fresh node starts from before any
// TOML file or flag is applied.
func Default() Config {
	return Config{
		Consensus: Consensus{
			RoundInitialTimeoutMs: 1000,
			ContiguousRounds:      1,
			MaxBlockSize:          1 << 20,
			MaxPrunedBlocksInMem:  100,
			ProposerType:          "rotating",
			ActiveWeight:          10,
			InactiveWeight:        1,
			ReputationWindow:      10,
		},
		Network: Network{
			DiscoveryTickMs: 5000,
		},
	}
}

// tomlSettings matches the permissive decode behavior cmd/geth's own
// config loader uses: unknown fields and missing fields are tolerated so
// the config file only has to mention what it overrides.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField:  func(rt reflect.Type, field string) error { return nil },
}

// LoadFile reads and decodes a TOML config file on top of Default().
func LoadFile(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	if err := tomlSettings.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// RoundInitialTimeout returns the configured initial round timeout as a
// time.Duration, the unit roundstate.New actually wants.
func (c Consensus) RoundInitialTimeout() time.Duration {
	return time.Duration(c.RoundInitialTimeoutMs) * time.Millisecond
}

// DiscoveryTick returns the configured gossip tick interval.
func (n Network) DiscoveryTick() time.Duration {
	return time.Duration(n.DiscoveryTickMs) * time.Millisecond
}
