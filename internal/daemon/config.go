// Package daemon wires the full service together: configuration,
// storage, the consensus engine, the HTTP API, and the background loops.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration, loaded from TOML.
type Config struct {
	API       APIConfig       `toml:"api"`
	Consensus ConsensusConfig `toml:"consensus"`
	Economy   EconomyConfig   `toml:"economy"`
	Decay     DecayConfig     `toml:"decay"`
	Storage   StorageConfig   `toml:"storage"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// APIConfig configures the HTTP listener.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (a APIConfig) Addr() string { return fmt.Sprintf("%s:%d", a.Host, a.Port) }

// ConsensusConfig configures the report lifecycle.
type ConsensusConfig struct {
	Threshold       float64 `toml:"threshold"`
	VotingWindow    string  `toml:"voting_window"`    // e.g. "168h"
	SlashPercentage float64 `toml:"slash_percentage"` // 0.0–1.0
	MinStakeFloor   uint64  `toml:"min_stake_floor"`
	SweepInterval   string  `toml:"sweep_interval"` // expiry sweep cadence
}

// EconomyConfig configures balance bootstrapping.
type EconomyConfig struct {
	InitialGrant uint64  `toml:"initial_grant"`
	DecayRate    float64 `toml:"decay_rate"` // fractional monthly reduction
}

// DecayConfig configures the dormancy decay loop.
type DecayConfig struct {
	Interval string `toml:"interval"`
}

// StorageConfig configures the sqlite database.
type StorageConfig struct {
	Path string `toml:"path"` // empty means <data dir>/vouch.db
}

// MetricsConfig configures Prometheus exposure.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// DefaultConfig returns the default daemon configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8480,
		},
		Consensus: ConsensusConfig{
			Threshold:       0.67,
			VotingWindow:    "168h",
			SlashPercentage: 0.10,
			MinStakeFloor:   5,
			SweepInterval:   "1h",
		},
		Economy: EconomyConfig{
			InitialGrant: 100,
			DecayRate:    0.02,
		},
		Decay: DecayConfig{
			Interval: "24h",
		},
		Storage: StorageConfig{
			Path: "",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LoadConfig reads the TOML config at path, overlaying it on the defaults.
// A missing file is not an error: defaults apply.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultConfigPath returns ~/.vouch/config.toml.
func DefaultConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// DataDir returns the daemon data directory, creating it if needed.
// VOUCH_HOME overrides the default of ~/.vouch.
func DataDir() string {
	if dir := os.Getenv("VOUCH_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vouch"
	}
	return filepath.Join(home, ".vouch")
}

// DatabasePath resolves the sqlite path from config, defaulting to the
// data directory.
func (c Config) DatabasePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(DataDir(), "vouch.db")
}

// parseDuration parses a config duration string, falling back to a default
// when the value is empty or malformed.
func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
