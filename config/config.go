// Package config loads and validates the connector's TOML configuration,
// mirroring the option names spec.md §6 recognizes.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every option spec.md §6 recognizes plus the ambient settings
// (data directory, environment tag) the rest of the stack needs.
type Config struct {
	// Ledger connectivity.
	XRPServer string `toml:"XRPServer"`
	Address   string `toml:"Address"`
	Secret    string `toml:"Secret"`
	// SecretEnv names an environment variable holding Secret, for deployments
	// that would rather not put the signing seed in the TOML file. cmd/paychand
	// resolves it (falling back to an interactive terminal prompt) before
	// Secret is used; Validate accepts either being set.
	SecretEnv string `toml:"SecretEnv,omitempty"`

	// Currency scale: exactly one of AssetScale/CurrencyScale must be set.
	AssetScale    *uint8 `toml:"AssetScale,omitempty"`
	CurrencyScale *uint8 `toml:"CurrencyScale,omitempty"`

	// Admission control.
	MaxBalance      string `toml:"MaxBalance"`
	Bandwidth       string `toml:"Bandwidth"`
	MaxPacketAmount string `toml:"MaxPacketAmount"`
	MaxFeePercent   float64 `toml:"MaxFeePercent"`

	// Timers.
	ClaimIntervalMS  int64 `toml:"ClaimIntervalMS"`
	WatcherIntervalS int64 `toml:"WatcherIntervalS"`

	// Ambient.
	DataDir string `toml:"DataDir"`
	Env     string `toml:"Env"`
}

const (
	// DefaultCurrencyScale is used when neither AssetScale nor CurrencyScale is set.
	DefaultCurrencyScale = 6
	// DefaultMaxFeePercent is the fraction of claim income spendable as fee.
	DefaultMaxFeePercent = 0.01
	// DefaultClaimInterval is the auto-claim polling period.
	DefaultClaimInterval = 60 * time.Second
	// DefaultWatcherInterval is the channel-watcher polling period.
	DefaultWatcherInterval = 10 * time.Minute
)

// Load decodes the TOML file at path into a Config, applies defaults and
// validates it.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.MaxFeePercent == 0 {
		cfg.MaxFeePercent = DefaultMaxFeePercent
	}
	if cfg.ClaimIntervalMS == 0 {
		cfg.ClaimIntervalMS = DefaultClaimInterval.Milliseconds()
	}
	if cfg.WatcherIntervalS == 0 {
		cfg.WatcherIntervalS = int64(DefaultWatcherInterval.Seconds())
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}
}

// Scale returns the resolved currency-scale exponent for the config.
func (c *Config) Scale() uint8 {
	if c.AssetScale != nil {
		return *c.AssetScale
	}
	if c.CurrencyScale != nil {
		return *c.CurrencyScale
	}
	return DefaultCurrencyScale
}

// ClaimInterval returns the configured auto-claim period.
func (c *Config) ClaimInterval() time.Duration {
	return time.Duration(c.ClaimIntervalMS) * time.Millisecond
}

// WatcherInterval returns the configured channel-watcher poll period.
func (c *Config) WatcherInterval() time.Duration {
	return time.Duration(c.WatcherIntervalS) * time.Second
}
