// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/naoina/toml"
	"github.com/urfave/cli"

	bridgemessages "github.com/ChainSafe/parabridge/bridge/messages"
	bridgeparachains "github.com/ChainSafe/parabridge/bridge/parachains"
)

// ChainConfig is the connection configuration of one chain.
type ChainConfig struct {
	// Name names the chain in logs and metrics.
	Name string `toml:"name"`
	// URL is the websocket RPC endpoint.
	URL string `toml:"url"`
	// Seed is the secret seed or derivation path of the submitting
	// account. Empty means the well-known Alice development account.
	Seed string `toml:"seed"`
}

// RelayConfig is the relay pipeline configuration.
type RelayConfig struct {
	// Lane is the hex id of the relayed message lane.
	Lane string `toml:"lane"`
	// Paras are the tracked parachain ids.
	Paras []uint32 `toml:"paras"`
	// OnlyFreeHeaders restricts submissions to free headers.
	OnlyFreeHeaders bool `toml:"only-free-headers"`
	// FreeHeadersInterval mirrors the target chain's free headers
	// interval, used to pick eligible headers in free mode.
	FreeHeadersInterval uint32 `toml:"free-headers-interval"`
	// Interval is the poll interval, eg. "6s".
	Interval string `toml:"interval"`
}

// MetricsConfig is the prometheus metrics server configuration.
type MetricsConfig struct {
	// Address is the listening address, empty to disable the server.
	Address string `toml:"address"`
}

// Config is the full relayer configuration, read from a TOML file and
// overridden by command line flags.
type Config struct {
	Source  ChainConfig   `toml:"source"`
	Target  ChainConfig   `toml:"target"`
	Relay   RelayConfig   `toml:"relay"`
	Metrics MetricsConfig `toml:"metrics"`
	// Log is the global log level.
	Log string `toml:"log"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Source: ChainConfig{Name: "source"},
		Target: ChainConfig{Name: "target"},
		Log:    "info",
	}
}

func loadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logger.Warnf("closing config file: %s", closeErr)
		}
	}()

	if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config file %s: %w", path, err)
	}
	return cfg, nil
}

// resolveConfig loads the config file named by --config (if any) and
// applies the command line flag overrides on top.
func resolveConfig(ctx *cli.Context) (Config, error) {
	cfg := DefaultConfig()

	if path := ctx.GlobalString(ConfigFlag.Name); path != "" {
		loaded, err := loadConfig(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}

	if url := ctx.GlobalString(SourceURLFlag.Name); url != "" {
		cfg.Source.URL = url
	}
	if url := ctx.GlobalString(TargetURLFlag.Name); url != "" {
		cfg.Target.URL = url
	}
	if address := ctx.GlobalString(MetricsAddressFlag.Name); address != "" {
		cfg.Metrics.Address = address
	}
	if level := ctx.GlobalString(LogFlag.Name); level != "" {
		cfg.Log = level
	}
	if lane := ctx.String(LaneFlag.Name); lane != "" {
		cfg.Relay.Lane = lane
	}
	if para := ctx.Uint(ParaFlag.Name); para != 0 {
		cfg.Relay.Paras = []uint32{uint32(para)}
	}
	if ctx.Bool(OnlyFreeHeadersFlag.Name) {
		cfg.Relay.OnlyFreeHeaders = true
	}

	if cfg.Source.URL == "" {
		return Config{}, fmt.Errorf("%w: source chain URL", errMissingConfig)
	}
	if cfg.Target.URL == "" {
		return Config{}, fmt.Errorf("%w: target chain URL", errMissingConfig)
	}
	return cfg, nil
}

func (c Config) interval() (time.Duration, error) {
	if c.Relay.Interval == "" {
		return 0, nil
	}
	interval, err := time.ParseDuration(c.Relay.Interval)
	if err != nil {
		return 0, fmt.Errorf("parsing relay interval: %w", err)
	}
	return interval, nil
}

func (c Config) lane() (bridgemessages.LaneID, error) {
	if c.Relay.Lane == "" {
		return bridgemessages.LaneID{}, fmt.Errorf("%w: message lane", errMissingConfig)
	}
	return bridgemessages.NewLaneID(c.Relay.Lane)
}

func (c Config) paras() ([]bridgeparachains.ParaID, error) {
	if len(c.Relay.Paras) == 0 {
		return nil, fmt.Errorf("%w: parachain ids", errMissingConfig)
	}
	paras := make([]bridgeparachains.ParaID, len(c.Relay.Paras))
	for i, id := range c.Relay.Paras {
		paras[i] = bridgeparachains.ParaID(id)
	}
	return paras, nil
}
