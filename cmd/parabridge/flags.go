// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"github.com/urfave/cli"
)

// Global configuration flags
var (
	// ConfigFlag TOML configuration file
	ConfigFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	// LogFlag global log level
	LogFlag = cli.StringFlag{
		Name:  "log",
		Usage: "Global log level. Supports levels crit (silent), eror, warn, info, dbug and trce (trace)",
	}
	// SourceURLFlag source chain RPC endpoint
	SourceURLFlag = cli.StringFlag{
		Name:  "source-url",
		Usage: "Websocket RPC endpoint of the source chain",
	}
	// TargetURLFlag target chain RPC endpoint
	TargetURLFlag = cli.StringFlag{
		Name:  "target-url",
		Usage: "Websocket RPC endpoint of the target chain",
	}
	// MetricsAddressFlag prometheus metrics listening address
	MetricsAddressFlag = cli.StringFlag{
		Name:  "metrics-address",
		Usage: "Listening address of the prometheus metrics server, empty to disable",
	}
)

// Relay flags
var (
	// LaneFlag message lane to relay
	LaneFlag = cli.StringFlag{
		Name:  "lane",
		Usage: "Hex id of the message lane to relay, eg. --lane=00000001",
	}
	// ParaFlag parachain to relay heads for
	ParaFlag = cli.UintFlag{
		Name:  "para",
		Usage: "Id of the parachain to relay heads for",
	}
	// OnlyFreeHeadersFlag restricts submissions to free headers
	OnlyFreeHeadersFlag = cli.BoolFlag{
		Name:  "only-free-headers",
		Usage: "Submit only headers the target chain accepts for free",
	}
	// AtRelayBlockFlag relay chain block for one-shot head relay
	AtRelayBlockFlag = cli.UintFlag{
		Name:  "at-relay-block",
		Usage: "Relay chain block number to prove the parachain head at",
	}
)
