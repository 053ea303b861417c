// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// The parabridge command runs the off-chain relay pipelines bridging
// two substrate chains: finality proofs, parachain heads, lane
// messages and equivocation reports.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/ChainSafe/parabridge/internal/log"
	"github.com/ChainSafe/parabridge/internal/metrics"
	"github.com/ChainSafe/parabridge/lib/services"
	"github.com/ChainSafe/parabridge/relay/client"
	"github.com/ChainSafe/parabridge/relay/equivocation"
	"github.com/ChainSafe/parabridge/relay/finality"
	relaymessages "github.com/ChainSafe/parabridge/relay/messages"
	relayparachains "github.com/ChainSafe/parabridge/relay/parachains"
)

var logger = log.NewFromGlobal(log.AddContext("pkg", "cmd"))

var errMissingConfig = errors.New("missing required configuration")

// substrateNetworkID is the generic substrate ss58 address prefix.
const substrateNetworkID = 42

var app = cli.NewApp()

func init() {
	app.Name = "parabridge"
	app.Usage = "relay finality proofs, parachain heads and messages between two substrate chains"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		ConfigFlag,
		LogFlag,
		SourceURLFlag,
		TargetURLFlag,
		MetricsAddressFlag,
	}
	app.Commands = []cli.Command{
		{
			Name:   "relay-headers",
			Usage:  "Relay source chain finality proofs to the target chain",
			Flags:  []cli.Flag{OnlyFreeHeadersFlag},
			Action: relayHeadersAction,
		},
		{
			Name:   "relay-parachains",
			Usage:  "Relay parachain heads from the relay chain to the target chain",
			Flags:  []cli.Flag{ParaFlag, OnlyFreeHeadersFlag},
			Action: relayParachainsAction,
		},
		{
			Name:   "relay-messages",
			Usage:  "Relay lane messages and delivery confirmations between the chains",
			Flags:  []cli.Flag{LaneFlag},
			Action: relayMessagesAction,
		},
		{
			Name:   "detect-equivocations",
			Usage:  "Watch synced finality proofs for double votes and report them",
			Action: detectEquivocationsAction,
		},
		{
			Name:   "relay-parachain-head",
			Usage:  "Relay a single parachain head proven at a specific relay chain block",
			Flags:  []cli.Flag{ParaFlag, AtRelayBlockFlag},
			Action: relayParachainHeadAction,
		},
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "parabridge: %s\n", err)
		os.Exit(1)
	}
}

// relayEnv holds everything a relay command needs after setup.
type relayEnv struct {
	cfg      Config
	source   *client.Substrate
	target   *client.Substrate
	registry *services.ServiceRegistry
}

func setup(ctx *cli.Context) (*relayEnv, error) {
	cfg, err := resolveConfig(ctx)
	if err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	log.PatchGlobal(log.SetLevel(level))

	color.New(color.FgCyan, color.Bold).Printf("parabridge %s\n", app.Version)

	sourceKeyring, err := keyringFor(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("building %s keyring: %w", cfg.Source.Name, err)
	}
	targetKeyring, err := keyringFor(cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("building %s keyring: %w", cfg.Target.Name, err)
	}

	source, err := client.Connect(cfg.Source.Name, cfg.Source.URL, sourceKeyring)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Source.Name, err)
	}
	target, err := client.Connect(cfg.Target.Name, cfg.Target.URL, targetKeyring)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Target.Name, err)
	}

	registry := services.NewServiceRegistry(logger)
	if cfg.Metrics.Address != "" {
		registry.RegisterService(metrics.NewServer(cfg.Metrics.Address))
	}

	return &relayEnv{
		cfg:      cfg,
		source:   source,
		target:   target,
		registry: registry,
	}, nil
}

func keyringFor(chain ChainConfig) (signature.KeyringPair, error) {
	if chain.Seed == "" {
		return signature.TestKeyringPairAlice, nil
	}
	return signature.KeyringPairFromSecret(chain.Seed, substrateNetworkID)
}

// runServices starts all registered services and blocks until SIGINT
// or SIGTERM, then stops them in reverse order.
func runServices(registry *services.ServiceRegistry) error {
	registry.StartAll()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	received := <-signals
	logger.Infof("received %s, shutting down", received)

	registry.StopAll()
	return nil
}

func relayHeadersAction(ctx *cli.Context) error {
	env, err := setup(ctx)
	if err != nil {
		return err
	}
	interval, err := env.cfg.interval()
	if err != nil {
		return err
	}

	env.registry.RegisterService(finality.NewLoop(finality.Config{
		Source:              env.source,
		Target:              env.target,
		Interval:            interval,
		OnlyFreeHeaders:     env.cfg.Relay.OnlyFreeHeaders,
		FreeHeadersInterval: env.cfg.Relay.FreeHeadersInterval,
	}))
	return runServices(env.registry)
}

func relayParachainsAction(ctx *cli.Context) error {
	env, err := setup(ctx)
	if err != nil {
		return err
	}
	interval, err := env.cfg.interval()
	if err != nil {
		return err
	}
	paras, err := env.cfg.paras()
	if err != nil {
		return err
	}

	env.registry.RegisterService(relayparachains.NewLoop(relayparachains.Config{
		Source:          env.source,
		Target:          env.target,
		Paras:           paras,
		Interval:        interval,
		OnlyFreeHeaders: env.cfg.Relay.OnlyFreeHeaders,
	}))
	return runServices(env.registry)
}

func relayMessagesAction(ctx *cli.Context) error {
	env, err := setup(ctx)
	if err != nil {
		return err
	}
	interval, err := env.cfg.interval()
	if err != nil {
		return err
	}
	lane, err := env.cfg.lane()
	if err != nil {
		return err
	}

	env.registry.RegisterService(relaymessages.NewLoop(relaymessages.Config{
		Source:   env.source,
		Target:   env.target,
		Lane:     lane,
		Relayer:  env.target.AccountID(),
		Interval: interval,
	}))
	return runServices(env.registry)
}

func detectEquivocationsAction(ctx *cli.Context) error {
	env, err := setup(ctx)
	if err != nil {
		return err
	}
	interval, err := env.cfg.interval()
	if err != nil {
		return err
	}

	env.registry.RegisterService(equivocation.NewLoop(equivocation.Config{
		Source:   env.source,
		Target:   env.target,
		Interval: interval,
	}))
	return runServices(env.registry)
}

func relayParachainHeadAction(ctx *cli.Context) error {
	env, err := setup(ctx)
	if err != nil {
		return err
	}
	paras, err := env.cfg.paras()
	if err != nil {
		return err
	}
	relayNumber := uint32(ctx.Uint(AtRelayBlockFlag.Name))
	if relayNumber == 0 {
		return fmt.Errorf("%w: relay block number", errMissingConfig)
	}

	loop := relayparachains.NewLoop(relayparachains.Config{
		Source: env.source,
		Target: env.target,
		Paras:  paras,
	})
	if err := loop.RelaySingleHead(context.Background(), paras[0], relayNumber); err != nil {
		return fmt.Errorf("relaying parachain %d head: %w", paras[0], err)
	}

	color.New(color.FgGreen).Printf(
		"relayed parachain %d head at relay block %d\n", paras[0], relayNumber)
	return nil
}
