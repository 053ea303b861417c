// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"

	bridgemessages "github.com/ChainSafe/parabridge/bridge/messages"
	bridgeparachains "github.com/ChainSafe/parabridge/bridge/parachains"
)

const testConfigTOML = `
log = "dbug"

[source]
name = "rococo"
url = "ws://localhost:9944"

[target]
name = "millau"
url = "ws://localhost:9945"
seed = "//Bob"

[relay]
lane = "00000001"
paras = [2000, 2001]
only-free-headers = true
free-headers-interval = 32
interval = "12s"

[metrics]
address = ":9090"
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	err := os.WriteFile(path, []byte(testConfigTOML), 0o600)
	require.NoError(t, err)
	return path
}

func testContext(t *testing.T, globalArgs, commandArgs []string) *cli.Context {
	t.Helper()

	globalSet := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range app.Flags {
		f.Apply(globalSet)
	}
	require.NoError(t, globalSet.Parse(globalArgs))
	globalCtx := cli.NewContext(app, globalSet, nil)

	commandSet := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range []cli.Flag{LaneFlag, ParaFlag, OnlyFreeHeadersFlag, AtRelayBlockFlag} {
		f.Apply(commandSet)
	}
	require.NoError(t, commandSet.Parse(commandArgs))
	return cli.NewContext(app, commandSet, globalCtx)
}

func Test_loadConfig(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig(writeTestConfig(t))
	require.NoError(t, err)

	assert.Equal(t, "rococo", cfg.Source.Name)
	assert.Equal(t, "ws://localhost:9944", cfg.Source.URL)
	assert.Equal(t, "//Bob", cfg.Target.Seed)
	assert.Equal(t, "00000001", cfg.Relay.Lane)
	assert.Equal(t, []uint32{2000, 2001}, cfg.Relay.Paras)
	assert.True(t, cfg.Relay.OnlyFreeHeaders)
	assert.Equal(t, uint32(32), cfg.Relay.FreeHeadersInterval)
	assert.Equal(t, ":9090", cfg.Metrics.Address)
	assert.Equal(t, "dbug", cfg.Log)
}

func Test_resolveConfig_FlagOverrides(t *testing.T) {
	t.Parallel()

	ctx := testContext(t,
		[]string{
			"--config", writeTestConfig(t),
			"--source-url", "ws://override:9944",
			"--log", "trce",
		},
		[]string{"--para", "3000"},
	)

	cfg, err := resolveConfig(ctx)
	require.NoError(t, err)

	assert.Equal(t, "ws://override:9944", cfg.Source.URL)
	assert.Equal(t, "ws://localhost:9945", cfg.Target.URL)
	assert.Equal(t, "trce", cfg.Log)
	assert.Equal(t, []uint32{3000}, cfg.Relay.Paras)
}

func Test_resolveConfig_MissingURLs(t *testing.T) {
	t.Parallel()

	ctx := testContext(t, []string{"--source-url", "ws://localhost:9944"}, nil)
	_, err := resolveConfig(ctx)
	require.ErrorIs(t, err, errMissingConfig)
}

func Test_Config_Accessors(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig(writeTestConfig(t))
	require.NoError(t, err)

	interval, err := cfg.interval()
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, interval)

	lane, err := cfg.lane()
	require.NoError(t, err)
	assert.Equal(t, bridgemessages.LaneID{0, 0, 0, 1}, lane)

	paras, err := cfg.paras()
	require.NoError(t, err)
	assert.Equal(t, []bridgeparachains.ParaID{2000, 2001}, paras)
}

func Test_Config_Accessors_Missing(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	interval, err := cfg.interval()
	require.NoError(t, err)
	assert.Zero(t, interval)

	_, err = cfg.lane()
	require.ErrorIs(t, err, errMissingConfig)

	_, err = cfg.paras()
	require.ErrorIs(t, err, errMissingConfig)
}
