// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package finality

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChainSafe/parabridge/bridge/grandpa"
	"github.com/ChainSafe/parabridge/lib/common"
	"github.com/ChainSafe/parabridge/relay/client"
	"github.com/ChainSafe/parabridge/relay/client/clienttest"
)

func testClients(sourceBest, targetBest uint32) (
	source, target *clienttest.Client) {
	source = &clienttest.Client{
		ChainName: "source",
		BestFinalizedFunc: func() (common.HeaderID, error) {
			return common.HeaderID{Number: sourceBest}, nil
		},
		HeaderByNumberFunc: func(number uint32) (types.Header, error) {
			return types.Header{Number: types.BlockNumber(number)}, nil
		},
		FinalityProofFunc: func(number uint32) (*client.FinalityProof, error) {
			return &client.FinalityProof{
				Header: types.Header{Number: types.BlockNumber(number)},
			}, nil
		},
	}
	target = &clienttest.Client{
		ChainName: "target",
		BridgedBestFinalizedFunc: func() (common.HeaderID, error) {
			return common.HeaderID{Number: targetBest}, nil
		},
	}
	return source, target
}

func submittedProof(t *testing.T, target *clienttest.Client,
	index int) client.SubmitFinalityProofCall {
	t.Helper()
	calls := target.SubmittedCalls()
	require.Greater(t, len(calls), index)
	call, ok := calls[index].(client.SubmitFinalityProofCall)
	require.True(t, ok)
	return call
}

func Test_Loop_RelaysNewestHeader(t *testing.T) {
	t.Parallel()

	source, target := testClients(10, 5)
	loop := NewLoop(Config{Source: source, Target: target})

	err := loop.iterate(context.Background())
	require.NoError(t, err)

	call := submittedProof(t, target, 0)
	assert.Equal(t, types.BlockNumber(10), call.Header.Number)
	assert.False(t, call.FreeExecution)
}

func Test_Loop_UpToDate(t *testing.T) {
	t.Parallel()

	source, target := testClients(5, 5)
	loop := NewLoop(Config{Source: source, Target: target})

	err := loop.iterate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, target.SubmittedCalls())
}

func Test_Loop_MandatoryHeaderFirst(t *testing.T) {
	t.Parallel()

	source, target := testClients(10, 5)

	digestItem, err := grandpa.NewScheduledChangeDigest(grandpa.ScheduledChange{
		NextAuthorities: []grandpa.Authority{{Weight: 1}},
	})
	require.NoError(t, err)
	source.HeaderByNumberFunc = func(number uint32) (types.Header, error) {
		header := types.Header{Number: types.BlockNumber(number)}
		if number == 7 {
			header.Digest = types.Digest{digestItem}
		}
		return header, nil
	}

	loop := NewLoop(Config{Source: source, Target: target})
	err = loop.iterate(context.Background())
	require.NoError(t, err)

	call := submittedProof(t, target, 0)
	assert.Equal(t, types.BlockNumber(7), call.Header.Number)
	assert.True(t, call.FreeExecution)
}

func Test_Loop_OnlyFreeHeaders(t *testing.T) {
	t.Parallel()

	t.Run("interval_boundary", func(t *testing.T) {
		t.Parallel()

		source, target := testClients(10, 5)
		loop := NewLoop(Config{
			Source: source, Target: target,
			OnlyFreeHeaders:     true,
			FreeHeadersInterval: 4,
		})

		err := loop.iterate(context.Background())
		require.NoError(t, err)

		call := submittedProof(t, target, 0)
		assert.Equal(t, types.BlockNumber(8), call.Header.Number)
		assert.True(t, call.FreeExecution)
	})

	t.Run("no_eligible_header", func(t *testing.T) {
		t.Parallel()

		source, target := testClients(7, 5)
		loop := NewLoop(Config{
			Source: source, Target: target,
			OnlyFreeHeaders:     true,
			FreeHeadersInterval: 4,
		})

		err := loop.iterate(context.Background())
		require.NoError(t, err)
		assert.Empty(t, target.SubmittedCalls())
	})
}

func Test_Loop_RejectedProofNotResubmitted(t *testing.T) {
	t.Parallel()

	source, target := testClients(10, 5)
	target.SubmitTransactionFunc = func(client.Call) (client.TransactionTracker, error) {
		return &clienttest.Tracker{Status: client.TxInvalid}, nil
	}

	loop := NewLoop(Config{Source: source, Target: target})
	ctx := context.Background()

	require.NoError(t, loop.iterate(ctx))
	require.NoError(t, loop.iterate(ctx))

	assert.Len(t, target.SubmittedCalls(), 1)
}

func Test_Loop_LostProofRetried(t *testing.T) {
	t.Parallel()

	source, target := testClients(10, 5)
	target.SubmitTransactionFunc = func(client.Call) (client.TransactionTracker, error) {
		return &clienttest.Tracker{Status: client.TxLost}, nil
	}

	loop := NewLoop(Config{Source: source, Target: target})
	ctx := context.Background()

	require.NoError(t, loop.iterate(ctx))
	require.NoError(t, loop.iterate(ctx))

	assert.Len(t, target.SubmittedCalls(), 2)
}

func Test_Loop_ReconnectsAfterConnectionError(t *testing.T) {
	t.Parallel()

	source, target := testClients(10, 5)
	failed := false
	bestFinalized := source.BestFinalizedFunc
	source.BestFinalizedFunc = func() (common.HeaderID, error) {
		if !failed {
			failed = true
			return common.HeaderID{}, syscall.ECONNRESET
		}
		return bestFinalized()
	}

	loop := NewLoop(Config{
		Source: source, Target: target,
		Interval:   time.Millisecond,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, loop.Start())
	defer func() {
		require.NoError(t, loop.Stop())
	}()

	require.Eventually(t, func() bool {
		return source.Reconnects() > 0 && len(target.SubmittedCalls()) > 0
	}, time.Second, time.Millisecond)
}
