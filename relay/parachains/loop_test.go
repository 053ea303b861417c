// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package parachains

import (
	"context"
	"testing"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridgeparachains "github.com/ChainSafe/parabridge/bridge/parachains"
	"github.com/ChainSafe/parabridge/lib/common"
	"github.com/ChainSafe/parabridge/lib/trie/proof"
	"github.com/ChainSafe/parabridge/relay/client"
	"github.com/ChainSafe/parabridge/relay/client/clienttest"
)

const testPara = bridgeparachains.ParaID(2000)

func testRelayID(number uint32) common.HeaderID {
	return common.HeaderID{
		Number: number,
		Hash:   common.MustBlake2bHash([]byte{byte(number), byte(number >> 8)}),
	}
}

// testClients wires a relay chain serving the given para heads and a
// target chain synced to the given relay block.
func testClients(relayBest common.HeaderID,
	heads map[bridgeparachains.ParaID][]byte) (source, target *clienttest.Client) {
	source = &clienttest.Client{
		ChainName: "relaychain",
		PendingParaHeadsFunc: func(at common.Hash) (
			map[bridgeparachains.ParaID][]byte, error) {
			return heads, nil
		},
		StorageProofFunc: func(keys [][]byte, at common.Hash) (
			proof.RawStorageProof, error) {
			return proof.RawStorageProof{{0x1}}, nil
		},
	}
	target = &clienttest.Client{
		ChainName: "target",
		BridgedBestFinalizedFunc: func() (common.HeaderID, error) {
			return relayBest, nil
		},
	}
	return source, target
}

func submittedHeads(t *testing.T, target *clienttest.Client,
	index int) client.SubmitParachainHeadsCall {
	t.Helper()
	calls := target.SubmittedCalls()
	require.Greater(t, len(calls), index)
	call, ok := calls[index].(client.SubmitParachainHeadsCall)
	require.True(t, ok)
	return call
}

func Test_Loop_RelaysNewHead(t *testing.T) {
	t.Parallel()

	relayBest := testRelayID(100)
	headData := []byte("parahead")
	source, target := testClients(relayBest,
		map[bridgeparachains.ParaID][]byte{testPara: headData})

	loop := NewLoop(Config{Source: source, Target: target,
		Paras: []bridgeparachains.ParaID{testPara}})
	require.NoError(t, loop.iterate(context.Background()))

	call := submittedHeads(t, target, 0)
	assert.Equal(t, relayBest, call.RelayHeader)
	require.Len(t, call.Parachains, 1)
	assert.Equal(t, testPara, call.Parachains[0].ParaID)
	assert.Equal(t, common.MustBlake2bHash(headData), call.Parachains[0].HeadHash)

	cursor := loop.AvailableHead(testPara)
	assert.Equal(t, HeadAvailable, cursor.Availability)
	assert.Equal(t, uint32(100), cursor.AtRelayNumber)
}

func Test_Loop_HeadAlreadyOnTarget(t *testing.T) {
	t.Parallel()

	relayBest := testRelayID(100)
	headData := []byte("parahead")
	source, target := testClients(relayBest,
		map[bridgeparachains.ParaID][]byte{testPara: headData})
	target.BridgedBestParaHeadFunc = func(bridgeparachains.ParaID) (
		bridgeparachains.BestParaHead, error) {
		return bridgeparachains.BestParaHead{
			AtRelayNumber: 90,
			HeadHash:      common.MustBlake2bHash(headData),
		}, nil
	}

	loop := NewLoop(Config{Source: source, Target: target,
		Paras: []bridgeparachains.ParaID{testPara}})
	require.NoError(t, loop.iterate(context.Background()))

	assert.Empty(t, target.SubmittedCalls())
}

func Test_Loop_MissingHead(t *testing.T) {
	t.Parallel()

	source, target := testClients(testRelayID(100), nil)

	loop := NewLoop(Config{Source: source, Target: target,
		Paras: []bridgeparachains.ParaID{testPara}})
	require.NoError(t, loop.iterate(context.Background()))

	assert.Empty(t, target.SubmittedCalls())
	assert.Equal(t, HeadMissing, loop.AvailableHead(testPara).Availability)
}

func Test_Loop_NoRelayHeaderSynced(t *testing.T) {
	t.Parallel()

	source, target := testClients(testRelayID(100), nil)
	target.BridgedBestFinalizedFunc = nil // defaults to ErrNotFound

	loop := NewLoop(Config{Source: source, Target: target,
		Paras: []bridgeparachains.ParaID{testPara}})
	require.NoError(t, loop.iterate(context.Background()))

	assert.Empty(t, target.SubmittedCalls())
	assert.Equal(t, HeadUnavailable, loop.AvailableHead(testPara).Availability)
}

func Test_Loop_OnlyFreeHeaders(t *testing.T) {
	t.Parallel()

	relayBest := testRelayID(100)
	headData := []byte("parahead")

	testCases := map[string]struct {
		free        bool
		wantSubmits int
	}{
		"free_relay_header": {free: true, wantSubmits: 1},
		"paid_relay_header": {free: false, wantSubmits: 0},
	}

	for name, testCase := range testCases {
		testCase := testCase
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			source, target := testClients(relayBest,
				map[bridgeparachains.ParaID][]byte{testPara: headData})
			target.BridgedIsFreeHeaderFunc = func(common.HeaderID) (bool, error) {
				return testCase.free, nil
			}

			loop := NewLoop(Config{Source: source, Target: target,
				Paras:           []bridgeparachains.ParaID{testPara},
				OnlyFreeHeaders: true})
			require.NoError(t, loop.iterate(context.Background()))

			calls := target.SubmittedCalls()
			require.Len(t, calls, testCase.wantSubmits)
			if testCase.wantSubmits > 0 {
				call, ok := calls[0].(client.SubmitParachainHeadsCall)
				require.True(t, ok)
				assert.True(t, call.FreeExecution)
			}
		})
	}
}

func Test_Loop_RejectedHeadNotResubmitted(t *testing.T) {
	t.Parallel()

	relayBest := testRelayID(100)
	source, target := testClients(relayBest,
		map[bridgeparachains.ParaID][]byte{testPara: []byte("parahead")})
	target.SubmitTransactionFunc = func(client.Call) (client.TransactionTracker, error) {
		return &clienttest.Tracker{Status: client.TxInvalid}, nil
	}

	loop := NewLoop(Config{Source: source, Target: target,
		Paras: []bridgeparachains.ParaID{testPara}})
	ctx := context.Background()

	require.NoError(t, loop.iterate(ctx))
	require.NoError(t, loop.iterate(ctx))

	assert.Len(t, target.SubmittedCalls(), 1)
}

func Test_Loop_RelaySingleHead(t *testing.T) {
	t.Parallel()

	headData := []byte("parahead")
	source, target := testClients(common.HeaderID{},
		map[bridgeparachains.ParaID][]byte{testPara: headData})
	relayHeader := types.Header{Number: 42}
	source.HeaderByNumberFunc = func(number uint32) (types.Header, error) {
		require.Equal(t, uint32(42), number)
		return relayHeader, nil
	}

	loop := NewLoop(Config{Source: source, Target: target,
		Paras: []bridgeparachains.ParaID{testPara}})
	require.NoError(t, loop.RelaySingleHead(context.Background(), testPara, 42))

	relayHash, err := common.HashHeader(relayHeader)
	require.NoError(t, err)

	call := submittedHeads(t, target, 0)
	assert.Equal(t, common.HeaderID{Number: 42, Hash: relayHash}, call.RelayHeader)
	require.Len(t, call.Parachains, 1)
	assert.Equal(t, common.MustBlake2bHash(headData), call.Parachains[0].HeadHash)

	cursor := loop.AvailableHead(testPara)
	assert.Equal(t, HeadAvailable, cursor.Availability)
	assert.Equal(t, uint32(42), cursor.AtRelayNumber)
}

func Test_Loop_RelaySingleHead_UntrackedPara(t *testing.T) {
	t.Parallel()

	source, target := testClients(common.HeaderID{}, nil)
	source.HeaderByNumberFunc = func(number uint32) (types.Header, error) {
		return types.Header{Number: types.BlockNumber(number)}, nil
	}

	loop := NewLoop(Config{Source: source, Target: target,
		Paras: []bridgeparachains.ParaID{testPara}})
	err := loop.RelaySingleHead(context.Background(), testPara, 42)

	require.ErrorIs(t, err, client.ErrNotFound)
	assert.Empty(t, target.SubmittedCalls())
	assert.Equal(t, HeadMissing, loop.AvailableHead(testPara).Availability)
}
