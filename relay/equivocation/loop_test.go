// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package equivocation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChainSafe/parabridge/bridge/grandpa"
	"github.com/ChainSafe/parabridge/lib/common"
	"github.com/ChainSafe/parabridge/relay/client"
	"github.com/ChainSafe/parabridge/relay/client/clienttest"
)

func syncedID(number uint32) common.HeaderID {
	return common.HeaderID{
		Number: number,
		Hash:   common.MustBlake2bHash([]byte{byte(number)}),
	}
}

// testClients wires a source chain at authority set 7 serving the
// given justification for any synced header, and a target chain
// synced to source header 10.
func testClients(justification *grandpa.Justification) (
	source, target *clienttest.Client, authorityCalls *int) {
	authorityCalls = new(int)
	source = &clienttest.Client{
		ChainName: "source",
		GrandpaAuthoritiesFunc: func(common.Hash) ([]grandpa.Authority, uint64, error) {
			*authorityCalls++
			return []grandpa.Authority{{Weight: 1}}, 7, nil
		},
		FinalityProofFunc: func(number uint32) (*client.FinalityProof, error) {
			return &client.FinalityProof{Justification: *justification}, nil
		},
		SessionIndexForChildFunc: func(common.Hash) (uint32, error) {
			return 5, nil
		},
	}
	target = &clienttest.Client{
		ChainName: "target",
		BridgedBestFinalizedFunc: func() (common.HeaderID, error) {
			return syncedID(10), nil
		},
	}
	return source, target, authorityCalls
}

func Test_Loop_ReportsEquivocation(t *testing.T) {
	t.Parallel()

	justification := justificationWith(1,
		vote(0xaa, "fork a"), vote(0xaa, "fork b"))
	source, target, _ := testClients(justification)

	loop := NewLoop(Config{Source: source, Target: target})
	require.NoError(t, loop.iterate(context.Background()))

	calls := source.SubmittedCalls()
	require.Len(t, calls, 1)
	call, ok := calls[0].(client.ReportEquivocationCall)
	require.True(t, ok)
	assert.Equal(t, uint64(7), call.Proof.SetID)
	assert.Equal(t, uint64(1), call.Proof.Round)
	assert.Equal(t, vote(0xaa, "fork a").ID, call.Proof.Offender())
}

func Test_Loop_ContextUpdateIdempotent(t *testing.T) {
	t.Parallel()

	source, target, authorityCalls := testClients(justificationWith(1))

	loop := NewLoop(Config{Source: source, Target: target})
	ctx := context.Background()

	changed, err := loop.updateContext(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	priorContext := loop.context

	// same synced header: no-op, no authority set refetch
	changed, err = loop.updateContext(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, priorContext, loop.context)
	assert.Equal(t, 1, *authorityCalls)
}

func Test_Loop_ContextFollowsSyncProgress(t *testing.T) {
	t.Parallel()

	source, target, authorityCalls := testClients(justificationWith(1))
	synced := syncedID(10)
	target.BridgedBestFinalizedFunc = func() (common.HeaderID, error) {
		return synced, nil
	}

	loop := NewLoop(Config{Source: source, Target: target})
	ctx := context.Background()

	require.NoError(t, loop.iterate(ctx))
	synced = syncedID(11)
	require.NoError(t, loop.iterate(ctx))

	assert.Equal(t, 2, *authorityCalls)
	assert.Equal(t, syncedID(11), loop.context.synced)
}

func Test_Loop_NothingSyncedYet(t *testing.T) {
	t.Parallel()

	source, target, authorityCalls := testClients(justificationWith(1))
	target.BridgedBestFinalizedFunc = nil // defaults to ErrNotFound

	loop := NewLoop(Config{Source: source, Target: target})
	require.NoError(t, loop.iterate(context.Background()))

	assert.Empty(t, source.SubmittedCalls())
	assert.Equal(t, 0, *authorityCalls)
}

func Test_Loop_HonestVotesNotReported(t *testing.T) {
	t.Parallel()

	justification := justificationWith(1,
		vote(0xaa, "fork a"), vote(0xbb, "fork a"))
	source, target, _ := testClients(justification)

	loop := NewLoop(Config{Source: source, Target: target})
	require.NoError(t, loop.iterate(context.Background()))

	assert.Empty(t, source.SubmittedCalls())
}
