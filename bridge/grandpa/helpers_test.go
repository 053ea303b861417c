// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package grandpa

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/stretchr/testify/require"

	"github.com/ChainSafe/parabridge/lib/common"
)

type testAuthority struct {
	key    ed25519.PrivateKey
	id     AuthorityID
	weight uint64
}

// newTestAuthorities returns n deterministic test authorities of weight 1.
func newTestAuthorities(t *testing.T, n int) []testAuthority {
	t.Helper()

	authorities := make([]testAuthority, n)
	for i := range authorities {
		seed := bytes.Repeat([]byte{byte(i + 1)}, ed25519.SeedSize)
		key := ed25519.NewKeyFromSeed(seed)

		var id AuthorityID
		copy(id[:], key.Public().(ed25519.PublicKey))

		authorities[i] = testAuthority{key: key, id: id, weight: 1}
	}
	return authorities
}

func authorityList(testAuthorities []testAuthority) []Authority {
	list := make([]Authority, len(testAuthorities))
	for i, authority := range testAuthorities {
		list[i] = Authority{ID: authority.id, Weight: authority.weight}
	}
	return list
}

func newTestHeader(t *testing.T, number uint32, parentHash common.Hash) types.Header {
	t.Helper()

	return types.Header{
		ParentHash:     parentHash,
		Number:         types.BlockNumber(number),
		StateRoot:      common.NewHash([]byte{byte(number)}),
		ExtrinsicsRoot: common.Hash{},
		Digest:         types.Digest{},
	}
}

func signPrecommit(t *testing.T, authority testAuthority,
	precommit Precommit, round, setID uint64) SignedPrecommit {
	t.Helper()

	msg := NewPrecommitMessage(precommit, round, setID)
	signature := ed25519.Sign(authority.key, msg)

	signed := SignedPrecommit{
		Precommit: precommit,
		ID:        authority.id,
	}
	copy(signed.Signature[:], signature)
	return signed
}

// makeJustification builds a justification for the header given, with
// every authority precommitting to the header itself.
func makeJustification(t *testing.T, authorities []testAuthority,
	header types.Header, round, setID uint64) Justification {
	t.Helper()

	id, err := common.NewHeaderID(header)
	require.NoError(t, err)

	precommit := Precommit{TargetHash: id.Hash, TargetNumber: id.Number}
	precommits := make([]SignedPrecommit, len(authorities))
	for i, authority := range authorities {
		precommits[i] = signPrecommit(t, authority, precommit, round, setID)
	}

	return Justification{
		Round: round,
		Commit: Commit{
			TargetHash:   id.Hash,
			TargetNumber: id.Number,
			Precommits:   precommits,
		},
	}
}

// newTestVerifier returns an initialized verifier at header #1
// with the authorities given.
func newTestVerifier(t *testing.T, authorities []testAuthority,
	cfg Config) (*FinalityVerifier, types.Header) {
	t.Helper()

	verifier := NewFinalityVerifier(cfg)
	genesis := newTestHeader(t, 1, common.Hash{})
	err := verifier.Initialize(genesis, authorityList(authorities), 0)
	require.NoError(t, err)
	return verifier, genesis
}

func testConfig() Config {
	return Config{
		ChainName:              "testchain",
		MaxBridgedAuthorities:  8,
		FinalizedHeadersToKeep: 16,
		MaxExpectedProofSize:   4096,
	}
}
