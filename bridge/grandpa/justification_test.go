// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package grandpa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChainSafe/parabridge/lib/common"
)

func Test_Justification_EncodeDecode(t *testing.T) {
	t.Parallel()

	authorities := newTestAuthorities(t, 3)
	header := newTestHeader(t, 7, common.NewHash([]byte{1}))
	ancestry := newTestHeader(t, 8, common.NewHash([]byte{2}))

	justification := makeJustification(t, authorities, header, 5, 2)
	justification.VotesAncestries = append(justification.VotesAncestries, ancestry)

	encoded, err := justification.Encode()
	require.NoError(t, err)

	decoded, err := DecodeJustification(encoded)
	require.NoError(t, err)
	assert.Equal(t, justification, *decoded)
}

func Test_Justification_Verify(t *testing.T) {
	t.Parallel()

	const round, setID = uint64(3), uint64(1)
	authorities := newTestAuthorities(t, 4)
	voters := AuthoritySet{Authorities: authorityList(authorities)}.VoterSet()
	require.NotNil(t, voters)

	header := newTestHeader(t, 10, common.NewHash([]byte{1}))

	justification := makeJustification(t, authorities, header, round, setID)
	assert.NoError(t, justification.Verify(setID, voters))
}

func Test_Justification_Verify_WrongSetID(t *testing.T) {
	t.Parallel()

	authorities := newTestAuthorities(t, 4)
	voters := AuthoritySet{Authorities: authorityList(authorities)}.VoterSet()

	header := newTestHeader(t, 10, common.NewHash([]byte{1}))
	justification := makeJustification(t, authorities, header, 3, 1)

	// signatures cover set id 1, verification runs under set id 2
	err := justification.Verify(2, voters)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func Test_Justification_Verify_VoterNotFound(t *testing.T) {
	t.Parallel()

	authorities := newTestAuthorities(t, 4)
	// voter set misses the last test authority
	voters := AuthoritySet{Authorities: authorityList(authorities[:3])}.VoterSet()

	header := newTestHeader(t, 10, common.NewHash([]byte{1}))
	justification := makeJustification(t, authorities, header, 3, 0)

	err := justification.Verify(0, voters)
	assert.ErrorIs(t, err, ErrVoterNotFound)
}

func Test_Justification_Verify_DuplicateVote(t *testing.T) {
	t.Parallel()

	authorities := newTestAuthorities(t, 4)
	voters := AuthoritySet{Authorities: authorityList(authorities)}.VoterSet()

	header := newTestHeader(t, 10, common.NewHash([]byte{1}))
	justification := makeJustification(t, authorities, header, 3, 0)
	justification.Commit.Precommits = append(justification.Commit.Precommits,
		justification.Commit.Precommits[0])

	err := justification.Verify(0, voters)
	assert.ErrorIs(t, err, ErrDuplicateVote)
}

func Test_Justification_Verify_InsufficientWeight(t *testing.T) {
	t.Parallel()

	const round, setID = uint64(3), uint64(0)
	authorities := newTestAuthorities(t, 4)
	voters := AuthoritySet{Authorities: authorityList(authorities)}.VoterSet()
	// 4 voters of weight 1: threshold is 4 - (4-1)/3 = 3
	require.Equal(t, VoterWeight(3), voters.Threshold())

	header := newTestHeader(t, 10, common.NewHash([]byte{1}))
	justification := makeJustification(t, authorities[:2], header, round, setID)

	err := justification.Verify(setID, voters)
	assert.ErrorIs(t, err, ErrInsufficientWeight)

	// exactly at the threshold passes
	justification = makeJustification(t, authorities[:3], header, round, setID)
	assert.NoError(t, justification.Verify(setID, voters))
}

func Test_Justification_Verify_Ancestry(t *testing.T) {
	t.Parallel()

	const round, setID = uint64(3), uint64(0)
	authorities := newTestAuthorities(t, 4)
	voters := AuthoritySet{Authorities: authorityList(authorities)}.VoterSet()

	target := newTestHeader(t, 10, common.NewHash([]byte{1}))
	targetID, err := common.NewHeaderID(target)
	require.NoError(t, err)

	child := newTestHeader(t, 11, targetID.Hash)
	childID, err := common.NewHeaderID(child)
	require.NoError(t, err)

	childPrecommit := Precommit{TargetHash: childID.Hash, TargetNumber: childID.Number}

	justification := makeJustification(t, authorities[:3], target, round, setID)
	justification.Commit.Precommits = append(justification.Commit.Precommits,
		signPrecommit(t, authorities[3], childPrecommit, round, setID))

	// the child header is missing from the votes ancestries
	err = justification.Verify(setID, voters)
	assert.ErrorIs(t, err, ErrPrecommitNotDescendant)

	justification.VotesAncestries = append(justification.VotesAncestries, child)
	assert.NoError(t, justification.Verify(setID, voters))
}

func Test_Justification_Verify_PrecommitBelowCommit(t *testing.T) {
	t.Parallel()

	const round, setID = uint64(3), uint64(0)
	authorities := newTestAuthorities(t, 4)
	voters := AuthoritySet{Authorities: authorityList(authorities)}.VoterSet()

	target := newTestHeader(t, 10, common.NewHash([]byte{1}))
	below := Precommit{TargetHash: common.NewHash([]byte{9}), TargetNumber: 9}

	justification := makeJustification(t, authorities[:3], target, round, setID)
	justification.Commit.Precommits = append(justification.Commit.Precommits,
		signPrecommit(t, authorities[3], below, round, setID))

	err := justification.Verify(setID, voters)
	assert.ErrorIs(t, err, ErrPrecommitBelowCommit)
}
