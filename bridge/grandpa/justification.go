// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package grandpa

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"

	"github.com/ChainSafe/parabridge/lib/common"
)

// Precommit is a vote for a block and all its ancestors.
type Precommit struct {
	TargetHash   common.Hash
	TargetNumber uint32
}

// SignedPrecommit is a precommit with the ed25519 signature of the
// authority that produced it. The signature covers the canonical
// precommit vote message of the round and set id of the commit.
type SignedPrecommit struct {
	Precommit Precommit
	Signature [64]byte
	ID        AuthorityID
}

// Commit is the aggregated precommit votes finalizing a target block.
type Commit struct {
	TargetHash   common.Hash
	TargetNumber uint32
	Precommits   []SignedPrecommit
}

// Justification is a GRANDPA finality proof: a commit for a target
// block plus the ancestry headers linking precommit targets back to
// the commit target.
type Justification struct {
	Round           uint64
	Commit          Commit
	VotesAncestries []types.Header
}

// DecodeJustification decodes a SCALE encoded justification.
func DecodeJustification(encoded []byte) (*Justification, error) {
	justification := new(Justification)
	err := codec.Decode(encoded, justification)
	if err != nil {
		return nil, fmt.Errorf("scale decoding justification: %w", err)
	}
	return justification, nil
}

// Encode returns the SCALE encoding of the justification.
func (j *Justification) Encode() ([]byte, error) {
	return codec.Encode(*j)
}

// Target returns the header id the justification commits to.
func (j *Justification) Target() common.HeaderID {
	return common.HeaderID{
		Number: j.Commit.TargetNumber,
		Hash:   j.Commit.TargetHash,
	}
}

const precommitStage = byte(1)

// NewPrecommitMessage returns the canonical byte message an authority
// signs for a precommit: the message stage, the target, the round and
// the authority set id.
func NewPrecommitMessage(precommit Precommit, round, setID uint64) []byte {
	msg := make([]byte, 0, 1+32+4+8+8)
	msg = append(msg, precommitStage)
	msg = append(msg, precommit.TargetHash[:]...)
	msg = binary.LittleEndian.AppendUint32(msg, precommit.TargetNumber)
	msg = binary.LittleEndian.AppendUint64(msg, round)
	msg = binary.LittleEndian.AppendUint64(msg, setID)
	return msg
}

func verifyPrecommitSignature(signed SignedPrecommit, round, setID uint64) bool {
	msg := NewPrecommitMessage(signed.Precommit, round, setID)
	return ed25519.Verify(ed25519.PublicKey(signed.ID[:]), msg, signed.Signature[:])
}

// Verify checks that the justification finalizes its commit target under
// the given authority set: every counted precommit must be signed by a
// distinct authority of the set, target the commit target or one of its
// descendants through the votes ancestries, and the accumulated weight
// must reach the supermajority threshold.
func (j *Justification) Verify(setID uint64, voters *VoterSet[string]) error {
	if len(j.Commit.Precommits) == 0 {
		return fmt.Errorf("%w: no precommits", ErrInvalidJustification)
	}

	ancestry := make(map[common.Hash]types.Header, len(j.VotesAncestries))
	for _, header := range j.VotesAncestries {
		hash, err := common.HashHeader(header)
		if err != nil {
			return fmt.Errorf("hashing ancestry header: %w", err)
		}
		ancestry[hash] = header
	}

	seen := make(map[AuthorityID]struct{}, len(j.Commit.Precommits))
	var accumulatedWeight VoterWeight
	for _, signed := range j.Commit.Precommits {
		voter := voters.Get(string(signed.ID[:]))
		if voter == nil {
			return fmt.Errorf("%w: 0x%x", ErrVoterNotFound, signed.ID)
		}

		if _, ok := seen[signed.ID]; ok {
			return fmt.Errorf("%w: 0x%x", ErrDuplicateVote, signed.ID)
		}
		seen[signed.ID] = struct{}{}

		if !verifyPrecommitSignature(signed, j.Round, setID) {
			return fmt.Errorf("%w: precommit by 0x%x", ErrInvalidSignature, signed.ID)
		}

		if signed.Precommit.TargetNumber < j.Commit.TargetNumber {
			return fmt.Errorf("%w: %d < %d", ErrPrecommitBelowCommit,
				signed.Precommit.TargetNumber, j.Commit.TargetNumber)
		}

		err := j.checkDescendsFromTarget(signed.Precommit, ancestry)
		if err != nil {
			return err
		}

		accumulatedWeight += voter.Weight()
	}

	if accumulatedWeight < voters.Threshold() {
		return fmt.Errorf("%w: %d < %d", ErrInsufficientWeight,
			accumulatedWeight, voters.Threshold())
	}

	return nil
}

// checkDescendsFromTarget walks the votes ancestries from the precommit
// target back to the commit target.
func (j *Justification) checkDescendsFromTarget(precommit Precommit,
	ancestry map[common.Hash]types.Header) error {
	current := precommit.TargetHash
	for current != j.Commit.TargetHash {
		header, ok := ancestry[current]
		if !ok {
			return fmt.Errorf("%w: %s", ErrPrecommitNotDescendant, current.Hex())
		}
		current = header.ParentHash
	}
	return nil
}
