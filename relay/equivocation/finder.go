// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package equivocation watches synced finality proofs for double votes
// and reports them back to the chain whose authority misbehaved.
package equivocation

import (
	"github.com/ChainSafe/parabridge/bridge/grandpa"
)

// Finder accumulates precommit votes per round and flags authorities
// voting for two different targets in the same round.
type Finder struct {
	setID uint64
	seen  map[voteKey]grandpa.SignedPrecommit
	// reported holds the votes already turned into a proof, so the
	// same offence is reported once.
	reported map[voteKey]struct{}
}

type voteKey struct {
	round     uint64
	authority grandpa.AuthorityID
}

// NewFinder creates a finder scoped to the given authority set.
func NewFinder(setID uint64) *Finder {
	return &Finder{
		setID:    setID,
		seen:     make(map[voteKey]grandpa.SignedPrecommit),
		reported: make(map[voteKey]struct{}),
	}
}

// Reset drops all accumulated votes when the authority set changes.
// Votes from different sets are signed over different set ids and are
// not comparable. Resetting to the current set id is a no-op.
func (f *Finder) Reset(setID uint64) {
	if setID == f.setID {
		return
	}
	f.setID = setID
	f.seen = make(map[voteKey]grandpa.SignedPrecommit)
	f.reported = make(map[voteKey]struct{})
}

// SetID returns the authority set id the finder currently tracks.
func (f *Finder) SetID() uint64 {
	return f.setID
}

// Scan feeds the justification's precommits to the finder and returns
// an equivocation proof for every authority caught voting for two
// different targets in the justification's round.
func (f *Finder) Scan(justification *grandpa.Justification) []grandpa.EquivocationProof {
	var proofs []grandpa.EquivocationProof
	for _, signed := range justification.Commit.Precommits {
		key := voteKey{round: justification.Round, authority: signed.ID}

		prior, voted := f.seen[key]
		if !voted {
			f.seen[key] = signed
			continue
		}
		if prior.Precommit == signed.Precommit {
			continue
		}
		if _, done := f.reported[key]; done {
			continue
		}

		f.reported[key] = struct{}{}
		proofs = append(proofs, grandpa.EquivocationProof{
			SetID:  f.setID,
			Round:  justification.Round,
			First:  prior,
			Second: signed,
		})
	}
	return proofs
}
