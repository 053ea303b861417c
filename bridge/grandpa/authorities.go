// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package grandpa

import (
	"fmt"

	"github.com/tidwall/btree"
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

// AuthorityID is the raw ed25519 public key of a finality authority.
type AuthorityID [32]byte

// Authority is a single finality authority with its voting weight.
// Its encoded size is fixed: 32 bytes of public key and 8 bytes of weight.
type Authority struct {
	ID     AuthorityID
	Weight uint64
}

const authorityEncodedSize = 32 + 8

// AuthoritySet is the set of authorities eligible to produce finality
// votes for the bridged chain, together with its generation number.
type AuthoritySet struct {
	Authorities []Authority
	SetID       uint64
}

// NewAuthoritySet builds an AuthoritySet, enforcing the maximum
// authority count bound.
func NewAuthoritySet(authorities []Authority, setID uint64,
	maxAuthorities int) (AuthoritySet, error) {
	if len(authorities) > maxAuthorities {
		return AuthoritySet{}, fmt.Errorf("%w: %d > %d",
			ErrTooManyAuthoritiesInSet, len(authorities), maxAuthorities)
	}

	return AuthoritySet{
		Authorities: authorities,
		SetID:       setID,
	}, nil
}

// UnusedProofSize reports how many bytes of the worst case encoded
// authority set are not used by this set. Callers pay the worst case
// proof size cost up front, so this value is refunded to them.
func (s AuthoritySet) UnusedProofSize(maxAuthorities int) uint64 {
	unusedEntries := maxAuthorities - len(s.Authorities)
	if unusedEntries <= 0 {
		return 0
	}
	return uint64(unusedEntries) * authorityEncodedSize
}

// VoterSet builds the ordered voter set of this authority set.
// It returns nil for an empty or overflowing weight distribution.
func (s AuthoritySet) VoterSet() *VoterSet[string] {
	weights := make([]IDWeight[string], len(s.Authorities))
	for i, authority := range s.Authorities {
		weights[i] = IDWeight[string]{
			ID:     string(authority.ID[:]),
			Weight: VoterWeight(authority.Weight),
		}
	}
	return NewVoterSet(weights)
}

// VoterWeight is the weight of a voter.
type VoterWeight uint64

type idVoterInfo[ID constraints.Ordered] struct {
	ID ID
	VoterInfo
}

// VoterSet identifies all voters that are permitted to vote in a round
// of the protocol and their associated weights. A VoterSet is furthermore
// equipped with a total order, given by the ordering of the voter's IDs.
type VoterSet[ID constraints.Ordered] struct {
	voters      []idVoterInfo[ID]
	threshold   VoterWeight
	totalWeight VoterWeight
}

// IDWeight is a voter ID with an associated weight.
type IDWeight[ID constraints.Ordered] struct {
	ID     ID
	Weight VoterWeight
}

// NewVoterSet creates a voter set from a weight distribution.
//
// If the distribution contains multiple weights for the same voter ID,
// they are understood to be partial weights and are accumulated, so the
// order of the distribution is irrelevant.
//
// Returns nil if the distribution does not describe a valid voter set:
// no non-zero weights, or a total weight overflowing uint64.
func NewVoterSet[ID constraints.Ordered](weights []IDWeight[ID]) *VoterSet[ID] {
	var totalWeight VoterWeight
	voters := btree.NewMap[ID, VoterInfo](2)
	for _, iw := range weights {
		if iw.Weight == 0 {
			continue
		}

		if totalWeight+iw.Weight < totalWeight {
			return nil // total weight overflow
		}
		totalWeight += iw.Weight

		vi, has := voters.Get(iw.ID)
		if !has {
			vi = VoterInfo{weight: iw.Weight}
		} else {
			vi.weight += iw.Weight
		}
		voters.Set(iw.ID, vi)
	}

	if voters.Len() == 0 {
		return nil
	}

	orderedVoters := make([]idVoterInfo[ID], voters.Len())
	var i uint
	voters.Scan(func(id ID, info VoterInfo) bool {
		info.position = i
		orderedVoters[i] = idVoterInfo[ID]{id, info}
		i++
		return true
	})

	return &VoterSet[ID]{
		voters:      orderedVoters,
		totalWeight: totalWeight,
		threshold:   threshold(totalWeight),
	}
}

// Get returns the voter info for the voter with the given ID, if any.
func (vs *VoterSet[ID]) Get(id ID) *VoterInfo {
	idx, ok := slices.BinarySearchFunc(vs.voters, idVoterInfo[ID]{ID: id},
		func(a, b idVoterInfo[ID]) int {
			switch {
			case a.ID == b.ID:
				return 0
			case a.ID > b.ID:
				return 1
			default:
				return -1
			}
		})
	if ok {
		return &vs.voters[idx].VoterInfo
	}
	return nil
}

// Contains returns whether the set contains a voter with the given ID.
func (vs *VoterSet[ID]) Contains(id ID) bool {
	return vs.Get(id) != nil
}

// Len returns the size of the set.
func (vs *VoterSet[ID]) Len() int {
	return len(vs.voters)
}

// Threshold returns the threshold vote weight required for
// supermajority with respect to this set of voters.
func (vs *VoterSet[ID]) Threshold() VoterWeight {
	return vs.threshold
}

// TotalWeight returns the total weight of all voters.
func (vs *VoterSet[ID]) TotalWeight() VoterWeight {
	return vs.totalWeight
}

// VoterInfo is the information about a voter in a VoterSet.
type VoterInfo struct {
	position uint
	weight   VoterWeight
}

// Weight returns the weight of the voter.
func (vi VoterInfo) Weight() VoterWeight {
	return vi.weight
}

// threshold computes the supermajority threshold weight
// given the total voting weight: total - (total-1)/3.
func threshold(totalWeight VoterWeight) VoterWeight {
	faulty := (totalWeight - 1) / 3
	return totalWeight - faulty
}
