// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package grandpa

import (
	"encoding/binary"
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
)

// GrandpaEngineID is the consensus engine id of GRANDPA digest items ("FRNK").
var GrandpaEngineID = types.ConsensusEngineID(
	binary.LittleEndian.Uint32([]byte("FRNK")))

const scheduledChangeVariant = byte(1)

// ScheduledChange is an authority set change signalled in a header
// digest. The change enacts the next authorities after the given
// delay in blocks; justifications are always provided for the block
// enacting a change, so the bridge applies it at the signalling header.
type ScheduledChange struct {
	NextAuthorities []Authority
	Delay           uint32
}

// NewScheduledChangeDigest builds the consensus digest item carrying
// a scheduled authority set change.
func NewScheduledChangeDigest(change ScheduledChange) (types.DigestItem, error) {
	encoded, err := codec.Encode(change)
	if err != nil {
		return types.DigestItem{}, fmt.Errorf("scale encoding scheduled change: %w", err)
	}

	return types.DigestItem{
		IsConsensus: true,
		AsConsensus: types.Consensus{
			ConsensusEngineID: GrandpaEngineID,
			Bytes:             append([]byte{scheduledChangeVariant}, encoded...),
		},
	}, nil
}

// HasScheduledChange reports whether the header digest signals an
// authority set change. Headers that do must be relayed in order, as
// proofs across an unapplied change cannot verify.
func HasScheduledChange(header types.Header) (bool, error) {
	change, err := findScheduledChange(header)
	if err != nil {
		return false, err
	}
	return change != nil, nil
}

// findScheduledChange returns the scheduled authority set change
// signalled in the header digest, or nil if the header carries none.
func findScheduledChange(header types.Header) (*ScheduledChange, error) {
	for _, digestItem := range header.Digest {
		if !digestItem.IsConsensus {
			continue
		}
		if digestItem.AsConsensus.ConsensusEngineID != GrandpaEngineID {
			continue
		}

		data := []byte(digestItem.AsConsensus.Bytes)
		if len(data) == 0 || data[0] != scheduledChangeVariant {
			continue
		}

		change := new(ScheduledChange)
		err := codec.Decode(data[1:], change)
		if err != nil {
			return nil, fmt.Errorf("scale decoding scheduled change: %w", err)
		}
		return change, nil
	}

	return nil, nil
}
