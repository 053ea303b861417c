// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package common

import (
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
)

// HeaderID identifies a header by number and hash. The number is carried
// next to the hash so callers can apply "newer than" rules without having
// to look the header up.
type HeaderID struct {
	Number uint32
	Hash   Hash
}

func (id HeaderID) String() string {
	return fmt.Sprintf("#%d (%s)", id.Number, id.Hash.Hex())
}

// HashHeader returns the blake2b hash of the SCALE encoding of the header.
func HashHeader(header types.Header) (Hash, error) {
	enc, err := codec.Encode(header)
	if err != nil {
		return Hash{}, fmt.Errorf("scale encoding header: %w", err)
	}

	return Blake2bHash(enc)
}

// NewHeaderID builds the HeaderID of the given header.
func NewHeaderID(header types.Header) (HeaderID, error) {
	hash, err := HashHeader(header)
	if err != nil {
		return HeaderID{}, err
	}

	return HeaderID{
		Number: uint32(header.Number),
		Hash:   hash,
	}, nil
}
