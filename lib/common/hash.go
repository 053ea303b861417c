// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package common

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// HashLength is the expected length of the common.Hash type
const HashLength = 32

// Hash is the 32-byte blake2b hash type used across the bridge. It aliases
// the substrate RPC client hash so values can flow into the SCALE codec and
// the RPC layer without conversion.
type Hash = types.Hash

// EmptyHash is the all-zero hash
var EmptyHash = Hash{}

// NewHash casts a byte slice to a Hash.
// If the input is longer than 32 bytes, it takes the first 32 bytes.
func NewHash(in []byte) (res Hash) {
	res = Hash{}
	copy(res[:], in)
	return res
}

// HexToHash turns a 0x prefixed hex string into a Hash
func HexToHash(in string) (Hash, error) {
	if strings.Compare(in[:2], "0x") != 0 {
		return Hash{}, fmt.Errorf("could not byteify non 0x prefixed string: %s", in)
	}
	in = in[2:]
	out, err := hex.DecodeString(in)
	if err != nil {
		return Hash{}, err
	}
	if len(out) != HashLength {
		return Hash{}, fmt.Errorf("input string is not 32 bytes: %s", in)
	}
	var buf = Hash{}
	copy(buf[:], out)
	return buf, nil
}

// MustHexToHash turns a 0x prefixed hex string into a Hash.
// It panics if it fails to turn the string into a Hash.
func MustHexToHash(in string) Hash {
	hash, err := HexToHash(in)
	if err != nil {
		panic(err)
	}

	return hash
}
