// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package common

import (
	"encoding/binary"

	"github.com/OneOfOne/xxhash"
	"golang.org/x/crypto/blake2b"
)

// Blake2b128 returns the 128-bit blake2b hash of the input data
func Blake2b128(in []byte) ([]byte, error) {
	h, err := blake2b.New(16, nil)
	if err != nil {
		return nil, err
	}

	_, err = h.Write(in)
	if err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// Blake2bHash returns the 256-bit blake2b hash of the input data
func Blake2bHash(in []byte) (Hash, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return Hash{}, err
	}

	_, err = h.Write(in)
	if err != nil {
		return Hash{}, err
	}

	hash := h.Sum(nil)
	var buf = [32]byte{}
	copy(buf[:], hash)
	return Hash(buf), nil
}

// MustBlake2bHash returns the 256-bit blake2b hash of the input data.
// It panics if it fails to hash.
func MustBlake2bHash(in []byte) Hash {
	hash, err := Blake2bHash(in)
	if err != nil {
		panic(err)
	}

	return hash
}

// Twox64 returns the xx64 hash of the input data
func Twox64(in []byte) ([]byte, error) {
	hasher := xxhash.NewS64(0)
	_, err := hasher.Write(in)
	if err != nil {
		return nil, err
	}

	hash := make([]byte, 8)
	binary.LittleEndian.PutUint64(hash, hasher.Sum64())
	return hash, nil
}

// Twox128Hash computes xxHash64 twice with seeds 0 and 1 applied on given byte array
func Twox128Hash(msg []byte) ([]byte, error) {
	h0 := xxhash.NewS64(0)
	_, err := h0.Write(msg)
	if err != nil {
		return nil, err
	}
	hash0 := make([]byte, 8)
	binary.LittleEndian.PutUint64(hash0, h0.Sum64())

	h1 := xxhash.NewS64(1)
	_, err = h1.Write(msg)
	if err != nil {
		return nil, err
	}
	hash1 := make([]byte, 8)
	binary.LittleEndian.PutUint64(hash1, h1.Sum64())

	return append(hash0, hash1...), nil
}
