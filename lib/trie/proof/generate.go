// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package proof generates and verifies storage proofs against a trie
// root hash. A proof is an ordered sequence of encoded trie nodes
// sufficient to reconstruct the queried keys' values.
package proof

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ChainSafe/parabridge/lib/trie"
)

var (
	ErrKeyNotFound = errors.New("key not found")
)

// RawStorageProof is an ordered sequence of encoded trie nodes.
type RawStorageProof [][]byte

// Generate returns the encoded proof nodes for the trie given
// and for the (Little Endian) full keys given. Nodes shared
// between keys are only included once, in walk order.
func Generate(t *trie.Trie, fullKeys [][]byte) (proof RawStorageProof, err error) {
	// ensure encodings and merkle values are computed
	_, err = t.Hash()
	if err != nil {
		return nil, fmt.Errorf("hashing trie: %w", err)
	}

	seen := make(map[string]struct{})
	for _, fullKey := range fullKeys {
		fullKeyNibbles := trie.KeyLEToNibbles(fullKey)
		encodedProofNodes, err := walk(t.RootNode(), fullKeyNibbles)
		if err != nil {
			return nil, fmt.Errorf("walking to node at key 0x%x: %w", fullKey, err)
		}

		for _, encodedProofNode := range encodedProofNodes {
			key := string(encodedProofNode)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			proof = append(proof, encodedProofNode)
		}
	}

	return proof, nil
}

func walk(parent *trie.Node, fullKey []byte) (
	encodedProofNodes [][]byte, err error) {
	if parent == nil {
		return nil, ErrKeyNotFound
	}

	encodingBuffer := bytes.NewBuffer(nil)
	err = parent.Encode(encodingBuffer)
	if err != nil {
		return nil, fmt.Errorf("encode node: %w", err)
	}
	encodedProofNodes = append(encodedProofNodes, encodingBuffer.Bytes())

	if bytes.Equal(parent.PartialKey, fullKey) {
		return encodedProofNodes, nil
	}

	if parent.Kind() == trie.Leaf {
		return nil, ErrKeyNotFound
	}

	commonLength := commonPrefixLength(parent.PartialKey, fullKey)
	if commonLength < len(parent.PartialKey) || commonLength == len(fullKey) {
		return nil, ErrKeyNotFound
	}

	childIndex := fullKey[commonLength]
	nextChild := parent.Children[childIndex]
	nextFullKey := fullKey[commonLength+1:]
	deeperEncodedProofNodes, err := walk(nextChild, nextFullKey)
	if err != nil {
		return nil, err // note: do not wrap since this is recursive
	}

	encodedProofNodes = append(encodedProofNodes, deeperEncodedProofNodes...)
	return encodedProofNodes, nil
}

func commonPrefixLength(a, b []byte) (length int) {
	min := len(a)
	if len(b) < min {
		min = len(b)
	}

	for length = 0; length < min; length++ {
		if a[length] != b[length] {
			break
		}
	}

	return length
}
