// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package proof

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ChainSafe/parabridge/lib/trie"
)

var (
	ErrEmptyProof             = errors.New("proof slice empty")
	ErrRootNodeNotFound       = errors.New("root node not found in proof")
	ErrKeyNotFoundInProofTrie = errors.New("key not found in proof trie")
	ErrValueMismatchProofTrie = errors.New("value found in proof trie does not match")
)

// Verify verifies a given key and value belongs to the trie by creating
// a proof trie based on the encoded proof nodes given. The order of proof
// nodes is ignored. A nil error is returned on success.
func Verify(proof RawStorageProof, rootHash, key, value []byte) (err error) {
	proofTrie, err := BuildTrie(proof, rootHash)
	if err != nil {
		return fmt.Errorf("building trie from proof encoded nodes: %w", err)
	}

	proofTrieValue := proofTrie.Get(key)
	if proofTrieValue == nil {
		return fmt.Errorf("%w: 0x%x in proof trie for root hash 0x%x",
			ErrKeyNotFoundInProofTrie, key, rootHash)
	}

	// compare the value only if the caller passed a non empty value
	if len(value) > 0 && !bytes.Equal(value, proofTrieValue) {
		return fmt.Errorf("%w: expected value 0x%x but got value 0x%x from proof trie",
			ErrValueMismatchProofTrie, value, proofTrieValue)
	}

	return nil
}

// BuildTrie sets a partial trie based on the proof slice of encoded nodes
// and the root hash given. Proof nodes not reachable from the root are
// left unresolved, so reading their keys reports the key as absent.
func BuildTrie(proof RawStorageProof, rootHash []byte) (t *trie.Trie, err error) {
	if len(proof) == 0 {
		return nil, fmt.Errorf("%w: for merkle root hash 0x%x",
			ErrEmptyProof, rootHash)
	}

	merkleValueToNode := make(map[string]*trie.Node, len(proof))

	var root *trie.Node
	for i, encodedProofNode := range proof {
		decodedNode, err := trie.Decode(bytes.NewReader(encodedProofNode))
		if err != nil {
			return nil, fmt.Errorf("decoding node at index %d: %w (node encoded is 0x%x)",
				i, err, encodedProofNode)
		}

		decodedNode.Encoding = encodedProofNode

		// Compute the merkle value of the node treating it as a non root
		// node, so encodings smaller than 32 bytes stay as they are.
		const isRoot = false
		decodedNode.MerkleValue, err = trie.MerkleValueOf(encodedProofNode, isRoot)
		if err != nil {
			return nil, fmt.Errorf("merkle value of node at index %d: %w", i, err)
		}

		merkleValueToNode[string(decodedNode.MerkleValue)] = decodedNode

		if root != nil {
			continue
		}

		possibleRootMerkleValue := decodedNode.MerkleValue
		if len(possibleRootMerkleValue) < 32 {
			// The root merkle value is always the blake2b digest of the root
			// node encoding, never the encoding itself, so it is recomputed
			// here for small nodes before comparing with the root hash given.
			const isRoot = true
			possibleRootMerkleValue, err = trie.MerkleValueOf(encodedProofNode, isRoot)
			if err != nil {
				return nil, fmt.Errorf("merkle value of possible root node: %w", err)
			}
		}

		if bytes.Equal(rootHash, possibleRootMerkleValue) {
			decodedNode.MerkleValue = rootHash
			root = decodedNode
		}
	}

	if root == nil {
		return nil, fmt.Errorf("%w: for merkle root hash 0x%x",
			ErrRootNodeNotFound, rootHash)
	}

	loadProof(merkleValueToNode, root)

	return trie.NewTrie(root), nil
}

// loadProof is a recursive function that will create all the trie paths
// based on the map from node merkle value to node, starting from the root.
func loadProof(merkleValueToNode map[string]*trie.Node, n *trie.Node) {
	if n.Kind() != trie.Branch {
		return
	}

	for i, child := range n.Children {
		if child == nil {
			continue
		}

		node, ok := merkleValueToNode[string(child.MerkleValue)]
		if !ok {
			continue
		}

		n.Children[i] = node
		loadProof(merkleValueToNode, node)
	}
}
