// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package trie implements the Merkle-Patricia trie the bridge uses to
// build and verify storage proofs. Keys are arbitrary byte slices and
// merkle values follow the blake2b based scheme of the Polkadot state
// trie: nodes encoding to less than 32 bytes are inlined, all others
// are referenced by the hash of their encoding.
package trie

import (
	"bytes"

	"github.com/ChainSafe/parabridge/lib/common"
)

// EmptyHash is the root hash of an empty trie.
var EmptyHash = common.MustBlake2bHash([]byte{0})

// Trie is an in-memory Merkle-Patricia trie.
// It is not safe for concurrent use.
type Trie struct {
	root *Node
}

// NewEmptyTrie creates a trie with a nil root.
func NewEmptyTrie() *Trie {
	return &Trie{}
}

// NewTrie creates a trie with the root node given.
func NewTrie(root *Node) *Trie {
	return &Trie{root: root}
}

// RootNode returns the root node of the trie.
func (t *Trie) RootNode() *Node {
	return t.root
}

// Put inserts a value into the trie at the
// key specified, replacing any existing value.
func (t *Trie) Put(keyLE, value []byte) {
	nibbles := KeyLEToNibbles(keyLE)
	t.root = insert(t.root, nibbles, value)
}

func insert(parent *Node, key, value []byte) (newParent *Node) {
	if parent == nil {
		return &Node{
			PartialKey:   key,
			StorageValue: value,
			Dirty:        true,
		}
	}

	if parent.Kind() == Leaf {
		return insertInLeaf(parent, key, value)
	}
	return insertInBranch(parent, key, value)
}

func insertInLeaf(parentLeaf *Node, key, value []byte) (newParent *Node) {
	if bytes.Equal(parentLeaf.PartialKey, key) {
		parentLeaf.StorageValue = value
		parentLeaf.Dirty = true
		return parentLeaf
	}

	commonPrefixLength := lenCommonPrefix(parentLeaf.PartialKey, key)
	newBranchParent := &Node{
		PartialKey: key[:commonPrefixLength],
		Children:   make([]*Node, childrenCapacity),
		Dirty:      true,
	}

	if commonPrefixLength == len(parentLeaf.PartialKey) {
		// key is longer than the parent leaf key, the parent leaf
		// value moves to the new branch.
		newBranchParent.StorageValue = parentLeaf.StorageValue
	} else {
		childIndex := parentLeaf.PartialKey[commonPrefixLength]
		newBranchParent.Children[childIndex] = &Node{
			PartialKey:   parentLeaf.PartialKey[commonPrefixLength+1:],
			StorageValue: parentLeaf.StorageValue,
			Dirty:        true,
		}
	}

	if commonPrefixLength == len(key) {
		newBranchParent.StorageValue = value
	} else {
		childIndex := key[commonPrefixLength]
		newBranchParent.Children[childIndex] = &Node{
			PartialKey:   key[commonPrefixLength+1:],
			StorageValue: value,
			Dirty:        true,
		}
	}

	return newBranchParent
}

func insertInBranch(parentBranch *Node, key, value []byte) (newParent *Node) {
	commonPrefixLength := lenCommonPrefix(parentBranch.PartialKey, key)

	if commonPrefixLength == len(parentBranch.PartialKey) {
		if commonPrefixLength == len(key) {
			parentBranch.StorageValue = value
			parentBranch.Dirty = true
			return parentBranch
		}

		childIndex := key[commonPrefixLength]
		remainingKey := key[commonPrefixLength+1:]
		parentBranch.Children[childIndex] = insert(
			parentBranch.Children[childIndex], remainingKey, value)
		parentBranch.Dirty = true
		return parentBranch
	}

	// the key diverges within the parent branch partial key,
	// a new branch is created above the parent branch.
	newParentBranch := &Node{
		PartialKey: key[:commonPrefixLength],
		Children:   make([]*Node, childrenCapacity),
		Dirty:      true,
	}

	oldParentIndex := parentBranch.PartialKey[commonPrefixLength]
	parentBranch.PartialKey = parentBranch.PartialKey[commonPrefixLength+1:]
	parentBranch.Dirty = true
	newParentBranch.Children[oldParentIndex] = parentBranch

	if commonPrefixLength == len(key) {
		newParentBranch.StorageValue = value
	} else {
		childIndex := key[commonPrefixLength]
		newParentBranch.Children[childIndex] = &Node{
			PartialKey:   key[commonPrefixLength+1:],
			StorageValue: value,
			Dirty:        true,
		}
	}

	return newParentBranch
}

// Get returns the value in the trie at the key specified,
// or nil if the key is not found. Unresolved nodes, for
// example nodes missing from a proof, are treated as absent.
func (t *Trie) Get(keyLE []byte) (value []byte) {
	nibbles := KeyLEToNibbles(keyLE)
	return retrieve(t.root, nibbles)
}

func retrieve(parent *Node, key []byte) (value []byte) {
	if parent == nil || parent.Unresolved {
		return nil
	}

	if bytes.Equal(parent.PartialKey, key) {
		return parent.StorageValue
	}

	if parent.Kind() == Leaf {
		return nil
	}

	commonPrefixLength := lenCommonPrefix(parent.PartialKey, key)
	if commonPrefixLength < len(parent.PartialKey) ||
		commonPrefixLength == len(key) {
		return nil
	}

	childIndex := key[commonPrefixLength]
	return retrieve(parent.Children[childIndex], key[commonPrefixLength+1:])
}

// Hash returns the root merkle value of the trie. The root node is
// always hashed, even if its encoding is smaller than 32 bytes.
func (t *Trie) Hash() (rootHash common.Hash, err error) {
	if t.root == nil {
		return EmptyHash, nil
	}

	buffer := bytes.NewBuffer(nil)
	err = t.root.Encode(buffer)
	if err != nil {
		return common.Hash{}, err
	}

	rootHash, err = common.Blake2bHash(buffer.Bytes())
	if err != nil {
		return common.Hash{}, err
	}

	t.root.Encoding = buffer.Bytes()
	t.root.MerkleValue = rootHash[:]
	t.root.Dirty = false
	return rootHash, nil
}

// MustHash returns the root merkle value of the trie.
// It panics if it fails to hash the root node.
func (t *Trie) MustHash() common.Hash {
	hash, err := t.Hash()
	if err != nil {
		panic(err)
	}

	return hash
}
