// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package messages

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"

	"github.com/ChainSafe/parabridge/lib/common"
	"github.com/ChainSafe/parabridge/lib/trie"
	"github.com/ChainSafe/parabridge/lib/trie/proof"
)

type sizeClassKind int

const (
	minimalProof sizeClassKind = iota
	largeLeafProof
	extraNodesProof
)

// ProofSizeClass shapes a prepared storage proof, used to exercise
// proof size accounting with proofs of a controlled size.
type ProofSizeClass struct {
	kind sizeClassKind
	size int
}

// MinimalProof is a proof with no filler, as small as the proved
// entries allow.
func MinimalProof() ProofSizeClass {
	return ProofSizeClass{kind: minimalProof}
}

// HasLargeLeaf pads the proof with one filler leaf so its total size
// reaches at least the given number of bytes.
func HasLargeLeaf(size int) ProofSizeClass {
	return ProofSizeClass{kind: largeLeafProof, size: size}
}

// HasExtraNodes pads the proof with encoded filler nodes that no proved
// key needs, until its total size reaches at least the given number of
// bytes. Verification tolerates unused nodes, so padded proofs exercise
// size accounting without changing what is proved.
func HasExtraNodes(size int) ProofSizeClass {
	return ProofSizeClass{kind: extraNodesProof, size: size}
}

func proofSize(storageProof proof.RawStorageProof) (size int) {
	for _, node := range storageProof {
		size += len(node)
	}
	return size
}

// PrepareMessagesStorageProof builds a storage trie holding messages
// [beginNonce, endNonce] of the given lane, each carrying the given
// payload, plus the outbound lane state when one is given, and returns
// the trie root together with a storage proof of all entries. The size
// class controls filler entries added to the trie.
func PrepareMessagesStorageProof(lane LaneID, beginNonce, endNonce MessageNonce,
	outboundLaneData *OutboundLaneData, payload []byte, sizeClass ProofSizeClass) (
	stateRoot common.Hash, storageProof proof.RawStorageProof, err error) {
	if beginNonce > endNonce {
		return common.Hash{}, nil, fmt.Errorf("%w: [%d, %d]",
			ErrEmptyRange, beginNonce, endNonce)
	}

	storageTrie := trie.NewEmptyTrie()
	var provedKeys [][]byte

	encodedPayload, err := codec.Encode(types.Bytes(payload))
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("encoding payload: %w", err)
	}
	for nonce := beginNonce; nonce <= endNonce; nonce++ {
		key, err := OutboundMessageKey(lane, nonce)
		if err != nil {
			return common.Hash{}, nil, fmt.Errorf("message %d storage key: %w", nonce, err)
		}
		storageTrie.Put(key, encodedPayload)
		provedKeys = append(provedKeys, key)
	}

	if outboundLaneData != nil {
		laneKey, err := OutboundLaneKey(lane)
		if err != nil {
			return common.Hash{}, nil, fmt.Errorf("outbound lane storage key: %w", err)
		}
		encodedLaneData, err := codec.Encode(*outboundLaneData)
		if err != nil {
			return common.Hash{}, nil, fmt.Errorf("encoding outbound lane state: %w", err)
		}
		storageTrie.Put(laneKey, encodedLaneData)
		provedKeys = append(provedKeys, laneKey)
	}

	provedKeys, err = growTrie(storageTrie, provedKeys, sizeClass)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("growing trie to size class: %w", err)
	}

	stateRoot, err = storageTrie.Hash()
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("hashing storage trie: %w", err)
	}
	storageProof, err = proof.Generate(storageTrie, provedKeys)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("generating storage proof: %w", err)
	}

	if sizeClass.kind == extraNodesProof {
		storageProof, err = padProofWithExtraNodes(storageProof, sizeClass.size)
		if err != nil {
			return common.Hash{}, nil, fmt.Errorf("padding proof with extra nodes: %w", err)
		}
	}
	return stateRoot, storageProof, nil
}

// growTrie pads the trie with filler entries per the size class and
// returns the updated set of keys to prove.
func growTrie(storageTrie *trie.Trie, provedKeys [][]byte,
	sizeClass ProofSizeClass) ([][]byte, error) {
	if sizeClass.kind != largeLeafProof {
		return provedKeys, nil
	}

	// one proved filler leaf large enough to dominate the proof
	fillerKey, err := mapKey("ProofFiller", []byte{0})
	if err != nil {
		return nil, err
	}
	storageTrie.Put(fillerKey, make([]byte, sizeClass.size))
	return append(provedKeys, fillerKey), nil
}

// padProofWithExtraNodes appends encoded filler leaf nodes unused by
// verification until the proof reaches the wanted size.
func padProofWithExtraNodes(storageProof proof.RawStorageProof, size int) (
	proof.RawStorageProof, error) {
	for filler := uint32(0); proofSize(storageProof) < size; filler++ {
		fillerKey := make([]byte, 4)
		binary.LittleEndian.PutUint32(fillerKey, filler)

		fillerNode := &trie.Node{
			PartialKey:   trie.KeyLEToNibbles(fillerKey),
			StorageValue: make([]byte, 64),
			Dirty:        true,
		}
		encodingBuffer := bytes.NewBuffer(nil)
		err := fillerNode.Encode(encodingBuffer)
		if err != nil {
			return nil, fmt.Errorf("encoding filler node: %w", err)
		}
		storageProof = append(storageProof, encodingBuffer.Bytes())
	}
	return storageProof, nil
}

// PrepareInboundLaneProof builds a storage trie holding the inbound
// state of the given lane and returns the trie root together with a
// storage proof of it. It backs delivery confirmation submissions.
func PrepareInboundLaneProof(lane LaneID, inbound InboundLaneData) (
	stateRoot common.Hash, storageProof proof.RawStorageProof, err error) {
	laneKey, err := InboundLaneKey(lane)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("inbound lane storage key: %w", err)
	}
	encodedLaneData, err := codec.Encode(inbound)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("encoding inbound lane state: %w", err)
	}

	storageTrie := trie.NewEmptyTrie()
	storageTrie.Put(laneKey, encodedLaneData)

	stateRoot, err = storageTrie.Hash()
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("hashing storage trie: %w", err)
	}
	storageProof, err = proof.Generate(storageTrie, [][]byte{laneKey})
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("generating storage proof: %w", err)
	}
	return stateRoot, storageProof, nil
}
