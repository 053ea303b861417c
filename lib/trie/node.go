// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package trie

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"

	"github.com/ChainSafe/parabridge/lib/common"
)

// Node variant bits, stored in the two most significant bits
// of the node header byte.
const (
	leafVariant            = byte(0b0100_0000)
	branchVariant          = byte(0b1000_0000)
	branchWithValueVariant = byte(0b1100_0000)
	variantMask            = byte(0b1100_0000)
	keyLenMask             = byte(0b0011_1111)
)

const childrenCapacity = 16

var (
	ErrVariantUnknown  = errors.New("node variant is unknown")
	ErrDecodeChildHash = errors.New("cannot decode child hash")
	ErrReadHeaderByte  = errors.New("cannot read header byte")
)

// Node is a trie node. A node is a branch if and only if
// its Children slice is non-nil (and of length 16).
// An unresolved node only carries the merkle value of a node
// that was referenced by a parent but not materialised, for
// example a node absent from a storage proof.
type Node struct {
	PartialKey   []byte // nibbles
	StorageValue []byte
	Children     []*Node
	MerkleValue  []byte
	Encoding     []byte
	Dirty        bool
	Unresolved   bool
}

// Kind is the type of node, leaf or branch.
type Kind byte

const (
	// Leaf kind for leaf nodes.
	Leaf Kind = iota
	// Branch kind for branch nodes.
	Branch
)

// Kind returns Leaf or Branch depending on the node.
func (n *Node) Kind() Kind {
	if n.Children != nil {
		return Branch
	}
	return Leaf
}

// ChildrenBitmap returns the 16 bit bitmap of the children of the branch.
func (n *Node) ChildrenBitmap() (bitmap uint16) {
	for i := range n.Children {
		if n.Children[i] != nil {
			bitmap |= 1 << uint(i)
		}
	}
	return bitmap
}

func encodeHeader(n *Node, writer io.Writer) (err error) {
	var header byte
	switch {
	case n.Kind() == Leaf:
		header = leafVariant
	case n.StorageValue == nil:
		header = branchVariant
	default:
		header = branchWithValueVariant
	}

	keyLength := len(n.PartialKey)
	if keyLength < int(keyLenMask) {
		header |= byte(keyLength)
		_, err = writer.Write([]byte{header})
		return err
	}

	header |= keyLenMask
	_, err = writer.Write([]byte{header})
	if err != nil {
		return err
	}

	remaining := keyLength - int(keyLenMask)
	for remaining >= 255 {
		_, err = writer.Write([]byte{255})
		if err != nil {
			return err
		}
		remaining -= 255
	}
	_, err = writer.Write([]byte{byte(remaining)})
	return err
}

func decodeHeader(reader *bytes.Reader) (variant byte, keyLength int, err error) {
	headerByte, err := reader.ReadByte()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrReadHeaderByte, err)
	}

	variant = headerByte & variantMask
	switch variant {
	case leafVariant, branchVariant, branchWithValueVariant:
	default:
		return 0, 0, fmt.Errorf("%w: 0b%08b", ErrVariantUnknown, headerByte)
	}

	keyLength = int(headerByte & keyLenMask)
	if keyLength == int(keyLenMask) {
		for {
			b, err := reader.ReadByte()
			if err != nil {
				return 0, 0, fmt.Errorf("reading key length extension: %w", err)
			}
			keyLength += int(b)
			if b < 255 {
				break
			}
		}
	}

	return variant, keyLength, nil
}

// Encode encodes the node to the buffer given, writing the merkle
// values of children in place of the children themselves.
func (n *Node) Encode(buffer *bytes.Buffer) (err error) {
	err = encodeHeader(n, buffer)
	if err != nil {
		return fmt.Errorf("cannot encode header: %w", err)
	}

	_, err = buffer.Write(NibblesToKeyLE(n.PartialKey))
	if err != nil {
		return fmt.Errorf("cannot write LE key to buffer: %w", err)
	}

	nodeIsBranch := n.Kind() == Branch
	if nodeIsBranch {
		childrenBitmap := make([]byte, 2)
		binary.LittleEndian.PutUint16(childrenBitmap, n.ChildrenBitmap())
		_, err = buffer.Write(childrenBitmap)
		if err != nil {
			return fmt.Errorf("cannot write children bitmap to buffer: %w", err)
		}
	}

	// Only encode the storage value if the node is a leaf or
	// the node is a branch with a non nil storage value.
	if !nodeIsBranch || n.StorageValue != nil {
		encoder := scale.NewEncoder(buffer)
		err = encoder.Encode(n.StorageValue)
		if err != nil {
			return fmt.Errorf("scale encoding storage value: %w", err)
		}
	}

	if nodeIsBranch {
		encoder := scale.NewEncoder(buffer)
		for _, child := range n.Children {
			if child == nil {
				continue
			}

			merkleValue, err := child.CalculateMerkleValue()
			if err != nil {
				return fmt.Errorf("merkle value of child: %w", err)
			}

			err = encoder.Encode(merkleValue)
			if err != nil {
				return fmt.Errorf("scale encoding child merkle value: %w", err)
			}
		}
	}

	return nil
}

// Decode decodes a node from the reader given. Branch children are
// decoded as unresolved nodes carrying their merkle value only.
func Decode(reader *bytes.Reader) (n *Node, err error) {
	variant, keyLength, err := decodeHeader(reader)
	if err != nil {
		return nil, fmt.Errorf("decoding header: %w", err)
	}

	n = new(Node)

	keyBytes := make([]byte, keyLength/2+keyLength%2)
	_, err = io.ReadFull(reader, keyBytes)
	if err != nil {
		return nil, fmt.Errorf("reading partial key: %w", err)
	}
	n.PartialKey = decodePartialKey(keyBytes, keyLength)

	if variant == leafVariant {
		decoder := scale.NewDecoder(reader)
		err = decoder.Decode(&n.StorageValue)
		if err != nil {
			return nil, fmt.Errorf("scale decoding storage value: %w", err)
		}
		return n, nil
	}

	bitmapBytes := make([]byte, 2)
	_, err = io.ReadFull(reader, bitmapBytes)
	if err != nil {
		return nil, fmt.Errorf("reading children bitmap: %w", err)
	}
	bitmap := binary.LittleEndian.Uint16(bitmapBytes)

	n.Children = make([]*Node, childrenCapacity)

	if variant == branchWithValueVariant {
		decoder := scale.NewDecoder(reader)
		err = decoder.Decode(&n.StorageValue)
		if err != nil {
			return nil, fmt.Errorf("scale decoding storage value: %w", err)
		}
	}

	decoder := scale.NewDecoder(reader)
	for i := 0; i < childrenCapacity; i++ {
		if bitmap&(1<<uint(i)) == 0 {
			continue
		}

		var childMerkleValue []byte
		err = decoder.Decode(&childMerkleValue)
		if err != nil {
			return nil, fmt.Errorf("%w: at index %d: %s", ErrDecodeChildHash, i, err)
		}

		n.Children[i] = &Node{
			MerkleValue: childMerkleValue,
			Unresolved:  true,
		}
	}

	return n, nil
}

func decodePartialKey(keyBytes []byte, keyLength int) (nibbles []byte) {
	if keyLength == 0 {
		return []byte{}
	}

	nibbles = make([]byte, 0, keyLength)
	if keyLength%2 == 1 {
		nibbles = append(nibbles, keyBytes[0]&0x0f)
		keyBytes = keyBytes[1:]
	}
	for _, b := range keyBytes {
		nibbles = append(nibbles, b/16, b%16)
	}
	return nibbles
}

// MerkleValueOf returns the merkle value of the encoding given.
// Non root nodes with an encoding smaller than 32 bytes have their
// encoding as merkle value, all other nodes use the blake2b hash
// of their encoding.
func MerkleValueOf(encoding []byte, isRoot bool) (merkleValue []byte, err error) {
	if !isRoot && len(encoding) < 32 {
		merkleValue = make([]byte, len(encoding))
		copy(merkleValue, encoding)
		return merkleValue, nil
	}

	hash, err := common.Blake2bHash(encoding)
	if err != nil {
		return nil, err
	}
	return hash[:], nil
}

// EncodeAndHash returns the encoding of the node and the
// merkle value of the node, caching both on the node.
func (n *Node) EncodeAndHash() (encoding, merkleValue []byte, err error) {
	if !n.Dirty && n.Encoding != nil && n.MerkleValue != nil {
		return n.Encoding, n.MerkleValue, nil
	}

	buffer := bytes.NewBuffer(nil)
	err = n.Encode(buffer)
	if err != nil {
		return nil, nil, err
	}

	n.Encoding = buffer.Bytes()
	n.MerkleValue, err = MerkleValueOf(n.Encoding, false)
	if err != nil {
		return nil, nil, err
	}
	n.Dirty = false

	return n.Encoding, n.MerkleValue, nil
}

// CalculateMerkleValue returns the merkle value of the node.
func (n *Node) CalculateMerkleValue() (merkleValue []byte, err error) {
	if n.Unresolved {
		return n.MerkleValue, nil
	}

	_, merkleValue, err = n.EncodeAndHash()
	return merkleValue, err
}
