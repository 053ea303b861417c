// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package proof

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChainSafe/parabridge/lib/trie"
)

func Test_Generate_Verify_Roundtrip(t *testing.T) {
	t.Parallel()

	keyValues := map[string][]byte{
		"\x01\x35":     []byte("pen"),
		"\x01\x35\x79": []byte("penguin"),
		"\xf2":         []byte("feather"),
		"\x09\xd3":     bytes.Repeat([]byte{7}, 80),
		"\x09\xd3\x01": []byte("n"),
	}

	tr := trie.NewEmptyTrie()
	keys := make([][]byte, 0, len(keyValues))
	for key, value := range keyValues {
		tr.Put([]byte(key), value)
		keys = append(keys, []byte(key))
	}

	rootHash, err := tr.Hash()
	require.NoError(t, err)

	proof, err := Generate(tr, keys)
	require.NoError(t, err)
	require.NotEmpty(t, proof)

	for key, value := range keyValues {
		err := Verify(proof, rootHash[:], []byte(key), value)
		assert.NoError(t, err, "key 0x%x", key)
	}
}

func Test_Verify_RecoversExactValues(t *testing.T) {
	t.Parallel()

	tr := trie.NewEmptyTrie()
	tr.Put([]byte{1, 2}, []byte("one"))
	tr.Put([]byte{1, 3}, []byte("two"))

	rootHash, err := tr.Hash()
	require.NoError(t, err)

	proof, err := Generate(tr, [][]byte{{1, 2}, {1, 3}})
	require.NoError(t, err)

	proofTrie, err := BuildTrie(proof, rootHash[:])
	require.NoError(t, err)

	assert.Equal(t, []byte("one"), proofTrie.Get([]byte{1, 2}))
	assert.Equal(t, []byte("two"), proofTrie.Get([]byte{1, 3}))
	// nothing else is readable from the proof
	assert.Nil(t, proofTrie.Get([]byte{1, 4}))
	assert.Nil(t, proofTrie.Get([]byte{2}))
}

func Test_Verify_WrongValue(t *testing.T) {
	t.Parallel()

	tr := trie.NewEmptyTrie()
	tr.Put([]byte{1, 2}, []byte("one"))

	rootHash, err := tr.Hash()
	require.NoError(t, err)

	proof, err := Generate(tr, [][]byte{{1, 2}})
	require.NoError(t, err)

	err = Verify(proof, rootHash[:], []byte{1, 2}, []byte("tampered"))
	assert.ErrorIs(t, err, ErrValueMismatchProofTrie)
}

func Test_Verify_WrongRoot(t *testing.T) {
	t.Parallel()

	tr := trie.NewEmptyTrie()
	tr.Put([]byte{1, 2}, []byte("one"))

	proof, err := Generate(tr, [][]byte{{1, 2}})
	require.NoError(t, err)

	wrongRoot := bytes.Repeat([]byte{0xaa}, 32)
	err = Verify(proof, wrongRoot, []byte{1, 2}, []byte("one"))
	assert.ErrorIs(t, err, ErrRootNodeNotFound)
}

func Test_Verify_MissingKey(t *testing.T) {
	t.Parallel()

	tr := trie.NewEmptyTrie()
	tr.Put([]byte{1, 2}, []byte("one"))
	tr.Put([]byte{8, 9}, []byte("unproven"))

	rootHash, err := tr.Hash()
	require.NoError(t, err)

	proof, err := Generate(tr, [][]byte{{1, 2}})
	require.NoError(t, err)

	err = Verify(proof, rootHash[:], []byte{7, 7}, nil)
	assert.ErrorIs(t, err, ErrKeyNotFoundInProofTrie)
}

func Test_Generate_KeyNotFound(t *testing.T) {
	t.Parallel()

	tr := trie.NewEmptyTrie()
	tr.Put([]byte{1, 2}, []byte("one"))

	_, err := Generate(tr, [][]byte{{9, 9}})
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func Test_Generate_EmptyProofOnEmptyTrie(t *testing.T) {
	t.Parallel()

	tr := trie.NewEmptyTrie()
	_, err := Generate(tr, [][]byte{{1}})
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
