// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package trie

// KeyLEToNibbles converts a Little Endian byte slice into nibbles.
// It assumes bytes have their nibbles in the same order as the slice,
// so the high nibble of each byte comes first.
func KeyLEToNibbles(in []byte) (nibbles []byte) {
	nibbles = make([]byte, 2*len(in))
	for i, b := range in {
		nibbles[2*i] = b / 16
		nibbles[2*i+1] = b % 16
	}
	return nibbles
}

// NibblesToKeyLE converts a slice of nibbles into a Little Endian
// byte slice. For odd nibble counts, the first nibble is stored in
// the low half of the first byte.
func NibblesToKeyLE(nibbles []byte) (keyLE []byte) {
	if len(nibbles)%2 == 0 {
		keyLE = make([]byte, len(nibbles)/2)
		for i := 0; i < len(nibbles); i += 2 {
			keyLE[i/2] = nibbles[i]<<4 | nibbles[i+1]
		}
		return keyLE
	}

	keyLE = make([]byte, len(nibbles)/2+1)
	keyLE[0] = nibbles[0]
	for i := 1; i < len(nibbles); i += 2 {
		keyLE[(i+1)/2] = nibbles[i]<<4 | nibbles[i+1]
	}
	return keyLE
}

// lenCommonPrefix returns the length of the common prefix
// between two byte slices.
func lenCommonPrefix(a, b []byte) (length int) {
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
