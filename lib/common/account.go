// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package common

import (
	"fmt"
)

// AccountID is a 32 byte chain account identifier.
type AccountID [32]byte

// NewAccountID creates an AccountID from the given byte slice,
// truncating or zero padding it to 32 bytes.
func NewAccountID(in []byte) (id AccountID) {
	copy(id[:], in)
	return id
}

func (id AccountID) String() string {
	return fmt.Sprintf("0x%x", id[:])
}
