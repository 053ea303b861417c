// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package parachains

import (
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"

	"github.com/ChainSafe/parabridge/lib/common"
)

// ParasHeadsKey returns the relay chain storage key holding the head
// data of the given parachain: the `paras` pallet prefix, the `Heads`
// item prefix and the Twox64Concat-hashed parachain id.
func ParasHeadsKey(paraID ParaID) ([]byte, error) {
	palletPrefix, err := common.Twox128Hash([]byte("Paras"))
	if err != nil {
		return nil, fmt.Errorf("hashing pallet name: %w", err)
	}

	itemPrefix, err := common.Twox128Hash([]byte("Heads"))
	if err != nil {
		return nil, fmt.Errorf("hashing storage item name: %w", err)
	}

	encodedParaID, err := codec.Encode(uint32(paraID))
	if err != nil {
		return nil, fmt.Errorf("encoding parachain id: %w", err)
	}

	hashedParaID, err := common.Twox64(encodedParaID)
	if err != nil {
		return nil, fmt.Errorf("hashing parachain id: %w", err)
	}

	key := make([]byte, 0, len(palletPrefix)+len(itemPrefix)+
		len(hashedParaID)+len(encodedParaID))
	key = append(key, palletPrefix...)
	key = append(key, itemPrefix...)
	key = append(key, hashedParaID...)
	key = append(key, encodedParaID...)
	return key, nil
}
