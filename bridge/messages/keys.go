// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package messages

import (
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"

	"github.com/ChainSafe/parabridge/lib/common"
)

const palletName = "BridgeMessages"

// messageKey is the SCALE encoded storage map key of one outbound message.
type messageKey struct {
	LaneID LaneID
	Nonce  MessageNonce
}

func mapKey(itemName string, encodedKey []byte) ([]byte, error) {
	palletPrefix, err := common.Twox128Hash([]byte(palletName))
	if err != nil {
		return nil, fmt.Errorf("hashing pallet name: %w", err)
	}

	itemPrefix, err := common.Twox128Hash([]byte(itemName))
	if err != nil {
		return nil, fmt.Errorf("hashing storage item name: %w", err)
	}

	// storage maps hash their key with Blake2_128Concat
	hashedKey, err := common.Blake2b128(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("hashing storage key: %w", err)
	}

	key := make([]byte, 0, len(palletPrefix)+len(itemPrefix)+
		len(hashedKey)+len(encodedKey))
	key = append(key, palletPrefix...)
	key = append(key, itemPrefix...)
	key = append(key, hashedKey...)
	key = append(key, encodedKey...)
	return key, nil
}

// OutboundMessageKey returns the storage key of the payload of one
// outbound message.
func OutboundMessageKey(lane LaneID, nonce MessageNonce) ([]byte, error) {
	encodedKey, err := codec.Encode(messageKey{LaneID: lane, Nonce: nonce})
	if err != nil {
		return nil, fmt.Errorf("encoding message key: %w", err)
	}
	return mapKey("OutboundMessages", encodedKey)
}

// OutboundLaneKey returns the storage key of the outbound state of a lane.
func OutboundLaneKey(lane LaneID) ([]byte, error) {
	encodedKey, err := codec.Encode(lane)
	if err != nil {
		return nil, fmt.Errorf("encoding lane id: %w", err)
	}
	return mapKey("OutboundLanes", encodedKey)
}

// InboundLaneKey returns the storage key of the inbound state of a lane.
func InboundLaneKey(lane LaneID) ([]byte, error) {
	encodedKey, err := codec.Encode(lane)
	if err != nil {
		return nil, fmt.Errorf("encoding lane id: %w", err)
	}
	return mapKey("InboundLanes", encodedKey)
}
