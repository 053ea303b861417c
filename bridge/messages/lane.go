// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package messages

import (
	"encoding/hex"
	"fmt"

	"github.com/ChainSafe/parabridge/lib/common"
)

// LaneID identifies a unidirectional message lane between two chains.
type LaneID [4]byte

// NewLaneID parses a lane id from its 8 character hex form,
// for example "00000001".
func NewLaneID(s string) (LaneID, error) {
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return LaneID{}, fmt.Errorf("decoding lane id: %w", err)
	}
	if len(decoded) != 4 {
		return LaneID{}, fmt.Errorf("%w: lane id must be 4 bytes, got %d",
			ErrInvalidLaneID, len(decoded))
	}

	var lane LaneID
	copy(lane[:], decoded)
	return lane, nil
}

func (l LaneID) String() string {
	return hex.EncodeToString(l[:])
}

// MessageNonce is the 1-based sequence number of a message on a lane.
// Nonce 0 means no message.
type MessageNonce uint64

// OutboundLaneData is the sending side state of a lane.
type OutboundLaneData struct {
	// OldestUnprunedNonce is the nonce of the oldest message payload
	// still kept in storage. Payloads of confirmed messages are pruned.
	OldestUnprunedNonce MessageNonce
	// LatestReceivedNonce is the latest nonce the target chain has
	// confirmed as delivered.
	LatestReceivedNonce MessageNonce
	// LatestGeneratedNonce is the nonce assigned to the last sent message.
	LatestGeneratedNonce MessageNonce
}

// NewOutboundLaneData returns the state of a lane with no messages.
func NewOutboundLaneData() OutboundLaneData {
	return OutboundLaneData{OldestUnprunedNonce: 1}
}

// QueuedMessages returns the number of sent messages not yet confirmed
// as delivered.
func (d OutboundLaneData) QueuedMessages() uint64 {
	return uint64(d.LatestGeneratedNonce - d.LatestReceivedNonce)
}

// DeliveredRange records one relayer's contiguous delivery of messages
// on the receiving side, kept until the sending side confirms it so
// the relayer can be rewarded.
type DeliveredRange struct {
	Relayer common.AccountID
	Begin   MessageNonce
	End     MessageNonce
	// DispatchResults holds one entry per nonce in [Begin, End]; false
	// marks a message that was delivered but whose dispatch failed.
	DispatchResults []bool
}

// InboundLaneData is the receiving side state of a lane.
type InboundLaneData struct {
	// RelayerRanges are the delivered but not yet rewarded ranges,
	// ordered by nonce.
	RelayerRanges []DeliveredRange
	// LastConfirmedNonce is the latest nonce the sending side is known
	// to have seen confirmed; ranges up to it have been settled.
	LastConfirmedNonce MessageNonce
}

// LastDeliveredNonce returns the nonce of the last message delivered
// to the receiving side.
func (d InboundLaneData) LastDeliveredNonce() MessageNonce {
	if len(d.RelayerRanges) == 0 {
		return d.LastConfirmedNonce
	}
	return d.RelayerRanges[len(d.RelayerRanges)-1].End
}

// UnrewardedMessages returns the number of delivered messages whose
// relayers have not been rewarded yet.
func (d InboundLaneData) UnrewardedMessages() uint64 {
	if len(d.RelayerRanges) == 0 {
		return 0
	}
	return uint64(d.RelayerRanges[len(d.RelayerRanges)-1].End -
		d.RelayerRanges[0].Begin + 1)
}
