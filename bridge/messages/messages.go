// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package messages implements the ordered message lane between two
// bridged chains. The sending side assigns strictly increasing nonces
// and keeps payloads until delivery is confirmed; the receiving side
// accepts messages proved against verified bridged chain state and
// never skips or repeats a nonce.
package messages

import (
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"

	"github.com/ChainSafe/parabridge/internal/log"
	"github.com/ChainSafe/parabridge/lib/common"
	"github.com/ChainSafe/parabridge/lib/trie"
	"github.com/ChainSafe/parabridge/lib/trie/proof"
)

var logger = log.NewFromGlobal(log.AddContext("pkg", "bridge/messages"))

// ChainStateVerifier verifies that a bridged chain header is final and
// exposes its state root. For a lane bridging a standalone chain this
// is the grandpa finality verifier; for a lane bridging a parachain it
// is the parachain head verifier.
type ChainStateVerifier interface {
	IsKnownHeader(id common.HeaderID) bool
	StateRoot(id common.HeaderID) (common.Hash, error)
}

// MessageDispatch hands a delivered message to the application. A
// dispatch error marks the message as delivered-but-failed; it never
// stalls the lane.
type MessageDispatch interface {
	Dispatch(lane LaneID, nonce MessageNonce, payload []byte) error
}

// Config is the static configuration of a message lane module instance.
type Config struct {
	// ActiveLanes lists the lanes open on this chain; sending on any
	// other lane is rejected.
	ActiveLanes []LaneID
	// MaxMessagePayloadSize bounds the accepted payload size.
	MaxMessagePayloadSize int
	// MaxMessagesInDelivery bounds the nonce range of one delivery call.
	MaxMessagesInDelivery int
	// MaxUnrewardedRelayerEntries bounds the relayer ranges kept on the
	// inbound lane awaiting reward confirmation.
	MaxUnrewardedRelayerEntries int
	// MaxUnconfirmedMessages bounds the delivered messages awaiting
	// reward confirmation.
	MaxUnconfirmedMessages int
}

// MessageLane is the message lane module of one chain, bridging one
// other chain: outbound lanes carry messages to it, inbound lanes
// receive messages from it. Single-writer by construction.
type MessageLane struct {
	cfg      Config
	bridged  ChainStateVerifier
	dispatch MessageDispatch

	outboundLanes    map[LaneID]*OutboundLaneData
	outboundPayloads map[LaneID]map[MessageNonce][]byte
	inboundLanes     map[LaneID]*InboundLaneData
}

// NewMessageLane creates a message lane module verifying bridged chain
// state through the given verifier and dispatching delivered messages
// through the given handler.
func NewMessageLane(cfg Config, bridged ChainStateVerifier,
	dispatch MessageDispatch) *MessageLane {
	return &MessageLane{
		cfg:              cfg,
		bridged:          bridged,
		dispatch:         dispatch,
		outboundLanes:    make(map[LaneID]*OutboundLaneData),
		outboundPayloads: make(map[LaneID]map[MessageNonce][]byte),
		inboundLanes:     make(map[LaneID]*InboundLaneData),
	}
}

func (l *MessageLane) isActiveLane(lane LaneID) bool {
	for _, active := range l.cfg.ActiveLanes {
		if active == lane {
			return true
		}
	}
	return false
}

// SendMessage queues a message on an outbound lane and returns the
// nonce assigned to it.
func (l *MessageLane) SendMessage(lane LaneID, payload []byte) (MessageNonce, error) {
	if !l.isActiveLane(lane) {
		return 0, fmt.Errorf("%w: %s", ErrLaneClosed, lane)
	}
	if l.cfg.MaxMessagePayloadSize > 0 && len(payload) > l.cfg.MaxMessagePayloadSize {
		return 0, fmt.Errorf("%w: %d > %d bytes",
			ErrMessageTooLarge, len(payload), l.cfg.MaxMessagePayloadSize)
	}

	outbound := l.outboundLane(lane)
	outbound.LatestGeneratedNonce++
	nonce := outbound.LatestGeneratedNonce

	payloads := l.outboundPayloads[lane]
	if payloads == nil {
		payloads = make(map[MessageNonce][]byte)
		l.outboundPayloads[lane] = payloads
	}
	payloads[nonce] = payload

	logger.Debugf("lane %s: message %d queued (%d bytes)", lane, nonce, len(payload))
	return nonce, nil
}

func (l *MessageLane) outboundLane(lane LaneID) *OutboundLaneData {
	outbound := l.outboundLanes[lane]
	if outbound == nil {
		data := NewOutboundLaneData()
		outbound = &data
		l.outboundLanes[lane] = outbound
	}
	return outbound
}

// OutboundLane returns the outbound state of a lane.
func (l *MessageLane) OutboundLane(lane LaneID) OutboundLaneData {
	if outbound := l.outboundLanes[lane]; outbound != nil {
		return *outbound
	}
	return NewOutboundLaneData()
}

// InboundLane returns the inbound state of a lane.
func (l *MessageLane) InboundLane(lane LaneID) InboundLaneData {
	if inbound := l.inboundLanes[lane]; inbound != nil {
		return *inbound
	}
	return InboundLaneData{}
}

// OutboundPayload returns the stored payload of an unpruned outbound
// message, or nil if it was pruned or never sent.
func (l *MessageLane) OutboundPayload(lane LaneID, nonce MessageNonce) []byte {
	return l.outboundPayloads[lane][nonce]
}

// DeliveryResult reports an accepted message delivery.
type DeliveryResult struct {
	Lane  LaneID
	Begin MessageNonce
	End   MessageNonce
	// DispatchFailures counts messages delivered with a failed dispatch.
	DispatchFailures int
}

// ReceiveMessagesProof accepts messages [beginNonce, endNonce] of an
// inbound lane, proved against the state of a verified bridged chain
// header. The range must extend the lane without gaps or repeats and
// every declared nonce must be present in the proof. Lane state only
// changes if the whole delivery is accepted.
func (l *MessageLane) ReceiveMessagesProof(bridgedHeader common.HeaderID,
	lane LaneID, storageProof proof.RawStorageProof,
	beginNonce, endNonce MessageNonce,
	relayer common.AccountID) (*DeliveryResult, error) {
	if beginNonce > endNonce {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrEmptyRange, beginNonce, endNonce)
	}
	count := uint64(endNonce - beginNonce + 1)
	if l.cfg.MaxMessagesInDelivery > 0 && count > uint64(l.cfg.MaxMessagesInDelivery) {
		return nil, fmt.Errorf("%w: %d > %d",
			ErrTooManyMessages, count, l.cfg.MaxMessagesInDelivery)
	}

	if !l.bridged.IsKnownHeader(bridgedHeader) {
		return nil, fmt.Errorf("%w: %s", ErrUnverifiedHeader, bridgedHeader)
	}
	stateRoot, err := l.bridged.StateRoot(bridgedHeader)
	if err != nil {
		return nil, fmt.Errorf("reading bridged chain state root: %w", err)
	}

	proofTrie, err := proof.BuildTrie(storageProof, stateRoot[:])
	if err != nil {
		return nil, fmt.Errorf("building trie from storage proof: %w", err)
	}

	// work on a copy so a rejected delivery leaves the lane untouched
	inbound := l.InboundLane(lane)
	inbound.RelayerRanges = append([]DeliveredRange(nil), inbound.RelayerRanges...)

	lastDelivered := inbound.LastDeliveredNonce()
	if beginNonce <= lastDelivered {
		return nil, fmt.Errorf("%w: begin %d, last delivered %d",
			ErrDuplicateNonce, beginNonce, lastDelivered)
	}
	if beginNonce != lastDelivered+1 {
		return nil, fmt.Errorf("%w: begin %d, last delivered %d",
			ErrNonceGap, beginNonce, lastDelivered)
	}

	// the proof may carry the bridged chain's outbound lane state,
	// confirming rewards and freeing space on the inbound lane
	err = l.settleConfirmations(&inbound, lane, proofTrie)
	if err != nil {
		return nil, err
	}

	if l.cfg.MaxUnrewardedRelayerEntries > 0 &&
		len(inbound.RelayerRanges)+1 > l.cfg.MaxUnrewardedRelayerEntries {
		return nil, fmt.Errorf("%w: %d entries",
			ErrTooManyUnrewardedRelayers, len(inbound.RelayerRanges))
	}
	if l.cfg.MaxUnconfirmedMessages > 0 &&
		inbound.UnrewardedMessages()+count > uint64(l.cfg.MaxUnconfirmedMessages) {
		return nil, fmt.Errorf("%w: %d unconfirmed",
			ErrTooManyUnconfirmedMessages, inbound.UnrewardedMessages())
	}

	payloads := make([][]byte, 0, count)
	for nonce := beginNonce; nonce <= endNonce; nonce++ {
		key, err := OutboundMessageKey(lane, nonce)
		if err != nil {
			return nil, fmt.Errorf("message %d storage key: %w", nonce, err)
		}

		storedValue := proofTrie.Get(key)
		if storedValue == nil {
			return nil, fmt.Errorf("%w: lane %s nonce %d", ErrMissingMessage, lane, nonce)
		}

		var payload types.Bytes
		err = codec.Decode(storedValue, &payload)
		if err != nil {
			return nil, fmt.Errorf("%w: lane %s nonce %d: decoding payload: %s",
				ErrMissingMessage, lane, nonce, err)
		}
		payloads = append(payloads, payload)
	}

	// the delivery is accepted; dispatch failures are recorded, not raised
	result := &DeliveryResult{Lane: lane, Begin: beginNonce, End: endNonce}
	dispatchResults := make([]bool, 0, count)
	for i, payload := range payloads {
		nonce := beginNonce + MessageNonce(i)
		dispatchErr := l.dispatch.Dispatch(lane, nonce, payload)
		if dispatchErr != nil {
			logger.Warnf("lane %s: message %d dispatch failed: %s",
				lane, nonce, dispatchErr)
			result.DispatchFailures++
		}
		dispatchResults = append(dispatchResults, dispatchErr == nil)
	}

	inbound.RelayerRanges = appendDeliveredRange(inbound.RelayerRanges, DeliveredRange{
		Relayer:         relayer,
		Begin:           beginNonce,
		End:             endNonce,
		DispatchResults: dispatchResults,
	})
	l.inboundLanes[lane] = &inbound

	logger.Debugf("lane %s: delivered messages [%d, %d] from %s",
		lane, beginNonce, endNonce, relayer)
	return result, nil
}

// appendDeliveredRange extends the previous range instead of appending
// when the same relayer delivers contiguous batches, keeping the
// bounded relayer entries compact.
func appendDeliveredRange(ranges []DeliveredRange, next DeliveredRange) []DeliveredRange {
	if len(ranges) > 0 {
		last := &ranges[len(ranges)-1]
		if last.Relayer == next.Relayer && last.End+1 == next.Begin {
			last.End = next.End
			last.DispatchResults = append(last.DispatchResults, next.DispatchResults...)
			return ranges
		}
	}
	return append(ranges, next)
}

func (l *MessageLane) settleConfirmations(inbound *InboundLaneData,
	lane LaneID, proofTrie *trie.Trie) error {
	laneKey, err := OutboundLaneKey(lane)
	if err != nil {
		return fmt.Errorf("outbound lane storage key: %w", err)
	}

	storedValue := proofTrie.Get(laneKey)
	if storedValue == nil {
		return nil
	}

	var bridgedOutbound OutboundLaneData
	err = codec.Decode(storedValue, &bridgedOutbound)
	if err != nil {
		return fmt.Errorf("%w: decoding outbound lane state: %s", ErrMissingLaneState, err)
	}

	confirmed := bridgedOutbound.LatestReceivedNonce
	if confirmed <= inbound.LastConfirmedNonce ||
		confirmed > inbound.LastDeliveredNonce() {
		return nil
	}

	inbound.LastConfirmedNonce = confirmed
	kept := inbound.RelayerRanges[:0]
	for _, delivered := range inbound.RelayerRanges {
		if delivered.End <= confirmed {
			continue
		}
		if delivered.Begin <= confirmed {
			delivered.DispatchResults = delivered.DispatchResults[confirmed-delivered.Begin+1:]
			delivered.Begin = confirmed + 1
		}
		kept = append(kept, delivered)
	}
	inbound.RelayerRanges = kept
	return nil
}

// ConfirmationResult reports an accepted delivery confirmation.
type ConfirmationResult struct {
	Lane LaneID
	// Begin and End are the newly confirmed nonce range.
	Begin MessageNonce
	End   MessageNonce
	// RewardedRanges are the relayer ranges covered by the newly
	// confirmed nonces, for reward settlement. Partially covered
	// ranges are truncated to the confirmed part.
	RewardedRanges []DeliveredRange
}

// ReceiveMessagesDeliveryProof accepts a proof of the bridged chain's
// inbound lane state, confirming delivery of outbound messages. The
// confirmed messages' payloads are pruned and the relayer ranges that
// delivered them are returned for reward settlement.
func (l *MessageLane) ReceiveMessagesDeliveryProof(bridgedHeader common.HeaderID,
	lane LaneID, storageProof proof.RawStorageProof) (*ConfirmationResult, error) {
	if !l.bridged.IsKnownHeader(bridgedHeader) {
		return nil, fmt.Errorf("%w: %s", ErrUnverifiedHeader, bridgedHeader)
	}
	stateRoot, err := l.bridged.StateRoot(bridgedHeader)
	if err != nil {
		return nil, fmt.Errorf("reading bridged chain state root: %w", err)
	}

	proofTrie, err := proof.BuildTrie(storageProof, stateRoot[:])
	if err != nil {
		return nil, fmt.Errorf("building trie from storage proof: %w", err)
	}

	laneKey, err := InboundLaneKey(lane)
	if err != nil {
		return nil, fmt.Errorf("inbound lane storage key: %w", err)
	}
	storedValue := proofTrie.Get(laneKey)
	if storedValue == nil {
		return nil, fmt.Errorf("%w: lane %s", ErrMissingLaneState, lane)
	}

	var bridgedInbound InboundLaneData
	err = codec.Decode(storedValue, &bridgedInbound)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding inbound lane state: %s",
			ErrMissingLaneState, err)
	}

	outbound := l.outboundLane(lane)
	confirmed := bridgedInbound.LastDeliveredNonce()
	if confirmed <= outbound.LatestReceivedNonce {
		return nil, fmt.Errorf("%w: confirmed %d, latest received %d",
			ErrNoNewConfirmations, confirmed, outbound.LatestReceivedNonce)
	}
	if confirmed > outbound.LatestGeneratedNonce {
		return nil, fmt.Errorf("%w: confirmed %d, latest generated %d",
			ErrConfirmationExceedsGenerated, confirmed, outbound.LatestGeneratedNonce)
	}

	result := &ConfirmationResult{
		Lane:  lane,
		Begin: outbound.LatestReceivedNonce + 1,
		End:   confirmed,
		RewardedRanges: rewardedRanges(bridgedInbound.RelayerRanges,
			outbound.LatestReceivedNonce+1, confirmed),
	}

	outbound.LatestReceivedNonce = confirmed
	payloads := l.outboundPayloads[lane]
	for nonce := outbound.OldestUnprunedNonce; nonce <= confirmed; nonce++ {
		delete(payloads, nonce)
	}
	outbound.OldestUnprunedNonce = confirmed + 1

	logger.Debugf("lane %s: messages [%d, %d] confirmed delivered",
		lane, result.Begin, result.End)
	return result, nil
}

// rewardedRanges clips the bridged chain's relayer ranges to the newly
// confirmed nonce interval [begin, end].
func rewardedRanges(ranges []DeliveredRange, begin, end MessageNonce) []DeliveredRange {
	var rewarded []DeliveredRange
	for _, delivered := range ranges {
		if delivered.End < begin || delivered.Begin > end {
			continue
		}
		if delivered.Begin < begin {
			delivered.DispatchResults = delivered.DispatchResults[begin-delivered.Begin:]
			delivered.Begin = begin
		}
		if delivered.End > end {
			delivered.DispatchResults = delivered.DispatchResults[:end-delivered.Begin+1]
			delivered.End = end
		}
		rewarded = append(rewarded, delivered)
	}
	return rewarded
}
