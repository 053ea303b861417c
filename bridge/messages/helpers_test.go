// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package messages

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ChainSafe/parabridge/lib/common"
)

var testLane = LaneID{0, 0, 0, 1}

type stubChainState struct {
	known map[common.HeaderID]common.Hash
}

func newStubChainState() *stubChainState {
	return &stubChainState{known: make(map[common.HeaderID]common.Hash)}
}

func (s *stubChainState) register(number uint32, stateRoot common.Hash) common.HeaderID {
	id := common.HeaderID{
		Number: number,
		Hash:   common.MustBlake2bHash([]byte{byte(number), byte(number >> 8)}),
	}
	s.known[id] = stateRoot
	return id
}

func (s *stubChainState) IsKnownHeader(id common.HeaderID) bool {
	_, known := s.known[id]
	return known
}

func (s *stubChainState) StateRoot(id common.HeaderID) (common.Hash, error) {
	stateRoot, known := s.known[id]
	if !known {
		return common.Hash{}, ErrUnverifiedHeader
	}
	return stateRoot, nil
}

type dispatchedMessage struct {
	lane    LaneID
	nonce   MessageNonce
	payload []byte
}

type stubDispatch struct {
	dispatched []dispatchedMessage
	failNonces map[MessageNonce]struct{}
}

func newStubDispatch(failNonces ...MessageNonce) *stubDispatch {
	failing := make(map[MessageNonce]struct{}, len(failNonces))
	for _, nonce := range failNonces {
		failing[nonce] = struct{}{}
	}
	return &stubDispatch{failNonces: failing}
}

func (s *stubDispatch) Dispatch(lane LaneID, nonce MessageNonce, payload []byte) error {
	s.dispatched = append(s.dispatched, dispatchedMessage{
		lane: lane, nonce: nonce, payload: payload})
	if _, fail := s.failNonces[nonce]; fail {
		return fmt.Errorf("dispatch of message %d rejected", nonce)
	}
	return nil
}

func testLaneConfig() Config {
	return Config{
		ActiveLanes:                 []LaneID{testLane},
		MaxMessagePayloadSize:       1024,
		MaxMessagesInDelivery:       16,
		MaxUnrewardedRelayerEntries: 8,
		MaxUnconfirmedMessages:      64,
	}
}

func testRelayer(index byte) common.AccountID {
	return common.NewAccountID([]byte{index})
}

// deliverMessages proves and delivers messages [begin, end] on the
// test lane, registering the proof's state root as a bridged header.
func deliverMessages(t *testing.T, lane *MessageLane, bridged *stubChainState,
	atNumber uint32, begin, end MessageNonce, outbound *OutboundLaneData,
	relayer common.AccountID) (*DeliveryResult, error) {
	t.Helper()

	stateRoot, storageProof, err := PrepareMessagesStorageProof(
		testLane, begin, end, outbound, []byte("payload"), MinimalProof())
	require.NoError(t, err)

	header := bridged.register(atNumber, stateRoot)
	return lane.ReceiveMessagesProof(header, testLane, storageProof,
		begin, end, relayer)
}
