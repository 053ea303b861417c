// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package client defines the chain client the relay loops run
// against, and implements it over the substrate RPC interface.
package client

import (
	"context"

	"github.com/ChainSafe/parabridge/bridge/grandpa"
	"github.com/ChainSafe/parabridge/bridge/messages"
	"github.com/ChainSafe/parabridge/bridge/parachains"
	"github.com/ChainSafe/parabridge/lib/common"
	"github.com/ChainSafe/parabridge/lib/trie/proof"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// FinalityProof is a header finality proof served by the chain.
type FinalityProof struct {
	// Header is the finalized header the justification commits to.
	Header types.Header
	// Justification is the decoded grandpa justification.
	Justification grandpa.Justification
}

// TxStatus is the terminal state of a submitted transaction.
type TxStatus int

const (
	// TxFinalized means the transaction was included in a finalized block.
	TxFinalized TxStatus = iota
	// TxInvalid means the chain rejected the transaction.
	TxInvalid
	// TxLost means the transaction was dropped or its tracking ended
	// without a terminal state; its fate is unknown.
	TxLost
)

func (s TxStatus) String() string {
	switch s {
	case TxFinalized:
		return "finalized"
	case TxInvalid:
		return "invalid"
	case TxLost:
		return "lost"
	default:
		return "unknown"
	}
}

// TransactionTracker follows a submitted transaction to a terminal state.
type TransactionTracker interface {
	// Wait blocks until the transaction reaches a terminal state or
	// the context ends, in which case it reports TxLost.
	Wait(ctx context.Context) TxStatus
}

// Client is a bridged chain as seen by the relay loops: its own chain
// state, the bridge modules state it keeps about the other chain, and
// transaction submission.
type Client interface {
	// Name names the chain for logs and metrics.
	Name() string
	// Reconnect re-establishes a failed connection. Loops call it
	// after IsConnectionError and retry the same work.
	Reconnect(ctx context.Context) error

	// HeaderByNumber returns the chain header at the given number.
	HeaderByNumber(ctx context.Context, number uint32) (types.Header, error)
	// HeaderByHash returns the chain header with the given hash.
	HeaderByHash(ctx context.Context, hash common.Hash) (types.Header, error)
	// BestFinalizedHeaderID returns the chain's best finalized header.
	BestFinalizedHeaderID(ctx context.Context) (common.HeaderID, error)
	// FinalityProof returns the finality proof of the header at the
	// given number, once it is finalized.
	FinalityProof(ctx context.Context, number uint32) (*FinalityProof, error)
	// GrandpaAuthorities returns the grandpa authority set and set id
	// at the given block.
	GrandpaAuthorities(ctx context.Context, at common.Hash) (
		authorities []grandpa.Authority, setID uint64, err error)
	// StorageProof returns a storage proof of the given keys at the
	// given block.
	StorageProof(ctx context.Context, keys [][]byte, at common.Hash) (
		proof.RawStorageProof, error)
	// PendingParaHeads returns the current parachain heads at the
	// given relay chain block.
	PendingParaHeads(ctx context.Context, at common.Hash) (
		map[parachains.ParaID][]byte, error)
	// SessionIndexForChild returns the session index active at the
	// child of the given block.
	SessionIndexForChild(ctx context.Context, at common.Hash) (uint32, error)

	// BridgedBestFinalized returns the bridged chain's best finalized
	// header as known to this chain's finality verifier.
	BridgedBestFinalized(ctx context.Context) (common.HeaderID, error)
	// BridgedIsFreeHeader returns whether this chain accepted the given
	// bridged chain header as a free submission.
	BridgedIsFreeHeader(ctx context.Context, id common.HeaderID) (bool, error)
	// BridgedBestParaHead returns the given parachain's head as known
	// to this chain.
	BridgedBestParaHead(ctx context.Context, paraID parachains.ParaID) (
		parachains.BestParaHead, error)
	// BridgedInboundLane returns this chain's inbound lane state for
	// messages coming from the bridged chain.
	BridgedInboundLane(ctx context.Context, lane messages.LaneID) (
		messages.InboundLaneData, error)
	// BridgedOutboundLane returns this chain's outbound lane state for
	// messages going to the bridged chain.
	BridgedOutboundLane(ctx context.Context, lane messages.LaneID) (
		messages.OutboundLaneData, error)

	// SubmitTransaction submits one of the bridge calls and returns a
	// tracker following it to a terminal state.
	SubmitTransaction(ctx context.Context, call Call) (TransactionTracker, error)
}
