// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package clienttest provides a configurable in-memory chain client
// for relay loop tests.
package clienttest

import (
	"context"
	"sync"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"

	"github.com/ChainSafe/parabridge/bridge/grandpa"
	"github.com/ChainSafe/parabridge/bridge/messages"
	"github.com/ChainSafe/parabridge/bridge/parachains"
	"github.com/ChainSafe/parabridge/lib/common"
	"github.com/ChainSafe/parabridge/lib/trie/proof"
	"github.com/ChainSafe/parabridge/relay/client"
)

// Tracker is a TransactionTracker reporting a fixed status.
type Tracker struct {
	Status client.TxStatus
}

// Wait implements client.TransactionTracker.
func (t *Tracker) Wait(_ context.Context) client.TxStatus {
	return t.Status
}

// Client implements client.Client through optional function fields.
// Methods without a function set return client.ErrNotFound, so tests
// only wire what the code under test touches. Submitted calls are
// recorded in order.
type Client struct {
	ChainName string

	ReconnectFunc             func(ctx context.Context) error
	HeaderByNumberFunc        func(number uint32) (types.Header, error)
	HeaderByHashFunc          func(hash common.Hash) (types.Header, error)
	BestFinalizedFunc         func() (common.HeaderID, error)
	FinalityProofFunc         func(number uint32) (*client.FinalityProof, error)
	GrandpaAuthoritiesFunc    func(at common.Hash) ([]grandpa.Authority, uint64, error)
	StorageProofFunc          func(keys [][]byte, at common.Hash) (proof.RawStorageProof, error)
	PendingParaHeadsFunc      func(at common.Hash) (map[parachains.ParaID][]byte, error)
	SessionIndexForChildFunc  func(at common.Hash) (uint32, error)
	BridgedBestFinalizedFunc  func() (common.HeaderID, error)
	BridgedIsFreeHeaderFunc   func(id common.HeaderID) (bool, error)
	BridgedBestParaHeadFunc   func(paraID parachains.ParaID) (parachains.BestParaHead, error)
	BridgedInboundLaneFunc    func(lane messages.LaneID) (messages.InboundLaneData, error)
	BridgedOutboundLaneFunc   func(lane messages.LaneID) (messages.OutboundLaneData, error)
	SubmitTransactionFunc     func(call client.Call) (client.TransactionTracker, error)

	mu             sync.Mutex
	submittedCalls []client.Call
	reconnects     int
}

// SubmittedCalls returns a copy of the calls passed to
// SubmitTransaction, in submission order.
func (c *Client) SubmittedCalls() []client.Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	calls := make([]client.Call, len(c.submittedCalls))
	copy(calls, c.submittedCalls)
	return calls
}

// Reconnects returns how many times Reconnect was called.
func (c *Client) Reconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

// Name implements client.Client.
func (c *Client) Name() string {
	if c.ChainName == "" {
		return "testchain"
	}
	return c.ChainName
}

// Reconnect implements client.Client.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	c.reconnects++
	c.mu.Unlock()
	if c.ReconnectFunc != nil {
		return c.ReconnectFunc(ctx)
	}
	return nil
}

// HeaderByNumber implements client.Client.
func (c *Client) HeaderByNumber(_ context.Context, number uint32) (types.Header, error) {
	if c.HeaderByNumberFunc != nil {
		return c.HeaderByNumberFunc(number)
	}
	return types.Header{}, client.ErrNotFound
}

// HeaderByHash implements client.Client.
func (c *Client) HeaderByHash(_ context.Context, hash common.Hash) (types.Header, error) {
	if c.HeaderByHashFunc != nil {
		return c.HeaderByHashFunc(hash)
	}
	return types.Header{}, client.ErrNotFound
}

// BestFinalizedHeaderID implements client.Client.
func (c *Client) BestFinalizedHeaderID(_ context.Context) (common.HeaderID, error) {
	if c.BestFinalizedFunc != nil {
		return c.BestFinalizedFunc()
	}
	return common.HeaderID{}, client.ErrNotFound
}

// FinalityProof implements client.Client.
func (c *Client) FinalityProof(_ context.Context, number uint32) (
	*client.FinalityProof, error) {
	if c.FinalityProofFunc != nil {
		return c.FinalityProofFunc(number)
	}
	return nil, client.ErrNotFound
}

// GrandpaAuthorities implements client.Client.
func (c *Client) GrandpaAuthorities(_ context.Context, at common.Hash) (
	[]grandpa.Authority, uint64, error) {
	if c.GrandpaAuthoritiesFunc != nil {
		return c.GrandpaAuthoritiesFunc(at)
	}
	return nil, 0, client.ErrNotFound
}

// StorageProof implements client.Client.
func (c *Client) StorageProof(_ context.Context, keys [][]byte, at common.Hash) (
	proof.RawStorageProof, error) {
	if c.StorageProofFunc != nil {
		return c.StorageProofFunc(keys, at)
	}
	return nil, client.ErrNotFound
}

// PendingParaHeads implements client.Client.
func (c *Client) PendingParaHeads(_ context.Context, at common.Hash) (
	map[parachains.ParaID][]byte, error) {
	if c.PendingParaHeadsFunc != nil {
		return c.PendingParaHeadsFunc(at)
	}
	return nil, client.ErrNotFound
}

// SessionIndexForChild implements client.Client.
func (c *Client) SessionIndexForChild(_ context.Context, at common.Hash) (uint32, error) {
	if c.SessionIndexForChildFunc != nil {
		return c.SessionIndexForChildFunc(at)
	}
	return 0, client.ErrNotFound
}

// BridgedBestFinalized implements client.Client.
func (c *Client) BridgedBestFinalized(_ context.Context) (common.HeaderID, error) {
	if c.BridgedBestFinalizedFunc != nil {
		return c.BridgedBestFinalizedFunc()
	}
	return common.HeaderID{}, client.ErrNotFound
}

// BridgedIsFreeHeader implements client.Client.
func (c *Client) BridgedIsFreeHeader(_ context.Context, id common.HeaderID) (bool, error) {
	if c.BridgedIsFreeHeaderFunc != nil {
		return c.BridgedIsFreeHeaderFunc(id)
	}
	return false, nil
}

// BridgedBestParaHead implements client.Client.
func (c *Client) BridgedBestParaHead(_ context.Context, paraID parachains.ParaID) (
	parachains.BestParaHead, error) {
	if c.BridgedBestParaHeadFunc != nil {
		return c.BridgedBestParaHeadFunc(paraID)
	}
	return parachains.BestParaHead{}, client.ErrNotFound
}

// BridgedInboundLane implements client.Client.
func (c *Client) BridgedInboundLane(_ context.Context, lane messages.LaneID) (
	messages.InboundLaneData, error) {
	if c.BridgedInboundLaneFunc != nil {
		return c.BridgedInboundLaneFunc(lane)
	}
	return messages.InboundLaneData{}, nil
}

// BridgedOutboundLane implements client.Client.
func (c *Client) BridgedOutboundLane(_ context.Context, lane messages.LaneID) (
	messages.OutboundLaneData, error) {
	if c.BridgedOutboundLaneFunc != nil {
		return c.BridgedOutboundLaneFunc(lane)
	}
	return messages.NewOutboundLaneData(), nil
}

// SubmitTransaction implements client.Client.
func (c *Client) SubmitTransaction(_ context.Context, call client.Call) (
	client.TransactionTracker, error) {
	c.mu.Lock()
	c.submittedCalls = append(c.submittedCalls, call)
	c.mu.Unlock()
	if c.SubmitTransactionFunc != nil {
		return c.SubmitTransactionFunc(call)
	}
	return &Tracker{Status: client.TxFinalized}, nil
}
