// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package client

import (
	"context"
	"fmt"
	"sync"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"

	"github.com/ChainSafe/parabridge/bridge/grandpa"
	"github.com/ChainSafe/parabridge/bridge/messages"
	"github.com/ChainSafe/parabridge/bridge/parachains"
	"github.com/ChainSafe/parabridge/internal/log"
	"github.com/ChainSafe/parabridge/lib/common"
	"github.com/ChainSafe/parabridge/lib/trie/proof"
)

var logger = log.NewFromGlobal(log.AddContext("pkg", "relay/client"))

// grandpaAuthoritiesKey is the well known storage key of the current
// grandpa authority set.
var grandpaAuthoritiesKey = []byte(":grandpa_authorities")

// Substrate is a Client over the substrate RPC interface.
type Substrate struct {
	name    string
	url     string
	api     *gsrpc.SubstrateAPI
	meta    *types.Metadata
	genesis types.Hash
	keyring signature.KeyringPair

	// submitMu serializes submissions so account nonces stay in order.
	submitMu sync.Mutex
}

// Connect dials the chain at the given websocket url and prepares the
// client for submissions signed by the given keyring.
func Connect(name, url string, keyring signature.KeyringPair) (*Substrate, error) {
	api, err := gsrpc.NewSubstrateAPI(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s at %s: %w", name, url, err)
	}

	meta, err := api.RPC.State.GetMetadataLatest()
	if err != nil {
		return nil, fmt.Errorf("fetching %s metadata: %w", name, err)
	}

	genesis, err := api.RPC.Chain.GetBlockHash(0)
	if err != nil {
		return nil, fmt.Errorf("fetching %s genesis hash: %w", name, err)
	}

	logger.Infof("connected to %s at %s", name, url)
	return &Substrate{
		name:    name,
		url:     url,
		api:     api,
		meta:    meta,
		genesis: genesis,
		keyring: keyring,
	}, nil
}

// Name implements Client.
func (s *Substrate) Name() string { return s.name }

// AccountID returns the account id of the submitting keyring.
func (s *Substrate) AccountID() common.AccountID {
	return common.NewAccountID(s.keyring.PublicKey)
}

// Reconnect implements Client. It dials the chain again and refreshes
// the cached metadata.
func (s *Substrate) Reconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	logger.Warnf("reconnecting to %s at %s", s.name, s.url)
	api, err := gsrpc.NewSubstrateAPI(s.url)
	if err != nil {
		return fmt.Errorf("reconnecting to %s: %w", s.name, err)
	}

	meta, err := api.RPC.State.GetMetadataLatest()
	if err != nil {
		return fmt.Errorf("refreshing %s metadata: %w", s.name, err)
	}

	s.api = api
	s.meta = meta
	return nil
}

// HeaderByNumber implements Client.
func (s *Substrate) HeaderByNumber(ctx context.Context, number uint32) (
	types.Header, error) {
	if err := ctx.Err(); err != nil {
		return types.Header{}, err
	}

	hash, err := s.api.RPC.Chain.GetBlockHash(uint64(number))
	if err != nil {
		return types.Header{}, fmt.Errorf("fetching block hash at %d: %w", number, err)
	}
	return s.HeaderByHash(ctx, hash)
}

// HeaderByHash implements Client.
func (s *Substrate) HeaderByHash(ctx context.Context, hash common.Hash) (
	types.Header, error) {
	if err := ctx.Err(); err != nil {
		return types.Header{}, err
	}

	header, err := s.api.RPC.Chain.GetHeader(hash)
	if err != nil {
		return types.Header{}, fmt.Errorf("fetching header %s: %w", hash.Hex(), err)
	}
	return *header, nil
}

// BestFinalizedHeaderID implements Client.
func (s *Substrate) BestFinalizedHeaderID(ctx context.Context) (
	common.HeaderID, error) {
	if err := ctx.Err(); err != nil {
		return common.HeaderID{}, err
	}

	hash, err := s.api.RPC.Chain.GetFinalizedHead()
	if err != nil {
		return common.HeaderID{}, fmt.Errorf("fetching finalized head: %w", err)
	}

	header, err := s.HeaderByHash(ctx, hash)
	if err != nil {
		return common.HeaderID{}, err
	}
	return common.HeaderID{Number: uint32(header.Number), Hash: hash}, nil
}

// rpcFinalityProof mirrors the grandpa_proveFinality response.
type rpcFinalityProof struct {
	Block          types.Hash
	Justification  types.Bytes
	UnknownHeaders []types.Header
}

// FinalityProof implements Client.
func (s *Substrate) FinalityProof(ctx context.Context, number uint32) (
	*FinalityProof, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var encoded string
	err := s.api.Client.Call(&encoded, "grandpa_proveFinality", number)
	if err != nil {
		return nil, fmt.Errorf("proving finality of %d: %w", number, err)
	}
	if encoded == "" {
		return nil, fmt.Errorf("%w: no finality proof for %d", ErrNotFound, number)
	}

	raw, err := codec.HexDecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding finality proof hex: %w", err)
	}

	var decoded rpcFinalityProof
	err = codec.Decode(raw, &decoded)
	if err != nil {
		return nil, fmt.Errorf("decoding finality proof: %w", err)
	}

	justification, err := grandpa.DecodeJustification(decoded.Justification)
	if err != nil {
		return nil, fmt.Errorf("decoding justification: %w", err)
	}

	header, err := s.HeaderByHash(ctx, decoded.Block)
	if err != nil {
		return nil, err
	}
	return &FinalityProof{Header: header, Justification: *justification}, nil
}

// versionedAuthorityList is the value under :grandpa_authorities.
type versionedAuthorityList struct {
	Version     uint8
	Authorities []grandpa.Authority
}

// GrandpaAuthorities implements Client.
func (s *Substrate) GrandpaAuthorities(ctx context.Context, at common.Hash) (
	authorities []grandpa.Authority, setID uint64, err error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	raw, err := s.api.RPC.State.GetStorageRaw(grandpaAuthoritiesKey, at)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching grandpa authorities: %w", err)
	}
	if raw == nil || len(*raw) == 0 {
		return nil, 0, fmt.Errorf("%w: grandpa authorities", ErrNotFound)
	}

	var versioned versionedAuthorityList
	err = codec.Decode(*raw, &versioned)
	if err != nil {
		return nil, 0, fmt.Errorf("decoding grandpa authorities: %w", err)
	}

	setIDKey, err := storageValueKey("Grandpa", "CurrentSetId")
	if err != nil {
		return nil, 0, err
	}
	raw, err = s.api.RPC.State.GetStorageRaw(setIDKey, at)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching grandpa set id: %w", err)
	}
	if raw != nil && len(*raw) > 0 {
		err = codec.Decode(*raw, &setID)
		if err != nil {
			return nil, 0, fmt.Errorf("decoding grandpa set id: %w", err)
		}
	}

	return versioned.Authorities, setID, nil
}

// rpcReadProof mirrors the state_getReadProof response.
type rpcReadProof struct {
	At    string   `json:"at"`
	Proof []string `json:"proof"`
}

// StorageProof implements Client.
func (s *Substrate) StorageProof(ctx context.Context, keys [][]byte,
	at common.Hash) (proof.RawStorageProof, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hexKeys := make([]string, len(keys))
	for i, key := range keys {
		hexKeys[i] = codec.HexEncodeToString(key)
	}

	var readProof rpcReadProof
	err := s.api.Client.Call(&readProof, "state_getReadProof", hexKeys, at.Hex())
	if err != nil {
		return nil, fmt.Errorf("fetching read proof: %w", err)
	}

	storageProof := make(proof.RawStorageProof, len(readProof.Proof))
	for i, node := range readProof.Proof {
		storageProof[i], err = codec.HexDecodeString(node)
		if err != nil {
			return nil, fmt.Errorf("decoding proof node %d: %w", i, err)
		}
	}
	return storageProof, nil
}

// PendingParaHeads implements Client.
func (s *Substrate) PendingParaHeads(ctx context.Context, at common.Hash) (
	map[parachains.ParaID][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix, err := storageValueKey("Paras", "Heads")
	if err != nil {
		return nil, err
	}

	var hexKeys []string
	err = s.api.Client.Call(&hexKeys, "state_getKeysPaged",
		codec.HexEncodeToString(prefix), 1000, nil, at.Hex())
	if err != nil {
		return nil, fmt.Errorf("listing parachain head keys: %w", err)
	}

	heads := make(map[parachains.ParaID][]byte, len(hexKeys))
	for _, hexKey := range hexKeys {
		key, err := codec.HexDecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("decoding storage key: %w", err)
		}
		// the raw SCALE encoded para id trails the key
		if len(key) < 4 {
			continue
		}
		var paraID uint32
		err = codec.Decode(key[len(key)-4:], &paraID)
		if err != nil {
			return nil, fmt.Errorf("decoding para id from key: %w", err)
		}

		raw, err := s.api.RPC.State.GetStorageRaw(key, at)
		if err != nil {
			return nil, fmt.Errorf("fetching head of parachain %d: %w", paraID, err)
		}
		if raw == nil || len(*raw) == 0 {
			continue
		}

		var headData types.Bytes
		err = codec.Decode(*raw, &headData)
		if err != nil {
			return nil, fmt.Errorf("decoding head of parachain %d: %w", paraID, err)
		}
		heads[parachains.ParaID(paraID)] = headData
	}
	return heads, nil
}

// SessionIndexForChild implements Client.
func (s *Substrate) SessionIndexForChild(ctx context.Context, at common.Hash) (
	uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	key, err := storageValueKey("Session", "CurrentIndex")
	if err != nil {
		return 0, err
	}
	raw, err := s.api.RPC.State.GetStorageRaw(key, at)
	if err != nil {
		return 0, fmt.Errorf("fetching session index: %w", err)
	}
	if raw == nil || len(*raw) == 0 {
		return 0, fmt.Errorf("%w: session index", ErrNotFound)
	}

	var index uint32
	err = codec.Decode(*raw, &index)
	if err != nil {
		return 0, fmt.Errorf("decoding session index: %w", err)
	}
	return index, nil
}

// BridgedBestFinalized implements Client.
func (s *Substrate) BridgedBestFinalized(ctx context.Context) (
	common.HeaderID, error) {
	var id common.HeaderID
	err := s.readStorageValue(ctx, "BridgeGrandpa", "BestFinalized", &id)
	if err != nil {
		return common.HeaderID{}, err
	}
	return id, nil
}

// BridgedIsFreeHeader implements Client.
func (s *Substrate) BridgedIsFreeHeader(ctx context.Context,
	id common.HeaderID) (bool, error) {
	encodedKey, err := codec.Encode(id)
	if err != nil {
		return false, fmt.Errorf("encoding header id: %w", err)
	}
	key, err := storageMapKey("BridgeGrandpa", "FreeImportedHeaders", encodedKey)
	if err != nil {
		return false, err
	}

	raw, err := s.api.RPC.State.GetStorageRawLatest(key)
	if err != nil {
		return false, fmt.Errorf("fetching free header flag: %w", err)
	}
	if raw == nil || len(*raw) == 0 {
		return false, nil
	}

	var free bool
	err = codec.Decode(*raw, &free)
	if err != nil {
		return false, fmt.Errorf("decoding free header flag: %w", err)
	}
	return free, nil
}

// BridgedBestParaHead implements Client.
func (s *Substrate) BridgedBestParaHead(ctx context.Context,
	paraID parachains.ParaID) (parachains.BestParaHead, error) {
	if err := ctx.Err(); err != nil {
		return parachains.BestParaHead{}, err
	}

	encodedKey, err := codec.Encode(uint32(paraID))
	if err != nil {
		return parachains.BestParaHead{}, fmt.Errorf("encoding para id: %w", err)
	}
	key, err := storageMapKey("BridgeParachains", "ParasInfo", encodedKey)
	if err != nil {
		return parachains.BestParaHead{}, err
	}

	raw, err := s.api.RPC.State.GetStorageRawLatest(key)
	if err != nil {
		return parachains.BestParaHead{}, fmt.Errorf(
			"fetching head of parachain %d: %w", paraID, err)
	}
	if raw == nil || len(*raw) == 0 {
		return parachains.BestParaHead{}, fmt.Errorf(
			"%w: head of parachain %d", ErrNotFound, paraID)
	}

	var head parachains.BestParaHead
	err = codec.Decode(*raw, &head)
	if err != nil {
		return parachains.BestParaHead{}, fmt.Errorf(
			"decoding head of parachain %d: %w", paraID, err)
	}
	return head, nil
}

// BridgedInboundLane implements Client.
func (s *Substrate) BridgedInboundLane(ctx context.Context,
	lane messages.LaneID) (messages.InboundLaneData, error) {
	if err := ctx.Err(); err != nil {
		return messages.InboundLaneData{}, err
	}

	key, err := messages.InboundLaneKey(lane)
	if err != nil {
		return messages.InboundLaneData{}, err
	}

	raw, err := s.api.RPC.State.GetStorageRawLatest(key)
	if err != nil {
		return messages.InboundLaneData{}, fmt.Errorf(
			"fetching inbound lane %s: %w", lane, err)
	}

	var data messages.InboundLaneData
	if raw != nil && len(*raw) > 0 {
		err = codec.Decode(*raw, &data)
		if err != nil {
			return messages.InboundLaneData{}, fmt.Errorf(
				"decoding inbound lane %s: %w", lane, err)
		}
	}
	return data, nil
}

// BridgedOutboundLane implements Client.
func (s *Substrate) BridgedOutboundLane(ctx context.Context,
	lane messages.LaneID) (messages.OutboundLaneData, error) {
	if err := ctx.Err(); err != nil {
		return messages.OutboundLaneData{}, err
	}

	key, err := messages.OutboundLaneKey(lane)
	if err != nil {
		return messages.OutboundLaneData{}, err
	}

	raw, err := s.api.RPC.State.GetStorageRawLatest(key)
	if err != nil {
		return messages.OutboundLaneData{}, fmt.Errorf(
			"fetching outbound lane %s: %w", lane, err)
	}

	data := messages.NewOutboundLaneData()
	if raw != nil && len(*raw) > 0 {
		err = codec.Decode(*raw, &data)
		if err != nil {
			return messages.OutboundLaneData{}, fmt.Errorf(
				"decoding outbound lane %s: %w", lane, err)
		}
	}
	return data, nil
}

func (s *Substrate) readStorageValue(ctx context.Context,
	pallet, item string, target interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, err := storageValueKey(pallet, item)
	if err != nil {
		return err
	}

	raw, err := s.api.RPC.State.GetStorageRawLatest(key)
	if err != nil {
		return fmt.Errorf("fetching %s.%s: %w", pallet, item, err)
	}
	if raw == nil || len(*raw) == 0 {
		return fmt.Errorf("%w: %s.%s", ErrNotFound, pallet, item)
	}

	err = codec.Decode(*raw, target)
	if err != nil {
		return fmt.Errorf("decoding %s.%s: %w", pallet, item, err)
	}
	return nil
}

func storageValueKey(pallet, item string) (types.StorageKey, error) {
	palletPrefix, err := common.Twox128Hash([]byte(pallet))
	if err != nil {
		return nil, fmt.Errorf("hashing pallet name: %w", err)
	}
	itemPrefix, err := common.Twox128Hash([]byte(item))
	if err != nil {
		return nil, fmt.Errorf("hashing storage item name: %w", err)
	}
	return types.StorageKey(append(palletPrefix, itemPrefix...)), nil
}

func storageMapKey(pallet, item string, encodedKey []byte) (types.StorageKey, error) {
	prefix, err := storageValueKey(pallet, item)
	if err != nil {
		return nil, err
	}
	hashedKey, err := common.Blake2b128(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("hashing storage key: %w", err)
	}

	key := append([]byte(nil), prefix...)
	key = append(key, hashedKey...)
	key = append(key, encodedKey...)
	return types.StorageKey(key), nil
}
