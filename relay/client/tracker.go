// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package client

import (
	"context"
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/rpc/author"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// SubmitTransaction implements Client. The call is signed with the
// client's keyring and watched until a terminal state.
func (s *Substrate) SubmitTransaction(ctx context.Context, call Call) (
	TransactionTracker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	args, err := callArguments(call)
	if err != nil {
		return nil, err
	}

	encodedCall, err := types.NewCall(s.meta, call.callName(), args...)
	if err != nil {
		return nil, fmt.Errorf("building call %s: %w", call.callName(), err)
	}
	ext := types.NewExtrinsic(encodedCall)

	runtimeVersion, err := s.api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		return nil, fmt.Errorf("fetching runtime version: %w", err)
	}

	nonce, err := s.accountNonce()
	if err != nil {
		return nil, err
	}

	err = ext.Sign(s.keyring, types.SignatureOptions{
		BlockHash:          s.genesis,
		Era:                types.ExtrinsicEra{IsImmortalEra: true},
		GenesisHash:        s.genesis,
		Nonce:              types.NewUCompactFromUInt(uint64(nonce)),
		SpecVersion:        runtimeVersion.SpecVersion,
		Tip:                types.NewUCompactFromUInt(0),
		TransactionVersion: runtimeVersion.TransactionVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("signing %s: %w", call.callName(), err)
	}

	sub, err := s.api.RPC.Author.SubmitAndWatchExtrinsic(ext)
	if err != nil {
		return nil, fmt.Errorf("submitting %s: %w", call.callName(), err)
	}

	logger.Debugf("%s: submitted %s with nonce %d", s.name, call.callName(), nonce)
	return &substrateTracker{chain: s.name, call: call.callName(), sub: sub}, nil
}

func (s *Substrate) accountNonce() (uint32, error) {
	key, err := storageMapKey("System", "Account", s.keyring.PublicKey)
	if err != nil {
		return 0, err
	}

	var accountInfo types.AccountInfo
	ok, err := s.api.RPC.State.GetStorageLatest(key, &accountInfo)
	if err != nil {
		return 0, fmt.Errorf("fetching account nonce: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return uint32(accountInfo.Nonce), nil
}

func callArguments(call Call) ([]interface{}, error) {
	switch c := call.(type) {
	case SubmitFinalityProofCall:
		return []interface{}{c.Header, c.Justification, c.FreeExecution}, nil
	case SubmitParachainHeadsCall:
		return []interface{}{c.RelayHeader, c.Parachains, c.Proof, c.FreeExecution}, nil
	case ReceiveMessagesProofCall:
		return []interface{}{c.SourceHeader, c.Lane, c.Proof,
			c.BeginNonce, c.EndNonce, c.Relayer}, nil
	case ReceiveMessagesDeliveryProofCall:
		return []interface{}{c.TargetHeader, c.Lane, c.Proof}, nil
	case ReportEquivocationCall:
		return []interface{}{c.Proof}, nil
	default:
		return nil, fmt.Errorf("unknown call type %T", call)
	}
}

type substrateTracker struct {
	chain string
	call  string
	sub   *author.ExtrinsicStatusSubscription
}

// Wait implements TransactionTracker.
func (t *substrateTracker) Wait(ctx context.Context) TxStatus {
	defer t.sub.Unsubscribe()

	for {
		select {
		case status, ok := <-t.sub.Chan():
			if !ok {
				logger.Warnf("%s: %s status stream ended", t.chain, t.call)
				return TxLost
			}

			switch {
			case status.IsFinalized:
				logger.Debugf("%s: %s finalized in %s",
					t.chain, t.call, status.AsFinalized.Hex())
				return TxFinalized
			case status.IsInvalid:
				logger.Warnf("%s: %s rejected as invalid", t.chain, t.call)
				return TxInvalid
			case status.IsDropped, status.IsUsurped, status.IsFinalityTimeout:
				logger.Warnf("%s: %s lost before finality", t.chain, t.call)
				return TxLost
			}

		case err := <-t.sub.Err():
			logger.Warnf("%s: %s tracking failed: %s", t.chain, t.call, err)
			return TxLost

		case <-ctx.Done():
			logger.Warnf("%s: stopped waiting for %s: %s",
				t.chain, t.call, ctx.Err())
			return TxLost
		}
	}
}
