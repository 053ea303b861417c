// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package client

import (
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"

	"github.com/ChainSafe/parabridge/bridge/grandpa"
	"github.com/ChainSafe/parabridge/bridge/messages"
	"github.com/ChainSafe/parabridge/bridge/parachains"
	"github.com/ChainSafe/parabridge/lib/common"
	"github.com/ChainSafe/parabridge/lib/trie/proof"
)

// Call is one of the bridge transaction payloads below.
type Call interface {
	callName() string
}

// SubmitFinalityProofCall advances the target chain's finality verifier.
type SubmitFinalityProofCall struct {
	Header        types.Header
	Justification grandpa.Justification
	// FreeExecution declares the submission as free; the target
	// rejects it if the header does not qualify.
	FreeExecution bool
}

func (SubmitFinalityProofCall) callName() string {
	return "BridgeGrandpa.submit_finality_proof"
}

// SubmitParachainHeadsCall advances the target chain's parachain head
// tracker.
type SubmitParachainHeadsCall struct {
	RelayHeader   common.HeaderID
	Parachains    []parachains.ParaHeadHash
	Proof         proof.RawStorageProof
	FreeExecution bool
}

func (SubmitParachainHeadsCall) callName() string {
	return "BridgeParachains.submit_parachain_heads"
}

// ReceiveMessagesProofCall delivers source chain messages to the target.
type ReceiveMessagesProofCall struct {
	SourceHeader common.HeaderID
	Lane         messages.LaneID
	Proof        proof.RawStorageProof
	BeginNonce   messages.MessageNonce
	EndNonce     messages.MessageNonce
	// Relayer is the account credited with the delivery.
	Relayer common.AccountID
}

func (ReceiveMessagesProofCall) callName() string {
	return "BridgeMessages.receive_messages_proof"
}

// ReceiveMessagesDeliveryProofCall confirms message delivery back on
// the source chain.
type ReceiveMessagesDeliveryProofCall struct {
	TargetHeader common.HeaderID
	Lane         messages.LaneID
	Proof        proof.RawStorageProof
}

func (ReceiveMessagesDeliveryProofCall) callName() string {
	return "BridgeMessages.receive_messages_delivery_proof"
}

// ReportEquivocationCall reports a double vote to the equivocating
// chain itself.
type ReportEquivocationCall struct {
	Proof grandpa.EquivocationProof
}

func (ReportEquivocationCall) callName() string {
	return "Grandpa.report_equivocation"
}
