// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay loop metrics, labelled by the bridged chain or lane they track.
var (
	// BestSourceBlock is the best finalized block number seen on the
	// source chain.
	BestSourceBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "parabridge",
		Name:      "best_source_block",
		Help:      "best finalized source chain block number",
	}, []string{"chain"})

	// BestTargetBlock is the best source chain block number known to
	// the target chain's finality verifier.
	BestTargetBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "parabridge",
		Name:      "best_target_block",
		Help:      "best source chain block number known to the target chain",
	}, []string{"chain"})

	// SubmittedFinalityProofs counts accepted finality proof submissions.
	SubmittedFinalityProofs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parabridge",
		Name:      "submitted_finality_proofs_total",
		Help:      "finality proofs submitted to the target chain",
	}, []string{"chain"})

	// SubmittedParachainHeads counts accepted parachain head submissions.
	SubmittedParachainHeads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parabridge",
		Name:      "submitted_parachain_heads_total",
		Help:      "parachain heads submitted to the target chain",
	}, []string{"parachain"})

	// RelayedMessages counts messages relayed per lane.
	RelayedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parabridge",
		Name:      "relayed_messages_total",
		Help:      "messages relayed to the target chain",
	}, []string{"lane"})

	// RelayedConfirmations counts delivery confirmations relayed per lane.
	RelayedConfirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parabridge",
		Name:      "relayed_confirmations_total",
		Help:      "delivery confirmations relayed back to the source chain",
	}, []string{"lane"})

	// ReportedEquivocations counts submitted equivocation reports.
	ReportedEquivocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parabridge",
		Name:      "reported_equivocations_total",
		Help:      "equivocation reports submitted to the source chain",
	}, []string{"chain"})

	// Reconnects counts chain client reconnections after transport errors.
	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parabridge",
		Name:      "reconnects_total",
		Help:      "chain client reconnections after connection errors",
	}, []string{"chain"})

	// SubmitFailures counts failed transaction submissions per loop.
	SubmitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parabridge",
		Name:      "submit_failures_total",
		Help:      "failed bridge transaction submissions",
	}, []string{"loop"})
)
