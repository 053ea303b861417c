// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package messages relays lane messages from the source chain to the
// target chain, and delivery confirmations back.
package messages

import (
	"context"
	"fmt"
	"time"

	bridgemessages "github.com/ChainSafe/parabridge/bridge/messages"
	"github.com/ChainSafe/parabridge/internal/log"
	"github.com/ChainSafe/parabridge/internal/metrics"
	"github.com/ChainSafe/parabridge/lib/common"
	"github.com/ChainSafe/parabridge/relay/client"
)

var logger = log.NewFromGlobal(log.AddContext("pkg", "relay/messages"))

const (
	defaultInterval = 6 * time.Second

	defaultMaxMessagesInBatch          = 16
	defaultMaxUnrewardedRelayerEntries = 16
	defaultMaxUnconfirmedMessages      = 1024
)

// Config configures a message relay loop for one lane.
type Config struct {
	// Source is the chain the messages are sent from.
	Source client.Client
	// Target is the chain the messages are delivered to.
	Target client.Client
	// Lane is the relayed lane.
	Lane bridgemessages.LaneID
	// Relayer is the account credited with deliveries on the target.
	Relayer common.AccountID
	// MaxMessagesInBatch bounds a single delivery transaction. The
	// declared nonce range always matches it, as the target prices
	// transaction priority off the declared message count.
	MaxMessagesInBatch uint64
	// MaxUnrewardedRelayerEntries mirrors the target lane's relayer
	// entries bound; delivery pauses when the lane is full.
	MaxUnrewardedRelayerEntries uint64
	// MaxUnconfirmedMessages mirrors the target lane's unconfirmed
	// messages bound; delivery pauses when the lane is full.
	MaxUnconfirmedMessages uint64
	// Interval is the poll interval.
	Interval time.Duration
	// RetryDelay is the wait after a failed iteration.
	RetryDelay time.Duration
}

// Loop is the message relay service.
type Loop struct {
	cfg    Config
	cancel context.CancelFunc
	done   chan struct{}

	// lastDelivered tracks the last delivery submission, so a rejected
	// batch is not resubmitted against the same proven source header.
	lastDelivered deliveryArtifact
	// lastConfirmed is the highest delivered nonce already relayed
	// back to the source chain.
	lastConfirmed bridgemessages.MessageNonce
}

type deliveryArtifact struct {
	begin, end bridgemessages.MessageNonce
	atSource   common.Hash
}

// NewLoop creates a message relay loop from the given config.
func NewLoop(cfg Config) *Loop {
	if cfg.Interval == 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = client.ReconnectDelay
	}
	if cfg.MaxMessagesInBatch == 0 {
		cfg.MaxMessagesInBatch = defaultMaxMessagesInBatch
	}
	if cfg.MaxUnrewardedRelayerEntries == 0 {
		cfg.MaxUnrewardedRelayerEntries = defaultMaxUnrewardedRelayerEntries
	}
	if cfg.MaxUnconfirmedMessages == 0 {
		cfg.MaxUnconfirmedMessages = defaultMaxUnconfirmedMessages
	}
	return &Loop{cfg: cfg}
}

// Start launches the relay loop.
func (l *Loop) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx)
	logger.Infof("relaying lane %s messages from %s to %s",
		l.cfg.Lane, l.cfg.Source.Name(), l.cfg.Target.Name())
	return nil
}

// Stop stops the relay loop. The current iteration completes first.
func (l *Loop) Stop() error {
	l.cancel()
	<-l.done
	return nil
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := l.iterate(ctx); err != nil && ctx.Err() == nil {
			logger.Warnf("message relay iteration: %s", err)
			client.RecoverOrWait(ctx, err, l.cfg.RetryDelay)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (l *Loop) iterate(ctx context.Context) error {
	outbound, err := l.cfg.Source.BridgedOutboundLane(ctx, l.cfg.Lane)
	if err != nil {
		return &client.ChainError{Chain: l.cfg.Source,
			Err: fmt.Errorf("fetching outbound lane state: %w", err)}
	}

	inbound, err := l.cfg.Target.BridgedInboundLane(ctx, l.cfg.Lane)
	if err != nil {
		return &client.ChainError{Chain: l.cfg.Target,
			Err: fmt.Errorf("fetching inbound lane state: %w", err)}
	}

	if err := l.deliverMessages(ctx, outbound, inbound); err != nil {
		return err
	}
	return l.relayConfirmations(ctx, outbound, inbound)
}

// deliverMessages relays the next batch of undelivered messages, with
// their proof anchored at the source header the target already knows.
func (l *Loop) deliverMessages(ctx context.Context,
	outbound bridgemessages.OutboundLaneData,
	inbound bridgemessages.InboundLaneData) error {
	delivered := inbound.LastDeliveredNonce()
	if outbound.LatestGeneratedNonce <= delivered {
		return nil
	}
	if !l.laneHasRoom(inbound) {
		logger.Debugf("lane %s has no room for new deliveries, "+
			"waiting for confirmations", l.cfg.Lane)
		return nil
	}

	begin := delivered + 1
	end := outbound.LatestGeneratedNonce
	if max := begin + bridgemessages.MessageNonce(l.cfg.MaxMessagesInBatch) - 1; end > max {
		end = max
	}

	sourceBest, err := l.cfg.Target.BridgedBestFinalized(ctx)
	if err != nil {
		return &client.ChainError{Chain: l.cfg.Target,
			Err: fmt.Errorf("fetching bridged best source header: %w", err)}
	}

	artifact := deliveryArtifact{begin: begin, end: end, atSource: sourceBest.Hash}
	if artifact == l.lastDelivered {
		return nil
	}

	keys := make([][]byte, 0, end-begin+2)
	for nonce := begin; nonce <= end; nonce++ {
		key, err := bridgemessages.OutboundMessageKey(l.cfg.Lane, nonce)
		if err != nil {
			return fmt.Errorf("building message key of nonce %d: %w", nonce, err)
		}
		keys = append(keys, key)
	}
	// the outbound lane state rides along in every delivery proof, so
	// the target learns the source's latest received nonce for free
	laneKey, err := bridgemessages.OutboundLaneKey(l.cfg.Lane)
	if err != nil {
		return fmt.Errorf("building outbound lane key: %w", err)
	}
	keys = append(keys, laneKey)

	storageProof, err := l.cfg.Source.StorageProof(ctx, keys, sourceBest.Hash)
	if err != nil {
		return &client.ChainError{Chain: l.cfg.Source,
			Err: fmt.Errorf("fetching messages storage proof at %s: %w",
				sourceBest, err)}
	}

	call := client.ReceiveMessagesProofCall{
		SourceHeader: sourceBest,
		Lane:         l.cfg.Lane,
		Proof:        storageProof,
		BeginNonce:   begin,
		EndNonce:     end,
		Relayer:      l.cfg.Relayer,
	}
	tracker, err := l.cfg.Target.SubmitTransaction(ctx, call)
	if err != nil {
		return &client.ChainError{Chain: l.cfg.Target,
			Err: fmt.Errorf("submitting messages [%d, %d]: %w", begin, end, err)}
	}

	switch status := tracker.Wait(ctx); status {
	case client.TxFinalized:
		l.lastDelivered = artifact
		metrics.RelayedMessages.WithLabelValues(l.cfg.Lane.String()).
			Add(float64(end - begin + 1))
		logger.Infof("delivered lane %s messages [%d, %d] to %s",
			l.cfg.Lane, begin, end, l.cfg.Target.Name())
	case client.TxInvalid:
		// a fresher proven source header yields a new artifact later
		l.lastDelivered = artifact
		metrics.SubmitFailures.WithLabelValues("messages").Inc()
		logger.Warnf("%s rejected lane %s messages [%d, %d]",
			l.cfg.Target.Name(), l.cfg.Lane, begin, end)
	default:
		metrics.SubmitFailures.WithLabelValues("messages").Inc()
		logger.Warnf("lane %s messages [%d, %d] were %s, retrying next round",
			l.cfg.Lane, begin, end, status)
	}
	return nil
}

// laneHasRoom reports whether the target lane can take another batch
// without tripping its unrewarded relayer bounds.
func (l *Loop) laneHasRoom(inbound bridgemessages.InboundLaneData) bool {
	if uint64(len(inbound.RelayerRanges)) >= l.cfg.MaxUnrewardedRelayerEntries {
		return false
	}
	return inbound.UnrewardedMessages()+l.cfg.MaxMessagesInBatch <=
		l.cfg.MaxUnconfirmedMessages
}

// relayConfirmations proves the target's inbound lane state back to
// the source chain, so delivered messages are confirmed and pruned.
func (l *Loop) relayConfirmations(ctx context.Context,
	outbound bridgemessages.OutboundLaneData,
	inbound bridgemessages.InboundLaneData) error {
	delivered := inbound.LastDeliveredNonce()
	if delivered <= outbound.LatestReceivedNonce || delivered <= l.lastConfirmed {
		return nil
	}

	targetBest, err := l.cfg.Source.BridgedBestFinalized(ctx)
	if err != nil {
		return &client.ChainError{Chain: l.cfg.Source,
			Err: fmt.Errorf("fetching bridged best target header: %w", err)}
	}

	laneKey, err := bridgemessages.InboundLaneKey(l.cfg.Lane)
	if err != nil {
		return fmt.Errorf("building inbound lane key: %w", err)
	}

	storageProof, err := l.cfg.Target.StorageProof(ctx, [][]byte{laneKey},
		targetBest.Hash)
	if err != nil {
		return &client.ChainError{Chain: l.cfg.Target,
			Err: fmt.Errorf("fetching lane state storage proof at %s: %w",
				targetBest, err)}
	}

	call := client.ReceiveMessagesDeliveryProofCall{
		TargetHeader: targetBest,
		Lane:         l.cfg.Lane,
		Proof:        storageProof,
	}
	tracker, err := l.cfg.Source.SubmitTransaction(ctx, call)
	if err != nil {
		return &client.ChainError{Chain: l.cfg.Source,
			Err: fmt.Errorf("submitting delivery confirmation: %w", err)}
	}

	switch status := tracker.Wait(ctx); status {
	case client.TxFinalized:
		l.lastConfirmed = delivered
		metrics.RelayedConfirmations.WithLabelValues(l.cfg.Lane.String()).Inc()
		logger.Infof("confirmed lane %s deliveries up to nonce %d on %s",
			l.cfg.Lane, delivered, l.cfg.Source.Name())
	case client.TxInvalid:
		l.lastConfirmed = delivered
		metrics.SubmitFailures.WithLabelValues("confirmations").Inc()
		logger.Warnf("%s rejected lane %s delivery confirmation up to nonce %d",
			l.cfg.Source.Name(), l.cfg.Lane, delivered)
	default:
		metrics.SubmitFailures.WithLabelValues("confirmations").Inc()
		logger.Warnf("lane %s delivery confirmation was %s, retrying next round",
			l.cfg.Lane, status)
	}
	return nil
}
