// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package parachains relays proven parachain heads from the relay
// chain to the target chain's parachain head tracker.
package parachains

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	bridgeparachains "github.com/ChainSafe/parabridge/bridge/parachains"
	"github.com/ChainSafe/parabridge/internal/log"
	"github.com/ChainSafe/parabridge/internal/metrics"
	"github.com/ChainSafe/parabridge/lib/common"
	"github.com/ChainSafe/parabridge/relay/client"
)

var logger = log.NewFromGlobal(log.AddContext("pkg", "relay/parachains"))

const defaultInterval = 6 * time.Second

// HeadAvailability is the state of a tracked parachain head on the
// relay chain.
type HeadAvailability int

const (
	// HeadUnavailable means availability could not be determined yet,
	// for example because no relay chain header is synced.
	HeadUnavailable HeadAvailability = iota
	// HeadMissing means the relay chain tracks no head for the parachain.
	HeadMissing
	// HeadAvailable means a head was seen at AtRelayNumber.
	HeadAvailable
)

// AvailableHeader is the per-parachain cursor the poll loop and the
// one-shot relay command share.
type AvailableHeader struct {
	Availability  HeadAvailability
	AtRelayNumber uint32
	HeadHash      common.Hash
}

// Config configures a parachain heads relay loop.
type Config struct {
	// Source is the relay chain the parachain heads are read from.
	Source client.Client
	// Target is the chain running the parachain head prover.
	Target client.Client
	// Paras are the tracked parachains.
	Paras []bridgeparachains.ParaID
	// Interval is the poll interval.
	Interval time.Duration
	// RetryDelay is the wait after a failed iteration.
	RetryDelay time.Duration
	// OnlyFreeHeaders restricts submissions to relay chain headers the
	// target accepted for free.
	OnlyFreeHeaders bool
}

// Loop is the parachain heads relay service.
type Loop struct {
	cfg    Config
	cancel context.CancelFunc
	done   chan struct{}

	// mu guards the maps against the one-shot relay command.
	mu        sync.Mutex
	available map[bridgeparachains.ParaID]AvailableHeader
	// lastSubmitted holds the last submitted head hash per para, so a
	// rejected head is never resubmitted.
	lastSubmitted map[bridgeparachains.ParaID]common.Hash
}

// NewLoop creates a parachain heads relay loop from the given config.
func NewLoop(cfg Config) *Loop {
	if cfg.Interval == 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = client.ReconnectDelay
	}
	return &Loop{
		cfg:           cfg,
		available:     make(map[bridgeparachains.ParaID]AvailableHeader),
		lastSubmitted: make(map[bridgeparachains.ParaID]common.Hash),
	}
}

// Start launches the relay loop.
func (l *Loop) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx)
	logger.Infof("relaying parachain heads %v from %s to %s",
		l.cfg.Paras, l.cfg.Source.Name(), l.cfg.Target.Name())
	return nil
}

// Stop stops the relay loop. The current iteration completes first.
func (l *Loop) Stop() error {
	l.cancel()
	<-l.done
	return nil
}

// AvailableHead returns the current cursor of the given parachain.
func (l *Loop) AvailableHead(paraID bridgeparachains.ParaID) AvailableHeader {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available[paraID]
}

func (l *Loop) setAvailable(paraID bridgeparachains.ParaID, cursor AvailableHeader) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.available[paraID] = cursor
}

func (l *Loop) lastSubmittedHash(paraID bridgeparachains.ParaID) common.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSubmitted[paraID]
}

func (l *Loop) markSubmitted(paraHeads []bridgeparachains.ParaHeadHash) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, paraHead := range paraHeads {
		l.lastSubmitted[paraHead.ParaID] = paraHead.HeadHash
	}
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := l.iterate(ctx); err != nil && ctx.Err() == nil {
			logger.Warnf("parachain heads relay iteration: %s", err)
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
	relayBest, err := l.cfg.Target.BridgedBestFinalized(ctx)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			// no relay chain header synced yet, nothing to prove against
			return nil
		}
		return &client.ChainError{Chain: l.cfg.Target,
			Err: fmt.Errorf("fetching bridged best finalized relay header: %w", err)}
	}

	if l.cfg.OnlyFreeHeaders {
		free, err := l.cfg.Target.BridgedIsFreeHeader(ctx, relayBest)
		if err != nil {
			return &client.ChainError{Chain: l.cfg.Target,
				Err: fmt.Errorf("checking free relay header: %w", err)}
		}
		if !free {
			return nil
		}
	}

	heads, err := l.cfg.Source.PendingParaHeads(ctx, relayBest.Hash)
	if err != nil {
		return &client.ChainError{Chain: l.cfg.Source,
			Err: fmt.Errorf("fetching parachain heads at %s: %w", relayBest, err)}
	}

	var stale []bridgeparachains.ParaHeadHash
	for _, paraID := range l.cfg.Paras {
		headData, tracked := heads[paraID]
		if !tracked {
			l.setAvailable(paraID, AvailableHeader{Availability: HeadMissing})
			continue
		}

		headHash := common.MustBlake2bHash(headData)
		l.setAvailable(paraID, AvailableHeader{
			Availability:  HeadAvailable,
			AtRelayNumber: relayBest.Number,
			HeadHash:      headHash,
		})

		onTarget, err := l.headOnTarget(ctx, paraID, headHash, relayBest.Number)
		if err != nil {
			return err
		}
		if !onTarget && l.lastSubmittedHash(paraID) != headHash {
			stale = append(stale, bridgeparachains.ParaHeadHash{
				ParaID:   paraID,
				HeadHash: headHash,
			})
		}
	}

	if len(stale) == 0 {
		return nil
	}
	return l.submitHeads(ctx, relayBest, stale)
}

// headOnTarget reports whether the target already knows the given head,
// or one proven at the same or a newer relay block.
func (l *Loop) headOnTarget(ctx context.Context, paraID bridgeparachains.ParaID,
	headHash common.Hash, atRelayNumber uint32) (bool, error) {
	best, err := l.cfg.Target.BridgedBestParaHead(ctx, paraID)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return false, nil
		}
		return false, &client.ChainError{Chain: l.cfg.Target,
			Err: fmt.Errorf("fetching best head of parachain %d: %w", paraID, err)}
	}
	return best.HeadHash == headHash || best.AtRelayNumber >= atRelayNumber, nil
}

func (l *Loop) submitHeads(ctx context.Context, relayHeader common.HeaderID,
	paraHeads []bridgeparachains.ParaHeadHash) error {
	keys := make([][]byte, len(paraHeads))
	for i, paraHead := range paraHeads {
		key, err := bridgeparachains.ParasHeadsKey(paraHead.ParaID)
		if err != nil {
			return fmt.Errorf("building heads key of parachain %d: %w",
				paraHead.ParaID, err)
		}
		keys[i] = key
	}

	storageProof, err := l.cfg.Source.StorageProof(ctx, keys, relayHeader.Hash)
	if err != nil {
		return &client.ChainError{Chain: l.cfg.Source,
			Err: fmt.Errorf("fetching heads storage proof at %s: %w", relayHeader, err)}
	}

	call := client.SubmitParachainHeadsCall{
		RelayHeader:   relayHeader,
		Parachains:    paraHeads,
		Proof:         storageProof,
		FreeExecution: l.cfg.OnlyFreeHeaders,
	}
	tracker, err := l.cfg.Target.SubmitTransaction(ctx, call)
	if err != nil {
		return &client.ChainError{Chain: l.cfg.Target,
			Err: fmt.Errorf("submitting parachain heads: %w", err)}
	}

	switch status := tracker.Wait(ctx); status {
	case client.TxFinalized:
		l.markSubmitted(paraHeads)
		for _, paraHead := range paraHeads {
			metrics.SubmittedParachainHeads.
				WithLabelValues(strconv.Itoa(int(paraHead.ParaID))).Inc()
		}
		logger.Infof("relayed %d parachain heads at relay block %s to %s",
			len(paraHeads), relayHeader, l.cfg.Target.Name())
	case client.TxInvalid:
		// do not try the same heads again
		l.markSubmitted(paraHeads)
		metrics.SubmitFailures.WithLabelValues("parachains").Inc()
		logger.Warnf("%s rejected parachain heads at relay block %s",
			l.cfg.Target.Name(), relayHeader)
	default:
		metrics.SubmitFailures.WithLabelValues("parachains").Inc()
		logger.Warnf("parachain heads submission at relay block %s was %s, "+
			"retrying next round", relayHeader, status)
	}
	return nil
}

// RelaySingleHead relays the head of one parachain as proven at the
// given relay chain block, regardless of the poll cursor. The relay
// header must already be synced to the target for the proof to verify.
func (l *Loop) RelaySingleHead(ctx context.Context,
	paraID bridgeparachains.ParaID, relayNumber uint32) error {
	relayHeader, err := l.cfg.Source.HeaderByNumber(ctx, relayNumber)
	if err != nil {
		return fmt.Errorf("fetching relay header %d: %w", relayNumber, err)
	}
	relayHash, err := common.HashHeader(relayHeader)
	if err != nil {
		return fmt.Errorf("hashing relay header %d: %w", relayNumber, err)
	}
	relayID := common.HeaderID{Number: relayNumber, Hash: relayHash}

	heads, err := l.cfg.Source.PendingParaHeads(ctx, relayHash)
	if err != nil {
		return fmt.Errorf("fetching parachain heads at %s: %w", relayID, err)
	}
	headData, tracked := heads[paraID]
	if !tracked {
		l.setAvailable(paraID, AvailableHeader{Availability: HeadMissing})
		return fmt.Errorf("%w: parachain %d at relay block %d",
			client.ErrNotFound, paraID, relayNumber)
	}

	headHash := common.MustBlake2bHash(headData)
	l.setAvailable(paraID, AvailableHeader{
		Availability:  HeadAvailable,
		AtRelayNumber: relayNumber,
		HeadHash:      headHash,
	})

	return l.submitHeads(ctx, relayID,
		[]bridgeparachains.ParaHeadHash{{ParaID: paraID, HeadHash: headHash}})
}
