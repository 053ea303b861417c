// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package finality relays source chain finality proofs to the target
// chain's finality verifier.
package finality

import (
	"context"
	"fmt"
	"time"

	"github.com/ChainSafe/parabridge/bridge/grandpa"
	"github.com/ChainSafe/parabridge/internal/log"
	"github.com/ChainSafe/parabridge/internal/metrics"
	"github.com/ChainSafe/parabridge/relay/client"
)

var logger = log.NewFromGlobal(log.AddContext("pkg", "relay/finality"))

const defaultInterval = 6 * time.Second

// Config configures a finality relay loop.
type Config struct {
	// Source is the chain whose headers are relayed.
	Source client.Client
	// Target is the chain running the finality verifier.
	Target client.Client
	// Interval is the poll interval, defaulting to the source chain
	// block time.
	Interval time.Duration
	// RetryDelay is the wait after a failed iteration, defaulting to
	// client.ReconnectDelay.
	RetryDelay time.Duration
	// OnlyFreeHeaders restricts submissions to headers the target
	// accepts for free: mandatory authority set changes and numbers
	// at FreeHeadersInterval boundaries.
	OnlyFreeHeaders bool
	// FreeHeadersInterval mirrors the target verifier's free headers
	// interval. Zero means only mandatory headers are free.
	FreeHeadersInterval uint32
}

// Loop is the finality relay service.
type Loop struct {
	cfg    Config
	cancel context.CancelFunc
	done   chan struct{}

	// lastSubmitted is the last header number submitted, kept so a
	// rejected proof is never resubmitted.
	lastSubmitted uint32
}

// NewLoop creates a finality relay loop from the given config.
func NewLoop(cfg Config) *Loop {
	if cfg.Interval == 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = client.ReconnectDelay
	}
	return &Loop{cfg: cfg}
}

// Start launches the relay loop.
func (l *Loop) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx)
	logger.Infof("relaying %s finality to %s",
		l.cfg.Source.Name(), l.cfg.Target.Name())
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
			logger.Warnf("finality relay iteration: %s", err)
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
	sourceBest, err := l.cfg.Source.BestFinalizedHeaderID(ctx)
	if err != nil {
		return &client.ChainError{Chain: l.cfg.Source,
			Err: fmt.Errorf("fetching best finalized header: %w", err)}
	}
	metrics.BestSourceBlock.WithLabelValues(l.cfg.Source.Name()).
		Set(float64(sourceBest.Number))

	targetBest, err := l.cfg.Target.BridgedBestFinalized(ctx)
	if err != nil {
		return &client.ChainError{Chain: l.cfg.Target,
			Err: fmt.Errorf("fetching bridged best finalized header: %w", err)}
	}
	metrics.BestTargetBlock.WithLabelValues(l.cfg.Source.Name()).
		Set(float64(targetBest.Number))

	if sourceBest.Number <= targetBest.Number {
		return nil
	}

	number, mandatory, err := l.selectNumber(ctx, targetBest.Number, sourceBest.Number)
	if err != nil {
		return err
	}
	if number == 0 || number == l.lastSubmitted {
		return nil
	}

	finalityProof, err := l.cfg.Source.FinalityProof(ctx, number)
	if err != nil {
		return &client.ChainError{Chain: l.cfg.Source,
			Err: fmt.Errorf("fetching finality proof of %d: %w", number, err)}
	}

	call := client.SubmitFinalityProofCall{
		Header:        finalityProof.Header,
		Justification: finalityProof.Justification,
		FreeExecution: mandatory || l.cfg.OnlyFreeHeaders,
	}
	tracker, err := l.cfg.Target.SubmitTransaction(ctx, call)
	if err != nil {
		return &client.ChainError{Chain: l.cfg.Target,
			Err: fmt.Errorf("submitting finality proof of %d: %w", number, err)}
	}

	switch status := tracker.Wait(ctx); status {
	case client.TxFinalized:
		l.lastSubmitted = number
		metrics.SubmittedFinalityProofs.WithLabelValues(l.cfg.Source.Name()).Inc()
		logger.Infof("relayed %s header %d to %s",
			l.cfg.Source.Name(), number, l.cfg.Target.Name())
	case client.TxInvalid:
		// the proof itself is bad, move on instead of resubmitting it
		l.lastSubmitted = number
		metrics.SubmitFailures.WithLabelValues("finality").Inc()
		logger.Warnf("%s rejected finality proof of header %d",
			l.cfg.Target.Name(), number)
	default:
		metrics.SubmitFailures.WithLabelValues("finality").Inc()
		logger.Warnf("finality proof of header %d was %s, retrying next round",
			number, status)
	}
	return nil
}

// selectNumber picks the header to relay from the range between the
// target's best synced number (exclusive) and the source's best
// finalized number (inclusive). Headers scheduling an authority set
// change take precedence: the verifier cannot cross an unapplied
// change, so they are relayed in order before anything newer. A zero
// return means nothing eligible.
func (l *Loop) selectNumber(ctx context.Context, lastSynced, sourceBest uint32) (
	number uint32, mandatory bool, err error) {
	for n := lastSynced + 1; n <= sourceBest; n++ {
		header, err := l.cfg.Source.HeaderByNumber(ctx, n)
		if err != nil {
			return 0, false, &client.ChainError{Chain: l.cfg.Source,
				Err: fmt.Errorf("fetching header %d: %w", n, err)}
		}

		scheduled, err := grandpa.HasScheduledChange(header)
		if err != nil {
			return 0, false, fmt.Errorf("inspecting header %d digest: %w", n, err)
		}
		if scheduled {
			return n, true, nil
		}
	}

	if !l.cfg.OnlyFreeHeaders {
		return sourceBest, false, nil
	}

	if l.cfg.FreeHeadersInterval == 0 {
		return 0, false, nil
	}
	free := sourceBest - sourceBest%l.cfg.FreeHeadersInterval
	if free <= lastSynced {
		return 0, false, nil
	}
	return free, false, nil
}
