// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package equivocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ChainSafe/parabridge/bridge/grandpa"
	"github.com/ChainSafe/parabridge/internal/log"
	"github.com/ChainSafe/parabridge/internal/metrics"
	"github.com/ChainSafe/parabridge/lib/common"
	"github.com/ChainSafe/parabridge/relay/client"
)

var logger = log.NewFromGlobal(log.AddContext("pkg", "relay/equivocation"))

const defaultInterval = 6 * time.Second

// Config configures an equivocation detection loop.
type Config struct {
	// Source is the chain whose authorities are watched; reports are
	// submitted there, where the offender can be slashed.
	Source client.Client
	// Target is the chain syncing the source's finality; its synced
	// headers anchor the reporting context.
	Target client.Client
	// Interval is the poll interval.
	Interval time.Duration
	// RetryDelay is the wait after a failed iteration.
	RetryDelay time.Duration
}

// reportingContext is the verification context equivocations are
// evaluated against. It is anchored at the target chain's synced
// source header rather than the source chain's own tip: the votes
// under scrutiny were produced for the context valid at sync time.
type reportingContext struct {
	synced common.HeaderID
	setID  uint64
	// sessionIndex is the source chain session the synced header falls
	// in; offences are tied to their session when slashed.
	sessionIndex uint32
}

// Loop is the equivocation detection service.
type Loop struct {
	cfg    Config
	cancel context.CancelFunc
	done   chan struct{}

	context    reportingContext
	hasContext bool
	finder     *Finder
}

// NewLoop creates an equivocation detection loop from the given config.
func NewLoop(cfg Config) *Loop {
	if cfg.Interval == 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = client.ReconnectDelay
	}
	return &Loop{cfg: cfg, finder: NewFinder(0)}
}

// Start launches the detection loop.
func (l *Loop) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx)
	logger.Infof("watching %s finality for equivocations via %s",
		l.cfg.Source.Name(), l.cfg.Target.Name())
	return nil
}

// Stop stops the detection loop. The current iteration completes first.
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
			logger.Warnf("equivocation detection iteration: %s", err)
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
	changed, err := l.updateContext(ctx)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	finalityProof, err := l.cfg.Source.FinalityProof(ctx, l.context.synced.Number)
	if err != nil {
		return &client.ChainError{Chain: l.cfg.Source,
			Err: fmt.Errorf("fetching finality proof of synced header %s: %w",
				l.context.synced, err)}
	}

	proofs := l.finder.Scan(&finalityProof.Justification)
	for _, equivocationProof := range proofs {
		if err := l.report(ctx, equivocationProof); err != nil {
			return err
		}
	}
	return nil
}

// updateContext rebuilds the reporting context from the target's
// synced source header. It reports whether the context changed; an
// unchanged synced header leaves the context untouched.
func (l *Loop) updateContext(ctx context.Context) (changed bool, err error) {
	synced, err := l.cfg.Target.BridgedBestFinalized(ctx)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			// nothing synced yet, no context to evaluate votes against
			return false, nil
		}
		return false, &client.ChainError{Chain: l.cfg.Target,
			Err: fmt.Errorf("fetching synced source header: %w", err)}
	}

	if l.hasContext && synced == l.context.synced {
		return false, nil
	}

	_, setID, err := l.cfg.Source.GrandpaAuthorities(ctx, synced.Hash)
	if err != nil {
		return false, &client.ChainError{Chain: l.cfg.Source,
			Err: fmt.Errorf("fetching authority set at %s: %w", synced, err)}
	}

	sessionIndex, err := l.cfg.Source.SessionIndexForChild(ctx, synced.Hash)
	if err != nil {
		return false, &client.ChainError{Chain: l.cfg.Source,
			Err: fmt.Errorf("fetching session index at %s: %w", synced, err)}
	}

	l.context = reportingContext{
		synced:       synced,
		setID:        setID,
		sessionIndex: sessionIndex,
	}
	l.hasContext = true
	l.finder.Reset(setID)
	return true, nil
}

// report submits one equivocation proof to the source chain and waits
// for its fate. A rejected report is not retried: the finder already
// marked the offence as reported.
func (l *Loop) report(ctx context.Context, proof grandpa.EquivocationProof) error {
	tracker, err := l.cfg.Source.SubmitTransaction(ctx,
		client.ReportEquivocationCall{Proof: proof})
	if err != nil {
		return &client.ChainError{Chain: l.cfg.Source,
			Err: fmt.Errorf("submitting equivocation report: %w", err)}
	}

	offender := proof.Offender()
	switch status := tracker.Wait(ctx); status {
	case client.TxFinalized:
		metrics.ReportedEquivocations.WithLabelValues(l.cfg.Source.Name()).Inc()
		logger.Infof("reported equivocation by authority 0x%x in round %d "+
			"(session %d) to %s",
			offender, proof.Round, l.context.sessionIndex, l.cfg.Source.Name())
	case client.TxInvalid:
		metrics.SubmitFailures.WithLabelValues("equivocation").Inc()
		logger.Warnf("%s rejected equivocation report against authority 0x%x",
			l.cfg.Source.Name(), offender)
	default:
		metrics.SubmitFailures.WithLabelValues("equivocation").Inc()
		logger.Warnf("equivocation report against authority 0x%x was %s",
			offender, status)
	}
	return nil
}
