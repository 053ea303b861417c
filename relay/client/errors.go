// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package client

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/ChainSafe/parabridge/internal/metrics"
)

// ReconnectDelay is how long the relay loops wait before reconnecting
// a failed client connection.
const ReconnectDelay = 10 * time.Second

// ErrNotFound is returned when a queried item does not exist on the chain
var ErrNotFound = errors.New("not found on chain")

// ChainError ties an error to the chain client it came from, so a
// relay loop can reconnect the right endpoint.
type ChainError struct {
	Chain Client
	Err   error
}

func (e *ChainError) Error() string {
	return e.Chain.Name() + ": " + e.Err.Error()
}

func (e *ChainError) Unwrap() error { return e.Err }

// RecoverOrWait handles a relay iteration error: a connection error on
// a known chain triggers a reconnect, any other error is just waited
// out. Either way the caller retries after the given delay, unless the
// context ends first.
func RecoverOrWait(ctx context.Context, err error, delay time.Duration) {
	var chainErr *ChainError
	if errors.As(err, &chainErr) && IsConnectionError(err) {
		metrics.Reconnects.WithLabelValues(chainErr.Chain.Name()).Inc()
		if reconnectErr := chainErr.Chain.Reconnect(ctx); reconnectErr != nil {
			logger.Warnf("reconnecting %s: %s", chainErr.Chain.Name(), reconnectErr)
		}
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// IsConnectionError reports whether the error comes from the transport
// rather than from the chain, so the caller should reconnect and retry
// the same work instead of moving on.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// the websocket transport wraps close errors in plain strings
	message := err.Error()
	return strings.Contains(message, "websocket: close") ||
		strings.Contains(message, "connection reset") ||
		strings.Contains(message, "broken pipe") ||
		strings.Contains(message, "use of closed network connection")
}
