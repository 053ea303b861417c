// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_IsConnectionError(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		err        error
		connection bool
	}{
		"nil":              {err: nil, connection: false},
		"eof":              {err: io.EOF, connection: true},
		"wrapped_eof":      {err: fmt.Errorf("reading: %w", io.EOF), connection: true},
		"unexpected_eof":   {err: io.ErrUnexpectedEOF, connection: true},
		"closed_network":   {err: net.ErrClosed, connection: true},
		"conn_refused":     {err: syscall.ECONNREFUSED, connection: true},
		"conn_reset":       {err: syscall.ECONNRESET, connection: true},
		"net_op_error":     {err: &net.OpError{Op: "dial", Err: errors.New("x")}, connection: true},
		"deadline":         {err: context.DeadlineExceeded, connection: true},
		"websocket_close":  {err: errors.New("websocket: close 1006 (abnormal closure)"), connection: true},
		"chain_rejection":  {err: errors.New("Invalid Transaction"), connection: false},
		"decoding_failure": {err: errors.New("decoding header: EOF marker"), connection: false},
		"canceled":         {err: context.Canceled, connection: false},
	}

	for name, testCase := range testCases {
		testCase := testCase
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.connection, IsConnectionError(testCase.err))
		})
	}
}

func Test_TxStatus_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "finalized", TxFinalized.String())
	assert.Equal(t, "invalid", TxInvalid.String())
	assert.Equal(t, "lost", TxLost.String())
}
