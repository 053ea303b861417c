// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package parachains

import (
	"errors"
)

// ErrUnknownRelayHeader is returned when parachain heads are submitted
// at a relay chain header that was never finalized or was already pruned
var ErrUnknownRelayHeader = errors.New("unknown relay chain header")

// ErrNotFreeHeader is returned when free execution is expected but the
// relay chain header was not accepted as a free submission
var ErrNotFreeHeader = errors.New("relay chain header is not a free header")

// ErrNoParachains is returned when a submission carries no parachains
var ErrNoParachains = errors.New("no parachains in submission")

// ErrTooManyParachains is returned when a submission exceeds the
// configured per-call parachains bound
var ErrTooManyParachains = errors.New("too many parachains in submission")

// ErrUnknownParaHead is returned when querying the head of a parachain
// that was never tracked
var ErrUnknownParaHead = errors.New("no head tracked for parachain")
