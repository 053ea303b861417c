// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package messages

import (
	"errors"
)

// ErrInvalidLaneID is returned when parsing a malformed lane id
var ErrInvalidLaneID = errors.New("lane id is not valid")

// ErrLaneClosed is returned when sending on a lane not opened on this chain
var ErrLaneClosed = errors.New("lane is not open")

// ErrMessageTooLarge is returned when a payload exceeds the configured bound
var ErrMessageTooLarge = errors.New("message payload is too large")

// ErrUnverifiedHeader is returned when a proof references a bridged chain
// header that was never verified on this chain
var ErrUnverifiedHeader = errors.New("bridged chain header is not verified")

// ErrEmptyRange is returned when a delivery declares an empty nonce range
var ErrEmptyRange = errors.New("message nonce range is empty")

// ErrTooManyMessages is returned when a delivery exceeds the per-call bound
var ErrTooManyMessages = errors.New("too many messages in delivery")

// ErrDuplicateNonce is returned when a delivery starts at or below the
// last delivered nonce
var ErrDuplicateNonce = errors.New("message nonce was already delivered")

// ErrNonceGap is returned when a delivery skips nonces: lanes are strictly
// ordered and every nonce must be delivered exactly once
var ErrNonceGap = errors.New("message nonce leaves a gap on the lane")

// ErrMissingMessage is returned when a declared nonce has no payload in
// the storage proof
var ErrMissingMessage = errors.New("message is missing from proof")

// ErrTooManyUnrewardedRelayers is returned when accepting a delivery would
// overflow the bounded set of unrewarded relayer entries
var ErrTooManyUnrewardedRelayers = errors.New("too many unrewarded relayer entries")

// ErrTooManyUnconfirmedMessages is returned when accepting a delivery would
// overflow the bounded set of unconfirmed messages
var ErrTooManyUnconfirmedMessages = errors.New("too many unconfirmed messages")

// ErrMissingLaneState is returned when a proof has no lane state under the
// expected storage key
var ErrMissingLaneState = errors.New("lane state is missing from proof")

// ErrNoNewConfirmations is returned when a delivery proof confirms nothing
// beyond the already known latest received nonce
var ErrNoNewConfirmations = errors.New("no new delivery confirmations")

// ErrConfirmationExceedsGenerated is returned when a delivery proof claims
// delivery of messages that were never sent
var ErrConfirmationExceedsGenerated = errors.New(
	"confirmed nonce is above the latest generated nonce")
