// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package relayers

import (
	"errors"
)

// ErrNotRegistered is returned when operating on a relayer with no registration
var ErrNotRegistered = errors.New("relayer is not registered")

// ErrLeaseTooShort is returned when a registration would expire before
// the required lease
var ErrLeaseTooShort = errors.New("registration lease is too short")

// ErrCannotReduceValidTill is returned when a re-registration would
// expire earlier than the current one
var ErrCannotReduceValidTill = errors.New("registration cannot end earlier than before")

// ErrRegistrationActive is returned when deregistering before the
// registration expired
var ErrRegistrationActive = errors.New("registration is still active")

// ErrReserveFailed is returned when the ledger cannot reserve the
// required stake
var ErrReserveFailed = errors.New("failed to reserve stake")
