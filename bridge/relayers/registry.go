// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package relayers implements the relayer stake registry. Relayers
// reserve a stake for a bounded registration period and in exchange
// their delivery transactions get a priority boost; misbehaving
// relayers are slashed from the reserved stake.
package relayers

import (
	"fmt"

	"github.com/ChainSafe/parabridge/internal/log"
	"github.com/ChainSafe/parabridge/lib/common"
)

var logger = log.NewFromGlobal(log.AddContext("pkg", "bridge/relayers"))

// Balance is an amount of the chain's native token.
type Balance uint64

// Ledger is the balances interface the registry reserves stake
// through. Reserved funds stay owned by the account but cannot be
// spent until unreserved or repatriated.
type Ledger interface {
	// Reserve moves amount from the account's free balance to its
	// reserved balance.
	Reserve(account common.AccountID, amount Balance) error
	// Unreserve moves up to amount back to the account's free balance
	// and returns the part it could not move.
	Unreserve(account common.AccountID, amount Balance) (remainder Balance)
	// RepatriateReserved moves up to amount of the from account's
	// reserved balance to the to account's free balance and returns
	// the part it could not move.
	RepatriateReserved(from, to common.AccountID, amount Balance) (
		remainder Balance, err error)
}

// Registration is the state of one registered relayer.
type Registration struct {
	// ValidTill is the block number the registration expires at.
	// The relayer cannot withdraw the stake before expiry, so it
	// stays slashable for the whole period.
	ValidTill uint32
	// Stake is the amount reserved for this registration.
	Stake Balance
}

// Config is the static configuration of the stake registry.
type Config struct {
	// RequiredStake is the stake reserved at registration.
	RequiredStake Balance
	// RequiredRegistrationLease is the minimal number of blocks a
	// registration must still cover to count as active. Without it a
	// relayer could deregister right before its transaction lands and
	// escape slashing while keeping the priority boost.
	RequiredRegistrationLease uint32
	// PriorityBoostPerMessage is the transaction priority added per
	// declared message beyond the first.
	PriorityBoostPerMessage uint64
}

// StakeRegistry tracks relayer registrations and their reserved stake.
// Single-writer by construction.
type StakeRegistry struct {
	cfg    Config
	ledger Ledger

	registrations map[common.AccountID]Registration
}

// NewStakeRegistry creates a registry reserving stake through the
// given ledger.
func NewStakeRegistry(cfg Config, ledger Ledger) *StakeRegistry {
	return &StakeRegistry{
		cfg:           cfg,
		ledger:        ledger,
		registrations: make(map[common.AccountID]Registration),
	}
}

// Register registers the relayer until the validTill block, reserving
// the required stake. Re-registering extends the period and tops the
// stake up to the current requirement, but can never shorten it.
func (r *StakeRegistry) Register(relayer common.AccountID,
	validTill, now uint32) error {
	if validTill < now || validTill-now < r.cfg.RequiredRegistrationLease {
		return fmt.Errorf("%w: valid till %d at block %d, lease %d",
			ErrLeaseTooShort, validTill, now, r.cfg.RequiredRegistrationLease)
	}

	registration, registered := r.registrations[relayer]
	if registered && validTill < registration.ValidTill {
		return fmt.Errorf("%w: %d < %d",
			ErrCannotReduceValidTill, validTill, registration.ValidTill)
	}

	if registration.Stake < r.cfg.RequiredStake {
		topUp := r.cfg.RequiredStake - registration.Stake
		err := r.ledger.Reserve(relayer, topUp)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrReserveFailed, err)
		}
		registration.Stake = r.cfg.RequiredStake
	}

	registration.ValidTill = validTill
	r.registrations[relayer] = registration

	logger.Debugf("relayer %s registered until block %d with stake %d",
		relayer, validTill, registration.Stake)
	return nil
}

// Deregister removes an expired registration and unreserves its stake.
// A registration cannot be abandoned while still valid.
func (r *StakeRegistry) Deregister(relayer common.AccountID, now uint32) error {
	registration, registered := r.registrations[relayer]
	if !registered {
		return fmt.Errorf("%w: %s", ErrNotRegistered, relayer)
	}
	if registration.ValidTill >= now {
		return fmt.Errorf("%w: valid till %d at block %d",
			ErrRegistrationActive, registration.ValidTill, now)
	}

	remainder := r.ledger.Unreserve(relayer, registration.Stake)
	if remainder != 0 {
		logger.Warnf("relayer %s: %d of %d stake could not be unreserved",
			relayer, remainder, registration.Stake)
	}
	delete(r.registrations, relayer)

	logger.Debugf("relayer %s deregistered", relayer)
	return nil
}

// Registration returns the relayer's registration.
func (r *StakeRegistry) Registration(relayer common.AccountID) (Registration, error) {
	registration, registered := r.registrations[relayer]
	if !registered {
		return Registration{}, fmt.Errorf("%w: %s", ErrNotRegistered, relayer)
	}
	return registration, nil
}

// IsActive returns whether the relayer is registered with enough stake
// and with the registration still covering the required lease.
func (r *StakeRegistry) IsActive(relayer common.AccountID, now uint32) bool {
	registration, registered := r.registrations[relayer]
	if !registered {
		return false
	}
	if registration.Stake < r.cfg.RequiredStake {
		return false
	}
	return registration.ValidTill >= now &&
		registration.ValidTill-now >= r.cfg.RequiredRegistrationLease
}

// Slash removes the relayer's registration, repatriating its reserved
// stake to the beneficiary. The part of the stake the ledger could not
// move is returned explicitly; funds are never silently dropped.
func (r *StakeRegistry) Slash(relayer, beneficiary common.AccountID) (
	remainder Balance, err error) {
	registration, registered := r.registrations[relayer]
	if !registered {
		return 0, fmt.Errorf("%w: %s", ErrNotRegistered, relayer)
	}

	remainder, err = r.ledger.RepatriateReserved(relayer, beneficiary,
		registration.Stake)
	if err != nil {
		return 0, fmt.Errorf("repatriating stake of %s: %w", relayer, err)
	}
	delete(r.registrations, relayer)

	logger.Infof("relayer %s slashed for %d to %s (remainder %d)",
		relayer, registration.Stake-remainder, beneficiary, remainder)
	return remainder, nil
}

// DeliveryTransactionPriority returns the priority boost of a delivery
// transaction declaring the given number of messages. Only active
// registrants get a boost, so priority cannot be gamed by throwaway
// accounts, and the first message earns none, so splitting a batch
// never beats delivering it whole.
func (r *StakeRegistry) DeliveryTransactionPriority(relayer common.AccountID,
	declaredMessages uint64, now uint32) uint64 {
	if declaredMessages == 0 || !r.IsActive(relayer, now) {
		return 0
	}
	return r.cfg.PriorityBoostPerMessage * (declaredMessages - 1)
}
