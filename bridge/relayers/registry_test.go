// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package relayers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChainSafe/parabridge/lib/common"
)

type stubLedger struct {
	free     map[common.AccountID]Balance
	reserved map[common.AccountID]Balance
}

func newStubLedger() *stubLedger {
	return &stubLedger{
		free:     make(map[common.AccountID]Balance),
		reserved: make(map[common.AccountID]Balance),
	}
}

func (l *stubLedger) total() (total Balance) {
	for _, balance := range l.free {
		total += balance
	}
	for _, balance := range l.reserved {
		total += balance
	}
	return total
}

func (l *stubLedger) Reserve(account common.AccountID, amount Balance) error {
	if l.free[account] < amount {
		return errors.New("insufficient free balance")
	}
	l.free[account] -= amount
	l.reserved[account] += amount
	return nil
}

func (l *stubLedger) Unreserve(account common.AccountID,
	amount Balance) (remainder Balance) {
	moved := amount
	if l.reserved[account] < moved {
		moved = l.reserved[account]
	}
	l.reserved[account] -= moved
	l.free[account] += moved
	return amount - moved
}

func (l *stubLedger) RepatriateReserved(from, to common.AccountID,
	amount Balance) (remainder Balance, err error) {
	moved := amount
	if l.reserved[from] < moved {
		moved = l.reserved[from]
	}
	l.reserved[from] -= moved
	l.free[to] += moved
	return amount - moved, nil
}

func testRegistryConfig() Config {
	return Config{
		RequiredStake:             100,
		RequiredRegistrationLease: 8,
		PriorityBoostPerMessage:   10,
	}
}

func fundedRegistry(t *testing.T, relayer common.AccountID,
	free Balance) (*StakeRegistry, *stubLedger) {
	t.Helper()

	ledger := newStubLedger()
	ledger.free[relayer] = free
	return NewStakeRegistry(testRegistryConfig(), ledger), ledger
}

func Test_StakeRegistry_Register(t *testing.T) {
	t.Parallel()

	relayer := common.NewAccountID([]byte{1})
	registry, ledger := fundedRegistry(t, relayer, 150)

	require.NoError(t, registry.Register(relayer, 100, 10))

	registration, err := registry.Registration(relayer)
	require.NoError(t, err)
	assert.Equal(t, Registration{ValidTill: 100, Stake: 100}, registration)
	assert.Equal(t, Balance(50), ledger.free[relayer])
	assert.Equal(t, Balance(100), ledger.reserved[relayer])
	assert.True(t, registry.IsActive(relayer, 10))
}

func Test_StakeRegistry_Register_Rejections(t *testing.T) {
	t.Parallel()

	relayer := common.NewAccountID([]byte{1})
	registry, _ := fundedRegistry(t, relayer, 150)

	// lease shorter than required
	err := registry.Register(relayer, 15, 10)
	assert.ErrorIs(t, err, ErrLeaseTooShort)

	// validTill in the past
	err = registry.Register(relayer, 5, 10)
	assert.ErrorIs(t, err, ErrLeaseTooShort)

	// re-registration cannot shorten the period
	require.NoError(t, registry.Register(relayer, 100, 10))
	err = registry.Register(relayer, 50, 10)
	assert.ErrorIs(t, err, ErrCannotReduceValidTill)

	// insufficient free balance fails the reservation
	poor := common.NewAccountID([]byte{2})
	err = registry.Register(poor, 100, 10)
	assert.ErrorIs(t, err, ErrReserveFailed)
	assert.False(t, registry.IsActive(poor, 10))
}

func Test_StakeRegistry_Register_Extends(t *testing.T) {
	t.Parallel()

	relayer := common.NewAccountID([]byte{1})
	registry, ledger := fundedRegistry(t, relayer, 150)

	require.NoError(t, registry.Register(relayer, 100, 10))
	require.NoError(t, registry.Register(relayer, 200, 10))

	registration, err := registry.Registration(relayer)
	require.NoError(t, err)
	assert.Equal(t, uint32(200), registration.ValidTill)
	// the stake is not reserved twice
	assert.Equal(t, Balance(100), ledger.reserved[relayer])
}

func Test_StakeRegistry_IsActive(t *testing.T) {
	t.Parallel()

	relayer := common.NewAccountID([]byte{1})
	registry, _ := fundedRegistry(t, relayer, 150)
	require.NoError(t, registry.Register(relayer, 100, 10))

	assert.True(t, registry.IsActive(relayer, 10))
	// exactly one lease before expiry is still active
	assert.True(t, registry.IsActive(relayer, 92))
	// closer to expiry than the lease is not
	assert.False(t, registry.IsActive(relayer, 93))
	assert.False(t, registry.IsActive(relayer, 101))

	unknown := common.NewAccountID([]byte{9})
	assert.False(t, registry.IsActive(unknown, 10))
}

func Test_StakeRegistry_Deregister(t *testing.T) {
	t.Parallel()

	relayer := common.NewAccountID([]byte{1})
	registry, ledger := fundedRegistry(t, relayer, 150)
	require.NoError(t, registry.Register(relayer, 100, 10))

	// cannot abandon a registration that is still valid
	err := registry.Deregister(relayer, 100)
	assert.ErrorIs(t, err, ErrRegistrationActive)

	require.NoError(t, registry.Deregister(relayer, 101))
	assert.Equal(t, Balance(150), ledger.free[relayer])
	assert.Equal(t, Balance(0), ledger.reserved[relayer])

	_, err = registry.Registration(relayer)
	assert.ErrorIs(t, err, ErrNotRegistered)
	err = registry.Deregister(relayer, 101)
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func Test_StakeRegistry_Slash(t *testing.T) {
	t.Parallel()

	relayer := common.NewAccountID([]byte{1})
	beneficiary := common.NewAccountID([]byte{2})
	registry, ledger := fundedRegistry(t, relayer, 150)
	require.NoError(t, registry.Register(relayer, 100, 10))

	totalBefore := ledger.total()
	remainder, err := registry.Slash(relayer, beneficiary)
	require.NoError(t, err)
	assert.Equal(t, Balance(0), remainder)
	assert.Equal(t, Balance(100), ledger.free[beneficiary])
	assert.False(t, registry.IsActive(relayer, 10))

	// slashing moves funds, it never creates or destroys them
	assert.Equal(t, totalBefore, ledger.total())

	_, err = registry.Slash(relayer, beneficiary)
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func Test_StakeRegistry_Slash_Remainder(t *testing.T) {
	t.Parallel()

	relayer := common.NewAccountID([]byte{1})
	beneficiary := common.NewAccountID([]byte{2})
	registry, ledger := fundedRegistry(t, relayer, 150)
	require.NoError(t, registry.Register(relayer, 100, 10))

	// part of the reserved stake vanished from the ledger's view,
	// the unmoved part must surface in the remainder
	ledger.reserved[relayer] = 60

	totalBefore := ledger.total()
	remainder, err := registry.Slash(relayer, beneficiary)
	require.NoError(t, err)
	assert.Equal(t, Balance(40), remainder)
	assert.Equal(t, Balance(60), ledger.free[beneficiary])
	assert.Equal(t, totalBefore, ledger.total())
}

func Test_StakeRegistry_DeliveryTransactionPriority(t *testing.T) {
	t.Parallel()

	relayer := common.NewAccountID([]byte{1})
	registry, _ := fundedRegistry(t, relayer, 150)
	require.NoError(t, registry.Register(relayer, 100, 10))

	// the first message earns no boost
	assert.Equal(t, uint64(0), registry.DeliveryTransactionPriority(relayer, 1, 10))
	assert.Equal(t, uint64(40), registry.DeliveryTransactionPriority(relayer, 5, 10))
	assert.Equal(t, uint64(0), registry.DeliveryTransactionPriority(relayer, 0, 10))

	// no boost without an active registration
	assert.Equal(t, uint64(0), registry.DeliveryTransactionPriority(relayer, 5, 99))
	unregistered := common.NewAccountID([]byte{9})
	assert.Equal(t, uint64(0), registry.DeliveryTransactionPriority(unregistered, 5, 10))
}
