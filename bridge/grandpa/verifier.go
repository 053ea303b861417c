// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package grandpa implements the on-chain finality verifier for a
// bridged GRANDPA chain. It keeps the best finalized header and the
// current authority set of the bridged chain and advances them by
// verifying submitted finality proofs. All entry points are
// deterministic and return typed errors; they never panic on
// submitted data.
package grandpa

import (
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"

	"github.com/ChainSafe/parabridge/internal/log"
	"github.com/ChainSafe/parabridge/lib/common"
)

var logger = log.NewFromGlobal(log.AddContext("pkg", "bridge/grandpa"))

// Config is the static configuration of a finality verifier instance.
type Config struct {
	// ChainName names the bridged chain, distinguishing
	// multiple verifier instances on the same runtime.
	ChainName string
	// MaxBridgedAuthorities bounds the stored authority set.
	MaxBridgedAuthorities int
	// FinalizedHeadersToKeep is the size of the window of recently
	// accepted headers kept for parachain and message proofs.
	FinalizedHeadersToKeep int
	// MaxExpectedProofSize is the worst case encoded justification
	// size callers pre-pay for; the unused part is refunded.
	MaxExpectedProofSize int
	// FreeHeadersInterval makes every Nth header, and every header
	// enacting an authority set change, submittable for free.
	FreeHeadersInterval uint32
}

type storedHeader struct {
	id        common.HeaderID
	stateRoot common.Hash
	free      bool
}

// FinalityVerifier stores and advances the finality state of one
// bridged chain. It is single-writer by construction: the embedding
// runtime applies extrinsics sequentially.
type FinalityVerifier struct {
	cfg Config

	initialized   bool
	bestFinalized common.HeaderID
	authoritySet  AuthoritySet

	// recentHeaders is the pruning window of accepted headers,
	// oldest first, bestFinalized included as the last entry.
	recentHeaders []storedHeader

	// offenders records authorities with accepted equivocation reports.
	offenders map[AuthorityID]struct{}
}

// SubmitResult reports the side effects of an accepted finality proof.
type SubmitResult struct {
	// UnusedProofSize is the number of pre-paid proof bytes not used
	// by the submitted justification, refundable to the submitter.
	UnusedProofSize uint64
	// AuthoritySetChanged is true when the accepted header enacted
	// an authority set change.
	AuthoritySetChanged bool
	// IsFree is true when the accepted header was submittable for free.
	IsFree bool
}

// NewFinalityVerifier creates an uninitialized verifier.
func NewFinalityVerifier(cfg Config) *FinalityVerifier {
	return &FinalityVerifier{
		cfg:       cfg,
		offenders: make(map[AuthorityID]struct{}),
	}
}

// Initialize bootstraps the verifier with a trusted finalized header
// and the authority set valid at that header. It is a privileged call
// and can only happen once.
func (v *FinalityVerifier) Initialize(header types.Header,
	authorities []Authority, setID uint64) error {
	if v.initialized {
		return ErrAlreadyInitialized
	}

	authoritySet, err := NewAuthoritySet(authorities, setID, v.cfg.MaxBridgedAuthorities)
	if err != nil {
		return err
	}

	id, err := common.NewHeaderID(header)
	if err != nil {
		return fmt.Errorf("hashing genesis header: %w", err)
	}

	v.authoritySet = authoritySet
	v.bestFinalized = id
	v.recentHeaders = []storedHeader{{id: id, stateRoot: header.StateRoot, free: true}}
	v.initialized = true

	logger.Infof("%s: initialized at %s with authority set %d",
		v.cfg.ChainName, id, setID)
	return nil
}

// CheckObsolete returns ErrOldHeader if a header with the given number
// would be rejected as not newer than the best finalized header. It is
// used both during execution and as a transaction validity pre-filter,
// so stale submissions never enter the pool.
func (v *FinalityVerifier) CheckObsolete(number uint32) error {
	if !v.initialized {
		return ErrNotInitialized
	}
	if number <= v.bestFinalized.Number {
		return fmt.Errorf("%w: %d <= %d", ErrOldHeader, number, v.bestFinalized.Number)
	}
	return nil
}

// SubmitFinalityProof verifies the justification for the given header
// against the current authority set and, on success, makes the header
// the new best finalized header. A scheduled authority set change
// carried by the header is enacted atomically with the update.
func (v *FinalityVerifier) SubmitFinalityProof(header types.Header,
	justification Justification) (*SubmitResult, error) {
	if !v.initialized {
		return nil, ErrNotInitialized
	}

	id, err := common.NewHeaderID(header)
	if err != nil {
		return nil, fmt.Errorf("hashing header: %w", err)
	}

	err = v.CheckObsolete(id.Number)
	if err != nil {
		return nil, err
	}

	if justification.Commit.TargetHash != id.Hash ||
		justification.Commit.TargetNumber != id.Number {
		return nil, fmt.Errorf("%w: commit target %s, header %s",
			ErrInvalidJustification, justification.Target(), id)
	}

	voters := v.authoritySet.VoterSet()
	if voters == nil {
		return nil, fmt.Errorf("%w: empty voter set", ErrInvalidJustification)
	}

	err = justification.Verify(v.authoritySet.SetID, voters)
	if err != nil {
		return nil, err
	}

	// The header is final; enact a scheduled authority set change
	// before any state is written, so failure leaves state untouched.
	scheduledChange, err := findScheduledChange(header)
	if err != nil {
		return nil, err
	}

	result := &SubmitResult{}
	newAuthoritySet := v.authoritySet
	if scheduledChange != nil {
		newAuthoritySet, err = NewAuthoritySet(scheduledChange.NextAuthorities,
			v.authoritySet.SetID+1, v.cfg.MaxBridgedAuthorities)
		if err != nil {
			return nil, err
		}
		result.AuthoritySetChanged = true
	}

	result.IsFree = v.isFree(id.Number, result.AuthoritySetChanged)
	result.UnusedProofSize = v.unusedProofSize(justification)

	v.authoritySet = newAuthoritySet
	v.bestFinalized = id
	v.recentHeaders = append(v.recentHeaders, storedHeader{
		id:        id,
		stateRoot: header.StateRoot,
		free:      result.IsFree,
	})
	if len(v.recentHeaders) > v.cfg.FinalizedHeadersToKeep {
		v.recentHeaders = v.recentHeaders[len(v.recentHeaders)-v.cfg.FinalizedHeadersToKeep:]
	}

	logger.Debugf("%s: best finalized advanced to %s (set id %d)",
		v.cfg.ChainName, id, v.authoritySet.SetID)
	return result, nil
}

func (v *FinalityVerifier) isFree(number uint32, setChanged bool) bool {
	if setChanged {
		return true
	}
	if v.cfg.FreeHeadersInterval == 0 {
		return false
	}
	return number%v.cfg.FreeHeadersInterval == 0
}

func (v *FinalityVerifier) unusedProofSize(justification Justification) uint64 {
	encoded, err := justification.Encode()
	if err != nil {
		// the justification was already decoded and verified,
		// failing to re-encode it is a local invariant violation
		panic(fmt.Sprintf("re-encoding verified justification: %s", err))
	}

	if len(encoded) >= v.cfg.MaxExpectedProofSize {
		return 0
	}
	return uint64(v.cfg.MaxExpectedProofSize - len(encoded))
}

// BestFinalized returns the best finalized header id of the bridged chain.
func (v *FinalityVerifier) BestFinalized() (common.HeaderID, error) {
	if !v.initialized {
		return common.HeaderID{}, ErrNotInitialized
	}
	return v.bestFinalized, nil
}

// CurrentAuthoritySet returns the current authority set.
func (v *FinalityVerifier) CurrentAuthoritySet() (AuthoritySet, error) {
	if !v.initialized {
		return AuthoritySet{}, ErrNotInitialized
	}
	return v.authoritySet, nil
}

// IsKnownHeader returns whether the given header id was accepted and
// is still within the pruning window of recently finalized headers.
func (v *FinalityVerifier) IsKnownHeader(id common.HeaderID) bool {
	for _, stored := range v.recentHeaders {
		if stored.id == id {
			return true
		}
	}
	return false
}

// IsFreeHeader returns whether the given header was accepted as a
// free submission (mandatory set change or on the free interval).
func (v *FinalityVerifier) IsFreeHeader(id common.HeaderID) bool {
	for _, stored := range v.recentHeaders {
		if stored.id == id {
			return stored.free
		}
	}
	return false
}

// StateRoot returns the state root of a recently finalized header,
// or ErrUnknownHeader if the header was never accepted or was pruned
// out of the recent headers window.
func (v *FinalityVerifier) StateRoot(id common.HeaderID) (common.Hash, error) {
	for _, stored := range v.recentHeaders {
		if stored.id == id {
			return stored.stateRoot, nil
		}
	}
	return common.Hash{}, fmt.Errorf("%w: %s", ErrUnknownHeader, id)
}
