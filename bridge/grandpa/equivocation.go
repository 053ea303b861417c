// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package grandpa

import (
	"fmt"
)

// EquivocationProof is evidence that an authority produced two
// conflicting precommits in the same round of the same authority set.
type EquivocationProof struct {
	SetID  uint64
	Round  uint64
	First  SignedPrecommit
	Second SignedPrecommit
}

// Offender returns the equivocating authority.
func (p EquivocationProof) Offender() AuthorityID {
	return p.First.ID
}

// Verify checks the equivocation proof: both votes must be signed by
// the same authority, target different blocks and carry valid
// signatures for the proof's round and set id.
func (p EquivocationProof) Verify() error {
	if p.First.ID != p.Second.ID {
		return fmt.Errorf("%w: votes by different authorities", ErrInvalidEquivocation)
	}

	if p.First.Precommit == p.Second.Precommit {
		return fmt.Errorf("%w: votes for the same target", ErrInvalidEquivocation)
	}

	if !verifyPrecommitSignature(p.First, p.Round, p.SetID) ||
		!verifyPrecommitSignature(p.Second, p.Round, p.SetID) {
		return fmt.Errorf("%w: %s", ErrInvalidEquivocation, ErrInvalidSignature)
	}

	return nil
}

// ReportEquivocation verifies and records an equivocation proof
// against the reported set id. The offender is remembered so the
// embedding runtime can apply its slashing policy.
func (v *FinalityVerifier) ReportEquivocation(proof EquivocationProof) error {
	if !v.initialized {
		return ErrNotInitialized
	}

	err := proof.Verify()
	if err != nil {
		return err
	}

	offender := proof.Offender()
	v.offenders[offender] = struct{}{}
	logger.Warnf("%s: equivocation by authority 0x%x in round %d (set id %d)",
		v.cfg.ChainName, offender, proof.Round, proof.SetID)
	return nil
}

// IsOffender returns whether an accepted equivocation report exists
// for the given authority.
func (v *FinalityVerifier) IsOffender(id AuthorityID) bool {
	_, ok := v.offenders[id]
	return ok
}
