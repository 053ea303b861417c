// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package grandpa

import (
	"errors"
)

// ErrNotInitialized is returned when submitting a proof before the verifier was bootstrapped
var ErrNotInitialized = errors.New("finality verifier is not initialized")

// ErrAlreadyInitialized is returned when trying to bootstrap the verifier twice
var ErrAlreadyInitialized = errors.New("finality verifier is already initialized")

// ErrOldHeader is returned when the submitted header is not newer than the best finalized header
var ErrOldHeader = errors.New("header is older than the best finalized header")

// ErrTooManyAuthoritiesInSet is returned when an authority set exceeds the configured bound
var ErrTooManyAuthoritiesInSet = errors.New("too many authorities in set")

// ErrInvalidSetID is returned when a justification carries a set id other than the current one
var ErrInvalidSetID = errors.New("set IDs do not match")

// ErrInvalidJustification is returned when a justification does not commit to the submitted header
var ErrInvalidJustification = errors.New("justification is not valid for the header")

// ErrInvalidSignature is returned when a precommit signature does not verify
var ErrInvalidSignature = errors.New("signature is not valid")

// ErrVoterNotFound is returned when a precommit was signed by an authority outside the current set
var ErrVoterNotFound = errors.New("voter is not in voter set")

// ErrDuplicateVote is returned when an authority appears twice in the precommits of a justification
var ErrDuplicateVote = errors.New("duplicate vote from authority")

// ErrPrecommitBelowCommit is returned when a precommit targets a block below the commit target
var ErrPrecommitBelowCommit = errors.New("precommit target is below the commit target")

// ErrPrecommitNotDescendant is returned when a precommit target cannot be
// linked to the commit target through the votes ancestries
var ErrPrecommitNotDescendant = errors.New("precommit target is not a descendant of the commit target")

// ErrInsufficientWeight is returned when valid precommits do not reach the supermajority threshold
var ErrInsufficientWeight = errors.New("precommit weight is below the threshold")

// ErrInvalidEquivocation is returned when an equivocation proof does not
// contain two conflicting votes by the same authority
var ErrInvalidEquivocation = errors.New("equivocation proof is not valid")

// ErrUnknownHeader is returned when a header is not in the recently finalized window
var ErrUnknownHeader = errors.New("header is not a recently finalized header")
