// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package parachains implements the on-chain parachain head tracker.
// It accepts storage proofs of the relay chain `paras.Heads` entries,
// verified against relay chain headers already accepted by the finality
// verifier, and keeps the best known head of each tracked parachain.
package parachains

import (
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"

	"github.com/ChainSafe/parabridge/internal/log"
	"github.com/ChainSafe/parabridge/lib/common"
	"github.com/ChainSafe/parabridge/lib/trie/proof"
)

var logger = log.NewFromGlobal(log.AddContext("pkg", "bridge/parachains"))

// ParaID identifies a parachain on the bridged relay chain.
type ParaID uint32

// ParaHeadHash pairs a parachain id with the hash of the head data
// the submitter claims the storage proof contains. Carrying the
// expected hash in the call lets stale submissions be discarded
// without decoding the proof.
type ParaHeadHash struct {
	ParaID   ParaID
	HeadHash common.Hash
}

// BestParaHead is the latest accepted head of a single parachain.
type BestParaHead struct {
	// AtRelayNumber is the relay chain block the head was read at.
	AtRelayNumber uint32
	// HeadHash is the blake2b hash of the head data.
	HeadHash common.Hash
	// HeadData is the head data itself, the encoded parachain header.
	HeadData []byte
}

type importedHead struct {
	relayNumber uint32
	headHash    common.Hash
}

// RelayChainVerifier is the view of the finality verifier the prover
// needs: membership and freeness of recently finalized relay headers
// and their state roots. *grandpa.FinalityVerifier satisfies it.
type RelayChainVerifier interface {
	IsKnownHeader(id common.HeaderID) bool
	IsFreeHeader(id common.HeaderID) bool
	StateRoot(id common.HeaderID) (common.Hash, error)
}

// Config is the static configuration of a parachain head prover.
type Config struct {
	// MaxParachains bounds the number of parachains per submission.
	MaxParachains int
	// MaxParaHeadDataSize bounds the accepted head data size.
	MaxParaHeadDataSize int
	// HeadsToKeep is how many imported heads are kept per parachain
	// before pruning; it also bounds how far back message proofs may
	// reference a parachain head.
	HeadsToKeep uint32
}

// ParachainHeadProver tracks the best known head of bridged parachains.
// Like the finality verifier it is single-writer by construction.
type ParachainHeadProver struct {
	cfg   Config
	relay RelayChainVerifier

	bestHeads map[ParaID]BestParaHead

	// importedHeads is the per-parachain pruning window of accepted
	// heads, oldest first, the best head included as the last entry.
	importedHeads map[ParaID][]importedHead
}

// UpdateOutcome describes what happened to a single parachain head
// within an accepted submission.
type UpdateOutcome int

const (
	// HeadUpdated means the head was verified and became the best head.
	HeadUpdated UpdateOutcome = iota
	// HeadUnchanged means the submission was read at a relay block not
	// newer than the stored head, so it was skipped. Two relayers
	// racing on the same head land here rather than in an error.
	HeadUnchanged
	// HeadMissingFromProof means the proof carries no value under the
	// parachain's `paras.Heads` key.
	HeadMissingFromProof
	// HeadHashMismatch means the proved head data does not hash to the
	// hash the submitter claimed.
	HeadHashMismatch
	// HeadTooLarge means the proved head data exceeds the configured
	// size bound.
	HeadTooLarge
)

// SubmitHeadsResult reports the per-parachain outcomes of a submission.
type SubmitHeadsResult struct {
	Outcomes map[ParaID]UpdateOutcome
	// UpdatedCount is the number of heads that actually advanced;
	// the unused part of the pre-paid weight is refunded from it.
	UpdatedCount int
}

// NewParachainHeadProver creates a prover reading relay chain finality
// from the given verifier.
func NewParachainHeadProver(cfg Config, relay RelayChainVerifier) *ParachainHeadProver {
	return &ParachainHeadProver{
		cfg:           cfg,
		relay:         relay,
		bestHeads:     make(map[ParaID]BestParaHead),
		importedHeads: make(map[ParaID][]importedHead),
	}
}

// SubmitParachainHeads verifies the storage proof of the given
// parachain heads against the state root of an already finalized relay
// chain header and updates the best head of every parachain whose
// proved head is newer than the stored one. With freeExecutionExpected
// the relay header must additionally be a free header.
//
// Per-parachain verification failures do not fail the call; they are
// reported in the result so a submission proving several parachains
// is not rejected wholesale over one stale entry.
func (p *ParachainHeadProver) SubmitParachainHeads(relayHeader common.HeaderID,
	parachains []ParaHeadHash, storageProof proof.RawStorageProof,
	freeExecutionExpected bool) (*SubmitHeadsResult, error) {
	if len(parachains) == 0 {
		return nil, ErrNoParachains
	}
	if p.cfg.MaxParachains > 0 && len(parachains) > p.cfg.MaxParachains {
		return nil, fmt.Errorf("%w: %d > %d",
			ErrTooManyParachains, len(parachains), p.cfg.MaxParachains)
	}

	if !p.relay.IsKnownHeader(relayHeader) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRelayHeader, relayHeader)
	}
	if freeExecutionExpected && !p.relay.IsFreeHeader(relayHeader) {
		return nil, fmt.Errorf("%w: %s", ErrNotFreeHeader, relayHeader)
	}

	stateRoot, err := p.relay.StateRoot(relayHeader)
	if err != nil {
		return nil, fmt.Errorf("reading relay chain state root: %w", err)
	}

	proofTrie, err := proof.BuildTrie(storageProof, stateRoot[:])
	if err != nil {
		return nil, fmt.Errorf("building trie from storage proof: %w", err)
	}

	result := &SubmitHeadsResult{
		Outcomes: make(map[ParaID]UpdateOutcome, len(parachains)),
	}
	for _, parachain := range parachains {
		key, err := ParasHeadsKey(parachain.ParaID)
		if err != nil {
			return nil, fmt.Errorf("parachain %d heads key: %w", parachain.ParaID, err)
		}

		outcome := p.updateHead(relayHeader, parachain, proofTrie.Get(key))
		result.Outcomes[parachain.ParaID] = outcome
		if outcome == HeadUpdated {
			result.UpdatedCount++
		}
	}

	return result, nil
}

func (p *ParachainHeadProver) updateHead(relayHeader common.HeaderID,
	parachain ParaHeadHash, storedValue []byte) UpdateOutcome {
	if storedValue == nil {
		logger.Debugf("parachain %d: no head in proof at relay block %s",
			parachain.ParaID, relayHeader)
		return HeadMissingFromProof
	}

	// the storage value is the SCALE encoded head data byte vector
	var headData types.Bytes
	err := codec.Decode(storedValue, &headData)
	if err != nil {
		logger.Warnf("parachain %d: undecodable head data in proof: %s",
			parachain.ParaID, err)
		return HeadMissingFromProof
	}

	if p.cfg.MaxParaHeadDataSize > 0 && len(headData) > p.cfg.MaxParaHeadDataSize {
		logger.Warnf("parachain %d: head data size %d exceeds maximum %d",
			parachain.ParaID, len(headData), p.cfg.MaxParaHeadDataSize)
		return HeadTooLarge
	}

	headHash := common.MustBlake2bHash(headData)
	if headHash != parachain.HeadHash {
		logger.Warnf("parachain %d: proved head %s does not match claimed head %s",
			parachain.ParaID, headHash, parachain.HeadHash)
		return HeadHashMismatch
	}

	best, tracked := p.bestHeads[parachain.ParaID]
	if tracked && relayHeader.Number <= best.AtRelayNumber {
		return HeadUnchanged
	}

	p.bestHeads[parachain.ParaID] = BestParaHead{
		AtRelayNumber: relayHeader.Number,
		HeadHash:      headHash,
		HeadData:      headData,
	}
	p.importedHeads[parachain.ParaID] = append(p.importedHeads[parachain.ParaID],
		importedHead{relayNumber: relayHeader.Number, headHash: headHash})
	p.trimImported(parachain.ParaID)

	logger.Debugf("parachain %d: best head advanced to %s at relay block %s",
		parachain.ParaID, headHash, relayHeader)
	return HeadUpdated
}

func (p *ParachainHeadProver) trimImported(paraID ParaID) {
	imported := p.importedHeads[paraID]
	if p.cfg.HeadsToKeep == 0 || uint32(len(imported)) <= p.cfg.HeadsToKeep {
		return
	}
	p.importedHeads[paraID] = imported[uint32(len(imported))-p.cfg.HeadsToKeep:]
}

// BestHead returns the best tracked head of the given parachain.
func (p *ParachainHeadProver) BestHead(paraID ParaID) (BestParaHead, error) {
	best, tracked := p.bestHeads[paraID]
	if !tracked {
		return BestParaHead{}, fmt.Errorf("%w: %d", ErrUnknownParaHead, paraID)
	}
	return best, nil
}

// IsKnownHead returns whether the given head hash is within the
// pruning window of imported heads of the parachain.
func (p *ParachainHeadProver) IsKnownHead(paraID ParaID, headHash common.Hash) bool {
	for _, imported := range p.importedHeads[paraID] {
		if imported.headHash == headHash {
			return true
		}
	}
	return false
}

// PruningUpperBound returns the relay block number below which imported
// parachain heads may be pruned, keeping the most recent HeadsToKeep
// relay blocks worth of heads.
func (p *ParachainHeadProver) PruningUpperBound(bestFinalizedRelayNumber uint32) uint32 {
	if bestFinalizedRelayNumber <= p.cfg.HeadsToKeep {
		return 0
	}
	return bestFinalizedRelayNumber - p.cfg.HeadsToKeep
}

// Prune removes imported heads read at relay blocks below the upper
// bound, removing at most maxHeads entries so a single call has a
// bounded weight. The best head of a parachain is never pruned. It
// returns the number of entries removed.
func (p *ParachainHeadProver) Prune(upperBound uint32, maxHeads int) (pruned int) {
	for paraID, imported := range p.importedHeads {
		kept := imported[:0]
		for i, head := range imported {
			isBest := i == len(imported)-1
			if pruned < maxHeads && head.relayNumber < upperBound && !isBest {
				pruned++
				continue
			}
			kept = append(kept, head)
		}
		p.importedHeads[paraID] = kept
	}
	return pruned
}
