package consensus

import (
	"fmt"
	"time"

	"github.com/canopy-network/aedpos/lib"
	"github.com/canopy-network/aedpos/lib/crypto"
	"github.com/canopy-network/aedpos/secret"
)

/*
	Transaction validation.

	A transaction runs through an ordered chain of validators picked by its claimed behaviour. All of them read a
	single ValidationContext holding one snapshot of the committed state and one read of the clock, and the first
	failure rejects the transaction. Terminating transactions additionally carry a derivation step that computes the
	next round the engine would commit, which the later validators compare the proposal against.
*/

// ValidationContext is the read only input of every validator
type ValidationContext struct {
	Tx       *lib.Transaction
	Current  *lib.Round          // committed current round
	Previous *lib.Round          // committed previous round, nil before round 2
	Now      time.Time           // the authoritative time, read once per transaction
	Config   lib.ConsensusConfig // protocol parameters
	Command  *Command            // the behaviour the state permits for the sender
	Miners   []string            // the ordered miner list of the next term, only for NextTerm
	Log      lib.LoggerI         // logger
	derived  *termination        // set by the derivation step of terminating transactions
}

// Validator checks one aspect of a transaction
type Validator func(vc *ValidationContext) lib.ErrorI

// Pipeline is an ordered chain of validators
type Pipeline []Validator

// Validate() runs the validators in order and stops at the first failure
func (p Pipeline) Validate(vc *ValidationContext) lib.ErrorI {
	for _, v := range p {
		if err := v(vc); err != nil {
			return err
		}
	}
	return nil
}

// PipelineFor() returns the validators of a claimed behaviour
func PipelineFor(b lib.Behaviour) Pipeline {
	common := Pipeline{checkPayload, checkTxSignature, checkRoundNumber, checkPermission, checkClaimedTime, checkBehaviour}
	switch b {
	case lib.BehaviourUpdateValue:
		return append(common, checkOutValue, checkImpliedHeight, checkEncryptedPieces, checkDecryptedPieces)
	case lib.BehaviourTinyBlock:
		return append(common, checkTinyBlockLimit)
	case lib.BehaviourNextRound, lib.BehaviourNextTerm:
		return append(common, checkProposalShape, checkRoundStart, deriveTermination, checkProposalNumbers,
			checkProposalMiners, checkProposalLIB)
	}
	return Pipeline{checkPayload}
}

// checkPayload() verifies the behaviour is known and exactly its payload is set
func checkPayload(vc *ValidationContext) lib.ErrorI {
	tx := vc.Tx
	var has, others bool
	switch tx.Behaviour {
	case lib.BehaviourUpdateValue:
		has, others = tx.UpdateValue != nil, tx.TinyBlock != nil || tx.NextRound != nil
	case lib.BehaviourTinyBlock:
		has, others = tx.TinyBlock != nil, tx.UpdateValue != nil || tx.NextRound != nil
	case lib.BehaviourNextRound, lib.BehaviourNextTerm:
		has, others = tx.NextRound != nil && tx.NextRound.Round != nil, tx.UpdateValue != nil || tx.TinyBlock != nil
	default:
		return ErrUnknownBehaviour(tx.Behaviour)
	}
	if !has || others {
		return ErrEmptyPayload(tx.Behaviour)
	}
	return nil
}

// checkTxSignature() verifies the sender signed the transaction
func checkTxSignature(vc *ValidationContext) lib.ErrorI {
	pub, err := crypto.NewBLSPublicKeyFromString(vc.Tx.Sender)
	if err != nil {
		return ErrInvalidTxSignature()
	}
	bz, e := vc.Tx.SignBytes()
	if e != nil {
		return e
	}
	if !pub.VerifyBytes(bz, vc.Tx.Signature) {
		return ErrInvalidTxSignature()
	}
	return nil
}

// checkRoundNumber() verifies the sender builds on the committed round
func checkRoundNumber(vc *ValidationContext) lib.ErrorI {
	if vc.Tx.RoundNumber != vc.Current.RoundNumber {
		return ErrWrongRoundNumber(vc.Tx.RoundNumber, vc.Current.RoundNumber)
	}
	return nil
}

// checkPermission() verifies the sender is a miner of the current round
func checkPermission(vc *ValidationContext) lib.ErrorI {
	if !vc.Current.IsMiner(vc.Tx.Sender) {
		return ErrPermissionDenied(vc.Tx.Sender)
	}
	return nil
}

// checkClaimedTime() verifies the claimed mining time against the authoritative clock
func checkClaimedTime(vc *ValidationContext) lib.ErrorI {
	claimed := vc.Tx.ClaimedTime()
	if !withinTolerance(claimed, vc.Now, vc.Config.TimeTolerance()) {
		return ErrClaimedTimeDeviation(claimed, vc.Now)
	}
	return nil
}

// checkBehaviour() verifies the claimed behaviour is the one the state permits right now
func checkBehaviour(vc *ValidationContext) lib.ErrorI {
	claimed, cmd := vc.Tx.Behaviour, vc.Command
	slot := vc.Current.Miners[vc.Tx.Sender]
	slotEnd := slot.ExpectedMiningTime.Add(vc.Config.MiningInterval())
	if claimed != cmd.Behaviour {
		switch {
		case claimed == lib.BehaviourTinyBlock && slot.HasMined() && vc.Now.Before(slotEnd):
			return ErrTinyBlockLimit(slot.ProducedTinyBlocks, cmd.MaxBlocks)
		case claimed == lib.BehaviourUpdateValue && !slot.HasMined() && !vc.Now.Before(slotEnd):
			return ErrSlotPassed(slotEnd)
		case isTermination(claimed) && isTermination(cmd.Behaviour):
			return ErrBehaviourMismatch(claimed, cmd.Behaviour)
		case isTermination(claimed):
			return ErrTerminationTooEarly(ArrangeAbnormalMiningTime(vc.Current, vc.Tx.Sender, vc.Now, vc.Config.MiningInterval()))
		}
		return ErrBehaviourMismatch(claimed, cmd.Behaviour)
	}
	if vc.Now.Before(cmd.ArrangedMiningTime) {
		if isTermination(claimed) {
			return ErrTerminationTooEarly(cmd.ArrangedMiningTime)
		}
		return ErrSlotNotStarted(cmd.ArrangedMiningTime)
	}
	return nil
}

// checkOutValue() verifies a new commitment is published
func checkOutValue(vc *ValidationContext) lib.ErrorI {
	if vc.Tx.UpdateValue.OutValue.IsEmpty() {
		return ErrMissingOutValue()
	}
	return nil
}

// checkImpliedHeight() verifies the implied irreversible height never decreases and isn't above the chain
func checkImpliedHeight(vc *ValidationContext) lib.ErrorI {
	implied := vc.Tx.UpdateValue.ImpliedIrreversibleBlockHeight
	stored := vc.Current.Miners[vc.Tx.Sender].ImpliedIrreversibleBlockHeight
	if implied < stored {
		return ErrImpliedHeightRegression(implied, stored)
	}
	// the transaction itself is at the next height
	if height := vc.Current.BlockHeight + 1; implied > height {
		return ErrImpliedHeightTooHigh(implied, height)
	}
	return nil
}

// checkEncryptedPieces() bounds the shares of the sender's new in_value to one per other miner
func checkEncryptedPieces(vc *ValidationContext) lib.ErrorI {
	pieces := vc.Tx.UpdateValue.EncryptedPieces
	limit := vc.Current.MinersCount() - 1
	if !vc.Config.SecretSharingEnabled {
		limit = 0
	}
	if len(pieces) > limit {
		return ErrTooManyPieces(len(pieces), limit)
	}
	for pk, piece := range pieces {
		if pk == vc.Tx.Sender || !vc.Current.IsMiner(pk) {
			return ErrUnknownPieceOwner(pk)
		}
		if len(piece) > secret.MaxSealedPieceSize {
			return ErrPieceTooLarge(len(piece), secret.MaxSealedPieceSize)
		}
	}
	return nil
}

// checkDecryptedPieces() verifies every opened share belongs to a miner of the previous round that sealed one to the sender
func checkDecryptedPieces(vc *ValidationContext) lib.ErrorI {
	pieces := vc.Tx.UpdateValue.DecryptedPieces
	if len(pieces) == 0 {
		return nil
	}
	if !vc.Config.SecretSharingEnabled || vc.Previous == nil {
		return ErrTooManyPieces(len(pieces), 0)
	}
	if limit := vc.Previous.MinersCount() - 1; len(pieces) > limit {
		return ErrTooManyPieces(len(pieces), limit)
	}
	for pk, piece := range pieces {
		owner, ok := vc.Previous.Miners[pk]
		if !ok || pk == vc.Tx.Sender {
			return ErrUnknownPieceOwner(pk)
		}
		if _, sealed := owner.EncryptedPieces[vc.Tx.Sender]; !sealed {
			return ErrUnknownPieceOwner(pk)
		}
		if len(piece) != secret.PieceSize {
			return ErrPieceTooLarge(len(piece), secret.PieceSize)
		}
	}
	return nil
}

// checkTinyBlockLimit() caps the blocks of a slot
func checkTinyBlockLimit(vc *ValidationContext) lib.ErrorI {
	slot := vc.Current.Miners[vc.Tx.Sender]
	if slot.ProducedTinyBlocks >= uint64(vc.Command.MaxBlocks) {
		return ErrTinyBlockLimit(slot.ProducedTinyBlocks, vc.Command.MaxBlocks)
	}
	return nil
}

// checkProposalShape() verifies the proposed orders form a permutation and the slots are evenly spaced in the future
func checkProposalShape(vc *ValidationContext) lib.ErrorI {
	proposal := vc.Tx.NextRound.Round
	if err := proposal.CheckOrders(); err != nil {
		return ErrOrderConflict(err)
	}
	return CheckRoundTimes(proposal, vc.Config.MiningInterval())
}

// checkRoundStart() verifies the first slot of the proposal opens one interval after now
func checkRoundStart(vc *ValidationContext) lib.ErrorI {
	start, expected := vc.Tx.NextRound.Round.RoundStartTime(), vc.Now.Add(vc.Config.MiningInterval())
	if !withinTolerance(start, expected, vc.Config.TimeTolerance()) {
		return ErrRoundStartDeviation(start, expected)
	}
	return nil
}

// deriveTermination() computes the rounds the engine commits, anchored at the proposer's validated start
func deriveTermination(vc *ValidationContext) lib.ErrorI {
	anchor := vc.Tx.NextRound.Round.RoundStartTime().Add(-vc.Config.MiningInterval())
	t, err := DeriveTermination(vc.Current, vc.Previous, vc.Tx.Behaviour, vc.Miners, anchor, vc.Config)
	if err != nil {
		return err
	}
	vc.derived = t
	return nil
}

// checkProposalNumbers() verifies the proposal advances the round and, for a term change, the term by one
func checkProposalNumbers(vc *ValidationContext) lib.ErrorI {
	proposal, expected := vc.Tx.NextRound.Round, vc.derived.next
	if proposal.RoundNumber != expected.RoundNumber {
		return ErrWrongRoundNumber(proposal.RoundNumber, expected.RoundNumber)
	}
	if proposal.TermNumber != expected.TermNumber {
		return ErrWrongTermNumber(proposal.TermNumber, expected.TermNumber)
	}
	return nil
}

// checkProposalMiners() verifies the proposal schedules exactly the derived miners, orders and extra block producer
func checkProposalMiners(vc *ValidationContext) lib.ErrorI {
	proposal, expected := vc.Tx.NextRound.Round, vc.derived.next
	if proposal.MinersCount() != expected.MinersCount() {
		return ErrMinerSetMismatch(fmt.Sprintf("%d miners, expected %d", proposal.MinersCount(), expected.MinersCount()))
	}
	for pk, want := range expected.Miners {
		got, ok := proposal.Miners[pk]
		if !ok {
			return ErrMinerSetMismatch(fmt.Sprintf("%s is missing", lib.ShortString(pk)))
		}
		if got.Order != want.Order {
			return ErrOrderMismatch(pk, got.Order, want.Order)
		}
		if !got.ExpectedMiningTime.Equal(want.ExpectedMiningTime) {
			return ErrIntervalMismatch(pk)
		}
	}
	if got, want := proposal.ExtraBlockProducer(), expected.ExtraBlockProducer(); got.Pubkey != want.Pubkey {
		return ErrExtraProducerWrong(got.Pubkey, want.Pubkey)
	}
	return nil
}

// checkProposalLIB() verifies the proposed irreversible height and round neither regress nor exceed what the
// state justifies
func checkProposalLIB(vc *ValidationContext) lib.ErrorI {
	proposal, derived := vc.Tx.NextRound.Round, vc.derived.next
	if proposed, stored := proposal.ConfirmedIrreversibleHeight, vc.Current.ConfirmedIrreversibleHeight; proposed < stored {
		return ErrLibRegression("height", proposed, stored)
	}
	if proposed, stored := proposal.ConfirmedIrreversibleRound, vc.Current.ConfirmedIrreversibleRound; proposed < stored {
		return ErrLibRegression("round", proposed, stored)
	}
	if proposed, want := proposal.ConfirmedIrreversibleHeight, derived.ConfirmedIrreversibleHeight; proposed > want {
		return ErrLibUnjustified("height", proposed, want)
	}
	if proposed, want := proposal.ConfirmedIrreversibleRound, derived.ConfirmedIrreversibleRound; proposed > want {
		return ErrLibUnjustified("round", proposed, want)
	}
	return nil
}

func isTermination(b lib.Behaviour) bool {
	return b == lib.BehaviourNextRound || b == lib.BehaviourNextTerm
}
