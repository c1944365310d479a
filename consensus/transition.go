package consensus

import (
	"fmt"
	"time"

	"github.com/canopy-network/aedpos/lib"
)

// transition is the outcome of applying a transaction: the rounds to commit and the snapshot after the commit
type transition struct {
	behaviour lib.Behaviour
	commit    []*lib.Round // rounds written in one store transaction
	current   *lib.Round   // the current round after the commit
	previous  *lib.Round   // the previous round after the commit
	evil      []string     // miners reported at a term change
}

// termination is the derived outcome of ending the current round
type termination struct {
	finalized *lib.Round // the current round with the missed miners settled, archived as the previous round
	next      *lib.Round // the round that becomes current
}

// DeriveTermination() finalizes a clone of the current round and derives the round that replaces it.
// miners is the ordered list of the next term and is only used by NextTerm
func DeriveTermination(current, previous *lib.Round, behaviour lib.Behaviour, miners []string, anchor time.Time,
	config lib.ConsensusConfig) (*termination, lib.ErrorI) {
	finalized := current.Clone()
	SupplyMissedMiners(finalized, previous, config)
	var (
		next *lib.Round
		err  lib.ErrorI
	)
	switch behaviour {
	case lib.BehaviourNextRound:
		next, err = GenerateNextRound(finalized, anchor, config)
	case lib.BehaviourNextTerm:
		next, err = GenerateFirstRoundOfNewTerm(miners, finalized, anchor, config)
	default:
		return nil, ErrUnknownBehaviour(behaviour)
	}
	if err != nil {
		return nil, err
	}
	return &termination{finalized: finalized, next: next}, nil
}

// apply() executes a validated transaction on a clone of the committed state
func apply(vc *ValidationContext) (*transition, lib.ErrorI) {
	switch vc.Tx.Behaviour {
	case lib.BehaviourUpdateValue:
		return applyUpdateValue(vc)
	case lib.BehaviourTinyBlock:
		return applyTinyBlock(vc)
	case lib.BehaviourNextRound, lib.BehaviourNextTerm:
		return applyTermination(vc)
	}
	return nil, ErrUnknownBehaviour(vc.Tx.Behaviour)
}

// applyUpdateValue() records the reveal and the new commitment of the sender, re-resolves the next round orders
// and advances the LIB
func applyUpdateValue(vc *ValidationContext) (*transition, lib.ErrorI) {
	in, next := vc.Tx.UpdateValue, vc.Current.Clone()
	slot := next.Miners[vc.Tx.Sender]
	commitment, signature := Reveal(vc.Tx.Sender, in.PreviousInValue, vc.Previous)
	if commitment.State == lib.CommitmentInvalidated {
		vc.Log.Warnf("Revealed in_value of %s doesn't match its out_value, using the sentinel", lib.ShortString(vc.Tx.Sender))
	}
	slot.OutValue = in.OutValue.Ptr()
	slot.Signature = signature.Ptr()
	slot.PreviousInValue = commitment
	slot.SupposedOrderOfNextRound = AllocateNextOrder(signature, next.MinersCount())
	if err := applyFinalOrders(next, vc.Config.CollisionOrdering); err != nil {
		return nil, err
	}
	// the blocks the previous terminator produced before the first slot share the cap of its own slot
	slot.ActualMiningTimes = append(slot.ActualMiningTimes, vc.Now)
	slot.ProducedBlocks++
	slot.ProducedTinyBlocks++
	slot.ImpliedIrreversibleBlockHeight = in.ImpliedIrreversibleBlockHeight
	slot.EncryptedPieces = copyPieces(in.EncryptedPieces)
	slot.DecryptedPieces = copyPieces(in.DecryptedPieces)
	logHints(vc, slot, in)
	next.BlockHeight++
	if advanceLIB(next, vc.Previous, vc.Config) {
		vc.Log.Infof("Irreversible height advanced to %d (round %d)", next.ConfirmedIrreversibleHeight, next.ConfirmedIrreversibleRound)
	}
	return &transition{behaviour: vc.Tx.Behaviour, commit: []*lib.Round{next}, current: next, previous: vc.Previous}, nil
}

// applyTinyBlock() counts one more block in the sender's slot
func applyTinyBlock(vc *ValidationContext) (*transition, lib.ErrorI) {
	next := vc.Current.Clone()
	slot := next.Miners[vc.Tx.Sender]
	if hint := vc.Tx.TinyBlock.ProducedBlocks; hint != 0 && hint != slot.ProducedBlocks+1 {
		vc.Log.Debugf("Ignoring produced blocks hint %d of %s", hint, lib.ShortString(vc.Tx.Sender))
	}
	slot.ActualMiningTimes = append(slot.ActualMiningTimes, vc.Now)
	slot.ProducedBlocks++
	slot.ProducedTinyBlocks++
	next.BlockHeight++
	return &transition{behaviour: vc.Tx.Behaviour, commit: []*lib.Round{next}, current: next, previous: vc.Previous}, nil
}

// applyTermination() archives the finalized current round and makes the derived round current.
// The terminating block is the sender's first block of the new round
func applyTermination(vc *ValidationContext) (*transition, lib.ErrorI) {
	if vc.derived == nil {
		return nil, ErrStateCorruption(fmt.Errorf("termination wasn't derived"))
	}
	finalized, next := vc.derived.finalized, vc.derived.next.Clone()
	next.ExtraBlockProducerOfPreviousRound = vc.Tx.Sender
	next.BlockHeight = vc.Current.BlockHeight + 1
	if slot, ok := next.Miners[vc.Tx.Sender]; ok {
		slot.ProducedBlocks++
		slot.ProducedTinyBlocks = 1
		slot.ActualMiningTimes = []time.Time{vc.Now}
	}
	t := &transition{behaviour: vc.Tx.Behaviour, commit: []*lib.Round{finalized, next}, current: next, previous: finalized}
	if vc.Tx.Behaviour == lib.BehaviourNextTerm {
		t.evil = EvilMiners(vc.Current, vc.Config.TolerableMissedTimeSlots)
	}
	return t, nil
}

// logHints() reports informational fields that disagree with what the engine derived
func logHints(vc *ValidationContext, slot *lib.MinerSlot, in *lib.UpdateValueInput) {
	sender := lib.ShortString(vc.Tx.Sender)
	if in.Signature != nil && *in.Signature != *slot.Signature {
		vc.Log.Debugf("Ignoring signature hint of %s", sender)
	}
	if in.SupposedOrderOfNextRound != 0 && in.SupposedOrderOfNextRound != slot.SupposedOrderOfNextRound {
		vc.Log.Debugf("Ignoring supposed order hint %d of %s, derived %d", in.SupposedOrderOfNextRound, sender, slot.SupposedOrderOfNextRound)
	}
	if in.ProducedBlocks != 0 && in.ProducedBlocks != slot.ProducedBlocks {
		vc.Log.Debugf("Ignoring produced blocks hint %d of %s", in.ProducedBlocks, sender)
	}
}

func copyPieces(m map[string]lib.HexBytes) map[string]lib.HexBytes {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]lib.HexBytes, len(m))
	for k, v := range m {
		out[k] = append(lib.HexBytes(nil), v...)
	}
	return out
}
