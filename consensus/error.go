package consensus

import (
	"errors"
	"fmt"
	"time"

	"github.com/canopy-network/aedpos/lib"
)

// the categories an operator sees for a rejected transition
const (
	CategoryInvalidCommitment = "InvalidCommitment"
	CategoryOrderConflict     = "OrderConflict"
	CategoryTimeSlotViolation = "TimeSlotViolation"
	CategoryLibRegression     = "LibRegression"
	CategoryPermissionDenied  = "PermissionDenied"
	CategoryStateCorruption   = "StateCorruption"
	CategoryMalformed         = "Malformed"
	CategoryInternal          = "Internal"
)

var categories = map[lib.ErrorCode]string{
	lib.CodeInvalidCommitment:    CategoryInvalidCommitment,
	lib.CodeMissingOutValue:      CategoryInvalidCommitment,
	lib.CodeTooManyPieces:        CategoryInvalidCommitment,
	lib.CodePieceTooLarge:        CategoryInvalidCommitment,
	lib.CodeUnknownPieceOwner:    CategoryInvalidCommitment,
	lib.CodeOrderConflict:        CategoryOrderConflict,
	lib.CodeOrderMismatch:        CategoryOrderConflict,
	lib.CodeMinerSetMismatch:     CategoryOrderConflict,
	lib.CodeExtraProducerWrong:   CategoryOrderConflict,
	lib.CodeTimeSlotViolation:    CategoryTimeSlotViolation,
	lib.CodeClaimedTimeDeviation: CategoryTimeSlotViolation,
	lib.CodeRoundStartDeviation:  CategoryTimeSlotViolation,
	lib.CodeIntervalMismatch:     CategoryTimeSlotViolation,
	lib.CodePastMiningTime:       CategoryTimeSlotViolation,
	lib.CodeTinyBlockLimit:       CategoryTimeSlotViolation,
	lib.CodeTerminationTooEarly:  CategoryTimeSlotViolation,
	lib.CodeSlotNotStarted:       CategoryTimeSlotViolation,
	lib.CodeSlotPassed:           CategoryTimeSlotViolation,
	lib.CodeLibRegression:        CategoryLibRegression,
	lib.CodeLibUnjustified:       CategoryLibRegression,
	lib.CodeImpliedHeightTooHigh: CategoryLibRegression,
	lib.CodePermissionDenied:     CategoryPermissionDenied,
	lib.CodeInvalidTxSignature:   CategoryPermissionDenied,
	lib.CodeBehaviourMismatch:    CategoryPermissionDenied,
	lib.CodeStateCorruption:      CategoryStateCorruption,
	lib.CodeEngineHalted:         CategoryStateCorruption,
	lib.CodeNoGenesis:            CategoryStateCorruption,
	lib.CodeEmptyPayload:         CategoryMalformed,
	lib.CodeUnknownBehaviour:     CategoryMalformed,
	lib.CodeWrongRoundNumber:     CategoryMalformed,
	lib.CodeWrongTermNumber:      CategoryMalformed,
}

// CategoryOf() maps an error to the top level category of rejected transitions
func CategoryOf(err error) string {
	var e lib.ErrorI
	if !errors.As(err, &e) || e.Module() != lib.ConsensusModule {
		return CategoryInternal
	}
	if c, ok := categories[e.Code()]; ok {
		return c
	}
	return CategoryInternal
}

func ErrStateCorruption(err error) lib.ErrorI {
	return lib.NewError(lib.CodeStateCorruption, lib.ConsensusModule, fmt.Sprintf("state corruption: %s", err.Error()))
}

func ErrPermissionDenied(pubkey string) lib.ErrorI {
	return lib.NewError(lib.CodePermissionDenied, lib.ConsensusModule, fmt.Sprintf("%s is not a miner of the current round", lib.ShortString(pubkey)))
}

func ErrBehaviourMismatch(claimed, expected lib.Behaviour) lib.ErrorI {
	return lib.NewError(lib.CodeBehaviourMismatch, lib.ConsensusModule, fmt.Sprintf("claimed behaviour %s but state permits %s", claimed, expected))
}

func ErrWrongRoundNumber(got, expected uint64) lib.ErrorI {
	return lib.NewError(lib.CodeWrongRoundNumber, lib.ConsensusModule, fmt.Sprintf("round number %d, expected %d", got, expected))
}

func ErrWrongTermNumber(got, expected uint64) lib.ErrorI {
	return lib.NewError(lib.CodeWrongTermNumber, lib.ConsensusModule, fmt.Sprintf("term number %d, expected %d", got, expected))
}

func ErrMinerSetMismatch(detail string) lib.ErrorI {
	return lib.NewError(lib.CodeMinerSetMismatch, lib.ConsensusModule, fmt.Sprintf("miner set mismatch: %s", detail))
}

func ErrTinyBlockLimit(produced uint64, max int) lib.ErrorI {
	return lib.NewError(lib.CodeTinyBlockLimit, lib.ConsensusModule, fmt.Sprintf("%d blocks already produced this slot, the limit is %d", produced, max))
}

func ErrInvalidTxSignature() lib.ErrorI {
	return lib.NewError(lib.CodeInvalidTxSignature, lib.ConsensusModule, "transaction signature is invalid")
}

func ErrEmptyPayload(behaviour lib.Behaviour) lib.ErrorI {
	return lib.NewError(lib.CodeEmptyPayload, lib.ConsensusModule, fmt.Sprintf("%s transaction has no payload", behaviour))
}

func ErrMissingOutValue() lib.ErrorI {
	return lib.NewError(lib.CodeMissingOutValue, lib.ConsensusModule, "out_value is empty")
}

func ErrUnknownBehaviour(behaviour lib.Behaviour) lib.ErrorI {
	return lib.NewError(lib.CodeUnknownBehaviour, lib.ConsensusModule, fmt.Sprintf("unknown behaviour %q", behaviour))
}

func ErrTooManyPieces(got, max int) lib.ErrorI {
	return lib.NewError(lib.CodeTooManyPieces, lib.ConsensusModule, fmt.Sprintf("%d pieces exceed the limit of %d", got, max))
}

func ErrPieceTooLarge(size, max int) lib.ErrorI {
	return lib.NewError(lib.CodePieceTooLarge, lib.ConsensusModule, fmt.Sprintf("piece of %d bytes exceeds %d", size, max))
}

func ErrUnknownPieceOwner(pubkey string) lib.ErrorI {
	return lib.NewError(lib.CodeUnknownPieceOwner, lib.ConsensusModule, fmt.Sprintf("piece for %s has no matching miner", lib.ShortString(pubkey)))
}

// field is 'height' or 'round'
func ErrLibRegression(field string, proposed, stored uint64) lib.ErrorI {
	return lib.NewError(lib.CodeLibRegression, lib.ConsensusModule, fmt.Sprintf("irreversible %s %d is below %d", field, proposed, stored))
}

func ErrLibUnjustified(field string, proposed, derived uint64) lib.ErrorI {
	return lib.NewError(lib.CodeLibUnjustified, lib.ConsensusModule, fmt.Sprintf("irreversible %s %d isn't justified, derived %d", field, proposed, derived))
}

func ErrImpliedHeightTooHigh(implied, height uint64) lib.ErrorI {
	return lib.NewError(lib.CodeImpliedHeightTooHigh, lib.ConsensusModule, fmt.Sprintf("implied irreversible height %d is above the chain height %d", implied, height))
}

func ErrImpliedHeightRegression(implied, stored uint64) lib.ErrorI {
	return lib.NewError(lib.CodeLibRegression, lib.ConsensusModule, fmt.Sprintf("implied irreversible height %d is below %d", implied, stored))
}

func ErrClaimedTimeDeviation(claimed, now time.Time) lib.ErrorI {
	return lib.NewError(lib.CodeClaimedTimeDeviation, lib.ConsensusModule, fmt.Sprintf("claimed time %s deviates from %s", claimed.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano)))
}

func ErrRoundStartDeviation(proposed, expected time.Time) lib.ErrorI {
	return lib.NewError(lib.CodeRoundStartDeviation, lib.ConsensusModule, fmt.Sprintf("round start %s deviates from %s", proposed.Format(time.RFC3339Nano), expected.Format(time.RFC3339Nano)))
}

func ErrIntervalMismatch(pubkey string) lib.ErrorI {
	return lib.NewError(lib.CodeIntervalMismatch, lib.ConsensusModule, fmt.Sprintf("slot of %s isn't spaced by the mining interval", lib.ShortString(pubkey)))
}

func ErrPastMiningTime(pubkey string) lib.ErrorI {
	return lib.NewError(lib.CodePastMiningTime, lib.ConsensusModule, fmt.Sprintf("slot of %s isn't after the round start", lib.ShortString(pubkey)))
}

func ErrOrderConflict(err error) lib.ErrorI {
	return lib.NewError(lib.CodeOrderConflict, lib.ConsensusModule, fmt.Sprintf("order conflict: %s", err.Error()))
}

func ErrOrderMismatch(pubkey string, got, expected uint32) lib.ErrorI {
	return lib.NewError(lib.CodeOrderMismatch, lib.ConsensusModule, fmt.Sprintf("order of %s is %d, expected %d", lib.ShortString(pubkey), got, expected))
}

func ErrExtraProducerWrong(got, expected string) lib.ErrorI {
	return lib.NewError(lib.CodeExtraProducerWrong, lib.ConsensusModule, fmt.Sprintf("extra block producer %s, expected %s", lib.ShortString(got), lib.ShortString(expected)))
}

func ErrEngineHalted() lib.ErrorI {
	return lib.NewError(lib.CodeEngineHalted, lib.ConsensusModule, "engine halted after a state corruption")
}

func ErrNoGenesis() lib.ErrorI {
	return lib.NewError(lib.CodeNoGenesis, lib.ConsensusModule, "no round was committed yet")
}

func ErrTerminationTooEarly(arranged time.Time) lib.ErrorI {
	return lib.NewError(lib.CodeTerminationTooEarly, lib.ConsensusModule, fmt.Sprintf("the round can't be terminated by this miner before %s", arranged.Format(time.RFC3339Nano)))
}

func ErrSlotNotStarted(start time.Time) lib.ErrorI {
	return lib.NewError(lib.CodeSlotNotStarted, lib.ConsensusModule, fmt.Sprintf("time slot starts at %s", start.Format(time.RFC3339Nano)))
}

func ErrSlotPassed(end time.Time) lib.ErrorI {
	return lib.NewError(lib.CodeSlotPassed, lib.ConsensusModule, fmt.Sprintf("time slot ended at %s", end.Format(time.RFC3339Nano)))
}
