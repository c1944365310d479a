package consensus

import (
	"encoding/binary"

	"github.com/canopy-network/aedpos/lib"
	"github.com/canopy-network/aedpos/lib/crypto"
	"github.com/canopy-network/aedpos/secret"
)

/*
	Commit-reveal of in-values.

	In round k a miner publishes out_value = Hash(in_value). In round k+1 it reveals in_value, which is checked
	against the stored out_value. The signature of round k+1 is the revealed value folded with all signatures of
	round k.
	Whenever no trusted value exists the sentinel crypto.EmptyHash takes its place.
*/

// CalculateSignature() folds an in_value with every signature of the previous round
func CalculateSignature(inValue crypto.Hash, previous *lib.Round) crypto.Hash {
	if previous == nil {
		return inValue
	}
	var signatures []crypto.Hash
	for _, pk := range lib.SortedKeys(previous.Miners) {
		if s := previous.Miners[pk].Signature; s != nil {
			signatures = append(signatures, *s)
		}
	}
	return inValue.Xor(crypto.XorFold(signatures...))
}

// previousOutValue() returns the out_value a miner committed to in the previous round, nil if there is none
func previousOutValue(pubkey string, previous *lib.Round) *crypto.Hash {
	if previous == nil {
		return nil
	}
	m, ok := previous.Miners[pubkey]
	if !ok {
		return nil
	}
	return m.OutValue
}

// Reveal() checks a revealed in_value against the miner's previous commitment and derives its signature.
// The signature is computed from the trusted value only, the sentinel otherwise
func Reveal(pubkey string, revealed *crypto.Hash, previous *lib.Round) (lib.Commitment, crypto.Hash) {
	var c lib.Commitment
	switch out := previousOutValue(pubkey, previous); {
	case out == nil:
		c = lib.Commitment{State: lib.CommitmentUnavailable}
	case revealed == nil:
		c = lib.Commitment{State: lib.CommitmentWithheld}
	case crypto.Sum(revealed.Bytes()) == *out:
		c = lib.Commitment{State: lib.CommitmentRevealed, Value: revealed.Ptr()}
	default:
		c = lib.Commitment{State: lib.CommitmentInvalidated}
	}
	return c, CalculateSignature(c.SignatureInput(), previous)
}

// FallbackValue() is the deterministic stand-in for a lost in_value: Hash(pubkey || height)
func FallbackValue(pubkey string, height uint64) crypto.Hash {
	h := make([]byte, 8)
	binary.BigEndian.PutUint64(h, height)
	return crypto.Sum([]byte(pubkey), h)
}

// ShareIndex() returns the holder index of a recipient among the miners a secret was split for
func ShareIndex(r *lib.Round, pubkey string) int {
	for i, pk := range lib.SortedKeys(r.Miners) {
		if pk == pubkey {
			return i
		}
	}
	return -1
}

// ShareThreshold() returns the pieces needed to recover an in_value shared among the miners of a round
func ShareThreshold(r *lib.Round, config lib.ConsensusConfig) int {
	return secret.Threshold(r.MinersCount(), config.QuorumNumerator, config.QuorumDenominator)
}

// ReconstructInValue() recovers the in_value a miner committed to in the previous round from the pieces the
// miners of the current round decrypted. The result is returned only if it hashes to the committed out_value
func ReconstructInValue(pubkey string, current, previous *lib.Round, config lib.ConsensusConfig) (crypto.Hash, bool) {
	out := previousOutValue(pubkey, previous)
	if out == nil {
		return crypto.EmptyHash, false
	}
	var pieces []lib.HexBytes
	for _, pk := range lib.SortedKeys(current.Miners) {
		if piece, ok := current.Miners[pk].DecryptedPieces[pubkey]; ok {
			pieces = append(pieces, piece)
		}
	}
	threshold := ShareThreshold(previous, config)
	if len(pieces) < threshold {
		return crypto.EmptyHash, false
	}
	value, err := secret.Recover(pieces, threshold, previous.MinersCount())
	if err != nil {
		return crypto.EmptyHash, false
	}
	if crypto.Sum(value.Bytes()) != *out {
		return crypto.EmptyHash, false
	}
	return value, true
}

// SupplyMissedMiners() settles the commitment and signature of every miner that didn't mine the round.
// In turn it tries reconstruction from secret shares, the once-per-term fallback value and the sentinel
func SupplyMissedMiners(current, previous *lib.Round, config lib.ConsensusConfig) {
	for _, m := range current.NotMinedMiners() {
		var (
			value crypto.Hash
			ok    bool
		)
		if config.SecretSharingEnabled {
			value, ok = ReconstructInValue(m.Pubkey, current, previous, config)
		}
		switch {
		case ok:
			m.PreviousInValue = lib.Commitment{State: lib.CommitmentReconstructed, Value: value.Ptr()}
		case m.ConsecutiveMissedRounds+1 >= config.FallbackAfterMissedRounds && !m.FallbackUsedInTerm:
			m.PreviousInValue = lib.Commitment{State: lib.CommitmentFallback, Value: FallbackValue(m.Pubkey, current.BlockHeight).Ptr()}
			m.FallbackUsedInTerm = true
		default:
			m.PreviousInValue = lib.Commitment{State: lib.CommitmentMissed}
		}
		m.Signature = CalculateSignature(m.PreviousInValue.SignatureInput(), previous).Ptr()
	}
}
