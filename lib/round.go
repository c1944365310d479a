package lib

import (
	"fmt"
	"sort"
	"time"

	"github.com/canopy-network/aedpos/lib/crypto"
)

/*
	This file defines the round state model: one Round per consensus epoch segment, holding a MinerSlot for each miner.
	A committed Round is never mutated in place, transitions Clone() it and commit the clone as a whole.
*/

// CommitmentState is the explicit state of a miner's revealed previous in_value
type CommitmentState string

const (
	CommitmentPending       CommitmentState = "pending"       // nothing revealed yet this round
	CommitmentRevealed      CommitmentState = "revealed"      // revealed by the miner and Hash(value) matched its out_value
	CommitmentReconstructed CommitmentState = "reconstructed" // recovered from secret shares and Hash(value) matched its out_value
	CommitmentFallback      CommitmentState = "fallback"      // the once-per-term Hash(pubkey || height) substitute
	CommitmentInvalidated   CommitmentState = "invalidated"   // revealed but didn't match, the sentinel is used everywhere
	CommitmentWithheld      CommitmentState = "withheld"      // the miner committed an out_value but revealed nothing
	CommitmentUnavailable   CommitmentState = "unavailable"   // there was no commitment to reveal (new miner, or didn't mine last round)
	CommitmentMissed        CommitmentState = "missed"        // the miner didn't mine and nothing could stand in for it
)

// Commitment is the tagged variant holding a miner's previous in_value
type Commitment struct {
	State CommitmentState `json:"state"`
	Value *crypto.Hash    `json:"value,omitempty"` // only set for revealed, reconstructed and fallback
}

// NewPendingCommitment() returns the initial state of a slot
func NewPendingCommitment() Commitment { return Commitment{State: CommitmentPending} }

// IsUsable() returns true if the value is trusted for signature derivation
func (c Commitment) IsUsable() bool {
	switch c.State {
	case CommitmentRevealed, CommitmentReconstructed, CommitmentFallback:
		return c.Value != nil
	}
	return false
}

// SignatureInput() returns the value fed into the signature, the sentinel unless the value is usable
func (c Commitment) SignatureInput() crypto.Hash {
	if c.IsUsable() {
		return *c.Value
	}
	return crypto.EmptyHash
}

// Behaviour is the kind of a round-advancing transaction
type Behaviour string

const (
	BehaviourNothing     Behaviour = "Nothing"
	BehaviourUpdateValue Behaviour = "UpdateValue"
	BehaviourTinyBlock   Behaviour = "TinyBlock"
	BehaviourNextRound   Behaviour = "NextRound"
	BehaviourNextTerm    Behaviour = "NextTerm"
)

// MinerSlot is the per-miner state within a round
type MinerSlot struct {
	Pubkey                         string              `json:"pubkey"`
	Order                          uint32              `json:"order"`
	IsExtraBlockProducer           bool                `json:"isExtraBlockProducer"`
	ExpectedMiningTime             time.Time           `json:"expectedMiningTime"`
	ActualMiningTimes              []time.Time         `json:"actualMiningTimes"`
	OutValue                       *crypto.Hash        `json:"outValue,omitempty"`
	Signature                      *crypto.Hash        `json:"signature,omitempty"`
	PreviousInValue                Commitment          `json:"previousInValue"`
	SupposedOrderOfNextRound       uint32              `json:"supposedOrderOfNextRound"`
	FinalOrderOfNextRound          uint32              `json:"finalOrderOfNextRound"`
	ProducedBlocks                 uint64              `json:"producedBlocks"`     // blocks produced in the current term
	ProducedTinyBlocks             uint64              `json:"producedTinyBlocks"` // blocks produced in this round
	MissedTimeSlots                uint64              `json:"missedTimeSlots"`    // slots missed in the current term
	ConsecutiveMissedRounds        uint64              `json:"consecutiveMissedRounds"`
	FallbackUsedInTerm             bool                `json:"fallbackUsedInTerm"`
	ImpliedIrreversibleBlockHeight uint64              `json:"impliedIrreversibleBlockHeight"`
	EncryptedPieces                map[string]HexBytes `json:"encryptedPieces,omitempty"` // shares of this miner's in_value, keyed by recipient
	DecryptedPieces                map[string]HexBytes `json:"decryptedPieces,omitempty"` // shares of other miners' in_values opened by this miner, keyed by owner
}

// HasMined() returns true once the miner published an out_value this round
func (m *MinerSlot) HasMined() bool { return m.OutValue != nil }

// LatestActualMiningTime() returns the last time this miner produced, or the zero time
func (m *MinerSlot) LatestActualMiningTime() time.Time {
	if len(m.ActualMiningTimes) == 0 {
		return time.Time{}
	}
	return m.ActualMiningTimes[len(m.ActualMiningTimes)-1]
}

// Clone() deep copies the slot
func (m *MinerSlot) Clone() *MinerSlot {
	if m == nil {
		return nil
	}
	c := *m
	c.ActualMiningTimes = append([]time.Time(nil), m.ActualMiningTimes...)
	c.OutValue = cloneHash(m.OutValue)
	c.Signature = cloneHash(m.Signature)
	c.PreviousInValue = Commitment{State: m.PreviousInValue.State, Value: cloneHash(m.PreviousInValue.Value)}
	c.EncryptedPieces = clonePieces(m.EncryptedPieces)
	c.DecryptedPieces = clonePieces(m.DecryptedPieces)
	return &c
}

// Round identifies a fixed-duration consensus epoch segment
type Round struct {
	RoundNumber                       uint64                `json:"roundNumber"`
	TermNumber                        uint64                `json:"termNumber"`
	Miners                            map[string]*MinerSlot `json:"miners"`
	ConfirmedIrreversibleHeight       uint64                `json:"confirmedIrreversibleHeight"`
	ConfirmedIrreversibleRound        uint64                `json:"confirmedIrreversibleRound"`
	StartTime                         time.Time             `json:"startTime"`           // the time the round was generated
	BlockchainStartTime               time.Time             `json:"blockchainStartTime"` // the time of the first round of the chain
	ExtraBlockProducerOfPreviousRound string                `json:"extraBlockProducerOfPreviousRound"`
	BlockHeight                       uint64                `json:"blockHeight"` // the chain height at the last transition applied to this round
	IsMinerListJustChanged            bool                  `json:"isMinerListJustChanged"`
}

// Clone() deep copies the round, the result shares no memory with the receiver
func (r *Round) Clone() *Round {
	if r == nil {
		return nil
	}
	c := *r
	c.Miners = make(map[string]*MinerSlot, len(r.Miners))
	for k, m := range r.Miners {
		c.Miners[k] = m.Clone()
	}
	return &c
}

// MinersCount() returns the number of miners in the round
func (r *Round) MinersCount() int { return len(r.Miners) }

// IsMiner() returns true if pubkey is in the miner table
func (r *Round) IsMiner(pubkey string) bool {
	_, ok := r.Miners[pubkey]
	return ok
}

// SortedByOrder() returns the miners ascending by order of this round
func (r *Round) SortedByOrder() []*MinerSlot {
	list := make([]*MinerSlot, 0, len(r.Miners))
	for _, m := range r.Miners {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Order == list[j].Order {
			return list[i].Pubkey < list[j].Pubkey
		}
		return list[i].Order < list[j].Order
	})
	return list
}

// MinerList() returns the miner public keys ascending by order
func (r *Round) MinerList() []string {
	var out []string
	for _, m := range r.SortedByOrder() {
		out = append(out, m.Pubkey)
	}
	return out
}

// MinedMiners() returns the miners that published an out_value this round, ascending by order
func (r *Round) MinedMiners() (out []*MinerSlot) {
	for _, m := range r.SortedByOrder() {
		if m.HasMined() {
			out = append(out, m)
		}
	}
	return
}

// NotMinedMiners() returns the miners without an out_value this round, ascending by order
func (r *Round) NotMinedMiners() (out []*MinerSlot) {
	for _, m := range r.SortedByOrder() {
		if !m.HasMined() {
			out = append(out, m)
		}
	}
	return
}

// FirstMiner() returns the miner with order 1
func (r *Round) FirstMiner() *MinerSlot {
	list := r.SortedByOrder()
	if len(list) == 0 {
		return nil
	}
	return list[0]
}

// LastMiner() returns the miner with the highest order
func (r *Round) LastMiner() *MinerSlot {
	list := r.SortedByOrder()
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// ExtraBlockProducer() returns the miner flagged to terminate this round
func (r *Round) ExtraBlockProducer() *MinerSlot {
	for _, m := range r.Miners {
		if m.IsExtraBlockProducer {
			return m
		}
	}
	return nil
}

// RoundStartTime() returns the expected mining time of the first slot
func (r *Round) RoundStartTime() time.Time {
	if first := r.FirstMiner(); first != nil {
		return first.ExpectedMiningTime
	}
	return time.Time{}
}

// ExtraBlockMiningTime() returns the time the extra block slot opens: one interval after the last slot
func (r *Round) ExtraBlockMiningTime(interval time.Duration) time.Time {
	if last := r.LastMiner(); last != nil {
		return last.ExpectedMiningTime.Add(interval)
	}
	return time.Time{}
}

// CheckOrders() verifies that orders form a permutation of [1, n] and exactly one extra block producer is flagged
func (r *Round) CheckOrders() error {
	n := len(r.Miners)
	if n == 0 {
		return fmt.Errorf("round %d has no miners", r.RoundNumber)
	}
	seen := make([]bool, n+1)
	extra := 0
	for pk, m := range r.Miners {
		if pk != m.Pubkey {
			return fmt.Errorf("miner table key %s doesn't match slot %s", ShortString(pk), ShortString(m.Pubkey))
		}
		if m.Order < 1 || int(m.Order) > n {
			return fmt.Errorf("order %d of %s outside [1, %d]", m.Order, ShortString(pk), n)
		}
		if seen[m.Order] {
			return fmt.Errorf("order %d assigned twice", m.Order)
		}
		seen[m.Order] = true
		if m.IsExtraBlockProducer {
			extra++
		}
	}
	if extra != 1 {
		return fmt.Errorf("round %d flags %d extra block producers", r.RoundNumber, extra)
	}
	return nil
}

func cloneHash(h *crypto.Hash) *crypto.Hash {
	if h == nil {
		return nil
	}
	c := *h
	return &c
}

func clonePieces(m map[string]HexBytes) map[string]HexBytes {
	if m == nil {
		return nil
	}
	out := make(map[string]HexBytes, len(m))
	for k, v := range m {
		out[k] = append(HexBytes(nil), v...)
	}
	return out
}
