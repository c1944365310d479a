package consensus

import (
	"fmt"
	"sort"
	"time"

	"github.com/canopy-network/aedpos/lib"
	"github.com/canopy-network/aedpos/lib/crypto"
)

// GenerateFirstRound() creates round 1 of term 1 for the genesis miners.
// Orders follow the sorted miner list, slots start one interval after start and the first miner terminates the round
func GenerateFirstRound(miners []string, start time.Time, config lib.ConsensusConfig) (*lib.Round, lib.ErrorI) {
	if err := checkMinerList(miners); err != nil {
		return nil, err
	}
	sorted := append([]string(nil), miners...)
	sort.Strings(sorted)
	start = lib.TruncateTime(start)
	r := newRound(sorted, 1, 1, start, config.MiningInterval())
	r.BlockchainStartTime = start
	r.BlockHeight = 1
	return r, nil
}

// GenerateNextRound() derives the schedule of the round after current within the same term.
// current must be finalized: the miners that didn't mine have their commitments settled already.
// Mined miners take their final orders, the others fill the free orders in their current order
func GenerateNextRound(current *lib.Round, anchor time.Time, config lib.ConsensusConfig) (*lib.Round, lib.ErrorI) {
	if current == nil {
		return nil, lib.ErrNilRound()
	}
	if err := CheckFinalOrders(current); err != nil {
		return nil, ErrStateCorruption(err)
	}
	n, interval := current.MinersCount(), config.MiningInterval()
	next := &lib.Round{
		RoundNumber:                 current.RoundNumber + 1,
		TermNumber:                  current.TermNumber,
		Miners:                      make(map[string]*lib.MinerSlot, n),
		ConfirmedIrreversibleHeight: current.ConfirmedIrreversibleHeight,
		ConfirmedIrreversibleRound:  current.ConfirmedIrreversibleRound,
		StartTime:                   anchor,
		BlockchainStartTime:         current.BlockchainStartTime,
		BlockHeight:                 current.BlockHeight,
	}
	occupied := make([]bool, n+1)
	for _, m := range current.MinedMiners() {
		slot := carrySlot(m, m.FinalOrderOfNextRound, anchor, interval)
		slot.ConsecutiveMissedRounds = 0
		next.Miners[m.Pubkey], occupied[m.FinalOrderOfNextRound] = slot, true
	}
	free := 1
	for _, m := range current.NotMinedMiners() {
		for occupied[free] {
			free++
		}
		slot := carrySlot(m, uint32(free), anchor, interval)
		slot.MissedTimeSlots++
		slot.ConsecutiveMissedRounds++
		next.Miners[m.Pubkey], occupied[free] = slot, true
	}
	extraOrder := nextExtraBlockProducerOrder(current)
	for _, m := range next.Miners {
		m.IsExtraBlockProducer = m.Order == extraOrder
	}
	breakContinuousMining(current, next, interval)
	return next, nil
}

// GenerateFirstRoundOfNewTerm() creates the first round of the term after current for an ordered miner list.
// Per-term counters start over, confirmed heights and implied heights of continuing miners carry over
func GenerateFirstRoundOfNewTerm(miners []string, current *lib.Round, anchor time.Time, config lib.ConsensusConfig) (*lib.Round, lib.ErrorI) {
	if current == nil {
		return nil, lib.ErrNilRound()
	}
	if err := checkMinerList(miners); err != nil {
		return nil, err
	}
	next := newRound(miners, current.RoundNumber+1, current.TermNumber+1, anchor, config.MiningInterval())
	next.ConfirmedIrreversibleHeight = current.ConfirmedIrreversibleHeight
	next.ConfirmedIrreversibleRound = current.ConfirmedIrreversibleRound
	next.BlockchainStartTime = current.BlockchainStartTime
	next.BlockHeight = current.BlockHeight
	for pk, m := range next.Miners {
		if old, ok := current.Miners[pk]; ok {
			m.ImpliedIrreversibleBlockHeight = old.ImpliedIrreversibleBlockHeight
		}
	}
	next.IsMinerListJustChanged = !sameMiners(current, miners)
	return next, nil
}

// newRound() lays out a fresh round for an ordered miner list, the first miner is the extra block producer
func newRound(miners []string, number, term uint64, anchor time.Time, interval time.Duration) *lib.Round {
	r := &lib.Round{
		RoundNumber: number,
		TermNumber:  term,
		Miners:      make(map[string]*lib.MinerSlot, len(miners)),
		StartTime:   anchor,
	}
	for i, pk := range miners {
		order := uint32(i + 1)
		r.Miners[pk] = &lib.MinerSlot{
			Pubkey:               pk,
			Order:                order,
			IsExtraBlockProducer: i == 0,
			ExpectedMiningTime:   anchor.Add(time.Duration(order) * interval),
			PreviousInValue:      lib.NewPendingCommitment(),
		}
	}
	return r
}

// carrySlot() starts the next round slot of a miner from its current one
func carrySlot(m *lib.MinerSlot, order uint32, anchor time.Time, interval time.Duration) *lib.MinerSlot {
	return &lib.MinerSlot{
		Pubkey:                         m.Pubkey,
		Order:                          order,
		ExpectedMiningTime:             anchor.Add(time.Duration(order) * interval),
		PreviousInValue:                lib.NewPendingCommitment(),
		ProducedBlocks:                 m.ProducedBlocks,
		MissedTimeSlots:                m.MissedTimeSlots,
		ConsecutiveMissedRounds:        m.ConsecutiveMissedRounds,
		FallbackUsedInTerm:             m.FallbackUsedInTerm,
		ImpliedIrreversibleBlockHeight: m.ImpliedIrreversibleBlockHeight,
	}
}

// nextExtraBlockProducerOrder() derives the order terminating the next round from the signature of the first
// miner by order that mined the current round, 1 if nobody did
func nextExtraBlockProducerOrder(current *lib.Round) uint32 {
	for _, m := range current.MinedMiners() {
		if m.Signature != nil {
			return AllocateNextOrder(*m.Signature, current.MinersCount())
		}
	}
	return 1
}

// breakContinuousMining() swaps slots so no miner produces two consecutive slots across the round boundary:
// the terminator of the current round doesn't take order 1 and the terminator of the next round doesn't take
// the last order
func breakContinuousMining(current, next *lib.Round, interval time.Duration) {
	n := next.MinersCount()
	if n < 2 {
		return
	}
	byOrder := func(o uint32) *lib.MinerSlot {
		for _, m := range next.Miners {
			if m.Order == o {
				return m
			}
		}
		return nil
	}
	swap := func(a, b *lib.MinerSlot) {
		a.Order, b.Order = b.Order, a.Order
		a.ExpectedMiningTime, b.ExpectedMiningTime = b.ExpectedMiningTime, a.ExpectedMiningTime
	}
	if extra := current.ExtraBlockProducer(); extra != nil {
		if first := byOrder(1); first != nil && first.Pubkey == extra.Pubkey {
			swap(first, byOrder(2))
		}
	}
	if n < 3 {
		return
	}
	if last := byOrder(uint32(n)); last != nil && last.IsExtraBlockProducer {
		swap(last, byOrder(uint32(n-1)))
	}
}

// checkMinerList() rejects empty lists, malformed keys and duplicates
func checkMinerList(miners []string) lib.ErrorI {
	if len(miners) == 0 {
		return lib.ErrNoMiners()
	}
	dedup := lib.NewDeDuplicator[string]()
	for _, pk := range miners {
		if _, err := crypto.NewBLSPublicKeyFromString(pk); err != nil {
			return lib.ErrInvalidPubKey(fmt.Errorf("%s: %w", lib.ShortString(pk), err))
		}
		if dedup.Found(pk) {
			return lib.ErrDuplicateMiner(pk)
		}
	}
	return nil
}

// sameMiners() returns true if the round's miners are exactly the list, regardless of order
func sameMiners(r *lib.Round, miners []string) bool {
	if r.MinersCount() != len(miners) {
		return false
	}
	for _, pk := range miners {
		if !r.IsMiner(pk) {
			return false
		}
	}
	return true
}
