package consensus

import (
	"fmt"
	"sort"

	"github.com/bits-and-blooms/bitset"
	"github.com/canopy-network/aedpos/lib"
	"github.com/canopy-network/aedpos/lib/crypto"
)

/*
	Next round order allocation.

	Every miner that mines a round derives a supposed order of the next round from its signature. Two miners may land
	on the same order: the first one in the fixed processing order keeps it, the others are moved to the lowest
	orders nobody claimed. The final orders of the mined miners are always distinct, and the miners that didn't mine
	fill the remaining orders when the next round is generated, so the next round is a permutation of [1, n].
*/

// AllocateNextOrder() maps a signature to an order in [1, minersCount]
func AllocateNextOrder(signature crypto.Hash, minersCount int) uint32 {
	if minersCount <= 0 {
		return 0
	}
	return uint32(absInt64(signature.Int64())%uint64(minersCount)) + 1
}

// absInt64() returns |v| as unsigned, math.MinInt64 has no signed absolute value
func absInt64(v int64) uint64 {
	if v < 0 {
		return uint64(-(v + 1)) + 1
	}
	return uint64(v)
}

// processingOrder() sorts the miners in the fixed order collisions are resolved in
func processingOrder(miners []*lib.MinerSlot, ordering string) []*lib.MinerSlot {
	list := append([]*lib.MinerSlot(nil), miners...)
	sort.SliceStable(list, func(i, j int) bool {
		if ordering == lib.OrderByPubkey || list[i].Order == list[j].Order {
			return list[i].Pubkey < list[j].Pubkey
		}
		return list[i].Order < list[j].Order
	})
	return list
}

// ResolveFinalOrders() assigns distinct final orders to the miners that mined the round.
// Direct claims are placed first in processing order, then each colliding miner takes the lowest unclaimed order
func ResolveFinalOrders(mined []*lib.MinerSlot, minersCount int, ordering string) (map[string]uint32, lib.ErrorI) {
	if len(mined) > minersCount {
		return nil, ErrStateCorruption(fmt.Errorf("%d mined miners in a round of %d", len(mined), minersCount))
	}
	// bit 0 is never a valid order
	occupied := bitset.New(uint(minersCount + 1)).Set(0)
	final := make(map[string]uint32, len(mined))
	var collided []*lib.MinerSlot
	for _, m := range processingOrder(mined, ordering) {
		supposed := m.SupposedOrderOfNextRound
		if supposed < 1 || int(supposed) > minersCount {
			return nil, ErrStateCorruption(fmt.Errorf("supposed order %d of %s outside [1, %d]", supposed, lib.ShortString(m.Pubkey), minersCount))
		}
		if occupied.Test(uint(supposed)) {
			collided = append(collided, m)
			continue
		}
		occupied.Set(uint(supposed))
		final[m.Pubkey] = supposed
	}
	for _, m := range collided {
		free, ok := occupied.NextClear(1)
		if !ok || int(free) > minersCount {
			return nil, ErrStateCorruption(fmt.Errorf("no free order left for %s", lib.ShortString(m.Pubkey)))
		}
		occupied.Set(free)
		final[m.Pubkey] = uint32(free)
	}
	return final, nil
}

// applyFinalOrders() recomputes the final orders of every mined miner of the round in place
func applyFinalOrders(r *lib.Round, ordering string) lib.ErrorI {
	final, err := ResolveFinalOrders(r.MinedMiners(), r.MinersCount(), ordering)
	if err != nil {
		return err
	}
	for pk, m := range r.Miners {
		m.FinalOrderOfNextRound = final[pk]
	}
	return nil
}

// CheckFinalOrders() verifies the final orders of the mined miners are distinct values in [1, n]
func CheckFinalOrders(r *lib.Round) error {
	n := r.MinersCount()
	seen := bitset.New(uint(n + 1))
	for _, m := range r.MinedMiners() {
		o := m.FinalOrderOfNextRound
		if o < 1 || int(o) > n {
			return fmt.Errorf("final order %d of %s outside [1, %d]", o, lib.ShortString(m.Pubkey), n)
		}
		if seen.Test(uint(o)) {
			return fmt.Errorf("final order %d assigned twice", o)
		}
		seen.Set(uint(o))
	}
	return nil
}
