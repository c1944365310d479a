package consensus

import (
	"sort"

	"github.com/canopy-network/aedpos/lib"
)

// closingMissedTimeSlots() returns the missed slots a miner ends the round with, the round counts if it didn't mine
func closingMissedTimeSlots(m *lib.MinerSlot) uint64 {
	if m.HasMined() {
		return m.MissedTimeSlots
	}
	return m.MissedTimeSlots + 1
}

// EvilMiners() returns the miners whose missed slots in the closing term reached the tolerable count, sorted.
// It must run on the closing round, before the per-term counters are reset
func EvilMiners(closing *lib.Round, tolerable uint64) (evil []string) {
	if closing == nil || tolerable == 0 {
		return nil
	}
	for pk, m := range closing.Miners {
		if closingMissedTimeSlots(m) >= tolerable {
			evil = append(evil, pk)
		}
	}
	sort.Strings(evil)
	return
}

// excludeMiners() removes the listed miners while keeping the order of the rest
func excludeMiners(miners, excluded []string) (out []string) {
	skip := make(map[string]struct{}, len(excluded))
	for _, pk := range excluded {
		skip[pk] = struct{}{}
	}
	for _, pk := range miners {
		if _, ok := skip[pk]; !ok {
			out = append(out, pk)
		}
	}
	return
}
