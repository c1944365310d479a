package consensus

import (
	"time"

	"github.com/canopy-network/aedpos/lib"
)

/*
	Time slots.

	Miner i of a round owns [expected_i, expected_i + interval). Slots are spaced exactly one interval apart and the
	extra block slot opens one interval after the last one. When the extra block producer fails to terminate the
	round, every other miner gets a fallback window after it, in order, and the cycle of windows repeats until
	somebody terminates.
*/

// withinTolerance() returns true if a and b are at most tolerance apart
func withinTolerance(a, b time.Time, tolerance time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

// IsInSlot() returns true if t is inside the miner's own time slot
func IsInSlot(m *lib.MinerSlot, t time.Time, interval time.Duration) bool {
	return !t.Before(m.ExpectedMiningTime) && t.Before(m.ExpectedMiningTime.Add(interval))
}

// terminationWindow() returns the first window a miner may terminate the round in
func terminationWindow(r *lib.Round, m *lib.MinerSlot, interval time.Duration) time.Time {
	extra := r.ExtraBlockMiningTime(interval)
	if m.IsExtraBlockProducer {
		return extra
	}
	return extra.Add(time.Duration(m.Order) * interval)
}

// terminationCycle() returns the period the termination windows repeat with
func terminationCycle(r *lib.Round, interval time.Duration) time.Duration {
	return time.Duration(r.MinersCount()+1) * interval
}

// ArrangeAbnormalMiningTime() returns the earliest time at or after now the miner may terminate the round.
// The result is never in the past
func ArrangeAbnormalMiningTime(r *lib.Round, pubkey string, now time.Time, interval time.Duration) time.Time {
	m, ok := r.Miners[pubkey]
	if !ok {
		return time.Time{}
	}
	window := terminationWindow(r, m, interval)
	if !now.After(window) {
		return window
	}
	cycle := terminationCycle(r, interval)
	// the number of whole cycles since the first window
	k := now.Sub(window) / cycle
	window = window.Add(k * cycle)
	if now.Before(window.Add(interval)) {
		return now
	}
	return window.Add(cycle)
}

// CanTerminate() returns true if now is inside one of the miner's termination windows
func CanTerminate(r *lib.Round, pubkey string, now time.Time, interval time.Duration) bool {
	if _, ok := r.Miners[pubkey]; !ok {
		return false
	}
	return ArrangeAbnormalMiningTime(r, pubkey, now, interval).Equal(now)
}

// CheckRoundTimes() verifies the slots of a proposed round are spaced by exactly one interval in order and all
// lie after the round's start time
func CheckRoundTimes(r *lib.Round, interval time.Duration) lib.ErrorI {
	list := r.SortedByOrder()
	if len(list) == 0 {
		return lib.ErrNoMiners()
	}
	first := list[0].ExpectedMiningTime
	for _, m := range list {
		if !m.ExpectedMiningTime.After(r.StartTime) {
			return ErrPastMiningTime(m.Pubkey)
		}
		if m.ExpectedMiningTime.Sub(first) != time.Duration(m.Order-list[0].Order)*interval {
			return ErrIntervalMismatch(m.Pubkey)
		}
	}
	return nil
}
