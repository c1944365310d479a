package consensus

import (
	"sort"

	"github.com/canopy-network/aedpos/lib"
)

// ComputeLIB() derives the last irreversible block height from the heights the miners of the current round implied
// in the previous round. Only miners that already mined the current round count, and only once more than the quorum
// of the previous round's miners did. The lowest LibToleranceNumerator/LibToleranceDenominator of the heights are
// skipped. ok is false when no height can be derived
func ComputeLIB(current, previous *lib.Round, config lib.ConsensusConfig) (height uint64, ok bool) {
	if current == nil || previous == nil {
		return 0, false
	}
	var heights []uint64
	for _, m := range current.MinedMiners() {
		p, found := previous.Miners[m.Pubkey]
		if !found || p.ImpliedIrreversibleBlockHeight == 0 {
			continue
		}
		heights = append(heights, p.ImpliedIrreversibleBlockHeight)
	}
	if !config.ReachesQuorum(len(heights), previous.MinersCount()) {
		return 0, false
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	return heights[config.LibIndex(len(heights))], true
}

// advanceLIB() raises the confirmed irreversible height of the round if a higher one can be derived
func advanceLIB(current, previous *lib.Round, config lib.ConsensusConfig) bool {
	height, ok := ComputeLIB(current, previous, config)
	if !ok || height <= current.ConfirmedIrreversibleHeight {
		return false
	}
	current.ConfirmedIrreversibleHeight = height
	current.ConfirmedIrreversibleRound = current.RoundNumber - 1
	return true
}
