package consensus

import (
	"time"

	"github.com/canopy-network/aedpos/lib"
)

// Command tells a miner what it may produce next and when
type Command struct {
	Behaviour          lib.Behaviour `json:"behaviour"`
	ArrangedMiningTime time.Time     `json:"arrangedMiningTime"` // the earliest time the behaviour is accepted, never in the past
	MiningDueTime      time.Time     `json:"miningDueTime"`      // the end of the window the behaviour is accepted in
	MaxBlocks          int           `json:"maxBlocks"`          // the blocks the miner may produce per slot in this round
	RoundNumber        uint64        `json:"roundNumber"`
	TermNumber         uint64        `json:"termNumber"`
}

// IsDue() returns true if the command may be executed at t
func (c *Command) IsDue(t time.Time) bool {
	return c.Behaviour != lib.BehaviourNothing && !t.Before(c.ArrangedMiningTime) && t.Before(c.MiningDueTime)
}

// DecideCommand() derives the behaviour available to a miner from the round alone.
// termination is the behaviour that ends the round: NextRound or NextTerm
func DecideCommand(r *lib.Round, pubkey string, now time.Time, termination lib.Behaviour, config lib.ConsensusConfig) *Command {
	interval, maxBlocks := config.MiningInterval(), MaximumBlocksCount(r, config)
	cmd := &Command{Behaviour: lib.BehaviourNothing, MaxBlocks: maxBlocks, RoundNumber: r.RoundNumber, TermNumber: r.TermNumber}
	m, ok := r.Miners[pubkey]
	if !ok {
		return cmd
	}
	start, end := m.ExpectedMiningTime, m.ExpectedMiningTime.Add(interval)
	// the terminator of the previous round keeps producing until the first slot opens,
	// leaving one block of the shared cap to its own UpdateValue
	if pubkey == r.ExtraBlockProducerOfPreviousRound && now.Before(r.RoundStartTime()) && !m.HasMined() &&
		m.ProducedTinyBlocks+1 < uint64(maxBlocks) {
		cmd.Behaviour, cmd.ArrangedMiningTime, cmd.MiningDueTime = lib.BehaviourTinyBlock, now, r.RoundStartTime()
		return cmd
	}
	switch {
	case !m.HasMined() && now.Before(end):
		cmd.Behaviour, cmd.ArrangedMiningTime, cmd.MiningDueTime = lib.BehaviourUpdateValue, maxTime(start, now), end
	case m.HasMined() && now.Before(end) && m.ProducedTinyBlocks < uint64(maxBlocks):
		cmd.Behaviour, cmd.ArrangedMiningTime, cmd.MiningDueTime = lib.BehaviourTinyBlock, now, end
	default:
		arranged := ArrangeAbnormalMiningTime(r, pubkey, now, interval)
		cmd.Behaviour, cmd.ArrangedMiningTime, cmd.MiningDueTime = termination, arranged, arranged.Add(interval)
	}
	return cmd
}

// NeedToChangeTerm() returns true once more than the quorum of miners last produced outside the period of the
// current term
func NeedToChangeTerm(r *lib.Round, config lib.ConsensusConfig) bool {
	period := config.Period()
	if period <= 0 || r.TermNumber == 0 {
		return false
	}
	count := 0
	for _, m := range r.Miners {
		if len(m.ActualMiningTimes) == 0 {
			continue
		}
		if uint64(m.LatestActualMiningTime().Sub(r.BlockchainStartTime)/period) != r.TermNumber-1 {
			count++
		}
	}
	return config.ReachesQuorum(count, r.MinersCount())
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
