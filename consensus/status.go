package consensus

import "github.com/canopy-network/aedpos/lib"

// MiningStatus describes how far the irreversible round lags behind the current round
type MiningStatus int

const (
	MiningStatusNormal   MiningStatus = iota // the LIB keeps up
	MiningStatusAbnormal                     // the LIB lags, miners produce fewer tiny blocks
	MiningStatusSevere                       // the LIB stalled, miners produce a single block per slot
)

func (s MiningStatus) String() string {
	switch s {
	case MiningStatusNormal:
		return "Normal"
	case MiningStatusAbnormal:
		return "Abnormal"
	case MiningStatusSevere:
		return "Severe"
	}
	return "Unknown"
}

// MarshalText() encodes the status by name
func (s MiningStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// MiningStatusOf() classifies a round by the distance between its number and its irreversible round
func MiningStatusOf(r *lib.Round, config lib.ConsensusConfig) MiningStatus {
	libRound, current := r.ConfirmedIrreversibleRound, r.RoundNumber
	switch {
	case libRound+config.AbnormalRounds >= current:
		return MiningStatusNormal
	case libRound+config.SevereRounds > current:
		return MiningStatusAbnormal
	}
	return MiningStatusSevere
}

// MaximumBlocksCount() returns the number of blocks a miner may produce in one slot of the round
func MaximumBlocksCount(r *lib.Round, config lib.ConsensusConfig) int {
	switch MiningStatusOf(r, config) {
	case MiningStatusNormal:
		return config.MaxTinyBlocks
	case MiningStatusAbnormal:
		lag := int(r.RoundNumber - r.ConfirmedIrreversibleRound - config.AbnormalRounds)
		return max(1, config.MaxTinyBlocks-lag)
	}
	return 1
}
