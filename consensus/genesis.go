package consensus

import (
	"time"

	"github.com/canopy-network/aedpos/lib"
)

// Genesis is the content of the genesis file shared by every node of a chain
type Genesis struct {
	StartTime time.Time      `json:"startTime"` // the blockchain start time, round 1 slots start one interval later
	Miners    []GenesisMiner `json:"miners"`
}

// GenesisMiner is a miner of the first term
type GenesisMiner struct {
	Pubkey string `json:"pubkey"`           // hex BLS public key
	BoxKey string `json:"boxKey,omitempty"` // hex public key secret shares are sealed to
}

// MinerList() returns the public keys of the genesis miners
func (g *Genesis) MinerList() (out []string) {
	for _, m := range g.Miners {
		out = append(out, m.Pubkey)
	}
	return
}

// BoxKeys() returns the box public keys by miner
func (g *Genesis) BoxKeys() map[string]string {
	out := make(map[string]string, len(g.Miners))
	for _, m := range g.Miners {
		if m.BoxKey != "" {
			out[m.Pubkey] = m.BoxKey
		}
	}
	return out
}

// FirstRound() generates round 1 from the genesis miners
func (g *Genesis) FirstRound(config lib.ConsensusConfig) (*lib.Round, lib.ErrorI) {
	return GenerateFirstRound(g.MinerList(), g.StartTime, config)
}

// ReadGenesisFromFile() loads the genesis file of the data directory
func ReadGenesisFromFile(dataDirPath string) (*Genesis, lib.ErrorI) {
	g := new(Genesis)
	if err := lib.NewJSONFromFile(g, dataDirPath, lib.GenesisFilePath); err != nil {
		return nil, err
	}
	return g, nil
}

// WriteGenesisFile() saves the genesis file to the data directory
func WriteGenesisFile(g *Genesis, dataDirPath string) lib.ErrorI {
	return lib.SaveJSONToFile(g, dataDirPath, lib.GenesisFilePath)
}
