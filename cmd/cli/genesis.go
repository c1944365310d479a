package cli

import (
	"strings"
	"time"

	"github.com/canopy-network/aedpos/consensus"
	"github.com/canopy-network/aedpos/lib"
	"github.com/spf13/cobra"
)

var genesisCmd = &cobra.Command{
	Use:   "genesis <pubkey>:<boxkey> ... --start-time=2026-01-02T15:04:05Z",
	Short: "write the genesis file of the data directory, the local keys are the only miner without arguments",
	Run: func(cmd *cobra.Command, args []string) {
		writeToConsole(writeGenesis(args))
	},
}

var startTime = ""

func init() {
	genesisCmd.Flags().StringVar(&startTime, "start-time", "", "RFC3339 blockchain start time, now when empty")
}

// writeGenesis() builds the genesis from pubkey[:boxkey] arguments and saves it
func writeGenesis(args []string) (*consensus.Genesis, error) {
	g := &consensus.Genesis{StartTime: lib.NewSystemClock().Now()}
	if startTime != "" {
		t, err := time.Parse(time.RFC3339, startTime)
		if err != nil {
			return nil, err
		}
		g.StartTime = lib.TruncateTime(t)
	}
	for _, arg := range args {
		pubkey, boxKey, _ := strings.Cut(arg, ":")
		g.Miners = append(g.Miners, consensus.GenesisMiner{Pubkey: pubkey, BoxKey: boxKey})
	}
	if len(g.Miners) == 0 {
		local, err := initializeKeys(config.DataDirPath)
		if err != nil {
			return nil, err
		}
		g.Miners = append(g.Miners, *local)
	}
	// reject a genesis that can't produce round 1
	if _, err := g.FirstRound(config.ConsensusConfig); err != nil {
		return nil, err
	}
	if err := consensus.WriteGenesisFile(g, config.DataDirPath); err != nil {
		return nil, err
	}
	return g, nil
}
