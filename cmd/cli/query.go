package cli

import (
	"strconv"

	"github.com/canopy-network/aedpos/lib"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "query the round scheduler rpc",
}

func init() {
	queryCmd.AddCommand(roundCmd)
	queryCmd.AddCommand(previousRoundCmd)
	queryCmd.AddCommand(commandCmd)
	queryCmd.AddCommand(libCmd)
	queryCmd.AddCommand(miningStatusCmd)
	queryCmd.AddCommand(termBlocksCmd)
	queryCmd.AddCommand(paramsCmd)
	queryCmd.AddCommand(roundDiffCmd)
	queryCmd.AddCommand(resourceUsageCmd)
	queryCmd.AddCommand(configCmd)
	queryCmd.AddCommand(txCmd)
}

var (
	roundCmd = &cobra.Command{
		Use:   "round <number>",
		Short: "query a round, the current round without a number",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 {
				writeToConsole(client.Round())
				return
			}
			writeToConsole(client.RoundByNumber(argToUint64(args[0])))
		},
	}

	previousRoundCmd = &cobra.Command{
		Use:   "previous-round",
		Short: "query the round before the current one",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.PreviousRound())
		},
	}

	commandCmd = &cobra.Command{
		Use:   "command <pubkey>",
		Short: "query what a miner is currently permitted to produce",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Command(args[0]))
		},
	}

	libCmd = &cobra.Command{
		Use:   "lib",
		Short: "query the last irreversible block height",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.LIB())
		},
	}

	miningStatusCmd = &cobra.Command{
		Use:   "mining-status",
		Short: "query the mining status and the tiny block cap",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.MiningStatus())
		},
	}

	termBlocksCmd = &cobra.Command{
		Use:   "term-blocks <term>",
		Short: "query the blocks every miner produced in a term",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.TermBlocks(argToUint64(args[0])))
		},
	}

	paramsCmd = &cobra.Command{
		Use:   "consensus-params",
		Short: "query the protocol parameters",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.ConsensusParams())
		},
	}

	roundDiffCmd = &cobra.Command{
		Use:   "round-diff <from> <to>",
		Short: "query the difference between two stored rounds",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.RoundDiff(argToUint64(args[0]), argToUint64(args[1])))
		},
	}

	resourceUsageCmd = &cobra.Command{
		Use:   "resource-usage",
		Short: "query the process and system resource usage of the node",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.ResourceUsage())
		},
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "query the configuration of the node",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Config())
		},
	}

	txCmd = &cobra.Command{
		Use:   "tx <json>",
		Short: "submit a signed consensus transaction",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			tx := new(lib.Transaction)
			if err := lib.UnmarshalJSON([]byte(args[0]), tx); err != nil {
				l.Fatal(err.Error())
			}
			writeToConsole(client.Transaction(tx))
		},
	}
)

func argToUint64(s string) uint64 {
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		l.Fatal(err.Error())
	}
	return u
}
