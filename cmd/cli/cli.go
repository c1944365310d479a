package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/canopy-network/aedpos/cmd/rpc"
	"github.com/canopy-network/aedpos/consensus"
	"github.com/canopy-network/aedpos/elector"
	"github.com/canopy-network/aedpos/lib"
	"github.com/canopy-network/aedpos/lib/crypto"
	"github.com/canopy-network/aedpos/secret"
	"github.com/canopy-network/aedpos/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// minerTick is how often the local miner asks the engine for its command
const minerTick = 100 * time.Millisecond

var rootCmd = &cobra.Command{
	Use:   "aedpos",
	Short: "the aedpos round scheduler",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config = InitializeDataDirectory(DataDir, lib.NewDefaultLogger())
		l = lib.NewLogger(config.LoggerConfig(), config.DataDirPath)
		client = rpc.NewClient(config.RPCUrl, config.AdminRPCUrl, time.Duration(config.TimeoutS)*time.Second)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(rpc.SoftwareVersion)
	},
}

var (
	client, config, l = &rpc.Client{}, lib.Config{}, lib.LoggerI(nil)
	DataDir           = ""
)

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(genesisCmd)
	rootCmd.PersistentFlags().StringVar(&DataDir, "data-dir", lib.DefaultDataDirPath(), "custom data directory location")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "start the round scheduler",
	Run: func(cmd *cobra.Command, args []string) {
		Start()
	},
}

// Start() is the entrypoint of the application
func Start() {
	// load the genesis file every node of the chain shares
	genesis, err := consensus.ReadGenesisFromFile(config.DataDirPath)
	if err != nil {
		l.Fatalf("Missing %s, run 'aedpos genesis' first: %s", lib.GenesisFilePath, err.Error())
	}
	// initialize the metrics server
	metrics := lib.NewMetricsServer(config.MetricsConfig, l)
	// create a new database object from the config
	db, err := store.New(config.StoreConfig, l)
	if err != nil {
		l.Fatal(err.Error())
	}
	defer func() { _ = db.Close() }()
	// the main chain rpc is the miner list source of a side chain
	var mainChain lib.MainChainSourceI
	if config.IsSideChain && config.MainChainURL != "" {
		mainChain = rpc.NewClient(config.MainChainURL, "", time.Duration(config.RequestTimeoutMS)*time.Millisecond)
	}
	engine, err := consensus.New(config.ConsensusConfig, db, newElector(), mainChain, nil, metrics, l.WithModule("consensus"))
	if err != nil {
		l.Fatal(err.Error())
	}
	first, err := genesis.FirstRound(config.ConsensusConfig)
	if err != nil {
		l.Fatal(err.Error())
	}
	if err = engine.InitGenesis(first); err != nil {
		l.Fatal(err.Error())
	}
	miner := newLocalMiner(genesis)
	// run every service until a kill signal is received or one of them fails
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGABRT)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rpc.NewServer(engine, config, l.WithModule("rpc")).Start(ctx) })
	g.Go(func() error {
		metrics.Start()
		<-ctx.Done()
		metrics.Stop()
		return nil
	})
	if miner != nil {
		g.Go(func() error { return miner.Run(ctx, engine, minerTick) })
	}
	if err := g.Wait(); err != nil {
		l.Errorf("Stopped with err: %s", err.Error())
	}
	l.Info("Exit command received")
}

// newElector() returns the election service of the config
func newElector() lib.ElectorI {
	if config.ElectorURL != "" {
		return elector.NewHTTPElector(config.ElectorConfig, l.WithModule("elector"))
	}
	return elector.NewStatic(config.StaticMiners, l.WithModule("elector"))
}

// newLocalMiner() returns the producer of the node key, nil if the node only follows the chain
func newLocalMiner(genesis *consensus.Genesis) *consensus.Miner {
	key, err := crypto.NewPrivateKeyFromFile(filepath.Join(config.DataDirPath, lib.MinerKeyPath))
	if err != nil {
		l.Warnf("No miner key, following the chain only: %s", err.Error())
		return nil
	}
	box, e := secret.LoadBoxKey(config.DataDirPath)
	if e != nil {
		l.Warnf("No box key, secret sharing disabled for this miner: %s", e.Error())
		box = nil
	}
	miner, e := consensus.NewMiner(key, box, genesis.BoxKeys(), config.ConsensusConfig, l.WithModule("miner"))
	if e != nil {
		l.Fatal(e.Error())
	}
	l.Infof("Using identity: PublicKey: %s", miner.Pubkey())
	return miner
}

// InitializeDataDirectory() populates the data directory with the configuration file if missing
func InitializeDataDirectory(dataDirPath string, log lib.LoggerI) (c lib.Config) {
	// make the data dir if missing
	if err := os.MkdirAll(dataDirPath, os.ModePerm); err != nil {
		log.Fatal(err.Error())
	}
	// make the config.json file if missing
	configFilePath := filepath.Join(dataDirPath, lib.ConfigFilePath)
	if _, err := os.Stat(configFilePath); errors.Is(err, os.ErrNotExist) {
		log.Infof("Creating %s file", lib.ConfigFilePath)
		if err = lib.DefaultConfig().WriteToFile(configFilePath); err != nil {
			log.Fatal(err.Error())
		}
	}
	// load the config object
	c, err := lib.NewConfigFromFile(configFilePath)
	if err != nil {
		log.Fatal(err.Error())
	}
	// set the data-directory
	c.DataDirPath = dataDirPath
	return
}

func writeToConsole(a any, err error) {
	if err != nil {
		l.Fatal(err.Error())
	}
	switch a.(type) {
	case int, uint32, uint64:
		p := message.NewPrinter(language.English)
		if _, err := p.Printf("%d\n", a); err != nil {
			l.Fatal(err.Error())
		}
	case string:
		fmt.Println(a)
	case *string:
		fmt.Println(*a.(*string))
	default:
		s, err := lib.MarshalJSONIndentString(a)
		if err != nil {
			l.Fatal(err.Error())
		}
		fmt.Println(s)
	}
}
