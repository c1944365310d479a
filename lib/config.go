package lib

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/units"
)

/* This file implements logic for 'user controlled' global configurations of each module of the node */

const (
	// FILE NAMES in the 'data directory'
	ConfigFilePath  = "config.json"    // the file path for the node configuration
	MinerKeyPath    = "miner_key.json" // the file path for the node's BLS signing key
	BoxKeyPath      = "box_key.json"   // the file path for the node's secret sharing encryption key
	GenesisFilePath = "genesis.json"   // the file path for the first round
)

const (
	// CollisionOrdering values
	OrderByCurrentOrder = "order"  // colliding miners are processed by ascending order of the current round
	OrderByPubkey       = "pubkey" // colliding miners are processed by ascending public key
)

// Config is the structure of the user configuration options for an aedpos node
type Config struct {
	MainConfig      // main options spanning over all modules
	ConsensusConfig // round scheduler protocol parameters
	StoreConfig     // persistence options
	RPCConfig       // rpc API options
	MetricsConfig   // telemetry options
	ElectorConfig   // miner election options
}

// DefaultConfig() returns a Config with developer set options
func DefaultConfig() Config {
	return Config{
		MainConfig:      DefaultMainConfig(),
		ConsensusConfig: DefaultConsensusConfig(),
		StoreConfig:     DefaultStoreConfig(),
		RPCConfig:       DefaultRPCConfig(),
		MetricsConfig:   DefaultMetricsConfig(),
		ElectorConfig:   DefaultElectorConfig(),
	}
}

// MAIN CONFIG BELOW

type MainConfig struct {
	LogLevel   string `json:"logLevel"`   // any level includes the levels above it: debug < info < warning < error
	LogMaxSize int64  `json:"logMaxSize"` // the size in bytes a log file may reach before it's rotated
	ChainId    uint64 `json:"chainId"`    // the identifier of this chain
}

// DefaultMainConfig() sets log level to 'info'
func DefaultMainConfig() MainConfig {
	return MainConfig{
		LogLevel:   "info",               // everything but debug is the default
		LogMaxSize: int64(10 * units.MB), // rotate at 10 MB
		ChainId:    1,
	}
}

// GetLogLevel() parses the log string in the config file into a LogLevel Enum
func (m MainConfig) GetLogLevel() int32 {
	switch {
	case strings.Contains(strings.ToLower(m.LogLevel), "deb"):
		return DebugLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "inf"):
		return InfoLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "war"):
		return WarnLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "err"):
		return ErrorLevel
	default:
		return DebugLevel
	}
}

// LoggerConfig() converts the main options into the logger options
func (m MainConfig) LoggerConfig() LoggerConfig {
	sizeMB := int(m.LogMaxSize / int64(units.MB))
	if sizeMB < 1 {
		sizeMB = 1
	}
	return LoggerConfig{Level: m.GetLogLevel(), MaxSizeMB: sizeMB}
}

// CONSENSUS CONFIG BELOW

// ConsensusConfig defines the protocol parameters of the round scheduler
// NOTES:
// - every node of a chain must run with the same values, they are part of consensus
// - quorum checks are strict: count * QuorumNumerator > total * QuorumDenominator
type ConsensusConfig struct {
	MiningIntervalMS          int64  `json:"miningIntervalMS"`          // the length of a single time slot in milliseconds
	MaxTinyBlocks             int    `json:"maxTinyBlocks"`             // the cap of blocks a miner may produce in one slot
	TimeToleranceMS           int64  `json:"timeToleranceMS"`           // how far a claimed or proposed time may deviate from the authoritative clock
	PeriodSeconds             int64  `json:"periodSeconds"`             // the length of a term in seconds
	TolerableMissedTimeSlots  uint64 `json:"tolerableMissedTimeSlots"`  // missed slots at or above which a miner is reported as evil at term change
	QuorumNumerator           int    `json:"quorumNumerator"`           // byzantine quorum fraction numerator
	QuorumDenominator         int    `json:"quorumDenominator"`         // byzantine quorum fraction denominator
	LibToleranceNumerator     int    `json:"libToleranceNumerator"`     // the fraction of sorted implied heights skipped from the bottom when picking the LIB
	LibToleranceDenominator   int    `json:"libToleranceDenominator"`   // the denominator of the above
	CollisionOrdering         string `json:"collisionOrdering"`         // 'order' or 'pubkey', the fixed processing order of order collisions
	FallbackAfterMissedRounds uint64 `json:"fallbackAfterMissedRounds"` // consecutive missed rounds after which the fallback value may replace a signature
	SecretSharingEnabled      bool   `json:"secretSharingEnabled"`      // whether miners exchange shares of their in-values
	AbnormalRounds            uint64 `json:"abnormalRounds"`            // rounds the LIB may lag before mining status is abnormal
	SevereRounds              uint64 `json:"severeRounds"`              // rounds the LIB may lag before mining status is severe
	IsSideChain               bool   `json:"isSideChain"`               // whether the main chain miner list forces term changes
}

// DefaultConsensusConfig() returns the developer recommended protocol parameters
func DefaultConsensusConfig() ConsensusConfig {
	return ConsensusConfig{
		MiningIntervalMS:          4000,   // 4 seconds
		MaxTinyBlocks:             8,      // 8 blocks per slot
		TimeToleranceMS:           500,    // half a second
		PeriodSeconds:             604800, // 7 days
		TolerableMissedTimeSlots:  4320,   // 3 days of 1 minute rounds
		QuorumNumerator:           2,      // more than 2/3
		QuorumDenominator:         3,
		LibToleranceNumerator:     1, // tolerate the lowest 1/3
		LibToleranceDenominator:   3,
		CollisionOrdering:         OrderByCurrentOrder,
		FallbackAfterMissedRounds: 1,
		SecretSharingEnabled:      false,
		AbnormalRounds:            2,
		SevereRounds:              8,
		IsSideChain:               false,
	}
}

// MiningInterval() returns the slot length as a duration
func (c ConsensusConfig) MiningInterval() time.Duration {
	return time.Duration(c.MiningIntervalMS) * time.Millisecond
}

// TimeTolerance() returns the clock tolerance as a duration
func (c ConsensusConfig) TimeTolerance() time.Duration {
	return time.Duration(c.TimeToleranceMS) * time.Millisecond
}

// Period() returns the term length as a duration
func (c ConsensusConfig) Period() time.Duration {
	return time.Duration(c.PeriodSeconds) * time.Second
}

// ReachesQuorum() returns true if count out of total is strictly above the quorum fraction
func (c ConsensusConfig) ReachesQuorum(count, total int) bool {
	return count*c.QuorumDenominator > total*c.QuorumNumerator
}

// MinimumQuorum() returns the smallest count out of total that reaches the quorum
func (c ConsensusConfig) MinimumQuorum(total int) int {
	return total*c.QuorumNumerator/c.QuorumDenominator + 1
}

// LibIndex() returns the index into an ascending list of count implied heights that is picked as the LIB
func (c ConsensusConfig) LibIndex(count int) int {
	if count <= 0 {
		return 0
	}
	return (count - 1) * c.LibToleranceNumerator / c.LibToleranceDenominator
}

// Check() validates the protocol parameters
func (c ConsensusConfig) Check() error {
	switch {
	case c.MiningIntervalMS <= 0:
		return fmt.Errorf("miningIntervalMS must be positive")
	case c.MaxTinyBlocks < 1:
		return fmt.Errorf("maxTinyBlocks must be at least 1")
	case c.TimeToleranceMS < 0 || c.TimeToleranceMS >= c.MiningIntervalMS:
		return fmt.Errorf("timeToleranceMS must be in [0, miningIntervalMS)")
	case c.PeriodSeconds <= 0:
		return fmt.Errorf("periodSeconds must be positive")
	case c.QuorumDenominator <= 0 || c.QuorumNumerator < 0 || c.QuorumNumerator >= c.QuorumDenominator:
		return fmt.Errorf("quorum fraction must be in [0, 1)")
	case c.LibToleranceDenominator <= 0 || c.LibToleranceNumerator < 0 || c.LibToleranceNumerator >= c.LibToleranceDenominator:
		return fmt.Errorf("lib tolerance fraction must be in [0, 1)")
	case c.CollisionOrdering != OrderByCurrentOrder && c.CollisionOrdering != OrderByPubkey:
		return fmt.Errorf("collisionOrdering must be %q or %q", OrderByCurrentOrder, OrderByPubkey)
	case c.AbnormalRounds >= c.SevereRounds:
		return fmt.Errorf("abnormalRounds must be below severeRounds")
	}
	return nil
}

// STORE CONFIG BELOW

// StoreConfig is user configurations for the key value database
type StoreConfig struct {
	DataDirPath    string `json:"dataDirPath"`    // path of the designated folder where the application stores its data
	DBName         string `json:"dbName"`         // name of the database
	InMemory       bool   `json:"inMemory"`       // non-disk database, only for testing
	HistoryWindow  uint64 `json:"historyWindow"`  // the number of superseded rounds retained for replay and audit
	CacheSize      int    `json:"cacheSize"`      // the number of decoded rounds kept in memory
	BlockCacheSize int64  `json:"blockCacheSize"` // bytes of the database block cache
}

// DefaultDataDirPath() is $USERHOME/.aedpos
func DefaultDataDirPath() string {
	// get the user home
	home, err := os.UserHomeDir()
	// if unable to get the user home
	if err != nil {
		// fatal error
		panic(err)
	}
	// exit with full default data directory path
	return filepath.Join(home, ".aedpos")
}

// DefaultStoreConfig() returns the developer recommended store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		DataDirPath:    DefaultDataDirPath(),
		DBName:         "aedpos",
		InMemory:       false,
		HistoryWindow:  64,
		CacheSize:      16,
		BlockCacheSize: int64(64 * units.MB),
	}
}

// RPC CONFIG BELOW

type RPCConfig struct {
	RPCPort        string `json:"rpcPort"`        // the port where the rpc server is hosted
	RPCUrl         string `json:"rpcURL"`         // the url where the rpc server is hosted
	AdminPort      string `json:"adminPort"`      // the port where the admin rpc server is hosted, empty disables it
	AdminRPCUrl    string `json:"adminRPCUrl"`    // the url where the admin rpc server is hosted
	TimeoutS       int    `json:"timeoutS"`       // the rpc request timeout in seconds
	MaxConnections int    `json:"maxConnections"` // the concurrent connections each rpc server accepts, 0 is unlimited
}

// DefaultRPCConfig() sets rpc url to localhost
func DefaultRPCConfig() RPCConfig {
	return RPCConfig{
		RPCPort:        "50002",
		RPCUrl:         "http://localhost:50002",
		AdminPort:      "50003",
		AdminRPCUrl:    "http://localhost:50003",
		TimeoutS:       3,
		MaxConnections: 64,
	}
}

// METRICS CONFIG BELOW

// MetricsConfig represents the configuration for the metrics server
type MetricsConfig struct {
	Enabled           bool   `json:"enabled"`           // if the metrics are enabled
	PrometheusAddress string `json:"prometheusAddress"` // the address of the server
}

// DefaultMetricsConfig() returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:           true,
		PrometheusAddress: "0.0.0.0:9090",
	}
}

// ELECTOR CONFIG BELOW

// ElectorConfig tells the node where to get the miner list of a new term
// an empty ElectorURL uses the static list (or the current miners when that list is empty)
type ElectorConfig struct {
	ElectorURL       string   `json:"electorURL"`       // the base url of the election service
	MainChainURL     string   `json:"mainChainURL"`     // side chains only: the base url of the main chain rpc
	StaticMiners     []string `json:"staticMiners"`     // a fixed victory list used without an election service
	RequestTimeoutMS int      `json:"requestTimeoutMS"` // timeout of a single request
	MaxElapsedMS     int      `json:"maxElapsedMS"`     // the total time spent retrying before giving up
}

// DefaultElectorConfig() returns no election service
func DefaultElectorConfig() ElectorConfig {
	return ElectorConfig{
		RequestTimeoutMS: 1000,
		MaxElapsedMS:     3000,
	}
}

// WriteToFile() saves the Config object to a JSON file
func (c Config) WriteToFile(filepath string) error {
	// convert the config to indented 'pretty' json bytes
	jsonBytes, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	// write the config.json file to the data directory
	return os.WriteFile(filepath, jsonBytes, os.ModePerm)
}

// NewConfigFromFile() populates a Config object from a JSON file
func NewConfigFromFile(filepath string) (Config, error) {
	fileBytes, err := os.ReadFile(filepath)
	if err != nil {
		return Config{}, err
	}
	// define the default config to fill in any blanks in the file
	c := DefaultConfig()
	if err = json.Unmarshal(fileBytes, &c); err != nil {
		return Config{}, err
	}
	return c, c.ConsensusConfig.Check()
}
