package consensus

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/canopy-network/aedpos/lib"
	"github.com/canopy-network/aedpos/lib/crypto"
	"github.com/canopy-network/aedpos/secret"
	"github.com/canopy-network/aedpos/store"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

var _ lib.ElectorI = &testElector{}
var _ lib.MainChainSourceI = &testMainChain{}
var _ lib.RoundStoreI = &failingStore{}

// genesisTime is the blockchain start time of every test chain
var genesisTime = time.UnixMilli(1_700_000_000_000).UTC()

type testElector struct {
	sync.Mutex
	victories map[uint64][]string
	reported  map[uint64][]string
}

func newTestElector() *testElector {
	return &testElector{victories: map[uint64][]string{}, reported: map[uint64][]string{}}
}

func (t *testElector) GetVictories(_ context.Context, term uint64) ([]string, lib.ErrorI) {
	t.Lock()
	defer t.Unlock()
	return t.victories[term], nil
}

func (t *testElector) ReportEvilMiners(_ context.Context, term uint64, pubkeys []string) lib.ErrorI {
	t.Lock()
	defer t.Unlock()
	t.reported[term] = append(t.reported[term], pubkeys...)
	return nil
}

type testMainChain struct{ miners []string }

func (t *testMainChain) MainChainMiners(_ context.Context) ([]string, lib.ErrorI) { return t.miners, nil }

// failingStore fails every commit while fail is set
type failingStore struct {
	lib.RoundStoreI
	fail bool
}

func (f *failingStore) CommitRounds(rounds ...*lib.Round) lib.ErrorI {
	if f.fail {
		return store.ErrCommitDB(context.DeadlineExceeded)
	}
	return f.RoundStoreI.CommitRounds(rounds...)
}

// testChain is a single engine driven by the local miners of every key
type testChain struct {
	t       *testing.T
	config  lib.ConsensusConfig
	clock   *lib.ManualClock
	store   *failingStore
	elector *testElector
	engine  *Engine
	pubkeys []string // sorted, the order of round 1
	keys    map[string]crypto.PrivateKeyI
	miners  map[string]*Miner
}

func testConfig() lib.ConsensusConfig {
	c := lib.DefaultConsensusConfig()
	c.PeriodSeconds = 3600
	return c
}

func newTestStore(t *testing.T) *store.Store {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	s, e := store.NewWithDB(db, lib.StoreConfig{HistoryWindow: 16, CacheSize: 8}, lib.NewNullLogger())
	require.NoError(t, e)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestKeys(t *testing.T, n int) (pubkeys []string, keys map[string]crypto.PrivateKeyI) {
	keys = make(map[string]crypto.PrivateKeyI, n)
	for i := 0; i < n; i++ {
		pk, err := crypto.NewBLSPrivateKey()
		require.NoError(t, err)
		keys[pk.PublicKey().String()] = pk
		pubkeys = append(pubkeys, pk.PublicKey().String())
	}
	sort.Strings(pubkeys)
	return
}

func newTestChain(t *testing.T, n int, config lib.ConsensusConfig) *testChain {
	pubkeys, keys := newTestKeys(t, n)
	c := &testChain{
		t:       t,
		config:  config,
		clock:   lib.NewManualClock(genesisTime),
		store:   &failingStore{RoundStoreI: newTestStore(t)},
		elector: newTestElector(),
		pubkeys: pubkeys,
		keys:    keys,
		miners:  make(map[string]*Miner, n),
	}
	var err lib.ErrorI
	c.engine, err = New(config, c.store, c.elector, nil, c.clock, nil, lib.NewNullLogger())
	require.NoError(t, err)
	genesis, err := GenerateFirstRound(pubkeys, genesisTime, config)
	require.NoError(t, err)
	require.NoError(t, c.engine.InitGenesis(genesis))
	boxes, boxKeys := make(map[string]*secret.BoxKey, n), make(map[string]string, n)
	for _, pk := range pubkeys {
		box, e := secret.NewBoxKey()
		require.NoError(t, e)
		boxes[pk], boxKeys[pk] = box, box.PublicString()
	}
	for _, pk := range pubkeys {
		c.miners[pk], err = NewMiner(keys[pk], boxes[pk], boxKeys, config, lib.NewNullLogger())
		require.NoError(t, err)
	}
	return c
}

// current() returns the current round
func (c *testChain) current() *lib.Round {
	r, err := c.engine.GetCurrentRound()
	require.NoError(c.t, err)
	return r
}

// previous() returns the previous round
func (c *testChain) previous() *lib.Round {
	r, err := c.engine.GetPreviousRound()
	require.NoError(c.t, err)
	return r
}

// produce() has a miner produce at t and expects the behaviour to be accepted
func (c *testChain) produce(pubkey string, t time.Time, expected lib.Behaviour) {
	c.clock.Set(t)
	result, err := c.miners[pubkey].Produce(context.Background(), c.engine)
	require.NoError(c.t, err)
	require.NotNil(c.t, result, "nothing due for %s at %s", lib.ShortString(pubkey), t)
	require.True(c.t, result.Accepted)
	require.Equal(c.t, expected, result.Behaviour)
}

// mineRound() has every miner not skipped produce in its slot
func (c *testChain) mineRound(skip ...string) {
	skipped := make(map[string]bool)
	for _, pk := range skip {
		skipped[pk] = true
	}
	for _, m := range c.current().SortedByOrder() {
		if skipped[m.Pubkey] {
			continue
		}
		c.produce(m.Pubkey, m.ExpectedMiningTime, lib.BehaviourUpdateValue)
	}
}

// terminate() ends the round by its extra block producer, or the first fallback terminator if it's skipped
func (c *testChain) terminate(expected lib.Behaviour, skip ...string) {
	r, interval := c.current(), c.config.MiningInterval()
	terminator := r.ExtraBlockProducer()
	for _, pk := range skip {
		if pk != terminator.Pubkey {
			continue
		}
		for _, m := range r.SortedByOrder() {
			if m.Pubkey != pk {
				terminator = m
				break
			}
		}
	}
	c.produce(terminator.Pubkey, ArrangeAbnormalMiningTime(r, terminator.Pubkey, r.ExtraBlockMiningTime(interval), interval), expected)
}

// playRound() mines and terminates a whole round
func (c *testChain) playRound(expected lib.Behaviour, skip ...string) {
	c.mineRound(skip...)
	c.terminate(expected, skip...)
}
