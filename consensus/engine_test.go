package consensus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/canopy-network/aedpos/lib"
	"github.com/canopy-network/aedpos/lib/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// build() has a miner create the transaction of a behaviour at t without submitting it
func (c *testChain) build(pubkey string, b lib.Behaviour, t time.Time) *lib.Transaction {
	c.clock.Set(t)
	tx, err := c.miners[pubkey].BuildTransaction(context.Background(), c.engine, &Command{Behaviour: b}, t)
	require.NoError(c.t, err)
	return tx
}

// resign() signs a modified transaction again
func (c *testChain) resign(pubkey string, tx *lib.Transaction) *lib.Transaction {
	require.NoError(c.t, tx.Sign(c.keys[pubkey]))
	return tx
}

// requireRejected() submits a transaction and expects the state to be untouched
func (c *testChain) requireRejected(tx *lib.Transaction, code lib.ErrorCode, category string) {
	before := c.current()
	result, err := c.engine.Submit(context.Background(), tx)
	require.Error(c.t, err)
	require.Equal(c.t, code, err.Code(), err.Error())
	require.False(c.t, result.Accepted)
	require.Equal(c.t, category, result.Category)
	require.Equal(c.t, before, c.current())
}

func TestEngineRounds(t *testing.T) {
	c := newTestChain(t, 3, testConfig())
	require.NoError(t, c.engine.InitGenesis(c.current()))
	c.playRound(lib.BehaviourNextRound)
	r := c.current()
	require.EqualValues(t, 2, r.RoundNumber)
	require.EqualValues(t, 5, r.BlockHeight)
	require.Equal(t, c.pubkeys[0], r.ExtraBlockProducerOfPreviousRound)
	// every slot took order 1 so the terminator of round 1 is moved away from the first slot
	require.Equal(t, []string{c.pubkeys[1], c.pubkeys[0], c.pubkeys[2]}, r.MinerList())
	require.Equal(t, c.pubkeys[0], r.ExtraBlockProducer().Pubkey)
	terminator := r.Miners[c.pubkeys[0]]
	require.EqualValues(t, 2, terminator.ProducedBlocks)
	require.EqualValues(t, 1, terminator.ProducedTinyBlocks)
	require.Len(t, terminator.ActualMiningTimes, 1)
	// the archived round has every miner settled
	for _, m := range c.previous().Miners {
		require.Equal(t, lib.CommitmentUnavailable, m.PreviousInValue.State)
		require.Equal(t, crypto.EmptyHash, *m.Signature)
	}
	// the last miner of round 2 confirms the heights implied in round 1
	c.mineRound()
	height, round, err := c.engine.LIB()
	require.NoError(t, err)
	require.EqualValues(t, 2, height)
	require.EqualValues(t, 1, round)
	for _, m := range c.current().Miners {
		require.Equal(t, lib.CommitmentRevealed, m.PreviousInValue.State)
	}
	c.terminate(lib.BehaviourNextRound)
	lastHeight := height
	for i := 0; i < 4; i++ {
		c.playRound(lib.BehaviourNextRound)
		h, _, e := c.engine.LIB()
		require.NoError(t, e)
		require.GreaterOrEqual(t, h, lastHeight)
		lastHeight = h
		require.NoError(t, c.current().CheckOrders())
	}
	require.EqualValues(t, 7, c.current().RoundNumber)
	require.Greater(t, lastHeight, height)
	status, maxBlocks, err := c.engine.MiningStatus()
	require.NoError(t, err)
	require.Equal(t, MiningStatusNormal, status)
	require.Equal(t, c.config.MaxTinyBlocks, maxBlocks)
	old, err := c.engine.GetRound(3)
	require.NoError(t, err)
	require.EqualValues(t, 3, old.RoundNumber)
	require.EqualValues(t, 6, c.previous().RoundNumber)
}

func TestEngineRestart(t *testing.T) {
	c := newTestChain(t, 3, testConfig())
	c.playRound(lib.BehaviourNextRound)
	c.playRound(lib.BehaviourNextRound)
	restarted, err := New(c.config, c.store, c.elector, nil, c.clock, nil, lib.NewNullLogger())
	require.NoError(t, err)
	current, err := restarted.GetCurrentRound()
	require.NoError(t, err)
	require.Equal(t, c.current().RoundNumber, current.RoundNumber)
	require.Equal(t, c.current().MinerList(), current.MinerList())
	previous, err := restarted.GetPreviousRound()
	require.NoError(t, err)
	require.EqualValues(t, 2, previous.RoundNumber)
}

func TestEngineTinyBlocks(t *testing.T) {
	config := testConfig()
	config.MaxTinyBlocks = 3
	c := newTestChain(t, 3, config)
	miner := c.pubkeys[0]
	start := c.current().Miners[miner].ExpectedMiningTime
	c.produce(miner, start, lib.BehaviourUpdateValue)
	c.produce(miner, start.Add(time.Millisecond), lib.BehaviourTinyBlock)
	c.produce(miner, start.Add(2*time.Millisecond), lib.BehaviourTinyBlock)
	slot := c.current().Miners[miner]
	require.EqualValues(t, 3, slot.ProducedTinyBlocks)
	require.EqualValues(t, 3, slot.ProducedBlocks)
	require.Len(t, slot.ActualMiningTimes, 3)
	// the cap is reached, nothing is due until the termination window
	c.clock.Set(start.Add(3 * time.Millisecond))
	result, err := c.miners[miner].Produce(context.Background(), c.engine)
	require.NoError(t, err)
	require.Nil(t, result)
	tx := c.build(miner, lib.BehaviourTinyBlock, start.Add(3*time.Millisecond))
	c.requireRejected(tx, lib.CodeTinyBlockLimit, CategoryTimeSlotViolation)
	// the rest of the round is unaffected
	for _, m := range c.current().SortedByOrder()[1:] {
		c.produce(m.Pubkey, m.ExpectedMiningTime, lib.BehaviourUpdateValue)
	}
	c.terminate(lib.BehaviourNextRound)
}

func TestEnginePreviousTerminatorTinyBlocks(t *testing.T) {
	c := newTestChain(t, 3, testConfig())
	c.playRound(lib.BehaviourNextRound)
	r := c.current()
	terminator := r.ExtraBlockProducerOfPreviousRound
	c.produce(terminator, r.RoundStartTime().Add(-time.Second), lib.BehaviourTinyBlock)
	slot := c.current().Miners[terminator]
	require.EqualValues(t, 2, slot.ProducedTinyBlocks)
	require.Len(t, slot.ActualMiningTimes, 2)
	require.False(t, slot.HasMined())
	// produce until nothing is due before the first slot
	before := 2
	for at := r.RoundStartTime().Add(-time.Second + time.Millisecond); ; at = at.Add(time.Millisecond) {
		c.clock.Set(at)
		result, err := c.miners[terminator].Produce(context.Background(), c.engine)
		require.NoError(t, err)
		if result == nil {
			break
		}
		require.True(t, result.Accepted)
		require.Equal(t, lib.BehaviourTinyBlock, result.Behaviour)
		before++
	}
	// one block of the cap is left for the own slot
	require.Equal(t, c.config.MaxTinyBlocks-1, before)
	for _, m := range c.current().SortedByOrder() {
		c.produce(m.Pubkey, m.ExpectedMiningTime, lib.BehaviourUpdateValue)
		if m.Pubkey != terminator {
			continue
		}
		// the own slot doesn't start the count over
		slot = c.current().Miners[terminator]
		require.EqualValues(t, c.config.MaxTinyBlocks, slot.ProducedTinyBlocks)
		require.Len(t, slot.ActualMiningTimes, c.config.MaxTinyBlocks)
		tx := c.build(terminator, lib.BehaviourTinyBlock, m.ExpectedMiningTime.Add(time.Millisecond))
		c.requireRejected(tx, lib.CodeTinyBlockLimit, CategoryTimeSlotViolation)
	}
	c.terminate(lib.BehaviourNextRound)
	require.Len(t, c.previous().Miners[terminator].ActualMiningTimes, c.config.MaxTinyBlocks)
}

func TestEngineRecordsAuthoritativeTime(t *testing.T) {
	c := newTestChain(t, 3, testConfig())
	miner := c.pubkeys[0]
	start := c.current().Miners[miner].ExpectedMiningTime
	tests := []struct {
		name     string
		detail   string
		build    lib.Behaviour
		at       time.Time
		claimed  time.Duration // offset of the claimed time from the clock
		expected int           // mining times recorded after the transaction
	}{
		{
			name:     "update value claims an earlier time",
			detail:   "a claim before the slot start inside the tolerance records the clock",
			build:    lib.BehaviourUpdateValue,
			at:       start,
			claimed:  -400 * time.Millisecond,
			expected: 1,
		},
		{
			name:     "tiny block claims a later time",
			detail:   "the clock is recorded, not the claim",
			build:    lib.BehaviourTinyBlock,
			at:       start.Add(time.Second),
			claimed:  300 * time.Millisecond,
			expected: 2,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			tx := c.build(miner, test.build, test.at)
			if tx.UpdateValue != nil {
				tx.UpdateValue.ActualMiningTime = test.at.Add(test.claimed)
			} else {
				tx.TinyBlock.ActualMiningTime = test.at.Add(test.claimed)
			}
			result, err := c.engine.Submit(context.Background(), c.resign(miner, tx))
			require.NoError(t, err)
			require.True(t, result.Accepted)
			times := c.current().Miners[miner].ActualMiningTimes
			require.Len(t, times, test.expected)
			require.True(t, test.at.Equal(times[len(times)-1]), times[len(times)-1])
		})
	}
}

func TestEngineRejectsTransactions(t *testing.T) {
	stranger, err := crypto.NewBLSPrivateKey()
	require.NoError(t, err)
	config := testConfig()
	interval := config.MiningInterval()
	tests := []struct {
		name          string
		detail        string
		sender        int
		at            time.Duration // after genesisTime
		build         lib.Behaviour
		modify        func(tx *lib.Transaction) (signer crypto.PrivateKeyI) // returns the key to sign with, nil for the sender
		keepSignature bool                                                // don't sign the modified transaction again
		code          lib.ErrorCode
		category      string
	}{
		{
			name:     "behaviour mismatch",
			detail:   "a tiny block before the commitment",
			at:       interval,
			build:    lib.BehaviourTinyBlock,
			code:     lib.CodeBehaviourMismatch,
			category: CategoryPermissionDenied,
		},
		{
			name:   "not a miner",
			detail: "a valid signature of a key outside the round",
			at:     interval,
			build:  lib.BehaviourUpdateValue,
			modify: func(tx *lib.Transaction) crypto.PrivateKeyI {
				return stranger
			},
			code:     lib.CodePermissionDenied,
			category: CategoryPermissionDenied,
		},
		{
			name:   "bad signature",
			detail: "the payload changed after signing",
			at:     interval,
			build:  lib.BehaviourUpdateValue,
			modify: func(tx *lib.Transaction) crypto.PrivateKeyI {
				tx.UpdateValue.OutValue = crypto.Sum([]byte("other"))
				return nil
			},
			keepSignature: true,
			code:          lib.CodeInvalidTxSignature,
			category:      CategoryPermissionDenied,
		},
		{
			name:   "wrong round number",
			detail: "the sender builds on a round that isn't current",
			at:     interval,
			build:  lib.BehaviourUpdateValue,
			modify: func(tx *lib.Transaction) crypto.PrivateKeyI {
				tx.RoundNumber = 2
				return nil
			},
			code:     lib.CodeWrongRoundNumber,
			category: CategoryMalformed,
		},
		{
			name:   "empty payload",
			detail: "update value without its input",
			at:     interval,
			build:  lib.BehaviourUpdateValue,
			modify: func(tx *lib.Transaction) crypto.PrivateKeyI {
				tx.UpdateValue = nil
				return nil
			},
			code:     lib.CodeEmptyPayload,
			category: CategoryMalformed,
		},
		{
			name:   "unknown behaviour",
			detail: "only the round advancing behaviours exist",
			at:     interval,
			build:  lib.BehaviourUpdateValue,
			modify: func(tx *lib.Transaction) crypto.PrivateKeyI {
				tx.Behaviour = "Mine"
				return nil
			},
			code:     lib.CodeUnknownBehaviour,
			category: CategoryMalformed,
		},
		{
			name:   "empty out value",
			detail: "the sentinel is no commitment",
			at:     interval,
			build:  lib.BehaviourUpdateValue,
			modify: func(tx *lib.Transaction) crypto.PrivateKeyI {
				tx.UpdateValue.OutValue = crypto.EmptyHash
				return nil
			},
			code:     lib.CodeMissingOutValue,
			category: CategoryInvalidCommitment,
		},
		{
			name:   "implied height too high",
			detail: "the implied height may not be above the transaction's own height",
			at:     interval,
			build:  lib.BehaviourUpdateValue,
			modify: func(tx *lib.Transaction) crypto.PrivateKeyI {
				tx.UpdateValue.ImpliedIrreversibleBlockHeight += 1
				return nil
			},
			code:     lib.CodeImpliedHeightTooHigh,
			category: CategoryLibRegression,
		},
		{
			name:   "pieces with secret sharing disabled",
			detail: "no piece is accepted",
			at:     interval,
			build:  lib.BehaviourUpdateValue,
			modify: func(tx *lib.Transaction) crypto.PrivateKeyI {
				tx.UpdateValue.EncryptedPieces = map[string]lib.HexBytes{"ab": {1}}
				return nil
			},
			code:     lib.CodeTooManyPieces,
			category: CategoryInvalidCommitment,
		},
		{
			name:   "claimed time deviation",
			detail: "the claimed time is 100 seconds ahead of the clock",
			at:     interval,
			build:  lib.BehaviourUpdateValue,
			modify: func(tx *lib.Transaction) crypto.PrivateKeyI {
				tx.UpdateValue.ActualMiningTime = tx.UpdateValue.ActualMiningTime.Add(100 * time.Second)
				return nil
			},
			code:     lib.CodeClaimedTimeDeviation,
			category: CategoryTimeSlotViolation,
		},
		{
			name:     "slot not started",
			detail:   "the second miner one interval early",
			sender:   1,
			at:       interval,
			build:    lib.BehaviourUpdateValue,
			code:     lib.CodeSlotNotStarted,
			category: CategoryTimeSlotViolation,
		},
		{
			name:     "slot passed",
			detail:   "the first miner after its slot ended",
			at:       2 * interval,
			build:    lib.BehaviourUpdateValue,
			code:     lib.CodeSlotPassed,
			category: CategoryTimeSlotViolation,
		},
		{
			name:     "termination too early",
			detail:   "the extra block producer inside its own slot",
			at:       interval,
			build:    lib.BehaviourNextRound,
			code:     lib.CodeTerminationTooEarly,
			category: CategoryTimeSlotViolation,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := newTestChain(t, 3, testConfig())
			sender := c.pubkeys[test.sender]
			tx := c.build(sender, test.build, genesisTime.Add(test.at))
			if test.modify != nil {
				signer := test.modify(tx)
				switch {
				case signer != nil:
					require.NoError(t, tx.Sign(signer))
				case !test.keepSignature:
					c.resign(sender, tx)
				}
			}
			c.requireRejected(tx, test.code, test.category)
		})
	}
}

func TestEngineRejectsProposals(t *testing.T) {
	c := newTestChain(t, 3, testConfig())
	c.playRound(lib.BehaviourNextRound)
	c.mineRound()
	height, round, err := c.engine.LIB()
	require.NoError(t, err)
	require.EqualValues(t, 2, height)
	require.EqualValues(t, 1, round)
	stranger, _ := newTestKeys(t, 1)
	r, interval := c.current(), c.config.MiningInterval()
	terminator, at := r.ExtraBlockProducer().Pubkey, r.ExtraBlockMiningTime(interval)
	tests := []struct {
		name      string
		detail    string
		behaviour lib.Behaviour
		modify    func(tx *lib.Transaction)
		code      lib.ErrorCode
		category  string
	}{
		{
			name:     "lib regression",
			detail:   "the proposal lowers the confirmed height",
			modify:   func(tx *lib.Transaction) { tx.NextRound.Round.ConfirmedIrreversibleHeight = 1 },
			code:     lib.CodeLibRegression,
			category: CategoryLibRegression,
		},
		{
			name:     "lib unjustified",
			detail:   "the proposal raises the confirmed height without implied heights behind it",
			modify:   func(tx *lib.Transaction) { tx.NextRound.Round.ConfirmedIrreversibleHeight = 100 },
			code:     lib.CodeLibUnjustified,
			category: CategoryLibRegression,
		},
		{
			name:     "lib round regression",
			detail:   "the proposal lowers the confirmed round and keeps the height",
			modify:   func(tx *lib.Transaction) { tx.NextRound.Round.ConfirmedIrreversibleRound = 0 },
			code:     lib.CodeLibRegression,
			category: CategoryLibRegression,
		},
		{
			name:     "lib round unjustified",
			detail:   "the proposal confirms a round the state doesn't justify",
			modify:   func(tx *lib.Transaction) { tx.NextRound.Round.ConfirmedIrreversibleRound = 50 },
			code:     lib.CodeLibUnjustified,
			category: CategoryLibRegression,
		},
		{
			name:     "round number",
			detail:   "the proposal skips a round",
			modify:   func(tx *lib.Transaction) { tx.NextRound.Round.RoundNumber++ },
			code:     lib.CodeWrongRoundNumber,
			category: CategoryMalformed,
		},
		{
			name:     "term number",
			detail:   "a next round proposal changing the term",
			modify:   func(tx *lib.Transaction) { tx.NextRound.Round.TermNumber++ },
			code:     lib.CodeWrongTermNumber,
			category: CategoryMalformed,
		},
		{
			name:   "swapped orders",
			detail: "a valid permutation that isn't the derived one",
			modify: func(tx *lib.Transaction) {
				list := tx.NextRound.Round.SortedByOrder()
				list[0].Order, list[1].Order = list[1].Order, list[0].Order
				list[0].ExpectedMiningTime, list[1].ExpectedMiningTime = list[1].ExpectedMiningTime, list[0].ExpectedMiningTime
			},
			code:     lib.CodeOrderMismatch,
			category: CategoryOrderConflict,
		},
		{
			name:   "duplicate order",
			detail: "two miners in one slot",
			modify: func(tx *lib.Transaction) {
				list := tx.NextRound.Round.SortedByOrder()
				list[1].Order = list[0].Order
			},
			code:     lib.CodeOrderConflict,
			category: CategoryOrderConflict,
		},
		{
			name:   "wrong extra block producer",
			detail: "the flag moved to another miner",
			modify: func(tx *lib.Transaction) {
				p := tx.NextRound.Round
				extra := p.ExtraBlockProducer()
				extra.IsExtraBlockProducer = false
				for _, m := range p.SortedByOrder() {
					if m.Pubkey != extra.Pubkey {
						m.IsExtraBlockProducer = true
						break
					}
				}
			},
			code:     lib.CodeExtraProducerWrong,
			category: CategoryOrderConflict,
		},
		{
			name:   "unknown miner",
			detail: "a miner replaced by a key outside the round",
			modify: func(tx *lib.Transaction) {
				p := tx.NextRound.Round
				m := p.SortedByOrder()[0]
				delete(p.Miners, m.Pubkey)
				m.Pubkey = stranger[0]
				p.Miners[m.Pubkey] = m
			},
			code:     lib.CodeMinerSetMismatch,
			category: CategoryOrderConflict,
		},
		{
			name:   "uneven slots",
			detail: "one slot is a millisecond late",
			modify: func(tx *lib.Transaction) {
				m := tx.NextRound.Round.SortedByOrder()[2]
				m.ExpectedMiningTime = m.ExpectedMiningTime.Add(time.Millisecond)
			},
			code:     lib.CodeIntervalMismatch,
			category: CategoryTimeSlotViolation,
		},
		{
			name:   "shifted schedule",
			detail: "every slot 100 seconds in the future",
			modify: func(tx *lib.Transaction) {
				p := tx.NextRound.Round
				p.StartTime = p.StartTime.Add(100 * time.Second)
				for _, m := range p.Miners {
					m.ExpectedMiningTime = m.ExpectedMiningTime.Add(100 * time.Second)
				}
			},
			code:     lib.CodeRoundStartDeviation,
			category: CategoryTimeSlotViolation,
		},
		{
			name:   "claimed time",
			detail: "the terminating block claims a time 100 seconds ahead",
			modify: func(tx *lib.Transaction) {
				tx.NextRound.ActualMiningTime = tx.NextRound.ActualMiningTime.Add(100 * time.Second)
			},
			code:     lib.CodeClaimedTimeDeviation,
			category: CategoryTimeSlotViolation,
		},
		{
			name:      "term change not due",
			detail:    "next term claimed while the state requires next round",
			behaviour: lib.BehaviourNextTerm,
			modify:    func(tx *lib.Transaction) {},
			code:      lib.CodeBehaviourMismatch,
			category:  CategoryPermissionDenied,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			behaviour := lib.BehaviourNextRound
			if test.behaviour != "" {
				behaviour = test.behaviour
			}
			tx := c.build(terminator, behaviour, at)
			test.modify(tx)
			c.requireRejected(c.resign(terminator, tx), test.code, test.category)
		})
	}
	// the untouched proposal is accepted and keeps the confirmed height
	c.terminate(lib.BehaviourNextRound)
	h, _, err := c.engine.LIB()
	require.NoError(t, err)
	require.EqualValues(t, 2, h)
}

func TestEngineInvalidatedReveal(t *testing.T) {
	c := newTestChain(t, 3, testConfig())
	c.playRound(lib.BehaviourNextRound)
	round1 := c.previous()
	first := c.current().FirstMiner()
	tx := c.build(first.Pubkey, lib.BehaviourUpdateValue, first.ExpectedMiningTime)
	// the sentinel as the reveal, with a signature hint that must be ignored
	tx.UpdateValue.PreviousInValue = crypto.EmptyHash.Ptr()
	tx.UpdateValue.Signature = crypto.Sum([]byte("hint")).Ptr()
	result, err := c.engine.Submit(context.Background(), c.resign(first.Pubkey, tx))
	require.NoError(t, err)
	require.True(t, result.Accepted)
	slot := c.current().Miners[first.Pubkey]
	require.Equal(t, lib.CommitmentInvalidated, slot.PreviousInValue.State)
	require.Nil(t, slot.PreviousInValue.Value)
	require.Equal(t, CalculateSignature(crypto.EmptyHash, round1), *slot.Signature)
	require.Equal(t, AllocateNextOrder(*slot.Signature, 3), slot.SupposedOrderOfNextRound)
}

func TestEngineWithheldReveal(t *testing.T) {
	c := newTestChain(t, 3, testConfig())
	c.playRound(lib.BehaviourNextRound)
	first := c.current().FirstMiner()
	tx := c.build(first.Pubkey, lib.BehaviourUpdateValue, first.ExpectedMiningTime)
	tx.UpdateValue.PreviousInValue = nil
	_, err := c.engine.Submit(context.Background(), c.resign(first.Pubkey, tx))
	require.NoError(t, err)
	require.Equal(t, lib.CommitmentWithheld, c.current().Miners[first.Pubkey].PreviousInValue.State)
}

func TestEngineStoreFailure(t *testing.T) {
	c := newTestChain(t, 3, testConfig())
	first := c.current().FirstMiner()
	tx := c.build(first.Pubkey, lib.BehaviourUpdateValue, first.ExpectedMiningTime)
	c.store.fail = true
	c.requireRejected(tx, lib.CodeCommitDB, CategoryInternal)
	require.False(t, c.engine.Halted())
	// the same transaction goes through once the store recovers
	c.store.fail = false
	result, err := c.engine.Submit(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, result.Accepted)
}

func TestEngineHaltsOnStateCorruption(t *testing.T) {
	c := newTestChain(t, 3, testConfig())
	engine, err := New(c.config, newTestStore(t), nil, nil, c.clock, nil, lib.NewNullLogger())
	require.NoError(t, err)
	genesis, err := GenerateFirstRound(c.pubkeys, genesisTime, c.config)
	require.NoError(t, err)
	// a miner that already mined with a next round order outside the round
	corrupt := genesis.Miners[c.pubkeys[2]]
	corrupt.OutValue, corrupt.Signature, corrupt.SupposedOrderOfNextRound = crypto.Sum([]byte("x")).Ptr(), crypto.EmptyHash.Ptr(), 99
	require.NoError(t, engine.InitGenesis(genesis))
	c.clock.Set(genesis.Miners[c.pubkeys[0]].ExpectedMiningTime)
	_, err = c.miners[c.pubkeys[0]].Produce(context.Background(), engine)
	require.True(t, lib.ErrorsIs(err, lib.ConsensusModule, lib.CodeStateCorruption))
	require.True(t, engine.Halted())
	_, err = c.miners[c.pubkeys[0]].Produce(context.Background(), engine)
	require.True(t, lib.ErrorsIs(err, lib.ConsensusModule, lib.CodeEngineHalted))
	// the committed state is the genesis
	current, e := engine.GetCurrentRound()
	require.NoError(t, e)
	require.Equal(t, genesis.BlockHeight, current.BlockHeight)
}

func TestEngineNoGenesis(t *testing.T) {
	engine, err := New(testConfig(), newTestStore(t), nil, nil, lib.NewManualClock(genesisTime), nil, lib.NewNullLogger())
	require.NoError(t, err)
	_, err = engine.GetCurrentRound()
	require.True(t, lib.ErrorsIs(err, lib.ConsensusModule, lib.CodeNoGenesis))
	result, err := engine.Submit(context.Background(), &lib.Transaction{Behaviour: lib.BehaviourTinyBlock})
	require.True(t, lib.ErrorsIs(err, lib.ConsensusModule, lib.CodeNoGenesis))
	require.False(t, result.Accepted)
	require.True(t, lib.ErrorsIs(engine.InitGenesis(nil), lib.MainModule, lib.CodeNilRound))
}

func TestEngineResubmission(t *testing.T) {
	c := newTestChain(t, 3, testConfig())
	first := c.current().FirstMiner()
	tx := c.build(first.Pubkey, lib.BehaviourUpdateValue, first.ExpectedMiningTime)
	_, err := c.engine.Submit(context.Background(), tx)
	require.NoError(t, err)
	// the state moved on: the miner may only produce tiny blocks now
	c.requireRejected(tx, lib.CodeBehaviourMismatch, CategoryPermissionDenied)
	for _, m := range c.current().SortedByOrder()[1:] {
		c.produce(m.Pubkey, m.ExpectedMiningTime, lib.BehaviourUpdateValue)
	}
	r, interval := c.current(), c.config.MiningInterval()
	terminator := r.ExtraBlockProducer().Pubkey
	termination := c.build(terminator, lib.BehaviourNextRound, r.ExtraBlockMiningTime(interval))
	_, err = c.engine.Submit(context.Background(), termination)
	require.NoError(t, err)
	c.requireRejected(termination, lib.CodeWrongRoundNumber, CategoryMalformed)
}

func TestEngineMissedMiners(t *testing.T) {
	c := newTestChain(t, 3, testConfig())
	absent := c.pubkeys[2]
	c.playRound(lib.BehaviourNextRound, absent)
	// the first missed round of the term is covered by the fallback value
	settled := c.previous().Miners[absent]
	require.Equal(t, lib.CommitmentFallback, settled.PreviousInValue.State)
	require.Equal(t, FallbackValue(absent, c.previous().BlockHeight), *settled.PreviousInValue.Value)
	slot := c.current().Miners[absent]
	require.EqualValues(t, 1, slot.MissedTimeSlots)
	require.EqualValues(t, 1, slot.ConsecutiveMissedRounds)
	require.True(t, slot.FallbackUsedInTerm)
	c.playRound(lib.BehaviourNextRound, absent)
	require.Equal(t, lib.CommitmentMissed, c.previous().Miners[absent].PreviousInValue.State)
	slot = c.current().Miners[absent]
	require.EqualValues(t, 2, slot.MissedTimeSlots)
	require.EqualValues(t, 2, slot.ConsecutiveMissedRounds)
	// mining again resets the consecutive count only
	c.playRound(lib.BehaviourNextRound)
	slot = c.current().Miners[absent]
	require.EqualValues(t, 2, slot.MissedTimeSlots)
	require.Zero(t, slot.ConsecutiveMissedRounds)
}

func TestEngineMiningStatusDegrades(t *testing.T) {
	c := newTestChain(t, 3, testConfig())
	absent := c.pubkeys[2]
	// two of three miners never confirm an irreversible height
	for i := 0; i < 2; i++ {
		c.playRound(lib.BehaviourNextRound, absent)
	}
	status, _, err := c.engine.MiningStatus()
	require.NoError(t, err)
	require.Equal(t, MiningStatusAbnormal, status)
	for i := 0; i < 6; i++ {
		c.playRound(lib.BehaviourNextRound, absent)
	}
	status, maxBlocks, err := c.engine.MiningStatus()
	require.NoError(t, err)
	require.EqualValues(t, 9, c.current().RoundNumber)
	require.Equal(t, MiningStatusSevere, status)
	require.Equal(t, 1, maxBlocks)
	height, _, err := c.engine.LIB()
	require.NoError(t, err)
	require.Zero(t, height)
}

func TestEngineReconstructsInValues(t *testing.T) {
	config := testConfig()
	config.SecretSharingEnabled = true
	c := newTestChain(t, 4, config)
	c.playRound(lib.BehaviourNextRound)
	for _, m := range c.previous().Miners {
		require.Len(t, m.EncryptedPieces, 3)
	}
	absent := c.current().FirstMiner().Pubkey
	committed := c.miners[absent].inValues[1]
	round1 := c.previous()
	c.mineRound(absent)
	for pk, m := range c.current().Miners {
		if pk != absent {
			require.Len(t, m.DecryptedPieces, 3)
		}
	}
	c.terminate(lib.BehaviourNextRound, absent)
	settled := c.previous().Miners[absent]
	require.Equal(t, lib.CommitmentReconstructed, settled.PreviousInValue.State)
	require.Equal(t, committed, *settled.PreviousInValue.Value)
	require.Equal(t, CalculateSignature(committed, round1), *settled.Signature)
	// reconstruction doesn't use up the fallback
	require.False(t, settled.FallbackUsedInTerm)
}

func TestEngineNextTerm(t *testing.T) {
	config := testConfig()
	config.PeriodSeconds = 40
	c := newTestChain(t, 4, config)
	newcomer, _ := newTestKeys(t, 1)
	victories := []string{c.pubkeys[2], newcomer[0], c.pubkeys[0], c.pubkeys[1]}
	c.elector.victories[2] = victories
	c.playRound(lib.BehaviourNextRound)
	c.playRound(lib.BehaviourNextRound)
	// round 3 is mined after the first period ended
	c.playRound(lib.BehaviourNextTerm)
	r := c.current()
	require.EqualValues(t, 4, r.RoundNumber)
	require.EqualValues(t, 2, r.TermNumber)
	require.Equal(t, victories, r.MinerList())
	require.True(t, r.IsMinerListJustChanged)
	require.NoError(t, CheckRoundTimes(r, config.MiningInterval()))
	require.Equal(t, c.previous().ConfirmedIrreversibleHeight, r.ConfirmedIrreversibleHeight)
	produced, err := c.engine.TermProducedBlocks(1)
	require.NoError(t, err)
	require.Len(t, produced, 4)
	for _, pk := range c.pubkeys {
		require.GreaterOrEqual(t, produced[pk], uint64(3))
	}
	produced, err = c.engine.TermProducedBlocks(2)
	require.NoError(t, err)
	require.Len(t, produced, 4)
	require.Zero(t, produced[newcomer[0]])
	_, err = c.engine.TermProducedBlocks(3)
	require.True(t, lib.ErrorsIs(err, lib.MainModule, lib.CodeInvalidArgument))
	require.Empty(t, c.elector.reported)
}

func TestEngineNextTermIgnoresMalformedMiners(t *testing.T) {
	tests := []struct {
		name      string
		detail    string
		sideChain bool
		miners    func(pubkeys []string) []string
		expected  lib.Behaviour
		term      uint64
	}{
		{
			name:     "malformed victory",
			detail:   "a victory that isn't a public key keeps the current miners for the new term",
			miners:   func(pubkeys []string) []string { return []string{pubkeys[2], "abcd", pubkeys[0]} },
			expected: lib.BehaviourNextTerm,
			term:     2,
		},
		{
			name:     "duplicate victory",
			detail:   "a miner elected twice keeps the current miners for the new term",
			miners:   func(pubkeys []string) []string { return []string{pubkeys[1], pubkeys[1], pubkeys[0]} },
			expected: lib.BehaviourNextTerm,
			term:     2,
		},
		{
			name:      "malformed main chain miner",
			detail:    "a side chain doesn't change term to a malformed main chain list",
			sideChain: true,
			miners:    func(pubkeys []string) []string { return []string{pubkeys[0], "abcd"} },
			expected:  lib.BehaviourNextRound,
			term:      1,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			config := testConfig()
			config.PeriodSeconds = 40
			config.IsSideChain = test.sideChain
			c := newTestChain(t, 4, config)
			if test.sideChain {
				c.engine.mainChain = &testMainChain{miners: test.miners(c.pubkeys)}
			} else {
				c.elector.victories[2] = test.miners(c.pubkeys)
			}
			c.playRound(lib.BehaviourNextRound)
			c.playRound(lib.BehaviourNextRound)
			c.playRound(test.expected)
			r := c.current()
			require.EqualValues(t, 4, r.RoundNumber)
			require.Equal(t, test.term, r.TermNumber)
			require.ElementsMatch(t, c.pubkeys, r.MinerList())
		})
	}
}

func TestEngineTermProducedBlocksOutlivesHistory(t *testing.T) {
	config := testConfig()
	config.PeriodSeconds = 40
	c := newTestChain(t, 4, config)
	c.playRound(lib.BehaviourNextRound)
	c.playRound(lib.BehaviourNextRound)
	c.playRound(lib.BehaviourNextTerm)
	closed, err := c.engine.TermProducedBlocks(1)
	require.NoError(t, err)
	// term 2 never ends
	c.engine.config.PeriodSeconds = 0
	for i := 0; i < 20; i++ {
		c.playRound(lib.BehaviourNextRound)
	}
	require.EqualValues(t, 24, c.current().RoundNumber)
	_, err = c.engine.GetRound(2)
	require.True(t, lib.ErrorsIs(err, lib.StorageModule, lib.CodeRoundNotFound), err)
	open := make(map[string]uint64)
	for pk, m := range c.current().Miners {
		open[pk] = m.ProducedBlocks
	}
	tests := []struct {
		name     string
		detail   string
		term     uint64
		expected map[string]uint64
	}{
		{
			name:     "closed term",
			detail:   "the round closing term 1 is older than the history window",
			term:     1,
			expected: closed,
		},
		{
			name:     "current term",
			detail:   "the current round carries the blocks of the open term",
			term:     2,
			expected: open,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			produced, err := c.engine.TermProducedBlocks(test.term)
			require.NoError(t, err)
			require.Equal(t, test.expected, produced)
		})
	}
}

func TestEngineNextTermRemovesEvilMiners(t *testing.T) {
	config := testConfig()
	config.PeriodSeconds = 40
	config.TolerableMissedTimeSlots = 1
	c := newTestChain(t, 4, config)
	c.playRound(lib.BehaviourNextRound)
	c.playRound(lib.BehaviourNextRound)
	var absent string
	for _, m := range c.current().SortedByOrder() {
		if !m.IsExtraBlockProducer {
			absent = m.Pubkey
			break
		}
	}
	c.playRound(lib.BehaviourNextTerm, absent)
	require.Equal(t, []string{absent}, c.elector.reported[1])
	r := c.current()
	require.EqualValues(t, 2, r.TermNumber)
	require.Len(t, r.MinerList(), 3)
	require.NotContains(t, r.MinerList(), absent)
}

func TestEngineSideChain(t *testing.T) {
	config := testConfig()
	config.IsSideChain = true
	c := newTestChain(t, 4, config)
	mainChain := []string{c.pubkeys[3], c.pubkeys[1], c.pubkeys[0]}
	c.engine.mainChain = &testMainChain{miners: mainChain}
	// the first round always ends with next round
	c.playRound(lib.BehaviourNextRound)
	c.playRound(lib.BehaviourNextTerm)
	r := c.current()
	require.EqualValues(t, 2, r.TermNumber)
	require.Equal(t, mainChain, r.MinerList())
	// the same set in another order doesn't change the term
	c.engine.mainChain = &testMainChain{miners: []string{c.pubkeys[0], c.pubkeys[1], c.pubkeys[3]}}
	c.playRound(lib.BehaviourNextRound)
	require.EqualValues(t, 2, c.current().TermNumber)
}

func TestEngineConsensusCommand(t *testing.T) {
	c := newTestChain(t, 3, testConfig())
	r := c.current()
	first := r.FirstMiner()
	c.clock.Set(genesisTime)
	cmd, err := c.engine.ConsensusCommand(context.Background(), first.Pubkey)
	require.NoError(t, err)
	require.Equal(t, lib.BehaviourUpdateValue, cmd.Behaviour)
	require.Equal(t, first.ExpectedMiningTime, cmd.ArrangedMiningTime)
	require.EqualValues(t, 1, cmd.RoundNumber)
	stranger, _ := newTestKeys(t, 1)
	_, err = c.engine.ConsensusCommand(context.Background(), stranger[0])
	require.True(t, lib.ErrorsIs(err, lib.ConsensusModule, lib.CodePermissionDenied))
}

func TestEngineConcurrentReaders(t *testing.T) {
	c := newTestChain(t, 4, testConfig())
	var (
		wg   sync.WaitGroup
		done atomic.Bool
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !done.Load() {
				r, err := c.engine.GetCurrentRound()
				if !assert.NoError(t, err) {
					return
				}
				assert.NoError(t, r.CheckOrders())
				height, _, err := c.engine.LIB()
				assert.NoError(t, err)
				assert.LessOrEqual(t, r.ConfirmedIrreversibleHeight, height)
			}
		}()
	}
	for i := 0; i < 3; i++ {
		c.playRound(lib.BehaviourNextRound)
	}
	done.Store(true)
	wg.Wait()
}

func TestGenesisFile(t *testing.T) {
	pubkeys, _ := newTestKeys(t, 3)
	g := &Genesis{StartTime: genesisTime}
	for _, pk := range pubkeys {
		g.Miners = append(g.Miners, GenesisMiner{Pubkey: pk, BoxKey: "00"})
	}
	dir := t.TempDir()
	require.NoError(t, WriteGenesisFile(g, dir))
	read, err := ReadGenesisFromFile(dir)
	require.NoError(t, err)
	require.True(t, g.StartTime.Equal(read.StartTime))
	require.Equal(t, pubkeys, read.MinerList())
	require.Len(t, read.BoxKeys(), 3)
	r, err := read.FirstRound(testConfig())
	require.NoError(t, err)
	require.Equal(t, pubkeys, r.MinerList())
	require.True(t, genesisTime.Equal(r.BlockchainStartTime))
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name     string
		detail   string
		err      error
		expected string
	}{
		{name: "order", detail: "order errors", err: ErrOrderMismatch("a", 1, 2), expected: CategoryOrderConflict},
		{name: "time", detail: "time slot errors", err: ErrSlotPassed(genesisTime), expected: CategoryTimeSlotViolation},
		{name: "lib", detail: "irreversible height errors", err: ErrLibUnjustified("height", 3, 2), expected: CategoryLibRegression},
		{name: "permission", detail: "sender errors", err: ErrPermissionDenied("a"), expected: CategoryPermissionDenied},
		{name: "corruption", detail: "halting errors", err: ErrEngineHalted(), expected: CategoryStateCorruption},
		{name: "commitment", detail: "commitment errors", err: ErrMissingOutValue(), expected: CategoryInvalidCommitment},
		{name: "malformed", detail: "payload errors", err: ErrEmptyPayload(lib.BehaviourTinyBlock), expected: CategoryMalformed},
		{name: "other module", detail: "errors of other modules", err: lib.ErrNilRound(), expected: CategoryInternal},
		{name: "plain error", detail: "non library errors", err: context.Canceled, expected: CategoryInternal},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, CategoryOf(test.err))
		})
	}
}
