package consensus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/canopy-network/aedpos/lib"
)

/*
	The Engine owns the round state of the chain.

	Transactions are applied one at a time under a single writer lock. Each one reads a consistent snapshot of the
	committed rounds and the clock once, runs the validation pipeline, applies the transition to clones and commits
	all touched rounds atomically before the new snapshot is published. Readers never take the lock: they load the
	snapshot pointer and receive clones.

	Any transition that would break a structural property of the rounds halts the engine instead of being committed.
*/

// Engine is the AEDPoS round scheduler
type Engine struct {
	config    lib.ConsensusConfig      // protocol parameters
	store     lib.RoundStoreI          // committed rounds
	elector   lib.ElectorI             // candidate selection at term changes, may be nil
	mainChain lib.MainChainSourceI     // main chain miner list for side chains, may be nil
	clock     lib.Clock                // the authoritative time
	metrics   *lib.Metrics             // telemetry, may be nil
	log       lib.LoggerI              // logger
	mu        sync.Mutex               // single writer
	snapshot  atomic.Pointer[snapshot] // the committed state readers see
	halted    atomic.Bool              // true after a state corruption
}

// snapshot is an immutable view of the committed state
type snapshot struct {
	current  *lib.Round
	previous *lib.Round
}

// New() creates the engine and loads the committed state, if any
func New(c lib.ConsensusConfig, store lib.RoundStoreI, elector lib.ElectorI, mainChain lib.MainChainSourceI,
	clock lib.Clock, m *lib.Metrics, l lib.LoggerI) (*Engine, lib.ErrorI) {
	if clock == nil {
		clock = lib.NewSystemClock()
	}
	e := &Engine{config: c, store: store, elector: elector, mainChain: mainChain, clock: clock, metrics: m, log: l}
	current, err := store.LatestRound()
	if err != nil {
		return nil, err
	}
	if current == nil {
		return e, nil
	}
	var previous *lib.Round
	if current.RoundNumber > 1 {
		if previous, err = store.GetRound(current.RoundNumber - 1); err != nil {
			e.log.Warnf("Previous round %d not available: %s", current.RoundNumber-1, err.Error())
			previous = nil
		}
	}
	e.snapshot.Store(&snapshot{current: current, previous: previous})
	e.metrics.UpdateRound(current, int(MiningStatusOf(current, c)))
	e.log.Infof("Loaded round %d of term %d", current.RoundNumber, current.TermNumber)
	return e, nil
}

// InitGenesis() commits the first round if nothing was committed yet
func (e *Engine) InitGenesis(r *lib.Round) lib.ErrorI {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snapshot.Load() != nil {
		e.log.Debug("Genesis round already committed")
		return nil
	}
	if r == nil {
		return lib.ErrNilRound()
	}
	if err := r.CheckOrders(); err != nil {
		return ErrOrderConflict(err)
	}
	if err := CheckRoundTimes(r, e.config.MiningInterval()); err != nil {
		return err
	}
	genesis := r.Clone()
	if err := e.store.CommitRounds(genesis); err != nil {
		return err
	}
	e.snapshot.Store(&snapshot{current: genesis})
	e.metrics.UpdateRound(genesis, int(MiningStatusNormal))
	e.log.Infof("Committed genesis round with %d miners", genesis.MinersCount())
	return nil
}

// Submit() validates and applies a round-advancing transaction.
// A rejected transaction leaves the state untouched and returns the reason in both the result and the error
func (e *Engine) Submit(ctx context.Context, tx *lib.Transaction) (*lib.TxResult, lib.ErrorI) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if tx == nil {
		return e.reject(tx, lib.ErrInvalidArgument())
	}
	if e.halted.Load() {
		return e.reject(tx, ErrEngineHalted())
	}
	snap := e.snapshot.Load()
	if snap == nil {
		return e.reject(tx, ErrNoGenesis())
	}
	vc := e.newValidationContext(ctx, tx, snap, e.clock.Now())
	if err := PipelineFor(tx.Behaviour).Validate(vc); err != nil {
		return e.reject(tx, err)
	}
	t, err := apply(vc)
	if err != nil {
		if lib.ErrorsIs(err, lib.ConsensusModule, lib.CodeStateCorruption) {
			e.halt(err)
		}
		return e.reject(tx, err)
	}
	if err = e.checkTransition(snap, t); err != nil {
		e.halt(err)
		return e.reject(tx, err)
	}
	if err = e.store.CommitRounds(t.commit...); err != nil {
		return e.reject(tx, err)
	}
	e.snapshot.Store(&snapshot{current: t.current, previous: t.previous})
	e.afterCommit(ctx, t, time.Since(start))
	return &lib.TxResult{Accepted: true, Behaviour: tx.Behaviour, RoundNumber: t.current.RoundNumber}, nil
}

// newValidationContext() gathers everything the validators read
func (e *Engine) newValidationContext(ctx context.Context, tx *lib.Transaction, snap *snapshot, now time.Time) *ValidationContext {
	vc := &ValidationContext{
		Tx:       tx,
		Current:  snap.current,
		Previous: snap.previous,
		Now:      now,
		Config:   e.config,
		Log:      e.log,
	}
	termination, mainChainMiners := e.terminationBehaviour(ctx, snap.current)
	vc.Command = DecideCommand(snap.current, tx.Sender, now, termination, e.config)
	if tx.Behaviour == lib.BehaviourNextTerm && vc.Command.Behaviour == lib.BehaviourNextTerm {
		vc.Miners = e.nextTermMiners(ctx, snap.current, mainChainMiners)
	}
	return vc
}

// terminationBehaviour() returns how the current round ends. A side chain changes term when the main chain miners
// differ from its own, a main chain when more than the quorum of miners produced outside the term's period
func (e *Engine) terminationBehaviour(ctx context.Context, r *lib.Round) (lib.Behaviour, []string) {
	if r.RoundNumber == 1 {
		return lib.BehaviourNextRound, nil
	}
	if e.config.IsSideChain {
		if e.mainChain == nil {
			return lib.BehaviourNextRound, nil
		}
		miners, err := e.mainChain.MainChainMiners(ctx)
		if err != nil {
			e.log.Warnf("Main chain miners unavailable: %s", err.Error())
			return lib.BehaviourNextRound, nil
		}
		if len(miners) == 0 || sameMiners(r, miners) {
			return lib.BehaviourNextRound, nil
		}
		if err = checkMinerList(miners); err != nil {
			e.log.Warnf("Main chain miners rejected: %s", err.Error())
			return lib.BehaviourNextRound, nil
		}
		return lib.BehaviourNextTerm, miners
	}
	if NeedToChangeTerm(r, e.config) {
		return lib.BehaviourNextTerm, nil
	}
	return lib.BehaviourNextRound, nil
}

// nextTermMiners() returns the ordered miner list of the next term: the main chain miners of a side chain, else the
// well formed election victories without the evil miners, else the current miners
func (e *Engine) nextTermMiners(ctx context.Context, r *lib.Round, mainChainMiners []string) []string {
	if len(mainChainMiners) != 0 {
		return mainChainMiners
	}
	candidates := r.MinerList()
	if e.elector != nil {
		victories, err := e.elector.GetVictories(ctx, r.TermNumber+1)
		switch {
		case err != nil:
			e.log.Warnf("Election of term %d unavailable, keeping the current miners: %s", r.TermNumber+1, err.Error())
		case len(victories) != 0:
			if err = checkMinerList(victories); err != nil {
				e.log.Warnf("Election of term %d rejected, keeping the current miners: %s", r.TermNumber+1, err.Error())
			} else {
				candidates = victories
			}
		}
	}
	if miners := excludeMiners(candidates, EvilMiners(r, e.config.TolerableMissedTimeSlots)); len(miners) != 0 {
		return miners
	}
	return candidates
}

// checkTransition() asserts the structural properties of the state a transition produces
func (e *Engine) checkTransition(before *snapshot, t *transition) lib.ErrorI {
	if t.current == nil {
		return ErrStateCorruption(fmt.Errorf("transition produced no current round"))
	}
	if err := t.current.CheckOrders(); err != nil {
		return ErrStateCorruption(err)
	}
	if err := CheckFinalOrders(t.current); err != nil {
		return ErrStateCorruption(err)
	}
	if t.previous != nil {
		if err := CheckFinalOrders(t.previous); err != nil {
			return ErrStateCorruption(err)
		}
	}
	old := before.current
	if t.current.ConfirmedIrreversibleHeight < old.ConfirmedIrreversibleHeight {
		return ErrStateCorruption(fmt.Errorf("irreversible height moved from %d to %d", old.ConfirmedIrreversibleHeight, t.current.ConfirmedIrreversibleHeight))
	}
	if t.current.RoundNumber != old.RoundNumber && t.current.RoundNumber != old.RoundNumber+1 {
		return ErrStateCorruption(fmt.Errorf("round number moved from %d to %d", old.RoundNumber, t.current.RoundNumber))
	}
	if t.current.BlockHeight != old.BlockHeight+1 {
		return ErrStateCorruption(fmt.Errorf("block height moved from %d to %d", old.BlockHeight, t.current.BlockHeight))
	}
	return nil
}

// afterCommit() updates telemetry and notifies the elector of evil miners
func (e *Engine) afterCommit(ctx context.Context, t *transition, took time.Duration) {
	status := MiningStatusOf(t.current, e.config)
	e.metrics.ObserveTransition(t.behaviour, took)
	e.metrics.UpdateRound(t.current, int(status))
	if status == MiningStatusSevere {
		e.metrics.ObserveSevere()
		e.log.Errorf("Irreversible round %d lags round %d, mining status is severe", t.current.ConfirmedIrreversibleRound, t.current.RoundNumber)
	}
	switch t.behaviour {
	case lib.BehaviourNextRound, lib.BehaviourNextTerm:
		e.log.Infof("Round %d of term %d started with %d miners", t.current.RoundNumber, t.current.TermNumber, t.current.MinersCount())
	default:
		e.log.Debugf("Applied %s at height %d", t.behaviour, t.current.BlockHeight)
	}
	if len(t.evil) == 0 {
		return
	}
	e.metrics.ObserveEvilMiners(len(t.evil))
	e.log.Warnf("Reporting %d evil miners of term %d", len(t.evil), t.previous.TermNumber)
	if e.elector == nil {
		return
	}
	if err := e.elector.ReportEvilMiners(ctx, t.previous.TermNumber, t.evil); err != nil {
		e.log.Errorf("Reporting evil miners failed: %s", err.Error())
	}
}

// reject() logs and counts a rejected transaction
func (e *Engine) reject(tx *lib.Transaction, err lib.ErrorI) (*lib.TxResult, lib.ErrorI) {
	category := CategoryOf(err)
	result := &lib.TxResult{Code: err.Code(), Category: category, Message: err.Error()}
	if tx != nil {
		result.Behaviour, result.RoundNumber = tx.Behaviour, tx.RoundNumber
		e.log.Warnf("Rejected %s from %s: %s (%s)", tx.Behaviour, lib.ShortString(tx.Sender), category, err.Error())
	}
	e.metrics.ObserveRejection(err.Code(), category)
	return result, err
}

// halt() stops accepting transactions after a state corruption
func (e *Engine) halt(err lib.ErrorI) {
	e.halted.Store(true)
	e.log.Errorf("Engine halted: %s", err.Error())
}

// Halted() returns true once a state corruption stopped the engine
func (e *Engine) Halted() bool { return e.halted.Load() }

// GetCurrentRound() returns a copy of the current round
func (e *Engine) GetCurrentRound() (*lib.Round, lib.ErrorI) {
	snap := e.snapshot.Load()
	if snap == nil {
		return nil, ErrNoGenesis()
	}
	return snap.current.Clone(), nil
}

// GetPreviousRound() returns a copy of the previous round, nil during the first round
func (e *Engine) GetPreviousRound() (*lib.Round, lib.ErrorI) {
	snap := e.snapshot.Load()
	if snap == nil {
		return nil, ErrNoGenesis()
	}
	return snap.previous.Clone(), nil
}

// GetRound() returns a copy of any round inside the history window
func (e *Engine) GetRound(number uint64) (*lib.Round, lib.ErrorI) {
	if snap := e.snapshot.Load(); snap != nil {
		switch {
		case snap.current.RoundNumber == number:
			return snap.current.Clone(), nil
		case snap.previous != nil && snap.previous.RoundNumber == number:
			return snap.previous.Clone(), nil
		}
	}
	return e.store.GetRound(number)
}

// LIB() returns the confirmed irreversible height and the round it was confirmed for
func (e *Engine) LIB() (height, round uint64, err lib.ErrorI) {
	snap := e.snapshot.Load()
	if snap == nil {
		return 0, 0, ErrNoGenesis()
	}
	return snap.current.ConfirmedIrreversibleHeight, snap.current.ConfirmedIrreversibleRound, nil
}

// MiningStatus() classifies the current round and returns the blocks a miner may produce per slot
func (e *Engine) MiningStatus() (MiningStatus, int, lib.ErrorI) {
	snap := e.snapshot.Load()
	if snap == nil {
		return MiningStatusNormal, 0, ErrNoGenesis()
	}
	return MiningStatusOf(snap.current, e.config), MaximumBlocksCount(snap.current, e.config), nil
}

// ConsensusCommand() tells a miner what it may produce next and when
func (e *Engine) ConsensusCommand(ctx context.Context, pubkey string) (*Command, lib.ErrorI) {
	snap := e.snapshot.Load()
	if snap == nil {
		return nil, ErrNoGenesis()
	}
	if !snap.current.IsMiner(pubkey) {
		return nil, ErrPermissionDenied(pubkey)
	}
	termination, _ := e.terminationBehaviour(ctx, snap.current)
	return DecideCommand(snap.current, pubkey, e.clock.Now(), termination, e.config), nil
}

// ProposeTermination() derives the round a miner proposes to end the current round with at now
func (e *Engine) ProposeTermination(ctx context.Context, behaviour lib.Behaviour, now time.Time) (*lib.Round, lib.ErrorI) {
	snap := e.snapshot.Load()
	if snap == nil {
		return nil, ErrNoGenesis()
	}
	var miners []string
	if behaviour == lib.BehaviourNextTerm {
		_, mainChainMiners := e.terminationBehaviour(ctx, snap.current)
		miners = e.nextTermMiners(ctx, snap.current, mainChainMiners)
	}
	t, err := DeriveTermination(snap.current, snap.previous, behaviour, miners, now, e.config)
	if err != nil {
		return nil, err
	}
	return t.next, nil
}

// TermProducedBlocks() returns the blocks every miner produced in a term, read from the last round of the term
func (e *Engine) TermProducedBlocks(term uint64) (map[string]uint64, lib.ErrorI) {
	snap := e.snapshot.Load()
	if snap == nil {
		return nil, ErrNoGenesis()
	}
	last := snap.current
	if term != snap.current.TermNumber {
		if term == 0 || term > snap.current.TermNumber {
			return nil, lib.ErrInvalidArgument()
		}
		first, err := e.store.TermFirstRound(term + 1)
		if err != nil {
			return nil, err
		}
		if last, err = e.GetRound(first - 1); err != nil {
			return nil, err
		}
	}
	out := make(map[string]uint64, last.MinersCount())
	for pk, m := range last.Miners {
		out[pk] = m.ProducedBlocks
	}
	return out, nil
}
