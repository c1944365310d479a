package consensus

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/canopy-network/aedpos/lib"
	"github.com/canopy-network/aedpos/lib/crypto"
	"github.com/canopy-network/aedpos/secret"
)

// Miner produces the transactions of a single local miner
type Miner struct {
	key        crypto.PrivateKeyI          // signs transactions
	pubkey     string                      // the miner identifier
	box        *secret.BoxKey              // opens shares sealed to this miner, may be nil
	boxKeys    map[string]*[32]byte        // public box keys of the miners shares are sealed to
	config     lib.ConsensusConfig         // protocol parameters
	inValues   map[uint64]crypto.Hash      // in values by the round they were committed in
	newInValue func() (crypto.Hash, error) // source of fresh in values
	log        lib.LoggerI                 // logger
}

// NewMiner() creates the producer for a local key. boxKeys maps miner public keys to hex box public keys
func NewMiner(key crypto.PrivateKeyI, box *secret.BoxKey, boxKeys map[string]string, c lib.ConsensusConfig, l lib.LoggerI) (*Miner, lib.ErrorI) {
	keys := make(map[string]*[32]byte, len(boxKeys))
	for pk, s := range boxKeys {
		k, err := secret.BoxPublicKeyFromString(s)
		if err != nil {
			return nil, err
		}
		keys[pk] = k
	}
	return &Miner{
		key:        key,
		pubkey:     key.PublicKey().String(),
		box:        box,
		boxKeys:    keys,
		config:     c,
		inValues:   make(map[uint64]crypto.Hash),
		newInValue: randomInValue,
		log:        l,
	}, nil
}

// Pubkey() returns the miner identifier
func (m *Miner) Pubkey() string { return m.pubkey }

// Produce() submits the transaction the engine currently permits, it returns a nil result if nothing is due
func (m *Miner) Produce(ctx context.Context, e *Engine) (*lib.TxResult, lib.ErrorI) {
	cmd, err := e.ConsensusCommand(ctx, m.pubkey)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	if !cmd.IsDue(now) {
		return nil, nil
	}
	tx, err := m.BuildTransaction(ctx, e, cmd, now)
	if err != nil {
		return nil, err
	}
	return e.Submit(ctx, tx)
}

// Run() produces on every tick until the context is cancelled
func (m *Miner) Run(ctx context.Context, e *Engine, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.tick(ctx, e)
		}
	}
}

// tick() runs a single production attempt, a panic is logged and the loop goes on
func (m *Miner) tick(ctx context.Context, e *Engine) {
	defer lib.CatchPanic(m.log)
	result, err := m.Produce(ctx, e)
	if err != nil {
		m.log.Debugf("Nothing produced: %s", err.Error())
		return
	}
	if result != nil {
		m.log.Infof("Produced %s in round %d", result.Behaviour, result.RoundNumber)
	}
}

// BuildTransaction() creates and signs the transaction of a command at now
func (m *Miner) BuildTransaction(ctx context.Context, e *Engine, cmd *Command, now time.Time) (*lib.Transaction, lib.ErrorI) {
	current, err := e.GetCurrentRound()
	if err != nil {
		return nil, err
	}
	previous, err := e.GetPreviousRound()
	if err != nil {
		return nil, err
	}
	tx := &lib.Transaction{Behaviour: cmd.Behaviour, RoundNumber: current.RoundNumber}
	switch cmd.Behaviour {
	case lib.BehaviourUpdateValue:
		if tx.UpdateValue, err = m.updateValue(current, previous, now); err != nil {
			return nil, err
		}
	case lib.BehaviourTinyBlock:
		tx.TinyBlock = &lib.TinyBlockInput{ActualMiningTime: now, ProducedBlocks: current.Miners[m.pubkey].ProducedBlocks + 1}
	case lib.BehaviourNextRound, lib.BehaviourNextTerm:
		proposal, perr := e.ProposeTermination(ctx, cmd.Behaviour, now)
		if perr != nil {
			return nil, perr
		}
		tx.NextRound = &lib.NextRoundInput{Round: proposal, ActualMiningTime: now}
	default:
		return nil, ErrUnknownBehaviour(cmd.Behaviour)
	}
	if err = tx.Sign(m.key); err != nil {
		return nil, err
	}
	return tx, nil
}

// updateValue() commits to a fresh in value and reveals the one committed in the previous round
func (m *Miner) updateValue(current, previous *lib.Round, now time.Time) (*lib.UpdateValueInput, lib.ErrorI) {
	in, e := m.newInValue()
	if e != nil {
		return nil, lib.ErrInvalidHash(e)
	}
	m.inValues[current.RoundNumber] = in
	for round := range m.inValues {
		if round+1 < current.RoundNumber {
			delete(m.inValues, round)
		}
	}
	input := &lib.UpdateValueInput{
		OutValue:                       crypto.Sum(in.Bytes()),
		ActualMiningTime:               now,
		ImpliedIrreversibleBlockHeight: current.BlockHeight + 1,
	}
	if prev, ok := m.inValues[current.RoundNumber-1]; ok {
		input.PreviousInValue = prev.Ptr()
	}
	if !m.config.SecretSharingEnabled || m.box == nil {
		return input, nil
	}
	var err lib.ErrorI
	if input.EncryptedPieces, err = m.sealPieces(in, current); err != nil {
		return nil, err
	}
	input.DecryptedPieces = m.openPieces(previous)
	return input, nil
}

// sealPieces() splits an in value among the miners of the round and seals each other miner's piece to it
func (m *Miner) sealPieces(in crypto.Hash, r *lib.Round) (map[string]lib.HexBytes, lib.ErrorI) {
	pieces, err := secret.Split(in, ShareThreshold(r, m.config), r.MinersCount())
	if err != nil {
		return nil, err
	}
	sealed := make(map[string]lib.HexBytes)
	for i, pk := range lib.SortedKeys(r.Miners) {
		if pk == m.pubkey {
			continue
		}
		key, ok := m.boxKeys[pk]
		if !ok {
			m.log.Debugf("No box key for %s, skipping its piece", lib.ShortString(pk))
			continue
		}
		if sealed[pk], err = secret.Seal(pieces[i], key); err != nil {
			return nil, err
		}
	}
	return sealed, nil
}

// openPieces() decrypts the pieces the miners of the previous round sealed to this miner
func (m *Miner) openPieces(previous *lib.Round) map[string]lib.HexBytes {
	if previous == nil {
		return nil
	}
	opened := make(map[string]lib.HexBytes)
	for pk, owner := range previous.Miners {
		sealed, ok := owner.EncryptedPieces[m.pubkey]
		if pk == m.pubkey || !ok {
			continue
		}
		piece, err := m.box.Open(sealed)
		if err != nil {
			m.log.Warnf("Can't open the piece of %s: %s", lib.ShortString(pk), err.Error())
			continue
		}
		opened[pk] = piece
	}
	return opened
}

func randomInValue() (h crypto.Hash, err error) {
	_, err = rand.Read(h[:])
	return
}
