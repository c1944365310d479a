package store

import (
	"encoding/binary"
	"errors"
	"path/filepath"
	"sort"
	"sync"

	"github.com/canopy-network/aedpos/lib"
	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	roundPrefix  = lib.JoinLenPrefix([]byte("r/")) // prefix designated for the rounds by number
	termPrefix   = lib.JoinLenPrefix([]byte("t/")) // prefix designated for the first round number of each term
	latestPrefix = lib.JoinLenPrefix([]byte("l/")) // prefix designated for the number of the current round
	closePrefix  = lib.JoinLenPrefix([]byte("c/")) // prefix designated for the numbers of the last round of each term

	_ lib.RoundStoreI = &Store{} // enforce the store interface
)

/*
The Store persists committed rounds in a single BadgerDB instance.

Every commit writes all touched rounds, the latest pointer and the term index in one badger transaction, so readers
of the database see either the state before or after a transition, never a mix. Superseded rounds are retained for
a bounded history window and pruned in the same transaction that moves the window. The last round of every closed
term is exempt from pruning, it carries the produced blocks of the term.

Decoded rounds are kept in an LRU cache. Cached values are never handed out, only clones of them.
*/

type Store struct {
	db     *badger.DB                     // underlying database
	cache  *lru.Cache[uint64, *lib.Round] // decoded rounds by number
	config lib.StoreConfig                // config
	log    lib.LoggerI                    // logger
	mu     sync.Mutex                     // serializes commits
}

// New() creates a new instance of a round store either in memory or on disk
func New(config lib.StoreConfig, log lib.LoggerI) (*Store, lib.ErrorI) {
	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(filepath.Join(config.DataDirPath, config.DBName))
	}
	if config.BlockCacheSize > 0 {
		opts = opts.WithBlockCacheSize(config.BlockCacheSize)
	}
	// the logging level replaces the logger so it must be set first
	db, err := badger.Open(opts.WithLoggingLevel(badger.WARNING).WithLogger(newBadgerLogger(log)))
	if err != nil {
		return nil, ErrOpenDB(err)
	}
	return NewWithDB(db, config, log)
}

// NewWithDB() wraps an already opened database
func NewWithDB(db *badger.DB, config lib.StoreConfig, log lib.LoggerI) (*Store, lib.ErrorI) {
	size := config.CacheSize
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New[uint64, *lib.Round](size)
	if err != nil {
		return nil, ErrNewCache(err)
	}
	return &Store{db: db, cache: cache, config: config, log: log}, nil
}

// CommitRounds() atomically writes the rounds and moves the window
func (s *Store) CommitRounds(rounds ...*lib.Round) lib.ErrorI {
	if len(rounds) == 0 {
		return nil
	}
	for _, r := range rounds {
		if r == nil {
			return lib.ErrNilRound()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := append([]*lib.Round(nil), rounds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RoundNumber < sorted[j].RoundNumber })
	var pruned []uint64
	err := s.db.Update(func(txn *badger.Txn) error {
		latest, e := getUint64(txn, latestPrefix)
		if e != nil {
			return e
		}
		for _, r := range sorted {
			bz, er := lib.MarshalJSON(r)
			if er != nil {
				return er
			}
			if e = txn.Set(roundKey(r.RoundNumber), bz); e != nil {
				return ErrStoreSet(e)
			}
			// only the first round of a term is indexed, the round before it closed the previous term
			tk := termKey(r.TermNumber)
			if _, e = txn.Get(tk); errors.Is(e, badger.ErrKeyNotFound) {
				if e = txn.Set(tk, uint64Bytes(r.RoundNumber)); e != nil {
					return ErrStoreSet(e)
				}
				if r.RoundNumber > 1 {
					if e = txn.Set(closeKey(r.RoundNumber-1), uint64Bytes(r.TermNumber-1)); e != nil {
						return ErrStoreSet(e)
					}
				}
			} else if e != nil {
				return ErrStoreGet(e)
			}
			if r.RoundNumber > latest {
				latest = r.RoundNumber
			}
		}
		if e = txn.Set(latestPrefix, uint64Bytes(latest)); e != nil {
			return ErrStoreSet(e)
		}
		pruned, e = s.prune(txn, latest)
		return e
	})
	if err != nil {
		var errI lib.ErrorI
		if errors.As(err, &errI) {
			return errI
		}
		return ErrCommitDB(err)
	}
	for _, number := range pruned {
		s.cache.Remove(number)
	}
	for _, r := range sorted {
		s.cache.Add(r.RoundNumber, r.Clone())
	}
	return nil
}

// prune() deletes the rounds older than the history window behind latest, except the last rounds of the terms
func (s *Store) prune(txn *badger.Txn, latest uint64) (pruned []uint64, err error) {
	if s.config.HistoryWindow == 0 || latest <= s.config.HistoryWindow {
		return nil, nil
	}
	oldest := latest - s.config.HistoryWindow // the oldest round kept
	it := txn.NewIterator(badger.IteratorOptions{Prefix: roundPrefix, PrefetchValues: false})
	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().KeyCopy(nil)
		number := binary.BigEndian.Uint64(key[len(roundPrefix):])
		// keys are big endian so iteration is ascending
		if number >= oldest {
			break
		}
		if _, e := txn.Get(closeKey(number)); e == nil {
			continue
		} else if !errors.Is(e, badger.ErrKeyNotFound) {
			it.Close()
			return nil, ErrStoreGet(e)
		}
		keys, pruned = append(keys, key), append(pruned, number)
	}
	it.Close()
	for _, key := range keys {
		if err = txn.Delete(key); err != nil {
			return nil, ErrStoreDelete(err)
		}
	}
	if len(pruned) != 0 {
		s.log.Debugf("Pruned %d rounds below round %d", len(pruned), oldest)
	}
	return
}

// GetRound() returns a round inside the history window or the last round of a closed term
func (s *Store) GetRound(number uint64) (*lib.Round, lib.ErrorI) {
	if r, ok := s.cache.Get(number); ok {
		return r.Clone(), nil
	}
	r := new(lib.Round)
	err := s.db.View(func(txn *badger.Txn) error {
		item, e := txn.Get(roundKey(number))
		if errors.Is(e, badger.ErrKeyNotFound) {
			return ErrRoundNotFound(number)
		}
		if e != nil {
			return ErrStoreGet(e)
		}
		bz, e := item.ValueCopy(nil)
		if e != nil {
			return ErrStoreGet(e)
		}
		if er := lib.UnmarshalJSON(bz, r); er != nil {
			return er
		}
		return nil
	})
	if err != nil {
		return nil, asErrorI(err)
	}
	s.cache.Add(number, r.Clone())
	return r, nil
}

// LatestRound() returns the current round, nil if nothing was committed yet
func (s *Store) LatestRound() (*lib.Round, lib.ErrorI) {
	var latest uint64
	err := s.db.View(func(txn *badger.Txn) (e error) {
		latest, e = getUint64(txn, latestPrefix)
		return
	})
	if err != nil {
		return nil, asErrorI(err)
	}
	if latest == 0 {
		return nil, nil
	}
	return s.GetRound(latest)
}

// TermFirstRound() returns the number of the first round of a term
func (s *Store) TermFirstRound(term uint64) (number uint64, err lib.ErrorI) {
	e := s.db.View(func(txn *badger.Txn) (e error) {
		number, e = getUint64(txn, termKey(term))
		return
	})
	if e != nil {
		return 0, asErrorI(e)
	}
	if number == 0 {
		return 0, ErrRoundNotFound(0)
	}
	return
}

// Close() gracefully stops the database
func (s *Store) Close() lib.ErrorI {
	if err := s.db.Close(); err != nil {
		return ErrCloseDB(err)
	}
	return nil
}

// getUint64() reads a big endian integer, zero if the key is missing
func getUint64(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, ErrStoreGet(err)
	}
	bz, err := item.ValueCopy(nil)
	if err != nil {
		return 0, ErrStoreGet(err)
	}
	return binary.BigEndian.Uint64(bz), nil
}

func asErrorI(err error) lib.ErrorI {
	var errI lib.ErrorI
	if errors.As(err, &errI) {
		return errI
	}
	return ErrStoreGet(err)
}

func roundKey(number uint64) []byte { return append(append([]byte(nil), roundPrefix...), uint64Bytes(number)...) }

func termKey(term uint64) []byte { return append(append([]byte(nil), termPrefix...), uint64Bytes(term)...) }

func closeKey(number uint64) []byte {
	return append(append([]byte(nil), closePrefix...), uint64Bytes(number)...)
}

func uint64Bytes(u uint64) []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, u)
	return bz
}
