package elector

import (
	"context"
	"sync"

	"github.com/canopy-network/aedpos/lib"
)

var _ lib.ElectorI = &Static{}

// Static is an election service with a fixed victory list, used by chains without an election contract
// An empty list keeps the current miners at every term change
type Static struct {
	miners   []string            // the victories of every term
	reported map[uint64][]string // evil miners by term
	mux      sync.Mutex
	log      lib.LoggerI
}

// NewStatic() creates a fixed election service
func NewStatic(miners []string, log lib.LoggerI) *Static {
	return &Static{miners: append([]string(nil), miners...), reported: make(map[uint64][]string), log: log}
}

// GetVictories() returns the fixed list
func (s *Static) GetVictories(_ context.Context, _ uint64) ([]string, lib.ErrorI) {
	s.mux.Lock()
	defer s.mux.Unlock()
	return append([]string(nil), s.miners...), nil
}

// ReportEvilMiners() records the miners and removes them from the fixed list
func (s *Static) ReportEvilMiners(_ context.Context, term uint64, pubkeys []string) lib.ErrorI {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.reported[term] = append(s.reported[term], pubkeys...)
	evil := make(map[string]struct{}, len(pubkeys))
	for _, pk := range pubkeys {
		evil[pk] = struct{}{}
	}
	kept := s.miners[:0]
	for _, pk := range s.miners {
		if _, found := evil[pk]; !found {
			kept = append(kept, pk)
		}
	}
	s.miners = kept
	s.log.Warnf("Term %d: %d evil miners removed from the static list", term, len(pubkeys))
	return nil
}

// Reported() returns the evil miners reported for a term
func (s *Static) Reported(term uint64) []string {
	s.mux.Lock()
	defer s.mux.Unlock()
	return append([]string(nil), s.reported[term]...)
}
