package lib

import "context"

/* This file contains the interfaces of the collaborators the consensus engine depends on */

// RoundStoreI defines the persistence of committed rounds
type RoundStoreI interface {
	// CommitRounds() atomically writes the rounds, moves the latest pointer to the highest round number,
	// indexes the first round of every term and prunes rounds that fell out of the history window, keeping the last
	// round of every closed term
	CommitRounds(rounds ...*Round) ErrorI
	GetRound(number uint64) (*Round, ErrorI)      // a round inside the history window or closing a term
	LatestRound() (*Round, ErrorI)                // the current round, nil if the store is empty
	TermFirstRound(term uint64) (uint64, ErrorI)  // the number of the first round of a term
	Close() ErrorI                                // gracefully stop the database
}

// ElectorI is the candidate selection service consulted at term boundaries
type ElectorI interface {
	// GetVictories() returns the ordered miner list of a new term, empty if there was no election
	GetVictories(ctx context.Context, term uint64) ([]string, ErrorI)
	// ReportEvilMiners() notifies the service of miners that missed too many slots in a term
	ReportEvilMiners(ctx context.Context, term uint64, pubkeys []string) ErrorI
}

// MainChainSourceI supplies the main chain miner list to a side chain
type MainChainSourceI interface {
	MainChainMiners(ctx context.Context) ([]string, ErrorI)
}
