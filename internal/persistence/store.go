// Package persistence mirrors tournament outcomes into a database for later
// analysis. The artifact tree on disk stays the source of truth; running
// without a store configured loses nothing.
package persistence

import (
	"context"

	"solclash/internal/round"
)

// Store persists round and tournament results. SaveRound must tolerate
// being called again for the same round; a rerun overwrites.
type Store interface {
	SaveRound(ctx context.Context, tournamentID string, roundNum int, meta round.Meta, results map[string]*round.Metrics) error
	SaveTournament(ctx context.Context, tournamentID string, agentIDs []string, record any) error
	Close() error
}

// Discard is a Store that keeps nothing. It stands in when no database is
// configured.
type Discard struct{}

func (Discard) SaveRound(context.Context, string, int, round.Meta, map[string]*round.Metrics) error {
	return nil
}

func (Discard) SaveTournament(context.Context, string, []string, any) error { return nil }

func (Discard) Close() error { return nil }
