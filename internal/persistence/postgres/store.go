// Package postgres implements the persistence store on PostgreSQL with
// JSONB documents keyed by tournament and round.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"solclash/internal/round"
)

const defaultTimeout = 5 * time.Second

// schema is applied by EnsureSchema; every statement is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS tournament_rounds (
	tournament_id TEXT        NOT NULL,
	round         INT         NOT NULL,
	meta          JSONB       NOT NULL,
	results       JSONB       NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tournament_id, round)
);
CREATE TABLE IF NOT EXISTS tournaments (
	tournament_id TEXT        PRIMARY KEY,
	agent_ids     TEXT[]      NOT NULL DEFAULT '{}',
	record        JSONB       NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Store writes tournament outcomes to PostgreSQL.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// New wraps an existing connection. A zero timeout falls back to the
// default.
func New(db *sqlx.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{db: db, timeout: timeout}
}

// Connect opens a connection, verifies it, and applies the schema.
func Connect(ctx context.Context, dsn string, timeout time.Duration) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := New(db, timeout)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the result tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// SaveRound upserts one round's meta and per-agent metrics.
func (s *Store) SaveRound(ctx context.Context, tournamentID string, roundNum int, meta round.Meta, results map[string]*round.Metrics) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal round meta: %w", err)
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal round results: %w", err)
	}

	const query = `
		INSERT INTO tournament_rounds (tournament_id, round, meta, results)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tournament_id, round)
		DO UPDATE SET meta = EXCLUDED.meta, results = EXCLUDED.results, created_at = now()`

	if _, err := s.db.ExecContext(ctx, query, tournamentID, roundNum, metaJSON, resultsJSON); err != nil {
		return fmt.Errorf("save round %d of %s: %w", roundNum, tournamentID, describePQ(err))
	}
	return nil
}

// SaveTournament upserts the final tournament record.
func (s *Store) SaveTournament(ctx context.Context, tournamentID string, agentIDs []string, record any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal tournament record: %w", err)
	}

	const query = `
		INSERT INTO tournaments (tournament_id, agent_ids, record)
		VALUES ($1, $2, $3)
		ON CONFLICT (tournament_id)
		DO UPDATE SET agent_ids = EXCLUDED.agent_ids, record = EXCLUDED.record, finished_at = now()`

	if _, err := s.db.ExecContext(ctx, query, tournamentID, pq.Array(agentIDs), recordJSON); err != nil {
		return fmt.Errorf("save tournament %s: %w", tournamentID, describePQ(err))
	}
	return nil
}

// Ping verifies the connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// describePQ surfaces the server-side detail pq buries in its error struct.
func describePQ(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Detail != "" {
		return fmt.Errorf("%w (%s)", err, pqErr.Detail)
	}
	return err
}
