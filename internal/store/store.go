// Package store persists score snapshots and the append-only history ledger
// in Postgres. One snapshot row per user carries an optimistic-concurrency
// version; every mutation appends exactly one history row in the same
// transaction.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when a user has no persisted snapshot yet.
	ErrNotFound = errors.New("snapshot not found")

	// ErrConflict is returned when the snapshot changed between read and
	// write. The service retries these; nothing is written on conflict.
	ErrConflict = errors.New("concurrent snapshot update")
)

//go:embed schema.sql
var schema string

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the score tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}
