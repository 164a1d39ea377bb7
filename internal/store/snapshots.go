package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/billix-app/scored/internal/score"
)

// GetSnapshot fetches the live snapshot for a user. Returns ErrNotFound for
// users with no persisted state; callers substitute the zero-value default.
func (s *Store) GetSnapshot(ctx context.Context, userID string) (*score.Snapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, completion, verification, community, reliability, overall, version, updated_at
		FROM score_snapshots
		WHERE user_id = $1`,
		userID,
	)

	snap := score.NewSnapshot(userID)
	var completion, verification, community, reliability int
	err := row.Scan(&snap.UserID, &completion, &verification, &community, &reliability,
		&snap.Overall, &snap.Version, &snap.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	snap.Components[score.Completion] = completion
	snap.Components[score.Verification] = verification
	snap.Components[score.Community] = community
	snap.Components[score.Reliability] = reliability
	return snap, nil
}

// ApplyEvent persists an updated snapshot and its ledger entry as one
// transaction. snap.Version must be the version the caller read (0 for a
// first event, meaning no row exists yet); any mismatch yields ErrConflict
// with nothing written.
func (s *Store) ApplyEvent(ctx context.Context, snap *score.Snapshot, entry *score.HistoryEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if snap.Version == 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO score_snapshots (user_id, completion, verification, community, reliability, overall, version, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 1, $7)`,
			snap.UserID,
			snap.Components[score.Completion],
			snap.Components[score.Verification],
			snap.Components[score.Community],
			snap.Components[score.Reliability],
			snap.Overall,
			snap.UpdatedAt,
		)
		if isUniqueViolation(err) {
			// Another event created the row first.
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
	} else {
		tag, err := tx.Exec(ctx, `
			UPDATE score_snapshots
			SET completion = $2, verification = $3, community = $4, reliability = $5,
			    overall = $6, version = version + 1, updated_at = $7
			WHERE user_id = $1 AND version = $8`,
			snap.UserID,
			snap.Components[score.Completion],
			snap.Components[score.Verification],
			snap.Components[score.Community],
			snap.Components[score.Reliability],
			snap.Overall,
			snap.UpdatedAt,
			snap.Version,
		)
		if err != nil {
			return fmt.Errorf("update snapshot: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO score_history (id, user_id, event_type, point_change, component, new_score, new_component_score, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.UserID, entry.EventTypeID, entry.PointChange, entry.Component,
		entry.NewScore, entry.NewComponentScore, entry.Description, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ReplaceSnapshot unconditionally rewrites a user's snapshot from replayed
// ledger state. The version bump invalidates any in-flight optimistic writer.
func (s *Store) ReplaceSnapshot(ctx context.Context, snap *score.Snapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO score_snapshots (user_id, completion, verification, community, reliability, overall, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
		ON CONFLICT (user_id)
		DO UPDATE SET
			completion = $2, verification = $3, community = $4, reliability = $5,
			overall = $6, version = score_snapshots.version + 1, updated_at = $7`,
		snap.UserID,
		snap.Components[score.Completion],
		snap.Components[score.Verification],
		snap.Components[score.Community],
		snap.Components[score.Reliability],
		snap.Overall,
		snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
