package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/billix-app/scored/internal/score"
)

// ListHistory returns one newest-first page of a user's ledger. cursor is an
// opaque token from a previous page ("" for the first); nextCursor is ""
// when the page is the last one. Keyset pagination on (created_at, id) keeps
// pages stable under concurrent appends.
func (s *Store) ListHistory(ctx context.Context, userID, cursor string, limit int) ([]score.HistoryEntry, string, error) {
	query := `
		SELECT id, user_id, event_type, point_change, component, new_score, new_component_score, description, created_at
		FROM score_history
		WHERE user_id = $1`
	args := []any{userID}

	if cursor != "" {
		ts, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("decode cursor: %w", err)
		}
		query += ` AND (created_at, id) < ($2, $3)`
		args = append(args, ts, id)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []score.HistoryEntry
	for rows.Next() {
		var e score.HistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventTypeID, &e.PointChange, &e.Component,
			&e.NewScore, &e.NewComponentScore, &e.Description, &e.CreatedAt); err != nil {
			return nil, "", fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("rows error: %w", err)
	}

	next := ""
	if len(entries) == limit {
		last := entries[len(entries)-1]
		next = encodeCursor(last.CreatedAt, last.ID)
	}
	return entries, next, nil
}

// HistoryAsc returns a user's full ledger oldest-first, for replay.
func (s *Store) HistoryAsc(ctx context.Context, userID string) ([]score.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, event_type, point_change, component, new_score, new_component_score, description, created_at
		FROM score_history
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []score.HistoryEntry
	for rows.Next() {
		var e score.HistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventTypeID, &e.PointChange, &e.Component,
			&e.NewScore, &e.NewComponentScore, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return entries, nil
}

func encodeCursor(ts time.Time, id uuid.UUID) string {
	raw := ts.UTC().Format(time.RFC3339Nano) + "|" + id.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("invalid cursor encoding")
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("invalid cursor timestamp")
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("invalid cursor id")
	}
	return ts, id, nil
}
