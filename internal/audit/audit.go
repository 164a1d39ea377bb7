// Package audit replays a user's ledger from a zero snapshot and checks the
// result against the live snapshot. The ledger records applied (post-clamp)
// deltas, so a faithful store always replays to identical state; drift means
// a partial write slipped past the store's atomicity guarantee or the data
// was touched out of band.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/billix-app/scored/internal/score"
	"github.com/billix-app/scored/internal/store"
)

// Store is the narrow persistence surface the auditor needs. Satisfied by
// store.Store and store.MemStore.
type Store interface {
	GetSnapshot(ctx context.Context, userID string) (*score.Snapshot, error)
	HistoryAsc(ctx context.Context, userID string) ([]score.HistoryEntry, error)
	ReplaceSnapshot(ctx context.Context, snap *score.Snapshot) error
}

// Report describes one verification run.
type Report struct {
	UserID          string                  `json:"user_id"`
	Entries         int                     `json:"entries"`
	Consistent      bool                    `json:"consistent"`
	LiveOverall     int                     `json:"live_overall"`
	ReplayedOverall int                     `json:"replayed_overall"`
	Drift           map[score.Component]int `json:"drift,omitempty"`
	Repaired        bool                    `json:"repaired"`
}

type Auditor struct {
	store  Store
	logger *slog.Logger
}

func New(st Store, logger *slog.Logger) *Auditor {
	return &Auditor{store: st, logger: logger}
}

// Verify replays the full ledger and compares against the live snapshot.
func (a *Auditor) Verify(ctx context.Context, userID string) (*Report, error) {
	entries, err := a.store.HistoryAsc(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	replayed := Replay(userID, entries)

	live, err := a.store.GetSnapshot(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		live = score.NewSnapshot(userID)
	} else if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	report := &Report{
		UserID:          userID,
		Entries:         len(entries),
		Consistent:      true,
		LiveOverall:     live.Overall,
		ReplayedOverall: replayed.Overall,
	}

	for _, c := range score.Components() {
		if d := live.Components[c] - replayed.Components[c]; d != 0 {
			if report.Drift == nil {
				report.Drift = make(map[score.Component]int)
			}
			report.Drift[c] = d
			report.Consistent = false
		}
	}
	if live.Overall != replayed.Overall {
		report.Consistent = false
	}

	if !report.Consistent {
		a.logger.Warn("score drift detected",
			"user_id", userID, "live", live.Overall, "replayed", replayed.Overall)
	}
	return report, nil
}

// Repair verifies and, on drift, rewrites the snapshot from the replayed
// ledger state. Re-running a repair is a no-op: the ledger is the source of
// truth and replay is deterministic.
func (a *Auditor) Repair(ctx context.Context, userID string) (*Report, error) {
	report, err := a.Verify(ctx, userID)
	if err != nil {
		return nil, err
	}
	if report.Consistent {
		return report, nil
	}

	entries, err := a.store.HistoryAsc(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	replayed := Replay(userID, entries)
	replayed.UpdatedAt = time.Now().UTC()

	if err := a.store.ReplaceSnapshot(ctx, replayed); err != nil {
		return nil, fmt.Errorf("repair snapshot: %w", err)
	}

	report.Repaired = true
	report.LiveOverall = replayed.Overall
	a.logger.Info("snapshot repaired from ledger",
		"user_id", userID, "overall", replayed.Overall, "entries", len(entries))
	return report, nil
}

// Replay folds a ledger into a snapshot, starting from the zero default.
func Replay(userID string, entries []score.HistoryEntry) *score.Snapshot {
	snap := score.NewSnapshot(userID)
	for _, e := range entries {
		snap.Apply(e.Component, e.PointChange)
	}
	return snap
}
