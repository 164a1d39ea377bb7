package store

import (
	"context"
	"sync"

	"github.com/billix-app/scored/internal/score"
)

// MemStore is an in-memory store with the same version-conflict and
// pagination semantics as the Postgres store. It backs the unit tests;
// deployments use Store.
type MemStore struct {
	mu        sync.Mutex
	snapshots map[string]*score.Snapshot
	history   map[string][]score.HistoryEntry
}

func NewMemStore() *MemStore {
	return &MemStore{
		snapshots: make(map[string]*score.Snapshot),
		history:   make(map[string][]score.HistoryEntry),
	}
}

func (m *MemStore) GetSnapshot(_ context.Context, userID string) (*score.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return snap.Clone(), nil
}

func (m *MemStore) ApplyEvent(_ context.Context, snap *score.Snapshot, entry *score.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.snapshots[snap.UserID]
	switch {
	case snap.Version == 0 && exists:
		return ErrConflict
	case snap.Version != 0 && (!exists || current.Version != snap.Version):
		return ErrConflict
	}

	stored := snap.Clone()
	stored.Version = snap.Version + 1
	m.snapshots[snap.UserID] = stored
	m.history[entry.UserID] = append(m.history[entry.UserID], *entry)
	return nil
}

func (m *MemStore) ReplaceSnapshot(_ context.Context, snap *score.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := snap.Clone()
	if current, ok := m.snapshots[snap.UserID]; ok {
		stored.Version = current.Version + 1
	} else {
		stored.Version = 1
	}
	m.snapshots[snap.UserID] = stored
	return nil
}

func (m *MemStore) ListHistory(_ context.Context, userID, cursor string, limit int) ([]score.HistoryEntry, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.history[userID]
	var entries []score.HistoryEntry
	skipping := cursor != ""
	var afterID string
	if skipping {
		_, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		afterID = id.String()
	}

	// Newest-first is reverse insertion order; the cursor marks the last
	// entry of the previous page.
	for i := len(all) - 1; i >= 0 && len(entries) < limit; i-- {
		e := all[i]
		if skipping {
			if e.ID.String() == afterID {
				skipping = false
			}
			continue
		}
		entries = append(entries, e)
	}

	next := ""
	if len(entries) == limit {
		last := entries[len(entries)-1]
		next = encodeCursor(last.CreatedAt, last.ID)
	}
	return entries, next, nil
}

func (m *MemStore) HistoryAsc(_ context.Context, userID string) ([]score.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]score.HistoryEntry, len(m.history[userID]))
	copy(out, m.history[userID])
	return out, nil
}
