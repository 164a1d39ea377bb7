// Package service is the Billix Score façade: the only entry point the rest
// of the system uses to apply events and read scores or history.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/billix-app/scored/internal/bus"
	"github.com/billix-app/scored/internal/catalog"
	"github.com/billix-app/scored/internal/metrics"
	"github.com/billix-app/scored/internal/score"
	"github.com/billix-app/scored/internal/store"
)

const (
	// maxApplyAttempts bounds the optimistic-concurrency retry loop. Conflicts
	// past the last attempt surface as store.ErrConflict.
	maxApplyAttempts = 4

	retryBackoff = 25 * time.Millisecond

	maxPageSize = 100
)

// Store is the persistence the service needs: atomic snapshot+ledger writes
// and paginated history reads. Satisfied by store.Store and store.MemStore.
type Store interface {
	GetSnapshot(ctx context.Context, userID string) (*score.Snapshot, error)
	ApplyEvent(ctx context.Context, snap *score.Snapshot, entry *score.HistoryEntry) error
	ListHistory(ctx context.Context, userID, cursor string, limit int) ([]score.HistoryEntry, string, error)
}

// Publisher is the bus surface the service uses. Nil publisher disables
// notifications; publish failures never fail an apply.
type Publisher interface {
	Publish(subject string, data any) error
}

type Service struct {
	catalog  *catalog.Catalog
	store    Store
	bus      Publisher
	logger   *slog.Logger
	pageSize int
}

func New(cat *catalog.Catalog, st Store, pub Publisher, pageSize int, logger *slog.Logger) *Service {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Service{
		catalog:  cat,
		store:    st,
		bus:      pub,
		logger:   logger,
		pageSize: pageSize,
	}
}

// GetScore returns the user's current snapshot. Users with no history get the
// zero-value default; nothing is persisted by a read.
func (s *Service) GetScore(ctx context.Context, userID string) (*score.Snapshot, error) {
	snap, err := s.store.GetSnapshot(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return score.NewSnapshot(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get score: %w", err)
	}
	return snap, nil
}

// GetHistory returns one newest-first page of the user's ledger. limit <= 0
// uses the configured default page size.
func (s *Service) GetHistory(ctx context.Context, userID, cursor string, limit int) ([]score.HistoryEntry, string, error) {
	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	entries, next, err := s.store.ListHistory(ctx, userID, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("get history: %w", err)
	}
	return entries, next, nil
}

// ApplyEvent applies one catalogued event to a user's score and returns the
// ledger entry it appended. magnitudeOverride, when non-nil, replaces the
// event's base points (rating-derived deltas). Unknown event types fail
// before any state is touched. The returned entry's NewScore and
// NewComponentScore exactly equal the persisted snapshot values.
func (s *Service) ApplyEvent(ctx context.Context, userID, eventTypeID string, magnitudeOverride *int) (*score.HistoryEntry, error) {
	et, err := s.catalog.Lookup(eventTypeID)
	if err != nil {
		metrics.UnknownEvents.Inc()
		return nil, err
	}

	delta := et.BasePoints
	if magnitudeOverride != nil {
		delta = *magnitudeOverride
	}

	started := time.Now()
	defer func() {
		metrics.ApplyLatency.Observe(time.Since(started).Seconds())
	}()

	for attempt := 1; attempt <= maxApplyAttempts; attempt++ {
		entry, prevBadge, err := s.applyOnce(ctx, userID, et, delta)
		if errors.Is(err, store.ErrConflict) {
			metrics.ApplyConflicts.Inc()
			if attempt == maxApplyAttempts {
				break
			}
			s.logger.Debug("snapshot conflict, retrying",
				"user_id", userID, "event_type", eventTypeID, "attempt", attempt)
			if err := sleep(ctx, time.Duration(attempt)*retryBackoff); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("apply %s: %w", eventTypeID, err)
		}

		metrics.EventsApplied.WithLabelValues(eventTypeID).Inc()
		s.notify(entry, prevBadge)
		return entry, nil
	}

	metrics.RetriesExhausted.Inc()
	return nil, fmt.Errorf("apply %s for %s: gave up after %d attempts: %w",
		eventTypeID, userID, maxApplyAttempts, store.ErrConflict)
}

// applyOnce performs a single optimistic read-modify-write. On success the
// returned badge is the tier before the event, for promotion detection.
func (s *Service) applyOnce(ctx context.Context, userID string, et score.EventType, delta int) (*score.HistoryEntry, score.Badge, error) {
	snap, err := s.store.GetSnapshot(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		snap = score.NewSnapshot(userID)
	} else if err != nil {
		return nil, "", err
	}

	prevBadge := score.Classify(snap.Overall)
	now := time.Now().UTC()

	applied := snap.Apply(et.Component, delta)
	snap.UpdatedAt = now

	entry := &score.HistoryEntry{
		ID:                uuid.New(),
		UserID:            userID,
		EventTypeID:       et.ID,
		PointChange:       applied,
		Component:         et.Component,
		NewScore:          snap.Overall,
		NewComponentScore: snap.Components[et.Component],
		Description:       fmt.Sprintf("%s (%+d %s)", et.DisplayName, applied, et.Component),
		CreatedAt:         now,
	}

	if err := s.store.ApplyEvent(ctx, snap, entry); err != nil {
		return nil, "", err
	}
	return entry, prevBadge, nil
}

func (s *Service) notify(entry *score.HistoryEntry, prevBadge score.Badge) {
	newBadge := score.Classify(entry.NewScore)
	if newBadge.Outranks(prevBadge) {
		metrics.BadgePromotions.WithLabelValues(string(newBadge)).Inc()
		s.logger.Info("badge promoted",
			"user_id", entry.UserID, "from", prevBadge, "to", newBadge, "score", entry.NewScore)
	}

	if s.bus == nil {
		return
	}

	if err := s.bus.Publish(bus.SubjectScoreUpdated, bus.ScoreUpdated{
		UserID:            entry.UserID,
		EventTypeID:       entry.EventTypeID,
		Component:         string(entry.Component),
		PointChange:       entry.PointChange,
		NewScore:          entry.NewScore,
		NewComponentScore: entry.NewComponentScore,
		Badge:             string(newBadge),
	}); err != nil {
		s.logger.Warn("failed to publish score update", "user_id", entry.UserID, "error", err)
	}

	if newBadge.Outranks(prevBadge) {
		if err := s.bus.Publish(bus.SubjectBadgePromoted, bus.BadgePromoted{
			UserID:        entry.UserID,
			PreviousBadge: string(prevBadge),
			NewBadge:      string(newBadge),
			NewScore:      entry.NewScore,
		}); err != nil {
			s.logger.Warn("failed to publish badge promotion", "user_id", entry.UserID, "error", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
