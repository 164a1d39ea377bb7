package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/billix-app/scored/internal/catalog"
	"github.com/billix-app/scored/internal/score"
	"github.com/billix-app/scored/internal/store"
)

func newTestService(t *testing.T, st Store, pub Publisher) *Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(catalog.Builtin(), st, pub, 20, logger)
}

func TestGetScore_LazyDefault(t *testing.T) {
	svc := newTestService(t, store.NewMemStore(), nil)
	ctx := context.Background()

	snap, err := svc.GetScore(ctx, "fresh-user")
	if err != nil {
		t.Fatalf("GetScore failed: %v", err)
	}
	if snap.Overall != 0 {
		t.Errorf("overall = %d, want 0", snap.Overall)
	}
	for _, c := range score.Components() {
		if snap.Components[c] != 0 {
			t.Errorf("component %s = %d, want 0", c, snap.Components[c])
		}
	}
	if score.Classify(snap.Overall) != score.Newcomer {
		t.Errorf("fresh user badge = %s, want newcomer", score.Classify(snap.Overall))
	}

	// A read must not create state: the ledger stays empty.
	entries, _, err := svc.GetHistory(ctx, "fresh-user", "", 0)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("read created %d history entries", len(entries))
	}
}

func TestApplyEvent_SnapshotMatchesEntry(t *testing.T) {
	svc := newTestService(t, store.NewMemStore(), nil)
	ctx := context.Background()

	entry, err := svc.ApplyEvent(ctx, "user-1", "swap_completed", nil)
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}

	snap, err := svc.GetScore(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetScore failed: %v", err)
	}
	if entry.NewScore != snap.Overall {
		t.Errorf("entry.NewScore = %d, snapshot overall = %d", entry.NewScore, snap.Overall)
	}
	if entry.NewComponentScore != snap.Components[score.Completion] {
		t.Errorf("entry.NewComponentScore = %d, snapshot component = %d",
			entry.NewComponentScore, snap.Components[score.Completion])
	}
	if entry.PointChange != 10 {
		t.Errorf("point change = %d, want 10", entry.PointChange)
	}
}

func TestApplyEvent_UnknownType_NoMutation(t *testing.T) {
	st := store.NewMemStore()
	svc := newTestService(t, st, nil)
	ctx := context.Background()

	_, err := svc.ApplyEvent(ctx, "user-1", "mystery_event", nil)
	if !errors.Is(err, catalog.ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}

	if _, err := st.GetSnapshot(ctx, "user-1"); !errors.Is(err, store.ErrNotFound) {
		t.Error("rejected event still created a snapshot")
	}
	entries, err := st.HistoryAsc(ctx, "user-1")
	if err != nil {
		t.Fatalf("HistoryAsc failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("rejected event appended %d ledger entries", len(entries))
	}
}

func TestApplyEvent_MagnitudeOverride(t *testing.T) {
	svc := newTestService(t, store.NewMemStore(), nil)
	ctx := context.Background()

	delta := score.RatingDelta(5) // +10
	entry, err := svc.ApplyEvent(ctx, "user-1", "rating_received", &delta)
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	if entry.PointChange != 10 {
		t.Errorf("point change = %d, want 10", entry.PointChange)
	}
	if entry.Component != score.Community {
		t.Errorf("component = %s, want community", entry.Component)
	}

	// One-star rating drives community back down.
	delta = score.RatingDelta(1) // -10
	entry, err = svc.ApplyEvent(ctx, "user-1", "rating_received", &delta)
	if err != nil {
		t.Fatalf("second ApplyEvent failed: %v", err)
	}
	if entry.NewComponentScore != 0 {
		t.Errorf("community = %d, want 0", entry.NewComponentScore)
	}
}

func TestApplyEvent_ClampedDeltaRecorded(t *testing.T) {
	svc := newTestService(t, store.NewMemStore(), nil)
	ctx := context.Background()

	// Ghost incident on a zero reliability component truncates to 0.
	entry, err := svc.ApplyEvent(ctx, "user-1", "ghost_incident", nil)
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	if entry.PointChange != 0 {
		t.Errorf("recorded delta = %d, want 0 (applied, not nominal -15)", entry.PointChange)
	}
	if entry.NewComponentScore != 0 {
		t.Errorf("reliability = %d, want 0", entry.NewComponentScore)
	}
}

func TestReads_IdempotentBetweenApplies(t *testing.T) {
	svc := newTestService(t, store.NewMemStore(), nil)
	ctx := context.Background()

	if _, err := svc.ApplyEvent(ctx, "user-1", "swap_completed", nil); err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}

	a, err := svc.GetScore(ctx, "user-1")
	if err != nil {
		t.Fatalf("first GetScore failed: %v", err)
	}
	b, err := svc.GetScore(ctx, "user-1")
	if err != nil {
		t.Fatalf("second GetScore failed: %v", err)
	}
	if a.Overall != b.Overall || a.UpdatedAt != b.UpdatedAt {
		t.Error("repeated GetScore returned different results")
	}

	h1, c1, err := svc.GetHistory(ctx, "user-1", "", 0)
	if err != nil {
		t.Fatalf("first GetHistory failed: %v", err)
	}
	h2, c2, err := svc.GetHistory(ctx, "user-1", "", 0)
	if err != nil {
		t.Fatalf("second GetHistory failed: %v", err)
	}
	if len(h1) != len(h2) || c1 != c2 {
		t.Error("repeated GetHistory returned different results")
	}
}

func TestGetHistory_NewestFirst(t *testing.T) {
	svc := newTestService(t, store.NewMemStore(), nil)
	ctx := context.Background()

	sequence := []string{"swap_completed", "bill_verified", "positive_review"}
	for _, id := range sequence {
		if _, err := svc.ApplyEvent(ctx, "user-1", id, nil); err != nil {
			t.Fatalf("apply %s failed: %v", id, err)
		}
	}

	entries, _, err := svc.GetHistory(ctx, "user-1", "", 0)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, want := range []string{"positive_review", "bill_verified", "swap_completed"} {
		if entries[i].EventTypeID != want {
			t.Errorf("entry %d = %s, want %s", i, entries[i].EventTypeID, want)
		}
	}
}

// conflictingStore injects a fixed number of conflicts before delegating.
type conflictingStore struct {
	*store.MemStore
	mu        sync.Mutex
	conflicts int
	attempts  int
}

func (c *conflictingStore) ApplyEvent(ctx context.Context, snap *score.Snapshot, entry *score.HistoryEntry) error {
	c.mu.Lock()
	c.attempts++
	inject := c.conflicts > 0
	if inject {
		c.conflicts--
	}
	c.mu.Unlock()
	if inject {
		return store.ErrConflict
	}
	return c.MemStore.ApplyEvent(ctx, snap, entry)
}

func TestApplyEvent_RetriesConflicts(t *testing.T) {
	st := &conflictingStore{MemStore: store.NewMemStore(), conflicts: 2}
	svc := newTestService(t, st, nil)

	entry, err := svc.ApplyEvent(context.Background(), "user-1", "swap_completed", nil)
	if err != nil {
		t.Fatalf("ApplyEvent should survive 2 conflicts: %v", err)
	}
	if entry.NewScore != 35 {
		t.Errorf("new score = %d, want 35", entry.NewScore)
	}
	if st.attempts != 3 {
		t.Errorf("store saw %d attempts, want 3", st.attempts)
	}
}

func TestApplyEvent_SurfacesExhaustedConflicts(t *testing.T) {
	st := &conflictingStore{MemStore: store.NewMemStore(), conflicts: 1000}
	svc := newTestService(t, st, nil)

	_, err := svc.ApplyEvent(context.Background(), "user-1", "swap_completed", nil)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected surfaced ErrConflict, got %v", err)
	}
	if st.attempts != maxApplyAttempts {
		t.Errorf("store saw %d attempts, want %d", st.attempts, maxApplyAttempts)
	}
}

// Concurrent applies for one user must not lose updates: callers re-submit
// after a surfaced conflict, and the final score equals the sequential sum of
// clamped deltas.
func TestApplyEvent_ConcurrentNoLostUpdates(t *testing.T) {
	svc := newTestService(t, store.NewMemStore(), nil)
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, err := svc.ApplyEvent(ctx, "user-1", "swap_completed", nil)
				if err == nil {
					return
				}
				if !errors.Is(err, store.ErrConflict) {
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	snap, err := svc.GetScore(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetScore failed: %v", err)
	}
	if snap.Components[score.Completion] != workers*10 {
		t.Errorf("completion = %d, want %d", snap.Components[score.Completion], workers*10)
	}

	entries, _, err := svc.GetHistory(ctx, "user-1", "", 100)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(entries) != workers {
		t.Errorf("ledger has %d entries, want %d", len(entries), workers)
	}
}

// capturingBus records published subjects for assertion.
type capturingBus struct {
	mu       sync.Mutex
	subjects []string
}

func (c *capturingBus) Publish(subject string, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subjects = append(c.subjects, subject)
	return nil
}

func TestApplyEvent_PublishesUpdateAndPromotion(t *testing.T) {
	pub := &capturingBus{}
	svc := newTestService(t, store.NewMemStore(), pub)
	ctx := context.Background()

	// 100 completion points = overall 350 = trusted: promotion on the way up.
	boost := 100
	if _, err := svc.ApplyEvent(ctx, "user-1", "swap_completed", &boost); err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.subjects) != 2 {
		t.Fatalf("published %d messages, want 2 (update + promotion)", len(pub.subjects))
	}
	if pub.subjects[0] != "billix.score.updated" {
		t.Errorf("first subject = %s", pub.subjects[0])
	}
	if pub.subjects[1] != "billix.score.badge.promoted" {
		t.Errorf("second subject = %s", pub.subjects[1])
	}
}
