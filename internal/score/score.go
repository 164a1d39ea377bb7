// Package score holds the Billix Score arithmetic: four weighted component
// scores clamped to [0,100] composing an overall 0–1000 trust score.
package score

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Component identifies one of the four weighted sub-scores.
type Component string

const (
	Completion   Component = "completion"
	Verification Component = "verification"
	Community    Component = "community"
	Reliability  Component = "reliability"
)

// componentWeights sum to 1.0.
var componentWeights = map[Component]float64{
	Completion:   0.35,
	Verification: 0.25,
	Community:    0.25,
	Reliability:  0.15,
}

// Components returns all components in a stable order.
func Components() []Component {
	return []Component{Completion, Verification, Community, Reliability}
}

// Weight returns the component's share of the overall score.
func (c Component) Weight() float64 {
	return componentWeights[c]
}

// Valid reports whether c is one of the four known components.
func (c Component) Valid() bool {
	_, ok := componentWeights[c]
	return ok
}

// EventType is a catalog entry: a discrete occurrence that moves exactly one
// component by a signed base delta. Presentation metadata (icons, colors)
// deliberately lives elsewhere.
type EventType struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	BasePoints  int       `json:"base_points"`
	Positive    bool      `json:"positive"`
	Component   Component `json:"component"`
}

// Snapshot is the materialized score state for one user. Version is the
// optimistic-concurrency counter maintained by the store; 0 means the row
// has never been persisted.
type Snapshot struct {
	UserID     string            `json:"user_id"`
	Components map[Component]int `json:"components"`
	Overall    int               `json:"overall_score"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Version    int64             `json:"-"`
}

// NewSnapshot returns the lazy default for a user's first access: all
// components zero, overall zero.
func NewSnapshot(userID string) *Snapshot {
	comps := make(map[Component]int, len(componentWeights))
	for _, c := range Components() {
		comps[c] = 0
	}
	return &Snapshot{UserID: userID, Components: comps}
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	comps := make(map[Component]int, len(s.Components))
	for c, v := range s.Components {
		comps[c] = v
	}
	return &Snapshot{
		UserID:     s.UserID,
		Components: comps,
		Overall:    s.Overall,
		UpdatedAt:  s.UpdatedAt,
		Version:    s.Version,
	}
}

// Apply moves one component by delta, clamping to [0,100], and recomputes the
// overall score. It returns the delta actually applied after clamping — the
// value the ledger must record so history always reconciles with the snapshot.
func (s *Snapshot) Apply(c Component, delta int) int {
	cur := s.Components[c]
	next := clamp(cur+delta, 0, 100)
	s.Components[c] = next
	s.Overall = OverallOf(s.Components)
	return next - cur
}

// OverallOf computes the weighted 0–1000 overall score from component values.
// The x10 scales the 0–100 weighted composite to the 0–1000 display range.
func OverallOf(components map[Component]int) int {
	var sum float64
	for c, v := range components {
		sum += float64(v) * c.Weight()
	}
	return clamp(int(math.Round(sum*10)), 0, 1000)
}

// HistoryEntry is one append-only ledger row. PointChange is the applied
// (post-clamp) delta, not the event's nominal base points. Entries are never
// edited or deleted; corrections are new offsetting events.
type HistoryEntry struct {
	ID                uuid.UUID `json:"id"`
	UserID            string    `json:"user_id"`
	EventTypeID       string    `json:"event_type_id"`
	PointChange       int       `json:"point_change"`
	Component         Component `json:"component"`
	NewScore          int       `json:"new_score"`
	NewComponentScore int       `json:"new_component_score"`
	Description       string    `json:"description"`
	CreatedAt         time.Time `json:"created_at"`
}

// RatingDelta maps a 1–5 star rating to a point delta centred on a neutral
// 3-star rating: 1★ → −10, 3★ → 0, 5★ → +10. Callers pass the result as the
// magnitude override on a rating_received event.
func RatingDelta(stars int) int {
	return (clamp(stars, 1, 5) - 3) * 5
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
