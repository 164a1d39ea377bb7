// Package catalog is the static registry of score event types. It is built
// once at startup and read-only afterwards, so lookups need no locking.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/billix-app/scored/internal/score"
)

// ErrUnknownEventType is returned for ids not present in the catalog.
var ErrUnknownEventType = errors.New("unknown event type")

// Catalog maps event type ids to their definitions.
type Catalog struct {
	types map[string]score.EventType
}

// builtins are the compiled-in event types. rating_received carries a zero
// base delta: its magnitude is rating-derived and supplied per call.
var builtins = []score.EventType{
	{ID: "swap_completed", DisplayName: "Swap completed", BasePoints: 10, Component: score.Completion},
	{ID: "swap_cancelled", DisplayName: "Swap cancelled", BasePoints: -10, Component: score.Completion},
	{ID: "first_swap", DisplayName: "First swap bonus", BasePoints: 15, Component: score.Completion},
	{ID: "bill_verified", DisplayName: "Bill verified", BasePoints: 8, Component: score.Verification},
	{ID: "verification_failed", DisplayName: "Verification failed", BasePoints: -12, Component: score.Verification},
	{ID: "identity_verified", DisplayName: "Identity verified", BasePoints: 15, Component: score.Verification},
	{ID: "rating_received", DisplayName: "Rating received", BasePoints: 0, Component: score.Community},
	{ID: "positive_review", DisplayName: "Positive review", BasePoints: 5, Component: score.Community},
	{ID: "negative_review", DisplayName: "Negative review", BasePoints: -5, Component: score.Community},
	{ID: "dispute_lost", DisplayName: "Dispute lost", BasePoints: -10, Component: score.Community},
	{ID: "on_time_exchange", DisplayName: "On-time exchange", BasePoints: 6, Component: score.Reliability},
	{ID: "late_exchange", DisplayName: "Late exchange", BasePoints: -8, Component: score.Reliability},
	{ID: "ghost_incident", DisplayName: "Ghost incident", BasePoints: -15, Component: score.Reliability},
}

// Builtin returns the compiled-in catalog.
func Builtin() *Catalog {
	c := &Catalog{types: make(map[string]score.EventType, len(builtins))}
	for _, et := range builtins {
		et.Positive = et.BasePoints >= 0
		c.types[et.ID] = et
	}
	return c
}

// yamlEntry is the file representation of one event type.
type yamlEntry struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	BasePoints  int    `yaml:"base_points"`
	Component   string `yaml:"component"`
}

type yamlFile struct {
	Events []yamlEntry `yaml:"events"`
}

// Load returns the builtin catalog overlaid with entries from a YAML file.
// File entries may add new event types or override builtin ones. An empty
// path returns the builtins unchanged.
func Load(path string) (*Catalog, error) {
	c := Builtin()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var file yamlFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	for _, e := range file.Events {
		if e.ID == "" {
			return nil, fmt.Errorf("catalog entry missing id")
		}
		comp := score.Component(e.Component)
		if !comp.Valid() {
			return nil, fmt.Errorf("catalog entry %q: unknown component %q", e.ID, e.Component)
		}
		name := e.DisplayName
		if name == "" {
			name = e.ID
		}
		c.types[e.ID] = score.EventType{
			ID:          e.ID,
			DisplayName: name,
			BasePoints:  e.BasePoints,
			Positive:    e.BasePoints >= 0,
			Component:   comp,
		}
	}
	return c, nil
}

// Lookup returns the event type for id.
func (c *Catalog) Lookup(id string) (score.EventType, error) {
	et, ok := c.types[id]
	if !ok {
		return score.EventType{}, fmt.Errorf("%w: %q", ErrUnknownEventType, id)
	}
	return et, nil
}

// All returns every registered event type, sorted by id.
func (c *Catalog) All() []score.EventType {
	out := make([]score.EventType, 0, len(c.types))
	for _, et := range c.types {
		out = append(out, et)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered event types.
func (c *Catalog) Len() int {
	return len(c.types)
}
