package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/billix-app/scored/internal/score"
)

func TestBuiltin_Lookup(t *testing.T) {
	cat := Builtin()

	tests := []struct {
		id            string
		wantPoints    int
		wantPositive  bool
		wantComponent score.Component
	}{
		{"swap_completed", 10, true, score.Completion},
		{"ghost_incident", -15, false, score.Reliability},
		{"bill_verified", 8, true, score.Verification},
		{"rating_received", 0, true, score.Community},
		{"verification_failed", -12, false, score.Verification},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			et, err := cat.Lookup(tt.id)
			if err != nil {
				t.Fatalf("Lookup(%q) failed: %v", tt.id, err)
			}
			if et.BasePoints != tt.wantPoints {
				t.Errorf("base points = %d, want %d", et.BasePoints, tt.wantPoints)
			}
			if et.Positive != tt.wantPositive {
				t.Errorf("positive = %v, want %v", et.Positive, tt.wantPositive)
			}
			if et.Component != tt.wantComponent {
				t.Errorf("component = %s, want %s", et.Component, tt.wantComponent)
			}
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	cat := Builtin()
	_, err := cat.Lookup("no_such_event")
	if !errors.Is(err, ErrUnknownEventType) {
		t.Errorf("expected ErrUnknownEventType, got %v", err)
	}
}

// Every catalog entry maps to exactly one valid component and the sign flag
// always agrees with the base delta.
func TestBuiltin_Invariants(t *testing.T) {
	cat := Builtin()
	for _, et := range cat.All() {
		if !et.Component.Valid() {
			t.Errorf("event %q has invalid component %q", et.ID, et.Component)
		}
		if et.Positive != (et.BasePoints >= 0) {
			t.Errorf("event %q: positive=%v disagrees with base points %d", et.ID, et.Positive, et.BasePoints)
		}
		if et.DisplayName == "" {
			t.Errorf("event %q has no display name", et.ID)
		}
	}
}

func TestLoad_EmptyPathIsBuiltin(t *testing.T) {
	cat, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cat.Len() != Builtin().Len() {
		t.Errorf("expected builtin catalog, got %d entries", cat.Len())
	}
}

func TestLoad_OverlayAddsAndOverrides(t *testing.T) {
	path := writeCatalog(t, `
events:
  - id: swap_completed
    display_name: Swap completed (promo)
    base_points: 20
    component: completion
  - id: referral_bonus
    base_points: 12
    component: community
`)

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Override
	et, err := cat.Lookup("swap_completed")
	if err != nil {
		t.Fatalf("Lookup override failed: %v", err)
	}
	if et.BasePoints != 20 {
		t.Errorf("overridden base points = %d, want 20", et.BasePoints)
	}
	if et.DisplayName != "Swap completed (promo)" {
		t.Errorf("overridden display name = %q", et.DisplayName)
	}

	// Addition, display name defaulting to id
	et, err = cat.Lookup("referral_bonus")
	if err != nil {
		t.Fatalf("Lookup addition failed: %v", err)
	}
	if et.Component != score.Community || !et.Positive {
		t.Errorf("referral_bonus = %+v", et)
	}
	if et.DisplayName != "referral_bonus" {
		t.Errorf("display name = %q, want id fallback", et.DisplayName)
	}

	// Builtins not mentioned in the file survive
	if _, err := cat.Lookup("ghost_incident"); err != nil {
		t.Errorf("builtin lost after overlay: %v", err)
	}
}

func TestLoad_RejectsInvalidEntries(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown component", "events:\n  - id: x\n    base_points: 1\n    component: karma\n"},
		{"missing id", "events:\n  - base_points: 1\n    component: community\n"},
		{"malformed yaml", "events: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCatalog(t, tt.yaml)
			if _, err := Load(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func writeCatalog(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write catalog file: %v", err)
	}
	return path
}
