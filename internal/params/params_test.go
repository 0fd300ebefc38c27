package params

import (
	"math"
	"testing"
)

func TestClampOnWrite(t *testing.T) {
	s := NewStore()
	s.Seed("quantum", Params{}, 8)

	s.Set("quantum", GridDensity, 1000.0)
	if got := s.Get("quantum", GridDensity).(float64); got != 100 {
		t.Fatalf("expected clamp to 100, got %v", got)
	}

	s.Set("quantum", GridDensity, -5.0)
	if got := s.Get("quantum", GridDensity).(float64); got != 5 {
		t.Fatalf("expected clamp to 5, got %v", got)
	}
}

func TestHueWrapsModulo(t *testing.T) {
	s := NewStore()
	s.Seed("faceted", Params{}, 8)
	s.Set("faceted", Hue, 370.0)
	got := s.Get("faceted", Hue).(float64)
	if got != 10 {
		t.Fatalf("expected hue wrap to 10, got %v", got)
	}
	s.Set("faceted", Hue, -10.0)
	got = s.Get("faceted", Hue).(float64)
	if got != 350 {
		t.Fatalf("expected hue wrap to 350, got %v", got)
	}
}

func TestRotationWrapsEveryFullTurn(t *testing.T) {
	s := NewStore()
	s.Seed("polychora", Params{}, 8)
	s.Set("polychora", Rot4dXW, 0.3)
	s.Set("polychora", Rot4dXW, 0.3+2*math.Pi)
	got := s.Get("polychora", Rot4dXW).(float64)
	if math.Abs(got-0.3) > 1e-9 {
		t.Fatalf("expected wrap-equivalent 0.3, got %v", got)
	}
}

func TestInvalidValueRejectedSilently(t *testing.T) {
	s := NewStore()
	s.Seed("faceted", Params{Hue: 10}, 8)
	outcome := s.Set("faceted", Hue, "not-a-number")
	if outcome.Err != ErrInvalidValue {
		t.Fatalf("expected ErrInvalidValue, got %v", outcome.Err)
	}
	if got := s.Get("faceted", Hue).(float64); got != 10 {
		t.Fatalf("expected field untouched, got %v", got)
	}
}

func TestNotifyOnlyOnActualChange(t *testing.T) {
	s := NewStore()
	s.Seed("faceted", Params{Chaos: 0.5}, 8)
	calls := 0
	s.Subscribe("faceted", func(engine string, field Field, old, new any) { calls++ })

	s.Set("faceted", Chaos, 0.5) // unchanged after clamp
	if calls != 0 {
		t.Fatalf("expected no notification for unchanged write, got %d", calls)
	}
	s.Set("faceted", Chaos, 0.9)
	if calls != 1 {
		t.Fatalf("expected one notification, got %d", calls)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	s := NewStore()
	s.Seed("holographic", Params{}, 30)
	want := Params{
		Geometry: 3, Variant: 12, GridDensity: 42, MorphFactor: 1.4, Chaos: 0.6,
		Speed: 2.0, Hue: 90, Intensity: 0.8, Saturation: 0.7,
		Rot4dXW: 0.1, Rot4dYW: -0.2, Rot4dZW: 0.3, Dimension: 3.8,
	}
	s.Restore("holographic", want)
	got := s.Snapshot("holographic")
	if got != want {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestVariantSnapsToNearestEndpointOnRestore(t *testing.T) {
	s := NewStore()
	s.Seed("holographic", Params{}, 30)
	s.Restore("holographic", Params{Variant: 999})
	got := s.Snapshot("holographic")
	if got.Variant != 29 {
		t.Fatalf("expected snap to N-1=29, got %v", got.Variant)
	}
}

func TestBatchSetSingleNotificationPerField(t *testing.T) {
	s := NewStore()
	s.Seed("faceted", Params{}, 8)
	notified := map[Field]int{}
	s.Subscribe("faceted", func(engine string, field Field, old, new any) { notified[field]++ })

	changed := s.BatchSet("faceted", map[Field]any{
		Hue: 200.0, Chaos: 0.5, Intensity: 0.0, // Intensity unchanged from default
	})
	if !changed[Hue] || !changed[Chaos] {
		t.Fatalf("expected Hue and Chaos to be reported changed: %+v", changed)
	}
	if notified[Hue] != 1 || notified[Chaos] != 1 {
		t.Fatalf("expected exactly one notification per changed field: %+v", notified)
	}
}
