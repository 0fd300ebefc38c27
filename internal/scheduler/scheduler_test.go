package scheduler

import (
	"testing"

	"github.com/example/vishost/internal/engine"
	"github.com/example/vishost/internal/gpupool"
	"github.com/example/vishost/internal/params"
	"github.com/example/vishost/internal/surface"
)

func testSpecs() map[surface.EngineID]engine.Spec {
	specs := map[surface.EngineID]engine.Spec{}
	defaults := map[surface.EngineID]params.Params{
		surface.Faceted: {Hue: 200, Intensity: 0.7, Saturation: 0.9, GridDensity: 20, MorphFactor: 1.0},
		surface.Quantum: {Hue: 280, Intensity: 0.7, Saturation: 0.9, GridDensity: 20, MorphFactor: 1.0},
		surface.Holographic: {Hue: 320, Intensity: 0.7, Saturation: 0.9, GridDensity: 20, MorphFactor: 1.0},
		surface.Polychora: {Hue: 260, Intensity: 0.7, Saturation: 0.9, GridDensity: 20, MorphFactor: 1.0},
	}
	for _, id := range surface.AllEngines {
		specs[id] = engine.Spec{ID: id, Defaults: defaults[id], VariantCount: 30}
	}
	return specs
}

func newTestScheduler(t *testing.T, cap int) *Scheduler {
	t.Helper()
	store := params.NewStore()
	pool, err := gpupool.NewPool(cap, gpupool.NoOpClock{})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return New(store, pool, testSpecs(), true)
}

func TestSwitchToColdStart(t *testing.T) {
	s := newTestScheduler(t, 16)
	out, err := s.SwitchTo(surface.Quantum)
	if err != nil {
		t.Fatalf("SwitchTo: %v", err)
	}
	if out.Target != surface.Quantum || out.Reused {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	active, ok := s.Active()
	if !ok || active != surface.Quantum {
		t.Fatalf("expected Quantum active, got %v ok=%v", active, ok)
	}
	if !s.IsComposited(surface.Quantum) {
		t.Fatal("expected Quantum composited")
	}
}

func TestSwitchToExactlyOneEngineComposited(t *testing.T) {
	s := newTestScheduler(t, 16)
	if _, err := s.SwitchTo(surface.Faceted); err != nil {
		t.Fatalf("first switch: %v", err)
	}
	if _, err := s.SwitchTo(surface.Quantum); err != nil {
		t.Fatalf("second switch: %v", err)
	}
	if s.IsComposited(surface.Faceted) {
		t.Fatal("expected Faceted to no longer be composited")
	}
	if !s.IsComposited(surface.Quantum) {
		t.Fatal("expected Quantum composited")
	}
}

func TestSwitchToSameActiveIsNoop(t *testing.T) {
	s := newTestScheduler(t, 16)
	if _, err := s.SwitchTo(surface.Holographic); err != nil {
		t.Fatalf("first switch: %v", err)
	}
	out, err := s.SwitchTo(surface.Holographic)
	if err != nil {
		t.Fatalf("second switch: %v", err)
	}
	if !out.Reused {
		t.Fatal("expected a healthy no-op switch to report Reused")
	}
}

func TestDestroyOnSwitchReleasesPreviousContexts(t *testing.T) {
	s := newTestScheduler(t, 5) // exactly one engine's worth of contexts
	if _, err := s.SwitchTo(surface.Faceted); err != nil {
		t.Fatalf("first switch: %v", err)
	}
	if _, err := s.SwitchTo(surface.Quantum); err != nil {
		t.Fatalf("second switch: %v", err)
	}
	active, _ := s.Active()
	if active != surface.Quantum {
		t.Fatalf("expected Quantum active, got %v", active)
	}
}

func TestCapacityExceededForcesCleanupAndRetries(t *testing.T) {
	// Cap holds exactly 3 engines (15 contexts); a 4th switch must fail once
	// on capacity, force-destroy the cached (non-target) engines, and
	// succeed on retry with live count == 5.
	s := newTestScheduler(t, 15)
	s.destroyOnSwitch = false // keep engines cached so the cap actually fills

	for _, id := range []surface.EngineID{surface.Faceted, surface.Quantum, surface.Holographic} {
		if _, err := s.SwitchTo(id); err != nil {
			t.Fatalf("priming switch to %s: %v", id, err)
		}
	}
	if s.pool.LiveCount() != 15 {
		t.Fatalf("expected pool primed to 15, got %d", s.pool.LiveCount())
	}

	out, err := s.SwitchTo(surface.Polychora)
	if err != nil {
		t.Fatalf("expected forced-cleanup retry to succeed, got %v", err)
	}
	if out.Target != surface.Polychora {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if s.pool.LiveCount() != 5 {
		t.Fatalf("expected live count 5 after forced cleanup, got %d", s.pool.LiveCount())
	}
}

func TestSwitchToUnknownEngineFails(t *testing.T) {
	s := newTestScheduler(t, 16)
	if _, err := s.SwitchTo(surface.EngineID("nonexistent")); err == nil {
		t.Fatal("expected an error for an unregistered engine id")
	}
}
