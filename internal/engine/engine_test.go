package engine

import (
	"testing"

	"github.com/example/vishost/internal/audio"
	"github.com/example/vishost/internal/gpupool"
	"github.com/example/vishost/internal/params"
	"github.com/example/vishost/internal/surface"
)

func testSpec(id surface.EngineID) Spec {
	return Spec{
		ID:           id,
		Defaults:     params.Params{Hue: 280, Intensity: 0.7, Saturation: 0.9, GridDensity: 20, MorphFactor: 1.0},
		VariantCount: 30,
	}
}

func mustEngine(t *testing.T, id surface.EngineID, store *params.Store, pool *gpupool.Pool) *Engine {
	t.Helper()
	e, err := Create(testSpec(id), store, pool)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return e
}

func TestCreateAcquiresAllFiveContexts(t *testing.T) {
	store := params.NewStore()
	pool, _ := gpupool.NewPool(5, gpupool.NoOpClock{})
	e := mustEngine(t, surface.Quantum, store, pool)
	defer e.Destroy()

	if !e.Healthy() {
		t.Fatal("expected a freshly created engine to be healthy")
	}
	if pool.LiveCount() != 5 {
		t.Fatalf("expected 5 live contexts, got %d", pool.LiveCount())
	}
}

func TestCreatePartialFailureReleasesAcquired(t *testing.T) {
	store := params.NewStore()
	pool, _ := gpupool.NewPool(3, gpupool.NoOpClock{}) // fewer than 5 surfaces needed

	_, err := Create(testSpec(surface.Holographic), store, pool)
	if err == nil {
		t.Fatal("expected Create to fail when the pool cannot supply 5 contexts")
	}
	if pool.LiveCount() != 0 {
		t.Fatalf("expected all partial acquisitions released, got live=%d", pool.LiveCount())
	}
}

func TestTickIsNoopWhenInactive(t *testing.T) {
	store := params.NewStore()
	pool, _ := gpupool.NewPool(5, gpupool.NoOpClock{})
	e := mustEngine(t, surface.Faceted, store, pool)
	defer e.Destroy()

	if out := e.Tick(0); out != nil {
		t.Fatalf("expected nil output while inactive, got %+v", out)
	}
	e.SetActive(true)
	out := e.Tick(0)
	if len(out) != 5 {
		t.Fatalf("expected 5 role outputs once active, got %d", len(out))
	}
}

func TestDestroyReleasesAllContexts(t *testing.T) {
	store := params.NewStore()
	pool, _ := gpupool.NewPool(5, gpupool.NoOpClock{})
	e := mustEngine(t, surface.Polychora, store, pool)
	e.Destroy()
	if pool.LiveCount() != 0 {
		t.Fatalf("expected no live contexts after destroy, got %d", pool.LiveCount())
	}
}

func TestVariantChangePreservesStickyOverride(t *testing.T) {
	store := params.NewStore()
	pool, _ := gpupool.NewPool(5, gpupool.NoOpClock{})
	e := mustEngine(t, surface.Holographic, store, pool)
	defer e.Destroy()

	e.SetVariant(5)
	e.UpdateParam(params.GridDensity, 42.0)
	e.SetVariant(6)

	got := store.Get(string(surface.Holographic), params.GridDensity).(float64)
	if got != 42 {
		t.Fatalf("expected sticky override to survive variant change, got %v", got)
	}
	if got := store.Get(string(surface.Holographic), params.Variant).(int); got != 6 {
		t.Fatalf("expected variant to advance to 6, got %v", got)
	}
}

func TestApplyAudioReplacesNotQueues(t *testing.T) {
	store := params.NewStore()
	pool, _ := gpupool.NewPool(5, gpupool.NoOpClock{})
	e := mustEngine(t, surface.Quantum, store, pool)
	defer e.Destroy()
	e.SetActive(true)

	e.ApplyAudio(audio.Features{Energy: 0.1})
	e.ApplyAudio(audio.Features{Energy: 0.9})

	e.mu.Lock()
	got := e.lastAudio.Energy
	e.mu.Unlock()
	if got != 0.9 {
		t.Fatalf("expected only the latest audio frame to be cached, got energy=%v", got)
	}
}

func TestApplyAudioModulationMatchesReferenceScenario(t *testing.T) {
	base := params.Params{Hue: 280, MorphFactor: 1.0, Intensity: 0.7}
	frame := audio.Features{Bass: 0.9, Mid: 0.1, High: 0.1, Energy: 0.8}

	out := ApplyAudioModulation(base, &frame)
	if out.Hue != 292 {
		t.Fatalf("expected hue 292, got %v", out.Hue)
	}
	if d := out.MorphFactor - 1.10; d > 1e-9 || d < -1e-9 {
		t.Fatalf("expected morphFactor 1.10, got %v", out.MorphFactor)
	}
	if d := out.Intensity - 0.97; d > 1e-9 || d < -1e-9 {
		t.Fatalf("expected intensity 0.97, got %v", out.Intensity)
	}
}

func TestSilentAudioFrameLeavesParamsUnchanged(t *testing.T) {
	base := params.Params{Hue: 280, MorphFactor: 1.0, Intensity: 0.7}
	frame := audio.Features{Silent: true}
	if out := ApplyAudioModulation(base, &frame); out != base {
		t.Fatalf("expected silent frame to leave params unchanged, got %+v", out)
	}
	if out := ApplyAudioModulation(base, nil); out != base {
		t.Fatalf("expected nil frame to leave params unchanged, got %+v", out)
	}
}
