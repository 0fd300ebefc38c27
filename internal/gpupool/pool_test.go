package gpupool

import (
	"errors"
	"testing"

	"github.com/example/vishost/internal/surface"
)

func mustPool(t *testing.T, cap int) *Pool {
	t.Helper()
	p, err := NewPool(cap, NoOpClock{})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return p
}

func TestAcquireBindsAndCountsLive(t *testing.T) {
	p := mustPool(t, 5)
	s, _ := surface.Lookup(surface.Quantum, surface.Background)

	ctx, err := p.Acquire(s, "quantum-renderer", 0, 0, false)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if ctx.State() != StateBound {
		t.Fatalf("expected Bound, got %v", ctx.State())
	}
	if p.LiveCount() != 1 {
		t.Fatalf("expected live count 1, got %d", p.LiveCount())
	}
}

func TestAcquireSameSurfaceTwiceFails(t *testing.T) {
	p := mustPool(t, 5)
	s, _ := surface.Lookup(surface.Quantum, surface.Background)
	if _, err := p.Acquire(s, "r1", 0, 0, false); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if _, err := p.Acquire(s, "r2", 0, 0, false); !errors.Is(err, ErrAlreadyBound) {
		t.Fatalf("expected ErrAlreadyBound, got %v", err)
	}
}

func TestCapacityExceeded(t *testing.T) {
	p := mustPool(t, 2)
	surfaces := surface.Surfaces(surface.Faceted)
	if _, err := p.Acquire(surfaces[0], "r", 0, 0, false); err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	if _, err := p.Acquire(surfaces[1], "r", 0, 0, false); err != nil {
		t.Fatalf("acquire 2: %v", err)
	}
	if _, err := p.Acquire(surfaces[2], "r", 0, 0, false); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if p.LiveCount() != 2 {
		t.Fatalf("expected live count capped at 2, got %d", p.LiveCount())
	}
}

func TestNewPoolRejectsOverHardLimit(t *testing.T) {
	if _, err := NewPool(17, NoOpClock{}); err == nil {
		t.Fatal("expected error constructing pool above hard cap")
	}
}

func TestZeroSizedSurfaceNotReady(t *testing.T) {
	p := mustPool(t, 5)
	s, _ := surface.Lookup(surface.Faceted, surface.Content)
	if _, err := p.Acquire(s, "r", 0, 0, true); !errors.Is(err, ErrSurfaceNotReady) {
		t.Fatalf("expected ErrSurfaceNotReady, got %v", err)
	}
	if p.LiveCount() != 0 {
		t.Fatalf("expected nothing live after SurfaceNotReady, got %d", p.LiveCount())
	}
}

func TestReleaseFreesCapacity(t *testing.T) {
	p := mustPool(t, 1)
	s, _ := surface.Lookup(surface.Faceted, surface.Content)
	ctx, err := p.Acquire(s, "r", 0, 0, false)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(ctx)
	if p.LiveCount() != 0 {
		t.Fatalf("expected live count 0 after release, got %d", p.LiveCount())
	}
	if _, err := p.Acquire(s, "r2", 0, 0, false); err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
}

func TestAcquireSetPartialFailureReleasesAll(t *testing.T) {
	p := mustPool(t, 2)
	surfaces := surface.Surfaces(surface.Polychora)[:3] // 3 surfaces, cap 2

	_, err := p.AcquireSet(surfaces, "poly-renderer")
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected wrapped ErrCapacityExceeded, got %v", err)
	}
	if p.LiveCount() != 0 {
		t.Fatalf("expected full rollback on partial failure, got live=%d", p.LiveCount())
	}
}

func TestAcquireSetSucceedsWithinCap(t *testing.T) {
	p := mustPool(t, 5)
	surfaces := surface.Surfaces(surface.Holographic)

	ctxs, err := p.AcquireSet(surfaces, "holo-renderer")
	if err != nil {
		t.Fatalf("AcquireSet: %v", err)
	}
	if len(ctxs) != 5 {
		t.Fatalf("expected 5 contexts, got %d", len(ctxs))
	}
	if p.LiveCount() != 5 {
		t.Fatalf("expected live count 5, got %d", p.LiveCount())
	}
}

func TestValidateReportsMissingAndLost(t *testing.T) {
	p := mustPool(t, 5)
	s, _ := surface.Lookup(surface.Quantum, surface.Accent)

	if got := p.Validate(s.ID); got != Missing {
		t.Fatalf("expected Missing before acquire, got %v", got)
	}
	if _, err := p.Acquire(s, "r", 0, 0, false); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got := p.Validate(s.ID); got != Ok {
		t.Fatalf("expected Ok after acquire, got %v", got)
	}
	p.SimulateLoss(s.ID)
	if got := p.Validate(s.ID); got != Lost {
		t.Fatalf("expected Lost after SimulateLoss, got %v", got)
	}
}

func TestOnLossHandlerDeferredToTick(t *testing.T) {
	p := mustPool(t, 5)
	s, _ := surface.Lookup(surface.Quantum, surface.Accent)
	if _, err := p.Acquire(s, "r", 0, 0, false); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	fired := false
	p.OnLoss(s.ID, func(surface.Surface) { fired = true })

	p.SimulateLoss(s.ID)
	if fired {
		t.Fatal("handler must not fire synchronously from SimulateLoss")
	}
	p.Tick()
	if !fired {
		t.Fatal("expected handler to fire on Tick")
	}
}
