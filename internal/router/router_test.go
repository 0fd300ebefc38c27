package router

import (
	"math"
	"testing"

	"github.com/example/vishost/internal/audio"
	"github.com/example/vishost/internal/input"
	"github.com/example/vishost/internal/params"
	"github.com/example/vishost/internal/surface"
)

type fakeAudioTarget struct {
	engine surface.EngineID
	frame  audio.Features
	calls  int
}

func (f *fakeAudioTarget) ApplyAudio(id surface.EngineID, feat audio.Features) {
	f.engine = id
	f.frame = feat
	f.calls++
}

func newTestRouter(t *testing.T) (*Router, *params.Store) {
	t.Helper()
	store := params.NewStore()
	store.Seed(string(surface.Faceted), params.Params{}, 30)
	r := New(store)
	r.SetEnabled(true)
	r.SetActiveEngine(surface.Faceted, false)
	return r, store
}

func TestZeroDistancePointerIsDeterministic(t *testing.T) {
	r, store := newTestRouter(t)
	store.Set(string(surface.Faceted), params.Hue, 200)
	r.SetPointerMode(PointerDistance)

	r.HandleEvent(input.Event{Kind: input.KindPointerMove, X: 0.5, Y: 0.5})

	if got := store.Get(string(surface.Faceted), params.GridDensity).(float64); got != 5 {
		t.Fatalf("expected gridDensity 5, got %v", got)
	}
	if got := store.Get(string(surface.Faceted), params.Intensity).(float64); got != 1.0 {
		t.Fatalf("expected intensity 1.0, got %v", got)
	}
	if got := store.Get(string(surface.Faceted), params.Saturation).(float64); got != 1.0 {
		t.Fatalf("expected saturation 1.0, got %v", got)
	}
	if got := store.Get(string(surface.Faceted), params.Hue).(float64); got != 320 {
		t.Fatalf("expected hue 320, got %v", got)
	}
}

func TestWheelCycleTenPositiveDeltas(t *testing.T) {
	r, store := newTestRouter(t)
	store.Set(string(surface.Faceted), params.GridDensity, 15)
	store.Set(string(surface.Faceted), params.Hue, 200)
	r.SetWheelMode(WheelCycle)

	for i := 0; i < 10; i++ {
		r.HandleEvent(input.Event{Kind: input.KindWheel, DY: 1})
	}

	if got := store.Get(string(surface.Faceted), params.GridDensity).(float64); math.Abs(got-23) > 1e-9 {
		t.Fatalf("expected gridDensity 23, got %v", got)
	}
	if got := store.Get(string(surface.Faceted), params.Hue).(float64); got != 230 {
		t.Fatalf("expected hue 230, got %v", got)
	}
}

func TestWheelDeltaZeroIsNoop(t *testing.T) {
	r, store := newTestRouter(t)
	store.Set(string(surface.Faceted), params.GridDensity, 15)
	r.SetWheelMode(WheelCycle)

	r.HandleEvent(input.Event{Kind: input.KindWheel, DY: 0})

	if got := store.Get(string(surface.Faceted), params.GridDensity).(float64); got != 15 {
		t.Fatalf("expected gridDensity unchanged at 15, got %v", got)
	}
}

func TestClickModeOffIsNoop(t *testing.T) {
	r, store := newTestRouter(t)
	store.Set(string(surface.Faceted), params.Chaos, 0.1)
	r.SetClickMode(ClickOff)

	r.HandleEvent(input.Event{Kind: input.KindPointerUp, X: 0.5, Y: 0.5})
	r.Tick()

	if got := store.Get(string(surface.Faceted), params.Chaos).(float64); got != 0.1 {
		t.Fatalf("expected chaos unchanged, got %v", got)
	}
}

func TestBurstEffectDecaysBelowThresholdAndPrunes(t *testing.T) {
	r, store := newTestRouter(t)
	store.Set(string(surface.Faceted), params.Chaos, 0)
	r.SetClickMode(ClickBurst)

	r.HandleEvent(input.Event{Kind: input.KindPointerUp, X: 0.5, Y: 0.5})

	before := store.Get(string(surface.Faceted), params.Chaos).(float64)
	if before <= 0 {
		t.Fatal("expected burst to bump chaos on the first tick")
	}

	for i := 0; i < 200; i++ {
		r.Tick()
	}

	r.mu.Lock()
	remaining := len(r.effects)
	r.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected burst effect fully pruned after decay, got %d remaining", remaining)
	}
}

func TestAudioReachesTargetEvenWhenDisabled(t *testing.T) {
	r, _ := newTestRouter(t)
	target := &fakeAudioTarget{}
	r.SetAudioTarget(target)
	r.SetEnabled(false)

	feat := audio.Features{Bass: 0.9, Mid: 0.1}
	r.HandleEvent(input.Event{Kind: input.KindAudio, Audio: feat})

	if target.calls != 1 {
		t.Fatalf("expected audio to reach target once, got %d calls", target.calls)
	}
	if target.engine != surface.Faceted {
		t.Fatalf("expected audio routed to Faceted, got %v", target.engine)
	}
	if target.frame != feat {
		t.Fatalf("expected forwarded frame to match, got %+v", target.frame)
	}
}

func TestRouterDisabledIgnoresEvents(t *testing.T) {
	r, store := newTestRouter(t)
	r.SetEnabled(false)
	r.SetPointerMode(PointerDistance)
	store.Set(string(surface.Faceted), params.Hue, 111)

	r.HandleEvent(input.Event{Kind: input.KindPointerMove, X: 0.5, Y: 0.5})

	if got := store.Get(string(surface.Faceted), params.Hue).(float64); got != 111 {
		t.Fatalf("expected no change while disabled, got %v", got)
	}
}

func TestSwitchingActiveEngineResetsTransientState(t *testing.T) {
	r, store := newTestRouter(t)
	store.Seed(string(surface.Quantum), params.Params{}, 30)
	r.SetClickMode(ClickBurst)
	r.HandleEvent(input.Event{Kind: input.KindPointerUp, X: 0.5, Y: 0.5})

	r.mu.Lock()
	before := len(r.effects)
	r.mu.Unlock()
	if before == 0 {
		t.Fatal("expected an in-flight effect before switching engines")
	}

	r.SetActiveEngine(surface.Quantum, false)

	r.mu.Lock()
	after := len(r.effects)
	r.mu.Unlock()
	if after != 0 {
		t.Fatalf("expected no stale effects after switch, got %d", after)
	}
}
