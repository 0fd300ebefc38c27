// Package scheduler owns the single active-engine transition: exactly one
// visualizer system is active at a time, and switching between them
// follows a deterministic nine-step protocol generalized from one
// always-on renderer to a set of engines with explicit create/destroy
// lifecycles.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/vishost/internal/audio"
	"github.com/example/vishost/internal/engine"
	"github.com/example/vishost/internal/gpupool"
	"github.com/example/vishost/internal/params"
	"github.com/example/vishost/internal/surface"
)

var (
	ErrSwitchCancelled = errors.New("scheduler: switch cancelled by a later switch_to")
	ErrSwitchFailed    = errors.New("scheduler: switch failed")
	ErrMissingSurfaces = errors.New("scheduler: target engine has no registered surfaces")
	ErrUnknownEngine   = errors.New("scheduler: unknown engine id")
)

// RouterNotifier is the non-owning handle the Reactivity Router is told
// about at switch time. Declared here, implemented by the router package,
// to avoid a scheduler->router import cycle.
type RouterNotifier interface {
	SetActiveEngine(id surface.EngineID, hasNativeReactivity bool)
}

// SwitchOutcome reports what a successful switch_to actually did.
type SwitchOutcome struct {
	Target surface.EngineID
	Reused bool
}

// Scheduler mediates every engine creation, activation, and teardown.
type Scheduler struct {
	mu         sync.Mutex // serializes the actual transition work
	genMu      sync.Mutex // guards generation/cancel bookkeeping only
	generation uint64
	cancel     context.CancelFunc

	active     *surface.EngineID
	instances  map[surface.EngineID]*engine.Engine
	composited map[surface.EngineID]bool

	destroyOnSwitch bool
	store           *params.Store
	pool            *gpupool.Pool
	specs           map[surface.EngineID]engine.Spec
	router          RouterNotifier
	log             zerolog.Logger
}

// New builds a scheduler. destroyOnSwitch controls whether a deactivated
// engine is torn down immediately or kept warm for a fast re-switch.
func New(store *params.Store, pool *gpupool.Pool, specs map[surface.EngineID]engine.Spec, destroyOnSwitch bool) *Scheduler {
	return &Scheduler{
		instances:       map[surface.EngineID]*engine.Engine{},
		composited:      map[surface.EngineID]bool{},
		destroyOnSwitch: destroyOnSwitch,
		store:           store,
		pool:            pool,
		specs:           specs,
		log:             log.With().Str("component", "scheduler").Logger(),
	}
}

// SetRouter attaches the Reactivity Router handle notified on every switch.
func (s *Scheduler) SetRouter(r RouterNotifier) { s.router = r }

// Active reports the currently active engine, if any.
func (s *Scheduler) Active() (surface.EngineID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return "", false
	}
	return *s.active, true
}

// IsComposited reports whether engine's surfaces are currently marked
// visible. At most one engine is composited at a time.
func (s *Scheduler) IsComposited(id surface.EngineID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.composited[id]
}

// Spec returns the static Spec (defaults, variant count, native-reactivity
// flag) target was configured with.
func (s *Scheduler) Spec(id surface.EngineID) (engine.Spec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.specs[id]
	return sp, ok
}

// ApplyAudio forwards f to id's cached instance, if one exists and is
// currently active. Silently dropped otherwise: an engine that isn't
// running has nothing to modulate.
func (s *Scheduler) ApplyAudio(id surface.EngineID, f audio.Features) {
	s.mu.Lock()
	inst, ok := s.instances[id]
	s.mu.Unlock()
	if !ok || !inst.Active() {
		return
	}
	inst.ApplyAudio(f)
}

// Instance returns the cached engine for id, if one has been created.
func (s *Scheduler) Instance(id surface.EngineID) (*engine.Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	return inst, ok
}

// SwitchTo runs the deterministic transition protocol to make target the
// active engine. A SwitchTo call already in flight is cancelled: its
// rollback completes before this call proceeds, so callers observe
// strictly serialized outcomes even though the previous call was
// superseded rather than queued.
func (s *Scheduler) SwitchTo(target surface.EngineID) (SwitchOutcome, error) {
	if _, ok := s.specs[target]; !ok {
		return SwitchOutcome{}, fmt.Errorf("%w: %s", ErrUnknownEngine, target)
	}
	if len(surface.Surfaces(target)) == 0 {
		return SwitchOutcome{}, ErrMissingSurfaces
	}

	s.genMu.Lock()
	s.generation++
	myGen := s.generation
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.genMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.genMu.Lock()
	superseded := s.generation != myGen
	s.genMu.Unlock()
	if superseded {
		return SwitchOutcome{}, ErrSwitchCancelled
	}

	outcome, err := s.runSwitch(ctx, target)

	s.genMu.Lock()
	if s.generation == myGen {
		s.cancel = nil
	}
	s.genMu.Unlock()
	return outcome, err
}

func (s *Scheduler) cancelled(ctx context.Context) bool { return ctx.Err() != nil }

func (s *Scheduler) runSwitch(ctx context.Context, target surface.EngineID) (SwitchOutcome, error) {
	// Step 1: no-op guard.
	if s.active != nil && *s.active == target {
		if inst, ok := s.instances[target]; ok && inst.Healthy() {
			s.log.Debug().Str("engine", string(target)).Msg("switch_to no-op: already active and healthy")
			return SwitchOutcome{Target: target, Reused: true}, nil
		}
		// Unhealthy: fall through and treat as a fresh switch.
	}

	prevID := s.active

	// Step 2: hide all.
	for id := range s.composited {
		s.composited[id] = false
	}

	// Step 3: deactivate previous.
	if prevID != nil && *prevID != target {
		if inst, ok := s.instances[*prevID]; ok {
			inst.SetActive(false)
		}
	}

	// Step 4: policy decision.
	if s.destroyOnSwitch && prevID != nil && *prevID != target {
		if inst, ok := s.instances[*prevID]; ok {
			inst.Destroy()
			delete(s.instances, *prevID)
		}
	}

	if s.cancelled(ctx) {
		s.rollbackToPrevious(prevID)
		return SwitchOutcome{}, ErrSwitchCancelled
	}

	// Step 5: prepare target surfaces (visibility only; sizing/DPR is an
	// external compositor concern this host does not own).
	s.composited[target] = true

	// Step 6: decide create-or-reuse.
	inst, reused, err := s.createOrReuse(target)
	if err != nil {
		if errors.Is(err, gpupool.ErrCapacityExceeded) {
			s.forceCleanupExceptTarget(target)
			inst, reused, err = s.createOrReuse(target)
		}
		if err != nil {
			s.composited[target] = false
			s.restorePreviousOnFailure(prevID)
			s.log.Error().Err(err).Str("engine", string(target)).Msg("switch_to create failed")
			return SwitchOutcome{}, fmt.Errorf("%w: %v", ErrSwitchFailed, err)
		}
	}

	if s.cancelled(ctx) {
		inst.Destroy()
		delete(s.instances, target)
		s.composited[target] = false
		s.rollbackToPrevious(prevID)
		return SwitchOutcome{}, ErrSwitchCancelled
	}

	// A freshly created instance gets a settle window before validation;
	// a reused, already-live instance doesn't need to re-stabilize.
	if !reused {
		s.pool.Stabilize()
	}

	// Step 7: validate.
	if !inst.Healthy() {
		inst.Destroy()
		delete(s.instances, target)
		s.composited[target] = false
		s.restorePreviousOnFailure(prevID)
		return SwitchOutcome{}, fmt.Errorf("%w: target failed validation", ErrSwitchFailed)
	}

	// Step 8: activate.
	inst.SetActive(true)
	s.active = &target

	// Step 9: reattach router.
	if s.router != nil {
		s.router.SetActiveEngine(target, inst.HasNativeReactivity())
	}

	s.log.Debug().Str("engine", string(target)).Bool("reused", reused).Msg("switch_to complete")
	return SwitchOutcome{Target: target, Reused: reused}, nil
}

func (s *Scheduler) createOrReuse(target surface.EngineID) (*engine.Engine, bool, error) {
	if inst, ok := s.instances[target]; ok && inst.Healthy() {
		return inst, true, nil
	}
	if inst, ok := s.instances[target]; ok {
		inst.Destroy()
		delete(s.instances, target)
	}
	inst, err := engine.Create(s.specs[target], s.store, s.pool)
	if err != nil {
		return nil, false, err
	}
	s.instances[target] = inst
	return inst, false, nil
}

// forceCleanupExceptTarget destroys every cached instance other than
// target, freeing pool capacity so the caller can retry target's
// acquisition once.
func (s *Scheduler) forceCleanupExceptTarget(target surface.EngineID) {
	for id, inst := range s.instances {
		if id == target {
			continue
		}
		inst.Destroy()
		delete(s.instances, id)
	}
	s.log.Warn().Str("target", string(target)).Msg("forced cleanup of cached engines after capacity exceeded")
}

// restorePreviousOnFailure reactivates prevID if it still has a live
// instance, so a failed switch leaves the previous engine running rather
// than leaving nothing active.
func (s *Scheduler) restorePreviousOnFailure(prevID *surface.EngineID) {
	if prevID == nil {
		s.active = nil
		return
	}
	if inst, ok := s.instances[*prevID]; ok {
		inst.SetActive(true)
		s.composited[*prevID] = true
		id := *prevID
		s.active = &id
		return
	}
	s.active = nil
}

// rollbackToPrevious restores prevID as active when a switch is cancelled
// mid-flight by a newer switch_to call.
func (s *Scheduler) rollbackToPrevious(prevID *surface.EngineID) {
	s.restorePreviousOnFailure(prevID)
}

// RecoverFromLoss schedules a recovery switch to id after driver-initiated
// context loss on the active engine, tearing down and rebuilding the
// instance.
func (s *Scheduler) RecoverFromLoss(id surface.EngineID) (SwitchOutcome, error) {
	s.mu.Lock()
	if inst, ok := s.instances[id]; ok {
		inst.Destroy()
		delete(s.instances, id)
	}
	s.active = nil
	s.mu.Unlock()
	return s.SwitchTo(id)
}
