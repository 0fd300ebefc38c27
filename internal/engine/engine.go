// Package engine implements one render pipeline per visualizer system,
// owning five surface-bound contexts and renderers, generalized from a
// single crossfading renderer pair to five independently-owned role
// renderers backed by real GPU contexts.
package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/vishost/internal/audio"
	"github.com/example/vishost/internal/gpupool"
	"github.com/example/vishost/internal/params"
	"github.com/example/vishost/internal/surface"
)

// ErrCreateFailed wraps any failure during Create; the caller inspects the
// wrapped error for the precise taxonomy entry.
var ErrCreateFailed = errors.New("engine: create failed")

// Spec is the static per-engine metadata the scheduler and store consult
// when seeding a fresh instance. HasNativeReactivity lets the Reactivity
// Router decide whether to suppress an engine's own pointer/wheel response.
type Spec struct {
	ID                  surface.EngineID
	Defaults            params.Params
	VariantCount        int
	HasNativeReactivity bool
}

// roleOverrides is the sticky per-field custom-override map: values set via
// UpdateParam survive a variant change, and are re-applied after the new
// variant index is written.
type roleOverrides map[params.Field]any

// Engine owns five renderers, one per surface role, plus the contexts the
// GPU pool granted for them.
type Engine struct {
	mu sync.Mutex

	spec  Spec
	store *params.Store
	pool  *gpupool.Pool
	log   zerolog.Logger

	contexts  map[surface.Role]*gpupool.Ctx
	renderers map[surface.Role]Renderer

	active    bool
	overrides roleOverrides
	lastAudio *audio.Features
}

// Create acquires contexts for all five of spec.ID's surfaces via the GPU
// pool, builds the role renderers, and seeds the parameter store. Partial
// acquisition is an error: every context already acquired is released
// before Create returns.
func Create(spec Spec, store *params.Store, pool *gpupool.Pool) (*Engine, error) {
	store.Seed(string(spec.ID), spec.Defaults, spec.VariantCount)

	surfaces := surface.Surfaces(spec.ID)
	ctxs, err := pool.AcquireSet(surfaces, string(spec.ID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}

	byRole := make(map[surface.Role]*gpupool.Ctx, len(ctxs))
	for i, c := range ctxs {
		byRole[surfaces[i].Role] = c
	}

	e := &Engine{
		spec:      spec,
		store:     store,
		pool:      pool,
		log:       log.With().Str("component", "engine").Str("engine", string(spec.ID)).Logger(),
		contexts:  byRole,
		renderers: renderersFor(spec.ID),
		overrides: roleOverrides{},
	}
	e.log.Debug().Msg("engine created")
	return e, nil
}

// Healthy reports whether all five contexts are still Bound (not Lost).
func (e *Engine) Healthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.contexts {
		if c.State() != gpupool.StateBound {
			return false
		}
	}
	return len(e.contexts) == len(surface.Roles)
}

// SetActive toggles the render loop; a suspended engine retains all state
// and contexts but Tick becomes a no-op.
func (e *Engine) SetActive(active bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = active
}

// Active reports the current suspension state.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Tick pulls the current Params, applies the cached audio frame, and
// drives every role renderer once. No-op when the engine is suspended.
// The audio-reactive channel is engine-native and ephemeral: it modulates
// this tick's effective Params (hue/morphFactor/intensity) without ever
// writing back to the Parameter Store, so persisted state never drifts
// frame-over-frame from audio alone. Engines consume the one shared
// analyzer feed rather than opening their own audio input.
func (e *Engine) Tick(t float64) map[surface.Role]Output {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return nil
	}
	base := e.store.Snapshot(string(e.spec.ID))
	audioFrame := e.lastAudio
	renderers := e.renderers
	e.mu.Unlock()

	effective := ApplyAudioModulation(base, audioFrame)

	out := make(map[surface.Role]Output, len(renderers))
	for role, r := range renderers {
		raw := r.Render(Frame{Role: role, Params: effective, Audio: audioFrame, T: t})
		out[role] = ToneMap(WhiteCap(raw, 3.0), 0, 2.2)
	}
	return out
}

// ApplyAudioModulation returns a copy of base with the audio-reactive
// channel applied: hue shifts by mid*120 degrees, morphFactor by mid*1.0,
// intensity by bass*0.3, each re-clamped into its declared range. A nil or
// silent frame leaves base unchanged: silence produces no parameter change
// in the audio-driven channel.
func ApplyAudioModulation(base params.Params, frame *audio.Features) params.Params {
	if frame == nil || frame.Silent {
		return base
	}
	out := base
	out.Hue = wrapHue(base.Hue + frame.Mid*120)
	out.MorphFactor = clamp01Range(base.MorphFactor+frame.Mid*1.0, 0, 2)
	out.Intensity = clamp01Range(base.Intensity+frame.Bass*0.3, 0, 1)
	return out
}

func clamp01Range(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// UpdateParam forwards to the Parameter Store; the change is visible on
// the next Tick, and also recorded as a sticky override for the active
// role set so it survives a later SetVariant.
func (e *Engine) UpdateParam(field params.Field, value any) params.ChangeOutcome {
	outcome := e.store.Set(string(e.spec.ID), field, value)
	if outcome.Err == nil {
		e.mu.Lock()
		e.overrides[field] = outcome.New
		e.mu.Unlock()
	}
	return outcome
}

// SetVariant records the given variant index and re-applies every sticky
// override on top of it. Variant-specific role defaults are a renderer
// concern (renderer.go's stubs key purely on EngineID, not variant), so
// this does not itself recompute any role params — it only updates
// Params.Variant and replays overrides that survive the change.
func (e *Engine) SetVariant(variant int) {
	e.store.Set(string(e.spec.ID), params.Variant, float64(variant))

	e.mu.Lock()
	overrides := make(roleOverrides, len(e.overrides))
	for k, v := range e.overrides {
		overrides[k] = v
	}
	e.mu.Unlock()

	for field, value := range overrides {
		if field == params.Variant {
			continue
		}
		e.store.Set(string(e.spec.ID), field, value)
	}
}

// ApplyAudio caches the latest audio frame for the next Tick; older,
// unconsumed frames are replaced rather than queued.
func (e *Engine) ApplyAudio(f audio.Features) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastAudio = &f
}

// Destroy stops the loop, releases every context, and leaves the instance
// unusable. Safe to call more than once.
func (e *Engine) Destroy() {
	e.mu.Lock()
	e.active = false
	contexts := e.contexts
	e.contexts = map[surface.Role]*gpupool.Ctx{}
	e.mu.Unlock()

	for _, c := range contexts {
		e.pool.Release(c)
	}
	e.log.Debug().Msg("engine destroyed")
}

// HasNativeReactivity reports the engine's native-reactivity declaration,
// consulted by the Reactivity Router at switch time.
func (e *Engine) HasNativeReactivity() bool { return e.spec.HasNativeReactivity }

// ID returns the engine identity this instance was created for.
func (e *Engine) ID() surface.EngineID { return e.spec.ID }
