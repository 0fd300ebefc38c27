// Package router implements the Reactivity Router: the single place
// InputEvents become Params writes, composing independent pointer/click/
// wheel modes and arbitrating with whichever engine is active, generalized
// from one fixed input-to-parameter mapping into a 3x3 mode grid.
package router

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/vishost/internal/audio"
	"github.com/example/vishost/internal/input"
	"github.com/example/vishost/internal/params"
	"github.com/example/vishost/internal/surface"
)

// AudioTarget is the non-owning handle the router forwards audio frames
// to; implemented by *scheduler.Scheduler, mirroring RouterNotifier's
// import-cycle-avoidance shape on the scheduler side.
type AudioTarget interface {
	ApplyAudio(id surface.EngineID, f audio.Features)
}

// PointerMode selects how pointer/touch samples map to Params.
type PointerMode int

const (
	PointerOff PointerMode = iota
	PointerRotations
	PointerVelocity
	PointerDistance
)

// ClickMode selects the click/tap decay effect.
type ClickMode int

const (
	ClickOff ClickMode = iota
	ClickBurst
	ClickBlast
	ClickRipple
)

// WheelMode selects the wheel/scroll accumulator behavior.
type WheelMode int

const (
	WheelOff WheelMode = iota
	WheelCycle
	WheelWave
	WheelSweep
)

// Router is the single point where InputEvents become Params writes.
type Router struct {
	mu sync.Mutex

	store *params.Store

	enabled bool
	pointerMode PointerMode
	clickMode ClickMode
	wheelMode WheelMode

	active surface.EngineID
	activeHasNative bool
	audioTarget AudioTarget

	pointerHistory []point
	sweepFocus int
	effects []effect

	log zerolog.Logger
}

type point struct{ X, Y float64 }

// New builds a disabled router with all modes off; callers enable it and
// pick modes via SetEnabled/SetPointerMode/SetClickMode/SetWheelMode.
func New(store *params.Store) *Router {
	return &Router{
		store: store,
		log: log.With().Str("component", "router").Logger(),
	}
}

// SetEnabled is the router's single master enable switch.
func (r *Router) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

func (r *Router) SetPointerMode(m PointerMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pointerMode = m
	r.pointerHistory = nil
}

func (r *Router) SetClickMode(m ClickMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clickMode = m
}

func (r *Router) SetWheelMode(m WheelMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wheelMode = m
	r.sweepFocus = 0
}

// SetAudioTarget attaches the handle audio InputEvents are forwarded to.
// Wired to the scheduler at startup so the audio channel reaches the
// active engine without the router owning any engine lifecycle itself.
func (r *Router) SetAudioTarget(t AudioTarget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audioTarget = t
}

// SetActiveEngine implements scheduler.RouterNotifier: it is the scheduler
// telling the router which engine is now active, and whether that engine
// declares native reactivity the router should suppress.
func (r *Router) SetActiveEngine(id surface.EngineID, hasNativeReactivity bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = id
	r.activeHasNative = hasNativeReactivity
	r.pointerHistory = nil
	r.effects = nil
}

// SuppressNative reports whether the active engine must suppress its own
// native reactivity for the currently-selected channels, because the
// router has a mode set for at least one channel.
func (r *Router) SuppressNative() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.activeHasNative {
		return false
	}
	return r.enabled && (r.pointerMode != PointerOff || r.clickMode != ClickOff || r.wheelMode != WheelOff)
}

// HandleEvent maps one InputEvent to Params writes for the active engine.
// The router never panics; an invalid or unselected mode for a channel is
// simply a no-op for that channel. Precedence within a tick (engine-native
// writes first, router writes last and authoritative) is enforced by
// callers invoking HandleEvent after any native-reactivity pass, not by
// the router itself.
func (r *Router) HandleEvent(e input.Event) {
	r.mu.Lock()
	enabled := r.enabled
	engine := r.active
	target := r.audioTarget
	r.mu.Unlock()
	if engine == "" {
		return
	}

	// Audio isn't part of the pointer/click/wheel mode grid the master
	// enable switch gates — it always reaches the active engine, on or
	// off, since there is no "audio mode" to disable.
	if e.Kind == input.KindAudio {
		if target != nil {
			target.ApplyAudio(engine, e.Audio)
		}
		return
	}
	if !enabled {
		return
	}

	switch e.Kind {
	case input.KindPointerMove:
		r.handlePointerMove(engine, e.X, e.Y)
	case input.KindPointerUp:
		r.handleClick(engine, e.X, e.Y)
	case input.KindWheel:
		r.handleWheel(engine, e.DY)
	case input.KindMotion:
		// Motion is a hands-free stand-in for pointer position: orientation
		// deltas are treated as an offset from the surface's center and fed
		// through whichever pointer mode is selected, same as a touch.
		r.handlePointerMove(engine, clamp(0.5+e.MotionX, 0, 1), clamp(0.5+e.MotionY, 0, 1))
	}
}

// Tick advances the click-effect decay loop by one frame. Call once per
// scheduler tick; stale effects are pruned once every magnitude in an
// effect drops below 0.01.
func (r *Router) Tick() {
	r.mu.Lock()
	engine := r.active
	effects := r.effects
	r.mu.Unlock()

	var kept []effect
	for _, eff := range effects {
		if eff.step(r, engine) {
			kept = append(kept, eff)
		}
	}

	r.mu.Lock()
	r.effects = kept
	r.mu.Unlock()
}

func (r *Router) set(engine surface.EngineID, field params.Field, value float64) {
	r.store.Set(string(engine), field, value)
}

func (r *Router) get(engine surface.EngineID, field params.Field) float64 {
	v := r.store.Get(string(engine), field)
	f, _ := v.(float64)
	return f
}
