package router

import (
	"math"

	"github.com/example/vishost/internal/params"
	"github.com/example/vishost/internal/surface"
)

// effect is one running click-decay animation. Each frame it scales its
// magnitudes by their decay factors and applies the current increment to
// Params; once every magnitude drops below 0.01 it reports done so the
// animator prunes it.
type effect interface {
	// step applies one frame of decay/effect and returns false once the
	// effect has fully decayed and should be removed.
	step(r *Router, engine surface.EngineID) bool
}

func (r *Router) handleClick(engine surface.EngineID, x, y float64) {
	r.mu.Lock()
	mode := r.clickMode
	r.mu.Unlock()

	var eff effect
	switch mode {
	case ClickBurst:
		eff = &burstEffect{a1: 1, a2: 1, a3: 1}
	case ClickBlast:
		eff = &blastEffect{a1: 1, a2: 1, a3: 1, a4: 1}
	case ClickRipple:
		dx, dy := x-0.5, y-0.5
		d := math.Min(math.Sqrt(dx*dx+dy*dy)/0.707, 1)
		eff = &rippleEffect{a: 1, distance: d}
	case ClickOff:
		return
	default:
		return
	}

	// A click applies its first decay step immediately rather than waiting
	// for the next Tick, so the effect is felt on the same frame it fires.
	if !eff.step(r, engine) {
		return
	}

	r.mu.Lock()
	r.effects = append(r.effects, eff)
	r.mu.Unlock()
}

// burstEffect: three decaying magnitudes at 0.94/0.92/0.91, applying
// chaos += 0.8*a1, speed += 1.5*a2 each frame until decayed.
type burstEffect struct{ a1, a2, a3 float64 }

func (e *burstEffect) step(r *Router, engine surface.EngineID) bool {
	r.set(engine, params.Chaos, r.get(engine, params.Chaos)+0.8*e.a1)
	r.set(engine, params.Speed, r.get(engine, params.Speed)+1.5*e.a2)

	e.a1 *= 0.94
	e.a2 *= 0.92
	e.a3 *= 0.91
	return !allBelow(0.01, e.a1, e.a2, e.a3)
}

// blastEffect: four decaying magnitudes at 0.88/0.89/0.90 (the fourth
// shares the third's factor), applying clamped chaos/speed plus a hue
// offset up to 60°.
type blastEffect struct{ a1, a2, a3, a4 float64 }

func (e *blastEffect) step(r *Router, engine surface.EngineID) bool {
	chaos := 0.3 + 0.7*e.a1
	speed := 1.0 + 2.0*e.a2
	hueDelta := 60 * e.a3 * 0.10 // per-frame share of the decaying swing

	r.set(engine, params.Chaos, clamp(chaos, 0, 1))
	r.set(engine, params.Speed, clamp(speed, 0.1, 3))
	r.set(engine, params.Hue, math.Mod(r.get(engine, params.Hue)+hueDelta, 360))

	e.a1 *= 0.88
	e.a2 *= 0.89
	e.a3 *= 0.90
	e.a4 *= 0.90
	return !allBelow(0.01, e.a1, e.a2, e.a3, e.a4)
}

// rippleEffect (holographic): morphFactor += 0.1+0.2*(1-d), decaying at
// 0.9 per frame.
type rippleEffect struct {
	a float64
	distance float64
}

func (e *rippleEffect) step(r *Router, engine surface.EngineID) bool {
	delta := (0.1 + 0.2*(1-e.distance)) * e.a
	r.set(engine, params.MorphFactor, r.get(engine, params.MorphFactor)+delta)

	e.a *= 0.9
	return e.a >= 0.01
}

func allBelow(threshold float64, magnitudes ...float64) bool {
	for _, m := range magnitudes {
		if math.Abs(m) >= threshold {
			return false
		}
	}
	return true
}
