package router

import (
	"math"
	"math/rand"

	"github.com/example/vishost/internal/params"
	"github.com/example/vishost/internal/surface"
)

// sweepFields is the rotating focus order for WheelSweep, each field's
// step sized at 2% of its own declared range.
var sweepFields = []struct {
	field params.Field
	lo, hi float64
}{
	{params.Hue, 0, 360},
	{params.Intensity, 0, 1},
	{params.Saturation, 0, 1},
	{params.Chaos, 0, 1},
	{params.Speed, 0.1, 3},
}

func (r *Router) handleWheel(engine surface.EngineID, dy float64) {
	if dy == 0 {
		return // wheel delta of 0 is a no-op
	}

	r.mu.Lock()
	mode := r.wheelMode
	r.mu.Unlock()

	switch mode {
	case WheelCycle:
		r.applyWheelCycle(engine, dy)
	case WheelWave:
		r.applyWheelWave(engine, dy)
	case WheelSweep:
		r.applyWheelSweep(engine, dy)
	case WheelOff:
		// no-op
	}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func (r *Router) applyWheelCycle(engine surface.EngineID, dy float64) {
	s := sign(dy)
	r.set(engine, params.GridDensity, clamp(r.get(engine, params.GridDensity)+s*0.8, 5, 100))
	r.set(engine, params.Hue, math.Mod(r.get(engine, params.Hue)+s*3+360, 360))
}

func (r *Router) applyWheelWave(engine surface.EngineID, dy float64) {
	s := sign(dy)
	r.set(engine, params.MorphFactor, clamp(r.get(engine, params.MorphFactor)+s*0.02, 0.2, 2.0))
}

// applyWheelSweep advances a rotating focus over
// {hue,intensity,saturation,chaos,speed}, stepping the focused field by 2%
// of its range, with a 10% chance per event of advancing to the next
// field. applyWheelSweepWithRoll takes the roll as an argument, so a caller
// can supply a deterministic one.
func (r *Router) applyWheelSweep(engine surface.EngineID, dy float64) {
	r.applyWheelSweepWithRoll(engine, dy, pseudoRandom01())
}

func (r *Router) applyWheelSweepWithRoll(engine surface.EngineID, dy, roll float64) {
	r.mu.Lock()
	idx := r.sweepFocus
	if roll < 0.10 {
		idx = (idx + 1) % len(sweepFields)
	}
	r.sweepFocus = idx
	r.mu.Unlock()

	f := sweepFields[idx]
	step := (f.hi - f.lo) * 0.02 * sign(dy)
	r.set(engine, f.field, clamp(r.get(engine, f.field)+step, f.lo, f.hi))
}

// pseudoRandom01 is the injection seam for WheelSweep's 10%-probability
// advance; it can be swapped for a deterministic function without the
// router's decision logic changing.
var pseudoRandom01 = rand.Float64
