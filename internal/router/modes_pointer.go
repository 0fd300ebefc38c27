package router

import (
	"math"

	"github.com/example/vishost/internal/params"
	"github.com/example/vishost/internal/surface"
)

// velocityBaselineHue is Velocity mode's fixed hue baseline; Rotations
// mode instead offsets whatever hue is currently stored, not a constant.
const velocityBaselineHue = 280

func (r *Router) handlePointerMove(engine surface.EngineID, x, y float64) {
	r.mu.Lock()
	mode := r.pointerMode
	r.mu.Unlock()

	switch mode {
	case PointerRotations:
		r.applyRotations(engine, x, y)
	case PointerVelocity:
		r.applyVelocity(engine, x, y)
	case PointerDistance:
		r.applyDistance(engine, x, y)
	case PointerOff:
		// no-op
	}
}

// applyRotations implements Rotations mode: a pure function of the current
// sample, no history.
func (r *Router) applyRotations(engine surface.EngineID, x, y float64) {
	r.set(engine, params.Rot4dXW, (x-0.5)*4*math.Pi)
	r.set(engine, params.Rot4dYW, (x-0.5)*2.8*math.Pi)
	r.set(engine, params.Rot4dZW, (y-0.5)*4*math.Pi)

	baseline := r.get(engine, params.Hue)
	r.set(engine, params.Hue, math.Mod(baseline+(x-0.5)*30, 360))
}

// applyVelocity implements Velocity mode: a rolling mean of
// Euclidean deltas over the last 5 samples drives chaos/speed/gridDensity/
// intensity/hue.
func (r *Router) applyVelocity(engine surface.EngineID, x, y float64) {
	r.mu.Lock()
	r.pointerHistory = append(r.pointerHistory, point{X: x, Y: y})
	if len(r.pointerHistory) > 6 {
		r.pointerHistory = r.pointerHistory[len(r.pointerHistory)-6:]
	}
	history := r.pointerHistory
	r.mu.Unlock()

	mean := meanDelta(history)

	r.set(engine, params.Chaos, clamp(mean*30, 0, 1))
	r.set(engine, params.Speed, clamp(0.5+mean*15, 0.5, 3))
	r.set(engine, params.GridDensity, 10+y*90)
	r.set(engine, params.Intensity, 0.4+x*0.6)
	r.set(engine, params.Hue, math.Mod(velocityBaselineHue+mean*80, 360))
}

// applyDistance implements Distance mode, including the
// deterministic zero-distance boundary case (x=y=0.5 -> d=0).
func (r *Router) applyDistance(engine surface.EngineID, x, y float64) {
	dx, dy := x-0.5, y-0.5
	d := math.Min(math.Sqrt(dx*dx+dy*dy)/0.707, 1)

	r.set(engine, params.GridDensity, 5+95*d)
	r.set(engine, params.Intensity, 0.2+0.8*(1-d))
	r.set(engine, params.Saturation, 0.4+0.6*(1-d))
	r.set(engine, params.Hue, math.Mod(320+40*d, 360))
}

func meanDelta(history []point) float64 {
	if len(history) < 2 {
		return 0
	}
	var sum float64
	n := 0
	for i := 1; i < len(history); i++ {
		dx := history[i].X - history[i-1].X
		dy := history[i].Y - history[i-1].Y
		sum += math.Sqrt(dx*dx + dy*dy)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
