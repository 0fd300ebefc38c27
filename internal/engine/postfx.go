package engine

import "math"

// ToneMap applies a filmic/ACES curve to a role's output before it leaves
// the engine, exposure in EV and gamma defaulting to 2.2. Adapted from a
// per-LED-buffer color-grading pass to operate on one surface's Output.
func ToneMap(o Output, exposureEV, gamma float64) Output {
	if gamma <= 0 {
		gamma = 2.2
	}
	exposure := math.Pow(2.0, exposureEV)
	r := acesApprox(o.R * exposure)
	g := acesApprox(o.G * exposure)
	b := acesApprox(o.B * exposure)

	if gamma != 1.0 {
		ig := 1.0 / gamma
		r = math.Pow(r, ig)
		g = math.Pow(g, ig)
		b = math.Pow(b, ig)
	}
	return Output{R: clamp01(r), G: clamp01(g), B: clamp01(b)}
}

// acesApprox is the Narkowicz 2015 filmic curve approximation.
func acesApprox(x float64) float64 {
	const a, b, c, d, e = 2.51, 0.03, 2.43, 0.59, 0.14
	return clamp01((x * (a*x + b)) / (x*(c*x+d) + e))
}

// WhiteCap scales a role's output so R+G+B never exceeds cap, preserving
// hue. cap<=0 disables the cap.
func WhiteCap(o Output, cap float64) Output {
	if cap <= 0 {
		return o
	}
	sum := o.R + o.G + o.B
	if sum <= cap || sum <= 0 {
		return o
	}
	scale := cap / sum
	return Output{R: o.R * scale, G: o.G * scale, B: o.B * scale}
}
