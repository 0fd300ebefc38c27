package engine

import (
	"math"

	"github.com/example/vishost/internal/audio"
	"github.com/example/vishost/internal/params"
	"github.com/example/vishost/internal/surface"
)

// Frame is what a Renderer sees on a tick: the engine's current parameter
// snapshot, the role it owns, and the latest cached audio features (nil if
// none have arrived yet; a silent frame is passed with Silent set).
type Frame struct {
	Role surface.Role
	Params params.Params
	Audio *audio.Features
	T float64
}

// Output is the one observable effect a stub renderer produces: a flat
// color. Real shader/geometry renderers are out of scope; this
// is the minimal contract that makes tick() testable.
type Output struct {
	R, G, B float64
}

// Renderer owns one surface's worth of drawing, trimmed to the single
// Render call this host needs since presets are a gallery concern.
type Renderer interface {
	Name() string
	Render(f Frame) Output
}

// solidRenderer renders a flat color derived from hue/intensity, with an
// optional per-role saturation bias.
type solidRenderer struct {
	name string
	satBias float64
}

func newSolidRenderer(name string, satBias float64) *solidRenderer {
	return &solidRenderer{name: name, satBias: satBias}
}

func (s *solidRenderer) Name() string { return s.name }

func (s *solidRenderer) Render(f Frame) Output {
	sat := clamp01(f.Params.Saturation + s.satBias)
	val := clamp01(f.Params.Intensity)
	if f.Audio != nil && !f.Audio.Silent {
		val = clamp01(val + f.Audio.Energy*0.1)
	}
	return hsvToRGB(f.Params.Hue, sat, val)
}

// gradRenderer blends two hue-offset colors by gridDensity, producing a
// visibly distinct output from solidRenderer without implementing real
// geometry.
type gradRenderer struct {
	name string
	hueOffset float64
}

func newGradRenderer(name string, hueOffset float64) *gradRenderer {
	return &gradRenderer{name: name, hueOffset: hueOffset}
}

func (g *gradRenderer) Name() string { return g.name }

func (g *gradRenderer) Render(f Frame) Output {
	mix := clamp01((f.Params.GridDensity - 5) / 95)
	hueA := wrapHue(f.Params.Hue)
	hueB := wrapHue(f.Params.Hue + g.hueOffset)
	a := hsvToRGB(hueA, clamp01(f.Params.Saturation), clamp01(f.Params.Intensity))
	b := hsvToRGB(hueB, clamp01(f.Params.Saturation), clamp01(f.Params.Intensity))
	return Output{
		R: a.R + (b.R-a.R)*mix,
		G: a.G + (b.G-a.G)*mix,
		B: a.B + (b.B-a.B)*mix,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func wrapHue(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// hsvToRGB converts to float64 [0,1] RGB output rather than byte RGB.
func hsvToRGB(h, s, v float64) Output {
	h = wrapHue(h)
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return Output{R: r + m, G: g + m, B: b + m}
}

// renderersFor builds the five role-bound renderers for an engine id.
// Each engine alternates solid/grad stubs with engine-flavored biases so
// the four engines are visually distinguishable without any real shader
// work
func renderersFor(id surface.EngineID) map[surface.Role]Renderer {
	switch id {
	case surface.Faceted:
		return map[surface.Role]Renderer{
			surface.Background: newSolidRenderer("faceted-background", -0.1),
			surface.Shadow: newSolidRenderer("faceted-shadow", -0.3),
			surface.Content: newGradRenderer("faceted-content", 20),
			surface.Highlight: newSolidRenderer("faceted-highlight", 0.1),
			surface.Accent: newGradRenderer("faceted-accent", -20),
		}
	case surface.Quantum:
		return map[surface.Role]Renderer{
			surface.Background: newGradRenderer("quantum-background", 40),
			surface.Shadow: newSolidRenderer("quantum-shadow", -0.2),
			surface.Content: newGradRenderer("quantum-content", -40),
			surface.Highlight: newSolidRenderer("quantum-highlight", 0.2),
			surface.Accent: newSolidRenderer("quantum-accent", 0),
		}
	case surface.Holographic:
		return map[surface.Role]Renderer{
			surface.Background: newSolidRenderer("holo-background", -0.15),
			surface.Shadow: newGradRenderer("holo-shadow", 60),
			surface.Content: newGradRenderer("holo-content", -60),
			surface.Highlight: newGradRenderer("holo-highlight", 30),
			surface.Accent: newSolidRenderer("holo-accent", 0.15),
		}
	default: // Polychora
		return map[surface.Role]Renderer{
			surface.Background: newSolidRenderer("polychora-background", -0.25),
			surface.Shadow: newSolidRenderer("polychora-shadow", -0.4),
			surface.Content: newGradRenderer("polychora-content", 90),
			surface.Highlight: newGradRenderer("polychora-highlight", -90),
			surface.Accent: newSolidRenderer("polychora-accent", 0.25),
		}
	}
}
