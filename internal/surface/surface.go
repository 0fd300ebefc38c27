// Package surface is the static, process-wide table of drawing surfaces:
// a named set of GPU canvas targets per engine, generalized from a
// physical lattice-layout pattern.
package surface

import "fmt"

// EngineID is the closed set of visualizer systems this host can run.
type EngineID string

const (
	Faceted EngineID = "faceted"
	Quantum EngineID = "quantum"
	Holographic EngineID = "holographic"
	Polychora EngineID = "polychora"
)

// AllEngines lists the four engines in a stable order.
var AllEngines = []EngineID{Faceted, Quantum, Holographic, Polychora}

// Role is one of the five layered surfaces every engine declares.
type Role string

const (
	Background Role = "background"
	Shadow Role = "shadow"
	Content Role = "content"
	Highlight Role = "highlight"
	Accent Role = "accent"
)

// Roles lists the five roles in the order surfaces are acquired.
var Roles = []Role{Background, Shadow, Content, Highlight, Accent}

// Surface is an immutable descriptor. Surfaces are owned by the registry
// for the process lifetime; callers hold a reference, never a copy used as
// an identity (two Surfaces with equal fields are still meant to refer to
// the same registry entry).
type Surface struct {
	Engine EngineID
	Role Role
	ID string
}

// prefix returns the engine-name-segment used in surface ids. Faceted is
// special-cased to the empty prefix for bit-exact compatibility with
// pre-existing snapshots.
func prefix(e EngineID) string {
	switch e {
	case Faceted:
		return ""
	case Quantum:
		return "quantum"
	case Holographic:
		return "holo"
	case Polychora:
		return "polychora"
	default:
		return string(e)
	}
}

// surfaceID builds the "[engine-prefix]-[role]-canvas" id, with the bare
// "background-canvas" form when prefix is empty.
func surfaceID(e EngineID, r Role) string {
	p := prefix(e)
	if p == "" {
		return fmt.Sprintf("%s-canvas", r)
	}
	return fmt.Sprintf("%s-%s-canvas", p, r)
}

// registry is built once at package init; it is total (every engine has
// exactly 5 roles) and never mutated afterward.
var registry = buildRegistry()

func buildRegistry() map[EngineID][]Surface {
	reg := make(map[EngineID][]Surface, len(AllEngines))
	for _, e := range AllEngines {
		surfaces := make([]Surface, 0, len(Roles))
		for _, r := range Roles {
			surfaces = append(surfaces, Surface{Engine: e, Role: r, ID: surfaceID(e, r)})
		}
		reg[e] = surfaces
	}
	return reg
}

// Surfaces returns the five surfaces declared by engine, in Roles order.
// The returned slice is the registry's own backing array; callers must
// not mutate it.
func Surfaces(engine EngineID) []Surface {
	return registry[engine]
}

// Lookup finds the surface of engine with the given role.
func Lookup(engine EngineID, role Role) (Surface, bool) {
	for _, s := range registry[engine] {
		if s.Role == role {
			return s, true
		}
	}
	return Surface{}, false
}

// ByID finds a surface anywhere in the registry by its id string.
func ByID(id string) (Surface, bool) {
	for _, surfaces := range registry {
		for _, s := range surfaces {
			if s.ID == id {
				return s, true
			}
		}
	}
	return Surface{}, false
}
