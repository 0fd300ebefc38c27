// Package params is the canonical, typed parameter store for every engine.
//
// It replaces the untyped map[string]float64 "Uniforms.Params" pattern the
// render engine this package is descended from used — every field here has
// a declared range and a clamp/normalize rule, and writes that don't change
// the stored value after clamping are silently absorbed rather than
// notified.
package params

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog/log"
)

// Field identifies one member of the parameter vector.
type Field string

const (
	Geometry Field = "geometry"
	Variant Field = "variant"
	GridDensity Field = "gridDensity"
	MorphFactor Field = "morphFactor"
	Chaos Field = "chaos"
	Speed Field = "speed"
	Hue Field = "hue"
	Intensity Field = "intensity"
	Saturation Field = "saturation"
	Rot4dXW Field = "rot4dXW"
	Rot4dYW Field = "rot4dYW"
	Rot4dZW Field = "rot4dZW"
	Dimension Field = "dimension"
)

// AllFields enumerates every member of the schema, in the order the JSON
// snapshot lists them.
var AllFields = []Field{
	Geometry, GridDensity, MorphFactor, Chaos, Speed, Hue, Intensity,
	Saturation, Rot4dXW, Rot4dYW, Rot4dZW, Dimension, Variant,
}

// Params is the fixed-shape, clamped parameter vector for one engine.
type Params struct {
	Geometry int
	Variant int
	GridDensity float64
	MorphFactor float64
	Chaos float64
	Speed float64
	Hue float64
	Intensity float64
	Saturation float64
	Rot4dXW float64
	Rot4dYW float64
	Rot4dZW float64
	Dimension float64
}

// ChangeOutcome is the result of a single-field write.
type ChangeOutcome struct {
	Changed bool
	Old, New any
	Err error
}

// ErrInvalidValue is returned (inside ChangeOutcome.Err) when a write is
// rejected for type/shape reasons; the field is left untouched.
var ErrInvalidValue = fmt.Errorf("params: invalid value")

// Unchanged builds a no-op outcome.
func Unchanged(v any) ChangeOutcome { return ChangeOutcome{Changed: false, Old: v, New: v} }

// subscription is one registered change callback.
type subscription struct {
	id uint64
	engine string
	cb func(engine string, field Field, old, new any)
}

// Handle identifies a subscription for later Unsubscribe.
type Handle uint64

// Store is the single source of truth for every engine's Params. All
// methods are safe for concurrent use; the scheduler, engines, and router
// share one Store instance.
type Store struct {
	mu sync.RWMutex
	byEngine map[string]*Params
	variantN map[string]int // exclusive upper bound of Variant per engine
	subs []subscription
	nextSub uint64
}

// NewStore creates an empty store. Call Seed for each engine before use.
func NewStore() *Store {
	return &Store{
		byEngine: map[string]*Params{},
		variantN: map[string]int{},
	}
}

// Seed installs the default Params and variant count for an engine. Safe
// to call once per engine at startup; re-seeding overwrites the current
// value, which is only intended for tests and cold start.
func (s *Store) Seed(engine string, defaults Params, variantCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := defaults
	clampAll(&p)
	s.byEngine[engine] = &p
	if variantCount <= 0 {
		variantCount = 1
	}
	s.variantN[engine] = variantCount
}

func (s *Store) ensure(engine string) *Params {
	p, ok := s.byEngine[engine]
	if !ok {
		p = &Params{Speed: 1, Dimension: 3.5}
		s.byEngine[engine] = p
		s.variantN[engine] = 1
	}
	return p
}

// Get returns the stored, clamped value of field for engine. Never fails:
// an unknown field returns nil.
func (s *Store) Get(engine string, field Field) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byEngine[engine]
	if !ok {
		return nil
	}
	return fieldValue(p, field)
}

// Snapshot returns a cheap-to-compare copy of engine's full Params.
func (s *Store) Snapshot(engine string) Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.byEngine[engine]; ok {
		return *p
	}
	return Params{}
}

// Set clamps value into field's declared range, writes iff the clamped
// value differs from the stored one, and notifies subscribers on change.
func (s *Store) Set(engine string, field Field, value any) ChangeOutcome {
	s.mu.Lock()
	p := s.ensure(engine)
	old := fieldValue(p, field)
	clamped, ok := clampField(field, value)
	if !ok {
		s.mu.Unlock()
		log.Debug().Str("engine", engine).Str("field", string(field)).Msg("params: invalid value rejected")
		return ChangeOutcome{Changed: false, Old: old, New: old, Err: ErrInvalidValue}
	}
	variantN := s.variantN[engine]
	changed := writeField(p, field, clamped, variantN)
	newVal := fieldValue(p, field)
	s.mu.Unlock()

	if !changed {
		return ChangeOutcome{Changed: false, Old: old, New: newVal}
	}
	s.notify(engine, field, old, newVal)
	return ChangeOutcome{Changed: true, Old: old, New: newVal}
}

// BatchSet applies every (field, value) pair atomically from the readers'
// perspective (the store's mutex is held for the whole batch) and returns
// the set of fields that actually changed, notifying once per field.
func (s *Store) BatchSet(engine string, values map[Field]any) map[Field]bool {
	type pending struct {
		field Field
		old, new any
	}
	var fired []pending

	s.mu.Lock()
	p := s.ensure(engine)
	variantN := s.variantN[engine]
	changed := map[Field]bool{}
	for field, value := range values {
		old := fieldValue(p, field)
		clamped, ok := clampField(field, value)
		if !ok {
			continue
		}
		if writeField(p, field, clamped, variantN) {
			changed[field] = true
			fired = append(fired, pending{field, old, fieldValue(p, field)})
		}
	}
	s.mu.Unlock()

	for _, f := range fired {
		s.notify(engine, f.field, f.old, f.new)
	}
	return changed
}

// Restore sets every field of snap via BatchSet, dropping nothing — every field
// in the Params schema is applied, out-of-schema data never reaches this
// call since Params is a fixed-shape struct.
func (s *Store) Restore(engine string, snap Params) {
	s.BatchSet(engine, map[Field]any{
		Geometry: snap.Geometry, Variant: snap.Variant, GridDensity: snap.GridDensity,
		MorphFactor: snap.MorphFactor, Chaos: snap.Chaos, Speed: snap.Speed, Hue: snap.Hue,
		Intensity: snap.Intensity, Saturation: snap.Saturation, Rot4dXW: snap.Rot4dXW,
		Rot4dYW: snap.Rot4dYW, Rot4dZW: snap.Rot4dZW, Dimension: snap.Dimension,
	})
}

// Subscribe registers cb to be called after every changed write for engine.
// Pass engine == "" to observe every engine.
func (s *Store) Subscribe(engine string, cb func(engine string, field Field, old, new any)) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscription{id: id, engine: engine, cb: cb})
	return Handle(id)
}

// Unsubscribe removes a previously registered callback.
func (s *Store) Unsubscribe(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == uint64(h) {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

func (s *Store) notify(engine string, field Field, old, new any) {
	s.mu.RLock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.RUnlock()
	for _, sub := range subs {
		if sub.engine == "" || sub.engine == engine {
			sub.cb(engine, field, old, new)
		}
	}
}

// --- clamping / normalization ---

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// wrapHue folds v into [0,360).
func wrapHue(v float64) float64 {
	v = math.Mod(v, 360)
	if v < 0 {
		v += 360
	}
	return v
}

// wrapAngle folds v into (-pi, pi].
func wrapAngle(v float64) float64 {
	for v > math.Pi {
		v -= 2 * math.Pi
	}
	for v <= -math.Pi {
		v += 2 * math.Pi
	}
	return v
}

func clampAll(p *Params) {
	p.Geometry = clampInt(p.Geometry, 0, 7)
	p.GridDensity = clampF(p.GridDensity, 5, 100)
	p.MorphFactor = clampF(p.MorphFactor, 0, 2)
	p.Chaos = clampF(p.Chaos, 0, 1)
	p.Speed = clampF(p.Speed, 0.1, 3)
	p.Hue = wrapHue(p.Hue)
	p.Intensity = clampF(p.Intensity, 0, 1)
	p.Saturation = clampF(p.Saturation, 0, 1)
	p.Rot4dXW = wrapAngle(p.Rot4dXW)
	p.Rot4dYW = wrapAngle(p.Rot4dYW)
	p.Rot4dZW = wrapAngle(p.Rot4dZW)
	p.Dimension = clampF(p.Dimension, 3.0, 4.5)
}

func fieldValue(p *Params, field Field) any {
	switch field {
	case Geometry:
		return p.Geometry
	case Variant:
		return p.Variant
	case GridDensity:
		return p.GridDensity
	case MorphFactor:
		return p.MorphFactor
	case Chaos:
		return p.Chaos
	case Speed:
		return p.Speed
	case Hue:
		return p.Hue
	case Intensity:
		return p.Intensity
	case Saturation:
		return p.Saturation
	case Rot4dXW:
		return p.Rot4dXW
	case Rot4dYW:
		return p.Rot4dYW
	case Rot4dZW:
		return p.Rot4dZW
	case Dimension:
		return p.Dimension
	default:
		return nil
	}
}

// asFloat coerces numeric inputs (float64, int, float32) to float64; any
// other dynamic type (notably string) is rejected, matching the contract
// that a wrong-typed value fails with InvalidValue rather than writing.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// clampField validates and clamps value for field, returning the clamped
// representation (int for Geometry/Variant, float64 otherwise) or ok=false
// if value's dynamic type cannot be interpreted numerically.
func clampField(field Field, value any) (any, bool) {
	switch field {
	case Geometry:
		f, ok := asFloat(value)
		if !ok {
			return nil, false
		}
		return clampInt(int(math.Floor(f)), 0, 7), true
	case Variant:
		f, ok := asFloat(value)
		if !ok {
			return nil, false
		}
		return int(math.Floor(f)), true // upper bound applied by writeField (needs per-engine N)
	case GridDensity:
		f, ok := asFloat(value)
		if !ok {
			return nil, false
		}
		return clampF(f, 5, 100), true
	case MorphFactor:
		f, ok := asFloat(value)
		if !ok {
			return nil, false
		}
		return clampF(f, 0, 2), true
	case Chaos:
		f, ok := asFloat(value)
		if !ok {
			return nil, false
		}
		return clampF(f, 0, 1), true
	case Speed:
		f, ok := asFloat(value)
		if !ok {
			return nil, false
		}
		return clampF(f, 0.1, 3), true
	case Hue:
		f, ok := asFloat(value)
		if !ok {
			return nil, false
		}
		return wrapHue(f), true
	case Intensity:
		f, ok := asFloat(value)
		if !ok {
			return nil, false
		}
		return clampF(f, 0, 1), true
	case Saturation:
		f, ok := asFloat(value)
		if !ok {
			return nil, false
		}
		return clampF(f, 0, 1), true
	case Rot4dXW, Rot4dYW, Rot4dZW:
		f, ok := asFloat(value)
		if !ok {
			return nil, false
		}
		return wrapAngle(f), true
	case Dimension:
		f, ok := asFloat(value)
		if !ok {
			return nil, false
		}
		return clampF(f, 3.0, 4.5), true
	default:
		return nil, false
	}
}

// writeField stores clamped into the matching field of p, returning true
// iff the stored value actually changed. variantN snaps an out-of-range
// Variant to the nearest endpoint, per the integer-field restore contract.
func writeField(p *Params, field Field, clamped any, variantN int) bool {
	switch field {
	case Geometry:
		v := clamped.(int)
		if p.Geometry == v {
			return false
		}
		p.Geometry = v
		return true
	case Variant:
		v := clamped.(int)
		if variantN <= 0 {
			variantN = 1
		}
		v = clampInt(v, 0, variantN-1)
		if p.Variant == v {
			return false
		}
		p.Variant = v
		return true
	case GridDensity:
		v := clamped.(float64)
		if p.GridDensity == v {
			return false
		}
		p.GridDensity = v
		return true
	case MorphFactor:
		v := clamped.(float64)
		if p.MorphFactor == v {
			return false
		}
		p.MorphFactor = v
		return true
	case Chaos:
		v := clamped.(float64)
		if p.Chaos == v {
			return false
		}
		p.Chaos = v
		return true
	case Speed:
		v := clamped.(float64)
		if p.Speed == v {
			return false
		}
		p.Speed = v
		return true
	case Hue:
		v := clamped.(float64)
		if p.Hue == v {
			return false
		}
		p.Hue = v
		return true
	case Intensity:
		v := clamped.(float64)
		if p.Intensity == v {
			return false
		}
		p.Intensity = v
		return true
	case Saturation:
		v := clamped.(float64)
		if p.Saturation == v {
			return false
		}
		p.Saturation = v
		return true
	case Rot4dXW:
		v := clamped.(float64)
		if p.Rot4dXW == v {
			return false
		}
		p.Rot4dXW = v
		return true
	case Rot4dYW:
		v := clamped.(float64)
		if p.Rot4dYW == v {
			return false
		}
		p.Rot4dYW = v
		return true
	case Rot4dZW:
		v := clamped.(float64)
		if p.Rot4dZW == v {
			return false
		}
		p.Rot4dZW = v
		return true
	case Dimension:
		v := clamped.(float64)
		if p.Dimension == v {
			return false
		}
		p.Dimension = v
		return true
	default:
		return false
	}
}
