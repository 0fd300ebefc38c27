// Package snapshot implements the engine parameter-snapshot JSON schema:
// tolerant of unknown fields and legacy aliases, falling back
// to field defaults on an invalid value rather than rejecting the whole
// document. Adapted from a plain-struct config load/save pair to JSON,
// reusing the store's own clamp/reject rules so the fallback behavior is
// defined in exactly one place (internal/params). The document carries no
// schema-version field.
package snapshot

import (
	"encoding/json"

	"github.com/example/vishost/internal/params"
)

// legacyAliases maps old field names to their current schema name. A
// document carrying both the alias and the canonical name prefers the
// canonical one.
var legacyAliases = map[string]string{
	"density": "gridDensity",
	"morph": "morphFactor",
	"geom": "geometry",
	"rotXW": "rot4dXW",
}

// Snapshot is the wire shape of one engine's saved parameter vector. It
// doubles as the on-disk "last known-good" preset shape (see persist.go),
// hence both json and yaml struct tags.
type Snapshot struct {
	System string `json:"system" yaml:"system"`
	Parameters map[string]any `json:"parameters" yaml:"parameters"`
	GeometryName string `json:"geometryName,omitempty" yaml:"geometryName,omitempty"`
	Created string `json:"created,omitempty" yaml:"created,omitempty"`
}

// Parse decodes raw JSON into a Snapshot. Unknown top-level fields are
// ignored by encoding/json's default behavior; no error is returned for
// them.
func Parse(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, err
	}
	if s.Parameters == nil {
		s.Parameters = map[string]any{}
	}
	return s, nil
}

// ToParams resolves the snapshot's parameters against defaults: legacy
// aliases are canonicalized, each recognized field is written through the
// Parameter Store's own Set (so numeric-but-out-of-range values clamp and
// wrong-typed values are rejected), and anything left unset keeps its
// value from defaults. This is the one implementation of "invalid values
// fall back to field defaults".
func (s Snapshot) ToParams(defaults params.Params, variantCount int) params.Params {
	store := params.NewStore()
	store.Seed("__snapshot__", defaults, variantCount)

	norm := canonicalize(s.Parameters)
	for _, f := range params.AllFields {
		raw, ok := norm[string(f)]
		if !ok {
			continue
		}
		store.Set("__snapshot__", f, raw)
	}
	return store.Snapshot("__snapshot__")
}

// canonicalize rewrites legacy alias keys to their current name without
// mutating the input map.
func canonicalize(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	for alias, canon := range legacyAliases {
		v, hasAlias := out[alias]
		if !hasAlias {
			continue
		}
		if _, hasCanon := out[canon]; !hasCanon {
			out[canon] = v
		}
		delete(out, alias)
	}
	return out
}

// FromParams builds the canonical wire Snapshot for one engine's current
// parameters, variant, geometry label, and creation timestamp (caller
// supplies the timestamp; this package never calls time.Now so it stays
// deterministic for tests).
func FromParams(system string, p params.Params, geometryName, created string) Snapshot {
	return Snapshot{
		System: system,
		Parameters: map[string]any{
			"geometry": p.Geometry,
			"gridDensity": p.GridDensity,
			"morphFactor": p.MorphFactor,
			"chaos": p.Chaos,
			"speed": p.Speed,
			"hue": p.Hue,
			"intensity": p.Intensity,
			"saturation": p.Saturation,
			"rot4dXW": p.Rot4dXW,
			"rot4dYW": p.Rot4dYW,
			"rot4dZW": p.Rot4dZW,
			"dimension": p.Dimension,
			"variant": p.Variant,
		},
		GeometryName: geometryName,
		Created: created,
	}
}

// Marshal renders s as JSON.
func (s Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}
