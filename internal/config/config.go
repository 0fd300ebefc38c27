// Package config loads and saves vishost.yaml: plain yaml.v3 struct tags,
// no viper/env layering.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// EngineDefaults is the per-engine hue/seed baseline: config-supplied
// constants rather than a hardcoded table, so an operator can retune them
// without a rebuild.
type EngineDefaults struct {
	Hue float64 `yaml:"hue"`
	Intensity float64 `yaml:"intensity"`
	Saturation float64 `yaml:"saturation"`
	GridDensity float64 `yaml:"grid_density"`
	MorphFactor float64 `yaml:"morph_factor"`
}

// AudioCfg controls the device audio input the Audio Analyzer attaches
// to once the user grants permission.
type AudioCfg struct {
	Enabled bool `yaml:"enabled"`
	SampleRate float64 `yaml:"sample_rate"`
}

type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	MaxLiveContexts int `yaml:"max_live_contexts"`
	DestroyOnSwitch bool `yaml:"destroy_on_switch"`

	DefaultEngine string `yaml:"default_engine"`
	FallbackEngine string `yaml:"fallback_engine"`

	// StatePath is where the host persists its last known-good preset (the
	// active engine's Params snapshot) so a failed recovery switch has
	// something concrete to fall back to. Empty disables persistence.
	StatePath string `yaml:"state_path"`

	EngineDefaults map[string]EngineDefaults `yaml:"engine_defaults"`

	Audio AudioCfg `yaml:"audio"`
}

// Default returns the baseline configuration used when no vishost.yaml is
// present, with the per-engine hue defaults set to
// 280/Quantum, 200/Faceted, 320/Holographic, 260/Polychora.
func Default() *Config {
	return &Config{
		HTTPAddr: ":8787",
		MaxLiveContexts: 5,
		DestroyOnSwitch: true,
		DefaultEngine: "faceted",
		FallbackEngine: "faceted",
		StatePath: "vishost_state.yaml",
		EngineDefaults: map[string]EngineDefaults{
			"faceted": {Hue: 200, Intensity: 0.7, Saturation: 0.9, GridDensity: 20, MorphFactor: 1.0},
			"quantum": {Hue: 280, Intensity: 0.7, Saturation: 0.9, GridDensity: 20, MorphFactor: 1.0},
			"holographic": {Hue: 320, Intensity: 0.7, Saturation: 0.9, GridDensity: 20, MorphFactor: 1.0},
			"polychora": {Hue: 260, Intensity: 0.7, Saturation: 0.9, GridDensity: 20, MorphFactor: 1.0},
		},
		Audio: AudioCfg{Enabled: true, SampleRate: 44100},
	}
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}
