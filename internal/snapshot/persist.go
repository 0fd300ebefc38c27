package snapshot

import (
	"os"

	"gopkg.in/yaml.v3"
)

// SaveToFile writes snap to path as YAML, the same Load/Save shape
// internal/config uses for vishost.yaml, applied here to a single
// "last known-good" preset rather than the process configuration.
func SaveToFile(path string, snap Snapshot) error {
	b, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// LoadFromFile reads a previously saved preset. A missing file is reported
// as an error the caller is expected to treat as "no known-good state yet"
// rather than fatal.
func LoadFromFile(path string) (Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var s Snapshot
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Snapshot{}, err
	}
	if s.Parameters == nil {
		s.Parameters = map[string]any{}
	}
	return s, nil
}
