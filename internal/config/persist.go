package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Save writes cfg to path as YAML, creating parent directories as
// needed. Grounded on cklxx-elephant.ai/internal/config/save.go's
// SaveFollowPreferences: same MkdirAll-then-WriteFile(0o600) shape,
// generalized from a merge-into-existing-map write to a whole-Config
// write since `kaix init`/`kaix provider set` always hold the complete
// merged Config in memory already (via Load) rather than a raw map.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: ensure directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// DefaultOverridePath returns the project-local override file Load
// reads by default for workdir.
func DefaultOverridePath(workdir string) string {
	return filepath.Join(workdir, ".kaix.yaml")
}
