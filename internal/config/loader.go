package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Metadata records where a Load call found configuration, for
// diagnostics (`kaix status` prints it) without ever touching field
// values themselves.
type Metadata struct {
	BaseFile          string
	BaseFileUsed      bool
	OverrideFile      string
	OverrideFileUsed  bool
	LoadedAt          time.Time
}

type loadOptions struct {
	basePath     string
	overridePath string
}

// Option customizes Load. The zero value uses $HOME/.kaix/config.yaml as
// the base file and <workdir>/.kaix.yaml as the override file.
type Option func(*loadOptions)

// WithBasePath overrides the user-wide base config file path.
func WithBasePath(path string) Option {
	return func(o *loadOptions) { o.basePath = path }
}

// WithOverridePath overrides the project-local override config file path.
func WithOverridePath(path string) Option {
	return func(o *loadOptions) { o.overridePath = path }
}

// Load builds a Config by layering, from lowest to highest precedence:
// compiled-in defaults, the user-wide base file, the project-local
// override file, then KAIX_-prefixed environment variables. This is
// the "env > override file > defaults" ordering, with the base file
// folded into the defaults tier (both sit below the override file).
//
// Grounded on cklxx-elephant.ai/internal/config/load.go's layered
// Load(opts ...Option), realized with github.com/spf13/viper's merge
// semantics instead of the teacher's hand-rolled applyFile/applyEnv
// passes: each MergeConfig call replaces only the keys it sets, and
// viper's AutomaticEnv sits above every merged config layer by
// construction, which is exactly the precedence this function needs.
func Load(workdir string, opts ...Option) (Config, Metadata, error) {
	o := loadOptions{
		basePath:     defaultBasePath(),
		overridePath: filepath.Join(workdir, ".kaix.yaml"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	defBytes, err := yaml.Marshal(Default())
	if err != nil {
		return Config{}, Metadata{}, fmt.Errorf("config: marshal defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defBytes)); err != nil {
		return Config{}, Metadata{}, fmt.Errorf("config: load defaults: %w", err)
	}

	meta := Metadata{BaseFile: o.basePath, OverrideFile: o.overridePath}

	if o.basePath != "" {
		used, err := mergeFile(v, o.basePath)
		if err != nil {
			return Config{}, Metadata{}, fmt.Errorf("config: base file %s: %w", o.basePath, err)
		}
		meta.BaseFileUsed = used
	}

	if o.overridePath != "" {
		used, err := mergeFile(v, o.overridePath)
		if err != nil {
			return Config{}, Metadata{}, fmt.Errorf("config: override file %s: %w", o.overridePath, err)
		}
		meta.OverrideFileUsed = used
	}

	v.SetEnvPrefix("KAIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, Metadata{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.Workdir == "." || cfg.Workdir == "" {
		cfg.Workdir = workdir
	}

	meta.LoadedAt = time.Now()
	return cfg, meta, nil
}

// mergeFile merges path into v if it exists, reporting whether it did.
// A missing file is not an error: the base and override files are both
// optional layers.
func mergeFile(v *viper.Viper, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return false, err
	}
	return true, nil
}

func defaultBasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".kaix", "config.yaml")
}
