// Package config loads and watches KAIX's persisted configuration:
// workdir, provider selection, logging, and the tunable ceilings the
// coordinator, context store, and tracer expose. Precedence is
// environment variables over an optional override file over the
// built-in defaults, layered with github.com/spf13/viper the way
// cklxx-elephant.ai's internal/config layers RuntimeConfig.
package config

import "time"

// ProviderConfig names the model provider KAIX talks to and where its
// credential lives. The credential itself is never stored here; only
// the name of the environment variable internal/credential should read
// (spec.md's "credentials are never logged or included in status
// snapshots" carries through to config too: config is not a secret
// store).
type ProviderConfig struct {
	Name          string `mapstructure:"name" yaml:"name"`
	Model         string `mapstructure:"model" yaml:"model"`
	BaseURL       string `mapstructure:"base_url" yaml:"base_url"`
	APIKeyEnvVar  string `mapstructure:"api_key_env_var" yaml:"api_key_env_var"`
}

// CoordinatorConfig mirrors the subset of coordinator.Config that is
// worth exposing to an operator; internal ceilings not meaningful
// outside a single process (queue buffer sizes) are left at the
// coordinator's own defaults.
type CoordinatorConfig struct {
	TaskTimeout            time.Duration `mapstructure:"task_timeout" yaml:"task_timeout"`
	ProviderTimeout        time.Duration `mapstructure:"provider_timeout" yaml:"provider_timeout"`
	RetryCeiling           int           `mapstructure:"retry_ceiling" yaml:"retry_ceiling"`
	RefinementRetryCeiling int           `mapstructure:"refinement_retry_ceiling" yaml:"refinement_retry_ceiling"`
	PlanningRetryCeiling   int           `mapstructure:"planning_retry_ceiling" yaml:"planning_retry_ceiling"`
	MaxPlanSize            int           `mapstructure:"max_plan_size" yaml:"max_plan_size"`
	CycleInterval          time.Duration `mapstructure:"cycle_interval" yaml:"cycle_interval"`
	HealthCheckInterval    time.Duration `mapstructure:"health_check_interval" yaml:"health_check_interval"`
}

// ContextStoreConfig mirrors the subset of contextstore.DiscoveryConfig
// and contextstore.MemoryConfig an operator plausibly wants to tune per
// project without recompiling.
type ContextStoreConfig struct {
	MaxDepth          int      `mapstructure:"max_depth" yaml:"max_depth"`
	MaxFileSizeBytes  int64    `mapstructure:"max_file_size_bytes" yaml:"max_file_size_bytes"`
	ExcludePatterns   []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`
	MaxTotalBytes     int64    `mapstructure:"max_total_bytes" yaml:"max_total_bytes"`
	SummaryTTL        time.Duration `mapstructure:"summary_ttl" yaml:"summary_ttl"`
}

// TracingConfig mirrors observability.TracingConfig's fields that are
// worth exposing outside compiled-in defaults.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// Config is KAIX's full persisted configuration. Every field has a
// defaulted value applied before file and environment layers are read
// (see Load), so a zero-value Config is never handed to the rest of
// the application.
type Config struct {
	Workdir  string `mapstructure:"workdir" yaml:"workdir"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// Providers holds every configured provider profile by name; exactly
	// the shape `kaix provider list|add|remove|set` manages.
	// ActiveProvider names the entry the coordinator is built against.
	Providers      map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	ActiveProvider string                    `mapstructure:"active_provider" yaml:"active_provider"`

	Coordinator  CoordinatorConfig  `mapstructure:"coordinator" yaml:"coordinator"`
	ContextStore ContextStoreConfig `mapstructure:"context_store" yaml:"context_store"`
	Tracing      TracingConfig      `mapstructure:"tracing" yaml:"tracing"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
}

// ActiveProviderConfig returns the ProviderConfig named by
// ActiveProvider, or the zero value and false if it isn't configured.
func (c Config) ActiveProviderConfig() (ProviderConfig, bool) {
	p, ok := c.Providers[c.ActiveProvider]
	return p, ok
}

// Default returns KAIX's built-in configuration, before any file or
// environment layer is applied. Values are grounded on
// coordinator.DefaultConfig, contextstore.DefaultDiscoveryConfig, and
// contextstore.DefaultMemoryConfig so a fresh install behaves
// identically to constructing those types directly.
func Default() Config {
	return Config{
		Workdir:  ".",
		LogLevel: "info",
		Providers: map[string]ProviderConfig{
			"mock": {
				Name:         "mock",
				Model:        "mock-large",
				APIKeyEnvVar: "KAIX_API_KEY",
			},
		},
		ActiveProvider: "mock",
		Coordinator: CoordinatorConfig{
			TaskTimeout:            300 * time.Second,
			ProviderTimeout:        30 * time.Second,
			RetryCeiling:           3,
			RefinementRetryCeiling: 2,
			PlanningRetryCeiling:   2,
			MaxPlanSize:            100,
			CycleInterval:          100 * time.Millisecond,
			HealthCheckInterval:    30 * time.Second,
		},
		ContextStore: ContextStoreConfig{
			MaxDepth:         64,
			MaxFileSizeBytes: 512 * 1024,
			MaxTotalBytes:    100 << 20,
			SummaryTTL:       24 * time.Hour,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			SampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
	}
}
