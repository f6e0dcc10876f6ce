package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ReOpsIL/KAIX/internal/config"
	"github.com/ReOpsIL/KAIX/internal/contextstore"
	"github.com/ReOpsIL/KAIX/internal/coordinator"
	"github.com/ReOpsIL/KAIX/internal/executor"
	"github.com/ReOpsIL/KAIX/internal/logging"
	"github.com/ReOpsIL/KAIX/internal/observability"
	"github.com/ReOpsIL/KAIX/internal/presenter"
	"github.com/ReOpsIL/KAIX/internal/provider"
)

// Container wires every KAIX package into one running Coordinator, the
// way cklxx-elephant.ai/cmd/alex/container.go's buildContainer wires its
// DI container from a loaded RuntimeConfig. KAIX has no DI framework of
// its own (the teacher's internal/di is a hand-rolled constructor
// registry with no third-party dependency to ground here), so this
// stays a flat constructor function in the teacher's own idiom for
// smaller binaries (cmd/eval-server, cmd/perf) that skip internal/di
// entirely and wire dependencies inline in main.
type Container struct {
	Config      config.Config
	Meta        config.Metadata
	Logger      logging.Logger
	Metrics     *observability.Metrics
	Tracer      *observability.Tracer
	Store       *contextstore.Store
	Coordinator *coordinator.Coordinator
	Presenter   presenter.Presenter
}

// buildContainer loads configuration for workdir and constructs every
// dependency the coordinator needs. Provider construction is limited to
// provider.Mock wrapped in the retry policy: SPEC_FULL.md's Non-goals
// explicitly exclude "concrete external wire formats", so there is no
// real HTTP-backed model client for this to select between — cfg.Providers
// is metadata for a future adapter, not a live switch yet.
func buildContainer(workdir, logLevelOverride string) (*Container, error) {
	absWorkdir, err := filepath.Abs(workdir)
	if err != nil {
		return nil, fmt.Errorf("resolve workdir: %w", err)
	}

	cfg, meta, err := config.Load(absWorkdir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevelOverride != "" {
		cfg.LogLevel = logLevelOverride
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logging.SetLevel(level)
	logger := logging.NewComponentLogger("kaix")

	metrics := observability.MustNewMetrics(prometheus.NewRegistry())
	tracer, err := observability.NewTracer(observability.TracingConfig{
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
		ServiceName:  "kaix",
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	discoveryCfg := contextstore.DefaultDiscoveryConfig()
	discoveryCfg.MaxDepth = cfg.ContextStore.MaxDepth
	discoveryCfg.MaxFileSizeBytes = cfg.ContextStore.MaxFileSizeBytes
	if len(cfg.ContextStore.ExcludePatterns) > 0 {
		discoveryCfg.ExcludePatterns = cfg.ContextStore.ExcludePatterns
	}

	memCfg := contextstore.DefaultMemoryConfig()
	memCfg.MaxTotalBytes = cfg.ContextStore.MaxTotalBytes
	memCfg.SummaryTTL = cfg.ContextStore.SummaryTTL

	mock := provider.NewMock()
	prov := provider.NewRetrying(mock, provider.DefaultRetryPolicy(), metrics)

	store, err := contextstore.NewStore(absWorkdir, discoveryCfg, memCfg, prov)
	if err != nil {
		return nil, fmt.Errorf("init context store: %w", err)
	}

	sandbox := executor.NewSandbox(absWorkdir)
	exec := executor.New(sandbox, prov)

	coordCfg := coordinator.DefaultConfig()
	coordCfg.TaskTimeout = cfg.Coordinator.TaskTimeout
	coordCfg.ProviderTimeout = cfg.Coordinator.ProviderTimeout
	coordCfg.RetryCeiling = cfg.Coordinator.RetryCeiling
	coordCfg.RefinementRetryCeiling = cfg.Coordinator.RefinementRetryCeiling
	coordCfg.PlanningRetryCeiling = cfg.Coordinator.PlanningRetryCeiling
	coordCfg.MaxPlanSize = cfg.Coordinator.MaxPlanSize
	coordCfg.CycleInterval = cfg.Coordinator.CycleInterval
	coordCfg.HealthCheckInterval = cfg.Coordinator.HealthCheckInterval

	coord := coordinator.New(absWorkdir, exec, prov, store, metrics, tracer, coordCfg)

	return &Container{
		Config:      cfg,
		Meta:        meta,
		Logger:      logger,
		Metrics:     metrics,
		Tracer:      tracer,
		Store:       store,
		Coordinator: coord,
		Presenter:   presenter.NewTerminal(os.Stdout),
	}, nil
}

// Cleanup releases resources acquired by buildContainer. Grounded on
// cklxx-elephant.ai/cmd/alex/main.go's deferred container.Cleanup call.
func (c *Container) Cleanup() error {
	if c.Tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return c.Tracer.Shutdown(ctx)
	}
	return nil
}
