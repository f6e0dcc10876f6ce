package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsOnly(t *testing.T) {
	workdir := t.TempDir()
	cfg, meta, err := Load(workdir, WithBasePath(""), WithOverridePath(filepath.Join(workdir, "absent.yaml")))
	require.NoError(t, err)
	assert.False(t, meta.BaseFileUsed)
	assert.False(t, meta.OverrideFileUsed)
	assert.Equal(t, Default().ActiveProvider, cfg.ActiveProvider)
	assert.Equal(t, 3, cfg.Coordinator.RetryCeiling)
	assert.Equal(t, workdir, cfg.Workdir)

	active, ok := cfg.ActiveProviderConfig()
	require.True(t, ok)
	assert.Equal(t, "mock", active.Name)
}

func TestLoad_OverrideFileWinsOverDefaults(t *testing.T) {
	workdir := t.TempDir()
	overridePath := filepath.Join(workdir, ".kaix.yaml")
	require.NoError(t, os.WriteFile(overridePath, []byte(
		"active_provider: anthropic\n"+
			"providers:\n"+
			"  anthropic:\n"+
			"    name: anthropic\n"+
			"    model: claude\n"+
			"coordinator:\n"+
			"  retry_ceiling: 7\n"), 0o644))

	cfg, meta, err := Load(workdir, WithBasePath(""))
	require.NoError(t, err)
	assert.True(t, meta.OverrideFileUsed)
	assert.Equal(t, "anthropic", cfg.ActiveProvider)
	active, ok := cfg.ActiveProviderConfig()
	require.True(t, ok)
	assert.Equal(t, "claude", active.Model)
	assert.Equal(t, 7, cfg.Coordinator.RetryCeiling)
	// untouched fields still carry their default values.
	assert.Equal(t, Default().Coordinator.PlanningRetryCeiling, cfg.Coordinator.PlanningRetryCeiling)
}

func TestLoad_EnvWinsOverOverrideFile(t *testing.T) {
	workdir := t.TempDir()
	overridePath := filepath.Join(workdir, ".kaix.yaml")
	require.NoError(t, os.WriteFile(overridePath, []byte("active_provider: anthropic\n"), 0o644))

	t.Setenv("KAIX_ACTIVE_PROVIDER", "openai")

	cfg, _, err := Load(workdir, WithBasePath(""))
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.ActiveProvider)
}

func TestSave_RoundTrips(t *testing.T) {
	workdir := t.TempDir()
	path := filepath.Join(workdir, "nested", "config.yaml")

	cfg := Default()
	cfg.ActiveProvider = "local"
	cfg.Providers["local"] = ProviderConfig{Name: "local"}
	require.NoError(t, Save(path, cfg))

	loaded, _, err := Load(workdir, WithBasePath(""), WithOverridePath(path))
	require.NoError(t, err)
	assert.Equal(t, "local", loaded.ActiveProvider)
}

func TestCache_ResolveLoadsOnce(t *testing.T) {
	workdir := t.TempDir()
	cache := NewCache(workdir, WithBasePath(""), WithOverridePath(filepath.Join(workdir, "absent.yaml")))

	cfg1, _, err := cache.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Default().ActiveProvider, cfg1.ActiveProvider)

	cfg2, _, err := cache.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg1, cfg2)
}

func TestWatcher_ReloadsOnFileChange(t *testing.T) {
	workdir := t.TempDir()
	overridePath := filepath.Join(workdir, ".kaix.yaml")
	require.NoError(t, os.WriteFile(overridePath, []byte("active_provider: anthropic\n"), 0o644))

	cache := NewCache(workdir, WithBasePath(""), WithOverridePath(overridePath))
	_, _, err := cache.Resolve(context.Background())
	require.NoError(t, err)

	watcher := NewWatcher(overridePath, cache, WithWatchDebounce(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(overridePath, []byte("active_provider: openai\n"), 0o644))

	select {
	case <-watcher.Updates():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not observe the file change")
	}

	cfg, _, err := cache.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.ActiveProvider)
}

func TestWatcher_StopConcurrent(t *testing.T) {
	workdir := t.TempDir()
	overridePath := filepath.Join(workdir, ".kaix.yaml")
	require.NoError(t, os.WriteFile(overridePath, []byte("active_provider: mock\n"), 0o644))

	cache := NewCache(workdir, WithBasePath(""), WithOverridePath(overridePath))
	watcher := NewWatcher(overridePath, cache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			watcher.Stop()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	cancel()
	watcher.Stop()
}
