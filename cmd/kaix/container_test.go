package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildContainer(t *testing.T) {
	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)
	workdir := t.TempDir()

	container, err := buildContainer(workdir, "")
	require.NoError(t, err)
	require.NotNil(t, container.Coordinator)
	require.NotNil(t, container.Presenter)
	require.Equal(t, "mock", container.Config.ActiveProvider)

	t.Cleanup(func() {
		require.NoError(t, container.Cleanup())
	})
}

func TestBuildContainer_LogLevelOverride(t *testing.T) {
	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)
	workdir := t.TempDir()

	container, err := buildContainer(workdir, "debug")
	require.NoError(t, err)
	require.Equal(t, "debug", container.Config.LogLevel)

	t.Cleanup(func() {
		require.NoError(t, container.Cleanup())
	})
}
