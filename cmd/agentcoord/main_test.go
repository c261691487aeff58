package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/agentcoord/internal/lifecycle"
)

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	// The default config name missing is not an error; read-only commands
	// should work without a config file.
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(cwd)

	cfg, err := loadConfig("agentcoord.yaml")
	require.NoError(t, err)
	require.Equal(t, "./state", cfg.StateDir)
}

func TestLoadConfigExplicitMissingFileFails(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "custom.yaml"))
	require.Error(t, err)
}

func TestBuildManagerUsesDefaultRules(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(cwd)

	cfg, err := loadConfig("agentcoord.yaml")
	require.NoError(t, err)
	cfg.StateDir = t.TempDir()

	m, err := buildManager(cfg)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StateCollecting, m.Rules().Initial())
}

func TestJoinStates(t *testing.T) {
	require.Equal(t, "collecting, clarifying",
		joinStates([]lifecycle.State{lifecycle.StateCollecting, lifecycle.StateClarifying}))
	require.Empty(t, joinStates(nil))
}
