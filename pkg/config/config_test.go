package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, MemoryModeHybrid, cfg.Memory.Mode)
}

func TestValidateRejectsUnknownEnum(t *testing.T) {
	cfg := Default()
	cfg.Memory.Mode = "bogus"
	require.Error(t, cfg.Validate())
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CLAUDE_MEMORY_PROJECT_ID", "acme")
	cfg := Default()
	ApplyEnvOverrides(cfg)
	require.Equal(t, "acme", cfg.ProjectID)
}
