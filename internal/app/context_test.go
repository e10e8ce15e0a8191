package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devterminal/internal/config"
)

func TestOpenSeedsRolesFromConfig(t *testing.T) {
	dir := t.TempDir()
	yml := config.GenerateDefault() + "  auditor:\n    description: \"Read-only auditors\"\n"
	require.NoError(t, os.WriteFile(config.Path(dir), []byte(yml), 0o644))

	var logs bytes.Buffer
	rt, err := Open(context.Background(), Options{Workspace: dir, LogLevel: "debug", LogOutput: &logs, WithMetrics: true})
	require.NoError(t, err)
	defer rt.Close()

	ok, err := rt.Engine.Repo.RoleExists(context.Background(), "auditor")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotNil(t, rt.Engine.Metrics)
	assert.Contains(t, logs.String(), "runtime ready")
	assert.FileExists(t, filepath.Join(dir, ".devterm", "devterm.db"))
}

func TestResolveConfigOverrideMustExist(t *testing.T) {
	_, err := ResolveConfig(t.TempDir(), filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestResolveConfigFallsBackToDefaults(t *testing.T) {
	cfg, err := ResolveConfig(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, config.OnFailureMarkFailed, cfg.Pipeline.OnFailure)
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger("loud", false, nil)
	assert.Error(t, err)

	var buf bytes.Buffer
	log, err := NewLogger("warn", false, &buf)
	require.NoError(t, err)
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
