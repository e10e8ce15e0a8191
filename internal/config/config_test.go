package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, OnFailureMarkFailed, cfg.Pipeline.OnFailure)
	assert.Equal(t, "generated_feature", cfg.Schema.DefaultEntity)
	assert.Equal(t, []string{"public"}, cfg.Pipeline.DefaultTargetUsers)
	assert.Len(t, cfg.Roles, 4)
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("pipeline:\n  on_failure: leave_building\nstatus:\n  recent_limit: 25\n"))
	require.NoError(t, err)
	assert.Equal(t, OnFailureLeaveBuilding, cfg.Pipeline.OnFailure)
	assert.Equal(t, 25, cfg.Status.RecentLimit)
	assert.Equal(t, "plugin", cfg.Pipeline.DefaultRequestType)
}

func TestFromYAMLRejectsUnknownFailurePolicy(t *testing.T) {
	_, err := FromYAML([]byte("pipeline:\n  on_failure: retry\n"))
	require.Error(t, err)
}

func TestFromYAMLRejectsUnknownDefaultRole(t *testing.T) {
	_, err := FromYAML([]byte("policies:\n  default_role: mayor\n"))
	require.Error(t, err)
}

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "devterm.yml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadReadsFile(t *testing.T) {
	path := Path(t.TempDir())
	require.NoError(t, os.WriteFile(path, []byte("schema:\n  schema_name: civic\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "civic", cfg.Schema.SchemaName)
}
