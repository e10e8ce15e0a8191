package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesStateDir(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()

	assert.DirExists(t, StateDir(dir))
	assert.Equal(t, filepath.Join(dir, ".devterm", "devterm.db"), Path(dir))

	var fk int
	require.NoError(t, conn.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
	var mode string
	require.NoError(t, conn.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestOpenExplicitFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "custom.db")
	conn, err := Open(Config{File: file})
	require.NoError(t, err)
	defer conn.Close()
	assert.FileExists(t, file)
}
