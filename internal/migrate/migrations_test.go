package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devterminal/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()

	require.NoError(t, MigrateContext(ctx, conn))
	require.NoError(t, MigrateContext(ctx, conn))

	migrations, err := loadMigrations()
	require.NoError(t, err)
	v, err := Version(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, v)

	var roles, patterns int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM roles`).Scan(&roles))
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM civic_memory_patterns`).Scan(&patterns))
	assert.Equal(t, 4, roles)
	assert.Equal(t, 5, patterns)
}
