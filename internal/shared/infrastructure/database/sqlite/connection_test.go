package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/memberly/internal/shared/infrastructure/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConnection(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "billing.db")

	conn, err := database.NewConnection(ctx, database.Config{URL: "sqlite://" + path})
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, database.DriverSQLite, conn.Driver())
	require.NoError(t, conn.Ping(ctx))

	db := conn.(*Connection).DB()
	var mode string
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
	assert.FileExists(t, path)
}

func TestConnection_SingleWriter(t *testing.T) {
	ctx := context.Background()
	conn, err := NewConnection(ctx, database.Config{SQLitePath: filepath.Join(t.TempDir(), "billing.db")})
	require.NoError(t, err)
	defer conn.Close()

	db := conn.(*Connection).DB()
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}
