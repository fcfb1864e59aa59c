package database

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "test.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrator_RunEmbedded(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, NewMigrator(db, zap.NewNop()).Run(ctx))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 2, count)

	t.Run("second run is a no-op", func(t *testing.T) {
		require.NoError(t, NewMigrator(db, zap.NewNop()).Run(ctx))
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
		assert.Equal(t, 2, count)
	})

	t.Run("users and sessions tables exist", func(t *testing.T) {
		for _, table := range []string{"users", "sessions"} {
			var name string
			err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
			require.NoError(t, err)
			assert.Equal(t, table, name)
		}
	})
}

func TestMigrator_OrdersByVersion(t *testing.T) {
	db := newTestDB(t)
	source := fstest.MapFS{
		"002_add_column.sql": {Data: []byte("ALTER TABLE things ADD COLUMN label TEXT;")},
		"001_create.sql":     {Data: []byte("CREATE TABLE things (id INTEGER PRIMARY KEY);")},
		"README.md":          {Data: []byte("ignored")},
	}

	require.NoError(t, NewMigratorFS(db, source, zap.NewNop()).Run(context.Background()))

	_, err := db.Exec("INSERT INTO things (id, label) VALUES (1, 'ok')")
	assert.NoError(t, err)
}

func TestMigrator_FailedMigrationRollsBack(t *testing.T) {
	db := newTestDB(t)
	source := fstest.MapFS{
		"001_broken.sql": {Data: []byte("CREATE TABLE oops (")},
	}

	err := NewMigratorFS(db, source, zap.NewNop()).Run(context.Background())
	require.Error(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Zero(t, count)
}
