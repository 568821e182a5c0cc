package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWithMigrations(t *testing.T) {
	t.Run("creates every table", func(t *testing.T) {
		db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		for _, table := range []string{
			"schema_migrations",
			"async_jobs",
			"scheduled_jobs",
			"schedule_executions",
			"term_cache_entries",
			"term_cache_sets",
		} {
			var n int
			err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
			require.NoError(t, err)
			assert.Equal(t, 1, n, "table %s should exist", table)
		}
	})

	t.Run("open failure is wrapped", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		first, err := Open(dbPath, nil)
		require.NoError(t, err)
		first.Close()

		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		require.NoError(t, os.Chmod(tmpDir, 0555))
		defer os.Chmod(tmpDir, 0755)

		db, err := OpenWithMigrations(dbPath, nil)
		require.Error(t, err)
		assert.Nil(t, db)
	})
}

func TestMigrate(t *testing.T) {
	t.Run("records every version", func(t *testing.T) {
		db, err := Open(":memory:", nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))

		var versions []string
		rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
		require.NoError(t, err)
		defer rows.Close()
		for rows.Next() {
			var v string
			require.NoError(t, rows.Scan(&v))
			versions = append(versions, v)
		}
		require.NoError(t, rows.Err())
		assert.Equal(t, []string{"000", "001", "002", "003"}, versions)
	})

	t.Run("is idempotent", func(t *testing.T) {
		db, err := Open(":memory:", nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))
		require.NoError(t, Migrate(db, nil), "running migrations twice should be safe")
	})

	t.Run("pending shrinks to nothing", func(t *testing.T) {
		db, err := Open(":memory:", nil)
		require.NoError(t, err)
		defer db.Close()

		all, err := Migrations()
		require.NoError(t, err)
		require.NotEmpty(t, all)
		assert.Equal(t, "000", all[0].Version)

		pending, err := Pending(db)
		require.NoError(t, err)
		assert.Equal(t, all, pending)

		require.NoError(t, Migrate(db, nil))
		pending, err = Pending(db)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("closed database fails", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		db.Close()

		assert.Error(t, Migrate(db, nil))
	})
}
