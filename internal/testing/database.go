// Package testing holds shared test helpers.
package testing

import (
	"database/sql"
	"testing"

	"github.com/teranos/breg-harvester/db"
)

// CreateTestDB creates an in-memory SQLite database with all migrations applied.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	if err := db.Migrate(conn, nil); err != nil {
		conn.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return conn
}
