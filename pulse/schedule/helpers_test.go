package schedule

import (
	"database/sql"
	"testing"

	testdb "github.com/teranos/breg-harvester/internal/testing"
)

// createTestDB creates an in-memory test database.
func createTestDB(t *testing.T) *sql.DB {
	return testdb.CreateTestDB(t)
}
