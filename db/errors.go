package db

import (
	"database/sql"
	"strings"

	"github.com/teranos/breg-harvester/errors"
)

// IsDatabaseClosed reports whether err comes from using a closed *sql.DB,
// as happens to workers that are still draining when serve shuts down.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) {
		return true
	}
	// database/sql reports a closed pool with a plain error
	return strings.Contains(err.Error(), "sql: database is closed")
}
