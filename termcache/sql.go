package termcache

import (
	"context"
	"database/sql"

	"github.com/teranos/breg-harvester/errors"
)

// SQLBackend keeps entries in the harvester's SQLite database
// (term_cache_entries and term_cache_sets). Close does not close the database.
type SQLBackend struct {
	db *sql.DB
}

func NewSQLBackend(db *sql.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

func (b *SQLBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx, `SELECT value FROM term_cache_entries WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to read cache entry")
	}
	return value, true, nil
}

func (b *SQLBackend) Set(ctx context.Context, key string, value []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO term_cache_entries (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return errors.Wrap(err, "failed to write cache entry")
	}
	return nil
}

func (b *SQLBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM term_cache_entries WHERE key = ?`, key); err != nil {
		return errors.Wrap(err, "failed to delete cache entry")
	}
	return nil
}

func (b *SQLBackend) SAdd(ctx context.Context, set, member string) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO term_cache_sets (set_key, member) VALUES (?, ?)`, set, member)
	if err != nil {
		return errors.Wrap(err, "failed to add set member")
	}
	return nil
}

func (b *SQLBackend) SRem(ctx context.Context, set, member string) error {
	_, err := b.db.ExecContext(ctx,
		`DELETE FROM term_cache_sets WHERE set_key = ? AND member = ?`, set, member)
	if err != nil {
		return errors.Wrap(err, "failed to remove set member")
	}
	return nil
}

func (b *SQLBackend) SIsMember(ctx context.Context, set, member string) (bool, error) {
	var exists bool
	err := b.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM term_cache_sets WHERE set_key = ? AND member = ?)`, set, member).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check set member")
	}
	return exists, nil
}

func (b *SQLBackend) Close() error { return nil }
