package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/breg-harvester/errors"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// Migration is one embedded schema file. The numeric prefix of the file
// name is its version, recorded in schema_migrations once applied.
type Migration struct {
	Version string
	File    string
}

// Migrations lists the embedded migrations in the order they apply.
func Migrations() ([]Migration, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}
	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		out = append(out, Migration{
			Version: strings.SplitN(entry.Name(), "_", 2)[0],
			File:    entry.Name(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out, nil
}

// Pending returns the migrations not yet recorded in db. On a fresh
// database that is all of them.
func Pending(db *sql.DB) ([]Migration, error) {
	all, err := Migrations()
	if err != nil {
		return nil, err
	}
	done, err := appliedVersions(db)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, m := range all {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

func appliedVersions(db *sql.DB) (map[string]bool, error) {
	var exists int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'").Scan(&exists)
	if err != nil {
		return nil, errors.Wrap(err, "inspect schema")
	}
	done := make(map[string]bool)
	if exists == 0 {
		return done, nil
	}

	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, errors.Wrap(err, "read schema_migrations")
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan schema_migrations")
		}
		done[v] = true
	}
	return done, errors.Wrap(rows.Err(), "read schema_migrations")
}

// Migrate applies the pending migrations, each in its own transaction.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) error {
	pending, err := Pending(db)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if logger != nil {
			logger.Infow("Applying migration", "migration", m.File, "version", m.Version)
		}
		if err := apply(db, m); err != nil {
			return err
		}
	}
	if logger != nil && len(pending) > 0 {
		logger.Infow("Migrations complete", "applied", len(pending))
	}
	return nil
}

func apply(db *sql.DB, m Migration) error {
	script, err := migrations.ReadFile(path.Join(migrationsDir, m.File))
	if err != nil {
		return errors.Wrapf(err, "read %s", m.File)
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", m.File)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(script)); err != nil {
		return errors.Wrapf(err, "execute %s", m.File)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		return errors.Wrapf(err, "record %s", m.File)
	}
	return errors.Wrapf(tx.Commit(), "commit %s", m.File)
}
