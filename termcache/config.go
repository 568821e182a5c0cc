package termcache

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/teranos/breg-harvester/am"
	"github.com/teranos/breg-harvester/errors"
)

// Backend names accepted in term_cache.backend
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// FromConfig opens the configured backend. db is used by the sqlite backend.
func FromConfig(cfg am.TermCacheConfig, db *sql.DB, log *zap.SugaredLogger) (*Cache, error) {
	var (
		backend Backend
		err     error
	)

	switch cfg.Backend {
	case BackendSQLite, "":
		if db == nil {
			return nil, errors.NewConfigurationError("sqlite term cache needs a database")
		}
		backend = NewSQLBackend(db)
	case BackendBadger:
		backend, err = OpenBadgerBackend(BadgerOptions{Path: cfg.BadgerPath, Logger: log})
	case BackendMemory:
		backend, err = NewMemoryBackend(cfg.MemorySize)
	default:
		return nil, errors.NewConfigurationError("unknown term cache backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if log != nil {
		log.Infow("Term cache ready", "backend", cfg.Backend, "prefix", cfg.Prefix)
	}
	return New(backend, cfg.Prefix), nil
}
