// Package commands implements the harvester CLI.
package commands

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/breg-harvester/am"
	"github.com/teranos/breg-harvester/browser"
	"github.com/teranos/breg-harvester/db"
	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/internal/httpclient"
	"github.com/teranos/breg-harvester/logger"
	"github.com/teranos/breg-harvester/metrics"
	"github.com/teranos/breg-harvester/rdf"
	"github.com/teranos/breg-harvester/rdf/sniff"
	"github.com/teranos/breg-harvester/resolver"
	"github.com/teranos/breg-harvester/sparql"
)

// sourceFetchTimeout bounds one source download, retries included
const sourceFetchTimeout = 5 * time.Minute

// loadConfig loads and validates the configuration.
func loadConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openDatabase opens and migrates the database named by the configuration.
func openDatabase(cfg *am.Config) (*sql.DB, error) {
	path := cfg.GetDatabasePath()
	database, err := db.OpenWithMigrations(path, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}
	return database, nil
}

// newSourceFetcher downloads configured sources. Sources are operator
// supplied, so private addresses are allowed.
func newSourceFetcher(log *zap.SugaredLogger) *sniff.Parser {
	parser := sniff.New(httpclient.New(httpclient.DefaultOptions(sourceFetchTimeout)), log)
	parser.FetchTimeout = sourceFetchTimeout
	parser.OnAttempt = func(format rdf.Format, err error) {
		metrics.RecordParseAttempt(string(format), err)
	}
	return parser
}

// browserFactory builds catalog browsers that share one label resolver.
func browserFactory(res *resolver.Resolver, log *zap.SugaredLogger) func(*am.Config) (*browser.Browser, error) {
	return func(cfg *am.Config) (*browser.Browser, error) {
		store, err := sparql.FromConfig(cfg.SPARQL, log)
		if err != nil {
			return nil, err
		}
		return browser.New(store, res, cfg.Harvest.GraphURI, log), nil
	}
}
