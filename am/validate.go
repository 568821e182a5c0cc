package am

import (
	"net/url"

	"github.com/teranos/breg-harvester/errors"
)

// Validate checks that the configuration is usable. Every failure is a
// configuration error.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.NewConfigurationError("server.port must be in 1..65535, got %d", c.Server.Port)
	}

	// Pulse workers: 0 = no background workers, negative = invalid
	if c.Pulse.Workers < 0 {
		return errors.NewConfigurationError("pulse.workers must be >= 0, got %d", c.Pulse.Workers)
	}
	if c.Pulse.TickerIntervalSeconds < 0 {
		return errors.NewConfigurationError("pulse.ticker_interval_seconds must be >= 0, got %d", c.Pulse.TickerIntervalSeconds)
	}

	if err := requireURL("sparql.endpoint", c.SPARQL.Endpoint); err != nil {
		return err
	}
	if err := requireURL("sparql.update_endpoint", c.SPARQL.UpdateEndpoint); err != nil {
		return err
	}
	if c.SPARQL.User != "" && c.SPARQL.Password == "" {
		return errors.NewConfigurationError("sparql.password is required when sparql.user is set")
	}
	if c.Harvest.GraphURI == "" {
		return errors.NewConfigurationError("harvest.graph_uri cannot be empty")
	}
	if c.Harvest.ResultTTLSeconds < 0 {
		return errors.NewConfigurationError("harvest.result_ttl_seconds must be >= 0, got %d", c.Harvest.ResultTTLSeconds)
	}

	switch c.Validator.Kind {
	case "", "breg", "generic":
	default:
		return errors.NewConfigurationError("validator.kind must be breg or generic, got %q", c.Validator.Kind)
	}

	switch c.TermCache.Backend {
	case "sqlite", "memory":
	case "badger":
		if c.TermCache.BadgerPath == "" {
			return errors.NewConfigurationError("term_cache.badger_path cannot be empty for the badger backend")
		}
	default:
		return errors.NewConfigurationError("term_cache.backend must be sqlite, badger or memory, got %q", c.TermCache.Backend)
	}

	if c.Resolver.ParseTimeout <= 0 || c.Resolver.FetchTimeout <= 0 {
		return errors.NewConfigurationError("resolver timeouts must be > 0")
	}
	if c.Resolver.RequestsPerSecond < 0 {
		return errors.NewConfigurationError("resolver.requests_per_second must be >= 0, got %f", c.Resolver.RequestsPerSecond)
	}

	if c.Scheduler.Enabled {
		if c.Scheduler.JobID == "" {
			return errors.NewConfigurationError("scheduler.job_id cannot be empty when the scheduler is enabled")
		}
		if c.Scheduler.IntervalSeconds <= 0 {
			return errors.NewConfigurationError("scheduler.interval_seconds must be > 0, got %d", c.Scheduler.IntervalSeconds)
		}
	}

	if _, err := c.SourceSpecs(); err != nil {
		return err
	}

	return nil
}

func requireURL(key, raw string) error {
	if raw == "" {
		return errors.NewConfigurationError("%s cannot be empty", key)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.NewConfigurationError("%s is not an absolute URL: %q", key, raw)
	}
	return nil
}
