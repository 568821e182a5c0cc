package am

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Defaults carried over from the original deployment
const (
	DefaultServerPort      = 5000
	DefaultWorkers         = 5
	DefaultGraphURI        = "http://fundacionctic.org/breg-harvester"
	DefaultSPARQLEndpoint  = "http://virtuoso:8890/sparql"
	DefaultSPARQLUpdate    = "http://virtuoso:8890/sparql-auth"
	DefaultResultTTL       = 30 * 24 * 3600
	DefaultJobTimeout      = 1800
	DefaultSchedulerJobID  = "harvester-scheduled-job"
	DefaultIntervalSeconds = 5 * 24 * 3600
	DefaultCachePrefix     = "breg:harvester"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "harvester.db")

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.secret_key", "secret")

	v.SetDefault("pulse.workers", DefaultWorkers)
	v.SetDefault("pulse.poll_interval_ms", 1000)
	v.SetDefault("pulse.ticker_interval_seconds", 1)
	v.SetDefault("pulse.job_timeout_seconds", DefaultJobTimeout)

	v.SetDefault("harvest.graph_uri", DefaultGraphURI)
	v.SetDefault("harvest.sources", "")
	v.SetDefault("harvest.sources_file", "")
	v.SetDefault("harvest.strict", false)
	v.SetDefault("harvest.result_ttl_seconds", DefaultResultTTL)

	v.SetDefault("sparql.endpoint", DefaultSPARQLEndpoint)
	v.SetDefault("sparql.update_endpoint", DefaultSPARQLUpdate)
	v.SetDefault("sparql.user", "dba")
	v.SetDefault("sparql.password", "dba")
	v.SetDefault("sparql.batch_size", 500)

	v.SetDefault("validator.disabled", false)
	v.SetDefault("validator.kind", "breg")
	v.SetDefault("validator.url", "")
	v.SetDefault("validator.rule_sets", []string{})

	v.SetDefault("term_cache.backend", "sqlite")
	v.SetDefault("term_cache.prefix", DefaultCachePrefix)
	v.SetDefault("term_cache.badger_path", "term-cache")
	v.SetDefault("term_cache.memory_size", 10000)

	v.SetDefault("resolver.label_lang", "en")
	v.SetDefault("resolver.parse_timeout", 4*time.Second)
	v.SetDefault("resolver.fetch_timeout", 10*time.Second)
	v.SetDefault("resolver.requests_per_second", 20.0)
	v.SetDefault("resolver.burst", 5)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.job_id", DefaultSchedulerJobID)
	v.SetDefault("scheduler.interval_seconds", DefaultIntervalSeconds)
}

// BindLegacyEnvVars binds the flat variable names used by existing
// deployments. The structured HARVESTER_<SECTION>_<KEY> name stays first
// so it wins when both are set.
func BindLegacyEnvVars(v *viper.Viper) {
	v.BindEnv("server.secret_key", "HARVESTER_SERVER_SECRET_KEY", "HARVESTER_SECRET_KEY")
	v.BindEnv("server.port", "HARVESTER_SERVER_PORT", "HARVESTER_PORT")
	v.BindEnv("pulse.workers", "HARVESTER_PULSE_WORKERS", "HARVESTER_SERVER_SPAWN", "HARVESTER_SPAWN")
	v.BindEnv("pulse.job_timeout_seconds", "HARVESTER_PULSE_JOB_TIMEOUT_SECONDS", "BREG_TIMEOUT")
	v.BindEnv("harvest.graph_uri", "HARVESTER_HARVEST_GRAPH_URI", "HARVESTER_GRAPH_URI")
	v.BindEnv("harvest.sources", "HARVESTER_HARVEST_SOURCES", "HARVESTER_SOURCES")
	v.BindEnv("harvest.result_ttl_seconds", "HARVESTER_HARVEST_RESULT_TTL_SECONDS", "HARVESTER_RESULT_TTL")
	v.BindEnv("sparql.password", "HARVESTER_SPARQL_PASSWORD", "HARVESTER_SPARQL_PASS")
	v.BindEnv("scheduler.job_id", "HARVESTER_SCHEDULER_JOB_ID")
	v.BindEnv("validator.disabled", "HARVESTER_VALIDATOR_DISABLED")
	v.BindEnv("database.path", "HARVESTER_DATABASE_PATH", "HARVESTER_DB")
}

// GetServerAllowedOrigins returns the allowed CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return c.Server.AllowedOrigins
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "harvester.db"
	}
	return c.Database.Path
}

// ResultTTL returns how long finished jobs are kept
func (c *Config) ResultTTL() time.Duration {
	return time.Duration(c.Harvest.ResultTTLSeconds) * time.Second
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Server: {Port: %d}, Pulse: {Workers: %d}, SPARQL: %s, Graph: %s}",
		c.Database.Path, c.Server.Port, c.Pulse.Workers, c.SPARQL.Endpoint, c.Harvest.GraphURI)
}
