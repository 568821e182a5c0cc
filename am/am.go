// Package am holds the harvester configuration.
//
// Values resolve in this order (highest first): environment variables
// (HARVESTER_* plus the legacy flat names of the original deployment),
// a harvester.toml config file, then defaults.
package am

import "time"

// Config represents the harvester configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" toml:"database"`
	Server    ServerConfig    `mapstructure:"server" toml:"server"`
	Pulse     PulseConfig     `mapstructure:"pulse" toml:"pulse"`
	Harvest   HarvestConfig   `mapstructure:"harvest" toml:"harvest"`
	SPARQL    SPARQLConfig    `mapstructure:"sparql" toml:"sparql"`
	Validator ValidatorConfig `mapstructure:"validator" toml:"validator"`
	TermCache TermCacheConfig `mapstructure:"term_cache" toml:"term_cache"`
	Resolver  ResolverConfig  `mapstructure:"resolver" toml:"resolver"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" toml:"scheduler"`
}

// DatabaseConfig configures the SQLite database holding jobs, schedules and the term cache
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Port           int      `mapstructure:"port" toml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins"`
	SecretKey      string   `mapstructure:"secret_key" toml:"secret_key"`
}

// PulseConfig configures the job runner
type PulseConfig struct {
	Workers               int `mapstructure:"workers" toml:"workers"`                                 // Concurrent harvest workers (HARVESTER_SERVER_SPAWN)
	PollIntervalMS        int `mapstructure:"poll_interval_ms" toml:"poll_interval_ms"`               // How often idle workers look for queued jobs
	TickerIntervalSeconds int `mapstructure:"ticker_interval_seconds" toml:"ticker_interval_seconds"` // How often the scheduler checks for due jobs
	JobTimeoutSeconds     int `mapstructure:"job_timeout_seconds" toml:"job_timeout_seconds"`         // Hard limit for one harvest (BREG_TIMEOUT)
}

// HarvestConfig configures what gets harvested and where it goes
type HarvestConfig struct {
	GraphURI         string      `mapstructure:"graph_uri" toml:"graph_uri"`
	Sources          interface{} `mapstructure:"sources" toml:"sources"` // JSON string [[uri, type], ...] or a TOML array of pairs
	SourcesFile      string      `mapstructure:"sources_file" toml:"sources_file"`
	Strict           bool        `mapstructure:"strict" toml:"strict"`
	ResultTTLSeconds int         `mapstructure:"result_ttl_seconds" toml:"result_ttl_seconds"`
}

// SPARQLConfig configures the remote triple store
type SPARQLConfig struct {
	Endpoint       string `mapstructure:"endpoint" toml:"endpoint"`
	UpdateEndpoint string `mapstructure:"update_endpoint" toml:"update_endpoint"`
	User           string `mapstructure:"user" toml:"user"`
	Password       string `mapstructure:"password" toml:"password"`
	BatchSize      int    `mapstructure:"batch_size" toml:"batch_size"` // Triples per INSERT DATA request
}

// ValidatorConfig configures source validation
type ValidatorConfig struct {
	Disabled bool     `mapstructure:"disabled" toml:"disabled"`
	Kind     string   `mapstructure:"kind" toml:"kind"` // breg | generic
	URL      string   `mapstructure:"url" toml:"url"`   // empty = the variant's public endpoint
	RuleSets []string `mapstructure:"rule_sets" toml:"rule_sets"`
}

// TermCacheConfig configures where resolved term documents are cached
type TermCacheConfig struct {
	Backend    string `mapstructure:"backend" toml:"backend"` // sqlite | badger | memory
	Prefix     string `mapstructure:"prefix" toml:"prefix"`
	BadgerPath string `mapstructure:"badger_path" toml:"badger_path"`
	MemorySize int64  `mapstructure:"memory_size" toml:"memory_size"`
}

// ResolverConfig configures term label resolution
type ResolverConfig struct {
	LabelLang         string        `mapstructure:"label_lang" toml:"label_lang"`
	ParseTimeout      time.Duration `mapstructure:"parse_timeout" toml:"parse_timeout"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout" toml:"fetch_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" toml:"requests_per_second"` // 0 = unlimited
	Burst             int           `mapstructure:"burst" toml:"burst"`
}

// SchedulerConfig configures the periodic harvest
type SchedulerConfig struct {
	Enabled         bool   `mapstructure:"enabled" toml:"enabled"`
	JobID           string `mapstructure:"job_id" toml:"job_id"`
	IntervalSeconds int    `mapstructure:"interval_seconds" toml:"interval_seconds"`
}

// SourceSpec is a declared (uri, type) pair before the type is checked.
type SourceSpec struct {
	URI  string `yaml:"uri" json:"uri"`
	Type string `yaml:"type" json:"type"`
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
