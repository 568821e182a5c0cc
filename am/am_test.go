package am

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/breg-harvester/errors"
)

func loadDefaults(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadDefaults(t)

	assert.Equal(t, "harvester.db", cfg.Database.Path)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultWorkers, cfg.Pulse.Workers)
	assert.Equal(t, DefaultSPARQLEndpoint, cfg.SPARQL.Endpoint)
	assert.Equal(t, DefaultSPARQLUpdate, cfg.SPARQL.UpdateEndpoint)
	assert.Equal(t, DefaultGraphURI, cfg.Harvest.GraphURI)
	assert.Equal(t, "dba", cfg.SPARQL.User)
	assert.Equal(t, "dba", cfg.SPARQL.Password)
	assert.Equal(t, DefaultResultTTL, cfg.Harvest.ResultTTLSeconds)
	assert.Equal(t, DefaultSchedulerJobID, cfg.Scheduler.JobID)
	assert.Equal(t, DefaultIntervalSeconds, cfg.Scheduler.IntervalSeconds)
	assert.Equal(t, "en", cfg.Resolver.LabelLang)
	assert.Equal(t, 4*time.Second, cfg.Resolver.ParseTimeout)
	assert.Equal(t, 10*time.Second, cfg.Resolver.FetchTimeout)
	assert.Equal(t, DefaultCachePrefix, cfg.TermCache.Prefix)
	assert.False(t, cfg.Validator.Disabled)

	require.NoError(t, cfg.Validate())
}

func TestLegacyEnvVars(t *testing.T) {
	t.Setenv("HARVESTER_GRAPH_URI", "http://example.org/graph")
	t.Setenv("HARVESTER_SPARQL_PASS", "s3cret")
	t.Setenv("HARVESTER_PORT", "8080")
	t.Setenv("HARVESTER_SERVER_SPAWN", "2")
	t.Setenv("HARVESTER_VALIDATOR_DISABLED", "true")
	t.Setenv("HARVESTER_RESULT_TTL", "60")
	t.Setenv("HARVESTER_SPARQL_ENDPOINT", "http://store:8890/sparql")

	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindLegacyEnvVars(v)
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "http://example.org/graph", cfg.Harvest.GraphURI)
	assert.Equal(t, "s3cret", cfg.SPARQL.Password)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Pulse.Workers)
	assert.True(t, cfg.Validator.Disabled)
	assert.Equal(t, 60, cfg.Harvest.ResultTTLSeconds)
	assert.Equal(t, time.Minute, cfg.ResultTTL())
}

func TestSourceSpecs(t *testing.T) {
	t.Run("JSON pairs from the environment", func(t *testing.T) {
		cfg := loadDefaults(t)
		cfg.Harvest.Sources = `[["http://example.org/a.rdf", "xml"], ["http://example.org/b.ttl", "turtle"]]`

		specs, err := cfg.SourceSpecs()
		require.NoError(t, err)
		assert.Equal(t, []SourceSpec{
			{URI: "http://example.org/a.rdf", Type: "xml"},
			{URI: "http://example.org/b.ttl", Type: "turtle"},
		}, specs)
	})

	t.Run("empty means no sources", func(t *testing.T) {
		cfg := loadDefaults(t)
		specs, err := cfg.SourceSpecs()
		require.NoError(t, err)
		assert.Empty(t, specs)
	})

	t.Run("malformed JSON is a configuration error", func(t *testing.T) {
		cfg := loadDefaults(t)
		cfg.Harvest.Sources = `[["only-uri"]]`
		_, err := cfg.SourceSpecs()
		require.Error(t, err)
		assert.True(t, errors.IsConfigurationError(err))
	})

	t.Run("TOML tables and pairs", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ConfigFileName)
		content := `
[harvest]
sources = [
  ["http://example.org/a.nt", "nt"],
  { uri = "http://example.org/b.jsonld", type = "json-ld" },
]
`
		require.NoError(t, os.WriteFile(path, []byte(content), DefaultFilePermissions))

		cfg, err := LoadFromFile(path)
		require.NoError(t, err)

		specs, err := cfg.SourceSpecs()
		require.NoError(t, err)
		assert.Equal(t, []SourceSpec{
			{URI: "http://example.org/a.nt", Type: "nt"},
			{URI: "http://example.org/b.jsonld", Type: "json-ld"},
		}, specs)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"negative workers", func(c *Config) { c.Pulse.Workers = -1 }},
		{"missing query endpoint", func(c *Config) { c.SPARQL.Endpoint = "" }},
		{"relative update endpoint", func(c *Config) { c.SPARQL.UpdateEndpoint = "/sparql-auth" }},
		{"user without password", func(c *Config) { c.SPARQL.Password = "" }},
		{"empty graph", func(c *Config) { c.Harvest.GraphURI = "" }},
		{"unknown validator", func(c *Config) { c.Validator.Kind = "local" }},
		{"unknown cache backend", func(c *Config) { c.TermCache.Backend = "redis" }},
		{"zero interval", func(c *Config) { c.Scheduler.IntervalSeconds = 0 }},
		{"bad sources", func(c *Config) { c.Harvest.Sources = "not json" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadDefaults(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsConfigurationError(err), "got %v", err)
		})
	}

	t.Run("zero workers is valid (no background processing)", func(t *testing.T) {
		cfg := loadDefaults(t)
		cfg.Pulse.Workers = 0
		assert.NoError(t, cfg.Validate())
	})

	t.Run("disabled scheduler ignores interval", func(t *testing.T) {
		cfg := loadDefaults(t)
		cfg.Scheduler.Enabled = false
		cfg.Scheduler.IntervalSeconds = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestSaveSetting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)

	require.NoError(t, SaveSetting(path, "harvest.graph_uri", "http://example.org/g1"))
	require.NoError(t, SaveSetting(path, "harvest.graph_uri", "http://example.org/g2"))
	require.NoError(t, SaveSetting(path, "sparql.user", "admin"))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/g2", cfg.Harvest.GraphURI)
	assert.Equal(t, "admin", cfg.SPARQL.User)

	_, err = os.Stat(path + ".back1")
	assert.NoError(t, err, "previous version kept as backup")
	assert.True(t, isBackupFile(path+".back1"))
	assert.False(t, isBackupFile(path))
}
