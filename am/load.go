package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/breg-harvester/errors"
)

// ConfigFileName is the file searched for in the working directory and its parents
const ConfigFileName = "harvester.toml"

var (
	mu             sync.Mutex
	globalConfig   *Config
	viperInstance  *viper.Viper
	explicitConfig string
	loadedFrom     string
)

// SetConfigFile forces a specific config file (the --config flag).
// Must be called before the first Load.
func SetConfigFile(path string) {
	mu.Lock()
	defer mu.Unlock()
	explicitConfig = path
	globalConfig = nil
	viperInstance = nil
}

// Load reads the harvester configuration using Viper
func Load() (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	if globalConfig != nil {
		return globalConfig, nil
	}

	v, err := initViper()
	if err != nil {
		return nil, err
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path, without
// environment overrides
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	return LoadWithViper(v)
}

// ConfigFileUsed returns the path of the config file merged by Load, if any
func ConfigFileUsed() string {
	mu.Lock()
	defer mu.Unlock()
	return loadedFrom
}

// Reset clears the cached configuration (used by the watcher and tests)
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	viperInstance = nil
}

// initViper must be called with mu held
func initViper() (*viper.Viper, error) {
	if viperInstance != nil {
		return viperInstance, nil
	}

	v := viper.New()

	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindLegacyEnvVars(v)

	SetDefaults(v)

	path := explicitConfig
	if path == "" {
		path = findProjectConfig()
	}
	loadedFrom = ""
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			// An explicit --config must exist; a discovered one is best effort
			if explicitConfig != "" {
				return nil, errors.Wrapf(err, "failed to read config file %s", path)
			}
		} else {
			loadedFrom = path
		}
	}

	viperInstance = v
	return v, nil
}

// findProjectConfig searches for harvester.toml by walking up from the
// working directory, then falls back to the system location
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err == nil {
		for {
			candidate := filepath.Join(dir, ConfigFileName)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	system := filepath.Join("/etc/breg-harvester", ConfigFileName)
	if _, err := os.Stat(system); err == nil {
		return system
	}
	return ""
}
