package am

import (
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/breg-harvester/errors"
)

// createBackup keeps three rotating backups (.back1 newest) before a config write
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	back1, back2, back3 := configPath+".back1", configPath+".back2", configPath+".back3"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete .back3")
	}
	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}
	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}
	return nil
}

// SaveSetting sets a dotted key (e.g. "harvest.sources") in the TOML file
// at configPath, creating the file if needed. The previous file is kept as
// a rotating backup.
func SaveSetting(configPath, key string, value interface{}) error {
	config := make(map[string]interface{})
	if data, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(data, &config); err != nil {
			return errors.Wrapf(err, "failed to parse %s", configPath)
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to read %s", configPath)
	}

	parts := strings.Split(key, ".")
	section := config
	for _, part := range parts[:len(parts)-1] {
		next, ok := section[part].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			section[part] = next
		}
		section = next
	}
	section[parts[len(parts)-1]] = value

	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	globalWatcherMu.Lock()
	if globalWatcher != nil {
		globalWatcher.MarkOwnWrite()
	}
	globalWatcherMu.Unlock()

	if err := os.WriteFile(configPath, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", configPath)
	}
	return nil
}

// WriteDefaults writes cfg as a complete TOML file, used by `config init`.
func WriteDefaults(configPath string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}
	return errors.Wrapf(os.WriteFile(configPath, data, DefaultFilePermissions), "failed to write %s", configPath)
}
