package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("[harvest]\ngraph_uri = \"http://example.org/one\"\n"), DefaultFilePermissions))

	SetConfigFile(path)
	t.Cleanup(func() { SetConfigFile("") })

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	cw.debouncePeriod = 10 * time.Millisecond

	reloaded := make(chan *Config, 1)
	cw.OnReload(func(cfg *Config) error {
		select {
		case reloaded <- cfg:
		default:
		}
		return nil
	})
	cw.Start()
	defer cw.Stop()

	require.NoError(t, os.WriteFile(path, []byte("[harvest]\ngraph_uri = \"http://example.org/two\"\n"), DefaultFilePermissions))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "http://example.org/two", cfg.Harvest.GraphURI)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestConfigWatcherIgnoresOwnWrite(t *testing.T) {
	cw := &ConfigWatcher{}
	cw.MarkOwnWrite()
	assert.True(t, cw.checkOwnWrite())
	assert.False(t, cw.checkOwnWrite(), "flag is cleared after one check")
}
