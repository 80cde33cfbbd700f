package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "spindle.db", cfg.Database.Path)
	assert.Equal(t, 1, cfg.Scheduler.TickerIntervalSeconds)
	assert.Equal(t, 1, cfg.Scheduler.DefaultMaxInstances)
	assert.Equal(t, 16, cfg.Scheduler.DefaultQueueDepth)
	assert.Equal(t, 30, cfg.Fetcher.TimeoutSeconds)
	assert.Equal(t, "spindle/1.0", cfg.Fetcher.UserAgent)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spindle.toml")
	content := `
[database]
path = "/var/lib/spindle/spindle.db"

[scheduler]
ticker_interval_seconds = 5
default_queue_depth = 32

[fetcher]
user_agent = "spindle-test/0.1"
requests_per_second = 0.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/spindle/spindle.db", cfg.Database.Path)
	assert.Equal(t, 5, cfg.Scheduler.TickerIntervalSeconds)
	assert.Equal(t, 32, cfg.Scheduler.DefaultQueueDepth)
	// Unset fields keep their defaults
	assert.Equal(t, 1, cfg.Scheduler.DefaultMaxInstances)
	assert.Equal(t, "spindle-test/0.1", cfg.Fetcher.UserAgent)
	assert.InDelta(t, 0.5, cfg.Fetcher.RequestsPerSecond, 0.0001)
}

func TestLoadFromMissingFileFails(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/spindle.toml")
	require.Error(t, err)
}
