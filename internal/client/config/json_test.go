package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTempJSON(t, map[string]any{
		"server_base_url":       "https://staging.example",
		"database_path":         "/tmp/staging.db",
		"poll_interval":         "90s",
		"health_check_interval": "5m",
		"batch_size":            3,
		"inbox_max_age":         "720h",
	})

	t.Run("loads from flags", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", path}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "https://staging.example", cfg.ServerBaseURL)
		assert.Equal(t, "/tmp/staging.db", cfg.DatabasePath)
		assert.Equal(t, 90*time.Second, cfg.PollInterval)
		assert.Equal(t, 5*time.Minute, cfg.HealthCheckInterval)
		assert.Equal(t, 3, cfg.BatchSize)
		assert.Equal(t, 720*time.Hour, cfg.InboxMaxAge)
	})

	t.Run("unset JSON fields keep defaults", func(t *testing.T) {
		partial := writeTempJSON(t, map[string]any{
			"server_base_url": "https://partial.example",
		})
		os.Args = []string{"testbin", "-config", partial}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "https://partial.example", cfg.ServerBaseURL)
		assert.Equal(t, 2*time.Minute, cfg.PollInterval)
		assert.Equal(t, 200, cfg.InboxMaxCount)
	})

	t.Run("no CONFIG and no flags means no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "https://api.pulldeck.dev", cfg.ServerBaseURL)
		assert.Equal(t, 2*time.Minute, cfg.PollInterval)
	})
}
