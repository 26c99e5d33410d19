package config

import "time"

// Config holds runtime settings for the pulldeck client.
//
// Units: all intervals are time.Duration values.
type Config struct {
	// ServerBaseURL is the base URL of the auth/session backend.
	ServerBaseURL string
	// DatabasePath is the sqlite file holding local state.
	DatabasePath string

	// PollInterval drives the followed and pinned resource pollers.
	PollInterval time.Duration
	// HealthCheckInterval drives the auth health probe.
	HealthCheckInterval time.Duration
	// BatchSize bounds concurrent provider calls per poll run.
	BatchSize int

	// MaxFollowed caps each tracked-resource store.
	MaxFollowed int
	// InboxMaxCount and InboxMaxAge cap the notification inbox.
	InboxMaxCount int
	InboxMaxAge   time.Duration

	// ProviderCacheTTL bounds how stale a cached provider read may be.
	ProviderCacheTTL time.Duration

	// GitHubToken and GitLabToken authenticate the GraphQL reads against the
	// hosting providers. JSON-file only; never passed on the command line.
	GitHubToken string
	GitLabToken string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerBaseURL = "https://api.pulldeck.dev"
	c.DatabasePath = "pulldeck.db"
	c.PollInterval = 2 * time.Minute
	c.HealthCheckInterval = 600 * time.Second
	c.BatchSize = 5
	c.MaxFollowed = 100
	c.InboxMaxCount = 200
	c.InboxMaxAge = 30 * 24 * time.Hour
	c.ProviderCacheTTL = 30 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
