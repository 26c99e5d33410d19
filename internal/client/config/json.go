package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pulldeck/pulldeck/internal/flagx"
	"github.com/pulldeck/pulldeck/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "2m" or as integer nanoseconds. After parsing, values
// are copied into the runtime Config (which uses time.Duration).
type JsonConfig struct {
	ServerBaseURL       string         `json:"server_base_url"`
	DatabasePath        string         `json:"database_path"`
	PollInterval        timex.Duration `json:"poll_interval"`
	HealthCheckInterval timex.Duration `json:"health_check_interval"`
	BatchSize           int            `json:"batch_size"`
	MaxFollowed         int            `json:"max_followed"`
	InboxMaxCount       int            `json:"inbox_max_count"`
	InboxMaxAge         timex.Duration `json:"inbox_max_age"`
	ProviderCacheTTL    timex.Duration `json:"provider_cache_ttl"`
	GitHubToken         string         `json:"github_token"`
	GitLabToken         string         `json:"gitlab_token"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Behavior:
//   - Reads and unmarshals the JSON into JsonConfig.
//   - Copies set fields into the provided Config; zero values keep the
//     defaults.
//   - Panics on read or unmarshal errors (caller should recover if desired).
//
// Intended usage is: defaults -> parseJson -> parseFlags, where later stages
// override earlier ones.
func parseJson(cfg *Config) {
	// Resolve file path from flags.
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerBaseURL != "" {
		cfg.ServerBaseURL = jc.ServerBaseURL
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.PollInterval.Duration != 0 {
		cfg.PollInterval = time.Duration(jc.PollInterval.Duration)
	}
	if jc.HealthCheckInterval.Duration != 0 {
		cfg.HealthCheckInterval = time.Duration(jc.HealthCheckInterval.Duration)
	}
	if jc.BatchSize != 0 {
		cfg.BatchSize = jc.BatchSize
	}
	if jc.MaxFollowed != 0 {
		cfg.MaxFollowed = jc.MaxFollowed
	}
	if jc.InboxMaxCount != 0 {
		cfg.InboxMaxCount = jc.InboxMaxCount
	}
	if jc.InboxMaxAge.Duration != 0 {
		cfg.InboxMaxAge = time.Duration(jc.InboxMaxAge.Duration)
	}
	if jc.ProviderCacheTTL.Duration != 0 {
		cfg.ProviderCacheTTL = time.Duration(jc.ProviderCacheTTL.Duration)
	}
	if jc.GitHubToken != "" {
		cfg.GitHubToken = jc.GitHubToken
	}
	if jc.GitLabToken != "" {
		cfg.GitLabToken = jc.GitLabToken
	}
}
