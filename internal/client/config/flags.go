package config

import (
	"flag"
	"os"
	"time"

	"github.com/pulldeck/pulldeck/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the backend server (default from Config)
//	-d string   path to the local sqlite database
//	-p int      resource poll interval in seconds
//	-i int      auth health check interval in seconds
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-p", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerBaseURL, "a", cfg.ServerBaseURL, "base URL of the backend server")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path to the local sqlite database")
	pollInterval := fs.Int("p", int(cfg.PollInterval.Seconds()), "resource poll interval (in seconds)")
	healthInterval := fs.Int("i", int(cfg.HealthCheckInterval.Seconds()), "auth health check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.PollInterval = time.Duration(*pollInterval) * time.Second
	cfg.HealthCheckInterval = time.Duration(*healthInterval) * time.Second
}
