// Package config loads the downloader defaults from the environment.
//
// A .env file in the working directory is read first when present; variables
// already set in the environment win. Every setting is prefixed with WEBTOON_
// and can still be overridden by command line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const Prefix = "WEBTOON_"

// Config holds the defaults of a download run
type Config struct {
	// Concurrency
	ConcurrentChapters int `env:"CONCURRENT_CHAPTERS" envDefault:"6"`
	ConcurrentPages    int `env:"CONCURRENT_PAGES"    envDefault:"120"`

	// HTTP client
	RetryStrategy string        `env:"RETRY_STRATEGY" envDefault:"exponential"`
	MaxRetries    int           `env:"MAX_RETRIES"    envDefault:"5"`
	Proxy         string        `env:"PROXY"`
	Timeout       time.Duration `env:"TIMEOUT"        envDefault:"10s"`
	RateLimit     float64       `env:"RATE_LIMIT"     envDefault:"0"`

	// HistoryDB is the download history database, empty disables it
	HistoryDB string `env:"HISTORY_DB" envDefault:"webtoons.db"`
	// LogFile receives debug logs when debugging is enabled
	LogFile string `env:"LOG_FILE" envDefault:"webtoons.log"`
}

// Load reads the .env files (missing ones are skipped) and parses the environment
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no run could use
func (c *Config) Validate() error {
	if c.ConcurrentChapters <= 0 || c.ConcurrentPages <= 0 {
		return fmt.Errorf("config: concurrency limits must be greater than zero")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max retries must not be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config: timeout must be positive")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("config: rate limit must not be negative")
	}
	return nil
}
