// Package config loads aggregator configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the aggregator's tunables.
type Config struct {
	DBPath           string `yaml:"db_path"`
	MaxItemsPerFeed  int    `yaml:"max_items_per_feed"`
	DedupeWindowDays int    `yaml:"dedupe_window_days"` // accepted but not yet applied to the dedup check
	FetchTimeoutSec  int    `yaml:"fetch_timeout"`
	MaxSummaryLength int    `yaml:"max_summary_length"`
	Workers          int    `yaml:"workers"`
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		DBPath:           "feed-agg.db",
		MaxItemsPerFeed:  100,
		DedupeWindowDays: 30,
		FetchTimeoutSec:  10,
		MaxSummaryLength: 500,
		Workers:          4,
	}
}

// Load reads configuration from the YAML file at path, if it exists, then
// applies environment overrides. A missing file is not an error; defaults
// are used.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// FetchTimeout returns the fetch timeout as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

func (c *Config) applyEnv() {
	c.DBPath = getenv("FEED_AGG_DB", c.DBPath)
	c.MaxItemsPerFeed = parseIntEnv("FEED_AGG_MAX_ITEMS", c.MaxItemsPerFeed)
	c.DedupeWindowDays = parseIntEnv("FEED_AGG_DEDUPE_WINDOW_DAYS", c.DedupeWindowDays)
	c.FetchTimeoutSec = parseIntEnv("FEED_AGG_FETCH_TIMEOUT", c.FetchTimeoutSec)
	c.MaxSummaryLength = parseIntEnv("FEED_AGG_MAX_SUMMARY_LENGTH", c.MaxSummaryLength)
	c.Workers = parseIntEnv("FEED_AGG_WORKERS", c.Workers)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
