package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultAniListURL is the AniList GraphQL endpoint
	DefaultAniListURL = "https://graphql.anilist.co"
	// DefaultMALURL is the MyAnimeList v2 API base URL
	DefaultMALURL = "https://api.myanimelist.net/v2"
	// DefaultListStatus is the media list status pushed for every bookmark
	DefaultListStatus = "CURRENT"
)

// Config holds all configuration for the application
type Config struct {
	// Logging configuration
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	// AniList (primary catalog) configuration
	AniList struct {
		URL   string `yaml:"url"`
		Token string `yaml:"token"`
	} `yaml:"anilist"`

	// MyAnimeList (secondary catalog) configuration
	MAL struct {
		URL         string `yaml:"url"`
		ClientID    string `yaml:"client_id"`
		SearchLimit int    `yaml:"search_limit"`
	} `yaml:"mal"`

	// File paths
	Paths struct {
		BookmarksFile  string `yaml:"bookmarks_file"`
		CheckpointFile string `yaml:"checkpoint_file"`
		NotFoundReport string `yaml:"not_found_report"`
	} `yaml:"paths"`

	// Outbound request behaviour
	Request struct {
		Timeout      time.Duration `yaml:"timeout"`
		MaxRetries   int           `yaml:"max_retries"`
		RetryDelay   time.Duration `yaml:"retry_delay"`
		Cooldown     time.Duration `yaml:"rate_limit_cooldown"`
		MaxCooldowns int           `yaml:"max_cooldowns"`
	} `yaml:"request"`

	// Batch behaviour
	Sync struct {
		Status          string        `yaml:"status"`
		ItemDelay       time.Duration `yaml:"item_delay"`
		AlternateDelay  time.Duration `yaml:"alternate_delay"`
		BatchPause      time.Duration `yaml:"batch_pause"`
		MaxItemAttempts int           `yaml:"max_item_attempts"`
		DryRun          bool          `yaml:"dry_run"`
		Filter          string        `yaml:"filter"`
		Limit           int           `yaml:"limit"`
	} `yaml:"sync"`

	// Title matching heuristics
	Match struct {
		Threshold        float64 `yaml:"threshold"`
		VolumeMultiplier float64 `yaml:"volume_multiplier"`
	} `yaml:"match"`
}

// DefaultConfig returns a configuration populated with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "auto"

	cfg.AniList.URL = DefaultAniListURL

	cfg.MAL.URL = DefaultMALURL
	cfg.MAL.SearchLimit = 5

	cfg.Paths.BookmarksFile = "manga_bookmarks.txt"
	cfg.Paths.CheckpointFile = "progress.txt"
	cfg.Paths.NotFoundReport = "not_found.json"

	cfg.Request.Timeout = 30 * time.Second
	cfg.Request.MaxRetries = 3
	cfg.Request.RetryDelay = 5 * time.Second
	cfg.Request.Cooldown = 60 * time.Second

	cfg.Sync.Status = DefaultListStatus
	cfg.Sync.ItemDelay = 2 * time.Second
	cfg.Sync.AlternateDelay = 2 * time.Second
	cfg.Sync.BatchPause = 60 * time.Second
	cfg.Sync.MaxItemAttempts = 3

	cfg.Match.Threshold = 0.6
	cfg.Match.VolumeMultiplier = 5

	return cfg
}

// Load loads configuration from a file (if specified) and environment variables.
// Configuration priority: 1) Environment variables, 2) Config file, 3) Defaults.
// Command line flags are applied by the caller on top of the result.
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, err
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file at path onto cfg.
// Keys missing from the file keep their current value.
func loadFromFile(cfg *Config, path string) error {
	if !filepath.IsAbs(path) {
		abspath, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = abspath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(cfg *Config) error {
	var errs []string
	record := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("ANILIST_URL"); v != "" {
		cfg.AniList.URL = strings.TrimSuffix(v, "/")
	}
	if v := os.Getenv("ANILIST_TOKEN"); v != "" {
		cfg.AniList.Token = v
	}
	if v := os.Getenv("MAL_URL"); v != "" {
		cfg.MAL.URL = strings.TrimSuffix(v, "/")
	}
	if v := os.Getenv("MAL_CLIENT_ID"); v != "" {
		cfg.MAL.ClientID = v
	}

	if v := os.Getenv("BOOKMARKS_FILE"); v != "" {
		cfg.Paths.BookmarksFile = v
	}
	if v := os.Getenv("CHECKPOINT_FILE"); v != "" {
		cfg.Paths.CheckpointFile = v
	}
	if v := os.Getenv("NOT_FOUND_REPORT"); v != "" {
		cfg.Paths.NotFoundReport = v
	}

	record(durationFromEnv("REQUEST_TIMEOUT", &cfg.Request.Timeout))
	record(intFromEnv("MAX_RETRIES", &cfg.Request.MaxRetries))
	record(durationFromEnv("RETRY_DELAY", &cfg.Request.RetryDelay))
	record(durationFromEnv("RATE_LIMIT_COOLDOWN", &cfg.Request.Cooldown))
	record(intFromEnv("MAX_COOLDOWNS", &cfg.Request.MaxCooldowns))

	if v := os.Getenv("LIST_STATUS"); v != "" {
		cfg.Sync.Status = strings.ToUpper(v)
	}
	record(durationFromEnv("ITEM_DELAY", &cfg.Sync.ItemDelay))
	record(durationFromEnv("ALTERNATE_DELAY", &cfg.Sync.AlternateDelay))
	record(durationFromEnv("BATCH_PAUSE", &cfg.Sync.BatchPause))
	record(intFromEnv("MAX_ITEM_ATTEMPTS", &cfg.Sync.MaxItemAttempts))
	record(boolFromEnv("DRY_RUN", &cfg.Sync.DryRun))
	if v := os.Getenv("SYNC_FILTER"); v != "" {
		cfg.Sync.Filter = v
	}
	record(intFromEnv("SYNC_LIMIT", &cfg.Sync.Limit))

	record(floatFromEnv("MATCH_THRESHOLD", &cfg.Match.Threshold))
	record(floatFromEnv("VOLUME_MULTIPLIER", &cfg.Match.VolumeMultiplier))

	if len(errs) > 0 {
		return &ConfigError{
			Field: "environment",
			Msg:   strings.Join(errs, "; "),
		}
	}
	return nil
}

// Validate checks that all required configuration is present and that the
// tunables are in range. Credentials are only checked when requireCredentials
// is set, so offline commands can run without them.
func (c *Config) Validate(requireCredentials bool) error {
	var missing []string

	if requireCredentials {
		if c.AniList.Token == "" {
			missing = append(missing, "ANILIST_TOKEN")
		}
		if c.MAL.ClientID == "" {
			missing = append(missing, "MAL_CLIENT_ID")
		}
	}
	if c.Paths.BookmarksFile == "" {
		missing = append(missing, "BOOKMARKS_FILE")
	}
	if c.Paths.CheckpointFile == "" {
		missing = append(missing, "CHECKPOINT_FILE")
	}

	if len(missing) > 0 {
		return &ConfigError{
			Field: strings.Join(missing, ", "),
			Msg:   "required configuration values are missing",
		}
	}

	switch {
	case c.Request.MaxRetries < 1:
		return &ConfigError{Field: "request.max_retries", Msg: "must be at least 1"}
	case c.Sync.MaxItemAttempts < 1:
		return &ConfigError{Field: "sync.max_item_attempts", Msg: "must be at least 1"}
	case c.Match.Threshold <= 0 || c.Match.Threshold > 1:
		return &ConfigError{Field: "match.threshold", Msg: "must be greater than 0 and at most 1"}
	case c.Match.VolumeMultiplier <= 0:
		return &ConfigError{Field: "match.volume_multiplier", Msg: "must be positive"}
	case c.Sync.Limit < 0:
		return &ConfigError{Field: "sync.limit", Msg: "must not be negative"}
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + " " + e.Msg
}

func durationFromEnv(key string, dst *time.Duration) error {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", key, value)
	}
	*dst = d
	return nil
}

func intFromEnv(key string, dst *int) error {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, value)
	}
	*dst = i
	return nil
}

func floatFromEnv(key string, dst *float64) error {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid number %q", key, value)
	}
	*dst = f
	return nil
}

func boolFromEnv(key string, dst *bool) error {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s: invalid boolean %q", key, value)
	}
	*dst = b
	return nil
}
