package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

var supportedCountries = map[string]bool{"nl": true, "es": true}

// Validate checks AppConfig fields and applies sensible defaults.
// Missing required keys (keyword, country) are fatal; optional ones are defaulted with a warning.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// Required: keyword
	c.Keyword = strings.TrimSpace(c.Keyword)
	if c.Keyword == "" {
		return nil, fmt.Errorf("%w: 'keyword' is missing or empty", utils.ErrConfigValidation)
	}

	// Required: country
	c.Country = strings.ToLower(strings.TrimSpace(c.Country))
	if c.Country == "" {
		return nil, fmt.Errorf("%w: 'country' is missing or empty", utils.ErrConfigValidation)
	}
	if !supportedCountries[c.Country] {
		return nil, fmt.Errorf("%w: unsupported country %q (want \"nl\" or \"es\")", utils.ErrConfigValidation, c.Country)
	}

	c.Region = strings.TrimSpace(c.Region)

	// RunPipeline
	if !c.RunPipeline.Set {
		warnings = append(warnings, "run_pipeline not specified, defaulting to true")
		c.RunPipeline = Bool(true)
	}

	// Depth
	if !c.Depth.IsSet() {
		if c.Depth.invalid != "" {
			warnings = append(warnings, fmt.Sprintf("depth %q is not an integer, defaulting to %d", c.Depth.invalid, DefaultDepth))
		}
		c.Depth = NewDepth(DefaultDepth)
	}

	// Directories
	if c.DataDir == "" {
		warnings = append(warnings, "data_dir is empty, defaulting to './data'")
		c.DataDir = "./data"
	}
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './state'")
		c.StateDir = "./state"
	}

	// Concurrency window
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	} else if c.Concurrency > 8 {
		warnings = append(warnings, fmt.Sprintf("concurrency %d is high for a single browser, capping at 8", c.Concurrency))
		c.Concurrency = 8
	}

	// Retry budget
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryMinDelay <= 0 {
		c.RetryMinDelay = 1 * time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 3 * time.Second
	}
	if c.RetryMinDelay > c.RetryMaxDelay {
		warnings = append(warnings, fmt.Sprintf(
			"retry_min_delay (%v) > retry_max_delay (%v), using retry_max_delay for both",
			c.RetryMinDelay, c.RetryMaxDelay))
		c.RetryMinDelay = c.RetryMaxDelay
	}

	// Timeouts
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 60 * time.Second
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 30 * time.Second
	}
	if c.GlobalRunTimeout < 0 {
		warnings = append(warnings, "global_run_timeout cannot be negative, disabling timeout")
		c.GlobalRunTimeout = 0
	}

	// Politeness
	if c.PolitenessDelay <= 0 {
		c.PolitenessDelay = 1 * time.Second
	}
	if c.PolitenessJitter <= 0 || c.PolitenessJitter > 1 {
		if c.PolitenessJitter != 0 {
			warnings = append(warnings, "politeness_jitter must be within (0, 1], defaulting to 0.5")
		}
		c.PolitenessJitter = 0.5
	}

	if _, errRe := utils.CompileRegexPatterns(c.DescriptionNoisePatterns); errRe != nil {
		return warnings, errRe
	}

	c.validateBrowser()

	storageWarnings, err := c.Storage.validate()
	warnings = append(warnings, storageWarnings...)
	if err != nil {
		return warnings, err
	}

	c.validateGeocoding()

	if c.Watch.Schedule == "" {
		c.Watch.Schedule = "@every 24h"
	}

	c.validateHTTPClientSettings()

	return warnings, nil
}

func (c *AppConfig) validateBrowser() {
	b := &c.Browser
	if b.ViewportWidth <= 0 {
		b.ViewportWidth = 1920
	}
	if b.ViewportHeight <= 0 {
		b.ViewportHeight = 1080
	}
}

// validate checks the storage section; a selected backend missing its connection settings is fatal.
func (s *StorageConfig) validate() (warnings []string, err error) {
	s.Mode = strings.ToLower(strings.TrimSpace(s.Mode))
	switch s.Mode {
	case "":
		warnings = append(warnings, "storage.mode not specified, defaulting to 'local'")
		s.Mode = StorageModeLocal
	case StorageModeLocal, StorageModeS3, StorageModePostgres:
	case StorageModeNone:
		warnings = append(warnings, "storage.mode is 'none': extracted records will NOT be persisted")
	default:
		return warnings, fmt.Errorf("%w: unknown storage.mode %q", utils.ErrConfigValidation, s.Mode)
	}

	if s.Mode == StorageModeS3 && s.S3.Bucket == "" {
		return warnings, fmt.Errorf("%w: storage.s3.bucket is required for mode 's3'", utils.ErrConfigValidation)
	}
	if s.Mode == StorageModePostgres {
		if s.Postgres.DSN == "" {
			return warnings, fmt.Errorf("%w: storage.postgres.dsn is required for mode 'postgres'", utils.ErrConfigValidation)
		}
		if s.Postgres.Table == "" {
			s.Postgres.Table = "profile_records"
		}
	}

	switch s.GetEffectiveKeyIndex() {
	case KeyIndexMemory, KeyIndexBadger:
	case KeyIndexRedis:
		if s.Redis.URL == "" {
			return warnings, fmt.Errorf("%w: storage.redis.url is required for key_index 'redis'", utils.ErrConfigValidation)
		}
	default:
		return warnings, fmt.Errorf("%w: unknown storage.key_index %q", utils.ErrConfigValidation, s.KeyIndex)
	}
	if s.Redis.KeyPrefix == "" {
		s.Redis.KeyPrefix = "bizdir:dedup:"
	}

	return warnings, nil
}

func (c *AppConfig) validateGeocoding() {
	g := &c.Geocoding
	if g.BaseURL == "" {
		g.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if g.UserAgent == "" {
		g.UserAgent = "bizdir-scraper/1.0"
	}
	if g.MinInterval <= 0 {
		g.MinInterval = 1 * time.Second
	}
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 30 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 20
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}
