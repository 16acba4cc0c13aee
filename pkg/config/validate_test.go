package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

func minimalConfig() AppConfig {
	return AppConfig{Keyword: "bakery", Country: "nl"}
}

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestAppConfig_Validate_Defaults(t *testing.T) {
	cfg := minimalConfig()
	warnings, err := cfg.Validate()

	require.NoError(t, err)

	assert.True(t, cfg.RunPipeline.Value)
	assert.Equal(t, 1, cfg.Depth.Limit())
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "./state", cfg.StateDir)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 1*time.Second, cfg.RetryMinDelay)
	assert.Equal(t, 3*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, 60*time.Second, cfg.NavigationTimeout)
	assert.Equal(t, 30*time.Second, cfg.ReadyTimeout)
	assert.Equal(t, 1*time.Second, cfg.PolitenessDelay)
	assert.Equal(t, 0.5, cfg.PolitenessJitter)
	assert.Equal(t, StorageModeLocal, cfg.Storage.Mode)
	assert.Equal(t, KeyIndexBadger, cfg.Storage.GetEffectiveKeyIndex())
	assert.Equal(t, 1920, cfg.Browser.ViewportWidth)
	assert.Equal(t, 1080, cfg.Browser.ViewportHeight)
	assert.True(t, cfg.Browser.IsHeadless())
	assert.Equal(t, "@every 24h", cfg.Watch.Schedule)
	assert.Equal(t, time.Second, cfg.Geocoding.MinInterval)
	assert.Equal(t, 30*time.Second, cfg.HTTPClientSettings.Timeout)

	assert.True(t, containsWarning(warnings, "run_pipeline not specified"))
	assert.True(t, containsWarning(warnings, "data_dir is empty"))
	assert.True(t, containsWarning(warnings, "state_dir is empty"))
	assert.True(t, containsWarning(warnings, "storage.mode not specified"))
}

func TestAppConfig_Validate_RequiredKeys(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AppConfig
		wantMsg string
	}{
		{"missing keyword", AppConfig{Country: "nl"}, "'keyword'"},
		{"blank keyword", AppConfig{Keyword: "   ", Country: "nl"}, "'keyword'"},
		{"missing country", AppConfig{Keyword: "bakery"}, "'country'"},
		{"unsupported country", AppConfig{Keyword: "bakery", Country: "de"}, "unsupported country"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, utils.ErrConfigValidation)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestAppConfig_Validate_NormalizesCountryAndRegion(t *testing.T) {
	cfg := AppConfig{Keyword: " bakery ", Country: " ES ", Region: " madrid "}
	_, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, "es", cfg.Country)
	assert.Equal(t, "bakery", cfg.Keyword)
	assert.Equal(t, "madrid", cfg.Query().Region)
}

func TestAppConfig_Validate_ExplicitValuesPreserved(t *testing.T) {
	cfg := minimalConfig()
	cfg.RunPipeline = Bool(false)
	cfg.Depth = UnlimitedDepth()
	cfg.DataDir = "/data"
	cfg.StateDir = "/state"
	cfg.Concurrency = 4
	cfg.MaxAttempts = 5
	cfg.NavigationTimeout = 10 * time.Second

	warnings, err := cfg.Validate()
	require.NoError(t, err)

	assert.False(t, cfg.RunPipeline.Value)
	assert.Equal(t, 0, cfg.Depth.Limit())
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.NavigationTimeout)
	assert.False(t, containsWarning(warnings, "run_pipeline"))
	assert.False(t, containsWarning(warnings, "data_dir"))
}

func TestAppConfig_Validate_Adjustments(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(*AppConfig)
		wantWarning string
		check       func(*testing.T, *AppConfig)
	}{
		{
			name:        "concurrency capped",
			setup:       func(c *AppConfig) { c.Concurrency = 50 },
			wantWarning: "capping at 8",
			check:       func(t *testing.T, c *AppConfig) { assert.Equal(t, 8, c.Concurrency) },
		},
		{
			name: "retry delays swapped",
			setup: func(c *AppConfig) {
				c.RetryMinDelay = 5 * time.Second
				c.RetryMaxDelay = 2 * time.Second
			},
			wantWarning: "retry_min_delay",
			check: func(t *testing.T, c *AppConfig) {
				assert.Equal(t, 2*time.Second, c.RetryMinDelay)
			},
		},
		{
			name:        "negative global timeout",
			setup:       func(c *AppConfig) { c.GlobalRunTimeout = -time.Second },
			wantWarning: "global_run_timeout cannot be negative",
			check:       func(t *testing.T, c *AppConfig) { assert.Zero(t, c.GlobalRunTimeout) },
		},
		{
			name:        "jitter out of range",
			setup:       func(c *AppConfig) { c.PolitenessJitter = 3 },
			wantWarning: "politeness_jitter",
			check:       func(t *testing.T, c *AppConfig) { assert.Equal(t, 0.5, c.PolitenessJitter) },
		},
		{
			name:        "invalid depth string",
			setup:       func(c *AppConfig) { c.Depth = Depth{invalid: "lots"} },
			wantWarning: "depth \"lots\" is not an integer",
			check:       func(t *testing.T, c *AppConfig) { assert.Equal(t, 1, c.Depth.Limit()) },
		},
		{
			name:        "storage none",
			setup:       func(c *AppConfig) { c.Storage.Mode = "none" },
			wantWarning: "will NOT be persisted",
			check:       func(t *testing.T, c *AppConfig) { assert.Equal(t, StorageModeNone, c.Storage.Mode) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalConfig()
			tt.setup(&cfg)
			warnings, err := cfg.Validate()
			require.NoError(t, err)
			assert.True(t, containsWarning(warnings, tt.wantWarning), "warnings: %v", warnings)
			tt.check(t, &cfg)
		})
	}
}

func TestAppConfig_Validate_StorageErrors(t *testing.T) {
	tests := []struct {
		name    string
		storage StorageConfig
		wantMsg string
	}{
		{"unknown mode", StorageConfig{Mode: "ftp"}, "unknown storage.mode"},
		{"s3 without bucket", StorageConfig{Mode: "s3"}, "storage.s3.bucket"},
		{"postgres without dsn", StorageConfig{Mode: "postgres"}, "storage.postgres.dsn"},
		{"redis index without url", StorageConfig{Mode: "s3", S3: S3Config{Bucket: "b"}, KeyIndex: "redis"}, "storage.redis.url"},
		{"unknown index", StorageConfig{Mode: "local", KeyIndex: "etcd"}, "unknown storage.key_index"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalConfig()
			cfg.Storage = tt.storage
			_, err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, utils.ErrConfigValidation)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestAppConfig_Validate_PostgresTableDefault(t *testing.T) {
	cfg := minimalConfig()
	cfg.Storage = StorageConfig{Mode: "postgres", Postgres: PostgresConfig{DSN: "postgres://localhost/db"}}
	_, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, "profile_records", cfg.Storage.Postgres.Table)
}

func TestAppConfig_Validate_InvalidNoisePattern(t *testing.T) {
	cfg := minimalConfig()
	cfg.DescriptionNoisePatterns = []string{"[bad"}
	_, err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}
