package config

import (
	"strings"
	"time"

	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
)

// Storage modes; exactly one is active per run
const (
	StorageModeLocal    = "local"
	StorageModeS3       = "s3"
	StorageModePostgres = "postgres"
	StorageModeNone     = "none"
)

// Key index backends used for dedup outside the local CSV sink
const (
	KeyIndexMemory = "memory"
	KeyIndexBadger = "badger"
	KeyIndexRedis  = "redis"
)

// AppConfig holds the run configuration loaded from YAML
type AppConfig struct {
	Keyword     string   `yaml:"keyword"`
	Region      string   `yaml:"region,omitempty"`
	Country     string   `yaml:"country"` // "nl" or "es"
	RunPipeline FlexBool `yaml:"run_pipeline"`
	Depth       Depth    `yaml:"depth"`

	DataDir  string `yaml:"data_dir"`
	StateDir string `yaml:"state_dir"`

	Concurrency       int           `yaml:"concurrency"`                  // Profile processor window size
	MaxAttempts       int           `yaml:"max_attempts,omitempty"`       // Per-URL attempt budget (discovery, harvesting)
	RetryMinDelay     time.Duration `yaml:"retry_min_delay,omitempty"`    // Lower bound of jittered retry backoff
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay,omitempty"`    // Upper bound of jittered retry backoff
	NavigationTimeout time.Duration `yaml:"navigation_timeout,omitempty"` // Bound on a single goto
	ReadyTimeout      time.Duration `yaml:"ready_timeout,omitempty"`      // Bound on waiting for a content selector
	PolitenessDelay   time.Duration `yaml:"politeness_delay,omitempty"`   // Gap between listing navigations
	PolitenessJitter  float64       `yaml:"politeness_jitter,omitempty"`  // Fraction of PolitenessDelay randomized either way
	GlobalRunTimeout  time.Duration `yaml:"global_run_timeout,omitempty"`
	RespectRobots     bool          `yaml:"respect_robots,omitempty"`

	DescriptionNoisePatterns []string `yaml:"description_noise_patterns,omitempty"` // Extra regexes stripped from descriptions

	Browser            BrowserConfig    `yaml:"browser,omitempty"`
	Storage            StorageConfig    `yaml:"storage,omitempty"`
	Geocoding          GeocodingConfig  `yaml:"geocoding,omitempty"`
	Watch              WatchConfig      `yaml:"watch,omitempty"`
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// BrowserConfig configures the Chromium process driven for listing and profile pages
type BrowserConfig struct {
	Headless       *bool    `yaml:"headless,omitempty"`
	BinPath        string   `yaml:"bin_path,omitempty"`
	ControlURL     string   `yaml:"control_url,omitempty"` // Connect to an already running browser instead of launching
	Proxy          string   `yaml:"proxy,omitempty"`
	ViewportWidth  int      `yaml:"viewport_width,omitempty"`
	ViewportHeight int      `yaml:"viewport_height,omitempty"`
	UserAgents     []string `yaml:"user_agents,omitempty"` // Pool one agent is drawn from per run
	ExtraFlags     []string `yaml:"extra_flags,omitempty"` // Additional "--flag" or "--flag=value" switches
}

// StorageConfig selects and configures the persistence sink
type StorageConfig struct {
	Mode     string         `yaml:"mode"`
	KeyIndex string         `yaml:"key_index,omitempty"` // Dedup index for the s3 sink
	S3       S3Config       `yaml:"s3,omitempty"`
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
	Redis    RedisConfig    `yaml:"redis,omitempty"`
}

// S3Config configures the object-storage sink
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"` // Custom endpoint (MinIO, localstack)
	Prefix          string `yaml:"prefix,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `yaml:"use_path_style,omitempty"`
}

// PostgresConfig configures the relational sink
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table,omitempty"`
}

// RedisConfig configures the shared dedup key index
type RedisConfig struct {
	URL       string        `yaml:"url"`
	KeyPrefix string        `yaml:"key_prefix,omitempty"`
	TTL       time.Duration `yaml:"ttl,omitempty"` // 0 = keys never expire
}

// GeocodingConfig configures reverse geocoding of records carrying coordinates
type GeocodingConfig struct {
	Enabled     bool          `yaml:"enabled"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	UserAgent   string        `yaml:"user_agent,omitempty"`
	MinInterval time.Duration `yaml:"min_interval,omitempty"` // Nominatim usage policy: at most one request per second
}

// WatchConfig configures periodic re-runs
type WatchConfig struct {
	Schedule string `yaml:"schedule,omitempty"` // robfig/cron spec, e.g. "@every 24h" or "0 3 * * *"
}

// HTTPClientConfig holds settings for the shared HTTP client (robots.txt, geocoding)
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"`
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`
}

// Query returns the listing query described by this configuration
func (c *AppConfig) Query() models.ListingQuery {
	return models.ListingQuery{
		Keyword: strings.TrimSpace(c.Keyword),
		Region:  strings.TrimSpace(c.Region),
	}
}

// IsHeadless reports the effective headless setting (default true)
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless != nil {
		return *b.Headless
	}
	return true
}

// GetEffectiveKeyIndex returns the dedup index backend, falling back to badger
func (s StorageConfig) GetEffectiveKeyIndex() string {
	if s.KeyIndex != "" {
		return s.KeyIndex
	}
	return KeyIndexBadger
}
