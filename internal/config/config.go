// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/pricing-research/internal/research"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Research  ResearchConfig  `mapstructure:"research"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Collector CollectorConfig `mapstructure:"collector"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ResearchConfig governs record expiry and background persistence.
type ResearchConfig struct {
	UpdateDelaySeconds    int `mapstructure:"update_delay_seconds"`
	PersistTimeoutSeconds int `mapstructure:"persist_timeout_seconds"`
}

// StorageConfig selects and configures the research store.
type StorageConfig struct {
	Mode         string       `mapstructure:"mode"`
	Table        string       `mapstructure:"table"`
	EnsureSchema bool         `mapstructure:"ensure_schema"`
	SQLite       SQLiteConfig `mapstructure:"sqlite"`
	Postgres     DBConfig     `mapstructure:"postgres"`
	MySQL        DBConfig     `mapstructure:"mysql"`
	SQLServer    DBConfig     `mapstructure:"sqlserver"`
	Oracle       DBConfig     `mapstructure:"oracle"`
}

// SQLiteConfig points at the embedded database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// DBConfig holds connection settings for a networked relational store.
// DSN wins over the individual fields when set.
type DBConfig struct {
	DSN                    string            `mapstructure:"dsn"`
	Host                   string            `mapstructure:"host"`
	Port                   int               `mapstructure:"port"`
	User                   string            `mapstructure:"user"`
	Password               string            `mapstructure:"password"`
	Name                   string            `mapstructure:"name"`
	Params                 map[string]string `mapstructure:"params"`
	MaxOpenConns           int               `mapstructure:"max_open_conns"`
	MaxIdleConns           int               `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int               `mapstructure:"conn_max_lifetime_seconds"`
}

// CollectorConfig configures the web-scraping collectors.
type CollectorConfig struct {
	UserAgents              []string `mapstructure:"user_agents"`
	TimeoutSeconds          int      `mapstructure:"timeout_seconds"`
	DefaultCrawlDelayMillis int      `mapstructure:"default_crawl_delay_ms"`
	RespectRobots           bool     `mapstructure:"respect_robots"`
	MaxSellers              int      `mapstructure:"max_sellers"`
}

// BrowserConfig configures the rendered-page fetcher.
type BrowserConfig struct {
	Engine            string `mapstructure:"engine"`
	Headless          bool   `mapstructure:"headless"`
	MaxParallel       int    `mapstructure:"max_parallel"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	WaitTimeoutSecs   int    `mapstructure:"wait_timeout_seconds"`
}

// ArchiveConfig controls raw page archiving.
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for research-stored notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Browser engines.
const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
)

// Archive and notification backends.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendPubSub = "pubsub"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 120)
	v.SetDefault("server.shutdown_timeout_seconds", 30)
	v.SetDefault("logging.development", true)
	v.SetDefault("research.update_delay_seconds", 86400)
	v.SetDefault("research.persist_timeout_seconds", 30)
	v.SetDefault("storage.mode", "SQLITE")
	v.SetDefault("storage.table", "research")
	v.SetDefault("storage.ensure_schema", true)
	v.SetDefault("storage.sqlite.path", "pricing_research.db")
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.mysql.host", "localhost")
	v.SetDefault("storage.mysql.port", 3306)
	v.SetDefault("storage.sqlserver.host", "localhost")
	v.SetDefault("storage.sqlserver.port", 1433)
	v.SetDefault("storage.oracle.host", "localhost")
	v.SetDefault("storage.oracle.port", 1521)
	v.SetDefault("collector.user_agents", DefaultUserAgents)
	v.SetDefault("collector.timeout_seconds", 20)
	v.SetDefault("collector.default_crawl_delay_ms", 1000)
	v.SetDefault("collector.respect_robots", true)
	v.SetDefault("collector.max_sellers", 10)
	v.SetDefault("browser.engine", EngineChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.max_parallel", 2)
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("browser.wait_timeout_seconds", 10)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.backend", BackendMemory)
	v.SetDefault("archive.dir", "archive")
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.backend", BackendPubSub)
	v.SetDefault("pubsub.topic_name", "research-stored")
}

// DefaultUserAgents is the desktop browser pool rotated by collectors.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Research.UpdateDelaySeconds < 0 {
		return fmt.Errorf("research.update_delay_seconds must be >= 0")
	}
	mode, err := research.ParseStorageMode(c.Storage.Mode)
	if err != nil {
		return fmt.Errorf("storage.mode: %w", err)
	}
	if mode == research.StorageSQLite && c.Storage.SQLite.Path == "" {
		return fmt.Errorf("storage.sqlite.path is required for SQLITE mode")
	}
	if c.Collector.TimeoutSeconds <= 0 {
		return fmt.Errorf("collector.timeout_seconds must be > 0")
	}
	if len(c.Collector.UserAgents) == 0 {
		return fmt.Errorf("collector.user_agents must not be empty")
	}
	switch c.Browser.Engine {
	case EngineChromedp, EngineRod:
	default:
		return fmt.Errorf("browser.engine must be %q or %q", EngineChromedp, EngineRod)
	}
	if c.Browser.MaxParallel <= 0 {
		return fmt.Errorf("browser.max_parallel must be > 0")
	}
	if c.Archive.Enabled {
		switch c.Archive.Backend {
		case BackendMemory, BackendLocal:
		case BackendGCS:
			if c.Archive.GCSBucket == "" {
				return fmt.Errorf("archive.gcs_bucket is required for the gcs backend")
			}
		default:
			return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
		}
	}
	if c.PubSub.Enabled {
		switch c.PubSub.Backend {
		case BackendMemory:
		case BackendPubSub:
			if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
				return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required")
			}
		default:
			return fmt.Errorf("pubsub.backend %q is not supported", c.PubSub.Backend)
		}
	}
	return nil
}

// StorageMode returns the parsed storage mode. Validate guarantees it parses.
func (c Config) StorageMode() research.StorageMode {
	mode, err := research.ParseStorageMode(c.Storage.Mode)
	if err != nil {
		return research.StorageSQLite
	}
	return mode
}

// UpdateDelay converts research.update_delay_seconds into a duration.
func (c Config) UpdateDelay() time.Duration {
	return time.Duration(c.Research.UpdateDelaySeconds) * time.Second
}

// PersistTimeout bounds each background persistence task.
func (c Config) PersistTimeout() time.Duration {
	return time.Duration(c.Research.PersistTimeoutSeconds) * time.Second
}

// RequestTimeout bounds each HTTP request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// CollectorTimeout bounds static page fetches.
func (c Config) CollectorTimeout() time.Duration {
	return time.Duration(c.Collector.TimeoutSeconds) * time.Second
}

// DefaultCrawlDelay is used when robots.txt gives no hint.
func (c Config) DefaultCrawlDelay() time.Duration {
	return time.Duration(c.Collector.DefaultCrawlDelayMillis) * time.Millisecond
}

// BrowserNavTimeout bounds a rendered page navigation.
func (c Config) BrowserNavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// BrowserWaitTimeout bounds the wait for a rendered page element.
func (c Config) BrowserWaitTimeout() time.Duration {
	return time.Duration(c.Browser.WaitTimeoutSecs) * time.Second
}
