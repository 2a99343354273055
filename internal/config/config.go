// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Viktoriusw/seriously-crawler/internal/crawler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Robots   RobotsConfig   `mapstructure:"robots"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the HTTP control surface.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs frontier and worker pool behavior.
type CrawlerConfig struct {
	Seeds            []string `mapstructure:"seeds"`
	UserAgent        string   `mapstructure:"user_agent"`
	Concurrency      int      `mapstructure:"concurrency"`
	MaxDepth         int      `mapstructure:"max_depth"`
	MaxPages         int      `mapstructure:"max_pages"`
	DelayMs          int      `mapstructure:"delay_ms"`
	FollowExternal   bool     `mapstructure:"follow_external"`
	AllowSubdomains  bool     `mapstructure:"allow_subdomains"`
	SkipCrawled      bool     `mapstructure:"skip_crawled"`
	ExcludePatterns  []string `mapstructure:"exclude_patterns"`
	HeartbeatSeconds int      `mapstructure:"heartbeat_seconds"`
}

// HTTPConfig configures the fetch client.
type HTTPConfig struct {
	TimeoutSeconds int   `mapstructure:"timeout_seconds"`
	MaxRedirects   int   `mapstructure:"max_redirects"`
	MaxBodyBytes   int64 `mapstructure:"max_body_bytes"`
}

// RobotsConfig governs the robots.txt policy cache.
type RobotsConfig struct {
	Respect     bool `mapstructure:"respect"`
	CacheTTLMin int  `mapstructure:"cache_ttl_minutes"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
	DSN        string `mapstructure:"dsn"`
	MaxConns   int32  `mapstructure:"max_conns"`
	MinConns   int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for page-persisted notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize    int `mapstructure:"buffer_size"`
	BatchSize     int `mapstructure:"batch_size"`
	FlushMs       int `mapstructure:"flush_ms"`
	SinkTimeoutMs int `mapstructure:"sink_timeout_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk and environment. Environment variables use
// the CRAWLER_ prefix with dots replaced by underscores, e.g.
// CRAWLER_CRAWLER_MAX_PAGES.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("crawler.user_agent", "seriously-crawler/0.1")
	v.SetDefault("crawler.concurrency", 8)
	v.SetDefault("crawler.max_depth", 3)
	v.SetDefault("crawler.max_pages", 1000)
	v.SetDefault("crawler.delay_ms", 1000)
	v.SetDefault("crawler.follow_external", false)
	v.SetDefault("crawler.allow_subdomains", true)
	v.SetDefault("crawler.skip_crawled", false)
	v.SetDefault("crawler.heartbeat_seconds", 5)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_redirects", 5)
	v.SetDefault("http.max_body_bytes", 10*1024*1024)
	v.SetDefault("robots.respect", true)
	v.SetDefault("robots.cache_ttl_minutes", 60)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.sqlite_path", "crawl.db")
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.batch_size", 256)
	v.SetDefault("progress.flush_ms", 500)
	v.SetDefault("progress.sink_timeout_ms", 10000)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Robots.Respect && c.Robots.CacheTTLMin <= 0 {
		return fmt.Errorf("robots.cache_ttl_minutes must be > 0 when robots.respect is set")
	}
	switch c.Storage.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	for _, pattern := range c.Crawler.ExcludePatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("exclude pattern %q: %w", pattern, err)
		}
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub.topic_name is set")
	}
	return nil
}

// CrawlerSettings converts the loaded configuration into the engine's
// dependency-injected form, compiling exclude patterns. Seeds passed on the
// command line may be appended by the caller before conversion.
func (c Config) CrawlerSettings() (crawler.CrawlerConfig, error) {
	patterns := make([]*regexp.Regexp, 0, len(c.Crawler.ExcludePatterns))
	for _, pattern := range c.Crawler.ExcludePatterns {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return crawler.CrawlerConfig{}, fmt.Errorf("exclude pattern %q: %w", pattern, err)
		}
		patterns = append(patterns, compiled)
	}
	return crawler.CrawlerConfig{
		Seeds:               append([]string(nil), c.Crawler.Seeds...),
		UserAgent:           c.Crawler.UserAgent,
		MaxPages:            c.Crawler.MaxPages,
		MaxDepth:            c.Crawler.MaxDepth,
		Concurrency:         c.Crawler.Concurrency,
		CrawlDelay:          time.Duration(c.Crawler.DelayMs) * time.Millisecond,
		RequestTimeout:      time.Duration(c.HTTP.TimeoutSeconds) * time.Second,
		MaxRedirects:        c.HTTP.MaxRedirects,
		MaxBodyBytes:        c.HTTP.MaxBodyBytes,
		RespectRobots:       c.Robots.Respect,
		RobotsCacheTTL:      time.Duration(c.Robots.CacheTTLMin) * time.Minute,
		FollowExternalLinks: c.Crawler.FollowExternal,
		AllowSubdomains:     c.Crawler.AllowSubdomains,
		SkipCrawled:         c.Crawler.SkipCrawled,
		ExcludePatterns:     patterns,
		HeartbeatInterval:   time.Duration(c.Crawler.HeartbeatSeconds) * time.Second,
		PublishTopic:        c.PubSub.TopicName,
	}, nil
}
