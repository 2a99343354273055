package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "seriously-crawler/0.1", cfg.Crawler.UserAgent)
	assert.Equal(t, 8, cfg.Crawler.Concurrency)
	assert.Equal(t, 3, cfg.Crawler.MaxDepth)
	assert.Equal(t, 1000, cfg.Crawler.MaxPages)
	assert.True(t, cfg.Robots.Respect)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 256, cfg.Progress.BatchSize)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
crawler:
  seeds:
    - https://example.com/
  max_pages: 25
  delay_ms: 250
  exclude_patterns:
    - "\\.pdf$"
storage:
  backend: sqlite
  sqlite_path: /tmp/crawl.db
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/"}, cfg.Crawler.Seeds)
	assert.Equal(t, 25, cfg.Crawler.MaxPages)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, 8, cfg.Crawler.Concurrency, "unset keys keep defaults")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CRAWLER_CRAWLER_MAX_PAGES", "42")
	t.Setenv("CRAWLER_STORAGE_BACKEND", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Crawler.MaxPages)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]struct {
		mutate func(c *Config)
	}{
		"zero port":             {func(c *Config) { c.Server.Port = 0 }},
		"zero concurrency":      {func(c *Config) { c.Crawler.Concurrency = 0 }},
		"negative depth":        {func(c *Config) { c.Crawler.MaxDepth = -1 }},
		"zero max pages":        {func(c *Config) { c.Crawler.MaxPages = 0 }},
		"zero timeout":          {func(c *Config) { c.HTTP.TimeoutSeconds = 0 }},
		"robots without ttl":    {func(c *Config) { c.Robots.CacheTTLMin = 0 }},
		"unknown backend":       {func(c *Config) { c.Storage.Backend = "redis" }},
		"sqlite without path":   {func(c *Config) { c.Storage.Backend = "sqlite"; c.Storage.SQLitePath = "" }},
		"postgres without dsn":  {func(c *Config) { c.Storage.Backend = "postgres" }},
		"bad exclude pattern":   {func(c *Config) { c.Crawler.ExcludePatterns = []string{"["} }},
		"topic without project": {func(c *Config) { c.PubSub.TopicName = "pages" }},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCrawlerSettingsConversion(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Crawler.Seeds = []string{"https://example.com/"}
	cfg.Crawler.DelayMs = 250
	cfg.Crawler.ExcludePatterns = []string{`\.pdf$`}
	cfg.PubSub.ProjectID = "demo"
	cfg.PubSub.TopicName = "pages"

	settings, err := cfg.CrawlerSettings()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/"}, settings.Seeds)
	assert.Equal(t, 250*time.Millisecond, settings.CrawlDelay)
	assert.Equal(t, 15*time.Second, settings.RequestTimeout)
	assert.Equal(t, time.Hour, settings.RobotsCacheTTL)
	assert.Equal(t, 5*time.Second, settings.HeartbeatInterval)
	assert.Equal(t, "pages", settings.PublishTopic)
	require.Len(t, settings.ExcludePatterns, 1)
	assert.True(t, settings.ExcludePatterns[0].MatchString("https://example.com/report.pdf"))

	cfg.Crawler.ExcludePatterns = []string{"["}
	_, err = cfg.CrawlerSettings()
	assert.Error(t, err)
}
