package crawler

import (
	"fmt"
	"regexp"
	"time"
)

// CrawlerConfig captures every knob that influences a crawl session. It is
// constructed once (usually from Viper, see internal/config) and passed by
// dependency injection into the engine and its collaborators.
type CrawlerConfig struct {
	Seeds               []string
	UserAgent           string
	MaxPages            int
	MaxDepth            int
	Concurrency         int
	CrawlDelay          time.Duration
	RequestTimeout      time.Duration
	MaxRedirects        int
	MaxBodyBytes        int64
	RespectRobots       bool
	RobotsCacheTTL      time.Duration
	FollowExternalLinks bool
	AllowSubdomains     bool
	SkipCrawled         bool
	ExcludePatterns     []*regexp.Regexp
	HeartbeatInterval   time.Duration
	PublishTopic        string
}

// Validate checks for configuration that must fail Start before any worker
// spawns.
func (c CrawlerConfig) Validate() error {
	if len(c.Seeds) == 0 {
		return fmt.Errorf("at least one seed URL is required")
	}
	for _, seed := range c.Seeds {
		if _, err := NormalizeURL(seed); err != nil {
			return fmt.Errorf("seed %q: %w", seed, err)
		}
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent must be set")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be > 0")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max depth must be >= 0")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be > 0")
	}
	if c.CrawlDelay < 0 {
		return fmt.Errorf("crawl delay must be >= 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be > 0")
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("max redirects must be >= 0")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be > 0")
	}
	if c.RespectRobots && c.RobotsCacheTTL <= 0 {
		return fmt.Errorf("robots cache ttl must be > 0 when robots are respected")
	}
	return nil
}

// SeedDomains returns the deduplicated domains of the (normalizable) seeds.
func (c CrawlerConfig) SeedDomains() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, seed := range c.Seeds {
		normalized, err := NormalizeURL(seed)
		if err != nil {
			continue
		}
		domain := Domain(normalized)
		if _, ok := seen[domain]; ok || domain == "" {
			continue
		}
		seen[domain] = struct{}{}
		out = append(out, domain)
	}
	return out
}
